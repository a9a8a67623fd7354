package imagecrop

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/ByLCY/capstone/logging"
)

// Headshot constants: 1200x1440 (5:6) JPEG at quality 0.92.
const (
	TargetWidth    = 1200
	TargetHeight   = 1440
	JPEGQuality    = 92
	MaxUploadBytes = 20 << 20
)

// Upload validation failures, checked before any crop planning. Processing
// failures after validation are reported as ErrProcessing only.
var (
	ErrNotImage   = errors.New("imagecrop: file is not an image")
	ErrTooLarge   = errors.New("imagecrop: file exceeds size limit")
	ErrTooSmall   = errors.New("imagecrop: image resolution below target")
	ErrProcessing = errors.New("imagecrop: processing failed")
)

// Upload is a user-selected file before decoding.
type Upload struct {
	Name        string
	ContentType string // declared MIME type, sniffed when empty
	Size        int64  // declared size, negative when unknown
	Body        io.Reader
}

// Outcome is the single value delivered by ProcessAsync.
type Outcome struct {
	Raster *Raster
	Err    error
}

// Engine validates, decodes, crops and resamples photos to one fixed raster
// format. The zero value is not usable; call NewEngine.
type Engine struct {
	Width      int
	Height     int
	Quality    int
	MaxBytes   int64
	NewSurface SurfaceFactory
}

// NewEngine returns an engine producing 1200x1440 JPEG rasters at quality 92
// from uploads of at most 20 MiB.
func NewEngine() *Engine {
	return &Engine{
		Width:      TargetWidth,
		Height:     TargetHeight,
		Quality:    JPEGQuality,
		MaxBytes:   MaxUploadBytes,
		NewSurface: NewImagingSurface,
	}
}

// Validate checks the declared type and size of u without reading its body.
func (e *Engine) Validate(u Upload) error {
	if u.ContentType != "" && !isImageType(u.ContentType) {
		return fmt.Errorf("%w: %s", ErrNotImage, u.ContentType)
	}
	if u.Size > e.MaxBytes {
		return fmt.Errorf("%w: %d bytes > %d", ErrTooLarge, u.Size, e.MaxBytes)
	}
	return nil
}

// Process validates u, decodes it, plans a centered crop and returns the
// resampled raster. It either returns a complete raster at exactly
// Width x Height or an error.
func (e *Engine) Process(u Upload) (*Raster, error) {
	log := logging.Logger()
	if err := e.Validate(u); err != nil {
		log.Warn("imagecrop: upload rejected", "name", u.Name, "err", err)
		return nil, err
	}
	if u.Body == nil {
		return nil, fmt.Errorf("%w: empty upload", ErrProcessing)
	}

	data, err := io.ReadAll(io.LimitReader(u.Body, e.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrProcessing, u.Name, err)
	}
	if int64(len(data)) > e.MaxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, e.MaxBytes)
	}
	if u.ContentType == "" {
		if sniffed := http.DetectContentType(data); !isImageType(sniffed) {
			return nil, fmt.Errorf("%w: detected %s", ErrNotImage, sniffed)
		}
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrProcessing, u.Name, err)
	}
	b := src.Bounds()
	if b.Dx() < e.Width || b.Dy() < e.Height {
		return nil, fmt.Errorf("%w: %dx%d < %dx%d", ErrTooSmall, b.Dx(), b.Dy(), e.Width, e.Height)
	}

	crop, err := PlanCrop(Spec{
		SourceWidth:  b.Dx(),
		SourceHeight: b.Dy(),
		TargetWidth:  e.Width,
		TargetHeight: e.Height,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	log.Debug("imagecrop: crop planned", "name", u.Name,
		"source", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
		"x", crop.X, "y", crop.Y, "w", crop.Width, "h", crop.Height)

	return e.Resample(src, crop, e.Width, e.Height)
}

// ProcessAsync runs Process in its own goroutine. The returned channel
// receives exactly one Outcome and is then closed.
func (e *Engine) ProcessAsync(u Upload) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		r, err := e.Process(u)
		out <- Outcome{Raster: r, Err: err}
	}()
	return out
}

// Resample draws the crop window of src into a width x height surface and
// encodes it. The surface is released on every return path.
func (e *Engine) Resample(src image.Image, crop Rect, width, height int) (*Raster, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source image", ErrProcessing)
	}
	factory := e.NewSurface
	if factory == nil {
		factory = NewImagingSurface
	}
	surface, err := factory(width, height)
	if err != nil {
		return nil, fmt.Errorf("%w: creating surface: %w", ErrProcessing, err)
	}
	defer func() {
		if cerr := surface.Close(); cerr != nil {
			logging.Logger().Warn("imagecrop: closing surface", "err", cerr)
		}
	}()

	if err := surface.Draw(src, crop.Bounds(src.Bounds().Min)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	var buf bytes.Buffer
	if err := surface.Encode(&buf, e.Quality); err != nil {
		return nil, fmt.Errorf("%w: encoding: %w", ErrProcessing, err)
	}
	return &Raster{
		Width:   width,
		Height:  height,
		Format:  "image/jpeg",
		Quality: e.Quality,
		Data:    buf.Bytes(),
	}, nil
}

func isImageType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}
