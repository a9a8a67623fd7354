package imagecrop

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
)

var errSurfaceClosed = errors.New("imagecrop: surface closed")

// Surface is a fixed-size raster that receives one scaled source region and
// encodes itself.
type Surface interface {
	// Draw samples region of src and scales it to fill the whole surface.
	Draw(src image.Image, region image.Rectangle) error
	Encode(w io.Writer, quality int) error
	Close() error
}

// SurfaceFactory creates a surface of exactly width x height pixels.
type SurfaceFactory func(width, height int) (Surface, error)

// imagingSurface is a Surface backed by github.com/disintegration/imaging.
type imagingSurface struct {
	width  int
	height int
	filter imaging.ResampleFilter
	dst    *image.NRGBA
}

// NewImagingSurface allocates an opaque black NRGBA surface resampled with a
// Lanczos filter.
func NewImagingSurface(width, height int) (Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("imagecrop: surface size %dx%d", width, height)
	}
	return &imagingSurface{
		width:  width,
		height: height,
		filter: imaging.Lanczos,
		dst:    imaging.New(width, height, color.NRGBA{A: 0xff}),
	}, nil
}

func (s *imagingSurface) Draw(src image.Image, region image.Rectangle) error {
	if s.dst == nil {
		return errSurfaceClosed
	}
	region = region.Intersect(src.Bounds())
	if region.Empty() {
		return fmt.Errorf("imagecrop: crop region %v outside source %v", region, src.Bounds())
	}
	window := imaging.Crop(src, region)
	scaled := imaging.Resize(window, s.width, s.height, s.filter)
	s.dst = imaging.Paste(s.dst, scaled, image.Pt(0, 0))
	return nil
}

func (s *imagingSurface) Encode(w io.Writer, quality int) error {
	if s.dst == nil {
		return errSurfaceClosed
	}
	return imaging.Encode(w, s.dst, imaging.JPEG, imaging.JPEGQuality(quality))
}

func (s *imagingSurface) Close() error {
	s.dst = nil
	return nil
}
