package api

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/sync/errgroup"

	"github.com/ByLCY/capstone/card"
	"github.com/ByLCY/capstone/dsl"
	"github.com/ByLCY/capstone/form"
	"github.com/ByLCY/capstone/imagecrop"
	"github.com/ByLCY/capstone/logging"
	canvasrenderer "github.com/ByLCY/capstone/renderer/canvas"
	"github.com/ByLCY/capstone/templates"
	"github.com/ByLCY/capstone/textfit"
)

const (
	defaultQRSize = 400
	maxQRSize     = 2048
)

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type fitRequest struct {
	Text     string             `json:"text"`
	MaxWords int                `json:"max_words"`
	Box      textfit.BoxMetrics `json:"box"`
}

// fitHandler caps the text to max_words, when given, then fits it to box.
func (s *Server) fitHandler(c *gin.Context) {
	var req fitRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	text := req.Text
	if req.MaxWords > 0 {
		text = textfit.CapWords(text, req.MaxWords)
	}
	fitted, err := textfit.Fit(canvasrenderer.NewRenderer(s.BaseDir), textfit.Request{Text: text, Box: req.Box})
	if err != nil {
		logging.Logger().Warn("api: fit failed", "err", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"text":      fitted,
		"words":     textfit.CountWords(fitted),
		"truncated": fitted != req.Text,
	})
}

// headshotHandler returns the uploaded photo as a 1200x1440 JPEG, or with
// ?format=json as {width, height, format, url} where url is a data: URL.
func (s *Server) headshotHandler(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	raster, err := s.processUpload(c.Request.Context(), fh)
	if err != nil {
		writeUploadError(c, err)
		return
	}
	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, gin.H{
			"width":  raster.Width,
			"height": raster.Height,
			"format": raster.Format,
			"url":    raster.DataURL(),
		})
		return
	}
	c.Data(http.StatusOK, raster.Format, raster.Data)
}

// processUpload runs the photo pipeline in the background and gives up when
// ctx ends. The upload stays open until the pipeline has finished with it.
func (s *Server) processUpload(ctx context.Context, fh *multipart.FileHeader) (*imagecrop.Raster, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", imagecrop.ErrProcessing, err)
	}
	done := s.Photos.ProcessAsync(imagecrop.Upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	})
	select {
	case out := <-done:
		f.Close()
		return out.Raster, out.Err
	case <-ctx.Done():
		go func() {
			<-done
			f.Close()
		}()
		return nil, fmt.Errorf("%w: %w", imagecrop.ErrProcessing, ctx.Err())
	}
}

// uploadStatus maps photo errors to HTTP statuses. Anything not a
// validation failure is reported as a generic processing failure.
func uploadStatus(err error) (int, string) {
	switch {
	case errors.Is(err, imagecrop.ErrNotImage):
		return http.StatusBadRequest, "upload an image file (JPG/PNG)"
	case errors.Is(err, imagecrop.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "image must be at most 20 MB"
	case errors.Is(err, imagecrop.ErrTooSmall):
		return http.StatusUnprocessableEntity, "image resolution is below 1200x1440"
	default:
		return http.StatusInternalServerError, "processing failed"
	}
}

func writeUploadError(c *gin.Context, err error) {
	status, msg := uploadStatus(err)
	if status == http.StatusInternalServerError {
		logging.Logger().Error("api: headshot processing", "err", err)
	}
	c.JSON(status, gin.H{"error": msg})
}

// cardHandler renders a card from a multipart "draft" JSON field and an
// optional "file" photo. The photo is processed while the template is parsed.
func (s *Server) cardHandler(c *gin.Context) {
	raw := c.PostForm("draft")
	if strings.TrimSpace(raw) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing draft"})
		return
	}
	draft, err := form.Decode(strings.NewReader(raw))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fh, _ := c.FormFile("file")

	var (
		doc    *dsl.Document
		raster *imagecrop.Raster
	)
	g, ctx := errgroup.WithContext(c.Request.Context())
	if fh != nil {
		g.Go(func() error {
			r, err := s.processUpload(ctx, fh)
			raster = r
			return err
		})
	}
	g.Go(func() error {
		d, err := templates.Load(s.Template)
		doc = d
		return err
	})
	if err := g.Wait(); err != nil {
		if isUploadError(err) {
			writeUploadError(c, err)
			return
		}
		logging.Logger().Error("api: loading template", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "template unavailable"})
		return
	}
	if raster != nil {
		draft.Headshot = raster.Data
		draft.HeadshotName = fh.Filename
	}
	draft.Normalize()

	res, pdf, err := card.Render(doc, draft, canvasrenderer.NewRenderer(s.BaseDir), card.Options{})
	if err != nil {
		logging.Logger().Error("api: rendering card", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var truncated []string
	for name, report := range res.Fields {
		if report.Truncated {
			truncated = append(truncated, name)
		}
	}
	if len(truncated) > 0 {
		sort.Strings(truncated)
		c.Header("X-Truncated-Fields", strings.Join(truncated, ","))
	}
	c.Header("Content-Disposition", `inline; filename="capstone.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func isUploadError(err error) bool {
	for _, target := range []error{imagecrop.ErrNotImage, imagecrop.ErrTooLarge, imagecrop.ErrTooSmall, imagecrop.ErrProcessing} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// qrHandler returns a PNG of a QR for the "text" query param.
func qrHandler(c *gin.Context) {
	text := c.Query("text")
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing text"})
		return
	}
	size := defaultQRSize
	if v, err := strconv.Atoi(c.Query("size")); err == nil && v > 0 {
		size = min(v, maxQRSize)
	}
	png, err := qrcode.Encode(text, qrcode.Medium, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
