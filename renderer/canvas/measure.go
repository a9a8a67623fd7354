package canvasrenderer

import (
	"errors"
	"fmt"

	"github.com/ByLCY/capstone/layout"
	"github.com/ByLCY/capstone/textfit"
)

var errSurfaceClosed = errors.New("measurement surface closed")

// pxToPt converts CSS pixels to points (1px = 0.75pt).
const pxToPt = 72.0 / 96.0

// NewSurface implements textfit.MetricsProvider. The surface wraps text with
// the same line breaker LayoutLines uses, so a fitted prefix renders in
// exactly the number of lines it was measured with.
func (r *Renderer) NewSurface(box textfit.BoxMetrics) (textfit.Surface, error) {
	if box.FontSize <= 0 {
		return nil, fmt.Errorf("font size %gpx", box.FontSize)
	}
	if box.LineHeight <= 0 {
		return nil, fmt.Errorf("line height %gpx", box.LineHeight)
	}
	font := r.resolveFamily(box.FontFamily, box.FontWeight, box.FontStyle)
	face, err := r.fontFace(font, box.FontSize*pxToPt, layout.Color{})
	if err != nil {
		return nil, err
	}
	return &measureSurface{
		face:       face,
		width:      box.ContentWidth * layout.PxToMm,
		lineHeight: box.LineHeight,
	}, nil
}

// measureSurface is a hidden layout area of fixed width. Heights are px.
type measureSurface struct {
	face       textMeasurer
	width      float64 // mm
	lineHeight float64 // px
}

func (s *measureSurface) Height(text string) (float64, error) {
	if s.face == nil {
		return 0, errSurfaceClosed
	}
	return float64(len(wrapLines(text, s.width, s.face))) * s.lineHeight, nil
}

func (s *measureSurface) Close() error {
	s.face = nil
	return nil
}
