// Package imagecrop turns an arbitrary photo into a fixed-size raster with an
// exact target aspect ratio by center-cropping and resampling.
package imagecrop

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrInvalidSpec is returned when a crop spec has a non-positive dimension.
var ErrInvalidSpec = errors.New("imagecrop: invalid crop spec")

// Spec describes a source image and the target raster it must fill.
type Spec struct {
	SourceWidth  int `json:"source_width"`
	SourceHeight int `json:"source_height"`
	TargetWidth  int `json:"target_width"`
	TargetHeight int `json:"target_height"`
}

// TargetAspect is TargetWidth / TargetHeight.
func (s Spec) TargetAspect() float64 {
	return float64(s.TargetWidth) / float64(s.TargetHeight)
}

// SourceAspect is SourceWidth / SourceHeight.
func (s Spec) SourceAspect() float64 {
	return float64(s.SourceWidth) / float64(s.SourceHeight)
}

func (s Spec) validate() error {
	if s.SourceWidth <= 0 || s.SourceHeight <= 0 || s.TargetWidth <= 0 || s.TargetHeight <= 0 {
		return fmt.Errorf("%w: source %dx%d target %dx%d", ErrInvalidSpec,
			s.SourceWidth, s.SourceHeight, s.TargetWidth, s.TargetHeight)
	}
	return nil
}

// Rect is a crop window in source pixel space. Fractional values are kept so
// the window's aspect ratio matches the target exactly.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Aspect is Width / Height.
func (r Rect) Aspect() float64 { return r.Width / r.Height }

// Bounds rounds the window to whole pixels, offset by origin (the Min point
// of the source image bounds).
func (r Rect) Bounds(origin image.Point) image.Rectangle {
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	x1 := int(math.Round(r.X + r.Width))
	y1 := int(math.Round(r.Y + r.Height))
	return image.Rect(x0, y0, x1, y1).Add(origin)
}

// PlanCrop returns the centered window of the source that has the target
// aspect ratio and is as large as possible. The axis with surplus is reduced
// symmetrically; the other axis is kept whole. Equal aspects yield the full
// source rectangle.
func PlanCrop(s Spec) (Rect, error) {
	if err := s.validate(); err != nil {
		return Rect{}, err
	}
	sw, sh := float64(s.SourceWidth), float64(s.SourceHeight)
	tw, th := float64(s.TargetWidth), float64(s.TargetHeight)

	// Compare sw/sh with tw/th without dividing.
	wider := int64(s.SourceWidth)*int64(s.TargetHeight) > int64(s.SourceHeight)*int64(s.TargetWidth)
	if wider {
		w := sh * tw / th
		return Rect{X: (sw - w) / 2, Y: 0, Width: w, Height: sh}, nil
	}
	h := sw * th / tw
	return Rect{X: 0, Y: (sh - h) / 2, Width: sw, Height: h}, nil
}
