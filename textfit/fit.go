// Package textfit truncates free-form text to the longest whole-word prefix
// that renders inside a fixed box.
//
// The engine never lays text out itself. It asks a MetricsProvider for a
// measurement Surface configured like the target box, probes candidate
// prefixes with a binary search over the word count and releases the surface
// before returning.
//
// Rendered height must be non-decreasing in the number of words for the
// search to be exact. Ordinary wrapping text satisfies this; it is a
// precondition of the provider and is not checked at run time.
package textfit

import (
	"errors"
	"fmt"
	"math"

	"github.com/ByLCY/capstone/logging"
)

// heightEpsilon absorbs float accumulation when heights are sums of line boxes.
const heightEpsilon = 1e-6

// ErrMeasure wraps every failure reported by a provider or surface.
var ErrMeasure = errors.New("textfit: measurement failed")

// BoxMetrics is the geometry and computed style of a text box at call time.
// Lengths are CSS pixels; ContentWidth and ContentHeight exclude padding.
type BoxMetrics struct {
	ContentWidth  float64 `json:"content_width"`
	ContentHeight float64 `json:"content_height"`
	FontFamily    string  `json:"font_family"`
	FontSize      float64 `json:"font_size"`   // px
	LineHeight    float64 `json:"line_height"` // px, absolute
	FontWeight    int     `json:"font_weight"`
	FontStyle     string  `json:"font_style,omitempty"`
	TextAlign     string  `json:"text_align,omitempty"`
}

// Measurable reports whether the box has a usable content area. A box that
// is not laid out yet reports zero or negative sizes.
func (m BoxMetrics) Measurable() bool {
	return m.ContentWidth > 0 && m.ContentHeight > 0
}

// MaxLines is the number of whole line boxes the content area can hold.
func (m BoxMetrics) MaxLines() int {
	if m.LineHeight <= 0 || m.ContentHeight <= 0 {
		return 0
	}
	return int(math.Floor(m.ContentHeight/m.LineHeight + heightEpsilon))
}

// WithLines returns a copy whose content height holds exactly n line boxes,
// the geometry of a line clamp.
func (m BoxMetrics) WithLines(n int) BoxMetrics {
	m.ContentHeight = float64(n) * m.LineHeight
	return m
}

// Request pairs the text to fit with the box it must fit in.
type Request struct {
	Text string     `json:"text"`
	Box  BoxMetrics `json:"box"`
}

// Surface is a transient, hidden measurement area configured like one box.
type Surface interface {
	// Height returns the rendered height in px of text wrapped naturally at
	// the box content width.
	Height(text string) (float64, error)
	Close() error
}

// MetricsProvider creates measurement surfaces. Implementations may share
// immutable font data between surfaces but never per-call state.
type MetricsProvider interface {
	NewSurface(box BoxMetrics) (Surface, error)
}

// Fitter runs fits against a single provider.
type Fitter struct {
	provider MetricsProvider
}

// NewFitter returns a Fitter bound to p.
func NewFitter(p MetricsProvider) *Fitter { return &Fitter{provider: p} }

// Fit is shorthand for NewFitter(p).Fit(req).
func Fit(p MetricsProvider, req Request) (string, error) {
	return NewFitter(p).Fit(req)
}

// Fit returns the longest whole-word prefix of req.Text whose rendered height
// is at most req.Box.ContentHeight.
//
// Text that already fits comes back unchanged, trailing whitespace included.
// Text with no words yields "". An unmeasurable box yields the text unchanged
// so the caller can retry once the box is laid out. When measurement fails
// the text is returned unchanged together with an error wrapping ErrMeasure.
func (f *Fitter) Fit(req Request) (string, error) {
	if !req.Box.Measurable() {
		return req.Text, nil
	}
	spans := wordSpans(req.Text)
	if len(spans) == 0 {
		return "", nil
	}
	if f.provider == nil {
		return req.Text, fmt.Errorf("%w: no metrics provider", ErrMeasure)
	}

	surface, err := f.provider.NewSurface(req.Box)
	if err != nil {
		return req.Text, fmt.Errorf("%w: %w", ErrMeasure, err)
	}
	defer func() {
		if cerr := surface.Close(); cerr != nil {
			logging.Logger().Warn("textfit: closing surface", "err", cerr)
		}
	}()

	probes := 0
	fits := func(candidate string) (bool, error) {
		probes++
		h, err := surface.Height(candidate)
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrMeasure, err)
		}
		return h <= req.Box.ContentHeight+heightEpsilon, nil
	}

	ok, err := fits(req.Text)
	if err != nil {
		return req.Text, err
	}
	if ok {
		return req.Text, nil
	}

	// The full text does not fit. Trailing whitespace may be what overflows,
	// so all n words remain a candidate unless they are the whole text.
	lo, hi, best := 1, len(spans), 0
	if spans[len(spans)-1].end == len(req.Text) {
		hi--
	}
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		ok, err := fits(prefix(req.Text, spans, mid))
		if err != nil {
			return req.Text, err
		}
		if ok {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	logging.Logger().Debug("textfit: truncated",
		"words", len(spans), "kept", best, "probes", probes,
		"width", req.Box.ContentWidth, "height", req.Box.ContentHeight)
	return prefix(req.Text, spans, best), nil
}
