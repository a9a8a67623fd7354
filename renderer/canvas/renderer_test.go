package canvasrenderer

import (
	"bytes"
	"image"
	stdpng "image/png"
	"math"
	"strings"
	"testing"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/ByLCY/capstone/layout"
	"github.com/ByLCY/capstone/textfit"
)

var bodyFont = layout.FontResource{Name: "Body", Src: "embed:regular", Weight: 400}

// 这里的宽度/字号/行高均为 mm
var (
	fontSizeMM   = 12 * layout.PtToMm
	lineHeightMM = fontSizeMM * 1.2
)

func TestLayoutLinesGreedyWrapsText(t *testing.T) {
	r := NewRenderer("")
	lines, err := r.LayoutLines("hello world again", 10, bodyFont, fontSizeMM, lineHeightMM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) < 2 {
		t.Fatalf("expected wrapping into multiple lines, got %d", len(lines))
	}
	for i, ln := range lines {
		if ln.Height != lineHeightMM {
			t.Fatalf("line %d height %g, want line-height %g", i, ln.Height, lineHeightMM)
		}
		if strings.HasSuffix(ln.Content, " ") {
			t.Fatalf("line %d keeps hanging whitespace: %q", i, ln.Content)
		}
	}
}

func TestGreedyWrapHonorsNewlines(t *testing.T) {
	r := NewRenderer("")
	lines, err := r.LayoutLines("foo\n\nbar", 100, bodyFont, fontSizeMM, lineHeightMM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines including blank, got %d", len(lines))
	}
	if lines[1].Content != "" {
		t.Fatalf("expected middle line to be blank, got %q", lines[1].Content)
	}
}

func TestTrailingNewlineAddsNoLine(t *testing.T) {
	r := NewRenderer("")
	lines, err := r.LayoutLines("foo\n", 100, bodyFont, fontSizeMM, lineHeightMM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	lines, _ = r.LayoutLines("foo\n\n", 100, bodyFont, fontSizeMM, lineHeightMM)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines for a doubled newline, got %d", len(lines))
	}
	lines, _ = r.LayoutLines("", 100, bodyFont, fontSizeMM, lineHeightMM)
	if len(lines) != 0 {
		t.Fatalf("empty text must have no lines, got %d", len(lines))
	}
}

// TestGreedyWrapWidthLimit 验证每行宽度不超过限制（mm），超长单词按字符拆分。
func TestGreedyWrapWidthLimit(t *testing.T) {
	r := NewRenderer("")
	limit := 30.0
	content := strings.Repeat("a", 53)
	lines, err := r.LayoutLines(content, limit, bodyFont, fontSizeMM, lineHeightMM)
	if err != nil {
		t.Fatalf("LayoutLines error: %v", err)
	}
	if len(lines) < 2 {
		t.Fatalf("expected the long word to be split, got %d lines", len(lines))
	}
	var joined strings.Builder
	for i, ln := range lines {
		if ln.Width-limit > 1e-6 {
			t.Fatalf("line %d width exceeds limit: width=%g limit=%g", i, ln.Width, limit)
		}
		joined.WriteString(ln.Content)
	}
	if joined.String() != content {
		t.Fatalf("split lost characters: %q", joined.String())
	}
}

// 当第一行宽度与容器宽度恰好相等且后面紧跟一个显式换行时，不应产生额外的空行。
func TestNoBlankLineWhenEqualWidthThenNewline(t *testing.T) {
	r := NewRenderer("")
	first := "SAMPLE-A"
	measured, err := r.LayoutLines(first, 1e6, bodyFont, fontSizeMM, lineHeightMM)
	if err != nil {
		t.Fatalf("measure error: %v", err)
	}
	if len(measured) != 1 {
		t.Fatalf("unexpected measured lines: %d", len(measured))
	}
	limit := measured[0].Width
	if limit <= 0 {
		t.Fatalf("invalid measured width: %g", limit)
	}

	lines, err := r.LayoutLines(first+"\nSAMPLE-B", limit, bodyFont, fontSizeMM, lineHeightMM)
	if err != nil {
		t.Fatalf("LayoutLines error: %v", err)
	}
	if got := len(lines); got != 2 {
		t.Fatalf("expected 2 lines without blank, got %d", got)
	}
	if lines[0].Content != first || lines[1].Content != "SAMPLE-B" {
		t.Fatalf("unexpected lines %q / %q", lines[0].Content, lines[1].Content)
	}
}

func surfaceBox() textfit.BoxMetrics {
	return textfit.BoxMetrics{
		ContentWidth:  240,
		ContentHeight: 100,
		FontFamily:    "Go, sans-serif",
		FontSize:      16,
		LineHeight:    20,
		FontWeight:    400,
	}
}

func TestSurfaceHeightIsLineCountTimesLineHeight(t *testing.T) {
	r := NewRenderer("")
	s, err := r.NewSurface(surfaceBox())
	if err != nil {
		t.Fatalf("NewSurface: %v", err)
	}
	defer s.Close()

	h, err := s.Height("")
	if err != nil || h != 0 {
		t.Fatalf("empty text height = %g, %v", h, err)
	}
	h, _ = s.Height("one")
	if h != 20 {
		t.Fatalf("single line height = %g, want 20", h)
	}
	h, _ = s.Height("one\ntwo\nthree")
	if h != 60 {
		t.Fatalf("three lines height = %g, want 60", h)
	}
}

func TestSurfaceHeightMonotone(t *testing.T) {
	r := NewRenderer("")
	s, err := r.NewSurface(surfaceBox())
	if err != nil {
		t.Fatalf("NewSurface: %v", err)
	}
	defer s.Close()

	words := strings.Fields(strings.Repeat("capstone projects explore hard questions ", 12))
	prev := 0.0
	for k := 1; k <= len(words); k++ {
		h, err := s.Height(strings.Join(words[:k], " "))
		if err != nil {
			t.Fatalf("Height: %v", err)
		}
		if h < prev {
			t.Fatalf("height decreased at %d words: %g < %g", k, h, prev)
		}
		prev = h
	}
}

func TestSurfaceRejectsUseAfterClose(t *testing.T) {
	r := NewRenderer("")
	s, err := r.NewSurface(surfaceBox())
	if err != nil {
		t.Fatalf("NewSurface: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.Height("late"); err == nil {
		t.Fatalf("expected error after Close")
	}
}

func TestNewSurfaceRejectsBadMetrics(t *testing.T) {
	r := NewRenderer("")
	box := surfaceBox()
	box.FontSize = 0
	if _, err := r.NewSurface(box); err == nil {
		t.Fatalf("expected error for zero font size")
	}
	box = surfaceBox()
	box.LineHeight = -1
	if _, err := r.NewSurface(box); err == nil {
		t.Fatalf("expected error for negative line height")
	}
}

// A box 5 line-heights tall keeps exactly the words that fill 5 lines.
func TestFitWithCanvasMetricsStopsAtFiveLines(t *testing.T) {
	r := NewRenderer("")
	box := surfaceBox()
	text := strings.Repeat("students present capstone work to the public each spring ", 20)

	got, err := textfit.Fit(r, textfit.Request{Text: text, Box: box})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if got == text || got == "" {
		t.Fatalf("expected a proper prefix, got %q", got)
	}
	if !strings.HasPrefix(text, got) {
		t.Fatalf("result is not a prefix of the input")
	}

	s, _ := r.NewSurface(box)
	defer s.Close()
	h, _ := s.Height(got)
	if math.Abs(h-100) > 1e-9 {
		t.Fatalf("fitted text height = %g, want exactly 5 lines (100)", h)
	}
	kept := textfit.CountWords(got)
	next := strings.Join(strings.Fields(text)[:kept+1], " ")
	if h, _ := s.Height(next); h <= 100 {
		t.Fatalf("one more word should overflow, height %g", h)
	}

	again, err := textfit.Fit(r, textfit.Request{Text: got, Box: box})
	if err != nil || again != got {
		t.Fatalf("fit is not idempotent: %q, %v", again, err)
	}
}

func TestFitWithCanvasMetricsIgnoresTrailingBlankLines(t *testing.T) {
	box := surfaceBox()
	box.ContentWidth = 400
	box.ContentHeight = 20
	got, err := textfit.Fit(NewRenderer(""), textfit.Request{Text: "one two three\n\n", Box: box})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if got != "one two three" {
		t.Fatalf("got %q want %q", got, "one two three")
	}
}

func TestResolveFamilyPrefersRegisteredFonts(t *testing.T) {
	r := NewRenderer("")
	heading := layout.FontResource{Name: "Heading", Src: "embed:bold", Family: "Go", Weight: 700}
	if err := r.RegisterFonts(map[string]layout.FontResource{"Heading": heading, "Body": bodyFont}); err != nil {
		t.Fatalf("RegisterFonts: %v", err)
	}
	if got := r.resolveFamily("Heading, sans-serif", 400, ""); got.Src != "embed:bold" {
		t.Fatalf("expected registered name to win, got %+v", got)
	}
	if got := r.resolveFamily("'Go'", 700, ""); got.Src != "embed:bold" {
		t.Fatalf("expected closest weight in family, got %+v", got)
	}
	if got := r.resolveFamily("Unknown, serif", 700, "italic"); got.Src != "embed:bold-italic" {
		t.Fatalf("expected built-in bold italic, got %+v", got)
	}
	if got := r.resolveFamily("", 0, ""); got.Src != "embed:regular" || got.Weight != 400 {
		t.Fatalf("expected built-in regular, got %+v", got)
	}
}

func TestRegisterFontsRequiresSrc(t *testing.T) {
	r := NewRenderer("")
	if err := r.RegisterFonts(map[string]layout.FontResource{"Body": {Name: "Body"}}); err == nil {
		t.Fatalf("expected error for font without src")
	}
}

func TestBuiltinFontVariants(t *testing.T) {
	cases := []struct {
		weight int
		italic bool
		want   string
	}{
		{400, false, "embed:regular"},
		{500, false, "embed:medium"},
		{600, true, "embed:medium-italic"},
		{700, false, "embed:bold"},
		{300, true, "embed:italic"},
	}
	for _, c := range cases {
		if got := builtinFont(c.weight, c.italic).Src; got != c.want {
			t.Fatalf("builtinFont(%d, %v) = %s, want %s", c.weight, c.italic, got, c.want)
		}
	}
}

func TestRenderProducesPDF(t *testing.T) {
	r := NewRenderer("")
	green := layout.Color{R: 0x00, G: 0x66, B: 0x33}
	result := &layout.Result{
		Resources: layout.ResourceSet{Fonts: map[string]layout.FontResource{"Body": bodyFont}},
		Meta:      layout.DocumentMeta{Title: "Card"},
		Pages: []layout.Page{{
			Width:  215.9,
			Height: 279.4,
			Rects:  []layout.Rect{{X: 0, Y: 0, Width: 215.9, Height: 6.35, FillColor: &green}},
			Texts: []layout.TextBox{{
				Content:    "Ada Lovelace",
				X:          12.7,
				Y:          20,
				Width:      100,
				Font:       "Body",
				FontSize:   fontSizeMM,
				LineHeight: lineHeightMM,
				Lines:      []layout.TextLine{{Content: "Ada Lovelace", Height: lineHeightMM}},
			}},
		}},
	}
	out, err := r.Render(result)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Fatalf("output is not a PDF: %q", out[:min(8, len(out))])
	}
}

func TestRenderRejectsEmptyResult(t *testing.T) {
	r := NewRenderer("")
	if _, err := r.Render(nil); err == nil {
		t.Fatalf("expected error for nil result")
	}
	if _, err := r.Render(&layout.Result{}); err == nil {
		t.Fatalf("expected error for result without pages")
	}
}

func TestInjectedBuiltinResources(t *testing.T) {
	var png bytes.Buffer
	if err := encodeSolidPNG(&png, 10, 12); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	r := NewRendererWithOptions(Options{
		Fonts:  map[string]Resource{"Card": {Bytes: goregular.TTF}},
		Images: map[string]Resource{"logo": {Bytes: png.Bytes()}},
	})
	font := layout.FontResource{Name: "Card", Src: "built-in:Card", Weight: 400}
	lines, err := r.LayoutLines("injected font", 100, font, fontSizeMM, lineHeightMM)
	if err != nil || len(lines) != 1 {
		t.Fatalf("LayoutLines with injected font: %v, %d lines", err, len(lines))
	}
	img, err := r.decodeImage(layout.ImageBox{Path: "built-in:logo"})
	if err != nil || img.Bounds().Dx() != 10 {
		t.Fatalf("decode injected image: %v", err)
	}
	if _, err := r.decodeImage(layout.ImageBox{Path: "built-in:missing"}); err == nil {
		t.Fatalf("expected error for unknown built-in image")
	}
	if _, err := r.decodeImage(layout.ImageBox{Path: "relative.png"}); err == nil {
		t.Fatalf("relative paths need a base directory")
	}
}

func encodeSolidPNG(w *bytes.Buffer, width, height int) error {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return stdpng.Encode(w, img)
}
