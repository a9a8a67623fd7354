package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ByLCY/capstone/imagecrop"
)

func init() { gin.SetMode(gin.TestMode) }

func testServer() *Server {
	return &Server{
		Photos: &imagecrop.Engine{
			Width:      50,
			Height:     60,
			Quality:    imagecrop.JPEGQuality,
			MaxBytes:   1 << 20,
			NewSurface: imagecrop.NewImagingSurface,
		},
	}
}

func testRouter(s *Server) *gin.Engine {
	r := gin.New()
	s.RegisterRoutes(r)
	return r
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type part struct {
	name, filename, contentType string
	body                        []byte
}

func multipartBody(t *testing.T, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.filename == "" {
			if err := w.WriteField(p.name, string(p.body)); err != nil {
				t.Fatalf("write field: %v", err)
			}
			continue
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="`+p.name+`"; filename="`+p.filename+`"`)
		h.Set("Content-Type", p.contentType)
		pw, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		pw.Write(p.body)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func do(r http.Handler, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(testRouter(testServer()), http.MethodGet, "/api/health", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}

func TestFitTruncates(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("capstone ", 60))
	payload, _ := json.Marshal(map[string]any{
		"text":      text,
		"max_words": 50,
		"box": map[string]any{
			"content_width":  200,
			"content_height": 40,
			"font_family":    "Go",
			"font_size":      16,
			"line_height":    20,
			"font_weight":    400,
		},
	})
	rec := do(testRouter(testServer()), http.MethodPost, "/api/fit", bytes.NewBuffer(payload), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Text      string `json:"text"`
		Words     int    `json:"words"`
		Truncated bool   `json:"truncated"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !out.Truncated || out.Words == 0 || out.Words >= 50 {
		t.Fatalf("expected truncation below the word cap, got %+v", out)
	}
	if !strings.HasPrefix(text, out.Text) {
		t.Fatalf("result is not a prefix: %q", out.Text)
	}
}

func TestFitUnmeasurableBoxKeepsText(t *testing.T) {
	payload := []byte(`{"text":"hello there","box":{"content_width":0,"content_height":0}}`)
	rec := do(testRouter(testServer()), http.MethodPost, "/api/fit", bytes.NewBuffer(payload), "application/json")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"truncated":false`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestFitRejectsBadJSON(t *testing.T) {
	rec := do(testRouter(testServer()), http.MethodPost, "/api/fit", bytes.NewBufferString("{"), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHeadshotReturnsExactJPEG(t *testing.T) {
	body, ct := multipartBody(t, part{name: "file", filename: "me.png", contentType: "image/png", body: pngBytes(t, 120, 90)})
	rec := do(testRouter(testServer()), http.MethodPost, "/api/headshot", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Fatalf("unexpected content type %s", got)
	}
	cfg, err := jpeg.DecodeConfig(rec.Body)
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if cfg.Width != 50 || cfg.Height != 60 {
		t.Fatalf("expected 50x60, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestHeadshotErrorStatuses(t *testing.T) {
	big := &Server{Photos: &imagecrop.Engine{Width: 50, Height: 60, Quality: 92, MaxBytes: 64, NewSurface: imagecrop.NewImagingSurface}}
	failing := &Server{Photos: &imagecrop.Engine{Width: 50, Height: 60, Quality: 92, MaxBytes: 1 << 20,
		NewSurface: func(int, int) (imagecrop.Surface, error) { return nil, errors.New("out of memory") }}}

	cases := []struct {
		name   string
		srv    *Server
		parts  []part
		status int
	}{
		{"missing file", testServer(), []part{{name: "draft", body: []byte("x")}}, http.StatusBadRequest},
		{"not an image", testServer(), []part{{name: "file", filename: "a.txt", contentType: "text/plain", body: []byte("hello")}}, http.StatusBadRequest},
		{"too large", big, []part{{name: "file", filename: "a.png", contentType: "image/png", body: pngBytes(t, 120, 90)}}, http.StatusRequestEntityTooLarge},
		{"too small", testServer(), []part{{name: "file", filename: "a.png", contentType: "image/png", body: pngBytes(t, 20, 20)}}, http.StatusUnprocessableEntity},
		{"processing", failing, []part{{name: "file", filename: "a.png", contentType: "image/png", body: pngBytes(t, 120, 90)}}, http.StatusInternalServerError},
	}
	for _, c := range cases {
		body, ct := multipartBody(t, c.parts...)
		rec := do(testRouter(c.srv), http.MethodPost, "/api/headshot", body, ct)
		if rec.Code != c.status {
			t.Fatalf("%s: expected %d, got %d (%s)", c.name, c.status, rec.Code, rec.Body.String())
		}
	}
}

func TestProcessingErrorIsGeneric(t *testing.T) {
	status, msg := uploadStatus(errors.New("decoder exploded"))
	if status != http.StatusInternalServerError || msg != "processing failed" {
		t.Fatalf("unexpected mapping %d %q", status, msg)
	}
}

func TestCardRendersPDF(t *testing.T) {
	draft := `{"full_name":"Ada Lovelace","program":"MS — Health Informatics","bio":"Short bio.","contact_phone":"7035550100"}`
	body, ct := multipartBody(t,
		part{name: "draft", body: []byte(draft)},
		part{name: "file", filename: "me.png", contentType: "image/png", body: pngBytes(t, 120, 90)},
	)
	rec := do(testRouter(testServer()), http.MethodPost, "/api/card", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("unexpected content type %s", got)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("body is not a PDF")
	}
}

func TestCardRejectsBadInput(t *testing.T) {
	r := testRouter(testServer())

	body, ct := multipartBody(t, part{name: "other", body: []byte("x")})
	if rec := do(r, http.MethodPost, "/api/card", body, ct); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing draft: expected 400, got %d", rec.Code)
	}

	body, ct = multipartBody(t, part{name: "draft", body: []byte(`{"unknown":1}`)})
	if rec := do(r, http.MethodPost, "/api/card", body, ct); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad draft: expected 400, got %d", rec.Code)
	}

	body, ct = multipartBody(t,
		part{name: "draft", body: []byte(`{"full_name":"A"}`)},
		part{name: "file", filename: "a.txt", contentType: "text/plain", body: []byte("hello")},
	)
	if rec := do(r, http.MethodPost, "/api/card", body, ct); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad photo: expected 400, got %d", rec.Code)
	}
}

func TestQR(t *testing.T) {
	r := testRouter(testServer())
	rec := do(r, http.MethodGet, "/api/qr?text=mailto:a@gmu.edu&size=128", nil, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected qr response %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	cfg, err := png.DecodeConfig(rec.Body)
	if err != nil || cfg.Width != 128 {
		t.Fatalf("expected 128px png, got %+v %v", cfg, err)
	}
	if rec := do(r, http.MethodGet, "/api/qr", nil, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing text: expected 400, got %d", rec.Code)
	}
}

func TestHeadshotJSONReturnsDataURL(t *testing.T) {
	body, ct := multipartBody(t, part{name: "file", filename: "me.png", contentType: "image/png", body: pngBytes(t, 120, 90)})
	rec := do(testRouter(testServer()), http.MethodPost, "/api/headshot?format=json", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Format string `json:"format"`
		URL    string `json:"url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Width != 50 || resp.Height != 60 || resp.Format != "image/jpeg" {
		t.Fatalf("unexpected raster %+v", resp)
	}
	if !strings.HasPrefix(resp.URL, "data:image/jpeg;base64,") {
		t.Fatalf("unexpected url prefix %.40s", resp.URL)
	}
}

func TestHeadshotGivesUpWhenRequestEnds(t *testing.T) {
	release := make(chan struct{})
	drawn := make(chan struct{})
	srv := testServer()
	srv.Photos.NewSurface = func(w, h int) (imagecrop.Surface, error) {
		defer close(drawn)
		<-release
		return imagecrop.NewImagingSurface(w, h)
	}

	body, ct := multipartBody(t, part{name: "file", filename: "me.png", contentType: "image/png", body: pngBytes(t, 120, 90)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/headshot", body).WithContext(ctx)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	testRouter(srv).ServeHTTP(rec, req)
	close(release)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	select {
	case <-drawn:
	case <-time.After(5 * time.Second):
		t.Fatalf("background processing never finished")
	}
}
