// Package card turns a draft and a card template into a PDF.
package card

import (
	"fmt"

	"github.com/ByLCY/capstone/dsl"
	"github.com/ByLCY/capstone/form"
	"github.com/ByLCY/capstone/layout"
	"github.com/ByLCY/capstone/logging"
	"github.com/ByLCY/capstone/renderer"
)

// Options controls one render.
type Options struct {
	Debug layout.DebugOptions
}

// Data binds a draft to the names the template uses.
func Data(d form.Draft) layout.Data {
	data := layout.Data{Fields: d.Fields(), Images: map[string][]byte{}}
	if len(d.Headshot) > 0 {
		data.Images["headshot"] = d.Headshot
	}
	return data
}

// Layout lays the draft out on the template. r must also implement
// layout.Typesetter; when it implements textfit.MetricsProvider it measures
// the fitted and clamped boxes too. Use one renderer per call when calls run
// concurrently.
func Layout(doc *dsl.Document, d form.Draft, r renderer.Renderer, opts Options) (*layout.Result, error) {
	if r == nil {
		return nil, fmt.Errorf("renderer 不能为空")
	}
	ts, ok := r.(layout.Typesetter)
	if !ok {
		return nil, fmt.Errorf("renderer 未实现排版接口")
	}
	data := Data(d)
	res, err := layout.Build(doc, data, layout.BuildOptions{Typesetter: ts, Debug: opts.Debug})
	if err != nil {
		return nil, fmt.Errorf("布局计算失败: %w", err)
	}
	if missing := Unbound(res, data); len(missing) > 0 {
		logging.Logger().Warn("card: template references unknown fields", "fields", missing)
	}
	return res, nil
}

// Unbound lists the fields the template references that the data does not
// provide. These always render their default text.
func Unbound(res *layout.Result, data layout.Data) []string {
	if res == nil {
		return nil
	}
	var out []string
	for _, name := range res.Bindings {
		if _, ok := data.Fields[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// Render lays out and draws the card, returning the layout alongside the PDF.
func Render(doc *dsl.Document, d form.Draft, r renderer.Renderer, opts Options) (*layout.Result, []byte, error) {
	res, err := Layout(doc, d, r, opts)
	if err != nil {
		return nil, nil, err
	}
	pdf, err := r.Render(res)
	if err != nil {
		return res, nil, fmt.Errorf("渲染 PDF 失败: %w", err)
	}
	return res, pdf, nil
}
