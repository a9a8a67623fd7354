package layout

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/ByLCY/capstone/binding"
	"github.com/ByLCY/capstone/dsl"
	"github.com/ByLCY/capstone/logging"
	"github.com/ByLCY/capstone/textfit"
)

const (
	defaultFontSizePt   = 12.0
	defaultLineFactor   = 1.2 // CSS line-height: normal
	defaultStrokeWidth  = PxToMm
	defaultQRSize       = 0.5 * 25.4
	placeholderFontSize = 10.0 // pt
)

// inheritable 列出可以由 row/cell 传递给子文本的属性。
var inheritable = []string{"font", "size", "line-height", "color", "align"}

// Build 根据模板 AST 与绑定数据生成单页卡片的布局结果。
// 标记为 fit 或 clamp 的文本框会通过 textfit 截断，保证渲染时不溢出。
func Build(doc *dsl.Document, data Data, opts BuildOptions) (*Result, error) {
	if doc == nil {
		return nil, fmt.Errorf("文档为空")
	}
	if opts.Typesetter == nil {
		return nil, fmt.Errorf("layout: 缺少排版后端 Typesetter")
	}
	if data.Fields == nil {
		data.Fields = map[string]any{}
	}

	res, err := collectResources(doc)
	if err != nil {
		return nil, err
	}
	metrics := opts.Metrics
	if metrics == nil {
		if p, ok := opts.Typesetter.(textfit.MetricsProvider); ok {
			metrics = p
		}
	}
	if err := registerFonts(res.Fonts, opts.Typesetter, metrics); err != nil {
		return nil, err
	}

	pageSection := firstPage(doc)
	if pageSection == nil {
		return nil, fmt.Errorf("文档中缺少 page 段落")
	}

	b := &builder{
		res:        res,
		data:       data,
		typesetter: opts.Typesetter,
		fitter:     textfit.NewFitter(metrics),
		hasMetrics: metrics != nil,
		debug:      opts.Debug,
		fields:     map[string]FieldReport{},
		bound:      map[string]bool{},
	}
	page, err := b.buildPage(pageSection)
	if err != nil {
		return nil, err
	}

	meta := collectMeta(doc, b.interpolate)
	bindings := make([]string, 0, len(b.bound))
	for name := range b.bound {
		bindings = append(bindings, name)
	}
	slices.Sort(bindings)

	return &Result{
		Pages:     []Page{page},
		Resources: res,
		Meta:      meta,
		Fields:    b.fields,
		Bindings:  bindings,
	}, nil
}

// interpolate 替换模板文本中的 ${...} 并记录引用到的字段。
func (b *builder) interpolate(text string) string {
	for _, name := range binding.Fields(text) {
		b.bound[name] = true
	}
	return binding.Interpolate(text, b.data.Fields)
}

func registerFonts(fonts map[string]FontResource, backends ...any) error {
	seen := map[FontRegistry]bool{}
	for _, backend := range backends {
		reg, ok := backend.(FontRegistry)
		if !ok || seen[reg] {
			continue
		}
		seen[reg] = true
		if err := reg.RegisterFonts(fonts); err != nil {
			return fmt.Errorf("注册模板字体失败: %w", err)
		}
	}
	return nil
}

type builder struct {
	res        ResourceSet
	data       Data
	typesetter Typesetter
	fitter     *textfit.Fitter
	hasMetrics bool
	debug      DebugOptions
	fields     map[string]FieldReport
	bound      map[string]bool
	page       *Page
	textSeq    int
}

// area 是一个内容盒（mm）以及可继承的文本属性。
type area struct {
	x, y, width, height float64
	text                map[string]string
}

// item 是 cell 内纵向堆叠的一个元素；place 在确定坐标后把元素写入页面。
type item struct {
	width  float64
	height float64
	place  func(x, y float64)
}

func (b *builder) buildPage(section *dsl.PageSection) (Page, error) {
	width, height, err := resolvePageSize(section.Spec)
	if err != nil {
		return Page{}, err
	}
	if section.Block == nil {
		return Page{}, fmt.Errorf("page 段落缺少内容")
	}
	margin := resolveMargin(section.Spec.Params)
	gap := resolveParam(section.Spec.Params, "gap")

	b.page = &Page{Width: width, Height: height, Margin: margin}
	content := area{
		x:      margin.Left,
		y:      margin.Top,
		width:  width - margin.Left - margin.Right,
		height: height - margin.Top - margin.Bottom,
		text:   map[string]string{},
	}

	var rows []*dsl.Command
	var heights []string
	for _, st := range section.Block.Statements {
		if st.Command == nil || st.Command.Name != "row" {
			continue
		}
		_, attrs := parseArgs(st.Command.Args, false)
		h := attrs["height"]
		if h == "" {
			h = "1fr"
		}
		rows = append(rows, st.Command)
		heights = append(heights, h)
	}
	if len(rows) == 0 {
		return Page{}, fmt.Errorf("page 段落缺少 row")
	}

	tracks, err := resolveTracks(heights, content.height, gap)
	if err != nil {
		return Page{}, fmt.Errorf("row 高度: %w", err)
	}
	y := content.y
	for i, row := range rows {
		rowArea := area{x: content.x, y: y, width: content.width, height: tracks[i], text: content.text}
		if err := b.layoutRow(row, rowArea); err != nil {
			return Page{}, err
		}
		y += tracks[i] + gap
	}
	return *b.page, nil
}

func (b *builder) layoutRow(cmd *dsl.Command, outer area) error {
	_, attrs := parseArgs(cmd.Args, false)
	box := parseBoxStyle(attrs, b.res)
	box.draw(b.page, outer)
	inner := box.inset(outer)
	inner.text = inherit(outer.text, attrs)

	if cmd.Block == nil {
		return nil
	}

	var cells []*dsl.Command
	for _, st := range cmd.Block.Statements {
		if st.Command != nil && st.Command.Name == "cell" {
			cells = append(cells, st.Command)
		}
	}
	if len(cells) == 0 {
		// row 内直接书写元素时视为单个 cell
		return b.layoutCell(&dsl.Command{Name: "cell", Block: cmd.Block}, inner, attrs)
	}

	specs := strings.Fields(attrs["columns"])
	if len(specs) == 0 {
		for range cells {
			specs = append(specs, "1fr")
		}
	}
	if len(cells) > len(specs) {
		return fmt.Errorf("row 声明了 %d 列，但包含 %d 个 cell", len(specs), len(cells))
	}
	gutter := parseLength(attrs["gutter"])
	widths, err := resolveTracks(specs, inner.width, gutter)
	if err != nil {
		return fmt.Errorf("row columns: %w", err)
	}
	x := inner.x
	for i, cell := range cells {
		cellArea := area{x: x, y: inner.y, width: widths[i], height: inner.height, text: inner.text}
		if err := b.layoutCell(cell, cellArea, attrs); err != nil {
			return err
		}
		x += widths[i] + gutter
	}
	return nil
}

// layoutCell 纵向堆叠 cell 内的元素。fit 文本平分剩余高度，其余元素按自身高度排布。
func (b *builder) layoutCell(cmd *dsl.Command, outer area, rowAttrs map[string]string) error {
	_, attrs := parseArgs(cmd.Args, false)
	box := parseBoxStyle(attrs, b.res)
	box.draw(b.page, outer)
	inner := box.inset(outer)
	inner.text = inherit(outer.text, attrs)
	if cmd.Block == nil {
		return nil
	}

	valign := strings.ToLower(firstNonEmpty(attrs["valign"], rowAttrs["valign"]))
	gap := parseLength(attrs["gap"])

	var stmts []*dsl.Command
	for _, st := range cmd.Block.Statements {
		if st.Command != nil {
			stmts = append(stmts, st.Command)
		}
	}

	// 第一遍：非 fit 元素
	items := make([]*item, len(stmts))
	var fitIdx []int
	used := 0.0
	for i, c := range stmts {
		if c.Name == "text" && hasFlag(c.Args, "fit") {
			fitIdx = append(fitIdx, i)
			continue
		}
		it, err := b.layoutElement(c, inner, 0)
		if err != nil {
			return err
		}
		items[i] = it
		if it != nil {
			used += it.height
		}
	}
	count := 0
	for i := range items {
		if items[i] != nil || contains(fitIdx, i) {
			count++
		}
	}
	if count > 1 {
		used += gap * float64(count-1)
	}

	// 第二遍：fit 元素平分剩余高度
	if len(fitIdx) > 0 {
		share := math.Max(inner.height-used, 0) / float64(len(fitIdx))
		for _, i := range fitIdx {
			it, err := b.layoutElement(stmts[i], inner, share)
			if err != nil {
				return err
			}
			items[i] = it
			used += it.height
		}
	}

	y := inner.y
	switch valign {
	case "center", "middle":
		y += math.Max(inner.height-used, 0) / 2
	case "bottom", "end":
		y += math.Max(inner.height-used, 0)
	}
	align := inner.text["align"]
	first := true
	for _, it := range items {
		if it == nil {
			continue
		}
		if !first {
			y += gap
		}
		first = false
		x := inner.x + alignOffset(inner.width, it.width, align)
		it.place(x, y)
		y += it.height
	}
	return nil
}

// layoutElement 处理 text / photo / qr / spacer；fitHeight 仅对 fit 文本有效。
func (b *builder) layoutElement(cmd *dsl.Command, in area, fitHeight float64) (*item, error) {
	switch cmd.Name {
	case "text":
		return b.layoutText(cmd, in, fitHeight)
	case "photo":
		return b.layoutPhoto(cmd, in)
	case "qr":
		return b.layoutQR(cmd, in)
	case "spacer":
		_, attrs := parseArgs(cmd.Args, false)
		h := parseLength(attrs["height"])
		return &item{width: 0, height: h, place: func(float64, float64) {}}, nil
	default:
		logging.Logger().Debug("layout: 忽略未知命令", "command", cmd.Name, "line", cmd.Pos.Line)
		return nil, nil
	}
}

func (b *builder) layoutText(cmd *dsl.Command, in area, fitHeight float64) (*item, error) {
	if cmd.Block == nil {
		return nil, fmt.Errorf("text 语句缺少文本块（第 %d 行）", cmd.Pos.Line)
	}
	styleName, inline := parseArgs(cmd.Args, true)
	attrs := map[string]string{}
	for k, v := range in.text {
		attrs[k] = v
	}
	for k, v := range mergeStyleAttributes(styleName, inline, b.res.Styles) {
		attrs[k] = v
	}

	content := b.interpolate(extractText(cmd.Block))
	if v := attrs["max-words"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("max-words 取值 %q 无效", v)
		}
		content = textfit.CapWords(content, n)
	}

	tb, err := b.composeTextBox(styleName, attrs, content, in.width)
	if err != nil {
		return nil, err
	}

	fit := attrs["fit"] == "true"
	clamp := 0
	if v := attrs["clamp"]; v != "" {
		if clamp, err = strconv.Atoi(v); err != nil || clamp <= 0 {
			return nil, fmt.Errorf("clamp 取值 %q 无效", v)
		}
	}
	if fit || clamp > 0 {
		limit := math.Inf(1)
		if fit {
			limit = fitHeight
		}
		field := firstNonEmpty(attrs["field"], styleName)
		if field == "" {
			b.textSeq++
			field = fmt.Sprintf("text#%d", b.textSeq)
		}
		fitted, err := b.fitText(field, content, tb, limit, clamp)
		if err != nil {
			return nil, err
		}
		if fitted != content {
			if tb, err = b.composeTextBox(styleName, attrs, fitted, in.width); err != nil {
				return nil, err
			}
		}
	}
	tb.Field = attrs["field"]

	height := tb.Height
	if fit {
		height = math.Max(height, fitHeight)
	}
	return &item{
		width:  in.width,
		height: height,
		place: func(x, y float64) {
			tb.X = x
			tb.Y = y
			b.page.Texts = append(b.page.Texts, tb)
		},
	}, nil
}

// fitText 以 px 构造 BoxMetrics 并调用 textfit；limit 为 mm，可为 +Inf（仅 clamp）。
// 内容区为空的盒子放不下任何文字，直接返回空串。
func (b *builder) fitText(field, content string, tb TextBox, limit float64, clamp int) (string, error) {
	if !b.hasMetrics {
		return "", fmt.Errorf("字段 %s 需要截断，但未配置测量后端", field)
	}
	font, err := resolveFontResource(tb.Font, b.res)
	if err != nil {
		return "", err
	}
	box := textfit.BoxMetrics{
		ContentWidth:  tb.Width * MmToPx,
		ContentHeight: limit * MmToPx,
		FontFamily:    font.Name,
		FontSize:      tb.FontSize * MmToPx,
		LineHeight:    tb.LineHeight * MmToPx,
		FontWeight:    font.Weight,
		FontStyle:     font.Style,
		TextAlign:     firstNonEmpty(tb.Align, "left"),
	}
	if clamp > 0 && box.ContentHeight > float64(clamp)*box.LineHeight {
		box = box.WithLines(clamp)
	}
	fitted := ""
	if box.Measurable() {
		if fitted, err = b.fitter.Fit(textfit.Request{Text: content, Box: box}); err != nil {
			return "", fmt.Errorf("字段 %s 测量失败: %w", field, err)
		}
	}
	report := FieldReport{
		Box:       box,
		Source:    content,
		Fitted:    fitted,
		Words:     textfit.CountWords(content),
		Kept:      textfit.CountWords(fitted),
		Truncated: fitted != content,
	}
	b.fields[field] = report
	if report.Truncated {
		logging.Logger().Info("layout: 文本已截断", "field", field, "words", report.Words, "kept", report.Kept)
	}
	return fitted, nil
}

func (b *builder) layoutPhoto(cmd *dsl.Command, in area) (*item, error) {
	_, attrs := parseArgs(cmd.Args, true)
	name := firstNonEmpty(attrs["field"], "headshot")
	w := parseDimension(attrs["width"], in.width)
	if w <= 0 {
		w = in.width
	}
	h := parseDimension(attrs["height"], in.height)
	if h <= 0 {
		h = in.height
	}
	frame := parseBoxStyle(attrs, b.res)
	placeholder := b.interpolate(extractText(cmd.Block))
	if v := attrs["placeholder"]; v != "" {
		placeholder = v
	}
	data := b.data.Images[name]

	return &item{
		width:  w,
		height: h,
		place: func(x, y float64) {
			rect := area{x: x, y: y, width: w, height: h}
			if len(data) > 0 {
				b.page.Images = append(b.page.Images, ImageBox{Kind: "photo", Data: data, X: x, Y: y, Width: w, Height: h})
				frame.fill = nil
				frame.draw(b.page, rect)
				return
			}
			frame.draw(b.page, rect)
			if placeholder == "" {
				return
			}
			tb, err := b.placeholderText(placeholder, w)
			if err != nil {
				logging.Logger().Warn("layout: 占位文本排版失败", "err", err)
				return
			}
			tb.X = x
			tb.Y = y + math.Max(h-tb.Height, 0)/2
			b.page.Texts = append(b.page.Texts, tb)
		},
	}, nil
}

func (b *builder) placeholderText(content string, width float64) (TextBox, error) {
	attrs := map[string]string{
		"size":  strconv.FormatFloat(placeholderFontSize, 'f', -1, 64) + "pt",
		"color": "#737373",
		"align": "center",
	}
	return b.composeTextBox("", attrs, content, width)
}

func (b *builder) layoutQR(cmd *dsl.Command, in area) (*item, error) {
	_, attrs := parseArgs(cmd.Args, false)
	if when := attrs["when"]; when != "" {
		b.bound[when] = true
		if v, ok := b.data.Fields[when]; !ok || strings.TrimSpace(fmt.Sprint(v)) == "" {
			return nil, nil
		}
	}
	content := strings.TrimSpace(b.interpolate(extractText(cmd.Block)))
	if content == "" {
		return nil, nil
	}
	size := parseLength(attrs["size"])
	if size <= 0 {
		size = defaultQRSize
	}
	size = math.Min(size, math.Min(in.width, in.height))
	png, err := EncodeQR(content, size)
	if err != nil {
		return nil, err
	}
	return &item{
		width:  size,
		height: size,
		place: func(x, y float64) {
			b.page.Images = append(b.page.Images, ImageBox{Kind: "qr", Data: png, X: x, Y: y, Width: size, Height: size})
		},
	}, nil
}

// boxStyle 是 row/cell/photo 共用的边框、填充与内边距（border-box 语义）。
type boxStyle struct {
	fill        *Color
	stroke      *Color
	strokeWidth float64
	pad         Margin
}

func parseBoxStyle(attrs map[string]string, res ResourceSet) boxStyle {
	var s boxStyle
	if v := attrs["fill"]; v != "" {
		c := resolveColor(v, res)
		s.fill = &c
	}
	if v := attrs["border"]; v != "" {
		c := resolveColor(v, res)
		s.stroke = &c
		s.strokeWidth = defaultStrokeWidth
		if w := parseLength(attrs["border-width"]); w > 0 {
			s.strokeWidth = w
		}
	}
	p := parseLength(attrs["pad"])
	s.pad = Margin{Top: p, Right: p, Bottom: p, Left: p}
	for key, dst := range map[string]*float64{
		"pad-top": &s.pad.Top, "pad-right": &s.pad.Right, "pad-bottom": &s.pad.Bottom, "pad-left": &s.pad.Left,
	} {
		if v := attrs[key]; v != "" {
			*dst = parseLength(v)
		}
	}
	return s
}

func (s boxStyle) draw(page *Page, a area) {
	if s.fill == nil && s.stroke == nil {
		return
	}
	rc := Rect{X: a.x, Y: a.y, Width: a.width, Height: a.height, FillColor: s.fill}
	if s.stroke != nil {
		// 描边居中于路径，内缩半个线宽使其落在盒内
		half := s.strokeWidth / 2
		rc = Rect{
			X: a.x + half, Y: a.y + half,
			Width: a.width - s.strokeWidth, Height: a.height - s.strokeWidth,
			StrokeColor: s.stroke, StrokeWidth: s.strokeWidth, FillColor: s.fill,
		}
	}
	page.Rects = append(page.Rects, rc)
}

func (s boxStyle) inset(a area) area {
	bw := 0.0
	if s.stroke != nil {
		bw = s.strokeWidth
	}
	out := a
	out.x += s.pad.Left + bw
	out.y += s.pad.Top + bw
	out.width = math.Max(a.width-s.pad.Left-s.pad.Right-2*bw, 0)
	out.height = math.Max(a.height-s.pad.Top-s.pad.Bottom-2*bw, 0)
	return out
}

func inherit(parent, attrs map[string]string) map[string]string {
	out := make(map[string]string, len(parent))
	for k, v := range parent {
		out[k] = v
	}
	for _, k := range inheritable {
		if v := attrs[k]; v != "" {
			out[k] = v
		}
	}
	return out
}

// resolveTracks 把 "2.6in 1fr 20%" 之类的轨道描述换算为 mm，fr 平分剩余空间。
func resolveTracks(specs []string, total, gap float64) ([]float64, error) {
	out := make([]float64, len(specs))
	fixed := 0.0
	fr := 0.0
	for i, spec := range specs {
		l := ParseRawLengthStr(spec)
		switch {
		case l.IsFraction():
			if l.Value <= 0 {
				return nil, fmt.Errorf("轨道 %q 无效", spec)
			}
			fr += l.Value
		case strings.HasSuffix(spec, "%"):
			out[i] = parseDimension(spec, total)
			fixed += out[i]
		default:
			if _, err := strconv.ParseFloat(trimUnit(spec), 64); err != nil {
				return nil, fmt.Errorf("轨道 %q 无效", spec)
			}
			out[i] = parseLength(spec)
			fixed += out[i]
		}
	}
	if len(specs) > 1 {
		fixed += gap * float64(len(specs)-1)
	}
	if fr > 0 {
		free := math.Max(total-fixed, 0)
		for i, spec := range specs {
			if l := ParseRawLengthStr(spec); l.IsFraction() {
				out[i] = free * l.Value / fr
			}
		}
	}
	return out, nil
}

func collectResources(doc *dsl.Document) (ResourceSet, error) {
	res := ResourceSet{
		Fonts:  map[string]FontResource{},
		Colors: map[string]Color{},
		Styles: map[string]Style{},
	}
	rawStyles := map[string]Style{}

	for _, section := range doc.Sections {
		if section.Resources == nil || section.Resources.Block == nil {
			continue
		}
		for _, stmt := range section.Resources.Block.Statements {
			if stmt.Command == nil {
				continue
			}
			switch stmt.Command.Name {
			case "font":
				font := parseFontResource(stmt.Command)
				if font.Name != "" {
					res.Fonts[font.Name] = font
				}
			case "color":
				name, value := parseColorResource(stmt.Command)
				if name == "" || value == "" {
					continue
				}
				c, err := parseColor(value)
				if err != nil {
					return res, err
				}
				res.Colors[name] = c
			case "style":
				style := parseStyleResource(stmt.Command)
				if style.Name != "" {
					rawStyles[style.Name] = style
				}
			}
		}
	}

	if _, ok := res.Fonts["Body"]; !ok {
		res.Fonts["Body"] = FontResource{
			Name:   "Body",
			Src:    "embed:regular",
			Family: "Body",
			Weight: 400,
			Style:  "normal",
		}
	}

	resolvedStyles, err := resolveStyles(rawStyles)
	if err != nil {
		return res, err
	}
	res.Styles = resolvedStyles

	return res, nil
}

func collectMeta(doc *dsl.Document, interpolate func(string) string) DocumentMeta {
	meta := DocumentMeta{
		Creator: "Capstone",
	}
	for _, section := range doc.Sections {
		if section.Meta == nil || section.Meta.Block == nil {
			continue
		}
		for _, stmt := range section.Meta.Block.Statements {
			if stmt.Assignment == nil {
				continue
			}
			key := strings.ToLower(stmt.Assignment.Key)
			value := interpolate(valueToString(stmt.Assignment.Value))
			switch key {
			case "title":
				meta.Title = value
			case "author":
				meta.Author = value
			case "subject":
				meta.Subject = value
			case "creator":
				meta.Creator = value
			case "keywords":
				meta.Keywords = valueToStringSlice(stmt.Assignment.Value)
			}
		}
	}
	return meta
}

func parseFontResource(cmd *dsl.Command) FontResource {
	if len(cmd.Args) == 0 {
		return FontResource{}
	}
	font := FontResource{
		Name:   cmd.Args[0].Value,
		Family: cmd.Args[0].Value,
		Weight: 400,
		Style:  "normal",
	}

	if cmd.Block == nil {
		return font
	}
	for _, stmt := range cmd.Block.Statements {
		if stmt.Assignment == nil {
			continue
		}
		val := valueToString(stmt.Assignment.Value)
		switch stmt.Assignment.Key {
		case "src":
			font.Src = val
		case "style":
			font.Style = strings.ToLower(val)
		case "weight":
			if w, err := strconv.Atoi(val); err == nil && w > 0 {
				font.Weight = w
			}
		case "family":
			font.Family = val
		case "fallback":
			font.Fallback = val
		}
	}
	return font
}

func parseStyleResource(cmd *dsl.Command) Style {
	if len(cmd.Args) == 0 {
		return Style{}
	}
	style := Style{
		Name:  cmd.Args[0].Value,
		Props: map[string]string{},
	}
	if len(cmd.Args) >= 3 && strings.EqualFold(cmd.Args[1].Value, "extends") {
		style.Extends = cmd.Args[2].Value
	}

	if cmd.Block == nil {
		return style
	}

	for _, stmt := range cmd.Block.Statements {
		if stmt.Assignment == nil {
			continue
		}
		val := valueToString(stmt.Assignment.Value)
		if val == "" {
			continue
		}
		style.Props[stmt.Assignment.Key] = val
	}
	return style
}

func resolveStyles(styles map[string]Style) (map[string]Style, error) {
	resolved := map[string]Style{}
	visiting := map[string]bool{}

	var dfs func(name string) (Style, error)
	dfs = func(name string) (Style, error) {
		if style, ok := resolved[name]; ok {
			return style, nil
		}
		style, ok := styles[name]
		if !ok {
			return Style{}, fmt.Errorf("style %s 未定义", name)
		}
		if visiting[name] {
			return Style{}, fmt.Errorf("style 继承存在循环：%s", name)
		}
		visiting[name] = true

		props := map[string]string{}
		if style.Extends != "" {
			parent, err := dfs(style.Extends)
			if err != nil {
				return Style{}, err
			}
			for k, v := range parent.Props {
				props[k] = v
			}
		}
		for k, v := range style.Props {
			props[k] = v
		}
		style.Props = props
		resolved[name] = style
		delete(visiting, name)
		return style, nil
	}

	for name := range styles {
		if _, err := dfs(name); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

func parseColorResource(cmd *dsl.Command) (string, string) {
	if len(cmd.Args) == 0 {
		return "", ""
	}
	name := cmd.Args[0].Value
	value := ""
	if len(cmd.Args) > 1 {
		value = cmd.Args[len(cmd.Args)-1].Value
	}
	return name, value
}

func resolvePageSize(spec dsl.PageSpec) (float64, float64, error) {
	base, ok := pagePresets[strings.ToUpper(spec.Size)]
	if !ok {
		return 0, 0, fmt.Errorf("暂不支持的纸张尺寸：%s", spec.Size)
	}

	width := base[0]
	height := base[1]
	for _, token := range spec.Params {
		switch token.Value {
		case "landscape":
			width, height = height, width
		}
	}
	return width, height, nil
}

var pagePresets = map[string][2]float64{
	"LETTER": {215.9, 279.4},
	"LEGAL":  {215.9, 355.6},
	"A4":     {210, 297},
	"A5":     {148, 210},
}

func resolveMargin(params []*dsl.Lexeme) Margin {
	margin := Margin{}
	for i := 0; i < len(params); i++ {
		if params[i].Value != "margin" {
			continue
		}
		// 最多读取 4 个数值，遇到非数值（如 gap）停止
		vals := []float64{}
		for j := i + 1; j < len(params) && len(vals) < 4; j++ {
			if _, err := strconv.ParseFloat(trimUnit(params[j].Value), 64); err != nil {
				break
			}
			vals = append(vals, parseLength(params[j].Value))
		}
		// CSS 语义：1 值四边相同；2 值上下/左右；3 值上/左右/下；4 值上右下左
		switch len(vals) {
		case 1:
			v := vals[0]
			margin = Margin{Top: v, Right: v, Bottom: v, Left: v}
		case 2:
			margin = Margin{Top: vals[0], Right: vals[1], Bottom: vals[0], Left: vals[1]}
		case 3:
			margin = Margin{Top: vals[0], Right: vals[1], Bottom: vals[2], Left: vals[1]}
		case 4:
			margin = Margin{Top: vals[0], Right: vals[1], Bottom: vals[2], Left: vals[3]}
		}
	}
	return margin
}

func resolveParam(params []*dsl.Lexeme, key string) float64 {
	for i := 0; i+1 < len(params); i++ {
		if params[i].Value == key {
			return parseLength(params[i+1].Value)
		}
	}
	return 0
}

func firstPage(doc *dsl.Document) *dsl.PageSection {
	for _, section := range doc.Sections {
		if section.Page != nil {
			return section.Page
		}
	}
	return nil
}

// flagArgs 是不带取值的开关参数。
var flagArgs = map[string]bool{"fit": true}

// attrKeys 是元素可接受的属性名，用于区分首个参数是否为 style 名称。
var attrKeys = map[string]bool{
	"field": true, "font": true, "size": true, "line-height": true, "color": true, "align": true,
	"valign": true, "clamp": true, "fit": true, "max-words": true, "width": true, "height": true,
	"border": true, "border-width": true, "fill": true, "pad": true, "pad-top": true, "pad-right": true,
	"pad-bottom": true, "pad-left": true, "gap": true, "columns": true, "gutter": true,
	"placeholder": true, "when": true,
}

func parseArgs(args []*dsl.Lexeme, allowStyle bool) (string, map[string]string) {
	result := map[string]string{}
	if len(args) == 0 {
		return "", result
	}

	cursor := 0
	var style string
	if allowStyle && args[0].Type == "Ident" && !attrKeys[args[0].Value] {
		style = args[0].Value
		cursor = 1
	}

	for cursor < len(args) {
		key := args[cursor].Value
		if flagArgs[key] {
			result[key] = "true"
			cursor++
			continue
		}
		if cursor+1 >= len(args) {
			break
		}
		result[key] = args[cursor+1].Value
		cursor += 2
	}

	return style, result
}

func hasFlag(args []*dsl.Lexeme, flag string) bool {
	_, attrs := parseArgs(args, true)
	return attrs[flag] == "true"
}

func mergeStyleAttributes(style string, inline map[string]string, styles map[string]Style) map[string]string {
	out := make(map[string]string)
	if style != "" {
		if s, ok := styles[style]; ok {
			for k, v := range s.Props {
				out[k] = v
			}
		}
	}
	for k, v := range inline {
		out[k] = v
	}
	return out
}

func extractText(block *dsl.Block) string {
	if block == nil {
		return ""
	}
	var builder strings.Builder
	for _, stmt := range block.Statements {
		if stmt.Text != nil {
			builder.WriteString(string(stmt.Text.Value))
		}
	}
	return builder.String()
}

// composeTextBox 解析字体、字号与行高并排版成行；坐标由调用方放置时填写。
func (b *builder) composeTextBox(style string, attrs map[string]string, content string, width float64) (TextBox, error) {
	fontName := attrs["font"]
	if fontName == "" {
		fontName = "Body"
	}
	fontRes, err := resolveFontResource(fontName, b.res)
	if err != nil {
		return TextBox{}, err
	}

	fontSize := parseLength(attrs["size"]) // mm
	if fontSize <= 0 {
		fontSize = defaultFontSizePt * PtToMm
	}
	lineHeight := fontSize * defaultLineFactor
	lhSpec, hasLH := ParseLineHeight(attrs["line-height"])
	if hasLH {
		lineHeight = lhSpec.Resolve(Length{Value: fontSize, Unit: UnitMM}, UnitMM)
	}

	lines, err := layoutLines(content, width, fontRes, fontSize, lineHeight, b.typesetter)
	if err != nil {
		return TextBox{}, err
	}

	tb := TextBox{
		Content:    content,
		Width:      width,
		LineHeight: lineHeight,
		Font:       fontRes.Name,
		FontSize:   fontSize,
		Color:      resolveColor(attrs["color"], b.res),
		Lines:      lines,
		Height:     float64(len(lines)) * lineHeight,
	}
	// 应用对齐属性（支持 start/end 别名），默认 left（省略时不写入 JSON）
	if v := strings.ToLower(strings.TrimSpace(attrs["align"])); v != "" {
		if v == "start" {
			v = "left"
		}
		if v == "end" {
			v = "right"
		}
		if v == "left" || v == "center" || v == "right" {
			tb.Align = v
		}
	}
	if b.debug.RawUnits {
		sizeRaw := RawLengthJSON{Value: defaultFontSizePt, Unit: "pt"}
		if sz := ParseRawLengthStr(attrs["size"]); sz.Unit != UnitNone && sz.Value > 0 {
			sizeRaw = RawLengthJSON{Value: sz.Value, Unit: UnitToString(sz.Unit)}
		}
		lhRaw := RawLineHeightJSON{Kind: "factor", Factor: defaultLineFactor}
		if hasLH {
			if lhSpec.Kind == LineHeightFactor {
				lhRaw = RawLineHeightJSON{Kind: "factor", Factor: lhSpec.Factor}
			} else {
				lhRaw = RawLineHeightJSON{Kind: "absolute", Value: lhSpec.Len.Value, Unit: UnitToString(lhSpec.Len.Unit)}
			}
		}
		tb.Debug = &TextBoxDebug{RawUnits: &RawUnits{FontSize: &sizeRaw, LineHeight: &lhRaw}}
	}
	return tb, nil
}

func resolveFontResource(name string, res ResourceSet) (FontResource, error) {
	if font, ok := res.Fonts[name]; ok {
		return font, nil
	}
	if font, ok := res.Fonts["Body"]; ok {
		return font, nil
	}
	return FontResource{}, fmt.Errorf("字体 %s 未定义，且没有可用的默认字体", name)
}

// layoutLines 调用排版后端；每行高度统一为行高（CSS 行盒）。空文本不占行。
func layoutLines(content string, width float64, font FontResource, fontSize, lineHeight float64, ts Typesetter) ([]TextLine, error) {
	if content == "" {
		return nil, nil
	}
	lines, err := ts.LayoutLines(content, width, font, fontSize, lineHeight)
	if err != nil {
		return nil, err
	}
	for i := range lines {
		lines[i].Height = lineHeight
		lines[i].GapBefore = 0
	}
	return lines, nil
}

func resolveColor(value string, res ResourceSet) Color {
	if value == "" {
		return Color{R: 17, G: 17, B: 17}
	}
	if c, ok := res.Colors[value]; ok {
		return c
	}
	if strings.HasPrefix(value, "#") {
		if c, err := parseColor(value); err == nil {
			return c
		}
	}
	return Color{R: 17, G: 17, B: 17}
}

func parseColor(value string) (Color, error) {
	value = strings.TrimPrefix(value, "#")
	switch len(value) {
	case 3:
		r := strings.Repeat(string(value[0]), 2)
		g := strings.Repeat(string(value[1]), 2)
		b := strings.Repeat(string(value[2]), 2)
		return Color{
			R: mustHex(r),
			G: mustHex(g),
			B: mustHex(b),
		}, nil
	case 6, 8:
		return Color{
			R: mustHex(value[0:2]),
			G: mustHex(value[2:4]),
			B: mustHex(value[4:6]),
		}, nil
	default:
		return Color{}, fmt.Errorf("颜色值 %s 无法解析", value)
	}
}

func mustHex(s string) int {
	v, _ := strconv.ParseInt(s, 16, 64)
	return int(v)
}

func parseLength(value string) float64 {
	if value == "" {
		return 0
	}
	l := ParseRawLengthStr(value)
	if l.Unit == UnitFR {
		return 0
	}
	return l.ToMM()
}

func parseDimension(value string, reference float64) float64 {
	if value == "" {
		return 0
	}
	if strings.HasSuffix(value, "%") {
		num := strings.TrimSuffix(value, "%")
		if f, err := strconv.ParseFloat(num, 64); err == nil {
			return reference * f / 100
		}
		return 0
	}
	return parseLength(value)
}

func trimUnit(value string) string {
	for _, suffix := range []string{"pt", "px", "mm", "cm", "in", "fr", "%"} {
		if strings.HasSuffix(value, suffix) {
			return strings.TrimSuffix(value, suffix)
		}
	}
	return value
}

func alignOffset(container, width float64, align string) float64 {
	if container <= width {
		return 0
	}
	switch strings.ToLower(align) {
	case "center", "middle":
		return (container - width) / 2
	case "right", "end":
		return container - width
	default:
		return 0
	}
}

func valueToString(val *dsl.Value) string {
	if val == nil {
		return ""
	}
	switch {
	case val.String != nil:
		return string(*val.String)
	case val.Number != nil:
		return *val.Number
	case val.Color != nil:
		return *val.Color
	case val.Ident != nil:
		return *val.Ident
	default:
		return ""
	}
}

func valueToStringSlice(val *dsl.Value) []string {
	if val == nil {
		return nil
	}
	if val.Array != nil {
		out := make([]string, 0, len(val.Array.Values))
		for _, item := range val.Array.Values {
			if s := valueToString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	if s := valueToString(val); s != "" {
		return []string{s}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func contains(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
