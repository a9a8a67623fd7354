package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ByLCY/capstone/api"
	"github.com/ByLCY/capstone/card"
	"github.com/ByLCY/capstone/form"
	"github.com/ByLCY/capstone/imagecrop"
	"github.com/ByLCY/capstone/layout"
	"github.com/ByLCY/capstone/logging"
	"github.com/ByLCY/capstone/renderer"
	canvasrenderer "github.com/ByLCY/capstone/renderer/canvas"
	"github.com/ByLCY/capstone/templates"
	"github.com/ByLCY/capstone/textfit"
)

const usage = `用法: capstone <command> [flags]

命令:
  render  根据草稿 JSON 与照片生成 PDF
  fit     将文本截断到给定的文本框
  serve   启动 HTTP 服务
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "render":
		err = renderCmd(args)
	case "fit":
		err = fitCmd(args)
	case "serve":
		err = serveCmd(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "未知命令 %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s 失败: %v", os.Args[1], err)
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logging.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func renderCmd(args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	draftPath := fs.String("draft", "", "草稿 JSON 路径")
	photo := fs.String("photo", "", "证件照路径（JPG/PNG，至少 1200x1440）")
	tmpl := fs.String("template", templates.DefaultName, "模板文件路径，默认使用内置模板")
	output := fs.String("out", "output/capstone.pdf", "PDF 输出路径")
	debug := fs.String("debug", "", "布局调试 JSON 输出路径")
	debugRawUnits := fs.Bool("debug-raw-units", false, "在调试 JSON 中输出 debug.rawUnits 影子字段")
	strict := fs.Bool("strict", false, "草稿未通过提交校验时拒绝生成")
	verbose := fs.Bool("v", false, "输出调试日志")
	fs.Parse(args)
	setupLogging(*verbose)

	var draft form.Draft
	if *draftPath != "" {
		d, err := form.Load(*draftPath)
		if err != nil {
			return err
		}
		draft = d
	}
	if *photo != "" {
		raster, err := processPhoto(*photo)
		if err != nil {
			return err
		}
		draft.Headshot = raster.Data
		draft.HeadshotName = filepath.Base(*photo)
	}
	draft.Normalize()
	if *strict {
		if err := draft.Validate(); err != nil {
			return err
		}
	}

	doc, err := templates.Load(*tmpl)
	if err != nil {
		return err
	}
	baseDir := ""
	if *tmpl != templates.DefaultName {
		baseDir = filepath.Dir(*tmpl)
	}
	var r renderer.Renderer = canvasrenderer.NewRenderer(baseDir)
	result, pdfBytes, err := card.Render(doc, draft, r, card.Options{Debug: layout.DebugOptions{RawUnits: *debugRawUnits}})
	if result != nil && *debug != "" {
		if derr := layout.WriteDebugJSON(result, *debug); derr != nil {
			return fmt.Errorf("输出调试 JSON 失败: %w", derr)
		}
	}
	if err != nil {
		return err
	}
	for name, report := range result.Fields {
		if report.Truncated {
			logging.Logger().Info("字段已截断", "field", name, "words", report.Words, "kept", report.Kept)
		}
	}

	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	if err := os.WriteFile(*output, pdfBytes, 0o644); err != nil {
		return fmt.Errorf("写入 PDF 文件失败: %w", err)
	}
	fmt.Printf("已生成 PDF：%s\n", *output)
	return nil
}

func processPhoto(path string) (*imagecrop.Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开照片 %s 失败: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("读取照片 %s 失败: %w", path, err)
	}
	return imagecrop.NewEngine().Process(imagecrop.Upload{
		Name: filepath.Base(path),
		Size: info.Size(),
		Body: f,
	})
}

func fitCmd(args []string) error {
	fs := flag.NewFlagSet("fit", flag.ExitOnError)
	text := fs.String("text", "", "待截断文本，为空时从 -file 读取")
	file := fs.String("file", "", "文本文件路径")
	width := fs.Float64("width", 0, "内容区宽度（px）")
	height := fs.Float64("height", 0, "内容区高度（px）")
	family := fs.String("font", "Go", "CSS font-family 列表")
	size := fs.Float64("size", 16, "字号（px）")
	lineHeight := fs.String("line-height", "1.35", "行高：倍数或绝对长度（如 20px）")
	weight := fs.Int("weight", 400, "字重")
	maxWords := fs.Int("max-words", 0, "先按词数截断（0 表示不限）")
	verbose := fs.Bool("v", false, "输出调试日志")
	fs.Parse(args)
	setupLogging(*verbose)

	content := *text
	if content == "" && *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			return fmt.Errorf("读取文本 %s 失败: %w", *file, err)
		}
		content = string(data)
	}
	lh, ok := layout.ParseLineHeight(*lineHeight)
	if !ok {
		return fmt.Errorf("行高 %q 无效", *lineHeight)
	}
	lineHeightPx := lh.Resolve(layout.Length{Value: *size, Unit: layout.UnitPX}, layout.UnitPX)
	if *maxWords > 0 {
		content = textfit.CapWords(content, *maxWords)
	}

	fitted, err := textfit.Fit(canvasrenderer.NewRenderer(""), textfit.Request{
		Text: content,
		Box: textfit.BoxMetrics{
			ContentWidth:  *width,
			ContentHeight: *height,
			FontFamily:    *family,
			FontSize:      *size,
			LineHeight:    lineHeightPx,
			FontWeight:    *weight,
		},
	})
	if err != nil {
		return err
	}
	fmt.Println(fitted)
	fmt.Fprintf(os.Stderr, "%d/%d words\n", textfit.CountWords(fitted), textfit.CountWords(content))
	return nil
}

func serveCmd(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "监听地址，默认 :$PORT 或 :8080")
	tmpl := fs.String("template", templates.DefaultName, "卡片模板路径")
	verbose := fs.Bool("v", false, "输出调试日志")
	fs.Parse(args)
	setupLogging(*verbose)

	if *addr == "" {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		*addr = ":" + port
	}
	srv := api.NewServer()
	srv.Template = *tmpl
	if *tmpl != templates.DefaultName {
		if _, err := templates.Load(*tmpl); err != nil {
			return err
		}
		srv.BaseDir = filepath.Dir(*tmpl)
	}

	r := api.NewRouter(srv)
	logging.Logger().Info("starting server", "addr", *addr)
	if err := r.Run(*addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
