package layout

import "github.com/ByLCY/capstone/textfit"

// BuildOptions 配置布局阶段所需的依赖，例如排版后端与测量后端。
type BuildOptions struct {
	Typesetter Typesetter
	// Metrics 用于 fit / clamp 文本框的截断测量；为空时尝试使用 Typesetter。
	Metrics textfit.MetricsProvider
	Debug   DebugOptions
}

// DebugOptions 控制调试相关输出。
type DebugOptions struct {
	RawUnits bool // 在调试 JSON 中输出 debug.rawUnits 影子字段
}

// Typesetter 负责根据字体与宽度约束将文本拆成可绘制的行（单位：mm）。
type Typesetter interface {
	LayoutLines(content string, width float64, font FontResource, fontSize float64, lineHeight float64) ([]TextLine, error)
}

// FontRegistry 由需要预先知道模板字体的后端实现，Build 会在测量前调用。
type FontRegistry interface {
	RegisterFonts(fonts map[string]FontResource) error
}
