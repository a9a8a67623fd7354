// Package renderer defines the output backend for laid-out cards.
package renderer

import "github.com/ByLCY/capstone/layout"

// Renderer 将卡片布局结果绘制为最终文件（PDF 字节）。
// 同时实现 layout.Typesetter 的渲染器可直接用于布局计算。
type Renderer interface {
	Render(result *layout.Result) ([]byte, error)
}
