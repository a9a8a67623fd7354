package canvasrenderer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tdewolff/canvas"

	"github.com/ByLCY/capstone/fonts"
	"github.com/ByLCY/capstone/layout"
)

// genericFamilies 是 CSS 通用字体族名，统一映射到内置 Go 字体。
var genericFamilies = map[string]bool{
	"sans-serif": true, "serif": true, "system-ui": true, "ui-sans-serif": true,
	"monospace": true, "arial": true, "helvetica": true, "go": true,
}

// RegisterFonts 记录模板声明的字体，供测量时按 BoxMetrics.FontFamily 查找。
func (r *Renderer) RegisterFonts(fonts map[string]layout.FontResource) error {
	r.fontMu.Lock()
	defer r.fontMu.Unlock()
	for name, font := range fonts {
		if name == "" {
			continue
		}
		if font.Src == "" {
			return fmt.Errorf("字体 %s 缺少 src", name)
		}
		r.registered[name] = font
	}
	return nil
}

// resolveFamily 依次尝试 CSS 字体列表中的名称：模板字体名、模板 family 名，
// 最后退回与字重/样式最接近的内置 Go 字体。
func (r *Renderer) resolveFamily(list string, weight int, style string) layout.FontResource {
	italic := style == "italic" || style == "oblique"
	r.fontMu.Lock()
	defer r.fontMu.Unlock()
	for _, raw := range strings.Split(list, ",") {
		name := strings.Trim(strings.TrimSpace(raw), `"'`)
		if name == "" {
			continue
		}
		if font, ok := r.registered[name]; ok {
			return font
		}
		if font, ok := closestRegistered(r.registered, name, weight, italic); ok {
			return font
		}
		if genericFamilies[strings.ToLower(name)] {
			break
		}
	}
	return builtinFont(weight, italic)
}

func closestRegistered(registered map[string]layout.FontResource, family string, weight int, italic bool) (layout.FontResource, bool) {
	var best layout.FontResource
	bestScore := -1
	for _, font := range registered {
		if !strings.EqualFold(font.Family, family) {
			continue
		}
		score := 1000 - abs(font.Weight-weight)
		if font.Italic() == italic {
			score += 1000
		}
		if score > bestScore {
			best, bestScore = font, score
		}
	}
	return best, bestScore >= 0
}

// builtinFont 按 CSS 字重选择内置字体：>=700 粗体，>=500 中等，其余常规。
func builtinFont(weight int, italic bool) layout.FontResource {
	variant := "regular"
	switch {
	case weight >= 700:
		variant = "bold"
	case weight >= 500:
		variant = "medium"
	}
	style := "normal"
	if italic {
		style = "italic"
		if variant == "regular" {
			variant = "italic"
		} else {
			variant += "-italic"
		}
	}
	if weight <= 0 {
		weight = 400
	}
	return layout.FontResource{
		Name:   fonts.Family + "-" + variant,
		Src:    fonts.Prefix + variant,
		Family: fonts.Family,
		Weight: weight,
		Style:  style,
	}
}

func (r *Renderer) fontFace(font layout.FontResource, size float64, col layout.Color) (*canvas.FontFace, error) {
	family, style, err := r.ensureFontFamily(font)
	if err != nil {
		return nil, err
	}
	return family.Face(size, colorFromLayout(col), style, canvas.FontNormal), nil
}

func (r *Renderer) ensureFontFamily(font layout.FontResource) (*canvas.FontFamily, canvas.FontStyle, error) {
	if font.Src == "" {
		font = builtinFont(font.Weight, font.Italic())
	}
	key := fontCacheKey(font)
	r.fontMu.Lock()
	defer r.fontMu.Unlock()

	if entry, ok := r.fontFamilies[key]; ok {
		return entry.family, entry.style, nil
	}

	style := fontStyleOf(font)
	familyName := font.Family
	if familyName == "" {
		familyName = font.Name
	}
	if familyName == "" {
		familyName = "Body"
	}
	family := canvas.NewFontFamily(familyName)

	if err := r.loadFontIntoFamily(family, font, style); err != nil {
		fallback := builtinFont(font.Weight, font.Italic())
		if font.Fallback != "" {
			fallback.Src = font.Fallback
		}
		fbFamily := canvas.NewFontFamily(fallback.Family)
		fbStyle := fontStyleOf(fallback)
		if fbErr := r.loadFontIntoFamily(fbFamily, fallback, fbStyle); fbErr != nil {
			return nil, canvas.FontRegular, fmt.Errorf("加载字体 %s 失败: %w", font.Name, err)
		}
		r.fontFamilies[key] = &fontFamilyEntry{family: fbFamily, style: fbStyle}
		return fbFamily, fbStyle, nil
	}

	entry := &fontFamilyEntry{family: family, style: style}
	r.fontFamilies[key] = entry
	return family, style, nil
}

func (r *Renderer) loadFontIntoFamily(family *canvas.FontFamily, font layout.FontResource, style canvas.FontStyle) error {
	data, err := r.loadFontBytes(font)
	if err != nil {
		return err
	}
	return family.LoadFont(data, 0, style)
}

func (r *Renderer) loadFontBytes(font layout.FontResource) ([]byte, error) {
	if font.Src == "" {
		return nil, fmt.Errorf("字体 %s 缺少 src", font.Name)
	}
	src := font.Src
	if strings.HasPrefix(src, "built-in:") || strings.HasPrefix(src, "builtin:") {
		name := strings.TrimPrefix(strings.TrimPrefix(src, "built-in:"), "builtin:")
		if blob, ok := r.fontBlobs[name]; ok {
			return blob, nil
		}
		return nil, fmt.Errorf("找不到内置字体资源 built-in:%s", name)
	}
	if fonts.IsEmbedded(src) {
		return fonts.Load(src)
	}
	// Path based
	path := src
	if r.baseDir == "" && !filepath.IsAbs(path) {
		return nil, fmt.Errorf("未指定资源目录时不允许直接使用字体路径：%s（请改用 built-in: 或 embed:）", src)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.baseDir, path)
	}
	return os.ReadFile(path)
}

func resolveFontResource(name string, fonts map[string]layout.FontResource) layout.FontResource {
	if font, ok := fonts[name]; ok {
		return font
	}
	if font, ok := fonts["Body"]; ok {
		return font
	}
	return layout.FontResource{}
}

// fontStyleOf 优先按数值字重映射，未声明字重时解析 style 字符串。
func fontStyleOf(font layout.FontResource) canvas.FontStyle {
	if font.Weight <= 0 {
		return parseFontStyle(font.Style)
	}
	result := canvas.FontRegular
	switch {
	case font.Weight >= 900:
		result = canvas.FontBlack
	case font.Weight >= 800:
		result = canvas.FontExtraBold
	case font.Weight >= 700:
		result = canvas.FontBold
	case font.Weight >= 600:
		result = canvas.FontSemiBold
	case font.Weight >= 500:
		result = canvas.FontMedium
	case font.Weight <= 300:
		result = canvas.FontLight
	}
	if font.Italic() {
		result |= canvas.FontItalic
	}
	return result
}

func parseFontStyle(style string) canvas.FontStyle {
	if style == "" {
		return canvas.FontRegular
	}
	s := strings.ToLower(style)
	result := canvas.FontRegular
	switch {
	case strings.Contains(s, "black"):
		result = canvas.FontBlack
	case strings.Contains(s, "extrabold"):
		result = canvas.FontExtraBold
	case strings.Contains(s, "semibold"), strings.Contains(s, "demibold"):
		result = canvas.FontSemiBold
	case strings.Contains(s, "bold"):
		result = canvas.FontBold
	case strings.Contains(s, "medium"):
		result = canvas.FontMedium
	case strings.Contains(s, "light"):
		result = canvas.FontLight
	}
	if strings.Contains(s, "italic") || strings.Contains(s, "oblique") {
		result |= canvas.FontItalic
	}
	return result
}

func fontCacheKey(font layout.FontResource) string {
	return fmt.Sprintf("%s|%s|%s|%d", font.Name, font.Src, font.Style, font.Weight)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
