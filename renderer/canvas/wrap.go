package canvasrenderer

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tdewolff/canvas"

	"github.com/ByLCY/capstone/layout"
)

// textMeasurer 是断行所需的最小字体能力，*canvas.FontFace 满足它。
type textMeasurer interface {
	TextWidth(s string) float64
}

var _ textMeasurer = (*canvas.FontFace)(nil)

// wrapLines 按 white-space: pre-wrap + overflow-wrap: anywhere 断行（单位 mm）：
// 显式换行保留，行尾空白悬挂不占宽度，单词超宽时在字符间拆分。
// 末尾的单个换行不产生额外空行；空文本没有行。
func wrapLines(content string, width float64, face textMeasurer) []layout.TextLine {
	if content == "" {
		return nil
	}
	limit := width
	if limit <= 0 {
		limit = math.MaxFloat64
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	paras := strings.Split(content, "\n")
	if len(paras) > 1 && paras[len(paras)-1] == "" {
		paras = paras[:len(paras)-1]
	}
	var lines []layout.TextLine
	for _, p := range paras {
		lines = append(lines, wrapParagraph(p, limit, face)...)
	}
	return lines
}

func wrapParagraph(p string, limit float64, face textMeasurer) []layout.TextLine {
	var lines []layout.TextLine
	var line strings.Builder
	ink := 0.0     // 行内最后一个单词末尾处的宽度
	pending := ""  // 上一个单词之后尚未落定的空白
	hasWord := false

	emit := func() {
		lines = append(lines, layout.TextLine{Content: line.String(), Width: ink})
		line.Reset()
		ink = 0
		pending = ""
		hasWord = false
	}

	for _, token := range tokenizeContent(p) {
		if isSpaceToken(token) {
			pending += token
			continue
		}
		candidate := line.String() + pending + token
		if w := face.TextWidth(candidate); w <= limit {
			line.Reset()
			line.WriteString(candidate)
			ink, pending, hasWord = w, "", true
			continue
		}
		prefix := pending
		if hasWord {
			// 空白悬挂在上一行末尾，新行从单词开始
			emit()
			prefix = ""
		}
		word := line.String() + prefix + token
		line.Reset()
		if w := face.TextWidth(word); w <= limit {
			line.WriteString(word)
			ink, pending, hasWord = w, "", true
			continue
		}
		chunks := splitTokenByWidth(word, limit, face)
		for i, chunk := range chunks {
			line.WriteString(chunk)
			ink, pending, hasWord = face.TextWidth(chunk), "", true
			if i < len(chunks)-1 {
				emit()
			}
		}
	}
	if line.Len() == 0 && !hasWord {
		// 空段落或纯空白段落仍占一行
		return append(lines, layout.TextLine{})
	}
	emit()
	return lines
}

func isSpaceToken(token string) bool {
	r, _ := utf8.DecodeRuneInString(token)
	return unicode.IsSpace(r)
}

// tokenizeContent 将一段文本切成交替的空白串与非空白串。
func tokenizeContent(s string) []string {
	var tokens []string
	var builder strings.Builder
	lastWasSpace := false
	flush := func() {
		if builder.Len() == 0 {
			return
		}
		tokens = append(tokens, builder.String())
		builder.Reset()
	}

	for _, r := range s {
		if r == '\r' {
			continue
		}
		isSpace := unicode.IsSpace(r)
		if builder.Len() == 0 {
			lastWasSpace = isSpace
		} else if lastWasSpace != isSpace {
			flush()
			lastWasSpace = isSpace
		}
		builder.WriteRune(r)
	}
	flush()
	return tokens
}

// splitTokenByWidth 在字符间拆分超宽单词，每段至少一个字符。
func splitTokenByWidth(token string, limit float64, face textMeasurer) []string {
	if limit <= 0 || limit == math.MaxFloat64 {
		return []string{token}
	}
	var parts []string
	var current []rune
	for _, r := range token {
		current = append(current, r)
		if len(current) > 1 && face.TextWidth(string(current)) > limit {
			parts = append(parts, string(current[:len(current)-1]))
			current = []rune{r}
		}
	}
	if len(current) > 0 {
		parts = append(parts, string(current))
	}
	return parts
}
