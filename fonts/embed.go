// Package fonts 提供内置的 Go 字体，作为模板未声明字体时的兜底字体族。
package fonts

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomediumitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

// Family 是内置字体族在模板和 CSS font-family 中使用的名称。
const Family = "Go"

// Prefix 标记模板里引用内置字体的 src。
const Prefix = "embed:"

var builtin = map[string][]byte{
	"regular":       goregular.TTF,
	"bold":          gobold.TTF,
	"italic":        goitalic.TTF,
	"bold-italic":   gobolditalic.TTF,
	"medium":        gomedium.TTF,
	"medium-italic": gomediumitalic.TTF,
	"mono":          gomono.TTF,
}

// Load 返回内置字体的字节数据，name 可写为 "embed:bold" 或直接 "bold"。
func Load(name string) ([]byte, error) {
	key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, Prefix)))
	key = strings.TrimPrefix(key, "go-")
	data, ok := builtin[key]
	if !ok {
		return nil, fmt.Errorf("读取内置字体 %s 失败: 可用字体 %s", name, strings.Join(Names(), ", "))
	}
	return data, nil
}

// Names 返回所有内置字体名，按字母排序。
func Names() []string {
	names := make([]string, 0, len(builtin))
	for k := range builtin {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// IsEmbedded reports whether src refers to a built-in face.
func IsEmbedded(src string) bool {
	return strings.HasPrefix(strings.TrimSpace(src), Prefix)
}
