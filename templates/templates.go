// Package templates embeds the default capstone card template.
package templates

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/ByLCY/capstone/dsl"
)

//go:embed capstone.card
var defaultCard string

// DefaultName identifies the embedded template on the command line.
const DefaultName = "capstone"

// Default returns the embedded card template source.
func Default() string { return defaultCard }

// Load parses the template at path, or the embedded default when path is
// empty or DefaultName.
func Load(path string) (*dsl.Document, error) {
	if path == "" || path == DefaultName {
		return dsl.ParseString(defaultCard)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("读取模板 %s 失败: %w", path, err)
	}
	defer f.Close()
	doc, err := dsl.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("解析模板 %s 失败: %w", path, err)
	}
	return doc, nil
}
