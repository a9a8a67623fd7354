// Package dsl parses card templates.
//
// A template is a `card <Name> <version> { ... }` block holding meta,
// resources and page sections. Statements are either `key: value`
// assignments, commands (a name followed by bare arguments and an optional
// block) or string literals carrying text content.
package dsl

import (
	"fmt"
	"io"
	"strconv"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var cardLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `//[^\n]*`},
	{Name: "Color", Pattern: `#(?:[0-9A-Fa-f]{8}|[0-9A-Fa-f]{6}|[0-9A-Fa-f]{3})\b`},
	{Name: "Number", Pattern: `\d+(?:\.\d+)?(?:pt|px|mm|cm|in|fr|%|x)?`},
	{Name: "String", Pattern: `"(?:\\.|[^"])*"`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_-]*`},
	{Name: "Punct", Pattern: `[][=:;,]`},
	{Name: "LBrace", Pattern: `{`},
	{Name: "RBrace", Pattern: `}`},
	{Name: "Newline", Pattern: `\n+`},
	{Name: "Space", Pattern: `[ \t\r]+`},
})

// kinds maps lexer token types back to rule names for Lexeme.Type.
var kinds = func() map[lexer.TokenType]string {
	out := map[lexer.TokenType]string{}
	for name, tt := range cardLexer.Symbols() {
		out[tt] = name
	}
	return out
}()

var cardParser = participle.MustBuild[Document](
	participle.Lexer(cardLexer),
	participle.Elide("Space", "Comment"),
)

// Document is the root of a card template.
type Document struct {
	Name     string     `parser:"Newline* 'card' @Ident"`
	Version  string     `parser:"@Ident"`
	Sections []*Section `parser:"'{' Newline* ( @@ Newline* )* '}' Newline*"`
}

// Section is one of meta, resources or page.
type Section struct {
	Meta      *MetaSection      `parser:"  @@"`
	Resources *ResourcesSection `parser:"| @@"`
	Page      *PageSection      `parser:"| @@"`
}

// Kind names the populated branch.
func (s *Section) Kind() string {
	switch {
	case s != nil && s.Meta != nil:
		return "meta"
	case s != nil && s.Resources != nil:
		return "resources"
	case s != nil && s.Page != nil:
		return "page"
	}
	return "unknown"
}

type MetaSection struct {
	Block *Block `parser:"'meta' @@"`
}

type ResourcesSection struct {
	Block *Block `parser:"'resources' @@"`
}

// PageSection is `page <Size> [params...] { rows }`.
type PageSection struct {
	Spec  PageSpec `parser:"'page' @@"`
	Block *Block   `parser:"@@"`
}

type PageSpec struct {
	Size   string    `parser:"@Ident"`
	Params []*Lexeme `parser:"@@*"`
}

// Block is a brace-delimited statement list. Statements are separated by
// newlines or semicolons, or simply follow each other on one line.
type Block struct {
	Statements []*Statement `parser:"'{' Newline* ( @@ ( ';' | Newline )* )* '}'"`
}

type Statement struct {
	Assignment *Assignment  `parser:"  @@"`
	Command    *Command     `parser:"| @@"`
	Text       *TextLiteral `parser:"| @@"`
}

// Assignment is `key: value`.
type Assignment struct {
	Key   string `parser:"@Ident"`
	Value *Value `parser:"':' Newline* @@"`
}

// Command is a layout instruction (row/cell/text/photo/qr) or a resource
// declaration (font/color/style).
type Command struct {
	Pos   lexer.Position `parser:"" json:"-"`
	Name  string         `parser:"@Ident"`
	Args  []*Lexeme      `parser:"@@*"`
	Block *Block         `parser:"( Newline* @@ )?"`
}

type TextLiteral struct {
	Value StringLiteral `parser:"@String"`
}

// Value is the right-hand side of an assignment.
type Value struct {
	String *StringLiteral `parser:"  @String"`
	Number *string        `parser:"| @Number"`
	Color  *string        `parser:"| @Color"`
	Ident  *string        `parser:"| @Ident"`
	Array  *ArrayValue    `parser:"| @@"`
}

// ArrayValue is `[ v, v ]`; newlines also separate items.
type ArrayValue struct {
	Values []*Value `parser:"'[' Newline* ( @@ ( ( ',' | Newline ) Newline* @@ )* )? Newline* ']'"`
}

// Lexeme is one bare command argument. Quoted strings carry their unquoted
// text in Value.
type Lexeme struct {
	Type  string         `json:"type"`
	Value string         `json:"value"`
	Pos   lexer.Position `json:"-"`
}

// Parse implements participle.Parseable. Arguments run until a newline, a
// brace or a semicolon.
func (l *Lexeme) Parse(lex *lexer.PeekingLexer) error {
	tok := lex.Peek()
	if tok.EOF() || endsArgs(kinds[tok.Type], tok.Value) {
		return participle.NextMatch
	}
	tok = lex.Next()
	l.Type, l.Value, l.Pos = kinds[tok.Type], tok.Value, tok.Pos
	if l.Type == "String" {
		s, err := strconv.Unquote(tok.Value)
		if err != nil {
			return fmt.Errorf("%s: 字符串无效: %w", tok.Pos, err)
		}
		l.Value = s
	}
	return nil
}

func endsArgs(kind, value string) bool {
	switch kind {
	case "Newline", "LBrace", "RBrace":
		return true
	case "Punct":
		return value == ";"
	}
	return false
}

// StringLiteral unquotes Go-style strings on capture.
type StringLiteral string

// Capture implements participle.Capture.
func (s *StringLiteral) Capture(values []string) error {
	if len(values) == 0 {
		return fmt.Errorf("字符串缺少取值")
	}
	v, err := strconv.Unquote(values[0])
	if err != nil {
		return err
	}
	*s = StringLiteral(v)
	return nil
}

// Parse reads a template from r.
func Parse(r io.Reader) (*Document, error) {
	return cardParser.Parse("", r)
}

// ParseString parses a template held in memory.
func ParseString(input string) (*Document, error) {
	return cardParser.ParseString("", input)
}
