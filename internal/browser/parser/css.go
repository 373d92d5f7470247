// internal/browser/parser/css.go
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
)

// Property represents a CSS property (e.g., "display").
type Property string

// Value represents a CSS value (e.g., "none").
type Value string

// Declaration is a key-value pair (e.g., display: none).
type Declaration struct {
	Property  Property
	Value     Value
	Important bool
}

// String serializes the declaration the way cssText does.
func (d Declaration) String() string {
	if d.Important {
		return fmt.Sprintf("%s: %s !important;", d.Property, d.Value)
	}
	return fmt.Sprintf("%s: %s;", d.Property, d.Value)
}

// RuleSet represents a set of declarations applied by a selector list.
// Each selector of the list keeps its own specificity and pseudo-element.
type RuleSet struct {
	SelectorText string
	Selectors    cascadia.SelectorGroup
	Declarations []Declaration
}

// StyleSheet is the top-level structure representing the parsed CSSOM.
type StyleSheet struct {
	Rules []RuleSet
}

// legacyPseudoElement matches CSS2 single-colon pseudo-elements, which
// cascadia only understands in their double-colon form.
var legacyPseudoElement = regexp.MustCompile(`(^|[^:]):(before|after|first-line|first-letter)\b`)

// CompileSelector compiles a selector list that may carry pseudo-elements.
func CompileSelector(text string) (cascadia.SelectorGroup, error) {
	normalized := legacyPseudoElement.ReplaceAllString(strings.TrimSpace(text), "${1}::${2}")
	group, err := cascadia.ParseGroupWithPseudoElements(normalized)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", text, err)
	}
	return group, nil
}

// Parser holds the state of the CSS parser.
type Parser struct {
	input string
	pos   int
}

func NewParser(input string) *Parser {
	return &Parser{input: input, pos: 0}
}

// Parse analyzes the input CSS string and builds a StyleSheet. Rules whose
// selector cannot be compiled are dropped, as browsers do.
func (p *Parser) Parse() StyleSheet {
	var rules []RuleSet
	for {
		p.consumeWhitespace()
		if p.eof() {
			break
		}
		if p.startsWith("/*") {
			p.skipComment()
			continue
		}
		if p.startsWith("<!--") {
			p.consumeN(4)
			continue
		}
		if p.startsWith("-->") {
			p.consumeN(3)
			continue
		}

		if p.currentChar() == '@' {
			p.skipAtRule()
			continue
		}

		prelude := p.parsePrelude()
		declarations, err := p.parseDeclarations()
		if err != nil {
			continue
		}
		if prelude == "" || len(declarations) == 0 {
			continue
		}

		selectors, err := CompileSelector(prelude)
		if err != nil {
			continue
		}
		rules = append(rules, RuleSet{
			SelectorText: prelude,
			Selectors:    selectors,
			Declarations: declarations,
		})
	}
	return StyleSheet{Rules: rules}
}

// ParseInline parses the content of a style attribute.
func ParseInline(style string) []Declaration {
	p := NewParser(style)
	var declarations []Declaration
	for {
		p.consumeWhitespace()
		if p.eof() {
			break
		}
		if p.currentChar() == ';' {
			p.consumeChar()
			continue
		}
		if p.currentChar() == '}' {
			// Stray brace in an attribute: skip it rather than looping.
			p.consumeChar()
			continue
		}
		property, value, important := p.parseDeclaration()
		if property != "" && value != "" {
			declarations = append(declarations, Declaration{
				Property:  Property(strings.ToLower(property)),
				Value:     Value(value),
				Important: important,
			})
		}
	}
	return declarations
}

// parsePrelude reads the selector text up to the opening brace of a rule.
func (p *Parser) parsePrelude() string {
	start := p.pos
	for !p.eof() {
		ch := p.currentChar()
		if ch == '{' {
			break
		}
		if ch == '"' || ch == '\'' {
			p.skipQuotedString(ch)
			continue
		}
		if ch == '(' {
			p.consumeChar()
			p.skipBlock('(', ')')
			continue
		}
		if ch == '[' {
			p.consumeChar()
			p.skipBlock('[', ']')
			continue
		}
		p.pos++
	}
	return strings.TrimSpace(p.input[start:p.pos])
}

// parseDeclarations parses the content within { ... }.
func (p *Parser) parseDeclarations() ([]Declaration, error) {
	p.consumeWhitespace()
	if p.eof() || p.currentChar() != '{' {
		return nil, fmt.Errorf("expected '{' at start of declarations")
	}
	p.consumeChar()

	var declarations []Declaration
	for {
		p.consumeWhitespace()
		if p.eof() || p.currentChar() == '}' {
			break
		}
		if p.startsWith("/*") {
			p.skipComment()
			continue
		}
		if p.currentChar() == ';' {
			p.consumeChar()
			continue
		}

		property, value, important := p.parseDeclaration()
		if property != "" && value != "" {
			declarations = append(declarations, Declaration{
				Property:  Property(strings.ToLower(property)),
				Value:     Value(value),
				Important: important,
			})
		}
	}

	if !p.eof() && p.currentChar() == '}' {
		p.consumeChar()
	}
	return declarations, nil
}

// parseDeclaration parses a single 'property: value;' pair.
func (p *Parser) parseDeclaration() (prop, val string, important bool) {
	if !isValidIdentifierStart(p.currentChar()) {
		p.skipTo(';', '}')
		if !p.eof() && p.currentChar() == ';' {
			p.consumeChar()
		}
		return
	}
	prop = p.parseIdentifier()
	p.consumeWhitespace()

	if p.eof() || p.currentChar() != ':' {
		p.skipTo(';', '}')
		if !p.eof() && p.currentChar() == ';' {
			p.consumeChar()
		}
		return "", "", false
	}
	p.consumeChar()
	p.consumeWhitespace()

	val = p.parseValue()

	if strings.HasSuffix(strings.ToLower(val), "!important") {
		important = true
		val = strings.TrimSpace(val[:len(val)-len("!important")])
	}

	p.consumeWhitespace()
	if !p.eof() && p.currentChar() == ';' {
		p.consumeChar()
	}
	return
}

// parseValue reads a CSS value until a delimiter.
func (p *Parser) parseValue() string {
	start := p.pos
	for !p.eof() {
		ch := p.currentChar()
		if ch == ';' || ch == '}' {
			break
		}
		if ch == '"' || ch == '\'' {
			p.skipQuotedString(ch)
			continue
		}
		if ch == '(' {
			p.consumeChar()
			p.skipBlock('(', ')')
			continue
		}
		p.pos++
	}
	return strings.TrimSpace(p.input[start:p.pos])
}

// --- Lexer-like Helpers ---

func (p *Parser) eof() bool {
	return p.pos >= len(p.input)
}

func (p *Parser) currentChar() byte {
	if p.eof() {
		return 0
	}
	return p.input[p.pos]
}

func (p *Parser) consumeChar() byte {
	ch := p.currentChar()
	if !p.eof() {
		p.pos++
	}
	return ch
}

func (p *Parser) consumeN(n int) {
	p.pos += n
	if p.pos > len(p.input) {
		p.pos = len(p.input)
	}
}

func (p *Parser) consumeWhitespace() {
	for !p.eof() && isWhitespace(p.currentChar()) {
		p.pos++
	}
}

func (p *Parser) startsWith(s string) bool {
	if p.pos+len(s) > len(p.input) {
		return false
	}
	return p.input[p.pos:p.pos+len(s)] == s
}

func (p *Parser) skipComment() {
	p.pos += 2
	endIndex := strings.Index(p.input[p.pos:], "*/")
	if endIndex == -1 {
		p.pos = len(p.input)
	} else {
		p.pos += endIndex + 2
	}
}

func (p *Parser) skipTo(targets ...byte) {
	for !p.eof() {
		ch := p.currentChar()
		for _, target := range targets {
			if ch == target {
				return
			}
		}
		p.pos++
	}
}

// skipBlock consumes input until the matching close byte. The opening byte
// must already have been consumed.
func (p *Parser) skipBlock(open, close byte) {
	depth := 1
	for !p.eof() {
		c := p.currentChar()
		if c == '"' || c == '\'' {
			p.skipQuotedString(c)
			continue
		}
		p.consumeChar()
		if c == open {
			depth++
		} else if c == close {
			depth--
			if depth == 0 {
				return
			}
		}
	}
}

func (p *Parser) skipQuotedString(quote byte) {
	p.consumeChar() // opening quote
	for !p.eof() {
		ch := p.consumeChar()
		if ch == '\\' {
			p.consumeChar()
		} else if ch == quote {
			return
		}
	}
}

func (p *Parser) skipAtRule() {
	p.consumeChar() // '@'
	_ = p.parseIdentifier()
	p.consumeWhitespace()
	for !p.eof() {
		ch := p.currentChar()
		if ch == '{' {
			p.consumeChar()
			p.skipBlock('{', '}')
			return
		}
		if ch == ';' {
			p.consumeChar()
			return
		}
		p.pos++
	}
}

func (p *Parser) parseIdentifier() string {
	start := p.pos
	for !p.eof() && isValidIdentifierChar(p.currentChar()) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f'
}

func isValidIdentifierStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch == '-'
}

func isValidIdentifierChar(ch byte) bool {
	return isValidIdentifierStart(ch) || (ch >= '0' && ch <= '9')
}
