// internal/browser/style/style.go
package style

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/procfilter/internal/browser/parser"
)

// -- Constants and Configuration --

// DefaultUserAgentCSS is a minimal user agent stylesheet. It provides the
// display values the cascade needs for common elements.
const DefaultUserAgentCSS = `
/* Elements that never render */
head, script, style, template, title, meta, link, base, noscript, [hidden] {
    display: none;
}

/* Basic Resets and Defaults */
div, p, h1, h2, h3, h4, h5, h6, body, html, ul, ol, form, header, footer, section,
article, nav, main, aside, figure, blockquote, pre, hr, dl, dt, dd, fieldset, address {
    display: block;
}

body {
    margin: 8px;
}

h1 { font-size: 2em; margin: 0.67em 0; font-weight: bold; }
h2 { font-size: 1.5em; margin: 0.83em 0; font-weight: bold; }
p { margin: 1em 0; }
b, strong { font-weight: bold; }
i, em { font-style: italic; }
pre { white-space: pre; }

/* Lists */
ul, ol { padding-left: 40px; }
li { display: list-item; }

/* Tables */
table { display: table; }
tr { display: table-row; }
td, th { display: table-cell; }

/* Form Elements */
input, button, textarea, select, img {
    display: inline-block;
}

a {
    color: #0000EE;
    text-decoration: underline;
    cursor: pointer;
}
`

// inheritableProperties are copied from the parent when a node declares no value.
var inheritableProperties = map[parser.Property]bool{
	"color": true, "cursor": true, "direction": true, "font-family": true,
	"font-size": true, "font-style": true, "font-weight": true, "letter-spacing": true,
	"line-height": true, "list-style-type": true, "quotes": true, "text-align": true,
	"text-transform": true, "visibility": true, "white-space": true, "word-spacing": true,
}

// initialValues are reported for properties nothing in the cascade set.
var initialValues = map[parser.Property]parser.Value{
	"display":    "inline",
	"visibility": "visible",
	"opacity":    "1",
	"position":   "static",
	"float":      "none",
	"color":      "rgb(0, 0, 0)",
	"font-style": "normal",
	"content":    "normal",
}

// -- Style Engine --

// Engine orchestrates the styling process: the cascade over user agent,
// author and inline declarations, inheritance and pseudo-elements.
type Engine struct {
	userAgentSheets []parser.StyleSheet
	authorSheets    []parser.StyleSheet
}

// NewEngine creates a new styling engine preloaded with the user agent sheet.
func NewEngine() *Engine {
	uaSheet := parser.NewParser(DefaultUserAgentCSS).Parse()
	return &Engine{
		userAgentSheets: []parser.StyleSheet{uaSheet},
	}
}

// AddAuthorSheet adds a stylesheet provided by the webpage author.
func (se *Engine) AddAuthorSheet(sheet parser.StyleSheet) {
	se.authorSheets = append(se.authorSheets, sheet)
}

// AuthorSheetCount reports how many author sheets are registered.
func (se *Engine) AuthorSheetCount() int {
	return len(se.authorSheets)
}

// ComputedStyle resolves the style of node, or of one of its pseudo-elements
// when pseudo is "before"/"after" (colons optional). The result reflects the
// tree at the time of the call.
func (se *Engine) ComputedStyle(node *html.Node, pseudo string) *Computed {
	return se.NewResolver().ComputedStyle(node, pseudo)
}

// NewResolver returns a memoizing resolver. It is meant to live for one pass
// over a document that does not mutate styles between lookups.
func (se *Engine) NewResolver() *Resolver {
	return &Resolver{engine: se, cache: make(map[resolverKey]*Computed)}
}

// -- Resolver --

type resolverKey struct {
	node   *html.Node
	pseudo string
}

// Resolver computes styles with a per-pass cache for ancestor lookups.
type Resolver struct {
	engine *Engine
	cache  map[resolverKey]*Computed
}

// ComputedStyle resolves the style of node or of one of its pseudo-elements.
func (r *Resolver) ComputedStyle(node *html.Node, pseudo string) *Computed {
	pseudo = NormalizePseudo(pseudo)
	if node == nil || node.Type != html.ElementNode {
		return &Computed{props: map[parser.Property]parser.Value{}}
	}
	key := resolverKey{node: node, pseudo: pseudo}
	if c, ok := r.cache[key]; ok {
		return c
	}

	var parent *Computed
	if pseudo != "" {
		// Pseudo-elements inherit from their originating element.
		parent = r.ComputedStyle(node, "")
	} else if node.Parent != nil && node.Parent.Type == html.ElementNode {
		parent = r.ComputedStyle(node.Parent, "")
	}

	styles := r.engine.cascade(node, pseudo)
	expandShorthands(styles)
	resolveKeywords(styles, parent)
	inheritStyles(styles, parent)
	applyInitialValues(styles, pseudo)

	c := &Computed{props: styles}
	r.cache[key] = c
	return c
}

// NormalizePseudo maps "::before", ":before" and "before" to "before". An
// empty string selects the element itself.
func NormalizePseudo(pseudo string) string {
	pseudo = strings.ToLower(strings.TrimSpace(pseudo))
	pseudo = strings.TrimLeft(pseudo, ":")
	if pseudo == "null" {
		return ""
	}
	return pseudo
}

// -- Cascade --

type StyleOrigin int

const (
	OriginUserAgent StyleOrigin = iota
	OriginAuthor
	OriginInline
)

type DeclarationWithContext struct {
	Declaration parser.Declaration
	Specificity [3]int
	Origin      StyleOrigin
	Order       int
}

func (se *Engine) cascade(node *html.Node, pseudo string) map[parser.Property]parser.Value {
	var declarations []DeclarationWithContext
	order := 0

	processSheets := func(sheets []parser.StyleSheet, origin StyleOrigin) {
		for _, sheet := range sheets {
			for _, rule := range sheet.Rules {
				matched, specificity := matchRule(node, pseudo, rule)
				if !matched {
					continue
				}
				for _, decl := range rule.Declarations {
					declarations = append(declarations, DeclarationWithContext{
						Declaration: decl,
						Specificity: specificity,
						Origin:      origin,
						Order:       order,
					})
					order++
				}
			}
		}
	}

	processSheets(se.userAgentSheets, OriginUserAgent)
	processSheets(se.authorSheets, OriginAuthor)

	if pseudo == "" {
		for _, attr := range node.Attr {
			if attr.Key != "style" {
				continue
			}
			for _, decl := range parser.ParseInline(attr.Val) {
				declarations = append(declarations, DeclarationWithContext{
					Declaration: decl,
					Specificity: [3]int{1, 0, 0},
					Origin:      OriginInline,
					Order:       order,
				})
				order++
			}
		}
	}

	sort.SliceStable(declarations, func(i, j int) bool {
		d1, d2 := declarations[i], declarations[j]
		p1, p2 := calculateCascadePriority(d1), calculateCascadePriority(d2)
		if p1 != p2 {
			return p1 < p2
		}
		for k := 0; k < 3; k++ {
			if d1.Specificity[k] != d2.Specificity[k] {
				return d1.Specificity[k] < d2.Specificity[k]
			}
		}
		return d1.Order < d2.Order
	})

	styles := make(map[parser.Property]parser.Value)
	for _, declCtx := range declarations {
		styles[declCtx.Declaration.Property] = declCtx.Declaration.Value
	}
	return styles
}

// matchRule reports whether any selector of the rule targets node (or its
// pseudo-element) and returns the highest matching specificity.
func matchRule(node *html.Node, pseudo string, rule parser.RuleSet) (bool, [3]int) {
	var (
		best  [3]int
		found bool
	)
	for _, sel := range rule.Selectors {
		if sel.PseudoElement() != pseudo || !sel.Match(node) {
			continue
		}
		s := sel.Specificity()
		spec := [3]int{int(s[0]), int(s[1]), int(s[2])}
		if !found || lessSpecificity(best, spec) {
			best = spec
		}
		found = true
	}
	return found, best
}

func lessSpecificity(a, b [3]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func calculateCascadePriority(d DeclarationWithContext) int {
	isImportant := d.Declaration.Important
	switch d.Origin {
	case OriginUserAgent:
		if isImportant {
			return 5
		}
		return 1
	case OriginAuthor:
		if isImportant {
			return 4
		}
		return 2
	case OriginInline:
		if isImportant {
			return 4
		}
		return 3
	}
	return 0
}

// -- Inheritance and defaults --

func resolveKeywords(styles map[parser.Property]parser.Value, parent *Computed) {
	for prop, val := range styles {
		switch strings.ToLower(string(val)) {
		case "inherit":
			inheritOrInitial(styles, prop, parent)
		case "initial":
			delete(styles, prop)
		case "unset":
			if inheritableProperties[prop] {
				inheritOrInitial(styles, prop, parent)
			} else {
				delete(styles, prop)
			}
		}
	}
}

func inheritOrInitial(styles map[parser.Property]parser.Value, prop parser.Property, parent *Computed) {
	if parent != nil {
		if v, ok := parent.props[prop]; ok {
			styles[prop] = v
			return
		}
	}
	delete(styles, prop)
}

func inheritStyles(styles map[parser.Property]parser.Value, parent *Computed) {
	if parent == nil {
		return
	}
	for prop := range inheritableProperties {
		if _, exists := styles[prop]; exists {
			continue
		}
		if val, ok := parent.props[prop]; ok {
			styles[prop] = val
		}
	}
}

func applyInitialValues(styles map[parser.Property]parser.Value, pseudo string) {
	for prop, val := range initialValues {
		if _, ok := styles[prop]; !ok {
			styles[prop] = val
		}
	}
	if pseudo != "" {
		if v := styles["content"]; v == "normal" {
			// A pseudo-element without content does not generate a box.
			styles["content"] = "none"
		}
	}
}

func expandShorthands(styles map[parser.Property]parser.Value) {
	expand1To4Shorthand(styles, "margin", "margin-top", "margin-right", "margin-bottom", "margin-left")
	expand1To4Shorthand(styles, "padding", "padding-top", "padding-right", "padding-bottom", "padding-left")
	expand1To4Shorthand(styles, "border-width", "border-top-width", "border-right-width", "border-bottom-width", "border-left-width")

	if bg, ok := styles["background"]; ok {
		if _, set := styles["background-color"]; !set {
			for _, part := range strings.Fields(string(bg)) {
				if looksLikeColor(part) {
					styles["background-color"] = parser.Value(part)
					break
				}
			}
		}
	}
}

func expand1To4Shorthand(styles map[parser.Property]parser.Value, shorthand, top, right, bottom, left parser.Property) {
	val, ok := styles[shorthand]
	if !ok {
		return
	}
	parts := strings.Fields(string(val))
	switch len(parts) {
	case 1:
		v1 := parser.Value(parts[0])
		styles[top], styles[right], styles[bottom], styles[left] = v1, v1, v1, v1
	case 2:
		v1, v2 := parser.Value(parts[0]), parser.Value(parts[1])
		styles[top], styles[right], styles[bottom], styles[left] = v1, v2, v1, v2
	case 3:
		v1, v2, v3 := parser.Value(parts[0]), parser.Value(parts[1]), parser.Value(parts[2])
		styles[top], styles[right], styles[bottom], styles[left] = v1, v2, v3, v2
	case 4:
		v1, v2, v3, v4 := parser.Value(parts[0]), parser.Value(parts[1]), parser.Value(parts[2]), parser.Value(parts[3])
		styles[top], styles[right], styles[bottom], styles[left] = v1, v2, v3, v4
	}
}

func looksLikeColor(s string) bool {
	s = strings.ToLower(s)
	return strings.HasPrefix(s, "#") || strings.HasPrefix(s, "rgb") || strings.HasPrefix(s, "hsl") ||
		s == "transparent" || s == "red" || s == "green" || s == "blue" || s == "black" || s == "white"
}

// -- Computed style --

// Computed is the resolved style of one element or pseudo-element.
type Computed struct {
	props map[parser.Property]parser.Value
}

// Get returns the value of a property, accepting kebab-case or camelCase
// names. Unset properties yield "".
func (c *Computed) Get(name string) string {
	return string(c.props[CanonicalProperty(name)])
}

// Len returns the number of resolved properties.
func (c *Computed) Len() int {
	return len(c.props)
}

// CSSText serializes every resolved property as "name: value;" pairs in
// property-name order.
func (c *Computed) CSSText() string {
	names := make([]string, 0, len(c.props))
	for prop := range c.props {
		names = append(names, string(prop))
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, parser.Declaration{
			Property: parser.Property(name),
			Value:    c.props[parser.Property(name)],
		}.String())
	}
	return strings.Join(parts, " ")
}

// CanonicalProperty converts a CSSOM property name (backgroundColor,
// webkitTransform, cssFloat) to its CSS form (background-color,
// -webkit-transform, float).
func CanonicalProperty(name string) parser.Property {
	name = strings.TrimSpace(name)
	if name == "cssFloat" {
		return "float"
	}
	if strings.ContainsRune(name, '-') || strings.ToLower(name) == name {
		return parser.Property(strings.ToLower(name))
	}

	var b strings.Builder
	for _, prefix := range []string{"webkit", "Webkit", "moz", "Moz", "ms"} {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) && unicode.IsUpper(rune(name[len(prefix)])) {
			b.WriteByte('-')
			break
		}
	}
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return parser.Property(b.String())
}
