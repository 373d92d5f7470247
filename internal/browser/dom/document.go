// Package dom wraps a golang.org/x/net/html tree with the small subset of the
// DOM API the cosmetic filter evaluators rely on: scoped selector queries,
// text content, parent links and inline style mutation.
//
// The Document is not safe for concurrent use. Callers serialize access the
// same way a page serializes its scripts: every query and mutation happens on
// one logical thread (the caller's goroutine or the script event loop).
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Document is the live page tree. It is never copied; every query reads the
// current state of the tree and every mutation writes to it directly.
type Document struct {
	root *html.Node
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return NewDocument(root), nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// NewDocument wraps an already parsed tree.
func NewDocument(root *html.Node) *Document {
	return &Document{root: root}
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// Body returns the <body> element, or nil when the tree has none.
func (d *Document) Body() *html.Node {
	return htmlquery.FindOne(d.root, "//body")
}

// QuerySelectorAll returns every descendant of ctx that matches selector, in
// document order. A nil ctx queries the whole document. The result is a
// snapshot; later mutations are not reflected in it.
func (d *Document) QuerySelectorAll(ctx *html.Node, selector string) ([]*html.Node, error) {
	sel, err := CompileSelector(selector)
	if err != nil {
		return nil, err
	}
	return d.MatchAll(ctx, sel), nil
}

// QuerySelector returns the first descendant of ctx matching selector, or nil.
func (d *Document) QuerySelector(ctx *html.Node, selector string) (*html.Node, error) {
	sel, err := CompileSelector(selector)
	if err != nil {
		return nil, err
	}
	return d.MatchFirst(ctx, sel), nil
}

// MatchAll is QuerySelectorAll for an already compiled selector.
func (d *Document) MatchAll(ctx *html.Node, sel *Selector) []*html.Node {
	if ctx == nil {
		ctx = d.root
	}
	matcher := sel.MatcherFor(ctx)

	var out []*html.Node
	walkDescendants(ctx, func(n *html.Node) bool {
		if matcher.Match(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// MatchFirst is QuerySelector for an already compiled selector.
func (d *Document) MatchFirst(ctx *html.Node, sel *Selector) *html.Node {
	if ctx == nil {
		ctx = d.root
	}
	matcher := sel.MatcherFor(ctx)

	var found *html.Node
	walkDescendants(ctx, func(n *html.Node) bool {
		if matcher.Match(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// Elements returns every element of the document in document order.
func (d *Document) Elements() []*html.Node {
	var out []*html.Node
	walkDescendants(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Render serializes the document.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the document to a string, mostly useful in tests and logs.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// walkDescendants visits the descendants of n in pre-order. The visitor
// returns false to stop the walk.
func walkDescendants(n *html.Node, visit func(*html.Node) bool) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !visit(c) {
			return false
		}
		if !walkDescendants(c, visit) {
			return false
		}
	}
	return true
}

// -- Node helpers --

// TextContent mirrors Node.textContent: the concatenation of all descendant text.
func TextContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	return htmlquery.InnerText(n)
}

// ParentElement returns the parent of n when it is an element.
func ParentElement(n *html.Node) *html.Node {
	if n == nil || n.Parent == nil || n.Parent.Type != html.ElementNode {
		return nil
	}
	return n.Parent
}

// NodeName mirrors Node.nodeName.
func NodeName(n *html.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type {
	case html.ElementNode:
		return strings.ToUpper(n.Data)
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DocumentNode:
		return "#document"
	case html.DoctypeNode:
		return n.Data
	}
	return ""
}

// Attr returns the value of an attribute and whether it is present.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces an attribute.
func SetAttr(n *html.Node, key, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

// Hide replaces the inline style of n with hideStyle. It reports whether the
// node changed; hiding an already hidden node is a no-op.
func Hide(n *html.Node, hideStyle string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if IsHidden(n, hideStyle) {
		return false
	}
	SetAttr(n, "style", hideStyle)
	return true
}

// IsHidden reports whether n carries exactly hideStyle as its inline style.
func IsHidden(n *html.Node, hideStyle string) bool {
	current, ok := Attr(n, "style")
	return ok && current == hideStyle
}

// OuterHTML renders a single node.
func OuterHTML(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}
