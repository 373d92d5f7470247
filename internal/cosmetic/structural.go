// internal/cosmetic/structural.go
package cosmetic

import (
	"fmt"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/procfilter/internal/browser/dom"
)

// XPath evaluates expr against every match of subject and concatenates the
// element results. Each subject's results are appended in reverse order.
func (e *Evaluator) XPath(subject, expr string, root *html.Node) ([]*html.Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("doXPath: invalid expression %q: %w", expr, err)
	}
	nodes, err := e.query(subject, root)
	if err != nil {
		return nil, fmt.Errorf("doXPath(%q): %w", subject, err)
	}

	var out []*html.Node
	for _, n := range nodes {
		snapshot := selectElements(compiled, e.navigatorAt(n))
		for i := len(snapshot) - 1; i >= 0; i-- {
			out = append(out, snapshot[i])
		}
	}
	return out, nil
}

// navigatorAt positions a navigator rooted at the document on target, so that
// absolute paths still resolve against the document.
func (e *Evaluator) navigatorAt(target *html.Node) *htmlquery.NodeNavigator {
	var path []*html.Node
	for n := target; n != nil && n != e.doc.Root(); n = n.Parent {
		path = append(path, n)
	}
	nav := htmlquery.CreateXPathNavigator(e.doc.Root())
	for i := len(path) - 1; i >= 0; i-- {
		if !nav.MoveToChild() {
			return htmlquery.CreateXPathNavigator(target)
		}
		for nav.Current() != path[i] {
			if !nav.MoveToNext() {
				return htmlquery.CreateXPathNavigator(target)
			}
		}
	}
	return nav
}

func selectElements(expr *xpath.Expr, nav *htmlquery.NodeNavigator) []*html.Node {
	var elems []*html.Node
	iter := expr.Select(nav)
	for iter.MoveNext() {
		nav, ok := iter.Current().(*htmlquery.NodeNavigator)
		if !ok || nav.NodeType() != xpath.ElementNode {
			continue
		}
		elems = append(elems, nav.Current())
	}
	return elems
}

// NthAncestor returns the n-th parent element of every subject match.
// Subjects with fewer than n element ancestors are omitted.
func (e *Evaluator) NthAncestor(subject string, n int, root *html.Node) ([]*html.Node, error) {
	nodes, err := e.query(subject, root)
	if err != nil {
		return nil, fmt.Errorf("nthAncestor(%q): %w", subject, err)
	}

	var out []*html.Node
	for _, node := range nodes {
		for i := 0; i < n && node != nil; i++ {
			node = dom.ParentElement(node)
		}
		if node != nil {
			out = append(out, node)
		}
	}
	return out, nil
}
