package cosmetic

import (
	"fmt"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/procfilter/internal/browser/dom"
)

// HasText returns the matches of selector under root whose text content
// contains a match for pattern, in document order.
func (e *Evaluator) HasText(selector, pattern string, root *html.Node) ([]*html.Node, error) {
	nodes, err := e.query(selector, root)
	if err != nil {
		return nil, fmt.Errorf("hasText(%q): %w", selector, err)
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	re, err := e.compilePattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("hasText(%q): %w", selector, err)
	}

	var out []*html.Node
	for _, n := range nodes {
		ok, err := search(re, dom.TextContent(n))
		if err != nil {
			return nil, fmt.Errorf("hasText(%q): %w", selector, err)
		}
		if ok {
			out = append(out, n)
		}
	}
	return out, nil
}
