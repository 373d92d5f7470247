// internal/cosmetic/css.go
package cosmetic

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// MatchesCSS returns the matches of selector whose computed style satisfies
// operand, written as "property: pattern". An operand without a colon
// yields an empty result.
func (e *Evaluator) MatchesCSS(selector, operand string, root *html.Node) ([]*html.Node, error) {
	return e.matchesCSS(selector, operand, root, "")
}

// MatchesCSSBefore is MatchesCSS against the ::before pseudo-element.
func (e *Evaluator) MatchesCSSBefore(selector, operand string, root *html.Node) ([]*html.Node, error) {
	return e.matchesCSS(selector, operand, root, "before")
}

// MatchesCSSAfter is MatchesCSS against the ::after pseudo-element.
func (e *Evaluator) MatchesCSSAfter(selector, operand string, root *html.Node) ([]*html.Node, error) {
	return e.matchesCSS(selector, operand, root, "after")
}

func (e *Evaluator) matchesCSS(selector, operand string, root *html.Node, pseudo string) ([]*html.Node, error) {
	nodes, err := e.query(selector, root)
	if err != nil {
		return nil, fmt.Errorf("matchesCSS(%q): %w", selector, err)
	}
	if len(nodes) == 0 {
		return nil, nil
	}

	property, pattern, ok := strings.Cut(operand, ":")
	if !ok {
		return nil, nil
	}
	property, pattern = strings.TrimSpace(property), strings.TrimSpace(pattern)

	re, err := e.compilePattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("matchesCSS(%q): %w", selector, err)
	}

	styles := e.resolver()
	var out []*html.Node
	for _, n := range nodes {
		value := styles.ComputedStyle(n, pseudo).Get(property)
		matched, err := search(re, value)
		if err != nil {
			return nil, fmt.Errorf("matchesCSS(%q): %w", selector, err)
		}
		if matched {
			out = append(out, n)
		}
	}
	return out, nil
}
