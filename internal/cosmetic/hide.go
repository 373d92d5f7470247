package cosmetic

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/procfilter/internal/browser/dom"
)

// HideNodes hides every non-nil node and returns how many changed.
func (e *Evaluator) HideNodes(nodes []*html.Node) int {
	hidden := 0
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if e.hide(n) {
			hidden++
		}
	}
	return hidden
}

// HideResult evaluates m over the whole document and hides what it returns.
// A nil result is ignored.
func (e *Evaluator) HideResult(m Matcher, selector, operand string) error {
	if m == nil {
		return fmt.Errorf("hideNodes: matcher is nil")
	}
	nodes, err := m(selector, operand, nil)
	if err != nil {
		return fmt.Errorf("hideNodes(%q): %w", selector, err)
	}
	hidden := e.HideNodes(nodes)
	e.logger.Debug("Applied matcher result.",
		zap.String("selector", selector),
		zap.Int("matched", len(nodes)),
		zap.Int("hidden", hidden),
	)
	return nil
}

func (e *Evaluator) hide(n *html.Node) bool {
	return dom.Hide(n, e.cfg.HideStyle)
}
