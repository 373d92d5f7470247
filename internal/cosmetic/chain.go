package cosmetic

import (
	"fmt"

	"go.uber.org/zap"
)

// HideIfChain hides every subject match for which m, queried with
// chainSelector and chainOperand under that match, returns a non-empty result.
func (e *Evaluator) HideIfChain(subject, chainSelector, chainOperand string, m Matcher) error {
	return e.hideIfChain(subject, chainSelector, chainOperand, m, true)
}

// HideIfNotChain hides every subject match for which m returns nothing.
func (e *Evaluator) HideIfNotChain(subject, chainSelector, chainOperand string, m Matcher) error {
	return e.hideIfChain(subject, chainSelector, chainOperand, m, false)
}

func (e *Evaluator) hideIfChain(subject, chainSelector, chainOperand string, m Matcher, want bool) error {
	op := "hideIfChain"
	if !want {
		op = "hideIfNotChain"
	}
	if m == nil {
		return fmt.Errorf("%s: matcher is nil", op)
	}
	chainSelector = AddScopeIfNeeded(chainSelector)

	nodes, err := e.query(subject, nil)
	if err != nil {
		return fmt.Errorf("%s(%q): %w", op, subject, err)
	}

	hidden := 0
	for _, n := range nodes {
		result, err := m(chainSelector, chainOperand, n)
		if err != nil {
			return fmt.Errorf("%s(%q): %w", op, subject, err)
		}
		if (len(result) > 0) == want && e.hide(n) {
			hidden++
		}
	}
	e.logger.Debug("Evaluated chain.",
		zap.String("op", op),
		zap.String("subject", subject),
		zap.String("chain_selector", chainSelector),
		zap.Int("candidates", len(nodes)),
		zap.Int("hidden", hidden),
	)
	return nil
}
