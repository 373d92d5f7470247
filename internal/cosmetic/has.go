// internal/cosmetic/has.go
package cosmetic

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/procfilter/internal/browser/dom"
	"github.com/xkilldash9x/procfilter/internal/config"
)

// UniversalSubject is the subject that triggers the deferred pass.
const UniversalSubject = "*"

// HideIfHas hides every subject match that contains target (":has").
func (e *Evaluator) HideIfHas(subject, target string) error {
	return e.hideIfHas(subject, target, true)
}

// HideIfNotHas hides every subject match that does not contain target.
func (e *Evaluator) HideIfNotHas(subject, target string) error {
	return e.hideIfHas(subject, target, false)
}

func (e *Evaluator) hideIfHas(subject, target string, want bool) error {
	op := opName(want)
	target = AddScopeIfNeeded(target)

	if strings.TrimSpace(subject) == UniversalSubject {
		e.sched.Schedule(func() { e.deferredPass(target, want) })
		e.logger.Debug("Deferred universal subject pass.", zap.String("op", op), zap.String("target", target))
		return nil
	}

	nodes, err := e.query(subject, nil)
	if err != nil {
		return fmt.Errorf("%s(%q): %w", op, subject, err)
	}
	if len(nodes) == 0 {
		return nil
	}

	sel, compileErr := dom.CompileSelector(target)
	if compileErr != nil {
		// Each node's sub-query fails on its own; all of them count as no match.
		e.logger.Debug("Target sub-query failed, treating as no match.",
			zap.String("op", op),
			zap.String("target", target),
			zap.Error(compileErr),
		)
	}

	hidden := 0
	for _, n := range nodes {
		has := compileErr == nil && e.doc.MatchFirst(n, sel) != nil
		if has == want && e.hide(n) {
			hidden++
		}
	}
	e.logger.Debug("Evaluated filter.",
		zap.String("op", op),
		zap.String("subject", subject),
		zap.String("target", target),
		zap.Int("candidates", len(nodes)),
		zap.Int("hidden", hidden),
	)
	return nil
}

// deferredPass is the document-wide variant used for the universal subject.
// It enumerates every element once, skipping everything up to and including
// BODY, and never reports errors to the caller.
func (e *Evaluator) deferredPass(target string, want bool) {
	op := opName(want)
	nodes := e.doc.Elements()
	start := 0
	for i, n := range nodes {
		if dom.NodeName(n) == "BODY" {
			start = i + 1
			break
		}
	}

	predicate := e.deferredPredicate(op, target)
	hidden := 0
	for _, n := range nodes[start:] {
		if predicate(n) == want && e.hide(n) {
			hidden++
		}
	}
	e.logger.Debug("Deferred pass finished.",
		zap.String("op", op),
		zap.String("mode", string(e.cfg.DeferredMode)),
		zap.Int("candidates", len(nodes)-start),
		zap.Int("hidden", hidden),
	)
}

func (e *Evaluator) deferredPredicate(op, target string) func(*html.Node) bool {
	if e.cfg.DeferredMode == config.DeferredHeuristic {
		styles := e.resolver()
		return func(n *html.Node) bool {
			cssText := styles.ComputedStyle(n, "").CSSText()
			return cssText != "" && strings.Contains(cssText, target)
		}
	}

	sel, err := dom.CompileSelector(target)
	if err != nil {
		e.logger.Debug("Target sub-query failed, treating as no match.",
			zap.String("op", op),
			zap.String("target", target),
			zap.Error(err),
		)
		return func(*html.Node) bool { return false }
	}
	return func(n *html.Node) bool {
		return e.doc.MatchFirst(n, sel) != nil
	}
}

func opName(want bool) string {
	if want {
		return "hideIfHas"
	}
	return "hideIfNotHas"
}
