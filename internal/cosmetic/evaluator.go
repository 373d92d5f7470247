// internal/cosmetic/evaluator.go
package cosmetic

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/procfilter/internal/browser/dom"
	"github.com/xkilldash9x/procfilter/internal/browser/style"
	"github.com/xkilldash9x/procfilter/internal/config"
)

// Matcher is a nested predicate usable inside a chain. It queries selector
// under root (nil means the whole document) and returns the matches that
// satisfy operand.
type Matcher func(selector, operand string, root *html.Node) ([]*html.Node, error)

// StyleResolver computes the style of an element or one of its pseudo-elements.
type StyleResolver interface {
	ComputedStyle(node *html.Node, pseudo string) *style.Computed
}

// Scheduler queues a unit of work to run after the current turn. Scheduled
// tasks are fire and forget.
type Scheduler interface {
	Schedule(task func())
}

// Matcher kinds accepted by Evaluator.Matcher.
const (
	KindHasText          = "has-text"
	KindMatchesCSS       = "matches-css"
	KindMatchesCSSBefore = "matches-css-before"
	KindMatchesCSSAfter  = "matches-css-after"
	KindXPath            = "xpath"
	KindNthAncestor      = "nth-ancestor"
)

// Evaluator runs procedural cosmetic filters against one document.
//
// Every entry point is independent: it queries the subject once, evaluates the
// predicate per candidate and hides matches in place. Nothing is retained
// between calls apart from the document itself.
type Evaluator struct {
	cfg    config.FilterConfig
	logger *zap.Logger
	doc    *dom.Document
	styles StyleResolver
	sched  Scheduler
}

// New creates an Evaluator bound to doc. When sched is nil deferred work is
// queued on a private TaskQueue reachable through Scheduler().
func New(cfg config.FilterConfig, logger *zap.Logger, doc *dom.Document, styles StyleResolver, sched Scheduler) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HideStyle == "" {
		cfg.HideStyle = config.DefaultHideStyle
	}
	if cfg.DeferredMode == "" {
		cfg.DeferredMode = config.DeferredStructural
	}
	if styles == nil {
		styles = style.NewEngine()
	}
	if sched == nil {
		sched = NewTaskQueue()
	}
	return &Evaluator{
		cfg:    cfg,
		logger: logger.Named("cosmetic"),
		doc:    doc,
		styles: styles,
		sched:  sched,
	}
}

// Document returns the document the evaluator operates on.
func (e *Evaluator) Document() *dom.Document {
	return e.doc
}

// Scheduler returns the scheduler deferred passes are queued on.
func (e *Evaluator) Scheduler() Scheduler {
	return e.sched
}

// HideStyle is the inline style written to hidden elements.
func (e *Evaluator) HideStyle() string {
	return e.cfg.HideStyle
}

// Matcher resolves a matcher kind to a Matcher for use in chains and batches.
func (e *Evaluator) Matcher(kind string) (Matcher, error) {
	switch kind {
	case KindHasText:
		return e.HasText, nil
	case KindMatchesCSS:
		return e.MatchesCSS, nil
	case KindMatchesCSSBefore:
		return e.MatchesCSSBefore, nil
	case KindMatchesCSSAfter:
		return e.MatchesCSSAfter, nil
	case KindXPath:
		return e.XPath, nil
	case KindNthAncestor:
		return func(selector, operand string, root *html.Node) ([]*html.Node, error) {
			n, err := strconv.Atoi(operand)
			if err != nil {
				return nil, fmt.Errorf("nth-ancestor depth %q is not an integer: %w", operand, err)
			}
			return e.NthAncestor(selector, n, root)
		}, nil
	}
	return nil, fmt.Errorf("unknown matcher kind %q", kind)
}

// query runs the subject query for one filter instance.
func (e *Evaluator) query(subject string, root *html.Node) ([]*html.Node, error) {
	nodes, err := e.doc.QuerySelectorAll(root, subject)
	if err != nil {
		return nil, fmt.Errorf("subject query failed: %w", err)
	}
	return nodes, nil
}

// resolver returns a style resolver for one pass. Engines hand out a
// memoizing resolver; other implementations are used as they are.
func (e *Evaluator) resolver() StyleResolver {
	if engine, ok := e.styles.(*style.Engine); ok {
		return engine.NewResolver()
	}
	return e.styles
}
