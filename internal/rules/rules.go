// internal/rules/rules.go
package rules

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/xkilldash9x/procfilter/internal/cosmetic"
)

// Op names a filter primitive in a batch file.
type Op string

const (
	OpHideIfHas        Op = "hide-if-has"
	OpHideIfNotHas     Op = "hide-if-not-has"
	OpHasText          Op = "has-text"
	OpMatchesCSS       Op = "matches-css"
	OpMatchesCSSBefore Op = "matches-css-before"
	OpMatchesCSSAfter  Op = "matches-css-after"
	OpXPath            Op = "xpath"
	OpNthAncestor      Op = "nth-ancestor"
	OpHideIfChain      Op = "hide-if-chain"
	OpHideIfNotChain   Op = "hide-if-not-chain"
)

// Batch is a list of compiled filter instances.
type Batch struct {
	Filters []Filter `yaml:"filters"`
}

// Filter is one filter instance: a subject and the operand its op needs.
type Filter struct {
	Op      Op     `yaml:"op"`
	Subject string `yaml:"subject"`
	Target  string `yaml:"target,omitempty"`
	Pattern string `yaml:"pattern,omitempty"`
	Expr    string `yaml:"expr,omitempty"`
	Depth   *int   `yaml:"depth,omitempty"`
	Chain   *Chain `yaml:"chain,omitempty"`
}

// Chain is the nested matcher of a hide-if-chain filter.
type Chain struct {
	Op       Op     `yaml:"op"`
	Selector string `yaml:"selector"`
	Operand  string `yaml:"operand"`
}

func (f Filter) String() string {
	return fmt.Sprintf("%s(%q)", f.Op, f.Subject)
}

// Load decodes a batch. Unknown keys are rejected.
func Load(r io.Reader) (*Batch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule batch: %w", err)
	}
	var b Batch
	if err := yaml.UnmarshalWithOptions(data, &b, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("failed to decode rule batch: %w", err)
	}
	return &b, nil
}

// Validate checks every filter and reports all problems at once.
func (b *Batch) Validate() error {
	var errs []error
	for i, f := range b.Filters {
		if err := f.validate(); err != nil {
			errs = append(errs, fmt.Errorf("filters[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (f Filter) validate() error {
	if f.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	switch f.Op {
	case OpHideIfHas, OpHideIfNotHas:
		if f.Target == "" {
			return fmt.Errorf("%s requires target", f.Op)
		}
	case OpHasText, OpMatchesCSS, OpMatchesCSSBefore, OpMatchesCSSAfter:
		if f.Pattern == "" {
			return fmt.Errorf("%s requires pattern", f.Op)
		}
	case OpXPath:
		if f.Expr == "" {
			return fmt.Errorf("%s requires expr", f.Op)
		}
	case OpNthAncestor:
		if f.Depth == nil {
			return fmt.Errorf("%s requires depth", f.Op)
		}
	case OpHideIfChain, OpHideIfNotChain:
		if f.Chain == nil {
			return fmt.Errorf("%s requires chain", f.Op)
		}
		if f.Chain.Selector == "" {
			return fmt.Errorf("chain.selector is required")
		}
		if !isMatcherOp(f.Chain.Op) {
			return fmt.Errorf("chain.op %q is not a matcher", f.Chain.Op)
		}
	default:
		return fmt.Errorf("unknown op %q", f.Op)
	}
	return nil
}

func isMatcherOp(op Op) bool {
	switch op {
	case OpHasText, OpMatchesCSS, OpMatchesCSSBefore, OpMatchesCSSAfter, OpXPath, OpNthAncestor:
		return true
	}
	return false
}

// Apply runs every filter of the batch against ev. A failing filter is logged
// and does not stop the rest; all failures are returned joined.
func Apply(ev *cosmetic.Evaluator, b *Batch, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("rules")

	var errs []error
	for i, f := range b.Filters {
		if err := applyFilter(ev, f); err != nil {
			log.Warn("Filter failed.", zap.Int("index", i), zap.Stringer("filter", f), zap.Error(err))
			errs = append(errs, fmt.Errorf("filters[%d] %s: %w", i, f, err))
		}
	}
	log.Info("Applied rule batch.", zap.Int("filters", len(b.Filters)), zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

func applyFilter(ev *cosmetic.Evaluator, f Filter) error {
	if err := f.validate(); err != nil {
		return err
	}
	switch f.Op {
	case OpHideIfHas:
		return ev.HideIfHas(f.Subject, f.Target)
	case OpHideIfNotHas:
		return ev.HideIfNotHas(f.Subject, f.Target)
	case OpHideIfChain, OpHideIfNotChain:
		m, err := ev.Matcher(string(f.Chain.Op))
		if err != nil {
			return err
		}
		if f.Op == OpHideIfChain {
			return ev.HideIfChain(f.Subject, f.Chain.Selector, f.Chain.Operand, m)
		}
		return ev.HideIfNotChain(f.Subject, f.Chain.Selector, f.Chain.Operand, m)
	}

	m, err := ev.Matcher(string(f.Op))
	if err != nil {
		return err
	}
	return ev.HideResult(m, f.Subject, f.operand())
}

// operand returns the argument a standalone matcher op is called with.
func (f Filter) operand() string {
	switch f.Op {
	case OpXPath:
		return f.Expr
	case OpNthAncestor:
		return strconv.Itoa(*f.Depth)
	}
	return f.Pattern
}
