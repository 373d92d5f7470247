// internal/browser/jsbind/bridge.go
package jsbind

import (
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/procfilter/internal/cosmetic"
)

// Bridge exposes the cosmetic filter primitives to compiled filter scripts.
// A Bridge belongs to exactly one goja runtime and must only be used from the
// goroutine that runs that runtime.
type Bridge struct {
	ev       *cosmetic.Evaluator
	logger   *zap.Logger
	vm       *goja.Runtime
	wrappers map[*html.Node]*goja.Object
}

// NewBridge creates a bridge for ev. Call BindToRuntime before use.
func NewBridge(ev *cosmetic.Evaluator, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		ev:       ev,
		logger:   logger.Named("jsbind"),
		wrappers: make(map[*html.Node]*goja.Object),
	}
}

// BindToRuntime installs the primitives and a minimal document object as globals.
func (b *Bridge) BindToRuntime(vm *goja.Runtime) error {
	if b.vm != nil && b.vm != vm {
		return fmt.Errorf("bridge is already bound to another runtime")
	}
	b.vm = vm

	doc := b.WrapNode(b.ev.Document().Root()).(*goja.Object)
	b.defineGetter(doc, "body", func() goja.Value { return b.WrapNode(b.ev.Document().Body()) })

	globals := map[string]interface{}{
		"document":         doc,
		"addScopeIfNeeded": b.addScopeIfNeeded,
		"hideIfHas":        b.hideIfHas(true),
		"hideIfNotHas":     b.hideIfHas(false),
		"hasText":          b.hasText,
		"matchesCSS":       b.styleMatcher(b.ev.MatchesCSS),
		"matchesCSSBefore": b.styleMatcher(b.ev.MatchesCSSBefore),
		"matchesCSSAfter":  b.styleMatcher(b.ev.MatchesCSSAfter),
		"doXPath":          b.doXPath,
		"nthAncestor":      b.nthAncestor,
		"hideIfChain":      b.hideIfChain(true),
		"hideIfNotChain":   b.hideIfChain(false),
		"hideNodes":        b.hideNodes,
	}
	for name, fn := range globals {
		if err := vm.Set(name, fn); err != nil {
			return fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}
	b.logger.Debug("Bound cosmetic filter globals.", zap.Int("count", len(globals)))
	return nil
}

// -- Globals --

func (b *Bridge) addScopeIfNeeded(call goja.FunctionCall) goja.Value {
	return b.vm.ToValue(cosmetic.AddScopeIfNeeded(call.Argument(0).String()))
}

func (b *Bridge) hideIfHas(want bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		subject, target := call.Argument(0).String(), call.Argument(1).String()
		var err error
		if want {
			err = b.ev.HideIfHas(subject, target)
		} else {
			err = b.ev.HideIfNotHas(subject, target)
		}
		b.throwIf(err)
		return goja.Undefined()
	}
}

func (b *Bridge) hasText(call goja.FunctionCall) goja.Value {
	nodes, err := b.ev.HasText(call.Argument(0).String(), b.pattern(call.Argument(1)), b.root(call.Argument(2)))
	b.throwIf(err)
	return b.WrapNodeList(nodes)
}

func (b *Bridge) styleMatcher(m cosmetic.Matcher) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		nodes, err := m(call.Argument(0).String(), call.Argument(1).String(), b.root(call.Argument(2)))
		b.throwIf(err)
		return b.WrapNodeList(nodes)
	}
}

func (b *Bridge) doXPath(call goja.FunctionCall) goja.Value {
	nodes, err := b.ev.XPath(call.Argument(0).String(), call.Argument(1).String(), b.root(call.Argument(2)))
	b.throwIf(err)
	return b.WrapNodeList(nodes)
}

func (b *Bridge) nthAncestor(call goja.FunctionCall) goja.Value {
	nodes, err := b.ev.NthAncestor(call.Argument(0).String(), int(call.Argument(1).ToInteger()), b.root(call.Argument(2)))
	b.throwIf(err)
	return b.WrapNodeList(nodes)
}

func (b *Bridge) hideIfChain(want bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		subject, chainSelector := call.Argument(0).String(), call.Argument(1).String()
		operand := call.Argument(2)
		m := b.callbackMatcher(call.Argument(3), operand)

		var err error
		if want {
			err = b.ev.HideIfChain(subject, chainSelector, operand.String(), m)
		} else {
			err = b.ev.HideIfNotChain(subject, chainSelector, operand.String(), m)
		}
		b.throwIf(err)
		return goja.Undefined()
	}
}

// hideNodes accepts either an array of nodes or a callback with its two
// arguments, mirroring how compiled filters call it.
func (b *Bridge) hideNodes(call goja.FunctionCall) goja.Value {
	first, subject := call.Argument(0), call.Argument(1)
	if goja.IsUndefined(subject) {
		b.ev.HideNodes(b.nodesFrom(first))
		return goja.Undefined()
	}
	m := b.callbackMatcher(first, call.Argument(2))
	b.throwIf(b.ev.HideResult(m, subject.String(), call.Argument(2).String()))
	return goja.Undefined()
}

// callbackMatcher adapts a JS callback into a Matcher. The raw operand is
// passed through so RegExp arguments keep their flags.
func (b *Bridge) callbackMatcher(callback, rawOperand goja.Value) cosmetic.Matcher {
	fn, ok := goja.AssertFunction(callback)
	if !ok {
		panic(b.vm.NewTypeError("callback is not a function"))
	}
	return func(selector, _ string, root *html.Node) ([]*html.Node, error) {
		rootVal := goja.Undefined()
		if root != nil {
			rootVal = b.WrapNode(root)
		}
		res, err := fn(goja.Undefined(), b.vm.ToValue(selector), rawOperand, rootVal)
		if err != nil {
			return nil, err
		}
		return b.nodesFrom(res), nil
	}
}

// -- Argument helpers --

// pattern converts a string or RegExp argument to a pattern the evaluator
// compiles. RegExp objects keep their flags.
func (b *Bridge) pattern(v goja.Value) string {
	if obj, ok := v.(*goja.Object); ok && obj.ClassName() == "RegExp" {
		return cosmetic.RegexLiteral(obj.Get("source").String(), obj.Get("flags").String())
	}
	if isAbsent(v) {
		return ""
	}
	return v.String()
}

// root unwraps an optional context node. Missing or unknown values, and the
// document object itself, mean the whole document.
func (b *Bridge) root(v goja.Value) *html.Node {
	n, ok := b.UnwrapNode(v)
	if !ok {
		return nil
	}
	return n
}

func (b *Bridge) throwIf(err error) {
	if err != nil {
		panic(b.vm.NewGoError(err))
	}
}
