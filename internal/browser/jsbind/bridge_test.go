// internal/browser/jsbind/bridge_test.go
package jsbind

import (
	"fmt"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/procfilter/internal/browser/dom"
	"github.com/xkilldash9x/procfilter/internal/browser/parser"
	"github.com/xkilldash9x/procfilter/internal/browser/style"
	"github.com/xkilldash9x/procfilter/internal/config"
	"github.com/xkilldash9x/procfilter/internal/cosmetic"
)

const testPage = `<html><head></head><body>
<div id="a"><span id="a1">ad</span></div>
<div id="b"><p id="b1"><span id="b2">content</span></p></div>
<div id="c" class="sponsor"><em id="c1">Sponsored</em></div>
<div id="d" data-kind="plain"></div>
</body></html>`

const testCSS = `.sponsor::before { content: "x"; }`

// -- Test Setup Utilities --

type TestEnvironment struct {
	Bridge *Bridge
	Doc    *dom.Document
	Queue  *cosmetic.TaskQueue
	VM     *goja.Runtime
	T      *testing.T
}

func SetupTest(t *testing.T) *TestEnvironment {
	t.Helper()
	logger := zaptest.NewLogger(t)
	doc, err := dom.ParseString(testPage)
	require.NoError(t, err)

	engine := style.NewEngine()
	engine.AddAuthorSheet(parser.NewParser(testCSS).Parse())
	queue := cosmetic.NewTaskQueue()
	ev := cosmetic.New(config.NewDefaultConfig().Filter, logger, doc, engine, queue)

	vm := goja.New()
	bridge := NewBridge(ev, logger)
	require.NoError(t, bridge.BindToRuntime(vm))

	return &TestEnvironment{Bridge: bridge, Doc: doc, Queue: queue, VM: vm, T: t}
}

// MustRunJS runs a script and fails the test on error.
func (te *TestEnvironment) MustRunJS(script string) goja.Value {
	te.T.Helper()
	val, err := te.VM.RunString(script)
	require.NoError(te.T, err)
	return val
}

// Hidden lists the ids of hidden elements in document order.
func (te *TestEnvironment) Hidden() []string {
	var out []string
	for _, n := range te.Doc.Elements() {
		if dom.IsHidden(n, config.DefaultHideStyle) {
			id, _ := dom.Attr(n, "id")
			out = append(out, id)
		}
	}
	return out
}

func ids(t *testing.T, v goja.Value) []string {
	t.Helper()
	items, ok := v.Export().([]interface{})
	require.True(t, ok, "expected an array, got %T", v.Export())
	var out []string
	for _, item := range items {
		out = append(out, fmt.Sprint(item))
	}
	return out
}

// -- Test Cases --

func TestHasText_StringsAndRegExps(t *testing.T) {
	te := SetupTest(t)

	assert.Equal(t, "a1", te.MustRunJS(`hasText('span', 'ad')[0].id`).String())
	assert.Equal(t, int64(1), te.MustRunJS(`hasText('em', /sponsored/i).length`).ToInteger())
	assert.Equal(t, int64(0), te.MustRunJS(`hasText('em', 'sponsored').length`).ToInteger())
	assert.Equal(t, int64(1), te.MustRunJS(`hasText('span', 'content', document.querySelector('#b')).length`).ToInteger())
	assert.Equal(t, int64(0), te.MustRunJS(`hasText('span', 'content', document.querySelector('#a')).length`).ToInteger())
	assert.Equal(t, int64(1), te.MustRunJS(`hasText('span', 'ad', document).length`).ToInteger())
	assert.Empty(t, te.Hidden())
}

func TestHideIfHas(t *testing.T) {
	te := SetupTest(t)

	te.MustRunJS(`hideIfHas('div', '> span'); hideIfNotHas('div', 'span, em')`)
	assert.Equal(t, []string{"a", "d"}, te.Hidden())
}

func TestHideIfHas_UniversalIsDeferred(t *testing.T) {
	te := SetupTest(t)

	te.MustRunJS(`hideIfHas('*', '> em')`)
	assert.Empty(t, te.Hidden())
	assert.Equal(t, 1, te.Queue.Drain())
	assert.Equal(t, []string{"c"}, te.Hidden())
}

func TestStyleAndStructuralMatchers(t *testing.T) {
	te := SetupTest(t)

	assert.Equal(t, []string{"c"}, ids(t, te.MustRunJS(`matchesCSSBefore('div', 'content:"x"').map(n => n.id)`)))
	assert.Empty(t, ids(t, te.MustRunJS(`matchesCSSAfter('div', 'content:"x"').map(n => n.id)`)))
	assert.Empty(t, ids(t, te.MustRunJS(`matchesCSS('div', 'no colon here').map(n => n.id)`)))
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(t, te.MustRunJS(`matchesCSS('div', 'display: block').map(n => n.id)`)))
	assert.Equal(t, []string{"a", "b1"}, ids(t, te.MustRunJS(`doXPath('span', '..').map(n => n.id)`)))
	assert.Equal(t, []string{"b"}, ids(t, te.MustRunJS(`nthAncestor('span', 2, document.querySelector('#b')).map(n => n.id)`)))
}

func TestHideIfChain(t *testing.T) {
	te := SetupTest(t)

	te.MustRunJS(`hideIfChain('div', 'span', /AD/i, hasText)`)
	assert.Equal(t, []string{"a"}, te.Hidden())

	te.MustRunJS(`
		var seen = [];
		hideIfNotChain('div', '> p', 'unused', function(sel, operand, root) {
			seen.push(sel + '|' + operand + '|' + root.id);
			return root.id === 'd' ? null : root.querySelectorAll(sel);
		});
	`)
	assert.Equal(t, []string{"a", "c", "d"}, te.Hidden())
	assert.Equal(t, ":scope > p|unused|a", te.MustRunJS(`seen[0]`).String())
}

func TestHideNodes(t *testing.T) {
	te := SetupTest(t)

	te.MustRunJS(`hideNodes(hasText, 'span', 'content')`)
	assert.Equal(t, []string{"b2"}, te.Hidden())

	te.MustRunJS(`hideNodes([null, document.querySelector('#d'), 42]); hideNodes(null); hideNodes(undefined)`)
	assert.Equal(t, []string{"b2", "d"}, te.Hidden())
}

func TestNodeWrappers(t *testing.T) {
	te := SetupTest(t)

	assert.True(t, te.MustRunJS(`document.querySelector('#a') === hasText('span', 'ad')[0].parentElement`).ToBoolean())
	assert.Equal(t, "DIV", te.MustRunJS(`document.querySelector('#d').tagName`).String())
	assert.Equal(t, "plain", te.MustRunJS(`document.querySelector('#d').getAttribute('data-kind')`).String())
	assert.True(t, goja.IsNull(te.MustRunJS(`document.querySelector('#d').getAttribute('missing')`)))
	assert.Equal(t, "sponsor", te.MustRunJS(`document.querySelector('#c').className`).String())
	assert.Equal(t, "BODY", te.MustRunJS(`document.body.nodeName`).String())
	assert.Equal(t, "#document", te.MustRunJS(`document.nodeName`).String())
	assert.Equal(t, int64(9), te.MustRunJS(`document.nodeType`).ToInteger())
	assert.Equal(t, "Sponsored", te.MustRunJS(`document.querySelector('#c').textContent`).String())
	assert.False(t, te.MustRunJS(`Object.keys(document.querySelector('#a')).includes('__go_node_wrapper__')`).ToBoolean())
	assert.Equal(t, ":scope > a", te.MustRunJS(`addScopeIfNeeded('> a')`).String())
}

func TestErrorsAreThrown(t *testing.T) {
	te := SetupTest(t)

	for _, script := range []string{
		`doXPath('div', '//[')`,
		`hasText('span', '(')`,
		`hideIfHas('div[', 'span')`,
		`hideIfChain('div', 'span', 'x', 'not a function')`,
		`document.querySelectorAll('div >')`,
	} {
		_, err := te.VM.RunString(script)
		assert.Error(t, err, script)
	}

	caught := te.MustRunJS(`try { doXPath('div', '//['); 'no' } catch (e) { 'caught' }`)
	assert.Equal(t, "caught", caught.String())
}

func TestBindToRuntime_SingleRuntime(t *testing.T) {
	te := SetupTest(t)
	assert.NoError(t, te.Bridge.BindToRuntime(te.VM))
	assert.Error(t, te.Bridge.BindToRuntime(goja.New()))
}

func TestUnwrapNode_PlainValues(t *testing.T) {
	te := SetupTest(t)

	for _, script := range []string{`[]`, `({})`, `[document.querySelector('#d')]`, `'text'`, `null`} {
		t.Run(script, func(t *testing.T) {
			var ok bool
			assert.NotPanics(t, func() { _, ok = te.Bridge.UnwrapNode(te.MustRunJS(script)) })
			assert.False(t, ok)
		})
	}

	n, ok := te.Bridge.UnwrapNode(te.MustRunJS(`document.querySelector('#d')`))
	require.True(t, ok)
	id, _ := dom.Attr(n, "id")
	assert.Equal(t, "d", id)
}

func TestArraysFromScripts(t *testing.T) {
	te := SetupTest(t)

	assert.NotPanics(t, func() {
		te.MustRunJS(`hideNodes([document.querySelector('#d')])`)
	})
	assert.NotPanics(t, func() {
		te.MustRunJS(`hideIfChain('div', 'span', 'ad', hasText)`)
	})
	assert.Equal(t, []string{"a", "d"}, te.Hidden())
	assert.Equal(t, int64(1), te.MustRunJS(`hasText('span', '/\\u{61}d/u').length`).ToInteger())
}
