// internal/browser/jsbind/node.go
package jsbind

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/procfilter/internal/browser/dom"
)

// nodeRefKey is the non-enumerable property holding the Go node of a wrapper.
const nodeRefKey = "__go_node_wrapper__"

// nodeRef is stored in the hidden property so unwrapping survives Export.
type nodeRef struct {
	node *html.Node
}

// WrapNode converts a node into its JS object. The same node always yields
// the same object within one runtime.
func (b *Bridge) WrapNode(node *html.Node) goja.Value {
	if node == nil {
		return goja.Null()
	}
	if obj, ok := b.wrappers[node]; ok {
		return obj
	}

	obj := b.vm.NewObject()
	if err := obj.DefineDataProperty(nodeRefKey, b.vm.ToValue(&nodeRef{node: node}), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
		b.logger.Error("Failed to tag node wrapper", zap.Error(err))
	}
	b.wrappers[node] = obj

	_ = obj.Set("nodeType", nodeType(node))
	_ = obj.Set("nodeName", dom.NodeName(node))
	b.defineGetter(obj, "parentElement", func() goja.Value { return b.WrapNode(dom.ParentElement(node)) })
	b.defineGetter(obj, "textContent", func() goja.Value { return b.vm.ToValue(dom.TextContent(node)) })
	_ = obj.Set("querySelector", b.querySelector(node))
	_ = obj.Set("querySelectorAll", b.querySelectorAll(node))

	if node.Type == html.ElementNode {
		_ = obj.Set("tagName", strings.ToUpper(node.Data))
		b.defineGetter(obj, "id", func() goja.Value { return b.vm.ToValue(attr(node, "id")) })
		b.defineGetter(obj, "className", func() goja.Value { return b.vm.ToValue(attr(node, "class")) })
		b.defineGetter(obj, "outerHTML", func() goja.Value { return b.vm.ToValue(dom.OuterHTML(node)) })
		_ = obj.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
			v, ok := dom.Attr(node, call.Argument(0).String())
			if !ok {
				return goja.Null()
			}
			return b.vm.ToValue(v)
		})
	}
	return obj
}

// WrapNodeList converts nodes into a JS array.
func (b *Bridge) WrapNodeList(nodes []*html.Node) goja.Value {
	wrapped := make([]interface{}, len(nodes))
	for i, n := range nodes {
		wrapped[i] = b.WrapNode(n)
	}
	return b.vm.NewArray(wrapped...)
}

// UnwrapNode returns the node behind a wrapper, or false for anything else.
func (b *Bridge) UnwrapNode(val goja.Value) (*html.Node, bool) {
	if isAbsent(val) {
		return nil, false
	}
	obj, ok := val.(*goja.Object)
	if !ok {
		return nil, false
	}
	v := obj.Get(nodeRefKey)
	if v == nil {
		return nil, false
	}
	ref, ok := v.Export().(*nodeRef)
	if !ok || ref == nil {
		return nil, false
	}
	return ref.node, true
}

// nodesFrom reads an array-like JS value. Entries that are not nodes stay as
// nil so the length matches what the script returned.
func (b *Bridge) nodesFrom(val goja.Value) []*html.Node {
	if isAbsent(val) {
		return nil
	}
	if n, ok := b.UnwrapNode(val); ok {
		return []*html.Node{n}
	}
	obj := val.ToObject(b.vm)
	length := obj.Get("length")
	if isAbsent(length) {
		return nil
	}
	count := int(length.ToInteger())
	nodes := make([]*html.Node, 0, count)
	for i := 0; i < count; i++ {
		n, _ := b.UnwrapNode(obj.Get(fmt.Sprint(i)))
		nodes = append(nodes, n)
	}
	return nodes
}

func (b *Bridge) querySelector(ctx *html.Node) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		n, err := b.ev.Document().QuerySelector(ctx, call.Argument(0).String())
		if err != nil {
			panic(b.vm.NewGoError(err))
		}
		return b.WrapNode(n)
	}
}

func (b *Bridge) querySelectorAll(ctx *html.Node) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		nodes, err := b.ev.Document().QuerySelectorAll(ctx, call.Argument(0).String())
		if err != nil {
			panic(b.vm.NewGoError(err))
		}
		return b.WrapNodeList(nodes)
	}
}

func (b *Bridge) defineGetter(obj *goja.Object, name string, getter func() goja.Value) {
	getterFunc := b.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return getter()
	})
	if err := obj.DefineAccessorProperty(name, getterFunc, goja.Undefined(), goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		b.logger.Error("Failed to define getter", zap.String("property", name), zap.Error(err))
	}
}

func nodeType(n *html.Node) int {
	switch n.Type {
	case html.ElementNode:
		return 1
	case html.TextNode:
		return 3
	case html.CommentNode:
		return 8
	case html.DocumentNode:
		return 9
	case html.DoctypeNode:
		return 10
	}
	return 0
}

func attr(n *html.Node, key string) string {
	v, _ := dom.Attr(n, key)
	return v
}

func isAbsent(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}
