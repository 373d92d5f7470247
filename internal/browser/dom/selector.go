// internal/browser/dom/selector.go
package dom

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ScopeAnchor is the pseudo-class that refers to the context node of a query.
const ScopeAnchor = ":scope"

// Combinator defines the relationship between two compound selectors.
type Combinator int

const (
	CombinatorNone            Combinator = iota // No combinator (first compound)
	CombinatorDescendant                        // Space
	CombinatorChild                             // >
	CombinatorAdjacentSibling                   // +
	CombinatorGeneralSibling                    // ~
)

// Selector is a compiled selector list bound to nothing in particular. Bind
// it to a context node with MatcherFor before matching scoped parts.
type Selector struct {
	text  string
	parts []selectorPart
}

// selectorPart is one complex selector of a comma-separated list.
type selectorPart struct {
	// global is set for selectors that match in whole-document context.
	global cascadia.Sel
	// relative is set for selectors anchored at the context node.
	relative *relativeSelector
}

// relativeSelector is a complex selector whose leftmost compound is the
// context node (either written as :scope or implied by a leading combinator).
type relativeSelector struct {
	// anchor constrains the context node itself, nil when the anchor is a bare :scope.
	anchor    cascadia.Sel
	compounds []compound
}

type compound struct {
	combinator Combinator
	sel        cascadia.Sel
}

// String returns the selector text the Selector was compiled from.
func (s *Selector) String() string {
	return s.text
}

// CompileSelector compiles a selector list the way Element.querySelectorAll
// understands it, including :scope-anchored and combinator-leading parts.
func CompileSelector(text string) (*Selector, error) {
	rawParts, err := splitTopLevel(text, ',')
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", text, err)
	}
	sel := &Selector{text: text}
	for _, raw := range rawParts {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil, fmt.Errorf("invalid selector %q: empty selector in list", text)
		}
		part, err := compilePart(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", text, err)
		}
		sel.parts = append(sel.parts, part)
	}
	return sel, nil
}

func compilePart(raw string) (selectorPart, error) {
	tokens, err := tokenizeComplex(raw)
	if err != nil {
		return selectorPart{}, err
	}
	first := tokens[0]

	switch {
	case first.combinator != CombinatorNone:
		// A leading combinator is relative to the context node.
		rel, err := compileRelative(nil, tokens)
		return selectorPart{relative: rel}, err
	case strings.HasPrefix(strings.ToLower(first.text), ScopeAnchor):
		rest := first.text[len(ScopeAnchor):]
		var anchor cascadia.Sel
		if rest != "" {
			if anchor, err = cascadia.Parse("*" + rest); err != nil {
				return selectorPart{}, err
			}
		}
		rel, err := compileRelative(anchor, tokens[1:])
		return selectorPart{relative: rel}, err
	default:
		global, err := cascadia.Parse(raw)
		if err != nil {
			return selectorPart{}, err
		}
		return selectorPart{global: global}, nil
	}
}

func compileRelative(anchor cascadia.Sel, tokens []token) (*relativeSelector, error) {
	rel := &relativeSelector{anchor: anchor}
	for _, tok := range tokens {
		if strings.Contains(strings.ToLower(tok.text), ScopeAnchor) {
			return nil, fmt.Errorf("%s is only supported as the leftmost compound", ScopeAnchor)
		}
		sel, err := cascadia.Parse(tok.text)
		if err != nil {
			return nil, err
		}
		combinator := tok.combinator
		if combinator == CombinatorNone {
			combinator = CombinatorDescendant
		}
		rel.compounds = append(rel.compounds, compound{combinator: combinator, sel: sel})
	}
	return rel, nil
}

// Matcher reports whether nodes match a Selector evaluated against a context node.
type Matcher struct {
	sel   *Selector
	scope *html.Node
}

// MatcherFor binds the selector to a context node.
// For a document the scope is its document element, as with :root.
func (s *Selector) MatcherFor(scope *html.Node) Matcher {
	if scope != nil && scope.Type == html.DocumentNode {
		if root := documentElement(scope); root != nil {
			scope = root
		}
	}
	return Matcher{sel: s, scope: scope}
}

func documentElement(doc *html.Node) *html.Node {
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// Match implements cascadia.Matcher.
func (m Matcher) Match(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, part := range m.sel.parts {
		if part.global != nil {
			if part.global.Match(n) {
				return true
			}
			continue
		}
		if part.relative.match(n, m.scope) {
			return true
		}
	}
	return false
}

func (r *relativeSelector) match(n, scope *html.Node) bool {
	if len(r.compounds) == 0 {
		// A bare :scope never matches a descendant.
		return false
	}
	return r.matchAt(n, scope, len(r.compounds)-1)
}

// matchAt matches compound index against node and walks the combinators
// leftwards until the anchor is reached.
func (r *relativeSelector) matchAt(n, scope *html.Node, index int) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	current := r.compounds[index]
	if !current.sel.Match(n) {
		return false
	}

	next := func(candidate *html.Node) bool {
		if index == 0 {
			return r.isAnchor(candidate, scope)
		}
		return r.matchAt(candidate, scope, index-1)
	}

	switch current.combinator {
	case CombinatorChild:
		return next(n.Parent)
	case CombinatorAdjacentSibling:
		return next(previousElementSibling(n))
	case CombinatorGeneralSibling:
		for sibling := previousElementSibling(n); sibling != nil; sibling = previousElementSibling(sibling) {
			if next(sibling) {
				return true
			}
		}
		return false
	default:
		for parent := n.Parent; parent != nil; parent = parent.Parent {
			if next(parent) {
				return true
			}
		}
		return false
	}
}

func (r *relativeSelector) isAnchor(n, scope *html.Node) bool {
	if n == nil || n != scope {
		return false
	}
	if r.anchor == nil {
		return true
	}
	return n.Type == html.ElementNode && r.anchor.Match(n)
}

func previousElementSibling(node *html.Node) *html.Node {
	for sibling := node.PrevSibling; sibling != nil; sibling = sibling.PrevSibling {
		if sibling.Type == html.ElementNode {
			return sibling
		}
	}
	return nil
}

// -- Tokenizer --

// token is one compound selector and the combinator that precedes it.
type token struct {
	combinator Combinator
	text       string
}

// tokenizeComplex splits a complex selector at top-level combinators.
// Brackets, parentheses, quotes and escapes are respected.
func tokenizeComplex(s string) ([]token, error) {
	var (
		tokens  []token
		current strings.Builder
		comb    = CombinatorNone
		depth   int
	)
	flush := func() {
		if current.Len() == 0 {
			return
		}
		tokens = append(tokens, token{combinator: comb, text: current.String()})
		current.Reset()
		comb = CombinatorNone
	}

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '\\':
			current.WriteByte(ch)
			if i+1 < len(s) {
				i++
				current.WriteByte(s[i])
			}
		case ch == '"' || ch == '\'':
			end, err := stringEnd(s, i)
			if err != nil {
				return nil, err
			}
			current.WriteString(s[i : end+1])
			i = end
		case ch == '(' || ch == '[':
			depth++
			current.WriteByte(ch)
		case ch == ')' || ch == ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced %q", ch)
			}
			current.WriteByte(ch)
		case depth == 0 && isSelectorSpace(ch):
			flush()
			if len(tokens) > 0 && comb == CombinatorNone {
				comb = CombinatorDescendant
			}
		case depth == 0 && (ch == '>' || ch == '+' || ch == '~'):
			flush()
			if comb != CombinatorNone && comb != CombinatorDescendant {
				return nil, fmt.Errorf("consecutive combinators")
			}
			switch ch {
			case '>':
				comb = CombinatorChild
			case '+':
				comb = CombinatorAdjacentSibling
			default:
				comb = CombinatorGeneralSibling
			}
		default:
			current.WriteByte(ch)
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced brackets")
	}
	if current.Len() == 0 && comb != CombinatorNone && comb != CombinatorDescendant {
		return nil, fmt.Errorf("dangling combinator")
	}
	flush()
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty selector")
	}
	return tokens, nil
}

// splitTopLevel splits s at sep when sep is outside brackets and quotes.
func splitTopLevel(s string, sep byte) ([]string, error) {
	var (
		parts []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case ch == '\\':
			i++
		case ch == '"' || ch == '\'':
			end, err := stringEnd(s, i)
			if err != nil {
				return nil, err
			}
			i = end
		case ch == '(' || ch == '[':
			depth++
		case ch == ')' || ch == ']':
			depth--
		case ch == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:]), nil
}

// stringEnd returns the index of the quote closing the string that starts at
// s[start]. Backslash escapes inside the string are skipped.
func stringEnd(s string, start int) (int, error) {
	quote := s[start]
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case quote:
			return i, nil
		}
	}
	return 0, fmt.Errorf("unterminated string")
}

func isSelectorSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f'
}
