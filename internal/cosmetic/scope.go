package cosmetic

import (
	"regexp"

	"github.com/xkilldash9x/procfilter/internal/browser/dom"
)

var needScope = regexp.MustCompile(`^\s*[+>~]`)

// AddScopeIfNeeded anchors a combinator-leading fragment such as "> .ad" at
// the context node by prefixing it with ":scope ".
func AddScopeIfNeeded(s string) string {
	if needScope.MatchString(s) {
		return dom.ScopeAnchor + " " + s
	}
	return s
}
