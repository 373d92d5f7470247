// internal/cosmetic/pattern.go
package cosmetic

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// compilePattern compiles an ECMAScript regular expression. Plain strings are
// the expression source. A regex literal such as "/sponsor/i" carries its
// flags: i, m, s and u (or v) map to regexp2 options, while d, g and y have
// no effect on a single search.
func (e *Evaluator) compilePattern(pattern string) (*regexp2.Regexp, error) {
	source, opts, err := parsePattern(pattern)
	if err != nil {
		return nil, err
	}
	re, err := regexp2.Compile(source, opts)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if e.cfg.RegexTimeout > 0 {
		re.MatchTimeout = e.cfg.RegexTimeout
	}
	return re, nil
}

// RegexLiteral renders a source and flags pair in the literal form
// compilePattern understands.
func RegexLiteral(source, flags string) string {
	if source == "" {
		source = "(?:)"
	}
	return "/" + source + "/" + flags
}

// regexFlags are the flags a JavaScript regex literal may carry.
const regexFlags = "dgimsuvy"

func parsePattern(pattern string) (string, regexp2.RegexOptions, error) {
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	if len(pattern) < 2 || pattern[0] != '/' {
		return pattern, opts, nil
	}
	end := strings.LastIndexByte(pattern, '/')
	if end == 0 {
		return pattern, opts, nil
	}
	flags := pattern[end+1:]
	if strings.Trim(flags, regexFlags) != "" {
		// Not a literal after all, e.g. "/path/to".
		return pattern, opts, nil
	}
	for _, f := range flags {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'u', 'v':
			opts |= regexp2.Unicode
		}
	}
	return pattern[1:end], opts, nil
}

// search reports whether re finds a match anywhere in s.
func search(re *regexp2.Regexp, s string) (bool, error) {
	ok, err := re.MatchString(s)
	if err != nil {
		return false, fmt.Errorf("pattern %q: %w", re.String(), err)
	}
	return ok, nil
}
