package mux

import (
	"fmt"
	"regexp"
	"sync"
)

// varMatcher validates a single route parameter value.
// *regexp.Regexp satisfies this interface.
type varMatcher interface {
	MatchString(string) bool
	String() string
}

// lengthMatcher wraps a regexp with an additional maximum length constraint.
type lengthMatcher struct {
	re     *regexp.Regexp
	maxLen int
}

func (m *lengthMatcher) MatchString(s string) bool {
	return len(s) <= m.maxLen && m.re.MatchString(s)
}

func (m *lengthMatcher) String() string {
	return m.re.String()
}

// macroPatterns are the named constraints usable as {name:macro}.
var macroPatterns = map[string]string{
	"uuid":     `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`,
	"int":      `[0-9]+`,
	"float":    `[0-9]*\.?[0-9]+`,
	"slug":     `[a-zA-Z0-9]+(?:-[a-zA-Z0-9]+)*`,
	"alpha":    `[a-zA-Z]+`,
	"alphanum": `[a-zA-Z0-9]+`,
	"date":     `[0-9]{4}-[0-9]{2}-[0-9]{2}`,
	"hex":      `[0-9a-fA-F]+`,
	// RFC 1035/1123: labels 1-63 chars, total up to 253 chars.
	"domain": `(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)*[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?`,
}

// macroMaxLengths bounds macros whose grammar limits length beyond the regexp.
var macroMaxLengths = map[string]int{
	"domain": 253,
}

// constraintCache holds compiled constraints by expression. Its size is
// bounded by the number of distinct constraints in registered patterns.
var constraintCache sync.Map // map[string]varMatcher

// compileConstraint returns the matcher for the constraint part of a
// {name:constraint} segment: either a macro name or a regular expression
// that must match the whole segment value.
func compileConstraint(expr string) (varMatcher, error) {
	if m, ok := constraintCache.Load(expr); ok {
		return m.(varMatcher), nil
	}

	pattern := expr
	if macro, ok := macroPatterns[expr]; ok {
		pattern = macro
	}

	re, err := regexp.Compile(fmt.Sprintf("^(?:%s)$", pattern))
	if err != nil {
		return nil, err
	}

	var m varMatcher = re
	if maxLen, ok := macroMaxLengths[expr]; ok {
		m = &lengthMatcher{re: re, maxLen: maxLen}
	}

	actual, _ := constraintCache.LoadOrStore(expr, m)

	return actual.(varMatcher), nil
}
