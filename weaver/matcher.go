package weaver

import "strings"

// ExactMatcher matches exact "Ns.Type::Method" or bare "Method" patterns.
type ExactMatcher struct {
	patterns map[string]bool
}

// NewExactMatcher creates a matcher from a list of patterns.
// Patterns can be "Method" (matches the name in any type) or
// "Ns.Type::Method" (exact match).
func NewExactMatcher(patterns []string) *ExactMatcher {
	m := &ExactMatcher{patterns: make(map[string]bool)}
	for _, p := range patterns {
		m.patterns[p] = true
	}
	return m
}

// MatchMethod reports whether the method matches any pattern.
func (m *ExactMatcher) MatchMethod(typeName, method string) bool {
	if m.patterns[typeName+"::"+method] {
		return true
	}
	return m.patterns[method]
}

// WildcardMatcher matches method patterns with wildcard support.
//
// Supports patterns like:
//   - "Ns.Type::Method" - exact match
//   - "Method" - matches the method name in any type
//   - "Ns.Type::*" - matches every method of the type
//   - "Ns.*" - matches every method of types whose name has the prefix
//   - "*" - matches everything
//
// Nested types use '/': "Ns.Outer/Inner::Method".
type WildcardMatcher struct {
	exact     map[string]bool // exact "Type::Method" matches
	names     map[string]bool // unqualified "Method" matches
	typeWilds map[string]bool // "Type::*" matches
	prefixes  []string        // "Prefix*" type prefixes
	matchAll  bool            // "*" matches everything
}

// NewWildcardMatcher creates a matcher with wildcard support.
func NewWildcardMatcher(patterns []string) *WildcardMatcher {
	m := &WildcardMatcher{
		exact:     make(map[string]bool),
		names:     make(map[string]bool),
		typeWilds: make(map[string]bool),
	}
	for _, p := range patterns {
		switch {
		case p == "*":
			m.matchAll = true
		case strings.HasSuffix(p, "::*"):
			m.typeWilds[strings.TrimSuffix(p, "::*")] = true
		case strings.Contains(p, "::"):
			m.exact[p] = true
		case strings.HasSuffix(p, "*"):
			m.prefixes = append(m.prefixes, strings.TrimSuffix(p, "*"))
		default:
			m.names[p] = true
		}
	}
	return m
}

// MatchMethod reports whether the method matches any pattern.
func (m *WildcardMatcher) MatchMethod(typeName, method string) bool {
	if m.matchAll {
		return true
	}
	if m.typeWilds[typeName] {
		return true
	}
	if m.exact[typeName+"::"+method] {
		return true
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(typeName, p) {
			return true
		}
	}
	return m.names[method]
}

// Empty reports whether the matcher has no patterns.
func (m *WildcardMatcher) Empty() bool {
	return !m.matchAll && len(m.exact) == 0 && len(m.names) == 0 &&
		len(m.typeWilds) == 0 && len(m.prefixes) == 0
}

// anyMatcher matches when any of its matchers does.
type anyMatcher []MethodMatcher

func (a anyMatcher) MatchMethod(typeName, method string) bool {
	for _, m := range a {
		if m.MatchMethod(typeName, method) {
			return true
		}
	}
	return false
}

// combine merges an explicit matcher with pattern strings. It returns nil
// when neither is set, so the engine applies no filter.
func combine(m MethodMatcher, patterns []string) MethodMatcher {
	var out anyMatcher
	if m != nil {
		out = append(out, m)
	}
	if len(patterns) > 0 {
		out = append(out, NewWildcardMatcher(patterns))
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}
