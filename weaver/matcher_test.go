package weaver

import "testing"

func TestExactMatcher(t *testing.T) {
	tests := []struct {
		name     string
		typeName string
		method   string
		patterns []string
		want     bool
	}{
		{
			name:     "match by method name only",
			patterns: []string{"Run"},
			typeName: "Tests.A",
			method:   "Run",
			want:     true,
		},
		{
			name:     "match by type and method",
			patterns: []string{"Tests.A::Run"},
			typeName: "Tests.A",
			method:   "Run",
			want:     true,
		},
		{
			name:     "no match different type",
			patterns: []string{"Tests.A::Run"},
			typeName: "Tests.B",
			method:   "Run",
			want:     false,
		},
		{
			name:     "no match different method",
			patterns: []string{"Run"},
			typeName: "Tests.A",
			method:   "Stop",
			want:     false,
		},
		{
			name:     "nested type",
			patterns: []string{"Tests.A`2/Nested::Run"},
			typeName: "Tests.A`2/Nested",
			method:   "Run",
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewExactMatcher(tt.patterns)
			if got := m.MatchMethod(tt.typeName, tt.method); got != tt.want {
				t.Errorf("MatchMethod(%q, %q) = %v, want %v", tt.typeName, tt.method, got, tt.want)
			}
		})
	}
}

func TestWildcardMatcher(t *testing.T) {
	tests := []struct {
		name     string
		typeName string
		method   string
		patterns []string
		want     bool
	}{
		{"match all", "Tests.A", "Run", []string{"*"}, true},
		{"type wildcard", "Tests.A", "Run", []string{"Tests.A::*"}, true},
		{"type wildcard other type", "Tests.B", "Run", []string{"Tests.A::*"}, false},
		{"namespace prefix", "Tests.Inner.A", "Run", []string{"Tests.Inner.*"}, true},
		{"namespace prefix miss", "Other.A", "Run", []string{"Tests.*"}, false},
		{"exact", "Tests.A", "Run", []string{"Tests.A::Run"}, true},
		{"exact miss", "Tests.A", "Stop", []string{"Tests.A::Run"}, false},
		{"bare name", "Tests.Z", "Run", []string{"Run"}, true},
		{"empty", "Tests.A", "Run", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewWildcardMatcher(tt.patterns)
			if got := m.MatchMethod(tt.typeName, tt.method); got != tt.want {
				t.Errorf("MatchMethod(%q, %q) = %v, want %v", tt.typeName, tt.method, got, tt.want)
			}
		})
	}
}

func TestWildcardMatcherEmpty(t *testing.T) {
	if !NewWildcardMatcher(nil).Empty() {
		t.Error("matcher without patterns is not empty")
	}
	if NewWildcardMatcher([]string{"Tests.*"}).Empty() {
		t.Error("prefix matcher reported empty")
	}
}

func TestCombine(t *testing.T) {
	if combine(nil, nil) != nil {
		t.Fatal("combine without matchers returned a filter")
	}
	m := combine(NewExactMatcher([]string{"Tests.A::Run"}), []string{"Stop"})
	for _, tc := range []struct {
		typeName, method string
		want             bool
	}{
		{"Tests.A", "Run", true},
		{"Tests.B", "Stop", true},
		{"Tests.B", "Run", false},
	} {
		if got := m.MatchMethod(tc.typeName, tc.method); got != tc.want {
			t.Errorf("MatchMethod(%q, %q) = %v, want %v", tc.typeName, tc.method, got, tc.want)
		}
	}
}
