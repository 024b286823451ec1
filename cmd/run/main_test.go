package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/weave/internal/fixture"
	"github.com/wippyai/weave/weaver"
)

func writeFixture(t *testing.T) string {
	t.Helper()
	t.Setenv(weaver.ConfigEnv, "")
	data, err := fixture.Encoded()
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "InterceptMe.wil")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runArgs(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestUsage(t *testing.T) {
	code, _, stderr := runArgs(t)
	if code != 2 || !strings.Contains(stderr, "Usage: run -module") {
		t.Errorf("exit %d, stderr %q", code, stderr)
	}
}

func TestCall(t *testing.T) {
	path := writeFixture(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unwoven", []string{"-type", fixture.InterceptMe, "-method", "WithAbort"}, "10"},
		{"woven", []string{"-weave", "-type", fixture.InterceptMe, "-method", "WithAbort"}, "911"},
		{"two args", []string{"-weave", "-type", fixture.InterceptMe, "-method", "WithEatExceptionAndLogNotImplemented", "-args", "1,2.5"}, "42"},
		{"static", []string{"-weave", "-type", fixture.InterceptMe, "-method", "WithIncrementArgTestStatic", "-args", "5"}, "6"},
		{"null", []string{"-weave", "-type", fixture.InterceptMe, "-method", "WithIncrementArgTestNull", "-args", "0,null"}, `"1"`},
		{"overload", []string{"-weave", "-type", fixture.InterceptMe, "-method", "Overloaded", "-args", "s"}, `"s"`},
		{"generic", []string{"-weave", "-type", fixture.GenericInterceptMe, "-targs", "int32,string", "-method", "WithIncrementArg", "-args", "1,x"}, "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := runArgs(t, append([]string{"-module", path}, tt.args...)...)
			if code != 0 {
				t.Fatalf("exit %d: %s", code, stderr)
			}
			if got := strings.TrimSpace(stdout); got != tt.want {
				t.Errorf("output %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCallLogsHostInterceptor(t *testing.T) {
	path := writeFixture(t)
	code, stdout, stderr := runArgs(t, "-module", path, "-weave", "-type", fixture.InterceptMe, "-method", "WithNullableLog", "-args", "3")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if strings.TrimSpace(stdout) != `"x=3"` {
		t.Errorf("output %q", stdout)
	}
	if !strings.Contains(stderr, "invocation") || !strings.Contains(stderr, "WithNullableLog") {
		t.Errorf("no interceptor log in %q", stderr)
	}
}

func TestCallErrors(t *testing.T) {
	path := writeFixture(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing type", []string{"-method", "WithAbort"}, "-type is required"},
		{"unknown method", []string{"-type", fixture.InterceptMe, "-method", "Nope"}, "Nope"},
		{"bad argument", []string{"-type", fixture.InterceptMe, "-method", "WithTwoIncrementArg", "-args", "x"}, "argument 0"},
		{"exception", []string{"-type", fixture.InterceptMe, "-method", "WithEatExceptionAndLogNotImplemented", "-args", "1,2.5"}, "NotImplementedException"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runArgs(t, append([]string{"-module", path}, tt.args...)...)
			if code != 1 {
				t.Errorf("exit %d, want 1", code)
			}
			if !strings.Contains(stderr, tt.want) {
				t.Errorf("stderr %q does not mention %q", stderr, tt.want)
			}
		})
	}
}

func TestList(t *testing.T) {
	path := writeFixture(t)
	code, stdout, stderr := runArgs(t, "-module", path, "-weave", "-list")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	for _, want := range []string{"Woven: yes", "  " + fixture.InterceptMe + "\n", "WithAbort() : int32", "static WithIncrementArgTestStatic(int32"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("listing lacks %q:\n%s", want, stdout)
		}
	}
	if strings.Contains(stdout, "_stub") {
		t.Errorf("listing shows holder types:\n%s", stdout)
	}

	code, stdout, _ = runArgs(t, "-module", path, "-list", "-type", fixture.GenericInterceptMe, "-targs", "int32,string")
	if code != 0 || !strings.Contains(stdout, "WithIncrementArg(int32") {
		t.Errorf("generic listing (exit %d):\n%s", code, stdout)
	}
}

func TestDisasm(t *testing.T) {
	path := writeFixture(t)
	code, stdout, stderr := runArgs(t, "-module", path, "-disasm")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.HasPrefix(stdout, ".module ") {
		t.Errorf("listing starts %q", stdout[:min(len(stdout), 40)])
	}
}

func TestInteractiveCall(t *testing.T) {
	path := writeFixture(t)
	m := newInteractiveModel(context.Background(), path, sessionOptions{weave: true})
	m.Update(m.loadModule())
	if m.err != nil {
		t.Fatal(m.err)
	}

	m.selected = -1
	for i, e := range m.entries {
		if e.class.Name == fixture.InterceptMe && e.method.Def.Name == "WithNullableLog" {
			m.selected = i
		}
	}
	if m.selected < 0 {
		t.Fatal("WithNullableLog not listed")
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != stateInputArgs || len(m.inputs) != 1 {
		t.Fatalf("state %d with %d inputs", m.state, len(m.inputs))
	}
	m.inputs[0].SetValue("3")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter did not issue a call")
	}
	m.Update(cmd())

	if m.state != stateShowResult || m.err != nil {
		t.Fatalf("state %d, err %v", m.state, m.err)
	}
	if m.result != `"x=3"` {
		t.Errorf("result %q", m.result)
	}
	if !strings.Contains(m.output, "invocation") {
		t.Errorf("output %q", m.output)
	}
	if !strings.Contains(m.View(), "x=3") {
		t.Error("view does not show the result")
	}
}

func TestInteractiveListing(t *testing.T) {
	path := writeFixture(t)
	m := newInteractiveModel(context.Background(), path, sessionOptions{})
	m.Update(m.loadModule())
	if m.err != nil {
		t.Fatal(m.err)
	}
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})

	d := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")}
	m.Update(d)
	if m.state != stateDisasm {
		t.Fatalf("state %d after d", m.state)
	}
	if view := m.View(); !strings.Contains(view, "IL_0000") {
		t.Errorf("listing view:\n%s", view)
	}
	m.Update(d)
	if m.state != stateSelectFunc {
		t.Errorf("state %d after second d", m.state)
	}
}
