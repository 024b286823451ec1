package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/weave/il"
	"github.com/wippyai/weave/internal/fixture"
	"github.com/wippyai/weave/weaver"
)

func writeFixture(t *testing.T, dir string) string {
	t.Helper()
	data, err := fixture.Encoded()
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	src := filepath.Join(dir, "InterceptMe.wil")
	if err := os.WriteFile(src, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return src
}

func TestUsage(t *testing.T) {
	for _, args := range [][]string{nil, {"a"}, {"a", "b", "c"}} {
		var stderr bytes.Buffer
		if code := run(args, &stderr); code != 2 {
			t.Errorf("run(%q) = %d, want 2", args, code)
		}
		if !strings.Contains(stderr.String(), usage) {
			t.Errorf("run(%q) stderr = %q", args, stderr.String())
		}
	}
}

func TestWeave(t *testing.T) {
	t.Setenv(weaver.ConfigEnv, "")
	dir := t.TempDir()
	src := writeFixture(t, dir)
	dst := filepath.Join(dir, "out", "InterceptMe.wil")
	if err := os.Mkdir(filepath.Dir(dst), 0o755); err != nil {
		t.Fatal(err)
	}

	var stderr bytes.Buffer
	if code := run([]string{src, dst}, &stderr); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	m, err := il.ParseModuleValidate(data)
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if !weaver.IsWoven(m) {
		t.Error("output is not woven")
	}

	// stderr is not a terminal, so the log is JSON lines.
	lines := strings.Split(strings.TrimSpace(stderr.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("log line %q: %v", lines[len(lines)-1], err)
	}
	if entry["msg"] != "wrote module" || entry["destination"] != dst {
		t.Errorf("log entry = %v", entry)
	}
}

func TestWeaveConfig(t *testing.T) {
	t.Setenv(weaver.ConfigEnv, "")
	dir := t.TempDir()
	src := writeFixture(t, dir)
	config := "report = \"report.yaml\"\n\n[log]\nlevel = \"warn\"\nformat = \"console\"\n"
	if err := os.WriteFile(filepath.Join(dir, weaver.ConfigFileName), []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}

	var stderr bytes.Buffer
	if code := run([]string{src, filepath.Join(dir, "out.wil")}, &stderr); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	if stderr.Len() != 0 {
		t.Errorf("info entries logged at warn level: %s", stderr.String())
	}
	f, err := os.Open(filepath.Join(dir, "report.yaml"))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	defer f.Close()
	report, err := weaver.ReadReport(f)
	if err != nil {
		t.Fatal(err)
	}
	if report.Module != "InterceptMe" || len(report.Methods) == 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestWeaveFailure(t *testing.T) {
	t.Setenv(weaver.ConfigEnv, "")
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.wil")
	if err := os.WriteFile(src, []byte("not a module"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "out.wil")

	var stderr bytes.Buffer
	if code := run([]string{src, dst}, &stderr); code != 1 {
		t.Errorf("exit %d, want 1", code)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Errorf("destination written on failure: %v", err)
	}
	if !strings.Contains(stderr.String(), "weave failed") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("unknown = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(weaver.ConfigEnv, path)
	src := writeFixture(t, dir)

	var stderr bytes.Buffer
	if code := run([]string{src, filepath.Join(dir, "out.wil")}, &stderr); code != 1 {
		t.Errorf("exit %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "unknown keys") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
