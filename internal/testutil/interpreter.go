// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// FakeInterpreter writes an executable /bin/sh script with body and returns
// its path. The render harness path arrives as $1 and the harness variables
// (BLOCKDOC_OUTPUT, BLOCKDOC_FORMAT, BLOCKDOC_SOURCE) are in the environment.
func FakeInterpreter(t testing.TB, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake interpreters are shell scripts")
	}
	path := filepath.Join(t.TempDir(), "fake-python")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake interpreter: %v", err)
	}
	return path
}

// WritingInterpreter returns an interpreter that writes payload to the
// requested output path and exits 0.
func WritingInterpreter(t testing.TB, payload string) string {
	t.Helper()
	return FakeInterpreter(t, fmt.Sprintf(`printf '%%s' %s > "$BLOCKDOC_OUTPUT"`, shellQuote(payload)))
}

// FailingInterpreter returns an interpreter that prints stdout and stderr and
// exits with code.
func FailingInterpreter(t testing.TB, stdout, stderr string, code int) string {
	t.Helper()
	return FakeInterpreter(t, fmt.Sprintf("printf '%%s' %s\nprintf '%%s' %s >&2\nexit %d",
		shellQuote(stdout), shellQuote(stderr), code))
}

// CountingInterpreter is a WritingInterpreter that also appends one line per
// invocation to a log, so tests can assert how often it ran.
type CountingInterpreter struct {
	Path string
	log  string
}

// NewCountingInterpreter creates a CountingInterpreter that writes payload.
func NewCountingInterpreter(t testing.TB, payload string) *CountingInterpreter {
	t.Helper()
	log := filepath.Join(t.TempDir(), "calls.log")
	body := fmt.Sprintf("echo run >> %s\nprintf '%%s' %s > \"$BLOCKDOC_OUTPUT\"",
		shellQuote(log), shellQuote(payload))
	return &CountingInterpreter{Path: FakeInterpreter(t, body), log: log}
}

// Calls returns how many times the interpreter has run.
func (c *CountingInterpreter) Calls() int {
	data, err := os.ReadFile(c.log)
	if err != nil {
		return 0
	}
	return strings.Count(string(data), "\n")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
