package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"Error":   ERROR,
		"none":    SILENT,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("ParseLevel(loud) expected error")
	}
}

func TestLoggerFiltersAndTags(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, &buf, false)

	l.Info("Loop", "tick %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("info below level was written: %q", buf.String())
	}

	l.Warn("Loop", "dropped tick %d", 2)
	out := buf.String()
	if !strings.Contains(out, "[WARN] [Loop] dropped tick 2") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestSilentWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	l := New(SILENT, &buf, true)
	l.Error("Main", "boom")
	if buf.Len() != 0 {
		t.Fatalf("silent logger wrote %q", buf.String())
	}
}

func TestGlobalFunctionsWithoutDefault(t *testing.T) {
	SetDefault(nil)
	Info("Main", "no logger installed")
	if GetLevel() != INFO {
		t.Fatalf("GetLevel without logger = %s", GetLevel())
	}

	var buf bytes.Buffer
	SetDefault(New(DEBUG, &buf, false))
	defer SetDefault(nil)
	Debug("Main", "hello %s", "there")
	if !strings.Contains(buf.String(), "[DEBUG] [Main] hello there") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}
