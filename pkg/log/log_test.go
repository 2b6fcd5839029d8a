package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestZeroLoggerIsSilent(t *testing.T) {
	var l Logger
	l.Info("nothing", slog.String("k", "v"))
	l.With(slog.Int("n", 1)).Error("still nothing")
	if l.Enabled(LevelError) {
		t.Fatalf("expected zero logger to be disabled")
	}
	if l.Level() != DefaultLevel {
		t.Fatalf("expected default level, got %v", l.Level())
	}
}

func TestTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	l := Make(&buf, WithLevel(LevelTrace), WithTimeLayout(""))
	l.Trace("deep", slog.String("what", "scope"))

	out := buf.String()
	if !strings.Contains(out, "level=TRACE") {
		t.Fatalf("expected TRACE level in output, got %q", out)
	}
	if strings.Contains(out, "time=") {
		t.Fatalf("expected no timestamp, got %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := Make(&buf, WithLevel(LevelWarn))
	l.Info("hidden")
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}
	l.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected warn record, got %q", buf.String())
	}
}

func TestJSONWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := Make(&buf, WithFormat(FormatJSON)).With(slog.String("template", "page.txt"))
	l.Error("render failed", Err(errors.New("boom")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if rec["template"] != "page.txt" {
		t.Fatalf("expected template attr, got %v", rec["template"])
	}
	if rec["error"] != "boom" {
		t.Fatalf("expected error attr, got %v", rec["error"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"trace", LevelTrace},
		{"TRACE", LevelTrace},
		{"debug", LevelDebug},
		{"warn", LevelWarn},
		{"ERROR", LevelError},
		{"bogus", DefaultLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat(" JSON ") != FormatJSON {
		t.Fatalf("expected json")
	}
	if ParseFormat("yaml") != DefaultFormat {
		t.Fatalf("expected default for unknown format")
	}
}
