package logging

import (
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := parseLevel(raw); got != want {
			t.Fatalf("%q: expected %v, got %v", raw, want, got)
		}
	}
}

func TestNewJSONLoggerToAddsService(t *testing.T) {
	var buf strings.Builder
	logger := NewJSONLoggerTo(&buf, "mcp", "info")
	logger.Debug("hidden")
	logger.Info("tool_called", "tool", "extract_fields")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line must be filtered at info level: %s", out)
	}
	if !strings.Contains(out, `"service":"mcp"`) || !strings.Contains(out, `"tool":"extract_fields"`) {
		t.Fatalf("unexpected log output %s", out)
	}
}
