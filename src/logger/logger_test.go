package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestConsoleLogger_LevelsAndFormatting(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	log.Debug("hidden %d", 1)
	log.Info("[Orchestrator] rule %s found %d matches", "nuget", 3)
	log.Warn("skipped build %s", "dnceng/public/1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message should be filtered at info level: %q", out)
	}
	if !strings.Contains(out, "rule nuget found 3 matches") {
		t.Errorf("info message not formatted: %q", out)
	}
	if !strings.Contains(out, "level=WARN") {
		t.Errorf("warn level missing: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitJSON(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	Init("info", "json", &buf)
	New("worker").Info("started")

	if !strings.Contains(buf.String(), `"component":"worker"`) {
		t.Errorf("json output missing component: %q", buf.String())
	}
}
