package internal

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"ERROR":   LogLevelError,
		"warn":    LogLevelWarn,
		"":        LogLevelInfo,
		"debug":   LogLevelDebug,
		" TRACE ": LogLevelTrace,
		"verbose": LogLevelInfo,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LogLevelWarn)
	l.entry.Logger.SetOutput(&buf)

	l.Component("NullBuilder").Info("hidden %d", 1)
	l.Component("NullBuilder").Warn("trial %d skipped", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line leaked at warn level: %s", out)
	}
	if !strings.Contains(out, "trial 3 skipped") || !strings.Contains(out, "component=NullBuilder") {
		t.Errorf("expected warn line with component field, got: %s", out)
	}
}
