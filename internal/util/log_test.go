package util

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"trace": LevelTrace,
		"TRACE": LevelTrace,
		"debug": LevelDebug,
		"info":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
	}

	for input, want := range tests {
		if got := ParseLogLevel(input); got != want {
			t.Fatalf("ParseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}

	if got := ParseLogLevel("unknown"); got != LevelInfo {
		t.Fatalf("ParseLogLevel default = %v, want %v", got, LevelInfo)
	}
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LevelWarn, &buf)

	logger.Debugf("hidden %d", 1)
	logger.Infof("hidden %d", 2)
	logger.Warnf("visible %d", 3)
	logger.Errorf("visible %d", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug/info lines to be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] visible 3") || !strings.Contains(out, "[ERROR] visible 4") {
		t.Fatalf("expected warn and error lines, got %q", out)
	}
}

func TestLoggerSetLevelAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LevelInfo, &buf)

	logger.Tracef("early trace")
	logger.SetLevel(LevelTrace)
	logger.Tracef("late trace")

	out := buf.String()
	if strings.Contains(out, "early trace") {
		t.Fatalf("expected trace to be filtered before SetLevel, got %q", out)
	}
	if !strings.Contains(out, "[TRACE] late trace") {
		t.Fatalf("expected trace line after SetLevel, got %q", out)
	}
}
