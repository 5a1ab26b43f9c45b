package logger

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestStdOutLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdOutLogger(LogInfo)
	l.out = log.New(&buf, "", 0)

	l.Debugf("hidden %d", 1)
	l.Infof("decoded %d pixels", 16)
	l.Errorf("failed: %s", "boom")

	got := buf.String()
	if strings.Contains(got, "hidden") {
		t.Errorf("Debug message should be filtered at INFO level, got %q", got)
	}
	if !strings.Contains(got, "INFO: decoded 16 pixels") {
		t.Errorf("Missing info line in %q", got)
	}
	if !strings.Contains(got, "ERROR: failed: boom") {
		t.Errorf("Missing error line in %q", got)
	}

	l.SetLogLevel(LogDebug)
	if l.GetLogLevel() != LogDebug {
		t.Errorf("Expected level DEBUG after SetLogLevel")
	}
	l.Debugf("now visible")
	if !strings.Contains(buf.String(), "DEBUG: now visible") {
		t.Errorf("Debug message should be written at DEBUG level")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LogDebug, false},
		{"INFO", LogInfo, false},
		{"Error", LogError, false},
		{"verbose", LogInfo, true},
	}

	for _, tc := range tests {
		got, err := ParseLogLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
