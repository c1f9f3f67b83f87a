package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newTestLogger(level, format string) (*ProductionLogger, *bytes.Buffer) {
	logger := NewProductionLogger(LoggingConfig{Level: level, Format: format}, "test-service")
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	return logger, &buf
}

func TestProductionLoggerJSON(t *testing.T) {
	logger, buf := newTestLogger("info", "json")

	logger.Info("request handled", map[string]interface{}{
		"status": 200,
		"error":  errors.New("partial failure"),
	})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["message"] != "request handled" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["service"] != "test-service" {
		t.Errorf("service = %v", entry["service"])
	}
	// error values are flattened to strings so the entry always marshals
	if entry["error"] != "partial failure" {
		t.Errorf("error = %v (%T)", entry["error"], entry["error"])
	}
}

func TestProductionLoggerLevelFilter(t *testing.T) {
	logger, buf := newTestLogger("warn", "json")

	logger.Debug("noise", nil)
	logger.Info("noise", nil)
	if buf.Len() != 0 {
		t.Errorf("below-level output = %q, want none", buf.String())
	}

	logger.Warn("kept", nil)
	logger.Error("kept", nil)
	lines := strings.Count(buf.String(), "\n")
	if lines != 2 {
		t.Errorf("output lines = %d, want 2", lines)
	}
}

func TestProductionLoggerText(t *testing.T) {
	logger, buf := newTestLogger("debug", "text")

	logger.Info("starting", map[string]interface{}{
		"port": 8080,
		"name": "svc",
	})

	out := buf.String()
	if !strings.Contains(out, "INFO") || !strings.Contains(out, "starting") {
		t.Errorf("text output = %q", out)
	}
	// sorted keys: name before port
	if strings.Index(out, "name=svc") > strings.Index(out, "port=8080") {
		t.Errorf("fields not sorted: %q", out)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"ERROR", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
