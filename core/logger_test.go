package core

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newTestLogger(level, format string) (*ProductionLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := &ProductionLogger{
		level:       level,
		debug:       level == "debug",
		serviceName: "test-service",
		component:   "bulwark/core",
		format:      format,
		output:      buf,
	}
	return logger, buf
}

func TestProductionLoggerJSONOutput(t *testing.T) {
	logger, buf := newTestLogger("info", "json")

	logger.Info("Breaker opened", map[string]interface{}{
		"operation": "circuit_breaker_transition",
		"name":      "payments",
	})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected valid JSON, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "INFO" {
		t.Errorf("Expected level INFO, got %v", entry["level"])
	}
	if entry["message"] != "Breaker opened" {
		t.Errorf("Expected message, got %v", entry["message"])
	}
	if entry["service"] != "test-service" {
		t.Errorf("Expected service name, got %v", entry["service"])
	}
	if entry["name"] != "payments" {
		t.Errorf("Expected structured field, got %v", entry["name"])
	}
}

func TestProductionLoggerLevelFiltering(t *testing.T) {
	logger, buf := newTestLogger("warn", "json")

	logger.Debug("hidden", nil)
	logger.Info("hidden", nil)
	if buf.Len() != 0 {
		t.Errorf("Expected debug and info suppressed at warn level, got %q", buf.String())
	}

	logger.Warn("shown", nil)
	logger.Error("shown", nil)
	lines := strings.Count(strings.TrimSpace(buf.String()), "\n") + 1
	if lines != 2 {
		t.Errorf("Expected 2 log lines, got %d", lines)
	}
}

func TestProductionLoggerDebugGate(t *testing.T) {
	logger, buf := newTestLogger("info", "json")

	logger.Debug("hidden", nil)
	if buf.Len() != 0 {
		t.Errorf("Expected debug suppressed at info level")
	}

	debugLogger, debugBuf := newTestLogger("debug", "json")
	debugLogger.Debug("shown", nil)
	if debugBuf.Len() == 0 {
		t.Errorf("Expected debug line at debug level")
	}
}

func TestProductionLoggerWithComponent(t *testing.T) {
	logger, buf := newTestLogger("info", "json")

	scoped := logger.WithComponent("bulwark/circuitbreaker")
	scoped.Info("scoped", nil)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected valid JSON: %v", err)
	}
	if entry["component"] != "bulwark/circuitbreaker" {
		t.Errorf("Expected component override, got %v", entry["component"])
	}

	// The original logger keeps its component.
	buf.Reset()
	logger.Info("original", nil)
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected valid JSON: %v", err)
	}
	if entry["component"] != "bulwark/core" {
		t.Errorf("Expected original component untouched, got %v", entry["component"])
	}
}

func TestProductionLoggerTextFormat(t *testing.T) {
	logger, buf := newTestLogger("info", "text")

	logger.Info("plain message", map[string]interface{}{"k": "v"})
	out := buf.String()
	if !strings.Contains(out, "plain message") || !strings.Contains(out, "k=v") {
		t.Errorf("Expected human-readable output, got %q", out)
	}
}

func TestNoOpLoggerIsSilent(t *testing.T) {
	// Must not panic with nil fields or nil context fan-out.
	l := &NoOpLogger{}
	l.Info("x", nil)
	l.Error("x", nil)
	l.Warn("x", nil)
	l.Debug("x", nil)
}
