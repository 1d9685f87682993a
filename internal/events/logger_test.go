package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func decodeRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			t.Fatalf("invalid JSON record: %v", err)
		}
		records = append(records, rec)
	}
	return records
}

func TestEventLoggerEmitsJSONWithServiceAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := NewEventLoggerWithWriter("gobcore", &buf)

	logger.LogMonitoringStarted(10000, 1000)

	records := decodeRecords(t, &buf)
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec["msg"] != "monitoring_started" {
		t.Errorf("msg = %v, want monitoring_started", rec["msg"])
	}
	if rec["service"] != "gobcore" {
		t.Errorf("service = %v, want gobcore", rec["service"])
	}
	if rec["max_events"] != float64(10000) {
		t.Errorf("max_events = %v, want 10000", rec["max_events"])
	}
}

func TestLogStateTransitionFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewEventLoggerWithWriter("gobcore", &buf)

	logger.LogStateTransition("running", "crashed", 1234, 2, 1)

	rec := decodeRecords(t, &buf)[0]
	if rec["old_state"] != "running" || rec["new_state"] != "crashed" {
		t.Errorf("states = %v -> %v, want running -> crashed", rec["old_state"], rec["new_state"])
	}
	if rec["pid"] != float64(1234) {
		t.Errorf("pid = %v, want 1234", rec["pid"])
	}
	if rec["restart_count"] != float64(2) || rec["crash_count"] != float64(1) {
		t.Errorf("counts = %v/%v, want 2/1", rec["restart_count"], rec["crash_count"])
	}
}

func TestLogProcessCrashedUsesWarnLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewEventLoggerWithWriter("gobcore", &buf)

	logger.LogProcessCrashed(3, 1, true)

	rec := decodeRecords(t, &buf)[0]
	if rec["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", rec["level"])
	}
	if rec["exit_code"] != float64(3) {
		t.Errorf("exit_code = %v, want 3", rec["exit_code"])
	}
	if rec["auto_restart"] != true {
		t.Errorf("auto_restart = %v, want true", rec["auto_restart"])
	}
}

func TestLogProbeError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewEventLoggerWithWriter("gobcore", &buf)

	logger.LogProbeError(errors.New("cpu probe unavailable"))

	rec := decodeRecords(t, &buf)[0]
	if rec["msg"] != "probe_error" {
		t.Errorf("msg = %v, want probe_error", rec["msg"])
	}
	if rec["error"] != "cpu probe unavailable" {
		t.Errorf("error = %v, want cpu probe unavailable", rec["error"])
	}
}

func TestGlobalEventLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewEventLoggerWithWriter("gobcore", &buf)

	SetGlobalEventLogger(logger)
	defer SetGlobalEventLogger(nil)

	if got := GetGlobalEventLogger(); got != logger {
		t.Error("global logger not returned after set")
	}

	SetGlobalEventLogger(nil)
	if got := GetGlobalEventLogger(); got == nil {
		t.Error("unset global logger must fall back to a noop logger")
	}
}

func TestNoopEventLoggerDiscards(t *testing.T) {
	logger := NoopEventLogger()
	// Must not panic with no writer wired anywhere.
	logger.LogMonitoringStopped(12.5)
	logger.LogAgentDestroyed("agent-1")
	logger.LogHeartbeatStale(42, 301.0)
}
