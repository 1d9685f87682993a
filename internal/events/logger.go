package events

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// EventLogger provides structured logging for key lifecycle events in gobcore.
type EventLogger struct {
	logger  *slog.Logger
	service string
}

// NewEventLogger creates a new EventLogger with JSON output to stdout.
// It includes a base service attribute on every record.
func NewEventLogger(service string) *EventLogger {
	return NewEventLoggerWithWriter(service, os.Stdout)
}

// NewEventLoggerWithWriter creates a new EventLogger with JSON output to a custom writer.
// Useful for testing or redirecting output.
func NewEventLoggerWithWriter(service string, w io.Writer) *EventLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(handler).With(
		"service", service,
	)
	return &EventLogger{
		logger:  logger,
		service: service,
	}
}

// LogMonitoringStarted logs the start of the monitoring sampler.
// event: "monitoring_started"
// Attributes: max_events, max_metrics
func (el *EventLogger) LogMonitoringStarted(maxEvents, maxMetrics int) {
	el.logger.Info("monitoring_started",
		"max_events", maxEvents,
		"max_metrics", maxMetrics,
	)
}

// LogMonitoringStopped logs the stop of the monitoring sampler.
// event: "monitoring_stopped"
// Attributes: uptime_seconds
func (el *EventLogger) LogMonitoringStopped(uptimeSeconds float64) {
	el.logger.Info("monitoring_stopped",
		"uptime_seconds", uptimeSeconds,
	)
}

// LogStateTransition logs a supervised-process state transition.
// event: "process_state_transition"
// Attributes: old_state, new_state, pid, restart_count, crash_count
func (el *EventLogger) LogStateTransition(oldState, newState string, pid, restartCount, crashCount int) {
	el.logger.Info("process_state_transition",
		"old_state", oldState,
		"new_state", newState,
		"pid", pid,
		"restart_count", restartCount,
		"crash_count", crashCount,
	)
}

// LogProcessCrashed logs an unexpected process exit.
// event: "process_crashed"
// Attributes: exit_code, crash_count, auto_restart
func (el *EventLogger) LogProcessCrashed(exitCode, crashCount int, autoRestart bool) {
	el.logger.Warn("process_crashed",
		"exit_code", exitCode,
		"crash_count", crashCount,
		"auto_restart", autoRestart,
	)
}

// LogHeartbeatStale logs a stale-heartbeat condition on the supervised process.
// event: "heartbeat_stale"
// Attributes: pid, seconds_since_heartbeat
func (el *EventLogger) LogHeartbeatStale(pid int, sinceSeconds float64) {
	el.logger.Warn("heartbeat_stale",
		"pid", pid,
		"seconds_since_heartbeat", sinceSeconds,
	)
}

// LogProbeError logs a metrics probe failure. The sampling loop continues.
// event: "probe_error"
// Attributes: error
func (el *EventLogger) LogProbeError(err error) {
	el.logger.Warn("probe_error",
		"error", err.Error(),
	)
}

// LogSnapshotError logs a snapshot persist failure. The sampling loop continues.
// event: "snapshot_error"
// Attributes: path, error
func (el *EventLogger) LogSnapshotError(path string, err error) {
	el.logger.Warn("snapshot_error",
		"path", path,
		"error", err.Error(),
	)
}

// LogAgentDestroyed logs an agent marked destroyed by the liveness sweep.
// event: "agent_destroyed"
// Attributes: agent_id
func (el *EventLogger) LogAgentDestroyed(agentID string) {
	el.logger.Info("agent_destroyed",
		"agent_id", agentID,
	)
}

// Global logger management
var (
	globalLogger *EventLogger
	globalMu     sync.RWMutex
)

// SetGlobalEventLogger sets the global event logger instance.
func SetGlobalEventLogger(l *EventLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetGlobalEventLogger returns the global event logger instance.
// If no logger is set, returns a no-op logger.
func GetGlobalEventLogger() *EventLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger
	}
	return NoopEventLogger()
}

// NoopEventLogger returns an event logger that discards all records.
// Useful for testing or when event logging is disabled.
func NoopEventLogger() *EventLogger {
	handler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &EventLogger{
		logger: slog.New(handler),
	}
}
