// Package config holds default capacities and timeouts for gobcore.
package config

import "time"

// Service identity reported in snapshots and telemetry.
const (
	ServiceName    = "gobcore"
	ServiceVersion = "1.0.0"
)

// Default configuration constants for the monitoring state store.
const (
	DefaultMaxEventsHistory   = 10000
	DefaultMaxMetricsHistory  = 1000
	DefaultResponseTimeWindow = 100 // last N response times for the rolling average

	DefaultSampleInterval     = 1 * time.Second
	DefaultSweepInterval      = 1 * time.Minute
	DefaultPersistInterval    = 30 * time.Second
	DefaultSamplerJoinTimeout = 5 * time.Second

	DefaultStatePath = "/tmp/gobcore-state.json"
)

// Default configuration constants for the process supervisor.
const (
	DefaultMaxOutputLines = 1000

	DefaultStabilizationWait   = 2 * time.Second
	DefaultShutdownTimeout     = 10 * time.Second
	DefaultKillWait            = 5 * time.Second
	DefaultPollInterval        = 100 * time.Millisecond
	DefaultHeartbeatStaleAfter = 5 * time.Minute
	DefaultRestartPause        = 1 * time.Second
	DefaultLoopJoinTimeout     = 2 * time.Second
)
