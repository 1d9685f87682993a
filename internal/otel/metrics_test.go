package otel

import (
	"context"
	"testing"
)

func TestDefaultMetricsConfig(t *testing.T) {
	cfg := DefaultMetricsConfig()
	if cfg == nil {
		t.Fatal("DefaultMetricsConfig returned nil")
	}
	if cfg.Enabled {
		t.Error("Expected metrics to be disabled by default")
	}
	if cfg.ServiceName != "gobcore" {
		t.Errorf("Expected service name 'gobcore', got %q", cfg.ServiceName)
	}
	if cfg.ExporterType != ExporterNone {
		t.Errorf("Expected ExporterNone, got %v", cfg.ExporterType)
	}
}

func TestNewMetricsDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultMetricsConfig()

	m, err := NewMetrics(ctx, cfg)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	defer m.Shutdown(ctx)

	if m.Enabled() {
		t.Error("expected metrics to be disabled")
	}

	// Recording on a disabled instance must be a no-op, not a panic.
	m.RecordEvent(ctx, "message_sent")
	m.RecordError(ctx, "agent")
	m.RecordCrash(ctx)
	m.RecordRestart(ctx)
	m.RecordMessage(ctx, "outgoing")
	m.RecordResponseTime(ctx, "agent-1", 0.42)
}

func TestNewMetricsWithNilConfig(t *testing.T) {
	ctx := context.Background()

	m, err := NewMetrics(ctx, nil)
	if err != nil {
		t.Fatalf("NewMetrics with nil config failed: %v", err)
	}
	defer m.Shutdown(ctx)

	if m.Enabled() {
		t.Error("expected metrics to be disabled with nil config")
	}
}

func TestNewMetricsStdout(t *testing.T) {
	ctx := context.Background()
	cfg := &MetricsConfig{
		Enabled:      true,
		ServiceName:  "test-service",
		ExporterType: ExporterStdout,
	}

	m, err := NewMetrics(ctx, cfg)
	if err != nil {
		t.Fatalf("NewMetrics with stdout exporter failed: %v", err)
	}
	defer m.Shutdown(ctx)

	if !m.Enabled() {
		t.Error("expected metrics to be enabled")
	}

	m.RecordEvent(ctx, "message_sent")
	m.RecordEvent(ctx, "tool_executed")
	m.RecordError(ctx, "supervisor")
	m.RecordCrash(ctx)
	m.RecordRestart(ctx)
	m.RecordMessage(ctx, "incoming")
	m.RecordResponseTime(ctx, "agent-1", 1.25)
}

func TestNewMetricsUnknownExporter(t *testing.T) {
	ctx := context.Background()
	cfg := &MetricsConfig{
		Enabled:      true,
		ServiceName:  "test-service",
		ExporterType: ExporterType("bogus"),
	}

	if _, err := NewMetrics(ctx, cfg); err == nil {
		t.Error("expected error for unknown exporter type")
	}
}

func TestSetGaugeFunc(t *testing.T) {
	ctx := context.Background()
	cfg := &MetricsConfig{
		Enabled:      true,
		ServiceName:  "test-service",
		ExporterType: ExporterStdout,
	}

	m, err := NewMetrics(ctx, cfg)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	defer m.Shutdown(ctx)

	m.SetGaugeFunc(func() GaugeSnapshot {
		return GaugeSnapshot{
			ActiveAgents:        3,
			ActiveConversations: 2,
			CPUPercent:          42.5,
			MemoryPercent:       61.2,
		}
	})

	// Shutdown flushes the periodic reader, which runs the gauge callback.
	if err := m.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestSetGaugeFuncDisabled(t *testing.T) {
	ctx := context.Background()

	m, err := NewMetrics(ctx, DefaultMetricsConfig())
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	defer m.Shutdown(ctx)

	// No instruments registered when disabled; setting a gauge func
	// must still be safe.
	m.SetGaugeFunc(func() GaugeSnapshot { return GaugeSnapshot{} })
}

func TestNoopMetrics(t *testing.T) {
	m := NoopMetrics()

	if m.Enabled() {
		t.Error("expected noop metrics to be disabled")
	}

	ctx := context.Background()
	m.RecordEvent(ctx, "agent_created")
	m.RecordCrash(ctx)

	if err := m.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestGlobalMetrics(t *testing.T) {
	m := GetGlobalMetrics()
	if m == nil {
		t.Error("expected non-nil global metrics")
	}
	if m.Enabled() {
		t.Error("expected default global metrics to be disabled")
	}

	ctx := context.Background()
	cfg := &MetricsConfig{
		Enabled:      true,
		ServiceName:  "test-service",
		ExporterType: ExporterStdout,
	}

	enabled, err := NewMetrics(ctx, cfg)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	defer enabled.Shutdown(ctx)

	SetGlobalMetrics(enabled)
	defer SetGlobalMetrics(nil)

	if !GetGlobalMetrics().Enabled() {
		t.Error("expected global metrics to be enabled after setting")
	}
}

func TestMetricsMeterProvider(t *testing.T) {
	ctx := context.Background()

	m, err := NewMetrics(ctx, DefaultMetricsConfig())
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	defer m.Shutdown(ctx)

	if m.MeterProvider() == nil {
		t.Error("expected non-nil meter provider")
	}
}
