package otel

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/gobstack/gobcore/internal/config"
)

// MetricsConfig holds configuration for the OpenTelemetry metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active. Default: false (no-op).
	Enabled bool

	// ServiceName is the name of the service for metric attribution.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// ExporterType specifies which exporter to use.
	ExporterType ExporterType

	// OTLPEndpoint is the endpoint for OTLP exporters (e.g., "localhost:4317").
	OTLPEndpoint string

	// OTLPInsecure disables TLS for OTLP connections.
	OTLPInsecure bool

	// Attributes are additional attributes to add to all metrics.
	Attributes map[string]string
}

// DefaultMetricsConfig returns a default configuration with metrics disabled.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:      false,
		ServiceName:  config.ServiceName,
		ExporterType: ExporterNone,
	}
}

// GaugeSnapshot is the set of instantaneous values read by the observable
// gauge callback. Producers provide it through SetGaugeFunc.
type GaugeSnapshot struct {
	ActiveAgents        int64
	ActiveConversations int64
	CPUPercent          float64
	MemoryPercent       float64
}

// Metrics wraps OpenTelemetry metrics functionality with gobcore-specific helpers.
type Metrics struct {
	config        *MetricsConfig
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	shutdown      func(context.Context) error
	mu            sync.RWMutex

	gaugeFunc func() GaugeSnapshot
	gaugeReg  metric.Registration

	// Metric instruments
	eventCounter    metric.Int64Counter
	errorCounter    metric.Int64Counter
	crashCounter    metric.Int64Counter
	restartCounter  metric.Int64Counter
	messageCounter  metric.Int64Counter
	responseLatency metric.Float64Histogram

	agentGauge        metric.Int64ObservableGauge
	conversationGauge metric.Int64ObservableGauge
	cpuGauge          metric.Float64ObservableGauge
	memoryGauge       metric.Float64ObservableGauge
}

// globalMetrics is the singleton metrics instance.
var (
	globalMetrics   *Metrics
	globalMetricsMu sync.RWMutex
)

// NewMetrics creates a new Metrics instance with the given configuration.
func NewMetrics(ctx context.Context, cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil {
		cfg = DefaultMetricsConfig()
	}

	m := &Metrics{
		config: cfg,
	}

	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		// Use no-op meter when disabled
		m.meterProvider = sdkmetric.NewMeterProvider()
		m.meter = m.meterProvider.Meter(cfg.ServiceName)
		m.shutdown = func(context.Context) error { return nil }
		return m, nil
	}

	// Create exporter based on type
	exporter, err := m.createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	// Create resource with service information
	res, err := m.createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}

	// Create meter provider
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	m.meterProvider = mp
	m.meter = mp.Meter(cfg.ServiceName)
	m.shutdown = mp.Shutdown

	// Register metric instruments
	if err := m.registerInstruments(); err != nil {
		return nil, fmt.Errorf("failed to register metric instruments: %w", err)
	}

	return m, nil
}

// createExporter creates the appropriate metrics exporter based on configuration.
func (m *Metrics) createExporter(ctx context.Context, cfg *MetricsConfig) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()

	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

// createResource creates the OpenTelemetry resource with service information.
func (m *Metrics) createResource(cfg *MetricsConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	// Add custom attributes
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", attrs...),
	)
}

// registerInstruments creates and registers all metric instruments.
func (m *Metrics) registerInstruments() error {
	var err error

	// Event counter with event_type attribute
	m.eventCounter, err = m.meter.Int64Counter(
		"gobcore.events",
		metric.WithDescription("Count of monitoring events by type"),
	)
	if err != nil {
		return fmt.Errorf("failed to create event counter: %w", err)
	}

	// Error counter with category attribute
	m.errorCounter, err = m.meter.Int64Counter(
		"gobcore.errors",
		metric.WithDescription("Count of errors by category"),
	)
	if err != nil {
		return fmt.Errorf("failed to create error counter: %w", err)
	}

	// Supervised process crash counter
	m.crashCounter, err = m.meter.Int64Counter(
		"gobcore.process.crashes",
		metric.WithDescription("Count of supervised process crashes"),
	)
	if err != nil {
		return fmt.Errorf("failed to create crash counter: %w", err)
	}

	// Supervised process restart counter
	m.restartCounter, err = m.meter.Int64Counter(
		"gobcore.process.restarts",
		metric.WithDescription("Count of supervised process restarts"),
	)
	if err != nil {
		return fmt.Errorf("failed to create restart counter: %w", err)
	}

	// Message counter
	m.messageCounter, err = m.meter.Int64Counter(
		"gobcore.messages",
		metric.WithDescription("Count of agent messages recorded"),
	)
	if err != nil {
		return fmt.Errorf("failed to create message counter: %w", err)
	}

	// Agent response latency histogram (in seconds)
	m.responseLatency, err = m.meter.Float64Histogram(
		"gobcore.agent.response_time",
		metric.WithDescription("Agent response time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create response time histogram: %w", err)
	}

	// Observable gauges fed by the gauge callback
	m.agentGauge, err = m.meter.Int64ObservableGauge(
		"gobcore.agents.active",
		metric.WithDescription("Number of active agents"),
	)
	if err != nil {
		return fmt.Errorf("failed to create agent gauge: %w", err)
	}

	m.conversationGauge, err = m.meter.Int64ObservableGauge(
		"gobcore.conversations.active",
		metric.WithDescription("Number of active conversations"),
	)
	if err != nil {
		return fmt.Errorf("failed to create conversation gauge: %w", err)
	}

	m.cpuGauge, err = m.meter.Float64ObservableGauge(
		"gobcore.system.cpu_percent",
		metric.WithDescription("Host CPU usage percentage"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cpu gauge: %w", err)
	}

	m.memoryGauge, err = m.meter.Float64ObservableGauge(
		"gobcore.system.memory_percent",
		metric.WithDescription("Host memory usage percentage"),
	)
	if err != nil {
		return fmt.Errorf("failed to create memory gauge: %w", err)
	}

	m.gaugeReg, err = m.meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			m.mu.RLock()
			gaugeFunc := m.gaugeFunc
			m.mu.RUnlock()
			if gaugeFunc == nil {
				return nil
			}
			snap := gaugeFunc()
			o.ObserveInt64(m.agentGauge, snap.ActiveAgents)
			o.ObserveInt64(m.conversationGauge, snap.ActiveConversations)
			o.ObserveFloat64(m.cpuGauge, snap.CPUPercent)
			o.ObserveFloat64(m.memoryGauge, snap.MemoryPercent)
			return nil
		},
		m.agentGauge, m.conversationGauge, m.cpuGauge, m.memoryGauge,
	)
	if err != nil {
		return fmt.Errorf("failed to register gauge callback: %w", err)
	}

	return nil
}

// SetGaugeFunc sets the snapshot function read by the observable gauge
// callback. Thread-safe; the function must be cheap and non-blocking.
func (m *Metrics) SetGaugeFunc(f func() GaugeSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gaugeFunc = f
}

// RecordEvent counts a monitoring event by type.
func (m *Metrics) RecordEvent(ctx context.Context, eventType string) {
	if m.eventCounter == nil {
		return
	}

	m.eventCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordError records an error with the specified category.
func (m *Metrics) RecordError(ctx context.Context, category string) {
	if m.errorCounter == nil {
		return
	}

	m.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
	))
}

// RecordCrash increments the supervised process crash counter.
func (m *Metrics) RecordCrash(ctx context.Context) {
	if m.crashCounter == nil {
		return
	}

	m.crashCounter.Add(ctx, 1)
}

// RecordRestart increments the supervised process restart counter.
func (m *Metrics) RecordRestart(ctx context.Context) {
	if m.restartCounter == nil {
		return
	}

	m.restartCounter.Add(ctx, 1)
}

// RecordMessage counts one recorded agent message.
func (m *Metrics) RecordMessage(ctx context.Context, direction string) {
	if m.messageCounter == nil {
		return
	}

	m.messageCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("direction", direction),
	))
}

// RecordResponseTime records one agent response time observation.
func (m *Metrics) RecordResponseTime(ctx context.Context, agentID string, seconds float64) {
	if m.responseLatency == nil {
		return
	}

	m.responseLatency.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("agent_id", agentID),
	))
}

// Shutdown gracefully shuts down the metrics provider, flushing any pending metrics.
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Unregister callback if registered
	if m.gaugeReg != nil {
		if err := m.gaugeReg.Unregister(); err != nil {
			return fmt.Errorf("failed to unregister gauge callback: %w", err)
		}
	}

	if m.shutdown != nil {
		return m.shutdown(ctx)
	}
	return nil
}

// Enabled returns whether metrics collection is enabled.
func (m *Metrics) Enabled() bool {
	return m.config.Enabled && m.config.ExporterType != ExporterNone
}

// MeterProvider returns the underlying meter provider.
func (m *Metrics) MeterProvider() *sdkmetric.MeterProvider {
	return m.meterProvider
}

// SetGlobalMetrics sets the global metrics instance.
func SetGlobalMetrics(m *Metrics) {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	globalMetrics = m

	if m != nil && m.Enabled() {
		otel.SetMeterProvider(m.meterProvider)
	}
}

// GetGlobalMetrics returns the global metrics instance.
// Returns a no-op metrics instance if none has been set.
func GetGlobalMetrics() *Metrics {
	globalMetricsMu.RLock()
	defer globalMetricsMu.RUnlock()

	if globalMetrics == nil {
		return NoopMetrics()
	}

	return globalMetrics
}

// NoopMetrics returns a metrics instance that does nothing (for testing or when disabled).
func NoopMetrics() *Metrics {
	cfg := DefaultMetricsConfig()
	mp := sdkmetric.NewMeterProvider()
	return &Metrics{
		config:        cfg,
		meterProvider: mp,
		meter:         mp.Meter(cfg.ServiceName),
		shutdown:      func(context.Context) error { return nil },
	}
}
