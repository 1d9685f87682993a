package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gobstack/gobcore/internal/api"
	"github.com/gobstack/gobcore/internal/config"
	"github.com/gobstack/gobcore/internal/events"
	"github.com/gobstack/gobcore/internal/metrics"
	"github.com/gobstack/gobcore/internal/monitor"
	"github.com/gobstack/gobcore/internal/otel"
	"github.com/gobstack/gobcore/internal/supervisor"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP server address")
	stateFile := flag.String("state-file", config.DefaultStatePath, "Durable core state snapshot path")
	workDir := flag.String("workdir", "", "Working directory for the supervised process")
	autoRestart := flag.Bool("auto-restart", false, "Restart the supervised process after a crash")
	startCommand := flag.String("start", "", "Command to supervise at boot (optional)")
	otelExporter := flag.String("otel-exporter", "none", "OpenTelemetry exporter: none, stdout, otlp-grpc, otlp-http")
	otelEndpoint := flag.String("otel-endpoint", "", "OTLP endpoint (e.g., localhost:4317)")
	otelInsecure := flag.Bool("otel-insecure", false, "Disable TLS for OTLP connections")
	flag.Parse()

	logger := events.NewEventLogger(config.ServiceName)
	events.SetGlobalEventLogger(logger)

	ctx := context.Background()
	otelEnabled := *otelExporter != "" && *otelExporter != string(otel.ExporterNone)

	tracer, err := otel.NewTracer(ctx, &otel.Config{
		Enabled:        otelEnabled,
		ServiceName:    config.ServiceName,
		ServiceVersion: config.ServiceVersion,
		ExporterType:   otel.ExporterType(*otelExporter),
		OTLPEndpoint:   *otelEndpoint,
		OTLPInsecure:   *otelInsecure,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating tracer: %v\n", err)
		os.Exit(1)
	}
	otel.SetGlobalTracer(tracer)

	otelMetrics, err := otel.NewMetrics(ctx, &otel.MetricsConfig{
		Enabled:        otelEnabled,
		ServiceName:    config.ServiceName,
		ServiceVersion: config.ServiceVersion,
		ExporterType:   otel.ExporterType(*otelExporter),
		OTLPEndpoint:   *otelEndpoint,
		OTLPInsecure:   *otelInsecure,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating metrics: %v\n", err)
		os.Exit(1)
	}
	otel.SetGlobalMetrics(otelMetrics)

	store := monitor.NewStore(monitor.StoreConfig{
		StatePath: *stateFile,
		Logger:    logger,
	})

	otelMetrics.SetGaugeFunc(func() otel.GaugeSnapshot {
		m := store.CurrentMetrics()
		return otel.GaugeSnapshot{
			ActiveAgents:        int64(m.ActiveAgents),
			ActiveConversations: int64(m.ActiveConversations),
			CPUPercent:          m.CPUPercent,
			MemoryPercent:       m.MemoryPercent,
		}
	})

	// Bridge monitoring events into the OpenTelemetry instruments.
	store.AddEventListener(monitor.EventListenerFunc(func(event monitor.MonitoringEvent) {
		bridgeEvent(ctx, otelMetrics, event)
	}))

	store.StartMonitoring()

	sup := supervisor.New(store, supervisor.Config{
		WorkDir:     *workDir,
		AutoRestart: *autoRestart,
		Logger:      logger,
	})
	sup.AddStateChangeCallback(func(oldState, newState supervisor.State) {
		switch newState {
		case supervisor.StateCrashed:
			otelMetrics.RecordCrash(ctx)
		case supervisor.StateStarting:
			if oldState == supervisor.StateCrashed || oldState == supervisor.StateError {
				otelMetrics.RecordRestart(ctx)
			}
		}
	})

	collector := metrics.NewCollector()
	collector.SetStateProvider(store)
	collector.SetProcessProvider(sup)

	server := api.NewServer(*addr, store)
	server.SetSupervisor(sup)
	server.SetMetricsCollector(collector)
	server.SetTracer(tracer)

	if err := server.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("gobcore listening on %s\n", server.URL())

	if *startCommand != "" {
		startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := sup.Start(startCtx, *startCommand, flag.Args()...); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting supervised process: %v\n", err)
		}
		cancel()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
	}
	if err := sup.Stop(shutdownCtx, false); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping supervised process: %v\n", err)
	}
	store.StopMonitoring()

	if err := otelMetrics.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error shutting down metrics: %v\n", err)
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error shutting down tracer: %v\n", err)
	}
	fmt.Println("Server stopped")
}
