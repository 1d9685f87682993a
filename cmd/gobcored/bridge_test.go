package main

import (
	"context"
	"testing"

	"github.com/gobstack/gobcore/internal/monitor"
	"github.com/gobstack/gobcore/internal/otel"
)

func TestMessageDirection(t *testing.T) {
	tests := []struct {
		name  string
		event monitor.MonitoringEvent
		want  string
	}{
		{
			name: "explicit_message_type",
			event: monitor.MonitoringEvent{
				EventType: monitor.EventMessageSent,
				Data:      map[string]any{"message_type": "outgoing"},
			},
			want: "outgoing",
		},
		{
			name: "empty_message_type_falls_back",
			event: monitor.MonitoringEvent{
				EventType: monitor.EventMessageReceived,
				Data:      map[string]any{"message_type": ""},
			},
			want: "message_received",
		},
		{
			name: "missing_data",
			event: monitor.MonitoringEvent{
				EventType: monitor.EventMessageSent,
			},
			want: "message_sent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := messageDirection(tt.event); got != tt.want {
				t.Errorf("messageDirection = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEventResponseTime(t *testing.T) {
	tests := []struct {
		name   string
		data   map[string]any
		want   float64
		wantOK bool
	}{
		{"float", map[string]any{"response_time": 0.75}, 0.75, true},
		{"int", map[string]any{"response_time": 2}, 2, true},
		{"zero_is_not_an_observation", map[string]any{"response_time": 0.0}, 0, false},
		{"missing", map[string]any{}, 0, false},
		{"wrong_type", map[string]any{"response_time": "fast"}, 0, false},
		{"nil_data", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := eventResponseTime(monitor.MonitoringEvent{Data: tt.data})
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("eventResponseTime = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestBridgeEventForwardsAllInstrumentPaths(t *testing.T) {
	ctx := context.Background()
	m, err := otel.NewMetrics(ctx, &otel.MetricsConfig{
		Enabled:      true,
		ServiceName:  "test-service",
		ExporterType: otel.ExporterStdout,
	})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	defer m.Shutdown(ctx)

	bridgeEvent(ctx, m, monitor.MonitoringEvent{
		EventType: monitor.EventAgentCreated,
		SourceID:  "agent-1",
	})
	bridgeEvent(ctx, m, monitor.MonitoringEvent{
		EventType:  monitor.EventErrorOccurred,
		SourceID:   "agent-1",
		SourceType: "agent",
	})
	bridgeEvent(ctx, m, monitor.MonitoringEvent{
		EventType: monitor.EventMessageSent,
		SourceID:  "agent-1",
		Data: map[string]any{
			"message_type":  "outgoing",
			"response_time": 0.5,
		},
	})
}

func TestBridgeEventNoopMetrics(t *testing.T) {
	ctx := context.Background()
	m := otel.NoopMetrics()

	// Must not panic with no instruments registered.
	bridgeEvent(ctx, m, monitor.MonitoringEvent{
		EventType: monitor.EventMessageSent,
		SourceID:  "agent-1",
		Data:      map[string]any{"response_time": 1.5},
	})
}
