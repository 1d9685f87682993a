package main

import (
	"context"

	"github.com/gobstack/gobcore/internal/monitor"
	"github.com/gobstack/gobcore/internal/otel"
)

// bridgeEvent forwards one monitoring event to the OpenTelemetry
// instruments: every event feeds the event counter, error events feed the
// error counter by source type, and message events feed the message
// counter and the response-time histogram.
func bridgeEvent(ctx context.Context, m *otel.Metrics, event monitor.MonitoringEvent) {
	m.RecordEvent(ctx, string(event.EventType))

	switch event.EventType {
	case monitor.EventErrorOccurred:
		m.RecordError(ctx, event.SourceType)
	case monitor.EventMessageSent, monitor.EventMessageReceived:
		m.RecordMessage(ctx, messageDirection(event))
		if rt, ok := eventResponseTime(event); ok {
			m.RecordResponseTime(ctx, event.SourceID, rt)
		}
	}
}

// messageDirection reads the message_type payload field, falling back to
// the event type when absent.
func messageDirection(event monitor.MonitoringEvent) string {
	if mt, ok := event.Data["message_type"].(string); ok && mt != "" {
		return mt
	}
	return string(event.EventType)
}

// eventResponseTime reads the response_time payload field. The store
// emits it as float64; events decoded from JSON arrive the same way.
// Zero and missing values are not observations.
func eventResponseTime(event monitor.MonitoringEvent) (float64, bool) {
	switch v := event.Data["response_time"].(type) {
	case float64:
		return v, v > 0
	case int:
		return float64(v), v > 0
	}
	return 0, false
}
