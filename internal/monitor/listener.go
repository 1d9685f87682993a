package monitor

// EventListener observes every emitted monitoring event. Listeners are
// invoked synchronously, in registration order, while the emitting call is
// still in progress; they must not block and must not call back into the
// Store (the store lock is held during notification). A panicking listener
// is recovered and never interrupts monitoring or later listeners.
type EventListener interface {
	OnEvent(event MonitoringEvent)
}

// EventListenerFunc adapts a function to the EventListener interface.
type EventListenerFunc func(event MonitoringEvent)

func (f EventListenerFunc) OnEvent(event MonitoringEvent) { f(event) }

// MetricsListener observes every metrics sample produced by the sampling
// loop. The same invocation and isolation contract as EventListener applies.
type MetricsListener interface {
	OnMetrics(sample SystemMetrics)
}

// MetricsListenerFunc adapts a function to the MetricsListener interface.
type MetricsListenerFunc func(sample SystemMetrics)

func (f MetricsListenerFunc) OnMetrics(sample SystemMetrics) { f(sample) }
