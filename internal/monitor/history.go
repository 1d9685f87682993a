package monitor

// Bounded FIFO histories for events and metrics samples. These types do no
// locking of their own: callers must hold the store lock, so an append and
// the registry mutation that caused it stay atomic with respect to readers.

// eventRing is a capacity-bounded append-only event sequence. Once at
// capacity, appending evicts the oldest entry first.
type eventRing struct {
	entries  []MonitoringEvent
	capacity int
}

func newEventRing(capacity int) *eventRing {
	return &eventRing{
		entries:  make([]MonitoringEvent, 0, min(capacity, 256)),
		capacity: capacity,
	}
}

func (r *eventRing) append(e MonitoringEvent) {
	if len(r.entries) >= r.capacity {
		r.entries = r.entries[1:]
	}
	r.entries = append(r.entries, e)
}

func (r *eventRing) len() int { return len(r.entries) }

// recent returns up to limit entries, most recent first, optionally
// restricted to a set of event types. Insertion order is authoritative.
func (r *eventRing) recent(limit int, types []EventType) []MonitoringEvent {
	var match func(EventType) bool
	if len(types) > 0 {
		set := make(map[EventType]struct{}, len(types))
		for _, t := range types {
			set[t] = struct{}{}
		}
		match = func(t EventType) bool {
			_, ok := set[t]
			return ok
		}
	}

	result := make([]MonitoringEvent, 0, min(limit, len(r.entries)))
	for i := len(r.entries) - 1; i >= 0 && len(result) < limit; i-- {
		e := r.entries[i]
		if match != nil && !match(e.EventType) {
			continue
		}
		result = append(result, e)
	}
	return result
}

// metricsRing is a capacity-bounded FIFO of metrics samples.
type metricsRing struct {
	entries  []SystemMetrics
	capacity int
}

func newMetricsRing(capacity int) *metricsRing {
	return &metricsRing{
		entries:  make([]SystemMetrics, 0, min(capacity, 256)),
		capacity: capacity,
	}
}

func (r *metricsRing) append(m SystemMetrics) {
	if len(r.entries) >= r.capacity {
		r.entries = r.entries[1:]
	}
	r.entries = append(r.entries, m)
}

func (r *metricsRing) len() int { return len(r.entries) }

// tail returns the trailing limit samples, oldest first. A limit <= 0
// returns the full history.
func (r *metricsRing) tail(limit int) []SystemMetrics {
	entries := r.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	result := make([]SystemMetrics, len(entries))
	copy(result, entries)
	return result
}

// floatWindow keeps the last N observations and their mean.
type floatWindow struct {
	values   []float64
	capacity int
}

func newFloatWindow(capacity int) *floatWindow {
	return &floatWindow{capacity: capacity}
}

func (w *floatWindow) push(v float64) {
	if len(w.values) >= w.capacity {
		w.values = w.values[1:]
	}
	w.values = append(w.values, v)
}

func (w *floatWindow) mean() float64 {
	if len(w.values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range w.values {
		sum += v
	}
	return sum / float64(len(w.values))
}
