// Package supervisor manages the full lifecycle of exactly one externally
// spawned process: start/stop/restart with deterministic shutdown
// escalation, output capture into bounded buffers, crash detection, and an
// optional auto-restart policy. All lifecycle transitions are reported as
// events through the monitoring state store.
package supervisor

import "log/slog"

// State is the supervised process lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateCrashed  State = "crashed"
	StateError    State = "error"
)

var allowedTransitions = map[State]map[State]struct{}{
	StateStopped: {
		StateStarting: {},
	},
	StateStarting: {
		StateRunning:  {},
		StateCrashed:  {},
		StateError:    {},
		StateStopping: {},
	},
	StateRunning: {
		StateStopping: {},
		StateCrashed:  {},
		StateError:    {},
	},
	StateStopping: {
		StateStopped: {},
		StateError:   {},
	},
	StateCrashed: {
		StateStarting: {},
		StateStopping: {},
	},
	StateError: {
		StateStarting: {},
		StateStopping: {},
	},
}

// CanTransition reports whether a state transition is valid.
func CanTransition(from, to State) bool {
	allowed, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// warnInvalidTransition logs a transition outside the allowed map. The
// transition is still applied: the state machine tracks the process, it
// does not gate it.
func warnInvalidTransition(from, to State) {
	slog.Warn("unexpected_state_transition",
		"from", string(from),
		"to", string(to),
	)
}
