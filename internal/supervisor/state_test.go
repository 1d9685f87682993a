package supervisor

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateStopped, StateStarting, true},
		{StateStopped, StateRunning, false},
		{StateStarting, StateRunning, true},
		{StateStarting, StateCrashed, true},
		{StateStarting, StateError, true},
		{StateStarting, StateStopping, true},
		{StateRunning, StateStopping, true},
		{StateRunning, StateCrashed, true},
		{StateRunning, StateStarting, false},
		{StateStopping, StateStopped, true},
		{StateStopping, StateRunning, false},
		{StateCrashed, StateStarting, true},
		{StateCrashed, StateStopping, true},
		{StateCrashed, StateRunning, false},
		{StateError, StateStarting, true},
		{StateError, StateStopped, false},
		{State("bogus"), StateStarting, false},
	}

	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
