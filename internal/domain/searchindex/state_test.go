package searchindex

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to IndexState
		want     bool
	}{
		{StatePending, StateExtracting, true},
		{StateExtracting, StatePersisting, true},
		{StateExtracting, StateDone, true},
		{StateExtracting, StateFailed, true},
		{StatePersisting, StateDone, true},
		{StatePersisting, StateFailed, true},
		{StatePending, StatePersisting, false},
		{StatePending, StateFailed, false},
		{StateDone, StateExtracting, false},
		{StateFailed, StatePending, false},
		{StatePersisting, StateExtracting, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStateTracker(t *testing.T) {
	var seen []IndexState
	tr := newStateTracker("Patient/p1", func(ref string, _, to IndexState) {
		if ref != "Patient/p1" {
			t.Errorf("observer ref = %q", ref)
		}
		seen = append(seen, to)
	})

	if err := tr.advance(StateDone); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending -> done error = %v, want ErrInvalidTransition", err)
	}
	if tr.state != StatePending || len(seen) != 0 {
		t.Fatalf("rejected transition changed state to %s", tr.state)
	}

	// Failed is not reachable from Pending.
	tr.fail()
	if tr.state != StatePending {
		t.Errorf("fail from pending moved to %s", tr.state)
	}

	if err := tr.advance(StateExtracting); err != nil {
		t.Fatalf("advance: %v", err)
	}
	tr.fail()
	if tr.state != StateFailed {
		t.Errorf("state = %s, want failed", tr.state)
	}
	if len(seen) != 2 || seen[0] != StateExtracting || seen[1] != StateFailed {
		t.Errorf("observed = %v", seen)
	}
}
