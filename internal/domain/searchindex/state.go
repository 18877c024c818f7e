package searchindex

import "fmt"

// IndexState is the lifecycle of one resource through the indexer.
type IndexState string

const (
	StatePending    IndexState = "pending"
	StateExtracting IndexState = "extracting"
	StatePersisting IndexState = "persisting"
	StateDone       IndexState = "done"
	StateFailed     IndexState = "failed"
)

var transitions = map[IndexState][]IndexState{
	StatePending:    {StateExtracting},
	StateExtracting: {StatePersisting, StateFailed, StateDone},
	StatePersisting: {StateDone, StateFailed},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to IndexState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateObserver is notified of every state change. ref is "Type/id" once
// known, or the source origin before the document is parsed.
type StateObserver func(ref string, from, to IndexState)

type stateTracker struct {
	ref      string
	state    IndexState
	observer StateObserver
}

func newStateTracker(ref string, observer StateObserver) *stateTracker {
	return &stateTracker{ref: ref, state: StatePending, observer: observer}
}

func (t *stateTracker) advance(to IndexState) error {
	if !CanTransition(t.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.state, to)
	}
	from := t.state
	t.state = to
	if t.observer != nil {
		t.observer(t.ref, from, to)
	}
	return nil
}

// fail moves to Failed when the current state allows it.
func (t *stateTracker) fail() {
	if CanTransition(t.state, StateFailed) {
		_ = t.advance(StateFailed)
	}
}
