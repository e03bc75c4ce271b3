package engine

import (
	"fmt"
	"sync"

	"github.com/roach88/txsim/internal/ir"
)

// statusTracker is the in-memory source of truth for item statuses.
//
// INVARIANTS:
//   - every transition follows ir.CanTransition, plus the Pending->Pending
//     release of an item that never left the queue
//   - nothing leaves Completed or FailedPermanently, so an id gets at most
//     one terminal status
type statusTracker struct {
	mu       sync.Mutex
	statuses map[string]ir.Status
}

func newStatusTracker() *statusTracker {
	return &statusTracker{statuses: make(map[string]ir.Status)}
}

// admissible reports whether id may be admitted as a new Pending item.
// Unknown ids and released (Pending) ids are admissible.
func (t *statusTracker) admissible(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.statuses[id]; ok && s != ir.StatusPending {
		return fmt.Errorf("item %s is already %s", id, s)
	}
	return nil
}

// admit records id as Pending.
func (t *statusTracker) admit(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses[id] = ir.StatusPending
}

// move transitions id to status and returns the previous status.
func (t *statusTracker) move(id string, to ir.Status) (ir.Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	from, ok := t.statuses[id]
	if !ok {
		return "", fmt.Errorf("item %s is not tracked", id)
	}
	if from == ir.StatusPending && to == ir.StatusPending {
		return from, nil
	}
	if !ir.CanTransition(from, to) {
		return from, fmt.Errorf("item %s: illegal transition %s -> %s", id, from, to)
	}
	t.statuses[id] = to
	return from, nil
}

func (t *statusTracker) get(id string) (ir.Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.statuses[id]
	return s, ok
}

func (t *statusTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses = make(map[string]ir.Status)
}
