package observer

import (
	"sync"
	"time"

	"github.com/roach88/txsim/internal/ir"
)

// EventKind names a recorded lifecycle event.
type EventKind string

const (
	EventEnqueued          EventKind = "enqueued"
	EventStarted           EventKind = "started"
	EventCompleted         EventKind = "completed"
	EventRetrying          EventKind = "retrying"
	EventFailedPermanently EventKind = "failed_permanently"
)

// Event is one recorded callback.
type Event struct {
	Kind     EventKind
	ItemID   string
	Priority float64
	Worker   string // started only
	Attempt  int    // retrying only
}

// Recorder keeps every event in arrival order.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnEnqueued(item ir.WorkItem) {
	r.add(Event{Kind: EventEnqueued, ItemID: item.ID(), Priority: item.Priority()})
}

func (r *Recorder) OnStarted(item ir.WorkItem, worker string) {
	r.add(Event{Kind: EventStarted, ItemID: item.ID(), Priority: item.Priority(), Worker: worker})
}

func (r *Recorder) OnCompleted(item ir.WorkItem, _ time.Duration) {
	r.add(Event{Kind: EventCompleted, ItemID: item.ID(), Priority: item.Priority()})
}

func (r *Recorder) OnRetrying(item ir.WorkItem, attempt int) {
	r.add(Event{Kind: EventRetrying, ItemID: item.ID(), Priority: item.Priority(), Attempt: attempt})
}

func (r *Recorder) OnFailedPermanently(item ir.WorkItem) {
	r.add(Event{Kind: EventFailedPermanently, ItemID: item.ID(), Priority: item.Priority()})
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of every recorded event.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// IDs returns the item ids of events of kind, in arrival order.
func (r *Recorder) IDs(kind EventKind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for _, e := range r.events {
		if e.Kind == kind {
			ids = append(ids, e.ItemID)
		}
	}
	return ids
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind EventKind) int {
	return len(r.IDs(kind))
}

// Reset forgets every event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
