package engine

import (
	"container/heap"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/roach88/txsim/internal/ir"
)

// Entry is one queued unit of work.
type Entry struct {
	Item ir.WorkItem

	// Seq is the insertion sequence from the engine Clock.
	Seq int64

	// Retries counts how many times the item was sent back for retry.
	Retries int

	// NotBefore is the earliest time a retry may be re-submitted.
	// Zero for entries in the main channel.
	NotBefore time.Time
}

// Comparator reports whether a must be served before b.
type Comparator func(a, b Entry) bool

// TieBreak selects the order of entries with equal priority.
type TieBreak int

const (
	// TieBreakFIFO serves the earlier inserted entry first.
	TieBreakFIFO TieBreak = iota
	// TieBreakLIFO serves the most recently inserted entry first.
	TieBreakLIFO
	// TieBreakID serves the lexicographically smaller id first.
	TieBreakID
)

var tieBreakNames = map[TieBreak]string{
	TieBreakFIFO: "fifo",
	TieBreakLIFO: "lifo",
	TieBreakID:   "id",
}

func (t TieBreak) String() string {
	if name, ok := tieBreakNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TieBreak(%d)", int(t))
}

// ParseTieBreak converts "fifo", "lifo" or "id" (case-insensitive).
func ParseTieBreak(s string) (TieBreak, error) {
	for tb, name := range tieBreakNames {
		if strings.EqualFold(s, name) {
			return tb, nil
		}
	}
	return 0, fmt.Errorf("unknown tie-break %q (want fifo, lifo or id)", s)
}

// ByPriority orders entries by priority descending, then by tb.
func ByPriority(tb TieBreak) Comparator {
	return func(a, b Entry) bool {
		if pa, pb := a.Item.Priority(), b.Item.Priority(); pa != pb {
			return pa > pb
		}
		switch tb {
		case TieBreakLIFO:
			return a.Seq > b.Seq
		case TieBreakID:
			if a.Item.ID() != b.Item.ID() {
				return a.Item.ID() < b.Item.ID()
			}
			return a.Seq < b.Seq
		default:
			return a.Seq < b.Seq
		}
	}
}

// ByDueTime orders retry entries by NotBefore, then insertion order.
func ByDueTime(a, b Entry) bool {
	if !a.NotBefore.Equal(b.NotBefore) {
		return a.NotBefore.Before(b.NotBefore)
	}
	return a.Seq < b.Seq
}

// entryHeap adapts a slice of entries to container/heap.
type entryHeap struct {
	entries []Entry
	less    Comparator
}

func (h *entryHeap) Len() int           { return len(h.entries) }
func (h *entryHeap) Less(i, j int) bool { return h.less(h.entries[i], h.entries[j]) }
func (h *entryHeap) Swap(i, j int)      { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }

func (h *entryHeap) Push(x any) {
	h.entries = append(h.entries, x.(Entry))
}

func (h *entryHeap) Pop() any {
	n := len(h.entries)
	e := h.entries[n-1]
	h.entries[n-1] = Entry{}
	h.entries = h.entries[:n-1]
	return e
}

// PriorityChannel is a thread-safe, unbounded priority queue with
// context-aware blocking dequeue.
//
// The channel is unbounded: Enqueue never blocks and never fails while the
// channel is open. Memory grows with the backlog; callers that need
// back-pressure must bound intake themselves.
//
// Each dequeue returns the maximum entry (by the comparator) present at the
// moment of the call. There is no total order across concurrent consumers.
//
// The signal channel follows the same pattern as a one-slot doorbell: sends
// coalesce, and a consumer that removes an entry rings again when entries
// remain, so a second waiter is never stranded.
type PriorityChannel struct {
	mu     sync.Mutex
	heap   entryHeap
	closed bool
	signal chan struct{} // buffered, size 1; closed by Close
}

// NewPriorityChannel creates an empty channel ordered by less.
func NewPriorityChannel(less Comparator) *PriorityChannel {
	return &PriorityChannel{
		heap:   entryHeap{entries: make([]Entry, 0, 64), less: less},
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an entry. Returns false if the channel is closed.
// Thread-safe: may be called from any goroutine.
func (c *PriorityChannel) Enqueue(e Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	heap.Push(&c.heap, e)
	c.notifyLocked()
	return true
}

// TryDequeue removes and returns the maximum entry without blocking.
// Returns (Entry{}, false) if the channel is empty.
func (c *PriorityChannel) TryDequeue() (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.heap.Len() == 0 {
		return Entry{}, false
	}

	e := heap.Pop(&c.heap).(Entry)
	if c.heap.Len() > 0 {
		c.notifyLocked()
	}
	return e, true
}

// DequeueBlocking removes and returns the maximum entry, waiting up to
// timeout for one to arrive. It returns (Entry{}, false) when the timeout
// elapses, ctx ends, or the channel is closed and empty. A non-positive
// timeout waits until an entry arrives, ctx ends or the channel closes.
func (c *PriorityChannel) DequeueBlocking(ctx context.Context, timeout time.Duration) (Entry, bool) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if e, ok := c.TryDequeue(); ok {
			return e, true
		}
		if c.Closed() {
			return Entry{}, false
		}

		select {
		case <-ctx.Done():
			return Entry{}, false
		case <-expired:
			return Entry{}, false
		case <-c.signal:
		}
	}
}

// Peek returns the maximum entry without removing it.
func (c *PriorityChannel) Peek() (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.heap.Len() == 0 {
		return Entry{}, false
	}
	return c.heap.entries[0], true
}

// Drain removes and returns every entry, in no particular order.
func (c *PriorityChannel) Drain() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.heap.entries
	c.heap.entries = make([]Entry, 0, 64)
	return out
}

// Clear empties the channel and returns how many entries were dropped.
func (c *PriorityChannel) Clear() int {
	return len(c.Drain())
}

// Len returns the number of queued entries.
func (c *PriorityChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heap.Len()
}

// Close stops accepting entries and wakes every blocked consumer.
// Entries already queued can still be dequeued.
func (c *PriorityChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.signal)
}

// Closed reports whether Close has been called.
func (c *PriorityChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// notifyLocked rings the doorbell without blocking. Caller holds c.mu.
func (c *PriorityChannel) notifyLocked() {
	if c.closed {
		return
	}
	select {
	case c.signal <- struct{}{}:
	default:
	}
}
