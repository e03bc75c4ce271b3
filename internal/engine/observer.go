package engine

import (
	"time"

	"github.com/roach88/txsim/internal/ir"
)

// Observer receives item lifecycle notifications.
//
// Callbacks run synchronously on the worker or retry goroutine that caused
// them. Implementations must be safe for concurrent use and must not block
// indefinitely.
type Observer interface {
	OnEnqueued(item ir.WorkItem)
	OnStarted(item ir.WorkItem, worker string)
	OnCompleted(item ir.WorkItem, elapsed time.Duration)
	OnRetrying(item ir.WorkItem, attempt int)
	OnFailedPermanently(item ir.WorkItem)
}

// ReleaseObserver is an optional extension of Observer. The engine calls
// OnReleased when an unfinished item is written back as Pending; from is
// the status it held at that moment.
type ReleaseObserver interface {
	OnReleased(item ir.WorkItem, from ir.Status)
}

type nopObserver struct{}

func (nopObserver) OnEnqueued(ir.WorkItem)                 {}
func (nopObserver) OnStarted(ir.WorkItem, string)          {}
func (nopObserver) OnCompleted(ir.WorkItem, time.Duration) {}
func (nopObserver) OnRetrying(ir.WorkItem, int)            {}
func (nopObserver) OnFailedPermanently(ir.WorkItem)        {}
