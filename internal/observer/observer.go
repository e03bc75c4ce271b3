// Package observer provides engine Observer implementations: structured
// logging, a streaming table view, fan-out and an in-memory recorder for
// tests.
//
// Every type here satisfies engine.Observer structurally. The package does
// not import the engine so engine tests can use the Recorder.
package observer

import (
	"time"

	"github.com/roach88/txsim/internal/ir"
)

// Observer mirrors engine.Observer.
type Observer interface {
	OnEnqueued(item ir.WorkItem)
	OnStarted(item ir.WorkItem, worker string)
	OnCompleted(item ir.WorkItem, elapsed time.Duration)
	OnRetrying(item ir.WorkItem, attempt int)
	OnFailedPermanently(item ir.WorkItem)
}

// Releaser mirrors engine.ReleaseObserver.
type Releaser interface {
	OnReleased(item ir.WorkItem, from ir.Status)
}

// Nop ignores every event.
type Nop struct{}

func (Nop) OnEnqueued(ir.WorkItem)                 {}
func (Nop) OnStarted(ir.WorkItem, string)          {}
func (Nop) OnCompleted(ir.WorkItem, time.Duration) {}
func (Nop) OnRetrying(ir.WorkItem, int)            {}
func (Nop) OnFailedPermanently(ir.WorkItem)        {}

// Multi fans every event out to each observer in order.
type Multi []Observer

// NewMulti drops nil observers.
func NewMulti(obs ...Observer) Multi {
	out := make(Multi, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (m Multi) OnEnqueued(item ir.WorkItem) {
	for _, o := range m {
		o.OnEnqueued(item)
	}
}

func (m Multi) OnStarted(item ir.WorkItem, worker string) {
	for _, o := range m {
		o.OnStarted(item, worker)
	}
}

func (m Multi) OnCompleted(item ir.WorkItem, elapsed time.Duration) {
	for _, o := range m {
		o.OnCompleted(item, elapsed)
	}
}

func (m Multi) OnRetrying(item ir.WorkItem, attempt int) {
	for _, o := range m {
		o.OnRetrying(item, attempt)
	}
}

func (m Multi) OnFailedPermanently(item ir.WorkItem) {
	for _, o := range m {
		o.OnFailedPermanently(item)
	}
}

// OnReleased forwards to the observers that implement Releaser.
func (m Multi) OnReleased(item ir.WorkItem, from ir.Status) {
	for _, o := range m {
		if r, ok := o.(Releaser); ok {
			r.OnReleased(item, from)
		}
	}
}
