package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Result summarizes a closed run.
type Result struct {
	Completed         int
	FailedPermanently int

	// Released counts items written back as Pending by a forced shutdown.
	Released int

	// Retries counts transitions to Retrying.
	Retries int

	// PersistenceFailures counts failed Gateway writes.
	PersistenceFailures int

	// Elapsed is the wall time from start to close.
	Elapsed time.Duration

	// Forced is true when the run was cancelled before every item settled.
	Forced bool
}

// Err returns a PERSISTENCE_FAILURE error when any Gateway write failed.
func (r Result) Err() error {
	if r.PersistenceFailures == 0 {
		return nil
	}
	return &Error{
		Code:    ErrCodePersistenceFailure,
		Message: fmt.Sprintf("%d status writes failed", r.PersistenceFailures),
	}
}

// Handle tracks a started run.
type Handle struct {
	run *run
}

// Done is closed when the run is Closed.
func (h *Handle) Done() <-chan struct{} {
	return h.run.done
}

// Wait blocks until the run is Closed or ctx ends.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.run.done:
		return h.run.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// run is the state owned by one Start..Closed cycle.
type run struct {
	ctx        context.Context
	cancel     context.CancelCauseFunc
	persistCtx context.Context

	main    *PriorityChannel
	retries *PriorityChannel

	// outstanding = admitted - (terminal + released)
	outstanding atomic.Int64

	completed       atomic.Int64
	failed          atomic.Int64
	released        atomic.Int64
	retried         atomic.Int64
	persistFailures atomic.Int64

	started time.Time
	wg      sync.WaitGroup

	graceMu sync.Mutex
	grace   *time.Timer

	closeOnce sync.Once
	done      chan struct{}
	result    Result
}

func newRun(parent context.Context, less Comparator) *run {
	ctx, cancel := context.WithCancelCause(parent)
	return &run{
		ctx:        ctx,
		cancel:     cancel,
		persistCtx: context.WithoutCancel(parent),
		main:       NewPriorityChannel(less),
		retries:    NewPriorityChannel(ByDueTime),
		started:    time.Now(),
		done:       make(chan struct{}),
	}
}

// armGrace schedules the forced cancellation once.
func (r *run) armGrace(d time.Duration) {
	r.graceMu.Lock()
	defer r.graceMu.Unlock()

	if r.grace != nil {
		return
	}
	r.grace = time.AfterFunc(d, func() {
		slog.Warn("grace period expired, cancelling run", "outstanding", r.outstanding.Load())
		r.cancel(ErrGraceExpired)
	})
}

func (r *run) disarmGrace() {
	r.graceMu.Lock()
	defer r.graceMu.Unlock()

	if r.grace != nil {
		r.grace.Stop()
	}
}

func (r *run) closeChannels() {
	r.closeOnce.Do(func() {
		r.main.Close()
		r.retries.Close()
	})
}

// finish runs after every worker and retry goroutine has exited. It
// releases whatever a forced shutdown left queued, publishes the Result and
// moves the engine to Closed.
func (e *Engine) finish(r *run) {
	r.disarmGrace()
	forced := r.ctx.Err() != nil
	cause := context.Cause(r.ctx)

	r.closeChannels()
	leftovers := append(r.main.Drain(), r.retries.Drain()...)
	for _, entry := range leftovers {
		e.release(r, entry)
	}
	r.cancel(nil)

	r.result = Result{
		Completed:           int(r.completed.Load()),
		FailedPermanently:   int(r.failed.Load()),
		Released:            int(r.released.Load()),
		Retries:             int(r.retried.Load()),
		PersistenceFailures: int(r.persistFailures.Load()),
		Elapsed:             time.Since(r.started),
		Forced:              forced,
	}

	e.mu.Lock()
	if e.current == r {
		e.state = StateClosed
	}
	e.mu.Unlock()

	if forced {
		slog.Warn("run terminated abnormally",
			"cause", cause,
			"released", r.result.Released,
			"completed", r.result.Completed,
			"failed_permanently", r.result.FailedPermanently,
		)
	}
	slog.Info("run closed",
		"completed", r.result.Completed,
		"failed_permanently", r.result.FailedPermanently,
		"released", r.result.Released,
		"retries", r.result.Retries,
		"persistence_failures", r.result.PersistenceFailures,
		"elapsed", r.result.Elapsed,
	)

	close(r.done)
}
