package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/roach88/txsim/internal/ir"
)

func workerName(n int) string {
	return "worker-" + strconv.Itoa(n)
}

// worker drains the main channel until the run is finished or cancelled.
//
// A worker exits when the channel stayed empty for the poll timeout while
// the run is Draining with nothing outstanding, when the channel is closed
// and empty, or when the run context is cancelled. Once cancelled, an entry
// already taken from the channel is released without being started.
func (e *Engine) worker(r *run, name string) {
	defer r.wg.Done()
	slog.Debug("worker started", "worker", name)

	for {
		entry, ok := r.main.DequeueBlocking(r.ctx, e.pollTimeout)
		if !ok {
			if r.ctx.Err() != nil {
				slog.Debug("worker stopping: run cancelled", "worker", name)
				return
			}
			if r.main.Closed() && r.main.Len() == 0 {
				slog.Debug("worker stopping: channel closed", "worker", name)
				return
			}
			if e.draining(r) && r.outstanding.Load() == 0 {
				slog.Debug("worker stopping: run drained", "worker", name)
				return
			}
			continue
		}
		if r.ctx.Err() != nil {
			e.release(r, entry)
			slog.Debug("worker stopping: run cancelled", "worker", name)
			return
		}
		e.process(r, name, entry)
	}
}

// process runs one attempt of entry and routes the outcome.
func (e *Engine) process(r *run, name string, entry Entry) {
	item := entry.Item

	if _, err := e.statuses.move(item.ID(), ir.StatusProcessing); err != nil {
		slog.Error("refusing to process item", "item_id", item.ID(), "error", err)
		e.settle(r)
		return
	}
	e.persist(r, item, ir.StatusProcessing)
	e.observer.OnStarted(item, name)

	start := time.Now()
	err := e.attempt(r, item, entry.Retries+1)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		e.complete(r, item, elapsed)
	case r.ctx.Err() != nil:
		e.scheduleRetry(r, entry, ShutdownRequested, err)
	case errors.Is(err, ErrPermanent):
		slog.Warn("item failed permanently", "item_id", item.ID(), "worker", name, "error", err)
		e.fail(r, item)
	default:
		e.scheduleRetry(r, entry, TransientFailure, err)
	}
}

// attempt runs the Work function, turning a panic into a permanent failure.
func (e *Engine) attempt(r *run, item ir.WorkItem, n int) (err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("work panicked",
				"item_id", item.ID(),
				"panic", p,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: panic: %v", ErrPermanent, p)
		}
	}()
	return e.work(r.ctx, item, n)
}

// scheduleRetry routes an unsuccessful attempt.
//
// ShutdownRequested releases the item. TransientFailure either fails the
// item once it used MaxAttempts retries, or marks it Retrying and hands it
// to the retry goroutines with its due time.
func (e *Engine) scheduleRetry(r *run, entry Entry, reason CancelReason, cause error) {
	item := entry.Item

	if reason == ShutdownRequested {
		e.release(r, entry)
		return
	}

	if entry.Retries >= e.retry.MaxAttempts {
		slog.Warn("retry limit reached",
			"item_id", item.ID(),
			"retries", entry.Retries,
			"max_attempts", e.retry.MaxAttempts,
			"error", cause,
		)
		e.fail(r, item)
		return
	}

	if _, err := e.statuses.move(item.ID(), ir.StatusRetrying); err != nil {
		slog.Error("refusing to retry item", "item_id", item.ID(), "error", err)
		e.settle(r)
		return
	}

	entry.Retries++
	delay := e.retry.DelayFor(entry.Retries)
	entry.NotBefore = time.Now().Add(delay)
	entry.Seq = e.clock.Next()

	r.retried.Add(1)
	e.persist(r, item, ir.StatusRetrying)
	e.observer.OnRetrying(item, entry.Retries)

	slog.Debug("item scheduled for retry",
		"item_id", item.ID(),
		"attempt", entry.Retries,
		"delay", delay,
		"reason", reason,
		"error", cause,
	)

	if !r.retries.Enqueue(entry) {
		e.release(r, entry)
	}
}

// retrier holds retry entries until they are due and re-enqueues them into
// the main channel with their original priority.
func (e *Engine) retrier(r *run) {
	defer r.wg.Done()

	for {
		entry, ok := r.retries.DequeueBlocking(r.ctx, e.pollTimeout)
		if !ok {
			if r.ctx.Err() != nil || (r.retries.Closed() && r.retries.Len() == 0) {
				return
			}
			continue
		}

		if wait := time.Until(entry.NotBefore); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-r.ctx.Done():
				timer.Stop()
				e.release(r, entry)
				return
			case <-timer.C:
			}
		} else if r.ctx.Err() != nil {
			e.release(r, entry)
			return
		}

		entry.NotBefore = time.Time{}
		entry.Seq = e.clock.Next()
		if !r.main.Enqueue(entry) {
			e.release(r, entry)
		}
	}
}

func (e *Engine) complete(r *run, item ir.WorkItem, elapsed time.Duration) {
	if _, err := e.statuses.move(item.ID(), ir.StatusCompleted); err != nil {
		slog.Error("refusing to complete item", "item_id", item.ID(), "error", err)
		e.settle(r)
		return
	}
	r.completed.Add(1)
	e.persist(r, item, ir.StatusCompleted)
	e.observer.OnCompleted(item, elapsed)
	e.settle(r)
}

func (e *Engine) fail(r *run, item ir.WorkItem) {
	if _, err := e.statuses.move(item.ID(), ir.StatusFailedPermanently); err != nil {
		slog.Error("refusing to fail item", "item_id", item.ID(), "error", err)
		e.settle(r)
		return
	}
	r.failed.Add(1)
	e.persist(r, item, ir.StatusFailedPermanently)
	e.observer.OnFailedPermanently(item)
	e.settle(r)
}

// release writes an unfinished item back as Pending so a later run can
// resume it.
func (e *Engine) release(r *run, entry Entry) {
	item := entry.Item
	from, err := e.statuses.move(item.ID(), ir.StatusPending)
	if err != nil {
		slog.Error("refusing to release item", "item_id", item.ID(), "error", err)
		e.settle(r)
		return
	}
	r.released.Add(1)
	e.persist(r, item, ir.StatusPending)
	if ro, ok := e.observer.(ReleaseObserver); ok {
		ro.OnReleased(item, from)
	}
	slog.Debug("item released", "item_id", item.ID(), "retries", entry.Retries)
	e.settle(r)
}
