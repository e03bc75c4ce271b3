// Package engine implements the txsim processing engine.
//
// The engine owns a priority-ordered work channel, a pool of worker
// goroutines that drain it, and a smaller set of retry goroutines that
// re-submit interrupted work after a backoff delay. Every lifecycle change
// of a WorkItem is written through a Gateway and reported to an Observer.
//
// ARCHITECTURE:
//
// Run lifecycle:
//  1. Start/StartItems/Resume admit the intake batch: each item is recorded
//     as Pending, reported via OnEnqueued and pushed into the PriorityChannel.
//  2. Workers pull the highest-priority entry, mark it Processing, run the
//     Work function and settle the item as Completed, FailedPermanently or
//     hand it to the retry path.
//  3. Retry goroutines hold an entry until its due time and re-enqueue it
//     with its original priority.
//  4. Once the run is Draining and no item is outstanding the channels are
//     closed, workers exit and the Handle resolves with a Result.
//
// Ordering:
// Each dequeue returns the maximum entry present at call time according to
// the channel's Comparator (priority descending, then the configured
// TieBreak). With one worker the completion order therefore follows
// priority order. Concurrent workers give no cross-worker total order.
//
// Shutdown:
// Stop moves the run to Draining and arms a grace timer. When the grace
// period expires the run context is cancelled with ErrGraceExpired. Work
// observing the cancellation is classified ShutdownRequested and the item
// is released back to Pending so a later Resume can pick it up.
//
// Persistence:
// Gateway failures never stop processing. They are logged, counted and
// surfaced through Result.Err.
package engine
