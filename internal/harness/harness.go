package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/txsim/internal/engine"
	"github.com/roach88/txsim/internal/ir"
	"github.com/roach88/txsim/internal/observer"
	"github.com/roach88/txsim/internal/store"
)

// DefaultTimeout bounds a single scenario run.
const DefaultTimeout = 30 * time.Second

// harnessPollTimeout keeps idle workers responsive in short runs.
const harnessPollTimeout = 10 * time.Millisecond

// ErrScriptedInterrupt is returned by attempts scripted as "interrupt".
var ErrScriptedInterrupt = fmt.Errorf("scripted interruption: %w", engine.ErrInterrupted)

// Harness executes a scenario against a real engine.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	recorder *observer.Recorder
	script   *script
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Build the engine with scripted instant work and zero retry delay
// 3. Start (or seed and resume) the intake and wait for the run to close
// 4. Collect the trace and final statuses
// 5. Evaluate assertions
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	result := NewResult()
	summary, startErr, err := h.execute(ctx, scenario)
	if err != nil {
		return nil, err
	}
	if startErr != nil {
		result.StartError = errorCode(startErr)
	}
	result.Summary = summary

	for i, e := range h.recorder.Events() {
		result.Trace = append(result.Trace, TraceEvent{
			Seq:     i + 1,
			Event:   string(e.Kind),
			ItemID:  e.ItemID,
			Worker:  e.Worker,
			Attempt: e.Attempt,
		})
	}

	records, err := st.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list final state: %w", err)
	}
	for _, rec := range records {
		result.Final[rec.Item.ID()] = rec.Status
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	slog.Debug("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"events", len(result.Trace),
	)
	return result, nil
}

func newHarness(st *store.Store, s *Scenario) (*Harness, error) {
	policy := engine.RetryPolicy{
		MaxAttempts: engine.DefaultMaxAttempts,
		Backoff:     engine.BackoffFixed,
	}
	if s.Retry != nil {
		if s.Retry.MaxAttempts != nil {
			policy.MaxAttempts = *s.Retry.MaxAttempts
		}
		if s.Retry.Backoff != "" {
			policy.Backoff = engine.BackoffKind(s.Retry.Backoff)
		}
	}

	tb := engine.TieBreakFIFO
	if s.TieBreak != "" {
		var err error
		if tb, err = engine.ParseTieBreak(s.TieBreak); err != nil {
			return nil, err
		}
	}

	rec := observer.NewRecorder()
	sc := newScript(s.Outcomes)
	eng := engine.New(st, rec,
		engine.WithIDGenerator(engine.NewSequentialGenerator("tx-")),
		engine.WithWork(sc.work),
		engine.WithRetryPolicy(policy),
		engine.WithTieBreak(tb),
		engine.WithPollTimeout(harnessPollTimeout),
	)

	return &Harness{store: st, engine: eng, recorder: rec, script: sc}, nil
}

// execute starts the run and waits for it. A rejected start is returned as
// startErr, not as a harness failure.
func (h *Harness) execute(ctx context.Context, s *Scenario) (summary Summary, startErr error, err error) {
	items, err := s.WorkItems()
	if err != nil {
		if s.expectsStartError() {
			return Summary{}, engine.NewInvalidConfigurationError("%v", err), nil
		}
		return Summary{}, nil, err
	}

	var handle *engine.Handle
	if s.Resume {
		for _, item := range items {
			if err := h.store.UpsertStatus(ctx, item, ir.StatusPending); err != nil {
				return Summary{}, nil, fmt.Errorf("seed %s: %w", item.ID(), err)
			}
		}
		handle, startErr = h.engine.Resume(ctx, s.Workers)
	} else {
		handle, startErr = h.engine.StartItems(ctx, s.Workers, items)
	}
	if startErr != nil {
		return Summary{}, startErr, nil
	}

	res, err := handle.Wait(ctx)
	if err != nil {
		return Summary{}, nil, fmt.Errorf("run did not close: %w", err)
	}
	return Summary{
		Completed:         res.Completed,
		FailedPermanently: res.FailedPermanently,
		Released:          res.Released,
		Retries:           res.Retries,
	}, nil, nil
}

func errorCode(err error) string {
	var eerr *engine.Error
	if errors.As(err, &eerr) {
		return string(eerr.Code)
	}
	return err.Error()
}
