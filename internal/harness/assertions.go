package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/txsim/internal/filter"
	"github.com/roach88/txsim/internal/ir"
	"github.com/roach88/txsim/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", event.Seq, event.Event, event.ItemID)
			if event.Worker != "" {
				fmt.Fprintf(&buf, " worker=%s", event.Worker)
			}
			if event.Attempt > 0 {
				fmt.Fprintf(&buf, " attempt=%d", event.Attempt)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the final store.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	if result.StartError != "" && a.Type != AssertStartError {
		return fmt.Errorf("run was rejected with %s", result.StartError)
	}

	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertFinalState:
		return assertFinalState(actx, result, a)
	case AssertSummary:
		return assertSummary(result.Summary, a)
	case AssertStartError:
		return assertStartError(result.StartError, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func matches(event TraceEvent, a Assertion) bool {
	return event.Event == a.Event && (a.ID == "" || event.ItemID == a.ID)
}

// assertTraceContains checks that at least one event matches.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if matches(event, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describe(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first a.Event of each id appears in the
// given order. Other events may interleave.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for _, event := range trace {
		if event.Event != a.Event {
			continue
		}
		if _, seen := positions[event.ItemID]; !seen {
			positions[event.ItemID] = event.Seq
		}
	}

	for _, id := range a.IDs {
		if _, ok := positions[id]; !ok {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("%s events for %v", a.Event, a.IDs),
				Actual:   fmt.Sprintf("no %s event for %s", a.Event, id),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.IDs); i++ {
		prev, curr := a.IDs[i-1], a.IDs[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("%s in order %v", a.Event, a.IDs),
				Actual: fmt.Sprintf("%s (seq %d) should be before %s (seq %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the exact number of matching events.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if matches(event, a) {
			count++
		}
	}
	if count != *a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d x %s", *a.Count, describe(a)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks a single stored status by id, or counts the
// stored records matching a CEL expression.
func assertFinalState(actx *AssertionContext, result *Result, a Assertion) error {
	if a.ID != "" {
		got, ok := result.Final[a.ID]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s is %s", a.ID, a.Status),
				Actual:   "record not found",
			}
		}
		if string(got) != a.Status {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s is %s", a.ID, a.Status),
				Actual:   string(got),
			}
		}
		return nil
	}

	f, err := filter.Compile(a.Where)
	if err != nil {
		return err
	}
	records, err := actx.Store.List(actx.Ctx)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	matched := f.Apply(records)
	if len(matched) != *a.Count {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d records where %s", *a.Count, a.Where),
			Actual:   fmt.Sprintf("%d records %v", len(matched), recordIDs(matched)),
		}
	}
	return nil
}

// assertSummary compares the listed counters only.
func assertSummary(s Summary, a Assertion) error {
	got := map[string]int{
		"completed":          s.Completed,
		"failed_permanently": s.FailedPermanently,
		"released":           s.Released,
		"retries":            s.Retries,
	}

	var diffs []string
	for _, k := range summaryFields {
		want, ok := a.Expect[k]
		if !ok {
			continue
		}
		if got[k] != want {
			diffs = append(diffs, fmt.Sprintf("%s=%d (want %d)", k, got[k], want))
		}
	}
	if len(diffs) > 0 {
		return &AssertionError{
			Type:     AssertSummary,
			Expected: fmt.Sprintf("%v", a.Expect),
			Actual:   strings.Join(diffs, ", "),
		}
	}
	return nil
}

func assertStartError(got string, a Assertion) error {
	if got == "" {
		return &AssertionError{
			Type:     AssertStartError,
			Expected: a.Code,
			Actual:   "run started",
		}
	}
	if got != a.Code {
		return &AssertionError{
			Type:     AssertStartError,
			Expected: a.Code,
			Actual:   got,
		}
	}
	return nil
}

func describe(a Assertion) string {
	if a.ID != "" {
		return fmt.Sprintf("%s for %s", a.Event, a.ID)
	}
	return a.Event
}

func recordIDs(records []ir.Record) []string {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.Item.ID()
	}
	return ids
}
