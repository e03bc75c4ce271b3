package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/txsim/internal/ir"
)

// TraceSnapshot captures the observable outcome of a scenario execution.
// It is serialized with canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Final        map[string]ir.Status
	Summary      Summary
}

// Snapshot builds the golden snapshot of result.
func Snapshot(name string, result *Result) TraceSnapshot {
	return TraceSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Final:        result.Final,
		Summary:      result.Summary,
	}
}

// toCanonicalMap converts the snapshot for ir.MarshalCanonical, which only
// accepts strings, ints, bools, slices and string-keyed maps.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		m := map[string]any{
			"seq":   event.Seq,
			"event": event.Event,
			"id":    event.ItemID,
		}
		if event.Worker != "" {
			m["worker"] = event.Worker
		}
		if event.Attempt > 0 {
			m["attempt"] = event.Attempt
		}
		trace[i] = m
	}

	final := make(map[string]any, len(s.Final))
	for id, st := range s.Final {
		final[id] = string(st)
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"final":         final,
		"summary": map[string]any{
			"completed":          s.Summary.Completed,
			"failed_permanently": s.Summary.FailedPermanently,
			"released":           s.Summary.Released,
			"retries":            s.Summary.Retries,
		},
	}
}

// MarshalSnapshot returns the canonical JSON of the snapshot.
func (s *TraceSnapshot) MarshalSnapshot() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := Snapshot(scenarioName, result)
	data, err := snapshot.MarshalSnapshot()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
