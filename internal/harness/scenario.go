package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/txsim/internal/engine"
	"github.com/roach88/txsim/internal/ir"
)

// Scenario defines one engine run and what it must produce.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Workers is the main worker count. Zero is allowed only together with
	// a start_error assertion.
	Workers int `yaml:"workers"`

	// TieBreak orders equal priorities: fifo (default), lifo or id.
	TieBreak string `yaml:"tie_break,omitempty"`

	Retry *RetrySettings `yaml:"retry,omitempty"`

	// Resume seeds Items as Pending records and resumes them instead of
	// starting a fresh batch.
	Resume bool `yaml:"resume,omitempty"`

	Items []ItemSpec `yaml:"items"`

	// Outcomes scripts each attempt of an item. Attempts beyond the list
	// succeed.
	Outcomes map[string][]string `yaml:"outcomes,omitempty"`

	Assertions []Assertion `yaml:"assertions"`
}

// RetrySettings overrides the retry policy. Delays are always zero.
type RetrySettings struct {
	MaxAttempts *int   `yaml:"max_attempts,omitempty"`
	Backoff     string `yaml:"backoff,omitempty"`
}

// ItemSpec is one intake item.
type ItemSpec struct {
	ID       string  `yaml:"id"`
	Amount   float64 `yaml:"amount"`
	Priority float64 `yaml:"priority"`
}

// Assertion validates the trace, final state or run summary.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Event is the trace event kind (trace_contains, trace_order, trace_count).
	Event string `yaml:"event,omitempty"`

	// ID narrows trace_contains and trace_count, and selects the record
	// for final_state.
	ID string `yaml:"id,omitempty"`

	// IDs is the expected relative order (trace_order).
	IDs []string `yaml:"ids,omitempty"`

	// Count is the expected number of events or matching records.
	Count *int `yaml:"count,omitempty"`

	// Status is the expected stored status (final_state with id).
	Status string `yaml:"status,omitempty"`

	// Where is a CEL record filter (final_state with count).
	Where string `yaml:"where,omitempty"`

	// Expect is a subset of summary counters (summary).
	Expect map[string]int `yaml:"expect,omitempty"`

	// Code is the expected error code (start_error).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertSummary       = "summary"
	AssertStartError    = "start_error"
)

// Outcome names accepted in Scenario.Outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeInterrupt = "interrupt"
	OutcomePermanent = "permanent"
	OutcomePanic     = "panic"
)

var eventKinds = []string{"enqueued", "started", "completed", "retrying", "failed_permanently"}

var summaryFields = []string{"completed", "failed_permanently", "released", "retries"}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns every .yaml or .yml file under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// WorkItems converts the intake into engine work items.
func (s *Scenario) WorkItems() ([]ir.WorkItem, error) {
	items := make([]ir.WorkItem, 0, len(s.Items))
	for i, in := range s.Items {
		item, err := ir.NewWorkItem(in.ID, in.Amount, in.Priority)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Scenario) expectsStartError() bool {
	for _, a := range s.Assertions {
		if a.Type == AssertStartError {
			return true
		}
	}
	return false
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if !s.expectsStartError() {
		if s.Workers < 1 {
			return fmt.Errorf("workers must be >= 1 (got %d)", s.Workers)
		}
		if len(s.Items) == 0 {
			return fmt.Errorf("items list is required and must be non-empty")
		}
	}

	if s.TieBreak != "" {
		if _, err := engine.ParseTieBreak(s.TieBreak); err != nil {
			return err
		}
	}
	if s.Retry != nil && s.Retry.MaxAttempts != nil && *s.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must be >= 0")
	}

	ids := make(map[string]bool, len(s.Items))
	for i, item := range s.Items {
		if item.ID == "" {
			return fmt.Errorf("items[%d]: id is required", i)
		}
		ids[item.ID] = true
	}

	for id, outcomes := range s.Outcomes {
		if !ids[id] {
			return fmt.Errorf("outcomes: unknown item %q", id)
		}
		for j, o := range outcomes {
			switch o {
			case OutcomeOK, OutcomeInterrupt, OutcomePermanent, OutcomePanic:
			default:
				return fmt.Errorf("outcomes[%s][%d]: unknown outcome %q", id, j, o)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if err := validateEvent(index, a.Event); err != nil {
			return err
		}
	case AssertTraceOrder:
		if err := validateEvent(index, a.Event); err != nil {
			return err
		}
		if len(a.IDs) == 0 {
			return fmt.Errorf("assertions[%d]: ids list is required for trace_order", index)
		}
	case AssertTraceCount:
		if err := validateEvent(index, a.Event); err != nil {
			return err
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for trace_count", index)
		}
	case AssertFinalState:
		switch {
		case a.ID != "":
			if _, err := ir.ParseStatus(a.Status); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		case a.Where != "":
			if a.Count == nil || *a.Count < 0 {
				return fmt.Errorf("assertions[%d]: non-negative count is required with where", index)
			}
		default:
			return fmt.Errorf("assertions[%d]: final_state needs id or where", index)
		}
	case AssertSummary:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for summary", index)
		}
		for k := range a.Expect {
			if !slices.Contains(summaryFields, k) {
				return fmt.Errorf("assertions[%d]: unknown summary field %q", index, k)
			}
		}
	case AssertStartError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for start_error", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func validateEvent(index int, event string) error {
	if event == "" {
		return fmt.Errorf("assertions[%d]: event is required", index)
	}
	if !slices.Contains(eventKinds, event) {
		return fmt.Errorf("assertions[%d]: unknown event %q", index, event)
	}
	return nil
}
