package harness

import "github.com/roach88/txsim/internal/ir"

// TraceEvent is one observer callback in arrival order.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Event   string `json:"event"`
	ItemID  string `json:"id"`
	Worker  string `json:"worker,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
}

// Summary mirrors the engine run result counters.
type Summary struct {
	Completed         int `json:"completed"`
	FailedPermanently int `json:"failed_permanently"`
	Released          int `json:"released"`
	Retries           int `json:"retries"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Final maps item id to its stored status after the run.
	Final map[string]ir.Status `json:"final"`

	Summary Summary `json:"summary"`

	// StartError is the code of the error that rejected the run, if any.
	StartError string `json:"start_error,omitempty"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Final:  make(map[string]ir.Status),
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
