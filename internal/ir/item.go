package ir

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidPriority is returned when a priority is not strictly positive and finite.
	ErrInvalidPriority = errors.New("priority must be a finite value greater than zero")

	// ErrInvalidAmount is returned when an amount is negative, NaN or infinite.
	ErrInvalidAmount = errors.New("amount must be a finite, non-negative value")

	// ErrEmptyID is returned when a work item is constructed without an id.
	ErrEmptyID = errors.New("work item id is required")
)

// WorkItem is one unit of work: a transaction with a magnitude and a priority.
//
// The zero value is not a valid item. Use NewWorkItem, which validates the
// fields; after construction the value never changes.
type WorkItem struct {
	id       string
	amount   float64
	priority float64
}

// NewWorkItem validates and builds a WorkItem.
func NewWorkItem(id string, amount, priority float64) (WorkItem, error) {
	if id == "" {
		return WorkItem{}, ErrEmptyID
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return WorkItem{}, fmt.Errorf("item %s: %w (got %v)", id, ErrInvalidAmount, amount)
	}
	if math.IsNaN(priority) || math.IsInf(priority, 0) || priority <= 0 {
		return WorkItem{}, fmt.Errorf("item %s: %w (got %v)", id, ErrInvalidPriority, priority)
	}
	return WorkItem{id: id, amount: amount, priority: priority}, nil
}

// MustWorkItem is NewWorkItem for literals in tests and fixtures.
// Panics on invalid input.
func MustWorkItem(id string, amount, priority float64) WorkItem {
	it, err := NewWorkItem(id, amount, priority)
	if err != nil {
		panic(err)
	}
	return it
}

// ID returns the item's stable identifier.
func (w WorkItem) ID() string { return w.id }

// Amount returns the magnitude used to derive simulated work duration.
func (w WorkItem) Amount() float64 { return w.amount }

// Priority returns the item's priority. Higher values are served first.
func (w WorkItem) Priority() float64 { return w.priority }

// IsZero reports whether w is the zero value (never a valid item).
func (w WorkItem) IsZero() bool { return w.id == "" }

func (w WorkItem) String() string {
	return fmt.Sprintf("WorkItem{id=%s, amount=%s, priority=%s}",
		w.id, FormatAmount(w.amount), FormatAmount(w.priority))
}
