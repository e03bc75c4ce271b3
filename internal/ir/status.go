package ir

import "fmt"

// Status is the lifecycle state of a work item.
// The string values are persisted verbatim.
type Status string

const (
	StatusPending           Status = "Pending"
	StatusProcessing        Status = "Processing"
	StatusCompleted         Status = "Completed"
	StatusRetrying          Status = "Retrying"
	StatusFailedPermanently Status = "FailedPermanently"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusRetrying,
	StatusFailedPermanently,
}

// transitions is the allowed forward edges. Processing→Pending and
// Retrying→Pending release an item back to the store when its run is
// force-cancelled; they never happen inside a healthy run.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusRetrying, StatusFailedPermanently, StatusPending},
	StatusRetrying:   {StatusProcessing, StatusFailedPermanently, StatusPending},
}

// ParseStatus converts a stored string into a Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailedPermanently
}

// CanTransition reports whether an item may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
