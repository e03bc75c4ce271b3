package ir

import "time"

// Record is a persisted row: an item plus its last known status.
type Record struct {
	Item      WorkItem
	Status    Status
	UpdatedAt time.Time
}
