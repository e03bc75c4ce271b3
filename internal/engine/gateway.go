package engine

import (
	"context"

	"github.com/roach88/txsim/internal/ir"
)

// Gateway is the durable record of item statuses.
//
// Implementations must serialize internally: every worker and retry
// goroutine of a run writes through the same Gateway concurrently.
// UpsertStatus must keep an item's original insertion position so that
// LoadPending returns items in the order they were first recorded.
type Gateway interface {
	// UpsertStatus records the item and its latest status.
	UpsertStatus(ctx context.Context, item ir.WorkItem, status ir.Status) error

	// LoadPending returns every item whose last recorded status is
	// Pending, in insertion order.
	LoadPending(ctx context.Context) ([]ir.WorkItem, error)

	// DeleteAll removes every record.
	DeleteAll(ctx context.Context) error
}

// discardGateway is used when no Gateway is configured.
type discardGateway struct{}

func (discardGateway) UpsertStatus(context.Context, ir.WorkItem, ir.Status) error { return nil }
func (discardGateway) LoadPending(context.Context) ([]ir.WorkItem, error)         { return nil, nil }
func (discardGateway) DeleteAll(context.Context) error                            { return nil }
