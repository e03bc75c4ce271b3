// Package testutil provides in-memory fakes for engine tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/txsim/internal/ir"
)

// ErrInjected is returned by MemoryGateway when a failure is injected.
var ErrInjected = errors.New("injected gateway failure")

// MemoryGateway is an in-memory engine gateway that records the full
// status history of every item.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type MemoryGateway struct {
	mu      sync.Mutex
	records map[string]*memoryRecord
	order   int64

	// failing decides whether a write fails; nil means never.
	failing  func(item ir.WorkItem, status ir.Status) bool
	failLoad bool
}

type memoryRecord struct {
	item    ir.WorkItem
	status  ir.Status
	order   int64
	history []ir.Status
}

// NewMemoryGateway creates an empty gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{records: make(map[string]*memoryRecord)}
}

// FailWhen injects write failures: every UpsertStatus for which fn returns
// true fails with ErrInjected and is not recorded.
func (g *MemoryGateway) FailWhen(fn func(item ir.WorkItem, status ir.Status) bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failing = fn
}

// FailLoad makes LoadPending fail with ErrInjected.
func (g *MemoryGateway) FailLoad(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failLoad = fail
}

// UpsertStatus records status for item, keeping the first insertion order.
func (g *MemoryGateway) UpsertStatus(_ context.Context, item ir.WorkItem, status ir.Status) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failing != nil && g.failing(item, status) {
		return fmt.Errorf("upsert %s: %w", item.ID(), ErrInjected)
	}

	rec, ok := g.records[item.ID()]
	if !ok {
		g.order++
		rec = &memoryRecord{order: g.order}
		g.records[item.ID()] = rec
	}
	rec.item = item
	rec.status = status
	rec.history = append(rec.history, status)
	return nil
}

// LoadPending returns Pending items in insertion order.
func (g *MemoryGateway) LoadPending(_ context.Context) ([]ir.WorkItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failLoad {
		return nil, fmt.Errorf("load pending: %w", ErrInjected)
	}

	var recs []*memoryRecord
	for _, rec := range g.records {
		if rec.status == ir.StatusPending {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].order < recs[j].order })

	items := make([]ir.WorkItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, rec.item)
	}
	return items, nil
}

// DeleteAll removes every record.
func (g *MemoryGateway) DeleteAll(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records = make(map[string]*memoryRecord)
	return nil
}

// Status returns the last recorded status of id.
func (g *MemoryGateway) Status(id string) (ir.Status, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[id]
	if !ok {
		return "", false
	}
	return rec.status, true
}

// History returns every status recorded for id, oldest first.
func (g *MemoryGateway) History(id string) []ir.Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[id]
	if !ok {
		return nil
	}
	out := make([]ir.Status, len(rec.history))
	copy(out, rec.history)
	return out
}

// Len returns the number of recorded items.
func (g *MemoryGateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

// Records returns the latest record of every item in insertion order.
func (g *MemoryGateway) Records() []ir.Record {
	g.mu.Lock()
	defer g.mu.Unlock()

	recs := make([]*memoryRecord, 0, len(g.records))
	for _, rec := range g.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].order < recs[j].order })

	out := make([]ir.Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, ir.Record{Item: rec.item, Status: rec.status})
	}
	return out
}
