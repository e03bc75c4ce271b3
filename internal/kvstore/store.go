package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/roach88/txsim/internal/ir"
)

const itemPrefix = "item/"

// ErrNotFound is returned when a requested item has no record.
var ErrNotFound = errors.New("item not found")

// FsyncMode defines durability behavior for write operations.
type FsyncMode int

const (
	// FsyncModeAlways requests a WAL fsync on each write.
	FsyncModeAlways FsyncMode = iota
	// FsyncModeNever leaves syncing to Pebble's own policies.
	FsyncModeNever
)

// Options configures the store.
type Options struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	// Fsync determines when to sync the WAL.
	Fsync FsyncMode
	// PebbleOptions allows advanced tuning of Pebble. If nil, defaults are used.
	PebbleOptions *pebble.Options
}

// Store keeps work item statuses in Pebble. It satisfies engine.Gateway.
//
// Thread-safety: writes are serialized by an internal mutex because an
// upsert reads the existing seq before writing.
type Store struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
	now       func() time.Time

	mu      sync.Mutex
	nextSeq int64
}

type record struct {
	Amount    float64 `json:"amount"`
	Priority  float64 `json:"priority"`
	Status    string  `json:"status"`
	Seq       int64   `json:"seq"`
	UpdatedAt int64   `json:"updated_at"`
}

// Open creates or opens a store in opts.DataDir.
func Open(opts Options) (*Store, error) {
	if opts.DataDir == "" {
		return nil, errors.New("kvstore: Options.DataDir is required")
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}

	db, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}

	s := &Store{db: db, writeOpts: pebble.Sync, now: time.Now}
	if opts.Fsync == FsyncModeNever {
		s.writeOpts = pebble.NoSync
	}

	records, err := s.scan()
	if err != nil {
		db.Close()
		return nil, err
	}
	for _, r := range records {
		if r.rec.Seq > s.nextSeq {
			s.nextSeq = r.rec.Seq
		}
	}
	return s, nil
}

// Close closes the Pebble database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertStatus records item with its latest status.
func (s *Store) UpsertStatus(_ context.Context, item ir.WorkItem, status ir.Status) error {
	if !status.Valid() {
		return fmt.Errorf("upsert %s: invalid status %q", item.ID(), status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := itemKey(item.ID())
	existing, err := s.get(key)
	var seq int64
	switch {
	case err == nil:
		seq = existing.Seq
	case errors.Is(err, pebble.ErrNotFound):
		s.nextSeq++
		seq = s.nextSeq
	default:
		return fmt.Errorf("upsert %s: %w", item.ID(), err)
	}

	val, err := json.Marshal(record{
		Amount:    item.Amount(),
		Priority:  item.Priority(),
		Status:    string(status),
		Seq:       seq,
		UpdatedAt: s.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("upsert %s: %w", item.ID(), err)
	}
	if err := s.db.Set(key, val, s.writeOpts); err != nil {
		return fmt.Errorf("upsert %s: %w", item.ID(), err)
	}
	return nil
}

// LoadPending returns every Pending item in first-insertion order.
func (s *Store) LoadPending(_ context.Context) ([]ir.WorkItem, error) {
	records, err := s.scan()
	if err != nil {
		return nil, fmt.Errorf("load pending: %w", err)
	}

	items := []ir.WorkItem{}
	for _, r := range records {
		if r.record.Status == ir.StatusPending {
			items = append(items, r.record.Item)
		}
	}
	return items, nil
}

// List returns every record in first-insertion order.
func (s *Store) List(_ context.Context) ([]ir.Record, error) {
	records, err := s.scan()
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	out := make([]ir.Record, 0, len(records))
	for _, r := range records {
		out = append(out, r.record)
	}
	return out, nil
}

// Get returns the record for id, or ErrNotFound.
func (s *Store) Get(_ context.Context, id string) (ir.Record, error) {
	rec, err := s.get(itemKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return ir.Record{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Record{}, fmt.Errorf("get %s: %w", id, err)
	}
	out, err := decode(id, rec)
	if err != nil {
		return ir.Record{}, err
	}
	return out, nil
}

// CountByStatus returns the number of records per status, with every
// status present.
func (s *Store) CountByStatus(_ context.Context) (map[ir.Status]int, error) {
	records, err := s.scan()
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}

	counts := make(map[ir.Status]int, len(ir.AllStatuses))
	for _, st := range ir.AllStatuses {
		counts[st] = 0
	}
	for _, r := range records {
		counts[r.record.Status]++
	}
	return counts, nil
}

// DeleteAll removes every item.
func (s *Store) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lower, upper := prefixBounds(itemPrefix)
	if err := s.db.DeleteRange(lower, upper, s.writeOpts); err != nil {
		return fmt.Errorf("delete all: %w", err)
	}
	return nil
}

// get copies and decodes the raw record at key.
func (s *Store) get(key []byte) (record, error) {
	val, closer, err := s.db.Get(key)
	if err != nil {
		return record{}, err
	}
	defer closer.Close()

	var rec record
	if err := json.Unmarshal(val, &rec); err != nil {
		return record{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec, nil
}

type scanned struct {
	rec    record
	record ir.Record
}

// scan reads every item sorted by seq.
func (s *Store) scan() ([]scanned, error) {
	lower, upper := prefixBounds(itemPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("new iterator: %w", err)
	}
	defer iter.Close()

	var out []scanned
	for iter.First(); iter.Valid(); iter.Next() {
		id := string(bytes.TrimPrefix(iter.Key(), []byte(itemPrefix)))

		var rec record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", id, err)
		}
		decoded, err := decode(id, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, scanned{rec: rec, record: decoded})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].rec.Seq < out[j].rec.Seq })
	return out, nil
}

func decode(id string, rec record) (ir.Record, error) {
	item, err := ir.NewWorkItem(id, rec.Amount, rec.Priority)
	if err != nil {
		return ir.Record{}, fmt.Errorf("decode %s: %w", id, err)
	}
	status, err := ir.ParseStatus(rec.Status)
	if err != nil {
		return ir.Record{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return ir.Record{Item: item, Status: status, UpdatedAt: time.UnixMilli(rec.UpdatedAt)}, nil
}

func itemKey(id string) []byte {
	return []byte(itemPrefix + id)
}

// prefixBounds returns [prefix, prefix+1) for iteration and range deletes.
func prefixBounds(prefix string) ([]byte, []byte) {
	lower := []byte(prefix)
	upper := append([]byte(nil), lower...)
	upper[len(upper)-1]++
	return lower, upper
}
