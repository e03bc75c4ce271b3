package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/txsim/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// item is ir.MustWorkItem with a fixed amount.
func item(id string, priority float64) ir.WorkItem {
	return ir.MustWorkItem(id, 250.75, priority)
}
