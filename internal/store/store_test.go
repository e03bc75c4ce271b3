package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/txsim/internal/engine"
)

var _ engine.Gateway = (*Store)(nil)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
		"work_items",
	).Scan(&name)
	if err != nil {
		t.Errorf("table work_items not found after idempotent opens: %v", err)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s := createTestStore(t)

	db := s.DB()
	if db == nil {
		t.Fatal("DB() returned nil")
	}
	if err := db.Ping(); err != nil {
		t.Errorf("DB() connection not usable: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name, want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		if err := s.verifyPragma(tt.name, tt.want); err != nil {
			t.Error(err)
		}
	}
}

func TestSchema_StatusIndex(t *testing.T) {
	s := createTestStore(t)

	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name=?",
		"idx_work_items_status",
	).Scan(&name)
	if err != nil {
		t.Errorf("index idx_work_items_status not found: %v", err)
	}
}

func TestSchema_RejectsUnknownStatus(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(
		"INSERT INTO work_items (id, amount, priority, status, updated_at) VALUES ('x', 1, 0.5, 'Queued', 0)",
	)
	if err == nil {
		t.Error("expected CHECK constraint failure for unknown status")
	}
}

func TestSchema_RejectsNonPositivePriority(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(
		"INSERT INTO work_items (id, amount, priority, status, updated_at) VALUES ('x', 1, 0, 'Pending', 0)",
	)
	if err == nil {
		t.Error("expected CHECK constraint failure for zero priority")
	}
}
