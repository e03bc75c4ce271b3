package observer

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/roach88/txsim/internal/ir"
)

// tableRow is the column layout of the table view.
const tableRow = "%-36s  %12s  %8s  %-10s  %-17s  %7s\n"

// Table streams one row per lifecycle event to w.
//
// Columns: ID, Amount, Priority, Worker, Status, Exec ms. The Worker column
// remembers which worker picked the item up; Exec ms is filled on
// completion.
type Table struct {
	mu      sync.Mutex
	w       io.Writer
	workers map[string]string
	header  bool
}

// NewTable creates a table view writing to w.
func NewTable(w io.Writer) *Table {
	return &Table{w: w, workers: make(map[string]string)}
}

func (t *Table) OnEnqueued(item ir.WorkItem) {
	t.row(item, "", ir.StatusPending, "")
}

func (t *Table) OnStarted(item ir.WorkItem, worker string) {
	t.mu.Lock()
	t.workers[item.ID()] = worker
	t.mu.Unlock()
	t.row(item, worker, ir.StatusProcessing, "")
}

func (t *Table) OnCompleted(item ir.WorkItem, elapsed time.Duration) {
	t.row(item, t.worker(item.ID()), ir.StatusCompleted, fmt.Sprintf("%d", elapsed.Milliseconds()))
}

func (t *Table) OnRetrying(item ir.WorkItem, _ int) {
	t.row(item, t.worker(item.ID()), ir.StatusRetrying, "")
}

func (t *Table) OnFailedPermanently(item ir.WorkItem) {
	t.row(item, t.worker(item.ID()), ir.StatusFailedPermanently, "")
}

func (t *Table) worker(id string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.workers[id]
}

func (t *Table) row(item ir.WorkItem, worker string, status ir.Status, exec string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.header {
		fmt.Fprintf(t.w, tableRow, "ID", "Amount", "Priority", "Worker", "Status", "Exec ms")
		t.header = true
	}
	fmt.Fprintf(t.w, tableRow,
		item.ID(),
		ir.FormatAmount(item.Amount()),
		ir.FormatAmount(item.Priority()),
		worker,
		status,
		exec,
	)
}
