package observer

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txsim/internal/ir"
)

func TestRecorder_KeepsOrder(t *testing.T) {
	r := NewRecorder()
	a := ir.MustWorkItem("a", 10, 0.9)
	b := ir.MustWorkItem("b", 20, 0.1)

	r.OnEnqueued(a)
	r.OnEnqueued(b)
	r.OnStarted(a, "worker-1")
	r.OnRetrying(a, 1)
	r.OnStarted(a, "worker-1")
	r.OnCompleted(a, time.Millisecond)
	r.OnStarted(b, "worker-2")
	r.OnFailedPermanently(b)

	assert.Equal(t, []string{"a", "b"}, r.IDs(EventEnqueued))
	assert.Equal(t, []string{"a"}, r.IDs(EventCompleted))
	assert.Equal(t, 3, r.Count(EventStarted))

	events := r.Events()
	require.Len(t, events, 8)
	assert.Equal(t, Event{Kind: EventRetrying, ItemID: "a", Priority: 0.9, Attempt: 1}, events[3])
	assert.Equal(t, "worker-2", events[6].Worker)

	r.Reset()
	assert.Empty(t, r.Events())
}

func TestMulti_FansOut(t *testing.T) {
	r1, r2 := NewRecorder(), NewRecorder()
	m := NewMulti(r1, nil, r2, Nop{})
	require.Len(t, m, 3)

	item := ir.MustWorkItem("a", 1, 0.5)
	m.OnEnqueued(item)
	m.OnStarted(item, "worker-1")
	m.OnCompleted(item, time.Second)

	assert.Equal(t, r1.Events(), r2.Events())
	assert.Equal(t, 3, len(r1.Events()))
}

type releases struct {
	Nop
	from []ir.Status
}

func (r *releases) OnReleased(_ ir.WorkItem, from ir.Status) {
	r.from = append(r.from, from)
}

func TestMulti_ForwardsReleases(t *testing.T) {
	rel := &releases{}
	m := NewMulti(NewRecorder(), rel)

	m.OnReleased(ir.MustWorkItem("a", 1, 0.5), ir.StatusProcessing)
	m.OnReleased(ir.MustWorkItem("b", 1, 0.5), ir.StatusRetrying)

	assert.Equal(t, []ir.Status{ir.StatusProcessing, ir.StatusRetrying}, rel.from)
}

func TestTable_Rows(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf)
	item := ir.MustWorkItem("tx-1", 1234.5, 0.25)

	tbl.OnEnqueued(item)
	tbl.OnStarted(item, "worker-3")
	tbl.OnCompleted(item, 42*time.Millisecond)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"ID", "Amount", "Priority", "Worker", "Status", "Exec", "ms"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"tx-1", "1234.50", "0.25", "Pending"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"tx-1", "1234.50", "0.25", "worker-3", "Processing"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"tx-1", "1234.50", "0.25", "worker-3", "Completed", "42"}, strings.Fields(lines[3]))
}

func TestLog_WritesStructuredRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := NewLog(logger)

	item := ir.MustWorkItem("tx-1", 1000, 0.5)
	l.OnStarted(item, "worker-1")
	l.OnRetrying(item, 2)
	l.OnReleased(item, ir.StatusProcessing)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var started map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &started))
	assert.Equal(t, "item started", started["msg"])
	assert.Equal(t, "tx-1", started["item_id"])
	assert.Equal(t, "1000", started["amount"])
	assert.Equal(t, "worker-1", started["worker"])

	var retrying map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &retrying))
	assert.Equal(t, "WARN", retrying["level"])
	assert.Equal(t, float64(2), retrying["attempt"])

	var released map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &released))
	assert.Equal(t, "item released", released["msg"])
	assert.Equal(t, "Processing", released["from"])
}
