package cli

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txsim/internal/engine"
	"github.com/roach88/txsim/internal/ir"
	"github.com/roach88/txsim/internal/kvstore"
	"github.com/roach88/txsim/internal/testutil"
)

func instantRun(format string) *RunOptions {
	return &RunOptions{
		RootOptions: &RootOptions{Format: format},
		Work:        engine.Instant(),
		IDGenerator: engine.NewSequentialGenerator("tx-"),
	}
}

func TestRunCommand_BatchPersistsEveryItem(t *testing.T) {
	db := filepath.Join(t.TempDir(), "txsim.db")

	out, err := execute(t, newRunCommand(instantRun("json")),
		"--db", db, "--workers", "3", "--items", "25", "--seed", "1")
	require.NoError(t, err)

	var summary RunSummary
	resp := decodeData(t, out, &summary)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 25, summary.Completed)
	assert.Zero(t, summary.FailedPermanently)
	assert.NotEmpty(t, summary.TotalTime)

	counts := countSQLite(t, db)
	assert.Equal(t, 25, counts[ir.StatusCompleted])
	assert.Zero(t, counts[ir.StatusPending])
}

func TestRunCommand_TableAndTotalTime(t *testing.T) {
	db := filepath.Join(t.TempDir(), "txsim.db")

	out, err := execute(t, newRunCommand(instantRun("text")),
		"--db", db, "--workers", "1", "--items", "2", "--table")
	require.NoError(t, err)

	assert.Contains(t, out, "Exec ms")
	assert.Contains(t, out, "tx-1")
	assert.Contains(t, out, "Completed:  2")
	assert.Contains(t, out, "Total time: ")
}

func TestRunCommand_ResumeProcessesPendingFirst(t *testing.T) {
	db := seedSQLite(t, map[string]ir.Status{
		"tx-1": ir.StatusPending,
		"tx-2": ir.StatusPending,
		"tx-3": ir.StatusCompleted,
	})

	opts := instantRun("json")
	opts.IDGenerator = engine.NewSequentialGenerator("new-")
	out, err := execute(t, newRunCommand(opts), "--db", db, "--workers", "2", "--items", "3", "--resume")
	require.NoError(t, err)

	var summary RunSummary
	decodeData(t, out, &summary)
	assert.Equal(t, 2, summary.Resumed)
	assert.Equal(t, 5, summary.Completed)

	counts := countSQLite(t, db)
	assert.Equal(t, 6, counts[ir.StatusCompleted])
	assert.Zero(t, counts[ir.StatusPending])
}

func TestRunCommand_ResumeWithNothingPending(t *testing.T) {
	db := filepath.Join(t.TempDir(), "txsim.db")

	out, err := execute(t, newRunCommand(instantRun("json")), "--db", db, "--items", "2", "--resume")
	require.NoError(t, err)

	var summary RunSummary
	decodeData(t, out, &summary)
	assert.Zero(t, summary.Resumed)
	assert.Equal(t, 2, summary.Completed)
}

func TestRunCommand_ConfigFileWithFlagOverride(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "txsim.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
workers: 2
items: 5
work:
  mode: instant
store:
  path: `+filepath.Join(dir, "from-config.db")+`
`), 0o644))

	opts := &RunOptions{RootOptions: &RootOptions{Format: "json", Config: cfgPath}}
	out, err := execute(t, newRunCommand(opts), "--items", "7")
	require.NoError(t, err)

	var summary RunSummary
	decodeData(t, out, &summary)
	assert.Equal(t, 7, summary.Completed)
	assert.Equal(t, 7, countSQLite(t, filepath.Join(dir, "from-config.db"))[ir.StatusCompleted])
}

func TestRunCommand_InvalidConfiguration(t *testing.T) {
	db := filepath.Join(t.TempDir(), "txsim.db")

	tests := [][]string{
		{"--db", db, "--workers", "0"},
		{"--db", db, "--items", "0"},
		{"--db", db, "--tie-break", "random"},
		{"--db", db, "--store", "postgres"},
	}
	for _, args := range tests {
		_, err := execute(t, newRunCommand(instantRun("text")), args...)
		require.Error(t, err, args)
		assert.Equal(t, ExitCommandError, GetExitCode(err), args)
	}
}

func TestRunCommand_MissingConfigFile(t *testing.T) {
	opts := instantRun("text")
	opts.Config = filepath.Join(t.TempDir(), "missing.cue")

	_, err := execute(t, newRunCommand(opts))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommand_ContinuousWithDuration(t *testing.T) {
	db := filepath.Join(t.TempDir(), "txsim.db")

	out, err := execute(t, newRunCommand(instantRun("json")),
		"--db", db, "--continuous", "--items", "0",
		"--submit-interval", "5ms", "--duration", "150ms")
	require.NoError(t, err)

	var summary RunSummary
	decodeData(t, out, &summary)
	assert.Positive(t, summary.Completed)
	assert.Zero(t, summary.Released)
	assert.Equal(t, summary.Completed, countSQLite(t, db)[ir.StatusCompleted])
}

func TestRunCommand_SignalStopsContinuousRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "txsim.db")
	signals := make(chan os.Signal, 1)

	opts := instantRun("json")
	opts.Signals = signals
	go func() {
		time.Sleep(50 * time.Millisecond)
		signals <- os.Interrupt
	}()

	out, err := execute(t, newRunCommand(opts), "--db", db, "--continuous", "--items", "3")
	require.NoError(t, err)

	var summary RunSummary
	decodeData(t, out, &summary)
	assert.Equal(t, 3, summary.Completed)
}

func TestRunCommand_SecondSignalReleasesWork(t *testing.T) {
	db := filepath.Join(t.TempDir(), "txsim.db")
	signals := make(chan os.Signal, 2)

	opts := instantRun("json")
	opts.Signals = signals
	opts.Work = engine.Sleep(func(ir.WorkItem) time.Duration { return time.Minute })
	go func() {
		time.Sleep(50 * time.Millisecond)
		signals <- os.Interrupt
		time.Sleep(50 * time.Millisecond)
		signals <- os.Interrupt
	}()

	out, err := execute(t, newRunCommand(opts), "--db", db, "--workers", "1", "--items", "2", "--grace-period", "1m")
	require.NoError(t, err)

	var summary RunSummary
	decodeData(t, out, &summary)
	assert.Zero(t, summary.Completed)
	assert.Equal(t, 2, summary.Released)
	assert.True(t, summary.Forced)
	assert.Equal(t, 2, countSQLite(t, db)[ir.StatusPending])
}

func TestRunCommand_PebbleStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pebble")

	out, err := execute(t, newRunCommand(instantRun("json")),
		"--store", "pebble", "--db", dir, "--items", "4")
	require.NoError(t, err)

	var summary RunSummary
	decodeData(t, out, &summary)
	assert.Equal(t, 4, summary.Completed)

	st, err := kvstore.Open(kvstore.Options{DataDir: dir})
	require.NoError(t, err)
	defer st.Close()
	records, err := st.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestStartBatch_SkipsAfterStopRequest(t *testing.T) {
	gw := testutil.NewMemoryGateway()
	eng := engine.New(gw, nil, engine.WithWork(engine.Instant()))
	stopped := &atomic.Bool{}
	stopped.Store(true)

	h, err := startBatch(context.Background(), eng, engine.Config{Workers: 2, Items: 5}, stopped)
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.Zero(t, gw.Len())
	assert.ErrorIs(t, eng.Stop(), engine.ErrNoRun)
}

func TestStartBatch_RunsWithoutStopRequest(t *testing.T) {
	gw := testutil.NewMemoryGateway()
	eng := engine.New(gw, nil,
		engine.WithWork(engine.Instant()),
		engine.WithPollTimeout(10*time.Millisecond),
	)

	h, err := startBatch(context.Background(), eng, engine.Config{Workers: 2, Items: 5}, &atomic.Bool{})
	require.NoError(t, err)
	require.NotNil(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Completed)
	assert.Equal(t, 5, gw.Len())
}
