package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txsim/internal/engine"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 20, cfg.Items)
	assert.False(t, cfg.Continuous)
	assert.Equal(t, 2, cfg.RetryWorkers)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, 5*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, "fixed", cfg.Retry.Backoff)
	assert.Equal(t, 100*time.Millisecond, cfg.PollTimeout)
	assert.Equal(t, 5*time.Second, cfg.GracePeriod)
	assert.Equal(t, "fifo", cfg.TieBreak)
	assert.Equal(t, Store{Driver: DriverSQLite, Path: "txsim.db"}, cfg.Store)
	assert.Equal(t, WorkModulo, cfg.Work.Mode)
	assert.Nil(t, cfg.Seed)
}

func TestDefault_MatchesEngineDefaults(t *testing.T) {
	assert.Equal(t, engine.DefaultRetryPolicy(), Default().RetryPolicy())
}

func TestLoad_CUE(t *testing.T) {
	path := writeFile(t, "txsim.cue", `
workers: 8
items:   100
retry: {
	max_attempts: 5
	backoff:      "exponential"
	max_delay:    "2s"
}
store: driver: "pebble"
seed: 42
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 100, cfg.Items)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, "exponential", cfg.Retry.Backoff)
	assert.Equal(t, 2*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, DriverPebble, cfg.Store.Driver)
	require.NotNil(t, cfg.Seed)
	assert.Equal(t, uint64(42), *cfg.Seed)
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "txsim.json", `{"workers": 2, "tie_break": "lifo", "work": {"mode": "instant"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "lifo", cfg.TieBreak)
	assert.Equal(t, WorkInstant, cfg.Work.Mode)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "txsim.yaml", `
workers: 3
continuous: true
items: 0
grace_period: 250ms
work:
  mode: linear
  scale: 2s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Workers)
	assert.True(t, cfg.Continuous)
	assert.Equal(t, 0, cfg.Items)
	assert.Equal(t, 250*time.Millisecond, cfg.GracePeriod)
	assert.Equal(t, WorkLinear, cfg.Work.Mode)
	assert.Equal(t, 2*time.Second, cfg.Work.Scale)
}

func TestLoad_EmptyYAMLUsesDefaults(t *testing.T) {
	path := writeFile(t, "empty.yml", "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		code    string
	}{
		{"zero workers", "a.cue", `workers: 0`, ErrCodeSchema},
		{"unknown field", "b.json", `{"wokers": 3}`, ErrCodeSchema},
		{"bad backoff", "c.yaml", "retry:\n  backoff: linear\n", ErrCodeSchema},
		{"bad duration", "d.cue", `poll_timeout: "soon"`, ErrCodeSchema},
		{"batch without items", "e.cue", `items: 0`, ErrCodeValue},
		{"max delay below delay", "f.cue", `retry: {backoff: "exponential", delay: "2s", max_delay: "1s"}`, ErrCodeValue},
		{"bad extension", "g.toml", `workers = 1`, ErrCodeFormat},
		{"bad yaml", "h.yaml", "workers: [", ErrCodeFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)

			var cerr *Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.code, cerr.Code)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.cue"))

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrCodeRead, cerr.Code)
}

func TestConfig_EngineOptions(t *testing.T) {
	cfg := Default()
	seed := uint64(7)
	cfg.Seed = &seed

	assert.Len(t, cfg.EngineOptions(), 7)
	assert.Equal(t, engine.Config{Workers: 4, Items: 20}, cfg.RunConfig())
	assert.NotNil(t, cfg.WorkFunc())
}

func TestConfig_ValidateAfterOverride(t *testing.T) {
	cfg := Default()
	cfg.Workers = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Store.Driver = "postgres"
	assert.Error(t, cfg.Validate())
}
