package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: two_items
description: "higher priority completes first"
workers: 1
items:
  - {id: tx-1, amount: 10, priority: 0.2}
  - {id: tx-2, amount: 20, priority: 0.8}
assertions:
  - type: trace_order
    event: completed
    ids: [tx-2, tx-1]
`

const failingScenario = `
name: wrong_order
description: "expects the wrong order"
workers: 1
items:
  - {id: tx-1, amount: 10, priority: 0.2}
  - {id: tx-2, amount: 20, priority: 0.8}
assertions:
  - type: trace_order
    event: completed
    ids: [tx-1, tx-2]
`

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandNoScenarios(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandPassAndFail(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "two_items.yaml", passingScenario)
	writeScenario(t, dir, "wrong_order.yaml", failingScenario)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ two_items")
	assert.Contains(t, out, "✗ wrong_order")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTestCommandFilterJSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "two_items.yaml", passingScenario)
	writeScenario(t, dir, "wrong_order.yaml", failingScenario)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), dir, "--filter", "two_*")
	require.NoError(t, err)

	var result TestResult
	resp := decodeData(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Passed)
}

func TestTestCommandGoldenUpdateAndCompare(t *testing.T) {
	dir := t.TempDir()
	scenarioPath := writeScenario(t, dir, "two_items.yaml", passingScenario)
	goldenPath := goldenFilePath(scenarioPath)
	assert.Equal(t, filepath.Join(dir, "golden", "two_items.golden"), goldenPath)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "(golden updated)")

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"two_items"`)

	_, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"tampered":true}`), 0o644))
	out, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "Golden file mismatch")
}

func TestTestCommandInvalidScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\n")

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}
