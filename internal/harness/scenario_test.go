package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "one item"
workers: 1
items:
  - {id: tx-1, amount: 10, priority: 0.5}
assertions:
  - type: final_state
    id: tx-1
    status: Completed
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, 1, s.Workers)
	require.Len(t, s.Items, 1)
	assert.Equal(t, ItemSpec{ID: "tx-1", Amount: 10, Priority: 0.5}, s.Items[0])

	items, err := s.WorkItems()
	require.NoError(t, err)
	assert.Equal(t, "tx-1", items[0].ID())
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "description: d\nworkers: 1\nitems: [{id: a, amount: 1, priority: 0.5}]\nassertions: [{type: trace_contains, event: started}]\n",
			want: "name is required",
		},
		{
			name: "no workers",
			yaml: "name: n\ndescription: d\nitems: [{id: a, amount: 1, priority: 0.5}]\nassertions: [{type: trace_contains, event: started}]\n",
			want: "workers must be >= 1",
		},
		{
			name: "no items",
			yaml: "name: n\ndescription: d\nworkers: 1\nassertions: [{type: trace_contains, event: started}]\n",
			want: "items list is required",
		},
		{
			name: "unknown event",
			yaml: "name: n\ndescription: d\nworkers: 1\nitems: [{id: a, amount: 1, priority: 0.5}]\nassertions: [{type: trace_contains, event: exploded}]\n",
			want: "unknown event",
		},
		{
			name: "unknown outcome",
			yaml: "name: n\ndescription: d\nworkers: 1\nitems: [{id: a, amount: 1, priority: 0.5}]\noutcomes: {a: [explode]}\nassertions: [{type: trace_contains, event: started}]\n",
			want: "unknown outcome",
		},
		{
			name: "outcome for unknown item",
			yaml: "name: n\ndescription: d\nworkers: 1\nitems: [{id: a, amount: 1, priority: 0.5}]\noutcomes: {b: [ok]}\nassertions: [{type: trace_contains, event: started}]\n",
			want: "unknown item",
		},
		{
			name: "trace_count without count",
			yaml: "name: n\ndescription: d\nworkers: 1\nitems: [{id: a, amount: 1, priority: 0.5}]\nassertions: [{type: trace_count, event: started}]\n",
			want: "count is required",
		},
		{
			name: "final_state bad status",
			yaml: "name: n\ndescription: d\nworkers: 1\nitems: [{id: a, amount: 1, priority: 0.5}]\nassertions: [{type: final_state, id: a, status: Done}]\n",
			want: "assertions[0]",
		},
		{
			name: "summary unknown field",
			yaml: "name: n\ndescription: d\nworkers: 1\nitems: [{id: a, amount: 1, priority: 0.5}]\nassertions: [{type: summary, expect: {lost: 0}}]\n",
			want: "unknown summary field",
		},
		{
			name: "bad tie break",
			yaml: "name: n\ndescription: d\nworkers: 1\ntie_break: random\nitems: [{id: a, amount: 1, priority: 0.5}]\nassertions: [{type: trace_contains, event: started}]\n",
			want: "unknown tie-break",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScenario_StartErrorAllowsZeroWorkers(t *testing.T) {
	s, err := ParseScenario([]byte("name: n\ndescription: d\nworkers: 0\nassertions: [{type: start_error, code: INVALID_CONFIGURATION}]\n"))
	require.NoError(t, err)
	assert.True(t, s.expectsStartError())
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt", "nested/c.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(minimalScenario), 0o644))
	}

	paths, err := FindScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "nested", "c.yaml"),
	}, paths)
}

func TestTestdataScenariosParse(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		_, err := LoadScenario(path)
		assert.NoError(t, err, path)
	}
}
