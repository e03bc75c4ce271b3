package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txsim/internal/ir"
	"github.com/roach88/txsim/internal/store"
)

// execute runs cmd with args and returns stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return out.String(), err
}

// decodeData unmarshals the data field of a JSON CLI response into v.
func decodeData(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	if v != nil {
		require.NoError(t, json.Unmarshal(raw.Data, v))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}

// seedSQLite writes records into a fresh SQLite file and returns its path.
func seedSQLite(t *testing.T, records map[string]ir.Status) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "txsim.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	ids := []string{"tx-1", "tx-2", "tx-3", "tx-4", "tx-5"}
	for i, id := range ids {
		status, ok := records[id]
		if !ok {
			continue
		}
		item := ir.MustWorkItem(id, float64(100*(i+1)), 0.1*float64(i+1))
		require.NoError(t, st.UpsertStatus(context.Background(), item, status))
	}
	return path
}

func countSQLite(t *testing.T, path string) map[ir.Status]int {
	t.Helper()
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	counts, err := st.CountByStatus(context.Background())
	require.NoError(t, err)
	return counts
}
