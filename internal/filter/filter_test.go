package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txsim/internal/ir"
)

func records() []ir.Record {
	at := time.UnixMilli(1_700_000_000_000)
	return []ir.Record{
		{Item: ir.MustWorkItem("tx-1", 900000, 0.95), Status: ir.StatusCompleted, UpdatedAt: at},
		{Item: ir.MustWorkItem("tx-2", 120, 0.10), Status: ir.StatusFailedPermanently, UpdatedAt: at},
		{Item: ir.MustWorkItem("job-3", 550000, 0.85), Status: ir.StatusPending, UpdatedAt: at},
	}
}

func ids(recs []ir.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Item.ID())
	}
	return out
}

func TestCompile_EmptyMatchesAll(t *testing.T) {
	f, err := Compile("   ")
	require.NoError(t, err)
	assert.Len(t, f.Apply(records()), 3)

	var zero Filter
	assert.True(t, zero.Match(records()[0]))
}

func TestFilter_Expressions(t *testing.T) {
	tests := []struct {
		expr string
		want []string
	}{
		{`status == "FailedPermanently"`, []string{"tx-2"}},
		{`priority > 0.8 && amount >= 500000.0`, []string{"tx-1", "job-3"}},
		{`id.startsWith("tx-")`, []string{"tx-1", "tx-2"}},
		{`status in ["Pending", "Retrying"]`, []string{"job-3"}},
		{`updated_ms > 0`, []string{"tx-1", "tx-2", "job-3"}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := Compile(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(f.Apply(records())))
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	for _, expr := range []string{
		`status ==`,
		`unknown_var == 1`,
		`amount + 1.0`,
	} {
		_, err := Compile(expr)
		assert.Error(t, err, expr)
	}
}
