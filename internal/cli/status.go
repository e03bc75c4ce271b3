package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/txsim/internal/filter"
	"github.com/roach88/txsim/internal/ir"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Store  StoreFlags
	Filter string
	Limit  int
}

// StatusRecord is one stored item in status output.
type StatusRecord struct {
	ID        string `json:"id"`
	Amount    string `json:"amount"`
	Priority  string `json:"priority"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at"`
}

// StatusReport is the status command payload.
type StatusReport struct {
	Counts  map[string]int `json:"counts"`
	Total   int            `json:"total"`
	Matched int            `json:"matched"`
	Records []StatusRecord `json:"records"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored items and status counts",
		Long: `Show stored items and status counts.

--filter takes a CEL expression over id, amount, priority, status and
updated_ms.

Examples:
  txsim status
  txsim status --filter 'status == "Pending"'
  txsim status --filter 'priority > 0.9 && amount > 500000.0' --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "CEL expression selecting records")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show at most this many records (0 = all)")
	opts.Store.register(cmd)

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	f, err := filter.Compile(opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	opts.Store.apply(cmd, &cfg)

	st, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	counts, err := st.CountByStatus(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to count records", err)
	}
	records, err := st.List(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list records", err)
	}

	report := buildStatusReport(counts, f.Apply(records), opts.Limit)
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(report, func(w io.Writer) {
		writeStatusText(w, report)
	})
}

func buildStatusReport(counts map[ir.Status]int, matched []ir.Record, limit int) StatusReport {
	report := StatusReport{
		Counts:  make(map[string]int, len(ir.AllStatuses)),
		Matched: len(matched),
		Records: make([]StatusRecord, 0, len(matched)),
	}
	for _, st := range ir.AllStatuses {
		report.Counts[string(st)] = counts[st]
		report.Total += counts[st]
	}

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	for _, rec := range matched {
		report.Records = append(report.Records, StatusRecord{
			ID:        rec.Item.ID(),
			Amount:    ir.FormatAmount(rec.Item.Amount()),
			Priority:  ir.FormatAmount(rec.Item.Priority()),
			Status:    string(rec.Status),
			UpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return report
}

func writeStatusText(w io.Writer, report StatusReport) {
	for _, st := range ir.AllStatuses {
		fmt.Fprintf(w, "%-17s %d\n", st, report.Counts[string(st)])
	}
	fmt.Fprintf(w, "%-17s %d\n", "Total", report.Total)

	if len(report.Records) == 0 {
		return
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAmount\tPriority\tStatus\tUpdated")
	for _, rec := range report.Records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", rec.ID, rec.Amount, rec.Priority, rec.Status, rec.UpdatedAt)
	}
	tw.Flush()

	if report.Matched > len(report.Records) {
		fmt.Fprintf(w, "... %d more\n", report.Matched-len(report.Records))
	}
}
