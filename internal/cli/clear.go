package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/txsim/internal/engine"
)

// ClearOptions holds flags for the clear command.
type ClearOptions struct {
	*RootOptions
	Store StoreFlags
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClearOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored item",
		Long: `Delete every stored work item record.

Example:
  txsim clear --db ./txsim.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(opts, cmd)
		},
	}
	opts.Store.register(cmd)

	return cmd
}

func runClear(opts *ClearOptions, cmd *cobra.Command) error {
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

	before, err := st.CountByStatus(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to count records", err)
	}
	total := 0
	for _, n := range before {
		total += n
	}

	if err := engine.New(st, nil).Clear(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to clear store", err)
	}
	slog.Info("store cleared", "driver", cfg.Store.Driver, "path", cfg.Store.Path, "deleted", total)

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(map[string]int{"deleted": total}, func(w io.Writer) {
		fmt.Fprintf(w, "Cleared %d records.\n", total)
	})
}
