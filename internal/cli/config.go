package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/txsim/internal/config"
	"github.com/roach88/txsim/internal/engine"
	"github.com/roach88/txsim/internal/ir"
	"github.com/roach88/txsim/internal/kvstore"
	"github.com/roach88/txsim/internal/store"
)

// StoreFlags selects the persistence backend. Shared by run, clear and
// status.
type StoreFlags struct {
	Driver string
	Path   string
}

func (s *StoreFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.Driver, "store", config.DriverSQLite, "store driver (sqlite|pebble)")
	cmd.Flags().StringVar(&s.Path, "db", "txsim.db", "SQLite file or Pebble directory")
}

// apply copies explicitly set flags over cfg.
func (s *StoreFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("store") {
		cfg.Store.Driver = s.Driver
	}
	if cmd.Flags().Changed("db") {
		cfg.Store.Path = s.Path
	}
}

// loadConfig reads --config, or returns the defaults when it is unset.
func loadConfig(opts *RootOptions) (config.Config, error) {
	if opts.Config == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// recordStore is the Gateway plus the read side used by status.
// Both store.Store and kvstore.Store satisfy it.
type recordStore interface {
	engine.Gateway
	List(ctx context.Context) ([]ir.Record, error)
	CountByStatus(ctx context.Context) (map[ir.Status]int, error)
	Close() error
}

var (
	_ recordStore = (*store.Store)(nil)
	_ recordStore = (*kvstore.Store)(nil)
)

// openStore opens the configured backend.
func openStore(cfg config.Store) (recordStore, error) {
	switch cfg.Driver {
	case config.DriverPebble:
		st, err := kvstore.Open(kvstore.Options{DataDir: cfg.Path})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open pebble store", err)
		}
		return st, nil
	case config.DriverSQLite:
		st, err := store.Open(cfg.Path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		return st, nil
	default:
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown store driver %q", cfg.Driver))
	}
}

// formatDuration renders a duration with millisecond precision.
func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
