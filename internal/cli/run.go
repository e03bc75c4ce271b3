package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/txsim/internal/config"
	"github.com/roach88/txsim/internal/engine"
	"github.com/roach88/txsim/internal/metrics"
	"github.com/roach88/txsim/internal/observer"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Store StoreFlags

	Workers      int
	Items        int
	RetryWorkers int
	MaxAttempts  int
	Backoff      string
	TieBreak     string
	GracePeriod  time.Duration
	Seed         uint64
	Continuous   bool

	Resume      bool
	Table       bool
	MetricsAddr string

	// SubmitInterval feeds a continuous run one generated item per tick.
	SubmitInterval time.Duration

	// Duration stops a continuous run after this long.
	Duration time.Duration

	// IDGenerator overrides item ids (for testing).
	IDGenerator engine.IDGenerator

	// Work overrides the configured work function (for testing).
	Work engine.Work

	// Signals overrides the shutdown signal source (for testing).
	Signals <-chan os.Signal
}

// RunSummary is the final report of the run command.
type RunSummary struct {
	Resumed             int    `json:"resumed"`
	Completed           int    `json:"completed"`
	FailedPermanently   int    `json:"failed_permanently"`
	Retries             int    `json:"retries"`
	Released            int    `json:"released"`
	PersistenceFailures int    `json:"persistence_failures"`
	Forced              bool   `json:"forced"`
	TotalTime           string `json:"total_time"`
	TotalMillis         int64  `json:"total_ms"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate and process a batch of transactions",
		Long: `Generate random transactions and process them by priority.

Settings come from --config (or built-in defaults); flags given on the
command line override the file. Ctrl-C stops the run gracefully: in-flight
work gets the grace period, a second Ctrl-C cancels immediately. Unfinished
items are stored as Pending and can be picked up with --resume.

Examples:
  txsim run --workers 8 --items 200
  txsim run --resume --table
  txsim run --continuous --items 0 --submit-interval 50ms --duration 10s
  txsim run --store pebble --db ./txsim-data --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.Workers, "workers", "w", 4, "number of worker goroutines")
	f.IntVarP(&opts.Items, "items", "n", 20, "number of items to generate")
	f.IntVar(&opts.RetryWorkers, "retry-workers", engine.DefaultRetryWorkers, "number of retry goroutines")
	f.IntVar(&opts.MaxAttempts, "max-attempts", engine.DefaultMaxAttempts, "retries before an item fails permanently")
	f.StringVar(&opts.Backoff, "backoff", string(engine.BackoffFixed), "retry backoff (fixed|exponential)")
	f.StringVar(&opts.TieBreak, "tie-break", "fifo", "order of equal priorities (fifo|lifo|id)")
	f.DurationVar(&opts.GracePeriod, "grace-period", engine.DefaultGracePeriod, "time in-flight work gets after Ctrl-C")
	f.Uint64Var(&opts.Seed, "seed", 0, "seed for reproducible item generation")
	f.BoolVar(&opts.Continuous, "continuous", false, "keep accepting items until stopped")
	f.BoolVar(&opts.Resume, "resume", false, "process stored Pending items before the new batch")
	f.BoolVar(&opts.Table, "table", false, "stream a table row per status change to stdout")
	f.StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.DurationVar(&opts.SubmitInterval, "submit-interval", 0, "continuous mode: submit one generated item per interval")
	f.DurationVar(&opts.Duration, "duration", 0, "continuous mode: stop after this long")
	opts.Store.register(cmd)

	return cmd
}

// resolveRunConfig merges the config file with explicitly set flags.
func resolveRunConfig(opts *RunOptions, cmd *cobra.Command) (config.Config, error) {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return config.Config{}, err
	}

	f := cmd.Flags()
	if f.Changed("workers") {
		cfg.Workers = opts.Workers
	}
	if f.Changed("items") {
		cfg.Items = opts.Items
	}
	if f.Changed("retry-workers") {
		cfg.RetryWorkers = opts.RetryWorkers
	}
	if f.Changed("max-attempts") {
		cfg.Retry.MaxAttempts = opts.MaxAttempts
	}
	if f.Changed("backoff") {
		cfg.Retry.Backoff = opts.Backoff
	}
	if f.Changed("tie-break") {
		cfg.TieBreak = opts.TieBreak
	}
	if f.Changed("grace-period") {
		cfg.GracePeriod = opts.GracePeriod
	}
	if f.Changed("seed") {
		seed := opts.Seed
		cfg.Seed = &seed
	}
	if f.Changed("continuous") {
		cfg.Continuous = opts.Continuous
	}
	opts.Store.apply(cmd, &cfg)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

func runSimulation(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := resolveRunConfig(opts, cmd)
	if err != nil {
		return err
	}

	st, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing store", "error", closeErr)
		}
	}()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	out := cmd.OutOrStdout()
	observers := []observer.Observer{observer.NewLog(slog.Default())}
	if opts.Table && opts.Format != "json" {
		observers = append(observers, observer.NewTable(out))
	}
	if opts.MetricsAddr != "" {
		collector := metrics.NewCollector()
		observers = append(observers, collector)
		go func() {
			if err := collector.Serve(ctx, opts.MetricsAddr); err != nil {
				slog.Error("metrics server failed", "addr", opts.MetricsAddr, "error", err)
			}
		}()
	}

	engineOpts := cfg.EngineOptions()
	if opts.IDGenerator != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	if opts.Work != nil {
		engineOpts = append(engineOpts, engine.WithWork(opts.Work))
	}
	eng := engine.New(st, observer.NewMulti(observers...), engineOpts...)

	stopSignals, stopRequested := watchSignals(ctx, cancel, eng, opts.Signals)
	defer stopSignals()

	start := time.Now()
	var summary RunSummary

	if opts.Resume {
		res, resumed, err := resumePending(ctx, eng, cfg.Workers)
		if err != nil {
			return err
		}
		summary.Resumed = resumed
		summary.add(res)
		if res.Forced || stopRequested.Load() || ctx.Err() != nil {
			return finishRun(opts, out, summary, start)
		}
	}

	handle, err := startBatch(ctx, eng, cfg.RunConfig(), stopRequested)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start run", err)
	}
	if handle == nil {
		return finishRun(opts, out, summary, start)
	}

	if cfg.Continuous {
		go feed(ctx, eng, opts.SubmitInterval)
		if opts.Duration > 0 {
			timer := time.AfterFunc(opts.Duration, func() {
				if err := eng.Stop(); err != nil && !errors.Is(err, engine.ErrNoRun) {
					slog.Error("stop failed", "error", err)
				}
			})
			defer timer.Stop()
		}
	}

	res, err := handle.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return WrapExitError(ExitFailure, "run did not finish", err)
	}
	summary.add(res)

	return finishRun(opts, out, summary, start)
}

// startBatch opens the new batch unless a stop was already requested. A
// signal whose Stop landed between runs is replayed on the new run.
func startBatch(ctx context.Context, eng *engine.Engine, cfg engine.Config, stopRequested *atomic.Bool) (*engine.Handle, error) {
	if stopRequested.Load() {
		slog.Info("stop requested, not starting new batch")
		return nil, nil
	}
	handle, err := eng.Start(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if stopRequested.Load() {
		if err := eng.Stop(); err != nil && !errors.Is(err, engine.ErrNoRun) {
			slog.Error("stop failed", "error", err)
		}
	}
	return handle, nil
}

// resumePending runs stored Pending items to completion. Having nothing to
// resume is not an error.
func resumePending(ctx context.Context, eng *engine.Engine, workers int) (engine.Result, int, error) {
	handle, err := eng.Resume(ctx, workers)
	switch {
	case err == nil:
	case engine.IsInvalidConfiguration(err):
		slog.Info("nothing to resume")
		return engine.Result{}, 0, nil
	case engine.IsPersistenceError(err):
		return engine.Result{}, 0, WrapExitError(ExitFailure, "failed to load pending items", err)
	default:
		return engine.Result{}, 0, WrapExitError(ExitCommandError, "failed to resume", err)
	}

	res, err := handle.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return engine.Result{}, 0, WrapExitError(ExitFailure, "resume did not finish", err)
	}
	return res, res.Completed + res.FailedPermanently + res.Released, nil
}

// feed submits generated items until the run stops accepting them.
func feed(ctx context.Context, eng *engine.Engine, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		item, err := eng.Generate()
		if err != nil {
			slog.Error("generate item failed", "error", err)
			return
		}
		if err := eng.Submit(item); err != nil {
			if engine.IsNotAccepting(err) {
				slog.Debug("producer stopping", "reason", err)
				return
			}
			slog.Error("submit failed", "item_id", item.ID(), "error", err)
			return
		}
	}
}

// watchSignals stops the engine on the first signal and cancels ctx on the
// second. It returns a func that releases the signal handler and a flag set
// once a stop was requested.
func watchSignals(ctx context.Context, cancel context.CancelFunc, eng *engine.Engine, signals <-chan os.Signal) (func(), *atomic.Bool) {
	stopped := &atomic.Bool{}
	release := func() {}
	if signals == nil {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		signals = ch
		release = func() { signal.Stop(ch) }
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-signals:
				if stopped.Swap(true) {
					slog.Warn("second signal, cancelling run", "signal", sig)
					cancel()
					return
				}
				slog.Info("received signal, stopping", "signal", sig)
				if err := eng.Stop(); err != nil && !errors.Is(err, engine.ErrNoRun) {
					slog.Error("stop failed", "error", err)
				}
			}
		}
	}()
	return release, stopped
}

func (s *RunSummary) add(res engine.Result) {
	s.Completed += res.Completed
	s.FailedPermanently += res.FailedPermanently
	s.Retries += res.Retries
	s.Released += res.Released
	s.PersistenceFailures += res.PersistenceFailures
	s.Forced = s.Forced || res.Forced
}

func finishRun(opts *RunOptions, out io.Writer, summary RunSummary, start time.Time) error {
	elapsed := time.Since(start)
	summary.TotalTime = formatDuration(elapsed)
	summary.TotalMillis = elapsed.Milliseconds()

	formatter := &OutputFormatter{Format: opts.Format, Writer: out}
	if err := formatter.Success(summary, func(w io.Writer) {
		fmt.Fprintln(w)
		if summary.Resumed > 0 {
			fmt.Fprintf(w, "Resumed:    %d\n", summary.Resumed)
		}
		fmt.Fprintf(w, "Completed:  %d\n", summary.Completed)
		fmt.Fprintf(w, "Failed:     %d\n", summary.FailedPermanently)
		fmt.Fprintf(w, "Retries:    %d\n", summary.Retries)
		if summary.Released > 0 {
			fmt.Fprintf(w, "Released:   %d (pending, resume with --resume)\n", summary.Released)
		}
		fmt.Fprintf(w, "Total time: %s\n", summary.TotalTime)
	}); err != nil {
		return err
	}

	if summary.PersistenceFailures > 0 {
		return WrapExitError(ExitFailure, "run finished with persistence failures",
			engine.Result{PersistenceFailures: summary.PersistenceFailures}.Err())
	}
	return nil
}
