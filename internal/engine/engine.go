package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/txsim/internal/ir"
)

// Engine defaults.
const (
	DefaultPollTimeout = 100 * time.Millisecond
	DefaultGracePeriod = 5 * time.Second
)

// State is the lifecycle state of the engine's current run.
type State int

const (
	// StateIdle means no run was started yet.
	StateIdle State = iota
	// StateOpen means the run accepts new top-level items.
	StateOpen
	// StateDraining means intake is over; in-flight and retry work finishes.
	StateDraining
	// StateClosed means every item of the last run is terminal or released.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateOpen:
		return "Open"
	case StateDraining:
		return "Draining"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Config describes one run.
type Config struct {
	// Workers is the number of main worker goroutines. Must be >= 1.
	Workers int

	// Items is the number of items generated at intake. Must be >= 1,
	// except for continuous runs which may start empty.
	Items int

	// Continuous keeps the run Open for Submit until Stop is called.
	// Batch runs start draining as soon as the intake is enqueued.
	Continuous bool
}

// Engine runs prioritized work items through a worker pool.
//
// An Engine executes one run at a time. After a run is Closed a new one may
// be started; item statuses are remembered across runs until Clear.
//
// Thread-safety model:
//   - Start/StartItems/Resume/Submit/Stop/Clear: safe from any goroutine
//   - Gateway and Observer are called concurrently from worker goroutines
type Engine struct {
	gateway  Gateway
	observer Observer
	ids      IDGenerator
	work     Work
	retry    RetryPolicy
	less     Comparator
	clock    *Clock
	statuses *statusTracker
	gen      *itemGenerator
	seed     *uint64

	retryWorkers int
	pollTimeout  time.Duration
	gracePeriod  time.Duration

	mu      sync.Mutex // guards state and current
	state   State
	current *run
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithIDGenerator sets the id source for generated items.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithWork sets the function executed for each attempt.
// Default: Sleep(ModuloDuration).
func WithWork(w Work) EngineOption {
	return func(e *Engine) {
		e.work = w
	}
}

// WithRetryPolicy sets the retry bounds and backoff.
func WithRetryPolicy(p RetryPolicy) EngineOption {
	return func(e *Engine) {
		e.retry = p
	}
}

// WithRetryWorkers sets the number of retry goroutines. Default: 2.
func WithRetryWorkers(n int) EngineOption {
	return func(e *Engine) {
		e.retryWorkers = n
	}
}

// WithPollTimeout sets how long an idle worker waits for work before
// re-checking whether the run is finished. Default: 100ms.
func WithPollTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.pollTimeout = d
	}
}

// WithGracePeriod sets how long Stop lets in-flight work finish before the
// run is force-cancelled. Default: 5s.
func WithGracePeriod(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.gracePeriod = d
	}
}

// WithTieBreak orders equal-priority items. Default: TieBreakFIFO.
func WithTieBreak(tb TieBreak) EngineOption {
	return func(e *Engine) {
		e.less = ByPriority(tb)
	}
}

// WithComparator replaces the channel ordering entirely.
func WithComparator(less Comparator) EngineOption {
	return func(e *Engine) {
		e.less = less
	}
}

// WithSeed makes item generation reproducible.
func WithSeed(seed uint64) EngineOption {
	return func(e *Engine) {
		e.seed = &seed
	}
}

// New creates an Engine writing through gw and reporting to obs.
// A nil gw discards writes; a nil obs ignores events.
func New(gw Gateway, obs Observer, opts ...EngineOption) *Engine {
	if gw == nil {
		gw = discardGateway{}
	}
	if obs == nil {
		obs = nopObserver{}
	}

	e := &Engine{
		gateway:      gw,
		observer:     obs,
		ids:          UUIDv7Generator{},
		work:         Sleep(ModuloDuration),
		retry:        DefaultRetryPolicy(),
		less:         ByPriority(TieBreakFIFO),
		clock:        NewClock(),
		statuses:     newStatusTracker(),
		retryWorkers: DefaultRetryWorkers,
		pollTimeout:  DefaultPollTimeout,
		gracePeriod:  DefaultGracePeriod,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.gen = newItemGenerator(e.ids, e.seed)
	return e
}

// Start generates cfg.Items random items and runs them on cfg.Workers
// workers.
//
// Invalid configurations are rejected with an INVALID_CONFIGURATION error
// before anything is enqueued or persisted.
func (e *Engine) Start(ctx context.Context, cfg Config) (*Handle, error) {
	if err := e.validate(cfg.Workers); err != nil {
		return nil, err
	}
	minItems := 1
	if cfg.Continuous {
		minItems = 0
	}
	if cfg.Items < minItems {
		return nil, NewInvalidConfigurationError("items must be >= %d (got %d)", minItems, cfg.Items)
	}

	items, err := e.gen.batch(cfg.Items)
	if err != nil {
		return nil, NewInvalidConfigurationError("generate items: %v", err)
	}
	return e.startRun(ctx, cfg.Workers, items, cfg.Continuous)
}

// StartItems runs a caller-supplied batch on workers workers.
func (e *Engine) StartItems(ctx context.Context, workers int, items []ir.WorkItem) (*Handle, error) {
	if err := e.validate(workers); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, NewInvalidConfigurationError("items must be >= 1 (got 0)")
	}
	return e.startRun(ctx, workers, items, false)
}

// Resume reloads every Pending item from the Gateway and runs them.
func (e *Engine) Resume(ctx context.Context, workers int) (*Handle, error) {
	if err := e.validate(workers); err != nil {
		return nil, err
	}

	items, err := e.gateway.LoadPending(ctx)
	if err != nil {
		return nil, NewPersistenceError("load pending items", err)
	}
	if len(items) == 0 {
		return nil, NewInvalidConfigurationError("no pending items to resume")
	}

	slog.Info("resuming pending items", "count", len(items))
	return e.startRun(ctx, workers, items, false)
}

// Generate returns one random item from the engine's generator, for
// callers that feed a continuous run through Submit.
func (e *Engine) Generate() (ir.WorkItem, error) {
	return e.gen.next()
}

// Submit adds a top-level item to an Open run.
func (e *Engine) Submit(item ir.WorkItem) error {
	if item.IsZero() {
		return NewInvalidConfigurationError("submit: %v", ir.ErrEmptyID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.state != StateOpen {
		return &Error{Code: ErrCodeNotAccepting, Message: "engine is " + e.state.String(), ItemID: item.ID()}
	}
	if err := e.statuses.admissible(item.ID()); err != nil {
		return NewInvalidConfigurationError("submit: %v", err)
	}

	e.admit(e.current, item)
	return nil
}

// Stop begins a graceful shutdown of the current run.
//
// The run stops accepting top-level items, in-flight items and scheduled
// retries get the grace period to finish, then the run is cancelled with
// ErrGraceExpired and every unfinished item is released back to Pending.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.current
	if r == nil || (e.state != StateOpen && e.state != StateDraining) {
		return ErrNoRun
	}

	slog.Info("engine stopping", "grace_period", e.gracePeriod, "outstanding", r.outstanding.Load())
	r.armGrace(e.gracePeriod)
	e.beginDrainLocked(r)
	return nil
}

// Clear empties the work channel, deletes every persisted record and
// forgets all tracked statuses. Fails with RUN_ACTIVE during a run.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateOpen || e.state == StateDraining {
		return ErrRunActive
	}

	dropped := 0
	if e.current != nil {
		dropped = e.current.main.Clear() + e.current.retries.Clear()
	}
	if err := e.gateway.DeleteAll(ctx); err != nil {
		return NewPersistenceError("delete all records", err)
	}
	e.statuses.reset()

	slog.Info("engine cleared", "dropped", dropped)
	return nil
}

// State returns the lifecycle state of the current run.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status returns the tracked status of an item.
func (e *Engine) Status(id string) (ir.Status, bool) {
	return e.statuses.get(id)
}

func (e *Engine) validate(workers int) error {
	if workers < 1 {
		return NewInvalidConfigurationError("workers must be >= 1 (got %d)", workers)
	}
	if e.retryWorkers < 1 {
		return NewInvalidConfigurationError("retry workers must be >= 1 (got %d)", e.retryWorkers)
	}
	if e.pollTimeout <= 0 {
		return NewInvalidConfigurationError("poll timeout must be > 0 (got %s)", e.pollTimeout)
	}
	if e.gracePeriod < 0 {
		return NewInvalidConfigurationError("grace period must be >= 0 (got %s)", e.gracePeriod)
	}
	return e.retry.Validate()
}

// startRun admits the intake batch and launches the goroutines.
func (e *Engine) startRun(ctx context.Context, workers int, items []ir.WorkItem, continuous bool) (*Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateOpen || e.state == StateDraining {
		return nil, ErrRunActive
	}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if item.IsZero() {
			return nil, NewInvalidConfigurationError("intake contains an invalid item")
		}
		if seen[item.ID()] {
			return nil, NewInvalidConfigurationError("duplicate item id %s", item.ID())
		}
		seen[item.ID()] = true
		if err := e.statuses.admissible(item.ID()); err != nil {
			return nil, NewInvalidConfigurationError("%v", err)
		}
	}

	r := newRun(ctx, e.less)
	e.current = r
	e.state = StateOpen

	for _, item := range items {
		e.admit(r, item)
	}

	slog.Info("run starting",
		"workers", workers,
		"retry_workers", e.retryWorkers,
		"items", len(items),
		"continuous", continuous,
	)

	for i := 1; i <= workers; i++ {
		r.wg.Add(1)
		go e.worker(r, workerName(i))
	}
	for i := 1; i <= e.retryWorkers; i++ {
		r.wg.Add(1)
		go e.retrier(r)
	}
	go func() {
		r.wg.Wait()
		e.finish(r)
	}()

	if !continuous {
		e.beginDrainLocked(r)
	}
	return &Handle{run: r}, nil
}

// admit records item as Pending and enqueues it. Caller holds e.mu.
//
// Pending is persisted before the entry becomes visible to workers so a
// Processing write can never be overtaken by the Pending write.
func (e *Engine) admit(r *run, item ir.WorkItem) {
	e.statuses.admit(item.ID())
	r.outstanding.Add(1)
	e.persist(r, item, ir.StatusPending)
	e.observer.OnEnqueued(item)
	r.main.Enqueue(Entry{Item: item, Seq: e.clock.Next()})
}

// beginDrainLocked moves an Open run to Draining. Caller holds e.mu.
func (e *Engine) beginDrainLocked(r *run) {
	if e.current != r {
		return
	}
	if e.state == StateOpen {
		e.state = StateDraining
		slog.Debug("run draining", "outstanding", r.outstanding.Load())
	}
	if e.state == StateDraining && r.outstanding.Load() == 0 {
		r.closeChannels()
	}
}

// settle marks one outstanding item as done and closes the run's channels
// once a draining run has nothing left.
func (e *Engine) settle(r *run) {
	if r.outstanding.Add(-1) > 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == r && e.state == StateDraining {
		r.closeChannels()
	}
}

// draining reports whether r is the current run and no longer Open.
func (e *Engine) draining(r *run) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current == r && e.state == StateDraining
}

// persist writes a status through the Gateway. Failures are logged and
// counted; processing continues.
func (e *Engine) persist(r *run, item ir.WorkItem, status ir.Status) {
	if err := e.gateway.UpsertStatus(r.persistCtx, item, status); err != nil {
		r.persistFailures.Add(1)
		slog.Error("persist status failed",
			"item_id", item.ID(),
			"status", status,
			"error", err,
		)
	}
}
