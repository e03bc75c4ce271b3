// Package config loads run settings from CUE, JSON or YAML files.
//
// Every file is unified with an embedded CUE schema that supplies defaults
// and rejects unknown fields, so Default() and an empty file agree.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/txsim/internal/engine"
)

//go:embed schema.cue
var schemaSource string

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverPebble = "pebble"
)

// Work modes.
const (
	WorkModulo  = "modulo"
	WorkLinear  = "linear"
	WorkInstant = "instant"
)

// Error codes for configuration failures.
const (
	ErrCodeRead   = "CONFIG_READ"
	ErrCodeFormat = "CONFIG_FORMAT"
	ErrCodeSchema = "CONFIG_SCHEMA"
	ErrCodeValue  = "CONFIG_VALUE"
)

// Error describes a configuration failure, with the file position when the
// CUE evaluator reports one.
type Error struct {
	Code    string
	Path    string
	Message string
	Line    int
	Column  int
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Path, e.Line, e.Column, e.Code, e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Retry mirrors engine.RetryPolicy with parsed durations.
type Retry struct {
	MaxAttempts int
	Delay       time.Duration
	MaxDelay    time.Duration
	Backoff     string
}

// Store selects the persistence backend.
type Store struct {
	Driver string
	Path   string
}

// Work selects the simulated work function.
type Work struct {
	Mode  string
	Scale time.Duration
}

// Config is the resolved run configuration.
type Config struct {
	Workers      int
	Items        int
	Continuous   bool
	RetryWorkers int
	Retry        Retry
	PollTimeout  time.Duration
	GracePeriod  time.Duration
	TieBreak     string
	Store        Store
	Work         Work

	// Seed makes item generation reproducible when set.
	Seed *uint64
}

// file is the wire shape decoded from CUE.
type file struct {
	Workers      int    `json:"workers"`
	Items        int    `json:"items"`
	Continuous   bool   `json:"continuous"`
	RetryWorkers int    `json:"retry_workers"`
	PollTimeout  string `json:"poll_timeout"`
	GracePeriod  string `json:"grace_period"`
	TieBreak     string `json:"tie_break"`
	Retry        struct {
		MaxAttempts int    `json:"max_attempts"`
		Delay       string `json:"delay"`
		MaxDelay    string `json:"max_delay"`
		Backoff     string `json:"backoff"`
	} `json:"retry"`
	Store struct {
		Driver string `json:"driver"`
		Path   string `json:"path"`
	} `json:"store"`
	Work struct {
		Mode  string `json:"mode"`
		Scale string `json:"scale"`
	} `json:"work"`
	Seed *uint64 `json:"seed,omitempty"`
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := Parse("", nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return cfg
}

// Load reads path and resolves it against the schema. The format is chosen
// by extension: .cue, .json, .yaml or .yml.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &Error{Code: ErrCodeRead, Path: path, Message: err.Error()}
	}
	return Parse(path, data)
}

// Parse resolves data against the schema. The format is taken from the
// extension of name; an empty name with nil data yields the defaults.
func Parse(name string, data []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, &Error{Code: ErrCodeSchema, Message: err.Error()}
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	user, err := compile(ctx, name, data)
	if err != nil {
		return Config{}, err
	}

	v := def.Unify(user)
	if err := v.Validate(); err != nil {
		return Config{}, schemaError(name, err)
	}

	var f file
	if err := v.Decode(&f); err != nil {
		return Config{}, schemaError(name, err)
	}
	return resolve(name, f)
}

func compile(ctx *cue.Context, name string, data []byte) (cue.Value, error) {
	if len(data) == 0 {
		return ctx.CompileString("{}"), nil
	}

	var v cue.Value
	switch strings.ToLower(filepath.Ext(name)) {
	case ".cue", ".json":
		v = ctx.CompileBytes(data, cue.Filename(name))
	case ".yaml", ".yml":
		var m map[string]any
		if err := yaml.Unmarshal(data, &m); err != nil {
			return cue.Value{}, &Error{Code: ErrCodeFormat, Path: name, Message: err.Error()}
		}
		if m == nil {
			m = map[string]any{}
		}
		v = ctx.Encode(m)
	default:
		return cue.Value{}, &Error{
			Code:    ErrCodeFormat,
			Path:    name,
			Message: fmt.Sprintf("unsupported config extension %q (want .cue, .json, .yaml or .yml)", filepath.Ext(name)),
		}
	}
	if err := v.Err(); err != nil {
		return cue.Value{}, schemaError(name, err)
	}
	return v, nil
}

func schemaError(name string, err error) error {
	out := &Error{Code: ErrCodeSchema, Path: name, Message: err.Error()}
	var cerr cueerrors.Error
	if errors.As(err, &cerr) {
		out.Message = cerr.Error()
		if pos := cerr.Position(); pos.IsValid() && pos.Filename() == name {
			out.Line = pos.Line()
			out.Column = pos.Column()
		}
	}
	return out
}

func resolve(name string, f file) (Config, error) {
	cfg := Config{
		Workers:      f.Workers,
		Items:        f.Items,
		Continuous:   f.Continuous,
		RetryWorkers: f.RetryWorkers,
		TieBreak:     f.TieBreak,
		Store:        Store{Driver: f.Store.Driver, Path: f.Store.Path},
		Seed:         f.Seed,
	}
	cfg.Retry.MaxAttempts = f.Retry.MaxAttempts
	cfg.Retry.Backoff = f.Retry.Backoff
	cfg.Work.Mode = f.Work.Mode

	durations := []struct {
		field string
		src   string
		dst   *time.Duration
	}{
		{"poll_timeout", f.PollTimeout, &cfg.PollTimeout},
		{"grace_period", f.GracePeriod, &cfg.GracePeriod},
		{"retry.delay", f.Retry.Delay, &cfg.Retry.Delay},
		{"retry.max_delay", f.Retry.MaxDelay, &cfg.Retry.MaxDelay},
		{"work.scale", f.Work.Scale, &cfg.Work.Scale},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.src)
		if err != nil {
			return Config{}, &Error{Code: ErrCodeValue, Path: name, Message: fmt.Sprintf("%s: %v", d.field, err)}
		}
		*d.dst = parsed
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, &Error{Code: ErrCodeValue, Path: name, Message: err.Error()}
	}
	return cfg, nil
}

// Validate checks the cross-field rules the schema cannot express. It is
// also run after CLI flag overrides.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1 (got %d)", c.Workers)
	}
	if c.Items < 1 && !c.Continuous {
		return fmt.Errorf("items must be >= 1 for a batch run (got %d)", c.Items)
	}
	if c.Items < 0 {
		return fmt.Errorf("items must be >= 0 (got %d)", c.Items)
	}
	if c.RetryWorkers < 1 {
		return fmt.Errorf("retry_workers must be >= 1 (got %d)", c.RetryWorkers)
	}
	if _, err := engine.ParseTieBreak(c.TieBreak); err != nil {
		return err
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverPebble:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Path == "" {
		return errors.New("store path must not be empty")
	}
	switch c.Work.Mode {
	case WorkModulo, WorkInstant:
	case WorkLinear:
		if c.Work.Scale <= 0 {
			return fmt.Errorf("work scale must be > 0 for linear mode (got %s)", c.Work.Scale)
		}
	default:
		return fmt.Errorf("unknown work mode %q", c.Work.Mode)
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return err
	}
	return nil
}

// RetryPolicy converts the retry block for the engine.
func (c Config) RetryPolicy() engine.RetryPolicy {
	return engine.RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		Delay:       c.Retry.Delay,
		MaxDelay:    c.Retry.MaxDelay,
		Backoff:     engine.BackoffKind(c.Retry.Backoff),
	}
}

// WorkFunc returns the simulated work selected by the work block.
func (c Config) WorkFunc() engine.Work {
	switch c.Work.Mode {
	case WorkInstant:
		return engine.Instant()
	case WorkLinear:
		return engine.Sleep(engine.LinearDuration(c.Work.Scale))
	default:
		return engine.Sleep(engine.ModuloDuration)
	}
}

// EngineOptions translates the configuration into engine options.
func (c Config) EngineOptions() []engine.EngineOption {
	tb, _ := engine.ParseTieBreak(c.TieBreak)
	opts := []engine.EngineOption{
		engine.WithRetryPolicy(c.RetryPolicy()),
		engine.WithRetryWorkers(c.RetryWorkers),
		engine.WithPollTimeout(c.PollTimeout),
		engine.WithGracePeriod(c.GracePeriod),
		engine.WithTieBreak(tb),
		engine.WithWork(c.WorkFunc()),
	}
	if c.Seed != nil {
		opts = append(opts, engine.WithSeed(*c.Seed))
	}
	return opts
}

// RunConfig returns the engine start configuration.
func (c Config) RunConfig() engine.Config {
	return engine.Config{Workers: c.Workers, Items: c.Items, Continuous: c.Continuous}
}
