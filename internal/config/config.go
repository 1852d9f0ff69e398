// Package config loads a diff session's configuration from CUE.
//
// A config file is unified with the embedded #Config schema, which fills
// defaults and rejects unknown fields, then decoded into Config:
//
//	domain: "demo"
//	cutoff: "2024-03-01T00:00:00Z"
//	no_action_case_forms: ["form-1"]
//	state: {driver: "redis", redis_addr: "localhost:6379"}
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/casediff/internal/engine"
	"github.com/roach88/casediff/internal/rebuild"
)

//go:embed schema.cue
var schemaSrc string

// State driver names.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config is a validated session configuration.
type Config struct {
	Domain            string   `json:"domain"`
	Cutoff            string   `json:"cutoff,omitempty"`
	NoActionCaseForms []string `json:"no_action_case_forms"`
	Rebuild           string   `json:"rebuild"`
	Concurrency       int      `json:"concurrency"`
	StockCacheSize    int      `json:"stock_cache_size"`
	BatchSize         int      `json:"batch_size"`
	LogCases          bool     `json:"log_cases"`
	CaseIgnorePaths   []string `json:"case_ignore_paths"`
	LedgerIgnorePaths []string `json:"ledger_ignore_paths"`

	State      State       `json:"state"`
	Relational *Relational `json:"relational,omitempty"`
	Document   *Document   `json:"document,omitempty"`
}

// State selects and configures the state store.
type State struct {
	Driver    string `json:"driver"`
	Path      string `json:"path"`
	RedisAddr string `json:"redis_addr"`
	RedisDB   int    `json:"redis_db"`
	Prefix    string `json:"prefix"`
}

// Relational configures the relational store connection.
type Relational struct {
	DSN string `json:"dsn"`
}

// Document configures the document store connection.
type Document struct {
	URL       string `json:"url"`
	Namespace string `json:"namespace"`
	Database  string `json:"database"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// Error is a configuration error, with the CUE position when known.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &Error{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, path)
}

// Parse validates CUE source against the schema. filename is used in
// error positions.
func Parse(src []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, formatCUEError(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks what the schema cannot. The CLI calls it again after
// applying flag overrides.
func (c *Config) Validate() error {
	if c.Domain == "" {
		return &Error{Field: "domain", Message: "domain is required"}
	}
	if c.Concurrency < 1 {
		return &Error{Field: "concurrency", Message: fmt.Sprintf("must be at least 1, got %d", c.Concurrency)}
	}
	if _, err := c.CutoffTime(); err != nil {
		return &Error{Field: "cutoff", Message: err.Error()}
	}
	if _, err := rebuild.ParseMode(c.Rebuild); err != nil {
		return &Error{Field: "rebuild", Message: err.Error()}
	}
	switch c.State.Driver {
	case DriverSQLite, DriverRedis:
	default:
		return &Error{Field: "state.driver", Message: fmt.Sprintf("unknown driver %q", c.State.Driver)}
	}
	return nil
}

// CutoffTime parses the cutoff. It returns nil when none is set.
func (c *Config) CutoffTime() (*time.Time, error) {
	if c.Cutoff == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, c.Cutoff)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

// RebuildMode returns the document rebuild mode.
func (c *Config) RebuildMode() rebuild.Mode {
	mode, _ := rebuild.ParseMode(c.Rebuild)
	return mode
}

// WorkerState builds the immutable worker state for a new session. Extra
// options are applied last.
func (c *Config) WorkerState(opts ...engine.WorkerStateOption) (*engine.WorkerState, error) {
	base := []engine.WorkerStateOption{
		engine.WithConcurrency(c.Concurrency),
		engine.WithNoActionCaseForms(c.NoActionCaseForms...),
	}
	cutoff, err := c.CutoffTime()
	if err != nil {
		return nil, &Error{Field: "cutoff", Message: err.Error()}
	}
	if cutoff != nil {
		base = append(base, engine.WithCutoff(*cutoff))
	}
	return engine.NewWorkerState(c.Domain, append(base, opts...)...)
}

// ReconcilerOptions returns the engine options the config controls.
func (c *Config) ReconcilerOptions() []engine.Option {
	return []engine.Option{
		engine.WithCaseIgnorePaths(c.CaseIgnorePaths...),
		engine.WithLedgerIgnorePaths(c.LedgerIgnorePaths...),
		engine.WithCaseLogging(c.LogCases),
		engine.WithStockCacheSize(c.StockCacheSize),
	}
}
