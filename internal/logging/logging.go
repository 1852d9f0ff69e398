// Package logging builds the slog loggers used across casediff.
//
// Output goes through github.com/charmbracelet/log, which implements
// slog.Handler. Library packages take a *slog.Logger and default to NewNop.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// JSON switches to one JSON object per line.
	JSON bool

	// Now, if set, replaces the wall clock for timestamps.
	Now func() time.Time

	// NoTimestamp omits timestamps.
	NoTimestamp bool
}

// ParseLevel parses a level name.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	charmOpts := log.Options{
		Level:           log.Level(level),
		ReportTimestamp: !opts.NoTimestamp,
		TimeFormat:      time.RFC3339,
	}
	if opts.JSON {
		charmOpts.Formatter = log.JSONFormatter
	}
	if opts.Now != nil {
		now := opts.Now
		charmOpts.TimeFunction = func(time.Time) time.Time { return now() }
	}
	return slog.New(errKeyHandler{log.NewWithOptions(w, charmOpts)}), nil
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// errKeyHandler shortens the "error" key to "err".
type errKeyHandler struct {
	next slog.Handler
}

func renameAttr(a slog.Attr) slog.Attr {
	if a.Key == "error" {
		a.Key = "err"
	}
	return a
}

func (h errKeyHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h errKeyHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(renameAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h errKeyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	renamed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		renamed[i] = renameAttr(a)
	}
	return errKeyHandler{h.next.WithAttrs(renamed)}
}

func (h errKeyHandler) WithGroup(name string) slog.Handler {
	return errKeyHandler{h.next.WithGroup(name)}
}
