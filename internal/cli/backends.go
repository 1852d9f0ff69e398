package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/casediff/internal/config"
	"github.com/roach88/casediff/internal/document"
	"github.com/roach88/casediff/internal/engine"
	"github.com/roach88/casediff/internal/redisstore"
	"github.com/roach88/casediff/internal/relational"
	"github.com/roach88/casediff/internal/store"
)

// redisScheme marks a --state value that names a Redis server.
const redisScheme = "redis://"

// DocumentSource is a document store that can also list a domain's cases.
// Implemented by *document.Store and *memstore.Document.
type DocumentSource interface {
	engine.DocumentStore
	CaseIDs(ctx context.Context, domain string) ([]string, error)
}

// Backends are the three stores a diff session talks to.
type Backends struct {
	Docs  DocumentSource
	SQL   engine.RelationalStore
	State engine.StateStore

	closers []func() error
}

// OnClose registers fn to run on Close. Closers run in reverse order.
func (b *Backends) OnClose(fn func() error) {
	b.closers = append(b.closers, fn)
}

// Close closes every backend and joins their errors.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}

// BackendOpener opens the backends a config describes.
type BackendOpener func(ctx context.Context, cfg *config.Config) (*Backends, error)

// OpenBackends connects to SurrealDB, PostgreSQL and the configured state
// store. On error whatever was already opened is closed.
func OpenBackends(ctx context.Context, cfg *config.Config) (_ *Backends, err error) {
	if cfg.Document == nil {
		return nil, fmt.Errorf("document store is not configured")
	}
	if cfg.Relational == nil {
		return nil, fmt.Errorf("relational store is not configured")
	}

	b := &Backends{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	state, closeState, err := OpenState(ctx, cfg.State)
	if err != nil {
		return nil, err
	}
	b.State = state
	b.OnClose(closeState)

	docs, err := document.Open(ctx, document.Config{
		URL:       cfg.Document.URL,
		Namespace: cfg.Document.Namespace,
		Database:  cfg.Document.Database,
		Username:  cfg.Document.Username,
		Password:  cfg.Document.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	b.Docs = docs
	b.OnClose(func() error { return docs.Close(context.Background()) })

	sql, err := relational.Open(cfg.Relational.DSN)
	if err != nil {
		return nil, fmt.Errorf("open relational store: %w", err)
	}
	b.SQL = sql
	b.OnClose(sql.Close)

	return b, nil
}

// OpenState opens the state store st selects and returns it with its
// closer. A Redis store is pinged before it is returned.
func OpenState(ctx context.Context, st config.State) (engine.StateStore, func() error, error) {
	switch st.Driver {
	case config.DriverSQLite:
		s, err := store.Open(st.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite state %s: %w", st.Path, err)
		}
		return s, s.Close, nil
	case config.DriverRedis:
		s := redisstore.New(st.RedisAddr, "", st.RedisDB, redisstore.WithPrefix(st.Prefix))
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("open redis state %s: %w", st.RedisAddr, err)
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown state driver %q", st.Driver)
}

// applyStateFlag points st at the --state value: "redis://host:port"
// selects Redis, anything else is a SQLite path.
func applyStateFlag(st *config.State, value string) {
	if addr, ok := strings.CutPrefix(value, redisScheme); ok {
		st.Driver = config.DriverRedis
		st.RedisAddr = addr
		return
	}
	st.Driver = config.DriverSQLite
	st.Path = value
}

// defaultState mirrors the schema defaults for commands run without a
// config file.
func defaultState() config.State {
	return config.State{
		Driver:    config.DriverSQLite,
		Path:      "casediff.db",
		RedisAddr: "localhost:6379",
		Prefix:    redisstore.DefaultPrefix,
	}
}
