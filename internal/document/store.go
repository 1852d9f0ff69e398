package document

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/roach88/casediff/internal/ir"
)

// Config holds the connection settings.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// Store implements engine.DocumentStore on SurrealDB.
type Store struct {
	db *surrealdb.DB
}

// Open connects, signs in when credentials are given, and selects the
// namespace and database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	conf := connection.NewConfig(u)
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	db, err := surrealdb.FromConnection(ctx, gorillaws.New(conf))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if cfg.Username != "" && cfg.Password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			db.Close(ctx)
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the connection.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}

// query runs one SurrealQL statement and returns its rows.
func (s *Store) query(ctx context.Context, sql string, vars map[string]any) ([]map[string]any, error) {
	res, err := surrealdb.Query[[]map[string]any](ctx, s.db, sql, vars)
	if err != nil {
		return nil, err
	}
	if res == nil || len(*res) == 0 {
		return []map[string]any{}, nil
	}
	rows := (*res)[0].Result
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

// CaseIDs lists the ids of every case in a domain, in id order.
func (s *Store) CaseIDs(ctx context.Context, domain string) ([]string, error) {
	rows, err := s.query(ctx,
		"SELECT case_id FROM cases WHERE domain = $domain ORDER BY case_id",
		map[string]any{"domain": domain},
	)
	if err != nil {
		return nil, fmt.Errorf("list case ids: %w", err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["case_id"].(string); ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// GetCases returns the stored cases among ids, in id order.
func (s *Store) GetCases(ctx context.Context, ids []string) ([]ir.CaseRecord, error) {
	out := []ir.CaseRecord{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.query(ctx,
		"SELECT * FROM cases WHERE case_id IN $ids",
		map[string]any{"ids": ids},
	)
	if err != nil {
		return nil, fmt.Errorf("get cases: %w", err)
	}
	for _, row := range rows {
		c, err := decodeCase(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b ir.CaseRecord) int { return strings.Compare(a.CaseID, b.CaseID) })
	return out, nil
}

// GetStockStates returns the materialized states of every ledger of the
// given cases, ordered by reference.
func (s *Store) GetStockStates(ctx context.Context, caseIDs []string) ([]ir.StockState, error) {
	out := []ir.StockState{}
	if len(caseIDs) == 0 {
		return out, nil
	}
	rows, err := s.query(ctx,
		"SELECT * FROM stock_states WHERE case_id IN $ids",
		map[string]any{"ids": caseIDs},
	)
	if err != nil {
		return nil, fmt.Errorf("get stock states: %w", err)
	}
	for _, row := range rows {
		st, err := decodeStockState(row)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b ir.StockState) int { return a.Ref.Compare(b.Ref) })
	return out, nil
}

// GetStockTransactions returns the stock log of a case in storage order.
func (s *Store) GetStockTransactions(ctx context.Context, caseID string) ([]ir.StockTransaction, error) {
	rows, err := s.query(ctx,
		"SELECT * FROM stock_transactions WHERE case_id = $case_id ORDER BY seq",
		map[string]any{"case_id": caseID},
	)
	if err != nil {
		return nil, fmt.Errorf("get stock transactions for %s: %w", caseID, err)
	}
	out := make([]ir.StockTransaction, 0, len(rows))
	for _, row := range rows {
		tx, err := decodeStockTransaction(row)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// GetForm returns a form by id. A form whose body does not decode is
// returned with Undecodable set.
func (s *Store) GetForm(ctx context.Context, formID string) (ir.Form, bool, error) {
	rows, err := s.query(ctx,
		"SELECT * FROM forms WHERE form_id = $form_id LIMIT 1",
		map[string]any{"form_id": formID},
	)
	if err != nil {
		return ir.Form{}, false, fmt.Errorf("get form %s: %w", formID, err)
	}
	if len(rows) == 0 {
		return ir.Form{}, false, nil
	}
	return decodeForm(formID, rows[0]), true, nil
}

// GetCaseLocation returns the location of a supply-point case.
func (s *Store) GetCaseLocation(ctx context.Context, caseID string) (string, bool, error) {
	rows, err := s.query(ctx,
		"SELECT location_id FROM supply_points WHERE case_id = $case_id LIMIT 1",
		map[string]any{"case_id": caseID},
	)
	if err != nil {
		return "", false, fmt.Errorf("get location of %s: %w", caseID, err)
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	loc, ok := rows[0]["location_id"].(string)
	if !ok {
		return "", false, nil
	}
	return loc, true, nil
}
