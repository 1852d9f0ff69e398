package relational

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/roach88/casediff/internal/ir"
)

// DefaultChunkSize bounds the number of ids per IN clause.
const DefaultChunkSize = 500

// Store implements engine.RelationalStore with GORM.
type Store struct {
	db        *gorm.DB
	chunkSize int
}

type Option func(*Store)

// WithChunkSize sets the number of ids per IN clause.
func WithChunkSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// Open connects to PostgreSQL.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewFromDB(db, opts...), nil
}

// NewFromDB wraps an existing GORM connection.
func NewFromDB(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("migrate relational schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// chunks splits the sorted, deduplicated ids into slices of at most
// s.chunkSize.
func (s *Store) chunks(ids []string) [][]string {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	var out [][]string
	for len(ids) > 0 {
		n := min(s.chunkSize, len(ids))
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}

func compareTransactions(a, b CaseTransactionRow) int {
	return cmp.Or(a.ServerDate.Compare(b.ServerDate), strings.Compare(a.FormID, b.FormID))
}

// GetCases returns the cases among ids, in id order.
func (s *Store) GetCases(ctx context.Context, ids []string) ([]ir.CaseRecord, error) {
	out := []ir.CaseRecord{}
	for _, chunk := range s.chunks(ids) {
		var rows []CaseRow
		if err := s.db.WithContext(ctx).
			Where("case_id IN ?", chunk).
			Order("case_id").
			Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("query cases: %w", err)
		}
		if len(rows) == 0 {
			continue
		}

		var indexRows []CaseIndexRow
		if err := s.db.WithContext(ctx).
			Where("case_id IN ?", chunk).
			Order("case_id, identifier").
			Find(&indexRows).Error; err != nil {
			return nil, fmt.Errorf("query case indices: %w", err)
		}
		indices := map[string][]CaseIndexRow{}
		for _, row := range indexRows {
			indices[row.CaseID] = append(indices[row.CaseID], row)
		}

		var txRows []CaseTransactionRow
		if err := s.db.WithContext(ctx).
			Where("case_id IN ?", chunk).
			Order("server_date, form_id").
			Find(&txRows).Error; err != nil {
			return nil, fmt.Errorf("query case transactions: %w", err)
		}
		slices.SortStableFunc(txRows, compareTransactions)
		txs := map[string][]CaseTransactionRow{}
		for _, row := range txRows {
			txs[row.CaseID] = append(txs[row.CaseID], row)
		}

		slices.SortFunc(rows, func(a, b CaseRow) int { return strings.Compare(a.CaseID, b.CaseID) })
		for _, row := range rows {
			c, err := toCaseRecord(row, indices[row.CaseID], txs[row.CaseID])
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// GetLedgerValues returns every ledger value of the given cases, ordered
// by reference.
func (s *Store) GetLedgerValues(ctx context.Context, caseIDs []string) ([]ir.LedgerValue, error) {
	out := []ir.LedgerValue{}
	for _, chunk := range s.chunks(caseIDs) {
		var rows []LedgerValueRow
		if err := s.db.WithContext(ctx).
			Where("case_id IN ?", chunk).
			Order("case_id, section_id, entry_id").
			Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("query ledger values: %w", err)
		}
		for _, row := range rows {
			out = append(out, toLedgerValue(row))
		}
	}
	slices.SortFunc(out, func(a, b ir.LedgerValue) int { return a.Ref.Compare(b.Ref) })
	return out, nil
}

// GetCaseTransactions returns the transactions of a case ordered by
// server date, then form id. Revoked transactions are included.
func (s *Store) GetCaseTransactions(ctx context.Context, caseID string) ([]ir.CaseTransaction, error) {
	var rows []CaseTransactionRow
	if err := s.db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("server_date, form_id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query case transactions for %s: %w", caseID, err)
	}
	slices.SortStableFunc(rows, compareTransactions)
	out := make([]ir.CaseTransaction, len(rows))
	for i, row := range rows {
		out[i] = toCaseTransaction(row)
	}
	return out, nil
}
