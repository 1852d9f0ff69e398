package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/casediff/internal/ir"
)

// GetDiffs returns all unresolved diffs.
// Results are ordered deterministically: ORDER BY kind, doc_id COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing is stored.
func (s *Store) GetDiffs(ctx context.Context) ([]ir.DiffRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, doc_id, diffs
		FROM doc_diffs
		ORDER BY kind COLLATE BINARY ASC, doc_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query diffs: %w", err)
	}
	defer rows.Close()

	out := []ir.DiffRecord{}
	for rows.Next() {
		var rec ir.DiffRecord
		var entries string
		if err := rows.Scan(&rec.Kind, &rec.DocID, &entries); err != nil {
			return nil, fmt.Errorf("scan diff: %w", err)
		}
		if rec.Diffs, err = unmarshalEntries(entries); err != nil {
			return nil, fmt.Errorf("diff %s %s: %w", rec.Kind, rec.DocID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diffs: %w", err)
	}
	return out, nil
}

// GetChanges returns all explained changes.
// Results are ordered deterministically: ORDER BY kind, doc_id COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing is stored.
func (s *Store) GetChanges(ctx context.Context) ([]ir.ChangeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, doc_id, reason, diffs
		FROM doc_changes
		ORDER BY kind COLLATE BINARY ASC, doc_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	out := []ir.ChangeRecord{}
	for rows.Next() {
		var rec ir.ChangeRecord
		var entries string
		if err := rows.Scan(&rec.Kind, &rec.DocID, &rec.Reason, &entries); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		if rec.Diffs, err = unmarshalEntries(entries); err != nil {
			return nil, fmt.Errorf("change %s %s: %w", rec.Kind, rec.DocID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return out, nil
}

// GetMissingDocs returns missing documents grouped by doc type, types and
// ids in binary order.
func (s *Store) GetMissingDocs(ctx context.Context) ([]ir.MissingDocs, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_type, doc_id
		FROM missing_docs
		ORDER BY doc_type COLLATE BINARY ASC, doc_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query missing docs: %w", err)
	}
	defer rows.Close()

	out := []ir.MissingDocs{}
	for rows.Next() {
		var docType, docID string
		if err := rows.Scan(&docType, &docID); err != nil {
			return nil, fmt.Errorf("scan missing doc: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].DocType != docType {
			out = append(out, ir.MissingDocs{DocType: docType, DocIDs: []string{}})
		}
		last := &out[len(out)-1]
		last.DocIDs = append(last.DocIDs, docID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate missing docs: %w", err)
	}
	return out, nil
}

// CountDiffedCases returns the number of distinct cases marked diffed.
func (s *Store) CountDiffedCases(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM diffed_cases`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count diffed cases: %w", err)
	}
	return n, nil
}

// DiffedAt returns when a case was last marked diffed. It reports false if
// the case was never diffed.
func (s *Store) DiffedAt(ctx context.Context, caseID string) (string, bool, error) {
	var at string
	err := s.db.QueryRowContext(ctx,
		`SELECT diffed_at FROM diffed_cases WHERE case_id = ?`, caseID,
	).Scan(&at)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("diffed at %s: %w", caseID, err)
	}
	return at, true, nil
}

// Fingerprint returns the stored fingerprint of an unresolved diff. It
// reports false if no diff is stored for (kind, docID).
func (s *Store) Fingerprint(ctx context.Context, kind, docID string) (string, bool, error) {
	var fp string
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM doc_diffs WHERE kind = ? AND doc_id = ?`, kind, docID,
	).Scan(&fp)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("fingerprint %s %s: %w", kind, docID, err)
	}
	return fp, true, nil
}
