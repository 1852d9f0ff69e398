package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/casediff/internal/ir"
)

// AddDiffedCases marks cases as diffed.
// Uses ON CONFLICT(case_id) DO UPDATE so re-diffing refreshes diffed_at
// without duplicating the case.
func (s *Store) AddDiffedCases(ctx context.Context, caseIDs []string) error {
	if len(caseIDs) == 0 {
		return nil
	}
	now := s.timestamp()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO diffed_cases (case_id, diffed_at)
			VALUES (?, ?)
			ON CONFLICT(case_id) DO UPDATE SET diffed_at = excluded.diffed_at
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range caseIDs {
			if _, err := stmt.ExecContext(ctx, id, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("add diffed cases: %w", err)
	}
	return nil
}

// ReplaceCaseDiffs replaces the stored diffs of every (kind, doc_id) in
// diffs. Records with no entries only delete.
func (s *Store) ReplaceCaseDiffs(ctx context.Context, diffs []ir.DiffRecord) error {
	now := s.timestamp()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range ir.MergeDiffs(diffs) {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM doc_diffs WHERE kind = ? AND doc_id = ?`,
				rec.Kind, rec.DocID,
			); err != nil {
				return err
			}
			if len(rec.Diffs) == 0 {
				continue
			}
			entries, err := marshalEntries(rec.Diffs)
			if err != nil {
				return err
			}
			fingerprint, err := ir.DiffFingerprint(rec.Kind, rec.DocID, rec.Diffs)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO doc_diffs (kind, doc_id, diffs, fingerprint, updated_at)
				VALUES (?, ?, ?, ?, ?)
			`, rec.Kind, rec.DocID, entries, fingerprint, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace case diffs: %w", err)
	}
	return nil
}

// ReplaceCaseChanges replaces the stored changes of every (kind, doc_id)
// in changes. Records with no entries only delete.
func (s *Store) ReplaceCaseChanges(ctx context.Context, changes []ir.ChangeRecord) error {
	now := s.timestamp()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range ir.MergeChanges(changes) {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM doc_changes WHERE kind = ? AND doc_id = ?`,
				rec.Kind, rec.DocID,
			); err != nil {
				return err
			}
			if len(rec.Diffs) == 0 {
				continue
			}
			entries, err := marshalEntries(rec.Diffs)
			if err != nil {
				return err
			}
			fingerprint, err := ir.ChangeFingerprint(rec.Kind, rec.DocID, rec.Reason, rec.Diffs)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO doc_changes (kind, doc_id, reason, diffs, fingerprint, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, rec.Kind, rec.DocID, rec.Reason, entries, fingerprint, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace case changes: %w", err)
	}
	return nil
}

// RemoveMissingDocs forgets docIDs under every doc type, once the
// relational store has them.
func (s *Store) RemoveMissingDocs(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range docIDs {
			if _, err := tx.ExecContext(ctx, `DELETE FROM missing_docs WHERE doc_id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove missing docs: %w", err)
	}
	return nil
}

// AddMissingDocs records documents missing from the relational store.
// Uses ON CONFLICT DO NOTHING for idempotency.
func (s *Store) AddMissingDocs(ctx context.Context, docType string, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range docIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO missing_docs (doc_type, doc_id)
				VALUES (?, ?)
				ON CONFLICT DO NOTHING
			`, docType, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("add missing docs: %w", err)
	}
	return nil
}
