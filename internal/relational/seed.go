package relational

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/roach88/casediff/internal/ir"
)

// SeedCase inserts or replaces a case and its indices. XFormIDs are
// ignored; use SeedCaseTransaction.
func (s *Store) SeedCase(ctx context.Context, c ir.CaseRecord) error {
	row, indices, err := fromCaseRecord(c)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Where("case_id = ?", c.CaseID).Delete(&CaseIndexRow{}).Error; err != nil {
			return err
		}
		if len(indices) > 0 {
			return tx.Create(&indices).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed case %s: %w", c.CaseID, err)
	}
	return nil
}

// SeedCaseTransaction appends a transaction to a case's history.
func (s *Store) SeedCaseTransaction(ctx context.Context, t ir.CaseTransaction) error {
	row := CaseTransactionRow{
		CaseID:     t.CaseID,
		FormID:     t.FormID,
		ServerDate: t.ServerDate.UTC(),
		Revoked:    t.Revoked,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("seed transaction %s for %s: %w", t.FormID, t.CaseID, err)
	}
	return nil
}

// SeedLedgerValue inserts or replaces a ledger value.
func (s *Store) SeedLedgerValue(ctx context.Context, v ir.LedgerValue) error {
	row := LedgerValueRow{
		CaseID:             v.Ref.CaseID,
		SectionID:          v.Ref.SectionID,
		EntryID:            v.Ref.EntryID,
		Balance:            v.Balance,
		LastModified:       v.LastModified.UTC(),
		LastModifiedFormID: v.LastModifiedFormID,
		LocationID:         v.LocationID,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("seed ledger %s: %w", v.Ref.ID(), err)
	}
	return nil
}
