package relational

import (
	"time"

	"gorm.io/datatypes"
)

// CaseRow is a row of the cases table.
type CaseRow struct {
	CaseID           string            `gorm:"primaryKey;column:case_id"`
	Domain           string            `gorm:"not null;index"`
	Type             string            `gorm:"column:type"`
	Name             string            `gorm:"column:name"`
	OwnerID          string            `gorm:"column:owner_id"`
	Closed           bool              `gorm:"not null;default:false"`
	Deleted          bool              `gorm:"not null;default:false"`
	Properties       datatypes.JSONMap `gorm:"column:case_json"`
	Extra            datatypes.JSON    `gorm:"column:extra"`
	ServerModifiedOn *time.Time        `gorm:"index"`
}

func (CaseRow) TableName() string { return "cases" }

// CaseIndexRow is a row of the case_indices table.
type CaseIndexRow struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	CaseID         string `gorm:"not null;index"`
	Identifier     string `gorm:"not null"`
	ReferencedType string
	ReferencedID   string
	Relationship   string
}

func (CaseIndexRow) TableName() string { return "case_indices" }

// CaseTransactionRow records that a form touched a case.
type CaseTransactionRow struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	CaseID     string    `gorm:"not null;index"`
	FormID     string    `gorm:"not null"`
	ServerDate time.Time `gorm:"not null"`
	Revoked    bool      `gorm:"not null;default:false"`
}

func (CaseTransactionRow) TableName() string { return "case_transactions" }

// LedgerValueRow is the current stock state of one ledger.
type LedgerValueRow struct {
	CaseID             string    `gorm:"primaryKey"`
	SectionID          string    `gorm:"primaryKey"`
	EntryID            string    `gorm:"primaryKey"`
	Balance            int64     `gorm:"not null"`
	LastModified       time.Time `gorm:"not null"`
	LastModifiedFormID string
	LocationID         string
}

func (LedgerValueRow) TableName() string { return "ledger_values" }

// Models lists every table, in migration order.
func Models() []any {
	return []any{&CaseRow{}, &CaseIndexRow{}, &CaseTransactionRow{}, &LedgerValueRow{}}
}
