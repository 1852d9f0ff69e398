package relational

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/roach88/casediff/internal/ir"
)

// toCaseRecord converts a row plus its indices and live transactions.
// Transactions must be ordered by server date.
func toCaseRecord(row CaseRow, indices []CaseIndexRow, txs []CaseTransactionRow) (ir.CaseRecord, error) {
	c := ir.CaseRecord{
		CaseID:     row.CaseID,
		DocType:    ir.DocTypeCase,
		Domain:     row.Domain,
		Type:       row.Type,
		Name:       row.Name,
		OwnerID:    row.OwnerID,
		Closed:     row.Closed,
		Properties: ir.IRObject{},
		XFormIDs:   []string{},
		Indices:    []ir.CaseIndex{},
	}
	if row.Deleted {
		c.DocType = ir.DocTypeDeletedCase
	}
	if row.ServerModifiedOn != nil {
		t := row.ServerModifiedOn.UTC()
		c.ServerModifiedOn = &t
	}

	if len(row.Properties) > 0 {
		v, err := ir.FromAny(map[string]any(row.Properties))
		if err != nil {
			return ir.CaseRecord{}, fmt.Errorf("case %s properties: %w", row.CaseID, err)
		}
		c.Properties = v.(ir.IRObject)
	}
	if len(row.Extra) > 0 && string(row.Extra) != "null" {
		var extra ir.IRObject
		if err := extra.UnmarshalJSON(row.Extra); err != nil {
			return ir.CaseRecord{}, fmt.Errorf("case %s extra: %w", row.CaseID, err)
		}
		c.Extra = extra
	}

	for _, idx := range indices {
		c.Indices = append(c.Indices, ir.CaseIndex{
			Identifier:     idx.Identifier,
			ReferencedType: idx.ReferencedType,
			ReferencedID:   idx.ReferencedID,
			Relationship:   idx.Relationship,
		})
	}
	for _, tx := range txs {
		if !tx.Revoked {
			c.XFormIDs = append(c.XFormIDs, tx.FormID)
		}
	}
	return c, nil
}

// fromCaseRecord is the inverse of toCaseRecord for the case row and its
// indices. XFormIDs are not stored on the row.
func fromCaseRecord(c ir.CaseRecord) (CaseRow, []CaseIndexRow, error) {
	row := CaseRow{
		CaseID:           c.CaseID,
		Domain:           c.Domain,
		Type:             c.Type,
		Name:             c.Name,
		OwnerID:          c.OwnerID,
		Closed:           c.Closed,
		Deleted:          c.DocType == ir.DocTypeDeletedCase,
		Properties:       datatypes.JSONMap{},
		ServerModifiedOn: c.ServerModifiedOn,
	}
	if len(c.Properties) > 0 {
		data, err := ir.MarshalCanonical(c.Properties)
		if err != nil {
			return CaseRow{}, nil, fmt.Errorf("case %s properties: %w", c.CaseID, err)
		}
		if err := json.Unmarshal(data, &row.Properties); err != nil {
			return CaseRow{}, nil, fmt.Errorf("case %s properties: %w", c.CaseID, err)
		}
	}
	if len(c.Extra) > 0 {
		data, err := ir.MarshalCanonical(c.Extra)
		if err != nil {
			return CaseRow{}, nil, fmt.Errorf("case %s extra: %w", c.CaseID, err)
		}
		row.Extra = datatypes.JSON(data)
	}

	indices := make([]CaseIndexRow, len(c.Indices))
	for i, idx := range c.Indices {
		indices[i] = CaseIndexRow{
			CaseID:         c.CaseID,
			Identifier:     idx.Identifier,
			ReferencedType: idx.ReferencedType,
			ReferencedID:   idx.ReferencedID,
			Relationship:   idx.Relationship,
		}
	}
	return row, indices, nil
}

func toLedgerValue(row LedgerValueRow) ir.LedgerValue {
	return ir.LedgerValue{
		Ref:                ir.LedgerReference{CaseID: row.CaseID, SectionID: row.SectionID, EntryID: row.EntryID},
		Balance:            row.Balance,
		LastModified:       row.LastModified.UTC(),
		LastModifiedFormID: row.LastModifiedFormID,
		LocationID:         row.LocationID,
	}
}

func toCaseTransaction(row CaseTransactionRow) ir.CaseTransaction {
	return ir.CaseTransaction{
		CaseID:     row.CaseID,
		FormID:     row.FormID,
		ServerDate: row.ServerDate.UTC(),
		Revoked:    row.Revoked,
	}
}
