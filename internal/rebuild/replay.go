package rebuild

import (
	"slices"
	"strings"
	"time"

	"github.com/roach88/casediff/internal/ir"
)

// Update keys that set case fields instead of properties.
const (
	updateName    = "name"
	updateOwnerID = "owner_id"
	updateType    = "type"
)

// Blank returns the starting point of a rebuild: the identity of stored
// (id, doc type, domain, extra bookkeeping) with all derived state
// cleared.
func Blank(stored ir.CaseRecord) ir.CaseRecord {
	out := ir.CaseRecord{
		CaseID:     stored.CaseID,
		DocType:    stored.DocType,
		Domain:     stored.Domain,
		Properties: ir.IRObject{},
		XFormIDs:   []string{},
		Indices:    []ir.CaseIndex{},
	}
	if stored.Extra != nil {
		out.Extra = stored.Extra.Clone()
	}
	return out
}

// Replay applies the blocks of form that act on c, records the form in
// c's history and advances the modification time to at.
func Replay(c *ir.CaseRecord, form ir.Form, at time.Time) {
	for _, block := range form.CaseBlocks {
		if block.CaseID != c.CaseID {
			continue
		}
		applyBlock(c, block)
	}
	if !slices.Contains(c.XFormIDs, form.FormID) {
		c.XFormIDs = append(c.XFormIDs, form.FormID)
	}
	if c.ServerModifiedOn == nil || at.After(*c.ServerModifiedOn) {
		t := at.UTC()
		c.ServerModifiedOn = &t
	}
}

func applyBlock(c *ir.CaseRecord, block ir.CaseBlock) {
	if block.Create != nil {
		c.Type = block.Create.Type
		c.Name = block.Create.Name
		c.OwnerID = block.Create.OwnerID
	}

	keys := make([]string, 0, len(block.Update))
	for k := range block.Update {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v := block.Update[k]
		switch k {
		case updateName:
			c.Name = v
		case updateOwnerID:
			c.OwnerID = v
		case updateType:
			c.Type = v
		default:
			if c.Properties == nil {
				c.Properties = ir.IRObject{}
			}
			c.Properties[k] = ir.IRString(v)
		}
	}

	for _, index := range block.Indices {
		c.Indices = slices.DeleteFunc(c.Indices, func(existing ir.CaseIndex) bool {
			return existing.Identifier == index.Identifier
		})
		// an empty referenced id removes the index
		if index.ReferencedID != "" {
			c.Indices = append(c.Indices, index)
		}
	}
	slices.SortFunc(c.Indices, func(a, b ir.CaseIndex) int {
		return strings.Compare(a.Identifier, b.Identifier)
	})

	if block.Close {
		c.Closed = true
	}
}
