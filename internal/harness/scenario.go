package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/casediff/internal/ir"
	"github.com/roach88/casediff/internal/rebuild"
)

// Scenario describes the contents of both stores before one batch, and
// what the batch is expected to leave in the state store.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden
	// report.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Domain is the session domain. Fixtures without a domain get this
	// one.
	Domain string `yaml:"domain"`

	// Cutoff, if set, defers cases modified at or after it.
	Cutoff *time.Time `yaml:"cutoff,omitempty"`

	// NoActionCaseForms lists forms that leave no trace on the relational
	// side.
	NoActionCaseForms []string `yaml:"no_action_case_forms,omitempty"`

	// Rebuild is "patched" (default) or "default".
	Rebuild string `yaml:"rebuild,omitempty"`

	// Batch lists the document case ids to diff. Empty means every
	// document case.
	Batch []string `yaml:"batch,omitempty"`

	Document   DocumentFixture   `yaml:"document"`
	Relational RelationalFixture `yaml:"relational"`

	Expect Expect `yaml:"expect"`
}

// DocumentFixture is the content of the document store.
type DocumentFixture struct {
	Cases             []CaseFixture             `yaml:"cases"`
	Forms             []FormFixture             `yaml:"forms,omitempty"`
	StockStates       []LedgerFixture           `yaml:"stock_states,omitempty"`
	StockTransactions []StockTransactionFixture `yaml:"stock_transactions,omitempty"`
	Locations         map[string]string         `yaml:"locations,omitempty"`
}

// RelationalFixture is the content of the relational store.
type RelationalFixture struct {
	// FromDocument copies these document cases unchanged.
	FromDocument []string `yaml:"from_document,omitempty"`

	Cases        []CaseFixture            `yaml:"cases,omitempty"`
	Transactions []CaseTransactionFixture `yaml:"transactions,omitempty"`
	LedgerValues []LedgerFixture          `yaml:"ledger_values,omitempty"`
}

// CaseFixture is a case in either store.
type CaseFixture struct {
	CaseID           string         `yaml:"case_id"`
	DocType          string         `yaml:"doc_type,omitempty"`
	Domain           string         `yaml:"domain,omitempty"`
	Type             string         `yaml:"type,omitempty"`
	Name             string         `yaml:"name,omitempty"`
	OwnerID          string         `yaml:"owner_id,omitempty"`
	Closed           bool           `yaml:"closed,omitempty"`
	Properties       map[string]any `yaml:"properties,omitempty"`
	XFormIDs         []string       `yaml:"xform_ids,omitempty"`
	Indices          []ir.CaseIndex `yaml:"indices,omitempty"`
	ServerModifiedOn *time.Time     `yaml:"server_modified_on,omitempty"`
}

// FormFixture is a form in the document store.
type FormFixture struct {
	FormID       string           `yaml:"form_id"`
	Domain       string           `yaml:"domain,omitempty"`
	ReceivedOn   time.Time        `yaml:"received_on"`
	Undecodable  bool             `yaml:"undecodable,omitempty"`
	CaseBlocks   []ir.CaseBlock   `yaml:"case_blocks,omitempty"`
	StockReports []ir.StockReport `yaml:"stock_reports,omitempty"`
}

// LedgerFixture is a document stock state or a relational ledger value.
type LedgerFixture struct {
	Ref                ir.LedgerReference `yaml:",inline"`
	Balance            int64              `yaml:"balance"`
	LastModified       time.Time          `yaml:"last_modified"`
	LastModifiedFormID string             `yaml:"last_modified_form_id"`
	LocationID         string             `yaml:"location_id,omitempty"`
}

// StockTransactionFixture is one entry of the document stock log.
type StockTransactionFixture struct {
	FormID    string             `yaml:"form_id"`
	Type      string             `yaml:"type"`
	Ref       ir.LedgerReference `yaml:",inline"`
	Balance   int64              `yaml:"balance"`
	Timestamp time.Time          `yaml:"timestamp"`
}

// CaseTransactionFixture is a relational case transaction.
type CaseTransactionFixture struct {
	CaseID     string    `yaml:"case_id"`
	FormID     string    `yaml:"form_id"`
	ServerDate time.Time `yaml:"server_date"`
	Revoked    bool      `yaml:"revoked,omitempty"`
}

// Expect describes the state the batch should leave. Lists are compared
// exactly: an omitted list means nothing is expected.
type Expect struct {
	// Error, if set, is a substring of the error the batch must fail
	// with. Nothing is saved then.
	Error string `yaml:"error,omitempty"`

	Unresolved []RecordExpect  `yaml:"unresolved,omitempty"`
	Changes    []RecordExpect  `yaml:"changes,omitempty"`
	Missing    []MissingExpect `yaml:"missing,omitempty"`
	Deferred   []string        `yaml:"deferred,omitempty"`

	// DiffedCases, if set, is the expected number of cases marked diffed.
	DiffedCases *int `yaml:"diffed_cases,omitempty"`
}

// RecordExpect matches one stored diff or change record.
type RecordExpect struct {
	// Kind defaults to "case".
	Kind  string `yaml:"kind,omitempty"`
	DocID string `yaml:"doc_id"`

	// Reason is checked for changes only.
	Reason string `yaml:"reason,omitempty"`

	// Paths, if set, are the dotted paths of the record's entries, in
	// order.
	Paths []string `yaml:"paths,omitempty"`
}

// MissingExpect matches one missing-docs group.
type MissingExpect struct {
	DocType string   `yaml:"doc_type"`
	DocIDs  []string `yaml:"doc_ids"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Domain == "" {
		return fmt.Errorf("domain is required")
	}
	if _, err := rebuild.ParseMode(s.Rebuild); err != nil {
		return err
	}

	docCases := map[string]bool{}
	for i, c := range s.Document.Cases {
		if c.CaseID == "" {
			return fmt.Errorf("document.cases[%d]: case_id is required", i)
		}
		if docCases[c.CaseID] {
			return fmt.Errorf("document.cases[%d]: duplicate case_id %q", i, c.CaseID)
		}
		docCases[c.CaseID] = true
	}
	for i, f := range s.Document.Forms {
		if f.FormID == "" {
			return fmt.Errorf("document.forms[%d]: form_id is required", i)
		}
	}
	for i, id := range s.Relational.FromDocument {
		if !docCases[id] {
			return fmt.Errorf("relational.from_document[%d]: no document case %q", i, id)
		}
	}
	for i, c := range s.Relational.Cases {
		if c.CaseID == "" {
			return fmt.Errorf("relational.cases[%d]: case_id is required", i)
		}
	}
	for i, id := range s.Batch {
		if !docCases[id] {
			return fmt.Errorf("batch[%d]: no document case %q", i, id)
		}
	}

	for i, r := range s.Expect.Unresolved {
		if r.DocID == "" {
			return fmt.Errorf("expect.unresolved[%d]: doc_id is required", i)
		}
	}
	for i, r := range s.Expect.Changes {
		if r.DocID == "" {
			return fmt.Errorf("expect.changes[%d]: doc_id is required", i)
		}
		if r.Reason == "" {
			return fmt.Errorf("expect.changes[%d]: reason is required", i)
		}
	}
	for i, m := range s.Expect.Missing {
		if m.DocType == "" || len(m.DocIDs) == 0 {
			return fmt.Errorf("expect.missing[%d]: doc_type and doc_ids are required", i)
		}
	}
	return nil
}
