package harness

import "github.com/roach88/casediff/internal/engine"

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	// Errors lists the failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	Scenario  string `json:"scenario"`
	SessionID string `json:"session_id"`

	// Data is what the batch returned; nil when the batch failed.
	Data *engine.DiffData `json:"data,omitempty"`

	// BatchErr is the error the batch failed with, if any.
	BatchErr error `json:"-"`

	// Report is the state store content after the run.
	Report *engine.Report `json:"-"`

	// Log is the captured reconciler log.
	Log string `json:"-"`
}

// NewResult creates a new passing result.
func NewResult(scenario, sessionID string) *Result {
	return &Result{
		Pass:      true,
		Errors:    []string{},
		Scenario:  scenario,
		SessionID: sessionID,
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Deferred returns the cases the batch deferred, empty when it failed.
func (r *Result) Deferred() []string {
	if r.Data == nil {
		return []string{}
	}
	return r.Data.Deferred
}
