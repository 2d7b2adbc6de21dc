package decision

import (
	"slices"

	"github.com/sells-group/siteverify/internal/evidence"
)

// Record is the enhanced, per-input result of a run. Records are values;
// nothing in this package mutates one after Decide returns it.
type Record struct {
	Evidence evidence.Bundle `json:"evidence"`

	MapsURL          string      `json:"google_maps_url"`
	FinalFlag        FinalFlag   `json:"final_flag"`
	Reasons          []Reason    `json:"reason_codes"`
	InputIncorrect   bool        `json:"input_incorrect_flag"`
	InputEquivalence Equivalence `json:"input_equivalence"`
	InputIssues      []string    `json:"input_issue_codes"`
	Notes            string      `json:"notes"`
	RunTimestamp     string      `json:"run_timestamp_utc"`
	ErrorCodes       []string    `json:"api_error_codes"`

	// OverriddenFrom is the engine's flag when a reviewer replaced it.
	OverriddenFrom FinalFlag `json:"overridden_from,omitempty"`
}

// InputID returns the record's join key.
func (r Record) InputID() string { return r.Evidence.InputID() }

// ReasonCodes renders Reasons as a pipe-delimited cell.
func (r Record) ReasonCodes() string { return JoinReasons(r.Reasons) }

// WithReviewOverride returns a copy of r with the final flag and notes set by
// a human reviewer. r itself is left untouched.
func (r Record) WithReviewOverride(flag FinalFlag, notes string) (Record, error) {
	if _, err := ParseFinalFlag(string(flag)); err != nil {
		return Record{}, err
	}

	out := r
	out.Reasons = slices.Clone(r.Reasons)
	out.InputIssues = slices.Clone(r.InputIssues)
	out.ErrorCodes = slices.Clone(r.ErrorCodes)

	if r.OverriddenFrom == "" {
		out.OverriddenFrom = r.FinalFlag
	}
	out.FinalFlag = flag
	out.Notes = notes
	return out, nil
}
