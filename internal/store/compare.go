package store

import (
	"context"

	"github.com/rotisserie/eris"
)

// OutcomeChange is one input whose classification differs between two runs.
type OutcomeChange struct {
	InputID string   `json:"input_id"`
	Before  *Outcome `json:"before,omitempty"`
	After   *Outcome `json:"after,omitempty"`
}

// Comparison reports how two runs differ.
type Comparison struct {
	Base           string          `json:"base"`
	Other          string          `json:"other"`
	SameRunKey     bool            `json:"same_run_key"`
	SameOutput     bool            `json:"same_output"`
	Changed        []OutcomeChange `json:"changed"`
	UnchangedCount int             `json:"unchanged_count"`
}

// Identical reports whether the runs produced the same bytes from the same
// inputs.
func (c *Comparison) Identical() bool {
	return c.SameRunKey && c.SameOutput && len(c.Changed) == 0
}

// CompareRuns diffs two runs' outcomes by input_id. Inputs present in only
// one run appear with a nil side. Changes follow base order, then inputs
// new in other.
func CompareRuns(base, other *RunRecord, baseOut, otherOut []Outcome) *Comparison {
	c := &Comparison{
		Base:       base.ID,
		Other:      other.ID,
		SameRunKey: base.RunKey == other.RunKey,
		SameOutput: base.OutputSHA256 != "" && base.OutputSHA256 == other.OutputSHA256,
	}

	byID := make(map[string]int, len(otherOut))
	for i, o := range otherOut {
		if _, ok := byID[o.InputID]; !ok {
			byID[o.InputID] = i
		}
	}

	seen := make(map[string]bool, len(baseOut))
	for i := range baseOut {
		b := baseOut[i]
		if seen[b.InputID] {
			continue
		}
		seen[b.InputID] = true

		j, ok := byID[b.InputID]
		if !ok {
			c.Changed = append(c.Changed, OutcomeChange{InputID: b.InputID, Before: &b})
			continue
		}
		o := otherOut[j]
		if o == b {
			c.UnchangedCount++
			continue
		}
		c.Changed = append(c.Changed, OutcomeChange{InputID: b.InputID, Before: &b, After: &o})
	}

	for i := range otherOut {
		o := otherOut[i]
		if seen[o.InputID] {
			continue
		}
		seen[o.InputID] = true
		c.Changed = append(c.Changed, OutcomeChange{InputID: o.InputID, After: &o})
	}
	return c
}

// LoadComparison fetches both runs and their outcomes from st and compares
// them.
func LoadComparison(ctx context.Context, st Store, baseID, otherID string) (*Comparison, error) {
	base, err := st.GetRun(ctx, baseID)
	if err != nil {
		return nil, err
	}
	other, err := st.GetRun(ctx, otherID)
	if err != nil {
		return nil, err
	}
	baseOut, err := st.ListOutcomes(ctx, baseID)
	if err != nil {
		return nil, eris.Wrap(err, "store: compare")
	}
	otherOut, err := st.ListOutcomes(ctx, otherID)
	if err != nil {
		return nil, eris.Wrap(err, "store: compare")
	}
	return CompareRuns(base, other, baseOut, otherOut), nil
}
