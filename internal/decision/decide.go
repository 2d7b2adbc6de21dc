package decision

import (
	"github.com/sells-group/siteverify/internal/evidence"
)

// Options carries run-level settings into Decide.
type Options struct {
	Policy    EquivalencePolicy
	Timestamp string
}

// Decide classifies one bundle. It is a pure function of its arguments.
func Decide(b evidence.Bundle, opts Options) Record {
	signals := DeriveSignals(b)
	input := AssessInput(b, opts.Policy)
	reasons := DeriveReasons(signals, input.Equivalence)

	return Record{
		Evidence:         b,
		MapsURL:          MapsURL(b),
		FinalFlag:        AssessSite(signals),
		Reasons:          reasons.List(),
		InputIncorrect:   input.Incorrect,
		InputEquivalence: input.Equivalence,
		InputIssues:      input.Issues,
		Notes:            Notes(b),
		RunTimestamp:     opts.Timestamp,
		ErrorCodes:       b.ErrorCodes(),
	}
}

// DecideAll classifies bundles in order; len(out) == len(bundles).
func DecideAll(bundles []evidence.Bundle, opts Options) []Record {
	out := make([]Record, len(bundles))
	for i, b := range bundles {
		out[i] = Decide(b, opts)
	}
	return out
}
