package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/siteverify/internal/decision"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunRecord is the persisted digest of one decide run.
type RunRecord struct {
	ID                     string         `json:"id"`
	RunKey                 string         `json:"run_key"`
	RunTimestamp           string         `json:"run_timestamp_utc"`
	Total                  int            `json:"total"`
	FinalFlagCounts        map[string]int `json:"final_flag_counts"`
	InputEquivalenceCounts map[string]int `json:"input_equivalence_counts"`
	OutputPath             string         `json:"output_path"`
	OutputSHA256           string         `json:"output_sha256"`
	CreatedAt              time.Time      `json:"created_at"`
}

// NewRunRecord builds a RunRecord from a run summary.
func NewRunRecord(s decision.Summary, outputPath, outputSHA256 string) *RunRecord {
	return &RunRecord{
		RunKey:                 s.RunKey,
		RunTimestamp:           s.RunTimestamp,
		Total:                  s.Total,
		FinalFlagCounts:        s.FinalFlagCounts,
		InputEquivalenceCounts: s.InputEquivalenceCounts,
		OutputPath:             outputPath,
		OutputSHA256:           outputSHA256,
	}
}

// Outcome is the per-input classification kept for run comparison.
type Outcome struct {
	InputID          string `json:"input_id"`
	FinalFlag        string `json:"final_flag"`
	ReasonCodes      string `json:"reason_codes"`
	InputEquivalence string `json:"input_equivalence"`
	InputIncorrect   bool   `json:"input_incorrect_flag"`
}

// OutcomesFromRecords projects decision records onto Outcomes, in order.
func OutcomesFromRecords(recs []decision.Record) []Outcome {
	out := make([]Outcome, len(recs))
	for i, r := range recs {
		out[i] = Outcome{
			InputID:          r.InputID(),
			FinalFlag:        string(r.FinalFlag),
			ReasonCodes:      r.ReasonCodes(),
			InputEquivalence: string(r.InputEquivalence),
			InputIncorrect:   r.InputIncorrect,
		}
	}
	return out
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	RunKey string `json:"run_key,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store persists run history.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error)

	// Per-input outcomes
	SaveOutcomes(ctx context.Context, runID string, outcomes []Outcome) (int64, error)
	ListOutcomes(ctx context.Context, runID string) ([]Outcome, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// prepareRun fills the generated fields of a new run.
func prepareRun(run *RunRecord, newID func() string) {
	if run.ID == "" {
		run.ID = newID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.FinalFlagCounts == nil {
		run.FinalFlagCounts = map[string]int{}
	}
	if run.InputEquivalenceCounts == nil {
		run.InputEquivalenceCounts = map[string]int{}
	}
}
