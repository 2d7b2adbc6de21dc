package decision

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/siteverify/internal/evidence"
)

// RunKeyPrefix tags the run-key format version.
const RunKeyPrefix = "rk1:"

// RunKey fingerprints a run from its raw input bytes and configuration bytes.
// Each part is length-prefixed so boundaries cannot shift between inputs.
// File paths are not part of the key.
func RunKey(sources []evidence.Source, config []byte) string {
	h := sha256.New()
	var size [8]byte
	write := func(b []byte) {
		binary.BigEndian.PutUint64(size[:], uint64(len(b)))
		h.Write(size[:])
		h.Write(b)
	}
	for _, s := range sources {
		write([]byte(s.Table))
		write(s.Data)
	}
	write(config)
	return RunKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Anchor layouts accepted in addition to RFC 3339. A timestamp without an
// offset is read as UTC.
var anchorLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseAnchor parses an injected run timestamp.
func ParseAnchor(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range anchorLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("decision: invalid anchor timestamp %q", s)
}

// RunTimestamp returns the anchor rendered as UTC RFC 3339, or now when no
// anchor is set.
func RunTimestamp(anchor string, now func() time.Time) (string, error) {
	if strings.TrimSpace(anchor) == "" {
		return now().UTC().Format(time.RFC3339), nil
	}
	t, err := ParseAnchor(anchor)
	if err != nil {
		return "", err
	}
	return t.Format(time.RFC3339), nil
}

// Summary is the QA digest of a run.
type Summary struct {
	RunKey                 string             `json:"run_key" yaml:"run_key"`
	RunTimestamp           string             `json:"run_timestamp_utc" yaml:"run_timestamp_utc"`
	Total                  int                `json:"total" yaml:"total"`
	FinalFlagCounts        map[string]int     `json:"final_flag_counts" yaml:"final_flag_counts"`
	InputEquivalenceCounts map[string]int     `json:"input_equivalence_counts" yaml:"input_equivalence_counts"`
	Join                   evidence.JoinStats `json:"join" yaml:"join"`
}

// Summarize counts records per final flag and per equivalence. Every known
// value is present in the maps, zero when unused.
func Summarize(runKey, timestamp string, records []Record, join evidence.JoinStats) Summary {
	s := Summary{
		RunKey:                 runKey,
		RunTimestamp:           timestamp,
		Total:                  len(records),
		FinalFlagCounts:        make(map[string]int),
		InputEquivalenceCounts: make(map[string]int),
		Join:                   join,
	}
	for _, f := range AllFinalFlags() {
		s.FinalFlagCounts[string(f)] = 0
	}
	for _, e := range AllEquivalences() {
		s.InputEquivalenceCounts[string(e)] = 0
	}
	for _, r := range records {
		s.FinalFlagCounts[string(r.FinalFlag)]++
		s.InputEquivalenceCounts[string(r.InputEquivalence)]++
	}
	return s
}
