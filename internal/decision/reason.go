// Package decision classifies joined address evidence into a site-assessment
// flag and an independent input-correctness verdict.
package decision

import (
	"strings"

	"github.com/sells-group/siteverify/internal/evidence"
)

// Reason is a tag in the controlled reason-code vocabulary.
type Reason string

const (
	ReasonNoGeocode            Reason = "NO_GEOCODE"
	ReasonPostalInvalid        Reason = "POSTAL_INVALID"
	ReasonNonPhysical          Reason = "NON_PHYSICAL"
	ReasonRooftop              Reason = "ROOFTOP"
	ReasonLowPrecisionGeocode  Reason = "LOW_PRECISION_GEOCODE"
	ReasonFootprintMatch       Reason = "FOOTPRINT_MATCH"
	ReasonNoFootprint          Reason = "NO_FOOTPRINT"
	ReasonSVOK                 Reason = "SV_OK"
	ReasonSVZeroResults        Reason = "SV_ZERO_RESULTS"
	ReasonSVStale              Reason = "SV_STALE"
	ReasonAPIFailure           Reason = "API_FAILURE"
	ReasonInputMinorCorrection Reason = "INPUT_MINOR_CORRECTION"
	ReasonInputMajorCorrection Reason = "INPUT_MAJOR_CORRECTION"
	ReasonInputMismatch        Reason = "INPUT_MISMATCH"
)

// reasonOrder is the render order. Every Reason appears exactly once.
var reasonOrder = [...]Reason{
	ReasonNoGeocode,
	ReasonPostalInvalid,
	ReasonNonPhysical,
	ReasonRooftop,
	ReasonLowPrecisionGeocode,
	ReasonFootprintMatch,
	ReasonNoFootprint,
	ReasonSVOK,
	ReasonSVZeroResults,
	ReasonSVStale,
	ReasonAPIFailure,
	ReasonInputMinorCorrection,
	ReasonInputMajorCorrection,
	ReasonInputMismatch,
}

// AllReasons returns the vocabulary in render order.
func AllReasons() []Reason {
	out := make([]Reason, len(reasonOrder))
	copy(out, reasonOrder[:])
	return out
}

func reasonBit(r Reason) (ReasonSet, bool) {
	for i, o := range reasonOrder {
		if o == r {
			return 1 << i, true
		}
	}
	return 0, false
}

// ReasonSet is an unordered set of reasons. The zero value is empty.
type ReasonSet uint32

// With returns s plus r. Tags outside the vocabulary are ignored.
func (s ReasonSet) With(r Reason) ReasonSet {
	if bit, ok := reasonBit(r); ok {
		return s | bit
	}
	return s
}

// Has reports whether r is in the set.
func (s ReasonSet) Has(r Reason) bool {
	bit, ok := reasonBit(r)
	return ok && s&bit != 0
}

// List renders the set in the fixed vocabulary order.
func (s ReasonSet) List() []Reason {
	var out []Reason
	for i, r := range reasonOrder {
		if s&(1<<i) != 0 {
			out = append(out, r)
		}
	}
	return out
}

// String renders the set as a pipe-delimited cell.
func (s ReasonSet) String() string {
	return JoinReasons(s.List())
}

// JoinReasons renders reasons as a pipe-delimited cell.
func JoinReasons(rs []Reason) string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = string(r)
	}
	return strings.Join(parts, evidence.CodeSeparator)
}

// DeriveReasons computes the reason set for a bundle. The equivalence verdict
// is taken as input so the INPUT_* tags mirror it one-to-one.
func DeriveReasons(s Signals, eq Equivalence) ReasonSet {
	var set ReasonSet

	if s.NoGeocode {
		set = set.With(ReasonNoGeocode)
	}
	if s.NonPhysical {
		set = set.With(ReasonNonPhysical)
	}
	if r, ok := s.Precision.Reason(); ok {
		set = set.With(r)
	}
	set = set.With(s.Footprint.Reason())
	if r, ok := s.StreetView.Reason(); ok {
		set = set.With(r)
	}
	if s.Stale {
		set = set.With(ReasonSVStale)
	}
	if s.APIFailure {
		set = set.With(ReasonAPIFailure)
	}
	if s.PostalInvalid {
		set = set.With(ReasonPostalInvalid)
	}
	if r, ok := eq.Reason(); ok {
		set = set.With(r)
	}

	return set
}

// Notes returns the free-text note for a bundle.
func Notes(b evidence.Bundle) string {
	if d := strings.TrimSpace(b.StreetView.ImageDate); d != "" {
		return "SV date " + d
	}
	return ""
}
