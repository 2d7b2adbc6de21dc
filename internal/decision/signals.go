package decision

import (
	"github.com/sells-group/siteverify/internal/evidence"
)

// PrecisionSignal summarizes geocode precision. At most one precision reason
// can fire for a record.
type PrecisionSignal int

const (
	// PrecisionNone: not rooftop and the geocode did not succeed.
	PrecisionNone PrecisionSignal = iota
	// PrecisionRooftop: the geocoder resolved to a rooftop.
	PrecisionRooftop
	// PrecisionLow: the geocode succeeded at a coarser tier.
	PrecisionLow
)

func (p PrecisionSignal) String() string {
	switch p {
	case PrecisionRooftop:
		return "rooftop"
	case PrecisionLow:
		return "low"
	default:
		return "none"
	}
}

// Reason returns the tag for p, if any.
func (p PrecisionSignal) Reason() (Reason, bool) {
	switch p {
	case PrecisionRooftop:
		return ReasonRooftop, true
	case PrecisionLow:
		return ReasonLowPrecisionGeocode, true
	default:
		return "", false
	}
}

// FootprintSignal is either a match or no match; exactly one reason always
// fires.
type FootprintSignal int

const (
	FootprintNone FootprintSignal = iota
	FootprintMatch
)

func (f FootprintSignal) String() string {
	if f == FootprintMatch {
		return "match"
	}
	return "none"
}

// Reason returns FOOTPRINT_MATCH or NO_FOOTPRINT.
func (f FootprintSignal) Reason() Reason {
	if f == FootprintMatch {
		return ReasonFootprintMatch
	}
	return ReasonNoFootprint
}

// StreetViewSignal classifies the imagery metadata status. Statuses other
// than OK and ZERO_RESULTS, including blank, map to StreetViewOther.
type StreetViewSignal int

const (
	StreetViewOther StreetViewSignal = iota
	StreetViewOK
	StreetViewZeroResults
)

func (s StreetViewSignal) String() string {
	switch s {
	case StreetViewOK:
		return "ok"
	case StreetViewZeroResults:
		return "zero_results"
	default:
		return "other"
	}
}

// Reason returns the tag for s, if any.
func (s StreetViewSignal) Reason() (Reason, bool) {
	switch s {
	case StreetViewOK:
		return ReasonSVOK, true
	case StreetViewZeroResults:
		return ReasonSVZeroResults, true
	default:
		return "", false
	}
}

// Signals are the facts the site assessment and reason deriver consume.
type Signals struct {
	Precision  PrecisionSignal
	Footprint  FootprintSignal
	StreetView StreetViewSignal

	Stale         bool
	NonPhysical   bool
	NoGeocode     bool
	PostalInvalid bool
	APIFailure    bool
}

// DeriveSignals extracts Signals from a bundle.
func DeriveSignals(b evidence.Bundle) Signals {
	s := Signals{
		Stale:         b.StreetView.Stale,
		NonPhysical:   b.Normalized.NonPhysical,
		NoGeocode:     b.Geocode.Status == evidence.StatusZeroResults,
		PostalInvalid: b.Validation.Ran && b.Validation.Verdict == evidence.VerdictInvalid,
		APIFailure:    len(b.ErrorCodes()) > 0,
	}

	switch {
	case b.Geocode.LocationType == evidence.LocationRooftop:
		s.Precision = PrecisionRooftop
	case b.Geocode.Status == evidence.StatusOK:
		s.Precision = PrecisionLow
	}

	if b.Footprint.Present {
		s.Footprint = FootprintMatch
	}

	switch b.StreetView.Status {
	case evidence.StatusOK:
		s.StreetView = StreetViewOK
	case evidence.StatusZeroResults:
		s.StreetView = StreetViewZeroResults
	}

	return s
}
