package decision

import (
	"github.com/rotisserie/eris"
)

// FinalFlag is the site-assessment outcome.
type FinalFlag string

const (
	FlagNonPhysicalAddress FinalFlag = "NON_PHYSICAL_ADDRESS"
	FlagNeedsHumanReview   FinalFlag = "NEEDS_HUMAN_REVIEW"
	FlagInvalidAddress     FinalFlag = "INVALID_ADDRESS"
	FlagValidLocation      FinalFlag = "VALID_LOCATION"
	FlagLikelyEmptyLot     FinalFlag = "LIKELY_EMPTY_LOT"
)

// AllFinalFlags returns every site-assessment outcome.
func AllFinalFlags() []FinalFlag {
	return []FinalFlag{
		FlagValidLocation,
		FlagInvalidAddress,
		FlagLikelyEmptyLot,
		FlagNeedsHumanReview,
		FlagNonPhysicalAddress,
	}
}

// ParseFinalFlag validates s as a FinalFlag.
func ParseFinalFlag(s string) (FinalFlag, error) {
	for _, f := range AllFinalFlags() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", eris.Errorf("decision: unknown final flag %q", s)
}

// AssessSite applies the site rules top to bottom; the first match wins.
func AssessSite(s Signals) FinalFlag {
	switch {
	case s.NonPhysical:
		return FlagNonPhysicalAddress
	case s.APIFailure:
		return FlagNeedsHumanReview
	case s.NoGeocode || s.PostalInvalid:
		return FlagInvalidAddress
	case s.Precision == PrecisionRooftop &&
		(s.Footprint == FootprintMatch || (s.StreetView == StreetViewOK && !s.Stale)):
		return FlagValidLocation
	case s.Precision != PrecisionRooftop &&
		s.Footprint == FootprintNone &&
		(s.StreetView == StreetViewOK || s.StreetView == StreetViewZeroResults) &&
		!s.Stale:
		return FlagLikelyEmptyLot
	default:
		return FlagNeedsHumanReview
	}
}
