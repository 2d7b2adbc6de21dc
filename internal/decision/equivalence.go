package decision

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/siteverify/internal/evidence"
	"github.com/sells-group/siteverify/internal/geo"
)

// Equivalence says whether the validator's standardized address is the same
// real-world place the geocoder resolved.
type Equivalence string

const (
	EquivalenceSame           Equivalence = "SAME"
	EquivalenceMinor          Equivalence = "EQUIVALENT_MINOR"
	EquivalenceCorrectedMajor Equivalence = "CORRECTED_MAJOR"
	EquivalenceDifferent      Equivalence = "DIFFERENT"
)

// AllEquivalences returns every input-correctness outcome.
func AllEquivalences() []Equivalence {
	return []Equivalence{EquivalenceSame, EquivalenceMinor, EquivalenceCorrectedMajor, EquivalenceDifferent}
}

// Reason returns the INPUT_* tag mirroring e. SAME has none.
func (e Equivalence) Reason() (Reason, bool) {
	switch e {
	case EquivalenceMinor:
		return ReasonInputMinorCorrection, true
	case EquivalenceCorrectedMajor:
		return ReasonInputMajorCorrection, true
	case EquivalenceDifferent:
		return ReasonInputMismatch, true
	default:
		return "", false
	}
}

// Issue code prefixes and fixed issue codes.
const (
	IssueReplacedPrefix       = "COMP_REPLACED_"
	IssueSpellCorrectedPrefix = "SPELL_CORRECTED_"
	IssueUnconfirmedPrefix    = "UNCONFIRMED_"
	IssueDifferentPlaceID     = "DIFFERENT_PLACE_ID"
	IssueDistance25to200M     = "DISTANCE_25_200M"
	IssueDistanceOver200M     = "DISTANCE_GT_200M"
)

// Default equivalence bands in meters.
const (
	DefaultSamePlaceM = 25.0
	DefaultNearbyM    = 200.0
)

// DefaultMajorComponents are substrings that mark a component type as major.
var DefaultMajorComponents = []string{
	"POSTAL",
	"ZIP",
	"ROUTE",
	"THOROUGHFARE",
	"STREET",
	"STREET_NUMBER",
	"SUB_THOROUGHFARE",
	"PREMISE",
	"SUB_PREMISE",
	"LOCALITY",
	"ADMINISTRATIVE",
}

// EquivalencePolicy holds the tunable parts of the input-correctness check.
type EquivalencePolicy struct {
	SamePlaceM      float64  `json:"same_place_m" yaml:"same_place_m"`
	NearbyM         float64  `json:"nearby_m" yaml:"nearby_m"`
	MajorComponents []string `json:"major_components" yaml:"major_components"`
}

// DefaultEquivalencePolicy returns the 25 m / 200 m policy with the standard
// major-component list.
func DefaultEquivalencePolicy() EquivalencePolicy {
	major := make([]string, len(DefaultMajorComponents))
	copy(major, DefaultMajorComponents)
	return EquivalencePolicy{
		SamePlaceM:      DefaultSamePlaceM,
		NearbyM:         DefaultNearbyM,
		MajorComponents: major,
	}
}

// componentType upper-cases a component type as reported upstream. A Caser
// is not safe for concurrent use, so one is built per call.
func componentType(t string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(t))
}

// IsMajor reports whether a component type contains any major substring.
func (p EquivalencePolicy) IsMajor(t string) bool {
	ct := componentType(t)
	for _, m := range p.MajorComponents {
		if m != "" && strings.Contains(ct, componentType(m)) {
			return true
		}
	}
	return false
}

// InputAssessment is the outcome of AssessInput.
type InputAssessment struct {
	Equivalence Equivalence
	Incorrect   bool
	Issues      []string

	// DistanceM is set only when the check fell back to coordinates.
	DistanceM *float64
}

// AssessInput compares the validated address with the geocoded one. It never
// reads the site-assessment result.
func AssessInput(b evidence.Bundle, p EquivalencePolicy) InputAssessment {
	v := b.Validation
	if !v.Ran {
		return InputAssessment{Equivalence: EquivalenceSame}
	}

	var (
		samePlace    bool
		placeIDsDiff bool
		distance     *float64
	)
	geoPID, valPID := b.Geocode.PlaceID, v.PlaceID
	switch {
	case geoPID != "" && valPID != "":
		samePlace = geoPID == valPID
		placeIDsDiff = !samePlace
	case b.Geocode.Point != nil && v.Point != nil:
		d := geo.HaversineM(*b.Geocode.Point, *v.Point)
		distance = &d
		samePlace = geo.Classify(d, p.SamePlaceM, p.NearbyM) == geo.ProximitySame
	}

	// One code per reported component, repeats included.
	var issues []string
	issues = append(issues, componentIssues(IssueReplacedPrefix, v.ReplacedTypes)...)
	issues = append(issues, componentIssues(IssueSpellCorrectedPrefix, v.SpellCorrectedTypes)...)
	issues = append(issues, componentIssues(IssueUnconfirmedPrefix, v.UnconfirmedTypes)...)

	out := InputAssessment{DistanceM: distance}
	switch {
	case samePlace && p.anyMajor(v.ReplacedTypes):
		out.Equivalence = EquivalenceCorrectedMajor
		out.Incorrect = true
	case samePlace && len(issues) > 0:
		out.Equivalence = EquivalenceMinor
	case samePlace:
		out.Equivalence = EquivalenceSame
	default:
		out.Equivalence = EquivalenceDifferent
		out.Incorrect = true
		if placeIDsDiff {
			issues = append(issues, IssueDifferentPlaceID)
		}
		if distance != nil {
			switch geo.Classify(*distance, p.SamePlaceM, p.NearbyM) {
			case geo.ProximityNearby:
				issues = append(issues, IssueDistance25to200M)
			case geo.ProximityFar:
				issues = append(issues, IssueDistanceOver200M)
			}
		}
	}
	out.Issues = issues
	return out
}

func (p EquivalencePolicy) anyMajor(types []string) bool {
	for _, t := range types {
		if p.IsMajor(t) {
			return true
		}
	}
	return false
}

func componentIssues(prefix string, types []string) []string {
	var out []string
	for _, t := range types {
		if ct := componentType(t); ct != "" {
			out = append(out, prefix+ct)
		}
	}
	return out
}
