package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteverify/internal/evidence"
	"github.com/sells-group/siteverify/internal/geo"
)

func ranValidation(b evidence.Bundle) evidence.Bundle {
	b.Validation.Ran = true
	b.Validation.Verdict = evidence.VerdictValid
	b.Validation.StdAddress = "1 Main St, Austin, TX 78701, USA"
	return b
}

func TestAssessInput_NotRun(t *testing.T) {
	b := bundle("a")
	b.Validation.ReplacedTypes = []string{"postal_code"}
	b.Validation.PlaceID = "other"

	got := AssessInput(b, DefaultEquivalencePolicy())
	assert.Equal(t, EquivalenceSame, got.Equivalence)
	assert.False(t, got.Incorrect)
	assert.Empty(t, got.Issues)
}

func TestAssessInput_ReflexiveWhenNotRun(t *testing.T) {
	for _, b := range bundleGrid() {
		if b.Validation.Ran {
			continue
		}
		got := AssessInput(b, DefaultEquivalencePolicy())
		assert.Equal(t, EquivalenceSame, got.Equivalence)
		assert.False(t, got.Incorrect)
	}
}

func TestAssessInput_SamePlaceID(t *testing.T) {
	b := ranValidation(bundle("a"))
	b.Geocode.PlaceID = "pid-1"
	b.Validation.PlaceID = "pid-1"
	// Far-apart coordinates are ignored when both place ids are present.
	b.Validation.Point = &geo.Point{Lat: 31, Lng: -97}

	got := AssessInput(b, DefaultEquivalencePolicy())
	assert.Equal(t, EquivalenceSame, got.Equivalence)
	assert.False(t, got.Incorrect)
	assert.Empty(t, got.Issues)
	assert.Nil(t, got.DistanceM)
}

func TestAssessInput_MajorReplaced(t *testing.T) {
	b := ranValidation(bundle("a"))
	b.Geocode.PlaceID = "pid-1"
	b.Validation.PlaceID = "pid-1"
	b.Validation.ReplacedTypes = []string{"postal_code"}

	got := AssessInput(b, DefaultEquivalencePolicy())
	assert.Equal(t, EquivalenceCorrectedMajor, got.Equivalence)
	assert.True(t, got.Incorrect)
	assert.Equal(t, []string{"COMP_REPLACED_POSTAL_CODE"}, got.Issues)
}

func TestAssessInput_MinorCorrections(t *testing.T) {
	tests := []struct {
		name       string
		replaced   []string
		spell      []string
		unconfirm  []string
		wantIssues []string
	}{
		{"minor replaced", []string{"country"}, nil, nil, []string{"COMP_REPLACED_COUNTRY"}},
		{"spell corrected major type", nil, []string{"route"}, nil, []string{"SPELL_CORRECTED_ROUTE"}},
		{"unconfirmed", nil, nil, []string{"subpremise"}, []string{"UNCONFIRMED_SUBPREMISE"}},
		{
			"mixed in order",
			[]string{"country"},
			[]string{"locality"},
			[]string{"point_of_interest"},
			[]string{"COMP_REPLACED_COUNTRY", "SPELL_CORRECTED_LOCALITY", "UNCONFIRMED_POINT_OF_INTEREST"},
		},
		{
			"one code per reported component",
			[]string{"country", "country"},
			[]string{"locality", "Locality"},
			nil,
			[]string{"COMP_REPLACED_COUNTRY", "COMP_REPLACED_COUNTRY", "SPELL_CORRECTED_LOCALITY", "SPELL_CORRECTED_LOCALITY"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ranValidation(bundle("a"))
			b.Validation.Point = &geo.Point{Lat: 30.2672, Lng: -97.7431}
			b.Validation.ReplacedTypes = tt.replaced
			b.Validation.SpellCorrectedTypes = tt.spell
			b.Validation.UnconfirmedTypes = tt.unconfirm

			got := AssessInput(b, DefaultEquivalencePolicy())
			assert.Equal(t, EquivalenceMinor, got.Equivalence)
			assert.False(t, got.Incorrect)
			assert.Equal(t, tt.wantIssues, got.Issues)
			require.NotNil(t, got.DistanceM)
			assert.InDelta(t, 0, *got.DistanceM, 1e-6)
		})
	}
}

func TestAssessInput_DifferentPlaceID(t *testing.T) {
	b := ranValidation(bundle("a"))
	b.Geocode.PlaceID = "pid-1"
	b.Validation.PlaceID = "pid-2"
	b.Validation.Point = &geo.Point{Lat: 30.2672, Lng: -97.7431}
	b.Validation.ReplacedTypes = []string{"route"}

	got := AssessInput(b, DefaultEquivalencePolicy())
	assert.Equal(t, EquivalenceDifferent, got.Equivalence)
	assert.True(t, got.Incorrect)
	assert.Equal(t, []string{"COMP_REPLACED_ROUTE", IssueDifferentPlaceID}, got.Issues)
	assert.Nil(t, got.DistanceM)
}

func TestAssessInput_DistanceBands(t *testing.T) {
	tests := []struct {
		name      string
		dLat      float64
		want      Equivalence
		wantIssue []string
	}{
		{"~11m same", 0.0001, EquivalenceSame, nil},
		{"~111m nearby", 0.001, EquivalenceDifferent, []string{IssueDistance25to200M}},
		{"~1.1km far", 0.01, EquivalenceDifferent, []string{IssueDistanceOver200M}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ranValidation(bundle("a"))
			b.Geocode.PlaceID = "pid-1" // only one side has an id
			b.Validation.Point = &geo.Point{Lat: 30.2672 + tt.dLat, Lng: -97.7431}

			got := AssessInput(b, DefaultEquivalencePolicy())
			assert.Equal(t, tt.want, got.Equivalence)
			assert.Equal(t, tt.wantIssue, got.Issues)
			assert.NotNil(t, got.DistanceM)
		})
	}
}

func TestAssessInput_NoComparisonPossible(t *testing.T) {
	b := ranValidation(bundle("a"))
	b.Validation.Point = nil

	got := AssessInput(b, DefaultEquivalencePolicy())
	assert.Equal(t, EquivalenceDifferent, got.Equivalence)
	assert.True(t, got.Incorrect)
	assert.Empty(t, got.Issues)
}

func TestAssessInput_CustomPolicy(t *testing.T) {
	b := ranValidation(bundle("a"))
	b.Validation.Point = &geo.Point{Lat: 30.2672 + 0.001, Lng: -97.7431}
	b.Validation.ReplacedTypes = []string{"country"}

	p := EquivalencePolicy{SamePlaceM: 150, NearbyM: 500, MajorComponents: []string{"country"}}
	got := AssessInput(b, p)
	assert.Equal(t, EquivalenceCorrectedMajor, got.Equivalence)
	assert.True(t, got.Incorrect)
}

func TestEquivalencePolicy_IsMajor(t *testing.T) {
	p := DefaultEquivalencePolicy()
	for _, typ := range []string{"postal_code", "postal_code_suffix", "route", "street_number", "subpremise", "locality", "administrative_area_level_1", "zip"} {
		assert.True(t, p.IsMajor(typ), typ)
	}
	for _, typ := range []string{"country", "point_of_interest", "neighborhood", ""} {
		assert.False(t, p.IsMajor(typ), typ)
	}
}

func TestDefaultEquivalencePolicy_Copy(t *testing.T) {
	p := DefaultEquivalencePolicy()
	p.MajorComponents[0] = "CHANGED"
	assert.Equal(t, "POSTAL", DefaultEquivalencePolicy().MajorComponents[0])
	assert.InDelta(t, 25.0, p.SamePlaceM, 0)
	assert.InDelta(t, 200.0, p.NearbyM, 0)
}

func TestEquivalence_Reason(t *testing.T) {
	_, ok := EquivalenceSame.Reason()
	assert.False(t, ok)

	r, ok := EquivalenceMinor.Reason()
	assert.True(t, ok)
	assert.Equal(t, ReasonInputMinorCorrection, r)

	r, _ = EquivalenceCorrectedMajor.Reason()
	assert.Equal(t, ReasonInputMajorCorrection, r)

	r, _ = EquivalenceDifferent.Reason()
	assert.Equal(t, ReasonInputMismatch, r)
}
