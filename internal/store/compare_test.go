package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareRuns(t *testing.T) {
	base := &RunRecord{ID: "r1", RunKey: "rk1:a", OutputSHA256: "h1"}
	other := &RunRecord{ID: "r2", RunKey: "rk1:a", OutputSHA256: "h2"}

	baseOut := []Outcome{
		{InputID: "a1", FinalFlag: "VALID_LOCATION", InputEquivalence: "SAME"},
		{InputID: "a2", FinalFlag: "LIKELY_EMPTY_LOT", InputEquivalence: "SAME"},
		{InputID: "a3", FinalFlag: "INVALID_ADDRESS", InputEquivalence: "SAME"},
	}
	otherOut := []Outcome{
		{InputID: "a4", FinalFlag: "VALID_LOCATION", InputEquivalence: "SAME"},
		{InputID: "a2", FinalFlag: "NEEDS_HUMAN_REVIEW", InputEquivalence: "SAME"},
		{InputID: "a1", FinalFlag: "VALID_LOCATION", InputEquivalence: "SAME"},
	}

	c := CompareRuns(base, other, baseOut, otherOut)
	assert.Equal(t, "r1", c.Base)
	assert.Equal(t, "r2", c.Other)
	assert.True(t, c.SameRunKey)
	assert.False(t, c.SameOutput)
	assert.False(t, c.Identical())
	assert.Equal(t, 1, c.UnchangedCount)

	require.Len(t, c.Changed, 3)
	assert.Equal(t, "a2", c.Changed[0].InputID)
	assert.Equal(t, "LIKELY_EMPTY_LOT", c.Changed[0].Before.FinalFlag)
	assert.Equal(t, "NEEDS_HUMAN_REVIEW", c.Changed[0].After.FinalFlag)

	assert.Equal(t, "a3", c.Changed[1].InputID)
	assert.NotNil(t, c.Changed[1].Before)
	assert.Nil(t, c.Changed[1].After)

	assert.Equal(t, "a4", c.Changed[2].InputID)
	assert.Nil(t, c.Changed[2].Before)
	assert.NotNil(t, c.Changed[2].After)
}

func TestCompareRuns_Identical(t *testing.T) {
	base := &RunRecord{ID: "r1", RunKey: "rk1:a", OutputSHA256: "h"}
	other := &RunRecord{ID: "r2", RunKey: "rk1:a", OutputSHA256: "h"}
	out := []Outcome{{InputID: "a1", FinalFlag: "VALID_LOCATION"}}

	c := CompareRuns(base, other, out, out)
	assert.True(t, c.Identical())
	assert.Empty(t, c.Changed)
}

func TestCompareRuns_EmptyHashNeverSame(t *testing.T) {
	c := CompareRuns(&RunRecord{ID: "r1"}, &RunRecord{ID: "r2"}, nil, nil)
	assert.True(t, c.SameRunKey)
	assert.False(t, c.SameOutput)
	assert.False(t, c.Identical())
}

func TestCompareRuns_DifferentKey(t *testing.T) {
	base := &RunRecord{ID: "r1", RunKey: "rk1:a", OutputSHA256: "h"}
	other := &RunRecord{ID: "r2", RunKey: "rk1:b", OutputSHA256: "h"}

	c := CompareRuns(base, other, nil, nil)
	assert.False(t, c.SameRunKey)
	assert.True(t, c.SameOutput)
	assert.False(t, c.Identical())
}

func TestOutcomesFromRecordsEmpty(t *testing.T) {
	assert.Empty(t, OutcomesFromRecords(nil))
}
