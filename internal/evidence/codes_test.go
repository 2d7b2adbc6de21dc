package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCodes(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"A", []string{"A"}},
		{"A|B", []string{"A", "B"}},
		{" A | |B ", []string{"A", "B"}},
		{"|", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitCodes(tt.in))
		})
	}
}

func TestJoinCodes(t *testing.T) {
	assert.Equal(t, "", JoinCodes(nil))
	assert.Equal(t, "A|B", JoinCodes([]string{"A", "B"}))
}

func TestMergeCodes(t *testing.T) {
	got := MergeCodes([]string{"TIMEOUT", "HTTP_500"}, nil, []string{"HTTP_500", "QUOTA"})
	assert.Equal(t, []string{"TIMEOUT", "HTTP_500", "QUOTA"}, got)
	assert.Empty(t, MergeCodes(nil, nil))
}

func TestParseBool(t *testing.T) {
	assert.True(t, ParseBool("true"))
	assert.True(t, ParseBool(" TRUE "))
	assert.True(t, ParseBool("True"))
	assert.False(t, ParseBool("false"))
	assert.False(t, ParseBool("1"))
	assert.False(t, ParseBool(""))
}

func TestFormatBool(t *testing.T) {
	assert.Equal(t, "true", FormatBool(true))
	assert.Equal(t, "false", FormatBool(false))
}

func TestParseFloat(t *testing.T) {
	f := ParseFloat(" 30.25 ")
	require.NotNil(t, f)
	assert.InDelta(t, 30.25, *f, 1e-9)

	assert.Nil(t, ParseFloat(""))
	assert.Nil(t, ParseFloat("abc"))
	assert.Nil(t, ParseFloat("NaN"))
	assert.Nil(t, ParseFloat("Inf"))
}

func TestParsePoint(t *testing.T) {
	p := ParsePoint("30.2672", "-97.7431")
	require.NotNil(t, p)
	assert.InDelta(t, 30.2672, p.Lat, 1e-9)
	assert.InDelta(t, -97.7431, p.Lng, 1e-9)

	assert.Nil(t, ParsePoint("30.2672", ""))
	assert.Nil(t, ParsePoint("", "-97.7431"))
}

func TestParseMeters(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"12", 12},
		{"-1", -1},
		{"", -1},
		{"n/a", -1},
		{"12.6", 13},
		{" 7 ", 7},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMeters(tt.in))
		})
	}
}
