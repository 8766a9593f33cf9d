package feeds

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstant(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", "2024-01-15T10:07:00Z", time.Date(2024, 1, 15, 10, 7, 0, 0, time.UTC)},
		{"offset without colon", "2024-01-15T10:07:00+0100", time.Date(2024, 1, 15, 9, 7, 0, 0, time.UTC)},
		{"zone-less uses location", "2024-01-15T10:07:00", time.Date(2024, 1, 15, 9, 7, 0, 0, time.UTC)},
		{"space separated", "2024-01-15 10:07:00", time.Date(2024, 1, 15, 9, 7, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInstant(tt.in, loc)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseInstant_Errors(t *testing.T) {
	for _, in := range []string{"", "   ", "yesterday", "15-01-2024"} {
		_, err := ParseInstant(in, nil)
		var pe *ParseError
		assert.True(t, errors.As(err, &pe), "input %q", in)
	}
}

func TestParseOptional(t *testing.T) {
	got, err := parseOptional("ovapi", "ExpectedDepartureTime", "", time.UTC)
	assert.Nil(t, got)
	assert.NoError(t, err)

	got, err = parseOptional("ovapi", "ExpectedDepartureTime", "garbage", time.UTC)
	assert.Nil(t, got)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "ovapi", pe.Feed)
	assert.Equal(t, "ExpectedDepartureTime", pe.Field)
}

func TestSubstringMatcher(t *testing.T) {
	var m TripMatcher = SubstringMatcher{}
	trips := []string{"GVB:12:3045", "GVB:5:501"}

	id, ok := m.Match("3045", trips)
	assert.True(t, ok)
	assert.Equal(t, "GVB:12:3045", id)

	_, ok = m.Match("9999", trips)
	assert.False(t, ok)
	_, ok = m.Match("", trips)
	assert.False(t, ok)
}
