package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ovwatch.transit.nl/internal/models"
)

func ts(h, m int) *time.Time {
	t := time.Date(2024, 1, 15, h, m, 0, 0, time.UTC)
	return &t
}

func leg(origin, dest string, dep, arr *time.Time, delay int) models.Journey {
	j := models.NewEmptyJourney(origin, dest)
	j.DepartureTime, j.ArrivalTime, j.DelayMinutes = dep, arr, delay
	j.Line = "12"
	j.VehicleTypes = []string{"TRAM"}
	return j
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name         string
		legs         []models.Journey
		min          int
		wantStatus   Status
		wantWarnings int
		wantTransfer []*int
		wantTotal    *int
	}{
		{
			name:         "comfortable transfer",
			legs:         []models.Journey{leg("A", "B", ts(7, 50), ts(8, 10), 0), leg("B", "C", ts(8, 20), ts(8, 45), 0)},
			min:          5,
			wantStatus:   StatusOK,
			wantTransfer: []*int{intPtr(10), nil},
			wantTotal:    intPtr(55),
		},
		{
			name:         "tight transfer",
			legs:         []models.Journey{leg("A", "B", ts(7, 50), ts(8, 10), 0), leg("B", "C", ts(8, 12), ts(8, 40), 0)},
			min:          5,
			wantStatus:   StatusTight,
			wantWarnings: 1,
			wantTransfer: []*int{intPtr(2), nil},
			wantTotal:    intPtr(50),
		},
		{
			name:         "negative transfer is missed",
			legs:         []models.Journey{leg("A", "B", ts(7, 50), ts(8, 10), 0), leg("B", "C", ts(8, 5), ts(8, 30), 0)},
			min:          5,
			wantStatus:   StatusMissed,
			wantWarnings: 1,
			wantTransfer: []*int{intPtr(-5), nil},
			wantTotal:    intPtr(40),
		},
		{
			name:         "delay puts transfer at risk",
			legs:         []models.Journey{leg("A", "B", ts(7, 50), ts(8, 10), 4), leg("B", "C", ts(8, 18), ts(8, 40), 0)},
			min:          5,
			wantStatus:   StatusWarning,
			wantWarnings: 1,
			wantTransfer: []*int{intPtr(8), nil},
			wantTotal:    intPtr(50),
		},
		{
			name:         "missing time data only warns",
			legs:         []models.Journey{leg("A", "B", ts(7, 50), nil, 0), leg("B", "C", ts(8, 18), ts(8, 40), 0)},
			min:          5,
			wantStatus:   StatusOK,
			wantWarnings: 1,
			wantTransfer: []*int{nil, nil},
			wantTotal:    intPtr(50),
		},
		{
			name:         "unknown final arrival",
			legs:         []models.Journey{leg("A", "B", ts(7, 50), ts(8, 10), 0), leg("B", "C", ts(8, 20), nil, 0)},
			min:          5,
			wantStatus:   StatusOK,
			wantTransfer: []*int{intPtr(10), nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Analyze(tt.legs, tt.min)
			assert.Equal(t, tt.wantStatus, r.Status)
			assert.Len(t, r.Warnings, tt.wantWarnings)
			require.Len(t, r.Legs, len(tt.wantTransfer))
			for i, want := range tt.wantTransfer {
				assert.Equal(t, want, r.Legs[i].TransferTimeToNext, "leg %d", i)
			}
			assert.Equal(t, tt.wantTotal, r.TotalJourneyMinutes)
		})
	}
}

func TestAnalyze_MissedIsNeverDowngraded(t *testing.T) {
	legs := []models.Journey{
		leg("A", "B", ts(7, 50), ts(8, 10), 0),
		leg("B", "C", ts(8, 5), ts(8, 30), 0),
		leg("C", "D", ts(8, 32), ts(8, 50), 0),
		leg("D", "E", ts(9, 30), ts(9, 50), 0),
	}
	r := Analyze(legs, 5)

	assert.Equal(t, StatusMissed, r.Status)
	assert.Len(t, r.Warnings, 2)
	assert.Equal(t, "Connection Missed", r.Label())
}

func TestAnalyze_WarningOutranksTight(t *testing.T) {
	legs := []models.Journey{
		leg("A", "B", ts(7, 50), ts(8, 10), 3),
		leg("B", "C", ts(8, 16), ts(8, 30), 0),
		leg("C", "D", ts(8, 32), ts(8, 50), 0),
	}
	r := Analyze(legs, 5)

	assert.Equal(t, StatusWarning, r.Status)
	assert.Len(t, r.Warnings, 2)
	assert.Equal(t, 3, r.TotalDelayMinutes)
	assert.Equal(t, 8, r.TotalTransferMinutes)
}

func TestAnalyze_Degenerate(t *testing.T) {
	r := Analyze(nil, 5)
	assert.Equal(t, StatusOK, r.Status)
	assert.Empty(t, r.Legs)
	assert.NotNil(t, r.Warnings)
	assert.Nil(t, r.TotalJourneyMinutes)

	single := Analyze([]models.Journey{leg("A", "B", ts(8, 0), ts(8, 20), 2)}, 5)
	assert.Equal(t, StatusOK, single.Status)
	require.NotNil(t, single.TotalJourneyMinutes)
	assert.Equal(t, 20, *single.TotalJourneyMinutes)
	assert.Equal(t, "TRAM", single.Legs[0].TransportMode)
}

func TestStatusLabels(t *testing.T) {
	assert.Equal(t, "On Schedule", StatusOK.Label())
	assert.Equal(t, "Tight Connection", StatusTight.Label())
	assert.Equal(t, "Connection at Risk", StatusWarning.Label())
	assert.Equal(t, "Connection Missed", StatusMissed.Label())
}

func intPtr(v int) *int { return &v }
