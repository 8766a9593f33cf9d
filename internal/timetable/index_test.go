package timetable

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ovwatch.transit.nl/internal/models"
)

var serviceDay = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func TestLoad_Stats(t *testing.T) {
	idx := loadFixture(t)

	assert.True(t, idx.Loaded())
	assert.Equal(t, Stats{Stops: 4, Routes: 2, Trips: 4, StopTimes: 10, Services: 3}, idx.Stats())
}

func TestStopIDs(t *testing.T) {
	idx := loadFixture(t)

	assert.Equal(t, []string{"S1", "S4"}, idx.StopIDs("1001"))
	assert.Equal(t, []string{"S2"}, idx.StopIDs("S2"), "blank stop_code falls back to stop_id")
	assert.Equal(t, []string{"S3"}, idx.StopIDs("S3"), "None stop_code falls back to stop_id")
	assert.Equal(t, []string{"unknown"}, idx.StopIDs("unknown"))
}

func TestTripsBetween(t *testing.T) {
	idx := loadFixture(t)

	tests := []struct {
		name        string
		origin      string
		destination string
		want        []string
	}{
		{"code maps to several stop ids", "1001", "S3", []string{"T1", "T3", "T4"}},
		{"opposite direction", "S3", "1001", []string{"T2"}},
		{"origin after destination is excluded", "S3", "S2", []string{"T2"}},
		{"intermediate stop", "S2", "S3", []string{"T1"}},
		{"same stop", "S2", "S2", nil},
		{"unknown codes", "nowhere", "S3", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, idx.TripsBetween(tt.origin, tt.destination))
		})
	}
}

func TestScheduledDepartures(t *testing.T) {
	idx := loadFixture(t)

	tripIDs := func(deps []ScheduledDeparture) []string {
		out := make([]string, 0, len(deps))
		for _, d := range deps {
			out = append(out, d.TripID)
		}
		return out
	}

	t.Run("active services only, sorted", func(t *testing.T) {
		deps := idx.ScheduledDepartures("1001", serviceDay, "07:00:00", "23:59:59", nil, 0)
		assert.Equal(t, []string{"T1", "T2", "T3"}, tripIDs(deps))
		assert.Equal(t, "12", deps[0].RouteShortName)
		assert.Equal(t, "08:00:00", deps[0].DepartureTime)
	})

	t.Run("range bounds are inclusive", func(t *testing.T) {
		deps := idx.ScheduledDepartures("1001", serviceDay, "08:00:00", "09:15:00", nil, 0)
		assert.Equal(t, []string{"T1", "T2"}, tripIDs(deps))
	})

	t.Run("line filter", func(t *testing.T) {
		deps := idx.ScheduledDepartures("1001", serviceDay, "", "", models.LineFilter{"n5"}, 0)
		assert.Equal(t, []string{"T3"}, tripIDs(deps))
	})

	t.Run("limit", func(t *testing.T) {
		deps := idx.ScheduledDepartures("1001", serviceDay, "", "", nil, 1)
		assert.Equal(t, []string{"T1"}, tripIDs(deps))
	})

	t.Run("date without exceptions is inactive", func(t *testing.T) {
		assert.Empty(t, idx.ScheduledDepartures("1001", serviceDay.AddDate(0, 0, 1), "", "", nil, 0))
	})
}

func TestArrivalAt(t *testing.T) {
	idx := loadFixture(t)

	arr, ok := idx.ArrivalAt("T1", "S3")
	require.True(t, ok)
	assert.Equal(t, "08:12:00", arr)

	_, ok = idx.ArrivalAt("T1", "nowhere")
	assert.False(t, ok)
	_, ok = idx.ArrivalAt("missing", "S3")
	assert.False(t, ok)
}

func TestTripIDsThrough(t *testing.T) {
	idx := loadFixture(t)
	assert.Equal(t, []string{"T1", "T2", "T3", "T4"}, idx.TripIDsThrough("1001"))
	assert.Equal(t, []string{"T1", "T2"}, idx.TripIDsThrough("S2"))
}

func TestLoad_Failures(t *testing.T) {
	assertEmpty := func(t *testing.T, idx *Index) {
		require.NotNil(t, idx)
		assert.False(t, idx.Loaded())
		assert.Empty(t, idx.TripsBetween("1001", "S3"))
		assert.Empty(t, idx.ScheduledDepartures("1001", serviceDay, "", "", nil, 10))
	}

	t.Run("missing file on disk", func(t *testing.T) {
		idx, err := Load(filepath.Join(t.TempDir(), "absent.zip"))
		var archiveErr *ArchiveError
		require.True(t, errors.As(err, &archiveErr))
		assertEmpty(t, idx)
	})

	t.Run("not a zip", func(t *testing.T) {
		idx, err := LoadBytes([]byte("definitely not a zip"))
		var archiveErr *ArchiveError
		require.True(t, errors.As(err, &archiveErr))
		assertEmpty(t, idx)
	})

	t.Run("required table missing", func(t *testing.T) {
		idx, err := LoadBytes(buildArchive(t, fixtureFiles, "stop_times.txt"))
		var archiveErr *ArchiveError
		require.True(t, errors.As(err, &archiveErr))
		assert.Equal(t, "stop_times.txt", archiveErr.File)
		assertEmpty(t, idx)
	})

	t.Run("agency table missing", func(t *testing.T) {
		idx, err := LoadBytes(buildArchive(t, fixtureFiles, "agency.txt"))
		var archiveErr *ArchiveError
		require.True(t, errors.As(err, &archiveErr))
		assert.Equal(t, "agency.txt", archiveErr.File)
		assertEmpty(t, idx)
	})

	t.Run("no service calendar leaves no trips", func(t *testing.T) {
		idx, err := LoadBytes(buildArchive(t, fixtureFiles, "calendar_dates.txt"))
		var archiveErr *ArchiveError
		require.True(t, errors.As(err, &archiveErr))
		assert.Equal(t, "trips.txt", archiveErr.File)
		assertEmpty(t, idx)
	})

	t.Run("required column missing", func(t *testing.T) {
		files := map[string]string{}
		for k, v := range fixtureFiles {
			files[k] = v
		}
		files["trips.txt"] = "route_id,service_id\nR1,WD\n"
		idx, err := LoadBytes(buildArchive(t, files))
		require.Error(t, err)
		assertEmpty(t, idx)
	})
}

func TestLoad_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gtfs.zip")
	require.NoError(t, os.WriteFile(path, buildArchive(t, fixtureFiles), 0o600))

	idx, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T3", "T4"}, idx.TripsBetween("1001", "S3"))

	arr, ok := idx.ArrivalAt("T3", "S3")
	require.True(t, ok)
	assert.Equal(t, "24:10:00", arr, "times past midnight keep their hour")
}

func TestLoad_Calendar(t *testing.T) {
	idx := loadFixture(t)

	assert.True(t, idx.ActiveOn("WD", serviceDay))
	assert.False(t, idx.ActiveOn("OFF", serviceDay), "removed date is inactive")
	assert.False(t, idx.ActiveOn("WD", serviceDay.AddDate(0, 0, 1)))
	assert.False(t, idx.ActiveOn("unknown", serviceDay))
}
