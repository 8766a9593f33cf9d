package feeds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ovwatch.transit.nl/internal/clock"
	"ovwatch.transit.nl/internal/models"
)

const ovapiTimingPointBody = `{
  "Stop": {"TimingPointName": "Amsterdam, Centraal", "Latitude": 52.378, "Longitude": 4.900},
  "Passes": {
    "p1": {"LinePublicNumber": "12", "DestinationName50": "Museumplein", "ExpectedDepartureTime": "2024-01-15T10:07:00",
           "TargetDepartureTime": "2024-01-15T10:00:00", "TripStopStatus": "DRIVING", "TransportType": "TRAM",
           "JourneyNumber": 3045, "Latitude": 52.37, "Longitude": 4.89, "LastUpdateTimeStamp": "2024-01-15T10:01:00"},
    "p2": {"LinePublicNumber": "12", "DestinationName50": "Museumplein", "ExpectedDepartureTime": "2024-01-15T10:15:00",
           "TargetDepartureTime": "2024-01-15T10:15:00", "TripStopStatus": "PLANNED", "TransportType": "TRAM", "JourneyNumber": 3046},
    "p3": {"LinePublicNumber": 5, "DestinationName50": "Westergasfabriek", "ExpectedDepartureTime": "2024-01-15T10:03:00",
           "TargetDepartureTime": "2024-01-15T10:03:00", "TripStopStatus": "PLANNED", "TransportType": "TRAM", "JourneyNumber": "501"},
    "p4": {"LinePublicNumber": "12", "DestinationName50": "Museumplein", "ExpectedDepartureTime": "2024-01-15T09:55:00",
           "TargetDepartureTime": "2024-01-15T09:55:00", "TripStopStatus": "PASSED", "JourneyNumber": 3044},
    "p5": {"LinePublicNumber": "12", "DestinationName50": "Museumplein", "ExpectedDepartureTime": "2024-01-15T10:20:00",
           "TargetDepartureTime": "2024-01-15T10:20:00", "TripStopStatus": "CANCEL", "JourneyNumber": 3047}
  }
}`

func newOVapiServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/tpc/30005568", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"30005568": ` + ovapiTimingPointBody + `}`))
	})
	mux.HandleFunc("/stopareacode/asdcs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"asdcs": {"30005568": ` + ovapiTimingPointBody + `}}`))
	})
	mux.HandleFunc("/tpc/broken", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"broken": [`))
	})
	mux.HandleFunc("/tpc/down", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/tpc/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func lines(deps []models.Departure) []string {
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		out = append(out, d.LineNumber)
	}
	return out
}

func TestOVapi_FetchDepartures(t *testing.T) {
	server := newOVapiServer(t)
	loc := clock.FeedLocation()
	adapter := NewOVapi(server.URL, NewClient(ClientOptions{}), nil, loc)

	res := adapter.FetchDepartures(context.Background(), Query{StopCode: "30005568"})
	require.False(t, res.NoData)
	require.NoError(t, res.Err)

	assert.Equal(t, "Amsterdam, Centraal", res.Stop.Name)
	require.NotNil(t, res.Stop.Position)
	assert.Equal(t, []string{"5", "12", "12"}, lines(res.Departures), "passed and cancelled passes are dropped")

	first, late := res.Departures[0], res.Departures[1]
	assert.Equal(t, 0, first.DelayMinutes)
	assert.Equal(t, "501", first.SourceTripRef)

	assert.Equal(t, 7, late.DelayMinutes)
	assert.Equal(t, "TRAM", late.TransportMode)
	assert.Equal(t, models.StatusScheduled, late.Status)
	require.NotNil(t, late.ExpectedDeparture)
	assert.True(t, late.ExpectedDeparture.Equal(time.Date(2024, 1, 15, 10, 7, 0, 0, loc)))
	require.NotNil(t, late.VehiclePosition)
	assert.InDelta(t, 52.37, late.VehiclePosition.Latitude, 1e-9)
	require.NotNil(t, late.VehiclePosition.Timestamp)
	assert.Nil(t, res.Departures[2].VehiclePosition)
}

func TestOVapi_Filters(t *testing.T) {
	server := newOVapiServer(t)
	adapter := NewOVapi(server.URL, NewClient(ClientOptions{}), nil, time.UTC)
	ctx := context.Background()

	t.Run("line filter", func(t *testing.T) {
		res := adapter.FetchDepartures(ctx, Query{StopCode: "30005568", Lines: models.LineFilter{"12"}})
		assert.Equal(t, []string{"12", "12"}, lines(res.Departures))
	})

	t.Run("limit", func(t *testing.T) {
		res := adapter.FetchDepartures(ctx, Query{StopCode: "30005568", Limit: 1})
		assert.Equal(t, []string{"5"}, lines(res.Departures))
	})

	t.Run("valid trips", func(t *testing.T) {
		res := adapter.FetchDepartures(ctx, Query{StopCode: "30005568", ValidTrips: []string{"GVB:12:3045", "GVB:17:9999"}})
		require.Len(t, res.Departures, 1)
		assert.Equal(t, "GVB:12:3045", res.Departures[0].MatchedTripID)
	})

	t.Run("stop area", func(t *testing.T) {
		res := adapter.FetchDepartures(ctx, Query{StopCode: "asdcs", StopArea: true})
		require.False(t, res.NoData)
		assert.Equal(t, []string{"5", "12", "12"}, lines(res.Departures))
	})
}

func TestOVapi_Failures(t *testing.T) {
	server := newOVapiServer(t)
	adapter := NewOVapi(server.URL, NewClient(ClientOptions{}), nil, time.UTC)

	t.Run("non-200", func(t *testing.T) {
		res := adapter.FetchDepartures(context.Background(), Query{StopCode: "down"})
		assert.True(t, res.NoData)
		assert.NotNil(t, res.Departures)
		var te *TransportError
		require.True(t, errors.As(res.Err, &te))
		assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		res := adapter.FetchDepartures(context.Background(), Query{StopCode: "broken"})
		assert.True(t, res.NoData)
		var pe *ParseError
		assert.True(t, errors.As(res.Err, &pe))
	})

	t.Run("timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		res := adapter.FetchDepartures(ctx, Query{StopCode: "slow"})
		assert.True(t, res.NoData)
		var te *TransportError
		assert.True(t, errors.As(res.Err, &te))
	})
}

func TestOVapi_LinesAt(t *testing.T) {
	server := newOVapiServer(t)
	adapter := NewOVapi(server.URL, NewClient(ClientOptions{}), nil, time.UTC)

	got, err := adapter.LinesAt(context.Background(), "30005568")
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "12"}, got)

	_, err = adapter.LinesAt(context.Background(), "down")
	assert.Error(t, err)
}
