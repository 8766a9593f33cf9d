package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
	"ovwatch.transit.nl/internal/app"
	"ovwatch.transit.nl/internal/appconf"
	"ovwatch.transit.nl/internal/clock"
	"ovwatch.transit.nl/internal/journey"
	"ovwatch.transit.nl/internal/metrics"
	"ovwatch.transit.nl/internal/models"
	"ovwatch.transit.nl/internal/poller"
	"ovwatch.transit.nl/internal/timetable"
)

var timetableFiles = map[string]string{
	"agency.txt": `agency_id,agency_name,agency_url,agency_timezone
GVB,GVB,https://www.gvb.nl,Europe/Amsterdam
`,
	"stops.txt": `stop_id,stop_code,stop_name,stop_lat,stop_lon
S1,1001,Centraal,52.3780,4.9000
S2,1003,Museumplein,52.3570,4.8800
`,
	"routes.txt": `route_id,route_short_name,route_long_name,route_type
R1,12,Centraal - Museumplein,0
R2,5,Centraal - Westergasfabriek,0
`,
	"trips.txt": `route_id,service_id,trip_id,trip_headsign
R1,WD,T1,Museumplein
R1,WD,T2,Museumplein
R2,WD,T3,Museumplein
`,
	"stop_times.txt": `trip_id,arrival_time,departure_time,stop_id,stop_sequence
T1,08:00:00,08:00:00,S1,1
T1,08:12:00,08:12:00,S2,2
T2,09:30:00,09:30:00,S1,1
T2,09:42:00,09:42:00,S2,2
T3,10:00:00,10:00:00,S1,1
T3,10:10:00,10:10:00,S2,2
`,
	"calendar_dates.txt": `service_id,date,exception_type
WD,20240115,1
`,
}

// testNow is Monday 15 January 2024, 09:00 in Amsterdam.
func testNow() time.Time {
	return time.Date(2024, 1, 15, 9, 0, 0, 0, clock.FeedLocation())
}

func buildTimetable(t *testing.T) *timetable.Index {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range timetableFiles {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	idx, err := timetable.LoadBytes(buf.Bytes())
	require.NoError(t, err)
	return idx
}

var testRoutes = []models.RouteConfig{
	{
		Origin:            "1001",
		Destination:       "1003",
		Source:            models.SourceOVapi,
		Reverse:           true,
		ReturnTime:        "17:00",
		NotifyLeadMinutes: 30,
		NumDepartures:     5,
	},
}

type testOption func(*app.Application)

func withAPIKeys(keys ...string) testOption {
	return func(a *app.Application) { a.Config.APIKeys = keys }
}

func withRateLimit(n int) testOption {
	return func(a *app.Application) { a.Config.RateLimit = n }
}

func withoutTimetable() testOption {
	return func(a *app.Application) { a.Timetable = nil }
}

// withCycle wires a poll cycle over the configured routes into the app.
func withCycle(fetcher poller.LegFetcher) testOption {
	return func(a *app.Application) {
		a.Cycle = poller.NewCycle(poller.Options{
			Routes:  a.Config.Routes,
			Fetcher: fetcher,
			Store:   a.Store,
		})
	}
}

func newTestApp(t *testing.T, opts ...testOption) *app.Application {
	t.Helper()
	m := metrics.New()
	a := &app.Application{
		Config: appconf.Config{
			RateLimit: 100,
			Routes:    testRoutes,
		},
		Clock:     clock.NewMockClock(testNow()),
		Location:  clock.FeedLocation(),
		Metrics:   m,
		Timetable: timetable.NewCached(buildTimetable(t), 16, time.Hour, m),
		Store:     poller.NewStore(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func createTestApi(t *testing.T, opts ...testOption) *RestAPI {
	t.Helper()
	api := NewRestAPI(newTestApp(t, opts...))
	t.Cleanup(api.Shutdown)
	return api
}

type staticFetcher struct{}

func (staticFetcher) Fetch(_ context.Context, leg journey.Leg, now time.Time) journey.LegResult {
	dep := now.Add(20 * time.Minute)
	arr := dep.Add(12 * time.Minute)
	j := models.NewEmptyJourney(leg.Origin, leg.Destination)
	j.DepartureTime = &dep
	j.ArrivalTime = &arr
	j.DelayMinutes = 2
	j.Line = "12"
	j.VehicleTypes = []string{"TRAM"}
	return journey.LegResult{Journey: j}
}

type downFetcher struct{}

func (downFetcher) Fetch(_ context.Context, leg journey.Leg, _ time.Time) journey.LegResult {
	return journey.LegResult{
		Journey: models.NewEmptyJourney(leg.Origin, leg.Destination),
		Failed:  true,
		Err:     errors.New("feed down"),
	}
}

// publishCycle runs one poll cycle over the configured routes so the store
// holds a snapshot.
func publishCycle(t *testing.T, api *RestAPI) {
	t.Helper()
	cycle := poller.NewCycle(poller.Options{
		Routes:  api.Config.Routes,
		Fetcher: staticFetcher{},
		Store:   api.Store,
	})
	require.NoError(t, cycle.Run(context.Background(), api.Clock.Now()))
}

func serveAPI(t *testing.T, api *RestAPI) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return server
}

// getJSON fetches path and decodes the envelope.
func getJSON(t *testing.T, server *httptest.Server, path string) (*http.Response, map[string]any) {
	t.Helper()
	return doJSON(t, server, http.MethodGet, path)
}

func doJSON(t *testing.T, server *httptest.Server, method, path string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, server.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded), string(body))
	return resp, decoded
}
