package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ovwatch.transit.nl/internal/connection"
	"ovwatch.transit.nl/internal/journey"
	"ovwatch.transit.nl/internal/models"
	"ovwatch.transit.nl/internal/notify"
)

// Monday.
var now = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

func at(minutes int) *time.Time {
	t := now.Add(time.Duration(minutes) * time.Minute)
	return &t
}

type fakeFetcher struct {
	mu      sync.Mutex
	results map[string]journey.LegResult
	legs    []journey.Leg
	block   chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, leg journey.Leg, _ time.Time) journey.LegResult {
	f.mu.Lock()
	f.legs = append(f.legs, leg)
	res, ok := f.results[leg.Origin+">"+leg.Destination]
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	if !ok {
		return journey.LegResult{Journey: models.NewEmptyJourney(leg.Origin, leg.Destination), Failed: true, Err: errors.New("no data")}
	}
	return res
}

func live(origin, destination string, dep, arr *time.Time, delay int) journey.LegResult {
	j := models.NewEmptyJourney(origin, destination)
	j.DepartureTime = dep
	j.ArrivalTime = arr
	j.DelayMinutes = delay
	j.Line = "12"
	j.VehicleTypes = []string{"TRAM"}
	j.Legs = []models.Leg{{Origin: origin, Destination: destination, DepartureTime: dep, ArrivalTime: arr, Line: "12"}}
	return journey.LegResult{Journey: j}
}

type fakeDispatcher struct {
	events []notify.Event
}

func (f *fakeDispatcher) Dispatch(events []notify.Event) int {
	f.events = append(f.events, events...)
	return 0
}

type fakeAlerts struct {
	calls int
	err   error
}

func (f *fakeAlerts) Refresh(context.Context) error {
	f.calls++
	return f.err
}

type fakeObserver struct {
	mu       sync.Mutex
	cycles   []string
	outcomes map[string]int
}

func (o *fakeObserver) ObserveCycle(result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cycles = append(o.cycles, result)
}

func (o *fakeObserver) ObserveRoute(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = map[string]int{}
	}
	o.outcomes[outcome]++
}

func singleRoute(origin, destination string) models.RouteConfig {
	return models.RouteConfig{
		Origin:                   origin,
		Destination:              destination,
		Source:                   models.SourceOVapi,
		NumDepartures:            5,
		NotifyLeadMinutes:        30,
		NotifyOnDelay:            true,
		NotifyOnDisruption:       true,
		MinDelayThresholdMinutes: 5,
	}
}

func TestCycle_PublishesAndNotifies(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string]journey.LegResult{
		"A>B": live("A", "B", at(20), at(35), 8),
		"C>D": live("C", "D", at(50), at(60), 0),
	}}
	dispatcher := &fakeDispatcher{}
	alerts := &fakeAlerts{err: errors.New("feed down")}
	observer := &fakeObserver{}
	c := NewCycle(Options{
		Routes:     []models.RouteConfig{singleRoute("A", "B"), singleRoute("C", "D")},
		Fetcher:    fetcher,
		Alerts:     alerts,
		Gate:       notify.NewGate(),
		Dispatcher: dispatcher,
		Observer:   observer,
	})

	assert.Nil(t, c.Store().Load())
	require.NoError(t, c.Run(context.Background(), now))

	snap := c.Store().Load()
	require.NotNil(t, snap)
	assert.Equal(t, now, snap.UpdatedAt)
	require.Len(t, snap.Routes, 2)
	assert.Equal(t, "A_B", snap.Routes[0].Key)
	assert.Equal(t, "Delayed 8 min", snap.Routes[0].State)
	assert.Equal(t, []string{"Line 12 to B"}, snap.Routes[0].Description)
	assert.Empty(t, snap.FailedRoutes)

	view, ok := snap.Route("C_D")
	require.True(t, ok)
	assert.Equal(t, "On Time", view.State)
	_, ok = snap.Route("X_Y")
	assert.False(t, ok)

	assert.Equal(t, 1, alerts.calls)
	var kinds []notify.Kind
	for _, e := range dispatcher.events {
		kinds = append(kinds, e.Kind)
	}
	// C_D departs outside the 30 minute window.
	assert.Equal(t, []notify.Kind{notify.KindDepartureReminder, notify.KindDelayDetected}, kinds)
	assert.Equal(t, []string{"ok"}, observer.cycles)
	assert.Equal(t, 2, observer.outcomes["ok"])
}

func TestCycle_PartialFailure(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string]journey.LegResult{
		"A>B": live("A", "B", at(20), at(35), 0),
	}}
	c := NewCycle(Options{
		Routes:  []models.RouteConfig{singleRoute("A", "B"), singleRoute("C", "D")},
		Fetcher: fetcher,
	})

	require.NoError(t, c.Run(context.Background(), now))
	snap := c.Store().Load()
	assert.Len(t, snap.Routes, 1)
	assert.Equal(t, []string{"C_D"}, snap.FailedRoutes)
}

func TestCycle_AllRoutesFailed(t *testing.T) {
	observer := &fakeObserver{}
	c := NewCycle(Options{
		Routes:   []models.RouteConfig{singleRoute("A", "B"), singleRoute("C", "D")},
		Fetcher:  &fakeFetcher{},
		Observer: observer,
	})

	err := c.Run(context.Background(), now)
	assert.ErrorIs(t, err, ErrAllRoutesFailed)
	assert.Nil(t, c.Store().Load())
	assert.Equal(t, []string{"failed"}, observer.cycles)
	assert.Equal(t, 2, observer.outcomes["failed"])
}

func TestCycle_DegradedCountsAsSuccess(t *testing.T) {
	res := live("A", "B", at(20), at(35), 0)
	res.Degraded = true
	c := NewCycle(Options{
		Routes:  []models.RouteConfig{singleRoute("A", "B")},
		Fetcher: &fakeFetcher{results: map[string]journey.LegResult{"A>B": res}},
	})

	require.NoError(t, c.Run(context.Background(), now))
	assert.True(t, c.Store().Load().Routes[0].Degraded)
}

func TestCycle_CancelledDiscardsResults(t *testing.T) {
	fetcher := &fakeFetcher{
		results: map[string]journey.LegResult{"A>B": live("A", "B", at(20), at(35), 0)},
		block:   make(chan struct{}),
	}
	c := NewCycle(Options{Routes: []models.RouteConfig{singleRoute("A", "B")}, Fetcher: fetcher})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Run(ctx, now)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, c.Store().Load())
}

func TestCycle_ReverseAndDays(t *testing.T) {
	rev := singleRoute("A", "B")
	rev.Reverse = true
	rev.ReturnTime = "17:30"
	weekend := singleRoute("C", "D")
	weekend.Days = []time.Weekday{time.Saturday, time.Sunday}

	fetcher := &fakeFetcher{results: map[string]journey.LegResult{
		"A>B": live("A", "B", at(20), at(35), 0),
		"B>A": live("B", "A", at(25), at(40), 0),
	}}
	c := NewCycle(Options{Routes: []models.RouteConfig{rev, weekend}, Fetcher: fetcher})

	require.NoError(t, c.Run(context.Background(), now))
	snap := c.Store().Load()
	var keys []string
	for _, v := range snap.Routes {
		keys = append(keys, v.Key)
	}
	assert.Equal(t, []string{"A_B", "B_A"}, keys)
	assert.Len(t, fetcher.legs, 2)
}

func TestCycle_NoActiveRoutes(t *testing.T) {
	weekend := singleRoute("C", "D")
	weekend.Days = []time.Weekday{time.Saturday}
	c := NewCycle(Options{Routes: []models.RouteConfig{weekend}, Fetcher: &fakeFetcher{}})

	require.NoError(t, c.Run(context.Background(), now))
	snap := c.Store().Load()
	require.NotNil(t, snap)
	assert.Empty(t, snap.Routes)
}

func TestCycle_MultiLeg(t *testing.T) {
	route := models.RouteConfig{
		Name: "commute",
		Legs: []models.LegConfig{
			{Origin: "A", Destination: "B", TransportType: "tram"},
			{Origin: "ASD", Destination: "UT", TransportType: "train", LineFilter: models.LineFilter{"IC"}},
		},
		MinTransferMinutes: 5,
		NumDepartures:      3,
		NotifyLeadMinutes:  30,
	}
	fetcher := &fakeFetcher{results: map[string]journey.LegResult{
		"A>B":    live("A", "B", at(10), at(25), 0),
		"ASD>UT": live("ASD", "UT", at(20), at(50), 0),
	}}
	dispatcher := &fakeDispatcher{}
	c := NewCycle(Options{
		Routes:     []models.RouteConfig{route},
		Fetcher:    fetcher,
		Gate:       notify.NewGate(),
		Dispatcher: dispatcher,
	})

	require.NoError(t, c.Run(context.Background(), now))

	view, ok := c.Store().Load().Route("commute")
	require.True(t, ok)
	require.NotNil(t, view.Connection)
	assert.Equal(t, connection.StatusMissed, view.Connection.Status)
	assert.True(t, view.Journey.MissedConnection)
	assert.True(t, view.Journey.RerouteRecommended)
	assert.Equal(t, "commute", view.Name)

	require.Len(t, fetcher.legs, 2)
	assert.Equal(t, models.SourceNS, fetcher.legs[1].Source)
	assert.Equal(t, models.LineFilter{"IC"}, fetcher.legs[1].Lines)
	assert.Equal(t, 3, fetcher.legs[1].Limit)

	var kinds []notify.Kind
	for _, e := range dispatcher.events {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, notify.KindMissedConnection)
}

func TestCycle_MultiLegFailsOnlyWhenEveryLegFails(t *testing.T) {
	route := models.RouteConfig{
		Name: "commute",
		Legs: []models.LegConfig{{Origin: "A", Destination: "B"}, {Origin: "B", Destination: "C"}},
	}
	c := NewCycle(Options{
		Routes:  []models.RouteConfig{route},
		Fetcher: &fakeFetcher{results: map[string]journey.LegResult{"A>B": live("A", "B", at(10), at(20), 0)}},
	})

	require.NoError(t, c.Run(context.Background(), now))
	view, ok := c.Store().Load().Route("commute")
	require.True(t, ok)
	assert.Contains(t, view.Connection.Warnings[0], "missing time data")
}

type overlapFetcher struct {
	active atomic.Int32
	peak   atomic.Int32
}

func (f *overlapFetcher) Fetch(_ context.Context, leg journey.Leg, _ time.Time) journey.LegResult {
	n := f.active.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	f.active.Add(-1)
	return live(leg.Origin, leg.Destination, at(10), at(20), 0)
}

func TestCycle_ConcurrentRunsAreSerialized(t *testing.T) {
	fetcher := &overlapFetcher{}
	c := NewCycle(Options{Routes: []models.RouteConfig{singleRoute("1001", "1003")}, Fetcher: fetcher})

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Run(context.Background(), now.Add(time.Duration(i)*time.Minute)))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, fetcher.peak.Load())
	require.NotNil(t, c.Store().Load())
}
