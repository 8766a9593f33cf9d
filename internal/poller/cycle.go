// Package poller runs the periodic evaluation of every configured route.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"ovwatch.transit.nl/internal/connection"
	"ovwatch.transit.nl/internal/journey"
	"ovwatch.transit.nl/internal/logging"
	"ovwatch.transit.nl/internal/models"
	"ovwatch.transit.nl/internal/notify"
)

// ErrAllRoutesFailed is returned when no route produced a result.
var ErrAllRoutesFailed = errors.New("all routes failed")

// LegFetcher builds the journey for a single leg. *journey.Service implements it.
type LegFetcher interface {
	Fetch(ctx context.Context, leg journey.Leg, now time.Time) journey.LegResult
}

// Refresher reloads shared data, such as service alerts, once per cycle.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Dispatcher delivers fired events. *notify.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(events []notify.Event) int
}

// Observer receives cycle and route outcomes.
type Observer interface {
	ObserveCycle(result string, d time.Duration)
	ObserveRoute(outcome string)
}

type Options struct {
	Routes      []models.RouteConfig
	Fetcher     LegFetcher
	Alerts      Refresher
	Gate        *notify.Gate
	Dispatcher  Dispatcher
	Store       *Store
	Observer    Observer
	Concurrency int
	Logger      *slog.Logger
}

// Cycle evaluates all routes once per Run. Concurrent Run calls are
// serialized so snapshots are published in call order.
type Cycle struct {
	mu sync.Mutex

	routes      []models.RouteConfig
	fetcher     LegFetcher
	alerts      Refresher
	gate        *notify.Gate
	dispatcher  Dispatcher
	store       *Store
	observer    Observer
	concurrency int
	logger      *slog.Logger
}

func NewCycle(opts Options) *Cycle {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := opts.Store
	if store == nil {
		store = NewStore()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Cycle{
		routes:      opts.Routes,
		fetcher:     opts.Fetcher,
		alerts:      opts.Alerts,
		gate:        opts.Gate,
		dispatcher:  opts.Dispatcher,
		store:       store,
		observer:    opts.Observer,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "poller")),
	}
}

// Store returns the snapshot store the cycle publishes into.
func (c *Cycle) Store() *Store { return c.store }

type job struct {
	key   string
	route models.RouteConfig
}

type outcome struct {
	view   RouteView
	failed bool
	err    error
}

// jobs expands the routes active at now, adding the reverse direction of
// routes that ask for it.
func (c *Cycle) jobs(now time.Time) []job {
	var out []job
	for _, r := range c.routes {
		if !r.ActiveOn(now) {
			continue
		}
		out = append(out, job{key: r.Key(), route: r})
		if r.Reverse && !r.IsMultiLeg() {
			rev := r.Reversed()
			out = append(out, job{key: rev.Key(), route: rev})
		}
	}
	return out
}

// Run evaluates every active route at now, publishes a snapshot and
// dispatches the events it triggers. A cancelled ctx discards the cycle.
func (c *Cycle) Run(ctx context.Context, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	err := c.run(ctx, now)
	if c.observer != nil {
		result := "ok"
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			result = "cancelled"
		case err != nil:
			result = "failed"
		}
		c.observer.ObserveCycle(result, time.Since(start))
	}
	return err
}

func (c *Cycle) run(ctx context.Context, now time.Time) error {
	if c.alerts != nil {
		if err := c.alerts.Refresh(ctx); err != nil {
			logging.LogWarn(c.logger, "service alerts refresh failed, keeping previous set", err)
		}
	}

	jobs := c.jobs(now)
	results := make([]outcome, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, jb := range jobs {
		g.Go(func() error {
			results[i] = c.evaluate(gctx, jb, now)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		logging.LogWarn(c.logger, "poll cycle cancelled, discarding results", err)
		return err
	}

	var views []RouteView
	var failed []string
	for i, res := range results {
		if res.failed {
			failed = append(failed, jobs[i].key)
			logging.LogWarn(c.logger, "route evaluation failed", res.err, slog.String("route", jobs[i].key))
			continue
		}
		views = append(views, res.view)
	}
	if len(jobs) > 0 && len(views) == 0 {
		logging.LogError(c.logger, "poll cycle failed", ErrAllRoutesFailed, slog.Int("routes", len(jobs)))
		return ErrAllRoutesFailed
	}

	snap := newSnapshot(now, views, failed)
	c.store.publish(snap)

	sent := 0
	if c.gate != nil {
		var events []notify.Event
		for i, res := range results {
			if res.failed {
				continue
			}
			events = append(events, c.gate.Evaluate(jobs[i].route, jobs[i].key, res.view.Journey, now)...)
		}
		sent = len(events)
		if c.dispatcher != nil && len(events) > 0 {
			if n := c.dispatcher.Dispatch(events); n > 0 {
				logging.LogWarn(c.logger, "some notifications were not delivered", nil, slog.Int("failed", n))
			}
		}
	}

	logging.LogOperation(c.logger, "poll_cycle_completed",
		slog.Int("routes", len(views)),
		slog.Int("failed_routes", len(failed)),
		slog.Int("events", sent))
	return nil
}

func (c *Cycle) observeRoute(res outcome) {
	if c.observer == nil {
		return
	}
	switch {
	case res.failed:
		c.observer.ObserveRoute("failed")
	case res.view.Degraded:
		c.observer.ObserveRoute("degraded")
	default:
		c.observer.ObserveRoute("ok")
	}
}

func (c *Cycle) evaluate(ctx context.Context, jb job, now time.Time) outcome {
	var res outcome
	if jb.route.IsMultiLeg() {
		res = c.evaluateConnection(ctx, jb, now)
	} else {
		res = c.evaluateSingle(ctx, jb, now)
	}
	res.view.Key = jb.key
	res.view.Name = jb.route.Name
	res.view.State = res.view.Journey.State()
	res.view.Description = res.view.Journey.Description()
	c.observeRoute(res)
	return res
}

func (c *Cycle) evaluateSingle(ctx context.Context, jb job, now time.Time) outcome {
	r := jb.route
	source := r.Source
	if source == "" {
		source = models.SourceOVapi
	}
	lr := c.fetcher.Fetch(ctx, journey.Leg{
		Origin:      r.Origin,
		Destination: r.Destination,
		Source:      source,
		Lines:       r.LineFilter,
		Limit:       r.NumDepartures,
		StopArea:    r.StopArea,
	}, now)
	return outcome{
		view:   RouteView{Journey: lr.Journey, Degraded: lr.Degraded},
		failed: lr.Failed,
		err:    lr.Err,
	}
}

// evaluateConnection fetches the legs in order and analyses the transfers
// between their first departures.
func (c *Cycle) evaluateConnection(ctx context.Context, jb job, now time.Time) outcome {
	r := jb.route
	legs := make([]models.Journey, 0, len(r.Legs))
	failures := 0
	degraded := false
	var lastErr error
	for _, leg := range r.Legs {
		if ctx.Err() != nil {
			return outcome{failed: true, err: ctx.Err()}
		}
		lr := c.fetcher.Fetch(ctx, journey.Leg{
			Origin:      leg.Origin,
			Destination: leg.Destination,
			Source:      leg.Source(),
			Lines:       leg.LineFilter,
			Limit:       r.NumDepartures,
		}, now)
		if lr.Failed {
			failures++
			lastErr = lr.Err
		}
		degraded = degraded || lr.Degraded
		legs = append(legs, lr.Journey)
	}

	report := connection.Analyze(legs, r.MinTransferMinutes)
	return outcome{
		view: RouteView{
			Journey:    journey.Combine(legs, report),
			Connection: &report,
			Degraded:   degraded,
		},
		failed: failures == len(legs),
		err:    lastErr,
	}
}
