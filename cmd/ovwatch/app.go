package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"ovwatch.transit.nl/internal/app"
	"ovwatch.transit.nl/internal/appconf"
	"ovwatch.transit.nl/internal/clock"
	"ovwatch.transit.nl/internal/feeds"
	"ovwatch.transit.nl/internal/journey"
	"ovwatch.transit.nl/internal/logging"
	"ovwatch.transit.nl/internal/metrics"
	"ovwatch.transit.nl/internal/models"
	"ovwatch.transit.nl/internal/notify"
	"ovwatch.transit.nl/internal/poller"
	"ovwatch.transit.nl/internal/restapi"
	"ovwatch.transit.nl/internal/timetable"
)

const (
	cycleTimeout       = 15 * time.Second
	tripCacheSize      = 1024
	tripCacheTTL       = time.Hour
	alertsMetricPeriod = 30 * time.Second
)

// ParseAPIKeys splits a comma separated key list. Empty input yields no keys.
func ParseAPIKeys(s string) []string {
	if s == "" {
		return []string{}
	}
	keys := strings.Split(s, ",")
	for i := range keys {
		keys[i] = strings.TrimSpace(keys[i])
	}
	return keys
}

func newLogger(cfg appconf.Config) *slog.Logger {
	level := logging.ParseLevel(cfg.LogLevel)
	if cfg.LogFormat == "text" {
		return logging.NewTextLogger(os.Stdout, level)
	}
	return logging.NewStructuredLogger(os.Stdout, level)
}

// BuildApplication wires every component from cfg. It loads the timetable
// synchronously; a bad archive is logged and the service runs real-time only.
func BuildApplication(cfg appconf.Config) (*app.Application, error) {
	logger := newLogger(cfg)
	loc := clock.FeedLocation()
	m := metrics.NewWithLogger(logger)

	idx := timetable.Empty()
	if cfg.GTFSPath != "" {
		loaded, err := timetable.Load(cfg.GTFSPath)
		idx = loaded
		if err != nil {
			logging.LogError(logger, "failed to load timetable, continuing real-time only", err,
				slog.String("path", cfg.GTFSPath))
		} else {
			stats := idx.Stats()
			logging.LogOperation(logger, "timetable_loaded",
				slog.String("path", cfg.GTFSPath),
				slog.Int("stops", stats.Stops),
				slog.Int("trips", stats.Trips),
				slog.Int("stop_times", stats.StopTimes))
		}
	} else {
		logging.LogWarn(logger, "no timetable configured, trip matching and schedule fallback disabled", nil)
	}
	tt := timetable.NewCached(idx, tripCacheSize, tripCacheTTL, m)
	stats := idx.Stats()
	m.SetTimetable(stats.Stops, stats.Trips)

	client := feeds.NewClient(feeds.ClientOptions{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Observer:          m,
	})
	ovapi := feeds.NewOVapi(cfg.OVapiBaseURL, client, nil, loc)
	ns := feeds.NewNS(cfg.NSBaseURL, cfg.NSAPIKey, client, loc)
	if !ns.Enabled() {
		logging.LogWarn(logger, "NS_API_KEY not set, train departures disabled", nil)
	}

	svcOpts := journey.ServiceOptions{
		Sources: map[models.FeedSource]feeds.DepartureSource{
			models.SourceOVapi: ovapi,
			models.SourceNS:    ns,
		},
		Index:            tt,
		Location:         loc,
		ScheduleFallback: cfg.ScheduleFallback,
		Logger:           logger,
	}
	cycleOpts := poller.Options{
		Routes:      cfg.Routes,
		Observer:    m,
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	}

	var alerts *feeds.Alerts
	if cfg.AlertsURL != "" {
		alerts = feeds.NewAlerts(cfg.AlertsURL, client)
		svcOpts.Alerts = alerts
		cycleOpts.Alerts = alerts
	}

	var natsConn *notify.NATS
	var pub notify.Publisher = notify.Discard{}
	if cfg.NATSURL != "" {
		conn, err := notify.ConnectNATS(cfg.NATSURL, "ovwatch", logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		natsConn = conn
		pub = conn
	} else {
		logging.LogWarn(logger, "NATS_URL not set, notifications are discarded", nil)
	}

	svc := journey.NewService(svcOpts)
	gate := notify.NewGate()
	dispatcher := notify.NewDispatcher(pub, m, logger)

	cycleOpts.Fetcher = svc
	cycleOpts.Gate = gate
	cycleOpts.Dispatcher = dispatcher
	cycle := poller.NewCycle(cycleOpts)

	return &app.Application{
		Config:     cfg,
		Logger:     logger,
		Clock:      clock.InLocation(clock.RealClock{}, loc),
		Location:   loc,
		Metrics:    m,
		Timetable:  tt,
		OVapi:      ovapi,
		NS:         ns,
		Alerts:     alerts,
		Journeys:   svc,
		Gate:       gate,
		NATS:       natsConn,
		Dispatcher: dispatcher,
		Cycle:      cycle,
		Store:      cycle.Store(),
	}, nil
}

// CreateServer builds the HTTP server for coreApp.
func CreateServer(coreApp *app.Application, cfg appconf.Config) (*http.Server, *restapi.RestAPI) {
	api := restapi.NewRestAPI(coreApp)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.Handler(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(coreApp.Logger.Handler(), slog.LevelError),
	}
	return srv, api
}

// newCycleBackOff paces retries after a cycle in which every route failed.
func newCycleBackOff(period time.Duration) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     10 * time.Second,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         max(10*period, time.Minute),
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// pollLoop runs a cycle immediately and then every PollInterval until ctx
// ends. After a cycle in which every route failed it waits for the backoff
// instead, keeping the previous snapshot.
func pollLoop(ctx context.Context, coreApp *app.Application) {
	period := coreApp.Config.PollInterval
	if period <= 0 {
		period = appconf.DefaultPollInterval
	}
	b := newCycleBackOff(period)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		cycleCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
		err := coreApp.Cycle.Run(cycleCtx, coreApp.Clock.Now())
		cancel()

		wait := period
		switch {
		case err == nil:
			b.Reset()
		case errors.Is(err, poller.ErrAllRoutesFailed):
			wait = b.NextBackOff()
			logging.LogWarn(coreApp.Logger, "backing off after failed poll cycle", err,
				slog.Duration("retry_in", wait))
		case ctx.Err() != nil:
			return
		default:
			logging.LogWarn(coreApp.Logger, "poll cycle did not complete", err)
		}
		timer.Reset(wait)
	}
}

// Run serves HTTP and polls until ctx is cancelled, then shuts everything
// down.
func Run(ctx context.Context, srv *http.Server, coreApp *app.Application, api *restapi.RestAPI) error {
	logger := coreApp.Logger
	if coreApp.Alerts != nil {
		coreApp.Metrics.StartAlertsCollector(coreApp.Alerts, alertsMetricPeriod)
	}

	pollCtx, stopPolling := context.WithCancel(ctx)
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		pollLoop(pollCtx, coreApp)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logging.LogOperation(logger, "server_starting",
			slog.String("addr", srv.Addr),
			slog.String("env", coreApp.Config.Env.String()),
			slog.Int("routes", len(coreApp.Config.Routes)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("server failed: %w", err)
		}
	}

	logging.LogOperation(logger, "server_shutting_down")
	stopPolling()
	<-pollDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, "server shutdown failed", err)
		if runErr == nil {
			runErr = err
		}
	}
	api.Shutdown()
	if err := coreApp.NATS.Close(); err != nil {
		logging.LogError(logger, "nats close failed", err)
	}
	coreApp.Metrics.Shutdown()

	logging.LogOperation(logger, "server_stopped")
	return runErr
}
