package app

import (
	"log/slog"
	"time"

	"ovwatch.transit.nl/internal/appconf"
	"ovwatch.transit.nl/internal/clock"
	"ovwatch.transit.nl/internal/feeds"
	"ovwatch.transit.nl/internal/journey"
	"ovwatch.transit.nl/internal/metrics"
	"ovwatch.transit.nl/internal/notify"
	"ovwatch.transit.nl/internal/poller"
	"ovwatch.transit.nl/internal/timetable"
)

// Application holds the dependencies shared by the poll loop and the HTTP
// handlers. Optional parts are nil when not configured: Alerts without an
// alerts URL, NATS without a broker.
type Application struct {
	Config   appconf.Config
	Logger   *slog.Logger
	Clock    clock.Clock
	Location *time.Location
	Metrics  *metrics.Metrics

	Timetable *timetable.Cached
	OVapi     *feeds.OVapi
	NS        *feeds.NS
	Alerts    *feeds.Alerts
	Journeys  *journey.Service

	Gate       *notify.Gate
	NATS       *notify.NATS
	Dispatcher *notify.Dispatcher
	Cycle      *poller.Cycle
	Store      *poller.Store
}

// Ready reports whether at least one poll cycle has been published.
func (app *Application) Ready() bool {
	return app != nil && app.Store != nil && app.Store.Load() != nil
}
