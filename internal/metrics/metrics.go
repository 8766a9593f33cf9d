// Package metrics provides the Prometheus metrics for ovwatch.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Poll cycle metrics
	PollCyclesTotal   *prometheus.CounterVec
	PollCycleDuration prometheus.Histogram
	RoutesEvaluated   *prometheus.CounterVec

	// Feed metrics
	FeedRequestsTotal   *prometheus.CounterVec
	FeedRequestDuration *prometheus.HistogramVec

	NotificationsTotal *prometheus.CounterVec

	// Timetable metrics
	TimetableStops  prometheus.Gauge
	TimetableTrips  prometheus.Gauge
	TripCacheHits   prometheus.Counter
	TripCacheMisses prometheus.Counter
	ActiveAlerts    prometheus.Gauge

	logger *slog.Logger

	// collectorStarted prevents spawning multiple collector goroutines
	collectorStarted atomic.Bool

	// cancel stops the stats collector goroutine
	cancel context.CancelFunc

	wg sync.WaitGroup
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ovwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ovwatch_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		PollCyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ovwatch_poll_cycles_total",
			Help: "Completed poll cycles by result",
		}, []string{"result"}),
		PollCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ovwatch_poll_cycle_duration_seconds",
			Help:    "Wall time of one poll cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}),
		RoutesEvaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ovwatch_routes_evaluated_total",
			Help: "Route evaluations by outcome",
		}, []string{"outcome"}),
		FeedRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ovwatch_feed_requests_total",
			Help: "Outbound feed requests by feed and result",
		}, []string{"feed", "result"}),
		FeedRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ovwatch_feed_request_duration_seconds",
			Help:    "Outbound feed request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"feed"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ovwatch_notifications_total",
			Help: "Published notifications by type and result",
		}, []string{"type", "result"}),
		TimetableStops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ovwatch_timetable_stops",
			Help: "Stops in the loaded timetable",
		}),
		TimetableTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ovwatch_timetable_trips",
			Help: "Trips in the loaded timetable",
		}),
		TripCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ovwatch_trip_cache_hits_total",
			Help: "Trip pair lookups answered from cache",
		}),
		TripCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ovwatch_trip_cache_misses_total",
			Help: "Trip pair lookups computed from the timetable",
		}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ovwatch_active_alerts",
			Help: "Service alerts held from the last refresh",
		}),
		logger: logger,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PollCyclesTotal,
		m.PollCycleDuration,
		m.RoutesEvaluated,
		m.FeedRequestsTotal,
		m.FeedRequestDuration,
		m.NotificationsTotal,
		m.TimetableStops,
		m.TimetableTrips,
		m.TripCacheHits,
		m.TripCacheMisses,
		m.ActiveAlerts,
	)
	return m
}

// ObserveFeedRequest records one outbound feed call.
func (m *Metrics) ObserveFeedRequest(feed, result string, d time.Duration) {
	m.FeedRequestsTotal.WithLabelValues(feed, result).Inc()
	m.FeedRequestDuration.WithLabelValues(feed).Observe(d.Seconds())
}

func (m *Metrics) TripCacheHit() { m.TripCacheHits.Inc() }

func (m *Metrics) TripCacheMiss() { m.TripCacheMisses.Inc() }

func (m *Metrics) NotificationSent(kind string) {
	m.NotificationsTotal.WithLabelValues(kind, "sent").Inc()
}

func (m *Metrics) NotificationFailed(kind string) {
	m.NotificationsTotal.WithLabelValues(kind, "failed").Inc()
}

// ObserveCycle records a finished poll cycle. result is ok, failed or cancelled.
func (m *Metrics) ObserveCycle(result string, d time.Duration) {
	m.PollCyclesTotal.WithLabelValues(result).Inc()
	m.PollCycleDuration.Observe(d.Seconds())
}

// ObserveRoute records one route evaluation. outcome is ok, degraded or failed.
func (m *Metrics) ObserveRoute(outcome string) {
	m.RoutesEvaluated.WithLabelValues(outcome).Inc()
}

// SetTimetable publishes the size of the loaded timetable.
func (m *Metrics) SetTimetable(stops, trips int) {
	m.TimetableStops.Set(float64(stops))
	m.TimetableTrips.Set(float64(trips))
}

// AlertCounter reports how many service alerts are currently held.
type AlertCounter interface {
	Count() int
}

// StartAlertsCollector starts a goroutine that periodically copies the alert
// count into ActiveAlerts. Calling it more than once has no effect.
// Call Shutdown() to stop the collector.
func (m *Metrics) StartAlertsCollector(src AlertCounter, interval time.Duration) {
	if src == nil {
		return
	}
	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Add to WaitGroup BEFORE exposing cancel to avoid race with Shutdown
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil && m.logger != nil {
				m.logger.Error("panic in alerts collector", "error", r)
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		m.ActiveAlerts.Set(float64(src.Count()))
		for {
			select {
			case <-ticker.C:
				m.ActiveAlerts.Set(float64(src.Count()))
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the collector goroutine and waits for it to exit.
// This method is safe to call multiple times.
func (m *Metrics) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
