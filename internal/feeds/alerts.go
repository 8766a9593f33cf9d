package feeds

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/OneBusAway/go-gtfs"
	"ovwatch.transit.nl/internal/logging"
)

// DefaultAlertsURL is the OVapi GTFS-RT service alerts feed.
const DefaultAlertsURL = "https://gtfs.ovapi.nl/nl/alerts.pb"

const alertsFeed = "alerts"

// Alerts keeps the last successfully fetched GTFS-RT service alerts.
type Alerts struct {
	url    string
	client *Client
	logger *slog.Logger

	mu        sync.RWMutex
	alerts    []gtfs.Alert
	fetchedAt time.Time
}

func NewAlerts(url string, client *Client) *Alerts {
	if url == "" {
		url = DefaultAlertsURL
	}
	return &Alerts{
		url:    url,
		client: client,
		logger: slog.Default().With(slog.String("component", "alerts_adapter")),
	}
}

// Refresh downloads and replaces the alert set. On failure the previous set
// is kept and the *TransportError or *ParseError is returned.
func (a *Alerts) Refresh(ctx context.Context) error {
	start := time.Now()
	body, err := a.client.doGet(ctx, alertsFeed, a.url, nil)
	if err != nil {
		a.client.observe(alertsFeed, "transport_error", start)
		return err
	}
	rt, err := gtfs.ParseRealtime(body, &gtfs.ParseRealtimeOptions{})
	if err != nil {
		a.client.observe(alertsFeed, "parse_error", start)
		return &ParseError{Feed: alertsFeed, Field: "body", Err: err}
	}
	a.client.observe(alertsFeed, "ok", start)

	a.mu.Lock()
	a.alerts = rt.Alerts
	a.fetchedAt = start
	a.mu.Unlock()

	logging.LogOperation(a.logger, "service_alerts_refreshed", slog.Int("alerts", len(rt.Alerts)))
	return nil
}

// Set replaces the alert set directly.
func (a *Alerts) Set(alerts []gtfs.Alert, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = alerts
	a.fetchedAt = at
}

// Count returns the number of held alerts.
func (a *Alerts) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.alerts)
}

// ReasonFor returns the text of the first alert active at now that informs
// one of stopIDs, or "" when none applies.
func (a *Alerts) ReasonFor(stopIDs []string, now time.Time) string {
	if len(stopIDs) == 0 {
		return ""
	}
	want := make(map[string]struct{}, len(stopIDs))
	for _, id := range stopIDs {
		want[id] = struct{}{}
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, alert := range a.alerts {
		if !activeAt(alert, now) {
			continue
		}
		for _, entity := range alert.InformedEntities {
			if entity.StopID == nil {
				continue
			}
			if _, ok := want[*entity.StopID]; ok {
				if text := alertText(alert); text != "" {
					return text
				}
			}
		}
	}
	return ""
}

func activeAt(alert gtfs.Alert, now time.Time) bool {
	if len(alert.ActivePeriods) == 0 {
		return true
	}
	for _, p := range alert.ActivePeriods {
		if p.StartsAt != nil && now.Before(*p.StartsAt) {
			continue
		}
		if p.EndsAt != nil && !now.Before(*p.EndsAt) {
			continue
		}
		return true
	}
	return false
}

func alertText(alert gtfs.Alert) string {
	for _, texts := range [][]gtfs.AlertText{alert.Header, alert.Description} {
		for _, t := range texts {
			if s := strings.TrimSpace(t.Text); s != "" {
				return s
			}
		}
	}
	return ""
}
