package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"ovwatch.transit.nl/internal/models"
)

// Cooldown is the minimum spacing between two firings of one kind on one route.
const Cooldown = 10 * time.Minute

// slot groups kinds that share a cooldown.
type slot string

const (
	slotDelay      slot = "delay"
	slotDisruption slot = "disruption"
	slotReroute    slot = "reroute"
)

type routeState struct {
	mu   sync.Mutex
	last map[slot]time.Time
}

// Gate turns journeys into events. Cooldown state belongs to the gate, so
// separate gates do not interfere.
type Gate struct {
	mu     sync.RWMutex
	routes map[string]*routeState
	newID  func() string
}

func NewGate() *Gate {
	return &Gate{
		routes: make(map[string]*routeState),
		newID:  func() string { return uuid.NewString() },
	}
}

func (g *Gate) state(key string) *routeState {
	g.mu.RLock()
	st, ok := g.routes[key]
	g.mu.RUnlock()
	if ok {
		return st
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok = g.routes[key]; ok {
		return st
	}
	st = &routeState{last: make(map[slot]time.Time)}
	g.routes[key] = st
	return st
}

// allow reports whether s may fire at now and records the firing if so.
// It must be called with st.mu held.
func (st *routeState) allow(s slot, now time.Time) bool {
	if last, ok := st.last[s]; ok && now.Sub(last) < Cooldown {
		return false
	}
	st.last[s] = now
	return true
}

// Evaluate returns the events route's journey triggers at now. Nothing fires
// unless the departure lies in (now, now+lead].
func (g *Gate) Evaluate(route models.RouteConfig, key string, j models.Journey, now time.Time) []Event {
	if j.DepartureTime == nil {
		return nil
	}
	until := j.DepartureTime.Sub(now)
	lead := time.Duration(route.NotifyLeadMinutes) * time.Minute
	if until <= 0 || until > lead {
		return nil
	}

	origin, destination := route.Origin, route.Destination
	if origin == "" {
		origin = j.Origin
	}
	if destination == "" {
		destination = j.Destination
	}
	departure := j.DepartureTime.Format(time.RFC3339)

	st := g.state(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	events := []Event{g.event(KindDepartureReminder, key, now, route, map[string]any{
		"origin":                  origin,
		"destination":             destination,
		"minutes_until_departure": int(until / time.Minute),
		"departure_time":          departure,
		"on_time":                 j.OnTime(),
		"delay_minutes":           j.DelayMinutes,
	})}

	if route.NotifyOnDelay && j.DelayMinutes >= route.MinDelayThresholdMinutes && st.allow(slotDelay, now) {
		ev := g.event(KindDelayDetected, key, now, route, map[string]any{
			"origin":         origin,
			"destination":    destination,
			"delay_minutes":  j.DelayMinutes,
			"departure_time": departure,
			"platform":       j.Platform,
			"vehicle_types":  j.VehicleTypes,
		})
		ev.message = delayMessage(origin, destination, j.DepartureTime, j.DelayMinutes, j.Platform, j.VehicleTypes)
		events = append(events, ev)
	}

	if route.NotifyOnDisruption && j.DelayReason != "" && st.allow(slotDisruption, now) {
		ev := g.event(KindDisruptionDetected, key, now, route, map[string]any{
			"origin":         origin,
			"destination":    destination,
			"reason":         j.DelayReason,
			"delay_minutes":  j.DelayMinutes,
			"departure_time": departure,
		})
		ev.message = disruptionMessage(origin, destination, j.DepartureTime, j.DelayReason)
		events = append(events, ev)
	}

	kind := Kind("")
	switch {
	case j.MissedConnection:
		kind = KindMissedConnection
	case j.RerouteRecommended:
		kind = KindRerouteSuggested
	}
	if kind != "" && st.allow(slotReroute, now) {
		events = append(events, g.event(kind, key, now, route, map[string]any{
			"origin":        origin,
			"destination":   destination,
			"delay_minutes": j.DelayMinutes,
			"alternatives":  alternatives(j.Alternatives),
		}))
	}
	return events
}

func (g *Gate) event(kind Kind, key string, now time.Time, route models.RouteConfig, data map[string]any) Event {
	return Event{
		ID:       g.newID(),
		Kind:     kind,
		RouteKey: key,
		At:       now,
		Data:     data,
		Targets:  route.NotifyServices,
	}
}

func alternatives(alts []models.Journey) []map[string]any {
	out := make([]map[string]any, 0, len(alts))
	for _, a := range alts {
		entry := map[string]any{
			"line":          a.Line,
			"delay_minutes": a.DelayMinutes,
		}
		if a.DepartureTime != nil {
			entry["departure_time"] = a.DepartureTime.Format(time.RFC3339)
		}
		if a.ArrivalTime != nil {
			entry["arrival_time"] = a.ArrivalTime.Format(time.RFC3339)
		}
		out = append(out, entry)
	}
	return out
}
