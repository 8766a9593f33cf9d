// Package timetable indexes a static GTFS archive in memory and answers
// trip containment and scheduled departure queries against it.
//
// Live feeds address stops by their public stop_code while the archive keys
// everything by stop_id. The index keeps a cross-map between the two built
// once at load time; a code with no mapping is treated as an id.
package timetable

import (
	"sort"
	"time"

	"ovwatch.transit.nl/internal/models"
)

// Stop is a row of stops.txt.
type Stop struct {
	ID        string
	Code      string
	Name      string
	Latitude  float64
	Longitude float64
}

// Route is a row of routes.txt.
type Route struct {
	ID        string
	ShortName string
	LongName  string
	Type      int
}

// StopTime is one call of a trip at a stop. Times are GTFS HH:MM:SS and may
// exceed 24:00:00 for service running past midnight.
type StopTime struct {
	StopID    string
	Sequence  int
	Arrival   string
	Departure string
}

// Trip is a row of trips.txt with its calls ordered by sequence.
type Trip struct {
	ID        string
	RouteID   string
	ServiceID string
	Headsign  string
	StopTimes []StopTime
}

// ScheduledDeparture is one result of ScheduledDepartures.
type ScheduledDeparture struct {
	TripID         string
	RouteID        string
	RouteShortName string
	RouteType      int
	Headsign       string
	StopID         string
	ArrivalTime    string
	DepartureTime  string
	Sequence       int
}

// Stats summarizes what was loaded.
type Stats struct {
	Stops     int
	Routes    int
	Trips     int
	StopTimes int
	Services  int
}

type stopCall struct {
	trip *Trip
	call int
}

// Index is immutable once built and safe for concurrent readers.
type Index struct {
	stops     map[string]Stop
	codeToIDs map[string][]string
	routes    map[string]Route
	trips     map[string]*Trip
	// calendar maps service_id to YYYYMMDD to active. Only explicit additions
	// are active; removals and missing dates are inactive.
	calendar map[string]map[string]bool
	byStop   map[string][]stopCall

	stopTimes int
}

// Empty returns an index that answers every query with no results.
func Empty() *Index {
	return &Index{
		stops:     map[string]Stop{},
		codeToIDs: map[string][]string{},
		routes:    map[string]Route{},
		trips:     map[string]*Trip{},
		calendar:  map[string]map[string]bool{},
		byStop:    map[string][]stopCall{},
	}
}

// Loaded reports whether the index holds any trips.
func (idx *Index) Loaded() bool {
	return len(idx.trips) > 0
}

// Stats returns row counts.
func (idx *Index) Stats() Stats {
	return Stats{
		Stops:     len(idx.stops),
		Routes:    len(idx.routes),
		Trips:     len(idx.trips),
		StopTimes: idx.stopTimes,
		Services:  len(idx.calendar),
	}
}

// StopIDs maps a public stop code to internal stop ids. Unknown codes map to
// themselves.
func (idx *Index) StopIDs(code string) []string {
	if ids, ok := idx.codeToIDs[code]; ok {
		return ids
	}
	return []string{code}
}

// Stop returns the stop with the given internal id.
func (idx *Index) Stop(id string) (Stop, bool) {
	s, ok := idx.stops[id]
	return s, ok
}

// Trip returns the trip with the given id.
func (idx *Index) Trip(id string) (*Trip, bool) {
	t, ok := idx.trips[id]
	return t, ok
}

// TripsBetween returns, sorted, the trips that call at origin strictly before
// they call at destination. Identical codes yield no trips.
func (idx *Index) TripsBetween(origin, destination string) []string {
	if origin == destination {
		return nil
	}
	destIDs := toSet(idx.StopIDs(destination))

	seen := map[string]struct{}{}
	var out []string
	for _, originID := range idx.StopIDs(origin) {
		for _, sc := range idx.byStop[originID] {
			if _, dup := seen[sc.trip.ID]; dup {
				continue
			}
			originSeq := sc.trip.StopTimes[sc.call].Sequence
			for _, st := range sc.trip.StopTimes[sc.call+1:] {
				if _, ok := destIDs[st.StopID]; ok && st.Sequence > originSeq {
					seen[sc.trip.ID] = struct{}{}
					out = append(out, sc.trip.ID)
					break
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

// TripIDsThrough lists, sorted and deduplicated, the trips calling at a stop code.
func (idx *Index) TripIDsThrough(code string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, id := range idx.StopIDs(code) {
		for _, sc := range idx.byStop[id] {
			if _, dup := seen[sc.trip.ID]; !dup {
				seen[sc.trip.ID] = struct{}{}
				out = append(out, sc.trip.ID)
			}
		}
	}
	sort.Strings(out)
	return out
}

// ArrivalAt returns the scheduled arrival of trip at a stop code.
func (idx *Index) ArrivalAt(tripID, code string) (string, bool) {
	trip, ok := idx.trips[tripID]
	if !ok {
		return "", false
	}
	ids := toSet(idx.StopIDs(code))
	for _, st := range trip.StopTimes {
		if _, ok := ids[st.StopID]; ok {
			if st.Arrival != "" {
				return st.Arrival, true
			}
			return st.Departure, st.Departure != ""
		}
	}
	return "", false
}

// ActiveOn reports whether service runs on date according to calendar_dates.
func (idx *Index) ActiveOn(serviceID string, date time.Time) bool {
	return idx.calendar[serviceID][date.Format("20060102")]
}

// ScheduledDepartures lists departures from a stop code on date whose
// departure time lies in [start, end], compared lexically as HH:MM:SS. An
// empty start or end leaves that side open. Results are ordered by departure
// time and capped at limit when limit is positive.
func (idx *Index) ScheduledDepartures(code string, date time.Time, start, end string, lines models.LineFilter, limit int) []ScheduledDeparture {
	var out []ScheduledDeparture
	for _, id := range idx.StopIDs(code) {
		for _, sc := range idx.byStop[id] {
			st := sc.trip.StopTimes[sc.call]
			if st.Departure == "" {
				continue
			}
			if (start != "" && st.Departure < start) || (end != "" && st.Departure > end) {
				continue
			}
			if !idx.ActiveOn(sc.trip.ServiceID, date) {
				continue
			}
			route := idx.routes[sc.trip.RouteID]
			if !lines.Accepts(route.ShortName) {
				continue
			}
			out = append(out, ScheduledDeparture{
				TripID:         sc.trip.ID,
				RouteID:        sc.trip.RouteID,
				RouteShortName: route.ShortName,
				RouteType:      route.Type,
				Headsign:       sc.trip.Headsign,
				StopID:         st.StopID,
				ArrivalTime:    st.Arrival,
				DepartureTime:  st.Departure,
				Sequence:       st.Sequence,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DepartureTime != out[j].DepartureTime {
			return out[i].DepartureTime < out[j].DepartureTime
		}
		return out[i].TripID < out[j].TripID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
