package journey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ovwatch.transit.nl/internal/feeds"
	"ovwatch.transit.nl/internal/logging"
	"ovwatch.transit.nl/internal/models"
	"ovwatch.transit.nl/internal/timetable"
)

// ErrNoSource is returned when a leg names a feed that is not configured.
var ErrNoSource = errors.New("no departure source for feed")

// TripIndex is the part of the timetable the service consults.
type TripIndex interface {
	Loaded() bool
	StopIDs(code string) []string
	TripsBetween(origin, destination string) []string
	ArrivalAt(tripID, code string) (string, bool)
	ScheduledDepartures(code string, date time.Time, start, end string, lines models.LineFilter, limit int) []timetable.ScheduledDeparture
}

// ReasonSource supplies a disruption text for stops, typically service alerts.
type ReasonSource interface {
	ReasonFor(stopIDs []string, now time.Time) string
}

// Leg describes one fetch: departures from Origin toward Destination.
type Leg struct {
	Origin      string
	Destination string
	Source      models.FeedSource
	Lines       models.LineFilter
	Limit       int
	StopArea    bool
}

// LegResult is the journey for a leg. Failed is set when the live feed
// returned no data and no scheduled fallback was available; Err then holds
// the adapter's error.
type LegResult struct {
	Journey  models.Journey
	Failed   bool
	Degraded bool
	Err      error
}

// ServiceOptions wires the collaborators of a Service. Index and Alerts may be nil.
type ServiceOptions struct {
	Sources          map[models.FeedSource]feeds.DepartureSource
	Index            TripIndex
	Alerts           ReasonSource
	Location         *time.Location
	ScheduleFallback bool
	Logger           *slog.Logger
}

// Service fetches and assembles journeys. It is safe for concurrent use as
// long as its collaborators are.
type Service struct {
	sources          map[models.FeedSource]feeds.DepartureSource
	index            TripIndex
	alerts           ReasonSource
	location         *time.Location
	scheduleFallback bool
	logger           *slog.Logger
}

func NewService(opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		sources:          opts.Sources,
		index:            opts.Index,
		alerts:           opts.Alerts,
		location:         loc,
		scheduleFallback: opts.ScheduleFallback,
		logger:           logger.With(slog.String("component", "journey_service")),
	}
}

func (s *Service) indexLoaded() bool {
	return s.index != nil && s.index.Loaded()
}

// Fetch builds the journey for one leg at now.
func (s *Service) Fetch(ctx context.Context, leg Leg, now time.Time) LegResult {
	src, ok := s.sources[leg.Source]
	if !ok || src == nil {
		err := fmt.Errorf("%w %q", ErrNoSource, leg.Source)
		return LegResult{Journey: models.NewEmptyJourney(leg.Origin, leg.Destination), Failed: true, Err: err}
	}

	q := feeds.Query{
		StopCode:    leg.Origin,
		Destination: leg.Destination,
		Lines:       leg.Lines,
		Limit:       leg.Limit,
		StopArea:    leg.StopArea,
	}
	// An empty trip set means the pair is unknown to the timetable; filtering
	// on it would hide every live departure.
	if s.indexLoaded() && leg.Source == models.SourceOVapi && leg.Destination != "" {
		if trips := s.index.TripsBetween(leg.Origin, leg.Destination); len(trips) > 0 {
			q.ValidTrips = trips
		}
	}

	res := src.FetchDepartures(ctx, q)
	out := LegResult{}
	departures := res.Departures
	if res.NoData {
		out.Err = res.Err
		if s.scheduleFallback && s.indexLoaded() && ctx.Err() == nil {
			departures = s.scheduled(leg, now)
		}
		if len(departures) == 0 {
			out.Failed = true
		} else {
			out.Degraded = true
			logging.LogWarn(s.logger, "live feed unavailable, using timetable", res.Err,
				slog.String("origin", leg.Origin), slog.String("feed", src.Name()))
		}
	}

	s.estimateArrivals(departures, leg.Destination)

	var reason string
	if s.alerts != nil {
		ids := []string{leg.Origin}
		if s.index != nil {
			ids = s.index.StopIDs(leg.Origin)
		}
		reason = s.alerts.ReasonFor(ids, now)
	}

	origin := res.Stop.Name
	if origin == "" {
		origin = leg.Origin
	}
	out.Journey = Build(departures, now, Options{
		Origin:      origin,
		Destination: leg.Destination,
		Limit:       leg.Limit,
		DelayReason: reason,
	})
	return out
}

// estimateArrivals replaces the feed's arrival time, which is the arrival
// at the origin stop, with the expected arrival at destination: the
// scheduled arrival of the joined static trip shifted by the current delay.
// Departures that cannot be joined are left without an arrival.
func (s *Service) estimateArrivals(departures []models.Departure, destination string) {
	if destination == "" {
		return
	}
	for i := range departures {
		departures[i].ExpectedArrival = s.arrivalAt(departures[i], destination)
	}
}

func (s *Service) arrivalAt(d models.Departure, destination string) *time.Time {
	if !s.indexLoaded() || d.MatchedTripID == "" {
		return nil
	}
	scheduled, ok := s.index.ArrivalAt(d.MatchedTripID, destination)
	if !ok {
		return nil
	}
	anchor := d.TargetDeparture
	if anchor == nil {
		anchor = d.ExpectedDeparture
	}
	if anchor == nil {
		return nil
	}
	arrival, err := timetable.ServiceInstant(anchor.In(s.location), scheduled)
	if err != nil {
		return nil
	}
	// GTFS times past 24:00 belong to the previous service day.
	switch {
	case arrival.Before(*anchor):
		arrival = arrival.AddDate(0, 0, 1)
	case arrival.Sub(*anchor) > 12*time.Hour:
		arrival = arrival.AddDate(0, 0, -1)
	}
	arrival = arrival.Add(time.Duration(d.DelayMinutes) * time.Minute)
	return &arrival
}

var routeTypeModes = map[int]string{0: "TRAM", 1: "METRO", 2: "TRAIN", 3: "BUS", 4: "FERRY"}

// scheduled converts timetable departures from now onward into departures
// with no delay information.
func (s *Service) scheduled(leg Leg, now time.Time) []models.Departure {
	local := now.In(s.location)
	from := local.Format("15:04:05")
	var allowed map[string]struct{}
	if leg.Destination != "" {
		if trips := s.index.TripsBetween(leg.Origin, leg.Destination); len(trips) > 0 {
			allowed = make(map[string]struct{}, len(trips))
			for _, id := range trips {
				allowed[id] = struct{}{}
			}
		}
	}

	rows := s.index.ScheduledDepartures(leg.Origin, local, from, "", leg.Lines, 0)
	out := make([]models.Departure, 0, len(rows))
	for _, row := range rows {
		if allowed != nil {
			if _, ok := allowed[row.TripID]; !ok {
				continue
			}
		}
		dep, err := timetable.ServiceInstant(local, row.DepartureTime)
		if err != nil {
			continue
		}
		mode := routeTypeModes[row.RouteType]
		if mode == "" {
			mode = "BUS"
		}
		out = append(out, models.Departure{
			LineNumber:        row.RouteShortName,
			DestinationName:   row.Headsign,
			TransportMode:     mode,
			ExpectedDeparture: &dep,
			TargetDeparture:   &dep,
			Status:            models.StatusScheduled,
			SourceTripRef:     row.TripID,
			MatchedTripID:     row.TripID,
		})
		if leg.Limit > 0 && len(out) == leg.Limit {
			break
		}
	}
	return out
}
