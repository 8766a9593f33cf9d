// Package journey assembles normalized departures into the per-route
// Journey view and decides when a reroute should be suggested.
package journey

import (
	"strings"
	"time"

	"github.com/twpayne/go-polyline"
	"ovwatch.transit.nl/internal/connection"
	"ovwatch.transit.nl/internal/models"
)

// MaxAlternatives caps the departures kept for reroute comparison.
const MaxAlternatives = 4

// Options carries the route context for Build.
type Options struct {
	Origin      string
	Destination string
	// Limit caps UpcomingDepartures. Non-positive keeps every departure.
	Limit int
	// DelayReason is used when the primary departure carries no notes.
	DelayReason string
}

// Build turns departures, already filtered and sorted, into a Journey. It is
// pure: now is only used to express minutes until departure.
func Build(departures []models.Departure, now time.Time, opts Options) models.Journey {
	if len(departures) == 0 {
		return models.NewEmptyJourney(opts.Origin, opts.Destination)
	}

	j := fromDeparture(departures[0], opts)
	if j.DelayReason == "" {
		j.DelayReason = opts.DelayReason
	}

	upcoming := models.Truncate(departures, opts.Limit)
	j.UpcomingDepartures = make([]models.UpcomingDeparture, 0, len(upcoming))
	for _, d := range upcoming {
		j.UpcomingDepartures = append(j.UpcomingDepartures, d.Reduce(now))
	}

	rest := departures[1:]
	if len(rest) > MaxAlternatives {
		rest = rest[:MaxAlternatives]
	}
	for _, d := range rest {
		alt := fromDeparture(d, opts)
		alt.RerouteRecommended = ShouldReroute(alt, nil)
		j.Alternatives = append(j.Alternatives, alt)
	}

	j.RerouteRecommended = ShouldReroute(j, j.Alternatives)
	return j
}

// fromDeparture reduces a single departure to a one-leg Journey.
func fromDeparture(d models.Departure, opts Options) models.Journey {
	origin := d.StopName
	if origin == "" {
		origin = opts.Origin
	}
	destination := opts.Destination
	if destination == "" {
		destination = d.DestinationName
	}

	j := models.NewEmptyJourney(origin, destination)
	j.DepartureTime = d.ExpectedDeparture
	j.ArrivalTime = d.ExpectedArrival
	j.DelayMinutes = d.DelayMinutes
	j.DelayReason = strings.Join(d.Notes, "; ")
	j.Line = d.LineNumber
	j.Platform = d.Platform
	if d.TransportMode != "" {
		j.VehicleTypes = []string{d.TransportMode}
	}
	j.Legs = []models.Leg{{
		Origin:        origin,
		Destination:   d.DestinationName,
		DepartureTime: d.ExpectedDeparture,
		ArrivalTime:   d.ExpectedArrival,
		Line:          d.LineNumber,
		TransportMode: d.TransportMode,
		DelayMinutes:  d.DelayMinutes,
		Platform:      d.Platform,
	}}
	for _, p := range []*models.Position{d.StopPosition, d.VehiclePosition} {
		if p != nil {
			j.Coordinates = append(j.Coordinates, models.Coordinate{Latitude: p.Latitude, Longitude: p.Longitude})
		}
	}
	j.Polyline = encode(j.Coordinates)
	return j
}

// Combine folds the legs of a connection into one journey spanning the
// whole itinerary.
func Combine(legs []models.Journey, report connection.Report) models.Journey {
	if len(legs) == 0 {
		return models.NewEmptyJourney("", "")
	}
	first, last := legs[0], legs[len(legs)-1]
	j := models.NewEmptyJourney(first.Origin, last.Destination)
	j.DepartureTime = first.DepartureTime
	j.ArrivalTime = last.ArrivalTime
	j.Line = first.Line
	j.Platform = first.Platform
	j.UpcomingDepartures = first.UpcomingDepartures
	j.Alternatives = first.Alternatives
	j.Legs = report.Legs
	if j.Legs == nil {
		j.Legs = []models.Leg{}
	}

	seenMode := map[string]bool{}
	for _, leg := range legs {
		if leg.DelayMinutes > j.DelayMinutes {
			j.DelayMinutes = leg.DelayMinutes
		}
		if j.DelayReason == "" {
			j.DelayReason = leg.DelayReason
		}
		for _, mode := range leg.VehicleTypes {
			if !seenMode[mode] {
				seenMode[mode] = true
				j.VehicleTypes = append(j.VehicleTypes, mode)
			}
		}
		j.Coordinates = append(j.Coordinates, leg.Coordinates...)
		if leg.RerouteRecommended {
			j.RerouteRecommended = true
		}
	}
	j.MissedConnection = report.Status == connection.StatusMissed
	if j.MissedConnection {
		j.RerouteRecommended = true
	}
	j.Polyline = encode(j.Coordinates)
	return j
}

func encode(coords []models.Coordinate) string {
	if len(coords) == 0 {
		return ""
	}
	pts := make([][]float64, 0, len(coords))
	for _, c := range coords {
		pts = append(pts, []float64{c.Latitude, c.Longitude})
	}
	return string(polyline.EncodeCoords(pts))
}
