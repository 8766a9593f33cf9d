package models

import (
	"fmt"
	"time"
)

// Coordinate is one point of a journey's drawn path.
type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Leg is one ridden segment of a journey.
type Leg struct {
	Origin        string     `json:"origin"`
	Destination   string     `json:"destination"`
	DepartureTime *time.Time `json:"departureTime,omitempty"`
	ArrivalTime   *time.Time `json:"arrivalTime,omitempty"`
	Line          string     `json:"line"`
	TransportMode string     `json:"transportMode"`
	DelayMinutes  int        `json:"delayMinutes"`
	Platform      string     `json:"platform,omitempty"`
	// TransferTimeToNext is filled by connection analysis; nil on the last
	// leg or when a time is missing.
	TransferTimeToNext *int `json:"transferTimeToNext,omitempty"`
}

// Journey is the per-route view assembled from departures.
type Journey struct {
	Origin             string              `json:"origin"`
	Destination        string              `json:"destination"`
	DepartureTime      *time.Time          `json:"departureTime,omitempty"`
	ArrivalTime        *time.Time          `json:"arrivalTime,omitempty"`
	DelayMinutes       int                 `json:"delayMinutes"`
	DelayReason        string              `json:"delayReason,omitempty"`
	Line               string              `json:"line,omitempty"`
	Platform           string              `json:"platform,omitempty"`
	VehicleTypes       []string            `json:"vehicleTypes"`
	Legs               []Leg               `json:"legs"`
	UpcomingDepartures []UpcomingDeparture `json:"upcomingDepartures"`
	Alternatives       []Journey           `json:"alternatives"`
	MissedConnection   bool                `json:"missedConnection"`
	RerouteRecommended bool                `json:"rerouteRecommended"`
	Coordinates        []Coordinate        `json:"coordinates"`
	Polyline           string              `json:"polyline,omitempty"`
}

// NewEmptyJourney returns the sentinel journey used when no departure is
// known. Lists are empty, never nil, so consumers need not branch on presence.
func NewEmptyJourney(origin, destination string) Journey {
	return Journey{
		Origin:             origin,
		Destination:        destination,
		VehicleTypes:       []string{},
		Legs:               []Leg{},
		UpcomingDepartures: []UpcomingDeparture{},
		Alternatives:       []Journey{},
		Coordinates:        []Coordinate{},
	}
}

// IsEmpty reports whether j is a sentinel with no departure.
func (j Journey) IsEmpty() bool {
	return j.DepartureTime == nil && len(j.Legs) == 0
}

// OnTime reports whether the journey runs without delay.
func (j Journey) OnTime() bool {
	return j.DelayMinutes <= 0
}

// HasAlternatives reports whether any later departure could be taken instead.
func (j Journey) HasAlternatives() bool {
	return len(j.Alternatives) > 0
}

// MinutesUntilDeparture returns whole minutes from now to departure, clamped at 0.
func (j Journey) MinutesUntilDeparture(now time.Time) int {
	if j.DepartureTime == nil {
		return 0
	}
	m := int(j.DepartureTime.Sub(now) / time.Minute)
	if m < 0 {
		return 0
	}
	return m
}

// Description renders each leg as "Line X to Y".
func (j Journey) Description() []string {
	out := make([]string, 0, len(j.Legs))
	for _, leg := range j.Legs {
		out = append(out, fmt.Sprintf("Line %s to %s", leg.Line, leg.Destination))
	}
	return out
}

// State is the short status line shown for a route.
func (j Journey) State() string {
	switch {
	case j.IsEmpty():
		return "No departures"
	case j.OnTime():
		return "On Time"
	default:
		return fmt.Sprintf("Delayed %d min", j.DelayMinutes)
	}
}
