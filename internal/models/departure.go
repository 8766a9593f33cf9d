package models

import (
	"sort"
	"time"
)

// DepartureStatus is the feed-agnostic state of a stop passage.
type DepartureStatus string

const (
	StatusScheduled DepartureStatus = "scheduled"
	StatusPassed    DepartureStatus = "passed"
	StatusCancelled DepartureStatus = "cancelled"
	StatusUnknown   DepartureStatus = "unknown"
)

// Position is a reported latitude/longitude, optionally stamped.
type Position struct {
	Latitude  float64    `json:"lat"`
	Longitude float64    `json:"lon"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Departure is the canonical departure record produced by every feed adapter.
// Optional instants are nil when the feed did not report them.
type Departure struct {
	LineNumber        string          `json:"lineNumber"`
	DestinationName   string          `json:"destinationName"`
	TransportMode     string          `json:"transportMode"`
	StopName          string          `json:"stopName,omitempty"`
	ExpectedDeparture *time.Time      `json:"expectedDeparture,omitempty"`
	ExpectedArrival   *time.Time      `json:"expectedArrival,omitempty"`
	TargetDeparture   *time.Time      `json:"targetDeparture,omitempty"`
	DelayMinutes      int             `json:"delayMinutes"`
	Status            DepartureStatus `json:"status"`
	Platform          string          `json:"platform,omitempty"`
	Notes             []string        `json:"notes,omitempty"`
	StopPosition      *Position       `json:"stopPosition,omitempty"`
	VehiclePosition   *Position       `json:"vehiclePosition,omitempty"`

	// SourceTripRef is the feed's opaque trip token (OVapi JourneyNumber,
	// NS product number). MatchedTripID is the static trip it was joined to,
	// if any.
	SourceTripRef string `json:"-"`
	MatchedTripID string `json:"-"`
}

// DelayMinutes returns expected minus target in whole minutes, truncated
// toward zero. Either instant missing yields 0.
func DelayMinutes(expected, target *time.Time) int {
	if expected == nil || target == nil {
		return 0
	}
	return int(expected.Sub(*target) / time.Minute)
}

// SortByExpectedDeparture orders departures ascending by expected departure.
// Departures without one sort last; the sort is stable so feed order breaks ties.
func SortByExpectedDeparture(departures []Departure) {
	sort.SliceStable(departures, func(i, j int) bool {
		a, b := departures[i].ExpectedDeparture, departures[j].ExpectedDeparture
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
}

// Truncate caps departures at limit. A non-positive limit keeps everything.
func Truncate(departures []Departure, limit int) []Departure {
	if limit > 0 && len(departures) > limit {
		return departures[:limit]
	}
	return departures
}

// UpcomingDeparture is the reduced shape exposed to consumers; it carries
// no trip references.
type UpcomingDeparture struct {
	Line          string          `json:"line"`
	Destination   string          `json:"destination"`
	TransportMode string          `json:"transportMode"`
	DepartureTime *time.Time      `json:"departureTime,omitempty"`
	PlannedTime   *time.Time      `json:"plannedTime,omitempty"`
	DelayMinutes  int             `json:"delayMinutes"`
	Platform      string          `json:"platform,omitempty"`
	Status        DepartureStatus `json:"status"`
	// MinutesUntilDeparture is relative to the instant the view was built, clamped at 0.
	MinutesUntilDeparture int `json:"minutesUntilDeparture"`
}

// Reduce converts d to its consumer-facing shape as seen at now.
func (d Departure) Reduce(now time.Time) UpcomingDeparture {
	minutes := 0
	if d.ExpectedDeparture != nil {
		if m := int(d.ExpectedDeparture.Sub(now) / time.Minute); m > 0 {
			minutes = m
		}
	}
	return UpcomingDeparture{
		Line:          d.LineNumber,
		Destination:   d.DestinationName,
		TransportMode: d.TransportMode,
		DepartureTime: d.ExpectedDeparture,
		PlannedTime:   d.TargetDeparture,
		DelayMinutes:  d.DelayMinutes,
		Platform:      d.Platform,
		Status:        d.Status,

		MinutesUntilDeparture: minutes,
	}
}
