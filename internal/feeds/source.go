// Package feeds normalizes the live Dutch departure feeds into
// models.Departure. Every adapter answers with a Result; transport and parse
// failures are carried inside it as a no-data result and never escape as
// errors or panics.
package feeds

import (
	"context"

	"ovwatch.transit.nl/internal/models"
)

// Query is one departure lookup at a stop.
type Query struct {
	StopCode    string
	Destination string
	Lines       models.LineFilter
	Limit       int
	// ValidTrips restricts results to passes matching one of these static
	// trip ids. Nil disables the restriction.
	ValidTrips []string
	// StopArea queries an OVapi stop area code instead of a timing point.
	StopArea bool
}

// StopInfo is what the feed reported about the queried stop.
type StopInfo struct {
	Name     string
	Position *models.Position
}

// Result is an adapter answer. NoData is set when the feed could not be
// read; Err then holds the *TransportError or *ParseError behind it.
type Result struct {
	Departures []models.Departure
	Stop       StopInfo
	NoData     bool
	Err        error
}

func noData(err error) Result {
	return Result{Departures: []models.Departure{}, NoData: true, Err: err}
}

// DepartureSource is implemented by every live feed adapter.
type DepartureSource interface {
	Name() string
	FetchDepartures(ctx context.Context, q Query) Result
}
