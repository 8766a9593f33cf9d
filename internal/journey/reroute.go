package journey

import (
	"time"

	"ovwatch.transit.nl/internal/models"
)

const (
	rerouteDelayMinutes = 10
	rerouteGain         = 5 * time.Minute
)

// ShouldReroute recommends a reroute when the connection is already missed,
// or when the primary runs more than ten minutes late and an alternative
// arrives at least five minutes earlier. Journeys without arrival times
// never trigger the second rule.
func ShouldReroute(primary models.Journey, alternatives []models.Journey) bool {
	if primary.MissedConnection {
		return true
	}
	if primary.DelayMinutes <= rerouteDelayMinutes || primary.ArrivalTime == nil {
		return false
	}
	for _, alt := range alternatives {
		if alt.ArrivalTime == nil {
			continue
		}
		if !alt.ArrivalTime.After(primary.ArrivalTime.Add(-rerouteGain)) {
			return true
		}
	}
	return false
}
