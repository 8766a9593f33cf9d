// Package connection checks whether the transfers of a multi-leg journey
// are still feasible given the observed delays.
package connection

import (
	"fmt"
	"time"

	"ovwatch.transit.nl/internal/models"
)

// Status is the overall connection state. It only ever escalates.
type Status string

const (
	StatusOK      Status = "ok"
	StatusTight   Status = "tight"
	StatusWarning Status = "warning"
	StatusMissed  Status = "missed"
)

func (s Status) rank() int {
	switch s {
	case StatusTight:
		return 1
	case StatusWarning:
		return 2
	case StatusMissed:
		return 3
	default:
		return 0
	}
}

func (s Status) escalate(to Status) Status {
	if to.rank() > s.rank() {
		return to
	}
	return s
}

// Label is the display text for the status.
func (s Status) Label() string {
	switch s {
	case StatusTight:
		return "Tight Connection"
	case StatusWarning:
		return "Connection at Risk"
	case StatusMissed:
		return "Connection Missed"
	default:
		return "On Schedule"
	}
}

// Report is the outcome of Analyze.
type Report struct {
	Legs     []models.Leg `json:"legs"`
	Status   Status       `json:"status"`
	Warnings []string     `json:"warnings"`
	// TotalJourneyMinutes is nil when the first departure or last arrival is unknown.
	TotalJourneyMinutes  *int `json:"totalJourneyMinutes,omitempty"`
	TotalDelayMinutes    int  `json:"totalDelayMinutes"`
	TotalTransferMinutes int  `json:"totalTransferMinutes"`
}

// Label is the display text for the report's status.
func (r Report) Label() string { return r.Status.Label() }

// Analyze walks adjacent leg pairs in order. legs must be in itinerary order.
func Analyze(legs []models.Journey, minTransferMinutes int) Report {
	report := Report{
		Legs:     make([]models.Leg, len(legs)),
		Status:   StatusOK,
		Warnings: []string{},
	}
	for i, j := range legs {
		report.Legs[i] = summarize(j)
		if j.DelayMinutes > 0 {
			report.TotalDelayMinutes += j.DelayMinutes
		}
	}

	for i := 0; i+1 < len(legs); i++ {
		cur, next := legs[i], legs[i+1]
		at := cur.Destination
		if cur.ArrivalTime == nil || next.DepartureTime == nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("Leg %d to %d at %s: missing time data", i+1, i+2, at))
			continue
		}

		gap := next.DepartureTime.Sub(*cur.ArrivalTime)
		transfer := int(gap / time.Minute)
		report.Legs[i].TransferTimeToNext = &transfer
		report.TotalTransferMinutes += transfer

		switch {
		case gap < 0:
			report.Status = report.Status.escalate(StatusMissed)
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("Leg %d to %d at %s: connection missed, next leg departs %d min before arrival", i+1, i+2, at, -transfer))
		case cur.DelayMinutes > 0 && transfer-cur.DelayMinutes < minTransferMinutes:
			report.Status = report.Status.escalate(StatusWarning)
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("Leg %d to %d at %s: connection at risk, %d min delay leaves %d min to transfer", i+1, i+2, at, cur.DelayMinutes, transfer-cur.DelayMinutes))
		case transfer < minTransferMinutes:
			report.Status = report.Status.escalate(StatusTight)
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("Leg %d to %d at %s: tight connection, %d min transfer (minimum %d)", i+1, i+2, at, transfer, minTransferMinutes))
		}
	}

	if n := len(legs); n > 0 && legs[0].DepartureTime != nil && legs[n-1].ArrivalTime != nil {
		total := int(legs[n-1].ArrivalTime.Sub(*legs[0].DepartureTime) / time.Minute)
		report.TotalJourneyMinutes = &total
	}
	return report
}

func summarize(j models.Journey) models.Leg {
	leg := models.Leg{
		Origin:        j.Origin,
		Destination:   j.Destination,
		DepartureTime: j.DepartureTime,
		ArrivalTime:   j.ArrivalTime,
		Line:          j.Line,
		DelayMinutes:  j.DelayMinutes,
		Platform:      j.Platform,
	}
	if len(j.VehicleTypes) > 0 {
		leg.TransportMode = j.VehicleTypes[0]
	}
	return leg
}
