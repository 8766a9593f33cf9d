// Package notify decides which journey events fire and delivers them.
package notify

import (
	"fmt"
	"strings"
	"time"
)

// Kind names an event type. The value is also the subject suffix it is
// published under.
type Kind string

const (
	KindDepartureReminder  Kind = "departure_reminder"
	KindDelayDetected      Kind = "delay_detected"
	KindDisruptionDetected Kind = "disruption_detected"
	KindMissedConnection   Kind = "missed_connection"
	KindRerouteSuggested   Kind = "reroute_suggested"
)

// Event is one fired notification.
type Event struct {
	ID       string         `json:"id"`
	Kind     Kind           `json:"type"`
	RouteKey string         `json:"route"`
	At       time.Time      `json:"timestamp"`
	Data     map[string]any `json:"data"`

	// Targets are the notify services configured on the route.
	Targets []string `json:"-"`
	message *Message
}

// Message is the human readable notice sent to notify targets.
type Message struct {
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Priority string            `json:"priority"`
	Data     map[string]string `json:"data,omitempty"`
}

// Message returns the rendered notice for delay and disruption events, nil
// for the others.
func (e Event) Message() *Message { return e.message }

func formatClock(t *time.Time) string {
	if t == nil {
		return "Unknown"
	}
	return t.Format("15:04")
}

func delayMessage(origin, destination string, departure *time.Time, delay int, platform string, vehicles []string) *Message {
	var b strings.Builder
	b.WriteString("Transport Delay Alert\n")
	fmt.Fprintf(&b, "Route: %s → %s\n", origin, destination)
	fmt.Fprintf(&b, "Departure: %s\n", formatClock(departure))
	fmt.Fprintf(&b, "Delay: %d minutes", delay)
	if platform != "" {
		fmt.Fprintf(&b, "\nPlatform: %s", platform)
	}
	if len(vehicles) > 0 {
		fmt.Fprintf(&b, "\nVehicle: %s", strings.Join(vehicles, ", "))
	}
	return &Message{Title: "Transport Delay", Message: b.String(), Priority: "high"}
}

func disruptionMessage(origin, destination string, departure *time.Time, reason string) *Message {
	var b strings.Builder
	b.WriteString("Transport Disruption Alert\n")
	fmt.Fprintf(&b, "Route: %s → %s\n", origin, destination)
	fmt.Fprintf(&b, "Departure: %s\n", formatClock(departure))
	fmt.Fprintf(&b, "Issue: %s", reason)
	return &Message{Title: "Transport Disruption", Message: b.String(), Priority: "high"}
}
