package notify

import (
	"encoding/json"
	"log/slog"
	"strings"

	"ovwatch.transit.nl/internal/logging"
)

const (
	EventSubjectPrefix  = "ovwatch.events."
	NotifySubjectPrefix = "ovwatch.notify."
)

// Publisher sends a payload on a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Observer is told about every delivered event.
type Observer interface {
	NotificationSent(kind string)
	NotificationFailed(kind string)
}

// Dispatcher publishes events and fans delay and disruption notices out to
// their targets.
type Dispatcher struct {
	pub      Publisher
	observer Observer
	logger   *slog.Logger
}

func NewDispatcher(pub Publisher, observer Observer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		pub:      pub,
		observer: observer,
		logger:   logger.With(slog.String("component", "notify_dispatcher")),
	}
}

// Dispatch delivers events in order. A failing subject is logged and the
// rest are still attempted; the number of failures is returned.
func (d *Dispatcher) Dispatch(events []Event) int {
	failed := 0
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			logging.LogError(d.logger, "failed to encode event", err, slog.String("type", string(ev.Kind)))
			failed++
			continue
		}
		if !d.send(ev, EventSubjectPrefix+string(ev.Kind), payload) {
			failed++
		}

		msg := ev.Message()
		if msg == nil {
			continue
		}
		body, err := json.Marshal(msg)
		if err != nil {
			logging.LogError(d.logger, "failed to encode notice", err, slog.String("type", string(ev.Kind)))
			failed++
			continue
		}
		for _, target := range ev.Targets {
			if !d.send(ev, NotifySubjectPrefix+SubjectToken(TargetName(target)), body) {
				failed++
			}
		}
	}
	return failed
}

func (d *Dispatcher) send(ev Event, subject string, data []byte) bool {
	if err := d.pub.Publish(subject, data); err != nil {
		logging.LogError(d.logger, "failed to publish notification", err,
			slog.String("subject", subject),
			slog.String("route", ev.RouteKey))
		if d.observer != nil {
			d.observer.NotificationFailed(string(ev.Kind))
		}
		return false
	}
	d.logger.Debug("published notification", slog.String("subject", subject), slog.String("id", ev.ID))
	if d.observer != nil {
		d.observer.NotificationSent(string(ev.Kind))
	}
	return true
}

// TargetName accepts both "notify.mobile_app_phone" and "mobile_app_phone".
func TargetName(target string) string {
	return strings.TrimPrefix(strings.TrimSpace(target), "notify.")
}

// SubjectToken makes s usable as a single NATS subject token.
func SubjectToken(s string) string {
	s = strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_").Replace(strings.TrimSpace(s))
	if s == "" {
		return "_"
	}
	return s
}

// Discard is a Publisher that drops everything, used when no broker is configured.
type Discard struct{}

func (Discard) Publish(string, []byte) error { return nil }
