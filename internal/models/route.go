package models

import (
	"strings"
	"time"
)

// FeedSource names the live feed a stop is read from.
type FeedSource string

const (
	SourceOVapi FeedSource = "ovapi"
	SourceNS    FeedSource = "ns"
)

// LineFilter is a set of accepted line tokens. Empty accepts every line.
type LineFilter []string

// ParseLineFilter splits a comma separated list into trimmed, non-empty tokens.
func ParseLineFilter(s string) LineFilter {
	var f LineFilter
	for _, tok := range strings.Split(s, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			f = append(f, tok)
		}
	}
	return f
}

// Accepts reports whether line contains any token, case-insensitively.
func (f LineFilter) Accepts(line string) bool {
	if len(f) == 0 {
		return true
	}
	l := strings.ToLower(line)
	for _, tok := range f {
		if strings.Contains(l, strings.ToLower(tok)) {
			return true
		}
	}
	return false
}

func (f LineFilter) String() string {
	return strings.Join(f, ",")
}

// LegConfig is one configured segment of a multi-leg route.
type LegConfig struct {
	Origin        string     `json:"origin"`
	Destination   string     `json:"destination"`
	TransportType string     `json:"transportType,omitempty"`
	LineFilter    LineFilter `json:"lineFilter,omitempty"`
}

// Source picks the feed by transport type: trains come from NS.
func (l LegConfig) Source() FeedSource {
	if strings.EqualFold(l.TransportType, "train") {
		return SourceNS
	}
	return SourceOVapi
}

// RouteConfig is a validated route record. Either Origin/Destination or Legs
// is set, never both.
type RouteConfig struct {
	Name        string     `json:"name,omitempty"`
	Origin      string     `json:"origin,omitempty"`
	Destination string     `json:"destination,omitempty"`
	Source      FeedSource `json:"source,omitempty"`
	StopArea    bool       `json:"stopArea,omitempty"`
	Reverse     bool       `json:"reverse,omitempty"`
	ReturnTime  string     `json:"returnTime,omitempty"`
	LineFilter  LineFilter `json:"lineFilter,omitempty"`

	Legs               []LegConfig `json:"legs,omitempty"`
	MinTransferMinutes int         `json:"minTransferMinutes,omitempty"`

	NotifyLeadMinutes        int      `json:"notifyLeadMinutes"`
	NotifyOnDelay            bool     `json:"notifyOnDelay"`
	NotifyOnDisruption       bool     `json:"notifyOnDisruption"`
	MinDelayThresholdMinutes int      `json:"minDelayThresholdMinutes"`
	NotifyServices           []string `json:"notifyServices,omitempty"`

	NumDepartures   int            `json:"numDepartures"`
	Days            []time.Weekday `json:"days,omitempty"`
	ExcludeHolidays bool           `json:"excludeHolidays,omitempty"`
}

// IsMultiLeg reports whether the route is evaluated as a connection.
func (r RouteConfig) IsMultiLeg() bool {
	return len(r.Legs) > 0
}

// Key identifies the route in snapshots and notification state.
func (r RouteConfig) Key() string {
	if r.IsMultiLeg() {
		if r.Name != "" {
			return r.Name
		}
		first, last := r.Legs[0], r.Legs[len(r.Legs)-1]
		return first.Origin + "_" + last.Destination
	}
	return r.Origin + "_" + r.Destination
}

// Reversed returns the single-leg route swapped to run destination to origin.
func (r RouteConfig) Reversed() RouteConfig {
	rev := r
	rev.Origin, rev.Destination = r.Destination, r.Origin
	rev.Reverse = false
	rev.Name = ""
	return rev
}

// ActiveOn reports whether the route runs on t's weekday. No days means every day.
func (r RouteConfig) ActiveOn(t time.Time) bool {
	if len(r.Days) == 0 {
		return true
	}
	for _, d := range r.Days {
		if d == t.Weekday() {
			return true
		}
	}
	return false
}
