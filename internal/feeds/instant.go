package feeds

import (
	"errors"
	"strings"
	"time"
)

var errUnknownLayout = errors.New("unrecognized timestamp layout")

// Layouts tried after RFC 3339. The first carries a zone offset without a
// colon (NS); the rest are zone-less local times (OVapi).
var instantLayouts = []string{
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// ParseInstant parses a feed timestamp. Zone-less values are read in loc.
func ParseInstant(text string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, &ParseError{Field: "instant", Err: errors.New("empty timestamp")}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ParseError{Field: "instant", Value: s, Err: errUnknownLayout}
}

// parseOptional returns nil for empty or unparseable text. The parse error,
// if any, is returned for diagnostics.
func parseOptional(feed, field, text string, loc *time.Location) (*time.Time, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	t, err := ParseInstant(text, loc)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Feed, pe.Field = feed, field
		}
		return nil, err
	}
	return &t, nil
}
