package feeds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"ovwatch.transit.nl/internal/logging"
	"ovwatch.transit.nl/internal/models"
)

// DefaultOVapiBaseURL is the public KV78 stop passage API.
const DefaultOVapiBaseURL = "http://v0.ovapi.nl"

const ovapiFeed = "ovapi"

// flexString decodes a JSON string or number into its textual form.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

type ovapiStop struct {
	TimingPointName string   `json:"TimingPointName"`
	Latitude        *float64 `json:"Latitude"`
	Longitude       *float64 `json:"Longitude"`
}

type ovapiPass struct {
	LinePublicNumber      flexString `json:"LinePublicNumber"`
	DestinationName50     string     `json:"DestinationName50"`
	ExpectedDepartureTime string     `json:"ExpectedDepartureTime"`
	TargetDepartureTime   string     `json:"TargetDepartureTime"`
	ExpectedArrivalTime   string     `json:"ExpectedArrivalTime"`
	TargetArrivalTime     string     `json:"TargetArrivalTime"`
	TripStopStatus        string     `json:"TripStopStatus"`
	TransportType         string     `json:"TransportType"`
	JourneyNumber         flexString `json:"JourneyNumber"`
	Latitude              *float64   `json:"Latitude"`
	Longitude             *float64   `json:"Longitude"`
	LastUpdateTimeStamp   string     `json:"LastUpdateTimeStamp"`
}

type ovapiTimingPoint struct {
	Stop   *ovapiStop                 `json:"Stop"`
	Passes map[string]json.RawMessage `json:"Passes"`
}

// OVapi reads the /tpc and /stopareacode endpoints.
type OVapi struct {
	baseURL  string
	client   *Client
	matcher  TripMatcher
	location *time.Location
	logger   *slog.Logger
}

// NewOVapi builds the adapter. A nil matcher uses SubstringMatcher; a nil
// location reads zone-less timestamps as UTC.
func NewOVapi(baseURL string, client *Client, matcher TripMatcher, loc *time.Location) *OVapi {
	if baseURL == "" {
		baseURL = DefaultOVapiBaseURL
	}
	if matcher == nil {
		matcher = SubstringMatcher{}
	}
	return &OVapi{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		matcher:  matcher,
		location: loc,
		logger:   slog.Default().With(slog.String("component", "ovapi_adapter")),
	}
}

func (o *OVapi) Name() string { return ovapiFeed }

func (o *OVapi) endpoint(q Query) string {
	kind := "tpc"
	if q.StopArea {
		kind = "stopareacode"
	}
	return fmt.Sprintf("%s/%s/%s", o.baseURL, kind, url.PathEscape(q.StopCode))
}

// FetchDepartures returns the upcoming passes at q.StopCode.
func (o *OVapi) FetchDepartures(ctx context.Context, q Query) Result {
	endpoint := o.endpoint(q)
	var raw map[string]json.RawMessage
	if err := o.client.getJSON(ctx, ovapiFeed, endpoint, nil, &raw); err != nil {
		logging.LogError(o.logger, "ovapi fetch failed", err,
			slog.String("stop", q.StopCode), slog.String("url", endpoint))
		return noData(err)
	}

	points, err := collectTimingPoints(raw)
	if err != nil {
		logging.LogError(o.logger, "ovapi payload malformed", err, slog.String("stop", q.StopCode))
		return noData(err)
	}

	res := Result{Departures: []models.Departure{}}
	for i, tp := range points {
		stop := o.stopInfo(tp.Stop)
		if i == 0 {
			res.Stop = stop
		}
		for id, rawPass := range tp.Passes {
			var p ovapiPass
			if err := json.Unmarshal(rawPass, &p); err != nil {
				logging.LogWarn(o.logger, "skipping malformed pass", err, slog.String("pass", id))
				continue
			}
			d, ok := o.normalize(p, stop, q)
			if ok {
				res.Departures = append(res.Departures, d)
			}
		}
	}

	models.SortByExpectedDeparture(res.Departures)
	res.Departures = models.Truncate(res.Departures, q.Limit)
	return res
}

// collectTimingPoints flattens both payload shapes: /tpc maps a code to a
// timing point, /stopareacode maps an area code to a map of timing points.
func collectTimingPoints(raw map[string]json.RawMessage) ([]ovapiTimingPoint, error) {
	var out []ovapiTimingPoint
	for code, value := range raw {
		var tp ovapiTimingPoint
		if err := json.Unmarshal(value, &tp); err != nil {
			return nil, &ParseError{Feed: ovapiFeed, Field: code, Err: err}
		}
		if tp.Stop != nil || tp.Passes != nil {
			out = append(out, tp)
			continue
		}
		var nested map[string]ovapiTimingPoint
		if err := json.Unmarshal(value, &nested); err != nil {
			return nil, &ParseError{Feed: ovapiFeed, Field: code, Err: err}
		}
		for _, inner := range nested {
			if inner.Stop != nil || inner.Passes != nil {
				out = append(out, inner)
			}
		}
	}
	return out, nil
}

func (o *OVapi) stopInfo(s *ovapiStop) StopInfo {
	if s == nil {
		return StopInfo{}
	}
	info := StopInfo{Name: s.TimingPointName}
	if s.Latitude != nil && s.Longitude != nil {
		info.Position = &models.Position{Latitude: *s.Latitude, Longitude: *s.Longitude}
	}
	return info
}

func ovapiStatus(s string) models.DepartureStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PASSED":
		return models.StatusPassed
	case "CANCEL", "CANCELLED":
		return models.StatusCancelled
	case "PLANNED", "DRIVING", "ARRIVED":
		return models.StatusScheduled
	default:
		return models.StatusUnknown
	}
}

func (o *OVapi) normalize(p ovapiPass, stop StopInfo, q Query) (models.Departure, bool) {
	status := ovapiStatus(p.TripStopStatus)
	if status == models.StatusPassed || status == models.StatusCancelled {
		return models.Departure{}, false
	}
	line := string(p.LinePublicNumber)
	if !q.Lines.Accepts(line) {
		return models.Departure{}, false
	}

	ref := string(p.JourneyNumber)
	var matched string
	if q.ValidTrips != nil {
		id, ok := o.matcher.Match(ref, q.ValidTrips)
		if !ok {
			return models.Departure{}, false
		}
		matched = id
	}

	expected := o.instant("ExpectedDepartureTime", p.ExpectedDepartureTime)
	target := o.instant("TargetDepartureTime", p.TargetDepartureTime)
	arrival := o.instant("ExpectedArrivalTime", p.ExpectedArrivalTime)
	if expected == nil {
		expected = target
	}

	mode := p.TransportType
	if mode == "" {
		mode = "BUS"
	}

	d := models.Departure{
		LineNumber:        line,
		DestinationName:   p.DestinationName50,
		TransportMode:     mode,
		StopName:          stop.Name,
		ExpectedDeparture: expected,
		ExpectedArrival:   arrival,
		TargetDeparture:   target,
		DelayMinutes:      models.DelayMinutes(expected, target),
		Status:            status,
		StopPosition:      stop.Position,
		SourceTripRef:     ref,
		MatchedTripID:     matched,
	}
	if p.Latitude != nil && p.Longitude != nil && (*p.Latitude != 0 || *p.Longitude != 0) {
		d.VehiclePosition = &models.Position{
			Latitude:  *p.Latitude,
			Longitude: *p.Longitude,
			Timestamp: o.instant("LastUpdateTimeStamp", p.LastUpdateTimeStamp),
		}
	}
	return d, true
}

func (o *OVapi) instant(field, text string) *time.Time {
	t, err := parseOptional(ovapiFeed, field, text, o.location)
	if err != nil {
		o.logger.Debug("ignoring unparseable timestamp", slog.String("field", field), slog.String("error", err.Error()))
	}
	return t
}

// LinesAt lists the distinct line numbers currently passing a stop, used to
// check a configured line filter.
func (o *OVapi) LinesAt(ctx context.Context, stopCode string) ([]string, error) {
	res := o.FetchDepartures(ctx, Query{StopCode: stopCode})
	if res.NoData {
		return nil, res.Err
	}
	seen := map[string]struct{}{}
	var lines []string
	for _, d := range res.Departures {
		if _, ok := seen[d.LineNumber]; !ok && d.LineNumber != "" {
			seen[d.LineNumber] = struct{}{}
			lines = append(lines, d.LineNumber)
		}
	}
	sortLines(lines)
	return lines, nil
}

// sortLines orders numerically where possible, then lexically.
func sortLines(lines []string) {
	sort.Slice(lines, func(i, j int) bool {
		ai, aerr := strconv.Atoi(lines[i])
		bi, berr := strconv.Atoi(lines[j])
		switch {
		case aerr == nil && berr == nil:
			return ai < bi
		case aerr == nil:
			return true
		case berr == nil:
			return false
		default:
			return lines[i] < lines[j]
		}
	})
}
