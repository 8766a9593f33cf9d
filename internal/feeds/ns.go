package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ovwatch.transit.nl/internal/logging"
	"ovwatch.transit.nl/internal/models"
)

// DefaultNSBaseURL is the NS reisinformatie API root.
const DefaultNSBaseURL = "https://gateway.apiportal.ns.nl/reisinformatie-api/api/v2"

const (
	nsFeed      = "ns"
	nsKeyHeader = "Ocp-Apim-Subscription-Key"
)

type nsResponse struct {
	Payload struct {
		Departures []nsDeparture `json:"departures"`
	} `json:"payload"`
}

type nsDeparture struct {
	Direction       string `json:"direction"`
	Name            string `json:"name"`
	PlannedDateTime string `json:"plannedDateTime"`
	ActualDateTime  string `json:"actualDateTime"`
	PlannedTrack    string `json:"plannedTrack"`
	ActualTrack     string `json:"actualTrack"`
	TrainCategory   string `json:"trainCategory"`
	Cancelled       bool   `json:"cancelled"`
	DepartureStatus string `json:"departureStatus"`
	Product         struct {
		Number            flexString `json:"number"`
		CategoryCode      string     `json:"categoryCode"`
		ShortCategoryName string     `json:"shortCategoryName"`
	} `json:"product"`
	RouteStations []struct {
		UICCode    string `json:"uicCode"`
		MediumName string `json:"mediumName"`
	} `json:"routeStations"`
	Messages []struct {
		Message string `json:"message"`
		Style   string `json:"style"`
	} `json:"messages"`
}

// NS reads train departures. Without an API key it answers with an empty,
// successful result.
type NS struct {
	baseURL  string
	apiKey   string
	client   *Client
	location *time.Location
	logger   *slog.Logger
}

func NewNS(baseURL, apiKey string, client *Client, loc *time.Location) *NS {
	if baseURL == "" {
		baseURL = DefaultNSBaseURL
	}
	return &NS{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		client:   client,
		location: loc,
		logger:   slog.Default().With(slog.String("component", "ns_adapter")),
	}
}

func (n *NS) Name() string { return nsFeed }

// Enabled reports whether a credential is configured.
func (n *NS) Enabled() bool { return n.apiKey != "" }

// FetchDepartures returns departures from station q.StopCode. ValidTrips is
// ignored: train numbers do not appear in the bus/tram timetable.
func (n *NS) FetchDepartures(ctx context.Context, q Query) Result {
	if !n.Enabled() {
		return Result{Departures: []models.Departure{}}
	}

	journeys := 25
	if q.Limit > 0 {
		journeys = q.Limit * 3
	}
	params := url.Values{}
	params.Set("station", q.StopCode)
	params.Set("maxJourneys", strconv.Itoa(journeys))
	endpoint := fmt.Sprintf("%s/departures?%s", n.baseURL, params.Encode())

	var resp nsResponse
	if err := n.client.getJSON(ctx, nsFeed, endpoint, map[string]string{nsKeyHeader: n.apiKey}, &resp); err != nil {
		logging.LogError(n.logger, "ns fetch failed", err, slog.String("station", q.StopCode))
		return noData(err)
	}

	res := Result{Departures: []models.Departure{}, Stop: StopInfo{Name: q.StopCode}}
	for _, raw := range resp.Payload.Departures {
		if d, ok := n.normalize(raw, q); ok {
			res.Departures = append(res.Departures, d)
		}
	}
	models.SortByExpectedDeparture(res.Departures)
	res.Departures = models.Truncate(res.Departures, q.Limit)
	return res
}

func nsStatus(raw nsDeparture) models.DepartureStatus {
	if raw.Cancelled {
		return models.StatusCancelled
	}
	switch strings.ToUpper(raw.DepartureStatus) {
	case "DEPARTED":
		return models.StatusPassed
	case "INCOMING", "ON_STATION", "":
		return models.StatusScheduled
	default:
		return models.StatusUnknown
	}
}

// servesDestination matches the filter against the direction and every
// station on the remaining route.
func (raw nsDeparture) servesDestination(dest string) bool {
	if dest == "" {
		return true
	}
	dest = strings.ToLower(dest)
	if strings.Contains(strings.ToLower(raw.Direction), dest) {
		return true
	}
	for _, st := range raw.RouteStations {
		if strings.Contains(strings.ToLower(st.MediumName), dest) || strings.EqualFold(st.UICCode, dest) {
			return true
		}
	}
	return false
}

func (n *NS) normalize(raw nsDeparture, q Query) (models.Departure, bool) {
	status := nsStatus(raw)
	if status == models.StatusPassed || status == models.StatusCancelled {
		return models.Departure{}, false
	}
	number := string(raw.Product.Number)
	category := raw.TrainCategory
	if category == "" {
		category = raw.Product.ShortCategoryName
	}
	if len(q.Lines) > 0 && !q.Lines.Accepts(number) && !q.Lines.Accepts(category) {
		return models.Departure{}, false
	}
	if !raw.servesDestination(q.Destination) {
		return models.Departure{}, false
	}

	target := n.instant("plannedDateTime", raw.PlannedDateTime)
	expected := n.instant("actualDateTime", raw.ActualDateTime)
	if expected == nil {
		expected = target
	}
	platform := raw.ActualTrack
	if platform == "" {
		platform = raw.PlannedTrack
	}
	var notes []string
	for _, m := range raw.Messages {
		if msg := strings.TrimSpace(m.Message); msg != "" {
			notes = append(notes, msg)
		}
	}

	return models.Departure{
		LineNumber:        number,
		DestinationName:   raw.Direction,
		TransportMode:     category,
		StopName:          q.StopCode,
		ExpectedDeparture: expected,
		TargetDeparture:   target,
		DelayMinutes:      models.DelayMinutes(expected, target),
		Status:            status,
		Platform:          platform,
		Notes:             notes,
		SourceTripRef:     number,
	}, true
}

func (n *NS) instant(field, text string) *time.Time {
	t, err := parseOptional(nsFeed, field, text, n.location)
	if err != nil {
		n.logger.Debug("ignoring unparseable timestamp", slog.String("field", field), slog.String("error", err.Error()))
	}
	return t
}
