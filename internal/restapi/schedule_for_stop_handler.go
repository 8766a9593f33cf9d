package restapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ovwatch.transit.nl/internal/models"
	"ovwatch.transit.nl/internal/timetable"
)

const (
	defaultScheduleLimit = 50
	maxScheduleLimit     = 500
)

// ScheduleEntry is one scheduled call in a /api/stops/{code}/schedule response.
type ScheduleEntry struct {
	TripID        string     `json:"tripId"`
	RouteID       string     `json:"routeId"`
	Line          string     `json:"line"`
	RouteType     int        `json:"routeType"`
	Headsign      string     `json:"headsign,omitempty"`
	StopID        string     `json:"stopId"`
	ArrivalTime   string     `json:"arrivalTime,omitempty"`
	DepartureTime string     `json:"departureTime"`
	Departure     *time.Time `json:"departure,omitempty"`
	StopSequence  int        `json:"stopSequence"`
}

// ScheduleForStop is the payload of /api/stops/{code}/schedule.
type ScheduleForStop struct {
	StopCode  string          `json:"stopCode"`
	StopName  string          `json:"stopName,omitempty"`
	Date      string          `json:"date"`
	Schedules []ScheduleEntry `json:"schedules"`
}

func (api *RestAPI) scheduleForStopHandler(w http.ResponseWriter, r *http.Request) {
	if api.Timetable == nil || !api.Timetable.Loaded() {
		api.sendUnavailable(w, r, "timetable not loaded")
		return
	}

	code := r.PathValue("code")
	query := r.URL.Query()
	fieldErrors := map[string][]string{}

	loc := api.Location
	if loc == nil {
		loc = time.UTC
	}
	date := api.Clock.Now().In(loc)
	if s := query.Get("date"); s != "" {
		parsed, err := time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			fieldErrors["date"] = append(fieldErrors["date"], "Invalid date format. Use YYYY-MM-DD")
		} else {
			date = parsed
		}
	}

	from, err := normalizeClock(query.Get("from"))
	if err != nil {
		fieldErrors["from"] = append(fieldErrors["from"], err.Error())
	}
	to, err := normalizeClock(query.Get("to"))
	if err != nil {
		fieldErrors["to"] = append(fieldErrors["to"], err.Error())
	}

	limit := defaultScheduleLimit
	if s := query.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			fieldErrors["limit"] = append(fieldErrors["limit"], "must be a positive integer")
		} else {
			limit = min(n, maxScheduleLimit)
		}
	}

	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	stopName, found := api.stopName(code)
	if !found {
		api.sendNotFound(w, r)
		return
	}

	lines := models.ParseLineFilter(query.Get("line"))
	rows := api.Timetable.ScheduledDepartures(code, date, from, to, lines, limit)

	entries := make([]ScheduleEntry, 0, len(rows))
	for _, row := range rows {
		entry := ScheduleEntry{
			TripID:        row.TripID,
			RouteID:       row.RouteID,
			Line:          row.RouteShortName,
			RouteType:     row.RouteType,
			Headsign:      row.Headsign,
			StopID:        row.StopID,
			ArrivalTime:   row.ArrivalTime,
			DepartureTime: row.DepartureTime,
			StopSequence:  row.Sequence,
		}
		if at, err := timetable.ServiceInstant(date, row.DepartureTime); err == nil {
			entry.Departure = &at
		}
		entries = append(entries, entry)
	}

	api.sendResponse(w, r, ScheduleForStop{
		StopCode:  code,
		StopName:  stopName,
		Date:      date.Format("2006-01-02"),
		Schedules: entries,
	})
}

// stopName resolves a public stop code through the timetable. found is false
// when none of its ids is present.
func (api *RestAPI) stopName(code string) (name string, found bool) {
	for _, id := range api.Timetable.StopIDs(code) {
		if stop, ok := api.Timetable.Stop(id); ok {
			return stop.Name, true
		}
	}
	return "", false
}

// normalizeClock accepts HH:MM or HH:MM:SS and returns HH:MM:SS, the form the
// timetable compares against. Hours past 23 are allowed for after-midnight service.
func normalizeClock(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	candidate := s
	if len(s) == 5 {
		candidate = s + ":00"
	}
	if _, err := timetable.ParseServiceTime(candidate); err != nil || len(candidate) != 8 {
		return "", fmt.Errorf("invalid time %q, use HH:MM or HH:MM:SS", s)
	}
	return candidate, nil
}
