package timetable

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/OneBusAway/go-gtfs"
	"github.com/klauspost/compress/zip"
	"ovwatch.transit.nl/internal/logging"
)

// go-gtfs refuses archives without these, matched by exact entry name.
var requiredFiles = []string{"agency.txt", "routes.txt", "stops.txt", "trips.txt", "stop_times.txt"}

// Load reads a GTFS archive from disk. It always returns a usable index: on
// failure the index is empty and the error is an *ArchiveError.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Empty(), &ArchiveError{Path: path, Err: err}
	}
	return parse(path, data)
}

// LoadBytes reads a GTFS archive held in memory, with the same contract as Load.
func LoadBytes(data []byte) (*Index, error) {
	return parse("<memory>", data)
}

func parse(path string, data []byte) (idx *Index, err error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Empty(), &ArchiveError{Path: path, Err: err}
	}
	present := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		present[f.Name] = true
	}
	for _, name := range requiredFiles {
		if !present[name] {
			return Empty(), &ArchiveError{Path: path, File: name, Err: errors.New("missing from archive")}
		}
	}

	// ParseStatic indexes into trips it has already dropped when stop_times
	// references them out of order.
	defer func() {
		if r := recover(); r != nil {
			idx, err = Empty(), &ArchiveError{Path: path, Err: fmt.Errorf("parse: %v", r)}
		}
	}()

	static, err := gtfs.ParseStatic(data, gtfs.ParseStaticOptions{})
	if err != nil {
		return Empty(), &ArchiveError{Path: path, Err: err}
	}
	if len(static.Trips) == 0 {
		return Empty(), &ArchiveError{Path: path, File: "trips.txt", Err: errors.New("no usable trips")}
	}

	idx = fromStatic(static)
	logging.LogOperation(slog.Default().With(slog.String("component", "timetable_loader")),
		"timetable_parsed",
		slog.String("path", path),
		slog.Int("trips", len(idx.trips)),
		slog.Int("warnings", len(static.Warnings)))
	return idx, nil
}

func fromStatic(static *gtfs.Static) *Index {
	idx := Empty()

	for _, s := range static.Stops {
		if s.Id == "" {
			continue
		}
		code := s.Code
		if code == "" || code == "None" {
			code = s.Id
		}
		stop := Stop{ID: s.Id, Code: code, Name: s.Name}
		if s.Latitude != nil && s.Longitude != nil {
			stop.Latitude, stop.Longitude = *s.Latitude, *s.Longitude
		}
		idx.stops[s.Id] = stop
		idx.codeToIDs[code] = append(idx.codeToIDs[code], s.Id)
	}

	for _, r := range static.Routes {
		idx.routes[r.Id] = Route{ID: r.Id, ShortName: r.ShortName, LongName: r.LongName, Type: int(r.Type)}
	}

	for _, svc := range static.Services {
		days := make(map[string]bool, len(svc.AddedDates)+len(svc.RemovedDates))
		for _, d := range svc.AddedDates {
			days[d.Format("20060102")] = true
		}
		for _, d := range svc.RemovedDates {
			days[d.Format("20060102")] = false
		}
		idx.calendar[svc.Id] = days
	}

	for i := range static.Trips {
		st := &static.Trips[i]
		trip := &Trip{ID: st.ID, Headsign: st.Headsign}
		if st.Route != nil {
			trip.RouteID = st.Route.Id
		}
		if st.Service != nil {
			trip.ServiceID = st.Service.Id
		}
		// StopTimes arrive sorted by stop_sequence.
		trip.StopTimes = make([]StopTime, 0, len(st.StopTimes))
		for _, call := range st.StopTimes {
			if call.Stop == nil {
				continue
			}
			trip.StopTimes = append(trip.StopTimes, StopTime{
				StopID:    call.Stop.Id,
				Sequence:  call.StopSequence,
				Arrival:   FormatServiceTime(call.ArrivalTime),
				Departure: FormatServiceTime(call.DepartureTime),
			})
		}
		idx.trips[trip.ID] = trip
		idx.stopTimes += len(trip.StopTimes)
		for c, call := range trip.StopTimes {
			idx.byStop[call.StopID] = append(idx.byStop[call.StopID], stopCall{trip: trip, call: c})
		}
	}
	return idx
}
