package poller

import (
	"sort"
	"sync/atomic"
	"time"

	"ovwatch.transit.nl/internal/connection"
	"ovwatch.transit.nl/internal/models"
)

// RouteView is the published state of one route key.
type RouteView struct {
	Key         string             `json:"key"`
	Name        string             `json:"name,omitempty"`
	State       string             `json:"state"`
	Description []string           `json:"description"`
	Journey     models.Journey     `json:"journey"`
	Connection  *connection.Report `json:"connection,omitempty"`
	// Degraded is set when the view was built from the timetable because
	// the live feed returned nothing.
	Degraded bool `json:"degraded,omitempty"`
}

// Snapshot is the result of one completed cycle. It is never modified after
// it has been published.
type Snapshot struct {
	UpdatedAt    time.Time   `json:"updatedAt"`
	Routes       []RouteView `json:"routes"`
	FailedRoutes []string    `json:"failedRoutes"`
}

func newSnapshot(at time.Time, views []RouteView, failed []string) *Snapshot {
	sort.Slice(views, func(i, j int) bool { return views[i].Key < views[j].Key })
	sort.Strings(failed)
	if views == nil {
		views = []RouteView{}
	}
	if failed == nil {
		failed = []string{}
	}
	return &Snapshot{UpdatedAt: at, Routes: views, FailedRoutes: failed}
}

// Route returns the view for key.
func (s *Snapshot) Route(key string) (RouteView, bool) {
	i := sort.Search(len(s.Routes), func(i int) bool { return s.Routes[i].Key >= key })
	if i < len(s.Routes) && s.Routes[i].Key == key {
		return s.Routes[i], true
	}
	return RouteView{}, false
}

// Store holds the latest snapshot. Readers always see a complete cycle.
type Store struct {
	current atomic.Pointer[Snapshot]
}

func NewStore() *Store { return &Store{} }

// Load returns the latest snapshot, or nil before the first publish.
func (s *Store) Load() *Snapshot { return s.current.Load() }

func (s *Store) publish(snap *Snapshot) { s.current.Store(snap) }
