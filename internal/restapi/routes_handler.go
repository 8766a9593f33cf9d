package restapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ovwatch.transit.nl/internal/models"
	"ovwatch.transit.nl/internal/poller"
)

// refreshTimeout bounds an on-demand poll cycle.
const refreshTimeout = 15 * time.Second

// RouteEntry is one configured route as listed by /api/routes.
type RouteEntry struct {
	Key string `json:"key"`
	models.RouteConfig
}

// routesHandler lists the configured routes with the keys used by
// /api/journeys/{key}. Reverse routes are listed after their forward route.
func (api *RestAPI) routesHandler(w http.ResponseWriter, r *http.Request) {
	api.sendResponse(w, r, api.routeEntries())
}

func (api *RestAPI) routeEntries() []RouteEntry {
	entries := make([]RouteEntry, 0, len(api.Config.Routes))
	for _, route := range api.Config.Routes {
		entries = append(entries, RouteEntry{Key: route.Key(), RouteConfig: route})
		if route.Reverse && !route.IsMultiLeg() {
			rev := route.Reversed()
			entries = append(entries, RouteEntry{Key: rev.Key(), RouteConfig: rev})
		}
	}
	return entries
}

func (api *RestAPI) routeConfigured(key string) bool {
	for _, e := range api.routeEntries() {
		if e.Key == key {
			return true
		}
	}
	return false
}

// refreshRouteHandler runs a poll cycle out of schedule and answers with the
// route's fresh view. The whole cycle runs, so every route is refreshed and
// notifications fire as they would on a scheduled poll.
func (api *RestAPI) refreshRouteHandler(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !api.routeConfigured(key) {
		api.sendNotFound(w, r)
		return
	}
	if api.Cycle == nil {
		api.sendUnavailable(w, r, "poller not running")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()
	err := api.Cycle.Run(ctx, api.Clock.Now())
	switch {
	case errors.Is(err, poller.ErrAllRoutesFailed):
		api.upstreamErrorResponse(w, r, err)
		return
	case err != nil:
		api.serverErrorResponse(w, r, err)
		return
	}

	view, ok := api.Cycle.Store().Load().Route(key)
	if !ok {
		api.sendError(w, r, http.StatusNotFound, "route is not active today")
		return
	}
	api.sendResponse(w, r, view)
}
