// Package restapi serves the published journeys, timetable lookups and
// operational endpoints over HTTP.
package restapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"ovwatch.transit.nl/internal/app"
)

const (
	// Journeys change once per poll cycle.
	liveCacheSeconds = 30
	// Timetable answers only change when the archive is reloaded.
	staticCacheSeconds = 300
)

type RestAPI struct {
	*app.Application
	rateLimiter *RateLimitMiddleware
}

func NewRestAPI(app *app.Application) *RestAPI {
	return &RestAPI{
		Application: app,
		rateLimiter: NewRateLimitMiddleware(app.Config.RateLimit, time.Second, app.Clock),
	}
}

// SetRoutes registers every endpoint on mux.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", api.healthHandler)

	mux.Handle("GET /api/current-time", api.guard(0, api.currentTimeHandler))
	mux.Handle("GET /api/routes", api.guard(staticCacheSeconds, api.routesHandler))
	mux.Handle("POST /api/routes/{key}/refresh", api.guard(0, api.refreshRouteHandler))
	mux.Handle("GET /api/journeys", api.guard(liveCacheSeconds, api.journeysHandler))
	mux.Handle("GET /api/journeys/{key}", api.guard(liveCacheSeconds, api.journeyHandler))
	mux.Handle("GET /api/stops/{code}/schedule", api.guard(staticCacheSeconds, api.scheduleForStopHandler))
	mux.Handle("GET /api/stops/{code}/lines", api.guard(staticCacheSeconds, api.linesForStopHandler))

	if api.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(api.Metrics.Registry, promhttp.HandlerOpts{}))
	}
}

// guard applies key checking, rate limiting and cache headers to an /api handler.
func (api *RestAPI) guard(cacheSeconds int, h http.HandlerFunc) http.Handler {
	var next http.Handler = CacheControlMiddleware(cacheSeconds, h)
	next = api.rateLimiter.Handler()(next)
	return api.requireAPIKey(next)
}

func (api *RestAPI) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.sendUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns a mux with every route, wrapped in the request id and
// instrumentation middleware.
func (api *RestAPI) Handler() http.Handler {
	mux := http.NewServeMux()
	api.SetRoutes(mux)

	var h http.Handler = mux
	h = NewInstrumentationMiddleware(api.Logger, api.Metrics)(h)
	return RequestIDMiddleware(h)
}

// Shutdown stops background work owned by the API.
func (api *RestAPI) Shutdown() {
	if api.rateLimiter != nil {
		api.rateLimiter.Stop()
	}
}
