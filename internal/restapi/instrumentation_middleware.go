package restapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"ovwatch.transit.nl/internal/logging"
	"ovwatch.transit.nl/internal/metrics"
)

// unmatchedRoute labels requests no registered pattern served.
const unmatchedRoute = "unmatched"

// NewInstrumentationMiddleware logs every served request, counts it in m
// and makes a request scoped logger available through logging.FromContext.
// m may be nil, in which case only logging happens.
//
// Metrics are labelled by the mux pattern that served the request, so
// /api/journeys/{key} is one series however many routes are configured.
func NewInstrumentationMiddleware(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := requestLogger(logger, r)
			// The mux records the matched pattern on this request value.
			r = r.WithContext(logging.WithLogger(r.Context(), reqLogger))

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			route := r.Pattern
			if route == "" {
				route = unmatchedRoute
			}
			if m != nil {
				m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.statusCode)).Inc()
				m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
			}

			logging.LogHTTPRequest(reqLogger,
				r.Method,
				r.URL.Path,
				rec.statusCode,
				float64(elapsed.Nanoseconds())/1e6,
				slog.String("route", route),
				slog.Int("bytes", rec.bytes),
				slog.String("user_agent", r.Header.Get("User-Agent")),
				slog.String("component", "http_server"))
		})
	}
}

// statusRecorder captures the status code and body size written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// requestLogger derives the per-request logger handlers read from the context.
func requestLogger(base *slog.Logger, r *http.Request) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With(slog.String("request_id", GetRequestID(r.Context())))
}
