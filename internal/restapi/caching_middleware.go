package restapi

import (
	"net/http"
	"strconv"
)

const noCache = "no-cache, no-store, must-revalidate"

// cachePolicy is the max-age in seconds granted to successful responses of
// an endpoint. Zero disables caching.
type cachePolicy int

func (p cachePolicy) headerFor(status int) string {
	if p <= 0 || status < 200 || status >= 300 {
		return noCache
	}
	return "public, max-age=" + strconv.Itoa(int(p))
}

// CacheControlMiddleware sets Cache-Control once the status is known, unless
// the handler chose its own.
func CacheControlMiddleware(durationSeconds int, next http.Handler) http.Handler {
	policy := cachePolicy(durationSeconds)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&cacheHeaderWriter{ResponseWriter: w, policy: policy}, r)
	})
}

type cacheHeaderWriter struct {
	http.ResponseWriter
	policy cachePolicy
	sent   bool
}

func (w *cacheHeaderWriter) WriteHeader(status int) {
	if !w.sent {
		w.sent = true
		if w.Header().Get("Cache-Control") == "" {
			w.Header().Set("Cache-Control", w.policy.headerFor(status))
		}
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *cacheHeaderWriter) Write(b []byte) (int, error) {
	if !w.sent {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *cacheHeaderWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
