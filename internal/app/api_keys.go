package app

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequestHasInvalidAPIKey checks the key query parameter, falling back to
// the X-API-Key header.
func (app *Application) RequestHasInvalidAPIKey(r *http.Request) bool {
	key := r.URL.Query().Get("key")
	if key == "" {
		key = r.Header.Get("X-API-Key")
	}
	return app.IsInvalidAPIKey(key)
}

// IsInvalidAPIKey reports whether key is rejected. With no keys configured
// every request is accepted.
func (app *Application) IsInvalidAPIKey(key string) bool {
	validKeys := app.Config.APIKeys
	if len(validKeys) == 0 {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}
	for _, validKey := range validKeys {
		// Use constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
			return false
		}
	}
	return true
}
