package restapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// HealthResponse represents the JSON response from the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// healthHandler reports 503 until the first poll cycle has been published.
// A missing timetable is reported in the detail but does not fail the check.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	setJSONResponseType(w)

	if !api.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status: "starting",
			Detail: "waiting for the first poll cycle",
		})
		return
	}

	detail := "timetable not loaded"
	if api.Timetable != nil && api.Timetable.Loaded() {
		stats := api.Timetable.Stats()
		detail = fmt.Sprintf("timetable loaded: %d stops, %d trips", stats.Stops, stats.Trips)
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status: "ok",
		Detail: detail,
	})
}
