package restapi

import (
	"net/http"
)

// LinesForStop is the payload of /api/stops/{code}/lines.
type LinesForStop struct {
	StopCode string   `json:"stopCode"`
	Lines    []string `json:"lines"`
}

// linesForStopHandler lists the lines currently passing a stop according to
// OVapi. It helps pick a line filter for a route.
func (api *RestAPI) linesForStopHandler(w http.ResponseWriter, r *http.Request) {
	if api.OVapi == nil {
		api.sendUnavailable(w, r, "ovapi feed not configured")
		return
	}
	code := r.PathValue("code")
	lines, err := api.OVapi.LinesAt(r.Context(), code)
	if err != nil {
		api.upstreamErrorResponse(w, r, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	api.sendResponse(w, r, LinesForStop{StopCode: code, Lines: lines})
}
