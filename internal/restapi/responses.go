package restapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"ovwatch.transit.nl/internal/logging"
)

// ResponseModel is the envelope of every /api response.
type ResponseModel struct {
	Code        int                 `json:"code"`
	CurrentTime int64               `json:"currentTime"`
	Text        string              `json:"text"`
	Data        any                 `json:"data,omitempty"`
	FieldErrors map[string][]string `json:"fieldErrors,omitempty"`
}

func (api *RestAPI) currentTime() int64 {
	if api.Application == nil || api.Clock == nil {
		return 0
	}
	return api.Clock.NowUnixMilli()
}

func (api *RestAPI) sendResponse(w http.ResponseWriter, r *http.Request, data any) {
	writeJSON(w, r, http.StatusOK, ResponseModel{
		Code:        http.StatusOK,
		CurrentTime: api.currentTime(),
		Text:        "OK",
		Data:        data,
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, body any) {
	setJSONResponseType(w)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to encode response", err,
			slog.String("path", r.URL.Path))
	}
}

func setJSONResponseType(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}

func (api *RestAPI) sendError(w http.ResponseWriter, r *http.Request, code int, message string) {
	writeJSON(w, r, code, ResponseModel{
		Code:        code,
		CurrentTime: api.currentTime(),
		Text:        message,
	})
}

func (api *RestAPI) sendNotFound(w http.ResponseWriter, r *http.Request) {
	api.sendError(w, r, http.StatusNotFound, "resource not found")
}

func (api *RestAPI) sendUnauthorized(w http.ResponseWriter, r *http.Request) {
	api.sendError(w, r, http.StatusUnauthorized, "permission denied")
}

func (api *RestAPI) sendUnavailable(w http.ResponseWriter, r *http.Request, message string) {
	api.sendError(w, r, http.StatusServiceUnavailable, message)
}

func (api *RestAPI) validationErrorResponse(w http.ResponseWriter, r *http.Request, fieldErrors map[string][]string) {
	writeJSON(w, r, http.StatusBadRequest, ResponseModel{
		Code:        http.StatusBadRequest,
		CurrentTime: api.currentTime(),
		Text:        "invalid request",
		FieldErrors: fieldErrors,
	})
}

func (api *RestAPI) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logging.LogError(logging.FromContext(r.Context()), "request failed", err,
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))
	api.sendError(w, r, http.StatusInternalServerError, "internal server error")
}

func (api *RestAPI) upstreamErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logging.LogWarn(logging.FromContext(r.Context()), "upstream feed failed", err,
		slog.String("path", r.URL.Path))
	api.sendError(w, r, http.StatusBadGateway, "upstream feed unavailable")
}
