package restapi

import (
	"net/http"
	"time"
)

// CurrentTimeData is the payload of /api/current-time.
type CurrentTimeData struct {
	Time         string `json:"time"`
	ReadableTime string `json:"readableTime"`
}

func (api *RestAPI) currentTimeHandler(w http.ResponseWriter, r *http.Request) {
	now := api.Clock.Now()
	if api.Location != nil {
		now = now.In(api.Location)
	}
	api.sendResponse(w, r, CurrentTimeData{
		Time:         now.Format(time.RFC3339),
		ReadableTime: now.Format("Monday 2 January 2006, 15:04"),
	})
}
