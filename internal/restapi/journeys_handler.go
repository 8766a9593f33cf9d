package restapi

import (
	"net/http"
)

func (api *RestAPI) journeysHandler(w http.ResponseWriter, r *http.Request) {
	snap := api.Store.Load()
	if snap == nil {
		api.sendUnavailable(w, r, "no poll cycle has completed yet")
		return
	}
	api.sendResponse(w, r, snap)
}

func (api *RestAPI) journeyHandler(w http.ResponseWriter, r *http.Request) {
	snap := api.Store.Load()
	if snap == nil {
		api.sendUnavailable(w, r, "no poll cycle has completed yet")
		return
	}
	view, ok := snap.Route(r.PathValue("key"))
	if !ok {
		api.sendNotFound(w, r)
		return
	}
	api.sendResponse(w, r, view)
}
