package handlers

import (
	"github.com/gorilla/mux"
	"github.com/mapleleafu/typerace/middleware"
)

func NewRouter(api *API) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware)

	r.HandleFunc("/api/lobby", api.FetchLobby).Methods("GET")
	r.HandleFunc("/api/races", api.FetchRaces).Methods("GET")
	r.HandleFunc("/api/races/{raceID}", api.FetchRaceSession).Methods("GET")
	if api.Hub != nil {
		r.HandleFunc("/ws", WsHandler(api.Hub, api.State))
	}
	return r
}
