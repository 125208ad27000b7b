package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mapleleafu/typerace/game"
	"github.com/mapleleafu/typerace/models"
	"github.com/mapleleafu/typerace/repository"
	"github.com/mapleleafu/typerace/responses"
	"github.com/mapleleafu/typerace/utils"
)

const (
	defaultRaceLimit = 20
	maxRaceLimit     = 100
)

type RaceLister interface {
	ListRaces(ctx context.Context, limit int) ([]models.Race, error)
}

type SessionFinder interface {
	FindSession(ctx context.Context, raceID string) (models.RaceSession, error)
}

// API serves the read-only HTTP status endpoints. Races and Journal are nil
// when the matching store is not configured.
type API struct {
	State   *game.State
	Races   RaceLister
	Journal SessionFinder
	Hub     *Hub
}

func (a *API) FetchLobby(w http.ResponseWriter, r *http.Request) {
	utils.HandleSuccess(w, models.SuccessResponse(a.State.Snapshot()))
}

func (a *API) FetchRaces(w http.ResponseWriter, r *http.Request) {
	if a.Races == nil {
		utils.HandleError(w, responses.ServiceUnavailableError{Msg: "Race history is not enabled."})
		return
	}

	limit := defaultRaceLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			utils.HandleError(w, responses.BadRequestAPIError{Msg: "limit must be a positive integer."})
			return
		}
		limit = min(n, maxRaceLimit)
	}

	races, err := a.Races.ListRaces(r.Context(), limit)
	if err != nil {
		log.Printf("Error fetching races: %v", err)
		utils.HandleError(w, responses.InternalServerError{Msg: "Failed to fetch races."})
		return
	}
	if races == nil {
		races = []models.Race{}
	}
	utils.HandleSuccess(w, models.SuccessResponse(races))
}

func (a *API) FetchRaceSession(w http.ResponseWriter, r *http.Request) {
	if a.Journal == nil {
		utils.HandleError(w, responses.ServiceUnavailableError{Msg: "Race journal is not enabled."})
		return
	}

	raceID := mux.Vars(r)["raceID"]
	session, err := a.Journal.FindSession(r.Context(), raceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.HandleError(w, responses.NotFoundError{Msg: "Race session not found."})
			return
		}
		log.Printf("Error fetching race session: %v", err)
		utils.HandleError(w, responses.InternalServerError{Msg: "Error fetching race session."})
		return
	}
	utils.HandleSuccess(w, models.SuccessResponse(session))
}
