package handlers

import (
	"errors"
	"net/http"

	"github.com/markwoz/kart-league/models"
	"github.com/markwoz/kart-league/services"
)

type StandingsHandler struct {
	standingsService services.StandingsService
}

func NewStandingsHandler(standingsService services.StandingsService) *StandingsHandler {
	return &StandingsHandler{standingsService: standingsService}
}

func (h *StandingsHandler) ListStandings(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	format := models.Format(r.URL.Query().Get("format"))
	if format == "" {
		badRequestResponse(w, r, errors.New("format query parameter is required"))
		return
	}

	standings, err := h.standingsService.List(r.Context(), tournamentID, format)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"standings": standings}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *StandingsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Format string `json:"format"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	identity := IdentityFromContext(r)
	if identity.PlayerID == nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	qualification, err := h.standingsService.Enroll(r.Context(), tournamentID, models.Format(input.Format), *identity.PlayerID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"qualification": qualification}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *StandingsHandler) Drop(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	playerID, err := urlParamInt(r, "playerID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	format := models.Format(r.URL.Query().Get("format"))
	if format == "" {
		badRequestResponse(w, r, errors.New("format query parameter is required"))
		return
	}

	if err := h.standingsService.Drop(r.Context(), tournamentID, format, playerID, IdentityFromContext(r)); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
