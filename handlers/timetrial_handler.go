package handlers

import (
	"errors"
	"net/http"

	"github.com/markwoz/kart-league/services"
)

type TimeTrialHandler struct {
	timeTrialService services.TimeTrialService
}

func NewTimeTrialHandler(timeTrialService services.TimeTrialService) *TimeTrialHandler {
	return &TimeTrialHandler{timeTrialService: timeTrialService}
}

func (h *TimeTrialHandler) Enter(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	identity := IdentityFromContext(r)
	if identity.PlayerID == nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	entry, err := h.timeTrialService.Enter(r.Context(), tournamentID, *identity.PlayerID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"entry": entry}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TimeTrialHandler) SubmitTime(w http.ResponseWriter, r *http.Request) {
	entryID, err := urlParamInt(r, "entryID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Course string `json:"course"`
		Time   string `json:"time"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Course == "" || input.Time == "" {
		badRequestResponse(w, r, errors.New("course and time are required"))
		return
	}

	entry, err := h.timeTrialService.SubmitTime(r.Context(), entryID, input.Course, input.Time, IdentityFromContext(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"entry": entry}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TimeTrialHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entries, err := h.timeTrialService.Leaderboard(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"entries": entries}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TimeTrialHandler) DecrementLives(w http.ResponseWriter, r *http.Request) {
	entryID, err := urlParamInt(r, "entryID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entry, err := h.timeTrialService.DecrementLives(r.Context(), entryID, IdentityFromContext(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"entry": entry}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
