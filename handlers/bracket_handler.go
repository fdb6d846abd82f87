package handlers

import (
	"errors"
	"net/http"

	"github.com/markwoz/kart-league/models"
	"github.com/markwoz/kart-league/services"
)

type BracketHandler struct {
	bracketService services.BracketService
}

func NewBracketHandler(bracketService services.BracketService) *BracketHandler {
	return &BracketHandler{bracketService: bracketService}
}

func (h *BracketHandler) BuildBracket(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Format string `json:"format"`
		TopN   int    `json:"top_n"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Format == "" {
		badRequestResponse(w, r, errors.New("format is required"))
		return
	}

	matches, err := h.bracketService.BuildBracket(r.Context(), tournamentID, models.Format(input.Format), input.TopN, IdentityFromContext(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *BracketHandler) GetBracket(w http.ResponseWriter, r *http.Request) {
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

	view, err := h.bracketService.GetBracket(r.Context(), tournamentID, format)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, view, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// AdvanceMatch re-drives advancement for a completed match. Normally it runs
// automatically on completion; this endpoint exists to repair matches whose
// advancement was logged as failed.
func (h *BracketHandler) AdvanceMatch(w http.ResponseWriter, r *http.Request) {
	if !IdentityFromContext(r).IsAdmin {
		forbiddenResponse(w, r, services.ErrForbiddenOperation.Error())
		return
	}
	matchID, err := urlParamInt(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	affected, err := h.bracketService.AdvanceFrom(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"affected_match_ids": affected}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
