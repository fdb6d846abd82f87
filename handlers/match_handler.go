package handlers

import (
	"errors"
	"net/http"

	"github.com/markwoz/kart-league/models"
	"github.com/markwoz/kart-league/services"
)

// Evidence uploads are screenshots; anything past this is rejected up front.
const maxEvidenceBytes = 10 << 20

type MatchHandler struct {
	matchService  services.MatchService
	reportService services.ReportService
}

func NewMatchHandler(matchService services.MatchService, reportService services.ReportService) *MatchHandler {
	return &MatchHandler{matchService: matchService, reportService: reportService}
}

func (h *MatchHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := urlParamInt(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.GetMatch(r.Context(), matchID, IdentityFromContext(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var format *models.Format
	if raw := r.URL.Query().Get("format"); raw != "" {
		f := models.Format(raw)
		format = &f
	}

	matches, err := h.matchService.ListMatches(r.Context(), tournamentID, format)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) ReportScore(w http.ResponseWriter, r *http.Request) {
	matchID, err := urlParamInt(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		ReportingPlayer int             `json:"reporting_player"`
		Score1          int             `json:"score1"`
		Score2          int             `json:"score2"`
		Races           models.RaceList `json:"races"`
		Character       string          `json:"character"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	payload := services.ReportPayload{
		Score1:    input.Score1,
		Score2:    input.Score2,
		Races:     input.Races,
		Character: input.Character,
	}
	result, err := h.reportService.ReportScore(r.Context(), matchID, input.ReportingPlayer, payload, IdentityFromContext(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) AdminSetScore(w http.ResponseWriter, r *http.Request) {
	matchID, err := urlParamInt(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Score1 int             `json:"score1"`
		Score2 int             `json:"score2"`
		Races  models.RaceList `json:"races"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.reportService.AdminSetScore(r.Context(), matchID, input.Score1, input.Score2, input.Races, IdentityFromContext(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) AttachEvidence(w http.ResponseWriter, r *http.Request) {
	matchID, err := urlParamInt(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := r.ParseMultipartForm(maxEvidenceBytes); err != nil {
		badRequestResponse(w, r, errors.New("failed to parse multipart form, file too large or malformed"))
		return
	}
	file, header, err := r.FormFile("evidence")
	if err != nil {
		badRequestResponse(w, r, errors.New("evidence file is required"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	match, err := h.reportService.AttachEvidence(r.Context(), matchID, IdentityFromContext(r), contentType, file)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
