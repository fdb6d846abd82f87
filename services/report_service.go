package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/markwoz/kart-league/brackets"
	"github.com/markwoz/kart-league/models"
	"github.com/markwoz/kart-league/repositories"
	"github.com/markwoz/kart-league/storage"
)

// maxReportAttempts bounds the optimistic read-modify-write retry loop. Past
// it the caller gets ErrReportConflict and has to resubmit.
const maxReportAttempts = 4

type ReportPayload struct {
	Score1    int             `json:"score1"`
	Score2    int             `json:"score2"`
	Races     models.RaceList `json:"races,omitempty"`
	Character string          `json:"character,omitempty"`
}

type PlayerReport struct {
	Score1 int             `json:"score1"`
	Score2 int             `json:"score2"`
	Races  models.RaceList `json:"races,omitempty"`
}

// ReportResult is the outcome of one report submission: exactly one of
// WaitingFor, AutoConfirmed, or Mismatch applies.
type ReportResult struct {
	Match *models.Match `json:"match"`

	// WaitingFor names the opponent whose report is still missing.
	WaitingFor *int `json:"waiting_for,omitempty"`

	AutoConfirmed bool `json:"auto_confirmed,omitempty"`

	// Mismatch means the two reports disagree and an admin has to decide.
	// Partial narrows it: the aggregate scores agree but the race-by-race
	// detail does not.
	Mismatch      bool          `json:"mismatch,omitempty"`
	Partial       bool          `json:"partial,omitempty"`
	Player1Report *PlayerReport `json:"player1_report,omitempty"`
	Player2Report *PlayerReport `json:"player2_report,omitempty"`
}

type ReportService interface {
	// ReportScore runs the dual-report reconciliation protocol for one
	// player's submission.
	ReportScore(ctx context.Context, matchID, reportingPlayer int, payload ReportPayload, identity models.Identity) (*ReportResult, error)

	// AdminSetScore bypasses the dual-report flow and writes the confirmed
	// result directly. It is the only exit from the disputed state.
	AdminSetScore(ctx context.Context, matchID int, score1, score2 int, races models.RaceList, identity models.Identity) (*models.Match, error)

	// AttachEvidence stores a screenshot for a disputed match.
	AttachEvidence(ctx context.Context, matchID int, identity models.Identity, contentType string, data io.Reader) (*models.Match, error)
}

type reportService struct {
	matchRepo repositories.MatchRepository
	auditRepo repositories.AuditRepository
	standings StandingsService
	advancer  BracketAdvancer
	hub       *brackets.Hub
	uploader  storage.FileUploader
	logger    *slog.Logger
}

func NewReportService(
	matchRepo repositories.MatchRepository,
	auditRepo repositories.AuditRepository,
	standings StandingsService,
	advancer BracketAdvancer,
	hub *brackets.Hub,
	uploader storage.FileUploader,
	logger *slog.Logger,
) ReportService {
	return &reportService{
		matchRepo: matchRepo,
		auditRepo: auditRepo,
		standings: standings,
		advancer:  advancer,
		hub:       hub,
		uploader:  uploader,
		logger:    logger,
	}
}

func (s *reportService) ReportScore(ctx context.Context, matchID, reportingPlayer int, payload ReportPayload, identity models.Identity) (*ReportResult, error) {
	if reportingPlayer != 1 && reportingPlayer != 2 {
		return nil, fmt.Errorf("%w: reporting player must be 1 or 2", ErrValidationFailed)
	}

	for attempt := 0; attempt < maxReportAttempts; attempt++ {
		match, err := s.matchRepo.GetByID(ctx, matchID)
		if err != nil {
			if errors.Is(err, repositories.ErrMatchNotFound) {
				return nil, ErrMatchNotFound
			}
			return nil, fmt.Errorf("failed to read match %d: %w", matchID, err)
		}
		if match.Completed {
			return nil, ErrAlreadyCompleted
		}
		if match.Player1ID == nil || match.Player2ID == nil {
			return nil, ErrMatchNotReady
		}
		if err := authorizeReporter(match, reportingPlayer, identity); err != nil {
			return nil, err
		}
		if err := s.validatePayload(match, payload); err != nil {
			return nil, err
		}

		err = s.matchRepo.UpdateReport(ctx, match.ID, match.Version, reportingPlayer, payload.Score1, payload.Score2, payload.Races)
		if errors.Is(err, repositories.ErrMatchVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to store report for match %d: %w", matchID, err)
		}

		// Re-read both reports and decide the match's next state.
		updated, err := s.matchRepo.GetByID(ctx, matchID)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read match %d after report: %w", matchID, err)
		}

		result, confirm := s.decide(updated, reportingPlayer)
		if confirm != nil {
			err = s.matchRepo.ConfirmResult(ctx, updated.ID, updated.Version, confirm.Score1, confirm.Score2, confirm.Races)
			if errors.Is(err, repositories.ErrMatchVersionConflict) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to confirm match %d: %w", matchID, err)
			}
			confirmed, err := s.matchRepo.GetByID(ctx, matchID)
			if err != nil {
				return nil, fmt.Errorf("failed to re-read match %d after confirmation: %w", matchID, err)
			}
			result.Match = confirmed
			s.onCompleted(ctx, confirmed)
		}

		s.recordSideEffects(ctx, updated, reportingPlayer, payload, identity)
		s.hub.BroadcastToRoom(tournamentRoom(updated.TournamentID), brackets.Message{
			Type:    brackets.EventMatchUpdated,
			Payload: result.Match,
		})
		return result, nil
	}

	return nil, ErrReportConflict
}

func authorizeReporter(match *models.Match, reportingPlayer int, identity models.Identity) error {
	if identity.IsAdmin {
		return nil
	}
	slotPlayer := match.Player1ID
	if reportingPlayer == 2 {
		slotPlayer = match.Player2ID
	}
	if slotPlayer == nil || !identity.IsPlayer(*slotPlayer) {
		return ErrForbiddenOperation
	}
	return nil
}

func (s *reportService) validatePayload(match *models.Match, payload ReportPayload) error {
	rules, err := models.Rules(match.Format)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if err := rules.ValidateReport(payload.Score1, payload.Score2, payload.Races); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if match.Bracket != nil && !rules.IsDecided(payload.Score1, payload.Score2) {
		return fmt.Errorf("%w: a bracket match cannot end in a tie", ErrValidationFailed)
	}
	return nil
}

// decide inspects both stored reports. It returns the client-facing result
// and, when both reports agree exactly, the report to confirm.
func (s *reportService) decide(match *models.Match, reportingPlayer int) (*ReportResult, *PlayerReport) {
	result := &ReportResult{Match: match}

	s1a, s2a, racesA, ok1 := match.ReportOf(1)
	s1b, s2b, racesB, ok2 := match.ReportOf(2)

	if !ok1 || !ok2 {
		waitingFor := match.Player1ID
		if reportingPlayer == 1 {
			waitingFor = match.Player2ID
		}
		result.WaitingFor = waitingFor
		return result, nil
	}

	report1 := &PlayerReport{Score1: s1a, Score2: s2a, Races: racesA}
	report2 := &PlayerReport{Score1: s1b, Score2: s2b, Races: racesB}

	scoresAgree := s1a == s1b && s2a == s2b
	racesAgree := racesA.Equal(racesB)

	if scoresAgree && racesAgree {
		result.AutoConfirmed = true
		return result, report1
	}

	// Mismatched reports are never auto-resolved in either direction; both
	// versions stay visible until an admin decides.
	result.Mismatch = true
	result.Partial = scoresAgree
	result.Player1Report = report1
	result.Player2Report = report2
	return result, nil
}

func (s *reportService) AdminSetScore(ctx context.Context, matchID int, score1, score2 int, races models.RaceList, identity models.Identity) (*models.Match, error) {
	if !identity.IsAdmin {
		return nil, ErrForbiddenOperation
	}

	for attempt := 0; attempt < maxReportAttempts; attempt++ {
		match, err := s.matchRepo.GetByID(ctx, matchID)
		if err != nil {
			if errors.Is(err, repositories.ErrMatchNotFound) {
				return nil, ErrMatchNotFound
			}
			return nil, fmt.Errorf("failed to read match %d: %w", matchID, err)
		}
		if match.Completed {
			return nil, ErrAlreadyCompleted
		}
		if match.Player1ID == nil || match.Player2ID == nil {
			return nil, ErrMatchNotReady
		}

		rules, err := models.Rules(match.Format)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
		if err := rules.ValidateReport(score1, score2, races); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
		if match.Bracket != nil && !rules.IsDecided(score1, score2) {
			return nil, fmt.Errorf("%w: a bracket match cannot end in a tie", ErrValidationFailed)
		}

		err = s.matchRepo.ConfirmResult(ctx, match.ID, match.Version, score1, score2, races)
		if errors.Is(err, repositories.ErrMatchVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to set score for match %d: %w", matchID, err)
		}

		confirmed, err := s.matchRepo.GetByID(ctx, matchID)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read match %d after admin set: %w", matchID, err)
		}
		s.onCompleted(ctx, confirmed)
		s.recordSideEffects(ctx, confirmed, 0, ReportPayload{Score1: score1, Score2: score2, Races: races}, identity)
		s.hub.BroadcastToRoom(tournamentRoom(confirmed.TournamentID), brackets.Message{
			Type:    brackets.EventMatchUpdated,
			Payload: confirmed,
		})
		return confirmed, nil
	}

	return nil, ErrReportConflict
}

// onCompleted runs the downstream bookkeeping once a match is durably
// completed. Failures here never roll the completion back; the match result
// is authoritative even if standings or advancement lag and need repair.
func (s *reportService) onCompleted(ctx context.Context, match *models.Match) {
	for _, playerID := range []*int{match.Player1ID, match.Player2ID} {
		if playerID == nil {
			continue
		}
		if err := s.standings.Recalculate(ctx, match.TournamentID, match.Format, *playerID); err != nil {
			s.logger.Error("standings recalculation failed after match completion",
				slog.Int("match_id", match.ID),
				slog.Int("player_id", *playerID),
				slog.Any("error", err))
		}
	}

	if match.Bracket != nil {
		if _, err := s.advancer.AdvanceFrom(ctx, match.ID); err != nil {
			s.logger.Error("bracket advancement failed after match completion",
				slog.Int("match_id", match.ID),
				slog.Any("error", err))
		}
	}
}

// recordSideEffects writes the score-entry audit record and character usage.
// Both are best-effort: audit and analytics data is not allowed to block
// competitive results, so failures are only logged.
func (s *reportService) recordSideEffects(ctx context.Context, match *models.Match, reportSlot int, payload ReportPayload, identity models.Identity) {
	record := repositories.ScoreAuditRecord{
		MatchID:    match.ID,
		PlayerID:   identity.PlayerID,
		ByAdmin:    identity.IsAdmin,
		Score1:     payload.Score1,
		Score2:     payload.Score2,
		Races:      payload.Races,
		ReportSlot: reportSlot,
	}
	if err := s.auditRepo.RecordScoreEntry(ctx, record); err != nil {
		s.logger.Warn("failed to record score audit entry",
			slog.Int("match_id", match.ID), slog.Any("error", err))
	}

	if payload.Character != "" && identity.PlayerID != nil {
		if err := s.auditRepo.RecordCharacterUsage(ctx, match.ID, *identity.PlayerID, payload.Character); err != nil {
			s.logger.Warn("failed to record character usage",
				slog.Int("match_id", match.ID), slog.Any("error", err))
		}
	}
}

func (s *reportService) AttachEvidence(ctx context.Context, matchID int, identity models.Identity, contentType string, data io.Reader) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to read match %d: %w", matchID, err)
	}
	if match.State() != models.MatchDisputed {
		return nil, ErrMatchNotDisputed
	}
	if !identity.IsAdmin {
		if identity.PlayerID == nil || match.SlotOf(*identity.PlayerID) == 0 {
			return nil, ErrForbiddenOperation
		}
	}

	ext, err := extensionForContentType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	key := fmt.Sprintf("evidence/t%d/m%d%s", match.TournamentID, match.ID, ext)
	if _, err := s.uploader.Upload(ctx, key, contentType, data); err != nil {
		return nil, fmt.Errorf("failed to upload evidence for match %d: %w", matchID, err)
	}

	if err := s.matchRepo.SetEvidenceKey(ctx, match.ID, match.Version, key); err != nil {
		if errors.Is(err, repositories.ErrMatchVersionConflict) {
			return nil, ErrReportConflict
		}
		return nil, fmt.Errorf("failed to store evidence key for match %d: %w", matchID, err)
	}

	updated, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read match %d: %w", matchID, err)
	}
	populateMatchEvidenceURL(updated, s.uploader)
	return updated, nil
}
