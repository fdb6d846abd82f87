package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/markwoz/kart-league/models"
	"github.com/markwoz/kart-league/repositories"
	"github.com/markwoz/kart-league/storage"
)

type MatchService interface {
	GetMatch(ctx context.Context, matchID int, identity models.Identity) (*models.Match, error)
	ListMatches(ctx context.Context, tournamentID int, format *models.Format) ([]*models.Match, error)
}

type matchService struct {
	matchRepo repositories.MatchRepository
	uploader  storage.FileUploader
}

func NewMatchService(matchRepo repositories.MatchRepository, uploader storage.FileUploader) MatchService {
	return &matchService{matchRepo: matchRepo, uploader: uploader}
}

func (s *matchService) GetMatch(ctx context.Context, matchID int, identity models.Identity) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to read match %d: %w", matchID, err)
	}
	hideRawReports(match, identity)
	populateMatchEvidenceURL(match, s.uploader)
	return match, nil
}

func (s *matchService) ListMatches(ctx context.Context, tournamentID int, format *models.Format) ([]*models.Match, error) {
	if format != nil {
		if _, err := models.Rules(*format); err != nil && *format != models.FormatTimeAttack {
			return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
	}
	matches, err := s.matchRepo.ListByTournament(ctx, tournamentID, format)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for tournament %d: %w", tournamentID, err)
	}
	populateMatchListEvidenceURLs(matches, s.uploader)
	return matches, nil
}

// hideRawReports strips the pre-confirmation reports from non-participants.
// Participants see their own and the opponent's filed report; everyone sees
// the confirmed result.
func hideRawReports(match *models.Match, identity models.Identity) {
	if identity.IsAdmin {
		return
	}
	participant := (match.Player1ID != nil && identity.IsPlayer(*match.Player1ID)) ||
		(match.Player2ID != nil && identity.IsPlayer(*match.Player2ID))
	if participant {
		return
	}
	match.P1ReportedScore1, match.P1ReportedScore2 = nil, nil
	match.P2ReportedScore1, match.P2ReportedScore2 = nil, nil
	match.P1ReportedRaces, match.P2ReportedRaces = nil, nil
}
