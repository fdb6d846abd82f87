package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/markwoz/kart-league/models"
	"github.com/markwoz/kart-league/repositories"
)

type StandingsService interface {
	// Recalculate rebuilds one player's qualification aggregates from the
	// full set of their completed matches and writes them as a replacement.
	// Rerunning with no intervening completions produces identical output.
	Recalculate(ctx context.Context, tournamentID int, format models.Format, playerID int) error

	List(ctx context.Context, tournamentID int, format models.Format) ([]*models.Qualification, error)
	Enroll(ctx context.Context, tournamentID int, format models.Format, playerID int) (*models.Qualification, error)
	Drop(ctx context.Context, tournamentID int, format models.Format, playerID int, identity models.Identity) error
}

type standingsService struct {
	qualificationRepo repositories.QualificationRepository
	matchRepo         repositories.MatchRepository
	tournamentRepo    repositories.TournamentRepository
	playerRepo        repositories.PlayerRepository
}

func NewStandingsService(
	qualificationRepo repositories.QualificationRepository,
	matchRepo repositories.MatchRepository,
	tournamentRepo repositories.TournamentRepository,
	playerRepo repositories.PlayerRepository,
) StandingsService {
	return &standingsService{
		qualificationRepo: qualificationRepo,
		matchRepo:         matchRepo,
		tournamentRepo:    tournamentRepo,
		playerRepo:        playerRepo,
	}
}

func (s *standingsService) Recalculate(ctx context.Context, tournamentID int, format models.Format, playerID int) error {
	rules, err := models.Rules(format)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	matches, err := s.matchRepo.ListCompletedByPlayer(ctx, tournamentID, format, playerID)
	if err != nil {
		return fmt.Errorf("failed to list completed matches for player %d: %w", playerID, err)
	}

	agg := models.Qualification{
		TournamentID: tournamentID,
		Format:       format,
		PlayerID:     playerID,
	}
	for _, match := range matches {
		if match.Score1 == nil || match.Score2 == nil {
			continue
		}
		own, against := *match.Score1, *match.Score2
		if match.SlotOf(playerID) == 2 {
			own, against = against, own
		}

		agg.MatchesPlayed++
		agg.Score += own - against
		switch rules.Outcome(own, against) {
		case models.OutcomeWin:
			agg.Wins++
		case models.OutcomeTie:
			agg.Ties++
		case models.OutcomeLoss:
			agg.Losses++
		}
	}
	agg.Points = models.QualPointsWin*agg.Wins + models.QualPointsTie*agg.Ties

	err = s.qualificationRepo.ReplaceAggregates(ctx, nil, &agg)
	if errors.Is(err, repositories.ErrQualificationNotFound) {
		// Bracket-only entrants may never have enrolled explicitly; create
		// the row so their results are still visible in standings.
		if createErr := s.qualificationRepo.Create(ctx, nil, &agg); createErr != nil {
			return fmt.Errorf("failed to create qualification for player %d: %w", playerID, createErr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to replace aggregates for player %d: %w", playerID, err)
	}
	return nil
}

func (s *standingsService) List(ctx context.Context, tournamentID int, format models.Format) ([]*models.Qualification, error) {
	if _, err := models.Rules(format); err != nil && format != models.FormatTimeAttack {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	standings, err := s.qualificationRepo.ListByTournamentFormat(ctx, tournamentID, format, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list standings: %w", err)
	}

	// Rank follows the standings sort order; ties share position by points.
	rank := 0
	lastPoints := -1
	for i, q := range standings {
		if q.Points != lastPoints {
			rank = i + 1
			lastPoints = q.Points
		}
		r := rank
		q.Rank = &r
	}
	return standings, nil
}

func (s *standingsService) Enroll(ctx context.Context, tournamentID int, format models.Format, playerID int) (*models.Qualification, error) {
	if _, err := models.Rules(format); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if _, err := s.tournamentRepo.GetByID(ctx, tournamentID); err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	if _, err := s.playerRepo.GetByID(ctx, playerID); err != nil {
		if errors.Is(err, repositories.ErrPlayerNotFound) {
			return nil, ErrPlayerNotFound
		}
		return nil, err
	}

	q := &models.Qualification{
		TournamentID: tournamentID,
		Format:       format,
		PlayerID:     playerID,
	}
	if err := s.qualificationRepo.Create(ctx, nil, q); err != nil {
		if errors.Is(err, repositories.ErrQualificationConflict) {
			return nil, ErrAlreadyEnrolled
		}
		return nil, fmt.Errorf("failed to enroll player %d: %w", playerID, err)
	}
	return q, nil
}

func (s *standingsService) Drop(ctx context.Context, tournamentID int, format models.Format, playerID int, identity models.Identity) error {
	if !identity.IsAdmin && !identity.IsPlayer(playerID) {
		return ErrForbiddenOperation
	}
	q, err := s.qualificationRepo.GetByPlayer(ctx, tournamentID, format, playerID)
	if err != nil {
		if errors.Is(err, repositories.ErrQualificationNotFound) {
			return ErrQualificationNotFound
		}
		return err
	}
	return s.qualificationRepo.MarkDropped(ctx, q.ID)
}
