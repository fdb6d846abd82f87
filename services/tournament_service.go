package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/markwoz/kart-league/models"
	"github.com/markwoz/kart-league/repositories"
)

type TournamentInput struct {
	Name    string
	Season  string
	Courses []string
}

// TournamentService is the admin surface for the tournament lifecycle:
// created in registration, opened for play, closed out.
type TournamentService interface {
	Create(ctx context.Context, input TournamentInput, identity models.Identity) (*models.Tournament, error)
	Get(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context) ([]*models.Tournament, error)
	UpdateStatus(ctx context.Context, id int, status models.TournamentStatus, identity models.Identity) (*models.Tournament, error)
}

type tournamentService struct {
	tournamentRepo repositories.TournamentRepository
}

func NewTournamentService(tournamentRepo repositories.TournamentRepository) TournamentService {
	return &tournamentService{tournamentRepo: tournamentRepo}
}

func (s *tournamentService) Create(ctx context.Context, input TournamentInput, identity models.Identity) (*models.Tournament, error) {
	if !identity.IsAdmin {
		return nil, ErrForbiddenOperation
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: tournament name is required", ErrValidationFailed)
	}
	seen := make(map[string]struct{}, len(input.Courses))
	for _, course := range input.Courses {
		if strings.TrimSpace(course) == "" {
			return nil, fmt.Errorf("%w: course names cannot be empty", ErrValidationFailed)
		}
		if _, dup := seen[course]; dup {
			return nil, fmt.Errorf("%w: duplicate course %q", ErrValidationFailed, course)
		}
		seen[course] = struct{}{}
	}

	tournament := &models.Tournament{
		Name:    name,
		Season:  strings.TrimSpace(input.Season),
		Status:  models.TournamentRegistration,
		Courses: input.Courses,
	}
	if err := s.tournamentRepo.Create(ctx, tournament); err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}
	return tournament, nil
}

func (s *tournamentService) Get(ctx context.Context, id int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to read tournament %d: %w", id, err)
	}
	return tournament, nil
}

func (s *tournamentService) List(ctx context.Context) ([]*models.Tournament, error) {
	tournaments, err := s.tournamentRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	return tournaments, nil
}

func (s *tournamentService) UpdateStatus(ctx context.Context, id int, status models.TournamentStatus, identity models.Identity) (*models.Tournament, error) {
	if !identity.IsAdmin {
		return nil, ErrForbiddenOperation
	}
	switch status {
	case models.TournamentRegistration, models.TournamentActive, models.TournamentCompleted:
	default:
		return nil, fmt.Errorf("%w: unknown tournament status %q", ErrValidationFailed, status)
	}

	if err := s.tournamentRepo.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to update status of tournament %d: %w", id, err)
	}
	return s.Get(ctx, id)
}
