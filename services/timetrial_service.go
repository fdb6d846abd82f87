package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/markwoz/kart-league/brackets"
	"github.com/markwoz/kart-league/models"
	"github.com/markwoz/kart-league/repositories"
)

const (
	maxTimeTrialAttempts = 4
	startingLives        = 3
)

// lapTimePattern matches "M:SS.mmm" with minutes up to two digits.
var lapTimePattern = regexp.MustCompile(`^(\d{1,2}):([0-5]\d)\.(\d{3})$`)

type TimeTrialService interface {
	Enter(ctx context.Context, tournamentID, playerID int) (*models.TimeTrialEntry, error)

	// SubmitTime records one course time for the player's own entry. The
	// total is filled in once every tournament course has a recorded time,
	// and ranks are recomputed for the whole tournament afterwards.
	SubmitTime(ctx context.Context, entryID int, course, lapTime string, identity models.Identity) (*models.TimeTrialEntry, error)

	Leaderboard(ctx context.Context, tournamentID int) ([]*models.TimeTrialEntry, error)

	// DecrementLives is the admin elimination control for survival rounds.
	DecrementLives(ctx context.Context, entryID int, identity models.Identity) (*models.TimeTrialEntry, error)
}

type timeTrialService struct {
	timeTrialRepo  repositories.TimeTrialRepository
	tournamentRepo repositories.TournamentRepository
	playerRepo     repositories.PlayerRepository
	hub            *brackets.Hub
	logger         *slog.Logger
}

func NewTimeTrialService(
	timeTrialRepo repositories.TimeTrialRepository,
	tournamentRepo repositories.TournamentRepository,
	playerRepo repositories.PlayerRepository,
	hub *brackets.Hub,
	logger *slog.Logger,
) TimeTrialService {
	return &timeTrialService{
		timeTrialRepo:  timeTrialRepo,
		tournamentRepo: tournamentRepo,
		playerRepo:     playerRepo,
		hub:            hub,
		logger:         logger,
	}
}

// ParseLapTime converts "M:SS.mmm" into milliseconds.
func ParseLapTime(raw string) (int64, error) {
	groups := lapTimePattern.FindStringSubmatch(raw)
	if groups == nil {
		return 0, ErrInvalidTimeFormat
	}
	minutes, _ := strconv.ParseInt(groups[1], 10, 64)
	seconds, _ := strconv.ParseInt(groups[2], 10, 64)
	millis, _ := strconv.ParseInt(groups[3], 10, 64)
	return minutes*60_000 + seconds*1_000 + millis, nil
}

// FormatLapTime renders milliseconds back to "M:SS.mmm".
func FormatLapTime(ms int64) string {
	minutes := ms / 60_000
	seconds := (ms % 60_000) / 1_000
	millis := ms % 1_000
	return fmt.Sprintf("%d:%02d.%03d", minutes, seconds, millis)
}

func (s *timeTrialService) Enter(ctx context.Context, tournamentID, playerID int) (*models.TimeTrialEntry, error) {
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

	entry := &models.TimeTrialEntry{
		TournamentID: tournamentID,
		PlayerID:     playerID,
		Times:        models.CourseTimes{},
		Lives:        startingLives,
	}
	if err := s.timeTrialRepo.Create(ctx, entry); err != nil {
		if errors.Is(err, repositories.ErrTimeTrialConflict) {
			return nil, ErrAlreadyEnrolled
		}
		return nil, fmt.Errorf("failed to create time trial entry: %w", err)
	}
	return entry, nil
}

func (s *timeTrialService) SubmitTime(ctx context.Context, entryID int, course, lapTime string, identity models.Identity) (*models.TimeTrialEntry, error) {
	ms, err := ParseLapTime(lapTime)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxTimeTrialAttempts; attempt++ {
		entry, err := s.timeTrialRepo.GetByID(ctx, entryID)
		if err != nil {
			if errors.Is(err, repositories.ErrTimeTrialNotFound) {
				return nil, ErrTimeTrialNotFound
			}
			return nil, err
		}
		if !identity.IsAdmin && !identity.IsPlayer(entry.PlayerID) {
			return nil, ErrForbiddenOperation
		}
		if entry.Eliminated {
			return nil, ErrTimeTrialEliminated
		}

		tournament, err := s.tournamentRepo.GetByID(ctx, entry.TournamentID)
		if err != nil {
			return nil, err
		}
		if !containsCourse(tournament.Courses, course) {
			return nil, ErrUnknownCourse
		}

		times := models.CourseTimes{}
		for k, v := range entry.Times {
			times[k] = v
		}
		// Keep only improvements once a time exists for the course.
		if prev, ok := times[course]; ok {
			prevMs, parseErr := ParseLapTime(prev)
			if parseErr == nil && prevMs <= ms {
				return entry, nil
			}
		}
		times[course] = FormatLapTime(ms)

		total, totalErr := totalTime(times, tournament.Courses)
		if totalErr != nil {
			return nil, totalErr
		}

		err = s.timeTrialRepo.UpdateTimes(ctx, entry.ID, entry.Version, times, total)
		if errors.Is(err, repositories.ErrTimeTrialVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to store time for entry %d: %w", entryID, err)
		}

		if err := s.recomputeRanks(ctx, entry.TournamentID); err != nil {
			s.logger.Error("failed to recompute time trial ranks",
				slog.Int("tournament_id", entry.TournamentID), slog.Any("error", err))
		}

		updated, err := s.timeTrialRepo.GetByID(ctx, entry.ID)
		if err != nil {
			return nil, err
		}
		s.hub.BroadcastToRoom(tournamentRoom(entry.TournamentID), brackets.Message{
			Type:    brackets.EventStandingsUpdated,
			Payload: updated,
		})
		return updated, nil
	}
	return nil, ErrReportConflict
}

func (s *timeTrialService) Leaderboard(ctx context.Context, tournamentID int) ([]*models.TimeTrialEntry, error) {
	entries, err := s.timeTrialRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list time trial entries: %w", err)
	}
	return entries, nil
}

func (s *timeTrialService) DecrementLives(ctx context.Context, entryID int, identity models.Identity) (*models.TimeTrialEntry, error) {
	if !identity.IsAdmin {
		return nil, ErrForbiddenOperation
	}

	for attempt := 0; attempt < maxTimeTrialAttempts; attempt++ {
		entry, err := s.timeTrialRepo.GetByID(ctx, entryID)
		if err != nil {
			if errors.Is(err, repositories.ErrTimeTrialNotFound) {
				return nil, ErrTimeTrialNotFound
			}
			return nil, err
		}
		if entry.Eliminated {
			return nil, ErrTimeTrialEliminated
		}

		lives := entry.Lives - 1
		if lives < 0 {
			lives = 0
		}
		eliminated := lives == 0

		err = s.timeTrialRepo.UpdateLives(ctx, entry.ID, entry.Version, lives, eliminated)
		if errors.Is(err, repositories.ErrTimeTrialVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update lives for entry %d: %w", entryID, err)
		}

		updated, err := s.timeTrialRepo.GetByID(ctx, entry.ID)
		if err != nil {
			return nil, err
		}
		s.hub.BroadcastToRoom(tournamentRoom(entry.TournamentID), brackets.Message{
			Type:    brackets.EventStandingsUpdated,
			Payload: updated,
		})
		return updated, nil
	}
	return nil, ErrReportConflict
}

// recomputeRanks reorders the whole tournament leaderboard. Entries without a
// complete set of times have no total and stay unranked.
func (s *timeTrialService) recomputeRanks(ctx context.Context, tournamentID int) error {
	entries, err := s.timeTrialRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return err
	}
	rank := 0
	for _, entry := range entries {
		if entry.TotalTime == nil || entry.Eliminated {
			if entry.Rank != nil {
				if err := s.timeTrialRepo.UpdateRank(ctx, entry.ID, nil); err != nil {
					return err
				}
			}
			continue
		}
		rank++
		if entry.Rank != nil && *entry.Rank == rank {
			continue
		}
		r := rank
		if err := s.timeTrialRepo.UpdateRank(ctx, entry.ID, &r); err != nil {
			return err
		}
	}
	return nil
}

func totalTime(times models.CourseTimes, courses []string) (*int64, error) {
	if len(courses) == 0 {
		return nil, nil
	}
	var sum int64
	for _, course := range courses {
		raw, ok := times[course]
		if !ok {
			return nil, nil
		}
		ms, err := ParseLapTime(raw)
		if err != nil {
			return nil, fmt.Errorf("stored time for course %q is corrupt: %w", course, err)
		}
		sum += ms
	}
	return &sum, nil
}

func containsCourse(courses []string, course string) bool {
	for _, c := range courses {
		if c == course {
			return true
		}
	}
	return false
}
