package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/markwoz/kart-league/models"
)

var (
	ErrTimeTrialNotFound        = errors.New("time trial entry not found")
	ErrTimeTrialVersionConflict = errors.New("time trial entry was modified concurrently")
	ErrTimeTrialConflict        = errors.New("player already has a time trial entry")
)

const timeTrialColumns = `
	id, tournament_id, player_id, times, total_time, rank, lives, eliminated, version, updated_at`

type TimeTrialRepository interface {
	Create(ctx context.Context, entry *models.TimeTrialEntry) error
	GetByID(ctx context.Context, id int) (*models.TimeTrialEntry, error)
	// ListByTournament orders by total time ascending with incomplete
	// entries (null totals) last.
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.TimeTrialEntry, error)
	UpdateTimes(ctx context.Context, id, expectedVersion int, times models.CourseTimes, totalTime *int64) error
	UpdateRank(ctx context.Context, id int, rank *int) error
	UpdateLives(ctx context.Context, id, expectedVersion, lives int, eliminated bool) error
}

type postgresTimeTrialRepository struct {
	db *sql.DB
}

func NewPostgresTimeTrialRepository(db *sql.DB) TimeTrialRepository {
	return &postgresTimeTrialRepository{db: db}
}

func (r *postgresTimeTrialRepository) Create(ctx context.Context, entry *models.TimeTrialEntry) error {
	query := `
		INSERT INTO time_trial_entries
			(tournament_id, player_id, times, total_time, lives, eliminated, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, NOW())
		RETURNING id, version, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		entry.TournamentID, entry.PlayerID, entry.Times, entry.TotalTime, entry.Lives, entry.Eliminated,
	).Scan(&entry.ID, &entry.Version, &entry.UpdatedAt)

	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrTimeTrialConflict
	}
	return err
}

func (r *postgresTimeTrialRepository) scanEntry(rowScanner interface{ Scan(...interface{}) error }) (*models.TimeTrialEntry, error) {
	var e models.TimeTrialEntry
	err := rowScanner.Scan(
		&e.ID, &e.TournamentID, &e.PlayerID, &e.Times, &e.TotalTime,
		&e.Rank, &e.Lives, &e.Eliminated, &e.Version, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTimeTrialNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *postgresTimeTrialRepository) GetByID(ctx context.Context, id int) (*models.TimeTrialEntry, error) {
	query := `SELECT ` + timeTrialColumns + ` FROM time_trial_entries WHERE id = $1`
	return r.scanEntry(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresTimeTrialRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.TimeTrialEntry, error) {
	query := `SELECT ` + timeTrialColumns + `
		FROM time_trial_entries
		WHERE tournament_id = $1
		ORDER BY total_time ASC NULLS LAST, player_id ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query time trial entries for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	entries := make([]*models.TimeTrialEntry, 0)
	for rows.Next() {
		entry, scanErr := r.scanEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan time trial row: %w", scanErr)
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *postgresTimeTrialRepository) UpdateTimes(ctx context.Context, id, expectedVersion int, times models.CourseTimes, totalTime *int64) error {
	query := `
		UPDATE time_trial_entries
		SET times = $1, total_time = $2, version = version + 1, updated_at = NOW()
		WHERE id = $3 AND version = $4 AND eliminated = FALSE`
	result, err := r.db.ExecContext(ctx, query, times, totalTime, id, expectedVersion)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTimeTrialVersionConflict)
}

func (r *postgresTimeTrialRepository) UpdateRank(ctx context.Context, id int, rank *int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE time_trial_entries SET rank = $1, updated_at = NOW() WHERE id = $2`, rank, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTimeTrialNotFound)
}

func (r *postgresTimeTrialRepository) UpdateLives(ctx context.Context, id, expectedVersion, lives int, eliminated bool) error {
	query := `
		UPDATE time_trial_entries
		SET lives = $1, eliminated = $2, version = version + 1, updated_at = NOW()
		WHERE id = $3 AND version = $4`
	result, err := r.db.ExecContext(ctx, query, lives, eliminated, id, expectedVersion)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTimeTrialVersionConflict)
}
