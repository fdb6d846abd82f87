package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/markwoz/kart-league/models"
)

var (
	ErrQualificationNotFound = errors.New("qualification not found")
	ErrQualificationConflict = errors.New("player already enrolled in this qualification")
)

const qualificationColumns = `
	id, tournament_id, format, player_id, matches_played, wins, ties, losses,
	points, score, seeding, rank, dropped, updated_at`

type QualificationRepository interface {
	Create(ctx context.Context, exec SQLExecutor, q *models.Qualification) error
	GetByPlayer(ctx context.Context, tournamentID int, format models.Format, playerID int) (*models.Qualification, error)
	ListByTournamentFormat(ctx context.Context, tournamentID int, format models.Format, byStanding bool) ([]*models.Qualification, error)
	// ReplaceAggregates writes the full aggregate set for one row. It is a
	// replacement, not a delta, so reruns converge on the same values.
	ReplaceAggregates(ctx context.Context, exec SQLExecutor, q *models.Qualification) error
	SetSeeding(ctx context.Context, exec SQLExecutor, id int, seeding *int) error
	MarkDropped(ctx context.Context, id int) error
}

type postgresQualificationRepository struct {
	db *sql.DB
}

func NewPostgresQualificationRepository(db *sql.DB) QualificationRepository {
	return &postgresQualificationRepository{db: db}
}

func (r *postgresQualificationRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresQualificationRepository) Create(ctx context.Context, exec SQLExecutor, q *models.Qualification) error {
	executor := r.getExecutor(exec)
	if q.UpdatedAt.IsZero() {
		q.UpdatedAt = time.Now()
	}
	query := `
		INSERT INTO qualifications
			(tournament_id, format, player_id, matches_played, wins, ties, losses, points, score, seeding, dropped, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`
	err := executor.QueryRowContext(ctx, query,
		q.TournamentID, q.Format, q.PlayerID, q.MatchesPlayed, q.Wins, q.Ties, q.Losses,
		q.Points, q.Score, q.Seeding, q.Dropped, q.UpdatedAt,
	).Scan(&q.ID)

	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrQualificationConflict
	}
	return err
}

func (r *postgresQualificationRepository) scanQualification(rowScanner interface{ Scan(...interface{}) error }) (*models.Qualification, error) {
	var q models.Qualification
	err := rowScanner.Scan(
		&q.ID, &q.TournamentID, &q.Format, &q.PlayerID, &q.MatchesPlayed,
		&q.Wins, &q.Ties, &q.Losses, &q.Points, &q.Score,
		&q.Seeding, &q.Rank, &q.Dropped, &q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQualificationNotFound
		}
		return nil, err
	}
	return &q, nil
}

func (r *postgresQualificationRepository) GetByPlayer(ctx context.Context, tournamentID int, format models.Format, playerID int) (*models.Qualification, error) {
	query := `SELECT ` + qualificationColumns + `
		FROM qualifications
		WHERE tournament_id = $1 AND format = $2 AND player_id = $3`
	return r.scanQualification(r.db.QueryRowContext(ctx, query, tournamentID, format, playerID))
}

func (r *postgresQualificationRepository) ListByTournamentFormat(ctx context.Context, tournamentID int, format models.Format, byStanding bool) ([]*models.Qualification, error) {
	query := `SELECT ` + qualificationColumns + `
		FROM qualifications
		WHERE tournament_id = $1 AND format = $2`
	if byStanding {
		query += ` ORDER BY points DESC, score DESC, wins DESC, player_id ASC`
	} else {
		query += ` ORDER BY player_id ASC`
	}

	rows, err := r.db.QueryContext(ctx, query, tournamentID, format)
	if err != nil {
		return nil, fmt.Errorf("failed to query qualifications for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	standings := make([]*models.Qualification, 0)
	for rows.Next() {
		q, scanErr := r.scanQualification(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan qualification row: %w", scanErr)
		}
		standings = append(standings, q)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return standings, nil
}

func (r *postgresQualificationRepository) ReplaceAggregates(ctx context.Context, exec SQLExecutor, q *models.Qualification) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE qualifications
		SET matches_played = $1, wins = $2, ties = $3, losses = $4, points = $5, score = $6,
		    updated_at = NOW()
		WHERE tournament_id = $7 AND format = $8 AND player_id = $9`
	result, err := executor.ExecContext(ctx, query,
		q.MatchesPlayed, q.Wins, q.Ties, q.Losses, q.Points, q.Score,
		q.TournamentID, q.Format, q.PlayerID,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrQualificationNotFound)
}

func (r *postgresQualificationRepository) SetSeeding(ctx context.Context, exec SQLExecutor, id int, seeding *int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE qualifications SET seeding = $1, updated_at = NOW() WHERE id = $2`, seeding, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrQualificationNotFound)
}

func (r *postgresQualificationRepository) MarkDropped(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE qualifications SET dropped = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrQualificationNotFound)
}
