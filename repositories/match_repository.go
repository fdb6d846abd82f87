package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/markwoz/kart-league/models"
)

var (
	ErrMatchNotFound        = errors.New("match not found")
	ErrMatchVersionConflict = errors.New("match was modified concurrently")
	ErrMatchPlayerInvalid   = errors.New("match player conflict or invalid")
)

const matchColumns = `
	id, tournament_id, format, bracket, round, match_number,
	player1_id, player2_id,
	p1_reported_score1, p1_reported_score2, p2_reported_score1, p2_reported_score2,
	p1_reported_races, p2_reported_races,
	score1, score2, races, completed,
	winner_to_match_id, winner_to_slot, loser_to_match_id, loser_to_slot,
	evidence_key, version, created_at`

// MatchRepository is the version store adapter for match rows. Every mutating
// method takes the version the caller last observed and compares it in the
// UPDATE's WHERE clause; a stale write returns ErrMatchVersionConflict rather
// than silently overwriting.
type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID int, format *models.Format) ([]*models.Match, error)
	ListCompletedByPlayer(ctx context.Context, tournamentID int, format models.Format, playerID int) ([]*models.Match, error)
	NextMatchNumber(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	UpdateEdges(ctx context.Context, exec SQLExecutor, matchID int, winnerToID, winnerToSlot, loserToID, loserToSlot *int) error

	UpdateReport(ctx context.Context, matchID, expectedVersion, slot int, score1, score2 int, races models.RaceList) error
	ConfirmResult(ctx context.Context, matchID, expectedVersion int, score1, score2 int, races models.RaceList) error
	FillSlot(ctx context.Context, matchID, expectedVersion, slot, playerID int) error
	SetEvidenceKey(ctx context.Context, matchID, expectedVersion int, key string) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO matches
			(tournament_id, format, bracket, round, match_number, player1_id, player2_id,
			 winner_to_match_id, winner_to_slot, loser_to_match_id, loser_to_slot, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
		RETURNING id, version, created_at`

	err := executor.QueryRowContext(ctx, query,
		match.TournamentID,
		match.Format,
		match.Bracket,
		match.Round,
		match.MatchNumber,
		match.Player1ID,
		match.Player2ID,
		match.WinnerToMatchID,
		match.WinnerToSlot,
		match.LoserToMatchID,
		match.LoserToSlot,
	).Scan(&match.ID, &match.Version, &match.CreatedAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) scanMatch(rowScanner interface{ Scan(...interface{}) error }) (*models.Match, error) {
	var m models.Match
	err := rowScanner.Scan(
		&m.ID, &m.TournamentID, &m.Format, &m.Bracket, &m.Round, &m.MatchNumber,
		&m.Player1ID, &m.Player2ID,
		&m.P1ReportedScore1, &m.P1ReportedScore2, &m.P2ReportedScore1, &m.P2ReportedScore2,
		&m.P1ReportedRaces, &m.P2ReportedRaces,
		&m.Score1, &m.Score2, &m.Races, &m.Completed,
		&m.WinnerToMatchID, &m.WinnerToSlot, &m.LoserToMatchID, &m.LoserToSlot,
		&m.EvidenceKey, &m.Version, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	match, err := r.scanMatch(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrMatchNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan match %d: %w", id, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID int, format *models.Format) ([]*models.Match, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + matchColumns + ` FROM matches WHERE tournament_id = $1`)

	args := []interface{}{tournamentID}
	if format != nil {
		queryBuilder.WriteString(" AND format = $" + strconv.Itoa(len(args)+1))
		args = append(args, *format)
	}
	// Match number is the display and listing order key.
	queryBuilder.WriteString(" ORDER BY match_number ASC")

	return r.queryMatches(ctx, queryBuilder.String(), args...)
}

func (r *postgresMatchRepository) ListCompletedByPlayer(ctx context.Context, tournamentID int, format models.Format, playerID int) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + `
		FROM matches
		WHERE tournament_id = $1 AND format = $2 AND completed = TRUE
		  AND (player1_id = $3 OR player2_id = $3)
		ORDER BY match_number ASC`
	return r.queryMatches(ctx, query, tournamentID, format, playerID)
}

func (r *postgresMatchRepository) queryMatches(ctx context.Context, query string, args ...interface{}) ([]*models.Match, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		match, scanErr := r.scanMatch(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, match)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) NextMatchNumber(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	executor := r.getExecutor(exec)
	var next int
	err := executor.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(match_number), 0) + 1 FROM matches WHERE tournament_id = $1`,
		tournamentID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next match number for tournament %d: %w", tournamentID, err)
	}
	return next, nil
}

func (r *postgresMatchRepository) UpdateEdges(ctx context.Context, exec SQLExecutor, matchID int, winnerToID, winnerToSlot, loserToID, loserToSlot *int) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE matches
		SET winner_to_match_id = $1, winner_to_slot = $2, loser_to_match_id = $3, loser_to_slot = $4
		WHERE id = $5`
	result, err := executor.ExecContext(ctx, query, winnerToID, winnerToSlot, loserToID, loserToSlot, matchID)
	if err != nil {
		return fmt.Errorf("UpdateEdges: failed to execute query for match %d: %w", matchID, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

// UpdateReport writes one player's reported scores and races without touching
// the other player's report or the confirmed fields.
func (r *postgresMatchRepository) UpdateReport(ctx context.Context, matchID, expectedVersion, slot int, score1, score2 int, races models.RaceList) error {
	var query string
	if slot == 1 {
		query = `
			UPDATE matches
			SET p1_reported_score1 = $1, p1_reported_score2 = $2, p1_reported_races = $3,
			    version = version + 1
			WHERE id = $4 AND version = $5 AND completed = FALSE`
	} else {
		query = `
			UPDATE matches
			SET p2_reported_score1 = $1, p2_reported_score2 = $2, p2_reported_races = $3,
			    version = version + 1
			WHERE id = $4 AND version = $5 AND completed = FALSE`
	}

	result, err := r.db.ExecContext(ctx, query, score1, score2, races, matchID, expectedVersion)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchVersionConflict)
}

// ConfirmResult finalizes the match: confirmed scores, race log, completed
// flag. Used both by auto-confirmation and the admin direct-set path.
func (r *postgresMatchRepository) ConfirmResult(ctx context.Context, matchID, expectedVersion int, score1, score2 int, races models.RaceList) error {
	query := `
		UPDATE matches
		SET score1 = $1, score2 = $2, races = $3, completed = TRUE,
		    version = version + 1
		WHERE id = $4 AND version = $5 AND completed = FALSE`

	result, err := r.db.ExecContext(ctx, query, score1, score2, races, matchID, expectedVersion)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchVersionConflict)
}

// FillSlot writes an advancing player into an open downstream slot. The slot
// guard in the WHERE clause means a slot already holding a different player
// is reported as a version conflict, never overwritten.
func (r *postgresMatchRepository) FillSlot(ctx context.Context, matchID, expectedVersion, slot, playerID int) error {
	var query string
	if slot == 1 {
		query = `
			UPDATE matches
			SET player1_id = $1, version = version + 1
			WHERE id = $2 AND version = $3 AND (player1_id IS NULL OR player1_id = $1)`
	} else {
		query = `
			UPDATE matches
			SET player2_id = $1, version = version + 1
			WHERE id = $2 AND version = $3 AND (player2_id IS NULL OR player2_id = $1)`
	}

	result, err := r.db.ExecContext(ctx, query, playerID, matchID, expectedVersion)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchVersionConflict)
}

func (r *postgresMatchRepository) SetEvidenceKey(ctx context.Context, matchID, expectedVersion int, key string) error {
	query := `
		UPDATE matches
		SET evidence_key = $1, version = version + 1
		WHERE id = $2 AND version = $3`
	result, err := r.db.ExecContext(ctx, query, key, matchID, expectedVersion)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchVersionConflict)
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Constraint {
		case "matches_player1_id_fkey", "matches_player2_id_fkey":
			return ErrMatchPlayerInvalid
		case "matches_tournament_match_number_key":
			return fmt.Errorf("match number conflict: %w", err)
		}
	}
	return err
}
