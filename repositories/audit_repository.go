package repositories

import (
	"context"
	"database/sql"

	"github.com/markwoz/kart-league/models"
)

// ScoreAuditRecord captures who entered what for a match. These writes are
// best-effort side effects; callers downgrade failures to warnings.
type ScoreAuditRecord struct {
	MatchID    int
	PlayerID   *int
	ByAdmin    bool
	Score1     int
	Score2     int
	Races      models.RaceList
	ReportSlot int
}

type AuditRepository interface {
	RecordScoreEntry(ctx context.Context, record ScoreAuditRecord) error
	RecordCharacterUsage(ctx context.Context, matchID, playerID int, character string) error
}

type postgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) AuditRepository {
	return &postgresAuditRepository{db: db}
}

func (r *postgresAuditRepository) RecordScoreEntry(ctx context.Context, record ScoreAuditRecord) error {
	query := `
		INSERT INTO score_audit (match_id, player_id, by_admin, score1, score2, races, report_slot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`
	_, err := r.db.ExecContext(ctx, query,
		record.MatchID, record.PlayerID, record.ByAdmin,
		record.Score1, record.Score2, record.Races, record.ReportSlot,
	)
	return err
}

func (r *postgresAuditRepository) RecordCharacterUsage(ctx context.Context, matchID, playerID int, character string) error {
	query := `
		INSERT INTO character_usage (match_id, player_id, character, created_at)
		VALUES ($1, $2, $3, NOW())`
	_, err := r.db.ExecContext(ctx, query, matchID, playerID, character)
	return err
}
