package models

import "time"

// Qualification is the aggregate standings row for one player in one
// tournament format. Aggregates are always a pure function of the player's
// completed matches; the recalculator replaces them wholesale.
type Qualification struct {
	ID            int    `json:"id"`
	TournamentID  int    `json:"tournament_id"`
	Format        Format `json:"format"`
	PlayerID      int    `json:"player_id"`
	MatchesPlayed int    `json:"matches_played"`
	Wins          int    `json:"wins"`
	Ties          int    `json:"ties"`
	Losses        int    `json:"losses"`
	Points        int    `json:"points"`
	Score         int    `json:"score"` // confirmed score differential
	Seeding       *int   `json:"seeding,omitempty"`
	Rank          *int   `json:"rank,omitempty"`

	// Rows are never deleted, only soft-marked.
	Dropped bool `json:"dropped"`

	UpdatedAt time.Time `json:"updated_at"`

	Player *Player `json:"player,omitempty"`
}
