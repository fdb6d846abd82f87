package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type BracketSide string

const (
	BracketWinners    BracketSide = "winners"
	BracketLosers     BracketSide = "losers"
	BracketGrandFinal BracketSide = "grand_final"
)

type MatchState string

const (
	MatchPending              MatchState = "pending"
	MatchAwaitingConfirmation MatchState = "awaiting_confirmation"
	MatchDisputed             MatchState = "disputed"
	MatchCompleted            MatchState = "completed"
)

// RaceResult is one race inside a match. Race-tally formats fill Winner
// (the slot, 1 or 2); points formats fill both finishing positions.
type RaceResult struct {
	Course     string `json:"course"`
	Winner     int    `json:"winner,omitempty"`
	P1Position int    `json:"p1_position,omitempty"`
	P2Position int    `json:"p2_position,omitempty"`
}

// RaceList is stored as a JSONB column.
type RaceList []RaceResult

func (l RaceList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *RaceList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into RaceList", src)
	}
	return json.Unmarshal(b, l)
}

func (l RaceList) Equal(other RaceList) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if l[i] != other[i] {
			return false
		}
	}
	return true
}

type Match struct {
	ID           int    `json:"id"`
	TournamentID int    `json:"tournament_id"`
	Format       Format `json:"format"`

	// Bracket placement; all nil for qualification-stage matches.
	Bracket     *BracketSide `json:"bracket,omitempty"`
	Round       *string      `json:"round,omitempty"`
	MatchNumber int          `json:"match_number"`

	Player1ID *int `json:"player1_id,omitempty"`
	Player2ID *int `json:"player2_id,omitempty"`

	// Reported-but-unconfirmed state, one set per player. Independent of
	// the confirmed fields until reconciliation runs.
	P1ReportedScore1 *int     `json:"player1_reported_score1,omitempty"`
	P1ReportedScore2 *int     `json:"player1_reported_score2,omitempty"`
	P2ReportedScore1 *int     `json:"player2_reported_score1,omitempty"`
	P2ReportedScore2 *int     `json:"player2_reported_score2,omitempty"`
	P1ReportedRaces  RaceList `json:"player1_reported_races,omitempty"`
	P2ReportedRaces  RaceList `json:"player2_reported_races,omitempty"`

	// Confirmed state.
	Score1    *int     `json:"score1,omitempty"`
	Score2    *int     `json:"score2,omitempty"`
	Races     RaceList `json:"races,omitempty"`
	Completed bool     `json:"completed"`

	// Persisted bracket edges: which downstream match and slot this
	// match's winner and loser feed. Written at build time, never derived
	// from round labels.
	WinnerToMatchID *int `json:"winner_to_match_id,omitempty"`
	WinnerToSlot    *int `json:"winner_to_slot,omitempty"`
	LoserToMatchID  *int `json:"loser_to_match_id,omitempty"`
	LoserToSlot     *int `json:"loser_to_slot,omitempty"`

	EvidenceKey *string `json:"evidence_key,omitempty"`
	EvidenceURL *string `json:"evidence_url,omitempty"`

	// Version is the optimistic concurrency token, incremented on every
	// write.
	Version int `json:"version"`

	CreatedAt time.Time `json:"created_at"`
}

// State derives the lifecycle state from the report and completion fields.
func (m *Match) State() MatchState {
	switch {
	case m.Completed:
		return MatchCompleted
	case m.P1ReportedScore1 != nil && m.P2ReportedScore1 != nil:
		return MatchDisputed
	case m.P1ReportedScore1 != nil || m.P2ReportedScore1 != nil:
		return MatchAwaitingConfirmation
	default:
		return MatchPending
	}
}

// SlotOf returns 1 or 2 when the player occupies that slot, zero otherwise.
func (m *Match) SlotOf(playerID int) int {
	if m.Player1ID != nil && *m.Player1ID == playerID {
		return 1
	}
	if m.Player2ID != nil && *m.Player2ID == playerID {
		return 2
	}
	return 0
}

// WinnerID returns the confirmed winner, or nil if the match is not completed
// or ended in a tie.
func (m *Match) WinnerID() *int {
	if !m.Completed || m.Score1 == nil || m.Score2 == nil {
		return nil
	}
	if *m.Score1 > *m.Score2 {
		return m.Player1ID
	}
	if *m.Score2 > *m.Score1 {
		return m.Player2ID
	}
	return nil
}

func (m *Match) LoserID() *int {
	winner := m.WinnerID()
	if winner == nil {
		return nil
	}
	if m.Player1ID != nil && *m.Player1ID == *winner {
		return m.Player2ID
	}
	return m.Player1ID
}

// ReportOf returns the given slot's reported scores and races, or ok=false
// when that player has not reported yet.
func (m *Match) ReportOf(slot int) (score1, score2 int, races RaceList, ok bool) {
	if slot == 1 {
		if m.P1ReportedScore1 == nil || m.P1ReportedScore2 == nil {
			return 0, 0, nil, false
		}
		return *m.P1ReportedScore1, *m.P1ReportedScore2, m.P1ReportedRaces, true
	}
	if m.P2ReportedScore1 == nil || m.P2ReportedScore2 == nil {
		return 0, 0, nil, false
	}
	return *m.P2ReportedScore1, *m.P2ReportedScore2, m.P2ReportedRaces, true
}
