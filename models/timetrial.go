package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CourseTimes maps a course code to a formatted duration ("1:23.456").
// Stored as a JSONB column.
type CourseTimes map[string]string

func (t CourseTimes) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

func (t *CourseTimes) Scan(src interface{}) error {
	if src == nil {
		*t = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into CourseTimes", src)
	}
	return json.Unmarshal(b, t)
}

// TimeTrialEntry is time attack's analogue of a match: no opponent, scored
// against the clock across the tournament's course list.
type TimeTrialEntry struct {
	ID           int         `json:"id"`
	TournamentID int         `json:"tournament_id"`
	PlayerID     int         `json:"player_id"`
	Times        CourseTimes `json:"times"`

	// TotalTime is the sum in milliseconds, nil until every course has a
	// time. Rank sorts by TotalTime ascending, nulls last.
	TotalTime *int64 `json:"total_time,omitempty"`
	Rank      *int   `json:"rank,omitempty"`

	// Sudden-death revival state. Lives are decremented by an admin
	// elimination action, not by the reconciliation protocol.
	Lives      int  `json:"lives"`
	Eliminated bool `json:"eliminated"`

	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`

	Player *Player `json:"player,omitempty"`
}
