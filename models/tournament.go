package models

import "time"

type TournamentStatus string

const (
	TournamentRegistration TournamentStatus = "registration"
	TournamentActive       TournamentStatus = "active"
	TournamentCompleted    TournamentStatus = "completed"
)

type Tournament struct {
	ID     int              `json:"id"`
	Name   string           `json:"name"`
	Season string           `json:"season"`
	Status TournamentStatus `json:"status"`

	// Courses played in the time attack stage.
	Courses []string `json:"courses,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
