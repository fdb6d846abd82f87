package models

import "time"

type Role string

const (
	RolePlayer Role = "player"
	RoleAdmin  Role = "admin"
)

type Player struct {
	ID           int       `json:"id"`
	Nickname     string    `json:"nickname"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the resolved caller passed into the core by the auth layer.
// The core trusts it without re-verifying credentials; whitelist or role
// resolution happens entirely outside.
type Identity struct {
	IsAdmin  bool
	PlayerID *int
}

// IsPlayer reports whether the identity is the given player.
func (i Identity) IsPlayer(playerID int) bool {
	return i.PlayerID != nil && *i.PlayerID == playerID
}
