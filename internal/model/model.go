// Package model contains the database-backed domain types.
package model

import (
	"encoding/json"
	"time"
)

// User represents a registered player. Password accounts carry a bcrypt
// hash; OAuth accounts carry a provider and provider-specific id.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Provider     string    `json:"provider,omitempty"`
	ProviderID   string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Game represents a game lobby row. Status is one of
// waiting | active | finished. The live rules state is not stored here;
// it lives in Redis and is reconstructed from the action log.
type Game struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Code       string       `json:"code"`
	SetupID    string       `json:"setup_id"`
	CreatorID  string       `json:"creator_id"`
	Status     string       `json:"status"`
	Winner     string       `json:"winner,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Players    []GamePlayer `json:"players,omitempty"`
}

// GamePlayer links a user to a game and, once the game starts, to the
// faction they command.
type GamePlayer struct {
	GameID      string    `json:"game_id"`
	UserID      string    `json:"user_id"`
	Faction     string    `json:"faction,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

// GameAction is one row of a game's append-only action log. Seq starts
// at 1 and is dense; replaying all rows over the setup's initial state
// reproduces the current state exactly, dice included.
type GameAction struct {
	ID        string          `json:"id"`
	GameID    string          `json:"game_id"`
	Seq       int             `json:"seq"`
	Faction   string          `json:"faction"`
	Action    json.RawMessage `json:"action"`
	CreatedAt time.Time       `json:"created_at"`
}
