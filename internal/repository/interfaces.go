package repository

import (
	"context"
	"encoding/json"

	"github.com/keatohn/baggins-and-allies/internal/model"
)

// UserRepository defines user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	CreateWithPassword(ctx context.Context, email, displayName, passwordHash string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	UpsertOAuth(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// GameRepository defines game and player data operations.
type GameRepository interface {
	Create(ctx context.Context, name, code, setupID, creatorID string) (*model.Game, error)
	FindByID(ctx context.Context, id string) (*model.Game, error)
	FindByCode(ctx context.Context, code string) (*model.Game, error)
	ListOpen(ctx context.Context) ([]model.Game, error)
	ListByUser(ctx context.Context, userID string) ([]model.Game, error)
	ListActive(ctx context.Context) ([]model.Game, error)
	JoinGame(ctx context.Context, gameID, userID string) error
	PlayerCount(ctx context.Context, gameID string) (int, error)
	AssignFactions(ctx context.Context, gameID string, assignments map[string]string) error
	SetFinished(ctx context.Context, gameID, winner string) error
	Delete(ctx context.Context, gameID string) error
}

// ActionLogRepository defines the append-only game action log. The log
// is the durable source of truth for a game: replaying it over the
// setup's initial state reproduces the live state.
type ActionLogRepository interface {
	Append(ctx context.Context, gameID string, seq int, faction string, action json.RawMessage) (*model.GameAction, error)
	ListByGame(ctx context.Context, gameID string) ([]model.GameAction, error)
	Count(ctx context.Context, gameID string) (int, error)
}

// GameCache defines live game state operations (Redis). The snapshot is
// a cache over the action log; losing it only costs a replay.
type GameCache interface {
	SetGameState(ctx context.Context, gameID string, state json.RawMessage) error
	GetGameState(ctx context.Context, gameID string) (json.RawMessage, error)
	DeleteGameState(ctx context.Context, gameID string) error
}
