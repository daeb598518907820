package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/keatohn/baggins-and-allies/internal/model"
)

// ActionRepo handles the append-only game action log.
type ActionRepo struct {
	db *sql.DB
}

// NewActionRepo creates an ActionRepo.
func NewActionRepo(db *sql.DB) *ActionRepo {
	return &ActionRepo{db: db}
}

// Append inserts the next action for a game. The unique (game_id, seq)
// index rejects concurrent writers racing on the same sequence number.
func (r *ActionRepo) Append(ctx context.Context, gameID string, seq int, faction string, action json.RawMessage) (*model.GameAction, error) {
	var a model.GameAction
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO game_actions (game_id, seq, faction, action)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, game_id, seq, faction, action, created_at`,
		gameID, seq, faction, []byte(action),
	).Scan(&a.ID, &a.GameID, &a.Seq, &a.Faction, (*[]byte)(&a.Action), &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("append action: %w", err)
	}
	return &a, nil
}

// ListByGame returns a game's full action log in sequence order.
func (r *ActionRepo) ListByGame(ctx context.Context, gameID string) ([]model.GameAction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, game_id, seq, faction, action, created_at
		 FROM game_actions WHERE game_id = $1 ORDER BY seq`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var actions []model.GameAction
	for rows.Next() {
		var a model.GameAction
		if err := rows.Scan(&a.ID, &a.GameID, &a.Seq, &a.Faction, (*[]byte)(&a.Action), &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// Count returns how many actions a game has logged.
func (r *ActionRepo) Count(ctx context.Context, gameID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM game_actions WHERE game_id = $1`, gameID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count actions: %w", err)
	}
	return count, nil
}
