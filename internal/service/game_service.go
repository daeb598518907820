package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	mrand "math/rand/v2"

	"github.com/keatohn/baggins-and-allies/internal/model"
	"github.com/keatohn/baggins-and-allies/internal/repository"
	"github.com/keatohn/baggins-and-allies/pkg/engine"
)

var (
	ErrGameNotFound   = errors.New("game not found")
	ErrGameNotWaiting = errors.New("game is not in waiting status")
	ErrGameNotActive  = errors.New("game is not active")
	ErrGameFull       = errors.New("game already has a player per faction")
	ErrNotEnough      = errors.New("need one player per faction to start")
	ErrNotCreator     = errors.New("only the creator can do that")
	ErrAlreadyJoined  = errors.New("already joined this game")
	ErrNotInGame      = errors.New("you are not in this game")
)

// GameService handles lobby lifecycle: create, join by code, start,
// delete. Once a game is active, PlayService takes over.
type GameService struct {
	gameRepo repository.GameRepository
	cache    repository.GameCache
	setups   *SetupCatalog
	bcast    Broadcaster
}

// NewGameService creates a GameService.
func NewGameService(gameRepo repository.GameRepository, cache repository.GameCache, setups *SetupCatalog, bcast Broadcaster) *GameService {
	return &GameService{gameRepo: gameRepo, cache: cache, setups: setups, bcast: bcast}
}

// ListSetups returns the available setup bundles.
func (s *GameService) ListSetups() ([]engine.SetupInfo, error) {
	return s.setups.List()
}

// CreateGame creates a waiting game with a fresh join code and joins
// the creator. The setup must exist; it is pinned for the game's life.
func (s *GameService) CreateGame(ctx context.Context, name, setupID, creatorID string) (*model.Game, error) {
	if setupID == "" {
		setupID = engine.DefaultSetupID
	}
	if _, err := s.setups.Load(setupID); err != nil {
		return nil, err
	}

	game, err := s.gameRepo.Create(ctx, name, newGameCode(), setupID, creatorID)
	if err != nil {
		return nil, err
	}
	if err := s.gameRepo.JoinGame(ctx, game.ID, creatorID); err != nil {
		return nil, err
	}
	return s.gameRepo.FindByID(ctx, game.ID)
}

// JoinGame adds a player to a waiting game, looked up by join code.
func (s *GameService) JoinGame(ctx context.Context, code, userID string) (*model.Game, error) {
	game, err := s.gameRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	if game.Status != "waiting" {
		return nil, ErrGameNotWaiting
	}
	for _, p := range game.Players {
		if p.UserID == userID {
			return nil, ErrAlreadyJoined
		}
	}

	setup, err := s.setups.Load(game.SetupID)
	if err != nil {
		return nil, err
	}
	count, err := s.gameRepo.PlayerCount(ctx, game.ID)
	if err != nil {
		return nil, err
	}
	if count >= len(setup.Defs.Factions) {
		return nil, ErrGameFull
	}

	if err := s.gameRepo.JoinGame(ctx, game.ID, userID); err != nil {
		return nil, err
	}
	return s.gameRepo.FindByID(ctx, game.ID)
}

// StartGame assigns factions randomly, builds the initial rules state,
// and snapshots it. Requires the creator and a full lobby.
func (s *GameService) StartGame(ctx context.Context, gameID, userID string) (*model.Game, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	if game.Status != "waiting" {
		return nil, ErrGameNotWaiting
	}
	if game.CreatorID != userID {
		return nil, ErrNotCreator
	}

	setup, err := s.setups.Load(game.SetupID)
	if err != nil {
		return nil, err
	}
	factions := setup.Defs.SortedFactionIDs()
	if len(game.Players) != len(factions) {
		return nil, ErrNotEnough
	}

	shuffled := append([]string(nil), factions...)
	mrand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	assignments := make(map[string]string, len(game.Players))
	for i, p := range game.Players {
		assignments[p.UserID] = shuffled[i]
	}

	if err := s.gameRepo.AssignFactions(ctx, gameID, assignments); err != nil {
		return nil, err
	}

	state := engine.NewGame(setup)
	snapshot, err := state.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode initial state: %w", err)
	}
	if err := s.cache.SetGameState(ctx, gameID, snapshot); err != nil {
		return nil, err
	}

	started, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	s.bcast.BroadcastGameEvent(gameID, "game_started", map[string]any{
		"setup_id":        game.SetupID,
		"current_faction": state.CurrentFaction,
	})
	return started, nil
}

// GetGame returns a game by ID.
func (s *GameService) GetGame(ctx context.Context, gameID string) (*model.Game, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	return game, nil
}

// GameMeta bundles a game row with its setup descriptor and faction
// roster, for lobby screens that need faction info before any state
// exists.
type GameMeta struct {
	Game     *model.Game         `json:"game"`
	Setup    engine.SetupInfo    `json:"setup"`
	Factions []engine.FactionDef `json:"factions"`
}

// GetGameMeta returns a game together with its setup info and factions.
func (s *GameService) GetGameMeta(ctx context.Context, gameID string) (*GameMeta, error) {
	game, err := s.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	setup, err := s.setups.Load(game.SetupID)
	if err != nil {
		return nil, err
	}

	factions := make([]engine.FactionDef, 0, len(setup.Defs.Factions))
	for _, id := range setup.Defs.SortedFactionIDs() {
		factions = append(factions, setup.Defs.Factions[id])
	}

	return &GameMeta{
		Game: game,
		Setup: engine.SetupInfo{
			ID:          setup.ID,
			DisplayName: setup.Manifest.DisplayName,
			MapAsset:    setup.Manifest.MapAsset,
		},
		Factions: factions,
	}, nil
}

// ListGames returns open games, or the user's games when filter=my.
func (s *GameService) ListGames(ctx context.Context, userID, filter string) ([]model.Game, error) {
	if filter == "my" {
		return s.gameRepo.ListByUser(ctx, userID)
	}
	return s.gameRepo.ListOpen(ctx)
}

// DeleteGame removes a waiting game. Only the creator can delete it.
func (s *GameService) DeleteGame(ctx context.Context, gameID, userID string) error {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		return ErrGameNotFound
	}
	if game.Status != "waiting" {
		return ErrGameNotWaiting
	}
	if game.CreatorID != userID {
		return ErrNotCreator
	}
	if err := s.gameRepo.Delete(ctx, gameID); err != nil {
		return err
	}
	return s.cache.DeleteGameState(ctx, gameID)
}

// newGameCode builds a short join code. The alphabet skips 0/O and 1/I
// so codes survive being read aloud.
func newGameCode() string {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, 6)
	rand.Read(b)
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b)
}
