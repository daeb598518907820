package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/keatohn/baggins-and-allies/internal/model"
	"github.com/keatohn/baggins-and-allies/internal/repository"
	"github.com/keatohn/baggins-and-allies/pkg/engine"
)

// PlayService applies actions to active games. Each action is applied
// under a per-game mutex: load state, roll any dice the action needs,
// run the reducer, append to the action log, snapshot, broadcast.
type PlayService struct {
	gameRepo repository.GameRepository
	actions  repository.ActionLogRepository
	cache    repository.GameCache
	setups   *SetupCatalog
	bcast    Broadcaster
	roll     DiceRoller

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPlayService creates a PlayService.
func NewPlayService(gameRepo repository.GameRepository, actions repository.ActionLogRepository, cache repository.GameCache, setups *SetupCatalog, bcast Broadcaster, roll DiceRoller) *PlayService {
	return &PlayService{
		gameRepo: gameRepo,
		actions:  actions,
		cache:    cache,
		setups:   setups,
		bcast:    bcast,
		roll:     roll,
		locks:    map[string]*sync.Mutex{},
	}
}

func (s *PlayService) lockFor(gameID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[gameID] == nil {
		s.locks[gameID] = &sync.Mutex{}
	}
	return s.locks[gameID]
}

// ActResult is what an applied action returns to the caller.
type ActResult struct {
	State  *engine.GameState `json:"state"`
	Events []engine.Event    `json:"events"`
}

// Act applies one action for the given user. The action's faction is
// the faction the user commands in this game; the handler never sets
// it. Rule rejections come back as *engine.RuleError.
func (s *PlayService) Act(ctx context.Context, gameID, userID string, action engine.Action) (*ActResult, error) {
	game, faction, err := s.playerFaction(ctx, gameID, userID)
	if err != nil {
		return nil, err
	}
	action.Faction = faction

	lock := s.lockFor(gameID)
	lock.Lock()
	defer lock.Unlock()

	setup, err := s.setups.Load(game.SetupID)
	if err != nil {
		return nil, err
	}
	state, err := s.loadState(ctx, game, setup)
	if err != nil {
		return nil, err
	}

	s.fillDice(state, &action, setup.Defs)

	next, events, err := engine.Apply(state, action, setup.Defs)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}
	count, err := s.actions.Count(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if _, err := s.actions.Append(ctx, gameID, count+1, faction, raw); err != nil {
		return nil, err
	}

	snapshot, err := next.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	if err := s.cache.SetGameState(ctx, gameID, snapshot); err != nil {
		return nil, err
	}

	if next.Winner != "" && game.Status == "active" {
		if err := s.gameRepo.SetFinished(ctx, gameID, next.Winner); err != nil {
			return nil, err
		}
		s.bcast.BroadcastGameEvent(gameID, "game_ended", map[string]any{"winner": next.Winner})
	}

	for _, ev := range events {
		s.bcast.BroadcastGameEvent(gameID, ev.Type, ev.Payload)
	}
	return &ActResult{State: next, Events: events}, nil
}

// State returns the live state of an active or finished game.
func (s *PlayService) State(ctx context.Context, gameID string) (*engine.GameState, *engine.Setup, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	if game == nil {
		return nil, nil, ErrGameNotFound
	}
	if game.Status == "waiting" {
		return nil, nil, ErrGameNotActive
	}

	lock := s.lockFor(gameID)
	lock.Lock()
	defer lock.Unlock()

	setup, err := s.setups.Load(game.SetupID)
	if err != nil {
		return nil, nil, err
	}
	state, err := s.loadState(ctx, game, setup)
	if err != nil {
		return nil, nil, err
	}
	return state, setup, nil
}

// loadState reads the Redis snapshot, falling back to a full replay of
// the action log when the snapshot is gone (restart, cache eviction).
// Callers hold the game lock.
func (s *PlayService) loadState(ctx context.Context, game *model.Game, setup *engine.Setup) (*engine.GameState, error) {
	snapshot, err := s.cache.GetGameState(ctx, game.ID)
	if err != nil {
		return nil, err
	}
	if snapshot != nil {
		return engine.Decode(snapshot)
	}

	rows, err := s.actions.ListByGame(ctx, game.ID)
	if err != nil {
		return nil, err
	}
	replayed := make([]engine.Action, len(rows))
	for i, row := range rows {
		if err := json.Unmarshal(row.Action, &replayed[i]); err != nil {
			return nil, fmt.Errorf("decode logged action %d: %w", row.Seq, err)
		}
	}

	state, _, err := engine.Replay(engine.NewGame(setup), replayed, setup.Defs)
	if err != nil {
		return nil, err
	}

	if snapshot, err := state.Encode(); err == nil {
		if err := s.cache.SetGameState(ctx, game.ID, snapshot); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// RecoverActiveGames rebuilds missing snapshots for all active games,
// run once at startup.
func (s *PlayService) RecoverActiveGames(ctx context.Context) error {
	games, err := s.gameRepo.ListActive(ctx)
	if err != nil {
		return err
	}
	for i := range games {
		setup, err := s.setups.Load(games[i].SetupID)
		if err != nil {
			return fmt.Errorf("game %s: %w", games[i].ID, err)
		}
		if _, err := s.loadState(ctx, &games[i], setup); err != nil {
			return fmt.Errorf("game %s: %w", games[i].ID, err)
		}
	}
	return nil
}

// playerFaction resolves which faction the user commands in a game.
func (s *PlayService) playerFaction(ctx context.Context, gameID, userID string) (*model.Game, string, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, "", err
	}
	if game == nil {
		return nil, "", ErrGameNotFound
	}
	if game.Status != "active" {
		return nil, "", ErrGameNotActive
	}
	for _, p := range game.Players {
		if p.UserID == userID && p.Faction != "" {
			return game, p.Faction, nil
		}
	}
	return nil, "", ErrNotInGame
}

// fillDice rolls the dice a combat action needs. Pre-fire rounds roll
// only the defending archers' dice; the attackers have not fought yet.
func (s *PlayService) fillDice(gs *engine.GameState, action *engine.Action, defs *engine.Defs) {
	switch action.Type {
	case engine.ActionInitiateCombat:
		attackers, defenders := initialCombatSides(gs, action.Faction, action.Payload.TerritoryID, defs)
		if len(attackers) == 0 || len(defenders) == 0 {
			return // the reducer produces the precise rejection
		}
		if archers := engine.PrefireArchers(defenders, defs); len(archers) > 0 {
			action.Payload.DiceRolls = engine.DiceRolls{
				Defender: s.roll(engine.RequiredDice(archers, defs)),
			}
			return
		}
		action.Payload.DiceRolls = engine.DiceRolls{
			Attacker: s.roll(engine.RequiredDice(attackers, defs)),
			Defender: s.roll(engine.RequiredDice(defenders, defs)),
		}
	case engine.ActionContinueCombat:
		if gs.ActiveCombat == nil {
			return
		}
		attackers, defenders := activeCombatSides(gs, defs)
		action.Payload.DiceRolls = engine.DiceRolls{
			Attacker: s.roll(engine.RequiredDice(attackers, defs)),
			Defender: s.roll(engine.RequiredDice(defenders, defs)),
		}
	}
}

// initialCombatSides splits a contested territory's units the way
// initiate_combat will: the acting faction's units attack, hostile
// units defend, allies stand aside.
func initialCombatSides(gs *engine.GameState, faction, territoryID string, defs *engine.Defs) (attackers, defenders []engine.Unit) {
	ts, ok := gs.Territories[territoryID]
	if !ok {
		return nil, nil
	}
	for _, u := range ts.Units {
		owner := u.Owner()
		switch {
		case owner == faction:
			attackers = append(attackers, u)
		case !defs.SameAlliance(faction, owner):
			defenders = append(defenders, u)
		}
	}
	return attackers, defenders
}

// activeCombatSides splits the contested territory's units for an
// ongoing combat: surviving attackers versus hostile holdouts.
func activeCombatSides(gs *engine.GameState, defs *engine.Defs) (attackers, defenders []engine.Unit) {
	combat := gs.ActiveCombat
	attacking := make(map[string]bool, len(combat.AttackerInstanceIDs))
	for _, id := range combat.AttackerInstanceIDs {
		attacking[id] = true
	}
	ts, ok := gs.Territories[combat.TerritoryID]
	if !ok {
		return nil, nil
	}
	for _, u := range ts.Units {
		switch {
		case attacking[u.InstanceID]:
			attackers = append(attackers, u)
		case !defs.SameAlliance(combat.AttackerFaction, u.Owner()):
			defenders = append(defenders, u)
		}
	}
	return attackers, defenders
}

// --- Read-side queries over the live state ---

// AvailableActions lists the action types currently legal.
func (s *PlayService) AvailableActions(ctx context.Context, gameID string) ([]string, error) {
	state, _, err := s.State(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return engine.AvailableActionTypes(state), nil
}

// Stats returns the scoreboard.
func (s *PlayService) Stats(ctx context.Context, gameID string) (*engine.GameStats, error) {
	state, setup, err := s.State(ctx, gameID)
	if err != nil {
		return nil, err
	}
	stats := engine.Stats(state, setup.Defs)
	return &stats, nil
}

// MovableUnits lists the user's units that can still move this turn.
func (s *PlayService) MovableUnits(ctx context.Context, gameID, userID string) ([]engine.MovableUnit, error) {
	_, faction, err := s.playerFaction(ctx, gameID, userID)
	if err != nil {
		return nil, err
	}
	state, _, err := s.State(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return engine.MovableUnits(state, faction), nil
}

// ContestedTerritories lists territories where the user's faction
// shares ground with an enemy.
func (s *PlayService) ContestedTerritories(ctx context.Context, gameID, userID string) ([]engine.ContestedTerritory, error) {
	_, faction, err := s.playerFaction(ctx, gameID, userID)
	if err != nil {
		return nil, err
	}
	state, setup, err := s.State(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return engine.ContestedTerritories(state, faction, setup.Defs), nil
}
