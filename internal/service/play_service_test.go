package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/keatohn/baggins-and-allies/internal/model"
	"github.com/keatohn/baggins-and-allies/pkg/engine"
)

// playFixture is an active two-player game with faction assignments
// resolved, ready for actions.
type playFixture struct {
	play    *PlayService
	actions *mockActionRepo
	cache   *mockCache
	bcast   *recordingBroadcaster
	game    *model.Game
	users   map[string]string // faction -> user ID
}

func newPlayFixture(t *testing.T) *playFixture {
	t.Helper()
	repo := newMockGameRepo()
	actions := newMockActionRepo()
	cache := newMockCache()
	bcast := &recordingBroadcaster{}
	catalog := testCatalog()

	lobby := NewGameService(repo, cache, catalog, &recordingBroadcaster{})
	ctx := context.Background()
	game, err := lobby.CreateGame(ctx, "test", "", "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := lobby.JoinGame(ctx, game.Code, "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	started, err := lobby.StartGame(ctx, game.ID, "alice")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	users := map[string]string{}
	for _, p := range started.Players {
		users[p.Faction] = p.UserID
	}

	play := NewPlayService(repo, actions, cache, catalog, bcast, fixedRoller)
	return &playFixture{play: play, actions: actions, cache: cache, bcast: bcast, game: started, users: users}
}

func TestActRejectsOutsiders(t *testing.T) {
	f := newPlayFixture(t)
	ctx := context.Background()

	_, err := f.play.Act(ctx, f.game.ID, "mallory", engine.EndPhase(""))
	if !errors.Is(err, ErrNotInGame) {
		t.Errorf("expected ErrNotInGame, got %v", err)
	}
	_, err = f.play.Act(ctx, "no-such-game", f.users["blue"], engine.EndPhase(""))
	if !errors.Is(err, ErrGameNotFound) {
		t.Errorf("expected ErrGameNotFound, got %v", err)
	}
}

func TestActRequiresActiveGame(t *testing.T) {
	repo := newMockGameRepo()
	lobby := NewGameService(repo, newMockCache(), testCatalog(), &recordingBroadcaster{})
	ctx := context.Background()
	game, err := lobby.CreateGame(ctx, "waiting", "", "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	play := NewPlayService(repo, newMockActionRepo(), newMockCache(), testCatalog(), &recordingBroadcaster{}, fixedRoller)
	if _, err := play.Act(ctx, game.ID, "alice", engine.EndPhase("")); !errors.Is(err, ErrGameNotActive) {
		t.Errorf("expected ErrGameNotActive, got %v", err)
	}
}

func TestActOutOfTurnIsRuleError(t *testing.T) {
	f := newPlayFixture(t)
	ctx := context.Background()

	// Blue moves first; red acting now must be rejected without any log write.
	_, err := f.play.Act(ctx, f.game.ID, f.users["red"], engine.EndPhase(""))
	re := engine.AsRuleError(err)
	if re == nil || re.Code != engine.CodeNotYourTurn {
		t.Fatalf("expected not_your_turn rule error, got %v", err)
	}
	if n, _ := f.actions.Count(ctx, f.game.ID); n != 0 {
		t.Errorf("expected empty action log after rejection, got %d rows", n)
	}
}

func TestActEndPhaseLogsAndSnapshots(t *testing.T) {
	f := newPlayFixture(t)
	ctx := context.Background()

	res, err := f.play.Act(ctx, f.game.ID, f.users["blue"], engine.EndPhase(""))
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	if res.State.Phase != engine.PhaseCombatMove {
		t.Errorf("expected combat_move phase, got %s", res.State.Phase)
	}

	rows, err := f.actions.ListByGame(ctx, f.game.ID)
	if err != nil {
		t.Fatalf("list actions: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 logged action, got %d", len(rows))
	}
	if rows[0].Seq != 1 || rows[0].Faction != "blue" {
		t.Errorf("expected seq 1 by blue, got seq %d by %s", rows[0].Seq, rows[0].Faction)
	}

	var logged engine.Action
	if err := json.Unmarshal(rows[0].Action, &logged); err != nil {
		t.Fatalf("decode logged action: %v", err)
	}
	if logged.Type != engine.ActionEndPhase || logged.Faction != "blue" {
		t.Errorf("expected end_phase by blue in the log, got %+v", logged)
	}

	snapshot, _ := f.cache.GetGameState(ctx, f.game.ID)
	state, err := engine.Decode(snapshot)
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if state.Phase != engine.PhaseCombatMove {
		t.Errorf("expected snapshot in combat_move, got %s", state.Phase)
	}

	types := f.bcast.types()
	if len(types) == 0 {
		t.Fatal("expected phase change broadcast")
	}
	found := false
	for _, ty := range types {
		if ty == engine.EventPhaseChanged {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s among broadcasts %v", engine.EventPhaseChanged, types)
	}
}

func TestStateReplaysWhenSnapshotLost(t *testing.T) {
	f := newPlayFixture(t)
	ctx := context.Background()

	if _, err := f.play.Act(ctx, f.game.ID, f.users["blue"], engine.EndPhase("")); err != nil {
		t.Fatalf("act: %v", err)
	}
	if err := f.cache.DeleteGameState(ctx, f.game.ID); err != nil {
		t.Fatalf("drop snapshot: %v", err)
	}

	state, _, err := f.play.State(ctx, f.game.ID)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Phase != engine.PhaseCombatMove {
		t.Errorf("expected replayed state in combat_move, got %s", state.Phase)
	}

	if snap, _ := f.cache.GetGameState(ctx, f.game.ID); snap == nil {
		t.Error("expected snapshot rebuilt after replay")
	}
}

func TestFillDiceInitiateCombat(t *testing.T) {
	catalog := testCatalog()
	setup, err := catalog.Load("0.1")
	if err != nil {
		t.Fatalf("load setup: %v", err)
	}
	play := NewPlayService(newMockGameRepo(), newMockActionRepo(), newMockCache(), catalog, &recordingBroadcaster{}, fixedRoller)

	gs := engine.NewGame(setup)
	gs.Territories["field"].Units = []engine.Unit{
		{InstanceID: "blue_orc_1", UnitID: "orc", RemainingHealth: 1},
		{InstanceID: "blue_orc_2", UnitID: "orc", RemainingHealth: 1},
		{InstanceID: "red_spear_1", UnitID: "spear", RemainingHealth: 1},
	}

	action := engine.InitiateCombat("blue", "field", engine.DiceRolls{})
	play.fillDice(gs, &action, setup.Defs)

	if len(action.Payload.DiceRolls.Attacker) != 2 {
		t.Errorf("expected 2 attacker dice, got %v", action.Payload.DiceRolls.Attacker)
	}
	if len(action.Payload.DiceRolls.Defender) != 1 {
		t.Errorf("expected 1 defender die, got %v", action.Payload.DiceRolls.Defender)
	}
}

func TestFillDicePrefireRollsDefendersOnly(t *testing.T) {
	catalog := testCatalog()
	setup, err := catalog.Load("0.1")
	if err != nil {
		t.Fatalf("load setup: %v", err)
	}
	play := NewPlayService(newMockGameRepo(), newMockActionRepo(), newMockCache(), catalog, &recordingBroadcaster{}, fixedRoller)

	gs := engine.NewGame(setup)
	gs.Territories["field"].Units = []engine.Unit{
		{InstanceID: "blue_orc_1", UnitID: "orc", RemainingHealth: 1},
		{InstanceID: "red_bow_1", UnitID: "bow", RemainingHealth: 1},
		{InstanceID: "red_spear_1", UnitID: "spear", RemainingHealth: 1},
	}

	action := engine.InitiateCombat("blue", "field", engine.DiceRolls{})
	play.fillDice(gs, &action, setup.Defs)

	if len(action.Payload.DiceRolls.Attacker) != 0 {
		t.Errorf("expected no attacker dice during pre-fire, got %v", action.Payload.DiceRolls.Attacker)
	}
	if len(action.Payload.DiceRolls.Defender) != 1 {
		t.Errorf("expected only the archer's die, got %v", action.Payload.DiceRolls.Defender)
	}
}

func TestQueriesUseCallerFaction(t *testing.T) {
	f := newPlayFixture(t)
	ctx := context.Background()

	available, err := f.play.AvailableActions(ctx, f.game.ID)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	found := false
	for _, a := range available {
		if a == engine.ActionEndPhase {
			found = true
		}
	}
	if !found {
		t.Errorf("expected end_phase available in purchase phase, got %v", available)
	}

	stats, err := f.play.Stats(ctx, f.game.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats.Factions) != 2 {
		t.Errorf("expected stats for both factions, got %+v", stats.Factions)
	}

	movable, err := f.play.MovableUnits(ctx, f.game.ID, f.users["blue"])
	if err != nil {
		t.Fatalf("movable: %v", err)
	}
	if len(movable) != 2 {
		t.Fatalf("expected blue's 2 starting orcs, got %d", len(movable))
	}
	for _, m := range movable {
		if m.UnitID != "orc" {
			t.Errorf("expected only orcs for blue, got %s", m.UnitID)
		}
	}

	contested, err := f.play.ContestedTerritories(ctx, f.game.ID, f.users["blue"])
	if err != nil {
		t.Fatalf("contested: %v", err)
	}
	if len(contested) != 0 {
		t.Errorf("expected no contested territories at game start, got %+v", contested)
	}
}
