package engine

import "testing"

// --- Action availability ---

func TestAvailableActionTypes(t *testing.T) {
	gs, _ := newTestGame()

	got := AvailableActionTypes(gs)
	if !sameStrings(got, []string{ActionPurchaseUnits, ActionPurchaseCamp, ActionEndPhase}) {
		t.Errorf("unexpected purchase actions %v", got)
	}

	gs.Phase = PhaseCombat
	got = AvailableActionTypes(gs)
	if !sameStrings(got, []string{ActionInitiateCombat, ActionEndPhase}) {
		t.Errorf("unexpected combat actions without active combat %v", got)
	}

	gs.ActiveCombat = &ActiveCombat{TerritoryID: "woodland"}
	got = AvailableActionTypes(gs)
	if !sameStrings(got, []string{ActionContinueCombat, ActionRetreat}) {
		t.Errorf("unexpected combat actions with active combat %v", got)
	}

	gs.Winner = "good"
	if got = AvailableActionTypes(gs); len(got) != 0 {
		t.Errorf("expected no actions after victory, got %v", got)
	}
}

// --- Movement queries ---

func TestMovableUnits(t *testing.T) {
	gs, _ := newTestGame()

	movable := MovableUnits(gs, "gondor")
	if len(movable) != 2 {
		t.Fatalf("expected 2 movable footmen, got %v", movable)
	}
	if movable[0].TerritoryID != "minas" || movable[0].RemainingMovement != 1 {
		t.Errorf("unexpected movable unit %+v", movable[0])
	}

	gs.Territories["minas"].Units[0].RemainingMovement = 0
	if movable = MovableUnits(gs, "gondor"); len(movable) != 1 {
		t.Errorf("expected 1 movable unit after exhausting one, got %d", len(movable))
	}
}

func TestUnitMoveTargets(t *testing.T) {
	gs, defs := newTestGame()
	gs.Phase = PhaseCombatMove

	targets := UnitMoveTargets(gs, "gondor_footman_001", defs)
	if len(targets) != 1 || targets["woodland"] != 1 {
		t.Errorf("expected only woodland, got %v", targets)
	}
	if targets = UnitMoveTargets(gs, "gondor_footman_099", defs); len(targets) != 0 {
		t.Errorf("expected no targets for unknown unit, got %v", targets)
	}
}

func TestStackMoveTargets(t *testing.T) {
	gs, defs := newTestGame()
	gs.Phase = PhaseCombatMove

	targets := StackMoveTargets(gs, "minas", "footman", defs)
	woodland, ok := targets["woodland"]
	if !ok || woodland.MaxUnits != 2 || woodland.Cost != 1 {
		t.Errorf("unexpected woodland target %+v", woodland)
	}
	if len(woodland.InstanceIDs) != 2 {
		t.Errorf("expected both footmen listed, got %v", woodland.InstanceIDs)
	}
}

func TestMovePreviewFor(t *testing.T) {
	gs, defs := newTestGame()
	gs.Phase = PhaseCombatMove

	preview := MovePreviewFor(gs, "minas", "gondor", defs)
	if preview.Owner != "gondor" || len(preview.Stacks) != 1 {
		t.Fatalf("unexpected preview %+v", preview)
	}
	dests := preview.Stacks[0].Destinations
	dest, ok := dests["woodland"]
	if !ok || !dest.IsEnemy || dest.MaxUnits != 2 {
		t.Errorf("unexpected woodland destination %+v", dest)
	}
	if len(dests) != 1 {
		t.Errorf("expected only the enemy destination in combat_move, got %v", dests)
	}

	gs.Phase = PhaseNonCombatMove
	preview = MovePreviewFor(gs, "minas", "gondor", defs)
	dests = preview.Stacks[0].Destinations
	if _, ok := dests["woodland"]; ok {
		t.Error("enemy woodland must not appear in non_combat_move preview")
	}
	if _, ok := dests["osgiliath"]; !ok {
		t.Errorf("expected friendly osgiliath in preview, got %v", dests)
	}
}

// --- Purchasing and mobilization queries ---

func TestPurchasableUnits(t *testing.T) {
	gs, defs := newTestGame()

	units := PurchasableUnits(gs, "gondor", defs)
	if len(units) != 5 {
		t.Fatalf("expected 5 purchasable types, got %d", len(units))
	}
	byID := map[string]PurchasableUnit{}
	for _, u := range units {
		byID[u.UnitID] = u
	}
	// 4 power buys one footman, no knight.
	if byID["footman"].MaxAffordable != 1 {
		t.Errorf("expected 1 affordable footman, got %d", byID["footman"].MaxAffordable)
	}
	if byID["knight"].MaxAffordable != 0 {
		t.Errorf("expected 0 affordable knights, got %d", byID["knight"].MaxAffordable)
	}
}

func TestMobilizationCapacityFor(t *testing.T) {
	gs, defs := newTestGame()

	capacity := MobilizationCapacityFor(gs, defs)
	if capacity.TotalCapacity != 3 {
		t.Errorf("expected total capacity 3, got %d", capacity.TotalCapacity)
	}
	if len(capacity.Territories) != 1 || capacity.Territories[0].TerritoryID != "minas" || capacity.Territories[0].Power != 3 {
		t.Errorf("unexpected camp breakdown %v", capacity.Territories)
	}
}

func TestPurchasedUnits(t *testing.T) {
	gs, _ := newTestGame()
	gs.FactionPurchasedUnits["gondor"] = []UnitStack{{UnitID: "footman", Count: 2}}

	pool := PurchasedUnits(gs, "gondor")
	if len(pool) != 1 || pool[0].Count != 2 {
		t.Errorf("unexpected pool %v", pool)
	}
	pool[0].Count = 99
	if gs.FactionPurchasedUnits["gondor"][0].Count != 2 {
		t.Error("expected a copy, not a view of the pool")
	}
}

// --- Combat queries ---

func TestContestedTerritories(t *testing.T) {
	gs, defs := newTestGame()
	footman := addUnit(gs, defs, "woodland", "footman")
	orc := addUnit(gs, defs, "woodland", "orc")

	contested := ContestedTerritories(gs, "gondor", defs)
	if len(contested) != 1 {
		t.Fatalf("expected 1 contested territory, got %v", contested)
	}
	c := contested[0]
	if c.TerritoryID != "woodland" || c.AttackerCount != 1 || c.DefenderCount != 1 {
		t.Errorf("unexpected contested entry %+v", c)
	}
	if !sameStrings(c.AttackerUnitIDs, []string{footman}) || !sameStrings(c.DefenderUnitIDs, []string{orc}) {
		t.Errorf("unexpected unit ids %+v", c)
	}
}

func TestAlliedUnitsAreNotContested(t *testing.T) {
	gs, defs := newTestGame()
	addUnit(gs, defs, "edoras", "footman")

	// gondor and rohan share ground in edoras; that is not a fight.
	if contested := ContestedTerritories(gs, "gondor", defs); len(contested) != 0 {
		t.Errorf("expected no contested territories, got %v", contested)
	}
}

func TestRetreatOptions(t *testing.T) {
	gs, defs := newTestGame()

	if got := RetreatOptions(gs, defs); len(got) != 0 {
		t.Errorf("expected no options without combat, got %v", got)
	}

	gs.ActiveCombat = &ActiveCombat{AttackerFaction: "gondor", TerritoryID: "woodland"}
	if got := RetreatOptions(gs, defs); !sameStrings(got, []string{"minas", "osgiliath"}) {
		t.Errorf("expected minas and osgiliath, got %v", got)
	}

	gs.Territories["osgiliath"].Owner = "mordor"
	if got := RetreatOptions(gs, defs); !sameStrings(got, []string{"minas"}) {
		t.Errorf("expected only minas with osgiliath hostile, got %v", got)
	}
}

// --- Scoreboard ---

func TestStats(t *testing.T) {
	gs, defs := newTestGame()

	stats := Stats(gs, defs)
	gondor := stats.Factions["gondor"]
	if gondor.Territories != 2 || gondor.Strongholds != 1 || gondor.Units != 2 {
		t.Errorf("unexpected gondor stats %+v", gondor)
	}
	if gondor.Power != 4 || gondor.PowerPerTurn != 4 {
		t.Errorf("unexpected gondor power %+v", gondor)
	}

	good := stats.Alliances["good"]
	if good.Territories != 3 || good.Strongholds != 2 || good.Units != 3 {
		t.Errorf("unexpected good alliance stats %+v", good)
	}
	if good.Power != 6 || good.PowerPerTurn != 6 {
		t.Errorf("unexpected good alliance power %+v", good)
	}
}

func TestSummary(t *testing.T) {
	gs, defs := newTestGame()

	summary := Summary(gs, defs)
	if summary.TurnNumber != 1 || summary.CurrentFaction != "gondor" || summary.Phase != PhasePurchase {
		t.Errorf("unexpected header %+v", summary)
	}
	if summary.StrongholdCounts["good"] != 2 || summary.StrongholdCounts["evil"] != 1 {
		t.Errorf("unexpected stronghold counts %v", summary.StrongholdCounts)
	}
	if summary.TerritoryCounts["mordor"] != 4 {
		t.Errorf("expected mordor holding 4 territories, got %d", summary.TerritoryCounts["mordor"])
	}
	if summary.UnitCounts["gondor"] != 2 || summary.UnitCounts["rohan"] != 1 {
		t.Errorf("unexpected unit counts %v", summary.UnitCounts)
	}
	if summary.ActiveCombat != "" {
		t.Errorf("expected no active combat, got %q", summary.ActiveCombat)
	}
}

func TestTerritoryUnitStacks(t *testing.T) {
	gs, defs := newTestGame()
	gs.Territories["minas"].Units[1].RemainingMovement = 0

	stacks := TerritoryUnitStacks(gs, "minas", "gondor", defs)
	if len(stacks) != 1 {
		t.Fatalf("expected 1 stack, got %d", len(stacks))
	}
	s := stacks[0]
	if s.UnitID != "footman" || s.Count != 2 || s.CanMoveCount != 1 {
		t.Errorf("unexpected stack %+v", s)
	}
	if len(s.MovableInstanceIDs) != 1 || s.MovableInstanceIDs[0] != "gondor_footman_001" {
		t.Errorf("unexpected movable ids %v", s.MovableInstanceIDs)
	}
}
