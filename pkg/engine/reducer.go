package engine

import "sort"

// phaseAllowedActions maps each phase to the action types it accepts.
// The combat phase has an extra rule: with an active combat only
// continue_combat and retreat are permitted, without one only
// initiate_combat and end_phase.
var phaseAllowedActions = map[Phase][]string{
	PhasePurchase:      {ActionPurchaseUnits, ActionPurchaseCamp, ActionEndPhase},
	PhaseCombatMove:    {ActionMoveUnits, ActionCancelMove, ActionEndPhase},
	PhaseCombat:        {ActionInitiateCombat, ActionContinueCombat, ActionRetreat, ActionEndPhase},
	PhaseNonCombatMove: {ActionMoveUnits, ActionCancelMove, ActionEndPhase},
	PhaseMobilization:  {ActionMobilizeUnits, ActionPlaceCamp, ActionCancelMobilization, ActionEndPhase, ActionEndTurn},
}

// Apply validates an action against the state and applies it, returning
// the next state and the events describing what happened. The input
// state is never modified; on error the returned state is nil and the
// caller's state is unchanged.
func Apply(state *GameState, action Action, defs *Defs) (*GameState, []Event, error) {
	if state.Winner != "" {
		return nil, nil, ruleErr(CodeGameOver, "game is over, %s has won", state.Winner)
	}
	if action.Faction != state.CurrentFaction {
		return nil, nil, ruleErr(CodeNotYourTurn, "it is %s's turn, not %s's", state.CurrentFaction, action.Faction)
	}
	if err := checkPhaseAllows(state, action.Type); err != nil {
		return nil, nil, err
	}

	gs := state.Clone()
	var events []Event
	var err error

	switch action.Type {
	case ActionPurchaseUnits:
		events, err = handlePurchaseUnits(gs, action, defs)
	case ActionPurchaseCamp:
		events, err = handlePurchaseCamp(gs, action, defs)
	case ActionMoveUnits:
		events, err = handleMoveUnits(gs, action, defs)
	case ActionCancelMove:
		events, err = handleCancelMove(gs, action)
	case ActionInitiateCombat:
		events, err = handleInitiateCombat(gs, action, defs)
	case ActionContinueCombat:
		events, err = handleContinueCombat(gs, action, defs)
	case ActionRetreat:
		events, err = handleRetreat(gs, action, defs)
	case ActionMobilizeUnits:
		events, err = handleMobilizeUnits(gs, action, defs)
	case ActionPlaceCamp:
		events, err = handlePlaceCamp(gs, action, defs)
	case ActionCancelMobilization:
		events, err = handleCancelMobilization(gs, action)
	case ActionEndPhase:
		events, err = handleEndPhase(gs, defs)
	case ActionEndTurn:
		events, err = handleEndTurn(gs, defs)
	default:
		return nil, nil, ruleErr(CodePhaseNotAllowed, "unknown action type %q", action.Type)
	}
	if err != nil {
		return nil, nil, err
	}
	return gs, events, nil
}

// Replay applies a sequence of actions from an initial state. State is
// derived entirely from the action log; with the same dice in the
// payloads the result is bit-identical every time.
func Replay(initial *GameState, actions []Action, defs *Defs) (*GameState, []Event, error) {
	gs := initial.Clone()
	var all []Event
	for i, action := range actions {
		next, events, err := Apply(gs, action, defs)
		if err != nil {
			return nil, nil, ruleErr(CodeStateCorrupt, "replay failed at action %d (%s): %v", i, action.Type, err)
		}
		gs = next
		all = append(all, events...)
	}
	return gs, all, nil
}

func checkPhaseAllows(gs *GameState, actionType string) error {
	if gs.Phase == PhaseCombat {
		switch actionType {
		case ActionContinueCombat, ActionRetreat:
			if gs.ActiveCombat == nil {
				return ruleErr(CodeNoActiveCombat, "no active combat")
			}
			return nil
		case ActionInitiateCombat, ActionEndPhase:
			if gs.ActiveCombat != nil {
				return ruleErr(CodeCombatInProgress, "combat in progress in %s, continue or retreat first", gs.ActiveCombat.TerritoryID)
			}
			return nil
		}
	}
	for _, t := range phaseAllowedActions[gs.Phase] {
		if t == actionType {
			return nil
		}
	}
	return ruleErr(CodePhaseNotAllowed, "action %q not allowed in phase %q", actionType, gs.Phase)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func handlePurchaseUnits(gs *GameState, action Action, defs *Defs) ([]Event, error) {
	var events []Event
	faction := action.Faction
	purchases := action.Payload.Purchases

	if !gs.ownsCapital(faction, defs) {
		return nil, ruleErr(CodeCapitalLost, "cannot purchase units, %s's capital has been captured", faction)
	}

	totalCost := map[string]int{}
	totalCount := 0
	for _, unitID := range sortedKeys(purchases) {
		count := purchases[unitID]
		if count <= 0 {
			continue
		}
		ud, ok := defs.Units[unitID]
		if !ok {
			return nil, ruleErr(CodeUnknownUnit, "unknown unit %q", unitID)
		}
		if !ud.Purchasable {
			return nil, ruleErr(CodeUnitNotPurchasable, "unit %q is not purchasable", unitID)
		}
		if ud.Faction != faction {
			return nil, ruleErr(CodeUnitNotOfFaction, "faction %s cannot purchase %q", faction, unitID)
		}
		for resource, amount := range ud.Cost {
			totalCost[resource] += amount * count
		}
		totalCount += count
	}

	// The pool plus this request must still fit through this turn's
	// mobilization camps.
	pooled := 0
	for _, stack := range gs.FactionPurchasedUnits[faction] {
		pooled += stack.Count
	}
	capacity := mobilizationCapacity(gs, defs)
	if pooled+totalCount > capacity {
		return nil, ruleErr(CodeMobilizationCapacityExceeded,
			"cannot purchase %d units, pool of %d would exceed mobilization capacity %d", totalCount, pooled, capacity)
	}

	resources := gs.FactionResources[faction]
	if resources == nil {
		resources = map[string]int{}
		gs.FactionResources[faction] = resources
	}
	for _, resource := range sortedKeys(totalCost) {
		if resources[resource] < totalCost[resource] {
			return nil, ruleErr(CodeInsufficientResource,
				"insufficient %s: have %d, need %d", resource, resources[resource], totalCost[resource])
		}
	}

	for _, resource := range sortedKeys(totalCost) {
		oldValue := resources[resource]
		resources[resource] -= totalCost[resource]
		events = append(events, resourcesChanged(faction, resource, oldValue, resources[resource], "purchase"))
	}

	for _, unitID := range sortedKeys(purchases) {
		count := purchases[unitID]
		if count <= 0 {
			continue
		}
		addToPool(gs, faction, unitID, count)
	}

	events = append(events, unitsPurchased(faction, purchases, totalCost))
	return events, nil
}

func addToPool(gs *GameState, faction, unitID string, count int) {
	pool := gs.FactionPurchasedUnits[faction]
	for i := range pool {
		if pool[i].UnitID == unitID {
			pool[i].Count += count
			return
		}
	}
	gs.FactionPurchasedUnits[faction] = append(pool, UnitStack{UnitID: unitID, Count: count})
}

// mobilizationCapacity is the total power production of the current
// faction's mobilization camps this turn.
func mobilizationCapacity(gs *GameState, defs *Defs) int {
	total := 0
	for _, tid := range gs.MobilizationCamps {
		total += defs.Territories[tid].Produces["power"]
	}
	return total
}

func handlePurchaseCamp(gs *GameState, action Action, defs *Defs) ([]Event, error) {
	faction := action.Faction
	resources := gs.FactionResources[faction]
	if resources == nil {
		resources = map[string]int{}
		gs.FactionResources[faction] = resources
	}
	if resources["power"] < gs.CampCost {
		return nil, ruleErr(CodeInsufficientResource,
			"insufficient power: have %d, need %d", resources["power"], gs.CampCost)
	}

	options := campPlacementOptions(gs, faction, defs)
	if len(options) == 0 {
		return nil, ruleErr(CodeNoCampPlacementOptions, "no territories available for a new camp")
	}

	oldValue := resources["power"]
	resources["power"] -= gs.CampCost
	gs.PendingCamps = append(gs.PendingCamps, PendingCamp{TerritoryOptions: options})

	return []Event{resourcesChanged(faction, "power", oldValue, resources["power"], "purchase_camp")}, nil
}

// campPlacementOptions returns the territories the faction held at turn
// start that have no standing camp and were not already claimed by an
// earlier pending camp's placement.
func campPlacementOptions(gs *GameState, faction string, defs *Defs) []string {
	taken := map[string]bool{}
	for _, pc := range gs.PendingCamps {
		if pc.PlacedTerritoryID != "" {
			taken[pc.PlacedTerritoryID] = true
		}
	}
	var options []string
	for _, tid := range gs.TerritoriesAtTurnStart[faction] {
		if taken[tid] || gs.HasStandingCamp(tid, defs) {
			continue
		}
		options = append(options, tid)
	}
	return options
}

func handleMoveUnits(gs *GameState, action Action, defs *Defs) ([]Event, error) {
	faction := action.Faction
	from := action.Payload.From
	to := action.Payload.To
	ids := action.Payload.UnitInstanceIDs
	charge := action.Payload.ChargeThrough

	fromTerritory, okFrom := gs.Territories[from]
	_, okTo := gs.Territories[to]
	if !okFrom || !okTo {
		return nil, ruleErr(CodeInvalidTerritory, "invalid territory %q or %q", from, to)
	}
	if len(ids) == 0 {
		return nil, ruleErr(CodeNoUnits, "no units specified to move")
	}

	byID := map[string]*Unit{}
	for i := range fromTerritory.Units {
		byID[fromTerritory.Units[i].InstanceID] = &fromTerritory.Units[i]
	}
	pending := map[string]bool{}
	for _, pm := range gs.PendingMoves {
		for _, id := range pm.UnitInstanceIDs {
			pending[id] = true
		}
	}

	units := make([]*Unit, 0, len(ids))
	for _, id := range ids {
		if pending[id] {
			return nil, ruleErr(CodeUnitAlreadyPending, "unit %s already has a pending move", id)
		}
		u, ok := byID[id]
		if !ok {
			return nil, ruleErr(CodeUnitNotFound, "unit %s not found in %s", id, from)
		}
		if u.Owner() != faction {
			return nil, ruleErr(CodeUnitNotOwned, "unit %s does not belong to %s", id, faction)
		}
		units = append(units, u)
	}

	for i, u := range units {
		dests, routes := reachableWithCharges(gs, u, from, defs, gs.Phase)
		if _, ok := dests[to]; !ok {
			return nil, ruleErr(CodeUnreachable,
				"unit %s cannot reach %s from %s (remaining_movement=%d, phase=%s)",
				u.InstanceID, to, from, u.RemainingMovement, gs.Phase)
		}
		// The charge route is validated against the leading unit only;
		// followers just need the destination reachable.
		if i == 0 && len(charge) > 0 {
			valid := false
			for _, route := range routes[to] {
				if pathsEqual(route, charge) {
					valid = true
					break
				}
			}
			if !valid {
				return nil, ruleErr(CodeInvalidChargeRoute, "invalid charge route to %s", to)
			}
		}
	}

	gs.PendingMoves = append(gs.PendingMoves, PendingMove{
		FromTerritory:   from,
		ToTerritory:     to,
		UnitInstanceIDs: ids,
		Phase:           gs.Phase,
		ChargeThrough:   charge,
	})
	return []Event{unitsMoved(faction, from, to, ids, gs.Phase)}, nil
}

func handleCancelMove(gs *GameState, action Action) ([]Event, error) {
	idx := indexOf(action.Payload.MoveIndex)
	if idx < 0 || idx >= len(gs.PendingMoves) {
		return nil, ruleErr(CodeInvalidIndex, "invalid move index %d (have %d pending moves)", idx, len(gs.PendingMoves))
	}
	cancelled := gs.PendingMoves[idx]
	gs.PendingMoves = append(gs.PendingMoves[:idx], gs.PendingMoves[idx+1:]...)
	return []Event{moveCancelled(cancelled)}, nil
}

func handleInitiateCombat(gs *GameState, action Action, defs *Defs) ([]Event, error) {
	attackerFaction := action.Faction
	territoryID := action.Payload.TerritoryID
	rolls := action.Payload.DiceRolls

	territory, ok := gs.Territories[territoryID]
	if !ok {
		return nil, ruleErr(CodeInvalidTerritory, "invalid territory %q", territoryID)
	}
	if territory.Owner == attackerFaction {
		return nil, ruleErr(CodeCannotAttackOwn, "cannot attack own territory %s", territoryID)
	}
	defenderFaction := territory.Owner

	var attackers, defenders []Unit
	for i := range territory.Units {
		switch territory.Units[i].Owner() {
		case attackerFaction:
			attackers = append(attackers, territory.Units[i])
		case defenderFaction:
			defenders = append(defenders, territory.Units[i])
		}
	}
	if len(attackers) == 0 {
		return nil, ruleErr(CodeNoAttackers, "no attacking units in %s", territoryID)
	}
	if len(defenders) == 0 {
		return nil, ruleErr(CodeNoDefenders, "no defending units in %s", territoryID)
	}

	events := []Event{combatStarted(
		territoryID, attackerFaction, instanceIDs(attackers),
		defenderFaction, instanceIDs(defenders),
	)}

	terrain := defs.Territories[territoryID].TerrainType
	archers := PrefireArchers(defenders, defs)

	if len(archers) > 0 {
		prefireEvents, err := resolveArcherPrefire(gs, territory, territoryID, attackerFaction, defenderFaction, attackers, defenders, archers, rolls, terrain, defs)
		return append(events, prefireEvents...), err
	}

	attackerMods := CombatModifiers(attackers, defenders, defs, terrain)
	defenderMods := CombatModifiers(defenders, attackers, defs, terrain)

	roundEvents, result, log := resolveRound(territory, territoryID, attackerFaction, defenderFaction, attackers, defenders, rolls, attackerMods, defenderMods, 1, defs)
	events = append(events, roundEvents...)

	if result.AttackersEliminated || result.DefendersEliminated {
		events = append(events, resolveCombatEnd(gs, attackerFaction, territoryID, result, 1, defs)...)
		return events, nil
	}

	gs.ActiveCombat = &ActiveCombat{
		AttackerFaction:     attackerFaction,
		TerritoryID:         territoryID,
		AttackerInstanceIDs: result.SurvivingAttackerIDs,
		RoundNumber:         1,
		CombatLog:           []CombatRound{log},
		AttackersHaveRolled: true,
	}
	return events, nil
}

// resolveArcherPrefire runs the defender archer volley before round 1.
// Only the archers roll, at defense shifted down by one, and only the
// attackers take hits. Retreat stays blocked until a full round has
// been fought.
func resolveArcherPrefire(gs *GameState, territory *TerritoryState, territoryID, attackerFaction, defenderFaction string, attackers, defenders, archers []Unit, rolls DiceRolls, terrain string, defs *Defs) ([]Event, error) {
	mods := PrefireModifiers(archers, defs, terrain)
	hits := countHits(archers, rolls.Defender, defs, false, mods)

	preRound := append([]Unit(nil), attackers...)
	survivors, destroyed, wounded := applyHits(attackers, hits, defs, true)

	result := RoundResult{
		DefenderHits:         hits,
		AttackerCasualties:   destroyed,
		DefenderCasualties:   []string{},
		AttackerWounded:      wounded,
		DefenderWounded:      []string{},
		SurvivingAttackerIDs: instanceIDs(survivors),
		SurvivingDefenderIDs: instanceIDs(defenders),
		AttackersEliminated:  len(survivors) == 0,
	}
	log := CombatRound{
		RoundNumber:        0,
		AttackerRolls:      []int{},
		DefenderRolls:      rolls.Defender,
		DefenderHits:       hits,
		AttackerCasualties: destroyed,
		DefenderCasualties: []string{},
		AttackersRemaining: len(survivors),
		DefendersRemaining: len(defenders),
	}

	events := []Event{combatRoundResolved(combatRoundInfo{
		territory:              territoryID,
		roundNumber:            0,
		attackerDice:           map[int]DiceGroup{},
		defenderDice:           GroupDiceByStat(archers, rolls.Defender, defs, false, mods),
		attackerHitsByUnitType: HitsByUnitType(destroyed, wounded, preRound),
		defenderHitsByUnitType: map[string]int{},
		isArcherPrefire:        true,
		result:                 result,
	})}
	for _, id := range destroyed {
		events = append(events, unitDestroyed(id, unitTypeOfInstance(id), attackerFaction, territoryID, "combat"))
	}

	removeCasualties(territory, destroyed)
	syncHealth(territory, survivors)

	if result.AttackersEliminated {
		events = append(events, resolveCombatEnd(gs, attackerFaction, territoryID, result, 1, defs)...)
		return events, nil
	}

	gs.ActiveCombat = &ActiveCombat{
		AttackerFaction:     attackerFaction,
		TerritoryID:         territoryID,
		AttackerInstanceIDs: result.SurvivingAttackerIDs,
		RoundNumber:         0,
		CombatLog:           []CombatRound{log},
		AttackersHaveRolled: false,
	}
	return events, nil
}

// resolveRound fights one full round and applies its results to the
// territory, returning the round events, the result and the log entry.
func resolveRound(territory *TerritoryState, territoryID, attackerFaction, defenderFaction string, attackers, defenders []Unit, rolls DiceRolls, attackerMods, defenderMods map[string]int, roundNumber int, defs *Defs) ([]Event, RoundResult, CombatRound) {
	attackerDice := GroupDiceByStat(attackers, rolls.Attacker, defs, true, attackerMods)
	defenderDice := GroupDiceByStat(defenders, rolls.Defender, defs, false, defenderMods)
	preRoundAttackers := append([]Unit(nil), attackers...)
	preRoundDefenders := append([]Unit(nil), defenders...)

	result, attackerSurvivors, defenderSurvivors := ResolveCombatRound(attackers, defenders, defs, rolls, attackerMods, defenderMods)

	log := CombatRound{
		RoundNumber:        roundNumber,
		AttackerRolls:      rolls.Attacker,
		DefenderRolls:      rolls.Defender,
		AttackerHits:       result.AttackerHits,
		DefenderHits:       result.DefenderHits,
		AttackerCasualties: result.AttackerCasualties,
		DefenderCasualties: result.DefenderCasualties,
		AttackersRemaining: len(result.SurvivingAttackerIDs),
		DefendersRemaining: len(result.SurvivingDefenderIDs),
	}

	events := []Event{combatRoundResolved(combatRoundInfo{
		territory:              territoryID,
		roundNumber:            roundNumber,
		attackerDice:           attackerDice,
		defenderDice:           defenderDice,
		attackerHitsByUnitType: HitsByUnitType(result.AttackerCasualties, result.AttackerWounded, preRoundAttackers),
		defenderHitsByUnitType: HitsByUnitType(result.DefenderCasualties, result.DefenderWounded, preRoundDefenders),
		result:                 result,
	})}
	for _, id := range result.AttackerCasualties {
		events = append(events, unitDestroyed(id, unitTypeOfInstance(id), attackerFaction, territoryID, "combat"))
	}
	for _, id := range result.DefenderCasualties {
		events = append(events, unitDestroyed(id, unitTypeOfInstance(id), defenderFaction, territoryID, "combat"))
	}

	removeCasualties(territory, result.AttackerCasualties)
	removeCasualties(territory, result.DefenderCasualties)
	syncHealth(territory, attackerSurvivors)
	syncHealth(territory, defenderSurvivors)

	return events, result, log
}

func removeCasualties(territory *TerritoryState, casualtyIDs []string) {
	if len(casualtyIDs) == 0 {
		return
	}
	dead := map[string]bool{}
	for _, id := range casualtyIDs {
		dead[id] = true
	}
	kept := territory.Units[:0]
	for _, u := range territory.Units {
		if !dead[u.InstanceID] {
			kept = append(kept, u)
		}
	}
	territory.Units = kept
}

// syncHealth copies the decremented health of wounded survivors back
// onto the territory's unit instances.
func syncHealth(territory *TerritoryState, survivors []Unit) {
	for i := range survivors {
		for j := range territory.Units {
			if territory.Units[j].InstanceID == survivors[i].InstanceID {
				territory.Units[j].RemainingHealth = survivors[i].RemainingHealth
				break
			}
		}
	}
}

func handleContinueCombat(gs *GameState, action Action, defs *Defs) ([]Event, error) {
	combat := gs.ActiveCombat
	if combat == nil {
		return nil, ruleErr(CodeNoActiveCombat, "no active combat to continue")
	}
	rolls := action.Payload.DiceRolls
	territory, ok := gs.Territories[combat.TerritoryID]
	if !ok {
		return nil, ruleErr(CodeStateCorrupt, "active combat references missing territory %q", combat.TerritoryID)
	}
	defenderFaction := territory.Owner

	attackerIDs := map[string]bool{}
	for _, id := range combat.AttackerInstanceIDs {
		attackerIDs[id] = true
	}
	var attackers, defenders []Unit
	for i := range territory.Units {
		if attackerIDs[territory.Units[i].InstanceID] {
			attackers = append(attackers, territory.Units[i])
		} else {
			defenders = append(defenders, territory.Units[i])
		}
	}

	terrain := defs.Territories[combat.TerritoryID].TerrainType
	attackerMods := CombatModifiers(attackers, defenders, defs, terrain)
	defenderMods := CombatModifiers(defenders, attackers, defs, terrain)

	roundNumber := combat.RoundNumber + 1
	events, result, log := resolveRound(territory, combat.TerritoryID, combat.AttackerFaction, defenderFaction, attackers, defenders, rolls, attackerMods, defenderMods, roundNumber, defs)

	combat.CombatLog = append(combat.CombatLog, log)
	combat.RoundNumber = roundNumber
	combat.AttackerInstanceIDs = result.SurvivingAttackerIDs
	combat.AttackersHaveRolled = true

	if result.AttackersEliminated || result.DefendersEliminated {
		events = append(events, resolveCombatEnd(gs, combat.AttackerFaction, combat.TerritoryID, result, len(combat.CombatLog), defs)...)
	}
	return events, nil
}

// resolveCombatEnd finishes a combat. An attacker win queues the
// territory for capture at end of combat phase so liberation applies;
// anything else, including mutual annihilation, leaves ownership alone.
func resolveCombatEnd(gs *GameState, attackerFaction, territoryID string, result RoundResult, totalRounds int, defs *Defs) []Event {
	territory := gs.Territories[territoryID]
	oldOwner := territory.Owner

	var events []Event
	if result.DefendersEliminated && !result.AttackersEliminated {
		if defs.Territories[territoryID].Ownable {
			gs.PendingCaptures[territoryID] = attackerFaction
		}
		events = append(events, combatEnded(
			territoryID, "attacker", attackerFaction, oldOwner,
			result.SurvivingAttackerIDs, []string{}, totalRounds,
		))
	} else {
		events = append(events, combatEnded(
			territoryID, "defender", attackerFaction, oldOwner,
			[]string{}, result.SurvivingDefenderIDs, totalRounds,
		))
	}
	gs.ActiveCombat = nil
	return events
}

func handleRetreat(gs *GameState, action Action, defs *Defs) ([]Event, error) {
	combat := gs.ActiveCombat
	if combat == nil {
		return nil, ruleErr(CodeNoActiveCombat, "no active combat to retreat from")
	}
	if !combat.AttackersHaveRolled {
		return nil, ruleErr(CodeCannotRetreatBeforeRolling, "cannot retreat before fighting a round")
	}
	retreatTo := action.Payload.RetreatTo
	retreatTerritory, ok := gs.Territories[retreatTo]
	if !ok {
		return nil, ruleErr(CodeRetreatDestinationInvalid, "invalid retreat territory %q", retreatTo)
	}
	if !contains(defs.Territories[combat.TerritoryID].Adjacent, retreatTo) {
		return nil, ruleErr(CodeRetreatDestinationInvalid, "%s is not adjacent to %s", retreatTo, combat.TerritoryID)
	}
	if !retreatDestinationOK(gs, retreatTerritory, combat.AttackerFaction, defs) {
		return nil, ruleErr(CodeRetreatDestinationInvalid, "cannot retreat into hostile territory %s", retreatTo)
	}

	territory := gs.Territories[combat.TerritoryID]
	surviving := map[string]bool{}
	for _, id := range combat.AttackerInstanceIDs {
		surviving[id] = true
	}
	var moved []Unit
	kept := territory.Units[:0]
	for _, u := range territory.Units {
		if surviving[u.InstanceID] {
			moved = append(moved, u)
		} else {
			kept = append(kept, u)
		}
	}
	territory.Units = kept
	retreatTerritory.Units = append(retreatTerritory.Units, moved...)

	events := []Event{unitsRetreated(combat.AttackerFaction, combat.TerritoryID, retreatTo, combat.AttackerInstanceIDs)}
	events = append(events, combatEnded(
		combat.TerritoryID, "defender", combat.AttackerFaction, territory.Owner,
		[]string{}, instanceIDs(territory.Units), combat.RoundNumber,
	))
	gs.ActiveCombat = nil
	return events, nil
}

// retreatDestinationOK accepts allied territories and unowned
// territories free of enemy units.
func retreatDestinationOK(gs *GameState, ts *TerritoryState, attackerFaction string, defs *Defs) bool {
	if ts.Owner != "" {
		return ts.Owner == attackerFaction || defs.SameAlliance(attackerFaction, ts.Owner)
	}
	for i := range ts.Units {
		if !defs.SameAlliance(attackerFaction, ts.Units[i].Owner()) {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func handleMobilizeUnits(gs *GameState, action Action, defs *Defs) ([]Event, error) {
	faction := action.Faction
	destination := action.Payload.Destination
	requests := action.Payload.Units

	if len(requests) == 0 {
		return nil, ruleErr(CodeNoUnits, "no units specified to mobilize")
	}
	if !gs.ownsCapital(faction, defs) {
		return nil, ruleErr(CodeCapitalLost, "cannot mobilize units, %s's capital has been captured", faction)
	}
	destDef, ok := defs.Territories[destination]
	if !ok {
		return nil, ruleErr(CodeInvalidTerritory, "territory %q does not exist", destination)
	}
	if _, ok := gs.Territories[destination]; !ok {
		return nil, ruleErr(CodeInvalidTerritory, "territory %q does not exist", destination)
	}
	if !destDef.IsStronghold && !gs.HasStandingCamp(destination, defs) {
		return nil, ruleErr(CodeNotAStronghold, "territory %s is not a mobilization point", destination)
	}
	if !contains(gs.MobilizationCamps, destination) {
		return nil, ruleErr(CodeNotAMobilizationCamp, "cannot mobilize to %s: camp must be owned at start of turn", destination)
	}
	if !gs.HasStandingCamp(destination, defs) {
		return nil, ruleErr(CodeCampDestroyed, "the camp at %s has been destroyed", destination)
	}

	pool := gs.FactionPurchasedUnits[faction]
	for _, req := range requests {
		have := 0
		for _, stack := range pool {
			if stack.UnitID == req.UnitID {
				have = stack.Count
				break
			}
		}
		if have < req.Count {
			return nil, ruleErr(CodeInsufficientPurchased, "not enough purchased %s: have %d, need %d", req.UnitID, have, req.Count)
		}
	}

	total := 0
	for _, req := range requests {
		total += req.Count
	}
	power := destDef.Produces["power"]
	if total > power {
		return nil, ruleErr(CodeExceedsMobilizationPower,
			"cannot mobilize %d units, %s produces only %d power", total, destination, power)
	}

	for _, req := range requests {
		for i := range pool {
			if pool[i].UnitID == req.UnitID {
				pool[i].Count -= req.Count
				break
			}
		}
	}
	pruned := pool[:0]
	for _, stack := range pool {
		if stack.Count > 0 {
			pruned = append(pruned, stack)
		}
	}
	gs.FactionPurchasedUnits[faction] = pruned

	gs.PendingMobilizations = append(gs.PendingMobilizations, PendingMobilization{
		Destination: destination,
		Units:       requests,
	})
	return nil, nil
}

func handlePlaceCamp(gs *GameState, action Action, defs *Defs) ([]Event, error) {
	idx := indexOf(action.Payload.CampIndex)
	territoryID := action.Payload.TerritoryID

	if idx < 0 || idx >= len(gs.PendingCamps) {
		return nil, ruleErr(CodeInvalidIndex, "invalid camp index %d (have %d pending camps)", idx, len(gs.PendingCamps))
	}
	pc := &gs.PendingCamps[idx]
	if pc.PlacedTerritoryID != "" {
		return nil, ruleErr(CodeCampAlreadyPlaced, "camp %d is already placed on %s", idx, pc.PlacedTerritoryID)
	}
	if !contains(pc.TerritoryOptions, territoryID) {
		return nil, ruleErr(CodeCampPlacementInvalid, "territory %s is not a valid placement for this camp", territoryID)
	}
	if gs.HasStandingCamp(territoryID, defs) {
		return nil, ruleErr(CodeCampPlacementInvalid, "territory %s already has a camp", territoryID)
	}

	campID := "camp_" + territoryID
	pc.PlacedTerritoryID = territoryID
	gs.DynamicCamps[campID] = territoryID
	gs.CampsStanding = append(gs.CampsStanding, campID)
	// Takes effect next turn; mobilization_camps for this turn is fixed.
	return nil, nil
}

func handleCancelMobilization(gs *GameState, action Action) ([]Event, error) {
	idx := indexOf(action.Payload.MobilizationIndex)
	if idx < 0 || idx >= len(gs.PendingMobilizations) {
		return nil, ruleErr(CodeInvalidIndex, "invalid mobilization index %d (have %d pending)", idx, len(gs.PendingMobilizations))
	}
	cancelled := gs.PendingMobilizations[idx]
	gs.PendingMobilizations = append(gs.PendingMobilizations[:idx], gs.PendingMobilizations[idx+1:]...)

	faction := gs.CurrentFaction
	for _, stack := range cancelled.Units {
		addToPool(gs, faction, stack.UnitID, stack.Count)
	}
	return []Event{mobilizationCancelled(cancelled)}, nil
}

func handleEndPhase(gs *GameState, defs *Defs) ([]Event, error) {
	var events []Event
	oldPhase := gs.Phase

	switch gs.Phase {
	case PhaseCombatMove:
		applyPendingMoves(gs, PhaseCombatMove, defs)

	case PhaseCombat:
		events = append(events, applyPendingCaptures(gs, defs)...)

	case PhaseNonCombatMove:
		applyPendingMoves(gs, PhaseNonCombatMove, defs)
		resetUnitStats(gs, gs.CurrentFaction)

	case PhaseMobilization:
		events = append(events, applyPendingMobilizations(gs, defs)...)
		events = append(events, phaseChanged(oldPhase, "turn_end", gs.CurrentFaction))
		turnEvents, err := handleEndTurn(gs, defs)
		if err != nil {
			return nil, err
		}
		return append(events, turnEvents...), nil
	}

	for i, p := range PhaseOrder {
		if p == gs.Phase {
			gs.Phase = PhaseOrder[i+1]
			break
		}
	}
	events = append(events, phaseChanged(oldPhase, gs.Phase, gs.CurrentFaction))
	return events, nil
}

// applyPendingMoves executes the declared moves of the given phase.
// Moves referencing missing territories, unreachable destinations or
// absent units are skipped rather than failed; validation happened at
// declaration time and the state may have shifted since.
func applyPendingMoves(gs *GameState, phase Phase, defs *Defs) {
	var toApply []PendingMove
	remaining := gs.PendingMoves[:0]
	for _, pm := range gs.PendingMoves {
		if pm.Phase == phase {
			toApply = append(toApply, pm)
		} else {
			remaining = append(remaining, pm)
		}
	}
	gs.PendingMoves = remaining

	for _, pm := range toApply {
		from, okFrom := gs.Territories[pm.FromTerritory]
		to, okTo := gs.Territories[pm.ToTerritory]
		if !okFrom || !okTo || len(pm.UnitInstanceIDs) == 0 {
			continue
		}
		faction := OwnerOfInstance(pm.UnitInstanceIDs[0])

		// Cavalry charges conquer each territory they passed over.
		for _, tid := range pm.ChargeThrough {
			ts, ok := gs.Territories[tid]
			if !ok || !defs.Territories[tid].Ownable {
				continue
			}
			if ts.Owner != "" && !defs.SameAlliance(faction, ts.Owner) {
				gs.PendingCaptures[tid] = faction
			}
		}

		distance := MovementCost(pm.FromTerritory, pm.ToTerritory, defs)
		if distance < 0 {
			continue
		}

		for _, id := range pm.UnitInstanceIDs {
			for i := range from.Units {
				if from.Units[i].InstanceID == id {
					u := from.Units[i]
					from.Units = append(from.Units[:i], from.Units[i+1:]...)
					u.RemainingMovement -= distance
					to.Units = append(to.Units, u)
					break
				}
			}
		}

		// A combat move into an ownable enemy territory with nobody
		// left to defend it captures it outright.
		if phase == PhaseCombatMove && to.Owner != "" && to.Owner != faction && defs.Territories[pm.ToTerritory].Ownable {
			if !defs.SameAlliance(faction, to.Owner) {
				hostile := false
				for i := range to.Units {
					if to.Units[i].Owner() != faction {
						hostile = true
						break
					}
				}
				if !hostile {
					gs.PendingCaptures[pm.ToTerritory] = faction
				}
			}
		}
	}
}

// applyPendingCaptures transfers ownership of every territory queued
// during the combat phase, honoring liberation: if the original owner
// is a living ally of the capturer, the territory reverts to them.
// Camps on a captured territory are destroyed.
func applyPendingCaptures(gs *GameState, defs *Defs) []Event {
	var events []Event
	for _, territoryID := range sortedKeys(gs.PendingCaptures) {
		capturer := gs.PendingCaptures[territoryID]
		territory, ok := gs.Territories[territoryID]
		if !ok {
			continue
		}
		oldOwner := territory.Owner

		newOwner := capturer
		if territory.OriginalOwner != "" && territory.OriginalOwner != capturer &&
			defs.SameAlliance(capturer, territory.OriginalOwner) {
			newOwner = territory.OriginalOwner
		}
		territory.Owner = newOwner
		gs.destroyCampsAt(territoryID, defs)

		events = append(events, territoryCaptured(territoryID, oldOwner, newOwner, instanceIDs(territory.Units)))
	}
	gs.PendingCaptures = map[string]string{}
	return events
}

func applyPendingMobilizations(gs *GameState, defs *Defs) []Event {
	var events []Event
	faction := gs.CurrentFaction
	for _, pending := range gs.PendingMobilizations {
		dest, ok := gs.Territories[pending.Destination]
		if !ok {
			continue
		}
		var mobilized []map[string]string
		for _, stack := range pending.Units {
			ud, ok := defs.Units[stack.UnitID]
			if !ok {
				continue
			}
			for i := 0; i < stack.Count; i++ {
				u := Unit{
					InstanceID:        gs.GenerateInstanceID(faction, stack.UnitID),
					UnitID:            stack.UnitID,
					RemainingMovement: ud.Movement,
					RemainingHealth:   ud.Health,
					BaseMovement:      ud.Movement,
					BaseHealth:        ud.Health,
				}
				dest.Units = append(dest.Units, u)
				mobilized = append(mobilized, map[string]string{
					"unit_id":     u.UnitID,
					"instance_id": u.InstanceID,
				})
			}
		}
		if len(mobilized) > 0 {
			events = append(events, unitsMobilized(faction, pending.Destination, mobilized))
		}
	}
	gs.PendingMobilizations = []PendingMobilization{}
	return events
}

// resetUnitStats restores movement and health to base values for units
// sitting in territories owned by the faction.
func resetUnitStats(gs *GameState, faction string) {
	for _, ts := range gs.Territories {
		if ts.Owner != faction {
			continue
		}
		for i := range ts.Units {
			ts.Units[i].RemainingMovement = ts.Units[i].BaseMovement
			ts.Units[i].RemainingHealth = ts.Units[i].BaseHealth
		}
	}
}

func handleEndTurn(gs *GameState, defs *Defs) ([]Event, error) {
	var events []Event
	oldFaction := gs.CurrentFaction

	// Unspent purchases are lost.
	gs.FactionPurchasedUnits[oldFaction] = []UnitStack{}

	// Income accrues only while the capital is held, and is collected
	// at the start of the faction's next turn.
	if gs.ownsCapital(oldFaction, defs) {
		income := map[string]int{}
		var contributing []string
		for _, tid := range sortedKeys(gs.Territories) {
			if gs.Territories[tid].Owner != oldFaction {
				continue
			}
			produces := defs.Territories[tid].Produces
			for resource, amount := range produces {
				income[resource] += amount
			}
			if len(produces) > 0 {
				contributing = append(contributing, tid)
			}
		}
		gs.FactionPendingIncome[oldFaction] = income
		if len(income) > 0 {
			events = append(events, incomeCalculated(oldFaction, income, contributing))
		}
	} else {
		gs.FactionPendingIncome[oldFaction] = map[string]int{}
	}

	events = append(events, turnEnded(gs.TurnNumber, oldFaction))

	factionIDs := defs.SortedFactionIDs()
	currentIdx := 0
	for i, id := range factionIDs {
		if id == gs.CurrentFaction {
			currentIdx = i
			break
		}
	}
	nextIdx := (currentIdx + 1) % len(factionIDs)
	gs.CurrentFaction = factionIDs[nextIdx]
	gs.Phase = PhasePurchase

	if nextIdx == 0 {
		if winner, counts, controlled := checkVictory(gs, defs); winner != "" {
			gs.Winner = winner
			events = append(events, victoryEvent(winner, counts, gs.VictoryCriteria.Strongholds[winner], controlled))
		} else {
			gs.TurnNumber++
		}
	}

	newFaction := gs.CurrentFaction
	if income := gs.FactionPendingIncome[newFaction]; len(income) > 0 {
		resources := gs.FactionResources[newFaction]
		if resources == nil {
			resources = map[string]int{}
			gs.FactionResources[newFaction] = resources
		}
		newTotals := map[string]int{}
		for _, resource := range sortedKeys(income) {
			resources[resource] += income[resource]
			newTotals[resource] = resources[resource]
		}
		events = append(events, incomeCollected(newFaction, income, newTotals))
	}
	gs.FactionPendingIncome[newFaction] = map[string]int{}

	gs.TerritoriesAtTurnStart[newFaction] = ownedTerritories(gs, newFaction)
	gs.PendingCamps = []PendingCamp{}
	gs.MobilizationCamps = campTerritoriesOwnedBy(gs, newFaction, defs)

	events = append(events, turnStarted(gs.TurnNumber, gs.CurrentFaction))
	return events, nil
}

// checkVictory counts the strongholds each alliance controls against
// the per-alliance thresholds. Alliances are checked in sorted order,
// so a simultaneous qualification resolves to the first alphabetically.
func checkVictory(gs *GameState, defs *Defs) (winner string, counts map[string]int, controlled []string) {
	counts = map[string]int{}
	byAlliance := map[string][]string{}
	for _, tid := range sortedKeys(gs.Territories) {
		td, ok := defs.Territories[tid]
		if !ok || !td.IsStronghold {
			continue
		}
		owner := gs.Territories[tid].Owner
		if owner == "" {
			continue
		}
		alliance := defs.Alliance(owner)
		if alliance == "" {
			continue
		}
		counts[alliance]++
		byAlliance[alliance] = append(byAlliance[alliance], tid)
	}
	for _, alliance := range defs.SortedAlliances() {
		threshold := gs.VictoryCriteria.Strongholds[alliance]
		if threshold > 0 && counts[alliance] >= threshold {
			return alliance, counts, byAlliance[alliance]
		}
	}
	return "", counts, nil
}
