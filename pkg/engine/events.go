package engine

// Event describes something that happened while an action was applied.
// Clients use events to drive UI updates and logs; they carry no
// authority over state.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Event type constants.
const (
	EventPhaseChanged = "phase_changed"
	EventTurnStarted  = "turn_started"
	EventTurnEnded    = "turn_ended"

	EventResourcesChanged = "resources_changed"
	EventUnitsPurchased   = "units_purchased"
	EventIncomeCalculated = "income_calculated"
	EventIncomeCollected  = "income_collected"

	EventUnitsMoved            = "units_moved"
	EventMoveCancelled         = "move_cancelled"
	EventMobilizationCancelled = "mobilization_cancelled"

	EventCombatStarted       = "combat_started"
	EventCombatRoundResolved = "combat_round_resolved"
	EventCombatEnded         = "combat_ended"
	EventUnitsRetreated      = "units_retreated"

	EventTerritoryCaptured = "territory_captured"
	EventUnitDestroyed     = "unit_destroyed"
	EventUnitsMobilized    = "units_mobilized"

	EventVictory = "victory"
)

func phaseChanged(oldPhase, newPhase Phase, faction string) Event {
	return Event{EventPhaseChanged, map[string]any{
		"old_phase": string(oldPhase),
		"new_phase": string(newPhase),
		"faction":   faction,
	}}
}

func turnStarted(turnNumber int, faction string) Event {
	return Event{EventTurnStarted, map[string]any{
		"turn_number": turnNumber,
		"faction":     faction,
	}}
}

func turnEnded(turnNumber int, faction string) Event {
	return Event{EventTurnEnded, map[string]any{
		"turn_number": turnNumber,
		"faction":     faction,
	}}
}

func resourcesChanged(faction, resource string, oldValue, newValue int, reason string) Event {
	return Event{EventResourcesChanged, map[string]any{
		"faction":   faction,
		"resource":  resource,
		"old_value": oldValue,
		"new_value": newValue,
		"change":    newValue - oldValue,
		"reason":    reason,
	}}
}

func unitsPurchased(faction string, purchases, totalCost map[string]int) Event {
	return Event{EventUnitsPurchased, map[string]any{
		"faction":    faction,
		"purchases":  purchases,
		"total_cost": totalCost,
	}}
}

func incomeCalculated(faction string, income map[string]int, territories []string) Event {
	return Event{EventIncomeCalculated, map[string]any{
		"faction":     faction,
		"income":      income,
		"territories": territories,
	}}
}

func incomeCollected(faction string, income, newTotals map[string]int) Event {
	return Event{EventIncomeCollected, map[string]any{
		"faction":    faction,
		"income":     income,
		"new_totals": newTotals,
	}}
}

func unitsMoved(faction, from, to string, unitIDs []string, phase Phase) Event {
	return Event{EventUnitsMoved, map[string]any{
		"faction":        faction,
		"from_territory": from,
		"to_territory":   to,
		"unit_ids":       unitIDs,
		"phase":          string(phase),
	}}
}

func moveCancelled(pm PendingMove) Event {
	return Event{EventMoveCancelled, map[string]any{
		"from_territory":    pm.FromTerritory,
		"to_territory":      pm.ToTerritory,
		"unit_instance_ids": pm.UnitInstanceIDs,
	}}
}

func mobilizationCancelled(pm PendingMobilization) Event {
	return Event{EventMobilizationCancelled, map[string]any{
		"destination": pm.Destination,
		"units":       pm.Units,
	}}
}

func combatStarted(territory, attackerFaction string, attackerUnits []string, defenderFaction string, defenderUnits []string) Event {
	return Event{EventCombatStarted, map[string]any{
		"territory":        territory,
		"attacker_faction": attackerFaction,
		"attacker_units":   attackerUnits,
		"defender_faction": defenderFaction,
		"defender_units":   defenderUnits,
	}}
}

type combatRoundInfo struct {
	territory              string
	roundNumber            int
	attackerDice           map[int]DiceGroup
	defenderDice           map[int]DiceGroup
	attackerHitsByUnitType map[string]int
	defenderHitsByUnitType map[string]int
	isArcherPrefire        bool
	result                 RoundResult
}

func combatRoundResolved(info combatRoundInfo) Event {
	payload := map[string]any{
		"territory":           info.territory,
		"round_number":        info.roundNumber,
		"attacker_dice":       info.attackerDice,
		"defender_dice":       info.defenderDice,
		"attacker_hits":       info.result.AttackerHits,
		"defender_hits":       info.result.DefenderHits,
		"attacker_casualties": info.result.AttackerCasualties,
		"defender_casualties": info.result.DefenderCasualties,
		"attacker_wounded":    info.result.AttackerWounded,
		"defender_wounded":    info.result.DefenderWounded,
		"attackers_remaining": len(info.result.SurvivingAttackerIDs),
		"defenders_remaining": len(info.result.SurvivingDefenderIDs),
	}
	if info.attackerHitsByUnitType != nil {
		payload["attacker_hits_by_unit_type"] = info.attackerHitsByUnitType
	}
	if info.defenderHitsByUnitType != nil {
		payload["defender_hits_by_unit_type"] = info.defenderHitsByUnitType
	}
	if info.isArcherPrefire {
		payload["is_archer_prefire"] = true
	}
	return Event{EventCombatRoundResolved, payload}
}

func combatEnded(territory, winner, attackerFaction, defenderFaction string, survivingAttackers, survivingDefenders []string, totalRounds int) Event {
	return Event{EventCombatEnded, map[string]any{
		"territory":              territory,
		"winner":                 winner,
		"attacker_faction":       attackerFaction,
		"defender_faction":       defenderFaction,
		"surviving_attacker_ids": survivingAttackers,
		"surviving_defender_ids": survivingDefenders,
		"total_rounds":           totalRounds,
	}}
}

func unitsRetreated(faction, from, to string, unitIDs []string) Event {
	return Event{EventUnitsRetreated, map[string]any{
		"faction":        faction,
		"from_territory": from,
		"to_territory":   to,
		"unit_ids":       unitIDs,
	}}
}

func territoryCaptured(territory, oldOwner, newOwner string, capturingUnits []string) Event {
	return Event{EventTerritoryCaptured, map[string]any{
		"territory":       territory,
		"old_owner":       oldOwner,
		"new_owner":       newOwner,
		"capturing_units": capturingUnits,
	}}
}

func unitDestroyed(unitID, unitType, owner, territory, cause string) Event {
	return Event{EventUnitDestroyed, map[string]any{
		"unit_id":   unitID,
		"unit_type": unitType,
		"owner":     owner,
		"territory": territory,
		"cause":     cause,
	}}
}

func unitsMobilized(faction, territory string, units []map[string]string) Event {
	return Event{EventUnitsMobilized, map[string]any{
		"faction":   faction,
		"territory": territory,
		"units":     units,
	}}
}

func victoryEvent(winner string, strongholdCounts map[string]int, strongholdsRequired int, controlled []string) Event {
	return Event{EventVictory, map[string]any{
		"winner":                winner,
		"stronghold_counts":     strongholdCounts,
		"strongholds_required":  strongholdsRequired,
		"controlled_strongholds": controlled,
	}}
}
