package engine

import "sort"

// Read-only derivations over a game state for clients. None of these
// mutate anything; territory iteration is sorted so responses are
// stable across calls.

// AvailableActionTypes lists the action types the current phase and
// combat state accept. An ended game accepts nothing.
func AvailableActionTypes(gs *GameState) []string {
	if gs.Winner != "" {
		return []string{}
	}
	allowed := phaseAllowedActions[gs.Phase]
	if gs.Phase != PhaseCombat {
		return append([]string(nil), allowed...)
	}
	var out []string
	for _, t := range allowed {
		inCombat := t == ActionContinueCombat || t == ActionRetreat
		if (gs.ActiveCombat != nil) == inCombat {
			out = append(out, t)
		}
	}
	return out
}

// MovableUnit is one unit that can still move this turn.
type MovableUnit struct {
	InstanceID        string `json:"instance_id"`
	UnitID            string `json:"unit_id"`
	TerritoryID       string `json:"territory_id"`
	RemainingMovement int    `json:"remaining_movement"`
}

// MovableUnits returns every unit of the faction with movement left.
func MovableUnits(gs *GameState, factionID string) []MovableUnit {
	result := []MovableUnit{}
	for _, tid := range sortedKeys(gs.Territories) {
		for _, u := range gs.Territories[tid].Units {
			if u.Owner() != factionID || u.RemainingMovement <= 0 {
				continue
			}
			result = append(result, MovableUnit{
				InstanceID:        u.InstanceID,
				UnitID:            u.UnitID,
				TerritoryID:       tid,
				RemainingMovement: u.RemainingMovement,
			})
		}
	}
	return result
}

// UnitMoveTargets returns the territories a unit can reach in the
// current phase, mapped to movement cost.
func UnitMoveTargets(gs *GameState, instanceID string, defs *Defs) map[string]int {
	unit, tid := gs.FindUnit(instanceID)
	if unit == nil {
		return map[string]int{}
	}
	return Reachable(gs, unit, tid, defs, gs.Phase)
}

// PurchasableUnit is one unit type the faction could buy, with how
// many its current resources cover.
type PurchasableUnit struct {
	UnitID        string         `json:"unit_id"`
	DisplayName   string         `json:"display_name"`
	Cost          map[string]int `json:"cost"`
	MaxAffordable int            `json:"max_affordable"`
	Attack        int            `json:"attack"`
	Defense       int            `json:"defense"`
	Movement      int            `json:"movement"`
	Health        int            `json:"health"`
	Dice          int            `json:"dice"`
}

// PurchasableUnits lists the faction's purchasable unit types.
func PurchasableUnits(gs *GameState, factionID string, defs *Defs) []PurchasableUnit {
	resources := gs.FactionResources[factionID]
	result := []PurchasableUnit{}
	for _, unitID := range sortedKeys(defs.Units) {
		ud := defs.Units[unitID]
		if ud.Faction != factionID || !ud.Purchasable {
			continue
		}
		maxAffordable := -1
		for resource, cost := range ud.Cost {
			if cost <= 0 {
				continue
			}
			affordable := resources[resource] / cost
			if maxAffordable < 0 || affordable < maxAffordable {
				maxAffordable = affordable
			}
		}
		if maxAffordable < 0 {
			maxAffordable = 0
		}
		result = append(result, PurchasableUnit{
			UnitID:        unitID,
			DisplayName:   ud.DisplayName,
			Cost:          ud.Cost,
			MaxAffordable: maxAffordable,
			Attack:        ud.Attack,
			Defense:       ud.Defense,
			Movement:      ud.Movement,
			Health:        ud.Health,
			Dice:          ud.Dice,
		})
	}
	return result
}

// CampCapacity is the deployable power of one mobilization camp.
type CampCapacity struct {
	TerritoryID string `json:"territory_id"`
	Power       int    `json:"power"`
}

// MobilizationCapacity describes where and how much the current
// faction can mobilize this turn.
type MobilizationCapacity struct {
	TotalCapacity int            `json:"total_capacity"`
	Territories   []CampCapacity `json:"territories"`
}

// MobilizationCapacityFor sums the power production of this turn's
// mobilization camps.
func MobilizationCapacityFor(gs *GameState, defs *Defs) MobilizationCapacity {
	out := MobilizationCapacity{Territories: []CampCapacity{}}
	for _, tid := range gs.MobilizationCamps {
		power := defs.Territories[tid].Produces["power"]
		out.Territories = append(out.Territories, CampCapacity{TerritoryID: tid, Power: power})
		out.TotalCapacity += power
	}
	return out
}

// ContestedTerritory is a territory holding both the faction's units
// and enemy units, where combat can be initiated.
type ContestedTerritory struct {
	TerritoryID     string   `json:"territory_id"`
	AttackerCount   int      `json:"attacker_count"`
	DefenderCount   int      `json:"defender_count"`
	AttackerUnitIDs []string `json:"attacker_unit_ids"`
	DefenderUnitIDs []string `json:"defender_unit_ids"`
}

// ContestedTerritories returns the territories where the faction
// shares ground with another alliance.
func ContestedTerritories(gs *GameState, factionID string, defs *Defs) []ContestedTerritory {
	result := []ContestedTerritory{}
	for _, tid := range sortedKeys(gs.Territories) {
		var attackers, defenders []string
		for _, u := range gs.Territories[tid].Units {
			owner := u.Owner()
			if owner == factionID {
				attackers = append(attackers, u.InstanceID)
			} else if !defs.SameAlliance(factionID, owner) {
				defenders = append(defenders, u.InstanceID)
			}
		}
		if len(attackers) > 0 && len(defenders) > 0 {
			result = append(result, ContestedTerritory{
				TerritoryID:     tid,
				AttackerCount:   len(attackers),
				DefenderCount:   len(defenders),
				AttackerUnitIDs: attackers,
				DefenderUnitIDs: defenders,
			})
		}
	}
	return result
}

// RetreatOptions lists the territories the active combat's attackers
// may retreat to: adjacent, and either allied or unowned with no enemy
// units.
func RetreatOptions(gs *GameState, defs *Defs) []string {
	result := []string{}
	if gs.ActiveCombat == nil {
		return result
	}
	attacker := gs.ActiveCombat.AttackerFaction
	for _, adjID := range defs.Territories[gs.ActiveCombat.TerritoryID].Adjacent {
		ts, ok := gs.Territories[adjID]
		if !ok {
			continue
		}
		if retreatDestinationOK(gs, ts, attacker, defs) {
			result = append(result, adjID)
		}
	}
	return result
}

// FactionStats are the per-faction numbers shown on the scoreboard.
type FactionStats struct {
	Territories  int `json:"territories"`
	Strongholds  int `json:"strongholds"`
	Power        int `json:"power"`
	PowerPerTurn int `json:"power_per_turn"`
	Units        int `json:"units"`
}

// GameStats bundles per-faction and aggregated per-alliance stats.
type GameStats struct {
	Factions  map[string]FactionStats `json:"factions"`
	Alliances map[string]FactionStats `json:"alliances"`
}

// Stats computes scoreboard stats for every faction and alliance.
// Power is the current resource balance; power per turn is production
// over owned territories.
func Stats(gs *GameState, defs *Defs) GameStats {
	out := GameStats{
		Factions:  map[string]FactionStats{},
		Alliances: map[string]FactionStats{},
	}
	for _, factionID := range defs.SortedFactionIDs() {
		var fs FactionStats
		for tid, ts := range gs.Territories {
			if ts.Owner != factionID {
				continue
			}
			fs.Territories++
			fs.Units += len(ts.Units)
			td := defs.Territories[tid]
			if td.IsStronghold {
				fs.Strongholds++
			}
			fs.PowerPerTurn += td.Produces["power"]
		}
		fs.Power = gs.FactionResources[factionID]["power"]
		out.Factions[factionID] = fs

		alliance := defs.Alliance(factionID)
		as := out.Alliances[alliance]
		as.Territories += fs.Territories
		as.Strongholds += fs.Strongholds
		as.Power += fs.Power
		as.PowerPerTurn += fs.PowerPerTurn
		as.Units += fs.Units
		out.Alliances[alliance] = as
	}
	return out
}

// GameSummary is the compact game header for listings and lobbies.
type GameSummary struct {
	TurnNumber       int            `json:"turn_number"`
	CurrentFaction   string         `json:"current_faction"`
	Phase            Phase          `json:"phase"`
	Winner           string         `json:"winner,omitempty"`
	ActiveCombat     string         `json:"active_combat,omitempty"`
	StrongholdCounts map[string]int `json:"stronghold_counts"`
	TerritoryCounts  map[string]int `json:"territory_counts"`
	UnitCounts       map[string]int `json:"unit_counts"`
	AvailableActions []string       `json:"available_actions"`
}

// Summary derives the game header from the state.
func Summary(gs *GameState, defs *Defs) GameSummary {
	out := GameSummary{
		TurnNumber:       gs.TurnNumber,
		CurrentFaction:   gs.CurrentFaction,
		Phase:            gs.Phase,
		Winner:           gs.Winner,
		StrongholdCounts: map[string]int{},
		TerritoryCounts:  map[string]int{},
		UnitCounts:       map[string]int{},
		AvailableActions: AvailableActionTypes(gs),
	}
	if gs.ActiveCombat != nil {
		out.ActiveCombat = gs.ActiveCombat.TerritoryID
	}
	for tid, ts := range gs.Territories {
		if ts.Owner != "" {
			out.TerritoryCounts[ts.Owner]++
			if defs.Territories[tid].IsStronghold {
				if alliance := defs.Alliance(ts.Owner); alliance != "" {
					out.StrongholdCounts[alliance]++
				}
			}
		}
		for _, u := range ts.Units {
			out.UnitCounts[u.Owner()]++
		}
	}
	return out
}

// PurchasedUnits returns the faction's unmobilized purchase pool.
func PurchasedUnits(gs *GameState, factionID string) []UnitStack {
	return append([]UnitStack{}, gs.FactionPurchasedUnits[factionID]...)
}

// TerritoryUnits returns copies of the units in a territory.
func TerritoryUnits(gs *GameState, territoryID string) []Unit {
	ts, ok := gs.Territories[territoryID]
	if !ok {
		return []Unit{}
	}
	return append([]Unit{}, ts.Units...)
}

// UnitStackView groups a territory's units of one type for the UI.
type UnitStackView struct {
	UnitID             string   `json:"unit_id"`
	DisplayName        string   `json:"display_name"`
	Count              int      `json:"count"`
	CanMoveCount       int      `json:"can_move_count"`
	InstanceIDs        []string `json:"instance_ids"`
	MovableInstanceIDs []string `json:"movable_instance_ids"`
}

// TerritoryUnitStacks groups the units in a territory by type,
// optionally filtered to one faction. Stacks appear in first-seen
// order of the underlying unit list.
func TerritoryUnitStacks(gs *GameState, territoryID, factionID string, defs *Defs) []UnitStackView {
	ts, ok := gs.Territories[territoryID]
	if !ok {
		return []UnitStackView{}
	}
	index := map[string]int{}
	stacks := []UnitStackView{}
	for _, u := range ts.Units {
		if factionID != "" && u.Owner() != factionID {
			continue
		}
		i, seen := index[u.UnitID]
		if !seen {
			displayName := u.UnitID
			if ud, ok := defs.Units[u.UnitID]; ok {
				displayName = ud.DisplayName
			}
			stacks = append(stacks, UnitStackView{
				UnitID:             u.UnitID,
				DisplayName:        displayName,
				InstanceIDs:        []string{},
				MovableInstanceIDs: []string{},
			})
			i = len(stacks) - 1
			index[u.UnitID] = i
		}
		stacks[i].Count++
		stacks[i].InstanceIDs = append(stacks[i].InstanceIDs, u.InstanceID)
		if u.RemainingMovement > 0 {
			stacks[i].CanMoveCount++
			stacks[i].MovableInstanceIDs = append(stacks[i].MovableInstanceIDs, u.InstanceID)
		}
	}
	return stacks
}

// StackMoveTarget is one destination reachable by units of a stack.
type StackMoveTarget struct {
	Cost        int      `json:"cost"`
	MaxUnits    int      `json:"max_units"`
	InstanceIDs []string `json:"instance_ids"`
}

// StackMoveTargets computes, for a unit type in a territory, the union
// of destinations any of them can reach. Per destination the reachable
// units are listed most mobile first, so a UI moving N units takes the
// first N.
func StackMoveTargets(gs *GameState, territoryID, unitID string, defs *Defs) map[string]StackMoveTarget {
	ts, ok := gs.Territories[territoryID]
	if !ok {
		return map[string]StackMoveTarget{}
	}
	var movable []Unit
	for _, u := range ts.Units {
		if u.UnitID == unitID && u.RemainingMovement > 0 {
			movable = append(movable, u)
		}
	}
	sort.SliceStable(movable, func(i, j int) bool {
		return movable[i].RemainingMovement > movable[j].RemainingMovement
	})

	targets := map[string]StackMoveTarget{}
	for i := range movable {
		reachable := Reachable(gs, &movable[i], territoryID, defs, gs.Phase)
		for destID, cost := range reachable {
			t, seen := targets[destID]
			if !seen {
				t = StackMoveTarget{Cost: cost}
			}
			t.MaxUnits++
			t.InstanceIDs = append(t.InstanceIDs, movable[i].InstanceID)
			targets[destID] = t
		}
	}
	return targets
}

// MovePreviewDestination is a stack destination annotated for display.
type MovePreviewDestination struct {
	Cost        int      `json:"cost"`
	MaxUnits    int      `json:"max_units"`
	IsEnemy     bool     `json:"is_enemy"`
	InstanceIDs []string `json:"instance_ids"`
}

// MovePreviewStack is one unit stack with its phase-filtered
// destinations.
type MovePreviewStack struct {
	UnitStackView
	Destinations map[string]MovePreviewDestination `json:"destinations"`
}

// MovePreview is the complete movement picture for one territory.
type MovePreview struct {
	TerritoryID string             `json:"territory_id"`
	Owner       string             `json:"owner"`
	Stacks      []MovePreviewStack `json:"stacks"`
}

// MovePreviewFor builds the hover preview for a territory: every stack
// the faction holds there and where each could go, filtered by the
// current phase the same way move validation would filter it.
func MovePreviewFor(gs *GameState, territoryID, factionID string, defs *Defs) MovePreview {
	out := MovePreview{TerritoryID: territoryID, Stacks: []MovePreviewStack{}}
	ts, ok := gs.Territories[territoryID]
	if !ok {
		return out
	}
	out.Owner = ts.Owner

	for _, stack := range TerritoryUnitStacks(gs, territoryID, factionID, defs) {
		raw := StackMoveTargets(gs, territoryID, stack.UnitID, defs)
		dests := map[string]MovePreviewDestination{}
		for destID, info := range raw {
			dest, ok := gs.Territories[destID]
			if !ok {
				continue
			}
			isEnemy := dest.Owner != "" && dest.Owner != factionID && !defs.SameAlliance(factionID, dest.Owner)
			switch gs.Phase {
			case PhaseCombatMove:
				if dest.Owner == factionID || (dest.Owner != "" && !isEnemy) {
					continue
				}
			case PhaseNonCombatMove:
				if isEnemy {
					continue
				}
			}
			dests[destID] = MovePreviewDestination{
				Cost:        info.Cost,
				MaxUnits:    info.MaxUnits,
				IsEnemy:     isEnemy,
				InstanceIDs: info.InstanceIDs,
			}
		}
		out.Stacks = append(out.Stacks, MovePreviewStack{UnitStackView: stack, Destinations: dests})
	}
	return out
}
