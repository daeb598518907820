package engine

import (
	"fmt"
	"strings"
)

// Unit is an individual unit instance placed in a territory. The
// instance id has the form <faction>_<unit_type>_<counter> and its
// faction prefix is the authoritative ownership marker.
type Unit struct {
	InstanceID        string `json:"instance_id"`
	UnitID            string `json:"unit_id"`
	RemainingMovement int    `json:"remaining_movement"`
	RemainingHealth   int    `json:"remaining_health"`
	BaseMovement      int    `json:"base_movement"`
	BaseHealth        int    `json:"base_health"`
}

// Owner returns the faction that owns this unit, derived from the
// instance id prefix.
func (u *Unit) Owner() string {
	return OwnerOfInstance(u.InstanceID)
}

// OwnerOfInstance extracts the owning faction from a unit instance id.
func OwnerOfInstance(instanceID string) string {
	if i := strings.IndexByte(instanceID, '_'); i > 0 {
		return instanceID[:i]
	}
	return instanceID
}

// unitTypeOfInstance extracts the unit type segment from an instance id,
// for event payloads only.
func unitTypeOfInstance(instanceID string) string {
	parts := strings.Split(instanceID, "_")
	if len(parts) > 1 {
		return parts[1]
	}
	return "unknown"
}

// UnitStack is a count of identical units, used for the purchase pool
// and mobilization requests.
type UnitStack struct {
	UnitID string `json:"unit_id"`
	Count  int    `json:"count"`
}

// PendingMove is a declared movement, held until its phase ends.
// ChargeThrough lists the empty enemy territories a cavalry move passes
// over, in order; each is conquered when the move is applied.
type PendingMove struct {
	FromTerritory   string   `json:"from_territory"`
	ToTerritory     string   `json:"to_territory"`
	UnitInstanceIDs []string `json:"unit_instance_ids"`
	Phase           Phase    `json:"phase"`
	ChargeThrough   []string `json:"charge_through,omitempty"`
}

// PendingMobilization is a queued deployment, applied at the end of the
// mobilization phase.
type PendingMobilization struct {
	Destination string      `json:"destination"`
	Units       []UnitStack `json:"units"`
}

// PendingCamp is a purchased camp awaiting placement. TerritoryOptions
// is snapshotted at purchase time; PlacedTerritoryID stays empty until
// place_camp succeeds.
type PendingCamp struct {
	TerritoryOptions  []string `json:"territory_options"`
	PlacedTerritoryID string   `json:"placed_territory_id,omitempty"`
}

// TerritoryState is the mutable state of a single territory. Owner ""
// means unowned. OriginalOwner is set at game start and never changes;
// it drives the liberation mechanic.
type TerritoryState struct {
	Owner         string `json:"owner"`
	OriginalOwner string `json:"original_owner,omitempty"`
	Units         []Unit `json:"units"`
}

// CombatRound records one resolved round for the combat log.
type CombatRound struct {
	RoundNumber        int      `json:"round_number"`
	AttackerRolls      []int    `json:"attacker_rolls"`
	DefenderRolls      []int    `json:"defender_rolls"`
	AttackerHits       int      `json:"attacker_hits"`
	DefenderHits       int      `json:"defender_hits"`
	AttackerCasualties []string `json:"attacker_casualties"`
	DefenderCasualties []string `json:"defender_casualties"`
	AttackersRemaining int      `json:"attackers_remaining"`
	DefendersRemaining int      `json:"defenders_remaining"`
}

// ActiveCombat tracks an ongoing multi-round combat. Attackers and
// defenders co-occupy the contested territory. AttackersHaveRolled is
// false between an archer pre-fire and the first attacker-participating
// round; retreat is blocked while it is false.
type ActiveCombat struct {
	AttackerFaction     string        `json:"attacker_faction"`
	TerritoryID         string        `json:"territory_id"`
	AttackerInstanceIDs []string      `json:"attacker_instance_ids"`
	RoundNumber         int           `json:"round_number"`
	CombatLog           []CombatRound `json:"combat_log"`
	AttackersHaveRolled bool          `json:"attackers_have_rolled"`
}

// VictoryCriteria holds the per-alliance stronghold thresholds.
type VictoryCriteria struct {
	Strongholds map[string]int `json:"strongholds"`
}

// GameState is the complete game state. The reducer never mutates its
// input; Apply clones the state and returns the clone.
type GameState struct {
	TurnNumber      int                       `json:"turn_number"`
	CurrentFaction  string                    `json:"current_faction"`
	Phase           Phase                     `json:"phase"`
	Territories     map[string]*TerritoryState `json:"territories"`
	FactionResources map[string]map[string]int `json:"faction_resources"`
	FactionPurchasedUnits map[string][]UnitStack `json:"faction_purchased_units"`
	UnitIDCounters  map[string]int            `json:"unit_id_counters"`
	ActiveCombat    *ActiveCombat             `json:"active_combat"`
	FactionPendingIncome map[string]map[string]int `json:"faction_pending_income"`
	PendingCaptures map[string]string         `json:"pending_captures"`
	MobilizationCamps []string                `json:"mobilization_camps"`
	PendingMoves    []PendingMove             `json:"pending_moves"`
	PendingMobilizations []PendingMobilization `json:"pending_mobilizations"`
	TerritoriesAtTurnStart map[string][]string `json:"faction_territories_at_turn_start"`
	PendingCamps    []PendingCamp             `json:"pending_camps"`
	DynamicCamps    map[string]string         `json:"dynamic_camps"`
	CampsStanding   []string                  `json:"camps_standing"`
	CampCost        int                       `json:"camp_cost"`
	VictoryCriteria VictoryCriteria           `json:"victory_criteria"`
	MapAsset        string                    `json:"map_asset,omitempty"`
	Winner          string                    `json:"winner,omitempty"`
}

// Clone returns a deep copy of the game state.
func (gs *GameState) Clone() *GameState {
	c := &GameState{
		TurnNumber:     gs.TurnNumber,
		CurrentFaction: gs.CurrentFaction,
		Phase:          gs.Phase,
		CampCost:       gs.CampCost,
		MapAsset:       gs.MapAsset,
		Winner:         gs.Winner,
	}
	c.Territories = make(map[string]*TerritoryState, len(gs.Territories))
	for id, ts := range gs.Territories {
		nts := &TerritoryState{Owner: ts.Owner, OriginalOwner: ts.OriginalOwner}
		if ts.Units != nil {
			nts.Units = make([]Unit, len(ts.Units))
			copy(nts.Units, ts.Units)
		}
		c.Territories[id] = nts
	}
	c.FactionResources = cloneNestedCounts(gs.FactionResources)
	c.FactionPendingIncome = cloneNestedCounts(gs.FactionPendingIncome)
	c.FactionPurchasedUnits = make(map[string][]UnitStack, len(gs.FactionPurchasedUnits))
	for f, stacks := range gs.FactionPurchasedUnits {
		ns := make([]UnitStack, len(stacks))
		copy(ns, stacks)
		c.FactionPurchasedUnits[f] = ns
	}
	c.UnitIDCounters = make(map[string]int, len(gs.UnitIDCounters))
	for f, n := range gs.UnitIDCounters {
		c.UnitIDCounters[f] = n
	}
	if gs.ActiveCombat != nil {
		ac := *gs.ActiveCombat
		ac.AttackerInstanceIDs = append([]string(nil), gs.ActiveCombat.AttackerInstanceIDs...)
		ac.CombatLog = make([]CombatRound, len(gs.ActiveCombat.CombatLog))
		for i, r := range gs.ActiveCombat.CombatLog {
			r.AttackerRolls = append([]int(nil), r.AttackerRolls...)
			r.DefenderRolls = append([]int(nil), r.DefenderRolls...)
			r.AttackerCasualties = append([]string(nil), r.AttackerCasualties...)
			r.DefenderCasualties = append([]string(nil), r.DefenderCasualties...)
			ac.CombatLog[i] = r
		}
		c.ActiveCombat = &ac
	}
	c.PendingCaptures = make(map[string]string, len(gs.PendingCaptures))
	for t, f := range gs.PendingCaptures {
		c.PendingCaptures[t] = f
	}
	c.MobilizationCamps = append([]string(nil), gs.MobilizationCamps...)
	c.PendingMoves = make([]PendingMove, len(gs.PendingMoves))
	for i, pm := range gs.PendingMoves {
		pm.UnitInstanceIDs = append([]string(nil), pm.UnitInstanceIDs...)
		pm.ChargeThrough = append([]string(nil), pm.ChargeThrough...)
		c.PendingMoves[i] = pm
	}
	c.PendingMobilizations = make([]PendingMobilization, len(gs.PendingMobilizations))
	for i, pm := range gs.PendingMobilizations {
		pm.Units = append([]UnitStack(nil), pm.Units...)
		c.PendingMobilizations[i] = pm
	}
	c.TerritoriesAtTurnStart = make(map[string][]string, len(gs.TerritoriesAtTurnStart))
	for f, ts := range gs.TerritoriesAtTurnStart {
		c.TerritoriesAtTurnStart[f] = append([]string(nil), ts...)
	}
	c.PendingCamps = make([]PendingCamp, len(gs.PendingCamps))
	for i, pc := range gs.PendingCamps {
		pc.TerritoryOptions = append([]string(nil), pc.TerritoryOptions...)
		c.PendingCamps[i] = pc
	}
	c.DynamicCamps = make(map[string]string, len(gs.DynamicCamps))
	for id, t := range gs.DynamicCamps {
		c.DynamicCamps[id] = t
	}
	c.CampsStanding = append([]string(nil), gs.CampsStanding...)
	c.VictoryCriteria = VictoryCriteria{Strongholds: map[string]int{}}
	for a, n := range gs.VictoryCriteria.Strongholds {
		c.VictoryCriteria.Strongholds[a] = n
	}
	return c
}

func cloneNestedCounts(m map[string]map[string]int) map[string]map[string]int {
	out := make(map[string]map[string]int, len(m))
	for k, inner := range m {
		ni := make(map[string]int, len(inner))
		for r, n := range inner {
			ni[r] = n
		}
		out[k] = ni
	}
	return out
}

// GenerateInstanceID produces the next unique instance id for a unit of
// the given type and faction, advancing the faction's counter.
func (gs *GameState) GenerateInstanceID(factionID, unitID string) string {
	if gs.UnitIDCounters == nil {
		gs.UnitIDCounters = map[string]int{}
	}
	gs.UnitIDCounters[factionID]++
	return fmt.Sprintf("%s_%s_%03d", factionID, unitID, gs.UnitIDCounters[factionID])
}

// FindUnit locates a unit instance across all territories. Returns the
// unit and its territory id, or nil and "".
func (gs *GameState) FindUnit(instanceID string) (*Unit, string) {
	for tid, ts := range gs.Territories {
		for i := range ts.Units {
			if ts.Units[i].InstanceID == instanceID {
				return &ts.Units[i], tid
			}
		}
	}
	return nil, ""
}

// CampTerritory resolves the territory a standing camp sits on, looking
// at definition camps first and dynamic (purchased) camps second.
func (gs *GameState) CampTerritory(campID string, defs *Defs) string {
	if cd, ok := defs.Camps[campID]; ok {
		return cd.TerritoryID
	}
	if t, ok := gs.DynamicCamps[campID]; ok {
		return t
	}
	return ""
}

// HasStandingCamp reports whether any standing camp sits on the given
// territory.
func (gs *GameState) HasStandingCamp(territoryID string, defs *Defs) bool {
	for _, campID := range gs.CampsStanding {
		if gs.CampTerritory(campID, defs) == territoryID {
			return true
		}
	}
	return false
}

// destroyCampsAt removes every standing camp on the territory, both
// definition and dynamic. Called when a territory changes owner.
func (gs *GameState) destroyCampsAt(territoryID string, defs *Defs) {
	kept := gs.CampsStanding[:0]
	for _, campID := range gs.CampsStanding {
		if gs.CampTerritory(campID, defs) == territoryID {
			delete(gs.DynamicCamps, campID)
			continue
		}
		kept = append(kept, campID)
	}
	gs.CampsStanding = kept
}

// ownsCapital reports whether the faction still owns its capital.
func (gs *GameState) ownsCapital(factionID string, defs *Defs) bool {
	fd, ok := defs.Factions[factionID]
	if !ok {
		return false
	}
	ts, ok := gs.Territories[fd.Capital]
	return ok && ts.Owner == factionID
}
