package engine

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Serialization of GameState. Marshaling uses the struct tags directly;
// unmarshaling is defensive so prior saves keep loading: any non-object
// where an object is expected collapses to empty, integer-like fields
// tolerate string encodings, and the legacy keys mobilization_strongholds
// and victory_strongholds are read (never written).

// flexInt is an int that also accepts string-encoded numbers.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

func isJSONObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func objectField(m map[string]json.RawMessage, key string) map[string]json.RawMessage {
	raw, ok := m[key]
	if !ok || !isJSONObject(raw) {
		return map[string]json.RawMessage{}
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]json.RawMessage{}
	}
	return out
}

func stringField(m map[string]json.RawMessage, key string) string {
	raw, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func intField(m map[string]json.RawMessage, key string) int {
	raw, ok := m[key]
	if !ok {
		return 0
	}
	var f flexInt
	_ = f.UnmarshalJSON(raw)
	return int(f)
}

func boolField(m map[string]json.RawMessage, key string) bool {
	raw, ok := m[key]
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false
	}
	return b
}

func stringListField(m map[string]json.RawMessage, key string) []string {
	raw, ok := m[key]
	if !ok {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return []string{}
	}
	return out
}

// countsFrom decodes a resource->int mapping, tolerating string ints.
func countsFrom(raw json.RawMessage) map[string]int {
	out := map[string]int{}
	if !isJSONObject(raw) {
		return out
	}
	var flex map[string]flexInt
	if err := json.Unmarshal(raw, &flex); err != nil {
		return out
	}
	for k, v := range flex {
		out[k] = int(v)
	}
	return out
}

func countsField(m map[string]json.RawMessage, key string) map[string]int {
	raw, ok := m[key]
	if !ok {
		return map[string]int{}
	}
	return countsFrom(raw)
}

func nestedCountsField(m map[string]json.RawMessage, key string) map[string]map[string]int {
	out := map[string]map[string]int{}
	for k, raw := range objectField(m, key) {
		out[k] = countsFrom(raw)
	}
	return out
}

func stringMapField(m map[string]json.RawMessage, key string) map[string]string {
	out := map[string]string{}
	for k, raw := range objectField(m, key) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out[k] = s
		}
	}
	return out
}

// UnmarshalJSON loads a serialized game state, filling defaults for
// absent fields and mapping legacy key aliases.
func (gs *GameState) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	gs.TurnNumber = intField(raw, "turn_number")
	gs.CurrentFaction = stringField(raw, "current_faction")
	gs.Phase = Phase(stringField(raw, "phase"))

	gs.Territories = map[string]*TerritoryState{}
	for tid, tRaw := range objectField(raw, "territories") {
		ts := &TerritoryState{}
		if err := json.Unmarshal(tRaw, ts); err == nil {
			gs.Territories[tid] = ts
		} else {
			gs.Territories[tid] = &TerritoryState{Units: []Unit{}}
		}
	}

	gs.FactionResources = nestedCountsField(raw, "faction_resources")
	gs.FactionPendingIncome = nestedCountsField(raw, "faction_pending_income")

	gs.FactionPurchasedUnits = map[string][]UnitStack{}
	for fid, sRaw := range objectField(raw, "faction_purchased_units") {
		var stacks []UnitStack
		if err := json.Unmarshal(sRaw, &stacks); err == nil && stacks != nil {
			gs.FactionPurchasedUnits[fid] = stacks
		} else {
			gs.FactionPurchasedUnits[fid] = []UnitStack{}
		}
	}

	counters := map[string]int{}
	for fid, cRaw := range objectField(raw, "unit_id_counters") {
		var f flexInt
		_ = f.UnmarshalJSON(cRaw)
		counters[fid] = int(f)
	}
	gs.UnitIDCounters = counters

	gs.ActiveCombat = nil
	if acRaw, ok := raw["active_combat"]; ok && isJSONObject(acRaw) {
		var ac ActiveCombat
		if err := json.Unmarshal(acRaw, &ac); err == nil {
			gs.ActiveCombat = &ac
		}
	}

	gs.PendingCaptures = stringMapField(raw, "pending_captures")

	// Legacy saves keyed this list as mobilization_strongholds.
	if _, ok := raw["mobilization_camps"]; ok {
		gs.MobilizationCamps = stringListField(raw, "mobilization_camps")
	} else {
		gs.MobilizationCamps = stringListField(raw, "mobilization_strongholds")
	}

	gs.PendingMoves = []PendingMove{}
	if pmRaw, ok := raw["pending_moves"]; ok {
		var moves []PendingMove
		if err := json.Unmarshal(pmRaw, &moves); err == nil && moves != nil {
			gs.PendingMoves = moves
		}
	}

	gs.PendingMobilizations = []PendingMobilization{}
	if pmRaw, ok := raw["pending_mobilizations"]; ok {
		var mobs []PendingMobilization
		if err := json.Unmarshal(pmRaw, &mobs); err == nil && mobs != nil {
			gs.PendingMobilizations = mobs
		}
	}

	gs.TerritoriesAtTurnStart = map[string][]string{}
	for fid, tRaw := range objectField(raw, "faction_territories_at_turn_start") {
		var list []string
		if err := json.Unmarshal(tRaw, &list); err == nil && list != nil {
			gs.TerritoriesAtTurnStart[fid] = list
		} else {
			gs.TerritoriesAtTurnStart[fid] = []string{}
		}
	}

	gs.PendingCamps = []PendingCamp{}
	if pcRaw, ok := raw["pending_camps"]; ok {
		var camps []PendingCamp
		if err := json.Unmarshal(pcRaw, &camps); err == nil && camps != nil {
			gs.PendingCamps = camps
		}
	}

	gs.DynamicCamps = stringMapField(raw, "dynamic_camps")
	gs.CampsStanding = stringListField(raw, "camps_standing")
	gs.CampCost = intField(raw, "camp_cost")

	gs.VictoryCriteria = VictoryCriteria{Strongholds: map[string]int{}}
	if vcRaw, ok := raw["victory_criteria"]; ok && isJSONObject(vcRaw) {
		var vc map[string]json.RawMessage
		if err := json.Unmarshal(vcRaw, &vc); err == nil {
			gs.VictoryCriteria.Strongholds = countsField(vc, "strongholds")
		}
	}
	// Legacy saves carried a flat victory_strongholds mapping.
	if len(gs.VictoryCriteria.Strongholds) == 0 {
		if vsRaw, ok := raw["victory_strongholds"]; ok {
			gs.VictoryCriteria.Strongholds = countsFrom(vsRaw)
		}
	}

	gs.MapAsset = stringField(raw, "map_asset")
	gs.Winner = stringField(raw, "winner")

	return nil
}

// UnmarshalJSON fills unit defaults and tolerates string-encoded ints.
func (u *Unit) UnmarshalJSON(data []byte) error {
	var aux struct {
		InstanceID        string  `json:"instance_id"`
		UnitID            string  `json:"unit_id"`
		RemainingMovement flexInt `json:"remaining_movement"`
		RemainingHealth   flexInt `json:"remaining_health"`
		BaseMovement      flexInt `json:"base_movement"`
		BaseHealth        flexInt `json:"base_health"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	u.InstanceID = aux.InstanceID
	u.UnitID = aux.UnitID
	u.RemainingMovement = int(aux.RemainingMovement)
	u.RemainingHealth = int(aux.RemainingHealth)
	u.BaseMovement = int(aux.BaseMovement)
	u.BaseHealth = int(aux.BaseHealth)
	return nil
}

// UnmarshalJSON treats a null owner as unowned and defaults the unit
// list to empty.
func (ts *TerritoryState) UnmarshalJSON(data []byte) error {
	var aux struct {
		Owner         *string `json:"owner"`
		OriginalOwner *string `json:"original_owner"`
		Units         []Unit  `json:"units"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ts.Owner = ""
	if aux.Owner != nil {
		ts.Owner = *aux.Owner
	}
	ts.OriginalOwner = ""
	if aux.OriginalOwner != nil {
		ts.OriginalOwner = *aux.OriginalOwner
	}
	ts.Units = aux.Units
	if ts.Units == nil {
		ts.Units = []Unit{}
	}
	return nil
}

// Encode serializes the state to JSON.
func (gs *GameState) Encode() ([]byte, error) {
	return json.Marshal(gs)
}

// Decode loads a state from JSON.
func Decode(data []byte) (*GameState, error) {
	var gs GameState
	if err := json.Unmarshal(data, &gs); err != nil {
		return nil, err
	}
	return &gs, nil
}
