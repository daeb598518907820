package engine

// Action type constants.
const (
	ActionPurchaseUnits      = "purchase_units"
	ActionPurchaseCamp       = "purchase_camp"
	ActionMoveUnits          = "move_units"
	ActionCancelMove         = "cancel_move"
	ActionInitiateCombat     = "initiate_combat"
	ActionContinueCombat     = "continue_combat"
	ActionRetreat            = "retreat"
	ActionMobilizeUnits      = "mobilize_units"
	ActionPlaceCamp          = "place_camp"
	ActionCancelMobilization = "cancel_mobilization"
	ActionEndPhase           = "end_phase"
	ActionEndTurn            = "end_turn"
)

// Action is an immutable, deterministic instruction applied by the
// reducer. Dice rolls are part of the payload; the engine never rolls.
type Action struct {
	Type    string        `json:"type"`
	Faction string        `json:"faction"`
	Payload ActionPayload `json:"payload"`
}

// ActionPayload is the union of all action payload fields. Index fields
// are pointers so an absent index is distinguishable from index zero.
type ActionPayload struct {
	Purchases         map[string]int `json:"purchases,omitempty"`
	From              string         `json:"from,omitempty"`
	To                string         `json:"to,omitempty"`
	UnitInstanceIDs   []string       `json:"unit_instance_ids,omitempty"`
	ChargeThrough     []string       `json:"charge_through,omitempty"`
	MoveIndex         *int           `json:"move_index,omitempty"`
	TerritoryID       string         `json:"territory_id,omitempty"`
	DiceRolls         DiceRolls      `json:"dice_rolls,omitempty"`
	RetreatTo         string         `json:"retreat_to,omitempty"`
	Destination       string         `json:"destination,omitempty"`
	Units             []UnitStack    `json:"units,omitempty"`
	CampIndex         *int           `json:"camp_index,omitempty"`
	MobilizationIndex *int           `json:"mobilization_index,omitempty"`
}

func indexOf(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}

func PurchaseUnits(faction string, purchases map[string]int) Action {
	return Action{Type: ActionPurchaseUnits, Faction: faction, Payload: ActionPayload{Purchases: purchases}}
}

func PurchaseCamp(faction string) Action {
	return Action{Type: ActionPurchaseCamp, Faction: faction}
}

func MoveUnits(faction, from, to string, unitInstanceIDs, chargeThrough []string) Action {
	return Action{Type: ActionMoveUnits, Faction: faction, Payload: ActionPayload{
		From:            from,
		To:              to,
		UnitInstanceIDs: unitInstanceIDs,
		ChargeThrough:   chargeThrough,
	}}
}

func CancelMove(faction string, moveIndex int) Action {
	return Action{Type: ActionCancelMove, Faction: faction, Payload: ActionPayload{MoveIndex: &moveIndex}}
}

func InitiateCombat(faction, territoryID string, rolls DiceRolls) Action {
	return Action{Type: ActionInitiateCombat, Faction: faction, Payload: ActionPayload{
		TerritoryID: territoryID,
		DiceRolls:   rolls,
	}}
}

func ContinueCombat(faction string, rolls DiceRolls) Action {
	return Action{Type: ActionContinueCombat, Faction: faction, Payload: ActionPayload{DiceRolls: rolls}}
}

func Retreat(faction, retreatTo string) Action {
	return Action{Type: ActionRetreat, Faction: faction, Payload: ActionPayload{RetreatTo: retreatTo}}
}

func MobilizeUnits(faction, destination string, units []UnitStack) Action {
	return Action{Type: ActionMobilizeUnits, Faction: faction, Payload: ActionPayload{
		Destination: destination,
		Units:       units,
	}}
}

func PlaceCamp(faction string, campIndex int, territoryID string) Action {
	return Action{Type: ActionPlaceCamp, Faction: faction, Payload: ActionPayload{
		CampIndex:   &campIndex,
		TerritoryID: territoryID,
	}}
}

func CancelMobilization(faction string, mobilizationIndex int) Action {
	return Action{Type: ActionCancelMobilization, Faction: faction, Payload: ActionPayload{MobilizationIndex: &mobilizationIndex}}
}

func EndPhase(faction string) Action {
	return Action{Type: ActionEndPhase, Faction: faction}
}

func EndTurn(faction string) Action {
	return Action{Type: ActionEndTurn, Faction: faction}
}
