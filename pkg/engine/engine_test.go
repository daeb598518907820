package engine

import "testing"

// Shared test fixture: a small three-faction map. gondor and rohan form
// the good alliance, mordor stands alone on evil, and gondor opens the
// turn order. minas, barad and edoras are strongholds with definition
// camps; gap1 and gap2 are empty mordor territory between osgiliath and
// barad; woodland is forest terrain.

func testDefs() *Defs {
	return &Defs{
		Units: map[string]UnitDef{
			"footman": {ID: "footman", DisplayName: "Footman", Faction: "gondor", Archetype: ArchetypeInfantry, Tags: []string{}, Attack: 2, Defense: 3, Movement: 1, Health: 1, Dice: 1, Cost: map[string]int{"power": 3}, Purchasable: true},
			"knight":  {ID: "knight", DisplayName: "Knight", Faction: "gondor", Archetype: ArchetypeCavalry, Tags: []string{}, Attack: 3, Defense: 2, Movement: 3, Health: 1, Dice: 1, Cost: map[string]int{"power": 5}, Purchasable: true},
			"warden":  {ID: "warden", DisplayName: "Warden", Faction: "gondor", Archetype: ArchetypeInfantry, Tags: []string{"forest"}, Attack: 2, Defense: 2, Movement: 1, Health: 1, Dice: 1, Cost: map[string]int{"power": 3}, Purchasable: true},
			"marshal": {ID: "marshal", DisplayName: "Marshal", Faction: "gondor", Archetype: ArchetypeInfantry, Tags: []string{TagCaptain}, Attack: 3, Defense: 3, Movement: 1, Health: 1, Dice: 1, Cost: map[string]int{"power": 6}, Purchasable: true},
			"eagle":   {ID: "eagle", DisplayName: "Eagle", Faction: "gondor", Archetype: ArchetypeAerial, Tags: []string{}, Attack: 4, Defense: 3, Movement: 4, Health: 1, Dice: 1, Cost: map[string]int{"power": 8}, Purchasable: true},
			"orc":     {ID: "orc", DisplayName: "Orc", Faction: "mordor", Archetype: ArchetypeInfantry, Tags: []string{}, Attack: 2, Defense: 2, Movement: 1, Health: 1, Dice: 1, Cost: map[string]int{"power": 3}, Purchasable: true},
			"troll":   {ID: "troll", DisplayName: "Troll", Faction: "mordor", Archetype: ArchetypeOther, Tags: []string{}, Attack: 3, Defense: 3, Movement: 1, Health: 2, Dice: 2, Cost: map[string]int{"power": 6}, Purchasable: true},
			"pikeman": {ID: "pikeman", DisplayName: "Pikeman", Faction: "mordor", Archetype: ArchetypeInfantry, Tags: []string{TagAntiCavalry}, Attack: 2, Defense: 2, Movement: 1, Health: 1, Dice: 1, Cost: map[string]int{"power": 4}, Purchasable: true},
			"bowman":  {ID: "bowman", DisplayName: "Bowman", Faction: "mordor", Archetype: ArchetypeArcher, Tags: []string{}, Attack: 2, Defense: 3, Movement: 1, Health: 1, Dice: 1, Cost: map[string]int{"power": 4}, Purchasable: true},
			"rider":   {ID: "rider", DisplayName: "Rider", Faction: "rohan", Archetype: ArchetypeCavalry, Tags: []string{}, Attack: 3, Defense: 2, Movement: 2, Health: 1, Dice: 1, Cost: map[string]int{"power": 4}, Purchasable: true},
		},
		Territories: map[string]TerritoryDef{
			"minas":     {ID: "minas", DisplayName: "Minas", TerrainType: "plains", Adjacent: []string{"edoras", "osgiliath", "woodland"}, Produces: map[string]int{"power": 3}, IsStronghold: true, Ownable: true},
			"osgiliath": {ID: "osgiliath", DisplayName: "Osgiliath", TerrainType: "plains", Adjacent: []string{"gap1", "minas", "woodland"}, Produces: map[string]int{"power": 1}, Ownable: true},
			"gap1":      {ID: "gap1", DisplayName: "Gap One", TerrainType: "plains", Adjacent: []string{"gap2", "osgiliath"}, Produces: map[string]int{}, Ownable: true},
			"gap2":      {ID: "gap2", DisplayName: "Gap Two", TerrainType: "plains", Adjacent: []string{"barad", "gap1"}, Produces: map[string]int{}, Ownable: true},
			"barad":     {ID: "barad", DisplayName: "Barad", TerrainType: "plains", Adjacent: []string{"gap2"}, Produces: map[string]int{"power": 2}, IsStronghold: true, Ownable: true},
			"woodland":  {ID: "woodland", DisplayName: "Woodland", TerrainType: "forest", Adjacent: []string{"minas", "osgiliath"}, Produces: map[string]int{}, Ownable: true},
			"edoras":    {ID: "edoras", DisplayName: "Edoras", TerrainType: "plains", Adjacent: []string{"minas"}, Produces: map[string]int{"power": 2}, IsStronghold: true, Ownable: true},
		},
		Factions: map[string]FactionDef{
			"gondor": {ID: "gondor", DisplayName: "Gondor", Alliance: "good", Capital: "minas"},
			"mordor": {ID: "mordor", DisplayName: "Mordor", Alliance: "evil", Capital: "barad"},
			"rohan":  {ID: "rohan", DisplayName: "Rohan", Alliance: "good", Capital: "edoras"},
		},
		Camps: map[string]CampDef{
			"minas_camp":  {ID: "minas_camp", TerritoryID: "minas"},
			"barad_camp":  {ID: "barad_camp", TerritoryID: "barad"},
			"edoras_camp": {ID: "edoras_camp", TerritoryID: "edoras"},
		},
	}
}

func testSetup() *Setup {
	return &Setup{
		ID:   "test",
		Defs: testDefs(),
		Starting: StartingSetup{
			TerritoryOwners: map[string]string{
				"minas":     "gondor",
				"osgiliath": "gondor",
				"woodland":  "mordor",
				"gap1":      "mordor",
				"gap2":      "mordor",
				"barad":     "mordor",
				"edoras":    "rohan",
			},
			StartingUnits: map[string][]UnitStack{
				"minas":  {{UnitID: "footman", Count: 2}},
				"barad":  {{UnitID: "orc", Count: 2}},
				"edoras": {{UnitID: "rider", Count: 1}},
			},
		},
	}
}

func newTestGame() (*GameState, *Defs) {
	setup := testSetup()
	return NewGame(setup), setup.Defs
}

// spawn builds a detached unit instance at base stats.
func spawn(defs *Defs, unitID, instanceID string) Unit {
	ud := defs.Units[unitID]
	return Unit{
		InstanceID:        instanceID,
		UnitID:            unitID,
		RemainingMovement: ud.Movement,
		RemainingHealth:   ud.Health,
		BaseMovement:      ud.Movement,
		BaseHealth:        ud.Health,
	}
}

// addUnit places a fresh unit of the type's owning faction into a
// territory and returns its instance id.
func addUnit(gs *GameState, defs *Defs, territoryID, unitID string) string {
	ud := defs.Units[unitID]
	u := spawn(defs, unitID, gs.GenerateInstanceID(ud.Faction, unitID))
	ts := gs.Territories[territoryID]
	ts.Units = append(ts.Units, u)
	return u.InstanceID
}

func mustApply(t *testing.T, gs *GameState, action Action, defs *Defs) (*GameState, []Event) {
	t.Helper()
	next, events, err := Apply(gs, action, defs)
	if err != nil {
		t.Fatalf("apply %s: %v", action.Type, err)
	}
	return next, events
}

// applyCode applies an action expected to fail and returns its rule
// error code.
func applyCode(t *testing.T, gs *GameState, action Action, defs *Defs) string {
	t.Helper()
	_, _, err := Apply(gs, action, defs)
	if err == nil {
		t.Fatalf("expected %s to fail", action.Type)
	}
	re := AsRuleError(err)
	if re == nil {
		t.Fatalf("expected a rule error, got %v", err)
	}
	return re.Code
}

func eventOfType(events []Event, eventType string) (Event, bool) {
	for _, e := range events {
		if e.Type == eventType {
			return e, true
		}
	}
	return Event{}, false
}

func hasEvent(events []Event, eventType string) bool {
	_, ok := eventOfType(events, eventType)
	return ok
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
