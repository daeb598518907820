package engine

import "sort"

// DiceSides is the number of sides on a combat die.
const DiceSides = 10

// Archetype is the broad unit category that drives movement and combat
// special cases.
type Archetype string

const (
	ArchetypeInfantry Archetype = "infantry"
	ArchetypeCavalry  Archetype = "cavalry"
	ArchetypeAerial   Archetype = "aerial"
	ArchetypeArcher   Archetype = "archer"
	ArchetypeOther    Archetype = "other"
)

// Unit tags consulted by movement and combat.
const (
	TagAerial      = "aerial"
	TagAntiCavalry = "anti_cavalry"
	TagCaptain     = "captain"
)

// Phase identifies one of the five turn phases.
type Phase string

const (
	PhasePurchase      Phase = "purchase"
	PhaseCombatMove    Phase = "combat_move"
	PhaseCombat        Phase = "combat"
	PhaseNonCombatMove Phase = "non_combat_move"
	PhaseMobilization  Phase = "mobilization"
)

// PhaseOrder is the fixed order phases run within a turn.
var PhaseOrder = []Phase{
	PhasePurchase,
	PhaseCombatMove,
	PhaseCombat,
	PhaseNonCombatMove,
	PhaseMobilization,
}

// UnitDef defines the immutable properties of a unit type.
type UnitDef struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Faction     string         `json:"faction"`
	Archetype   Archetype      `json:"archetype"`
	Tags        []string       `json:"tags"`
	Attack      int            `json:"attack"`
	Defense     int            `json:"defense"`
	Movement    int            `json:"movement"`
	Health      int            `json:"health"`
	Dice        int            `json:"dice"`
	Cost        map[string]int `json:"cost"`
	Purchasable bool           `json:"purchasable"`
	Unique      bool           `json:"unique"`
	Icon        string         `json:"icon,omitempty"`
}

// HasTag reports whether the unit definition carries the given tag.
func (u *UnitDef) HasTag(tag string) bool {
	for _, t := range u.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// IsAerial reports whether the unit ignores ground pass-through rules.
func (u *UnitDef) IsAerial() bool {
	return u.Archetype == ArchetypeAerial || u.HasTag(TagAerial)
}

// TerritoryDef defines the immutable properties of a territory.
type TerritoryDef struct {
	ID           string         `json:"id"`
	DisplayName  string         `json:"display_name"`
	TerrainType  string         `json:"terrain_type"`
	Adjacent     []string       `json:"adjacent"`
	Produces     map[string]int `json:"produces"`
	IsStronghold bool           `json:"is_stronghold"`
	Ownable      bool           `json:"ownable"`
}

// FactionDef defines the immutable properties of a faction.
type FactionDef struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Alliance    string `json:"alliance"`
	Capital     string `json:"capital"`
	Color       string `json:"color"`
	Icon        string `json:"icon,omitempty"`
}

// CampDef defines a mobilization camp present from the starting setup.
type CampDef struct {
	ID          string `json:"id"`
	TerritoryID string `json:"territory_id"`
}

// Defs bundles the four definition mappings a game was created with.
// Each game snapshots its bundle, so later rule edits never change
// in-flight games. Definitions are read-only after load and safe to
// share across games.
type Defs struct {
	Units       map[string]UnitDef
	Territories map[string]TerritoryDef
	Factions    map[string]FactionDef
	Camps       map[string]CampDef
}

// terrainBonus is the default terrain combat bonus table. A unit gets
// the bonus only when it carries a tag matching the terrain type.
var terrainBonus = map[string]int{
	"forest":   1,
	"mountain": 1,
	"city":     1,
}

// Alliance returns the alliance of a faction, or "" if unknown.
// Units of unknown factions (neutral monsters) are enemies to all.
func (d *Defs) Alliance(factionID string) string {
	if f, ok := d.Factions[factionID]; ok {
		return f.Alliance
	}
	return ""
}

// SameAlliance reports whether two factions belong to the same alliance.
// Unknown factions never share an alliance with anyone.
func (d *Defs) SameAlliance(a, b string) bool {
	aa := d.Alliance(a)
	return aa != "" && aa == d.Alliance(b)
}

// SortedFactionIDs returns faction ids in sorted order, the canonical
// turn order.
func (d *Defs) SortedFactionIDs() []string {
	ids := make([]string, 0, len(d.Factions))
	for id := range d.Factions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SortedAlliances returns the distinct alliance ids in sorted order.
func (d *Defs) SortedAlliances() []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range d.Factions {
		if f.Alliance != "" && !seen[f.Alliance] {
			seen[f.Alliance] = true
			out = append(out, f.Alliance)
		}
	}
	sort.Strings(out)
	return out
}
