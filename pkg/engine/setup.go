package engine

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
)

// DefaultSetupID is the setup used when a game does not name one.
const DefaultSetupID = "0.1"

// defaultStrongholdsForVictory is used when a setup manifest does not
// pin per-alliance thresholds.
const defaultStrongholdsForVictory = 4

// defaultCampCost is the power cost of a camp when the manifest omits it.
const defaultCampCost = 5

// SetupManifest is the optional setup.json of a setup bundle.
type SetupManifest struct {
	DisplayName     string          `json:"display_name"`
	Description     string          `json:"description,omitempty"`
	MapAsset        string          `json:"map_asset,omitempty"`
	CampCost        int             `json:"camp_cost,omitempty"`
	VictoryCriteria VictoryCriteria `json:"victory_criteria,omitempty"`
}

// StartingSetup is the required starting_setup.json of a setup bundle.
type StartingSetup struct {
	TerritoryOwners map[string]string      `json:"territory_owners"`
	StartingUnits   map[string][]UnitStack `json:"starting_units"`
}

// Setup is a fully loaded setup bundle. Each game snapshots the bundle
// it was created with.
type Setup struct {
	ID       string
	Manifest SetupManifest
	Defs     *Defs
	Starting StartingSetup
}

// SetupInfo is one row of a setup listing.
type SetupInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	MapAsset    string `json:"map_asset,omitempty"`
}

// ListSetups scans the setup directory for bundles. Only directories
// containing a starting_setup.json are listed.
func ListSetups(fsys fs.FS) ([]SetupInfo, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading setup dir: %w", err)
	}
	var infos []SetupInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := fs.Stat(fsys, e.Name()+"/starting_setup.json"); err != nil {
			continue
		}
		info := SetupInfo{ID: e.Name(), DisplayName: e.Name()}
		var manifest SetupManifest
		if data, err := fs.ReadFile(fsys, e.Name()+"/setup.json"); err == nil {
			if json.Unmarshal(data, &manifest) == nil {
				if manifest.DisplayName != "" {
					info.DisplayName = manifest.DisplayName
				}
				info.MapAsset = manifest.MapAsset
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

// LoadSetup reads a setup bundle from the filesystem. Missing bundle
// directories yield ErrSetupNotFound; unreadable or invalid files yield
// ErrSetupMalformed.
func LoadSetup(fsys fs.FS, id string) (*Setup, error) {
	if _, err := fs.Stat(fsys, id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSetupNotFound, id)
	}

	setup := &Setup{ID: id, Defs: &Defs{
		Units:       map[string]UnitDef{},
		Territories: map[string]TerritoryDef{},
		Factions:    map[string]FactionDef{},
		Camps:       map[string]CampDef{},
	}}

	// Optional fields default dice=1, purchasable=true and ownable=true,
	// which the zero values get wrong, so decode entry by entry over the
	// preset defaults.
	var rawUnits map[string]json.RawMessage
	if err := loadJSON(fsys, id+"/units.json", &rawUnits); err != nil {
		return nil, err
	}
	for uid, raw := range rawUnits {
		ud := UnitDef{Dice: 1, Purchasable: true, Tags: []string{}}
		if err := json.Unmarshal(raw, &ud); err != nil {
			return nil, fmt.Errorf("%w: units.json entry %s: %v", ErrSetupMalformed, uid, err)
		}
		setup.Defs.Units[uid] = ud
	}

	var rawTerritories map[string]json.RawMessage
	if err := loadJSON(fsys, id+"/territories.json", &rawTerritories); err != nil {
		return nil, err
	}
	for tid, raw := range rawTerritories {
		td := TerritoryDef{Ownable: true}
		if err := json.Unmarshal(raw, &td); err != nil {
			return nil, fmt.Errorf("%w: territories.json entry %s: %v", ErrSetupMalformed, tid, err)
		}
		setup.Defs.Territories[tid] = td
	}

	if err := loadJSON(fsys, id+"/factions.json", &setup.Defs.Factions); err != nil {
		return nil, err
	}

	// camps.json is optional.
	if data, err := fs.ReadFile(fsys, id+"/camps.json"); err == nil {
		if err := json.Unmarshal(data, &setup.Defs.Camps); err != nil {
			return nil, fmt.Errorf("%w: camps.json: %v", ErrSetupMalformed, err)
		}
	}

	if err := loadJSON(fsys, id+"/starting_setup.json", &setup.Starting); err != nil {
		return nil, err
	}

	// setup.json is optional.
	if data, err := fs.ReadFile(fsys, id+"/setup.json"); err == nil {
		if err := json.Unmarshal(data, &setup.Manifest); err != nil {
			return nil, fmt.Errorf("%w: setup.json: %v", ErrSetupMalformed, err)
		}
	}

	return setup, nil
}

func loadJSON(fsys fs.FS, path string, out any) error {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSetupMalformed, path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSetupMalformed, path, err)
	}
	return nil
}

// NewGame creates the initial game state for a setup. Territory owners
// and starting units come from the starting setup; starting resources
// are the production of each faction's owned territories; definition
// camps all start standing.
func NewGame(setup *Setup) *GameState {
	defs := setup.Defs
	gs := &GameState{
		TurnNumber:             1,
		Phase:                  PhasePurchase,
		Territories:            map[string]*TerritoryState{},
		FactionResources:       map[string]map[string]int{},
		FactionPurchasedUnits:  map[string][]UnitStack{},
		UnitIDCounters:         map[string]int{},
		FactionPendingIncome:   map[string]map[string]int{},
		PendingCaptures:        map[string]string{},
		MobilizationCamps:      []string{},
		PendingMoves:           []PendingMove{},
		PendingMobilizations:   []PendingMobilization{},
		TerritoriesAtTurnStart: map[string][]string{},
		PendingCamps:           []PendingCamp{},
		DynamicCamps:           map[string]string{},
		CampsStanding:          []string{},
		CampCost:               setup.Manifest.CampCost,
		MapAsset:               setup.Manifest.MapAsset,
	}
	if gs.CampCost == 0 {
		gs.CampCost = defaultCampCost
	}

	gs.VictoryCriteria = VictoryCriteria{Strongholds: map[string]int{}}
	for a, n := range setup.Manifest.VictoryCriteria.Strongholds {
		gs.VictoryCriteria.Strongholds[a] = n
	}
	if len(gs.VictoryCriteria.Strongholds) == 0 {
		for _, a := range defs.SortedAlliances() {
			gs.VictoryCriteria.Strongholds[a] = defaultStrongholdsForVictory
		}
	}

	for tid := range defs.Territories {
		gs.Territories[tid] = &TerritoryState{Units: []Unit{}}
	}
	for tid, owner := range setup.Starting.TerritoryOwners {
		if ts, ok := gs.Territories[tid]; ok {
			ts.Owner = owner
			ts.OriginalOwner = owner
		}
	}

	for fid := range defs.Factions {
		gs.FactionResources[fid] = map[string]int{}
		gs.FactionPurchasedUnits[fid] = []UnitStack{}
	}
	for tid, ts := range gs.Territories {
		if ts.Owner == "" {
			continue
		}
		res, ok := gs.FactionResources[ts.Owner]
		if !ok {
			continue
		}
		for rid, amount := range defs.Territories[tid].Produces {
			res[rid] += amount
		}
	}

	for tid, stacks := range setup.Starting.StartingUnits {
		ts, ok := gs.Territories[tid]
		if !ok || ts.Owner == "" {
			continue
		}
		for _, stack := range stacks {
			ud, ok := defs.Units[stack.UnitID]
			if !ok {
				continue
			}
			for i := 0; i < stack.Count; i++ {
				ts.Units = append(ts.Units, Unit{
					InstanceID:        gs.GenerateInstanceID(ts.Owner, stack.UnitID),
					UnitID:            stack.UnitID,
					RemainingMovement: ud.Movement,
					RemainingHealth:   ud.Health,
					BaseMovement:      ud.Movement,
					BaseHealth:        ud.Health,
				})
			}
		}
	}

	for campID := range defs.Camps {
		gs.CampsStanding = append(gs.CampsStanding, campID)
	}
	sort.Strings(gs.CampsStanding)

	factionIDs := defs.SortedFactionIDs()
	if len(factionIDs) > 0 {
		first := factionIDs[0]
		gs.CurrentFaction = first
		gs.TerritoriesAtTurnStart[first] = ownedTerritories(gs, first)
		gs.MobilizationCamps = campTerritoriesOwnedBy(gs, first, defs)
	}

	return gs
}

// ownedTerritories returns the sorted list of territories owned by a
// faction.
func ownedTerritories(gs *GameState, factionID string) []string {
	var out []string
	for tid, ts := range gs.Territories {
		if ts.Owner == factionID {
			out = append(out, tid)
		}
	}
	sort.Strings(out)
	return out
}

// campTerritoriesOwnedBy returns the sorted territories owned by the
// faction that hold a standing camp, the turn's mobilization camps.
func campTerritoriesOwnedBy(gs *GameState, factionID string, defs *Defs) []string {
	seen := map[string]bool{}
	var out []string
	for _, campID := range gs.CampsStanding {
		tid := gs.CampTerritory(campID, defs)
		if tid == "" || seen[tid] {
			continue
		}
		ts, ok := gs.Territories[tid]
		if !ok || ts.Owner != factionID {
			continue
		}
		seen[tid] = true
		out = append(out, tid)
	}
	sort.Strings(out)
	return out
}
