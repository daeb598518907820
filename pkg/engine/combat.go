package engine

import "sort"

// DiceRolls carries the pre-rolled dice for one combat round. The
// engine never rolls; callers supply rolls and the engine consumes them
// in unit list order.
type DiceRolls struct {
	Attacker []int `json:"attacker"`
	Defender []int `json:"defender"`
}

// RoundResult is the outcome of a single resolved combat round.
type RoundResult struct {
	AttackerHits         int
	DefenderHits         int
	AttackerCasualties   []string
	DefenderCasualties   []string
	AttackerWounded      []string
	DefenderWounded      []string
	SurvivingAttackerIDs []string
	SurvivingDefenderIDs []string
	AttackersEliminated  bool
	DefendersEliminated  bool
}

// DiceGroup is the per-stat roll breakdown surfaced to clients.
type DiceGroup struct {
	Rolls []int `json:"rolls"`
	Hits  int   `json:"hits"`
}

// ResolveCombatRound resolves one simultaneous round. Both hit counts
// are computed before any casualties are applied, then each side takes
// the other side's hits. The returned survivor slices carry the
// decremented health of wounded units.
func ResolveCombatRound(attackers, defenders []Unit, defs *Defs, rolls DiceRolls, attackerMods, defenderMods map[string]int) (RoundResult, []Unit, []Unit) {
	attackerHits := countHits(attackers, rolls.Attacker, defs, true, attackerMods)
	defenderHits := countHits(defenders, rolls.Defender, defs, false, defenderMods)

	attackers, attackerDead, attackerWounded := applyHits(attackers, defenderHits, defs, true)
	defenders, defenderDead, defenderWounded := applyHits(defenders, attackerHits, defs, false)

	res := RoundResult{
		AttackerHits:         attackerHits,
		DefenderHits:         defenderHits,
		AttackerCasualties:   attackerDead,
		DefenderCasualties:   defenderDead,
		AttackerWounded:      attackerWounded,
		DefenderWounded:      defenderWounded,
		SurvivingAttackerIDs: instanceIDs(attackers),
		SurvivingDefenderIDs: instanceIDs(defenders),
		AttackersEliminated:  len(attackers) == 0,
		DefendersEliminated:  len(defenders) == 0,
	}
	return res, attackers, defenders
}

// countHits walks units in list order, consuming each unit's dice from
// the roll list. A roll hits when it is at most the unit's stat plus
// its modifier. Excess rolls are ignored; running out of rolls stops
// the count.
func countHits(units []Unit, rolls []int, defs *Defs, attacking bool, mods map[string]int) int {
	hits := 0
	idx := 0
	for i := range units {
		ud, ok := defs.Units[units[i].UnitID]
		if !ok {
			continue
		}
		stat := sideStat(&ud, attacking) + mods[units[i].InstanceID]
		for d := 0; d < ud.Dice; d++ {
			if idx >= len(rolls) {
				return hits
			}
			if rolls[idx] <= stat {
				hits++
			}
			idx++
		}
	}
	return hits
}

// applyHits assigns hits one at a time, re-sorting the targets before
// each hit so high-health units soak damage until their health matches
// the rest. Sort key: remaining health descending, then total cost,
// base stat and remaining movement ascending. Units at zero health are
// removed and reported destroyed; survivors that took damage are
// reported wounded.
func applyHits(units []Unit, hits int, defs *Defs, attacking bool) (survivors []Unit, destroyed, wounded []string) {
	destroyed = []string{}
	woundedSeen := map[string]bool{}
	woundedOrder := []string{}

	key := func(u *Unit) (int, int, int, int) {
		ud, ok := defs.Units[u.UnitID]
		if !ok {
			return 1, int(^uint(0) >> 1), int(^uint(0) >> 1), int(^uint(0) >> 1)
		}
		total := 0
		for _, c := range ud.Cost {
			total += c
		}
		return -u.RemainingHealth, total, sideStat(&ud, attacking), u.RemainingMovement
	}

	for hits > 0 && len(units) > 0 {
		sort.SliceStable(units, func(i, j int) bool {
			a1, a2, a3, a4 := key(&units[i])
			b1, b2, b3, b4 := key(&units[j])
			if a1 != b1 {
				return a1 < b1
			}
			if a2 != b2 {
				return a2 < b2
			}
			if a3 != b3 {
				return a3 < b3
			}
			return a4 < b4
		})
		target := &units[0]
		target.RemainingHealth--
		hits--
		if target.RemainingHealth == 0 {
			destroyed = append(destroyed, target.InstanceID)
			delete(woundedSeen, target.InstanceID)
			units = units[1:]
		} else if !woundedSeen[target.InstanceID] {
			woundedSeen[target.InstanceID] = true
			woundedOrder = append(woundedOrder, target.InstanceID)
		}
	}

	wounded = []string{}
	for _, id := range woundedOrder {
		if woundedSeen[id] {
			wounded = append(wounded, id)
		}
	}
	return units, destroyed, wounded
}

func sideStat(ud *UnitDef, attacking bool) int {
	if attacking {
		return ud.Attack
	}
	return ud.Defense
}

func instanceIDs(units []Unit) []string {
	ids := make([]string, len(units))
	for i := range units {
		ids[i] = units[i].InstanceID
	}
	return ids
}

// RequiredDice is the number of rolls a side needs for one round.
func RequiredDice(units []Unit, defs *Defs) int {
	total := 0
	for i := range units {
		if ud, ok := defs.Units[units[i].UnitID]; ok {
			total += ud.Dice
		} else {
			total++
		}
	}
	return total
}

// CombatModifiers computes the per-instance stat bonuses for one side
// of a round. Terrain grants its bonus to units tagged with the terrain
// type; anti-cavalry units get +1 while the opposing side fields any
// cavalry; each captain grants +1 to up to three same-archetype
// non-captain allies, at most +1 per ally however many captains stack.
func CombatModifiers(side, opposing []Unit, defs *Defs, terrain string) map[string]int {
	mods := map[string]int{}

	bonus := terrainBonus[terrain]
	opposingCavalry := false
	for i := range opposing {
		if ud, ok := defs.Units[opposing[i].UnitID]; ok && ud.Archetype == ArchetypeCavalry {
			opposingCavalry = true
			break
		}
	}

	for i := range side {
		ud, ok := defs.Units[side[i].UnitID]
		if !ok {
			continue
		}
		m := 0
		if bonus > 0 && ud.HasTag(terrain) {
			m += bonus
		}
		if opposingCavalry && ud.HasTag(TagAntiCavalry) {
			m++
		}
		if m != 0 {
			mods[side[i].InstanceID] = m
		}
	}

	boosted := map[string]bool{}
	for i := range side {
		cd, ok := defs.Units[side[i].UnitID]
		if !ok || !cd.HasTag(TagCaptain) {
			continue
		}
		granted := 0
		for j := range side {
			if granted == 3 {
				break
			}
			ally := &side[j]
			if ally.InstanceID == side[i].InstanceID || boosted[ally.InstanceID] {
				continue
			}
			ad, ok := defs.Units[ally.UnitID]
			if !ok || ad.HasTag(TagCaptain) || ad.Archetype != cd.Archetype {
				continue
			}
			boosted[ally.InstanceID] = true
			mods[ally.InstanceID]++
			granted++
		}
	}

	return mods
}

// PrefireArchers returns the defending units that fire in the archer
// pre-fire step.
func PrefireArchers(defenders []Unit, defs *Defs) []Unit {
	var archers []Unit
	for i := range defenders {
		if ud, ok := defs.Units[defenders[i].UnitID]; ok && ud.Archetype == ArchetypeArcher {
			archers = append(archers, defenders[i])
		}
	}
	return archers
}

// PrefireModifiers are the archer pre-fire bonuses: defense shifted
// down by one, merged with the terrain bonus only.
func PrefireModifiers(archers []Unit, defs *Defs, terrain string) map[string]int {
	mods := map[string]int{}
	bonus := terrainBonus[terrain]
	for i := range archers {
		ud, ok := defs.Units[archers[i].UnitID]
		if !ok {
			continue
		}
		m := -1
		if bonus > 0 && ud.HasTag(terrain) {
			m += bonus
		}
		mods[archers[i].InstanceID] = m
	}
	return mods
}

// GroupDiceByStat buckets a side's rolls by effective stat value for
// client display, consuming dice in the same order as hit counting
// would after grouping. Buckets are processed in ascending stat order.
func GroupDiceByStat(units []Unit, rolls []int, defs *Defs, attacking bool, mods map[string]int) map[int]DiceGroup {
	dicePerStat := map[int]int{}
	for i := range units {
		ud, ok := defs.Units[units[i].UnitID]
		if !ok {
			continue
		}
		stat := sideStat(&ud, attacking) + mods[units[i].InstanceID]
		dicePerStat[stat] += ud.Dice
	}

	stats := make([]int, 0, len(dicePerStat))
	for s := range dicePerStat {
		stats = append(stats, s)
	}
	sort.Ints(stats)

	out := map[int]DiceGroup{}
	idx := 0
	for _, stat := range stats {
		group := DiceGroup{Rolls: []int{}}
		for d := 0; d < dicePerStat[stat]; d++ {
			if idx >= len(rolls) {
				break
			}
			roll := rolls[idx]
			group.Rolls = append(group.Rolls, roll)
			if roll <= stat {
				group.Hits++
			}
			idx++
		}
		out[stat] = group
	}
	return out
}

// HitsByUnitType aggregates a round's damage per unit type for the
// round event, looked up against the pre-round unit snapshot: a
// destroyed unit contributes its base health, a wounded unit
// contributes one.
func HitsByUnitType(casualties, wounded []string, preRound []Unit) map[string]int {
	byID := make(map[string]*Unit, len(preRound))
	for i := range preRound {
		byID[preRound[i].InstanceID] = &preRound[i]
	}
	out := map[string]int{}
	for _, id := range casualties {
		if u, ok := byID[id]; ok {
			out[u.UnitID] += u.BaseHealth
		}
	}
	for _, id := range wounded {
		if u, ok := byID[id]; ok {
			out[u.UnitID]++
		}
	}
	return out
}
