package engine

import "strings"

// territoryClass captures how a territory relates to the moving faction
// for pass-through and destination decisions.
type territoryClass int

const (
	classFriendly territoryClass = iota
	classAllied
	classEmptyNeutral
	classEnemyNeutral
	classEnemy
)

// classify determines the class of a territory relative to the acting
// faction. Neutral territories holding any unit of a different or
// unknown alliance are enemy-neutral; unknown-alliance units are
// enemies to all.
func classify(gs *GameState, ts *TerritoryState, factionID string, defs *Defs) territoryClass {
	if ts.Owner == factionID {
		return classFriendly
	}
	if ts.Owner != "" {
		if defs.SameAlliance(factionID, ts.Owner) {
			return classAllied
		}
		return classEnemy
	}
	alliance := defs.Alliance(factionID)
	for i := range ts.Units {
		ua := defs.Alliance(ts.Units[i].Owner())
		if ua == "" || ua != alliance {
			return classEnemyNeutral
		}
	}
	return classEmptyNeutral
}

// Reachable computes every territory the unit can reach from start in
// the given phase, mapped to the cost of reaching it. BFS expands up to
// the unit's remaining movement; pass-through and destination rules
// depend on the phase and the unit's archetype and tags.
func Reachable(gs *GameState, unit *Unit, start string, defs *Defs, phase Phase) map[string]int {
	dests, _ := reachableWithCharges(gs, unit, start, defs, phase)
	return dests
}

// ChargeRoutes returns, for a cavalry unit in combat_move, the distinct
// charge-through paths per destination. Each path lists the empty enemy
// territories passed over, in order; the destination itself is not part
// of the path.
func ChargeRoutes(gs *GameState, unit *Unit, start string, defs *Defs, phase Phase) map[string][][]string {
	_, routes := reachableWithCharges(gs, unit, start, defs, phase)
	return routes
}

type searchNode struct {
	territory string
	dist      int
	path      []string
}

func reachableWithCharges(gs *GameState, unit *Unit, start string, defs *Defs, phase Phase) (map[string]int, map[string][][]string) {
	reachable := map[string]int{}
	routes := map[string][][]string{}

	ud, ok := defs.Units[unit.UnitID]
	if !ok {
		return reachable, routes
	}
	aerial := ud.IsAerial()
	cavalry := ud.Archetype == ArchetypeCavalry
	faction := gs.CurrentFaction

	// Cavalry BFS keys visited on (territory, charge path) to enumerate
	// distinct charge routes; everything else keys on territory alone.
	visited := map[string]int{}
	queue := []searchNode{{territory: start, dist: 0}}
	visited[visitKey(start, nil)] = 0

	record := func(tid string, dist int, route []string) {
		if best, ok := reachable[tid]; !ok || dist < best {
			reachable[tid] = dist
		}
		if len(route) > 0 {
			routes[tid] = appendRoute(routes[tid], route)
		}
	}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if node.dist >= unit.RemainingMovement {
			continue
		}
		td, ok := defs.Territories[node.territory]
		if !ok {
			continue
		}
		for _, adjID := range td.Adjacent {
			adj, ok := gs.Territories[adjID]
			if !ok {
				continue
			}
			dist := node.dist + 1
			class := classify(gs, adj, faction, defs)
			pass, charge := canPassThrough(class, phase, aerial, cavalry, adj, adjID, defs)

			switch {
			case charge:
				// The charged territory is itself a destination, conquered
				// along the route passed so far; expanding onward extends
				// the charge path with it.
				record(adjID, dist, node.path)
				nextPath := appendPath(node.path, adjID)
				key := visitKey(adjID, nextPath)
				if best, seen := visited[key]; !seen || dist < best {
					visited[key] = dist
					queue = append(queue, searchNode{territory: adjID, dist: dist, path: nextPath})
				}
			case pass:
				record(adjID, dist, node.path)
				key := visitKey(adjID, node.path)
				if best, seen := visited[key]; !seen || dist < best {
					visited[key] = dist
					queue = append(queue, searchNode{territory: adjID, dist: dist, path: node.path})
				}
			case phase == PhaseCombatMove && (class == classEnemy || class == classEnemyNeutral):
				// Attack-only destination; BFS does not expand from it.
				record(adjID, dist, node.path)
			}
		}
	}

	filtered := map[string]int{}
	for tid, dist := range reachable {
		ts, ok := gs.Territories[tid]
		if !ok {
			continue
		}
		class := classify(gs, ts, faction, defs)
		switch phase {
		case PhaseCombatMove:
			if class == classEnemy || class == classEnemyNeutral {
				filtered[tid] = dist
			}
		case PhaseNonCombatMove:
			if class == classFriendly || class == classAllied || class == classEmptyNeutral {
				filtered[tid] = dist
			}
		default:
			filtered[tid] = dist
		}
	}
	for tid := range routes {
		if _, ok := filtered[tid]; !ok {
			delete(routes, tid)
		}
	}
	return filtered, routes
}

// canPassThrough decides whether BFS may expand from a node, and
// whether doing so is a cavalry charge over an empty enemy territory.
func canPassThrough(class territoryClass, phase Phase, aerial, cavalry bool, ts *TerritoryState, tid string, defs *Defs) (pass, charge bool) {
	if aerial {
		return true, false
	}
	switch phase {
	case PhaseNonCombatMove:
		return class == classFriendly || class == classAllied || class == classEmptyNeutral, false
	case PhaseCombatMove:
		switch class {
		case classFriendly, classAllied:
			return true, false
		case classEnemy:
			if cavalry && len(ts.Units) == 0 {
				td, ok := defs.Territories[tid]
				if ok && td.Ownable {
					return false, true
				}
			}
			return false, false
		default:
			return false, false
		}
	default:
		return false, false
	}
}

func visitKey(territory string, path []string) string {
	if len(path) == 0 {
		return territory
	}
	return territory + "|" + strings.Join(path, ",")
}

func appendPath(path []string, tid string) []string {
	next := make([]string, len(path)+1)
	copy(next, path)
	next[len(path)] = tid
	return next
}

func appendRoute(routes [][]string, path []string) [][]string {
	for _, r := range routes {
		if pathsEqual(r, path) {
			return routes
		}
	}
	return append(routes, append([]string(nil), path...))
}

func pathsEqual(a, b []string) bool {
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

// MovementCost is the unweighted shortest-path length between two
// territories in the raw adjacency graph. It ignores pass-through
// restrictions; this is the cost deducted when a declared move is
// applied. Returns -1 if unreachable.
func MovementCost(start, end string, defs *Defs) int {
	if start == end {
		return 0
	}
	visited := map[string]bool{start: true}
	type hop struct {
		tid  string
		dist int
	}
	queue := []hop{{start, 0}}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		td, ok := defs.Territories[h.tid]
		if !ok {
			continue
		}
		for _, adj := range td.Adjacent {
			if adj == end {
				return h.dist + 1
			}
			if !visited[adj] {
				visited[adj] = true
				queue = append(queue, hop{adj, h.dist + 1})
			}
		}
	}
	return -1
}
