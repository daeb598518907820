package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing/fstest"
	"time"

	"github.com/keatohn/baggins-and-allies/internal/model"
)

// In-memory fakes for the repository interfaces, shared by the service
// tests. They enforce the same constraints the SQL schema does (unique
// join code, unique action seq) so the services see realistic failures.

type mockGameRepo struct {
	mu     sync.Mutex
	games  map[string]*model.Game
	nextID int
}

func newMockGameRepo() *mockGameRepo {
	return &mockGameRepo{games: map[string]*model.Game{}}
}

func (m *mockGameRepo) Create(_ context.Context, name, code, setupID, creatorID string) (*model.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.games {
		if g.Code == code {
			return nil, fmt.Errorf("duplicate code %s", code)
		}
	}
	m.nextID++
	g := &model.Game{
		ID:        fmt.Sprintf("game-%d", m.nextID),
		Name:      name,
		Code:      code,
		SetupID:   setupID,
		CreatorID: creatorID,
		Status:    "waiting",
		CreatedAt: time.Now(),
	}
	m.games[g.ID] = g
	out := *g
	return &out, nil
}

func (m *mockGameRepo) FindByID(_ context.Context, id string) (*model.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return nil, nil
	}
	out := *g
	out.Players = append([]model.GamePlayer(nil), g.Players...)
	return &out, nil
}

func (m *mockGameRepo) FindByCode(_ context.Context, code string) (*model.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.games {
		if g.Code == code {
			out := *g
			out.Players = append([]model.GamePlayer(nil), g.Players...)
			return &out, nil
		}
	}
	return nil, nil
}

func (m *mockGameRepo) ListOpen(_ context.Context) ([]model.Game, error) {
	return m.listByStatus("waiting"), nil
}

func (m *mockGameRepo) ListActive(_ context.Context) ([]model.Game, error) {
	return m.listByStatus("active"), nil
}

func (m *mockGameRepo) listByStatus(status string) []model.Game {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Game
	for _, g := range m.games {
		if g.Status == status {
			cp := *g
			cp.Players = append([]model.GamePlayer(nil), g.Players...)
			out = append(out, cp)
		}
	}
	return out
}

func (m *mockGameRepo) ListByUser(_ context.Context, userID string) ([]model.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Game
	for _, g := range m.games {
		member := g.CreatorID == userID
		for _, p := range g.Players {
			if p.UserID == userID {
				member = true
			}
		}
		if member {
			cp := *g
			out = append(out, cp)
		}
	}
	return out, nil
}

func (m *mockGameRepo) JoinGame(_ context.Context, gameID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[gameID]
	if !ok {
		return fmt.Errorf("game %s not found", gameID)
	}
	for _, p := range g.Players {
		if p.UserID == userID {
			return nil
		}
	}
	g.Players = append(g.Players, model.GamePlayer{
		GameID:      gameID,
		UserID:      userID,
		DisplayName: userID,
		JoinedAt:    time.Now(),
	})
	return nil
}

func (m *mockGameRepo) PlayerCount(_ context.Context, gameID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[gameID]
	if !ok {
		return 0, nil
	}
	return len(g.Players), nil
}

func (m *mockGameRepo) AssignFactions(_ context.Context, gameID string, assignments map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[gameID]
	if !ok {
		return fmt.Errorf("game %s not found", gameID)
	}
	for i := range g.Players {
		g.Players[i].Faction = assignments[g.Players[i].UserID]
	}
	g.Status = "active"
	now := time.Now()
	g.StartedAt = &now
	return nil
}

func (m *mockGameRepo) SetFinished(_ context.Context, gameID, winner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[gameID]
	if !ok {
		return fmt.Errorf("game %s not found", gameID)
	}
	g.Status = "finished"
	g.Winner = winner
	now := time.Now()
	g.FinishedAt = &now
	return nil
}

func (m *mockGameRepo) Delete(_ context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.games, gameID)
	return nil
}

type mockActionRepo struct {
	mu   sync.Mutex
	rows map[string][]model.GameAction
}

func newMockActionRepo() *mockActionRepo {
	return &mockActionRepo{rows: map[string][]model.GameAction{}}
}

func (m *mockActionRepo) Append(_ context.Context, gameID string, seq int, faction string, action json.RawMessage) (*model.GameAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows[gameID] {
		if r.Seq == seq {
			return nil, fmt.Errorf("duplicate seq %d for game %s", seq, gameID)
		}
	}
	row := model.GameAction{
		ID:        fmt.Sprintf("%s-%d", gameID, seq),
		GameID:    gameID,
		Seq:       seq,
		Faction:   faction,
		Action:    append(json.RawMessage(nil), action...),
		CreatedAt: time.Now(),
	}
	m.rows[gameID] = append(m.rows[gameID], row)
	return &row, nil
}

func (m *mockActionRepo) ListByGame(_ context.Context, gameID string) ([]model.GameAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.GameAction(nil), m.rows[gameID]...), nil
}

func (m *mockActionRepo) Count(_ context.Context, gameID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows[gameID]), nil
}

type mockCache struct {
	mu     sync.Mutex
	states map[string][]byte
}

func newMockCache() *mockCache {
	return &mockCache{states: map[string][]byte{}}
}

func (m *mockCache) SetGameState(_ context.Context, gameID string, state json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[gameID] = append([]byte(nil), state...)
	return nil
}

func (m *mockCache) GetGameState(_ context.Context, gameID string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[gameID]
	if !ok {
		return nil, nil
	}
	return append(json.RawMessage(nil), s...), nil
}

func (m *mockCache) DeleteGameState(_ context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, gameID)
	return nil
}

type broadcastCall struct {
	GameID string
	Type   string
	Data   any
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (b *recordingBroadcaster) BroadcastGameEvent(gameID, eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcastCall{GameID: gameID, Type: eventType, Data: data})
}

func (b *recordingBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	for i, c := range b.calls {
		out[i] = c.Type
	}
	return out
}

// fixedRoller always rolls fives, so combat outcomes in tests are
// predictable: a five hits any stat of five or better.
func fixedRoller(n int) []int {
	rolls := make([]int, n)
	for i := range rolls {
		rolls[i] = 5
	}
	return rolls
}

// testSetupFS is a minimal two-faction map: red holds the keep, blue
// holds the fort, an empty field between them.
func testSetupFS() fstest.MapFS {
	return fstest.MapFS{
		"0.1/units.json": &fstest.MapFile{Data: []byte(`{
			"spear": {"id": "spear", "display_name": "Spearman", "faction": "red",
				"archetype": "infantry", "attack": 4, "defense": 5, "movement": 1,
				"health": 1, "cost": {"power": 3}},
			"bow": {"id": "bow", "display_name": "Bowman", "faction": "red",
				"archetype": "archer", "attack": 3, "defense": 4, "movement": 1,
				"health": 1, "cost": {"power": 4}},
			"orc": {"id": "orc", "display_name": "Orc", "faction": "blue",
				"archetype": "infantry", "attack": 4, "defense": 4, "movement": 1,
				"health": 1, "cost": {"power": 3}}
		}`)},
		"0.1/territories.json": &fstest.MapFile{Data: []byte(`{
			"keep": {"id": "keep", "display_name": "Keep", "terrain_type": "plains",
				"adjacent": ["field"], "produces": {"power": 3}, "is_stronghold": true},
			"field": {"id": "field", "display_name": "Field", "terrain_type": "plains",
				"adjacent": ["keep", "fort"], "produces": {}},
			"fort": {"id": "fort", "display_name": "Fort", "terrain_type": "plains",
				"adjacent": ["field"], "produces": {"power": 3}, "is_stronghold": true}
		}`)},
		"0.1/factions.json": &fstest.MapFile{Data: []byte(`{
			"red":  {"id": "red", "display_name": "Red", "alliance": "north", "capital": "keep"},
			"blue": {"id": "blue", "display_name": "Blue", "alliance": "south", "capital": "fort"}
		}`)},
		"0.1/starting_setup.json": &fstest.MapFile{Data: []byte(`{
			"territory_owners": {"keep": "red", "fort": "blue"},
			"starting_units": {
				"keep": [{"unit_id": "spear", "count": 2}],
				"fort": [{"unit_id": "orc", "count": 2}]
			}
		}`)},
		"0.1/setup.json": &fstest.MapFile{Data: []byte(`{
			"display_name": "Test Map",
			"victory_criteria": {"strongholds": {"north": 2, "south": 2}}
		}`)},
	}
}

func testCatalog() *SetupCatalog {
	return NewSetupCatalog(testSetupFS())
}
