package handler

import (
	"errors"
	"net/http"

	"github.com/keatohn/baggins-and-allies/internal/auth"
	"github.com/keatohn/baggins-and-allies/internal/service"
	"github.com/keatohn/baggins-and-allies/pkg/engine"
)

// PlayHandler handles in-game action and query endpoints. Each rules
// action gets its own route; all of them funnel into PlayService.Act,
// which owns dice, logging, and broadcasting.
type PlayHandler struct {
	playSvc *service.PlayService
}

// NewPlayHandler creates a PlayHandler.
func NewPlayHandler(playSvc *service.PlayService) *PlayHandler {
	return &PlayHandler{playSvc: playSvc}
}

// act runs one action and writes the shared response shape. Rule
// rejections are 422 with the machine-readable code; lifecycle errors
// map to the usual statuses.
func (h *PlayHandler) act(w http.ResponseWriter, r *http.Request, action engine.Action) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	res, err := h.playSvc.Act(r.Context(), gameID, userID, action)
	if err != nil {
		if re := engine.AsRuleError(err); re != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": re.Message,
				"code":  re.Code,
			})
			return
		}
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrGameNotFound) {
			status = http.StatusNotFound
		} else if errors.Is(err, service.ErrGameNotActive) {
			status = http.StatusBadRequest
		} else if errors.Is(err, service.ErrNotInGame) {
			status = http.StatusForbidden
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PurchaseUnits handles POST /api/v1/games/{id}/purchase
func (h *PlayHandler) PurchaseUnits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Purchases map[string]int `json:"purchases"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.act(w, r, engine.PurchaseUnits("", req.Purchases))
}

// PurchaseCamp handles POST /api/v1/games/{id}/purchase-camp
func (h *PlayHandler) PurchaseCamp(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, engine.PurchaseCamp(""))
}

// MoveUnits handles POST /api/v1/games/{id}/move
func (h *PlayHandler) MoveUnits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From            string   `json:"from"`
		To              string   `json:"to"`
		UnitInstanceIDs []string `json:"unit_instance_ids"`
		ChargeThrough   []string `json:"charge_through,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.act(w, r, engine.MoveUnits("", req.From, req.To, req.UnitInstanceIDs, req.ChargeThrough))
}

// CancelMove handles POST /api/v1/games/{id}/cancel-move
func (h *PlayHandler) CancelMove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MoveIndex int `json:"move_index"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.act(w, r, engine.CancelMove("", req.MoveIndex))
}

// InitiateCombat handles POST /api/v1/games/{id}/combat/initiate
// Dice are rolled server-side; the request only names the territory.
func (h *PlayHandler) InitiateCombat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TerritoryID string `json:"territory_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.act(w, r, engine.InitiateCombat("", req.TerritoryID, engine.DiceRolls{}))
}

// ContinueCombat handles POST /api/v1/games/{id}/combat/continue
func (h *PlayHandler) ContinueCombat(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, engine.ContinueCombat("", engine.DiceRolls{}))
}

// Retreat handles POST /api/v1/games/{id}/combat/retreat
func (h *PlayHandler) Retreat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RetreatTo string `json:"retreat_to"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.act(w, r, engine.Retreat("", req.RetreatTo))
}

// MobilizeUnits handles POST /api/v1/games/{id}/mobilize
func (h *PlayHandler) MobilizeUnits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Destination string             `json:"destination"`
		Units       []engine.UnitStack `json:"units"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.act(w, r, engine.MobilizeUnits("", req.Destination, req.Units))
}

// CancelMobilization handles POST /api/v1/games/{id}/cancel-mobilization
func (h *PlayHandler) CancelMobilization(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MobilizationIndex int `json:"mobilization_index"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.act(w, r, engine.CancelMobilization("", req.MobilizationIndex))
}

// PlaceCamp handles POST /api/v1/games/{id}/place-camp
func (h *PlayHandler) PlaceCamp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CampIndex   int    `json:"camp_index"`
		TerritoryID string `json:"territory_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.act(w, r, engine.PlaceCamp("", req.CampIndex, req.TerritoryID))
}

// EndPhase handles POST /api/v1/games/{id}/end-phase
func (h *PlayHandler) EndPhase(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, engine.EndPhase(""))
}

// EndTurn handles POST /api/v1/games/{id}/end-turn
func (h *PlayHandler) EndTurn(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, engine.EndTurn(""))
}

// GetState handles GET /api/v1/games/{id}/state
func (h *PlayHandler) GetState(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	state, _, err := h.playSvc.State(r.Context(), gameID)
	if err != nil {
		h.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// AvailableActions handles GET /api/v1/games/{id}/available-actions
func (h *PlayHandler) AvailableActions(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	actions, err := h.playSvc.AvailableActions(r.Context(), gameID)
	if err != nil {
		h.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

// Stats handles GET /api/v1/games/{id}/stats
func (h *PlayHandler) Stats(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	stats, err := h.playSvc.Stats(r.Context(), gameID)
	if err != nil {
		h.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// MovableUnits handles GET /api/v1/games/{id}/movable-units
func (h *PlayHandler) MovableUnits(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())
	units, err := h.playSvc.MovableUnits(r.Context(), gameID, userID)
	if err != nil {
		h.writeQueryError(w, err)
		return
	}
	if units == nil {
		units = []engine.MovableUnit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"units": units})
}

// ContestedTerritories handles GET /api/v1/games/{id}/contested
func (h *PlayHandler) ContestedTerritories(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())
	contested, err := h.playSvc.ContestedTerritories(r.Context(), gameID, userID)
	if err != nil {
		h.writeQueryError(w, err)
		return
	}
	if contested == nil {
		contested = []engine.ContestedTerritory{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"territories": contested})
}

func (h *PlayHandler) writeQueryError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, service.ErrGameNotFound) {
		status = http.StatusNotFound
	} else if errors.Is(err, service.ErrGameNotActive) {
		status = http.StatusBadRequest
	} else if errors.Is(err, service.ErrNotInGame) {
		status = http.StatusForbidden
	}
	writeError(w, status, err.Error())
}
