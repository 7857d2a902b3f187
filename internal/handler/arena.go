package handler

import (
	"encoding/json"
	"net/http"

	"pokemon-arena/internal/model"
	"pokemon-arena/internal/service"
)

// ArenaHandler serves battle history, the leaderboard and battles.
type ArenaHandler struct {
	ranking *service.RankingService
	arena   *service.ArenaService
}

// NewArenaHandler creates a new ArenaHandler.
func NewArenaHandler(ranking *service.RankingService, arena *service.ArenaService) *ArenaHandler {
	return &ArenaHandler{ranking: ranking, arena: arena}
}

type historyRequest struct {
	ID         model.ID        `json:"id"`
	OpponentID model.ID        `json:"opponentId"`
	Result     json.RawMessage `json:"result"`
}

// HandleAddHistory handles POST /arena/history.
func (h *ArenaHandler) HandleAddHistory(w http.ResponseWriter, r *http.Request) {
	var req historyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, service.ErrInvalidHistory.Error())
		return
	}
	result, err := model.ParseResult(req.Result)
	if err != nil || req.ID.IsZero() || req.OpponentID.IsZero() {
		writeError(w, http.StatusBadRequest, service.ErrInvalidHistory.Error())
		return
	}
	if err := requireSelf(r, req.ID); err != nil {
		respondError(w, r, err)
		return
	}

	rec, added, err := h.ranking.AddHistory(r.Context(), req.ID, req.OpponentID, result)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "History updated",
		"added":   added,
		"history": rec.History,
	})
}

// HandleHistory handles GET /arena/history/{userId}.
func (h *ArenaHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.ranking.History(r.Context(), pathID(r, "userId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// HandleLeaderboard handles GET /arena/leaderboard.
func (h *ArenaHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.ranking.Leaderboard(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": board})
}

type recordBattleRequest struct {
	WinnerID   model.ID `json:"winnerId"`
	LoserID    model.ID `json:"loserId"`
	WinPoints  *float64 `json:"winPoints"`
	LosePoints *float64 `json:"losePoints"`
}

// HandleRecordBattle handles POST /arena/leaderboard/record-battle.
func (h *ArenaHandler) HandleRecordBattle(w http.ResponseWriter, r *http.Request) {
	var req recordBattleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, service.ErrMissingBattle.Error())
		return
	}

	res, err := h.ranking.RecordBattle(r.Context(), service.RecordBattleInput{
		WinnerID:   req.WinnerID,
		LoserID:    req.LoserID,
		WinPoints:  req.WinPoints,
		LosePoints: req.LosePoints,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Battle recorded",
		"winner":  res.Winner,
		"loser":   res.Loser,
	})
}

type pointsRequest struct {
	UserID       model.ID `json:"userId"`
	Points       *float64 `json:"points"`
	BattlesDelta int      `json:"battlesDelta"`
}

// HandleAddPoints handles POST /arena/leaderboard/add.
func (h *ArenaHandler) HandleAddPoints(w http.ResponseWriter, r *http.Request) {
	var req pointsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, service.ErrPointsRequired.Error())
		return
	}

	row, err := h.ranking.AddPoints(r.Context(), req.UserID, req.Points, req.BattlesDelta)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Points added", "entry": row})
}

// HandleRemovePoints handles POST /arena/leaderboard/remove.
func (h *ArenaHandler) HandleRemovePoints(w http.ResponseWriter, r *http.Request) {
	var req pointsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, service.ErrPointsRequired.Error())
		return
	}

	row, err := h.ranking.RemovePoints(r.Context(), req.UserID, req.Points, req.BattlesDelta)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Points removed", "entry": row})
}

// HandleQuota handles GET /arena/quota/{userId}.
func (h *ArenaHandler) HandleQuota(w http.ResponseWriter, r *http.Request) {
	q, err := h.arena.Quota(r.Context(), pathID(r, "userId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type battleRequest struct {
	UserID     model.ID `json:"userId"`
	PokemonID  model.ID `json:"pokemonId"`
	OpponentID model.ID `json:"opponentId"`
}

func (h *ArenaHandler) decodeBattle(w http.ResponseWriter, r *http.Request) (battleRequest, bool) {
	var req battleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	req.UserID = actor(r, req.UserID)
	if req.UserID.IsZero() {
		writeError(w, http.StatusBadRequest, service.ErrUserIDRequired.Error())
		return req, false
	}
	return req, true
}

// HandleBotBattle handles POST /arena/battles/bot.
func (h *ArenaHandler) HandleBotBattle(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBattle(w, r)
	if !ok {
		return
	}

	res, err := h.arena.BattleBot(r.Context(), req.UserID, req.PokemonID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandlePlayerBattle handles POST /arena/battles/player.
func (h *ArenaHandler) HandlePlayerBattle(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBattle(w, r)
	if !ok {
		return
	}

	res, err := h.arena.BattlePlayer(r.Context(), req.UserID, req.OpponentID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
