package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"snake-market/internal/command"
	"snake-market/internal/host/bridge"
	"snake-market/internal/shop"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
	maxBodyBytes            = 1 << 20
)

// Event types the host may post.
const (
	EventPlayerLeft   = "player_left"
	EventRoundStarted = "round_started"
)

// EventRequest is a host lifecycle event.
type EventRequest struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id,omitempty"`
}

// CommandRequest is a console command typed by a player. An empty PlayerID
// means the server console.
type CommandRequest struct {
	PlayerID string   `json:"player_id"`
	Name     string   `json:"name,omitempty"`
	Command  string   `json:"command"`
	Args     []string `json:"args"`
}

// LeaderboardEntry is one ranked player.
type LeaderboardEntry struct {
	Rank       int       `json:"rank"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	TotalScore int64     `json:"total_score"`
	LastPlayed time.Time `json:"last_played"`
}

// LeaderboardResponse lists the top players.
type LeaderboardResponse struct {
	Players []LeaderboardEntry `json:"players"`
}

// BalanceResponse is a player's points.
type BalanceResponse struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name,omitempty"`
	Balance int64  `json:"balance"`
}

// CatalogResponse lists purchasable items.
type CatalogResponse struct {
	Enabled           bool         `json:"enabled"`
	CooldownRemaining int64        `json:"cooldown_remaining"`
	Items             []shop.Entry `json:"items"`
}

// HealthResponse reports liveness and snapshot freshness.
type HealthResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	SnapshotAge   string `json:"snapshot_age,omitempty"`
	LedgerDirty   bool   `json:"ledger_dirty"`
	LedgerPlayers int    `json:"ledger_players"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap bridge.Snapshot
	if !decodeBody(w, r, &snap) {
		return
	}
	s.world.Update(snap)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev EventRequest
	if !decodeBody(w, r, &ev) {
		return
	}
	switch ev.Type {
	case EventPlayerLeft:
		if ev.PlayerID == "" {
			writeError(w, http.StatusBadRequest, "player_id is required")
			return
		}
		s.hooks.PlayerLeft(ev.PlayerID)
	case EventRoundStarted:
		s.hooks.RoundStarted()
	default:
		writeError(w, http.StatusBadRequest, "unknown event type")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var inv *command.Invoker
	if req.PlayerID != "" {
		if !s.limiter.Allow(req.PlayerID) {
			writeError(w, http.StatusTooManyRequests, "too many commands")
			return
		}
		inv = &command.Invoker{PlayerID: req.PlayerID, Name: req.Name}
		if p, ok := s.world.Player(req.PlayerID); ok && p.Name != "" {
			inv.Name = p.Name
		}
	}

	resp, err := s.dispatcher.Execute(r.Context(), inv, req.Command, req.Args)
	if errors.Is(err, command.ErrUnknownCommand) {
		writeError(w, http.StatusNotFound, "unknown command")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("command", req.Command).Msg("Command failed")
		writeError(w, http.StatusInternalServerError, "command failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = min(n, maxLeaderboardLimit)
	}

	top := s.ledger.TopN(limit)
	out := LeaderboardResponse{Players: make([]LeaderboardEntry, 0, len(top))}
	for i, rec := range top {
		out.Players = append(out.Players, LeaderboardEntry{
			Rank:       i + 1,
			UserID:     rec.UserID,
			Name:       rec.LastKnownName,
			TotalScore: rec.TotalScore,
			LastPlayed: rec.LastPlayed,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	out := BalanceResponse{UserID: id}
	if rec, ok := s.ledger.Get(id); ok {
		out.Name = rec.LastKnownName
		out.Balance = rec.TotalScore
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CatalogResponse{
		Enabled:           s.shop.Enabled(),
		CooldownRemaining: s.shop.CooldownRemaining(),
		Items:             s.shop.Catalog().Enabled(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := HealthResponse{
		Status:        "ok",
		Uptime:        time.Since(s.startTime).Round(time.Second).String(),
		LedgerDirty:   s.ledger.Dirty(),
		LedgerPlayers: s.ledger.Len(),
	}
	if at := s.world.ReceivedAt(); !at.IsZero() {
		out.SnapshotAge = time.Since(at).Round(time.Millisecond).String()
	}
	writeJSON(w, http.StatusOK, out)
}
