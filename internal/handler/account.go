// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"snake-market/internal/ledger"
	"snake-market/internal/model"
)

// HistoryLimit is how many journal entries /history shows.
const HistoryLimit = 10

// AccountHandler handles balance lookups for game players.
type AccountHandler struct {
	ledger *ledger.Ledger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(l *ledger.Ledger) *AccountHandler {
	return &AccountHandler{ledger: l}
}

// HandlePoints handles the /points command.
// Format: /points <player_id>
func (h *AccountHandler) HandlePoints(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /points <player_id>\nExample: /points 76561198000000000@steam")
	}
	playerID := args[0]

	rec, ok := h.ledger.Get(playerID)
	if !ok {
		return c.Reply(fmt.Sprintf("👤 %s has no points yet.", playerID))
	}
	return c.Reply(FormatBalance(rec))
}

// HandleHistory handles the /history command.
// Format: /history <player_id>
func (h *AccountHandler) HandleHistory(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /history <player_id>")
	}
	playerID := args[0]

	txs, err := h.ledger.History(context.Background(), playerID, HistoryLimit)
	if err != nil {
		log.Error().Err(err).Str("user_id", playerID).Msg("Failed to load history")
		return c.Reply("❌ Failed to load history, please try again later")
	}
	return c.Reply(FormatHistory(playerID, txs))
}

// FormatBalance renders one player's balance.
func FormatBalance(rec model.ScoreRecord) string {
	name := rec.LastKnownName
	if name == "" {
		name = rec.UserID
	}
	msg := fmt.Sprintf("👤 %s (ID: %s)\n💰 Points: %d", name, rec.UserID, rec.TotalScore)
	if !rec.LastPlayed.IsZero() {
		msg += "\n🕒 Last played: " + rec.LastPlayed.UTC().Format("2006-01-02 15:04")
	}
	return msg
}

// FormatHistory renders journal entries newest first.
func FormatHistory(playerID string, txs []*model.Transaction) string {
	if len(txs) == 0 {
		return fmt.Sprintf("📜 No history recorded for %s.", playerID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📜 History for %s\n\n", playerID)
	for _, tx := range txs {
		fmt.Fprintf(&b, "%s %+d %s", tx.CreatedAt.UTC().Format("01-02 15:04"), tx.Amount, tx.Type)
		if tx.Description != nil && *tx.Description != "" {
			b.WriteString(" (" + *tx.Description + ")")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
