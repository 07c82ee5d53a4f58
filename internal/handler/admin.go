package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"snake-market/internal/ledger"
	"snake-market/internal/model"
	"snake-market/internal/pkg/lock"
)

// AdminHandler handles admin-related commands.
type AdminHandler struct {
	ledger   *ledger.Ledger
	userLock *lock.UserLock
}

// NewAdminHandler creates a new AdminHandler. userLock must be the lock the
// storefront uses so adjustments never land inside a purchase.
func NewAdminHandler(l *ledger.Ledger, userLock *lock.UserLock) *AdminHandler {
	return &AdminHandler{
		ledger:   l,
		userLock: userLock,
	}
}

// HandleAdminAdd handles the /points_add command. A negative amount deducts.
// Format: /points_add <player_id> <amount>
func (h *AdminHandler) HandleAdminAdd(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	targetID, amount, err := ParseAdminArgs("/points_add", c.Args())
	if err != nil {
		return c.Reply(err.Error())
	}
	if amount == 0 {
		return c.Reply("❌ Amount must not be zero")
	}

	h.userLock.Lock(targetID)
	defer h.userLock.Unlock(targetID)

	desc := fmt.Sprintf("admin %d adjusted points", sender.ID)
	balance, err := h.ledger.Add(context.Background(), targetID, "", amount, model.TxTypeAdminAdd, desc)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientPoints) {
			return c.Reply(fmt.Sprintf("❌ %s only has %d points", targetID, h.ledger.GetScore(targetID)))
		}
		log.Error().Err(err).Str("target_id", targetID).Msg("Admin add failed")
		return c.Reply("❌ Operation failed, please try again later")
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Str("target_id", targetID).
		Int64("amount", amount).
		Str("operation", "admin_add").
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf(
		"✅ Done\n\n"+
			"👤 Player: %s\n"+
			"➕ Change: %+d points\n"+
			"💰 Balance: %d points",
		targetID, amount, balance,
	))
}

// HandleAdminSet handles the /points_set command.
// Format: /points_set <player_id> <amount>
func (h *AdminHandler) HandleAdminSet(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	targetID, total, err := ParseAdminArgs("/points_set", c.Args())
	if err != nil {
		return c.Reply(err.Error())
	}
	if total < 0 {
		return c.Reply("❌ Balance cannot be negative")
	}

	h.userLock.Lock(targetID)
	defer h.userLock.Unlock(targetID)

	previous := h.ledger.GetScore(targetID)
	desc := fmt.Sprintf("admin %d set points", sender.ID)
	balance, err := h.ledger.SetScoreAs(context.Background(), targetID, "", total, model.TxTypeAdminSet, desc)
	if err != nil {
		log.Error().Err(err).Str("target_id", targetID).Msg("Admin set failed")
		return c.Reply("❌ Operation failed, please try again later")
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Str("target_id", targetID).
		Int64("old_balance", previous).
		Int64("new_balance", balance).
		Str("operation", "admin_set").
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf(
		"✅ Done\n\n"+
			"👤 Player: %s\n"+
			"📝 Previous: %d points\n"+
			"💰 Balance: %d points",
		targetID, previous, balance,
	))
}

// ParseAdminArgs parses "<player_id> <amount>" for the named command.
func ParseAdminArgs(command string, args []string) (string, int64, error) {
	if len(args) < 2 {
		return "", 0, fmt.Errorf("❌ Usage: %s <player_id> <amount>\nExample: %s 76561198000000000@steam 100", command, command)
	}

	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("❌ Amount must be an integer")
	}
	return args[0], amount, nil
}
