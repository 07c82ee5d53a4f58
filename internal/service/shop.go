// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"snake-market/internal/config"
	"snake-market/internal/host"
	"snake-market/internal/ledger"
	"snake-market/internal/messages"
	"snake-market/internal/metrics"
	"snake-market/internal/pkg/lock"
	"snake-market/internal/shop"
)

// Storefront errors
var (
	ErrMarketDisabled     = errors.New("market disabled")
	ErrMarketCooldown     = errors.New("market on cooldown")
	ErrInvalidItem        = errors.New("invalid item code")
	ErrInsufficientPoints = ledger.ErrInsufficientPoints
	ErrInventoryFull      = errors.New("item could not be granted")
)

// purchaseLockTimeout bounds the wait for a player's concurrent purchase or
// admin adjustment.
const purchaseLockTimeout = 3 * time.Second

// MarketSettings are the storefront rules, read on every call so reloaded
// catalogs and templates apply immediately.
type MarketSettings struct {
	Enabled      bool
	Catalog      *shop.Catalog
	Messages     config.MessagesConfig
	HintDuration time.Duration
}

// PurchaseResult describes a purchase attempt. Message is the player-facing
// outcome text and is set for failures too.
type PurchaseResult struct {
	Code      string
	Entry     shop.Entry
	Price     int64
	Balance   int64
	Remaining int64
	Message   string
}

// ShopService handles storefront business logic.
type ShopService struct {
	ledger   *ledger.Ledger
	granter  host.Granter
	notifier host.Notifier
	cooldown *Cooldown
	userLock *lock.UserLock
	settings func() MarketSettings
	metrics  *metrics.MarketMetrics
}

// NewShopService creates a new ShopService instance
func NewShopService(
	l *ledger.Ledger,
	granter host.Granter,
	notifier host.Notifier,
	cooldown *Cooldown,
	userLock *lock.UserLock,
	settings func() MarketSettings,
	m *metrics.MarketMetrics,
) *ShopService {
	if userLock == nil {
		userLock = lock.NewUserLock()
	}
	return &ShopService{
		ledger:   l,
		granter:  granter,
		notifier: notifier,
		cooldown: cooldown,
		userLock: userLock,
		settings: settings,
		metrics:  m,
	}
}

// Catalog returns the current catalog.
func (s *ShopService) Catalog() *shop.Catalog {
	return s.settings().Catalog
}

// Enabled reports whether the market accepts purchases at all.
func (s *ShopService) Enabled() bool {
	return s.settings().Enabled
}

// CooldownRemaining returns the whole seconds until purchases reopen.
func (s *ShopService) CooldownRemaining() int64 {
	if s.cooldown == nil {
		return 0
	}
	return s.cooldown.Remaining()
}

// Balance returns a player's points. Balance inquiries are never blocked by
// the cooldown or a disabled market.
func (s *ShopService) Balance(playerID string) int64 {
	return s.ledger.GetScore(playerID)
}

// ListCatalog renders the full catalog listing.
func (s *ShopService) ListCatalog() string {
	cfg := s.settings()
	var b strings.Builder
	b.WriteString(cfg.Messages.ShopTitle)
	b.WriteString(cfg.Messages.ShopInstructions)
	b.WriteString(shop.RenderList(cfg.Catalog.Enabled(), cfg.Messages.ShopEntry))
	b.WriteString(cfg.Messages.ShopExample)
	return b.String()
}

// QuickList renders the compact one-line-per-item listing.
func (s *ShopService) QuickList() string {
	cfg := s.settings()
	return cfg.Messages.QuickShopTitle + shop.RenderQuick(cfg.Catalog.Enabled(), cfg.Messages.QuickShopEntry)
}

// Overview renders what a player sees when opening the shop without an item
// code: the cooldown warning if any, their balance with the quick list, and
// the full listing.
func (s *ShopService) Overview(playerID string) string {
	cfg := s.settings()
	var b strings.Builder
	if !cfg.Enabled {
		b.WriteString(cfg.Messages.MarketDisabled)
		b.WriteString("\n\n")
	} else if left := s.CooldownRemaining(); left > 0 {
		b.WriteString(messages.Format(cfg.Messages.MarketCooldownActive, left))
		b.WriteString("\n\n")
	}
	b.WriteString(messages.Format(cfg.Messages.CurrentPoints, s.Balance(playerID), s.QuickList()))
	b.WriteString("\n")
	b.WriteString(s.ListCatalog())
	return b.String()
}

// Purchase buys the item with the given code for a player. The item is
// granted before the ledger is debited, so a failed grant costs nothing.
// The returned result is never nil.
func (s *ShopService) Purchase(ctx context.Context, playerID, playerName, code string) (*PurchaseResult, error) {
	cfg := s.settings()
	res := &PurchaseResult{Code: shop.NormalizeCode(code)}

	if !cfg.Enabled {
		res.Message = cfg.Messages.MarketDisabled
		s.metrics.ObservePurchase("disabled", 0)
		return res, ErrMarketDisabled
	}
	if left := s.CooldownRemaining(); left > 0 {
		res.Remaining = left
		res.Message = messages.Format(cfg.Messages.MarketCooldownActive, left)
		s.metrics.ObservePurchase("cooldown", 0)
		return res, ErrMarketCooldown
	}

	entry, ok := cfg.Catalog.Lookup(res.Code)
	if !ok {
		res.Message = messages.Format(cfg.Messages.InvalidItem, strings.TrimSpace(code))
		s.hint(ctx, playerID, res.Message, cfg.HintDuration)
		s.metrics.ObservePurchase("invalid", 0)
		return res, ErrInvalidItem
	}
	res.Entry = entry
	res.Price = entry.Price

	if !s.userLock.LockWithTimeout(ctx, playerID, purchaseLockTimeout) {
		res.Message = cfg.Messages.PurchaseFailed
		s.metrics.ObservePurchase("busy", entry.Price)
		return res, lock.ErrLockTimeout
	}
	defer s.userLock.Unlock(playerID)

	balance := s.ledger.GetScore(playerID)
	res.Balance = balance
	if balance < entry.Price {
		res.Message = messages.Format(cfg.Messages.InsufficientPoints, entry.Price, balance)
		s.hint(ctx, playerID, res.Message, cfg.HintDuration)
		s.metrics.ObservePurchase("insufficient", entry.Price)
		return res, ErrInsufficientPoints
	}

	if err := s.grant(ctx, playerID, entry.Grant); err != nil {
		log.Warn().Err(err).
			Str("user_id", playerID).
			Str("code", entry.Code).
			Msg("Grant failed, purchase not charged")
		res.Message = cfg.Messages.InventoryFull
		s.hint(ctx, playerID, res.Message, cfg.HintDuration)
		s.metrics.ObservePurchase("grant_failed", entry.Price)
		return res, fmt.Errorf("%w: %w", ErrInventoryFull, err)
	}

	total, err := s.ledger.Spend(ctx, playerID, playerName, entry.Price, "bought "+entry.Code)
	if err != nil {
		// The item is already delivered; the balance moved underneath us.
		log.Error().Err(err).
			Str("user_id", playerID).
			Str("code", entry.Code).
			Msg("Failed to debit granted purchase")
		res.Message = cfg.Messages.PurchaseFailed
		s.metrics.ObservePurchase("debit_failed", entry.Price)
		return res, err
	}
	res.Balance = total
	res.Message = messages.Format(cfg.Messages.ItemPurchased, entry.DisplayName, total)
	s.hint(ctx, playerID, res.Message, cfg.HintDuration)
	s.metrics.ObservePurchase("ok", entry.Price)

	log.Info().
		Str("user_id", playerID).
		Str("player", playerName).
		Str("code", entry.Code).
		Int64("price", entry.Price).
		Int64("balance", total).
		Msg("Item purchased")
	return res, nil
}

func (s *ShopService) grant(ctx context.Context, playerID string, g shop.Grant) error {
	if s.granter == nil {
		return host.ErrUnknownGrant
	}
	if g.IsAmmo() {
		return s.granter.GrantAmmo(ctx, playerID, g.Ammo, g.Amount)
	}
	return s.granter.GrantItem(ctx, playerID, g.Item)
}

func (s *ShopService) hint(ctx context.Context, playerID, text string, d time.Duration) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, playerID, text, d); err != nil {
		log.Debug().Err(err).Str("user_id", playerID).Msg("Failed to show purchase hint")
	}
}
