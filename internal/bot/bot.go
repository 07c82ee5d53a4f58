// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"snake-market/internal/config"
	"snake-market/internal/handler"
	"snake-market/internal/ledger"
	"snake-market/internal/pkg/lock"
	"snake-market/internal/service"
	"snake-market/internal/shop"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg func() *config.Config

	accountHandler *handler.AccountHandler
	adminHandler   *handler.AdminHandler
	rankingHandler *handler.RankingHandler
	shopHandler    *handler.ShopHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Token          string
	Config         func() *config.Config
	Ledger         *ledger.Ledger
	RankingService *service.RankingService
	ShopService    *service.ShopService
	UserLock       *lock.UserLock
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Telegram handler failed")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:            teleBot,
		cfg:            deps.Config,
		accountHandler: handler.NewAccountHandler(deps.Ledger),
		adminHandler:   handler.NewAdminHandler(deps.Ledger, deps.UserLock),
		rankingHandler: handler.NewRankingHandler(deps.RankingService),
		shopHandler:    handler.NewShopHandler(deps.ShopService),
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(recoverPanics())
	b.bot.Use(newAccess(b.cfg).middleware())
	b.bot.Use(logUpdates())
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	b.bot.Handle("/top", b.rankingHandler.HandleTop)
	b.bot.Handle("/points", b.accountHandler.HandlePoints)
	b.bot.Handle("/history", b.accountHandler.HandleHistory)
	b.bot.Handle("/shop", b.shopHandler.HandleShop)

	adminGroup := b.bot.Group()
	adminGroup.Use(adminOnly(b.cfg))
	adminGroup.Handle("/points_add", b.adminHandler.HandleAdminAdd)
	adminGroup.Handle("/points_set", b.adminHandler.HandleAdminSet)

	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// handleCallback routes callbacks to appropriate handlers.
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	// Telebot v3 may add a \f prefix to callback data
	data := strings.TrimPrefix(callback.Data, "\f")
	log.Debug().Str("data", data).Msg("Callback received")

	if data == shop.CallbackShopRefresh || strings.HasPrefix(data, shop.CallbackShopItem) {
		return b.shopHandler.HandleShopCallback(c)
	}
	return c.Respond()
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
