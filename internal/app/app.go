// Package app assembles the market service from configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"snake-market/internal/api"
	"snake-market/internal/bot"
	"snake-market/internal/command"
	"snake-market/internal/config"
	"snake-market/internal/host"
	"snake-market/internal/host/bridge"
	"snake-market/internal/ledger"
	"snake-market/internal/metrics"
	"snake-market/internal/monitor"
	"snake-market/internal/pkg/lock"
	"snake-market/internal/service"
	"snake-market/internal/shop"
)

const shutdownTimeout = 5 * time.Second

// ErrEgressDisabled is returned for grants when no host base URL is set.
var ErrEgressDisabled = errors.New("host egress not configured")

// Option configures an App.
type Option func(*App)

// WithGranter overrides the host item granter.
func WithGranter(g host.Granter) Option {
	return func(a *App) { a.granter = g }
}

// WithNotifier overrides the host hint notifier.
func WithNotifier(n host.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithClock overrides the time source of every component.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// App holds the configuration and every component of the service.
type App struct {
	live    *config.Live
	now     func() time.Time
	catalog atomic.Pointer[shop.Catalog]

	granter  host.Granter
	notifier host.Notifier

	Ledger     *ledger.Ledger
	World      *bridge.World
	Tracker    *monitor.Tracker
	Poller     *monitor.Poller
	Cooldown   *service.Cooldown
	Awards     *service.AwardService
	Shop       *service.ShopService
	Ranking    *service.RankingService
	Dispatcher *command.Dispatcher
	API        *api.Server

	httpServer *http.Server
	bot        *bot.Bot
	closers    []func()
}

// New builds the service. Only a failure to open the ledger backend is an
// error; everything else degrades and logs.
func New(ctx context.Context, live *config.Live, opts ...Option) (*App, error) {
	a := &App{live: live, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	cfg := live.Current()
	m := metrics.Market()

	l, closers, err := openLedger(ctx, cfg, m, a.now)
	if err != nil {
		return nil, err
	}
	a.Ledger = l
	a.closers = closers

	var fetcher bridge.Fetcher
	if cfg.Host.BaseURL != "" {
		client := bridge.NewClient(cfg.Host.BaseURL, cfg.Host.Token, cfg.Host.Timeout)
		fetcher = client
		if a.granter == nil {
			a.granter = client
		}
		if a.notifier == nil {
			a.notifier = client
		}
	} else {
		log.Warn().Msg("host.base_url not set, grants will fail and hints are only logged")
		if a.granter == nil {
			a.granter = disabledEgress{}
		}
		if a.notifier == nil {
			a.notifier = disabledEgress{}
		}
	}
	a.World = bridge.NewWorld(cfg.Host.SnapshotMaxAge, fetcher, a.now)

	a.catalog.Store(shop.Build(cfg.Market.Items))
	live.OnChange(a.configChanged)

	userLock := lock.NewUserLock()
	a.Tracker = monitor.NewTracker(cfg.Monitor.StaleAfter)
	a.Cooldown = service.NewCooldown(func() time.Duration {
		return a.cfg().Market.CooldownAfterRoundStart
	}, a.now)
	a.Awards = service.NewAwardService(l, a.World, a.notifier, a.awardSettings, a.now, m)
	a.Shop = service.NewShopService(l, a.granter, a.notifier, a.Cooldown, userLock, a.marketSettings, m)
	a.Ranking = service.NewRankingService(l, func() (string, string) {
		msgs := a.cfg().Messages
		return msgs.ScoreBoard, msgs.ScoreBoardLine
	})
	a.Dispatcher = command.NewDispatcher(a.Shop, a.Ranking, func() config.MessagesConfig {
		return a.cfg().Messages
	})

	a.Poller = monitor.NewPoller(a.World, a.Tracker, a.Awards, monitor.PollerConfig{
		Interval:        cfg.Monitor.Interval,
		DetectionRadius: cfg.Monitor.DetectionRadius,
		MaxSessionAge:   cfg.Monitor.MaxSessionAge,
		ScoreLabels:     cfg.Monitor.ScoreLabels,
		Qualifier: func(item string) bool {
			return host.SubstringQualifier(a.cfg().Monitor.TriggerItems)(item)
		},
	}, monitor.WithPollerClock(a.now), monitor.WithPollerMetrics(m))

	a.API = api.NewServer(api.Options{
		Token:             cfg.Host.Token,
		RequestTimeout:    cfg.HTTP.RequestTimeout,
		CommandsPerMinute: cfg.HTTP.CommandsPerMinute,
		CommandBurst:      cfg.HTTP.CommandBurst,
	}, a.World, a, a.Dispatcher, l, a.Shop)
	a.httpServer = &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      a.API.Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	if cfg.Bot.Token != "" {
		b, err := bot.New(&bot.Dependencies{
			Token:          cfg.Bot.Token,
			Config:         a.cfg,
			Ledger:         l,
			RankingService: a.Ranking,
			ShopService:    a.Shop,
			UserLock:       userLock,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to create Telegram bot, continuing without it")
		} else {
			a.bot = b
		}
	}

	log.Info().
		Str("ledger", cfg.Ledger.Driver).
		Int("catalog_items", len(a.catalog.Load().Enabled())).
		Bool("market_enabled", cfg.Market.Enabled).
		Bool("bot", a.bot != nil).
		Msg(cfg.Messages.SystemEnabled)
	return a, nil
}

func (a *App) cfg() *config.Config {
	return a.live.Current()
}

func (a *App) configChanged(cfg *config.Config) {
	a.catalog.Store(shop.Build(cfg.Market.Items))
}

func (a *App) awardSettings() service.AwardSettings {
	cfg := a.cfg()
	return service.AwardSettings{
		AntiSpamDelay:    cfg.Award.AntiSpamDelay,
		DoublePermission: cfg.Award.DoublePermission,
		Multiplier:       cfg.Award.Multiplier,
		HintDuration:     cfg.Award.HintDuration,
		GameEnded:        cfg.Messages.GameEnded,
		GameEndedDoubled: cfg.Messages.GameEndedDoubled,
	}
}

func (a *App) marketSettings() service.MarketSettings {
	cfg := a.cfg()
	return service.MarketSettings{
		Enabled:      cfg.Market.Enabled,
		Catalog:      a.catalog.Load(),
		Messages:     cfg.Messages,
		HintDuration: cfg.Market.HintDuration,
	}
}

// PlayerLeft implements api.Hooks.
func (a *App) PlayerLeft(playerID string) {
	a.Tracker.Forget(playerID)
	a.Awards.Forget(playerID)
	log.Debug().Str("user_id", playerID).Msg("Player left, session cleared")
}

// RoundStarted implements api.Hooks.
func (a *App) RoundStarted() {
	a.Cooldown.RoundStarted()
	log.Info().Dur("cooldown", a.cfg().Market.CooldownAfterRoundStart).Msg("Round started, market cooldown reset")
}

// Handler returns the HTTP handler of the bridge and read API.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the poller, the HTTP listener and the bot, and blocks until ctx
// is cancelled or the listener fails. It always shuts everything down before
// returning.
func (a *App) Run(ctx context.Context) error {
	a.Poller.Start(ctx)
	log.Info().Dur("interval", a.cfg().Monitor.Interval).Msg(a.cfg().Messages.MonitoringStarted)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.httpServer.Addr).Msg("HTTP server listening")
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	if a.bot != nil {
		go a.bot.Start()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	a.Shutdown()
	return runErr
}

// Shutdown stops the poller, the HTTP server and the bot, then flushes the
// ledger and closes the backend.
func (a *App) Shutdown() {
	a.Poller.Stop()
	log.Info().Msg(a.cfg().Messages.MonitoringStopped)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown")
	}
	if a.bot != nil {
		a.bot.Stop()
	}
	if err := a.Ledger.Flush(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to flush ledger on shutdown")
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// disabledEgress stands in for the host when no base URL is configured.
type disabledEgress struct{}

func (disabledEgress) GrantItem(context.Context, string, string) error {
	return ErrEgressDisabled
}

func (disabledEgress) GrantAmmo(context.Context, string, string, int) error {
	return ErrEgressDisabled
}

func (disabledEgress) Notify(_ context.Context, playerID, text string, _ time.Duration) error {
	log.Info().Str("user_id", playerID).Str("hint", command.Clean(text)).Msg("Hint")
	return nil
}
