package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"snake-market/internal/config"
	"snake-market/internal/ledger"
	"snake-market/internal/metrics"
	"snake-market/internal/pkg/db"
	"snake-market/internal/repository"
)

// openLedger opens the configured backend and loads the ledger from it. The
// returned closers release the backend and run after the final flush.
func openLedger(ctx context.Context, cfg *config.Config, m *metrics.MarketMetrics, now func() time.Time) (*ledger.Ledger, []func(), error) {
	opts := []ledger.Option{ledger.WithClock(now), ledger.WithMetrics(m)}

	switch cfg.Ledger.Driver {
	case config.DriverFile:
		store := repository.NewFileStore(cfg.Ledger.Path)
		log.Info().Str("path", store.Path()).Msg("Using file ledger")
		return ledger.Open(ctx, store, opts...), nil, nil

	case config.DriverSQLite:
		store, err := repository.NewSQLiteStore(ctx, cfg.Ledger.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite ledger: %w", err)
		}
		log.Info().Str("path", cfg.Ledger.Path).Msg("Using sqlite ledger")
		closeStore := func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close sqlite ledger")
			}
		}
		return ledger.Open(ctx, store, append(opts, ledger.WithJournal(store))...), []func(){closeStore}, nil

	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		store := repository.NewPostgresStore(pool.Pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		log.Info().Str("database", cfg.Database.Name).Msg("Using postgres ledger")
		return ledger.Open(ctx, store, append(opts, ledger.WithJournal(store))...), []func(){pool.Close}, nil

	case config.DriverMemory:
		log.Warn().Msg("Using in-memory ledger, points will not survive a restart")
		return ledger.Open(ctx, repository.NewMemoryStore(), opts...), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown ledger driver %q", cfg.Ledger.Driver)
	}
}
