package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"snake-market/internal/host"
	"snake-market/internal/ledger"
	"snake-market/internal/messages"
	"snake-market/internal/metrics"
	"snake-market/internal/model"
	"snake-market/internal/monitor"
)

// Award errors.
var (
	ErrDuplicateAward = errors.New("duplicate award within anti-spam window")
	ErrNothingToAward = errors.New("final score is not positive")
)

// AwardSettings are the award rules, read on every award.
type AwardSettings struct {
	AntiSpamDelay    time.Duration
	DoublePermission string
	Multiplier       float64
	HintDuration     time.Duration
	GameEnded        string
	GameEndedDoubled string
}

// AwardOutcome describes a credited award.
type AwardOutcome struct {
	PlayerID string
	Base     int64
	Credited int64
	Doubled  bool
	Total    int64
	Message  string
}

// AwardService turns finished runs into ledger credits. It implements
// monitor.EventSink.
type AwardService struct {
	ledger   *ledger.Ledger
	perms    host.Permissions
	notifier host.Notifier
	settings func() AwardSettings
	now      func() time.Time
	metrics  *metrics.MarketMetrics

	mu        sync.Mutex
	lastAward map[string]time.Time
}

// NewAwardService creates a new AwardService instance.
func NewAwardService(
	l *ledger.Ledger,
	perms host.Permissions,
	notifier host.Notifier,
	settings func() AwardSettings,
	now func() time.Time,
	m *metrics.MarketMetrics,
) *AwardService {
	if now == nil {
		now = time.Now
	}
	return &AwardService{
		ledger:    l,
		perms:     perms,
		notifier:  notifier,
		settings:  settings,
		now:       now,
		metrics:   m,
		lastAward: make(map[string]time.Time),
	}
}

// HandleEvent implements monitor.EventSink.
func (s *AwardService) HandleEvent(ctx context.Context, ev monitor.Event) {
	switch ev.Kind {
	case monitor.ScoreChanged:
		log.Debug().Str("player", ev.PlayerName).Int64("score", ev.Score).Msg("Score changed")
	case monitor.GameEnded:
		out, err := s.Award(ctx, ev.PlayerID, ev.PlayerName, ev.Score)
		switch {
		case errors.Is(err, ErrDuplicateAward):
			log.Info().Str("player", ev.PlayerName).Int64("score", ev.Score).Msg("Duplicate game end ignored")
		case errors.Is(err, ErrNothingToAward):
			log.Debug().Str("player", ev.PlayerName).Msg("Game ended without points")
		case err != nil:
			log.Error().Err(err).Str("player", ev.PlayerName).Msg("Failed to award points")
		default:
			log.Info().
				Str("player", ev.PlayerName).
				Str("user_id", out.PlayerID).
				Int64("base", out.Base).
				Int64("credited", out.Credited).
				Bool("doubled", out.Doubled).
				Int64("total", out.Total).
				Msg("Points awarded")
		}
	}
}

// Award credits a finished run of finalScore to the player.
func (s *AwardService) Award(ctx context.Context, playerID, playerName string, finalScore int64) (*AwardOutcome, error) {
	if finalScore <= 0 {
		s.metrics.ObserveAward("ignored", 0)
		return nil, ErrNothingToAward
	}
	cfg := s.settings()

	if !s.accept(playerID, cfg.AntiSpamDelay) {
		s.metrics.ObserveAward("duplicate", 0)
		return nil, ErrDuplicateAward
	}

	out := &AwardOutcome{PlayerID: playerID, Base: finalScore, Credited: finalScore}
	if s.hasDoublePermission(ctx, playerID, cfg.DoublePermission) {
		out.Credited = applyMultiplier(finalScore, cfg.Multiplier)
		out.Doubled = true
	}

	txType := model.TxTypeAward
	desc := fmt.Sprintf("run of %d", finalScore)
	if out.Doubled {
		txType = model.TxTypeAwardDoubled
	}
	total, err := s.ledger.Add(ctx, playerID, playerName, out.Credited, txType, desc)
	if err != nil {
		return nil, fmt.Errorf("failed to credit award: %w", err)
	}
	out.Total = total

	if out.Doubled {
		out.Message = messages.Format(cfg.GameEndedDoubled, out.Credited, out.Base, out.Total)
		s.metrics.ObserveAward("doubled", out.Credited)
	} else {
		out.Message = messages.Format(cfg.GameEnded, out.Credited, out.Total)
		s.metrics.ObserveAward("credited", out.Credited)
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, playerID, out.Message, cfg.HintDuration); err != nil {
			log.Warn().Err(err).Str("user_id", playerID).Msg("Failed to show award hint")
		}
	}
	return out, nil
}

// accept records an award time unless one was accepted within delay.
func (s *AwardService) accept(playerID string, delay time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if last, ok := s.lastAward[playerID]; ok && now.Sub(last) < delay {
		return false
	}
	s.lastAward[playerID] = now
	return true
}

// A failed permission check counts as no permission.
func (s *AwardService) hasDoublePermission(ctx context.Context, playerID, permission string) bool {
	if s.perms == nil || permission == "" {
		return false
	}
	ok, err := s.perms.HasPermission(ctx, playerID, permission)
	if err != nil {
		log.Warn().Err(err).Str("user_id", playerID).Str("permission", permission).Msg("Permission check failed")
		return false
	}
	return ok
}

// Forget clears the anti-spam record of a disconnected player.
func (s *AwardService) Forget(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastAward, playerID)
}

// applyMultiplier scales points by multiplier, truncating toward zero.
func applyMultiplier(points int64, multiplier float64) int64 {
	return decimal.NewFromInt(points).
		Mul(decimal.NewFromFloat(multiplier)).
		Truncate(0).
		IntPart()
}
