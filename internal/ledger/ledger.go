// Package ledger holds player point balances and persists them through a
// repository.Store. It is the only source of truth for balances.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"snake-market/internal/metrics"
	"snake-market/internal/model"
	"snake-market/internal/repository"
)

// Ledger errors.
var (
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrInvalidAmount      = errors.New("invalid amount")
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithJournal records every mutation in j.
func WithJournal(j repository.Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

// WithClock overrides the time source used for last-played stamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithMetrics reports persistence failures and player counts to m.
func WithMetrics(m *metrics.MarketMetrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// Ledger is a mutex-guarded map of score records. Every mutation rewrites the
// whole store; a failed save keeps the in-memory change and marks the ledger
// dirty so the next mutation or Flush retries.
type Ledger struct {
	mu      sync.Mutex
	store   repository.Store
	journal repository.Journal
	records map[string]*model.ScoreRecord
	dirty   bool
	now     func() time.Time
	metrics *metrics.MarketMetrics
}

// Open creates a Ledger and loads it from store. An unreadable or corrupt
// store is logged and replaced with an empty ledger.
func Open(ctx context.Context, store repository.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		records: make(map[string]*model.ScoreRecord),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	records, err := store.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load score ledger, starting empty")
		records = nil
	}
	for i := range records {
		r := records[i]
		l.records[r.UserID] = &r
	}
	l.metrics.SetLedgerPlayers(len(l.records))

	log.Info().Int("players", len(l.records)).Msg("Score ledger loaded")
	return l
}

// GetScore returns the balance of id, or 0 if it has no record.
func (l *Ledger) GetScore(id string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.records[id]; ok {
		return r.TotalScore
	}
	return 0
}

// Get returns a copy of the record for id.
func (l *Ledger) Get(id string) (model.ScoreRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[id]
	if !ok {
		return model.ScoreRecord{}, false
	}
	return *r, true
}

// SetScore sets the balance of id to total, creating the record if needed.
func (l *Ledger) SetScore(ctx context.Context, id, name string, total int64) error {
	_, err := l.SetScoreAs(ctx, id, name, total, model.TxTypeAdminSet, "")
	return err
}

// SetScoreAs sets the balance of id to total and journals the difference
// under txType. It returns the new balance.
func (l *Ledger) SetScoreAs(ctx context.Context, id, name string, total int64, txType, desc string) (int64, error) {
	if total < 0 {
		return 0, fmt.Errorf("%w: total %d", ErrInvalidAmount, total)
	}
	return l.mutate(ctx, id, name, txType, desc, func(int64) (int64, error) {
		return total, nil
	})
}

// Add credits delta points to id and returns the new balance. A negative delta
// that would overdraw the balance fails with ErrInsufficientPoints.
func (l *Ledger) Add(ctx context.Context, id, name string, delta int64, txType, desc string) (int64, error) {
	return l.mutate(ctx, id, name, txType, desc, func(cur int64) (int64, error) {
		next := cur + delta
		if next < 0 {
			return cur, ErrInsufficientPoints
		}
		return next, nil
	})
}

// Spend debits price from id and returns the new balance.
func (l *Ledger) Spend(ctx context.Context, id, name string, price int64, desc string) (int64, error) {
	if price < 0 {
		return 0, fmt.Errorf("%w: price %d", ErrInvalidAmount, price)
	}
	return l.mutate(ctx, id, name, model.TxTypePurchase, desc, func(cur int64) (int64, error) {
		if cur < price {
			return cur, ErrInsufficientPoints
		}
		return cur - price, nil
	})
}

func (l *Ledger) mutate(ctx context.Context, id, name, txType, desc string, fn func(cur int64) (int64, error)) (int64, error) {
	if id == "" {
		return 0, fmt.Errorf("%w: empty player id", ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var cur int64
	rec, ok := l.records[id]
	if ok {
		cur = rec.TotalScore
	}

	next, err := fn(cur)
	if err != nil {
		return cur, err
	}

	if !ok {
		rec = &model.ScoreRecord{UserID: id}
		l.records[id] = rec
	}
	if name != "" {
		rec.LastKnownName = name
	}
	rec.TotalScore = next
	now := l.now()
	rec.LastPlayed = now

	l.persistLocked(ctx)
	l.metrics.SetLedgerPlayers(len(l.records))

	if l.journal != nil && next != cur {
		l.appendJournal(ctx, id, next-cur, txType, desc, now)
	}
	return next, nil
}

// persistLocked writes every record. Callers hold l.mu.
func (l *Ledger) persistLocked(ctx context.Context) error {
	if err := l.store.Save(ctx, l.snapshotLocked()); err != nil {
		l.dirty = true
		l.metrics.IncPersistFailure()
		log.Warn().Err(err).Int("players", len(l.records)).Msg("Failed to persist score ledger, will retry")
		return err
	}
	l.dirty = false
	return nil
}

func (l *Ledger) appendJournal(ctx context.Context, id string, amount int64, txType, desc string, at time.Time) {
	tx := &model.Transaction{
		UserID:    id,
		Amount:    amount,
		Type:      txType,
		CreatedAt: at,
	}
	if desc != "" {
		tx.Description = &desc
	}
	if err := l.journal.Append(ctx, tx); err != nil {
		log.Warn().Err(err).
			Str("user_id", id).
			Str("type", txType).
			Int64("amount", amount).
			Msg("Failed to journal ledger change")
	}
}

func (l *Ledger) snapshotLocked() []model.ScoreRecord {
	out := make([]model.ScoreRecord, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// TopN returns up to n records by descending total. Ties are ordered by
// player id ascending. n <= 0 returns nothing.
func (l *Ledger) TopN(n int) []model.ScoreRecord {
	if n <= 0 {
		return nil
	}
	l.mu.Lock()
	out := l.snapshotLocked()
	l.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalScore > out[j].TotalScore
	})
	if n < len(out) {
		out = out[:n]
	}
	return out
}

// Len returns the number of players with a record.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Dirty reports whether the last save failed.
func (l *Ledger) Dirty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dirty
}

// Flush retries a failed save. It is a no-op when the store is current.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dirty {
		return nil
	}
	if err := l.persistLocked(ctx); err != nil {
		return fmt.Errorf("failed to flush score ledger: %w", err)
	}
	log.Info().Msg("Score ledger flushed")
	return nil
}

// History returns the most recent journal entries for id. It returns nothing
// when no journal is configured.
func (l *Ledger) History(ctx context.Context, id string, limit int) ([]*model.Transaction, error) {
	if l.journal == nil {
		return nil, nil
	}
	return l.journal.ListByUser(ctx, id, limit)
}
