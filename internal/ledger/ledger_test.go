package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"snake-market/internal/model"
	"snake-market/internal/repository"
)

// flakyStore fails Save while failing is set.
type flakyStore struct {
	mu      sync.Mutex
	inner   *repository.MemoryStore
	failing bool
	loadErr error
}

func newFlakyStore() *flakyStore {
	return &flakyStore{inner: repository.NewMemoryStore()}
}

func (s *flakyStore) setFailing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = v
}

func (s *flakyStore) Load(ctx context.Context) ([]model.ScoreRecord, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.inner.Load(ctx)
}

func (s *flakyStore) Save(ctx context.Context, records []model.ScoreRecord) error {
	s.mu.Lock()
	failing := s.failing
	s.mu.Unlock()
	if failing {
		return errors.New("disk full")
	}
	return s.inner.Save(ctx, records)
}

type memJournal struct {
	mu  sync.Mutex
	txs []*model.Transaction
	err error
}

func (j *memJournal) Append(_ context.Context, tx *model.Transaction) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.txs = append(j.txs, tx)
	return nil
}

func (j *memJournal) ListByUser(_ context.Context, userID string, limit int) ([]*model.Transaction, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*model.Transaction
	for i := len(j.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if j.txs[i].UserID == userID {
			out = append(out, j.txs[i])
		}
	}
	return out, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestLedger_GetScoreAbsentIsZero(t *testing.T) {
	l := Open(context.Background(), repository.NewMemoryStore())
	assert.Equal(t, int64(0), l.GetScore("nobody"))
	_, ok := l.Get("nobody")
	assert.False(t, ok)
	assert.Equal(t, 0, l.Len())
}

func TestLedger_SetScoreUpserts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 5, 10, 0, 0, 0, time.UTC)
	store := repository.NewMemoryStore()
	l := Open(ctx, store, WithClock(fixedClock(now)))

	require.NoError(t, l.SetScore(ctx, "p1", "Alice", 25))
	require.NoError(t, l.SetScore(ctx, "p1", "Alicia", 30))

	rec, ok := l.Get("p1")
	require.True(t, ok)
	assert.Equal(t, "Alicia", rec.LastKnownName)
	assert.Equal(t, int64(30), rec.TotalScore)
	assert.True(t, rec.LastPlayed.Equal(now))
	assert.Equal(t, 2, store.Saves(), "every mutation persists")

	assert.ErrorIs(t, l.SetScore(ctx, "p1", "", -1), ErrInvalidAmount)
	assert.Equal(t, int64(30), l.GetScore("p1"))
}

func TestLedger_AddKeepsNameWhenEmpty(t *testing.T) {
	ctx := context.Background()
	l := Open(ctx, repository.NewMemoryStore())

	total, err := l.Add(ctx, "p1", "Alice", 12, model.TxTypeAward, "")
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)

	total, err = l.Add(ctx, "p1", "", 8, model.TxTypeAward, "")
	require.NoError(t, err)
	assert.Equal(t, int64(20), total)

	rec, _ := l.Get("p1")
	assert.Equal(t, "Alice", rec.LastKnownName)
}

func TestLedger_SpendRejectsOverdraw(t *testing.T) {
	ctx := context.Background()
	l := Open(ctx, repository.NewMemoryStore())

	_, err := l.Spend(ctx, "p1", "Alice", 10, "Medkit")
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	assert.Equal(t, 0, l.Len(), "failed spend creates no record")

	_, err = l.Add(ctx, "p1", "Alice", 15, model.TxTypeAward, "")
	require.NoError(t, err)

	left, err := l.Spend(ctx, "p1", "Alice", 10, "Medkit")
	require.NoError(t, err)
	assert.Equal(t, int64(5), left)

	_, err = l.Spend(ctx, "p1", "Alice", 10, "Medkit")
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	assert.Equal(t, int64(5), l.GetScore("p1"))

	_, err = l.Spend(ctx, "p1", "Alice", -1, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLedger_TopNOrdering(t *testing.T) {
	ctx := context.Background()
	l := Open(ctx, repository.NewMemoryStore())
	for id, total := range map[string]int64{"c": 10, "a": 10, "b": 30, "d": 5} {
		require.NoError(t, l.SetScore(ctx, id, id, total))
	}

	top := l.TopN(3)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{top[0].UserID, top[1].UserID, top[2].UserID})

	assert.Len(t, l.TopN(10), 4, "k larger than the ledger returns everything")
	assert.Empty(t, l.TopN(0))
}

func TestLedger_PersistFailureKeepsStateAndRetries(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	l := Open(ctx, store)

	store.setFailing(true)
	total, err := l.Add(ctx, "p1", "Alice", 20, model.TxTypeAward, "")
	require.NoError(t, err, "persistence failure is not surfaced to callers")
	assert.Equal(t, int64(20), total)
	assert.Equal(t, int64(20), l.GetScore("p1"))
	assert.True(t, l.Dirty())

	assert.Error(t, l.Flush(ctx))

	store.setFailing(false)
	require.NoError(t, l.Flush(ctx))
	assert.False(t, l.Dirty())

	saved, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, int64(20), saved[0].TotalScore)

	require.NoError(t, l.Flush(ctx), "flush of a clean ledger is a no-op")
}

func TestLedger_NextMutationRewritesAfterFailure(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	l := Open(ctx, store)

	store.setFailing(true)
	_, _ = l.Add(ctx, "p1", "Alice", 20, model.TxTypeAward, "")
	store.setFailing(false)
	_, _ = l.Add(ctx, "p2", "Bob", 5, model.TxTypeAward, "")

	saved, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, saved, 2)
	assert.False(t, l.Dirty())
}

func TestLedger_CorruptStoreStartsEmpty(t *testing.T) {
	store := newFlakyStore()
	store.loadErr = repository.ErrCorruptStore
	l := Open(context.Background(), store)
	assert.Equal(t, 0, l.Len())
}

func TestLedger_ReloadFromFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snake_scores.json")
	played := time.Date(2025, 2, 1, 8, 30, 0, 0, time.UTC)

	l := Open(ctx, repository.NewFileStore(path), WithClock(fixedClock(played)))
	_, err := l.Add(ctx, "p1", "Alice", 42, model.TxTypeAward, "")
	require.NoError(t, err)

	reopened := Open(ctx, repository.NewFileStore(path))
	rec, ok := reopened.Get("p1")
	require.True(t, ok)
	assert.Equal(t, "Alice", rec.LastKnownName)
	assert.Equal(t, int64(42), rec.TotalScore)
	assert.True(t, rec.LastPlayed.Equal(played))
}

func TestLedger_Journal(t *testing.T) {
	ctx := context.Background()
	j := &memJournal{}
	l := Open(ctx, repository.NewMemoryStore(), WithJournal(j))

	_, err := l.Add(ctx, "p1", "Alice", 40, model.TxTypeAwardDoubled, "doubled from 20")
	require.NoError(t, err)
	_, err = l.Spend(ctx, "p1", "Alice", 35, "Armor")
	require.NoError(t, err)
	require.NoError(t, l.SetScore(ctx, "p1", "Alice", 5)) // unchanged total, no entry

	hist, err := l.History(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, model.TxTypePurchase, hist[0].Type)
	assert.Equal(t, int64(-35), hist[0].Amount)
	require.NotNil(t, hist[0].Description)
	assert.Equal(t, "Armor", *hist[0].Description)
	assert.Equal(t, int64(40), hist[1].Amount)

	// Journal failures never roll back the mutation.
	j.err = errors.New("journal down")
	total, err := l.Add(ctx, "p1", "Alice", 1, model.TxTypeAward, "")
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)
}

func TestLedger_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	l := Open(ctx, repository.NewMemoryStore())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Add(ctx, "p1", "Alice", 2, model.TxTypeAward, "")
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), l.GetScore("p1"))
}

// TestLedgerBalanceNeverNegativeProperty checks that any sequence of adds and
// spends leaves every balance non-negative and equal to a simple model.
func TestLedgerBalanceNeverNegativeProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		l := Open(ctx, repository.NewMemoryStore())
		expected := map[string]int64{}

		ops := rapid.IntRange(1, 40).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			id := rapid.SampledFrom([]string{"a", "b", "c"}).Draw(rt, "id")
			amount := rapid.Int64Range(0, 100).Draw(rt, "amount")
			if rapid.Bool().Draw(rt, "spend") {
				_, err := l.Spend(ctx, id, id, amount, "")
				if expected[id] >= amount {
					if err != nil {
						rt.Fatalf("spend %d from %d failed: %v", amount, expected[id], err)
					}
					expected[id] -= amount
				} else if !errors.Is(err, ErrInsufficientPoints) {
					rt.Fatalf("overdraw of %d from %d returned %v", amount, expected[id], err)
				}
			} else {
				if _, err := l.Add(ctx, id, id, amount, model.TxTypeAward, ""); err != nil {
					rt.Fatalf("add failed: %v", err)
				}
				expected[id] += amount
			}
		}

		for id, want := range expected {
			if got := l.GetScore(id); got != want || got < 0 {
				rt.Fatalf("balance of %s: expected %d, got %d", id, want, got)
			}
		}
	})
}

// TestTopNSortedProperty checks TopN is descending with ascending-id ties and
// never longer than requested.
func TestTopNSortedProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		l := Open(ctx, repository.NewMemoryStore())

		n := rapid.IntRange(0, 20).Draw(rt, "players")
		for i := 0; i < n; i++ {
			id := rapid.StringMatching(`[a-z]{1,4}`).Draw(rt, "id")
			total := rapid.Int64Range(0, 50).Draw(rt, "total")
			_ = l.SetScore(ctx, id, id, total)
		}
		k := rapid.IntRange(0, 25).Draw(rt, "k")

		top := l.TopN(k)
		wantLen := k
		if l.Len() < k {
			wantLen = l.Len()
		}
		if len(top) != wantLen {
			rt.Fatalf("TopN(%d) returned %d records, expected %d", k, len(top), wantLen)
		}
		for i := 1; i < len(top); i++ {
			prev, cur := top[i-1], top[i]
			if prev.TotalScore < cur.TotalScore {
				rt.Fatalf("not descending at %d: %d < %d", i, prev.TotalScore, cur.TotalScore)
			}
			if prev.TotalScore == cur.TotalScore && prev.UserID > cur.UserID {
				rt.Fatalf("tie not ordered by id at %d: %s > %s", i, prev.UserID, cur.UserID)
			}
		}
	})
}
