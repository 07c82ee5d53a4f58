package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snake-market/internal/config"
	"snake-market/internal/host"
	"snake-market/internal/ledger"
	"snake-market/internal/model"
	"snake-market/internal/pkg/lock"
	"snake-market/internal/repository"
	"snake-market/internal/shop"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type env struct {
	cfg      *config.Config
	clock    *clock
	host     *host.Memory
	ledger   *ledger.Ledger
	cooldown *Cooldown
	award    *AwardService
	shop     *ShopService
	ranking  *RankingService
	userLock *lock.UserLock
}

func newEnv(t *testing.T, records ...model.ScoreRecord) *env {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	e := &env{cfg: cfg, clock: &clock{now: t0}, host: host.NewMemory(), userLock: lock.NewUserLock()}
	e.ledger = ledger.Open(context.Background(), repository.NewMemoryStore(records...), ledger.WithClock(e.clock.Now))
	e.cooldown = NewCooldown(func() time.Duration { return e.cfg.Market.CooldownAfterRoundStart }, e.clock.Now)

	e.award = NewAwardService(e.ledger, e.host, e.host, func() AwardSettings {
		return AwardSettings{
			AntiSpamDelay:    e.cfg.Award.AntiSpamDelay,
			DoublePermission: e.cfg.Award.DoublePermission,
			Multiplier:       e.cfg.Award.Multiplier,
			HintDuration:     e.cfg.Award.HintDuration,
			GameEnded:        e.cfg.Messages.GameEnded,
			GameEndedDoubled: e.cfg.Messages.GameEndedDoubled,
		}
	}, e.clock.Now, nil)

	catalog := shop.Build(cfg.Market.Items)
	e.shop = NewShopService(e.ledger, e.host, e.host, e.cooldown, e.userLock, func() MarketSettings {
		return MarketSettings{
			Enabled:      e.cfg.Market.Enabled,
			Catalog:      catalog,
			Messages:     e.cfg.Messages,
			HintDuration: e.cfg.Market.HintDuration,
		}
	}, nil)

	e.ranking = NewRankingService(e.ledger, func() (string, string) {
		return e.cfg.Messages.ScoreBoard, e.cfg.Messages.ScoreBoardLine
	})
	return e
}

func (e *env) join(id string) {
	e.host.PutPlayer(host.Player{ID: id, Name: "name-" + id, Alive: true, Connected: true})
}

func TestAward_Normal(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	out, err := e.award.Award(ctx, "p1", "Alice", 12)
	require.NoError(t, err)
	assert.Equal(t, int64(12), out.Credited)
	assert.False(t, out.Doubled)
	assert.Equal(t, int64(12), out.Total)
	assert.Contains(t, out.Message, "You earned 12 points!")
	assert.Contains(t, out.Message, "Total points: 12")

	hints := e.host.Hints()
	require.Len(t, hints, 1)
	assert.Equal(t, 8*time.Second, hints[0].Duration)
	assert.Equal(t, int64(12), e.ledger.GetScore("p1"))
}

func TestAward_DoubledWithPermission(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.host.GrantPermission("p1", "snake.doublexp")

	out, err := e.award.Award(ctx, "p1", "Alice", 20)
	require.NoError(t, err)
	assert.True(t, out.Doubled)
	assert.Equal(t, int64(40), out.Credited)
	assert.Equal(t, int64(40), e.ledger.GetScore("p1"))
	assert.Contains(t, out.Message, "40 points (doubled from 20)")
	assert.Contains(t, out.Message, "Total points: 40")
}

func TestAward_MultiplierTruncates(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.cfg.Award.Multiplier = 1.5
	e.host.GrantPermission("p1", "snake.doublexp")

	out, err := e.award.Award(ctx, "p1", "Alice", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(10), out.Credited)
}

func TestAward_AntiSpam(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.award.Award(ctx, "p1", "Alice", 10)
	require.NoError(t, err)

	e.clock.Advance(4 * time.Second)
	_, err = e.award.Award(ctx, "p1", "Alice", 10)
	assert.ErrorIs(t, err, ErrDuplicateAward)
	assert.Equal(t, int64(10), e.ledger.GetScore("p1"))

	// Other players are unaffected.
	_, err = e.award.Award(ctx, "p2", "Bob", 3)
	require.NoError(t, err)

	e.clock.Advance(time.Second)
	_, err = e.award.Award(ctx, "p1", "Alice", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(20), e.ledger.GetScore("p1"))
}

func TestAward_ForgetClearsAntiSpam(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.award.Award(ctx, "p1", "Alice", 10)
	require.NoError(t, err)
	e.award.Forget("p1")
	_, err = e.award.Award(ctx, "p1", "Alice", 10)
	require.NoError(t, err)
}

func TestAward_NothingToAward(t *testing.T) {
	e := newEnv(t)
	_, err := e.award.Award(context.Background(), "p1", "Alice", 0)
	assert.ErrorIs(t, err, ErrNothingToAward)
	_, ok := e.ledger.Get("p1")
	assert.False(t, ok)
	assert.Empty(t, e.host.Hints())
}

func TestCooldown(t *testing.T) {
	c := &clock{now: t0}
	cd := NewCooldown(func() time.Duration { return 180 * time.Second }, c.Now)

	assert.Equal(t, int64(0), cd.Remaining(), "no cooldown before the first round")
	assert.False(t, cd.Active())

	cd.RoundStarted()
	assert.Equal(t, int64(180), cd.Remaining())

	c.Advance(134*time.Second + 500*time.Millisecond)
	assert.Equal(t, int64(46), cd.Remaining(), "rounded up")

	c.Advance(46 * time.Second)
	assert.Equal(t, int64(0), cd.Remaining())
	assert.False(t, cd.Active())
}

func TestPurchase_InsufficientPoints(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.join("p1")

	res, err := e.shop.Purchase(ctx, "p1", "Alice", "medkit")
	require.ErrorIs(t, err, ErrInsufficientPoints)
	require.NotNil(t, res)
	assert.Equal(t, "Insufficient points!\nRequired: 10 points\nCurrent: 0 points", res.Message)
	assert.Equal(t, int64(0), e.ledger.GetScore("p1"))
	assert.Empty(t, e.host.Grants())

	hints := e.host.Hints()
	require.Len(t, hints, 1)
	assert.Equal(t, 4*time.Second, hints[0].Duration)
}

func TestPurchase_Success(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, model.ScoreRecord{UserID: "p1", LastKnownName: "Alice", TotalScore: 25})
	e.join("p1")

	res, err := e.shop.Purchase(ctx, "p1", "Alice", "  MedKit ")
	require.NoError(t, err)
	assert.Equal(t, "medkit", res.Code)
	assert.Equal(t, int64(10), res.Price)
	assert.Equal(t, int64(15), res.Balance)
	assert.Equal(t, "Medkit purchased!\nRemaining points: 15", res.Message)
	assert.Equal(t, int64(15), e.ledger.GetScore("p1"))

	require.Len(t, e.host.Grants(), 1)
	assert.Equal(t, host.Grant{PlayerID: "p1", Kind: "Medkit", Amount: 1}, e.host.Grants()[0])
}

func TestPurchase_Ammo(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, model.ScoreRecord{UserID: "p1", TotalScore: 15})
	e.join("p1")

	_, err := e.shop.Purchase(ctx, "p1", "Alice", "ammo556")
	require.NoError(t, err)
	assert.Equal(t, []host.Grant{{PlayerID: "p1", Kind: "Nato556", Amount: 60, Ammo: true}}, e.host.Grants())
	assert.Equal(t, int64(0), e.ledger.GetScore("p1"))
}

func TestPurchase_GrantFailureDoesNotDebit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, model.ScoreRecord{UserID: "p1", TotalScore: 100})
	e.join("p1")
	e.host.FailGrants(host.ErrInventoryFull)

	res, err := e.shop.Purchase(ctx, "p1", "Alice", "scp500")
	require.ErrorIs(t, err, ErrInventoryFull)
	assert.Equal(t, e.cfg.Messages.InventoryFull, res.Message)
	assert.Equal(t, int64(100), e.ledger.GetScore("p1"))
}

func TestPurchase_UnknownPlayerIsNotCharged(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, model.ScoreRecord{UserID: "ghost", TotalScore: 100})

	_, err := e.shop.Purchase(ctx, "ghost", "Ghost", "radio")
	require.ErrorIs(t, err, ErrInventoryFull)
	assert.Equal(t, int64(100), e.ledger.GetScore("ghost"))
}

func TestPurchase_InvalidItem(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, model.ScoreRecord{UserID: "p1", TotalScore: 100})
	e.join("p1")

	res, err := e.shop.Purchase(ctx, "p1", "Alice", "railgun")
	require.ErrorIs(t, err, ErrInvalidItem)
	assert.Contains(t, res.Message, "Invalid item: 'railgun'!")
	assert.Equal(t, int64(100), e.ledger.GetScore("p1"))
}

func TestPurchase_DisabledEntryIsInvalid(t *testing.T) {
	ctx := context.Background()
	off := false
	e := newEnv(t, model.ScoreRecord{UserID: "p1", TotalScore: 100})
	e.join("p1")
	catalog := shop.Build([]config.CatalogItemConfig{
		{Code: "radio", DisplayName: "Radio", Price: 8, ItemType: "Radio", Enabled: &off},
	})
	e.shop.settings = func() MarketSettings {
		return MarketSettings{Enabled: true, Catalog: catalog, Messages: e.cfg.Messages}
	}

	_, err := e.shop.Purchase(ctx, "p1", "Alice", "radio")
	assert.ErrorIs(t, err, ErrInvalidItem)
	assert.NotContains(t, e.shop.QuickList(), "radio")
}

func TestPurchase_MarketDisabled(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, model.ScoreRecord{UserID: "p1", TotalScore: 100})
	e.join("p1")
	e.cfg.Market.Enabled = false

	res, err := e.shop.Purchase(ctx, "p1", "Alice", "medkit")
	require.ErrorIs(t, err, ErrMarketDisabled)
	assert.Equal(t, e.cfg.Messages.MarketDisabled, res.Message)
	assert.Equal(t, int64(100), e.shop.Balance("p1"), "balance stays readable")
}

func TestPurchase_Cooldown(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, model.ScoreRecord{UserID: "p1", TotalScore: 100})
	e.join("p1")

	e.cooldown.RoundStarted()
	e.clock.Advance(135 * time.Second)

	res, err := e.shop.Purchase(ctx, "p1", "Alice", "medkit")
	require.ErrorIs(t, err, ErrMarketCooldown)
	assert.Equal(t, int64(45), res.Remaining)
	assert.Contains(t, res.Message, "Time remaining: 45 seconds")
	assert.Equal(t, int64(100), e.ledger.GetScore("p1"))

	overview := e.shop.Overview("p1")
	assert.Contains(t, overview, "Time remaining: 45 seconds")
	assert.Contains(t, overview, "Current points: 100")
	assert.Contains(t, overview, "medkit - Medkit (10p)")
	assert.Contains(t, overview, "SNAKE SHOP")

	e.clock.Advance(45 * time.Second)
	_, err = e.shop.Purchase(ctx, "p1", "Alice", "medkit")
	require.NoError(t, err)
}

func TestPurchase_ConcurrentSpendIsSerialised(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, model.ScoreRecord{UserID: "p1", TotalScore: 10})
	e.join("p1")

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.shop.Purchase(ctx, "p1", "Alice", "medkit")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.True(t, errors.Is(err, ErrInsufficientPoints), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, e.host.Grants(), 1)
	assert.Equal(t, int64(0), e.ledger.GetScore("p1"))
}

func TestPurchase_LockedPlayerGivesUp(t *testing.T) {
	e := newEnv(t, model.ScoreRecord{UserID: "p1", TotalScore: 50})
	e.join("p1")

	e.userLock.Lock("p1")
	defer e.userLock.Unlock("p1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.shop.Purchase(ctx, "p1", "Snake", "medkit")
	require.ErrorIs(t, err, lock.ErrLockTimeout)
	assert.Equal(t, e.cfg.Messages.PurchaseFailed, res.Message)
	assert.Equal(t, int64(50), e.ledger.GetScore("p1"))
	assert.Empty(t, e.host.Grants())
}

func TestListCatalog(t *testing.T) {
	e := newEnv(t)
	list := e.shop.ListCatalog()
	assert.Contains(t, list, "SNAKE SHOP\n")
	assert.Contains(t, list, "- Medkit\n  Code: medkit | Price: 10 points\n\n")
	assert.Contains(t, list, "Example usage:")
}

func TestScoreBoard(t *testing.T) {
	records := []model.ScoreRecord{
		{UserID: "a", LastKnownName: "Ann", TotalScore: 50},
		{UserID: "b", LastKnownName: "Ben", TotalScore: 70},
		{UserID: "c", TotalScore: 10},
		{UserID: "d", LastKnownName: "Dee", TotalScore: 30},
		{UserID: "e", LastKnownName: "Eve", TotalScore: 20},
		{UserID: "f", LastKnownName: "Fay", TotalScore: 5},
	}
	e := newEnv(t, records...)

	board := e.ranking.ScoreBoard("d")
	assert.Contains(t, board, "Your points: 30")
	assert.Contains(t, board, "1. Ben: 70 points\n2. Ann: 50 points\n3. Dee: 30 points\n4. Eve: 20 points\n5. c: 10 points\n")
	assert.NotContains(t, board, "Fay")

	top := e.ranking.GetTopPlayers(10)
	assert.Len(t, top, 6)
}
