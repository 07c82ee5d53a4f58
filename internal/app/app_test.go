package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snake-market/internal/config"
	"snake-market/internal/host"
	"snake-market/internal/host/bridge"
	"snake-market/internal/model"
	"snake-market/internal/service"
)

const testConfig = `
ledger:
  driver: memory
http:
  addr: 127.0.0.1:0
host:
  snapshot_max_age: 1m
`

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
}

type testApp struct {
	*App
	dir  string
	live *config.Live
	host *host.Memory
}

func newTestApp(t *testing.T, opts ...Option) *testApp {
	t.Helper()
	dir := t.TempDir()
	writeConfig(t, dir, testConfig)
	live, err := config.Watch(dir)
	require.NoError(t, err)

	mem := host.NewMemory()
	a, err := New(context.Background(), live, append([]Option{WithGranter(mem), WithNotifier(mem)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)
	return &testApp{App: a, dir: dir, live: live, host: mem}
}

func (ta *testApp) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ta.Handler().ServeHTTP(rec, req)
	return rec
}

func snapshot(score string) bridge.Snapshot {
	return bridge.Snapshot{
		Players: []bridge.PlayerState{{Player: host.Player{
			ID:        "p1",
			Name:      "Snake",
			Alive:     true,
			Connected: true,
			HeldItem:  "KeycardJanitor",
		}}},
		Displays: []bridge.DisplayState{{
			ID:        "d1",
			Position:  host.Vec3{X: 1},
			ScoreText: score,
		}},
	}
}

func TestRunIsAwardedThroughBridge(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()

	for _, score := range []string{"Score: 0", "Score: 5", "Score: 12", "Score: 0"} {
		rec := ta.post(t, "/v1/host/snapshot", snapshot(score))
		require.Equal(t, http.StatusNoContent, rec.Code)
		ta.Poller.Tick(ctx)
	}

	assert.Equal(t, int64(12), ta.Ledger.GetScore("p1"))
	rec, ok := ta.Ledger.Get("p1")
	require.True(t, ok)
	assert.Equal(t, "Snake", rec.LastKnownName)

	hints := ta.host.Hints()
	require.Len(t, hints, 1)
	assert.Contains(t, hints[0].Text, "You earned 12 points!")
}

func TestCommandPurchase(t *testing.T) {
	ta := newTestApp(t)
	ta.host.PutPlayer(host.Player{ID: "p1", Name: "Snake", Connected: true, Alive: true})
	require.NoError(t, ta.Ledger.SetScore(context.Background(), "p1", "Snake", 100))

	rec := ta.post(t, "/v1/host/commands", map[string]any{
		"player_id": "p1",
		"name":      "Snake",
		"command":   ".shop",
		"args":      []string{"medkit"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		OK       bool   `json:"ok"`
		Response string `json:"response"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, int64(90), ta.Ledger.GetScore("p1"))

	grants := ta.host.Grants()
	require.Len(t, grants, 1)
	assert.Equal(t, "Medkit", grants[0].Kind)
}

func TestHooks(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()

	assert.Equal(t, int64(0), ta.Shop.CooldownRemaining())
	rec := ta.post(t, "/v1/host/events", map[string]string{"type": "round_started"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Greater(t, ta.Shop.CooldownRemaining(), int64(0))

	ta.post(t, "/v1/host/snapshot", snapshot("Score: 3"))
	ta.Poller.Tick(ctx)
	require.Equal(t, 1, ta.Tracker.Len())

	rec = ta.post(t, "/v1/host/events", map[string]string{"type": "player_left", "player_id": "p1"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, ta.Tracker.Len())
}

func TestReloadRebuildsCatalog(t *testing.T) {
	ta := newTestApp(t)
	_, ok := ta.Shop.Catalog().Lookup("medkit")
	require.True(t, ok)

	writeConfig(t, ta.dir, testConfig+`
market:
  items:
    - {code: lamp, display_name: Lamp, price: 2, item_type: Lantern}
`)
	require.NoError(t, ta.live.Reload())

	_, ok = ta.Shop.Catalog().Lookup("medkit")
	assert.False(t, ok)
	entry, ok := ta.Shop.Catalog().Lookup("LAMP")
	require.True(t, ok)
	assert.Equal(t, int64(2), entry.Price)
}

func TestGrantWithoutHostEgress(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, testConfig)
	live, err := config.Watch(dir)
	require.NoError(t, err)
	a, err := New(context.Background(), live)
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)

	ctx := context.Background()
	require.NoError(t, a.Ledger.SetScore(ctx, "p1", "Snake", 50))

	res, err := a.Shop.Purchase(ctx, "p1", "Snake", "medkit")
	require.ErrorIs(t, err, service.ErrInventoryFull)
	assert.ErrorIs(t, err, ErrEgressDisabled)
	assert.NotEmpty(t, res.Message)
	assert.Equal(t, int64(50), a.Ledger.GetScore("p1"))
}

func TestOpenLedgerSQLiteJournal(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{Ledger: config.LedgerConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "scores.db"),
	}}

	l, closers, err := openLedger(ctx, cfg, nil, nil)
	require.NoError(t, err)
	require.Len(t, closers, 1)
	defer closers[0]()

	_, err = l.Add(ctx, "p1", "Snake", 20, model.TxTypeAward, "run of 20")
	require.NoError(t, err)

	txs, err := l.History(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(20), txs[0].Amount)
}

func TestOpenLedgerUnknownDriver(t *testing.T) {
	_, _, err := openLedger(context.Background(), &config.Config{Ledger: config.LedgerConfig{Driver: "mongo"}}, nil, nil)
	assert.ErrorContains(t, err, "unknown ledger driver")
}
