// Package bridge connects the service to a game host over HTTP. The host
// pushes snapshots of its world; the service calls back to grant items and
// show hints.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"snake-market/internal/host"
)

// ErrStaleSnapshot is returned by World.Displays when no fresh snapshot is
// available, which sends the poller to the fallback scan.
var ErrStaleSnapshot = errors.New("host snapshot missing or stale")

// PlayerState is a player as reported in a snapshot.
type PlayerState struct {
	host.Player
	Permissions []string `json:"permissions,omitempty"`
}

// DisplayState is a score display as reported by the host.
type DisplayState struct {
	ID        host.DisplayID `json:"id"`
	Position  host.Vec3      `json:"position"`
	ScoreText string         `json:"score_text"`
}

// Snapshot is the host's periodic push of its world.
type Snapshot struct {
	Players  []PlayerState  `json:"players"`
	Displays []DisplayState `json:"displays"`
}

// Fetcher retrieves the display list directly from the host.
type Fetcher interface {
	FetchDisplays(ctx context.Context) ([]DisplayState, error)
}

// World serves host.World and host.Permissions from the latest snapshot.
type World struct {
	mu         sync.RWMutex
	players    []host.Player
	perms      map[string]map[string]bool
	displays   map[host.DisplayID]DisplayState
	order      []host.DisplayID
	receivedAt time.Time

	maxAge  time.Duration
	fetcher Fetcher
	now     func() time.Time
}

// NewWorld creates a World. Snapshots older than maxAge are treated as
// missing; fetcher, if set, backs ScanDisplays.
func NewWorld(maxAge time.Duration, fetcher Fetcher, now func() time.Time) *World {
	if now == nil {
		now = time.Now
	}
	return &World{
		perms:    make(map[string]map[string]bool),
		displays: make(map[host.DisplayID]DisplayState),
		maxAge:   maxAge,
		fetcher:  fetcher,
		now:      now,
	}
}

// Update replaces the world with snap.
func (w *World) Update(snap Snapshot) {
	players := make([]host.Player, 0, len(snap.Players))
	perms := make(map[string]map[string]bool, len(snap.Players))
	for _, p := range snap.Players {
		players = append(players, p.Player)
		if len(p.Permissions) > 0 {
			set := make(map[string]bool, len(p.Permissions))
			for _, perm := range p.Permissions {
				set[perm] = true
			}
			perms[p.ID] = set
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.players = players
	w.perms = perms
	w.setDisplaysLocked(snap.Displays)
	w.receivedAt = w.now()
}

func (w *World) setDisplaysLocked(displays []DisplayState) {
	w.displays = make(map[host.DisplayID]DisplayState, len(displays))
	w.order = w.order[:0]
	for _, d := range displays {
		if d.ID == "" {
			continue
		}
		if _, dup := w.displays[d.ID]; !dup {
			w.order = append(w.order, d.ID)
		}
		w.displays[d.ID] = d
	}
}

// ReceivedAt returns when the last snapshot arrived.
func (w *World) ReceivedAt() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.receivedAt
}

func (w *World) freshLocked() bool {
	if w.receivedAt.IsZero() {
		return false
	}
	return w.maxAge <= 0 || w.now().Sub(w.receivedAt) <= w.maxAge
}

// Players implements host.World with the players of the last snapshot.
func (w *World) Players(_ context.Context) ([]host.Player, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]host.Player(nil), w.players...), nil
}

// Displays implements host.World.
func (w *World) Displays(_ context.Context) ([]host.DisplayID, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.freshLocked() {
		return nil, ErrStaleSnapshot
	}
	return append([]host.DisplayID(nil), w.order...), nil
}

// ScanDisplays implements host.DisplayScanner by asking the host directly.
func (w *World) ScanDisplays(ctx context.Context) ([]host.DisplayID, error) {
	if w.fetcher == nil {
		return nil, ErrStaleSnapshot
	}
	displays, err := w.fetcher.FetchDisplays(ctx)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.setDisplaysLocked(displays)
	return append([]host.DisplayID(nil), w.order...), nil
}

// DisplayPosition implements host.World.
func (w *World) DisplayPosition(_ context.Context, id host.DisplayID) (host.Vec3, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	d, ok := w.displays[id]
	if !ok {
		return host.Vec3{}, host.ErrNoDisplay
	}
	return d.Position, nil
}

// ScoreText implements host.World.
func (w *World) ScoreText(_ context.Context, id host.DisplayID) (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	d, ok := w.displays[id]
	if !ok {
		return "", host.ErrNoDisplay
	}
	return d.ScoreText, nil
}

// HasPermission implements host.Permissions from the last snapshot.
func (w *World) HasPermission(_ context.Context, playerID, permission string) (bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.perms[playerID][permission], nil
}

// Player returns the named player from the last snapshot.
func (w *World) Player(playerID string) (host.Player, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, p := range w.players {
		if p.ID == playerID {
			return p, true
		}
	}
	return host.Player{}, false
}
