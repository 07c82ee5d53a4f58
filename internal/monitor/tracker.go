// Package monitor watches minigame score displays and turns successive
// readings into score-changed and game-ended events.
package monitor

import (
	"context"
	"sync"
	"time"

	"snake-market/internal/host"
)

// DefaultStaleAfter bounds how old the previous reading may be for a drop to
// zero to count as a finished run.
const DefaultStaleAfter = 30 * time.Second

// EventKind identifies a tracker event.
type EventKind int

// Tracker event kinds.
const (
	ScoreChanged EventKind = iota + 1
	GameEnded
)

func (k EventKind) String() string {
	switch k {
	case ScoreChanged:
		return "score_changed"
	case GameEnded:
		return "game_ended"
	default:
		return "unknown"
	}
}

// Event is emitted by the tracker. For GameEnded, Score is the final score of
// the run; for ScoreChanged it is the new score.
type Event struct {
	Kind       EventKind
	PlayerID   string
	PlayerName string
	Score      int64
	Display    host.DisplayID
	At         time.Time
}

// EventSink receives tracker events.
type EventSink interface {
	HandleEvent(ctx context.Context, ev Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev Event)

// HandleEvent implements EventSink.
func (f EventSinkFunc) HandleEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// Session is the tracked state of one player.
type Session struct {
	Score      int64
	Display    host.DisplayID
	LastUpdate time.Time
	Playing    bool
}

// Tracker holds at most one session per player.
type Tracker struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	staleAfter time.Duration
}

// NewTracker creates a tracker. A non-positive staleAfter uses
// DefaultStaleAfter.
func NewTracker(staleAfter time.Duration) *Tracker {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Tracker{
		sessions:   make(map[string]*Session),
		staleAfter: staleAfter,
	}
}

// Observe feeds one reading and returns the resulting event, if any.
func (t *Tracker) Observe(playerID, playerName string, score int64, display host.DisplayID, now time.Time) (Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[playerID]
	if !ok || s.Display != display {
		// New session, or the player moved to another display: start over.
		t.sessions[playerID] = &Session{Score: score, Display: display, LastUpdate: now, Playing: true}
		return Event{}, false
	}

	var (
		ev   Event
		emit bool
	)
	switch {
	case score == s.Score:
	case score == 0 && s.Score > 0:
		if s.Playing && now.Sub(s.LastUpdate) < t.staleAfter {
			ev = Event{Kind: GameEnded, PlayerID: playerID, PlayerName: playerName, Score: s.Score, Display: display, At: now}
			emit = true
		}
		s.Playing = false
		s.Score = 0
	case score > s.Score:
		ev = Event{Kind: ScoreChanged, PlayerID: playerID, PlayerName: playerName, Score: score, Display: display, At: now}
		emit = true
		s.Playing = true
		s.Score = score
	default:
		// Decrease to another positive value.
		s.Score = score
	}
	s.LastUpdate = now
	return ev, emit
}

// MarkNotPlaying clears the playing flag without dropping the session.
func (t *Tracker) MarkNotPlaying(playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[playerID]; ok {
		s.Playing = false
	}
}

// Forget drops the session of a player.
func (t *Tracker) Forget(playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, playerID)
}

// Sweep removes sessions older than maxAge or whose player is not in
// connected. A nil connected set skips the connectivity check. It returns how
// many sessions were removed.
func (t *Tracker) Sweep(now time.Time, maxAge time.Duration, connected map[string]bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, s := range t.sessions {
		if (connected != nil && !connected[id]) || now.Sub(s.LastUpdate) > maxAge {
			delete(t.sessions, id)
			removed++
		}
	}
	return removed
}

// Reset drops every session.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions = make(map[string]*Session)
}

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Snapshot returns a copy of a player's session.
func (t *Tracker) Snapshot(playerID string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[playerID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}
