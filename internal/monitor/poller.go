package monitor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"snake-market/internal/host"
	"snake-market/internal/metrics"
)

// PollerConfig holds the observation settings.
type PollerConfig struct {
	Interval        time.Duration
	DetectionRadius float64
	MaxSessionAge   time.Duration
	ScoreLabels     []string
	Qualifier       host.ItemQualifier
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollerClock overrides the time source.
func WithPollerClock(now func() time.Time) PollerOption {
	return func(p *Poller) { p.now = now }
}

// WithPollerMetrics reports ticks and errors to m.
func WithPollerMetrics(m *metrics.MarketMetrics) PollerOption {
	return func(p *Poller) { p.metrics = m }
}

// Poller periodically reads the world and feeds the tracker.
type Poller struct {
	world   host.World
	tracker *Tracker
	sink    EventSink
	cfg     PollerConfig
	now     func() time.Time
	metrics *metrics.MarketMetrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller. Events are delivered to sink synchronously from
// the tick goroutine.
func NewPoller(world host.World, tracker *Tracker, sink EventSink, cfg PollerConfig, opts ...PollerOption) *Poller {
	if cfg.Qualifier == nil {
		cfg.Qualifier = func(string) bool { return false }
	}
	p := &Poller{
		world:   world,
		tracker: tracker,
		sink:    sink,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the tick loop. A running loop is stopped first, keeping its
// sessions.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.haltLocked()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	go p.loop(loopCtx, done)

	log.Info().
		Dur("interval", p.cfg.Interval).
		Float64("radius", p.cfg.DetectionRadius).
		Msg("Snake game monitoring started")
}

// Stop halts the tick loop, waits for it to exit and clears all sessions.
// Calling Stop on a stopped poller does nothing.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return
	}
	p.haltLocked()
	p.tracker.Reset()
	log.Info().Msg("Snake game monitoring stopped")
}

// Running reports whether the tick loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) haltLocked() {
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := p.cfg.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.safeTick(ctx)
		}
	}
}

func (p *Poller) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.IncPollError("panic")
			log.Error().Interface("panic", r).Msg("Recovered from panic in poller tick")
		}
	}()
	p.Tick(ctx)
}

// Tick runs one observation pass.
func (p *Poller) Tick(ctx context.Context) {
	now := p.now()

	players, err := p.world.Players(ctx)
	if err != nil {
		p.metrics.IncPollError("players")
		log.Warn().Err(err).Msg("Failed to list players, skipping tick")
		p.tracker.Sweep(now, p.cfg.MaxSessionAge, nil)
		return
	}

	view := p.displays(ctx)
	connected := make(map[string]bool, len(players))

	for _, pl := range players {
		if !pl.Connected {
			continue
		}
		connected[pl.ID] = true
		if !pl.Alive {
			continue
		}

		if !p.cfg.Qualifier(pl.HeldItem) {
			p.tracker.MarkNotPlaying(pl.ID)
			continue
		}

		id, ok := view.nearest(pl.Position, p.cfg.DetectionRadius)
		if !ok {
			continue
		}

		text, err := view.text(ctx, id)
		if err != nil {
			p.metrics.IncPollError("score_text")
			log.Debug().Err(err).Str("display", string(id)).Msg("Failed to read score text")
			continue
		}
		score, ok := ParseScore(text, p.cfg.ScoreLabels)
		if !ok {
			log.Debug().Str("player", pl.Name).Str("text", text).Msg("Could not parse score")
			continue
		}

		if ev, ok := p.tracker.Observe(pl.ID, pl.Name, score, id, now); ok {
			p.metrics.ObserveScoreEvent(ev.Kind.String())
			log.Debug().
				Str("player", pl.Name).
				Str("event", ev.Kind.String()).
				Int64("score", ev.Score).
				Msg("Score event")
			if p.sink != nil {
				p.sink.HandleEvent(ctx, ev)
			}
		}
	}

	if removed := p.tracker.Sweep(now, p.cfg.MaxSessionAge, connected); removed > 0 {
		log.Debug().Int("removed", removed).Msg("Swept stale sessions")
	}
	p.metrics.ObserveTick(p.tracker.Len())
}

// displayView caches display positions and texts for one tick.
type displayView struct {
	world     host.World
	ids       []host.DisplayID
	positions map[host.DisplayID]host.Vec3
	texts     map[host.DisplayID]string
}

func (p *Poller) displays(ctx context.Context) *displayView {
	v := &displayView{
		world:     p.world,
		positions: make(map[host.DisplayID]host.Vec3),
		texts:     make(map[host.DisplayID]string),
	}

	ids, err := p.world.Displays(ctx)
	if err != nil {
		p.metrics.IncPollError("displays")
		scanner, ok := p.world.(host.DisplayScanner)
		if !ok {
			log.Warn().Err(err).Msg("Failed to enumerate displays")
			return v
		}
		log.Debug().Err(err).Msg("Display enumeration failed, scanning")
		ids, err = scanner.ScanDisplays(ctx)
		if err != nil {
			p.metrics.IncPollError("scan")
			log.Warn().Err(err).Msg("Failed to scan displays")
			return v
		}
	}

	for _, id := range ids {
		pos, err := p.world.DisplayPosition(ctx, id)
		if err != nil {
			p.metrics.IncPollError("display_position")
			log.Debug().Err(err).Str("display", string(id)).Msg("Failed to read display position")
			continue
		}
		v.ids = append(v.ids, id)
		v.positions[id] = pos
	}
	return v
}

// nearest returns the closest display strictly within radius.
func (v *displayView) nearest(pos host.Vec3, radius float64) (host.DisplayID, bool) {
	var (
		best     host.DisplayID
		bestDist = math.MaxFloat64
		found    bool
	)
	for _, id := range v.ids {
		d := pos.Distance(v.positions[id])
		if d < radius && d < bestDist {
			best, bestDist, found = id, d, true
		}
	}
	return best, found
}

func (v *displayView) text(ctx context.Context, id host.DisplayID) (string, error) {
	if t, ok := v.texts[id]; ok {
		return t, nil
	}
	t, err := v.world.ScoreText(ctx, id)
	if err != nil {
		return "", err
	}
	v.texts[id] = t
	return t, nil
}
