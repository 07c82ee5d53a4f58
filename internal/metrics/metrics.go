// Package metrics exposes the market's prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type MarketMetrics struct {
	awards          *prometheus.CounterVec
	pointsAwarded   prometheus.Counter
	purchases       *prometheus.CounterVec
	pointsSpent     prometheus.Counter
	scoreEvents     *prometheus.CounterVec
	pollTicks       prometheus.Counter
	pollErrors      *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	persistFailures prometheus.Counter
	ledgerPlayers   prometheus.Gauge
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			awards: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "snake_awards_total",
				Help: "Game-end events handled by the award coordinator, by outcome.",
			}, []string{"outcome"}),
			pointsAwarded: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "snake_points_awarded_total",
				Help: "Points credited to players from completed runs.",
			}),
			purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "snake_purchases_total",
				Help: "Storefront purchase attempts by result.",
			}, []string{"result"}),
			pointsSpent: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "snake_points_spent_total",
				Help: "Points debited by successful purchases.",
			}),
			scoreEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "snake_score_events_total",
				Help: "Session tracker events by kind.",
			}, []string{"kind"}),
			pollTicks: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "snake_poll_ticks_total",
				Help: "Observation poller passes.",
			}),
			pollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "snake_poll_errors_total",
				Help: "Transient observation errors by stage.",
			}, []string{"stage"}),
			activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "snake_active_sessions",
				Help: "Tracked minigame sessions.",
			}),
			persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "snake_ledger_persist_failures_total",
				Help: "Ledger saves that failed and were left for retry.",
			}),
			ledgerPlayers: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "snake_ledger_players",
				Help: "Players with a score record.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.awards,
			marketRegistry.pointsAwarded,
			marketRegistry.purchases,
			marketRegistry.pointsSpent,
			marketRegistry.scoreEvents,
			marketRegistry.pollTicks,
			marketRegistry.pollErrors,
			marketRegistry.activeSessions,
			marketRegistry.persistFailures,
			marketRegistry.ledgerPlayers,
		)
	})
	return marketRegistry
}

func (m *MarketMetrics) ObserveAward(outcome string, points int64) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.awards.WithLabelValues(outcome).Inc()
	if points > 0 {
		m.pointsAwarded.Add(float64(points))
	}
}

func (m *MarketMetrics) ObservePurchase(result string, price int64) {
	if m == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	m.purchases.WithLabelValues(result).Inc()
	if result == "ok" && price > 0 {
		m.pointsSpent.Add(float64(price))
	}
}

func (m *MarketMetrics) ObserveScoreEvent(kind string) {
	if m == nil {
		return
	}
	m.scoreEvents.WithLabelValues(kind).Inc()
}

func (m *MarketMetrics) ObserveTick(sessions int) {
	if m == nil {
		return
	}
	m.pollTicks.Inc()
	m.activeSessions.Set(float64(sessions))
}

func (m *MarketMetrics) IncPollError(stage string) {
	if m == nil {
		return
	}
	if stage == "" {
		stage = "unknown"
	}
	m.pollErrors.WithLabelValues(stage).Inc()
}

func (m *MarketMetrics) IncPersistFailure() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

func (m *MarketMetrics) SetLedgerPlayers(n int) {
	if m == nil {
		return
	}
	m.ledgerPlayers.Set(float64(n))
}
