// Package api serves the HTTP surface the game host talks to: snapshot and
// event ingress, in-game commands, and read-only leaderboard and catalog
// endpoints.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"snake-market/internal/command"
	"snake-market/internal/host/bridge"
	"snake-market/internal/ledger"
	"snake-market/internal/service"
)

// Hooks receives host lifecycle events.
type Hooks interface {
	PlayerLeft(playerID string)
	RoundStarted()
}

// Options configure the server.
type Options struct {
	Token             string
	RequestTimeout    time.Duration
	CommandsPerMinute float64
	CommandBurst      int
}

// Server handles HTTP requests
type Server struct {
	world      *bridge.World
	hooks      Hooks
	dispatcher *command.Dispatcher
	ledger     *ledger.Ledger
	shop       *service.ShopService
	limiter    *playerLimiter
	opts       Options
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(
	opts Options,
	world *bridge.World,
	hooks Hooks,
	dispatcher *command.Dispatcher,
	l *ledger.Ledger,
	shop *service.ShopService,
) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	return &Server{
		world:      world,
		hooks:      hooks,
		dispatcher: dispatcher,
		ledger:     l,
		shop:       shop,
		limiter:    newPlayerLimiter(opts.CommandsPerMinute, opts.CommandBurst),
		opts:       opts,
		startTime:  time.Now(),
	}
}

// Routes sets up the HTTP routes with middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/host", func(r chi.Router) {
			r.Use(s.requireToken)
			r.Post("/snapshot", s.handleSnapshot)
			r.Post("/events", s.handleEvent)
			r.Post("/commands", s.handleCommand)
		})
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/players/{id}/balance", s.handleBalance)
		r.Get("/catalog", s.handleCatalog)
	})

	return r
}

// requireToken rejects host calls without the shared token, when one is
// configured.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token != "" {
			got := r.Header.Get(bridge.TokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.Token)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid host token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with proper headers
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
