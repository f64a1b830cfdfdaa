// Package server exposes the prediction API over HTTP: round and bet
// queries, bet placement and claims, HMAC-authenticated admin operations,
// and a websocket feed of round events.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dehublabs/predictiond/internal/crypto"
	"github.com/dehublabs/predictiond/internal/domain"
	"github.com/dehublabs/predictiond/internal/server/handler"
	"github.com/dehublabs/predictiond/internal/server/middleware"
	"github.com/dehublabs/predictiond/internal/server/ws"
)

// adminMaxSkew bounds how old an admin request signature may be.
const adminMaxSkew = 30 * time.Second

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// AdminAuth signs the privileged endpoints. Nil disables admin auth
	// (standalone deployments only).
	AdminAuth *crypto.RequestAuth

	// RateLimiter throttles public endpoints per client IP when set.
	RateLimiter domain.RateLimiter
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health *handler.HealthHandler
	Rounds *handler.RoundHandler
	Bets   *handler.BetHandler
	Admin  *handler.AdminHandler
}

// Server is the headless HTTP + websocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain. wsHub may
// be nil when no event bus is configured.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health and status.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Rounds.Status)
	mux.HandleFunc("GET /api/version", handlers.Rounds.Version)

	// Round queries. "current" must be registered explicitly so it does not
	// fall into the {epoch} wildcard.
	mux.HandleFunc("GET /api/rounds", handlers.Rounds.ListRounds)
	mux.HandleFunc("GET /api/rounds/current", handlers.Rounds.CurrentRound)
	mux.HandleFunc("GET /api/rounds/{epoch}", handlers.Rounds.GetRound)
	mux.HandleFunc("GET /api/rounds/{epoch}/bets/{address}", handlers.Rounds.GetRoundBet)
	mux.HandleFunc("GET /api/rounds/{epoch}/claimable/{address}", handlers.Rounds.GetClaimable)

	// Bets and claims.
	mux.HandleFunc("POST /api/bets", handlers.Bets.PlaceBet)
	mux.HandleFunc("GET /api/bets", handlers.Bets.ListBets)
	mux.HandleFunc("POST /api/rounds/{epoch}/claim", handlers.Bets.Claim)
	mux.HandleFunc("POST /api/claims", handlers.Bets.CreateClaim)

	// Admin endpoints, HMAC-signed.
	adminAuth := middleware.AdminAuth(cfg.AdminAuth, adminMaxSkew)
	admin := http.NewServeMux()
	admin.HandleFunc("POST /api/admin/pause", handlers.Admin.Pause)
	admin.HandleFunc("POST /api/admin/resume", handlers.Admin.Resume)
	admin.HandleFunc("PUT /api/admin/config", handlers.Admin.UpdateConfig)
	admin.HandleFunc("PUT /api/admin/roles", handlers.Admin.UpdateRoles)
	admin.HandleFunc("POST /api/admin/migrate", handlers.Admin.Migrate)
	admin.HandleFunc("GET /api/admin/treasury", handlers.Admin.Treasury)
	admin.HandleFunc("POST /api/admin/treasury/claim", handlers.Admin.ClaimTreasury)
	admin.HandleFunc("GET /api/admin/archives", handlers.Admin.ListArchives)
	mux.Handle("/api/admin/", adminAuth(admin))

	// Websocket feed.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if cfg.RateLimiter != nil {
		limit := cfg.RateLimit
		if limit <= 0 {
			limit = 20
		}
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(cfg.RateLimiter, limit, window)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start listens until the server errors or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
