package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dehublabs/predictiond/internal/crypto"
	"github.com/dehublabs/predictiond/internal/server"
	"github.com/dehublabs/predictiond/internal/server/handler"
	"github.com/dehublabs/predictiond/internal/server/ws"
)

// OperatorMode runs the lifecycle driver only: tick the engine, persist,
// notify. The HTTP surface lives in api replicas.
func (a *App) OperatorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting operator mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Driver.Run(ctx)
	})
	return g.Wait()
}

// APIMode serves the HTTP and websocket API without ticking the engine.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting api mode")

	if !a.cfg.Server.Enabled {
		return fmt.Errorf("app: api mode requires server.enabled")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// StandaloneMode runs everything in one process against memory stores and a
// simulated chain: the block height advances once per poll interval and the
// oracle publishes a random-walk price, so rounds open, lock, and settle
// without any external dependency.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting standalone mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.runSimulation(ctx, deps)
	})
	g.Go(func() error {
		return deps.Driver.Run(ctx)
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

// FullMode runs the driver and the HTTP server in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Driver.Run(ctx)
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

// startHTTPServer adds the HTTP server (and the websocket hub when an event
// bus is wired) to the errgroup, with graceful shutdown on cancellation.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var archives handler.ArchiveLister
	if deps.Archiver != nil {
		archives = deps.Archiver
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Checkers...),
		Rounds: handler.NewRoundHandler(deps.Prediction, a.logger),
		Bets:   handler.NewBetHandler(deps.Prediction, a.logger),
		Admin:  handler.NewAdminHandler(deps.Admin, archives, a.adminAddress(), a.logger),
	}

	var adminAuth *crypto.RequestAuth
	if a.cfg.Server.AdminAPIKey != "" {
		adminAuth = &crypto.RequestAuth{
			Key:    a.cfg.Server.AdminAPIKey,
			Secret: a.cfg.Server.AdminAPISecret,
		}
	} else {
		a.logger.Warn("admin API credentials not set; admin endpoints are unauthenticated")
	}

	var hub *ws.Hub
	if deps.Bus != nil {
		hub = ws.NewHub(deps.Bus, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		AdminAuth:   adminAuth,
		RateLimiter: deps.RateLimiter,
	}, handlers, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// runSimulation drives the standalone sandbox: one block and one oracle
// sample per poll interval, price following a bounded random walk.
func (a *App) runSimulation(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Driver.PollInterval.Duration

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	price := new(big.Int).Set(standaloneStartPrice)
	step := new(big.Int).Div(standaloneStartPrice, big.NewInt(500))

	deps.SimFeed.Advance(price)
	a.logger.InfoContext(ctx, "simulation started",
		slog.Duration("block_time", interval),
		slog.String("start_price", price.String()),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			deps.SimBlocks.Advance(1)

			// Walk the price by a uniform delta in [-step, step].
			span := new(big.Int).Add(new(big.Int).Lsh(step, 1), big.NewInt(1))
			delta := new(big.Int).Rand(rng, span)
			delta.Sub(delta, step)
			price.Add(price, delta)
			if price.Sign() <= 0 {
				price.Set(standaloneStartPrice)
			}
			deps.SimFeed.Advance(price)
		}
	}
}
