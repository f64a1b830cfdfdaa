package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/dehublabs/predictiond/internal/blob/s3"
	"github.com/dehublabs/predictiond/internal/cache/redis"
	"github.com/dehublabs/predictiond/internal/chain"
	"github.com/dehublabs/predictiond/internal/config"
	"github.com/dehublabs/predictiond/internal/crypto"
	"github.com/dehublabs/predictiond/internal/domain"
	"github.com/dehublabs/predictiond/internal/engine"
	"github.com/dehublabs/predictiond/internal/notify"
	"github.com/dehublabs/predictiond/internal/oracle"
	"github.com/dehublabs/predictiond/internal/server/handler"
	"github.com/dehublabs/predictiond/internal/service"
	memstore "github.com/dehublabs/predictiond/internal/store/memory"
	"github.com/dehublabs/predictiond/internal/store/postgres"
	"github.com/dehublabs/predictiond/internal/token"
)

// standaloneStartHeight is where the simulated chain begins in standalone
// mode, and standaloneStartPrice is the first simulated oracle price.
const standaloneStartHeight = 1

var standaloneStartPrice = big.NewInt(50_000_00000000)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores — postgres-backed, or memory-backed in standalone mode.
	Rounds domain.RoundStore
	Bets   domain.BetStore
	State  domain.EngineStateStore

	// Redis-backed coordination. Nil in standalone mode except Locks, which
	// falls back to the in-process lock manager.
	Cache       domain.RoundCache
	Locks       domain.LockManager
	Bus         domain.EventBus
	RateLimiter domain.RateLimiter

	// Chain-facing.
	Blocks   chain.BlockSource
	Oracle   *oracle.Gateway
	Identity *crypto.Identity

	// Engine and services.
	Engine     *engine.Engine
	Prediction *service.PredictionService
	Admin      *service.AdminService
	Recorder   *service.Recorder
	Driver     *service.Driver

	// Cold storage. Nil unless s3.enabled.
	Archiver *s3blob.Archiver

	Notifier *notify.Notifier

	// Checkers feed the health endpoint, one per wired backend.
	Checkers []handler.Checker

	// Simulation handles, set only in standalone mode.
	SimBlocks *chain.ManualSource
	SimFeed   *oracle.ManualFeed
	SimVault  *token.MemoryVault
}

// chainBacked returns true for modes that talk to a real chain: they dial the
// RPC endpoint, bind the aggregator and token contracts, and need a signing
// identity.
func chainBacked(mode string) bool {
	return mode == "operator" || mode == "full"
}

// faucetVault mints the stake on demand so the standalone sandbox accepts any
// bet without prior funding.
type faucetVault struct {
	*token.MemoryVault
}

func (v faucetVault) Deposit(ctx context.Context, from common.Address, amount *big.Int) error {
	if v.BalanceOf(from).Cmp(amount) < 0 {
		v.Mint(from, amount)
	}
	return v.MemoryVault.Deposit(ctx, from, amount)
}

// Wire constructs every concrete dependency for the configured mode and
// returns it with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Stores ---
	if mode == "standalone" {
		deps.Rounds = memstore.NewRoundStore()
		deps.Bets = memstore.NewBetStore()
		deps.State = memstore.NewStateStore()
		deps.Locks = memstore.NewLockManager()
	} else {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Rounds = postgres.NewRoundStore(pool)
		deps.Bets = postgres.NewBetStore(pool)
		deps.State = postgres.NewStateStore(pool)
		deps.Checkers = append(deps.Checkers, handler.Checker{
			Name:  "postgres",
			Check: pool.Ping,
		})

		// --- Redis ---
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Cache = redis.NewRoundCache(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewEventBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Checkers = append(deps.Checkers, handler.Checker{
			Name:  "redis",
			Check: redisClient.Ping,
		})
	}

	// --- S3 cold storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3Client, deps.Rounds, deps.Bets)
		deps.Checkers = append(deps.Checkers, handler.Checker{
			Name:  "s3",
			Check: s3Client.Health,
		})
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Chain, oracle, vault ---
	var vault engine.Vault
	if chainBacked(mode) {
		identity, err := crypto.LoadIdentity(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator identity: %w", err)
		}
		deps.Identity = identity
		if op := common.HexToAddress(cfg.Roles.Operator); identity.Address() != op {
			logger.Warn("wallet address does not match the operator role",
				slog.String("wallet", identity.Address().Hex()),
				slog.String("operator", op.Hex()),
			)
		}

		source, ethClient, err := chain.Dial(ctx, cfg.Chain.RPCURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain: %w", err)
		}
		closers = append(closers, ethClient.Close)
		deps.Blocks = source

		feed, err := oracle.NewChainlinkFeed(ethClient, common.HexToAddress(cfg.Oracle.AggregatorAddress))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: oracle: %w", err)
		}
		deps.Oracle = oracle.NewGateway(feed, cfg.Oracle.UpdateAllowance.Duration)

		if cfg.Token.ERC20Address != "" {
			erc20, err := token.NewERC20Client(
				ethClient,
				common.HexToAddress(cfg.Token.ERC20Address),
				identity.PrivateKey(),
				big.NewInt(cfg.Chain.ChainID),
			)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: token: %w", err)
			}
			vault = token.NewChainVault(erc20)
		} else {
			vault = token.NewMemoryVault()
		}
	} else {
		// api and standalone modes never tick the engine against a real
		// chain. Standalone simulates one; api serves a restored engine and
		// resolves heights from the RPC endpoint when one is configured.
		if mode == "api" && cfg.Chain.RPCURL != "" {
			source, ethClient, err := chain.Dial(ctx, cfg.Chain.RPCURL)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: chain: %w", err)
			}
			closers = append(closers, ethClient.Close)
			deps.Blocks = source
		} else {
			sim := chain.NewManualSource(standaloneStartHeight)
			deps.Blocks = sim
			if mode == "standalone" {
				deps.SimBlocks = sim
			}
		}

		feed := oracle.NewManualFeed()
		deps.Oracle = oracle.NewGateway(feed, cfg.Oracle.UpdateAllowance.Duration)

		mv := token.NewMemoryVault()
		vault = faucetVault{mv}
		if mode == "standalone" {
			deps.SimFeed = feed
			deps.SimVault = mv
		}
	}

	// --- Engine ---
	minBet, err := cfg.Engine.MinBetAmountInt()
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	engineCfg := engine.Config{
		IntervalBlocks: cfg.Engine.IntervalBlocks,
		BufferBlocks:   cfg.Engine.BufferBlocks,
		MinBetAmount:   minBet,
		TreasuryFeeBps: cfg.Engine.TreasuryFeeBps,
		BetPolicy:      domain.BetPolicy(strings.ToLower(cfg.Engine.BetPolicy)),
	}
	eng := engine.New(vault, deps.Oracle)
	deps.Engine = eng

	admin := common.HexToAddress(cfg.Roles.Admin)
	operator := common.HexToAddress(cfg.Roles.Operator)
	if err := service.Bootstrap(ctx, eng, engineCfg, admin, operator, deps.Rounds, deps.Bets, deps.State, deps.Oracle, logger); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}

	// --- Services ---
	deps.Recorder = service.NewRecorder(eng, deps.Rounds, deps.State, deps.Cache, deps.Bus, deps.Notifier, logger)
	deps.Prediction = service.NewPredictionService(eng, deps.Blocks, deps.Rounds, deps.Bets, deps.State, deps.Cache, logger)
	deps.Admin = service.NewAdminService(eng, deps.Recorder, deps.State, deps.Oracle, deps.Notifier, logger)

	var archiver service.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	deps.Driver = service.NewDriver(
		service.DriverConfig{
			PollInterval:      cfg.Driver.PollInterval.Duration,
			LockTTL:           cfg.Driver.LockTTL.Duration,
			ArchiveKeepEpochs: cfg.Driver.ArchiveKeepEpochs,
			ArchiveBatch:      cfg.Driver.ArchiveBatch,
		},
		eng, operator, deps.Blocks, deps.Recorder, deps.Locks, archiver, deps.Notifier, logger,
	)

	return deps, cleanup, nil
}
