package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PREDICTION_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDICTION_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "PREDICTION_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "PREDICTION_CHAIN_CHAIN_ID")

	// ── Oracle ──
	setStr(&cfg.Oracle.AggregatorAddress, "PREDICTION_ORACLE_AGGREGATOR_ADDRESS")
	setDuration(&cfg.Oracle.UpdateAllowance, "PREDICTION_ORACLE_UPDATE_ALLOWANCE")

	// ── Token ──
	setStr(&cfg.Token.ERC20Address, "PREDICTION_TOKEN_ERC20_ADDRESS")

	// ── Engine ──
	setUint64(&cfg.Engine.IntervalBlocks, "PREDICTION_ENGINE_INTERVAL_BLOCKS")
	setUint64(&cfg.Engine.BufferBlocks, "PREDICTION_ENGINE_BUFFER_BLOCKS")
	setStr(&cfg.Engine.MinBetAmount, "PREDICTION_ENGINE_MIN_BET_AMOUNT")
	setUint64(&cfg.Engine.TreasuryFeeBps, "PREDICTION_ENGINE_TREASURY_FEE_BPS")
	setStr(&cfg.Engine.BetPolicy, "PREDICTION_ENGINE_BET_POLICY")

	// ── Roles ──
	setStr(&cfg.Roles.Admin, "PREDICTION_ROLES_ADMIN")
	setStr(&cfg.Roles.Operator, "PREDICTION_ROLES_OPERATOR")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "PREDICTION_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "PREDICTION_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "PREDICTION_WALLET_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PREDICTION_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PREDICTION_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDICTION_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDICTION_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDICTION_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDICTION_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDICTION_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDICTION_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDICTION_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PREDICTION_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PREDICTION_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICTION_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICTION_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDICTION_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDICTION_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDICTION_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PREDICTION_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PREDICTION_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDICTION_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDICTION_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDICTION_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDICTION_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDICTION_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDICTION_S3_FORCE_PATH_STYLE")

	// ── Driver ──
	setDuration(&cfg.Driver.PollInterval, "PREDICTION_DRIVER_POLL_INTERVAL")
	setDuration(&cfg.Driver.LockTTL, "PREDICTION_DRIVER_LOCK_TTL")
	setUint64(&cfg.Driver.ArchiveKeepEpochs, "PREDICTION_DRIVER_ARCHIVE_KEEP_EPOCHS")
	setInt(&cfg.Driver.ArchiveBatch, "PREDICTION_DRIVER_ARCHIVE_BATCH")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PREDICTION_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PREDICTION_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDICTION_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminAPIKey, "PREDICTION_SERVER_ADMIN_API_KEY")
	setStr(&cfg.Server.AdminAPISecret, "PREDICTION_SERVER_ADMIN_API_SECRET")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PREDICTION_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDICTION_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDICTION_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDICTION_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDICTION_MODE")
	setStr(&cfg.LogLevel, "PREDICTION_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
