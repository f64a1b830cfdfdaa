// Package config defines the top-level configuration for the prediction
// engine daemon and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PREDICTION_* environment variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Oracle   OracleConfig   `toml:"oracle"`
	Token    TokenConfig    `toml:"token"`
	Engine   EngineConfig   `toml:"engine"`
	Roles    RolesConfig    `toml:"roles"`
	Wallet   WalletConfig   `toml:"wallet"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Driver   DriverConfig   `toml:"driver"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig holds the JSON-RPC endpoint supplying block heights and
// carrying custody transactions.
type ChainConfig struct {
	RPCURL  string `toml:"rpc_url"`
	ChainID int64  `toml:"chain_id"`
}

// OracleConfig holds the price feed parameters.
type OracleConfig struct {
	// AggregatorAddress is the Chainlink-compatible aggregator contract.
	AggregatorAddress string `toml:"aggregator_address"`
	// UpdateAllowance bounds how old a feed sample may be when bound.
	UpdateAllowance duration `toml:"update_allowance"`
}

// TokenConfig holds the staking token parameters.
type TokenConfig struct {
	// ERC20Address is the staking token contract. Empty selects the
	// in-memory vault (standalone mode).
	ERC20Address string `toml:"erc20_address"`
}

// EngineConfig holds the round parameters.
type EngineConfig struct {
	IntervalBlocks uint64 `toml:"interval_blocks"`
	BufferBlocks   uint64 `toml:"buffer_blocks"`
	// MinBetAmount is a decimal string in the token's smallest unit.
	MinBetAmount   string `toml:"min_bet_amount"`
	TreasuryFeeBps uint64 `toml:"treasury_fee_bps"`
	// BetPolicy is "accumulate" or "reject".
	BetPolicy string `toml:"bet_policy"`
}

// RolesConfig holds the privileged addresses.
type RolesConfig struct {
	Admin    string `toml:"admin"`
	Operator string `toml:"operator"`
}

// WalletConfig holds the operator's signing key sources.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the round
// archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// DriverConfig holds the lifecycle driver parameters.
type DriverConfig struct {
	// PollInterval is how often the driver samples the chain height.
	PollInterval duration `toml:"poll_interval"`
	// LockTTL is how long the distributed operator lock is held per tick.
	LockTTL duration `toml:"lock_ttl"`
	// ArchiveKeepEpochs is how many recent epochs stay out of cold storage.
	// Zero disables archival.
	ArchiveKeepEpochs uint64 `toml:"archive_keep_epochs"`
	// ArchiveBatch caps rounds archived per tick.
	ArchiveBatch int `toml:"archive_batch"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// AdminAPIKey / AdminAPISecret protect the admin endpoints. Empty
	// disables them.
	AdminAPIKey    string `toml:"admin_api_key"`
	AdminAPISecret string `toml:"admin_api_secret"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:  "http://localhost:8545",
			ChainID: 56,
		},
		Oracle: OracleConfig{
			UpdateAllowance: duration{5 * time.Minute},
		},
		Engine: EngineConfig{
			IntervalBlocks: 100,
			BufferBlocks:   20,
			MinBetAmount:   "100000000", // 1000 tokens at 5 decimals
			TreasuryFeeBps: 300,
			BetPolicy:      "accumulate",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "prediction",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "prediction-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Driver: DriverConfig{
			PollInterval: duration{3 * time.Second},
			LockTTL:      duration{30 * time.Second},
			ArchiveBatch: 100,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"round_locked", "round_settled", "round_cancelled", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"operator":   true,
	"api":        true,
	"standalone": true,
	"full":       true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// MinBetAmountInt parses the configured bet floor.
func (c *EngineConfig) MinBetAmountInt() (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(c.MinBetAmount), 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("engine: min_bet_amount %q is not a positive decimal", c.MinBetAmount)
	}
	return v, nil
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: operator, api, standalone, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	chainBacked := mode == "operator" || mode == "full"

	// Chain — required whenever the process talks to a real chain.
	if chainBacked {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty for mode "+c.Mode)
		}
		if c.Chain.ChainID <= 0 {
			errs = append(errs, fmt.Sprintf("chain: chain_id must be positive, got %d", c.Chain.ChainID))
		}
		if c.Oracle.AggregatorAddress == "" {
			errs = append(errs, "oracle: aggregator_address is required for mode "+c.Mode)
		} else if !common.IsHexAddress(c.Oracle.AggregatorAddress) {
			errs = append(errs, fmt.Sprintf("oracle: aggregator_address %q is not a hex address", c.Oracle.AggregatorAddress))
		}
		if c.Token.ERC20Address != "" && !common.IsHexAddress(c.Token.ERC20Address) {
			errs = append(errs, fmt.Sprintf("token: erc20_address %q is not a hex address", c.Token.ERC20Address))
		}
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Oracle.UpdateAllowance.Duration <= 0 {
		errs = append(errs, "oracle: update_allowance must be positive")
	}

	// Engine
	if c.Engine.IntervalBlocks == 0 {
		errs = append(errs, "engine: interval_blocks must be positive")
	}
	if _, err := c.Engine.MinBetAmountInt(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Engine.TreasuryFeeBps > 1000 {
		errs = append(errs, fmt.Sprintf("engine: treasury_fee_bps must be <= 1000, got %d", c.Engine.TreasuryFeeBps))
	}
	if p := strings.ToLower(c.Engine.BetPolicy); p != "accumulate" && p != "reject" {
		errs = append(errs, fmt.Sprintf("engine: bet_policy must be accumulate or reject, got %q", c.Engine.BetPolicy))
	}

	// Roles
	if c.Roles.Admin == "" {
		errs = append(errs, "roles: admin must not be empty")
	} else if !common.IsHexAddress(c.Roles.Admin) {
		errs = append(errs, fmt.Sprintf("roles: admin %q is not a hex address", c.Roles.Admin))
	}
	if c.Roles.Operator == "" {
		errs = append(errs, "roles: operator must not be empty")
	} else if !common.IsHexAddress(c.Roles.Operator) {
		errs = append(errs, fmt.Sprintf("roles: operator %q is not a hex address", c.Roles.Operator))
	}

	// Postgres — standalone mode runs on memory stores.
	if mode != "standalone" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Driver
	if c.Driver.PollInterval.Duration <= 0 {
		errs = append(errs, "driver: poll_interval must be positive")
	}
	if c.Driver.LockTTL.Duration <= 0 {
		errs = append(errs, "driver: lock_ttl must be positive")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		ak := c.Server.AdminAPIKey != ""
		as := c.Server.AdminAPISecret != ""
		if ak != as {
			errs = append(errs, "server: admin_api_key and admin_api_secret must be set together")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
