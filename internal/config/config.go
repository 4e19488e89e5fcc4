// Package config loads the service configuration from YAML with environment
// overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Chain    ChainConfig    `yaml:"chain"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Supabase SupabaseConfig `yaml:"supabase"`
	IPFS     IPFSConfig     `yaml:"ipfs"`
	Sync     SyncConfig     `yaml:"sync"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ChainConfig configures Algorand access. The operator mnemonic is only read
// from the environment, never from the file.
type ChainConfig struct {
	AlgodURL         string `yaml:"algod_url"`
	AlgodToken       string `yaml:"algod_token"`
	IndexerURL       string `yaml:"indexer_url"`
	IndexerToken     string `yaml:"indexer_token"`
	OperatorMnemonic string `yaml:"-"`
	WaitRounds       uint64 `yaml:"wait_rounds"`
}

// DatabaseConfig configures the optional Postgres store.
type DatabaseConfig struct {
	DSN           string `yaml:"dsn"`
	MigrationsDir string `yaml:"migrations_dir"`
}

// RedisConfig configures the optional ledger cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// SupabaseConfig configures the auth/profile backend. ArtworkBucket is the
// storage bucket program artwork uploads land in.
type SupabaseConfig struct {
	ProjectURL    string `yaml:"project_url"`
	AnonKey       string `yaml:"anon_key"`
	ServiceKey    string `yaml:"-"`
	JWTSecret     string `yaml:"-"`
	ArtworkBucket string `yaml:"artwork_bucket"`
}

// IPFSConfig configures metadata reads.
type IPFSConfig struct {
	GatewayURL string        `yaml:"gateway_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// SyncConfig configures the XP ledger syncer and reconciler.
type SyncConfig struct {
	Interval      time.Duration `yaml:"interval"`
	ReconcileSpec string        `yaml:"reconcile_spec"`
}

// Load reads the config file named by GAIUS_CONFIG (default config.yaml),
// applies defaults, then environment overrides.
func Load() (*Config, error) {
	path := os.Getenv("GAIUS_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	return LoadFromPath(path)
}

// LoadFromPath reads and validates configuration from a specific file. A
// missing file yields the defaults so local development works with env vars
// alone.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults + env only
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the baseline configuration (Algorand testnet public nodes).
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8090,
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Chain: ChainConfig{
			AlgodURL:   "https://testnet-api.algonode.cloud",
			IndexerURL: "https://testnet-idx.algonode.cloud",
			WaitRounds: 4,
		},
		Database: DatabaseConfig{MigrationsDir: "migrations"},
		Redis:    RedisConfig{TTL: 5 * time.Minute},
		Supabase: SupabaseConfig{ArtworkBucket: "program-artwork"},
		IPFS: IPFSConfig{
			GatewayURL: "https://ipfs.io/ipfs",
			Timeout:    15 * time.Second,
		},
		Sync: SyncConfig{
			Interval:      30 * time.Second,
			ReconcileSpec: "@every 1h",
		},
	}
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.Chain.AlgodURL, "ALGOD_URL")
	setString(&c.Chain.AlgodToken, "ALGOD_TOKEN")
	setString(&c.Chain.IndexerURL, "INDEXER_URL")
	setString(&c.Chain.IndexerToken, "INDEXER_TOKEN")
	setString(&c.Chain.OperatorMnemonic, "GAIUS_OPERATOR_MNEMONIC")
	setString(&c.Database.DSN, "DATABASE_DSN")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Supabase.ProjectURL, "SUPABASE_URL")
	setString(&c.Supabase.AnonKey, "SUPABASE_ANON_KEY")
	setString(&c.Supabase.ServiceKey, "SUPABASE_SERVICE_KEY")
	setString(&c.Supabase.JWTSecret, "SUPABASE_JWT_SECRET")
	setString(&c.IPFS.GatewayURL, "IPFS_GATEWAY_URL")
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Chain.AlgodURL == "" {
		return fmt.Errorf("chain.algod_url is required")
	}
	if c.Chain.IndexerURL == "" {
		return fmt.Errorf("chain.indexer_url is required")
	}
	if c.Chain.WaitRounds == 0 {
		c.Chain.WaitRounds = 4
	}
	if c.Sync.Interval <= 0 {
		c.Sync.Interval = 30 * time.Second
	}
	return nil
}
