// Copyright 2025 Certen Protocol
//
// Config holds runtime configuration for a Dragon Net node, loaded from
// environment variables (§6.4). An optional YAML file may overlay
// defaults before the environment is applied, the Duration-wrapper +
// yaml.v3 pattern anchor_config.go uses.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Level is this node's role in the verification hierarchy, 1-5.
type Level int

// ProofScheme selects how blocks produced on this node are proved.
type ProofScheme string

const (
	ProofSchemeTrust ProofScheme = "trust"
	ProofSchemeWork  ProofScheme = "work"
)

// Duration wraps time.Duration with YAML (de)serialization from
// human-readable strings ("30s", "1h"), the anchor_config.go Duration
// type's approach.
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the full set of environment-driven settings a node reads.
type Config struct {
	// Role (§6.4).
	Level             Level
	Broadcast         bool
	BroadcastInterval Duration // hours, L5 only — stored as a Duration for convenience

	// Storage (§6.4, §6.2).
	StorageType     string // "kvdb" | "firestore"
	StorageLocation string

	// Coordination store (§6.4).
	RedisEndpoint      string
	RedisPort          int
	LRURedisEndpoint   string
	RediSearchEndpoint string

	// Signing (§4.2, §6.3).
	ProofScheme ProofScheme
	Hash        string // SHA256 | SHA3-256 | BLAKE2b512
	Encryption  string

	// Identity (§6.3, §6.1).
	InternalID          string
	DragonchainEndpoint string
	DragonchainName     string

	// Outbound HMAC identity: the key_id/secret pair this node
	// signs its own /v1/enqueue and /v1/receipt POSTs under. A
	// peer accepts them once this key_id has been registered with
	// it via /v1/interchain-auth-register.
	KeyID     string
	SecretKey string

	// Rate limiting (§6.3).
	RateLimit int

	// Per-network RPC endpoint overrides (§6.4), keyed by chain name
	// ("bitcoin", "ethereum", "binance").
	NetworkRPCEndpoints map[string]string

	// InterchainPrivateKey funds and signs this node's anchor
	// transactions on whichever public network NetworkRPCEndpoints
	// selects (L5 only).
	InterchainPrivateKey string

	// Firestore overlay, only consulted when StorageType == "firestore".
	FirebaseProjectID       string
	FirebaseCredentialsFile string
	FirestoreEnabled        bool

	// Postgres secondary index (C6).
	DatabaseURL         string
	DatabaseMaxConns    int
	DatabaseMinConns    int
	DatabaseMaxIdleTime int // seconds
	DatabaseMaxLifetime int // seconds
	DatabaseRequired    bool

	// HTTP ingress (C10).
	ListenAddr string
}

// Load reads configuration from environment variables, optionally
// overlaying a YAML file named by CONFIG_FILE first.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := overlayYAML(cfg, path); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Level:               1,
		Broadcast:           false,
		BroadcastInterval:   Duration(time.Hour),
		StorageType:         "kvdb",
		StorageLocation:     "./data",
		RedisEndpoint:       "127.0.0.1",
		RedisPort:           6379,
		ProofScheme:         ProofSchemeTrust,
		Hash:                "SHA256",
		Encryption:          "",
		RateLimit:           100,
		NetworkRPCEndpoints: map[string]string{},
		DatabaseMaxConns:    25,
		DatabaseMinConns:    5,
		DatabaseMaxIdleTime: 300,
		DatabaseMaxLifetime: 3600,
		ListenAddr:          "0.0.0.0:8080",
	}
}

func overlayYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	expanded := expandEnv(string(data))
	return yaml.Unmarshal([]byte(expanded), cfg)
}

// expandEnv substitutes ${VAR} references, anchor_config.go's
// substitution behavior.
func expandEnv(s string) string {
	return os.Expand(s, func(name string) string { return os.Getenv(name) })
}

func applyEnv(cfg *Config) {
	cfg.Level = Level(getEnvInt("LEVEL", int(cfg.Level)))
	cfg.Broadcast = getEnvBool("BROADCAST", cfg.Broadcast)
	cfg.BroadcastInterval = Duration(time.Duration(getEnvInt("BROADCAST_INTERVAL", int(time.Duration(cfg.BroadcastInterval).Hours()))) * time.Hour)

	cfg.StorageType = getEnv("STORAGE_TYPE", cfg.StorageType)
	cfg.StorageLocation = getEnv("STORAGE_LOCATION", cfg.StorageLocation)

	cfg.RedisEndpoint = getEnv("REDIS_ENDPOINT", cfg.RedisEndpoint)
	cfg.RedisPort = getEnvInt("REDIS_PORT", cfg.RedisPort)
	cfg.LRURedisEndpoint = getEnv("LRU_REDIS_ENDPOINT", cfg.LRURedisEndpoint)
	cfg.RediSearchEndpoint = getEnv("REDISEARCH_ENDPOINT", cfg.RediSearchEndpoint)

	cfg.ProofScheme = ProofScheme(getEnv("PROOF_SCHEME", string(cfg.ProofScheme)))
	cfg.Hash = getEnv("HASH", cfg.Hash)
	cfg.Encryption = getEnv("ENCRYPTION", cfg.Encryption)

	cfg.InternalID = getEnv("INTERNAL_ID", cfg.InternalID)
	cfg.DragonchainEndpoint = getEnv("DRAGONCHAIN_ENDPOINT", cfg.DragonchainEndpoint)
	cfg.DragonchainName = getEnv("DRAGONCHAIN_NAME", cfg.DragonchainName)

	cfg.RateLimit = getEnvInt("RATE_LIMIT", cfg.RateLimit)

	cfg.KeyID = getEnv("KEY_ID", cfg.KeyID)
	cfg.SecretKey = getEnv("SECRET_KEY", cfg.SecretKey)

	for _, chain := range []string{"BITCOIN", "ETHEREUM", "BINANCE"} {
		if v := os.Getenv(chain + "_RPC_URL"); v != "" {
			cfg.NetworkRPCEndpoints[strings.ToLower(chain)] = v
		}
	}
	cfg.InterchainPrivateKey = getEnv("INTERCHAIN_PRIVATE_KEY", cfg.InterchainPrivateKey)

	cfg.FirebaseProjectID = getEnv("FIREBASE_PROJECT_ID", cfg.FirebaseProjectID)
	cfg.FirebaseCredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", cfg.FirebaseCredentialsFile)
	cfg.FirestoreEnabled = getEnvBool("FIRESTORE_ENABLED", cfg.FirestoreEnabled)

	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.DatabaseMaxConns = getEnvInt("DATABASE_MAX_CONNS", cfg.DatabaseMaxConns)
	cfg.DatabaseMinConns = getEnvInt("DATABASE_MIN_CONNS", cfg.DatabaseMinConns)
	cfg.DatabaseMaxIdleTime = getEnvInt("DATABASE_MAX_IDLE_TIME", cfg.DatabaseMaxIdleTime)
	cfg.DatabaseMaxLifetime = getEnvInt("DATABASE_MAX_LIFETIME", cfg.DatabaseMaxLifetime)
	cfg.DatabaseRequired = getEnvBool("DATABASE_REQUIRED", cfg.DatabaseRequired)

	cfg.ListenAddr = getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("API_PORT", "8080")
}

// Validate checks that the configuration is internally consistent for
// this node's level.
func (c *Config) Validate() error {
	var errs []string

	if c.Level < 1 || c.Level > 5 {
		errs = append(errs, fmt.Sprintf("LEVEL must be 1-5, got %d", c.Level))
	}
	if c.Level == 1 && c.Broadcast {
		// L1 broadcast processor requires a coordination store.
		if c.RedisEndpoint == "" {
			errs = append(errs, "REDIS_ENDPOINT is required when BROADCAST=true")
		}
	}
	if c.ProofScheme != ProofSchemeTrust && c.ProofScheme != ProofSchemeWork {
		errs = append(errs, fmt.Sprintf("PROOF_SCHEME must be trust or work, got %q", c.ProofScheme))
	}
	switch c.Hash {
	case "SHA256", "SHA3-256", "BLAKE2b512":
	default:
		errs = append(errs, fmt.Sprintf("HASH must be one of SHA256, SHA3-256, BLAKE2b512, got %q", c.Hash))
	}
	if c.StorageType != "kvdb" && c.StorageType != "firestore" {
		errs = append(errs, fmt.Sprintf("STORAGE_TYPE must be kvdb or firestore, got %q", c.StorageType))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
