package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvDevelopment is the ACCOLADE_ENV value that allows the built-in JWT
// signing key.
const EnvDevelopment = "development"

const devSigningKey = "dev-secret-key-change-in-production"

// Server captures process level configuration.
type Server struct {
	Addr     string
	LogLevel string
	// Env is ACCOLADE_ENV; anything but "development" is treated as production.
	Env string

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Contract ContractConfig
}

// DatabaseConfig selects the persistent store. An empty URL keeps state in memory.
type DatabaseConfig struct {
	URL             string
	Driver          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the challenge nonce store. An empty URL keeps nonces in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit sink. No brokers keeps audit events in memory.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// AuthConfig configures wallet sign-in and access tokens.
type AuthConfig struct {
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TokenTTL      time.Duration
	ChallengeTTL  time.Duration
	// DevSigningKey is set when JWTSigningKey is the built-in development key.
	// Anyone can mint tokens with it, including for the admin address.
	DevSigningKey bool
}

// ContractConfig holds the construction parameters: the deployer becomes
// admin, and the registry is seeded with the initial labels.
type ContractConfig struct {
	Admin           string
	PermissionGiver string
	SeedLabels      []string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	tokenTTL, err := durationEnv("JWT_TTL", 15*time.Minute)
	if err != nil {
		return Server{}, err
	}
	challengeTTL, err := durationEnv("CHALLENGE_TTL", 5*time.Minute)
	if err != nil {
		return Server{}, err
	}
	poolSize, err := intEnv("REDIS_POOL_SIZE", 10)
	if err != nil {
		return Server{}, err
	}
	maxOpen, err := intEnv("DATABASE_MAX_OPEN_CONNS", 10)
	if err != nil {
		return Server{}, err
	}

	seedLabels, err := jsonListEnv("ACHIEVEMENT_SEED_LABELS")
	if err != nil {
		return Server{}, err
	}

	env := stringEnv("ACCOLADE_ENV", "production")
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	devKey := false
	if jwtSigningKey == "" {
		if env != EnvDevelopment {
			return Server{}, errors.New("JWT_SIGNING_KEY is required unless ACCOLADE_ENV=development")
		}
		jwtSigningKey = devSigningKey
		devKey = true
	}

	return Server{
		Addr:     stringEnv("ACCOLADE_ADDR", ":8080"),
		LogLevel: stringEnv("LOG_LEVEL", "info"),
		Env:      env,
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Driver:          stringEnv("DATABASE_DRIVER", "pgx"),
			MaxOpenConns:    maxOpen,
			MaxIdleConns:    maxOpen / 2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     poolSize,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:    listEnv("KAFKA_BROKERS"),
			AuditTopic: stringEnv("AUDIT_TOPIC", "accolade.audit"),
		},
		Auth: AuthConfig{
			JWTSigningKey: jwtSigningKey,
			JWTIssuer:     stringEnv("JWT_ISSUER", "accolade"),
			JWTAudience:   stringEnv("JWT_AUDIENCE", "accolade-api"),
			TokenTTL:      tokenTTL,
			ChallengeTTL:  challengeTTL,
			DevSigningKey: devKey,
		},
		Contract: ContractConfig{
			Admin:           os.Getenv("ADMIN_ADDRESS"),
			PermissionGiver: os.Getenv("PERMISSION_GIVER_ADDRESS"),
			SeedLabels:      seedLabels,
		},
	}, nil
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration", key)
	}
	return d, nil
}

// listEnv splits a comma separated value, dropping surrounding whitespace.
// Empty items are kept out, but duplicates are preserved.
func listEnv(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// jsonListEnv reads a JSON array of strings. Items are kept byte for byte,
// so they may contain commas or surrounding spaces.
func jsonListEnv(key string) ([]string, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return nil, fmt.Errorf("%s must be a JSON array of strings: %w", key, err)
	}
	return out, nil
}
