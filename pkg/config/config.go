package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and nowhere else
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis (optional side cache)
	Redis RedisConfig

	// Market data provider
	Provider ProviderConfig

	// Metrics cache
	Cache CacheConfig

	// Warm scheduler
	Warm WarmConfig

	// Weekly settlement
	Settlement SettlementConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// ProviderConfig holds market-data provider configuration
type ProviderConfig struct {
	BaseURL string
	APIKey  string

	// Default budgets; the client lowers them permanently once the
	// provider reports its real limits.
	MinuteLimit int
	DayLimit    int
	Cooldown    time.Duration
	CallTimeout time.Duration

	// Best-effort company profile scrape
	ProfileBaseURL string
}

// CacheConfig holds metrics cache configuration
type CacheConfig struct {
	MemoryTTL  time.Duration // in-process accelerator tier
	DurableTTL time.Duration // source-of-truth tier, must exceed MemoryTTL

	// Benchmark is the ticker beta/alpha are computed against
	Benchmark string
}

// WarmConfig holds warm scheduler configuration
type WarmConfig struct {
	Interval    time.Duration
	BatchSize   int
	UniverseTTL time.Duration
	CronSpec    string
}

// SettlementConfig holds weekly settlement configuration
type SettlementConfig struct {
	Secret    string
	CallDelay time.Duration
}

// Load reads configuration from environment variables
// ⭐ SSOT: this is the only function that calls os.Getenv()
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8090"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Provider: ProviderConfig{
			BaseURL:        getEnv("PROVIDER_BASE_URL", "https://www.alphavantage.co/query"),
			APIKey:         getEnv("PROVIDER_API_KEY", ""),
			MinuteLimit:    getEnvAsInt("PROVIDER_MINUTE_LIMIT", 5),
			DayLimit:       getEnvAsInt("PROVIDER_DAY_LIMIT", 500),
			Cooldown:       getEnvAsDuration("PROVIDER_COOLDOWN", "60s"),
			CallTimeout:    getEnvAsDuration("PROVIDER_CALL_TIMEOUT", "15s"),
			ProfileBaseURL: getEnv("PROVIDER_PROFILE_BASE_URL", ""),
		},

		Cache: CacheConfig{
			MemoryTTL:  getEnvAsDuration("CACHE_MEMORY_TTL", "10m"),
			DurableTTL: getEnvAsDuration("CACHE_DURABLE_TTL", "24h"),
			Benchmark:  getEnv("CACHE_BENCHMARK", "SPY"),
		},

		Warm: WarmConfig{
			Interval:    getEnvAsDuration("WARM_INTERVAL", "60s"),
			BatchSize:   getEnvAsInt("WARM_BATCH_SIZE", 10),
			UniverseTTL: getEnvAsDuration("WARM_UNIVERSE_TTL", "6h"),
			CronSpec:    getEnv("WARM_CRON", "0 */5 * * * *"),
		},

		Settlement: SettlementConfig{
			Secret:    getEnv("SETTLEMENT_SECRET", ""),
			CallDelay: getEnvAsDuration("SETTLEMENT_CALL_DELAY", "13s"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Provider.MinuteLimit <= 0 || c.Provider.DayLimit <= 0 {
		return fmt.Errorf("provider limits must be positive")
	}

	// The memory tier is an accelerator over the durable tier, never a
	// longer-lived copy of it.
	if c.Cache.MemoryTTL >= c.Cache.DurableTTL {
		return fmt.Errorf("CACHE_MEMORY_TTL must be shorter than CACHE_DURABLE_TTL")
	}

	if c.Warm.BatchSize <= 0 {
		return fmt.Errorf("WARM_BATCH_SIZE must be positive")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",         // Current directory
		"backend/.env", // From project root
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
			filepath.Join(exeDir, "..", "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
