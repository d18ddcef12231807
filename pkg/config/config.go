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
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	Env string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis (가격 시계열 캐시)
	Redis RedisConfig

	// Recommendation lifecycle engine
	Lifecycle LifecycleConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// LifecycleConfig holds the runtime knobs of the evaluation loop and creation gate.
// Strategy policy (stop-loss, TTL, cooldown) lives in the strategy YAML file.
type LifecycleConfig struct {
	StrategyFile string // 비어 있으면 내장 기본값 사용
	HolidayFile  string // 비어 있으면 내장 KRX 휴장일 사용
	Timezone     string

	Concurrency     int           // 종목 단위 병렬 평가 상한
	PriceTimeout    time.Duration // 가격 조회 1건당 타임아웃
	PriceRateLimit  int           // 초당 가격 조회 수
	PriceCacheTTL   time.Duration
	MaxErrorSamples int

	EvaluationSchedule string // cron (seconds field 포함)
	IntakeSchedule     string
	IntakeBatchSize    int
	CandidateLease     time.Duration // 큐 후보 선점 유효 시간
}

// Location resolves the market timezone, falling back to Asia/Seoul.
func (c LifecycleConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

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

		Lifecycle: LifecycleConfig{
			StrategyFile:       getEnv("LIFECYCLE_STRATEGY_FILE", ""),
			HolidayFile:        getEnv("LIFECYCLE_HOLIDAY_FILE", ""),
			Timezone:           getEnv("MARKET_TIMEZONE", "Asia/Seoul"),
			Concurrency:        getEnvAsInt("LIFECYCLE_CONCURRENCY", 8),
			PriceTimeout:       getEnvAsDuration("PRICE_TIMEOUT", "5s"),
			PriceRateLimit:     getEnvAsInt("PRICE_RATE_LIMIT", 20),
			PriceCacheTTL:      getEnvAsDuration("PRICE_CACHE_TTL", "24h"),
			MaxErrorSamples:    getEnvAsInt("MAX_ERROR_SAMPLES", 10),
			EvaluationSchedule: getEnv("EVALUATION_SCHEDULE", "0 30 16 * * 1-5"), // 장 마감 후 16:30
			IntakeSchedule:     getEnv("INTAKE_SCHEDULE", "0 */10 8-18 * * 1-5"),
			IntakeBatchSize:    getEnvAsInt("INTAKE_BATCH_SIZE", 200),
			CandidateLease:     getEnvAsDuration("CANDIDATE_CLAIM_LEASE", "5m"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
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

	if c.Lifecycle.Concurrency < 1 {
		return fmt.Errorf("LIFECYCLE_CONCURRENCY must be >= 1")
	}
	if c.Lifecycle.PriceTimeout <= 0 {
		return fmt.Errorf("PRICE_TIMEOUT must be > 0")
	}
	if c.Lifecycle.MaxErrorSamples < 1 {
		return fmt.Errorf("MAX_ERROR_SAMPLES must be >= 1")
	}
	if c.Lifecycle.CandidateLease <= 0 {
		return fmt.Errorf("CANDIDATE_CLAIM_LEASE must be > 0")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
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
