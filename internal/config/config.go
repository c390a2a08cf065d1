package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port   string
	DBPath string

	// Backfill orchestration.
	MaxConcurrent int
	Stagger       time.Duration
	GroupPause    time.Duration
	Lookback      time.Duration

	// Provider pacing and retries.
	MaxRequestRate   float64 // requests per second
	RetryMaxAttempts int
	ProviderEndpoint string
	ProviderAPIKey   string

	// Quality and alerting.
	AlertThreshold int

	// Recurring trigger. DailyAt is "HH:MM"; Interval of 0 disables the
	// interval schedule.
	DailyAt  string
	Interval time.Duration

	// Comma-separated "SYMBOL:asset_class:timeframe" triples used to seed the
	// symbol registry when it is empty.
	SeedSymbols string
}

func Load() Config {
	// A local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	return Config{
		Port:             getEnv("PORT", "8080"),
		DBPath:           getEnv("DB_PATH", "marketsync.db"),
		MaxConcurrent:    getEnvInt("MAX_CONCURRENT", 3),
		Stagger:          getEnvDuration("STAGGER", 5*time.Second),
		GroupPause:       getEnvDuration("GROUP_PAUSE", 10*time.Second),
		Lookback:         getEnvDuration("LOOKBACK", 30*24*time.Hour),
		MaxRequestRate:   getEnvFloat("MAX_REQUEST_RATE", 2.0),
		RetryMaxAttempts: getEnvPositiveInt("RETRY_MAX_ATTEMPTS", 5),
		ProviderEndpoint: getEnv("PROVIDER_ENDPOINT", "https://api.marketfeed.dev/v1/bars"),
		ProviderAPIKey:   getEnv("PROVIDER_API_KEY", ""),
		AlertThreshold:   getEnvInt("ALERT_THRESHOLD", 3),
		DailyAt:          getEnv("BACKFILL_DAILY_AT", "17:30"),
		Interval:         getEnvDuration("BACKFILL_INTERVAL", 0),
		SeedSymbols:      getEnv("SEED_SYMBOLS", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvPositiveInt is getEnvInt for values that must be at least 1, such as
// retry attempt ceilings. Zero and negative values fall back.
func getEnvPositiveInt(key string, fallback int) int {
	n := getEnvInt(key, fallback)
	if n < 1 {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
