package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	StoragePath      string
	StorageBaseURL   string
	GeminiAPIKey     string
	GeminiModel      string
	GeminiBaseURL    string
	QueueConcurrency int
	QueueMaxRetries  int
	QueueRetryDelay  time.Duration
	FileHandleTTL    time.Duration
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:   getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		QueueConcurrency: getEnvInt("QUEUE_CONCURRENCY", 2),
		QueueMaxRetries:  getEnvInt("QUEUE_MAX_RETRIES", 2),
		QueueRetryDelay:  time.Millisecond * time.Duration(getEnvInt("QUEUE_RETRY_DELAY_MS", 500)),
		FileHandleTTL:    time.Hour * time.Duration(getEnvInt("FILE_HANDLE_TTL_HOURS", 46)),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.QueueConcurrency < 1 {
		cfg.QueueConcurrency = 1
	}
	if cfg.QueueMaxRetries < 0 {
		cfg.QueueMaxRetries = 0
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
