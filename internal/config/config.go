package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Model provider
	LLMProvider       string
	LLMAPIKey         string
	LLMModel          string
	LLMConcurrentReqs int
	LLMTimeout        time.Duration

	// Sessions
	SessionTTL        time.Duration
	SessionMaxEntries int
	HistoryTTL        time.Duration
	HistoryMaxTurns   int
	JWTSecret         string

	// Optional backing services; empty disables the feature that needs them
	DatabaseURL string
	RedisURL    string
	WorkerCount int

	// HTTP
	AllowedOrigins     []string
	RateLimitPerMinute int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	provider := strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderGemini))

	cfg := &Config{
		Port:               getEnvOrDefault("PORT", "5000"),
		Env:                getEnvOrDefault("ENV", "development"),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		LLMProvider:        provider,
		LLMConcurrentReqs:  getEnvAsIntOrDefault("LLM_CONCURRENT_REQUESTS", 5),
		LLMTimeout:         getEnvAsDurationOrDefault("LLM_TIMEOUT", 60*time.Second),
		SessionTTL:         getEnvAsDurationOrDefault("SESSION_TTL", 30*time.Minute),
		SessionMaxEntries:  getEnvAsIntOrDefault("SESSION_MAX_ENTRIES", 1000),
		HistoryTTL:         getEnvAsDurationOrDefault("HISTORY_TTL", 24*time.Hour),
		HistoryMaxTurns:    getEnvAsIntOrDefault("HISTORY_MAX_TURNS", 20),
		JWTSecret:          mustGetEnv("JWT_SECRET"),
		DatabaseURL:        getEnvOrDefault("DATABASE_URL", ""),
		RedisURL:           getEnvOrDefault("REDIS_URL", ""),
		WorkerCount:        getEnvAsIntOrDefault("WORKER_COUNT", 3),
		AllowedOrigins:     splitList(getEnvOrDefault("FRONTEND_URL", "*")),
		RateLimitPerMinute: getEnvAsIntOrDefault("RATE_LIMIT_PER_MINUTE", 30),
	}

	switch provider {
	case ProviderGemini:
		cfg.LLMAPIKey = mustGetEnv("GEMINI_API_KEY")
		cfg.LLMModel = getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash-8b")
	case ProviderOpenAI:
		cfg.LLMAPIKey = mustGetEnv("OPENAI_API_KEY")
		cfg.LLMModel = getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini")
	default:
		panic(fmt.Sprintf("unsupported LLM_PROVIDER %q (want %q or %q)", provider, ProviderGemini, ProviderOpenAI))
	}

	return cfg
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
