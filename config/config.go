package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LLMProvider    string // anthropic, openai, ollama, none
	AnthropicKey   string // API key (X-Api-Key header)
	AnthropicToken string // OAuth token (Authorization: Bearer header)
	OpenAIKey      string
	LLMModel       string
	OllamaBaseURL  string
	LLMTimeout     time.Duration
	LLMRatePerMin  int
	BreakerTrips   int

	RouterStrategy string // rules, model
	RulesFile      string
	ToolTimeout    time.Duration
	MemoryMaxTurns int

	DatabaseDriver string // sqlite, pgx
	DatabaseURL    string

	HTTPAddr  string
	APITokens map[string]string // bearer token -> username
	GinMode   string

	DiscordToken string

	SearchBackend string // duckduckgo, searxng
	SearXNGURL    string

	SweepCron         string
	ConversationIdle  time.Duration
	ChatRetentionDays int

	LogLevel       string
	LogFormat      string
	TracingEnabled bool
}

// Dir is where the installed service keeps its settings.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".taskbot")
}

// File is the env file read after ./.env. Values already set win.
func File() string {
	return filepath.Join(Dir(), "env")
}

func Load() *Config {
	_ = godotenv.Load()       // ignore error if no .env
	_ = godotenv.Load(File()) // nor ~/.taskbot/env

	return &Config{
		LLMProvider:    envOr("LLM_PROVIDER", "openai"),
		AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicToken: os.Getenv("ANTHROPIC_AUTH_TOKEN"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		LLMModel:       os.Getenv("LLM_MODEL"),
		OllamaBaseURL:  envOr("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
		LLMTimeout:     envDuration("LLM_TIMEOUT", 5*time.Second),
		LLMRatePerMin:  envInt("LLM_RATE_PER_MIN", 60),
		BreakerTrips:   envInt("LLM_BREAKER_TRIPS", 5),

		RouterStrategy: envOr("ROUTER_STRATEGY", "rules"),
		RulesFile:      os.Getenv("ROUTER_RULES_FILE"),
		ToolTimeout:    envDuration("TOOL_TIMEOUT", 10*time.Second),
		MemoryMaxTurns: envInt("MEMORY_MAX_TURNS", 20),

		DatabaseDriver: envOr("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:    envOr("DATABASE_URL", "./taskbot.db"),

		HTTPAddr:  envOr("HTTP_ADDR", ":8000"),
		APITokens: parseTokens(os.Getenv("API_TOKENS")),
		GinMode:   envOr("GIN_MODE", "debug"),

		DiscordToken: os.Getenv("DISCORD_BOT_TOKEN"),

		SearchBackend: envOr("SEARCH_BACKEND", "duckduckgo"),
		SearXNGURL:    os.Getenv("SEARXNG_URL"),

		SweepCron:         envOr("SWEEP_CRON", "*/10 * * * *"),
		ConversationIdle:  envDuration("CONVERSATION_IDLE", 2*time.Hour),
		ChatRetentionDays: envInt("CHAT_RETENTION_DAYS", 90),

		LogLevel:       envOr("LOG_LEVEL", "info"),
		LogFormat:      envOr("LOG_FORMAT", "text"),
		TracingEnabled: envBool("TRACING_ENABLED", false),
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.RouterStrategy {
	case "rules", "model":
	default:
		return fmt.Errorf("ROUTER_STRATEGY must be rules or model, got %q", c.RouterStrategy)
	}
	if c.RouterStrategy == "model" && c.LLMProvider == "none" {
		return fmt.Errorf("ROUTER_STRATEGY=model needs an LLM_PROVIDER")
	}
	switch c.DatabaseDriver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be sqlite or pgx, got %q", c.DatabaseDriver)
	}
	switch c.SearchBackend {
	case "duckduckgo", "none":
	case "searxng":
		if c.SearXNGURL == "" {
			return fmt.Errorf("SEARCH_BACKEND=searxng needs SEARXNG_URL")
		}
	default:
		return fmt.Errorf("unknown SEARCH_BACKEND %q", c.SearchBackend)
	}
	if c.MemoryMaxTurns < 1 {
		return fmt.Errorf("MEMORY_MAX_TURNS must be positive, got %d", c.MemoryMaxTurns)
	}
	if c.LLMTimeout <= 0 || c.ToolTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT and TOOL_TIMEOUT must be positive")
	}
	return nil
}

// parseTokens reads "token:username,token2:username2".
func parseTokens(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		token, user, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || token == "" || user == "" {
			continue
		}
		out[token] = user
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
