package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	LLM       LLMConfig
	Storage   StorageConfig
	Generator GeneratorConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type LLMConfig struct {
	DefaultProvider string
	Model           string
	EmbeddingModel  string
	OpenAIKey       string
	OpenAIBaseURL   string
	AnthropicKey    string
	MaxAttempts     int
	TimeoutSeconds  int
	MaxConcurrent   int
	// TokenSafetyLimit is the estimated-token threshold above which a prompt
	// is truncated before the first attempt; PromptCharLimit is the simpler
	// character-count proxy enforced alongside it.
	TokenSafetyLimit int
	PromptCharLimit  int
}

type StorageConfig struct {
	SupabaseURL string
	SupabaseKey string
	Bucket      string
}

// GeneratorConfig fixes the outer deadline for each generator flavor.
type GeneratorConfig struct {
	GapTimeoutSeconds        int
	InnovationTimeoutSeconds int
	ExperimentTimeoutSeconds int
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxAttempts, err := getEnvInt("LLM_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_ATTEMPTS: %w", err)
	}

	timeoutSec, err := getEnvInt("LLM_TIMEOUT_SECONDS", 60)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TIMEOUT_SECONDS: %w", err)
	}

	maxConcurrent, err := getEnvInt("LLM_MAX_CONCURRENT", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_CONCURRENT: %w", err)
	}

	tokenLimit, err := getEnvInt("LLM_TOKEN_SAFETY_LIMIT", 6000)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TOKEN_SAFETY_LIMIT: %w", err)
	}

	charLimit, err := getEnvInt("LLM_PROMPT_CHAR_LIMIT", 8000)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_PROMPT_CHAR_LIMIT: %w", err)
	}

	gapTimeout, err := getEnvInt("GENERATOR_GAP_TIMEOUT_SECONDS", 600)
	if err != nil {
		return nil, fmt.Errorf("invalid GENERATOR_GAP_TIMEOUT_SECONDS: %w", err)
	}

	innovationTimeout, err := getEnvInt("GENERATOR_INNOVATION_TIMEOUT_SECONDS", 450)
	if err != nil {
		return nil, fmt.Errorf("invalid GENERATOR_INNOVATION_TIMEOUT_SECONDS: %w", err)
	}

	experimentTimeout, err := getEnvInt("GENERATOR_EXPERIMENT_TIMEOUT_SECONDS", 300)
	if err != nil {
		return nil, fmt.Errorf("invalid GENERATOR_EXPERIMENT_TIMEOUT_SECONDS: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			AllowedOrigins: strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ","),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: maxConns,
			MinConns: minConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			Model:            getEnv("LLM_DEFAULT_MODEL", "gpt-4o"),
			EmbeddingModel:   getEnv("LLM_EMBEDDING_MODEL", "text-embedding-3-small"),
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			MaxAttempts:      maxAttempts,
			TimeoutSeconds:   timeoutSec,
			MaxConcurrent:    maxConcurrent,
			TokenSafetyLimit: tokenLimit,
			PromptCharLimit:  charLimit,
		},
		Storage: StorageConfig{
			SupabaseURL: getEnv("SUPABASE_URL", ""),
			SupabaseKey: getEnv("SUPABASE_SERVICE_KEY", ""),
			Bucket:      getEnv("STORAGE_BUCKET", "papers"),
		},
		Generator: GeneratorConfig{
			GapTimeoutSeconds:        gapTimeout,
			InnovationTimeoutSeconds: innovationTimeout,
			ExperimentTimeoutSeconds: experimentTimeout,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
