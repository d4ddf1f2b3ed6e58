package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigPath is read when present; environment variables always win.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for ekaya-vkg.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Ontology store (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Shared schema cache tier (optional)
	Redis RedisConfig `yaml:"redis"`

	// Federated SQL engine
	Engine EngineConfig `yaml:"engine"`

	// Reasoning oracle
	LLM LLMConfig `yaml:"llm"`

	// Query pipeline knobs
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// DatabaseConfig holds PostgreSQL configuration for the ontology store.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_vkg"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	RunMigrations  bool   `yaml:"run_migrations" env:"PG_RUN_MIGRATIONS" env-default:"false"`
}

// RedisConfig holds the optional L2 cache configuration. An empty host disables it.
type RedisConfig struct {
	Host      string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port      int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password  string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB        int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"vkg:"`
}

// Enabled returns true when a Redis host is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Addr returns host:port.
func (c *RedisConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// EngineConfig holds connection settings for the federated engine (Trino).
type EngineConfig struct {
	ServerURL           string `yaml:"server_url" env:"TRINO_SERVER_URL" env-default:"http://localhost:8080"`
	User                string `yaml:"user" env:"TRINO_USER" env-default:"ekaya"`
	Password            string `yaml:"-" env:"TRINO_PASSWORD"` // Secret - not in YAML
	Source              string `yaml:"source" env:"TRINO_SOURCE" env-default:"ekaya-vkg"`
	QueryTimeoutSeconds int    `yaml:"query_timeout_seconds" env:"TRINO_QUERY_TIMEOUT_SECONDS" env-default:"120"`
	MaxOpenConns        int    `yaml:"max_open_conns" env:"TRINO_MAX_OPEN_CONNS" env-default:"10"`
}

// QueryTimeout returns the per-query deadline.
func (c *EngineConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// LLMConfig holds the oracle configuration.
type LLMConfig struct {
	Provider            string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint            string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model               string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	APIKey              string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	MaxTokens           int    `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"2000"`
	TimeoutSeconds      int    `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"60"`
	BreakerThreshold    int    `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"5"`
	BreakerResetSeconds int    `yaml:"breaker_reset_seconds" env:"LLM_BREAKER_RESET_SECONDS" env-default:"30"`
}

// Timeout returns the per-call oracle deadline.
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BreakerReset returns how long an open circuit waits before admitting a trial call.
func (c *LLMConfig) BreakerReset() time.Duration {
	return time.Duration(c.BreakerResetSeconds) * time.Second
}

// PipelineConfig holds the VKG query pipeline knobs.
type PipelineConfig struct {
	MaxAttempts           int     `yaml:"max_attempts" env:"VKG_MAX_ATTEMPTS" env-default:"3"`
	RowLimit              int     `yaml:"row_limit" env:"VKG_ROW_LIMIT" env-default:"1000"`
	SampleRows            int     `yaml:"sample_rows" env:"VKG_SAMPLE_ROWS" env-default:"20"`
	GenerationTemperature float64 `yaml:"generation_temperature" env:"VKG_GENERATION_TEMPERATURE" env-default:"0.1"`
	AnswerTemperature     float64 `yaml:"answer_temperature" env:"VKG_ANSWER_TEMPERATURE" env-default:"0.3"`
	SchemaCacheTTLSeconds int     `yaml:"schema_cache_ttl_seconds" env:"VKG_SCHEMA_CACHE_TTL_SECONDS" env-default:"600"`
	QueryMode             string  `yaml:"query_mode" env:"VKG_QUERY_MODE" env-default:"vkg"`
}

// SchemaCacheTTL returns the SchemaContext cache lifetime.
func (c *PipelineConfig) SchemaCacheTTL() time.Duration {
	return time.Duration(c.SchemaCacheTTLSeconds) * time.Second
}

// Load reads configuration from config.yaml (when present) with environment
// variable overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	return LoadFrom(DefaultConfigPath, version)
}

// LoadFrom is Load with an explicit config file path.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.Database.Host = ResolveHostForDocker(cfg.Database.Host)
	cfg.Redis.Host = ResolveHostForDocker(cfg.Redis.Host)
	cfg.Engine.ServerURL = ResolveURLForDocker(cfg.Engine.ServerURL)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.max_attempts must be positive, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.RowLimit < 1 || c.Pipeline.RowLimit > 10000 {
		return fmt.Errorf("pipeline.row_limit must be between 1 and 10000, got %d", c.Pipeline.RowLimit)
	}
	if c.Pipeline.SampleRows < 1 {
		return fmt.Errorf("pipeline.sample_rows must be positive, got %d", c.Pipeline.SampleRows)
	}
	if c.Pipeline.SchemaCacheTTLSeconds < 0 {
		return fmt.Errorf("pipeline.schema_cache_ttl_seconds must not be negative")
	}
	if c.Pipeline.GenerationTemperature < 0 || c.Pipeline.GenerationTemperature > 2 {
		return fmt.Errorf("pipeline.generation_temperature must be between 0 and 2, got %g", c.Pipeline.GenerationTemperature)
	}
	if c.Pipeline.AnswerTemperature < 0 || c.Pipeline.AnswerTemperature > 2 {
		return fmt.Errorf("pipeline.answer_temperature must be between 0 and 2, got %g", c.Pipeline.AnswerTemperature)
	}
	if c.Engine.ServerURL == "" {
		return fmt.Errorf("engine.server_url is required")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
