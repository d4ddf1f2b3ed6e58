package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
port: "3443"
env: "test"
llm:
  provider: "anthropic"
  model: "from-yaml"
pipeline:
  max_attempts: 5
redis:
  host: "redis.example.com"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	t.Setenv("PORT", "4443")
	t.Setenv("LLM_MODEL", "from-env")
	t.Setenv("LLM_API_KEY", "secret")

	cfg, err := LoadFrom(path, "test-version")
	require.NoError(t, err)

	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "4443", cfg.Port)
	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.Equal(t, "secret", cfg.LLM.APIKey)
	assert.Equal(t, 5, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 1000, cfg.Pipeline.RowLimit, "unset YAML fields fall back to defaults")
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr())
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"), "dev")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 1000, cfg.Pipeline.RowLimit)
	assert.Equal(t, 20, cfg.Pipeline.SampleRows)
	assert.InDelta(t, 0.1, cfg.Pipeline.GenerationTemperature, 1e-9)
	assert.InDelta(t, 0.3, cfg.Pipeline.AnswerTemperature, 1e-9)
	assert.Equal(t, "10m0s", cfg.Pipeline.SchemaCacheTTL().String())
	assert.Equal(t, "vkg", cfg.Pipeline.QueryMode)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "2m0s", cfg.Engine.QueryTimeout().String())
	assert.Equal(t, "1m0s", cfg.LLM.Timeout().String())
	assert.Equal(t, "30s", cfg.LLM.BreakerReset().String())
}

func TestLoadFrom_InvalidValue(t *testing.T) {
	t.Setenv("VKG_ROW_LIMIT", "0")

	_, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"), "dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row_limit")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Engine:   EngineConfig{ServerURL: "http://localhost:8080"},
			LLM:      LLMConfig{Provider: "openai", Model: "gpt-4o"},
			Pipeline: PipelineConfig{MaxAttempts: 3, RowLimit: 1000, SampleRows: 20, SchemaCacheTTLSeconds: 600},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"anthropic is valid", func(c *Config) { c.LLM.Provider = "Anthropic" }, ""},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "cohere" }, "llm.provider"},
		{"missing model", func(c *Config) { c.LLM.Model = "" }, "llm.model"},
		{"zero attempts", func(c *Config) { c.Pipeline.MaxAttempts = 0 }, "max_attempts"},
		{"row limit too large", func(c *Config) { c.Pipeline.RowLimit = 10001 }, "row_limit"},
		{"zero sample rows", func(c *Config) { c.Pipeline.SampleRows = 0 }, "sample_rows"},
		{"negative ttl", func(c *Config) { c.Pipeline.SchemaCacheTTLSeconds = -1 }, "schema_cache_ttl"},
		{"zero temperature is valid", func(c *Config) { c.Pipeline.GenerationTemperature = 0 }, ""},
		{"negative generation temperature", func(c *Config) { c.Pipeline.GenerationTemperature = -0.1 }, "generation_temperature"},
		{"answer temperature too high", func(c *Config) { c.Pipeline.AnswerTemperature = 2.5 }, "answer_temperature"},
		{"missing engine", func(c *Config) { c.Engine.ServerURL = "" }, "engine.server_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", c.ConnectionString())
}
