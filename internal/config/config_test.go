package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var managedKeys = []string{
	"RESEARCH_PROVIDER", "RESEARCH_MODEL", "RESEARCH_API_KEY", "OPENAI_API_KEY",
	"RESEARCH_BASE_URL", "OPENAI_BASE_URL", "RESEARCH_TIMEOUT", "RESEARCH_POLL_INTERVAL",
	"RESEARCH_MAX_RETRIES", "LOGGING_LEVEL", "LOG_FILE", "ENABLE_CLARIFICATION",
	"CLARIFICATION_ENABLE", "CLARIFICATION_TRIAGE_MODEL", "CLARIFICATION_CLARIFIER_MODEL",
	"CLARIFICATION_INSTRUCTION_BUILDER_MODEL", "INSTRUCTION_BUILDER_MODEL",
	"CLARIFICATION_BASE_URL", "CLARIFICATION_CLARIFICATION_BASE_URL",
	"CLARIFICATION_API_KEY", "CLARIFICATION_CLARIFICATION_API_KEY",
	"ENABLE_INSTRUCTION_BUILDER", "CLARIFICATION_ENABLE_INSTRUCTION_BUILDER",
	"RESEARCH_RATE_LIMIT_TPM", "CLARIFICATION_SESSION_TTL", "CLARIFICATION_MAX_SESSIONS",
	"RESEARCH_LOCAL_MAX_STEPS", "METRICS_PORT", "OTEL_ENABLED",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SERVICE_NAME",
	"BRAVE_API_KEY", "SEARCH_API_KEY", "BRAVE_BASE_URL", "SEARCH_BASE_URL", "RESEARCH_LOCAL_SEARCH_RESULTS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range managedKeys {
		t.Setenv(key, "")
	}
}

func TestFromEnv(t *testing.T) {
	t.Run("Default configuration", func(t *testing.T) {
		clearEnv(t)
		cfg, err := FromEnv()
		require.NoError(t, err)

		assert.Equal(t, ProviderOpenAI, cfg.Provider)
		assert.Equal(t, "o4-mini-deep-research-2025-06-26", cfg.Model)
		assert.Equal(t, "https://api.openai.com/v1", cfg.BaseURL)
		assert.Equal(t, 1800*time.Second, cfg.Timeout)
		assert.Equal(t, 30*time.Second, cfg.PollInterval)
		assert.Equal(t, 3, cfg.MaxRetries)
		assert.False(t, cfg.EnableClarification)
		assert.Equal(t, "gpt-5-mini", cfg.TriageModel)
		assert.Equal(t, "gpt-5-mini", cfg.ClarifierModel)
		assert.Equal(t, "gpt-5-mini", cfg.InstructionBuilderModel)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Open deep research provider defaults", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RESEARCH_PROVIDER", "open-deep-research")
		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, "openai/qwen/qwen3-coder-30b", cfg.Model)
		assert.Equal(t, "http://localhost:1234/v1", cfg.BaseURL)
		assert.Equal(t, "https://api.search.brave.com/res/v1", cfg.SearchBaseURL)
		assert.Equal(t, 5, cfg.SearchResults)
	})

	t.Run("Search settings", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RESEARCH_PROVIDER", "open-deep-research")
		t.Setenv("BRAVE_API_KEY", "brave-key")
		t.Setenv("RESEARCH_LOCAL_SEARCH_RESULTS", "8")
		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, "brave-key", cfg.SearchAPIKey)
		assert.Equal(t, 8, cfg.SearchResults)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Unsupported provider", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RESEARCH_PROVIDER", "mystery")
		_, err := FromEnv()
		var cfgErr *ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "Provider 'mystery' is not supported", cfgErr.Error())
	})

	t.Run("Environment variable override", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RESEARCH_MODEL", "o3-deep-research-2025-06-26")
		t.Setenv("OPENAI_API_KEY", "sk-test-1234")
		t.Setenv("RESEARCH_TIMEOUT", "90.5")
		t.Setenv("RESEARCH_POLL_INTERVAL", "2")
		t.Setenv("RESEARCH_MAX_RETRIES", "5")
		t.Setenv("CLARIFICATION_SESSION_TTL", "2h")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, "o3-deep-research-2025-06-26", cfg.Model)
		assert.Equal(t, "sk-test-1234", cfg.APIKey)
		assert.Equal(t, 90500*time.Millisecond, cfg.Timeout)
		assert.Equal(t, 2*time.Second, cfg.PollInterval)
		assert.Equal(t, 5, cfg.MaxRetries)
		assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	})

	t.Run("Research key takes precedence", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RESEARCH_API_KEY", "sk-research")
		t.Setenv("OPENAI_API_KEY", "sk-openai")
		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, "sk-research", cfg.APIKey)
	})

	t.Run("Clarification aliases", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENABLE_CLARIFICATION", "maybe")
		t.Setenv("CLARIFICATION_ENABLE", "yes")
		t.Setenv("INSTRUCTION_BUILDER_MODEL", "gpt-5-nano")
		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.True(t, cfg.EnableClarification)
		assert.Equal(t, "gpt-5-nano", cfg.InstructionBuilderModel)
	})

	t.Run("Invalid number", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RESEARCH_TIMEOUT", "soon")
		_, err := FromEnv()
		var cfgErr *ConfigurationError
		assert.True(t, errors.As(err, &cfgErr))
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad key", func(c *Config) { c.APIKey = "not-a-key" }, "Invalid API key format"},
		{"local provider skips key format", func(c *Config) {
			c.Provider = ProviderOpenDeepResearch
			c.APIKey = "lm-studio"
			c.SearchAPIKey = "brave-key"
		}, ""},
		{"local provider needs search key", func(c *Config) {
			c.Provider = ProviderOpenDeepResearch
		}, "Web search API key is required for the open-deep-research provider (set BRAVE_API_KEY)"},
		{"local provider search results", func(c *Config) {
			c.Provider = ProviderOpenDeepResearch
			c.SearchAPIKey = "brave-key"
			c.SearchResults = 0
		}, "Search results per query must be positive"},
		{"timeout", func(c *Config) { c.Timeout = 0 }, "Timeout must be positive"},
		{"poll interval", func(c *Config) { c.PollInterval = -time.Second }, "Poll interval must be positive"},
		{"retries", func(c *Config) { c.MaxRetries = -1 }, "Max retries must be non-negative"},
		{"sessions", func(c *Config) { c.MaxSessions = 0 }, "Max sessions must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestLoadFileFlattensTables(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "deep_research.toml")
	content := `
[research]
provider = "openai"
model = "o3-deep-research-2025-06-26"
timeout = 600

[clarification]
enable = true
triage_model = "gpt-5-nano"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// Pre-set variables win over the file.
	t.Setenv("RESEARCH_MODEL", "from-env")

	require.NoError(t, LoadFile(path, zap.NewNop()))

	assert.Equal(t, "openai", os.Getenv("RESEARCH_PROVIDER"))
	assert.Equal(t, "from-env", os.Getenv("RESEARCH_MODEL"))
	assert.Equal(t, "600", os.Getenv("RESEARCH_TIMEOUT"))
	assert.Equal(t, "gpt-5-nano", os.Getenv("CLARIFICATION_TRIAGE_MODEL"))

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.EnableClarification)
	assert.Equal(t, 600*time.Second, cfg.Timeout)
}

func TestLoadFileMissingIsNotAnError(t *testing.T) {
	assert.NoError(t, LoadFile(filepath.Join(t.TempDir(), "absent"), nil))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "(not set)", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "********wxyz", MaskSecret("sk-abcdefwxyz"))
}

func TestClarificationEndpointFallsBack(t *testing.T) {
	cfg := Defaults()
	cfg.APIKey = "sk-main"
	base, key := cfg.ClarificationEndpoint()
	assert.Equal(t, cfg.BaseURL, base)
	assert.Equal(t, "sk-main", key)

	cfg.ClarificationBaseURL = "http://helper/v1"
	cfg.ClarificationAPIKey = "sk-helper"
	base, key = cfg.ClarificationEndpoint()
	assert.Equal(t, "http://helper/v1", base)
	assert.Equal(t, "sk-helper", key)
}
