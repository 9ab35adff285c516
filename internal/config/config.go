package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	ProviderOpenAI           = "openai"
	ProviderOpenDeepResearch = "open-deep-research"
)

// ConfigurationError reports an invalid or unsupported setting. It is raised
// eagerly at startup and never retried.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return e.Msg }

func configErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// TracingConfig mirrors tracing.Config so callers do not import both packages.
type TracingConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
}

// Config is the validated, read-only settings object shared by the agent,
// the clarification pipeline and the tool server.
type Config struct {
	Provider     string
	Model        string
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
	MaxRetries   int
	LogLevel     string
	LogFile      string

	EnableClarification  bool
	TriageModel          string
	ClarifierModel       string
	ClarificationBaseURL string
	ClarificationAPIKey  string

	EnableInstructionBuilder bool
	InstructionBuilderModel  string

	RateLimitTPM  int
	SessionTTL    time.Duration
	MaxSessions   int
	LocalMaxSteps int
	MetricsPort   int

	// Web search used by the open-deep-research provider.
	SearchAPIKey  string
	SearchBaseURL string
	SearchResults int

	Tracing       TracingConfig
}

// Defaults returns the configuration used when no environment is present.
func Defaults() Config {
	return Config{
		Provider:                ProviderOpenAI,
		Model:                   "o4-mini-deep-research-2025-06-26",
		BaseURL:                 "https://api.openai.com/v1",
		Timeout:                 1800 * time.Second,
		PollInterval:            30 * time.Second,
		MaxRetries:              3,
		LogLevel:                "INFO",
		TriageModel:             "gpt-5-mini",
		ClarifierModel:          "gpt-5-mini",
		InstructionBuilderModel: "gpt-5-mini",
		RateLimitTPM:            60,
		SessionTTL:              24 * time.Hour,
		MaxSessions:             1000,
		LocalMaxSteps:           4,
		SearchBaseURL:           "https://api.search.brave.com/res/v1",
		SearchResults:           5,
		Tracing: TracingConfig{
			ServiceName: "deep-research-mcp",
		},
	}
}

// DefaultConfigFile is ~/.deep_research.
func DefaultConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".deep_research")
}

// Load reads .env and ~/.deep_research into the process environment and then
// builds a validated Config from it.
func Load(logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded .env file")
	}
	if path := DefaultConfigFile(); path != "" {
		if err := LoadFile(path, logger); err != nil {
			return nil, err
		}
	}
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile flattens a TOML file into environment variables. Nested tables
// join with underscores, so [research] model becomes RESEARCH_MODEL.
// Variables that are already set win over the file.
func LoadFile(path string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat config file %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return configErrorf("read config file %s: %v", path, err)
	}

	logger.Info("Loading configuration file", zap.String("path", path))
	for _, key := range v.AllKeys() {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if os.Getenv(envKey) != "" {
			logger.Warn("Environment variable already exists, skipping", zap.String("key", envKey))
			continue
		}
		if err := os.Setenv(envKey, v.GetString(key)); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}
	return nil
}

// FromEnv builds a Config from environment variables. It does not validate
// value ranges; call Validate for that.
func FromEnv() (*Config, error) {
	cfg := Defaults()

	cfg.Provider = envOrDefault("RESEARCH_PROVIDER", cfg.Provider)
	switch cfg.Provider {
	case ProviderOpenDeepResearch:
		cfg.Model = "openai/qwen/qwen3-coder-30b"
		cfg.BaseURL = "http://localhost:1234/v1"
	case ProviderOpenAI:
	default:
		return nil, configErrorf("Provider '%s' is not supported", cfg.Provider)
	}

	cfg.Model = envOrDefault("RESEARCH_MODEL", cfg.Model)
	cfg.APIKey = firstEnv("", "RESEARCH_API_KEY", "OPENAI_API_KEY")
	cfg.BaseURL = firstEnv(cfg.BaseURL, "RESEARCH_BASE_URL", "OPENAI_BASE_URL")
	cfg.LogLevel = envOrDefault("LOGGING_LEVEL", cfg.LogLevel)
	cfg.LogFile = os.Getenv("LOG_FILE")

	var err error
	if cfg.Timeout, err = secondsEnv("RESEARCH_TIMEOUT", cfg.Timeout); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = secondsEnv("RESEARCH_POLL_INTERVAL", cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = intEnv("RESEARCH_MAX_RETRIES", cfg.MaxRetries); err != nil {
		return nil, err
	}

	cfg.EnableClarification = boolEnv(false, "ENABLE_CLARIFICATION", "CLARIFICATION_ENABLE")
	cfg.TriageModel = envOrDefault("CLARIFICATION_TRIAGE_MODEL", cfg.TriageModel)
	cfg.ClarifierModel = envOrDefault("CLARIFICATION_CLARIFIER_MODEL", cfg.ClarifierModel)
	cfg.InstructionBuilderModel = firstEnv(cfg.InstructionBuilderModel,
		"CLARIFICATION_INSTRUCTION_BUILDER_MODEL", "INSTRUCTION_BUILDER_MODEL")
	cfg.ClarificationBaseURL = firstEnv("", "CLARIFICATION_BASE_URL", "CLARIFICATION_CLARIFICATION_BASE_URL")
	cfg.ClarificationAPIKey = firstEnv("", "CLARIFICATION_API_KEY", "CLARIFICATION_CLARIFICATION_API_KEY")
	cfg.EnableInstructionBuilder = boolEnv(false, "ENABLE_INSTRUCTION_BUILDER", "CLARIFICATION_ENABLE_INSTRUCTION_BUILDER")

	if cfg.RateLimitTPM, err = intEnv("RESEARCH_RATE_LIMIT_TPM", cfg.RateLimitTPM); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = durationEnv("CLARIFICATION_SESSION_TTL", cfg.SessionTTL); err != nil {
		return nil, err
	}
	if cfg.MaxSessions, err = intEnv("CLARIFICATION_MAX_SESSIONS", cfg.MaxSessions); err != nil {
		return nil, err
	}
	if cfg.LocalMaxSteps, err = intEnv("RESEARCH_LOCAL_MAX_STEPS", cfg.LocalMaxSteps); err != nil {
		return nil, err
	}
	if cfg.MetricsPort, err = intEnv("METRICS_PORT", cfg.MetricsPort); err != nil {
		return nil, err
	}

	cfg.SearchAPIKey = firstEnv("", "BRAVE_API_KEY", "SEARCH_API_KEY")
	cfg.SearchBaseURL = firstEnv(cfg.SearchBaseURL, "BRAVE_BASE_URL", "SEARCH_BASE_URL")
	if cfg.SearchResults, err = intEnv("RESEARCH_LOCAL_SEARCH_RESULTS", cfg.SearchResults); err != nil {
		return nil, err
	}

	cfg.Tracing.Enabled = boolEnv(false, "OTEL_ENABLED")
	cfg.Tracing.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.Tracing.ServiceName = envOrDefault("OTEL_SERVICE_NAME", cfg.Tracing.ServiceName)

	return &cfg, nil
}

// Validate checks credentials format and numeric ranges.
func (c *Config) Validate() error {
	if c.Provider == ProviderOpenAI && c.APIKey != "" && !strings.HasPrefix(c.APIKey, "sk-") {
		return configErrorf("Invalid API key format")
	}
	if c.Timeout <= 0 {
		return configErrorf("Timeout must be positive")
	}
	if c.PollInterval <= 0 {
		return configErrorf("Poll interval must be positive")
	}
	if c.MaxRetries < 0 {
		return configErrorf("Max retries must be non-negative")
	}
	if c.RateLimitTPM < 0 {
		return configErrorf("Rate limit must be non-negative")
	}
	if c.MaxSessions <= 0 {
		return configErrorf("Max sessions must be positive")
	}
	if c.Provider == ProviderOpenDeepResearch {
		if c.SearchAPIKey == "" {
			return configErrorf("Web search API key is required for the %s provider (set BRAVE_API_KEY)", ProviderOpenDeepResearch)
		}
		if c.SearchResults <= 0 {
			return configErrorf("Search results per query must be positive")
		}
	}
	return nil
}

// ClarificationEndpoint returns the base URL and key used for the small
// helper models, falling back to the research endpoint.
func (c *Config) ClarificationEndpoint() (baseURL, apiKey string) {
	baseURL, apiKey = c.ClarificationBaseURL, c.ClarificationAPIKey
	if baseURL == "" {
		baseURL = c.BaseURL
	}
	if apiKey == "" {
		apiKey = c.APIKey
	}
	return baseURL, apiKey
}

// Setting is a single display row produced by Settings.
type Setting struct {
	Name  string
	Value string
}

// Settings lists the effective configuration with secrets masked.
func (c *Config) Settings() []Setting {
	return []Setting{
		{"provider", c.Provider},
		{"model", c.Model},
		{"base_url", c.BaseURL},
		{"api_key", MaskSecret(c.APIKey)},
		{"timeout", c.Timeout.String()},
		{"poll_interval", c.PollInterval.String()},
		{"max_retries", strconv.Itoa(c.MaxRetries)},
		{"log_level", c.LogLevel},
		{"enable_clarification", strconv.FormatBool(c.EnableClarification)},
		{"triage_model", c.TriageModel},
		{"clarifier_model", c.ClarifierModel},
		{"clarification_base_url", c.ClarificationBaseURL},
		{"clarification_api_key", MaskSecret(c.ClarificationAPIKey)},
		{"enable_instruction_builder", strconv.FormatBool(c.EnableInstructionBuilder)},
		{"instruction_builder_model", c.InstructionBuilderModel},
		{"rate_limit_tpm", strconv.Itoa(c.RateLimitTPM)},
		{"session_ttl", c.SessionTTL.String()},
		{"max_sessions", strconv.Itoa(c.MaxSessions)},
		{"search_base_url", c.SearchBaseURL},
		{"search_api_key", MaskSecret(c.SearchAPIKey)},
		{"search_results", strconv.Itoa(c.SearchResults)},
	}
}

// MaskSecret keeps only the last four characters of a credential.
func MaskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return strings.Repeat("*", 8) + s[len(s)-4:]
}

// Empty variables count as unset.
func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(defaultValue string, keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return defaultValue
}

var (
	truthy = map[string]bool{"true": true, "1": true, "yes": true, "y": true, "on": true}
	falsy  = map[string]bool{"false": true, "0": true, "no": true, "n": true, "off": true}
)

// boolEnv returns the first recognisable boolean among keys. Unrecognised
// values are skipped so a later alias can still decide.
func boolEnv(defaultValue bool, keys ...string) bool {
	for _, key := range keys {
		value, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		v := strings.ToLower(strings.TrimSpace(value))
		if truthy[v] {
			return true
		}
		if falsy[v] {
			return false
		}
	}
	return defaultValue
}

func intEnv(key string, defaultValue int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, configErrorf("%s must be an integer, got %q", key, value)
	}
	return n, nil
}

func secondsEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, configErrorf("%s must be a number of seconds, got %q", key, value)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// durationEnv accepts Go durations ("12h") or bare seconds.
func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return defaultValue, nil
	}
	if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
		return d, nil
	}
	return secondsEnv(key, defaultValue)
}
