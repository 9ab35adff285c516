package circuitbreaker

import (
	"os"
	"strconv"
	"time"
)

// Settings is the env-tunable subset of Config.
type Settings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
}

// ProviderSettings configures the breaker in front of the research provider.
// Deep research submissions are slow and expensive, so the breaker opens
// after a few consecutive 5xx responses and tries again after 30s.
func ProviderSettings() Settings {
	return Settings{
		MaxRequests:      getEnvUint32("CB_PROVIDER_MAX_REQUESTS", 2),
		Interval:         getEnvDuration("CB_PROVIDER_INTERVAL", 60*time.Second),
		Timeout:          getEnvDuration("CB_PROVIDER_TIMEOUT", 30*time.Second),
		FailureThreshold: getEnvUint32("CB_PROVIDER_FAILURE_THRESHOLD", 5),
		SuccessThreshold: getEnvUint32("CB_PROVIDER_SUCCESS_THRESHOLD", 1),
	}
}

// HTTPSettings configures breakers for other outbound HTTP, such as webhooks.
func HTTPSettings() Settings {
	return Settings{
		MaxRequests:      getEnvUint32("CB_HTTP_MAX_REQUESTS", 5),
		Interval:         getEnvDuration("CB_HTTP_INTERVAL", 30*time.Second),
		Timeout:          getEnvDuration("CB_HTTP_TIMEOUT", 15*time.Second),
		FailureThreshold: getEnvUint32("CB_HTTP_FAILURE_THRESHOLD", 3),
		SuccessThreshold: getEnvUint32("CB_HTTP_SUCCESS_THRESHOLD", 2),
	}
}

// ToConfig converts Settings into a breaker Config.
func (s Settings) ToConfig() Config {
	return Config{
		MaxRequests:      s.MaxRequests,
		Interval:         s.Interval,
		Timeout:          s.Timeout,
		FailureThreshold: s.FailureThreshold,
		SuccessThreshold: s.SuccessThreshold,
	}
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}
