package logsight

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brunobiangulo/logsight/llm"
)

// Config holds all configuration for the logsight engine and its HTTP front.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	DBPath string `json:"db_path" yaml:"db_path"`

	// StorageDir is the root directory for raw ingestion payloads.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// BrokerURL selects the job notifier. Empty keeps notifications
	// in-process; a redis:// URL shares wake-ups between the server and
	// standalone worker processes.
	BrokerURL string `json:"broker_url" yaml:"broker_url"`

	// Addr is the HTTP listen address.
	Addr string `json:"addr" yaml:"addr"`

	// JWTSecret signs access tokens (HS256).
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`

	// TokenTTLMinutes is the access-token lifetime.
	TokenTTLMinutes int `json:"token_ttl_minutes" yaml:"token_ttl_minutes"`

	// AllowedOrigins lists origins the API sets CORS headers for.
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`

	// RateLimits are the per-route-class limits, as "<count>/<window>"
	// strings, e.g. "30/minute". An empty string disables that limiter.
	RateLimits RateLimitConfig `json:"rate_limits" yaml:"rate_limits"`

	// RequestTimeoutSeconds bounds synchronous HTTP work. Background jobs
	// are not subject to it.
	RequestTimeoutSeconds int `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`

	// MaxBodyBytes caps request bodies, including uploads.
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes"`

	// Workers is the background worker pool size.
	Workers int `json:"workers" yaml:"workers"`

	// JobMaxAttempts is how many times a job is claimed before it is
	// failed permanently.
	JobMaxAttempts int `json:"job_max_attempts" yaml:"job_max_attempts"`

	// Chat configures the LLM provider used for insight generation.
	// Leaving the provider empty disables insights.
	Chat llm.Config `json:"chat" yaml:"chat"`
}

// RateLimitConfig groups the per-route-class limit strings.
type RateLimitConfig struct {
	Default  string `json:"default" yaml:"default"`
	Read     string `json:"read" yaml:"read"`
	Mutate   string `json:"mutate" yaml:"mutate"`
	Insight  string `json:"insight" yaml:"insight"`
	Login    string `json:"login" yaml:"login"`
	Register string `json:"register" yaml:"register"`
}

// DefaultConfig returns a configuration with sensible defaults.
// JWTSecret has no default and must be supplied.
func DefaultConfig() Config {
	return Config{
		DBPath:          "data/logsight.db",
		StorageDir:      "data/storage",
		Addr:            ":8080",
		TokenTTLMinutes: 30,
		RateLimits: RateLimitConfig{
			Default:  "100/minute",
			Read:     "60/minute",
			Mutate:   "30/minute",
			Insight:  "20/minute",
			Login:    "10/minute",
			Register: "5/minute",
		},
		RequestTimeoutSeconds: 30,
		MaxBodyBytes:          25 << 20, // 25MB
		Workers:               2,
		JobMaxAttempts:        3,
		Chat: llm.Config{
			Provider: "groq",
		},
	}
}

// RequestTimeout returns the HTTP request timeout as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// TokenTTL returns the access-token lifetime as a duration.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// Validate checks the configuration for values that would fail at runtime.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path is required", ErrInvalidConfig)
	}
	if c.StorageDir == "" {
		return fmt.Errorf("%w: storage_dir is required", ErrInvalidConfig)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: jwt_secret is required", ErrInvalidConfig)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	}
	if c.MaxBodyBytes < 1 {
		return fmt.Errorf("%w: max_body_bytes must be positive", ErrInvalidConfig)
	}
	for _, spec := range []string{
		c.RateLimits.Default, c.RateLimits.Read, c.RateLimits.Mutate,
		c.RateLimits.Insight, c.RateLimits.Login, c.RateLimits.Register,
	} {
		if spec == "" {
			continue
		}
		if _, _, err := ParseRate(spec); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// ParseRate parses a "<count>/<window>" limit string, e.g. "30/minute" or
// "5/second", into the allowed count and the window duration.
func ParseRate(spec string) (count int, window time.Duration, err error) {
	parts := strings.SplitN(spec, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid rate %q: want <count>/<window>", spec)
	}
	count, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || count < 1 {
		return 0, 0, fmt.Errorf("invalid rate %q: bad count", spec)
	}
	switch strings.TrimSpace(parts[1]) {
	case "second":
		window = time.Second
	case "minute":
		window = time.Minute
	case "hour":
		window = time.Hour
	case "day":
		window = 24 * time.Hour
	default:
		return 0, 0, fmt.Errorf("invalid rate %q: unknown window", spec)
	}
	return count, window, nil
}
