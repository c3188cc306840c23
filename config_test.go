package logsight

import (
	"errors"
	"testing"
	"time"
)

func TestParseRate(t *testing.T) {
	tests := []struct {
		spec   string
		count  int
		window time.Duration
		ok     bool
	}{
		{"30/minute", 30, time.Minute, true},
		{"5/second", 5, time.Second, true},
		{"100/hour", 100, time.Hour, true},
		{"1/day", 1, 24 * time.Hour, true},
		{"0/minute", 0, 0, false},
		{"-5/minute", 0, 0, false},
		{"abc/minute", 0, 0, false},
		{"30/fortnight", 0, 0, false},
		{"30", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			count, window, err := ParseRate(tt.spec)
			if tt.ok != (err == nil) {
				t.Fatalf("ParseRate(%q): err = %v, want ok=%v", tt.spec, err, tt.ok)
			}
			if tt.ok && (count != tt.count || window != tt.window) {
				t.Errorf("ParseRate(%q) = (%d, %v), want (%d, %v)",
					tt.spec, count, window, tt.count, tt.window)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.JWTSecret = "secret"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing db path", func(c *Config) { c.DBPath = "" }},
		{"missing storage dir", func(c *Config) { c.StorageDir = "" }},
		{"missing jwt secret", func(c *Config) { c.JWTSecret = "" }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"zero body cap", func(c *Config) { c.MaxBodyBytes = 0 }},
		{"bad rate limit", func(c *Config) { c.RateLimits.Read = "lots/minute" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfigDurations(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.RequestTimeout(); got != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", got)
	}
	if got := cfg.TokenTTL(); got != 30*time.Minute {
		t.Errorf("TokenTTL = %v, want 30m", got)
	}
}
