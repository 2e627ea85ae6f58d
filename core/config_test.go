package core

import (
	"context"
	"testing"
	"time"
)

func TestConfig_ValidateRejectsBadKnobs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative max retries", func(c *Config) { c.MaxRetries = -1 }},
		{"negative worker buffer", func(c *Config) { c.WorkerBuffer = -1 }},
		{"negative poll interval", func(c *Config) { c.PollInterval = -time.Second }},
		{"negative backoff initial", func(c *Config) { c.Backoff.Initial = -time.Second }},
		{"backoff initial over cap", func(c *Config) {
			c.Backoff.Initial = time.Minute
			c.Backoff.Max = time.Second
		}},
		{"negative lag threshold", func(c *Config) { c.Health.LagThreshold = -1 }},
		{"negative stuck after", func(c *Config) { c.Health.StuckAfter = -time.Minute }},
		{"negative retention age", func(c *Config) { c.Retention.SucceededMaxAge = -time.Hour }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestCfgxConfigProvider_LoadAppliesDefaultsAndOverrides(t *testing.T) {
	provider := NewCfgxConfigProvider(staticRawConfigLoader{
		Values: map[string]any{
			"max_retries": 2,
			"backoff": map[string]any{
				"initial": 500 * time.Millisecond,
				"max":     5 * time.Second,
			},
		},
	})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.MaxRetries != 2 {
		t.Fatalf("expected loaded max_retries 2, got %d", cfg.MaxRetries)
	}
	if cfg.Backoff.Max != 5*time.Second {
		t.Fatalf("expected loaded backoff cap, got %s", cfg.Backoff.Max)
	}
	if cfg.ServiceName != "ingest" {
		t.Fatalf("expected default service name to survive, got %q", cfg.ServiceName)
	}
}

func TestCfgxConfigProvider_LoadRejectsInvalidValues(t *testing.T) {
	provider := NewCfgxConfigProvider(staticRawConfigLoader{
		Values: map[string]any{"max_retries": -3},
	})
	if _, err := provider.Load(context.Background(), DefaultConfig()); err == nil {
		t.Fatal("expected invalid loaded config to be rejected")
	}
}

func TestGoOptionsResolver_RuntimeWinsOverConfig(t *testing.T) {
	defaults := DefaultConfig()

	loaded := Config{MaxRetries: 3, WorkerBuffer: 32}
	runtime := Config{MaxRetries: 7}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.MaxRetries != 7 {
		t.Fatalf("expected runtime max_retries 7, got %d", resolved.MaxRetries)
	}
	if resolved.WorkerBuffer != 32 {
		t.Fatalf("expected config worker_buffer 32, got %d", resolved.WorkerBuffer)
	}
	if resolved.PollInterval != defaults.PollInterval {
		t.Fatalf("expected default poll interval, got %s", resolved.PollInterval)
	}
}
