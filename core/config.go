package core

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type BackoffConfig struct {
	Initial time.Duration `json:"initial"`
	Max     time.Duration `json:"max"`
}

type HealthConfig struct {
	Interval     time.Duration `json:"interval"`
	LagThreshold int           `json:"lag_threshold"`
	StuckAfter   time.Duration `json:"stuck_after"`
}

type RetentionConfig struct {
	SucceededMaxAge time.Duration `json:"succeeded_max_age"`
}

type Config struct {
	ServiceName string `json:"service_name"`
	// MaxRetries is the retry ceiling: an event whose attempt number exceeds
	// MaxRetries+1 is dead-lettered instead of rescheduled.
	MaxRetries int `json:"max_retries"`
	// WorkerBuffer sizes each source worker's wake-up buffer; kicks beyond
	// it coalesce and admits never block the ingest path.
	WorkerBuffer int             `json:"worker_buffer"`
	PollInterval time.Duration   `json:"poll_interval"`
	Backoff      BackoffConfig   `json:"backoff"`
	Health       HealthConfig    `json:"health"`
	Retention    RetentionConfig `json:"retention"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:  "ingest",
		MaxRetries:   5,
		WorkerBuffer: 16,
		PollInterval: time.Second,
		Backoff: BackoffConfig{
			Initial: time.Second,
			Max:     30 * time.Second,
		},
		Health: HealthConfig{
			Interval:     30 * time.Second,
			LagThreshold: 64,
			StuckAfter:   5 * time.Minute,
		},
		Retention: RetentionConfig{
			SucceededMaxAge: 24 * time.Hour,
		},
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("core: config is nil")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("core: max_retries must not be negative")
	}
	if c.WorkerBuffer < 0 {
		return fmt.Errorf("core: worker_buffer must not be negative")
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("core: poll_interval must not be negative")
	}
	if c.Backoff.Initial < 0 || c.Backoff.Max < 0 {
		return fmt.Errorf("core: backoff durations must not be negative")
	}
	if c.Backoff.Max > 0 && c.Backoff.Initial > c.Backoff.Max {
		return fmt.Errorf("core: backoff initial delay exceeds the cap")
	}
	if c.Health.Interval < 0 || c.Health.StuckAfter < 0 {
		return fmt.Errorf("core: health durations must not be negative")
	}
	if c.Health.LagThreshold < 0 {
		return fmt.Errorf("core: health lag_threshold must not be negative")
	}
	if c.Retention.SucceededMaxAge < 0 {
		return fmt.Errorf("core: retention succeeded_max_age must not be negative")
	}
	return nil
}

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || cfg.ServiceName != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || cfg.MaxRetries != 0 {
		layer["max_retries"] = cfg.MaxRetries
	}
	if includeZero || cfg.WorkerBuffer != 0 {
		layer["worker_buffer"] = cfg.WorkerBuffer
	}
	if includeZero || cfg.PollInterval != 0 {
		layer["poll_interval"] = cfg.PollInterval
	}
	if includeZero || cfg.Backoff != (BackoffConfig{}) {
		layer["backoff"] = map[string]any{
			"initial": cfg.Backoff.Initial,
			"max":     cfg.Backoff.Max,
		}
	}
	if includeZero || cfg.Health != (HealthConfig{}) {
		layer["health"] = map[string]any{
			"interval":      cfg.Health.Interval,
			"lag_threshold": cfg.Health.LagThreshold,
			"stuck_after":   cfg.Health.StuckAfter,
		}
	}
	if includeZero || cfg.Retention != (RetentionConfig{}) {
		layer["retention"] = map[string]any{
			"succeeded_max_age": cfg.Retention.SucceededMaxAge,
		}
	}
	return layer
}
