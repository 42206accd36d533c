package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Dealspulse DealspulseConfig `yaml:"dealspulse"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Feed       FeedConfig       `yaml:"feed"`
	Source     SourceConfig     `yaml:"source"`
	Logging    LoggingConfig    `yaml:"logging"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
}

type DealspulseConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	EventBuffer int `yaml:"event_buffer"`
}

// FeedConfig carries the feed behaviour knobs: the default query parameters
// and the reconciliation timers.
type FeedConfig struct {
	DefaultRadiusMiles float64       `yaml:"default_radius_miles"`
	RadiusOptions      []float64     `yaml:"radius_options"`
	RefetchPerSecond   float64       `yaml:"refetch_per_second"`
	ExpirySweep        time.Duration `yaml:"expiry_sweep"`

	// Optional fixed location, mostly for headless deployments and smoke
	// tests. When absent the engine starts in the no-location state and
	// waits for a location update; it never fabricates a coordinate.
	Location *LocationConfig `yaml:"location"`
}

type LocationConfig struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
}

type SourceConfig struct {
	Postgrest PostgrestConfig `yaml:"postgrest"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
}

type PostgrestConfig struct {
	URL     string        `yaml:"url"`
	AnonKey string        `yaml:"anon_key"`
	Timeout time.Duration `yaml:"timeout"`
	Limit   int           `yaml:"limit"`
}

type RealtimeConfig struct {
	URL               string        `yaml:"url"`
	AnonKey           string        `yaml:"anon_key"`
	Topic             string        `yaml:"topic"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoadConfig reads, env-overrides and validates the yaml configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Secrets come from the environment when present so the yaml file can be
	// committed without them.
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		config.Source.Postgrest.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("SUPABASE_ANON_KEY"); v != "" {
		config.Source.Postgrest.AnonKey = strings.TrimSpace(v)
		config.Source.Realtime.AnonKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("SUPABASE_REALTIME_URL"); v != "" {
		config.Source.Realtime.URL = strings.TrimSpace(v)
	}
	if config.CloudWatch.Enabled {
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.CloudWatch.Region = strings.TrimSpace(v)
		}
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Channels.EventBuffer <= 0 {
		cfg.Channels.EventBuffer = 256
	}
	if cfg.Feed.DefaultRadiusMiles <= 0 {
		cfg.Feed.DefaultRadiusMiles = 10
	}
	if len(cfg.Feed.RadiusOptions) == 0 {
		cfg.Feed.RadiusOptions = []float64{1, 5, 10, 20, 50}
	}
	if cfg.Feed.RefetchPerSecond <= 0 {
		cfg.Feed.RefetchPerSecond = 2
	}
	if cfg.Feed.ExpirySweep <= 0 {
		cfg.Feed.ExpirySweep = 30 * time.Second
	}
	if cfg.Source.Postgrest.Timeout <= 0 {
		cfg.Source.Postgrest.Timeout = 10 * time.Second
	}
	if cfg.Source.Postgrest.Limit <= 0 {
		cfg.Source.Postgrest.Limit = 200
	}
	if cfg.Source.Realtime.Topic == "" {
		cfg.Source.Realtime.Topic = "realtime:public:deals"
	}
	if cfg.Source.Realtime.HeartbeatInterval <= 0 {
		cfg.Source.Realtime.HeartbeatInterval = 25 * time.Second
	}
	if cfg.Source.Realtime.HandshakeTimeout <= 0 {
		cfg.Source.Realtime.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Dashboard.Address == "" {
		cfg.Dashboard.Address = ":8080"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Dealspulse.Name == "" {
		return fmt.Errorf("dealspulse.name is required")
	}

	if cfg.Dealspulse.Version == "" {
		return fmt.Errorf("dealspulse.version is required")
	}

	if cfg.Source.Postgrest.URL == "" {
		return fmt.Errorf("source.postgrest.url is required")
	}

	if cfg.Source.Realtime.URL == "" {
		return fmt.Errorf("source.realtime.url is required")
	}

	for _, r := range cfg.Feed.RadiusOptions {
		if r <= 0 {
			return fmt.Errorf("feed.radius_options must all be positive, got %v", r)
		}
	}

	if cfg.Feed.Location != nil {
		if cfg.Feed.Location.Lat < -90 || cfg.Feed.Location.Lat > 90 {
			return fmt.Errorf("feed.location.lat out of range: %v", cfg.Feed.Location.Lat)
		}
		if cfg.Feed.Location.Lng < -180 || cfg.Feed.Location.Lng > 180 {
			return fmt.Errorf("feed.location.lng out of range: %v", cfg.Feed.Location.Lng)
		}
	}

	return nil
}
