// Package config loads the workspace configuration from .milestone/config.yaml.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/felixgeelhaar/milestone/pkg/domain/events"
	"github.com/felixgeelhaar/milestone/pkg/storage"
	"gopkg.in/yaml.v3"
)

// Mode selects the replication variant.
type Mode string

const (
	ModeShared     Mode = "shared"
	ModeStandalone Mode = "standalone"
)

const (
	DefaultRemoteURL = "https://kvdb.io"
	DefaultRemoteKey = "roadmap"
)

type RemoteConfig struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Bucket  string        `yaml:"bucket" json:"bucket"`
	Key     string        `yaml:"key" json:"key"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

type SyncConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval" json:"poll_interval"`
	SuppressionWindow time.Duration `yaml:"suppression_window" json:"suppression_window"`
}

// AIConfig stores advisory provider defaults.
type AIConfig struct {
	Provider    string        `yaml:"provider" json:"provider"`
	Model       string        `yaml:"model" json:"model"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
}

// NotifyConfig lists the outgoing webhooks for progress milestones.
type NotifyConfig struct {
	Webhooks []events.WebhookEndpoint `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

type Config struct {
	Mode    Mode         `yaml:"mode" json:"mode"`
	AppName string       `yaml:"app_name" json:"app_name"`
	Remote  RemoteConfig `yaml:"remote" json:"remote"`
	Sync    SyncConfig   `yaml:"sync" json:"sync"`
	AI      AIConfig     `yaml:"ai" json:"ai"`
	Notify  NotifyConfig `yaml:"notify,omitempty" json:"notify,omitempty"`
}

// Default is used when no config file exists. Without a bucket the
// workspace runs standalone.
func Default() *Config {
	return &Config{
		Mode:    ModeStandalone,
		AppName: "GymTracker",
		Remote: RemoteConfig{
			BaseURL: DefaultRemoteURL,
			Key:     DefaultRemoteKey,
			Timeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			PollInterval:      5 * time.Second,
			SuppressionWindow: 2500 * time.Millisecond,
		},
		AI: AIConfig{
			Provider:    "gemini",
			Model:       "gemini-3-flash-preview",
			Timeout:     30 * time.Second,
			MaxAttempts: 1,
		},
	}
}

// Load reads the config file, fills missing fields from Default and applies
// environment overrides. A missing file is not an error.
func Load(root string) (*Config, error) {
	cfg := Default()

	path, err := storage.NewFileStore(root, nil).ResolvePath(storage.ConfigFile)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- Path is resolved and validated via ResolvePath
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnv()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config file, creating .milestone when needed.
func Save(root string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	store := storage.NewFileStore(root, nil)
	if err := store.Initialize(); err != nil {
		return err
	}
	path, err := store.ResolvePath(storage.ConfigFile)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MILESTONE_MODE"); v != "" {
		c.Mode = Mode(v)
	}
	if v := os.Getenv("MILESTONE_REMOTE_URL"); v != "" {
		c.Remote.BaseURL = v
	}
	if v := os.Getenv("MILESTONE_BUCKET"); v != "" {
		c.Remote.Bucket = v
		if os.Getenv("MILESTONE_MODE") == "" {
			c.Mode = ModeShared
		}
	}
	if v := os.Getenv("MILESTONE_WEBHOOK_URL"); v != "" {
		c.Notify.Webhooks = append(c.Notify.Webhooks, events.WebhookEndpoint{
			Name:    "env",
			URL:     v,
			Secret:  os.Getenv("MILESTONE_WEBHOOK_SECRET"),
			Enabled: true,
		})
	}
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.AppName == "" {
		c.AppName = def.AppName
	}
	if c.Remote.BaseURL == "" {
		c.Remote.BaseURL = def.Remote.BaseURL
	}
	if c.Remote.Key == "" {
		c.Remote.Key = def.Remote.Key
	}
	if c.Remote.Timeout <= 0 {
		c.Remote.Timeout = def.Remote.Timeout
	}
	if c.Sync.PollInterval <= 0 {
		c.Sync.PollInterval = def.Sync.PollInterval
	}
	if c.Sync.SuppressionWindow <= 0 {
		c.Sync.SuppressionWindow = def.Sync.SuppressionWindow
	}
	if c.AI.Timeout <= 0 {
		c.AI.Timeout = def.AI.Timeout
	}
	if c.AI.MaxAttempts <= 0 {
		c.AI.MaxAttempts = def.AI.MaxAttempts
	}
}

// Validate checks the combination of mode and remote settings and the
// webhook endpoints.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeStandalone:
	case ModeShared:
		if c.Remote.Bucket == "" {
			return fmt.Errorf("shared mode needs remote.bucket (or MILESTONE_BUCKET)")
		}
	default:
		return fmt.Errorf("unknown mode %q (want %s or %s)", c.Mode, ModeShared, ModeStandalone)
	}

	for i, ep := range c.Notify.Webhooks {
		u, err := url.Parse(ep.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("notify.webhooks[%d]: url %q must be an http(s) URL", i, ep.URL)
		}
		for _, f := range ep.EventFilters {
			if !events.IsValidType(f) {
				return fmt.Errorf("notify.webhooks[%d]: unknown event filter %q", i, f)
			}
		}
	}
	return nil
}
