// Package config loads chatnav daemon configuration from a YAML file and
// the chat page table from SQLite.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon configuration.
type Config struct {
	Browser   BrowserConfig   `yaml:"browser"`
	Pages     []PageConfig    `yaml:"pages"`
	Navigator NavigatorConfig `yaml:"navigator"`
	Observer  ObserverConfig  `yaml:"observer"`
	Sinks     []SinkConfig    `yaml:"sinks"`
	HTTP      string          `yaml:"http"`
	DB        string          `yaml:"db"`
	// Overlay draws the message sidebar into each observed tab.
	Overlay bool `yaml:"overlay"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	UserDataDir      string        `yaml:"user_data_dir"`
	Bin              string        `yaml:"bin"`
	Mode             string        `yaml:"mode"` // headless | headful | desktop
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	XvfbDisplay      string        `yaml:"xvfb_display"`
}

// PageConfig is one chat tab to observe.
type PageConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// NavigatorConfig tunes the message index.
type NavigatorConfig struct {
	Debounce     time.Duration `yaml:"debounce"`
	HighlightFor time.Duration `yaml:"highlight_for"`
	// WarmUp overrides the per-platform first-pass delay when set.
	WarmUp time.Duration `yaml:"warm_up"`
}

// ObserverConfig tunes page record batching.
type ObserverConfig struct {
	Window         time.Duration `yaml:"window"`
	MaxBuffer      int           `yaml:"max_buffer"`
	ResyncInterval time.Duration `yaml:"resync_interval"`
}

// SinkConfig defines a snapshot output.
type SinkConfig struct {
	Type    string `yaml:"type"` // stdout | webhook | nats
	URL     string `yaml:"url"`
	Retries int    `yaml:"retries"`
	// Subject prefix for nats sinks. Default: "chatnav.snapshot".
	Subject string `yaml:"subject"`
	Token   string `yaml:"token"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Navigator.Debounce <= 0 {
		c.Navigator.Debounce = time.Second
	}
	if c.Navigator.HighlightFor <= 0 {
		c.Navigator.HighlightFor = 2500 * time.Millisecond
	}
	if c.Observer.Window <= 0 {
		c.Observer.Window = 250 * time.Millisecond
	}
	if c.Observer.MaxBuffer <= 0 {
		c.Observer.MaxBuffer = 1000
	}
	if c.Observer.ResyncInterval <= 0 {
		c.Observer.ResyncInterval = time.Minute
	}
	for i := range c.Pages {
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = fmt.Sprintf("page-%d", i+1)
		}
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "webhook" && c.Sinks[i].Retries <= 0 {
			c.Sinks[i].Retries = 3
		}
		if c.Sinks[i].Type == "nats" && c.Sinks[i].Subject == "" {
			c.Sinks[i].Subject = "chatnav.snapshot"
		}
	}
}

// Validate rejects pages without a URL, duplicate page IDs and unknown
// sink types.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Pages))
	for _, p := range c.Pages {
		if p.URL == "" {
			return fmt.Errorf("config: page %q: url is required", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate page id %q", p.ID)
		}
		seen[p.ID] = true
	}
	for _, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook", "nats":
			if s.URL == "" {
				return fmt.Errorf("config: %s sink: url is required", s.Type)
			}
		default:
			return fmt.Errorf("config: unknown sink type %q", s.Type)
		}
	}
	return nil
}
