// Package config handles tubemaster configuration: the YAML file read at
// start and the runtime settings kept in SQLite.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/tubemaster/observability"
)

// Config is the top-level configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Studio  StudioConfig  `yaml:"studio"`
	Timing  TimingConfig  `yaml:"timing"`
	API     APIConfig     `yaml:"api"`
	Control ControlConfig `yaml:"control"`
	DB      DBConfig      `yaml:"db"`

	Retention observability.RetentionConfig `yaml:"retention"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Stealth          string        `yaml:"stealth"` // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
	// UserDataDir keeps the Google login between runs.
	UserDataDir string `yaml:"user_data_dir"`
}

// StudioConfig selects the page and the locator policy.
type StudioConfig struct {
	URL        string `yaml:"url"`
	TitleScope string `yaml:"title_scope"` // modal | document
	// MaxTextareaHeight bounds structurally matched title textareas (px).
	MaxTextareaHeight float64 `yaml:"max_textarea_height"`
}

// TimingConfig holds every debounce and tick of the core.
type TimingConfig struct {
	TitleDebounce  time.Duration   `yaml:"title_debounce"`
	HighDebounce   time.Duration   `yaml:"high_debounce"`
	NormalDebounce time.Duration   `yaml:"normal_debounce"`
	ClickBurst     []time.Duration `yaml:"click_burst"`
	QuickTick      time.Duration   `yaml:"quick_tick"`
	QuickTicks     int             `yaml:"quick_ticks"`
	SlowTick       time.Duration   `yaml:"slow_tick"`
	PopulateWindow time.Duration   `yaml:"populate_window"`
	PopulateSettle time.Duration   `yaml:"populate_settle"`
	IndicatorTTL   time.Duration   `yaml:"indicator_ttl"`
	LabelTTL       time.Duration   `yaml:"label_ttl"`
	AuthPoll       time.Duration   `yaml:"auth_poll"`
	SettingsPoll   time.Duration   `yaml:"settings_poll"`
	RoutesPoll     time.Duration   `yaml:"routes_poll"`
}

// APIConfig points at the generation API.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"`
	// AllowLoopback accepts a local API stub.
	AllowLoopback bool `yaml:"allow_loopback"`
}

// ControlConfig configures the local control server.
type ControlConfig struct {
	Listen string `yaml:"listen"`
	// Secret signs control tokens; at least 32 bytes. Empty disables the
	// server.
	Secret string `yaml:"secret"`
}

// DBConfig locates the state database.
type DBConfig struct {
	Path string `yaml:"path"`
	// Trace logs every statement; SlowQuery statements log at Warn.
	Trace     bool          `yaml:"trace"`
	SlowQuery time.Duration `yaml:"slow_query"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used without a file.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headful"
	}
	if c.Studio.URL == "" {
		c.Studio.URL = "https://studio.youtube.com"
	}
	if c.Studio.TitleScope == "" {
		c.Studio.TitleScope = "document"
	}
	if c.Studio.MaxTextareaHeight <= 0 {
		c.Studio.MaxTextareaHeight = 100
	}

	t := &c.Timing
	if t.TitleDebounce <= 0 {
		t.TitleDebounce = 800 * time.Millisecond
	}
	if t.HighDebounce <= 0 {
		t.HighDebounce = 100 * time.Millisecond
	}
	if t.NormalDebounce <= 0 {
		t.NormalDebounce = 300 * time.Millisecond
	}
	if len(t.ClickBurst) == 0 {
		t.ClickBurst = []time.Duration{0, 200 * time.Millisecond, 500 * time.Millisecond, time.Second}
	}
	if t.QuickTick <= 0 {
		t.QuickTick = 2 * time.Second
	}
	if t.QuickTicks <= 0 {
		t.QuickTicks = 10
	}
	if t.SlowTick <= 0 {
		t.SlowTick = 3 * time.Second
	}
	if t.PopulateWindow <= 0 {
		t.PopulateWindow = time.Second
	}
	if t.PopulateSettle <= 0 {
		t.PopulateSettle = 100 * time.Millisecond
	}
	if t.IndicatorTTL <= 0 {
		t.IndicatorTTL = 3 * time.Second
	}
	if t.LabelTTL <= 0 {
		t.LabelTTL = 2 * time.Second
	}
	if t.AuthPoll <= 0 {
		t.AuthPoll = 10 * time.Second
	}
	if t.SettingsPoll <= 0 {
		t.SettingsPoll = time.Second
	}
	if t.RoutesPoll <= 0 {
		t.RoutesPoll = 2 * time.Second
	}

	if c.API.BaseURL == "" {
		c.API.BaseURL = "https://api.tubemaster.ai/api"
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = "TubeMaster-Extension/1.2"
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.API.Retries < 0 {
		c.API.Retries = 0
	}
	if c.Control.Listen == "" {
		c.Control.Listen = "127.0.0.1:8765"
	}
	if c.DB.Path == "" {
		c.DB.Path = "tubemaster.db"
	}
	if c.DB.SlowQuery <= 0 {
		c.DB.SlowQuery = 100 * time.Millisecond
	}
	if c.Retention.MetricsDays <= 0 {
		c.Retention.MetricsDays = 30
	}
	if c.Retention.EventsDays <= 0 {
		c.Retention.EventsDays = 90
	}
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	switch c.Studio.TitleScope {
	case "modal", "document":
	default:
		return fmt.Errorf("config: studio.title_scope must be modal or document, got %q", c.Studio.TitleScope)
	}
	switch c.Browser.Stealth {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: browser.stealth must be headless or headful, got %q", c.Browser.Stealth)
	}
	return nil
}
