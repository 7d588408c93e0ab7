package studio

import (
	"github.com/hazyhaar/tubemaster/studio/internal/config"
)

// Config is the top-level tubemaster configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// StudioConfig selects the page and the locator policy.
type StudioConfig = config.StudioConfig

// TimingConfig holds debounces and ticks.
type TimingConfig = config.TimingConfig

// APIConfig points at the generation API.
type APIConfig = config.APIConfig

// Settings are the runtime settings kept in the state database.
type Settings = config.Settings

// Setting keys accepted by Engine.SetSetting.
const (
	KeyAutoSuggest     = config.KeyAutoSuggest
	KeySuggestionDelay = config.KeySuggestionDelay
	KeyMaxSuggestions  = config.KeyMaxSuggestions
)

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns the configuration used without a file.
func DefaultConfig() *Config {
	return config.Default()
}
