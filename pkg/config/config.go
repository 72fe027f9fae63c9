// Package config handles configuration for canvas-runner.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. CANVAS_RUNNER_BASEURL.
const EnvPrefix = "CANVAS_RUNNER"

// Defaults
const (
	DefaultBrowser          = "chromium"
	DefaultTimeoutMs        = 10000
	DefaultViewportWidth    = 1300
	DefaultViewportHeight   = 960
	DefaultOutsideTolerance = 15.0
)

// Config represents the workspace configuration (config.yaml).
type Config struct {
	// Flow selection
	Flows       []string `mapstructure:"flows"`       // Glob patterns for flows
	IncludeTags []string `mapstructure:"includeTags"` // Tags to include
	ExcludeTags []string `mapstructure:"excludeTags"` // Tags to exclude

	// Execution settings
	Env map[string]string `mapstructure:"-"` // Variables for ${VAR} expansion

	// Browser settings
	BaseURL  string   `mapstructure:"baseUrl"`  // Annotation server, e.g. http://localhost:8080
	Browser  string   `mapstructure:"browser"`  // chromium, firefox, webkit
	Headless bool     `mapstructure:"headless"` // Run without a visible window
	SlowMo   float64  `mapstructure:"slowMo"`   // Delay between browser operations (ms)
	Viewport Viewport `mapstructure:"viewport"`

	// Assertion settings
	TimeoutMs        int     `mapstructure:"timeout"`          // Default element wait (ms)
	OutsideTolerance float64 `mapstructure:"outsideTolerance"` // Vertical band for outside labels (px)

	// Selectors overrides CVAT DOM selectors by name (see browser.Selectors)
	Selectors map[string]string `mapstructure:"selectors"`
}

// Viewport is the browser page size in CSS pixels.
type Viewport struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// Default returns the built-in configuration, without environment overrides.
func Default() *Config {
	return &Config{
		Browser:          DefaultBrowser,
		Headless:         true,
		Viewport:         Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight},
		TimeoutMs:        DefaultTimeoutMs,
		OutsideTolerance: DefaultOutsideTolerance,
	}
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("flows", []string{})
	v.SetDefault("includeTags", []string{})
	v.SetDefault("excludeTags", []string{})
	v.SetDefault("baseUrl", "")
	v.SetDefault("browser", DefaultBrowser)
	v.SetDefault("headless", true)
	v.SetDefault("slowMo", 0)
	v.SetDefault("viewport.width", DefaultViewportWidth)
	v.SetDefault("viewport.height", DefaultViewportHeight)
	v.SetDefault("timeout", DefaultTimeoutMs)
	v.SetDefault("outsideTolerance", DefaultOutsideTolerance)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	// viper lowercases map keys; variable names are case-sensitive.
	env, err := loadEnv(path)
	if err != nil {
		return nil, err
	}
	cfg.Env = env

	return cfg, nil
}

func loadEnv(path string) (map[string]string, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}
	var raw struct {
		Env map[string]string `yaml:"env"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode env: %w", err)
	}
	return raw.Env, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	// Try config.yaml first
	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// Try config.yml
	configPath = filepath.Join(dir, "config.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, defaults plus environment overrides
	return decode(newViper())
}

// Timeout returns the default wait in milliseconds, never below one second.
func (c *Config) Timeout() int {
	if c.TimeoutMs < 1000 {
		return 1000
	}
	return c.TimeoutMs
}
