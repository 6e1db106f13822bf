// Package config handles configuration for device-features-runner.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/device-features-runner/pkg/core"
	"github.com/devicelab-dev/device-features-runner/pkg/scenario"
)

// DefaultAppID is the package of the Device Features app.
const DefaultAppID = "app.lovable.04aae878a9224ddd929dad380c1154d8"

// Default values, in milliseconds where a duration.
const (
	DefaultTimeoutMs      = 5000
	DefaultGPSTimeoutMs   = 10000
	DefaultOutputDir      = "reports"
	DefaultUIA2Port       = 6790
	DefaultUIA2StartupMs  = 30000
	DefaultPollIntervalMs = 250
)

// Config represents the workspace configuration (config.yaml).
type Config struct {
	AppID     string   `yaml:"appId"`     // Package of the app under test
	Device    string   `yaml:"device"`    // adb serial, empty = first device
	Scenarios []string `yaml:"scenarios"` // Scenario names, empty = all

	Timeouts Timeouts `yaml:"timeouts"`

	// Report settings
	OutputDir string              `yaml:"outputDir"`
	Flatten   bool                `yaml:"flatten"` // Write directly into outputDir
	Artifacts core.ArtifactConfig `yaml:"artifacts"`

	UIAutomator2 UIAutomator2 `yaml:"uiautomator2"`
}

// Timeouts holds bounded wait durations in milliseconds.
type Timeouts struct {
	Default      int `yaml:"default"`      // Navigation and element waits
	GPS          int `yaml:"gps"`          // Wait for a location fix
	PollInterval int `yaml:"pollInterval"` // Delay between lookups of a wait
}

// UIAutomator2 configures the on-device automation server.
type UIAutomator2 struct {
	Port      int    `yaml:"port"`      // Device port of the server
	StartupMs int    `yaml:"startupMs"` // Time allowed for the server to come up
	APKsDir   string `yaml:"apksDir"`   // Server APKs, default <home>/drivers/android
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Artifacts: core.DefaultArtifactConfig()}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from a file. Unset values take their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Config{Artifacts: core.DefaultArtifactConfig()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	return &cfg, nil
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

	// No config file found, return defaults
	return Default(), nil
}

func (c *Config) applyDefaults() {
	if c.AppID == "" {
		c.AppID = DefaultAppID
	}
	if c.Timeouts.Default == 0 {
		c.Timeouts.Default = DefaultTimeoutMs
	}
	if c.Timeouts.GPS == 0 {
		c.Timeouts.GPS = DefaultGPSTimeoutMs
	}
	if c.Timeouts.PollInterval == 0 {
		c.Timeouts.PollInterval = DefaultPollIntervalMs
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.UIAutomator2.Port == 0 {
		c.UIAutomator2.Port = DefaultUIA2Port
	}
	if c.UIAutomator2.StartupMs == 0 {
		c.UIAutomator2.StartupMs = DefaultUIA2StartupMs
	}
}

// Validate reports every problem found in the configuration.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.AppID) == "" {
		problems = append(problems, "appId is empty")
	}
	if c.Timeouts.Default <= 0 {
		problems = append(problems, fmt.Sprintf("timeouts.default must be positive, got %d", c.Timeouts.Default))
	}
	if c.Timeouts.GPS <= 0 {
		problems = append(problems, fmt.Sprintf("timeouts.gps must be positive, got %d", c.Timeouts.GPS))
	}
	if c.Timeouts.PollInterval <= 0 {
		problems = append(problems, fmt.Sprintf("timeouts.pollInterval must be positive, got %d", c.Timeouts.PollInterval))
	}
	if c.UIAutomator2.Port <= 0 || c.UIAutomator2.Port > 65535 {
		problems = append(problems, fmt.Sprintf("uiautomator2.port out of range: %d", c.UIAutomator2.Port))
	}
	if _, err := scenario.Select(c.Scenarios); err != nil {
		var execErr *core.ExecutionError
		if errors.As(err, &execErr) {
			problems = append(problems, execErr.Message)
		} else {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return core.ErrInvalidConfig.WithMessage("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

// DefaultTimeout returns timeouts.default as a duration.
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Timeouts.Default) * time.Millisecond
}

// GPSTimeout returns timeouts.gps as a duration.
func (c *Config) GPSTimeout() time.Duration {
	return time.Duration(c.Timeouts.GPS) * time.Millisecond
}

// PollInterval returns timeouts.pollInterval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Timeouts.PollInterval) * time.Millisecond
}

// UIA2StartupTimeout returns uiautomator2.startupMs as a duration.
func (c *Config) UIA2StartupTimeout() time.Duration {
	return time.Duration(c.UIAutomator2.StartupMs) * time.Millisecond
}

// APKsDir returns the directory holding the UiAutomator2 server APKs.
func (c *Config) APKsDir() string {
	if c.UIAutomator2.APKsDir != "" {
		return c.UIAutomator2.APKsDir
	}
	return GetDriversDir("android")
}
