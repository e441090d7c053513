package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the shopctl configuration file.
type Config struct {
	APIURL   string `yaml:"api_url"`
	StateDir string `yaml:"state_dir"`
	Debounce string `yaml:"debounce"`
	Timeout  string `yaml:"timeout"`
	LogLevel string `yaml:"log_level"`
}

func defaultConfig() Config {
	stateDir := ".shopctl"
	if dir, err := os.UserConfigDir(); err == nil {
		stateDir = filepath.Join(dir, "shopctl", "state")
	}
	return Config{
		APIURL:   "http://localhost:8080",
		StateDir: stateDir,
		Debounce: "2s",
		Timeout:  "30s",
		LogLevel: "warn",
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "shopctl.yaml"
	}
	return filepath.Join(dir, "shopctl", "config.yaml")
}

// loadConfig reads path over the defaults. A missing file is not an error.
// SHOPCTL_API_URL and SHOPCTL_STATE_DIR override the file.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(filepath.Clean(path))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if v := os.Getenv("SHOPCTL_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv("SHOPCTL_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.APIURL == "" {
		return errors.New("api_url is required")
	}
	if _, err := c.debounce(); err != nil {
		return fmt.Errorf("debounce: %w", err)
	}
	if _, err := c.timeout(); err != nil {
		return fmt.Errorf("timeout: %w", err)
	}
	return nil
}

func (c Config) debounce() (time.Duration, error) {
	return parseDuration(c.Debounce, 2*time.Second)
}

func (c Config) timeout() (time.Duration, error) {
	return parseDuration(c.Timeout, 30*time.Second)
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}
