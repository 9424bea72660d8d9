// Package config loads laterread's settings from defaults, an optional
// YAML file and LATERREAD_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Host kinds.
const (
	HostExtension = "extension"
	HostChrome    = "chrome"
	HostFirefox   = "firefox"
)

// Config is the resolved configuration.
type Config struct {
	DBPath         string `mapstructure:"db_path"`
	LogDir         string `mapstructure:"log_dir"`
	Addr           string `mapstructure:"addr"`
	Host           string `mapstructure:"host"`
	FirefoxProfile string `mapstructure:"firefox_profile"`
	ChromeURL      string `mapstructure:"chrome_url"`
	ChromeHeadless bool   `mapstructure:"chrome_headless"`

	ScrollRestoreDelay time.Duration `mapstructure:"scroll_restore_delay"`
	PageCheckDelay     time.Duration `mapstructure:"page_check_delay"`
	CloseTabDelay      time.Duration `mapstructure:"close_tab_delay"`
	StatusClearDelay   time.Duration `mapstructure:"status_clear_delay"`
	DragThreshold      int           `mapstructure:"drag_threshold"`
}

// fileConfig is the on-disk shape written by WriteDefault. Durations are
// kept as strings such as "1s" so the file stays readable.
type fileConfig struct {
	DBPath             string `yaml:"db_path"`
	LogDir             string `yaml:"log_dir"`
	Addr               string `yaml:"addr"`
	Host               string `yaml:"host"`
	FirefoxProfile     string `yaml:"firefox_profile"`
	ChromeURL          string `yaml:"chrome_url"`
	ChromeHeadless     bool   `yaml:"chrome_headless"`
	ScrollRestoreDelay string `yaml:"scroll_restore_delay"`
	PageCheckDelay     string `yaml:"page_check_delay"`
	CloseTabDelay      string `yaml:"close_tab_delay"`
	StatusClearDelay   string `yaml:"status_clear_delay"`
	DragThreshold      int    `yaml:"drag_threshold"`
}

// Default returns the built-in configuration rooted at the user's home.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("get home directory: %w", err)
	}
	data := filepath.Join(home, ".local", "share", "laterread")
	return Config{
		DBPath:             filepath.Join(data, "laterread.db"),
		LogDir:             filepath.Join(data, "logs"),
		Addr:               "127.0.0.1:19192",
		Host:               HostExtension,
		ChromeHeadless:     false,
		ScrollRestoreDelay: time.Second,
		PageCheckDelay:     time.Second,
		CloseTabDelay:      300 * time.Millisecond,
		StatusClearDelay:   2 * time.Second,
		DragThreshold:      5,
	}, nil
}

// DefaultPath returns ~/.config/laterread/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "laterread", "config.yaml"), nil
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Host {
	case HostExtension, HostChrome, HostFirefox:
	default:
		return fmt.Errorf("unsupported host %q (want extension, chrome or firefox)", c.Host)
	}
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.DragThreshold < 0 {
		return fmt.Errorf("drag_threshold must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"scroll_restore_delay": c.ScrollRestoreDelay,
		"page_check_delay":     c.PageCheckDelay,
		"close_tab_delay":      c.CloseTabDelay,
		"status_clear_delay":   c.StatusClearDelay,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

func (c Config) file() fileConfig {
	return fileConfig{
		DBPath:             c.DBPath,
		LogDir:             c.LogDir,
		Addr:               c.Addr,
		Host:               c.Host,
		FirefoxProfile:     c.FirefoxProfile,
		ChromeURL:          c.ChromeURL,
		ChromeHeadless:     c.ChromeHeadless,
		ScrollRestoreDelay: c.ScrollRestoreDelay.String(),
		PageCheckDelay:     c.PageCheckDelay.String(),
		CloseTabDelay:      c.CloseTabDelay.String(),
		StatusClearDelay:   c.StatusClearDelay.String(),
		DragThreshold:      c.DragThreshold,
	}
}

// Load resolves the configuration. An empty path means DefaultPath; a
// missing file is not an error. Environment variables such as
// LATERREAD_ADDR override the file.
func Load(path string) (Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}
	cfg, err := Default()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LATERREAD")
	v.AutomaticEnv()
	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("log_dir", cfg.LogDir)
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("host", cfg.Host)
	v.SetDefault("firefox_profile", cfg.FirefoxProfile)
	v.SetDefault("chrome_url", cfg.ChromeURL)
	v.SetDefault("chrome_headless", cfg.ChromeHeadless)
	v.SetDefault("scroll_restore_delay", cfg.ScrollRestoreDelay)
	v.SetDefault("page_check_delay", cfg.PageCheckDelay)
	v.SetDefault("close_tab_delay", cfg.CloseTabDelay)
	v.SetDefault("status_clear_delay", cfg.StatusClearDelay)
	v.SetDefault("drag_threshold", cfg.DragThreshold)

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to path (DefaultPath when
// empty) and returns the path written.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return "", err
		}
		path = p
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}
	cfg, err := Default()
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(cfg.file())
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}
