// Package config loads tgdesk configuration from a YAML file with
// environment-variable overrides. A .env file in the working directory is
// loaded first when present, so local development and container deployments
// share one mechanism.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Discord   DiscordConfig   `yaml:"discord"`
	Console   ConsoleConfig   `yaml:"console"`
	Store     StoreConfig     `yaml:"store"`
	I18n      I18nConfig      `yaml:"i18n"`
	API       APIConfig       `yaml:"api"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
	Jobs      []JobConfig     `yaml:"jobs"`

	// Modules holds the initial enabled flag per built-in module name.
	// Modules absent from the map start with their compiled-in default.
	Modules map[string]bool `yaml:"modules"`
}

type BotConfig struct {
	Name string `yaml:"name" env:"TGDESK_BOT_NAME"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled" env:"TGDESK_TELEGRAM_ENABLED"`
	Token   string `yaml:"token" env:"TGDESK_TELEGRAM_TOKEN"`
}

type DiscordConfig struct {
	Enabled bool   `yaml:"enabled" env:"TGDESK_DISCORD_ENABLED"`
	Token   string `yaml:"token" env:"TGDESK_DISCORD_TOKEN"`
}

type ConsoleConfig struct {
	Enabled bool `yaml:"enabled" env:"TGDESK_CONSOLE_ENABLED"`
}

type StoreConfig struct {
	Path string `yaml:"path" env:"TGDESK_DB_PATH"`
}

type I18nConfig struct {
	Dir           string `yaml:"dir" env:"TGDESK_LOCALE_DIR"`
	DefaultLocale string `yaml:"default_locale" env:"TGDESK_DEFAULT_LOCALE"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled" env:"TGDESK_API_ENABLED"`
	Addr    string `yaml:"addr" env:"TGDESK_API_ADDR"`
	Key     string `yaml:"key" env:"TGDESK_API_KEY"`
}

type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second" env:"TGDESK_RATE_PER_SECOND"`
	Burst     int     `yaml:"burst" env:"TGDESK_RATE_BURST"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"TGDESK_LOG_LEVEL"`
	File  string `yaml:"file" env:"TGDESK_LOG_FILE"`
}

// JobConfig schedules a named dispatch through the event scheduler.
// Cron accepts standard five-field expressions.
type JobConfig struct {
	Name string `yaml:"name"`
	Cron string `yaml:"cron"`
}

// Default returns the configuration used when no file and no environment
// overrides are present. The console transport is on so a bare binary is
// usable immediately.
func Default() *Config {
	return &Config{
		Bot:     BotConfig{Name: "tgdesk"},
		Console: ConsoleConfig{Enabled: true},
		Store:   StoreConfig{Path: "tgdesk.db"},
		I18n: I18nConfig{
			Dir:           "locales",
			DefaultLocale: "en",
		},
		API: APIConfig{
			Addr: "127.0.0.1:8791",
		},
		RateLimit: RateLimitConfig{
			PerSecond: 1,
			Burst:     5,
		},
		Log:     LogConfig{Level: "info"},
		Modules: map[string]bool{},
	}
}

// Load reads the YAML file at path (skipped when path is empty or the file
// does not exist), applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	// Best effort; absence of a .env file is the normal case in production.
	godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to env-only configuration
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("telegram enabled but no token set (TGDESK_TELEGRAM_TOKEN)")
	}
	if c.Discord.Enabled && c.Discord.Token == "" {
		return fmt.Errorf("discord enabled but no token set (TGDESK_DISCORD_TOKEN)")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path must not be empty")
	}
	if c.RateLimit.PerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}
	return nil
}

// EnsureStoreDir creates the parent directory of the sqlite file so a fresh
// deployment can open the store without manual setup.
func (c *Config) EnsureStoreDir() error {
	dir := filepath.Dir(c.Store.Path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
