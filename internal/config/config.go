// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the full set of process settings.
type Config struct {
	Port   int    `env:"PORT" envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"data/snippets.db"`

	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`

	VersioningEnabled bool   `env:"SNIPPET_VERSIONING_ENABLED" envDefault:"false"`
	EditorMode        string `env:"SNIPPET_EDITOR_MODE" envDefault:"html"`
	EditorTheme       string `env:"SNIPPET_EDITOR_THEME" envDefault:"github"`

	AdminUsername string `env:"SNIPPET_ADMIN_USERNAME"`
	AdminPassword string `env:"SNIPPET_ADMIN_PASSWORD"`

	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubCallbackURL  string `env:"GITHUB_CALLBACK_URL"`

	SeedFile string `env:"SNIPPET_SEED_FILE"`
	LogLevel string `env:"SNIPPET_LOG_LEVEL" envDefault:"info"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads Config from the environment and checks it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that parse but cannot be used.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("config: JWT_SECRET must be at least 16 characters")
	}
	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		return fmt.Errorf("config: SNIPPET_ADMIN_USERNAME and SNIPPET_ADMIN_PASSWORD must be set together")
	}
	if (c.GitHubClientID == "") != (c.GitHubClientSecret == "") {
		return fmt.Errorf("config: GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// GitHubEnabled reports whether OAuth login is configured.
func (c Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// CallbackURL returns the configured OAuth callback, or the local default.
func (c Config) CallbackURL() string {
	if c.GitHubCallbackURL != "" {
		return c.GitHubCallbackURL
	}
	return fmt.Sprintf("http://localhost:%d/admin/github/callback/", c.Port)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: invalid SNIPPET_LOG_LEVEL %q", name)
	}
	return level, nil
}
