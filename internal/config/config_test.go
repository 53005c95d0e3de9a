package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-test"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "data/snippets.db", cfg.DBPath)
	assert.False(t, cfg.VersioningEnabled)
	assert.Equal(t, "html", cfg.EditorMode)
	assert.Equal(t, "github", cfg.EditorTheme)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.GitHubEnabled())
	assert.Equal(t, "http://localhost:8080/admin/github/callback/", cfg.CallbackURL())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "9000")
	t.Setenv("SNIPPET_VERSIONING_ENABLED", "true")
	t.Setenv("SNIPPET_EDITOR_MODE", "javascript")
	t.Setenv("SNIPPET_EDITOR_THEME", "monokai")
	t.Setenv("GITHUB_CLIENT_ID", "id")
	t.Setenv("GITHUB_CLIENT_SECRET", "secret")
	t.Setenv("GITHUB_CALLBACK_URL", "https://cms.example.com/admin/github/callback/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.VersioningEnabled)
	assert.Equal(t, "javascript", cfg.EditorMode)
	assert.Equal(t, "monokai", cfg.EditorTheme)
	assert.True(t, cfg.GitHubEnabled())
	assert.Equal(t, "https://cms.example.com/admin/github/callback/", cfg.CallbackURL())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "missing secret", env: map[string]string{}, want: "parse env:"},
		{name: "bad port", env: map[string]string{"JWT_SECRET": testSecret, "PORT": "http"}, want: "parse env:"},
		{name: "port range", env: map[string]string{"JWT_SECRET": testSecret, "PORT": "70000"}, want: "out of range"},
		{name: "short secret", env: map[string]string{"JWT_SECRET": "short"}, want: "at least 16"},
		{name: "half admin", env: map[string]string{"JWT_SECRET": testSecret, "SNIPPET_ADMIN_USERNAME": "admin"}, want: "set together"},
		{name: "half github", env: map[string]string{"JWT_SECRET": testSecret, "GITHUB_CLIENT_ID": "id"}, want: "set together"},
		{name: "log level", env: map[string]string{"JWT_SECRET": testSecret, "SNIPPET_LOG_LEVEL": "loud"}, want: "SNIPPET_LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel(" WARN ")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}
