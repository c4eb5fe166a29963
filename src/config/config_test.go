package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 3000, cfg.Window.Budget)
	assert.Equal(t, 10000, cfg.Selector.MaxHistoryWords)
	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, 720*time.Hour, cfg.Store.RedisTTL)
	assert.Equal(t, 30*time.Second, cfg.Telegram.PollTimeout)
	assert.Equal(t, "anthropic", cfg.LLM.FallbackProvider)
	assert.False(t, cfg.Notion.Enabled())
	assert.NoError(t, cfg.Validate(false))
}

func TestEnvOnlyKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("COMPANION_NOTION_TOKEN", "secret_abc")
	t.Setenv("COMPANION_NOTION_DATABASE_ID", "db1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "secret_abc", cfg.Notion.Token)
	assert.True(t, cfg.Notion.Enabled())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	t.Setenv("COMPANION_TELEGRAM_TOKEN", "from-env")
	t.Setenv("COMPANION_WINDOW_BUDGET", "800")

	cfg, err := Load(filepath.Join("testdata", "companion.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, 800, cfg.Window.Budget)
	assert.Equal(t, []int64{111, 222}, cfg.Telegram.AllowedChatIDs)
	assert.Equal(t, 45*time.Second, cfg.Telegram.PollTimeout)
	assert.Equal(t, 10*time.Minute, cfg.LLM.ToolCacheTTL)
	assert.Equal(t, "redis", cfg.Store.Type)
	assert.Equal(t, "personas.yaml", cfg.Personas.Path)
	assert.NoError(t, cfg.Validate(true))
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := &Config{
		Personas: PersonasConfig{Source: "supabase"},
		Store:    StoreConfig{Type: "postgres"},
		Profile:  ProfileConfig{Source: "firestore"},
		Whoop:    WhoopConfig{ClientID: "id", ClientSecret: "secret"},
	}
	err := cfg.Validate(true)
	require.Error(t, err)
	for _, want := range []string{"supabase_url", "postgres_dsn", "unknown source", "refresh_token", "telegram: token"} {
		assert.ErrorContains(t, err, want)
	}
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))

	log, err = NewLogger(LogConfig{Level: "DEBUG", Format: "console"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger(LogConfig{Level: "loud"})
	assert.Error(t, err)
}
