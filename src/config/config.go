// Package config loads the companion configuration from a YAML file and
// COMPANION_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "COMPANION"

// Config stores all configuration of the application.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Window    WindowConfig    `mapstructure:"window"`
	Selector  SelectorConfig  `mapstructure:"selector"`
	Personas  PersonasConfig  `mapstructure:"personas"`
	Store     StoreConfig     `mapstructure:"store"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Whoop     WhoopConfig     `mapstructure:"whoop"`
	Checklist ChecklistConfig `mapstructure:"checklist"`
	Notion    NotionConfig    `mapstructure:"notion"`
	Profile   ProfileConfig   `mapstructure:"profile"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
}

type LLMConfig struct {
	// FallbackProvider serves persona model ids that match no known family.
	FallbackProvider string `mapstructure:"fallback_provider"`
	MaxTokens        int    `mapstructure:"max_tokens"`

	SelectorModel       string  `mapstructure:"selector_model"`
	SelectorTemperature float64 `mapstructure:"selector_temperature"`

	ToolModel       string        `mapstructure:"tool_model"`
	ToolCacheSize   int           `mapstructure:"tool_cache_size"`
	ToolCacheTTL    time.Duration `mapstructure:"tool_cache_ttl"`
	ToolTemperature float64       `mapstructure:"tool_temperature"`
}

type WindowConfig struct {
	Budget int `mapstructure:"budget"` // words
}

type SelectorConfig struct {
	MaxHistoryWords int `mapstructure:"max_history_words"`
}

type PersonasConfig struct {
	Source      string `mapstructure:"source"` // csv, yaml or supabase; empty infers from path
	Path        string `mapstructure:"path"`
	Table       string `mapstructure:"table"`
	SupabaseURL string `mapstructure:"supabase_url"`
	SupabaseKey string `mapstructure:"supabase_key"`
}

type StoreConfig struct {
	Type           string        `mapstructure:"type"` // memory, sqlite, redis, mongo, postgres
	ArchiveOnReset bool          `mapstructure:"archive_on_reset"`
	SQLitePath     string        `mapstructure:"sqlite_path"`
	RedisAddr      string        `mapstructure:"redis_addr"`
	RedisPassword  string        `mapstructure:"redis_password"`
	RedisDB        int           `mapstructure:"redis_db"`
	RedisTTL       time.Duration `mapstructure:"redis_ttl"`
	MongoURI       string        `mapstructure:"mongo_uri"`
	MongoDatabase  string        `mapstructure:"mongo_database"`
	PostgresDSN    string        `mapstructure:"postgres_dsn"`
}

type ToolsConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

type WhoopConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
	RefreshToken string `mapstructure:"refresh_token"`
	TokenURL     string `mapstructure:"token_url"`
	BaseURL      string `mapstructure:"base_url"`
	// TokenStore is memory or redis. Redis reuses the store.redis_* settings.
	TokenStore string `mapstructure:"token_store"`
	TokenKey   string `mapstructure:"token_key"`
}

// Enabled reports whether the fitness tool can be offered.
func (w WhoopConfig) Enabled() bool { return w.ClientID != "" && w.ClientSecret != "" }

type ChecklistConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	Range           string `mapstructure:"range"`
}

func (c ChecklistConfig) Enabled() bool { return c.SpreadsheetID != "" }

type NotionConfig struct {
	Token      string `mapstructure:"token"`
	DatabaseID string `mapstructure:"database_id"`
	BaseURL    string `mapstructure:"base_url"`
}

func (n NotionConfig) Enabled() bool { return n.Token != "" && n.DatabaseID != "" }

type ProfileConfig struct {
	Source        string `mapstructure:"source"` // file or mongo; empty disables the tool
	Path          string `mapstructure:"path"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
	Collection    string `mapstructure:"collection"`
}

type TelegramConfig struct {
	Token          string        `mapstructure:"token"`
	BotName        string        `mapstructure:"bot_name"`
	AllowedChatIDs []int64       `mapstructure:"allowed_chat_ids"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	WebhookAddr    string        `mapstructure:"webhook_addr"`
	WebhookPath    string        `mapstructure:"webhook_path"`
	// WebhookURL is registered with Telegram on start. Empty leaves the
	// current registration untouched.
	WebhookURL     string        `mapstructure:"webhook_url"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
	BaseURL        string        `mapstructure:"base_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("llm.fallback_provider", "anthropic")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.selector_model", "claude-3-5-sonnet-20241022")
	v.SetDefault("llm.selector_temperature", 0.0)
	v.SetDefault("llm.tool_model", "claude-3-5-sonnet-20241022")
	v.SetDefault("llm.tool_temperature", 0.0)
	v.SetDefault("llm.tool_cache_size", 256)
	v.SetDefault("llm.tool_cache_ttl", "0s")

	v.SetDefault("window.budget", 3000)
	v.SetDefault("selector.max_history_words", 10000)

	v.SetDefault("personas.path", "personas.csv")
	v.SetDefault("personas.table", "personas")

	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.sqlite_path", "companion.db")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_ttl", "720h")
	v.SetDefault("store.mongo_database", "companion")

	v.SetDefault("tools.max_concurrency", 4)

	v.SetDefault("whoop.token_store", "memory")
	v.SetDefault("whoop.token_key", "whoop:refresh_token")

	v.SetDefault("checklist.range", "A:ZZ")

	v.SetDefault("profile.collection", "personality_profiles")
	v.SetDefault("profile.mongo_database", "companion")

	v.SetDefault("telegram.poll_timeout", "30s")
	v.SetDefault("telegram.webhook_path", "/telegram/webhook")

	// Keys without a default must still be known for env overrides to apply.
	for _, key := range []string{
		"personas.source", "personas.supabase_url", "personas.supabase_key",
		"store.archive_on_reset", "store.redis_password", "store.redis_db", "store.mongo_uri", "store.postgres_dsn",
		"whoop.client_id", "whoop.client_secret", "whoop.redirect_url", "whoop.refresh_token", "whoop.token_url", "whoop.base_url",
		"checklist.credentials_file", "checklist.spreadsheet_id",
		"notion.token", "notion.database_id", "notion.base_url",
		"profile.source", "profile.path", "profile.mongo_uri",
		"telegram.token", "telegram.bot_name", "telegram.allowed_chat_ids", "telegram.webhook_addr", "telegram.webhook_url", "telegram.webhook_secret", "telegram.base_url",
	} {
		v.SetDefault(key, nil)
	}
}

// Load reads configuration from path (optional) and the environment.
// Environment keys are the upper-cased config keys with dots replaced by
// underscores, e.g. COMPANION_TELEGRAM_TOKEN.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("companion")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/companion")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every missing required value. serve additionally needs
// the Telegram token.
func (c *Config) Validate(serve bool) error {
	var errs []error
	switch strings.ToLower(c.Personas.Source) {
	case "supabase":
		if c.Personas.SupabaseURL == "" || c.Personas.SupabaseKey == "" {
			errs = append(errs, errors.New("personas: supabase_url and supabase_key are required for the supabase source"))
		}
	default:
		if c.Personas.Path == "" {
			errs = append(errs, errors.New("personas: path is required"))
		}
	}
	switch strings.ToLower(c.Store.Type) {
	case "", "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store: sqlite_path is required"))
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store: redis_addr is required"))
		}
	case "mongo":
		if c.Store.MongoURI == "" {
			errs = append(errs, errors.New("store: mongo_uri is required"))
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store: postgres_dsn is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("store: unknown type %q", c.Store.Type))
	}
	switch strings.ToLower(c.Profile.Source) {
	case "", "file", "mongo":
	default:
		errs = append(errs, fmt.Errorf("profile: unknown source %q", c.Profile.Source))
	}
	if c.Profile.Source == "mongo" && c.Profile.MongoURI == "" && c.Store.MongoURI == "" {
		errs = append(errs, errors.New("profile: mongo_uri is required for the mongo source"))
	}
	if c.Whoop.Enabled() && c.Whoop.RefreshToken == "" && c.Whoop.TokenStore != "redis" {
		errs = append(errs, errors.New("whoop: refresh_token is required unless the token store is redis"))
	}
	if serve && c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram: token is required to serve"))
	}
	return errors.Join(errs...)
}
