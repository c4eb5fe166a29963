package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	companion "github.com/Protocol-Lattice/go-companion"
	"github.com/Protocol-Lattice/go-companion/src/config"
	"github.com/Protocol-Lattice/go-companion/src/conversation/store"
	"github.com/Protocol-Lattice/go-companion/src/models"
	"github.com/Protocol-Lattice/go-companion/src/orchestrator"
	"github.com/Protocol-Lattice/go-companion/src/persona"
	"github.com/Protocol-Lattice/go-companion/src/providers/checklist"
	"github.com/Protocol-Lattice/go-companion/src/providers/notion"
	"github.com/Protocol-Lattice/go-companion/src/providers/profile"
	"github.com/Protocol-Lattice/go-companion/src/providers/whoop"
	"github.com/Protocol-Lattice/go-companion/src/selector"
	"github.com/Protocol-Lattice/go-companion/src/tools"
)

// app is the fully wired pipeline behind every subcommand.
type app struct {
	Controller *companion.Controller
	Catalog    *persona.Catalog

	clients *clients
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// clients hands out the shared Redis, Mongo and Postgres connections. A
// client is dialed at most once and its closer is registered the moment it
// exists, so Close releases everything dialed so far.
type clients struct {
	cfg     *config.Config
	redis   *redis.Client
	mongo   map[string]*mongo.Client
	closers []func() error
}

func (cl *clients) Redis() *redis.Client {
	if cl.redis == nil {
		cl.redis = redis.NewClient(&redis.Options{
			Addr:     cl.cfg.Store.RedisAddr,
			Password: cl.cfg.Store.RedisPassword,
			DB:       cl.cfg.Store.RedisDB,
		})
		cl.closers = append(cl.closers, cl.redis.Close)
	}
	return cl.redis
}

func (cl *clients) Mongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if c, ok := cl.mongo[uri]; ok {
		return c, nil
	}
	c, err := store.ConnectMongo(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if cl.mongo == nil {
		cl.mongo = make(map[string]*mongo.Client)
	}
	cl.mongo[uri] = c
	cl.closers = append(cl.closers, func() error { return c.Disconnect(context.Background()) })
	return c, nil
}

func (cl *clients) Postgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := store.ConnectPostgres(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	cl.closers = append(cl.closers, func() error {
		pool.Close()
		return nil
	})
	return pool, nil
}

func (cl *clients) Close() error {
	var errs []error
	for i := len(cl.closers) - 1; i >= 0; i-- {
		errs = append(errs, cl.closers[i]())
	}
	cl.closers = nil
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.Config, log *zap.Logger, onState func(string, companion.State)) (a *app, err error) {
	a = &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()
	cl := &clients{cfg: cfg}
	a.clients = cl
	a.closers = append(a.closers, cl.Close)

	catalog, err := persona.Load(ctx, persona.Source{
		Kind:        cfg.Personas.Source,
		Path:        cfg.Personas.Path,
		Table:       cfg.Personas.Table,
		SupabaseURL: cfg.Personas.SupabaseURL,
		SupabaseKey: cfg.Personas.SupabaseKey,
	})
	if err != nil {
		return a, err
	}
	a.Catalog = catalog
	log.Info("persona catalog loaded", zap.Int("personas", catalog.Len()))

	conversations, err := buildStore(ctx, cfg, cl)
	if err != nil {
		return a, err
	}
	// Redis, Mongo and Postgres stores only wrap a connection owned by cl.
	switch store.Type(strings.ToLower(cfg.Store.Type)) {
	case store.TypeRedis, store.TypeMongo, store.TypePostgres:
	default:
		a.closers = append(a.closers, conversations.Close)
	}

	router := models.NewRouter(cfg.LLM.FallbackProvider, cfg.LLM.MaxTokens)
	chooser, err := router.ForModel(ctx, cfg.LLM.SelectorModel, cfg.LLM.SelectorTemperature)
	if err != nil {
		return a, fmt.Errorf("selector model: %w", err)
	}
	toolModel, err := router.ForModel(ctx, cfg.LLM.ToolModel, cfg.LLM.ToolTemperature)
	if err != nil {
		return a, fmt.Errorf("tool model: %w", err)
	}
	toolModel = models.MaybeCached(toolModel, cfg.LLM.ToolCacheSize, cfg.LLM.ToolCacheTTL)

	sources, err := buildSources(ctx, cfg, cl, log)
	if err != nil {
		return a, err
	}
	registry, err := tools.Builtin(sources)
	if err != nil {
		return a, err
	}
	log.Info("tools registered", zap.Int("tools", registry.Len()))

	orch, err := orchestrator.New(orchestrator.Options{
		Model:          toolModel,
		Tools:          registry,
		MaxConcurrency: cfg.Tools.MaxConcurrency,
		Logger:         log.Named("orchestrator"),
	})
	if err != nil {
		return a, err
	}
	sel, err := selector.New(selector.Options{
		Model:           chooser,
		Catalog:         catalog,
		MaxHistoryWords: cfg.Selector.MaxHistoryWords,
		Logger:          log.Named("selector"),
	})
	if err != nil {
		return a, err
	}

	ctrl, err := companion.New(companion.Options{
		Selector:       sel,
		Tools:          orch,
		Models:         router,
		Store:          conversations,
		Catalog:        catalog,
		WindowBudget:   cfg.Window.Budget,
		ArchiveOnReset: cfg.Store.ArchiveOnReset,
		OnState:        onState,
		Logger:         log.Named("controller"),
	})
	if err != nil {
		return a, err
	}
	a.Controller = ctrl
	return a, nil
}

func buildStore(ctx context.Context, cfg *config.Config, cl *clients) (store.Store, error) {
	storeType := store.Type(strings.ToLower(cfg.Store.Type))
	var opts []store.Option
	switch storeType {
	case store.TypeSQLite:
		opts = append(opts, store.WithSQLitePath(cfg.Store.SQLitePath))
	case store.TypeRedis:
		opts = append(opts, store.WithRedisClient(cl.Redis()), store.WithRedisTTL(cfg.Store.RedisTTL))
	case store.TypeMongo:
		client, err := cl.Mongo(ctx, cfg.Store.MongoURI)
		if err != nil {
			return nil, err
		}
		opts = append(opts, store.WithMongo(client, cfg.Store.MongoDatabase))
	case store.TypePostgres:
		pool, err := cl.Postgres(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		opts = append(opts, store.WithPostgresPool(pool))
	}
	s, err := store.New(ctx, storeType, opts...)
	if err != nil {
		return nil, fmt.Errorf("conversation store %q: %w", cfg.Store.Type, err)
	}
	return s, nil
}

func buildSources(ctx context.Context, cfg *config.Config, cl *clients, log *zap.Logger) (tools.Sources, error) {
	var src tools.Sources

	if cfg.Whoop.Enabled() {
		var tokens whoop.TokenStore = whoop.NewMemoryTokenStore(cfg.Whoop.RefreshToken)
		if cfg.Whoop.TokenStore == "redis" {
			tokens = &whoop.RedisTokenStore{Client: cl.Redis(), Key: cfg.Whoop.TokenKey, Seed: cfg.Whoop.RefreshToken}
		}
		client := whoop.NewClient(whoop.NewTokenManager(whoop.TokenConfig{
			ClientID:     cfg.Whoop.ClientID,
			ClientSecret: cfg.Whoop.ClientSecret,
			RedirectURL:  cfg.Whoop.RedirectURL,
			TokenURL:     cfg.Whoop.TokenURL,
		}, tokens))
		if cfg.Whoop.BaseURL != "" {
			client.BaseURL = cfg.Whoop.BaseURL
		}
		src.Fitness = client
	}

	if cfg.Checklist.Enabled() {
		reader, err := checklist.NewSheetsReader(ctx, cfg.Checklist.CredentialsFile, cfg.Checklist.SpreadsheetID, cfg.Checklist.Range)
		if err != nil {
			return src, fmt.Errorf("habit checklist: %w", err)
		}
		src.Habits = checklist.New(reader)
	}

	if cfg.Notion.Enabled() {
		client := notion.NewClient(cfg.Notion.Token, cfg.Notion.DatabaseID)
		if cfg.Notion.BaseURL != "" {
			client.BaseURL = cfg.Notion.BaseURL
		}
		src.Journal = client
	}

	switch strings.ToLower(cfg.Profile.Source) {
	case "file":
		src.Profile = profile.NewSource(profile.FileStore{Path: cfg.Profile.Path})
	case "mongo":
		ms, err := profileMongo(ctx, cfg, cl)
		if err != nil {
			return src, err
		}
		src.Profile = profile.NewSource(ms)
	}

	log.Debug("personal data sources",
		zap.Bool("fitness", src.Fitness != nil),
		zap.Bool("habits", src.Habits != nil),
		zap.Bool("journal", src.Journal != nil),
		zap.Bool("profile", src.Profile != nil))
	return src, nil
}

func profileMongo(ctx context.Context, cfg *config.Config, cl *clients) (*profile.MongoStore, error) {
	uri := cfg.Profile.MongoURI
	if uri == "" {
		uri = cfg.Store.MongoURI
	}
	client, err := cl.Mongo(ctx, uri)
	if err != nil {
		return nil, err
	}
	return profile.NewMongoStore(client, cfg.Profile.MongoDatabase, cfg.Profile.Collection), nil
}
