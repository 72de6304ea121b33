package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/agency-studio/internal/api"
	"github.com/nidhogg/agency-studio/internal/config"
	"github.com/nidhogg/agency-studio/internal/notify"
	"github.com/nidhogg/agency-studio/internal/orchestrator"
	"github.com/nidhogg/agency-studio/internal/provider"
	"github.com/nidhogg/agency-studio/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// backend is what both the PostgreSQL and in-memory stores provide.
type backend interface {
	api.Store
	orchestrator.Persistence
}

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Agency Studio...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/studio.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	if lvl, lvlErr := zapcore.ParseLevel(cfg.Server.LogLevel); lvlErr == nil {
		logger = logger.WithOptions(zap.IncreaseLevel(lvl))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Initialize provider router
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAIProvider(pc.Provider(), logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(pc.Provider(), logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
			continue
		}
		if pc.Default {
			router.SetDefault(pc.ID)
		}
	}

	// Initialize persistence
	ctx := context.Background()
	var db backend
	var pgStore *store.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := store.New(ctx, cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running with in-memory store", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(ctx, cfg.Server.MigrationsDir); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			pgStore = ps
			db = ps
		}
	}
	if db == nil {
		db = store.NewMemory()
	}
	seedTiers(ctx, db, cfg, logger)

	// Progress events
	var bus *orchestrator.ProgressBus
	var events orchestrator.EventSink
	var stream api.EventSource
	if cfg.Database.Redis.URL != "" {
		b, busErr := orchestrator.NewProgressBus(ctx, cfg.Database.Redis.URL, logger)
		if busErr != nil {
			logger.Warn("Redis unavailable, running without progress events", zap.Error(busErr))
		} else {
			bus, events, stream = b, b, b
		}
	}

	// Completion notices
	hub := notify.NewHub(logger)
	if c := cfg.Notify.Slack; c.Enabled && c.BotToken != "" {
		hub.Register(notify.NewSlackNotifier(c.BotToken, c.Channel, logger))
	}
	var discord *notify.DiscordNotifier
	if c := cfg.Notify.Discord; c.Enabled && c.BotToken != "" {
		d, dErr := notify.NewDiscordNotifier(c.BotToken, c.Channel, logger)
		if dErr != nil {
			logger.Warn("Discord notifier unavailable", zap.Error(dErr))
		} else {
			discord = d
			hub.Register(d)
		}
	}
	logger.Info("Notifiers registered", zap.Strings("platforms", hub.Platforms()))

	// Initialize orchestrator
	deps := orchestrator.Deps{
		Store:    db,
		Config:   db,
		Exec:     router,
		Events:   events,
		Notifier: hub,
		Logger:   logger,
	}
	driver := orchestrator.NewDriver(cfg.Orchestrator.PoolSize, logger)
	pipeline := orchestrator.NewPipeline(deps, driver)
	phased := orchestrator.NewPhased(deps, driver, orchestrator.PhasedOptions{
		Policy:         cfg.Orchestrator.RetryPolicy(),
		FreshnessTTL:   cfg.Orchestrator.FreshnessTTL(),
		DefaultQuality: cfg.Orchestrator.DefaultQuality,
	})
	svc := orchestrator.NewService(db, pipeline, phased, cfg.Orchestrator.MaxRuns, logger)
	logger.Info("Orchestrator initialized",
		zap.Int("pool_size", cfg.Orchestrator.PoolSize),
		zap.Int("max_runs", cfg.Orchestrator.MaxRuns))

	// Build HTTP handler
	handler := api.NewHandler(db, svc, stream, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Agency Studio listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Agency Studio...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	svc.Wait()
	hub.Wait()
	if discord != nil {
		discord.Close()
	}
	if bus != nil {
		bus.Close()
	}
	if pgStore != nil {
		pgStore.Close()
	}
}

// seedTiers stores the configured tier tables when none are stored yet.
func seedTiers(ctx context.Context, db backend, cfg *config.Config, logger *zap.Logger) {
	tc := cfg.TierConfig()
	if len(tc.Text) == 0 && len(tc.Image) == 0 {
		return
	}
	current, err := db.TierConfig(ctx)
	if err != nil {
		logger.Warn("read tier config failed", zap.Error(err))
		return
	}
	if len(current.Text) > 0 || len(current.Image) > 0 {
		return
	}
	if err := db.SetTierConfig(ctx, tc); err != nil {
		logger.Warn("seed tier config failed", zap.Error(err))
		return
	}
	logger.Info("Seeded tier config", zap.Int("text", len(tc.Text)), zap.Int("image", len(tc.Image)))
}
