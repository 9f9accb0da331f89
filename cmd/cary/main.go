package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nfrm/cary-services/internal/agent"
	"github.com/nfrm/cary-services/internal/api"
	"github.com/nfrm/cary-services/internal/config"
	"github.com/nfrm/cary-services/internal/conversation"
	"github.com/nfrm/cary-services/internal/logsink"
	"github.com/nfrm/cary-services/internal/logstore"
	"github.com/nfrm/cary-services/internal/provider"
	"github.com/nfrm/cary-services/internal/query"
	"github.com/nfrm/cary-services/internal/tools"
)

const llmRoute = "default"

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/cary.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server)
	defer logger.Sync()
	logger.Info("Starting cary-services...", zap.String("config", cfgPath))

	ctx := context.Background()

	// Initialize provider router
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		provCfg := provider.ProviderConfig{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Models: pc.Models, Extra: pc.Extra,
			Timeout: pc.Timeout.Std(),
		}
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(provCfg, logger))
		case "gemini":
			router.Register(provider.NewGeminiProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}
	if cfg.LLM.DefaultProvider != "" {
		router.SetDefault(cfg.LLM.DefaultProvider)
	}
	router.SetFallbacks(llmRoute, cfg.LLM.Fallbacks)
	if len(cfg.Providers) == 0 {
		logger.Warn("no LLM providers configured, AI endpoints will return errors")
	}

	// Log store; falls back to a disabled store when unreachable
	store := logstore.Open(ctx, logstore.Options{
		Driver:  cfg.Database.Driver,
		DSN:     cfg.Database.Postgres.DSN,
		Migrate: cfg.Database.MigrateEnabled(),
	}, logger)

	sink := logsink.New(ctx, logsink.Options{
		Mode:         cfg.LogSink.Mode,
		RedisURL:     cfg.Database.Redis.URL,
		Stream:       cfg.LogSink.Stream,
		MaxLen:       cfg.LogSink.MaxLen,
		Collection:   cfg.Database.Collection,
		WriteTimeout: cfg.LogSink.WriteTimeout.Std(),
	}, store, logger)

	querySvc := query.NewService(store, cfg.Database.Collection, logger)

	// Admin chat agent
	registry := agent.NewToolRegistry()
	if err := tools.Register(registry, querySvc, tools.Options{
		Collection:    cfg.Database.Collection,
		DistinctLimit: cfg.Agent.DistinctScanLimit,
		GroupLimit:    cfg.Agent.GroupScanLimit,
	}, logger); err != nil {
		logger.Fatal("failed to register agent tools", zap.Error(err))
	}
	adminAgent := agent.New(
		agent.NewRouterModel(router, llmRoute, cfg.Agent.Model),
		registry,
		agent.Options{
			Collection:   cfg.Database.Collection,
			MaxToolCalls: cfg.Agent.MaxToolCalls,
			Timeout:      cfg.Agent.Timeout.Std(),
		},
		logger,
	)

	conv := conversation.NewService(conversation.RouterGenerator{
		Router: router,
		Route:  llmRoute,
		Model:  cfg.LLM.Model,
	}, logger)

	handler := api.NewHandler(api.Deps{
		Query:        querySvc,
		Agent:        adminAgent,
		Conversation: conv,
		Sink:         sink,
		Models:       router,
		CORSOrigins:  cfg.Server.CORSOrigins,
	}, logger)

	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("cary-services listening", zap.String("port", port))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down cary-services...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if err := sink.Close(); err != nil {
		logger.Warn("log sink close", zap.Error(err))
	}
	store.Close()
}

func newLogger(cfg config.ServerConfig) *zap.Logger {
	var zc zap.Config
	if cfg.Env == "production" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	if lvl, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zc.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}
