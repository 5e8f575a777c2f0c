// Package main is the entry point for the callbridge server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/assistant"
	"github.com/jkindrix/callbridge/internal/audit"
	"github.com/jkindrix/callbridge/internal/cache"
	"github.com/jkindrix/callbridge/internal/caller"
	"github.com/jkindrix/callbridge/internal/config"
	"github.com/jkindrix/callbridge/internal/database"
	"github.com/jkindrix/callbridge/internal/handler"
	"github.com/jkindrix/callbridge/internal/ingest"
	"github.com/jkindrix/callbridge/internal/logging"
	"github.com/jkindrix/callbridge/internal/metrics"
	"github.com/jkindrix/callbridge/internal/orchestrator"
	"github.com/jkindrix/callbridge/internal/recommend"
	"github.com/jkindrix/callbridge/internal/repository"
	"github.com/jkindrix/callbridge/internal/search"
	"github.com/jkindrix/callbridge/internal/shutdown"
	"github.com/jkindrix/callbridge/internal/vapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := logging.New(&logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Environment: cfg.Server.Environment,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger := appLogger.Zap()
	defer func() { _ = logger.Sync() }()

	logger.Info("starting callbridge server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("env", cfg.Server.Environment),
		zap.Bool("webhook_mode", cfg.Vapi.WebhookEnabled()),
	)

	ctx := context.Background()
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// Repositories
	requestRepo := repository.NewRequestRepository(db.Pool)
	providerRepo := repository.NewProviderRepository(db.Pool, logger)
	logRepo := repository.NewLogRepository(db.Pool, logger)

	// Observability
	m := metrics.NewMetrics()
	auditLog := audit.NewLogger(logger)
	events := metrics.NewBusinessEventLogger(logger)

	// Vendor client and call result plumbing
	vendor := vapi.New(&vapi.Config{
		APIKey:  cfg.Vapi.APIKey,
		BaseURL: cfg.Vapi.APIURL,
	}, logger)
	vendor.SetMetrics(m)

	resultCache := cache.New(cfg.Cache.TTL, logger)
	builder := assistant.NewBuilder(cfg.Assistant)

	enricher := ingest.NewEnricher(vendor, resultCache, providerRepo, logRepo, nil, logger)
	enricher.SetMetrics(m)
	ingestor := ingest.NewIngestor(resultCache, enricher, logger)

	direct := caller.NewDirectCaller(
		caller.Config{
			PhoneNumberID: cfg.Vapi.PhoneNumberID,
			WebhookURL:    cfg.Vapi.WebhookURL,
		},
		vendor,
		builder,
		resultSource(cfg, resultCache),
		providerRepo,
		logRepo,
		nil,
		logger,
	)
	direct.SetMetrics(m)
	batch := caller.NewBatchCaller(direct, logger)

	// Pipeline
	searcher := search.NewHTTPAdapter(search.Config{
		URL:     cfg.Search.URL,
		APIKey:  cfg.Search.APIKey,
		Timeout: cfg.Search.Timeout,
	}, logger)
	recommender := recommend.New(logger)
	orch := orchestrator.New(
		requestRepo,
		providerRepo,
		logRepo,
		searcher,
		batch,
		direct,
		recommender,
		events,
		cfg.Vapi.MaxConcurrentCalls,
		logger,
	)
	orch.SetMetrics(m)

	// HTTP surface
	router := handler.NewRouter(handler.RouterDeps{
		Webhook:   handler.NewWebhookHandler(ingestor, cfg.Vapi.WebhookSecret, m, auditLog, logger),
		Calls:     handler.NewCallsHandler(resultCache, m, logger),
		Providers: handler.NewProvidersHandler(direct, batch, &cfg.Vapi, logger),
		Requests:  handler.NewRequestsHandler(requestRepo, providerRepo, logRepo, orch, auditLog, logger),
		Health:    handler.NewHealthHandler(db, vendor, logger),
		LogLevel:  handler.NewLogLevelHandler(appLogger.AtomicLevel(), logger),
		Metrics:   m,
		Logger:    logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // direct calls block until terminal
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Keep connection pool gauges fresh for the scraper.
	shutdownCoord := shutdown.NewCoordinator(&shutdown.Config{
		Timeout: 30 * time.Second,
	}, logger)

	statsDone := make(chan struct{})
	go func() {
		defer close(statsDone)
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats := db.Stats()
				m.UpdateDBConnections(int(stats.TotalConns()), int(stats.AcquiredConns()))
			case <-shutdownCoord.ShutdownCh():
				return
			}
		}
	}()

	shutdownCoord.RegisterFunc(shutdown.PhaseDrain, "http-server", func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})

	// Let in-flight enrichments persist before the pool closes.
	shutdownCoord.RegisterFunc(shutdown.PhaseShutdown, "enricher", func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			enricher.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	shutdownCoord.RegisterFunc(shutdown.PhaseCleanup, "db-stats", func(ctx context.Context) error {
		select {
		case <-statsDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdownCoord.RegisterFunc(shutdown.PhaseCleanup, "database", func(ctx context.Context) error {
		db.Close()
		return nil
	})

	auditLog.ServiceStarted(ctx, version(), cfg.Server.Environment)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	auditLog.ServiceStopping(ctx, sig.String())

	if err := shutdownCoord.Shutdown(ctx); err != nil {
		logger.Error("shutdown completed with errors", zap.Error(err))
	}
}

// resultSource picks where webhook-mode callers look for results: the
// in-process cache normally, or a remote callbridge instance when the
// webhook ingress runs elsewhere.
func resultSource(cfg *config.Config, resultCache *cache.ResultCache) caller.ResultSource {
	if !cfg.Vapi.WebhookEnabled() {
		return nil
	}
	if cfg.Backend.URL != "" {
		return caller.NewHTTPSource(cfg.Backend.URL)
	}
	return &caller.CacheSource{Cache: resultCache}
}

// version is stamped at build time via -ldflags.
var buildVersion = "dev"

func version() string {
	return buildVersion
}
