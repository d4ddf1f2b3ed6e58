package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-vkg/pkg/audit"
	"github.com/ekaya-inc/ekaya-vkg/pkg/cache"
	"github.com/ekaya-inc/ekaya-vkg/pkg/config"
	"github.com/ekaya-inc/ekaya-vkg/pkg/database"
	"github.com/ekaya-inc/ekaya-vkg/pkg/engine"
	"github.com/ekaya-inc/ekaya-vkg/pkg/handlers"
	"github.com/ekaya-inc/ekaya-vkg/pkg/llm"
	"github.com/ekaya-inc/ekaya-vkg/pkg/logging"
	"github.com/ekaya-inc/ekaya-vkg/pkg/mcp"
	"github.com/ekaya-inc/ekaya-vkg/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-vkg/pkg/metrics"
	"github.com/ekaya-inc/ekaya-vkg/pkg/middleware"
	"github.com/ekaya-inc/ekaya-vkg/pkg/repositories"
	"github.com/ekaya-inc/ekaya-vkg/pkg/retry"
	"github.com/ekaya-inc/ekaya-vkg/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.BuildInfo.WithLabelValues(cfg.Version).Set(1)

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.Bool("redis", cfg.Redis.Enabled()),
		zap.String("engine", logging.SanitizeConnectionString(cfg.Engine.ServerURL)),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Int("max_attempts", cfg.Pipeline.MaxAttempts))

	// Ontology store
	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:             cfg.Database.ConnectionString(),
			MaxConnections:  cfg.Database.MaxConnections,
			ApplicationName: "ekaya-vkg",
			ReadOnly:        true,
		})
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		if err := database.Migrate(cfg.Database.ConnectionString(), logger); err != nil {
			return err
		}
	}

	// Shared cache tier (optional)
	redisClient, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*redis.Client, error) {
		return database.NewRedisClient(ctx, &cfg.Redis)
	})
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	caches := services.NewSchemaContextCaches(cache.Config{
		TTL:       cfg.Pipeline.SchemaCacheTTL(),
		KeyPrefix: cfg.Redis.KeyPrefix,
	}, redisClient, logger)
	defer caches.Stop()

	// Oracle
	oracle, err := llm.NewClient(&llm.Config{
		Provider:  cfg.LLM.Provider,
		Endpoint:  cfg.LLM.Endpoint,
		Model:     cfg.LLM.Model,
		APIKey:    cfg.LLM.APIKey,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout(),
	}, llm.CircuitBreakerConfig{
		Threshold:  cfg.LLM.BreakerThreshold,
		ResetAfter: cfg.LLM.BreakerReset(),
	}, logger)
	if err != nil {
		return err
	}

	// Federated engine
	executor, err := engine.NewTrinoExecutor(&engine.Config{
		ServerURL:    cfg.Engine.ServerURL,
		User:         cfg.Engine.User,
		Password:     cfg.Engine.Password,
		Source:       cfg.Engine.Source,
		QueryTimeout: cfg.Engine.QueryTimeout(),
		MaxOpenConns: cfg.Engine.MaxOpenConns,
	}, logger)
	if err != nil {
		return err
	}
	defer func() { _ = executor.Close() }()

	// Pipeline
	repo := repositories.NewOntologyRepository(db)
	pipeline := services.NewPipeline(
		services.NewSchemaContextLoader(repo, caches.Schema, caches.Mappings, logger),
		services.NewRetryOrchestrator(
			services.NewSQLGenerator(oracle, cfg.Pipeline.GenerationTemperature, cfg.Pipeline.RowLimit, logger),
			services.NewSQLValidator(),
			executor,
			cfg.Pipeline.MaxAttempts,
			logger,
		).WithAuditor(audit.NewSecurityAuditor(logger)),
		services.NewContextGraphBuilder(nil, logger),
		services.NewAnswerSynthesizer(oracle, cfg.Pipeline.AnswerTemperature, cfg.Pipeline.SampleRows, logger),
		cfg.Pipeline.QueryMode,
		logger,
	)

	// HTTP surface
	mux := http.NewServeMux()

	deps := []handlers.Dependency{
		{Name: "ontology_store", Check: db.Ping},
		{Name: "engine", Check: executor.Ping},
	}
	if redisClient != nil {
		deps = append(deps, handlers.Dependency{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	handlers.NewHealthHandler(cfg, deps, logger).RegisterRoutes(mux)
	handlers.NewVKGQueryHandler(pipeline, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	mcpServer := mcp.NewServer("ekaya-vkg", cfg.Version, logger)
	tools.RegisterAskQuestionTool(mcpServer.MCP(), pipeline, logger)
	tools.RegisterHealthTool(mcpServer.MCP(), cfg.Version, cfg.Pipeline.QueryMode)
	mux.Handle("/mcp", mcpServer.Handler())

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(metrics.Middleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-vkg",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
