package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/sync/errgroup"

	"docforge/internal/alerting"
	"docforge/internal/api"
	"docforge/internal/auth"
	"docforge/internal/config"
	"docforge/internal/logging"
	"docforge/internal/mcp"
	"docforge/internal/metrics"
	"docforge/internal/realtime"
	"docforge/internal/repository"
	"docforge/internal/services"
	dftls "docforge/internal/tls"
	"docforge/pkg/models"
)

func main() {
	ctx := context.Background()

	logger := logging.NewLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		log.Fatalf("Configuration loading failed: %v", err)
	}

	logger.Info("Starting Docforge Workflow Coordinator")

	// Stores. The state store is authoritative and in-memory; checkpoints
	// and tenants are durable in Postgres unless the database is disabled.
	stateStore := repository.NewMemoryStateStore()

	var checkpointStore repository.CheckpointStore
	var tenantStore repository.TenantStore
	if cfg.DB.Disable {
		logger.Warn("Database disabled; using in-memory checkpoint and tenant stores")
		checkpointStore = repository.NewMemoryCheckpointStore()
		tenantStore = repository.NewMemoryTenantStore()
	} else {
		dbPool, err := initDatabase(ctx, cfg, logger)
		if err != nil {
			logger.Error("Failed to initialize database", "error", err)
			log.Fatalf("Database initialization failed: %v", err)
		}
		defer dbPool.Close()

		pgStore := repository.NewPostgresStore(dbPool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Error("Failed to ensure schema", "error", err)
			log.Fatalf("Schema initialization failed: %v", err)
		}
		checkpointStore = pgStore
		tenantStore = pgStore
		logger.Info("Database connected")
	}

	// Realtime, metrics and alerting pipelines.
	registry := realtime.NewRegistry()
	rtManager := realtime.NewManager(registry, stateStore, logger)
	collector := metrics.NewCollector(cfg.Metrics.Retention)
	alertSystem := alerting.NewSystem(logger)

	// Orchestrator and the agent runtime client.
	agentClient := services.NewHTTPAgentClient(cfg.AgentRuntime.URL, cfg.AgentRuntime.RequestTimeout, cfg.AgentRuntime.MaxRetries)
	orchestrator := services.NewOrchestrator(stateStore, checkpointStore, agentClient, rtManager, collector, logger)

	// Status changes fan out synchronously within the triggering request.
	stateStore.OnStatusChange(func(exec *models.WorkflowExecution, previous models.WorkflowStatus) {
		rtManager.BroadcastStatus(exec.WorkflowID, models.StatusPayload{
			Status: exec.Status,
			Reason: exec.FailureReason,
		})
		collector.Record("workflow_status_change", 1, map[string]string{
			"from": string(previous),
			"to":   string(exec.Status),
		}, exec.TenantID)
		alertSystem.HandleStatusChange(exec, previous)
	})

	logger.Info("Service layer initialized")

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("docforge"))

	authz, err := auth.New(ctx, cfg, tenantStore, logger)
	if err != nil {
		logger.Error("failed to initialize auth", "error", err)
		log.Fatalf("auth initialization failed: %v", err)
	}

	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	apiServer := api.NewServer(orchestrator, rtManager, collector, alertSystem, logger, cfg.Metrics.CallbackRate, cfg.Metrics.CallbackBurst)

	e.GET("/healthz", apiServer.HandleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))

	apiGroup.POST("/workflows", apiServer.CreateWorkflow)
	apiGroup.DELETE("/workflows/:id", apiServer.ArchiveWorkflow)
	apiGroup.POST("/workflows/:id/recover", apiServer.RecoverWorkflow)
	apiGroup.GET("/workflows/:id/recover", apiServer.GetRecoveryInfo)
	apiGroup.GET("/workflows/:id/access", apiServer.CheckAccess)
	apiGroup.POST("/workflows/sync/progress/:id", apiServer.ReportProgress)
	apiGroup.GET("/workflows/sync/status/:id", apiServer.GetWorkflowStatus)
	apiGroup.POST("/workflows/sync/status/:id", apiServer.UpdateWorkflowStatus)
	apiGroup.GET("/workflows/tenant/:tenantId/stats", apiServer.TenantStats)
	apiGroup.GET("/workflows/tenant/:tenantId/realtime", apiServer.TenantRealtimeStats)
	apiGroup.GET("/monitoring/health", apiServer.MonitoringHealth)
	apiGroup.GET("/monitoring/alerts", apiServer.ListAlerts)
	apiGroup.POST("/monitoring/alerts", apiServer.CreateAlert)
	apiGroup.PATCH("/monitoring/alerts/:id", apiServer.ResolveAlert)

	apiGroup.GET("/ws", realtime.WSHandler(rtManager, func(c echo.Context) (string, bool) {
		return auth.TenantFromContext(c.Request().Context())
	}))

	logger.Info("REST API handlers mounted")

	mcpServer := mcp.NewServer(orchestrator, alertSystem, auth.TenantFromContext)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	// MCP tools read tenant-owned workflow state, so the mount sits behind
	// the same auth middleware as the REST API.
	e.Any("/mcp/*", echo.WrapHandler(authz.RequireAuth(mcpHandlers)))

	logger.Info("MCP protocol handlers mounted")

	addr := cfg.Server.Addr
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(runCtx)

	evaluator := alerting.NewEvaluator(alertSystem, collector, cfg.Alerting.EvalInterval, logger)
	group.Go(func() error {
		return evaluator.Run(groupCtx)
	})

	group.Go(func() error {
		logger.Info("Server starting", "address", addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
				logger.Error("TLS enabled but cert/key file not provided")
				return server.ListenAndServe()
			}
			if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) {
				if len(cfg.TLS.Hostnames) > 0 {
					if err := dftls.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
						logger.Error("failed to generate self-signed cert", "error", err)
					}
				}
			}
			return server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		}
		return server.ListenAndServe()
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			return server.Close()
		}
		return nil
	})

	if err := group.Wait(); err != nil && err != http.ErrServerClosed && err != context.Canceled {
		logger.Error("Server error", "error", err)
		log.Fatalf("Server error: %v", err)
	}

	logger.Info("Server stopped gracefully")
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
