package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"n8n-mcp/backend/internal/api"
	"n8n-mcp/backend/internal/auth"
	"n8n-mcp/backend/internal/config"
	"n8n-mcp/backend/internal/logging"
	"n8n-mcp/backend/internal/mcp"
	"n8n-mcp/backend/internal/metrics"
	"n8n-mcp/backend/internal/monitor"
	"n8n-mcp/backend/internal/repository"
	"n8n-mcp/backend/internal/services"
	"n8n-mcp/backend/internal/stream"
	"n8n-mcp/backend/internal/tls"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:          "n8n-mcp",
	Short:        "MCP bridge to the n8n workflow engine",
	Version:      services.Version,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")
	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP, MCP and WebSocket server",
			RunE:  runServe,
		},
		newToolsCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the bridge version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "n8n-mcp version %s\n", services.Version)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}

	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logger.Info("Configuration loaded",
		"n8n_base_url", cfg.N8N.BaseURL,
		"api_key_len", len(cfg.N8N.APIKey),
		"cache_backend", cfg.Cache.Backend,
		"auth", cfg.Auth.Enabled,
		"config_file", viper.ConfigFileUsed(),
	)
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	engine := services.NewHTTPEngineClient(cfg.N8N.BaseURL, cfg.N8N.APIKey,
		services.WithDefaultTimeout(cfg.N8N.Timeout),
		services.WithRateLimit(cfg.N8N.RequestsPerSecond),
		services.WithLogger(logger),
	)

	cache, closeCache, err := initCache(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("cache initialization failed: %w", err)
	}
	defer closeCache()

	mon := monitor.New(engine,
		monitor.WithPollInterval(cfg.Monitor.PollInterval),
		monitor.WithMaxWait(cfg.Monitor.MaxWait),
		monitor.WithLogger(logger),
	)

	svc := services.NewToolService(engine,
		services.WithWaiter(mon),
		services.WithCache(cache),
		services.WithLogSource(logger),
		services.WithServiceLogger(logger),
		services.WithWaitBudget(cfg.Monitor.MaxWait),
	)

	registry, err := mcp.NewRegistry()
	if err != nil {
		return fmt.Errorf("tool registry: %w", err)
	}
	dispatcher := mcp.NewToolDispatcher(registry, svc, logger)

	logger.Info("Service layer initialized", "tools", len(registry.Tools()))

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.Logger())
	e.Use(middleware.CORS())
	e.Use(otelecho.Middleware("n8n-mcp"))

	authz, err := auth.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("auth initialization failed: %w", err)
	}
	if authz.Enabled() {
		logger.Info("Bearer auth enabled", "issuer", cfg.Auth.Issuer, "scopes", auth.AllScopes)
	}
	read := []echo.MiddlewareFunc{
		echo.WrapMiddleware(authz.RequireAuth),
		echo.WrapMiddleware(authz.RequireScope(auth.ScopeRead)),
	}
	write := []echo.MiddlewareFunc{
		echo.WrapMiddleware(authz.RequireAuth),
		echo.WrapMiddleware(authz.RequireScope(auth.ScopeWrite)),
	}

	api.NewServer(api.Options{
		Dispatcher:   dispatcher,
		Registry:     registry,
		Version:      services.Version,
		Capabilities: services.Capabilities,
		Debug:        cfg.Debug,
		Logger:       logger,
	}).RegisterRoutes(e, read, write)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	logger.Info("REST API handlers mounted")

	streams := stream.NewHandler(mon, logger)
	e.GET("/ws", echo.WrapHandler(streams))
	e.GET("/", func(c echo.Context) error {
		if websocket.IsWebSocketUpgrade(c.Request()) {
			streams.ServeHTTP(c.Response(), c.Request())
			return nil
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"name":    "n8n-mcp",
			"version": services.Version,
		})
	})

	mcpServer := mcp.NewServer(dispatcher, services.Version)
	sse := echo.WrapHandler(mcp.SSEHandler(mcpServer.GetMCPServer()))
	e.GET("/mcp/sse", sse, write...)
	e.POST("/mcp/message", sse, write...)

	logger.Info("MCP protocol handlers mounted")

	addr := fmt.Sprintf(":%d", cfg.Port)
	// No WriteTimeout: execution waits and SSE streams are long-lived.
	server := &http.Server{
		Addr:        addr,
		Handler:     e,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", addr, "tls", cfg.TLS.Enable)
		if !cfg.TLS.Enable {
			serverErrors <- server.ListenAndServe()
			return
		}
		generated, err := tls.EnsureCertificate(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
		if err != nil {
			serverErrors <- fmt.Errorf("tls certificate: %w", err)
			return
		}
		if generated {
			logger.Warn("Generated self-signed certificate", "cert", cfg.TLS.CertFile)
		}
		serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			return err
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
	return nil
}

// initCache builds the advisory workflow cache selected by cache.backend.
func initCache(ctx context.Context, cfg *config.Config, logger *logging.Logger) (repository.WorkflowCache, func(), error) {
	if cfg.Cache.Backend != "postgres" {
		return repository.NewMemoryCache(cfg.Cache.Size, cfg.Cache.TTL), func() {}, nil
	}

	pool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cache := repository.NewPostgresCache(pool, cfg.Cache.TTL)
	if err := cache.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ensure cache schema: %w", err)
	}
	logger.Info("Database connected", "host", cfg.DB.Host, "name", cfg.DB.Name)
	return cache, pool.Close, nil
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
