package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/tasksync/internal/config"
	"github.com/teemow/tasksync/internal/instrumentation"
	"github.com/teemow/tasksync/internal/resources"
	"github.com/teemow/tasksync/internal/server"
	"github.com/teemow/tasksync/internal/tools/task_tools"
)

const (
	transportStdio = "stdio"
	transportHTTP  = "streamable-http"

	// startupConnectTimeout bounds the connection test before serving.
	startupConnectTimeout = 20 * time.Second
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// serveOptions collects the serve flags.
type serveOptions struct {
	Transport        string
	HTTPAddr         string
	DisableStreaming bool
	Metrics          MetricsConfig
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server that exposes the task tools.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport on /mcp, with /healthz and /readyz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadMetricsEnvVars(cmd, &opts.Metrics)
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&opts.HTTPAddr, "http-addr", server.DefaultHTTPAddr, "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&opts.DisableStreaming, "disable-streaming", false, "Disable streaming for HTTP transport (for compatibility with certain clients)")
	cmd.Flags().BoolVar(&opts.Metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port (streamable-http only). Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// loadMetricsEnvVars applies METRICS_ENABLED and METRICS_ADDR unless the
// corresponding flag was set explicitly.
func loadMetricsEnvVars(cmd *cobra.Command, config *MetricsConfig) {
	if !cmd.Flags().Changed("metrics-enabled") {
		switch os.Getenv("METRICS_ENABLED") {
		case "true":
			config.Enabled = true
		case "false":
			config.Enabled = false
		}
	}
	if !cmd.Flags().Changed("metrics-addr") {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			config.Addr = addr
		}
	}
}

func runServe(parent context.Context, opts serveOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	if opts.Transport != transportStdio && opts.Transport != transportHTTP {
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", opts.Transport)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(os.Stderr)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Info("Loaded configuration", "config", cfg)

	if opts.Transport == transportHTTP {
		if err := checkHTTPExposure(opts.HTTPAddr, cfg.HTTPToken); err != nil {
			return err
		}
	}

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during instrumentation shutdown", "error", err)
		}
	}()

	a, err := newApp(cfg, logger, provider.Metrics())
	if err != nil {
		return err
	}
	a.cache.Start()

	serverContext, err := server.NewServerContext(ctx, server.Options{
		Engine:  a.engine,
		Store:   a.store,
		Metrics: provider.Metrics(),
		Logger:  logger,
	})
	if err != nil {
		a.cache.Stop()
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("Error during server context shutdown", "error", err)
		}
	}()
	if provider.Enabled() {
		serverContext.SetAuditLogger(instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging))
	}

	// A failed connection test is not fatal: the store reconnects lazily and
	// readiness reports the problem.
	connectCtx, connectCancel := context.WithTimeout(ctx, startupConnectTimeout)
	if err := a.store.Connect(connectCtx); err != nil {
		logger.Warn("CalDAV connection test failed", "error", err)
	} else {
		logger.Info("Connected to CalDAV server", "calendar", a.store.Calendar())
	}
	connectCancel()

	tracker := server.NewSessionTracker(a.cache, provider.Metrics(), logger)
	mcpSrv := mcpserver.NewMCPServer("tasksync", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithHooks(tracker.Hooks()),
	)
	if err := task_tools.RegisterTaskTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register task tools: %w", err)
	}
	if err := resources.RegisterResources(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register resources: %w", err)
	}

	switch opts.Transport {
	case transportStdio:
		return runStdioServer(ctx, mcpSrv)
	default:
		return runStreamableHTTPServer(ctx, mcpSrv, serverContext, provider, opts, cfg.HTTPToken, logger)
	}
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer) error {
	stdio := mcpserver.NewStdioServer(mcpSrv)
	stdio.SetErrorLogger(log.New(os.Stderr, "", log.LstdFlags))

	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// checkHTTPExposure refuses to serve the tools on a non-loopback address
// without a bearer token, since any caller could edit the calendar.
func checkHTTPExposure(addr, token string) error {
	if token != "" || server.IsLoopbackAddr(addr) {
		return nil
	}
	return fmt.Errorf("refusing to listen on %s without %s; set a token or bind to 127.0.0.1", addr, config.EnvHTTPToken)
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, provider *instrumentation.Provider, opts serveOptions, token string, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	var metricsServer *server.MetricsServer
	if opts.Metrics.Enabled && provider.Enabled() {
		var err error
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    opts.Metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		g.Go(func() error {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server stopped with error: %w", err)
			}
			return nil
		})
	}

	httpServer := server.NewHTTPServer(mcpSrv, server.HTTPServerConfig{
		Addr:             opts.HTTPAddr,
		DisableStreaming: opts.DisableStreaming,
		Health:           server.NewHealthChecker(sc),
		Metrics:          provider.Metrics(),
		AuthToken:        token,
	})
	g.Go(func() error {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		return nil
	})

	logger.Info("Serving MCP over streamable HTTP",
		"addr", opts.HTTPAddr,
		"endpoint", server.MCPEndpointPath,
		"metrics", metricsServer != nil,
		"auth", token != "",
	)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()

		var errs []error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("error shutting down HTTP server: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("error shutting down metrics server: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
