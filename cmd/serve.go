package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxprune/internal/audit"
	"github.com/teemow/inboxprune/internal/config"
	"github.com/teemow/inboxprune/internal/instrumentation"
	"github.com/teemow/inboxprune/internal/logging"
	"github.com/teemow/inboxprune/internal/resources"
	"github.com/teemow/inboxprune/internal/server"
	"github.com/teemow/inboxprune/internal/tools/gmail_tools"
	"github.com/teemow/inboxprune/internal/tools/google_tools"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

// serveFlags holds the serve command line.
type serveFlags struct {
	stackFlags

	transport      string
	httpAddr       string
	yolo           bool
	debug          bool
	logFile        string
	logFormat      string
	metricsEnabled bool
	metricsAddr    string
}

func newServeCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server that exposes guarded Gmail
search and bulk-delete tools to AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport on /mcp, with /healthz and /readyz

Safety Mode:
  By default, the server operates in read-only mode: gmail_delete only runs
  dry runs. Use --yolo to allow confirmed deletions.

Configuration precedence:
  flags > INBOXPRUNE_* environment variables > --config policy file > defaults`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			envString(cmd, "transport", "INBOXPRUNE_TRANSPORT", &f.transport)
			envString(cmd, "http-addr", "INBOXPRUNE_HTTP_ADDR", &f.httpAddr)
			envString(cmd, "log-file", "INBOXPRUNE_LOG_FILE", &f.logFile)
			envString(cmd, "log-format", "INBOXPRUNE_LOG_FORMAT", &f.logFormat)
			envBool(cmd, "debug", "INBOXPRUNE_DEBUG", &f.debug)
			envBool(cmd, "metrics-enabled", "METRICS_ENABLED", &f.metricsEnabled)
			envString(cmd, "metrics-addr", "METRICS_ADDR", &f.metricsAddr)

			if f.transport != transportStdio && f.transport != transportStreamableHTTP {
				return fmt.Errorf("unsupported transport type: %s (supported: %s, %s)",
					f.transport, transportStdio, transportStreamableHTTP)
			}

			cfg, err := f.loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(f, cfg)
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&f.transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&f.httpAddr, "http-addr", server.DefaultHTTPAddr, "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&f.yolo, "yolo", false, "Allow confirmed deletions. Default is read-only mode (dry runs only).")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "Write logs to a rotated file instead of stderr")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "text", "Log format: text or json")
	cmd.Flags().BoolVar(&f.metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port (streamable-http only). Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func newLogger(f serveFlags) (*slog.Logger, io.Closer, error) {
	logCfg := logging.DefaultConfig()
	logCfg.File = f.logFile
	logCfg.Format = f.logFormat
	if f.debug {
		logCfg.Level = "debug"
	}
	return logging.New(logCfg)
}

func runServe(f serveFlags, cfg config.Config) error {
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger, logCloser, err := newLogger(f)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(logger)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	if f.transport != transportStdio && f.metricsEnabled && provider.PrometheusHandler() != nil {
		metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    f.metricsAddr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", logging.Err(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Warn("error during metrics server shutdown", logging.Err(err))
			}
		}()
	}

	stores, err := server.OpenStores(shutdownCtx, cfg, logger)
	if err != nil {
		return err
	}

	stack := &server.Stack{
		Config:   cfg,
		ReadOnly: !f.yolo,
		Tickets:  stores.Tickets,
		Audit:    stores.Audit,
		Metrics:  provider.Metrics(),
		Logger:   logger,
	}

	serverContext := server.NewServerContext(shutdownCtx, server.Options{
		Factory:    stack.Factory(),
		Metrics:    provider.Metrics(),
		ToolLogger: instrumentation.NewToolLogger(logger, instrConfig.ToolLogging),
		Logger:     logger,
	})
	serverContext.OnShutdown(stores.Close)
	for name, check := range stores.Checks {
		serverContext.AddReadinessCheck(name, check)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("error during server context shutdown", logging.Err(err))
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("inboxprune", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)
	if err := registerAllTools(mcpSrv, serverContext, stores.Audit); err != nil {
		return err
	}

	if stack.ReadOnly {
		logger.Info("starting server in READ-ONLY mode, gmail_delete only runs dry runs (use --yolo to allow deletions)")
	} else {
		logger.Warn("starting server with deletions enabled (--yolo flag is set)")
	}
	logger.Info("policy loaded",
		slog.Int("batch_size", cfg.Batch.Size),
		slog.Duration("pacing_delay", cfg.Batch.PacingDelay),
		slog.Int("default_max_deletions", cfg.Deletion.DefaultMaxDeletions),
		slog.String("ticket_store", cfg.Tickets.Store),
		slog.String("audit_store", cfg.Audit.Store))

	switch f.transport {
	case transportStdio:
		return runStdioServer(mcpSrv)
	default:
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, f.httpAddr, logger)
	}
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, addr string, logger *slog.Logger) error {
	httpServer := server.NewHTTPServer(mcpSrv, sc, addr)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down MCP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// registerAllTools registers all MCP tools and resources.
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, auditStore audit.Store) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Gmail",
			register: func() error {
				return gmail_tools.RegisterGmailTools(mcpSrv, sc)
			},
		},
		{
			name: "Google",
			register: func() error {
				return google_tools.RegisterGoogleTools(mcpSrv, sc)
			},
		},
		{
			name: "Audit Resources",
			register: func() error {
				return resources.RegisterAuditResources(mcpSrv, auditStore)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}
	return nil
}
