package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/agent"
	"github.com/pminervini/deep-research-mcp/internal/circuitbreaker"
	"github.com/pminervini/deep-research-mcp/internal/config"
	"github.com/pminervini/deep-research-mcp/internal/health"
	"github.com/pminervini/deep-research-mcp/internal/httpapi"
	"github.com/pminervini/deep-research-mcp/internal/logging"
	"github.com/pminervini/deep-research-mcp/internal/server"
	"github.com/pminervini/deep-research-mcp/internal/tracing"
)

const (
	transportStdio = "stdio"
	transportHTTP  = "http"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		transport string
		host      string
		port      int
	)
	cmd := &cobra.Command{
		Use:          "deep-research-mcp",
		Short:        "Deep Research MCP server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if transport != transportStdio && transport != transportHTTP {
				return fmt.Errorf("invalid transport: %s", transport)
			}
			return run(cmd.Context(), transport, host, port)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", transportStdio, "Transport type for MCP server (stdio or http)")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host to bind for HTTP transport")
	cmd.Flags().IntVar(&port, "port", 8080, "Port to bind for HTTP transport")
	return cmd
}

func run(ctx context.Context, transport, host string, port int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	boot := logging.New(logging.Options{Level: os.Getenv("LOGGING_LEVEL")})
	cfg, err := config.Load(boot)
	if err != nil {
		boot.Error("Configuration error", zap.Error(err))
		boot.Error("Please ensure OPENAI_API_KEY is set in your ~/.deep_research file or environment variables")
		return err
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer func() { _ = logger.Sync() }()
	logger.Info("Configuration loaded successfully",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
	)

	shutdownTracing, err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		Version:      server.Version,
	}, logger)
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	stopMetrics := make(chan struct{})
	defer close(stopMetrics)
	circuitbreaker.StartMetricsCollection(stopMetrics)

	a, err := agent.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize research agent", zap.Error(err))
		return err
	}
	defer a.WaitForWebhooks()

	go func() {
		if err := a.Prompts().Watch(ctx); err != nil {
			logger.Warn("Prompt watcher stopped", zap.Error(err))
		}
	}()

	// Health checks only run when an HTTP listener can report them.
	var hm *health.Manager
	if healthExposed(transport, cfg.MetricsPort) {
		hm = health.NewManager(logger)
		_ = hm.RegisterChecker(health.NewProviderHealthChecker(a.Provider(), logger))
		_ = hm.RegisterChecker(health.NewSessionStoreHealthChecker(a.Sessions()))
		_ = hm.RegisterChecker(health.NewPromptHealthChecker(a.Prompts()))
		_ = hm.Start(ctx)
		defer func() { _ = hm.Stop() }()
	}

	if cfg.MetricsPort > 0 {
		admin := httpapi.NewServer(adminAddr(host, cfg.MetricsPort), httpapi.NewRouter(httpapi.RouterOptions{
			Health: hm,
			Logger: logger,
		}))
		go func() {
			if err := httpapi.Serve(ctx, admin, logger); err != nil {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	svc := server.NewService(a, server.Options{}, logger)
	logger.Info("Starting Deep Research MCP server", zap.String("transport", transport))

	if transport == transportHTTP {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		logger.Info("Starting HTTP (streaming) server", zap.String("addr", addr))
		return httpapi.Serve(ctx, httpapi.NewServer(addr, httpapi.NewRouter(httpapi.RouterOptions{
			MCP:     svc.HTTPHandler(),
			MCPPath: server.EndpointPath,
			Health:  hm,
			Logger:  logger,
		})), logger)
	}

	err = svc.ServeStdio(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func healthExposed(transport string, metricsPort int) bool {
	return transport == transportHTTP || metricsPort > 0
}

// adminAddr binds the metrics listener to the same host as the MCP transport.
func adminAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
