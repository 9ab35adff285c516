// Package httpapi assembles the HTTP surface used in http transport mode and
// for the standalone metrics listener.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/health"
)

// RouterOptions selects what the router serves. Nil fields are skipped.
type RouterOptions struct {
	MCP     http.Handler
	MCPPath string
	Health  *health.Manager
	Logger  *zap.Logger
}

// NewRouter mounts MCP, health and metrics endpoints.
func NewRouter(opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	if opts.Health != nil {
		health.NewHTTPHandler(opts.Health, logger).RegisterRoutes(r)
	}
	r.Handle("/metrics", promhttp.Handler())
	if opts.MCP != nil {
		path := opts.MCPPath
		if path == "" {
			path = "/mcp"
		}
		r.Handle(path, opts.MCP)
	}
	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// NewServer returns an http.Server for handler. There is no write timeout
// because research calls stream for up to the research timeout.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Serve runs srv until ctx ends, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	logger.Info("Shutting down HTTP server", zap.String("addr", srv.Addr))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
