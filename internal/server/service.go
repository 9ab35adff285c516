// Package server exposes the research agent as MCP tools over stdio or
// streamable HTTP.
package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/agent"
	"github.com/pminervini/deep-research-mcp/internal/clarification"
	"github.com/pminervini/deep-research-mcp/internal/research"
)

const (
	Name    = "deep-research"
	Version = "0.3.0"

	// EndpointPath is where the streamable HTTP transport is mounted.
	EndpointPath = "/mcp"
)

// Researcher is the agent surface the tools call.
type Researcher interface {
	Research(ctx context.Context, req agent.Request) research.Result
	GetTaskStatus(ctx context.Context, taskID string) research.TaskStatus
	StartClarification(ctx context.Context, query string) clarification.Assessment
	AddClarificationAnswers(sessionID string, answers []string) clarification.AnswersResult
	GetEnrichedQuery(ctx context.Context, sessionID string) (string, bool)
}

// Options tunes the tool server.
type Options struct {
	// HeartbeatInterval between progress notifications while research
	// runs. Zero selects one minute.
	HeartbeatInterval time.Duration
}

// Service owns the MCP server and its tools.
type Service struct {
	researcher Researcher
	mcp        *server.MCPServer
	heartbeat  time.Duration
	logger     *zap.Logger
}

// NewService registers the research tools over r.
func NewService(r Researcher, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = time.Minute
	}

	s := &Service{
		researcher: r,
		heartbeat:  opts.HeartbeatInterval,
		logger:     logger,
		mcp: server.NewMCPServer(
			Name,
			Version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
			server.WithLogging(),
		),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying server.
func (s *Service) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves MCP over in and out until ctx ends or in reaches EOF.
func (s *Service) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("Starting stdio server")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// HTTPHandler returns the streamable HTTP transport for mounting at
// EndpointPath.
func (s *Service) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(EndpointPath))
}
