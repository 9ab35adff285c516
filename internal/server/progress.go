package server

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/formatting"
)

// progressReporter sends best-effort notifications/progress messages for
// one tool call. It is a no-op when the client sent no progress token.
// Progress values only increase.
type progressReporter struct {
	ctx    context.Context
	token  mcp.ProgressToken
	last   float64
	logger *zap.Logger
}

func newProgressReporter(ctx context.Context, req mcp.CallToolRequest, logger *zap.Logger) *progressReporter {
	p := &progressReporter{ctx: ctx, logger: logger}
	if req.Params.Meta != nil {
		p.token = req.Params.Meta.ProgressToken
	}
	return p
}

func (p *progressReporter) report(progress float64, total *float64, message string) bool {
	if p.token == nil {
		return false
	}
	srv := server.ServerFromContext(p.ctx)
	if srv == nil {
		return false
	}

	params := map[string]any{
		"progressToken": p.token,
		"progress":      progress,
		"message":       message,
	}
	if total != nil {
		params["total"] = *total
	}
	p.last = progress
	if err := srv.SendNotificationToClient(p.ctx, "notifications/progress", params); err != nil {
		p.logger.Debug("Failed to report progress", zap.Error(err))
		return false
	}
	return true
}

// start reports progress 0 and then a heartbeat every interval until the
// returned stop function is called.
func (p *progressReporter) start(message, label string, interval time.Duration) (stop func()) {
	p.report(0, nil, message)
	if p.token == nil {
		return func() {}
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for minutes := 1; ; minutes++ {
			select {
			case <-done:
				return
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				if !p.report(float64(minutes), nil, formatting.Heartbeat(label, minutes)) {
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// finish must run after the heartbeat is stopped.
func (p *progressReporter) finish(message string) {
	done := p.last + 1
	p.report(done, &done, message)
}
