package agent

import (
	"context"

	"github.com/pminervini/deep-research-mcp/internal/provider"
	"github.com/pminervini/deep-research-mcp/internal/research"
)

// Job is one research request after any query rewriting.
type Job struct {
	Query                  string
	SystemPrompt           string
	IncludeCodeInterpreter bool
}

// Backend executes a research job. Implementations return failures as
// results and never panic on provider errors.
type Backend interface {
	Name() string
	Run(ctx context.Context, job Job) research.Result
}

// ChatCompleter runs a single-turn chat completion.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, req provider.ChatRequest) (string, error)
}

// BuildInput assembles the provider message list and tools for job. Web
// search is always enabled.
func BuildInput(job Job) ([]provider.InputMessage, []provider.Tool) {
	messages := make([]provider.InputMessage, 0, 2)
	if job.SystemPrompt != "" {
		messages = append(messages, provider.TextMessage("developer", job.SystemPrompt))
	}
	messages = append(messages, provider.TextMessage("user", job.Query))

	tools := []provider.Tool{provider.WebSearchTool()}
	if job.IncludeCodeInterpreter {
		tools = append(tools, provider.CodeInterpreterTool())
	}
	return messages, tools
}

// HostedBackend runs jobs as background tasks on the Responses API.
type HostedBackend struct {
	orchestrator *research.Orchestrator
}

// NewHostedBackend wraps an orchestrator.
func NewHostedBackend(o *research.Orchestrator) *HostedBackend {
	return &HostedBackend{orchestrator: o}
}

func (b *HostedBackend) Name() string { return "openai" }

func (b *HostedBackend) Run(ctx context.Context, job Job) research.Result {
	messages, tools := BuildInput(job)
	return b.orchestrator.Run(ctx, messages, tools)
}
