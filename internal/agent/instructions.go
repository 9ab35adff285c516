package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/provider"
)

// InstructionPrompts renders the instruction-builder template.
type InstructionPrompts interface {
	InstructionBuilderPrompt(query string) (string, error)
}

// InstructionBuilder rewrites a user query into detailed research
// instructions with a small helper model. Any failure keeps the query as is.
type InstructionBuilder struct {
	client  ChatCompleter
	prompts InstructionPrompts
	model   string
	logger  *zap.Logger
}

func NewInstructionBuilder(client ChatCompleter, prompts InstructionPrompts, model string, logger *zap.Logger) *InstructionBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstructionBuilder{client: client, prompts: prompts, model: model, logger: logger}
}

// Build returns the rewritten instructions, or query on failure.
func (b *InstructionBuilder) Build(ctx context.Context, query string) string {
	prompt, err := b.prompts.InstructionBuilderPrompt(query)
	if err != nil {
		b.logger.Warn("Instruction builder prompt unavailable", zap.Error(err))
		return query
	}

	out, err := b.client.ChatCompletion(ctx, provider.ChatRequest{
		Model:    b.model,
		Messages: []provider.ChatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		b.logger.Warn("Instruction builder failed, using original query", zap.Error(err))
		return query
	}
	if out = strings.TrimSpace(out); out == "" {
		return query
	}
	b.logger.Debug("Built research instructions", zap.Int("length", len(out)))
	return out
}
