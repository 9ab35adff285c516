package clarification

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/metrics"
	"github.com/pminervini/deep-research-mcp/internal/provider"
	"github.com/pminervini/deep-research-mcp/internal/session"
)

// NoPreference stands in for a blank answer so the question is not dropped.
const NoPreference = "[No specific preference provided]"

// ClarifierAgent rewrites a query using the user's answers.
type ClarifierAgent struct {
	client  ChatCompleter
	prompts Prompts
	model   string
	logger  *zap.Logger
}

// NewClarifierAgent returns a clarifier using model.
func NewClarifierAgent(client ChatCompleter, prompts Prompts, model string, logger *zap.Logger) *ClarifierAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClarifierAgent{client: client, prompts: prompts, model: model, logger: logger}
}

// FormatContext renders question/answer pairs for the enrichment prompt.
func FormatContext(pairs []session.QAPair) string {
	blocks := make([]string, len(pairs))
	for i, qa := range pairs {
		answer := strings.TrimSpace(qa.Answer)
		if answer == "" {
			answer = NoPreference
		} else {
			answer = qa.Answer
		}
		blocks[i] = fmt.Sprintf("Q: %s\nA: %s", qa.Question, answer)
	}
	return strings.Join(blocks, "\n")
}

// EnrichQuery returns the rewritten query, or query itself on any failure.
func (a *ClarifierAgent) EnrichQuery(ctx context.Context, query string, pairs []session.QAPair) string {
	a.logger.Info("Enriching query with user context", zap.Int("answers", len(pairs)))

	prompt, err := a.prompts.EnrichmentPrompt(query, FormatContext(pairs))
	if err != nil {
		return a.fallback(query, err)
	}

	content, err := a.client.ChatCompletion(ctx, provider.ChatRequest{
		Model:       a.model,
		Messages:    []provider.ChatMessage{{Role: "user", Content: prompt}},
		Temperature: provider.Temperature(0.2),
	})
	if err != nil {
		return a.fallback(query, err)
	}

	a.logger.Info("Query enriched successfully")
	return strings.TrimSpace(content)
}

func (a *ClarifierAgent) fallback(query string, err error) string {
	metrics.ClarificationFallbacks.WithLabelValues("clarifier").Inc()
	a.logger.Error("Clarifier agent error", zap.Error(err))
	return query
}
