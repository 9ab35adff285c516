package clarification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/metrics"
	"github.com/pminervini/deep-research-mcp/internal/provider"
)

// MaxQuestions caps how many clarifying questions are kept from triage.
const MaxQuestions = 4

// ChatCompleter runs a single-turn chat completion.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, req provider.ChatRequest) (string, error)
}

// Prompts renders the clarification prompts.
type Prompts interface {
	TriagePrompt(userQuery string) (string, error)
	EnrichmentPrompt(userQuery, enrichedContext string) (string, error)
}

// Assessment is the triage verdict, extended with session details when a
// session was opened.
type Assessment struct {
	NeedsClarification      bool     `json:"needs_clarification"`
	Reasoning               string   `json:"reasoning"`
	PotentialClarifications []string `json:"potential_clarifications,omitempty"`
	QueryAssessment         string   `json:"query_assessment,omitempty"`

	SessionID      string   `json:"session_id,omitempty"`
	Questions      []string `json:"questions,omitempty"`
	TotalQuestions int      `json:"total_questions,omitempty"`
}

// TriageAgent decides whether a query is specific enough to research as is.
type TriageAgent struct {
	client  ChatCompleter
	prompts Prompts
	model   string
	logger  *zap.Logger
}

// NewTriageAgent returns a triage agent using model.
func NewTriageAgent(client ChatCompleter, prompts Prompts, model string, logger *zap.Logger) *TriageAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TriageAgent{client: client, prompts: prompts, model: model, logger: logger}
}

// AnalyzeQuery never fails: parse and call errors produce an assessment
// that lets research proceed without clarification.
func (a *TriageAgent) AnalyzeQuery(ctx context.Context, query string) Assessment {
	a.logger.Info("Analyzing query for clarification needs", zap.String("model", a.model))

	prompt, err := a.prompts.TriagePrompt(query)
	if err != nil {
		return a.errorAssessment(err)
	}

	content, err := a.client.ChatCompletion(ctx, provider.ChatRequest{
		Model:       a.model,
		Messages:    []provider.ChatMessage{{Role: "user", Content: prompt}},
		Temperature: provider.Temperature(0.3),
	})
	if err != nil {
		return a.errorAssessment(err)
	}

	var result Assessment
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &result); err != nil {
		metrics.ClarificationFallbacks.WithLabelValues("triage_parse").Inc()
		a.logger.Warn("Failed to parse triage response, proceeding without clarification", zap.Error(err))
		return Assessment{
			NeedsClarification:      false,
			Reasoning:               "Could not parse triage response, proceeding with original query",
			PotentialClarifications: []string{},
			QueryAssessment:         "Unable to assess",
		}
	}

	result.PotentialClarifications = cleanQuestions(result.PotentialClarifications)
	assessment := result.QueryAssessment
	if assessment == "" {
		assessment = "No assessment"
	}
	a.logger.Info("Triage assessment", zap.String("assessment", assessment), zap.Bool("needs_clarification", result.NeedsClarification))
	return result
}

func (a *TriageAgent) errorAssessment(err error) Assessment {
	metrics.ClarificationFallbacks.WithLabelValues("triage").Inc()
	a.logger.Error("Triage agent error", zap.Error(err))
	return Assessment{
		NeedsClarification:      false,
		Reasoning:               fmt.Sprintf("Triage agent error: %v", err),
		PotentialClarifications: []string{},
		QueryAssessment:         "Error during assessment",
	}
}

func cleanQuestions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, q := range in {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
		if len(out) == MaxQuestions {
			break
		}
	}
	return out
}

// stripCodeFence unwraps a ```json fenced block, which chat models often
// emit even when asked for bare JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
