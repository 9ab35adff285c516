// Package agent is the research facade used by the tool server and the CLI.
// It wires the provider clients, the clarification pipeline and a research
// backend from a validated Config.
package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/clarification"
	"github.com/pminervini/deep-research-mcp/internal/config"
	"github.com/pminervini/deep-research-mcp/internal/metrics"
	"github.com/pminervini/deep-research-mcp/internal/models"
	"github.com/pminervini/deep-research-mcp/internal/prompts"
	"github.com/pminervini/deep-research-mcp/internal/provider"
	"github.com/pminervini/deep-research-mcp/internal/ratecontrol"
	"github.com/pminervini/deep-research-mcp/internal/research"
	"github.com/pminervini/deep-research-mcp/internal/search"
	"github.com/pminervini/deep-research-mcp/internal/session"
	"github.com/pminervini/deep-research-mcp/internal/util"
)

// Request is one research invocation.
type Request struct {
	Query                  string
	SystemPrompt           string
	IncludeCodeInterpreter bool
	CallbackURL            string
}

// StatusReader looks up a remote task.
type StatusReader interface {
	GetTaskStatus(ctx context.Context, taskID string) research.TaskStatus
}

// Deps are the collaborators of an Agent. Only Backend is required.
type Deps struct {
	Backend            Backend
	Status             StatusReader
	Clarification      *clarification.Manager
	InstructionBuilder *InstructionBuilder
	Webhook            *Webhook

	Provider *provider.Client
	Sessions *session.Manager
	Prompts  *prompts.Manager
}

// Agent runs research and clarification requests. It is safe for
// concurrent use.
type Agent struct {
	deps   Deps
	logger *zap.Logger
}

// NewWithDeps assembles an Agent from prebuilt parts.
func NewWithDeps(deps Deps, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Webhook == nil {
		deps.Webhook = NewWebhook(nil, logger)
	}
	return &Agent{deps: deps, logger: logger}
}

// New builds an Agent from cfg.
func New(cfg *config.Config, logger *zap.Logger) (*Agent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		return nil, &config.ConfigurationError{Msg: "configuration is required"}
	}

	limiter := ratecontrol.New(cfg.RateLimitTPM)
	researchClient := provider.NewClient(provider.Options{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Name:    "research",
		Limiter: limiter,
	}, logger)

	helperURL, helperKey := cfg.ClarificationEndpoint()
	helper := provider.NewClient(provider.Options{
		BaseURL: helperURL,
		APIKey:  helperKey,
		Name:    "clarification",
		Limiter: limiter,
	}, logger)

	pm := prompts.NewManager("", logger)
	sessions := session.NewManager(cfg.SessionTTL, cfg.MaxSessions, logger)
	clar := clarification.NewManager(
		cfg.EnableClarification,
		clarification.NewTriageAgent(helper, pm, cfg.TriageModel, logger),
		clarification.NewClarifierAgent(helper, pm, cfg.ClarifierModel, logger),
		sessions,
		logger,
	)

	deps := Deps{
		Clarification: clar,
		Provider:      researchClient,
		Sessions:      sessions,
		Prompts:       pm,
	}
	if cfg.EnableInstructionBuilder {
		deps.InstructionBuilder = NewInstructionBuilder(helper, pm, cfg.InstructionBuilderModel, logger)
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		if !models.SupportsBackgroundResearch(cfg.Model) {
			logger.Warn("Model is not a deep research model; background tasks may be rejected",
				zap.String("model", cfg.Model),
				zap.String("family", models.DetectProvider(cfg.Model)),
			)
		}
		o := research.New(researchClient, research.Options{
			Model:          cfg.Model,
			Timeout:        cfg.Timeout,
			PollInterval:   cfg.PollInterval,
			SubmitAttempts: max(1, cfg.MaxRetries),
		}, logger)
		deps.Backend = NewHostedBackend(o)
		deps.Status = o
	case config.ProviderOpenDeepResearch:
		searcher := search.NewBraveClient(search.Options{
			BaseURL: cfg.SearchBaseURL,
			APIKey:  cfg.SearchAPIKey,
		}, logger)
		deps.Backend = NewLocalBackend(researchClient, searcher, LocalOptions{
			Model:           cfg.Model,
			MaxSteps:        cfg.LocalMaxSteps,
			ResultsPerQuery: cfg.SearchResults,
		}, logger)
	default:
		return nil, &config.ConfigurationError{Msg: fmt.Sprintf("Provider '%s' is not supported", cfg.Provider)}
	}

	logger.Info("Research agent initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Bool("clarification", cfg.EnableClarification),
		zap.Bool("instruction_builder", cfg.EnableInstructionBuilder),
	)
	return NewWithDeps(deps, logger), nil
}

// Backend returns the active research backend.
func (a *Agent) Backend() Backend { return a.deps.Backend }

// Provider returns the research provider client, or nil in tests.
func (a *Agent) Provider() *provider.Client { return a.deps.Provider }

// Sessions returns the clarification session store, or nil in tests.
func (a *Agent) Sessions() *session.Manager { return a.deps.Sessions }

// Prompts returns the prompt manager, or nil in tests.
func (a *Agent) Prompts() *prompts.Manager { return a.deps.Prompts }

// WaitForWebhooks blocks until pending completion callbacks finish.
func (a *Agent) WaitForWebhooks() { a.deps.Webhook.Wait() }

// Research runs a research task to a terminal state. It never returns an
// error; failures are reported in the result.
func (a *Agent) Research(ctx context.Context, req Request) (result research.Result) {
	backend := a.deps.Backend.Name()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Research panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			result = research.Failed(fmt.Sprintf("Unexpected error: %v", r))
		}
		metrics.TasksCompleted.WithLabelValues(backend, result.Status).Inc()
		metrics.TaskDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	}()

	if strings.TrimSpace(req.Query) == "" {
		return research.Failed("Query must not be empty")
	}

	a.logger.Info("Research requested",
		zap.String("backend", backend),
		zap.String("query", util.TruncateString(req.Query, 120, true)),
		zap.Bool("code_interpreter", req.IncludeCodeInterpreter),
	)

	query := req.Query
	if a.deps.InstructionBuilder != nil {
		query = a.deps.InstructionBuilder.Build(ctx, query)
	}

	metrics.TasksSubmitted.WithLabelValues(backend).Inc()
	result = a.deps.Backend.Run(ctx, Job{
		Query:                  query,
		SystemPrompt:           req.SystemPrompt,
		IncludeCodeInterpreter: req.IncludeCodeInterpreter,
	})

	if req.CallbackURL != "" && result.Completed() {
		a.deps.Webhook.Notify(ctx, req.CallbackURL, result)
	}
	return result
}

// GetTaskStatus reports the remote state of a task.
func (a *Agent) GetTaskStatus(ctx context.Context, taskID string) research.TaskStatus {
	if a.deps.Status == nil {
		return research.TaskStatus{
			TaskID: taskID,
			Status: research.StatusError,
			Error:  fmt.Sprintf("task status is not available for the %s backend", a.deps.Backend.Name()),
		}
	}
	return a.deps.Status.GetTaskStatus(ctx, taskID)
}

// ClarificationEnabled reports whether the clarification pipeline is on.
func (a *Agent) ClarificationEnabled() bool {
	return a.deps.Clarification != nil && a.deps.Clarification.Enabled()
}

// StartClarification analyzes query and opens a session when questions
// are needed.
func (a *Agent) StartClarification(ctx context.Context, query string) clarification.Assessment {
	if a.deps.Clarification == nil {
		return clarification.Assessment{Reasoning: "Clarification is disabled in configuration"}
	}
	return a.deps.Clarification.StartClarification(ctx, query)
}

// AddClarificationAnswers records answers for a session.
func (a *Agent) AddClarificationAnswers(sessionID string, answers []string) clarification.AnswersResult {
	if a.deps.Clarification == nil {
		return clarification.AnswersResult{Error: fmt.Sprintf("Session %s not found", sessionID)}
	}
	return a.deps.Clarification.AddAnswers(sessionID, answers)
}

// GetEnrichedQuery returns the query rewritten with the session's answers.
func (a *Agent) GetEnrichedQuery(ctx context.Context, sessionID string) (string, bool) {
	if a.deps.Clarification == nil {
		return "", false
	}
	return a.deps.Clarification.GetEnrichedQuery(ctx, sessionID)
}
