package server

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/agent"
	"github.com/pminervini/deep-research-mcp/internal/formatting"
	"github.com/pminervini/deep-research-mcp/internal/metrics"
	"github.com/pminervini/deep-research-mcp/internal/models"
	"github.com/pminervini/deep-research-mcp/internal/util"
)

const (
	systemInstructionsHelp = "Custom research approach instructions. Examples: 'Focus on peer-reviewed sources only', " +
		"'Include financial data and charts', 'Prioritize recent developments from 2024-2025'. Leave empty for balanced analysis."
	includeAnalysisHelp = "Enable code execution for data analysis, calculations, and visualizations. Useful for: statistical " +
		"analysis, creating charts/graphs, processing datasets. Set to false for text-only research."
)

func (s *Service) registerTools() {
	s.mcp.AddTool(mcp.NewTool("deep_research",
		mcp.WithDescription("Performs autonomous deep research with web search and analysis capabilities. "+
			"Decomposes complex queries into research strategies, searches the web for current information, optionally "+
			"executes code for data analysis, and synthesizes findings into a markdown report with citations. "+
			"Research can take tens of minutes."),
		mcp.WithString("query",
			mcp.Description("Specific research question or topic. Examples: 'Latest quantum computing breakthroughs in 2024', "+
				"'Compare renewable energy adoption rates globally'"),
			mcp.Required(),
		),
		mcp.WithString("system_instructions",
			mcp.Description(systemInstructionsHelp),
		),
		mcp.WithBoolean("include_analysis",
			mcp.Description(includeAnalysisHelp),
			mcp.DefaultBool(true),
		),
		mcp.WithBoolean("request_clarification",
			mcp.Description("When true, analyze the query and return clarifying questions instead of starting research. "+
				"Use this to improve research quality for ambiguous queries."),
			mcp.DefaultBool(false),
		),
		mcp.WithString("callback_url",
			mcp.Description("Optional URL that receives a JSON POST when the research completes"),
		),
	), s.instrument("deep_research", "Unexpected error: ", s.handleDeepResearch))

	s.mcp.AddTool(mcp.NewTool("research_status",
		mcp.WithDescription("Check the current status of a research task. Returns the task status with creation and "+
			"completion timestamps."),
		mcp.WithString("task_id",
			mcp.Description("Research task ID returned by the deep_research tool"),
			mcp.Required(),
		),
	), s.instrument("research_status", "Error checking status: ", s.handleResearchStatus))

	s.mcp.AddTool(mcp.NewTool("research_with_context",
		mcp.WithDescription("Perform research using an enriched query built from answers to clarifying questions. "+
			"Use after calling deep_research with request_clarification=true."),
		mcp.WithString("session_id",
			mcp.Description("Session ID from the clarification request"),
			mcp.Required(),
		),
		mcp.WithArray("answers",
			mcp.Description("Answers to the clarifying questions, in the same order as the questions were presented"),
			mcp.Items(map[string]any{"type": "string"}),
			mcp.Required(),
		),
		mcp.WithString("system_instructions",
			mcp.Description(systemInstructionsHelp),
		),
		mcp.WithBoolean("include_analysis",
			mcp.Description(includeAnalysisHelp),
			mcp.DefaultBool(true),
		),
	), s.instrument("research_with_context", "Error performing enhanced research: ", s.handleResearchWithContext))

	s.mcp.AddTool(mcp.NewTool("list_models",
		mcp.WithDescription("List the models available for research and clarification, with descriptions and costs."),
	), s.instrument("list_models", "Unexpected error: ", s.handleListModels))
}

// instrument records metrics for a tool and turns panics into a text
// result starting with failurePrefix.
func (s *Service) instrument(tool, failurePrefix string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Tool call panicked", zap.String("tool", tool), zap.Any("panic", r))
				result, err = mcp.NewToolResultText(fmt.Sprintf("%s%v", failurePrefix, r)), nil
			}
			outcome := "ok"
			if err != nil || result == nil || result.IsError {
				outcome = "error"
			}
			metrics.ToolCalls.WithLabelValues(tool, outcome).Inc()
			metrics.ToolDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
		}()
		return h(ctx, req)
	}
}

func (s *Service) handleDeepResearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if req.GetBool("request_clarification", false) {
		assessment := s.researcher.StartClarification(ctx, query)
		return mcp.NewToolResultText(formatting.Clarification(query, assessment)), nil
	}

	progress := newProgressReporter(ctx, req, s.logger)
	stop := progress.start(formatting.ProgressStarted, formatting.ProgressRunning, s.heartbeat)
	result := s.researcher.Research(ctx, agent.Request{
		Query:                  query,
		SystemPrompt:           util.FirstNonEmpty(req.GetString("system_instructions", ""), formatting.DefaultSystemPrompt),
		IncludeCodeInterpreter: req.GetBool("include_analysis", true),
		CallbackURL:            req.GetString("callback_url", ""),
	})
	stop()

	if !result.Completed() {
		failure := formatting.ResearchFailed(result)
		progress.finish(failure)
		return mcp.NewToolResultText(failure), nil
	}
	progress.finish(formatting.ProgressCompleted)
	return mcp.NewToolResultText(formatting.Report(query, result)), nil
}

func (s *Service) handleResearchStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatting.TaskStatus(s.researcher.GetTaskStatus(ctx, taskID))), nil
}

func (s *Service) handleResearchWithContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answers := req.GetStringSlice("answers", nil)

	if status := s.researcher.AddClarificationAnswers(sessionID, answers); status.Error != "" {
		return mcp.NewToolResultText("Error with clarification session: " + status.Error), nil
	}

	enriched, ok := s.researcher.GetEnrichedQuery(ctx, sessionID)
	if !ok || enriched == "" {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Could not retrieve enriched query for session %s. Please check the session ID.", sessionID)), nil
	}
	s.logger.Info("Using enriched query", zap.String("session_id", sessionID), zap.Int("length", len(enriched)))

	progress := newProgressReporter(ctx, req, s.logger)
	stop := progress.start(formatting.ContextProgressStarted, formatting.ContextProgressRunning, s.heartbeat)
	result := s.researcher.Research(ctx, agent.Request{
		Query:                  enriched,
		SystemPrompt:           util.FirstNonEmpty(req.GetString("system_instructions", ""), formatting.DefaultSystemPrompt),
		IncludeCodeInterpreter: req.GetBool("include_analysis", true),
	})
	stop()

	if !result.Completed() {
		progress.finish("Contextual research failed: " + util.FirstNonEmpty(result.Message, "Unknown error"))
		return mcp.NewToolResultText(formatting.ResearchFailed(result)), nil
	}
	progress.finish(formatting.ContextProgressCompleted)
	return mcp.NewToolResultText(formatting.EnhancedReport(enriched, len(answers), sessionID, result)), nil
}

func (s *Service) handleListModels(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(models.FormatList()), nil
}
