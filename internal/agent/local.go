package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/provider"
	"github.com/pminervini/deep-research-mcp/internal/research"
	"github.com/pminervini/deep-research-mcp/internal/search"
	"github.com/pminervini/deep-research-mcp/internal/util"
)

const planPrompt = `You are planning a research task. Break the research question below into at most %d focused web search queries that together cover it.

Research question: %q

Return only a JSON array of strings.`

const synthesisPrompt = `Write a structured, well-organised research report that answers the question below, using only the numbered web sources provided. Cite sources inline by their bracketed number, for example [2] or [1, 3]. Do not cite anything that is not in the list.

Question: %q

Sources:
%s`

const maxSnippetRunes = 800

// Searcher finds web pages for a query.
type Searcher interface {
	Search(ctx context.Context, query string, count int) ([]search.Result, error)
}

// LocalOptions tunes a LocalBackend.
type LocalOptions struct {
	Model           string
	MaxSteps        int // search queries per job, default 4
	ResultsPerQuery int // default 5
}

// LocalBackend runs a plan, search, synthesize loop over an
// OpenAI-compatible chat endpoint and a web search API, for servers
// without a Responses API.
type LocalBackend struct {
	client   ChatCompleter
	searcher Searcher
	opts     LocalOptions
	logger   *zap.Logger
}

// NewLocalBackend returns a local backend.
func NewLocalBackend(client ChatCompleter, searcher Searcher, opts LocalOptions, logger *zap.Logger) *LocalBackend {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 4
	}
	if opts.ResultsPerQuery <= 0 {
		opts.ResultsPerQuery = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalBackend{client: client, searcher: searcher, opts: opts, logger: logger}
}

func (b *LocalBackend) Name() string { return "open-deep-research" }

func (b *LocalBackend) Run(ctx context.Context, job Job) research.Result {
	taskID := "local-" + uuid.New().String()
	logger := b.logger.With(zap.String("task_id", taskID))
	logger.Info("Research task started", zap.String("model", b.opts.Model))

	queries, err := b.plan(ctx, job)
	if err != nil {
		logger.Error("Research planning failed", zap.Error(err))
		return research.Result{Status: research.StatusFailed, Message: fmt.Sprintf("Research planning failed: %v", err), TaskID: taskID}
	}

	var (
		executed []string
		sources  []search.Result
		seen     = make(map[string]bool)
	)
	for i, q := range queries {
		results, err := b.searcher.Search(ctx, q, b.opts.ResultsPerQuery)
		if err != nil {
			if ctx.Err() != nil {
				return research.Result{Status: research.StatusFailed, Message: ctx.Err().Error(), TaskID: taskID}
			}
			logger.Warn("Search step failed", zap.Int("step", i+1), zap.String("query", q), zap.Error(err))
			continue
		}
		if len(results) == 0 {
			logger.Warn("Search step returned no results", zap.Int("step", i+1), zap.String("query", q))
			continue
		}

		executed = append(executed, q)
		for _, r := range search.Rank(q, results) {
			if !seen[r.URL] {
				seen[r.URL] = true
				sources = append(sources, r)
			}
		}
	}
	if len(executed) == 0 {
		return research.Result{Status: research.StatusFailed, Message: "All search steps failed", TaskID: taskID}
	}

	report, err := b.complete(ctx, job.SystemPrompt, fmt.Sprintf(synthesisPrompt, job.Query, formatSources(sources)))
	if err != nil {
		logger.Error("Report synthesis failed", zap.Error(err))
		return research.Result{Status: research.StatusFailed, Message: fmt.Sprintf("Report synthesis failed: %v", err), TaskID: taskID}
	}
	report = strings.TrimSpace(report)

	logger.Info("Research completed",
		zap.Int("search_steps", len(executed)),
		zap.Int("sources", len(sources)),
	)
	return research.Result{
		Status:         research.StatusCompleted,
		FinalReport:    report,
		Citations:      CitedSources(report, sources),
		SearchQueries:  executed,
		ReasoningSteps: 1,
		TotalSteps:     len(executed) + 2,
		TaskID:         taskID,
	}
}

func (b *LocalBackend) plan(ctx context.Context, job Job) ([]string, error) {
	out, err := b.complete(ctx, "", fmt.Sprintf(planPrompt, b.opts.MaxSteps, job.Query))
	if err != nil {
		return nil, err
	}

	var queries []string
	if err := json.Unmarshal([]byte(unfence(out)), &queries); err != nil {
		for _, line := range strings.Split(out, "\n") {
			line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789.)"))
			if line != "" && !strings.HasPrefix(line, "```") && !strings.HasPrefix(line, "[") {
				queries = append(queries, strings.Trim(line, `"`))
			}
		}
	}

	cleaned := queries[:0]
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			cleaned = append(cleaned, q)
		}
	}
	if len(cleaned) == 0 {
		cleaned = []string{job.Query}
	}
	if len(cleaned) > b.opts.MaxSteps {
		cleaned = cleaned[:b.opts.MaxSteps]
	}
	return cleaned, nil
}

func (b *LocalBackend) complete(ctx context.Context, system, prompt string) (string, error) {
	messages := make([]provider.ChatMessage, 0, 2)
	if system != "" {
		messages = append(messages, provider.ChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, provider.ChatMessage{Role: "user", Content: prompt})
	return b.client.ChatCompletion(ctx, provider.ChatRequest{Model: b.opts.Model, Messages: messages})
}

func formatSources(sources []search.Result) string {
	var sb strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&sb, "[%d] %s\nURL: %s\n", i+1, s.Title, s.URL)
		if s.Snippet != "" {
			fmt.Fprintf(&sb, "%s\n", util.TruncateString(s.Snippet, maxSnippetRunes, true))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func unfence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

var citationMarker = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// CitedSources maps bracketed source numbers in report back to sources.
// Citations are ordered by first mention and carry the character offsets
// of that marker. Numbers outside the source list are ignored. When the
// report cites nothing, every source is returned without offsets.
func CitedSources(report string, sources []search.Result) []research.Citation {
	citations := []research.Citation{}
	cited := make(map[int]bool)

	for _, m := range citationMarker.FindAllStringSubmatchIndex(report, -1) {
		start := utf8.RuneCountInString(report[:m[0]])
		end := start + utf8.RuneCountInString(report[m[0]:m[1]])
		for _, part := range strings.Split(report[m[2]:m[3]], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 1 || n > len(sources) || cited[n] {
				continue
			}
			cited[n] = true
			s := sources[n-1]
			citations = append(citations, research.Citation{
				Index:     len(citations) + 1,
				Title:     s.Title,
				URL:       s.URL,
				StartChar: start,
				EndChar:   end,
			})
		}
	}
	if len(citations) > 0 {
		return citations
	}

	for i, s := range sources {
		citations = append(citations, research.Citation{Index: i + 1, Title: s.Title, URL: s.URL})
	}
	return citations
}
