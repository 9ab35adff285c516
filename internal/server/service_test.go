package server

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pminervini/deep-research-mcp/internal/agent"
	"github.com/pminervini/deep-research-mcp/internal/clarification"
	"github.com/pminervini/deep-research-mcp/internal/formatting"
	"github.com/pminervini/deep-research-mcp/internal/research"
	"github.com/pminervini/deep-research-mcp/internal/session"
)

type fakeResearcher struct {
	requests   []agent.Request
	result     research.Result
	status     research.TaskStatus
	assessment clarification.Assessment
	answers    map[string][]string
	enriched   string
	panics     bool
}

func (f *fakeResearcher) Research(_ context.Context, req agent.Request) research.Result {
	if f.panics {
		panic("kaboom")
	}
	f.requests = append(f.requests, req)
	return f.result
}

func (f *fakeResearcher) GetTaskStatus(_ context.Context, id string) research.TaskStatus {
	s := f.status
	s.TaskID = id
	return s
}

func (f *fakeResearcher) StartClarification(context.Context, string) clarification.Assessment {
	return f.assessment
}

func (f *fakeResearcher) AddClarificationAnswers(id string, answers []string) clarification.AnswersResult {
	if _, ok := f.answers[id]; !ok {
		return clarification.AnswersResult{Error: "Session " + id + " not found"}
	}
	f.answers[id] = answers
	return clarification.AnswersResult{Status: session.Status{SessionID: id, TotalQuestions: 2, AnsweredQuestions: len(answers)}}
}

func (f *fakeResearcher) GetEnrichedQuery(_ context.Context, id string) (string, bool) {
	if _, ok := f.answers[id]; !ok {
		return "", false
	}
	return f.enriched, true
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func completedResult() research.Result {
	return research.Result{
		Status:        research.StatusCompleted,
		FinalReport:   "Findings.",
		SearchQueries: []string{"q1"},
		TotalSteps:    2,
		TaskID:        "resp_1",
		Citations:     []research.Citation{{Index: 1, Title: "T", URL: "https://t.example"}},
	}
}

func newTestService(t *testing.T, r *fakeResearcher) *Service {
	return NewService(r, Options{}, zaptest.NewLogger(t))
}

func TestDeepResearchReport(t *testing.T) {
	r := &fakeResearcher{result: completedResult()}
	s := newTestService(t, r)

	res, err := s.handleDeepResearch(context.Background(), call(map[string]any{"query": "solar"}))
	require.NoError(t, err)
	assert.Equal(t, formatting.Report("solar", completedResult()), text(t, res))

	require.Len(t, r.requests, 1)
	assert.Equal(t, formatting.DefaultSystemPrompt, r.requests[0].SystemPrompt)
	assert.True(t, r.requests[0].IncludeCodeInterpreter)
}

func TestDeepResearchPassesOptions(t *testing.T) {
	r := &fakeResearcher{result: completedResult()}
	s := newTestService(t, r)

	_, err := s.handleDeepResearch(context.Background(), call(map[string]any{
		"query":               "solar",
		"system_instructions": "peer-reviewed only",
		"include_analysis":    false,
		"callback_url":        "http://hook.example",
	}))
	require.NoError(t, err)
	require.Len(t, r.requests, 1)
	assert.Equal(t, agent.Request{
		Query:        "solar",
		SystemPrompt: "peer-reviewed only",
		CallbackURL:  "http://hook.example",
	}, r.requests[0])
}

func TestDeepResearchFailure(t *testing.T) {
	r := &fakeResearcher{result: research.Failed("Research task failed: quota exceeded")}
	res, err := newTestService(t, r).handleDeepResearch(context.Background(), call(map[string]any{"query": "q"}))
	require.NoError(t, err)
	assert.Equal(t, "Research failed: Research task failed: quota exceeded", text(t, res))
}

func TestDeepResearchRequiresQuery(t *testing.T) {
	res, err := newTestService(t, &fakeResearcher{}).handleDeepResearch(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestDeepResearchClarification(t *testing.T) {
	r := &fakeResearcher{assessment: clarification.Assessment{
		NeedsClarification: true,
		Reasoning:          "broad",
		SessionID:          "sess-1",
		Questions:          []string{"Which market?"},
	}}
	res, err := newTestService(t, r).handleDeepResearch(context.Background(), call(map[string]any{
		"query":                 "EV adoption",
		"request_clarification": true,
	}))
	require.NoError(t, err)
	out := text(t, res)
	assert.True(t, strings.HasPrefix(out, "# Clarifying Questions Needed"))
	assert.Contains(t, out, "**Session ID:** `sess-1`")
	assert.Contains(t, out, "1. Which market?")
	assert.Empty(t, r.requests)
}

func TestDeepResearchPanicBecomesText(t *testing.T) {
	s := newTestService(t, &fakeResearcher{panics: true})
	h := s.instrument("deep_research", "Unexpected error: ", s.handleDeepResearch)

	res, err := h(context.Background(), call(map[string]any{"query": "q"}))
	require.NoError(t, err)
	assert.Equal(t, "Unexpected error: kaboom", text(t, res))
}

func TestResearchStatus(t *testing.T) {
	created := 1700000000.0
	r := &fakeResearcher{status: research.TaskStatus{Status: "in_progress", CreatedAt: &created}}
	res, err := newTestService(t, r).handleResearchStatus(context.Background(), call(map[string]any{"task_id": "resp_7"}))
	require.NoError(t, err)
	assert.Equal(t, "Task resp_7 status: in_progress\nCreated at: 1700000000", text(t, res))

	r.status = research.TaskStatus{Status: research.StatusError, Error: "not found"}
	res, err = newTestService(t, r).handleResearchStatus(context.Background(), call(map[string]any{"task_id": "resp_7"}))
	require.NoError(t, err)
	assert.Equal(t, "Error checking status: not found", text(t, res))
}

func TestResearchWithContext(t *testing.T) {
	r := &fakeResearcher{
		result:   completedResult(),
		answers:  map[string][]string{"sess-1": nil},
		enriched: "EV adoption in Norway since 2020",
	}
	s := newTestService(t, r)

	res, err := s.handleResearchWithContext(context.Background(), call(map[string]any{
		"session_id": "sess-1",
		"answers":    []any{"Norway", "since 2020"},
	}))
	require.NoError(t, err)
	assert.Equal(t, formatting.EnhancedReport("EV adoption in Norway since 2020", 2, "sess-1", completedResult()), text(t, res))
	assert.Equal(t, []string{"Norway", "since 2020"}, r.answers["sess-1"])
	require.Len(t, r.requests, 1)
	assert.Equal(t, "EV adoption in Norway since 2020", r.requests[0].Query)
}

func TestResearchWithContextUnknownSession(t *testing.T) {
	r := &fakeResearcher{answers: map[string][]string{}}
	res, err := newTestService(t, r).handleResearchWithContext(context.Background(), call(map[string]any{
		"session_id": "nope",
		"answers":    []any{"x"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "Error with clarification session: Session nope not found", text(t, res))
	assert.Empty(t, r.requests)
}

func TestResearchWithContextMissingEnrichment(t *testing.T) {
	r := &fakeResearcher{answers: map[string][]string{"sess-1": nil}}
	res, err := newTestService(t, r).handleResearchWithContext(context.Background(), call(map[string]any{
		"session_id": "sess-1",
		"answers":    []any{"x"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "Could not retrieve enriched query for session sess-1. Please check the session ID.", text(t, res))
}

func TestToolsAreListed(t *testing.T) {
	s := newTestService(t, &fakeResearcher{})
	msg := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	out, err := json.Marshal(msg)
	require.NoError(t, err)
	for _, name := range []string{"deep_research", "research_status", "research_with_context", "list_models"} {
		assert.Contains(t, string(out), `"name":"`+name+`"`)
	}
}

func TestListModelsOverJSONRPC(t *testing.T) {
	s := newTestService(t, &fakeResearcher{})
	msg := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"list_models","arguments":{}}}`))
	out, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "o4-mini-deep-research-2025-06-26")
}

func TestProgressReporterWithoutToken(t *testing.T) {
	p := newProgressReporter(context.Background(), call(nil), zaptest.NewLogger(t))
	stop := p.start("start", "running", 1)
	stop()
	assert.False(t, p.report(1, nil, "done"))
}
