package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pminervini/deep-research-mcp/internal/config"
	"github.com/pminervini/deep-research-mcp/internal/provider"
	"github.com/pminervini/deep-research-mcp/internal/research"
)

type stubBackend struct {
	mu     sync.Mutex
	jobs   []Job
	result research.Result
	panics bool
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Run(_ context.Context, job Job) research.Result {
	b.mu.Lock()
	b.jobs = append(b.jobs, job)
	b.mu.Unlock()
	if b.panics {
		panic("backend exploded")
	}
	return b.result
}

type chatFunc func(req provider.ChatRequest) (string, error)

func (f chatFunc) ChatCompletion(_ context.Context, req provider.ChatRequest) (string, error) {
	return f(req)
}

type staticPrompts struct{ err error }

func (p staticPrompts) InstructionBuilderPrompt(query string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "Rewrite: " + query, nil
}

func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/responses":
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, true, req["background"])
			_, _ = w.Write([]byte(`{"id":"resp_e2e","status":"queued"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/responses/resp_e2e":
			_, _ = w.Write([]byte(`{
				"id": "resp_e2e",
				"status": "completed",
				"output": [
					{"type": "reasoning", "summary": [{"type": "summary_text", "text": "comparing trials"}]},
					{"type": "message", "content": [{"type": "output_text", "text": "mRNA vaccines showed higher effectiveness.", "annotations": [
						{"type": "url_citation", "title": "NEJM", "url": "https://nejm.example/a", "start_index": 0, "end_index": 4},
						{"type": "url_citation", "title": "Lancet", "url": "https://lancet.example/b", "start_index": 5, "end_index": 13}
					]}]}
				]
			}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResearchEndToEnd(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	srv := fakeProvider(t)

	cfg := config.Defaults()
	cfg.BaseURL = srv.URL + "/v1"
	cfg.APIKey = "sk-test"
	cfg.PollInterval = 10 * time.Millisecond
	cfg.Timeout = 5 * time.Second
	cfg.RateLimitTPM = 0

	a, err := New(&cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "openai", a.Backend().Name())
	assert.False(t, a.ClarificationEnabled())

	result := a.Research(context.Background(), Request{Query: "Compare COVID-19 vaccine effectiveness"})
	require.Equal(t, research.StatusCompleted, result.Status, result.Message)
	assert.NotEmpty(t, result.FinalReport)
	assert.Equal(t, "resp_e2e", result.TaskID)
	assert.Equal(t, 2, result.TotalSteps)
	assert.Equal(t, 1, result.ReasoningSteps)
	require.Len(t, result.Citations, 2)
	assert.Equal(t, 1, result.Citations[0].Index)
	assert.Equal(t, "Lancet", result.Citations[1].Title)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := config.Defaults()
	cfg.Provider = "carrier-pigeon"
	_, err := New(&cfg, zaptest.NewLogger(t))
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Msg, "carrier-pigeon")
}

func TestNewLocalProvider(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := config.Defaults()
	cfg.Provider = config.ProviderOpenDeepResearch
	cfg.BaseURL = "http://127.0.0.1:1/v1"
	cfg.SearchAPIKey = "brave-key"

	a, err := New(&cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "open-deep-research", a.Backend().Name())

	status := a.GetTaskStatus(context.Background(), "local-1")
	assert.Equal(t, research.StatusError, status.Status)
	assert.Equal(t, "local-1", status.TaskID)
	assert.NotEmpty(t, status.Error)
}

func TestResearchPassesJobToBackend(t *testing.T) {
	backend := &stubBackend{result: research.Result{Status: research.StatusCompleted, TaskID: "t1"}}
	a := NewWithDeps(Deps{Backend: backend}, zaptest.NewLogger(t))

	result := a.Research(context.Background(), Request{
		Query:                  "q",
		SystemPrompt:           "be terse",
		IncludeCodeInterpreter: true,
	})
	assert.True(t, result.Completed())
	require.Len(t, backend.jobs, 1)
	assert.Equal(t, Job{Query: "q", SystemPrompt: "be terse", IncludeCodeInterpreter: true}, backend.jobs[0])
}

func TestResearchRejectsEmptyQuery(t *testing.T) {
	backend := &stubBackend{}
	a := NewWithDeps(Deps{Backend: backend}, zaptest.NewLogger(t))

	result := a.Research(context.Background(), Request{Query: "   "})
	assert.Equal(t, research.StatusFailed, result.Status)
	assert.NotEmpty(t, result.Message)
	assert.Empty(t, backend.jobs)
}

func TestResearchRecoversPanic(t *testing.T) {
	a := NewWithDeps(Deps{Backend: &stubBackend{panics: true}}, zaptest.NewLogger(t))

	result := a.Research(context.Background(), Request{Query: "q"})
	assert.Equal(t, research.StatusFailed, result.Status)
	assert.Equal(t, "Unexpected error: backend exploded", result.Message)
}

func TestResearchUsesInstructionBuilder(t *testing.T) {
	backend := &stubBackend{result: research.Result{Status: research.StatusCompleted}}
	chat := chatFunc(func(req provider.ChatRequest) (string, error) {
		assert.Equal(t, "gpt-5-mini", req.Model)
		assert.Equal(t, "Rewrite: solar", req.Messages[0].Content)
		return "  Detailed instructions about solar  ", nil
	})
	a := NewWithDeps(Deps{
		Backend:            backend,
		InstructionBuilder: NewInstructionBuilder(chat, staticPrompts{}, "gpt-5-mini", zaptest.NewLogger(t)),
	}, zaptest.NewLogger(t))

	a.Research(context.Background(), Request{Query: "solar"})
	require.Len(t, backend.jobs, 1)
	assert.Equal(t, "Detailed instructions about solar", backend.jobs[0].Query)
}

func TestInstructionBuilderFallsBack(t *testing.T) {
	failing := chatFunc(func(provider.ChatRequest) (string, error) { return "", errors.New("down") })
	empty := chatFunc(func(provider.ChatRequest) (string, error) { return " ", nil })
	ok := chatFunc(func(provider.ChatRequest) (string, error) { return "unused", nil })

	logger := zaptest.NewLogger(t)
	ctx := context.Background()
	assert.Equal(t, "q", NewInstructionBuilder(failing, staticPrompts{}, "m", logger).Build(ctx, "q"))
	assert.Equal(t, "q", NewInstructionBuilder(empty, staticPrompts{}, "m", logger).Build(ctx, "q"))
	assert.Equal(t, "q", NewInstructionBuilder(ok, staticPrompts{err: errors.New("missing")}, "m", logger).Build(ctx, "q"))
}

func TestBuildInput(t *testing.T) {
	messages, tools := BuildInput(Job{Query: "q"})
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].Role)
	require.Len(t, tools, 1)
	assert.Equal(t, "web_search_preview", tools[0].Type)

	messages, tools = BuildInput(Job{Query: "q", SystemPrompt: "sys", IncludeCodeInterpreter: true})
	require.Len(t, messages, 2)
	assert.Equal(t, "developer", messages[0].Role)
	assert.Equal(t, "sys", messages[0].Content[0].Text)
	require.Len(t, tools, 2)
	assert.Equal(t, "code_interpreter", tools[1].Type)
}

func TestGetTaskStatusDelegates(t *testing.T) {
	a := NewWithDeps(Deps{Backend: &stubBackend{}, Status: statusFunc(func(id string) research.TaskStatus {
		return research.TaskStatus{TaskID: id, Status: "in_progress"}
	})}, zaptest.NewLogger(t))

	assert.Equal(t, "in_progress", a.GetTaskStatus(context.Background(), "resp_1").Status)
}

type statusFunc func(id string) research.TaskStatus

func (f statusFunc) GetTaskStatus(_ context.Context, id string) research.TaskStatus { return f(id) }

func TestClarificationPassThroughWithoutManager(t *testing.T) {
	a := NewWithDeps(Deps{Backend: &stubBackend{}}, zaptest.NewLogger(t))

	assessment := a.StartClarification(context.Background(), "q")
	assert.False(t, assessment.NeedsClarification)
	assert.Equal(t, "Session abc not found", a.AddClarificationAnswers("abc", []string{"x"}).Error)
	_, ok := a.GetEnrichedQuery(context.Background(), "abc")
	assert.False(t, ok)
}

func TestResearchSendsWebhookOnCompletion(t *testing.T) {
	var (
		mu       sync.Mutex
		payloads []WebhookPayload
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p WebhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		mu.Lock()
		payloads = append(payloads, p)
		mu.Unlock()
	}))
	defer hook.Close()

	report := strings.Repeat("é", 600)
	backend := &stubBackend{result: research.Result{Status: research.StatusCompleted, TaskID: "resp_9", FinalReport: report}}
	a := NewWithDeps(Deps{Backend: backend, Webhook: NewWebhook(hook.Client(), zaptest.NewLogger(t))}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	a.Research(ctx, Request{Query: "q", CallbackURL: hook.URL})
	cancel()
	a.WaitForWebhooks()

	require.Len(t, payloads, 1)
	assert.Equal(t, "completed", payloads[0].Status)
	assert.Equal(t, "resp_9", payloads[0].TaskID)
	assert.Greater(t, payloads[0].Timestamp, float64(0))
	assert.Equal(t, strings.Repeat("é", 500), payloads[0].ResultPreview)
}

func TestResearchSkipsWebhookOnFailure(t *testing.T) {
	called := false
	hook := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer hook.Close()

	backend := &stubBackend{result: research.Failed("nope")}
	a := NewWithDeps(Deps{Backend: backend, Webhook: NewWebhook(hook.Client(), zaptest.NewLogger(t))}, zaptest.NewLogger(t))

	result := a.Research(context.Background(), Request{Query: "q", CallbackURL: hook.URL})
	a.WaitForWebhooks()
	assert.Equal(t, research.StatusFailed, result.Status)
	assert.False(t, called)
}

func TestWebhookFailureIsNotFatal(t *testing.T) {
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer hook.Close()

	backend := &stubBackend{result: research.Result{Status: research.StatusCompleted, TaskID: "t"}}
	a := NewWithDeps(Deps{Backend: backend, Webhook: NewWebhook(hook.Client(), zaptest.NewLogger(t))}, zaptest.NewLogger(t))

	result := a.Research(context.Background(), Request{Query: "q", CallbackURL: hook.URL})
	a.WaitForWebhooks()
	assert.True(t, result.Completed())
}
