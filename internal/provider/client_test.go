package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pminervini/deep-research-mcp/internal/ratecontrol"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:    srv.URL + "/v1/",
		APIKey:     "sk-test",
		Name:       t.Name(),
		HTTPClient: srv.Client(),
	}, zaptest.NewLogger(t))
}

func TestCreateResponseSendsBackgroundRequest(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/responses", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"id":"resp_123","status":"queued"}`))
	})

	resp, err := c.CreateResponse(context.Background(), CreateRequest{
		Model:      "o4-mini-deep-research-2025-06-26",
		Input:      []InputMessage{TextMessage("user", "hello")},
		Tools:      []Tool{WebSearchTool(), CodeInterpreterTool()},
		Reasoning:  &Reasoning{Summary: "auto"},
		Background: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "resp_123", resp.ID)
	assert.Equal(t, StatusQueued, resp.Status)

	assert.Equal(t, true, got["background"])
	tools := got["tools"].([]any)
	require.Len(t, tools, 2)
	assert.Equal(t, "web_search_preview", tools[0].(map[string]any)["type"])
	container := tools[1].(map[string]any)["container"].(map[string]any)
	assert.Equal(t, "auto", container["type"])
	assert.Equal(t, []any{}, container["file_ids"])
	input := got["input"].([]any)[0].(map[string]any)
	assert.Equal(t, "input_text", input["content"].([]any)[0].(map[string]any)["type"])
}

func TestRetrieveAndCancel(t *testing.T) {
	var cancelled bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/responses/resp_1":
			_, _ = w.Write([]byte(`{"id":"resp_1","status":"in_progress","created_at":1700000000}`))
		case "/v1/responses/resp_1/cancel":
			cancelled = true
			_, _ = w.Write([]byte(`{"id":"resp_1","status":"cancelled"}`))
		default:
			http.NotFound(w, r)
		}
	})

	resp, err := c.RetrieveResponse(context.Background(), "resp_1")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, resp.Status)
	require.NotNil(t, resp.CreatedAt)
	assert.Equal(t, float64(1700000000), *resp.CreatedAt)

	require.NoError(t, c.CancelResponse(context.Background(), "resp_1"))
	assert.True(t, cancelled)

	_, err = c.RetrieveResponse(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestChatCompletion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-5-mini", req.Model)
		require.NotNil(t, req.Temperature)
		assert.InDelta(t, 0.3, *req.Temperature, 1e-9)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`))
	})

	out, err := c.ChatCompletion(context.Background(), ChatRequest{
		Model:       "gpt-5-mini",
		Messages:    []ChatMessage{{Role: "user", Content: "hi"}},
		Temperature: Temperature(0.3),
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
}

func TestChatCompletionWithoutChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	_, err := c.ChatCompletion(context.Background(), ChatRequest{Model: "m"})
	assert.Error(t, err)
}

func TestAPIErrorCarriesStatusAndBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	})
	_, err := c.CreateResponse(context.Background(), CreateRequest{Model: "m"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "bad key")
}

func TestLimiterGatesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	limiter := ratecontrol.New(1)
	require.True(t, limiter.Acquire(1))
	c := NewClient(Options{BaseURL: srv.URL, Name: t.Name(), HTTPClient: srv.Client(), Limiter: limiter}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.RetrieveResponse(ctx, "resp_1")
	assert.ErrorContains(t, err, "rate limiter")
}

func TestPingBypassesBreakerAndLimiter(t *testing.T) {
	var creates int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		creates++
		_, _ = w.Write([]byte(`{"id":"resp_1","status":"queued"}`))
	}))
	defer srv.Close()

	limiter := ratecontrol.New(2)
	c := NewClient(Options{BaseURL: srv.URL, Name: t.Name(), HTTPClient: srv.Client(), Limiter: limiter}, zaptest.NewLogger(t))

	for i := 0; i < 10; i++ {
		assert.Error(t, c.Ping(context.Background()))
	}
	assert.False(t, c.Breaker().IsOpen())
	assert.InDelta(t, 2, limiter.Available(), 0.1)

	resp, err := c.CreateResponse(context.Background(), CreateRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "resp_1", resp.ID)
	assert.Equal(t, 1, creates)
}

func TestAPIErrorTruncatesOnRuneBoundary(t *testing.T) {
	err := &APIError{StatusCode: http.StatusBadGateway, Body: strings.Repeat("é", 400)}
	msg := err.Error()
	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, "..."))
	assert.Equal(t, 300, utf8.RuneCountInString(strings.TrimPrefix(msg, "provider returned HTTP 502: ")))
}

func TestTaskErrorShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *TaskError
	}{
		{"absent", ``, nil},
		{"null", `null`, nil},
		{"object", `{"message":"X","code":"E1"}`, &TaskError{Message: "X", Code: "E1", IsObject: true}},
		{"object without message", `{"code":"E2"}`, &TaskError{Message: "Unknown error", Code: "E2", IsObject: true}},
		{"numeric code", `{"message":"X","code":429}`, &TaskError{Message: "X", Code: "429", IsObject: true}},
		{"string", `"quota exceeded"`, &TaskError{Message: "quota exceeded"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Response{Error: json.RawMessage(tt.raw)}
			assert.Equal(t, tt.want, r.TaskError())
		})
	}
}

func TestOutputItemHasSummary(t *testing.T) {
	var r Response
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","status":"completed","output":[
		{"type":"reasoning","summary":[]},
		{"type":"reasoning"},
		{"type":"reasoning","summary":null}
	]}`), &r))
	assert.True(t, r.Output[0].HasSummary())
	assert.False(t, r.Output[1].HasSummary())
	assert.False(t, r.Output[2].HasSummary())
}
