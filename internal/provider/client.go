package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/circuitbreaker"
	"github.com/pminervini/deep-research-mcp/internal/ratecontrol"
	"github.com/pminervini/deep-research-mcp/internal/tracing"
	"github.com/pminervini/deep-research-mcp/internal/util"
)

// APIError is a non-2xx reply from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := util.TruncateString(strings.TrimSpace(e.Body), 300, false)
	return fmt.Sprintf("provider returned HTTP %d: %s", e.StatusCode, body)
}

// IsNotFound reports whether err is a 404 from the provider.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	Name       string // breaker and metric label
	HTTPClient *http.Client
	Limiter    *ratecontrol.Limiter
	Breaker    circuitbreaker.Settings
}

// Client talks to an OpenAI-compatible endpoint. Every request except Ping
// goes through the rate limiter and the circuit breaker.
type Client struct {
	baseURL string
	apiKey  string
	http    *circuitbreaker.HTTPWrapper
	direct  *http.Client
	limiter *ratecontrol.Limiter
	logger  *zap.Logger
}

// NewClient builds a Client. Zero breaker settings select ProviderSettings.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Name == "" {
		opts.Name = "provider"
	}
	if opts.Breaker == (circuitbreaker.Settings{}) {
		opts.Breaker = circuitbreaker.ProviderSettings()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		http:    circuitbreaker.NewHTTPWrapper(opts.HTTPClient, opts.Name, "provider", opts.Breaker, logger),
		direct:  opts.HTTPClient,
		limiter: opts.Limiter,
		logger:  logger,
	}
}

// BaseURL returns the endpoint root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker { return c.http.Breaker() }

// CreateResponse submits a task.
func (c *Client) CreateResponse(ctx context.Context, req CreateRequest) (*Response, error) {
	var out Response
	if err := c.do(ctx, http.MethodPost, "/responses", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetrieveResponse fetches the current snapshot of a task.
func (c *Client) RetrieveResponse(ctx context.Context, id string) (*Response, error) {
	var out Response
	if err := c.do(ctx, http.MethodGet, "/responses/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelResponse asks the provider to stop a background task.
func (c *Client) CancelResponse(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/responses/"+url.PathEscape(id)+"/cancel", nil, nil)
}

// ChatCompletion runs a single-turn completion and returns the first
// choice's content.
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (string, error) {
	var out chatResponse
	if err := c.do(ctx, http.MethodPost, "/chat/completions", req, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// Ping lists models, which is the cheapest authenticated call. It skips the
// rate limiter and the circuit breaker so health checks never spend research
// tokens or trip the breaker.
func (c *Client) Ping(ctx context.Context) error {
	return c.send(ctx, c.direct.Do, false, http.MethodGet, "/models", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.send(ctx, c.http.Do, true, method, path, body, out)
}

func (c *Client) send(ctx context.Context, doer func(*http.Request) (*http.Response, error), limited bool, method, path string, body, out any) error {
	if limited && c.limiter != nil {
		if err := c.limiter.WaitAndAcquire(ctx, 1); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	endpoint := c.baseURL + path
	ctx, span := tracing.StartHTTPSpan(ctx, method, endpoint)
	defer span.End()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	tracing.InjectTraceparent(ctx, req)

	resp, err := doer(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		span.SetStatus(codes.Error, apiErr.Error())
		c.logger.Debug("Provider request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
