// Package search queries a web search API for the locally orchestrated
// research backend.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/circuitbreaker"
	"github.com/pminervini/deep-research-mcp/internal/metrics"
	"github.com/pminervini/deep-research-mcp/internal/tracing"
	"github.com/pminervini/deep-research-mcp/internal/util"
)

const (
	DefaultBaseURL = "https://api.search.brave.com/res/v1"

	maxErrorBodyBytes = 8 * 1024
	maxQueryWords     = 50
	defaultCount      = 5
)

// ErrMissingAPIKey is returned by Search when no key is configured.
var ErrMissingAPIKey = errors.New("search API key is not configured")

// APIError is a non-2xx reply from the search API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("search returned HTTP %d: %s", e.StatusCode, util.TruncateString(e.Body, 300, false))
}

// Result is one web search hit.
type Result struct {
	URL     string
	Title   string
	Snippet string
}

// Options configures a BraveClient.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// BraveClient calls the Brave Web Search API through a circuit breaker.
type BraveClient struct {
	apiKey  string
	baseURL string
	http    *circuitbreaker.HTTPWrapper
	logger  *zap.Logger
}

type braveResponse struct {
	Web struct {
		Results []braveResult `json:"results"`
	} `json:"web"`
	Results []braveResult `json:"results"`
}

type braveResult struct {
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Snippet       string   `json:"snippet"`
	ExtraSnippets []string `json:"extra_snippets"`
}

// NewBraveClient builds a client. An empty base URL selects DefaultBaseURL.
func NewBraveClient(opts Options, logger *zap.Logger) *BraveClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &BraveClient{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		http:    circuitbreaker.NewHTTPWrapper(opts.HTTPClient, "search", "search", circuitbreaker.HTTPSettings(), logger),
		logger:  logger,
	}
}

// Search returns up to count results for query, deduplicated by URL. A
// non-positive count selects 5.
func (c *BraveClient) Search(ctx context.Context, query string, count int) ([]Result, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	query = trimToWords(query, maxQueryWords)
	if query == "" {
		return nil, nil
	}
	if count <= 0 {
		count = defaultCount
	}

	results, err := c.search(ctx, query, count)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case len(results) == 0:
		outcome = "empty"
	}
	metrics.SearchRequests.WithLabelValues(outcome).Inc()
	return results, err
}

func (c *BraveClient) search(ctx context.Context, query string, count int) ([]Result, error) {
	endpoint, err := url.Parse(c.baseURL + "/web/search")
	if err != nil {
		return nil, fmt.Errorf("parse search endpoint: %w", err)
	}
	params := endpoint.Query()
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))
	params.Set("spellcheck", "0")
	params.Set("text_decorations", "0")
	endpoint.RawQuery = params.Encode()

	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodGet, c.baseURL+"/web/search")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("request search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		span.SetStatus(codes.Error, apiErr.Error())
		return nil, apiErr
	}

	var parsed braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	raw := parsed.Web.Results
	if len(raw) == 0 {
		raw = parsed.Results
	}

	results := make([]Result, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		u := strings.TrimSpace(item.URL)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}

		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = u
		}
		snippet := strings.TrimSpace(item.Description)
		if snippet == "" {
			snippet = strings.TrimSpace(item.Snippet)
		}
		if snippet == "" && len(item.ExtraSnippets) > 0 {
			snippet = strings.TrimSpace(item.ExtraSnippets[0])
		}

		results = append(results, Result{URL: u, Title: title, Snippet: snippet})
		if len(results) >= count {
			break
		}
	}
	c.logger.Debug("Web search finished", zap.String("query", query), zap.Int("results", len(results)))
	return results, nil
}

func trimToWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
