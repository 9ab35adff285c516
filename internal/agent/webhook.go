package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/circuitbreaker"
	"github.com/pminervini/deep-research-mcp/internal/metrics"
	"github.com/pminervini/deep-research-mcp/internal/research"
	"github.com/pminervini/deep-research-mcp/internal/util"
)

const (
	webhookTimeout    = 30 * time.Second
	webhookPreviewLen = 500
)

// WebhookPayload is the JSON body posted to a completion callback.
type WebhookPayload struct {
	Status        string  `json:"status"`
	TaskID        string  `json:"task_id"`
	Timestamp     float64 `json:"timestamp"`
	ResultPreview string  `json:"result_preview"`
}

// Webhook delivers completion callbacks in the background. Delivery failures
// are logged and counted, never returned.
type Webhook struct {
	client  *circuitbreaker.HTTPWrapper
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewWebhook returns a notifier. A nil client uses a default http.Client.
func NewWebhook(client *http.Client, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Webhook{
		client:  circuitbreaker.NewHTTPWrapper(client, "webhook", "callback", circuitbreaker.HTTPSettings(), logger),
		timeout: webhookTimeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Notify posts a completion payload for result to url without blocking the
// caller. The delivery outlives ctx cancellation.
func (w *Webhook) Notify(ctx context.Context, url string, result research.Result) {
	payload := WebhookPayload{
		Status:        "completed",
		TaskID:        result.TaskID,
		Timestamp:     float64(w.now().UnixNano()) / 1e9,
		ResultPreview: util.PrefixRunes(result.FinalReport, webhookPreviewLen),
	}
	detached := context.WithoutCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.deliver(detached, url, payload); err != nil {
			metrics.WebhookDeliveries.WithLabelValues("error").Inc()
			w.logger.Error("Failed to send webhook notification", zap.String("url", url), zap.Error(err))
			return
		}
		metrics.WebhookDeliveries.WithLabelValues("ok").Inc()
		w.logger.Info("Webhook notification sent", zap.String("url", url), zap.String("task_id", payload.TaskID))
	}()
}

// Wait blocks until all pending deliveries finish.
func (w *Webhook) Wait() { w.wg.Wait() }

func (w *Webhook) deliver(ctx context.Context, url string, payload WebhookPayload) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("callback returned %s", resp.Status)
	}
	return nil
}
