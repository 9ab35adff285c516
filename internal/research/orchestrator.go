package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/metrics"
	"github.com/pminervini/deep-research-mcp/internal/provider"
	"github.com/pminervini/deep-research-mcp/internal/tracing"
)

// ResponsesAPI is the slice of the provider the orchestrator drives.
type ResponsesAPI interface {
	CreateResponse(ctx context.Context, req provider.CreateRequest) (*provider.Response, error)
	RetrieveResponse(ctx context.Context, id string) (*provider.Response, error)
	CancelResponse(ctx context.Context, id string) error
}

// Options tunes submission and polling. Zero values select defaults.
type Options struct {
	Model            string
	Timeout          time.Duration // wall-clock limit for polling
	PollInterval     time.Duration
	PollErrorBackoff time.Duration
	SubmitAttempts   int
	SubmitBaseDelay  time.Duration
	SubmitMaxDelay   time.Duration
	CancelTimeout    time.Duration
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		Timeout:          1800 * time.Second,
		PollInterval:     30 * time.Second,
		PollErrorBackoff: 5 * time.Second,
		SubmitAttempts:   3,
		SubmitBaseDelay:  4 * time.Second,
		SubmitMaxDelay:   10 * time.Second,
		CancelTimeout:    30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.PollErrorBackoff <= 0 {
		o.PollErrorBackoff = d.PollErrorBackoff
	}
	if o.SubmitAttempts <= 0 {
		o.SubmitAttempts = d.SubmitAttempts
	}
	if o.SubmitBaseDelay <= 0 {
		o.SubmitBaseDelay = d.SubmitBaseDelay
	}
	if o.SubmitMaxDelay <= 0 {
		o.SubmitMaxDelay = d.SubmitMaxDelay
	}
	if o.CancelTimeout <= 0 {
		o.CancelTimeout = d.CancelTimeout
	}
	return o
}

// Orchestrator drives one background task per call from submission to a
// terminal state. It holds no per-task state and is safe for concurrent use.
type Orchestrator struct {
	api    ResponsesAPI
	opts   Options
	logger *zap.Logger
}

// New returns an Orchestrator over api.
func New(api ResponsesAPI, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{api: api, opts: opts.withDefaults(), logger: logger}
}

// Options returns the effective settings.
func (o *Orchestrator) Options() Options { return o.opts }

// Submit starts a background task, retrying any error with exponential
// backoff. The last error is returned once attempts are exhausted.
func (o *Orchestrator) Submit(ctx context.Context, messages []provider.InputMessage, tools []provider.Tool) (*provider.Response, error) {
	ctx, span := tracing.StartSpan(ctx, "research.submit", "model", o.opts.Model)
	defer span.End()

	req := provider.CreateRequest{
		Model:      o.opts.Model,
		Input:      messages,
		Tools:      tools,
		Reasoning:  &provider.Reasoning{Summary: "auto"},
		Background: true,
	}

	var resp *provider.Response
	operation := func() error {
		r, err := o.api.CreateResponse(ctx, req)
		if err != nil {
			return err
		}
		if r.ID == "" {
			return errors.New("provider returned a task without an id")
		}
		resp = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		metrics.TaskSubmitRetries.Inc()
		o.logger.Error("Failed to create research task",
			zap.Error(err),
			zap.Duration("retry_in", wait),
		)
	}

	if err := backoff.RetryNotify(operation, o.submitBackOff(ctx), notify); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error("Giving up on research task submission", zap.Error(err), zap.Int("attempts", o.opts.SubmitAttempts))
		return nil, err
	}

	span.SetAttributes(attribute.String("task_id", resp.ID))
	o.logger.Info("Research task started", zap.String("task_id", resp.ID), zap.String("model", o.opts.Model))
	return resp, nil
}

func (o *Orchestrator) submitBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.opts.SubmitBaseDelay
	b.Multiplier = 2
	b.MaxInterval = o.opts.SubmitMaxDelay
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.opts.SubmitAttempts-1)), ctx)
}

// WaitForCompletion polls taskID until it completes, fails or the timeout
// passes. Poll errors are logged and retried inside the same deadline. On
// timeout the task is cancelled once, best effort, and a *TaskTimeoutError
// is returned. A failed task yields a *TaskFailedError.
func (o *Orchestrator) WaitForCompletion(ctx context.Context, taskID string) (*provider.Response, error) {
	ctx, span := tracing.StartSpan(ctx, "research.wait", "task_id", taskID)
	defer span.End()

	start := time.Now()
	deadline := start.Add(o.opts.Timeout)

	for time.Now().Before(deadline) {
		pctx, cancelPoll := context.WithDeadline(ctx, deadline)
		resp, err := o.api.RetrieveResponse(pctx, taskID)
		cancelPoll()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.TaskPolls.WithLabelValues("error").Inc()
			o.logger.Error("Error polling research task", zap.String("task_id", taskID), zap.Error(err))
			if err := sleepUntil(ctx, o.opts.PollErrorBackoff, deadline); err != nil {
				return nil, err
			}
			continue
		}
		metrics.TaskPolls.WithLabelValues(resp.Status).Inc()

		switch resp.Status {
		case provider.StatusCompleted:
			o.logger.Info("Research completed",
				zap.String("task_id", taskID),
				zap.Duration("elapsed", time.Since(start)),
			)
			return resp, nil
		case provider.StatusFailed:
			failure := taskFailure(taskID, resp)
			span.SetStatus(codes.Error, failure.Error())
			o.logger.Warn("Research task failed", zap.String("task_id", taskID), zap.String("message", failure.Message), zap.String("code", failure.Code))
			return nil, failure
		case provider.StatusCancelled:
			failure := &TaskFailedError{TaskID: taskID, Message: "Task was cancelled", Code: provider.StatusCancelled, Response: resp}
			span.SetStatus(codes.Error, failure.Error())
			return nil, failure
		}

		o.logger.Debug("Research task pending", zap.String("task_id", taskID), zap.String("status", resp.Status))
		if err := sleepUntil(ctx, o.opts.PollInterval, deadline); err != nil {
			return nil, err
		}
	}

	o.logger.Warn("Research task timed out, attempting cancellation", zap.String("task_id", taskID))
	o.cancel(ctx, taskID)

	timeoutErr := &TaskTimeoutError{TaskID: taskID, Timeout: o.opts.Timeout}
	span.SetStatus(codes.Error, timeoutErr.Error())
	return nil, timeoutErr
}

func (o *Orchestrator) cancel(ctx context.Context, taskID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.CancelTimeout)
	defer cancel()
	if err := o.api.CancelResponse(cctx, taskID); err != nil {
		metrics.TaskCancellations.WithLabelValues("error").Inc()
		o.logger.Debug("Cancellation failed", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	metrics.TaskCancellations.WithLabelValues("ok").Inc()
}

func taskFailure(taskID string, resp *provider.Response) *TaskFailedError {
	failure := &TaskFailedError{TaskID: taskID, Response: resp}
	if te := resp.TaskError(); te != nil {
		failure.Message = te.Message
		failure.Code = te.Code
	}
	return failure
}

// sleepUntil waits d, cut short at deadline, or returns ctx's error.
func sleepUntil(ctx context.Context, d time.Duration, deadline time.Time) error {
	if remaining := time.Until(deadline); remaining < d {
		d = remaining
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GetTaskStatus reads the task's status. Errors are reported in the
// returned record rather than returned.
func (o *Orchestrator) GetTaskStatus(ctx context.Context, taskID string) TaskStatus {
	resp, err := o.api.RetrieveResponse(ctx, taskID)
	if err != nil {
		o.logger.Error("Error checking task status", zap.String("task_id", taskID), zap.Error(err))
		return TaskStatus{TaskID: taskID, Status: StatusError, Error: err.Error()}
	}
	return TaskStatus{
		TaskID:      taskID,
		Status:      resp.Status,
		CreatedAt:   resp.CreatedAt,
		CompletedAt: resp.CompletedAt,
	}
}

// Run submits, waits and extracts. Failures are translated into results so
// callers get a single shape back.
func (o *Orchestrator) Run(ctx context.Context, messages []provider.InputMessage, tools []provider.Tool) Result {
	resp, err := o.Submit(ctx, messages, tools)
	if err != nil {
		return Failed(fmt.Sprintf("Failed to submit research task: %v", err))
	}

	final, err := o.WaitForCompletion(ctx, resp.ID)
	if err != nil {
		var failed *TaskFailedError
		if errors.As(err, &failed) && failed.Response != nil && failed.Response.Status == provider.StatusFailed {
			return ExtractResults(failed.Response)
		}
		result := Failed(err.Error())
		result.TaskID = resp.ID
		return result
	}
	return ExtractResults(final)
}
