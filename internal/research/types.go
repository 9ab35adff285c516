package research

import (
	"fmt"
	"time"

	"github.com/pminervini/deep-research-mcp/internal/provider"
)

// Result statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusError     = "error"
)

// Citation anchors part of the report to a source. StartChar and EndChar
// are the provider's offsets, passed through unchanged.
type Citation struct {
	Index     int    `json:"index"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
}

// Result is the structured outcome of one research call.
type Result struct {
	Status         string     `json:"status"`
	FinalReport    string     `json:"final_report,omitempty"`
	Citations      []Citation `json:"citations,omitempty"`
	SearchQueries  []string   `json:"search_queries,omitempty"`
	ReasoningSteps int        `json:"reasoning_steps,omitempty"`
	TotalSteps     int        `json:"total_steps,omitempty"`
	TaskID         string     `json:"task_id,omitempty"`
	Message        string     `json:"message,omitempty"`
	ErrorCode      string     `json:"error_code,omitempty"`
}

// Completed reports whether the result carries a report.
func (r Result) Completed() bool { return r.Status == StatusCompleted }

// Failed builds a failed result with message.
func Failed(message string) Result {
	return Result{Status: StatusFailed, Message: message}
}

// TaskStatus is a read-through view of a remote task.
type TaskStatus struct {
	TaskID      string   `json:"task_id"`
	Status      string   `json:"status"`
	CreatedAt   *float64 `json:"created_at"`
	CompletedAt *float64 `json:"completed_at"`
	Error       string   `json:"error,omitempty"`
}

// TaskFailedError is returned when the provider reports the task failed.
type TaskFailedError struct {
	TaskID   string
	Message  string
	Code     string
	Response *provider.Response
}

func (e *TaskFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("Research task failed: %s", e.TaskID)
	}
	msg := "Research task failed: " + e.Message
	if e.Code != "" {
		msg += fmt.Sprintf(" (Code: %s)", e.Code)
	}
	return msg
}

// TaskTimeoutError is returned when the task did not finish before the
// deadline. The remote task may still be running.
type TaskTimeoutError struct {
	TaskID  string
	Timeout time.Duration
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("Research task %s did not complete within %g seconds", e.TaskID, e.Timeout.Seconds())
}
