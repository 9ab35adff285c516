package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Task statuses reported by the Responses API.
const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Output item types the orchestrator inspects.
const (
	ItemReasoning     = "reasoning"
	ItemWebSearchCall = "web_search_call"
	ItemMessage       = "message"
)

// ContentPart is one block of an input message.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// InputMessage is a role-tagged message in a create request.
type InputMessage struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// TextMessage builds a message with a single input_text block.
func TextMessage(role, text string) InputMessage {
	return InputMessage{Role: role, Content: []ContentPart{{Type: "input_text", Text: text}}}
}

// Container configures the code interpreter sandbox.
type Container struct {
	Type    string   `json:"type"`
	FileIDs []string `json:"file_ids"`
}

// Tool enables a hosted tool for the task.
type Tool struct {
	Type      string     `json:"type"`
	Container *Container `json:"container,omitempty"`
}

// WebSearchTool returns the hosted web search tool.
func WebSearchTool() Tool { return Tool{Type: "web_search_preview"} }

// CodeInterpreterTool returns a code interpreter with an auto container.
func CodeInterpreterTool() Tool {
	return Tool{Type: "code_interpreter", Container: &Container{Type: "auto", FileIDs: []string{}}}
}

// Reasoning controls reasoning summaries.
type Reasoning struct {
	Summary string `json:"summary"`
}

// CreateRequest is the body of POST /responses.
type CreateRequest struct {
	Model      string         `json:"model"`
	Input      []InputMessage `json:"input"`
	Tools      []Tool         `json:"tools,omitempty"`
	Reasoning  *Reasoning     `json:"reasoning,omitempty"`
	Background bool           `json:"background"`
}

// Annotation anchors a URL citation to a range of the output text. The
// offsets are passed through as the provider reports them.
type Annotation struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// OutputContent is one content block of an output item.
type OutputContent struct {
	Type        string       `json:"type"`
	Text        string       `json:"text"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Action describes what a tool call did.
type Action struct {
	Type  string `json:"type"`
	Query string `json:"query"`
}

// OutputItem is one step record of a task.
type OutputItem struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Status  string          `json:"status,omitempty"`
	Summary json.RawMessage `json:"summary,omitempty"`
	Action  *Action         `json:"action,omitempty"`
	Content []OutputContent `json:"content,omitempty"`
}

// HasSummary reports whether the item carries a summary field.
func (o OutputItem) HasSummary() bool {
	s := strings.TrimSpace(string(o.Summary))
	return s != "" && s != "null"
}

// Response is a snapshot of a research task.
type Response struct {
	ID          string          `json:"id"`
	Object      string          `json:"object,omitempty"`
	Status      string          `json:"status"`
	Model       string          `json:"model,omitempty"`
	Output      []OutputItem    `json:"output,omitempty"`
	Error       json.RawMessage `json:"error,omitempty"`
	CreatedAt   *float64        `json:"created_at,omitempty"`
	CompletedAt *float64        `json:"completed_at,omitempty"`
}

// TaskError is the decoded error payload of a failed task. The provider
// sends either an object with message and code or a bare scalar.
type TaskError struct {
	Message  string
	Code     string
	IsObject bool
}

// TaskError decodes the error payload. It returns nil when none was sent.
func (r *Response) TaskError() *TaskError {
	raw := strings.TrimSpace(string(r.Error))
	if raw == "" || raw == "null" {
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal(r.Error, &obj); err == nil {
		te := &TaskError{IsObject: true, Message: "Unknown error"}
		if m, ok := obj["message"]; ok && m != nil {
			te.Message = scalarString(m)
		}
		if c, ok := obj["code"]; ok && c != nil {
			te.Code = scalarString(c)
		}
		return te
	}

	var scalar any
	if err := json.Unmarshal(r.Error, &scalar); err == nil {
		return &TaskError{Message: scalarString(scalar)}
	}
	return &TaskError{Message: raw}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// FinalText returns the first content block text of the last output item.
func (r *Response) FinalText() string {
	if len(r.Output) == 0 {
		return ""
	}
	last := r.Output[len(r.Output)-1]
	if len(last.Content) == 0 {
		return ""
	}
	return last.Content[0].Text
}

// ChatMessage is one message of a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat/completions.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

// Temperature is a helper for the optional temperature field.
func Temperature(t float64) *float64 { return &t }

type chatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}
