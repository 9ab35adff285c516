package models

import "strings"

// DetectProvider guesses which backend family serves a model name. Names
// with a vendor prefix, as used by local OpenAI-compatible servers
// ("openai/qwen/..."), are treated as local models.
func DetectProvider(model string) string {
	ml := strings.ToLower(strings.TrimSpace(model))
	switch {
	case ml == "":
		return "unknown"
	case strings.Contains(ml, "/"):
		return "local"
	case strings.HasPrefix(ml, "gpt-"),
		strings.HasPrefix(ml, "o1"),
		strings.HasPrefix(ml, "o3"),
		strings.HasPrefix(ml, "o4"),
		strings.HasPrefix(ml, "chatgpt"):
		return "openai"
	default:
		return "unknown"
	}
}

// SupportsBackgroundResearch reports whether the hosted Responses API runs
// this model as a background deep research task.
func SupportsBackgroundResearch(model string) bool {
	return strings.Contains(strings.ToLower(model), "deep-research")
}
