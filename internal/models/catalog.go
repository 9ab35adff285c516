package models

import (
	"fmt"
	"strings"
)

// Model describes one model offered for research or clarification.
type Model struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Cost        string `json:"cost"`
}

var catalog = []Model{
	{
		Name:        "gpt-4o",
		Description: "General-purpose frontier model with multimodal capabilities, suitable for a wide variety of tasks including text, vision, and audio processing",
		Cost:        "$2.50 per 1M input tokens, $10.00 per 1M output tokens",
	},
	{
		Name:        "gpt-5",
		Description: "OpenAI's flagship reasoning model with 272K input context and 128K output capacity. State-of-the-art performance in coding, math, and agentic tasks with advanced reasoning capabilities",
		Cost:        "$1.25 per 1M input tokens, $10.00 per 1M output tokens",
	},
	{
		Name:        "gpt-5-mini",
		Description: "Balanced 400B parameter model retaining 92% of full GPT-5 performance with 60% reduced computational requirements. 272K input context, supports reasoning and custom tools",
		Cost:        "$0.25 per 1M input tokens, $2.00 per 1M output tokens",
	},
	{
		Name:        "gpt-5-nano",
		Description: "Edge-optimized 50B parameter model for real-time applications with sub-100ms response times. Maintains 85% benchmark accuracy with 272K input context",
		Cost:        "$0.05 per 1M input tokens, $0.40 per 1M output tokens",
	},
	{
		Name:        "o3-deep-research-2025-06-26",
		Description: "Flagship deep research model optimized for highest quality synthesis and in-depth analysis. 200K token context, 100K max output. Ideal for complex research requiring extensive reasoning",
		Cost:        "$10.00 per 1M input tokens ($2.50 cached), $40.00 per 1M output tokens",
	},
	{
		Name:        "o4-mini-deep-research-2025-06-26",
		Description: "Lightweight deep research model optimized for speed and cost-efficiency while maintaining high intelligence. Perfect for latency-sensitive research applications",
		Cost:        "$2.00 per 1M input tokens ($0.50 cached), $8.00 per 1M output tokens",
	},
}

// All returns a copy of the catalogue in display order.
func All() []Model {
	out := make([]Model, len(catalog))
	copy(out, catalog)
	return out
}

// Names returns the catalogue model names.
func Names() []string {
	names := make([]string, len(catalog))
	for i, m := range catalog {
		names[i] = m.Name
	}
	return names
}

// Info looks a model up by exact name.
func Info(name string) (Model, error) {
	for _, m := range catalog {
		if m.Name == name {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("model '%s' not found", name)
}

// IsValid reports whether name is in the catalogue.
func IsValid(name string) bool {
	_, err := Info(name)
	return err == nil
}

// FormatList renders the catalogue as markdown for the list_models tool.
func FormatList() string {
	var b strings.Builder
	b.WriteString("## Available Deep Research Models\n\n")
	for _, m := range catalog {
		fmt.Fprintf(&b, "### %s\n", m.Name)
		fmt.Fprintf(&b, "- Description: %s\n", m.Description)
		fmt.Fprintf(&b, "- Cost: %s\n\n", m.Cost)
	}
	return b.String()
}
