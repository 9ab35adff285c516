// Package formatting renders research and clarification outcomes as the
// markdown returned by the tool server.
package formatting

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pminervini/deep-research-mcp/internal/clarification"
	"github.com/pminervini/deep-research-mcp/internal/research"
	"github.com/pminervini/deep-research-mcp/internal/util"
)

// DefaultSystemPrompt is used when the caller gives no system instructions.
const DefaultSystemPrompt = `You are a professional researcher preparing a structured, data-driven report.
Requirements:
- Focus on data-rich insights with specific figures and statistics
- Include tables and visualizations when appropriate
- Prioritize peer-reviewed sources and authoritative data
- Use inline citations throughout
- Be analytical and avoid generalities`

// QueryAnalysis renders a triage verdict that needs no clarification.
func QueryAnalysis(query string, a clarification.Assessment) string {
	return fmt.Sprintf(`# Query Analysis

**Original Query:** %s

**Assessment:** %s

**Recommendation:** %s

You can proceed with the research using the same query.`,
		query,
		util.FirstNonEmpty(a.QueryAssessment, "Query is sufficient for research"),
		util.FirstNonEmpty(a.Reasoning, "Proceed with research directly"),
	)
}

// ClarifyingQuestions renders the questions of a newly opened session.
func ClarifyingQuestions(query string, a clarification.Assessment) string {
	numbered := make([]string, len(a.Questions))
	for i, q := range a.Questions {
		numbered[i] = fmt.Sprintf("%d. %s", i+1, q)
	}
	return fmt.Sprintf("# Clarifying Questions Needed\n\n"+
		"**Original Query:** %s\n\n"+
		"**Why clarification is helpful:** %s\n\n"+
		"**Session ID:** `%s`\n\n"+
		"**Please answer these questions to improve the research:**\n\n"+
		"%s\n\n"+
		"**Instructions:** Use the `research_with_context` tool with your answers and the session ID above to proceed with enhanced research.",
		query,
		util.FirstNonEmpty(a.Reasoning, "Additional context will improve research quality"),
		a.SessionID,
		strings.Join(numbered, "\n"),
	)
}

// Clarification picks QueryAnalysis or ClarifyingQuestions.
func Clarification(query string, a clarification.Assessment) string {
	if !a.NeedsClarification {
		return QueryAnalysis(query, a)
	}
	return ClarifyingQuestions(query, a)
}

// Report renders a completed research result.
func Report(query string, r research.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research Report: %s\n\n%s\n\n", query, r.FinalReport)
	writeMetadata(&b, r, "")
	return b.String()
}

// EnhancedReport renders a completed result produced from an enriched
// query.
func EnhancedReport(enrichedQuery string, answers int, sessionID string, r research.Result) string {
	var b strings.Builder
	b.WriteString("# Enhanced Research Report\n\n")
	b.WriteString("**Original Query Enhanced With User Context**\n\n")
	fmt.Fprintf(&b, "**Enriched Query:** %s\n\n", enrichedQuery)
	fmt.Fprintf(&b, "**User Clarifications Provided:** %d answers\n\n", answers)
	fmt.Fprintf(&b, "---\n\n%s\n\n", r.FinalReport)
	writeMetadata(&b, r, sessionID)
	return b.String()
}

func writeMetadata(b *strings.Builder, r research.Result, sessionID string) {
	b.WriteString("## Research Metadata\n")
	fmt.Fprintf(b, "- **Total research steps**: %d\n", r.TotalSteps)
	fmt.Fprintf(b, "- **Search queries executed**: %d\n", len(r.SearchQueries))
	fmt.Fprintf(b, "- **Citations found**: %d\n", len(r.Citations))
	fmt.Fprintf(b, "- **Task ID**: %s\n", r.TaskID)
	if sessionID != "" {
		fmt.Fprintf(b, "- **Clarification Session**: %s\n", sessionID)
	}
	b.WriteString("\n## Citations\n")
	for _, c := range r.Citations {
		fmt.Fprintf(b, "%d. [%s](%s)\n", c.Index, c.Title, c.URL)
	}
}

// ResearchFailed renders a failed result.
func ResearchFailed(r research.Result) string {
	return "Research failed: " + util.FirstNonEmpty(r.Message, "Unknown error")
}

// TaskStatus renders a status lookup.
func TaskStatus(s research.TaskStatus) string {
	if s.Status == research.StatusError {
		return "Error checking status: " + util.FirstNonEmpty(s.Error, "Unknown error")
	}
	out := fmt.Sprintf("Task %s status: %s", s.TaskID, s.Status)
	if s.CreatedAt != nil && *s.CreatedAt != 0 {
		out += "\nCreated at: " + timestamp(*s.CreatedAt)
	}
	if s.CompletedAt != nil && *s.CompletedAt != 0 {
		out += "\nCompleted at: " + timestamp(*s.CompletedAt)
	}
	return out
}

func timestamp(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Progress messages sent while a research call runs.
const (
	ProgressStarted   = "Research started..."
	ProgressRunning   = "Research in progress"
	ProgressCompleted = "Research completed successfully"

	ContextProgressStarted   = "Research with context started..."
	ContextProgressRunning   = "Research with context in progress"
	ContextProgressCompleted = "Contextual research completed successfully"
)

// Heartbeat renders the periodic progress message after minutes minutes.
func Heartbeat(label string, minutes int) string {
	return fmt.Sprintf("%s (%d %s)", label, minutes, util.Plural(minutes, "minute", "minutes"))
}
