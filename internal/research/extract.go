package research

import (
	"fmt"

	"github.com/pminervini/deep-research-mcp/internal/metrics"
	"github.com/pminervini/deep-research-mcp/internal/provider"
)

// ExtractResults turns a terminal task snapshot into a Result.
//
// A failed task keeps the provider's message and code. A task with no
// output is an error, not a failure. Otherwise the report is the first
// content block of the last output item, and its annotations become
// citations numbered from 1 in provider order.
func ExtractResults(resp *provider.Response) Result {
	if resp.Status == provider.StatusFailed {
		te := resp.TaskError()
		if te == nil {
			return Result{Status: StatusFailed, Message: fmt.Sprintf("Task failed: %s", resp.ID), TaskID: resp.ID}
		}
		return Result{Status: StatusFailed, Message: te.Message, ErrorCode: te.Code, TaskID: resp.ID}
	}

	if len(resp.Output) == 0 {
		return Result{Status: StatusError, Message: "No output received", TaskID: resp.ID}
	}

	final := resp.Output[len(resp.Output)-1]
	result := Result{
		Status:        StatusCompleted,
		Citations:     []Citation{},
		SearchQueries: []string{},
		TotalSteps:    len(resp.Output),
		TaskID:        resp.ID,
	}

	if len(final.Content) > 0 {
		block := final.Content[0]
		result.FinalReport = block.Text
		for i, a := range block.Annotations {
			result.Citations = append(result.Citations, Citation{
				Index:     i + 1,
				Title:     a.Title,
				URL:       a.URL,
				StartChar: a.StartIndex,
				EndChar:   a.EndIndex,
			})
		}
	}

	for _, item := range resp.Output {
		switch item.Type {
		case provider.ItemReasoning:
			if item.HasSummary() {
				result.ReasoningSteps++
			}
		case provider.ItemWebSearchCall:
			if item.Action != nil {
				result.SearchQueries = append(result.SearchQueries, item.Action.Query)
			}
		}
	}

	metrics.Citations.Observe(float64(len(result.Citations)))
	return result
}
