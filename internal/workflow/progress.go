package workflow

import (
	"math"
	"time"

	"docvet/internal/types"
)

// progressPercent computes 100 * current / total rounded to one decimal.
func progressPercent(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(1000*float64(current)/float64(total)) / 10
}

// Summarize renders the compact progress view of a workflow.
func Summarize(w *types.Workflow) map[string]any {
	elapsed := elapsedSeconds(w)
	return map[string]any{
		"id":               w.ID,
		"status":           string(w.State),
		"progress_percent": w.ProgressPercent,
		"files_processed":  metadataInt(w.Metadata, "files_processed"),
		"files_total":      w.TotalSteps,
		"errors_count":     metadataInt(w.Metadata, "errors_count"),
		"duration_seconds": round1(elapsed),
		"eta_seconds":      round1(etaSeconds(w, elapsed)),
	}
}

// BuildReport renders the full workflow report; include_details adds the
// per-step metrics and error samples.
func BuildReport(w *types.Workflow, includeDetails bool) map[string]any {
	report := Summarize(w)
	report["type"] = string(w.Type)
	report["input_params"] = w.InputParams
	report["current_step"] = w.CurrentStep
	report["total_steps"] = w.TotalSteps
	report["created_at"] = types.FormatTime(w.CreatedAt)
	report["updated_at"] = types.FormatTime(w.UpdatedAt)
	if w.CompletedAt != nil {
		report["completed_at"] = types.FormatTime(*w.CompletedAt)
	}
	if w.ErrorMessage != "" {
		report["error_message"] = w.ErrorMessage
	}
	if name, ok := w.Metadata["name"]; ok {
		report["name"] = name
	}
	if desc, ok := w.Metadata["description"]; ok {
		report["description"] = desc
	}

	if includeDetails {
		details := map[string]any{}
		for _, key := range []string{
			"step_metrics", "errors", "validation_ids",
			"validations_created", "recommendations_created",
			"enhanced_count", "applied_count",
		} {
			if v, ok := w.Metadata[key]; ok {
				details[key] = v
			}
		}
		report["details"] = details
	}
	return report
}

// elapsedSeconds measures from the worker's start to completion, or to now
// for live workflows. A workflow that never started has no elapsed time.
func elapsedSeconds(w *types.Workflow) float64 {
	raw, ok := w.Metadata["started_at"].(string)
	if !ok {
		return 0
	}
	started, err := types.ParseTime(raw)
	if err != nil {
		return 0
	}
	end := time.Now().UTC()
	if w.CompletedAt != nil {
		end = *w.CompletedAt
	}
	if end.Before(started) {
		return 0
	}
	return end.Sub(started).Seconds()
}

// etaSeconds projects remaining time from the average step cost so far.
func etaSeconds(w *types.Workflow, elapsed float64) float64 {
	if w.State.IsTerminal() || w.TotalSteps <= 0 {
		return 0
	}
	current := w.CurrentStep
	remaining := w.TotalSteps - current
	if remaining <= 0 {
		return 0
	}
	if current < 1 {
		current = 1
	}
	return elapsed * float64(remaining) / float64(current)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// metadataInt reads a numeric metadata value that may have round-tripped
// through JSON as a float.
func metadataInt(md map[string]any, key string) int {
	switch v := md[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
