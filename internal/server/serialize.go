package server

import (
	"time"

	"docvet/internal/types"
)

// Wire serialization for the three primary entities. Timestamps render in
// the store's wire format so exports and API responses agree with the
// database byte for byte.

func wireTime(t time.Time) string {
	return types.FormatTime(t)
}

func wireTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return types.FormatTime(*t)
}

func validationWire(v *types.ValidationRecord) map[string]any {
	return map[string]any{
		"id":                 v.ID,
		"file_path":          v.FilePath,
		"status":             string(v.Status),
		"severity":           string(v.Severity),
		"rules_applied":      v.RulesApplied,
		"validation_types":   v.ValidationTypes,
		"validation_results": v.ValidationResults,
		"content":            v.Content,
		"notes":              v.Notes,
		"created_at":         wireTime(v.CreatedAt),
		"updated_at":         wireTime(v.UpdatedAt),
	}
}

func recommendationWire(r *types.Recommendation) map[string]any {
	return map[string]any{
		"id":               r.ID,
		"validation_id":    r.ValidationID,
		"type":             r.Type,
		"title":            r.Title,
		"description":      r.Description,
		"scope":            r.Scope,
		"instruction":      r.Instruction,
		"rationale":        r.Rationale,
		"severity":         string(r.Severity),
		"original_content": r.OriginalContent,
		"proposed_content": r.ProposedContent,
		"diff":             r.Diff,
		"confidence":       r.Confidence,
		"priority":         r.Priority,
		"status":           string(r.Status),
		"reviewed_by":      r.ReviewedBy,
		"reviewed_at":      wireTimePtr(r.ReviewedAt),
		"review_notes":     r.ReviewNotes,
		"applied_at":       wireTimePtr(r.AppliedAt),
		"applied_by":       r.AppliedBy,
		"metadata":         r.Metadata,
		"created_at":       wireTime(r.CreatedAt),
		"updated_at":       wireTime(r.UpdatedAt),
	}
}

func workflowWire(w *types.Workflow) map[string]any {
	return map[string]any{
		"id":               w.ID,
		"type":             string(w.Type),
		"state":            string(w.State),
		"input_params":     w.InputParams,
		"progress_percent": w.ProgressPercent,
		"current_step":     w.CurrentStep,
		"total_steps":      w.TotalSteps,
		"error_message":    w.ErrorMessage,
		"metadata":         w.Metadata,
		"created_at":       wireTime(w.CreatedAt),
		"updated_at":       wireTime(w.UpdatedAt),
		"completed_at":     wireTimePtr(w.CompletedAt),
	}
}

func auditWire(e *types.AuditEntry) map[string]any {
	return map[string]any{
		"id":        e.ID,
		"operation": e.Operation,
		"user":      e.User,
		"status":    e.Status,
		"details":   e.Details,
		"timestamp": wireTime(e.Timestamp),
	}
}

func checkpointWire(cp *types.Checkpoint) map[string]any {
	return map[string]any{
		"id":         cp.ID,
		"name":       cp.Name,
		"metadata":   cp.Metadata,
		"created_at": wireTime(cp.CreatedAt),
	}
}

func findingWire(f types.Finding) map[string]any {
	m := map[string]any{
		"type":     f.Type,
		"severity": string(f.Severity),
	}
	if f.Field != "" {
		m["field"] = f.Field
	}
	if f.Message != "" {
		m["message"] = f.Message
	}
	if f.ExpectedType != "" {
		m["expected_type"] = f.ExpectedType
	}
	if f.ActualType != "" {
		m["actual_type"] = f.ActualType
	}
	if f.Value != nil {
		m["value"] = f.Value
	}
	if f.ValidValues != nil {
		m["valid_values"] = f.ValidValues
	}
	if f.Links != nil {
		m["links"] = f.Links
		m["count"] = f.Count
	}
	if f.Line > 0 {
		m["line"] = f.Line
	}
	return m
}

func findingsWire(findings []types.Finding) []map[string]any {
	out := make([]map[string]any, 0, len(findings))
	for _, f := range findings {
		out = append(out, findingWire(f))
	}
	return out
}
