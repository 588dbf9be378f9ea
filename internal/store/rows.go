package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"docvet/internal/types"
)

// Row structs mirror table columns one to one. Timestamps are stored as
// wire-format TEXT, list and map fields as JSON TEXT, so a dumped database
// reads the same as an export.

func marshalList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal list: %w", err)
	}
	return string(b), nil
}

func unmarshalList(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal list: %w", err)
	}
	return v, nil
}

func marshalMap(v map[string]any) (string, error) {
	if v == nil {
		v = map[string]any{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal map: %w", err)
	}
	return string(b), nil
}

func unmarshalMap(s string) (map[string]any, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal map: %w", err)
	}
	return v, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: types.FormatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := types.ParseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// =============================================================================
// VALIDATIONS
// =============================================================================

type validationRow struct {
	ID                string `db:"id"`
	FilePath          string `db:"file_path"`
	Status            string `db:"status"`
	Severity          string `db:"severity"`
	RulesApplied      string `db:"rules_applied"`
	ValidationTypes   string `db:"validation_types"`
	ValidationResults string `db:"validation_results"`
	Content           string `db:"content"`
	Notes             string `db:"notes"`
	CreatedAt         string `db:"created_at"`
	UpdatedAt         string `db:"updated_at"`
}

func newValidationRow(v *types.ValidationRecord) (*validationRow, error) {
	rules, err := marshalList(v.RulesApplied)
	if err != nil {
		return nil, err
	}
	vtypes, err := marshalList(v.ValidationTypes)
	if err != nil {
		return nil, err
	}
	results, err := marshalMap(v.ValidationResults)
	if err != nil {
		return nil, err
	}
	return &validationRow{
		ID:                v.ID,
		FilePath:          v.FilePath,
		Status:            string(v.Status),
		Severity:          string(v.Severity),
		RulesApplied:      rules,
		ValidationTypes:   vtypes,
		ValidationResults: results,
		Content:           v.Content,
		Notes:             v.Notes,
		CreatedAt:         types.FormatTime(v.CreatedAt),
		UpdatedAt:         types.FormatTime(v.UpdatedAt),
	}, nil
}

func (r *validationRow) toDomain() (*types.ValidationRecord, error) {
	rules, err := unmarshalList(r.RulesApplied)
	if err != nil {
		return nil, fmt.Errorf("validation %s: %w", r.ID, err)
	}
	vtypes, err := unmarshalList(r.ValidationTypes)
	if err != nil {
		return nil, fmt.Errorf("validation %s: %w", r.ID, err)
	}
	results, err := unmarshalMap(r.ValidationResults)
	if err != nil {
		return nil, fmt.Errorf("validation %s: %w", r.ID, err)
	}
	created, err := types.ParseTime(r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("validation %s: %w", r.ID, err)
	}
	updated, err := types.ParseTime(r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("validation %s: %w", r.ID, err)
	}
	return &types.ValidationRecord{
		ID:                r.ID,
		FilePath:          r.FilePath,
		Status:            types.ValidationStatus(r.Status),
		Severity:          types.Severity(r.Severity),
		RulesApplied:      rules,
		ValidationTypes:   vtypes,
		ValidationResults: results,
		Content:           r.Content,
		Notes:             r.Notes,
		CreatedAt:         created,
		UpdatedAt:         updated,
	}, nil
}

// =============================================================================
// RECOMMENDATIONS
// =============================================================================

type recommendationRow struct {
	ID              string         `db:"id"`
	ValidationID    string         `db:"validation_id"`
	Type            string         `db:"type"`
	Title           string         `db:"title"`
	Description     string         `db:"description"`
	Scope           string         `db:"scope"`
	Instruction     string         `db:"instruction"`
	Rationale       string         `db:"rationale"`
	Severity        string         `db:"severity"`
	OriginalContent string         `db:"original_content"`
	ProposedContent string         `db:"proposed_content"`
	Diff            string         `db:"diff"`
	Confidence      float64        `db:"confidence"`
	Priority        int            `db:"priority"`
	Status          string         `db:"status"`
	ReviewedBy      string         `db:"reviewed_by"`
	ReviewedAt      sql.NullString `db:"reviewed_at"`
	ReviewNotes     string         `db:"review_notes"`
	AppliedAt       sql.NullString `db:"applied_at"`
	AppliedBy       string         `db:"applied_by"`
	Metadata        string         `db:"metadata"`
	CreatedAt       string         `db:"created_at"`
	UpdatedAt       string         `db:"updated_at"`
}

func newRecommendationRow(rec *types.Recommendation) (*recommendationRow, error) {
	meta, err := marshalMap(rec.Metadata)
	if err != nil {
		return nil, err
	}
	return &recommendationRow{
		ID:              rec.ID,
		ValidationID:    rec.ValidationID,
		Type:            rec.Type,
		Title:           rec.Title,
		Description:     rec.Description,
		Scope:           rec.Scope,
		Instruction:     rec.Instruction,
		Rationale:       rec.Rationale,
		Severity:        string(rec.Severity),
		OriginalContent: rec.OriginalContent,
		ProposedContent: rec.ProposedContent,
		Diff:            rec.Diff,
		Confidence:      rec.Confidence,
		Priority:        rec.Priority,
		Status:          string(rec.Status),
		ReviewedBy:      rec.ReviewedBy,
		ReviewedAt:      nullTime(rec.ReviewedAt),
		ReviewNotes:     rec.ReviewNotes,
		AppliedAt:       nullTime(rec.AppliedAt),
		AppliedBy:       rec.AppliedBy,
		Metadata:        meta,
		CreatedAt:       types.FormatTime(rec.CreatedAt),
		UpdatedAt:       types.FormatTime(rec.UpdatedAt),
	}, nil
}

func (r *recommendationRow) toDomain() (*types.Recommendation, error) {
	meta, err := unmarshalMap(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("recommendation %s: %w", r.ID, err)
	}
	reviewedAt, err := parseNullTime(r.ReviewedAt)
	if err != nil {
		return nil, fmt.Errorf("recommendation %s: %w", r.ID, err)
	}
	appliedAt, err := parseNullTime(r.AppliedAt)
	if err != nil {
		return nil, fmt.Errorf("recommendation %s: %w", r.ID, err)
	}
	created, err := types.ParseTime(r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("recommendation %s: %w", r.ID, err)
	}
	updated, err := types.ParseTime(r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("recommendation %s: %w", r.ID, err)
	}
	return &types.Recommendation{
		ID:              r.ID,
		ValidationID:    r.ValidationID,
		Type:            r.Type,
		Title:           r.Title,
		Description:     r.Description,
		Scope:           r.Scope,
		Instruction:     r.Instruction,
		Rationale:       r.Rationale,
		Severity:        types.Severity(r.Severity),
		OriginalContent: r.OriginalContent,
		ProposedContent: r.ProposedContent,
		Diff:            r.Diff,
		Confidence:      r.Confidence,
		Priority:        r.Priority,
		Status:          types.RecommendationStatus(r.Status),
		ReviewedBy:      r.ReviewedBy,
		ReviewedAt:      reviewedAt,
		ReviewNotes:     r.ReviewNotes,
		AppliedAt:       appliedAt,
		AppliedBy:       r.AppliedBy,
		Metadata:        meta,
		CreatedAt:       created,
		UpdatedAt:       updated,
	}, nil
}

// =============================================================================
// WORKFLOWS
// =============================================================================

type workflowRow struct {
	ID              string         `db:"id"`
	Type            string         `db:"type"`
	State           string         `db:"state"`
	InputParams     string         `db:"input_params"`
	ProgressPercent float64        `db:"progress_percent"`
	CurrentStep     int            `db:"current_step"`
	TotalSteps      int            `db:"total_steps"`
	ErrorMessage    string         `db:"error_message"`
	Metadata        string         `db:"metadata"`
	CreatedAt       string         `db:"created_at"`
	UpdatedAt       string         `db:"updated_at"`
	CompletedAt     sql.NullString `db:"completed_at"`
}

func newWorkflowRow(w *types.Workflow) (*workflowRow, error) {
	params, err := marshalMap(w.InputParams)
	if err != nil {
		return nil, err
	}
	meta, err := marshalMap(w.Metadata)
	if err != nil {
		return nil, err
	}
	return &workflowRow{
		ID:              w.ID,
		Type:            string(w.Type),
		State:           string(w.State),
		InputParams:     params,
		ProgressPercent: w.ProgressPercent,
		CurrentStep:     w.CurrentStep,
		TotalSteps:      w.TotalSteps,
		ErrorMessage:    w.ErrorMessage,
		Metadata:        meta,
		CreatedAt:       types.FormatTime(w.CreatedAt),
		UpdatedAt:       types.FormatTime(w.UpdatedAt),
		CompletedAt:     nullTime(w.CompletedAt),
	}, nil
}

func (r *workflowRow) toDomain() (*types.Workflow, error) {
	params, err := unmarshalMap(r.InputParams)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", r.ID, err)
	}
	meta, err := unmarshalMap(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", r.ID, err)
	}
	completedAt, err := parseNullTime(r.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", r.ID, err)
	}
	created, err := types.ParseTime(r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", r.ID, err)
	}
	updated, err := types.ParseTime(r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", r.ID, err)
	}
	return &types.Workflow{
		ID:              r.ID,
		Type:            types.WorkflowType(r.Type),
		State:           types.WorkflowState(r.State),
		InputParams:     params,
		ProgressPercent: r.ProgressPercent,
		CurrentStep:     r.CurrentStep,
		TotalSteps:      r.TotalSteps,
		ErrorMessage:    r.ErrorMessage,
		Metadata:        meta,
		CreatedAt:       created,
		UpdatedAt:       updated,
		CompletedAt:     completedAt,
	}, nil
}

// =============================================================================
// ADMIN ENTITIES
// =============================================================================

type auditRow struct {
	ID        string `db:"id"`
	Operation string `db:"operation"`
	User      string `db:"user"`
	Status    string `db:"status"`
	Details   string `db:"details"`
	Timestamp string `db:"timestamp"`
}

func newAuditRow(e *types.AuditEntry) (*auditRow, error) {
	details, err := marshalMap(e.Details)
	if err != nil {
		return nil, err
	}
	return &auditRow{
		ID:        e.ID,
		Operation: e.Operation,
		User:      e.User,
		Status:    e.Status,
		Details:   details,
		Timestamp: types.FormatTime(e.Timestamp),
	}, nil
}

func (r *auditRow) toDomain() (*types.AuditEntry, error) {
	details, err := unmarshalMap(r.Details)
	if err != nil {
		return nil, fmt.Errorf("audit entry %s: %w", r.ID, err)
	}
	ts, err := types.ParseTime(r.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("audit entry %s: %w", r.ID, err)
	}
	return &types.AuditEntry{
		ID:        r.ID,
		Operation: r.Operation,
		User:      r.User,
		Status:    r.Status,
		Details:   details,
		Timestamp: ts,
	}, nil
}

type performanceRow struct {
	ID         string  `db:"id"`
	Operation  string  `db:"operation"`
	DurationMS float64 `db:"duration_ms"`
	Success    bool    `db:"success"`
	Timestamp  string  `db:"timestamp"`
}

func newPerformanceRow(p *types.PerformanceSample) *performanceRow {
	return &performanceRow{
		ID:         p.ID,
		Operation:  p.Operation,
		DurationMS: p.DurationMS,
		Success:    p.Success,
		Timestamp:  types.FormatTime(p.Timestamp),
	}
}

func (r *performanceRow) toDomain() (*types.PerformanceSample, error) {
	ts, err := types.ParseTime(r.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("performance sample %s: %w", r.ID, err)
	}
	return &types.PerformanceSample{
		ID:         r.ID,
		Operation:  r.Operation,
		DurationMS: r.DurationMS,
		Success:    r.Success,
		Timestamp:  ts,
	}, nil
}

type cacheRow struct {
	Key       string `db:"key"`
	Category  string `db:"category"`
	Value     string `db:"value"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func newCacheRow(e *types.CacheEntry) *cacheRow {
	return &cacheRow{
		Key:       e.Key,
		Category:  e.Category,
		Value:     e.Value,
		CreatedAt: types.FormatTime(e.CreatedAt),
		UpdatedAt: types.FormatTime(e.UpdatedAt),
	}
}

func (r *cacheRow) toDomain() (*types.CacheEntry, error) {
	created, err := types.ParseTime(r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("cache entry %s: %w", r.Key, err)
	}
	updated, err := types.ParseTime(r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("cache entry %s: %w", r.Key, err)
	}
	return &types.CacheEntry{
		Key:       r.Key,
		Category:  r.Category,
		Value:     r.Value,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

type maintenanceRow struct {
	ID         string         `db:"id"`
	Reason     string         `db:"reason"`
	EnabledBy  string         `db:"enabled_by"`
	EnabledAt  string         `db:"enabled_at"`
	DisabledAt sql.NullString `db:"disabled_at"`
}

func (r *maintenanceRow) toDomain() (*types.MaintenanceFlag, error) {
	enabledAt, err := types.ParseTime(r.EnabledAt)
	if err != nil {
		return nil, fmt.Errorf("maintenance flag %s: %w", r.ID, err)
	}
	disabledAt, err := parseNullTime(r.DisabledAt)
	if err != nil {
		return nil, fmt.Errorf("maintenance flag %s: %w", r.ID, err)
	}
	return &types.MaintenanceFlag{
		ID:         r.ID,
		Reason:     r.Reason,
		EnabledBy:  r.EnabledBy,
		EnabledAt:  enabledAt,
		DisabledAt: disabledAt,
	}, nil
}

type checkpointRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Metadata  string `db:"metadata"`
	CreatedAt string `db:"created_at"`
}

func (r *checkpointRow) toDomain() (*types.Checkpoint, error) {
	meta, err := unmarshalMap(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", r.ID, err)
	}
	created, err := types.ParseTime(r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", r.ID, err)
	}
	return &types.Checkpoint{
		ID:        r.ID,
		Name:      r.Name,
		Metadata:  meta,
		CreatedAt: created,
	}, nil
}
