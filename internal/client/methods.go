package client

import "context"

// ValidateOptions narrows a validation run. Zero fields fall back to the
// server defaults (family detection, every validator).
type ValidateOptions struct {
	Family          string
	ValidationTypes []string
}

func (o *ValidateOptions) apply(params map[string]any) {
	if o == nil {
		return
	}
	if o.Family != "" {
		params["family"] = o.Family
	}
	if len(o.ValidationTypes) > 0 {
		params["validation_types"] = o.ValidationTypes
	}
}

// ListQuery filters and pages the list surfaces. Zero fields are omitted so
// server defaults apply.
type ListQuery struct {
	Status   string
	Type     string
	FilePath string
	Limit    int
	Offset   int
}

func (q *ListQuery) params() map[string]any {
	params := map[string]any{}
	if q == nil {
		return params
	}
	if q.Status != "" {
		params["status"] = q.Status
	}
	if q.Type != "" {
		params["type"] = q.Type
	}
	if q.FilePath != "" {
		params["file_path"] = q.FilePath
	}
	if q.Limit > 0 {
		params["limit"] = q.Limit
	}
	if q.Offset > 0 {
		params["offset"] = q.Offset
	}
	return params
}

func (c *Client) ValidateFolder(ctx context.Context, folderPath string, recursive bool) (map[string]any, error) {
	return c.Call(ctx, "validate_folder", map[string]any{
		"folder_path": folderPath,
		"recursive":   recursive,
	})
}

func (c *Client) ValidateFile(ctx context.Context, filePath string, opts *ValidateOptions) (map[string]any, error) {
	params := map[string]any{"file_path": filePath}
	opts.apply(params)
	return c.Call(ctx, "validate_file", params)
}

// ValidateContent validates raw markdown. virtualPath labels the record;
// pass "" for the server default.
func (c *Client) ValidateContent(ctx context.Context, content, virtualPath string, opts *ValidateOptions) (map[string]any, error) {
	params := map[string]any{"content": content}
	if virtualPath != "" {
		params["file_path"] = virtualPath
	}
	opts.apply(params)
	return c.Call(ctx, "validate_content", params)
}

func (c *Client) GetValidation(ctx context.Context, id string) (map[string]any, error) {
	return c.Call(ctx, "get_validation", map[string]any{"id": id})
}

func (c *Client) ListValidations(ctx context.Context, q *ListQuery) (map[string]any, error) {
	return c.Call(ctx, "list_validations", q.params())
}

// UpdateValidation changes status and/or appends a note; pass "" to leave
// either untouched.
func (c *Client) UpdateValidation(ctx context.Context, id, status, notes string) (map[string]any, error) {
	params := map[string]any{"id": id}
	if status != "" {
		params["status"] = status
	}
	if notes != "" {
		params["notes"] = notes
	}
	return c.Call(ctx, "update_validation", params)
}

func (c *Client) DeleteValidation(ctx context.Context, id string) (map[string]any, error) {
	return c.Call(ctx, "delete_validation", map[string]any{"id": id})
}

func (c *Client) Revalidate(ctx context.Context, id string) (map[string]any, error) {
	return c.Call(ctx, "revalidate", map[string]any{"id": id})
}

func (c *Client) Approve(ctx context.Context, ids ...string) (map[string]any, error) {
	return c.Call(ctx, "approve", map[string]any{"ids": ids})
}

func (c *Client) Reject(ctx context.Context, reason string, ids ...string) (map[string]any, error) {
	params := map[string]any{"ids": ids}
	if reason != "" {
		params["reason"] = reason
	}
	return c.Call(ctx, "reject", params)
}

func (c *Client) BulkApprove(ctx context.Context, ids []string, batchSize int) (map[string]any, error) {
	params := map[string]any{"ids": ids}
	if batchSize > 0 {
		params["batch_size"] = batchSize
	}
	return c.Call(ctx, "bulk_approve", params)
}

func (c *Client) BulkReject(ctx context.Context, ids []string, reason string, batchSize int) (map[string]any, error) {
	params := map[string]any{"ids": ids}
	if reason != "" {
		params["reason"] = reason
	}
	if batchSize > 0 {
		params["batch_size"] = batchSize
	}
	return c.Call(ctx, "bulk_reject", params)
}

// RecommendOptions tunes generation. Threshold 0 means the server default;
// Types limits generation to the named recommendation types.
type RecommendOptions struct {
	Threshold float64
	Types     []string
}

func (c *Client) GenerateRecommendations(ctx context.Context, validationID string, opts *RecommendOptions) (map[string]any, error) {
	params := map[string]any{"validation_id": validationID}
	if opts != nil {
		if opts.Threshold > 0 {
			params["threshold"] = opts.Threshold
		}
		if len(opts.Types) > 0 {
			params["types"] = opts.Types
		}
	}
	return c.Call(ctx, "generate_recommendations", params)
}

func (c *Client) RebuildRecommendations(ctx context.Context, validationID string, threshold float64) (map[string]any, error) {
	params := map[string]any{"validation_id": validationID}
	if threshold > 0 {
		params["threshold"] = threshold
	}
	return c.Call(ctx, "rebuild_recommendations", params)
}

func (c *Client) GetRecommendations(ctx context.Context, validationID, status, recType string) (map[string]any, error) {
	params := map[string]any{"validation_id": validationID}
	if status != "" {
		params["status"] = status
	}
	if recType != "" {
		params["type"] = recType
	}
	return c.Call(ctx, "get_recommendations", params)
}

func (c *Client) ReviewRecommendation(ctx context.Context, recommendationID, action, reviewer, notes string) (map[string]any, error) {
	params := map[string]any{
		"recommendation_id": recommendationID,
		"action":            action,
	}
	if reviewer != "" {
		params["reviewed_by"] = reviewer
	}
	if notes != "" {
		params["notes"] = notes
	}
	return c.Call(ctx, "review_recommendation", params)
}

func (c *Client) BulkReviewRecommendations(ctx context.Context, ids []string, action, reviewer, notes string) (map[string]any, error) {
	params := map[string]any{
		"recommendation_ids": ids,
		"action":             action,
	}
	if reviewer != "" {
		params["reviewed_by"] = reviewer
	}
	if notes != "" {
		params["notes"] = notes
	}
	return c.Call(ctx, "bulk_review_recommendations", params)
}

// ApplyOptions narrows an apply run. An empty RecommendationIDs applies
// every approved recommendation; SkipBackup suppresses the pre-apply copy.
type ApplyOptions struct {
	RecommendationIDs []string
	DryRun            bool
	SkipBackup        bool
}

func (c *Client) ApplyRecommendations(ctx context.Context, validationID string, opts *ApplyOptions) (map[string]any, error) {
	params := map[string]any{"validation_id": validationID}
	if opts != nil {
		if len(opts.RecommendationIDs) > 0 {
			params["recommendation_ids"] = opts.RecommendationIDs
		}
		if opts.DryRun {
			params["dry_run"] = true
		}
		if opts.SkipBackup {
			params["create_backup"] = false
		}
	}
	return c.Call(ctx, "apply_recommendations", params)
}

func (c *Client) DeleteRecommendation(ctx context.Context, id string) (map[string]any, error) {
	return c.Call(ctx, "delete_recommendation", map[string]any{"id": id})
}

func (c *Client) MarkRecommendationsApplied(ctx context.Context, ids []string, appliedBy string) (map[string]any, error) {
	params := map[string]any{"ids": ids}
	if appliedBy != "" {
		params["applied_by"] = appliedBy
	}
	return c.Call(ctx, "mark_recommendations_applied", params)
}

func (c *Client) Enhance(ctx context.Context, ids ...string) (map[string]any, error) {
	return c.Call(ctx, "enhance", map[string]any{"ids": ids})
}

func (c *Client) EnhancePreview(ctx context.Context, id string) (map[string]any, error) {
	return c.Call(ctx, "enhance_preview", map[string]any{"id": id})
}

func (c *Client) EnhanceBatch(ctx context.Context, ids []string, batchSize int) (map[string]any, error) {
	params := map[string]any{"ids": ids}
	if batchSize > 0 {
		params["batch_size"] = batchSize
	}
	return c.Call(ctx, "enhance_batch", params)
}

func (c *Client) EnhanceAutoApply(ctx context.Context, id string, previewFirst bool) (map[string]any, error) {
	return c.Call(ctx, "enhance_auto_apply", map[string]any{
		"id":            id,
		"preview_first": previewFirst,
	})
}

// GetEnhancementComparison fetches the stored before/after pair. format is
// "unified" or "side_by_side"; "" uses the server default.
func (c *Client) GetEnhancementComparison(ctx context.Context, id, format string) (map[string]any, error) {
	params := map[string]any{"id": id}
	if format != "" {
		params["format"] = format
	}
	return c.Call(ctx, "get_enhancement_comparison", params)
}

func (c *Client) CreateWorkflow(ctx context.Context, workflowType string, workflowParams map[string]any) (map[string]any, error) {
	params := map[string]any{"workflow_type": workflowType}
	if len(workflowParams) > 0 {
		params["params"] = workflowParams
	}
	return c.Call(ctx, "create_workflow", params)
}

func (c *Client) GetWorkflowSummary(ctx context.Context, workflowID string) (map[string]any, error) {
	return c.Call(ctx, "get_workflow_summary", map[string]any{"workflow_id": workflowID})
}

func (c *Client) GetWorkflowReport(ctx context.Context, workflowID string, includeDetails bool) (map[string]any, error) {
	return c.Call(ctx, "get_workflow_report", map[string]any{
		"workflow_id":     workflowID,
		"include_details": includeDetails,
	})
}

func (c *Client) ListWorkflows(ctx context.Context, q *ListQuery) (map[string]any, error) {
	return c.Call(ctx, "list_workflows", q.params())
}

func (c *Client) ControlWorkflow(ctx context.Context, workflowID, action string) (map[string]any, error) {
	return c.Call(ctx, "control_workflow", map[string]any{
		"workflow_id": workflowID,
		"action":      action,
	})
}

func (c *Client) DeleteWorkflow(ctx context.Context, workflowID string, force bool) (map[string]any, error) {
	params := map[string]any{"workflow_id": workflowID}
	if force {
		params["force"] = true
	}
	return c.Call(ctx, "delete_workflow", params)
}

// WorkflowSelector picks workflows for bulk deletion by explicit ids and/or
// status, type, and age filters.
type WorkflowSelector struct {
	IDs           []string
	Status        string
	Type          string
	CreatedBefore string
	Force         bool
}

func (c *Client) BulkDeleteWorkflows(ctx context.Context, sel *WorkflowSelector) (map[string]any, error) {
	params := map[string]any{}
	if sel != nil {
		if len(sel.IDs) > 0 {
			params["workflow_ids"] = sel.IDs
		}
		if sel.Status != "" {
			params["status"] = sel.Status
		}
		if sel.Type != "" {
			params["type"] = sel.Type
		}
		if sel.CreatedBefore != "" {
			params["created_before"] = sel.CreatedBefore
		}
		if sel.Force {
			params["force"] = true
		}
	}
	return c.Call(ctx, "bulk_delete_workflows", params)
}

func (c *Client) GetSystemStatus(ctx context.Context) (map[string]any, error) {
	return c.Call(ctx, "get_system_status", nil)
}

func (c *Client) GetStats(ctx context.Context) (map[string]any, error) {
	return c.Call(ctx, "get_stats", nil)
}

// ClearCache invalidates the named cache categories, or every cache when
// none are given.
func (c *Client) ClearCache(ctx context.Context, cacheTypes ...string) (map[string]any, error) {
	params := map[string]any{}
	if len(cacheTypes) > 0 {
		params["cache_types"] = cacheTypes
	}
	return c.Call(ctx, "clear_cache", params)
}

func (c *Client) GetCacheStats(ctx context.Context) (map[string]any, error) {
	return c.Call(ctx, "get_cache_stats", nil)
}

func (c *Client) CleanupCache(ctx context.Context, maxAgeHours float64) (map[string]any, error) {
	params := map[string]any{}
	if maxAgeHours > 0 {
		params["max_age_hours"] = maxAgeHours
	}
	return c.Call(ctx, "cleanup_cache", params)
}

func (c *Client) RebuildCache(ctx context.Context) (map[string]any, error) {
	return c.Call(ctx, "rebuild_cache", nil)
}

func (c *Client) ReloadAgent(ctx context.Context, agentID string) (map[string]any, error) {
	return c.Call(ctx, "reload_agent", map[string]any{"agent_id": agentID})
}

func (c *Client) RunGC(ctx context.Context) (map[string]any, error) {
	return c.Call(ctx, "run_gc", nil)
}

func (c *Client) EnableMaintenanceMode(ctx context.Context, reason, enabledBy string) (map[string]any, error) {
	params := map[string]any{}
	if reason != "" {
		params["reason"] = reason
	}
	if enabledBy != "" {
		params["enabled_by"] = enabledBy
	}
	return c.Call(ctx, "enable_maintenance_mode", params)
}

func (c *Client) DisableMaintenanceMode(ctx context.Context) (map[string]any, error) {
	return c.Call(ctx, "disable_maintenance_mode", nil)
}

func (c *Client) CreateCheckpoint(ctx context.Context, name string, metadata map[string]any) (map[string]any, error) {
	params := map[string]any{}
	if name != "" {
		params["name"] = name
	}
	if len(metadata) > 0 {
		params["metadata"] = metadata
	}
	return c.Call(ctx, "create_checkpoint", params)
}

func (c *Client) ListCheckpoints(ctx context.Context, limit int) (map[string]any, error) {
	params := map[string]any{}
	if limit > 0 {
		params["limit"] = limit
	}
	return c.Call(ctx, "list_checkpoints", params)
}

// AuditQuery filters the audit log. Dates are RFC 3339 strings; zero fields
// are omitted.
type AuditQuery struct {
	Operation string
	User      string
	Status    string
	StartDate string
	EndDate   string
	Limit     int
	Offset    int
}

func (c *Client) GetAuditLog(ctx context.Context, q *AuditQuery) (map[string]any, error) {
	params := map[string]any{}
	if q != nil {
		if q.Operation != "" {
			params["operation"] = q.Operation
		}
		if q.User != "" {
			params["user"] = q.User
		}
		if q.Status != "" {
			params["status"] = q.Status
		}
		if q.StartDate != "" {
			params["start_date"] = q.StartDate
		}
		if q.EndDate != "" {
			params["end_date"] = q.EndDate
		}
		if q.Limit > 0 {
			params["limit"] = q.Limit
		}
		if q.Offset > 0 {
			params["offset"] = q.Offset
		}
	}
	return c.Call(ctx, "get_audit_log", params)
}

func (c *Client) GetPerformanceReport(ctx context.Context, timeRange, operation string) (map[string]any, error) {
	params := map[string]any{}
	if timeRange != "" {
		params["time_range"] = timeRange
	}
	if operation != "" {
		params["operation"] = operation
	}
	return c.Call(ctx, "get_performance_report", params)
}

func (c *Client) GetHealthReport(ctx context.Context) (map[string]any, error) {
	return c.Call(ctx, "get_health_report", nil)
}

func (c *Client) GetValidationHistory(ctx context.Context, filePath string, limit int) (map[string]any, error) {
	params := map[string]any{"file_path": filePath}
	if limit > 0 {
		params["limit"] = limit
	}
	return c.Call(ctx, "get_validation_history", params)
}

func (c *Client) GetAvailableValidators(ctx context.Context, validatorType string) (map[string]any, error) {
	params := map[string]any{}
	if validatorType != "" {
		params["validator_type"] = validatorType
	}
	return c.Call(ctx, "get_available_validators", params)
}

func (c *Client) ExportValidation(ctx context.Context, id string, includeRecommendations bool) (map[string]any, error) {
	return c.Call(ctx, "export_validation", map[string]any{
		"id":                      id,
		"include_recommendations": includeRecommendations,
	})
}

func (c *Client) ExportRecommendations(ctx context.Context, validationID string) (map[string]any, error) {
	return c.Call(ctx, "export_recommendations", map[string]any{"validation_id": validationID})
}

func (c *Client) ExportWorkflow(ctx context.Context, workflowID string, includeValidations bool) (map[string]any, error) {
	return c.Call(ctx, "export_workflow", map[string]any{
		"id":                  workflowID,
		"include_validations": includeValidations,
	})
}
