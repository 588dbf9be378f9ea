package server

import (
	"context"
	"fmt"

	"docvet/internal/fileio"
	"docvet/internal/store"
	"docvet/internal/types"
	"docvet/internal/workflow"
)

var validWorkflowStates = map[string]bool{
	string(types.WorkflowPending):   true,
	string(types.WorkflowRunning):   true,
	string(types.WorkflowPaused):    true,
	string(types.WorkflowCompleted): true,
	string(types.WorkflowFailed):    true,
	string(types.WorkflowCancelled): true,
}

func (s *Server) handleCreateWorkflow(ctx context.Context, params map[string]any) (any, error) {
	workflowType, err := requiredString(params, "workflow_type")
	if err != nil {
		return nil, err
	}
	inputParams := mapParam(params, "params")

	w, err := s.workflows.Create(ctx, workflowType, inputParams)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success":     true,
		"workflow_id": w.ID,
		"workflow":    workflowWire(w),
	}, nil
}

func (s *Server) handleGetWorkflowSummary(ctx context.Context, params map[string]any) (any, error) {
	id, err := requiredString(params, "workflow_id")
	if err != nil {
		return nil, err
	}
	w, err := s.workflows.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return workflow.Summarize(w), nil
}

func (s *Server) handleGetWorkflowReport(ctx context.Context, params map[string]any) (any, error) {
	id, err := requiredString(params, "workflow_id")
	if err != nil {
		return nil, err
	}
	includeDetails := boolOr(params, "include_details", false)
	w, err := s.workflows.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return workflow.BuildReport(w, includeDetails), nil
}

func (s *Server) handleListWorkflows(ctx context.Context, params map[string]any) (any, error) {
	limit := intOr(params, "limit", 100)
	offset := intOr(params, "offset", 0)
	state, _ := optionalString(params, "status")
	if state != "" && !validWorkflowStates[state] {
		return nil, types.NewInvalidParams("Invalid workflow status: %s", state)
	}
	workflowType, _ := optionalString(params, "type")
	if workflowType != "" && !types.IsValidWorkflowType(workflowType) {
		return nil, types.NewInvalidParams("Unknown workflow type: %s", workflowType)
	}

	workflows, total, err := s.workflows.List(ctx, store.WorkflowFilter{
		State:  state,
		Type:   workflowType,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(workflows))
	for _, w := range workflows {
		out = append(out, workflowWire(w))
	}
	return map[string]any{
		"workflows": out,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	}, nil
}

func (s *Server) handleControlWorkflow(ctx context.Context, params map[string]any) (any, error) {
	id, err := requiredString(params, "workflow_id")
	if err != nil {
		return nil, err
	}
	action, err := requiredString(params, "action")
	if err != nil {
		return nil, err
	}

	state, err := s.workflows.Control(ctx, id, action)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success":     true,
		"workflow_id": id,
		"action":      action,
		"new_status":  string(state),
	}, nil
}

func (s *Server) handleDeleteWorkflow(ctx context.Context, params map[string]any) (any, error) {
	id, err := requiredString(params, "workflow_id")
	if err != nil {
		return nil, err
	}
	force := boolOr(params, "force", false)
	if err := s.workflows.Delete(ctx, id, force); err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "workflow_id": id}, nil
}

func (s *Server) handleBulkDeleteWorkflows(ctx context.Context, params map[string]any) (any, error) {
	ids, err := idList(params, "workflow_ids")
	if err != nil {
		return nil, err
	}
	state, _ := optionalString(params, "status")
	if state != "" && !validWorkflowStates[state] {
		return nil, types.NewInvalidParams("Invalid workflow status: %s", state)
	}
	workflowType, _ := optionalString(params, "type")
	if workflowType != "" && !types.IsValidWorkflowType(workflowType) {
		return nil, types.NewInvalidParams("Unknown workflow type: %s", workflowType)
	}
	force := boolOr(params, "force", false)

	sel := store.WorkflowSelector{
		IDs:   ids,
		State: state,
		Type:  workflowType,
	}
	if raw, ok := optionalString(params, "created_before"); ok && raw != "" {
		t, err := types.ParseTime(raw)
		if err != nil {
			return nil, types.NewInvalidParams("Invalid created_before timestamp: %s", raw)
		}
		sel.CreatedBefore = &t
	}

	deleted, skipped, err := s.workflows.BulkDelete(ctx, sel, force)
	if err != nil {
		return nil, err
	}

	skippedOut := make([]map[string]any, 0, len(skipped))
	for _, sk := range skipped {
		skippedOut = append(skippedOut, map[string]any{"id": sk.ID, "reason": sk.Reason})
	}
	return map[string]any{
		"success":       true,
		"deleted_count": len(deleted),
		"deleted":       deleted,
		"skipped":       skippedOut,
	}, nil
}

// executor adapts the server's handlers to the workflow engine's per-item
// interface. Directory workflows persist records only for files with
// findings, matching folder validation.
type executor struct {
	s *Server
}

func (e *executor) ListMarkdownFiles(root string, recursive bool) ([]string, error) {
	if !fileio.DirExists(root) {
		return nil, types.NewNotFound("Folder not found: %s", root)
	}
	return fileio.WalkMarkdown(root, recursive)
}

func (e *executor) ValidateFile(ctx context.Context, path string) (string, error) {
	res, err := e.s.pipeline.RunFile(path, "", nil)
	if err != nil {
		return "", err
	}
	if len(res.AllFindings) == 0 {
		return "", nil
	}
	record := res.BuildRecord()
	if err := e.s.store.CreateValidation(ctx, record); err != nil {
		return "", err
	}
	return record.ID, nil
}

func (e *executor) EnhanceValidation(ctx context.Context, validationID string) error {
	return e.s.enhanceOne(ctx, validationID)
}

func (e *executor) ApplyRecommendation(ctx context.Context, recommendationID string) error {
	rec, err := e.s.store.GetRecommendation(ctx, recommendationID)
	if err != nil {
		return err
	}
	if rec.Status != types.RecApproved {
		return fmt.Errorf("Recommendation %s is not approved (status: %s)", recommendationID, rec.Status)
	}

	res, err := e.s.handleApplyRecommendations(ctx, map[string]any{
		"validation_id":      rec.ValidationID,
		"recommendation_ids": []string{recommendationID},
	})
	if err != nil {
		return err
	}
	out := res.(map[string]any)
	if applied, _ := out["applied_count"].(int); applied == 0 {
		if errs, _ := out["errors"].([]string); len(errs) > 0 {
			return fmt.Errorf("%s", errs[0])
		}
		return fmt.Errorf("Recommendation %s was not applied", recommendationID)
	}
	return nil
}

func (e *executor) GenerateRecommendations(ctx context.Context, validationID string) (int, error) {
	record, err := e.s.store.GetValidation(ctx, validationID)
	if err != nil {
		return 0, err
	}
	recs, err := e.s.generateForValidation(ctx, record, 0.7, nil)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}
