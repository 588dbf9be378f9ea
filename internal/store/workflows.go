package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"docvet/internal/types"
)

const workflowColumns = `id, type, state, input_params, progress_percent,
	current_step, total_steps, error_message, metadata, created_at, updated_at,
	completed_at`

// WorkflowFilter narrows ListWorkflows. Zero-value fields are ignored;
// Limit defaults to 100.
type WorkflowFilter struct {
	State  string
	Type   string
	Limit  int
	Offset int
}

// WorkflowSelector picks workflows for bulk deletion. Fields combine with
// AND; a zero selector matches nothing.
type WorkflowSelector struct {
	IDs           []string
	State         string
	Type          string
	CreatedBefore *time.Time
}

// CreateWorkflow inserts a new workflow record.
func (c *queries) CreateWorkflow(ctx context.Context, w *types.Workflow) error {
	row, err := newWorkflowRow(w)
	if err != nil {
		return err
	}
	_, err = c.q.NamedExecContext(ctx, `
		INSERT INTO workflows (id, type, state, input_params, progress_percent,
			current_step, total_steps, error_message, metadata, created_at, updated_at,
			completed_at)
		VALUES (:id, :type, :state, :input_params, :progress_percent,
			:current_step, :total_steps, :error_message, :metadata, :created_at, :updated_at,
			:completed_at)`,
		row)
	if err != nil {
		return fmt.Errorf("failed to insert workflow %s: %w", w.ID, err)
	}
	return nil
}

// GetWorkflow loads one workflow by id.
func (c *queries) GetWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	var row workflowRow
	err := c.q.GetContext(ctx, &row,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFound("Workflow %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", id, err)
	}
	return row.toDomain()
}

// UpdateWorkflow writes the full workflow back.
func (c *queries) UpdateWorkflow(ctx context.Context, w *types.Workflow) error {
	row, err := newWorkflowRow(w)
	if err != nil {
		return err
	}
	res, err := c.q.NamedExecContext(ctx, `
		UPDATE workflows SET
			type = :type,
			state = :state,
			input_params = :input_params,
			progress_percent = :progress_percent,
			current_step = :current_step,
			total_steps = :total_steps,
			error_message = :error_message,
			metadata = :metadata,
			updated_at = :updated_at,
			completed_at = :completed_at
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("failed to update workflow %s: %w", w.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update workflow %s: %w", w.ID, err)
	}
	if affected == 0 {
		return types.NewNotFound("Workflow %s not found", w.ID)
	}
	return nil
}

// TouchWorkflow bumps a workflow's updated_at so observers can tell a slow
// worker from a dead one. Missing rows are ignored; the heartbeat may race
// a forced delete.
func (c *queries) TouchWorkflow(ctx context.Context, id string, at time.Time) error {
	_, err := c.q.ExecContext(ctx,
		`UPDATE workflows SET updated_at = ? WHERE id = ?`, types.FormatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to touch workflow %s: %w", id, err)
	}
	return nil
}

// DeleteWorkflow removes one workflow. State rules (running needs force)
// are enforced by the workflow manager, not here.
func (c *queries) DeleteWorkflow(ctx context.Context, id string) error {
	_, err := c.q.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}
	return nil
}

// ListWorkflows returns one page of workflows (newest first) plus the total
// count matching the filter.
func (c *queries) ListWorkflows(ctx context.Context, f WorkflowFilter) ([]*types.Workflow, int, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}

	where := ""
	args := []interface{}{}
	if f.State != "" {
		where += " AND state = ?"
		args = append(args, f.State)
	}
	if f.Type != "" {
		where += " AND type = ?"
		args = append(args, f.Type)
	}

	var total int
	err := c.q.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM workflows WHERE 1=1`+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count workflows: %w", err)
	}

	var rows []workflowRow
	err = c.q.SelectContext(ctx, &rows,
		`SELECT `+workflowColumns+` FROM workflows WHERE 1=1`+where+
			` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list workflows: %w", err)
	}

	workflows := make([]*types.Workflow, 0, len(rows))
	for i := range rows {
		w, err := rows[i].toDomain()
		if err != nil {
			return nil, 0, err
		}
		workflows = append(workflows, w)
	}
	return workflows, total, nil
}

// SelectWorkflows resolves a bulk-deletion selector to concrete workflows so
// the manager can apply per-item state rules before deleting.
func (c *queries) SelectWorkflows(ctx context.Context, sel WorkflowSelector) ([]*types.Workflow, error) {
	where := ""
	args := []interface{}{}
	if len(sel.IDs) > 0 {
		where += " AND id IN (?)"
		args = append(args, sel.IDs)
	}
	if sel.State != "" {
		where += " AND state = ?"
		args = append(args, sel.State)
	}
	if sel.Type != "" {
		where += " AND type = ?"
		args = append(args, sel.Type)
	}
	if sel.CreatedBefore != nil {
		where += " AND created_at < ?"
		args = append(args, types.FormatTime(*sel.CreatedBefore))
	}
	if where == "" {
		return nil, nil
	}

	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE 1=1` + where +
		` ORDER BY created_at`
	query, flat, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build workflow selector: %w", err)
	}

	var rows []workflowRow
	if err := c.q.SelectContext(ctx, &rows, query, flat...); err != nil {
		return nil, fmt.Errorf("failed to select workflows: %w", err)
	}

	workflows := make([]*types.Workflow, 0, len(rows))
	for i := range rows {
		w, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, w)
	}
	return workflows, nil
}
