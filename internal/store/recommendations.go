package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docvet/internal/types"
)

const recommendationColumns = `id, validation_id, type, title, description, scope,
	instruction, rationale, severity, original_content, proposed_content, diff,
	confidence, priority, status, reviewed_by, reviewed_at, review_notes,
	applied_at, applied_by, metadata, created_at, updated_at`

// RecommendationFilter narrows ListRecommendations. Zero-value fields are
// ignored.
type RecommendationFilter struct {
	ValidationID string
	Status       string
	Type         string
}

// CreateRecommendation inserts a new recommendation. The referenced
// validation must exist; the foreign key rejects orphans.
func (c *queries) CreateRecommendation(ctx context.Context, rec *types.Recommendation) error {
	row, err := newRecommendationRow(rec)
	if err != nil {
		return err
	}
	_, err = c.q.NamedExecContext(ctx, `
		INSERT INTO recommendations (id, validation_id, type, title, description, scope,
			instruction, rationale, severity, original_content, proposed_content, diff,
			confidence, priority, status, reviewed_by, reviewed_at, review_notes,
			applied_at, applied_by, metadata, created_at, updated_at)
		VALUES (:id, :validation_id, :type, :title, :description, :scope,
			:instruction, :rationale, :severity, :original_content, :proposed_content, :diff,
			:confidence, :priority, :status, :reviewed_by, :reviewed_at, :review_notes,
			:applied_at, :applied_by, :metadata, :created_at, :updated_at)`,
		row)
	if err != nil {
		return fmt.Errorf("failed to insert recommendation %s: %w", rec.ID, err)
	}
	return nil
}

// GetRecommendation loads one recommendation by id.
func (c *queries) GetRecommendation(ctx context.Context, id string) (*types.Recommendation, error) {
	var row recommendationRow
	err := c.q.GetContext(ctx, &row,
		`SELECT `+recommendationColumns+` FROM recommendations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFound("Recommendation %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load recommendation %s: %w", id, err)
	}
	return row.toDomain()
}

// UpdateRecommendation writes the full recommendation back.
func (c *queries) UpdateRecommendation(ctx context.Context, rec *types.Recommendation) error {
	row, err := newRecommendationRow(rec)
	if err != nil {
		return err
	}
	res, err := c.q.NamedExecContext(ctx, `
		UPDATE recommendations SET
			validation_id = :validation_id,
			type = :type,
			title = :title,
			description = :description,
			scope = :scope,
			instruction = :instruction,
			rationale = :rationale,
			severity = :severity,
			original_content = :original_content,
			proposed_content = :proposed_content,
			diff = :diff,
			confidence = :confidence,
			priority = :priority,
			status = :status,
			reviewed_by = :reviewed_by,
			reviewed_at = :reviewed_at,
			review_notes = :review_notes,
			applied_at = :applied_at,
			applied_by = :applied_by,
			metadata = :metadata,
			updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("failed to update recommendation %s: %w", rec.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update recommendation %s: %w", rec.ID, err)
	}
	if affected == 0 {
		return types.NewNotFound("Recommendation %s not found", rec.ID)
	}
	return nil
}

// DeleteRecommendation removes one recommendation. Absent ids are a no-op.
func (c *queries) DeleteRecommendation(ctx context.Context, id string) error {
	_, err := c.q.ExecContext(ctx, `DELETE FROM recommendations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete recommendation %s: %w", id, err)
	}
	return nil
}

// DeleteRecommendationsByValidation removes every recommendation attached
// to a validation and reports how many went away.
func (c *queries) DeleteRecommendationsByValidation(ctx context.Context, validationID string) (int, error) {
	res, err := c.q.ExecContext(ctx,
		`DELETE FROM recommendations WHERE validation_id = ?`, validationID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete recommendations for validation %s: %w", validationID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete recommendations for validation %s: %w", validationID, err)
	}
	return int(affected), nil
}

// ListRecommendations returns recommendations in creation order. Apply
// operations depend on that order when the caller names no explicit subset.
func (c *queries) ListRecommendations(ctx context.Context, f RecommendationFilter) ([]*types.Recommendation, error) {
	where := ""
	args := []interface{}{}
	if f.ValidationID != "" {
		where += " AND validation_id = ?"
		args = append(args, f.ValidationID)
	}
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.Type != "" {
		where += " AND type = ?"
		args = append(args, f.Type)
	}

	var rows []recommendationRow
	err := c.q.SelectContext(ctx, &rows,
		`SELECT `+recommendationColumns+` FROM recommendations WHERE 1=1`+where+
			` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}

	recs := make([]*types.Recommendation, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
