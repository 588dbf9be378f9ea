package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"docvet/internal/types"
)

const validationColumns = `id, file_path, status, severity, rules_applied,
	validation_types, validation_results, content, notes, created_at, updated_at`

// ValidationFilter narrows ListValidations. Zero-value fields are ignored;
// Limit defaults to 100.
type ValidationFilter struct {
	Status   string
	FilePath string
	Limit    int
	Offset   int
}

// CreateValidation inserts a new validation record.
func (c *queries) CreateValidation(ctx context.Context, v *types.ValidationRecord) error {
	row, err := newValidationRow(v)
	if err != nil {
		return err
	}
	_, err = c.q.NamedExecContext(ctx, `
		INSERT INTO validations (id, file_path, status, severity, rules_applied,
			validation_types, validation_results, content, notes, created_at, updated_at)
		VALUES (:id, :file_path, :status, :severity, :rules_applied,
			:validation_types, :validation_results, :content, :notes, :created_at, :updated_at)`,
		row)
	if err != nil {
		return fmt.Errorf("failed to insert validation %s: %w", v.ID, err)
	}
	return nil
}

// GetValidation loads one validation record by id.
func (c *queries) GetValidation(ctx context.Context, id string) (*types.ValidationRecord, error) {
	var row validationRow
	err := c.q.GetContext(ctx, &row,
		`SELECT `+validationColumns+` FROM validations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFound("Validation %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load validation %s: %w", id, err)
	}
	return row.toDomain()
}

// GetValidationsByIDs loads the records whose ids are present, preserving no
// particular order. Missing ids are simply absent from the result.
func (c *queries) GetValidationsByIDs(ctx context.Context, ids []string) ([]*types.ValidationRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT `+validationColumns+` FROM validations WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build id query: %w", err)
	}
	var rows []validationRow
	if err := c.q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load validations: %w", err)
	}
	records := make([]*types.ValidationRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// UpdateValidation writes the full record back. The id must already exist.
func (c *queries) UpdateValidation(ctx context.Context, v *types.ValidationRecord) error {
	row, err := newValidationRow(v)
	if err != nil {
		return err
	}
	res, err := c.q.NamedExecContext(ctx, `
		UPDATE validations SET
			file_path = :file_path,
			status = :status,
			severity = :severity,
			rules_applied = :rules_applied,
			validation_types = :validation_types,
			validation_results = :validation_results,
			content = :content,
			notes = :notes,
			updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("failed to update validation %s: %w", v.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update validation %s: %w", v.ID, err)
	}
	if affected == 0 {
		return types.NewNotFound("Validation %s not found", v.ID)
	}
	return nil
}

// DeleteValidation removes a record and, through the foreign key cascade,
// its recommendations. Deleting an absent id is a no-op.
func (c *queries) DeleteValidation(ctx context.Context, id string) error {
	_, err := c.q.ExecContext(ctx, `DELETE FROM validations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete validation %s: %w", id, err)
	}
	return nil
}

// ListValidations returns one page of records (newest first) plus the total
// count matching the filter.
func (c *queries) ListValidations(ctx context.Context, f ValidationFilter) ([]*types.ValidationRecord, int, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}

	where := ""
	args := []interface{}{}
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.FilePath != "" {
		where += " AND file_path = ?"
		args = append(args, f.FilePath)
	}

	var total int
	err := c.q.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM validations WHERE 1=1`+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count validations: %w", err)
	}

	var rows []validationRow
	err = c.q.SelectContext(ctx, &rows,
		`SELECT `+validationColumns+` FROM validations WHERE 1=1`+where+
			` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list validations: %w", err)
	}

	records := make([]*types.ValidationRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toDomain()
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, nil
}

// ValidationHistory returns the most recent records for one file path.
func (c *queries) ValidationHistory(ctx context.Context, filePath string, limit int) ([]*types.ValidationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []validationRow
	err := c.q.SelectContext(ctx, &rows,
		`SELECT `+validationColumns+` FROM validations
		WHERE file_path = ? ORDER BY created_at DESC LIMIT ?`,
		filePath, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load validation history for %s: %w", filePath, err)
	}
	records := make([]*types.ValidationRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
