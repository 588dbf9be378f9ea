package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"docvet/internal/types"
)

// Stats aggregates per-entity counters for get_stats and checkpoints.
type Stats struct {
	Validations     map[string]int `json:"validations"`
	Recommendations map[string]int `json:"recommendations"`
	Workflows       map[string]int `json:"workflows"`
	CacheEntries    int            `json:"cache_entries"`
	AuditEntries    int            `json:"audit_entries"`
}

// InsertMaintenanceFlag opens a new maintenance window.
func (c *queries) InsertMaintenanceFlag(ctx context.Context, f *types.MaintenanceFlag) error {
	_, err := c.q.NamedExecContext(ctx, `
		INSERT INTO maintenance_flags (id, reason, enabled_by, enabled_at, disabled_at)
		VALUES (:id, :reason, :enabled_by, :enabled_at, :disabled_at)`,
		&maintenanceRow{
			ID:         f.ID,
			Reason:     f.Reason,
			EnabledBy:  f.EnabledBy,
			EnabledAt:  types.FormatTime(f.EnabledAt),
			DisabledAt: nullTime(f.DisabledAt),
		})
	if err != nil {
		return fmt.Errorf("failed to insert maintenance flag: %w", err)
	}
	return nil
}

// CloseMaintenanceFlags stamps every open maintenance window with the given
// end time and reports how many were open.
func (c *queries) CloseMaintenanceFlags(ctx context.Context, at time.Time) (int, error) {
	res, err := c.q.ExecContext(ctx,
		`UPDATE maintenance_flags SET disabled_at = ? WHERE disabled_at IS NULL`,
		types.FormatTime(at))
	if err != nil {
		return 0, fmt.Errorf("failed to close maintenance flags: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to close maintenance flags: %w", err)
	}
	return int(affected), nil
}

// ActiveMaintenanceFlag returns the most recent open maintenance window, or
// nil when none is open.
func (c *queries) ActiveMaintenanceFlag(ctx context.Context) (*types.MaintenanceFlag, error) {
	var row maintenanceRow
	err := c.q.GetContext(ctx, &row,
		`SELECT id, reason, enabled_by, enabled_at, disabled_at
		FROM maintenance_flags WHERE disabled_at IS NULL
		ORDER BY enabled_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load maintenance flag: %w", err)
	}
	return row.toDomain()
}

// InsertCheckpoint records a named counter snapshot.
func (c *queries) InsertCheckpoint(ctx context.Context, cp *types.Checkpoint) error {
	meta, err := marshalMap(cp.Metadata)
	if err != nil {
		return err
	}
	_, err = c.q.NamedExecContext(ctx, `
		INSERT INTO checkpoints (id, name, metadata, created_at)
		VALUES (:id, :name, :metadata, :created_at)`,
		&checkpointRow{
			ID:        cp.ID,
			Name:      cp.Name,
			Metadata:  meta,
			CreatedAt: types.FormatTime(cp.CreatedAt),
		})
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	return nil
}

// ListCheckpoints returns the most recent checkpoints, newest first.
func (c *queries) ListCheckpoints(ctx context.Context, limit int) ([]*types.Checkpoint, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []checkpointRow
	err := c.q.SelectContext(ctx, &rows,
		`SELECT id, name, metadata, created_at FROM checkpoints
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	checkpoints := make([]*types.Checkpoint, 0, len(rows))
	for i := range rows {
		cp, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, nil
}

// GetStats counts validations, recommendations and workflows grouped by
// status plus flat cache and audit totals.
func (c *queries) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Validations:     map[string]int{},
		Recommendations: map[string]int{},
		Workflows:       map[string]int{},
	}

	grouped := []struct {
		query string
		into  map[string]int
	}{
		{`SELECT status AS key, COUNT(*) AS count FROM validations GROUP BY status`, stats.Validations},
		{`SELECT status AS key, COUNT(*) AS count FROM recommendations GROUP BY status`, stats.Recommendations},
		{`SELECT state AS key, COUNT(*) AS count FROM workflows GROUP BY state`, stats.Workflows},
	}
	for _, g := range grouped {
		var rows []struct {
			Key   string `db:"key"`
			Count int    `db:"count"`
		}
		if err := c.q.SelectContext(ctx, &rows, g.query); err != nil {
			return nil, fmt.Errorf("failed to count by status: %w", err)
		}
		for _, r := range rows {
			g.into[r.Key] = r.Count
		}
	}

	if err := c.q.GetContext(ctx, &stats.CacheEntries,
		`SELECT COUNT(*) FROM cache_entries`); err != nil {
		return nil, fmt.Errorf("failed to count cache entries: %w", err)
	}
	if err := c.q.GetContext(ctx, &stats.AuditEntries,
		`SELECT COUNT(*) FROM audit_entries`); err != nil {
		return nil, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return stats, nil
}
