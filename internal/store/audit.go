package store

import (
	"context"
	"fmt"
	"time"

	"docvet/internal/types"
)

// AuditFilter narrows ListAuditEntries. Zero-value fields are ignored;
// Limit defaults to 100.
type AuditFilter struct {
	Operation string
	User      string
	Status    string
	Start     *time.Time
	End       *time.Time
	Limit     int
	Offset    int
}

// InsertAuditEntry appends one entry to the audit log.
func (c *queries) InsertAuditEntry(ctx context.Context, e *types.AuditEntry) error {
	row, err := newAuditRow(e)
	if err != nil {
		return err
	}
	_, err = c.q.NamedExecContext(ctx, `
		INSERT INTO audit_entries (id, operation, user, status, details, timestamp)
		VALUES (:id, :operation, :user, :status, :details, :timestamp)`,
		row)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns one page of the audit log (newest first) plus the
// total count matching the filter.
func (c *queries) ListAuditEntries(ctx context.Context, f AuditFilter) ([]*types.AuditEntry, int, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}

	where := ""
	args := []interface{}{}
	if f.Operation != "" {
		where += " AND operation = ?"
		args = append(args, f.Operation)
	}
	if f.User != "" {
		where += " AND user = ?"
		args = append(args, f.User)
	}
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.Start != nil {
		where += " AND timestamp >= ?"
		args = append(args, types.FormatTime(*f.Start))
	}
	if f.End != nil {
		where += " AND timestamp <= ?"
		args = append(args, types.FormatTime(*f.End))
	}

	var total int
	err := c.q.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM audit_entries WHERE 1=1`+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	var rows []auditRow
	err = c.q.SelectContext(ctx, &rows,
		`SELECT id, operation, user, status, details, timestamp
		FROM audit_entries WHERE 1=1`+where+
			` ORDER BY timestamp DESC LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}

	entries := make([]*types.AuditEntry, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toDomain()
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, nil
}

// InsertPerformanceSample records one handler invocation.
func (c *queries) InsertPerformanceSample(ctx context.Context, p *types.PerformanceSample) error {
	_, err := c.q.NamedExecContext(ctx, `
		INSERT INTO performance_samples (id, operation, duration_ms, success, timestamp)
		VALUES (:id, :operation, :duration_ms, :success, :timestamp)`,
		newPerformanceRow(p))
	if err != nil {
		return fmt.Errorf("failed to insert performance sample: %w", err)
	}
	return nil
}

// ListPerformanceSamples returns samples at or after since, optionally for
// one operation, ordered by operation then time. Percentiles are computed by
// the caller.
func (c *queries) ListPerformanceSamples(ctx context.Context, since time.Time, operation string) ([]*types.PerformanceSample, error) {
	where := " AND timestamp >= ?"
	args := []interface{}{types.FormatTime(since)}
	if operation != "" {
		where += " AND operation = ?"
		args = append(args, operation)
	}

	var rows []performanceRow
	err := c.q.SelectContext(ctx, &rows,
		`SELECT id, operation, duration_ms, success, timestamp
		FROM performance_samples WHERE 1=1`+where+
			` ORDER BY operation, timestamp`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list performance samples: %w", err)
	}

	samples := make([]*types.PerformanceSample, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		samples = append(samples, p)
	}
	return samples, nil
}

// PrunePerformanceSamples deletes samples older than cutoff and reports how
// many were removed.
func (c *queries) PrunePerformanceSamples(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := c.q.ExecContext(ctx,
		`DELETE FROM performance_samples WHERE timestamp < ?`, types.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune performance samples: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to prune performance samples: %w", err)
	}
	return int(affected), nil
}
