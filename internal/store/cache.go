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

// UpsertCacheEntry inserts or replaces a cache entry by key. CreatedAt is
// preserved on replace; UpdatedAt always moves forward.
func (c *queries) UpsertCacheEntry(ctx context.Context, e *types.CacheEntry) error {
	_, err := c.q.NamedExecContext(ctx, `
		INSERT INTO cache_entries (key, category, value, created_at, updated_at)
		VALUES (:key, :category, :value, :created_at, :updated_at)
		ON CONFLICT(key) DO UPDATE SET
			category = excluded.category,
			value = excluded.value,
			updated_at = excluded.updated_at`,
		newCacheRow(e))
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry %s: %w", e.Key, err)
	}
	return nil
}

// GetCacheEntry loads one cache entry by key.
func (c *queries) GetCacheEntry(ctx context.Context, key string) (*types.CacheEntry, error) {
	var row cacheRow
	err := c.q.GetContext(ctx, &row,
		`SELECT key, category, value, created_at, updated_at
		FROM cache_entries WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFound("Cache entry %s not found", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry %s: %w", key, err)
	}
	return row.toDomain()
}

// ClearCache deletes cache entries, all of them or only the named
// categories, and reports how many went away.
func (c *queries) ClearCache(ctx context.Context, categories []string) (int, error) {
	query := `DELETE FROM cache_entries`
	args := []interface{}{}
	if len(categories) > 0 {
		var err error
		query, args, err = sqlx.In(`DELETE FROM cache_entries WHERE category IN (?)`, categories)
		if err != nil {
			return 0, fmt.Errorf("failed to build cache clear query: %w", err)
		}
	}
	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	return int(affected), nil
}

// CleanupCache deletes entries not touched since cutoff and reports how many
// were removed.
func (c *queries) CleanupCache(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := c.q.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE updated_at < ?`, types.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup cache: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup cache: %w", err)
	}
	return int(affected), nil
}

// CacheStats returns entry counts per category.
func (c *queries) CacheStats(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Category string `db:"category"`
		Count    int    `db:"count"`
	}
	err := c.q.SelectContext(ctx, &rows,
		`SELECT category, COUNT(*) AS count FROM cache_entries GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to count cache entries: %w", err)
	}
	stats := make(map[string]int, len(rows))
	for _, r := range rows {
		stats[r.Category] = r.Count
	}
	return stats, nil
}
