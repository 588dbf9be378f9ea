package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvet/internal/types"
)

func validationStatus(t *testing.T, s *Server, id string) string {
	t.Helper()
	res, err := s.handleGetValidation(context.Background(), map[string]any{"id": id})
	require.NoError(t, err)
	return resultMap(t, res)["status"].(string)
}

func TestApproveAndReject(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	dir := t.TempDir()

	first := validateFile(t, s, writeDoc(t, dir, "a.md", cleanDoc))
	second := validateFile(t, s, writeDoc(t, dir, "b.md", cleanDoc))

	res, err := s.handleApprove(ctx, map[string]any{"ids": []any{first, second}})
	require.NoError(t, err)
	m := resultMap(t, res)
	assert.Equal(t, 2, m["approved_count"])
	assert.Equal(t, 0, m["failed_count"])
	assert.Empty(t, m["errors"])
	assert.Equal(t, "approved", validationStatus(t, s, first))
	assert.Equal(t, "approved", validationStatus(t, s, second))

	// Re-approving is a harmless repeat, and a rejection afterwards wins.
	res, err = s.handleApprove(ctx, map[string]any{"ids": first})
	require.NoError(t, err)
	assert.Equal(t, 1, resultMap(t, res)["approved_count"])

	res, err = s.handleReject(ctx, map[string]any{"ids": second, "reason": "stale draft"})
	require.NoError(t, err)
	assert.Equal(t, 1, resultMap(t, res)["rejected_count"])
	assert.Equal(t, "rejected", validationStatus(t, s, second))

	got, err := s.handleGetValidation(ctx, map[string]any{"id": second})
	require.NoError(t, err)
	assert.Contains(t, resultMap(t, got)["notes"], "Rejected: stale draft")
}

func TestApprovePartialFailure(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	id := validateFile(t, s, writeDoc(t, t.TempDir(), "a.md", cleanDoc))

	res, err := s.handleApprove(ctx, map[string]any{"ids": []any{id, "ghost"}})
	require.NoError(t, err)
	m := resultMap(t, res)
	assert.Equal(t, 1, m["approved_count"])
	assert.Equal(t, 1, m["failed_count"])
	assert.Equal(t, []string{"Validation ghost not found"}, m["errors"])

	// The found record still flipped.
	assert.Equal(t, "approved", validationStatus(t, s, id))
}

func TestApproveEmptyIDs(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := s.handleApprove(context.Background(), map[string]any{})
	require.NoError(t, err)
	m := resultMap(t, res)
	assert.Equal(t, true, m["success"])
	assert.Equal(t, 0, m["approved_count"])
	assert.Empty(t, m["errors"])

	_, err = s.handleApprove(context.Background(), map[string]any{"ids": []any{1, 2}})
	require.Error(t, err)
	assert.Equal(t, types.KindInvalidParams, types.KindOf(err))
}

func TestBulkApproveBatches(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	dir := t.TempDir()

	ids := make([]any, 0, 5)
	for _, name := range []string{"a.md", "b.md", "c.md", "d.md"} {
		ids = append(ids, validateFile(t, s, writeDoc(t, dir, name, cleanDoc)))
	}
	ids = append(ids, "ghost")

	res, err := s.handleBulkApprove(ctx, map[string]any{"ids": ids, "batch_size": 2})
	require.NoError(t, err)
	m := resultMap(t, res)
	assert.Equal(t, 4, m["approved_count"])
	assert.Equal(t, 1, m["failed_count"])
	assert.Equal(t, 5, m["total"])
	assert.Equal(t, []string{"Validation ghost not found"}, m["errors"])
	assert.GreaterOrEqual(t, m["processing_time_ms"].(float64), 0.0)

	_, err = s.handleBulkApprove(ctx, map[string]any{"ids": ids, "batch_size": 0})
	require.Error(t, err)
	assert.EqualError(t, err, "Parameter batch_size must be positive")
}

func TestBulkRejectCarriesReason(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	id := validateFile(t, s, writeDoc(t, t.TempDir(), "a.md", cleanDoc))

	res, err := s.handleBulkReject(ctx, map[string]any{"ids": id, "reason": "superseded"})
	require.NoError(t, err)
	assert.Equal(t, 1, resultMap(t, res)["rejected_count"])

	got, err := s.handleGetValidation(ctx, map[string]any{"id": id})
	require.NoError(t, err)
	record := resultMap(t, got)
	assert.Equal(t, "rejected", record["status"])
	assert.Contains(t, record["notes"], "superseded")
}
