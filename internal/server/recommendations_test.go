package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvet/internal/types"
)

// fooDoc has no front matter, so it fails validation, and carries a token
// the apply tests rewrite.
const fooDoc = "# Title\n\nfoo\n"

var fixDraft = types.RecommendationDraft{
	Type:            "content_improvement",
	Title:           "Replace placeholder",
	Scope:           "content",
	Severity:        types.SeverityWarning,
	OriginalContent: "foo",
	ProposedContent: "bar",
	Confidence:      0.9,
	Priority:        2,
}

// generateRecs validates path, runs generation with the stubbed drafts, and
// returns the validation id plus the created recommendation ids.
func generateRecs(t *testing.T, s *Server, path string) (string, []string) {
	t.Helper()
	id := validateFile(t, s, path)
	res, err := s.handleGenerateRecommendations(context.Background(), map[string]any{"validation_id": id})
	require.NoError(t, err)
	recs := resultMap(t, res)["recommendations"].([]map[string]any)
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r["id"].(string))
	}
	return id, ids
}

func approveRec(t *testing.T, s *Server, id string) {
	t.Helper()
	_, err := s.handleReviewRecommendation(context.Background(), map[string]any{
		"recommendation_id": id,
		"action":            "approve",
	})
	require.NoError(t, err)
}

func TestGenerateRecommendations(t *testing.T) {
	gen := &stubRecGenerator{drafts: []types.RecommendationDraft{
		{Type: "code_language", OriginalContent: "```\n", ProposedContent: "```text\n", Confidence: 0.9, Severity: types.SeverityInfo},
		{Type: "header_fix", Title: "low confidence", Confidence: 0.5},
		{Type: "link_review", Title: "check links", Confidence: 0.8},
	}}
	s, _ := newTestServer(t, WithGenerator(gen))
	ctx := context.Background()

	path := writeDoc(t, t.TempDir(), "broken.md", brokenDoc)
	id := validateFile(t, s, path)

	res, err := s.handleGenerateRecommendations(ctx, map[string]any{"validation_id": id})
	require.NoError(t, err)
	m := resultMap(t, res)
	assert.Equal(t, 2, m["recommendation_count"])
	assert.Equal(t, 0.7, m["threshold_used"])

	recs := m["recommendations"].([]map[string]any)
	require.Len(t, recs, 2)
	assert.Equal(t, "code_language", recs[0]["type"])
	assert.Equal(t, "pending", recs[0]["status"])
	assert.Equal(t, id, recs[0]["validation_id"])
	assert.NotEmpty(t, recs[0]["diff"], "draft with both contents gets a diff")
	assert.Empty(t, recs[1]["diff"], "draft without contents has no diff")

	// The generator saw the record's findings and content.
	snap := gen.lastSnapshot()
	assert.Equal(t, id, snap.ValidationID)
	assert.Equal(t, brokenDoc, snap.Content)
	assert.Len(t, snap.Findings, 6)

	_, err = s.handleGenerateRecommendations(ctx, map[string]any{"validation_id": "ghost"})
	require.Error(t, err)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestGenerateRecommendationsFilters(t *testing.T) {
	gen := &stubRecGenerator{drafts: []types.RecommendationDraft{
		{Type: "header_fix", Confidence: 0.95},
		{Type: "link_review", Confidence: 0.8},
	}}
	s, _ := newTestServer(t, WithGenerator(gen))
	ctx := context.Background()
	dir := t.TempDir()

	id := validateFile(t, s, writeDoc(t, dir, "a.md", brokenDoc))
	res, err := s.handleGenerateRecommendations(ctx, map[string]any{
		"validation_id": id,
		"threshold":     0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resultMap(t, res)["recommendation_count"])

	other := validateFile(t, s, writeDoc(t, dir, "b.md", brokenDoc))
	res, err = s.handleGenerateRecommendations(ctx, map[string]any{
		"validation_id": other,
		"types":         []any{"link_review"},
	})
	require.NoError(t, err)
	m := resultMap(t, res)
	assert.Equal(t, 1, m["recommendation_count"])
	recs := m["recommendations"].([]map[string]any)
	assert.Equal(t, "link_review", recs[0]["type"])
}

func TestRebuildRecommendations(t *testing.T) {
	gen := &stubRecGenerator{drafts: []types.RecommendationDraft{
		{Type: "header_fix", Confidence: 0.8},
		{Type: "structure", Confidence: 0.9},
	}}
	s, _ := newTestServer(t, WithGenerator(gen))
	ctx := context.Background()

	id, first := generateRecs(t, s, writeDoc(t, t.TempDir(), "a.md", brokenDoc))
	require.Len(t, first, 2)

	res, err := s.handleRebuildRecommendations(ctx, map[string]any{"validation_id": id})
	require.NoError(t, err)
	m := resultMap(t, res)
	assert.Equal(t, 2, m["deleted_count"])
	assert.Equal(t, 2, m["generated_count"])

	// No duplicates accumulate across rebuilds.
	res, err = s.handleGetRecommendations(ctx, map[string]any{"validation_id": id})
	require.NoError(t, err)
	assert.Equal(t, 2, resultMap(t, res)["total"])
}

func TestGetRecommendationsFilters(t *testing.T) {
	gen := &stubRecGenerator{drafts: []types.RecommendationDraft{
		{Type: "header_fix", Confidence: 0.8},
		{Type: "link_review", Confidence: 0.8},
	}}
	s, _ := newTestServer(t, WithGenerator(gen))
	ctx := context.Background()

	id, ids := generateRecs(t, s, writeDoc(t, t.TempDir(), "a.md", brokenDoc))
	require.Len(t, ids, 2)
	approveRec(t, s, ids[0])

	res, err := s.handleGetRecommendations(ctx, map[string]any{"validation_id": id, "status": "approved"})
	require.NoError(t, err)
	assert.Equal(t, 1, resultMap(t, res)["total"])

	res, err = s.handleGetRecommendations(ctx, map[string]any{"validation_id": id, "type": "link_review"})
	require.NoError(t, err)
	m := resultMap(t, res)
	assert.Equal(t, 1, m["total"])
	recs := m["recommendations"].([]map[string]any)
	assert.Equal(t, "link_review", recs[0]["type"])

	_, err = s.handleGetRecommendations(ctx, map[string]any{"validation_id": id, "status": "bogus"})
	require.Error(t, err)
	assert.EqualError(t, err, "Invalid recommendation status: bogus")
}

func TestReviewRecommendation(t *testing.T) {
	gen := &stubRecGenerator{drafts: []types.RecommendationDraft{fixDraft}}
	s, _ := newTestServer(t, WithGenerator(gen))
	ctx := context.Background()

	_, ids := generateRecs(t, s, writeDoc(t, t.TempDir(), "a.md", fooDoc))
	require.Len(t, ids, 1)
	recID := ids[0]

	res, err := s.handleReviewRecommendation(ctx, map[string]any{
		"recommendation_id": recID,
		"action":            "approve",
		"reviewed_by":       "alice",
		"notes":             "makes sense",
	})
	require.NoError(t, err)
	rec := resultMap(t, res)["recommendation"].(map[string]any)
	assert.Equal(t, "approved", rec["status"])
	assert.Equal(t, "alice", rec["reviewed_by"])
	assert.Equal(t, "makes sense", rec["review_notes"])
	assert.NotNil(t, rec["reviewed_at"])

	// Rejection replaces an earlier approval.
	res, err = s.handleReviewRecommendation(ctx, map[string]any{
		"recommendation_id": recID,
		"action":            "reject",
	})
	require.NoError(t, err)
	rec = resultMap(t, res)["recommendation"].(map[string]any)
	assert.Equal(t, "rejected", rec["status"])
	assert.Equal(t, "system", rec["reviewed_by"])

	_, err = s.handleReviewRecommendation(ctx, map[string]any{
		"recommendation_id": recID,
		"action":            "promote",
	})
	require.Error(t, err)
	assert.EqualError(t, err, "Invalid review action: promote")

	_, err = s.handleReviewRecommendation(ctx, map[string]any{
		"recommendation_id": "ghost",
		"action":            "approve",
	})
	require.Error(t, err)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestReviewAppliedRecommendationRefused(t *testing.T) {
	gen := &stubRecGenerator{drafts: []types.RecommendationDraft{fixDraft}}
	s, _ := newTestServer(t, WithGenerator(gen))
	ctx := context.Background()

	_, ids := generateRecs(t, s, writeDoc(t, t.TempDir(), "a.md", fooDoc))
	recID := ids[0]

	_, err := s.handleMarkRecommendationsApplied(ctx, map[string]any{"ids": recID})
	require.NoError(t, err)

	_, err = s.handleReviewRecommendation(ctx, map[string]any{
		"recommendation_id": recID,
		"action":            "approve",
	})
	require.Error(t, err)
	assert.Equal(t, types.KindInvalidParams, types.KindOf(err))
	assert.EqualError(t, err, fmt.Sprintf("Cannot review recommendation %s (status: applied)", recID))
}

func TestBulkReviewRecommendations(t *testing.T) {
	gen := &stubRecGenerator{drafts: []types.RecommendationDraft{
		{Type: "header_fix", Confidence: 0.8},
		{Type: "structure", Confidence: 0.8},
	}}
	s, _ := newTestServer(t, WithGenerator(gen))
	ctx := context.Background()

	_, ids := generateRecs(t, s, writeDoc(t, t.TempDir(), "a.md", brokenDoc))
	require.Len(t, ids, 2)

	res, err := s.handleBulkReviewRecommendations(ctx, map[string]any{
		"recommendation_ids": []any{ids[0], ids[1], "ghost"},
		"action":             "approve",
	})
	require.NoError(t, err)
	m := resultMap(t, res)
	assert.Equal(t, 2, m["reviewed_count"])
	assert.Equal(t, 1, m["failed_count"])
	require.Len(t, m["errors"], 1)

	_, err = s.handleBulkReviewRecommendations(ctx, map[string]any{
		"recommendation_ids": ids,
		"action":             "shred",
	})
	require.Error(t, err)
	assert.EqualError(t, err, "Invalid review action: shred")
}

func TestApplyRecommendationsDryRunThenReal(t *testing.T) {
	gen := &stubRecGenerator{drafts: []types.RecommendationDraft{fixDraft}}
	s, _ := newTestServer(t, WithGenerator(gen))
	ctx := context.Background()
	dir := t.TempDir()

	path := writeDoc(t, dir, "notes.md", fooDoc)
	id, ids := generateRecs(t, s, path)
	require.Len(t, ids, 1)
	approveRec(t, s, ids[0])

	// Dry run reports the outcome without touching file, backup, or record.
	res, err := s.handleApplyRecommendations(ctx, map[string]any{
		"validation_id": id,
		"dry_run":       true,
	})
	require.NoError(t, err)
	m := resultMap(t, res)
	assert.Equal(t, true, m["dry_run"])
	assert.Equal(t, 1, m["applied_count"])
	assert.Equal(t, 0, m["skipped_count"])
	assert.NotContains(t, m, "backup_path")
	assert.Equal(t, fooDoc, readFile(t, path))

	got, err := s.handleGetRecommendations(ctx, map[string]any{"validation_id": id, "status": "approved"})
	require.NoError(t, err)
	assert.Equal(t, 1, resultMap(t, got)["total"], "dry run must not consume the approval")

	// The real apply rewrites the file, backs it up first, and marks the
	// recommendation applied.
	res, err = s.handleApplyRecommendations(ctx, map[string]any{"validation_id": id})
	require.NoError(t, err)
	m = resultMap(t, res)
	assert.Equal(t, false, m["dry_run"])
	assert.Equal(t, 1, m["applied_count"])
	assert.Equal(t, "# Title\r\n\r\nbar\r\n", readFile(t, path))

	backupPath, ok := m["backup_path"].(string)
	require.True(t, ok, "backup_path missing: %v", m)
	assert.Equal(t, fooDoc, readFile(t, backupPath))

	backups, err := filepath.Glob(path + ".bak_*")
	require.NoError(t, err)
	assert.Equal(t, []string{backupPath}, backups)

	got, err = s.handleGetRecommendations(ctx, map[string]any{"validation_id": id, "status": "applied"})
	require.NoError(t, err)
	applied := resultMap(t, got)["recommendations"].([]map[string]any)
	require.Len(t, applied, 1)
	assert.Equal(t, "system", applied[0]["applied_by"])
	assert.NotNil(t, applied[0]["applied_at"])

	// Nothing approved remains, so a repeat apply is a no-op.
	res, err = s.handleApplyRecommendations(ctx, map[string]any{"validation_id": id})
	require.NoError(t, err)
	m = resultMap(t, res)
	assert.Equal(t, 0, m["applied_count"])
	assert.Equal(t, 0, m["skipped_count"])
}

func TestApplyRecommendationsSubset(t *testing.T) {
	gen := &stubRecGenerator{drafts: []types.RecommendationDraft{
		fixDraft,
		{Type: "content_improvement", Title: "text not in file", OriginalContent: "absent text", ProposedContent: "x", Confidence: 0.9},
		{Type: "content_improvement", Title: "no original", Instruction: "reword the intro", Confidence: 0.9},
	}}
	s, _ := newTestServer(t, WithGenerator(gen))
	ctx := context.Background()
	dir := t.TempDir()

	path := writeDoc(t, dir, "notes.md", fooDoc)
	id, ids := generateRecs(t, s, path)
	require.Len(t, ids, 3)
	for _, recID := range ids {
		approveRec(t, s, recID)
	}

	// A recommendation belonging to another validation is refused by id.
	_, otherRecs := generateRecs(t, s, writeDoc(t, dir, "other.md", fooDoc))
	require.Len(t, otherRecs, 3)

	res, err := s.handleApplyRecommendations(ctx, map[string]any{
		"validation_id":      id,
		"recommendation_ids": []any{ids[0], ids[1], ids[2], otherRecs[0], "ghost"},
		"create_backup":      false,
	})
	require.NoError(t, err)
	m := resultMap(t, res)
	assert.Equal(t, 1, m["applied_count"])
	assert.Equal(t, 4, m["skipped_count"])
	assert.NotContains(t, m, "backup_path")

	errs := m["errors"].([]string)
	require.Len(t, errs, 4)
	assert.Equal(t, fmt.Sprintf("Recommendation %s does not belong to validation %s", otherRecs[0], id), errs[0])
	assert.Equal(t, "Recommendation ghost not found", errs[1])
	assert.Equal(t, fmt.Sprintf("Original content not found in file for recommendation %s", ids[1]), errs[2])
	assert.Equal(t, fmt.Sprintf("Recommendation %s has no original content", ids[2]), errs[3])

	assert.Equal(t, "# Title\r\n\r\nbar\r\n", readFile(t, path))
}

func TestApplyRecommendationsPathChecks(t *testing.T) {
	gen := &stubRecGenerator{drafts: []types.RecommendationDraft{fixDraft}}
	s, _ := newTestServer(t, WithGenerator(gen))
	ctx := context.Background()

	// A content validation has no file behind it.
	res, err := s.handleValidateContent(ctx, map[string]any{"content": fooDoc, "file_path": "unknown"})
	require.NoError(t, err)
	contentID := resultMap(t, res)["validation_id"].(string)

	_, err = s.handleApplyRecommendations(ctx, map[string]any{"validation_id": contentID})
	require.Error(t, err)
	assert.Equal(t, types.KindInvalidParams, types.KindOf(err))
	assert.Contains(t, err.Error(), "file path is unknown")

	// A validated file that was deleted afterwards is reported missing.
	path := writeDoc(t, t.TempDir(), "gone.md", fooDoc)
	goneID := validateFile(t, s, path)
	require.NoError(t, os.Remove(path))

	_, err = s.handleApplyRecommendations(ctx, map[string]any{"validation_id": goneID})
	require.Error(t, err)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestDeleteRecommendationTwice(t *testing.T) {
	gen := &stubRecGenerator{drafts: []types.RecommendationDraft{fixDraft}}
	s, _ := newTestServer(t, WithGenerator(gen))
	ctx := context.Background()

	_, ids := generateRecs(t, s, writeDoc(t, t.TempDir(), "a.md", fooDoc))
	recID := ids[0]

	res, err := s.handleDeleteRecommendation(ctx, map[string]any{"id": recID})
	require.NoError(t, err)
	assert.Equal(t, true, resultMap(t, res)["success"])

	_, err = s.handleDeleteRecommendation(ctx, map[string]any{"id": recID})
	require.Error(t, err)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestMarkRecommendationsApplied(t *testing.T) {
	gen := &stubRecGenerator{drafts: []types.RecommendationDraft{fixDraft}}
	s, _ := newTestServer(t, WithGenerator(gen))
	ctx := context.Background()

	_, ids := generateRecs(t, s, writeDoc(t, t.TempDir(), "a.md", fooDoc))

	res, err := s.handleMarkRecommendationsApplied(ctx, map[string]any{
		"ids":        []any{ids[0], "ghost"},
		"applied_by": "importer",
	})
	require.NoError(t, err)
	m := resultMap(t, res)
	assert.Equal(t, 1, m["marked_count"])
	assert.Equal(t, 1, m["failed_count"])

	got, err := s.handleGetRecommendations(ctx, map[string]any{"validation_id": gen.lastSnapshot().ValidationID})
	require.NoError(t, err)
	recs := resultMap(t, got)["recommendations"].([]map[string]any)
	require.Len(t, recs, 1)
	assert.Equal(t, "applied", recs[0]["status"])
	assert.Equal(t, "importer", recs[0]["applied_by"])
}
