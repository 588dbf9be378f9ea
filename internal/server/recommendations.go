package server

import (
	"context"
	"fmt"
	"strings"

	"docvet/internal/fileio"
	"docvet/internal/ingest"
	"docvet/internal/logging"
	"docvet/internal/store"
	"docvet/internal/types"
)

var validRecommendationStatuses = map[string]bool{
	string(types.RecPending):  true,
	string(types.RecApproved): true,
	string(types.RecRejected): true,
	string(types.RecApplied):  true,
}

// generateForValidation runs the generator over a validation snapshot,
// filters drafts by confidence and type, and persists the survivors as
// pending recommendations.
func (s *Server) generateForValidation(ctx context.Context, record *types.ValidationRecord, threshold float64, typeFilter []string) ([]*types.Recommendation, error) {
	snapshot := types.RecommendationSnapshot{
		ValidationID: record.ID,
		FilePath:     record.FilePath,
		Content:      record.Content,
		Severity:     record.Severity,
		Findings:     ingest.FindingsOf(record),
	}

	drafts, err := s.generator.Generate(ctx, snapshot)
	if err != nil {
		return nil, err
	}

	wanted := map[string]bool{}
	for _, t := range typeFilter {
		wanted[t] = true
	}

	now := types.Now()
	recs := []*types.Recommendation{}
	for _, d := range drafts {
		if d.Confidence < threshold {
			continue
		}
		if len(wanted) > 0 && !wanted[d.Type] {
			continue
		}
		rec := &types.Recommendation{
			ID:              types.NewID(),
			ValidationID:    record.ID,
			Type:            d.Type,
			Title:           d.Title,
			Description:     d.Description,
			Scope:           d.Scope,
			Instruction:     d.Instruction,
			Rationale:       d.Rationale,
			Severity:        d.Severity,
			OriginalContent: d.OriginalContent,
			ProposedContent: d.ProposedContent,
			Confidence:      d.Confidence,
			Priority:        d.Priority,
			Status:          types.RecPending,
			Metadata:        d.Metadata,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if d.OriginalContent != "" && d.ProposedContent != "" {
			rec.Diff = s.diff.Compare("original", "proposed", d.OriginalContent, d.ProposedContent).UnifiedDiff
		}
		if err := s.store.CreateRecommendation(ctx, rec); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	logging.Server("generated %d/%d recommendations for %s (threshold %.2f)",
		len(recs), len(drafts), record.ID, threshold)
	return recs, nil
}

func (s *Server) handleGenerateRecommendations(ctx context.Context, params map[string]any) (any, error) {
	validationID, err := requiredString(params, "validation_id")
	if err != nil {
		return nil, err
	}
	threshold := floatOr(params, "threshold", 0.7)
	typeFilter, err := stringList(params, "types")
	if err != nil {
		return nil, err
	}

	record, err := s.store.GetValidation(ctx, validationID)
	if err != nil {
		return nil, err
	}

	recs, err := s.generateForValidation(ctx, record, threshold, typeFilter)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		out = append(out, recommendationWire(r))
	}
	return map[string]any{
		"success":              true,
		"validation_id":        validationID,
		"recommendation_count": len(recs),
		"recommendations":      out,
		"threshold_used":       threshold,
	}, nil
}

func (s *Server) handleRebuildRecommendations(ctx context.Context, params map[string]any) (any, error) {
	validationID, err := requiredString(params, "validation_id")
	if err != nil {
		return nil, err
	}
	threshold := floatOr(params, "threshold", 0.7)

	record, err := s.store.GetValidation(ctx, validationID)
	if err != nil {
		return nil, err
	}

	deleted, err := s.store.DeleteRecommendationsByValidation(ctx, validationID)
	if err != nil {
		return nil, err
	}
	recs, err := s.generateForValidation(ctx, record, threshold, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success":         true,
		"validation_id":   validationID,
		"deleted_count":   deleted,
		"generated_count": len(recs),
	}, nil
}

func (s *Server) handleGetRecommendations(ctx context.Context, params map[string]any) (any, error) {
	validationID, err := requiredString(params, "validation_id")
	if err != nil {
		return nil, err
	}
	status, _ := optionalString(params, "status")
	if status != "" && !validRecommendationStatuses[status] {
		return nil, types.NewInvalidParams("Invalid recommendation status: %s", status)
	}
	recType, _ := optionalString(params, "type")

	recs, err := s.store.ListRecommendations(ctx, store.RecommendationFilter{
		ValidationID: validationID,
		Status:       status,
		Type:         recType,
	})
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		out = append(out, recommendationWire(r))
	}
	return map[string]any{
		"validation_id":   validationID,
		"recommendations": out,
		"total":           len(recs),
	}, nil
}

// reviewRecommendation transitions one recommendation to approved or
// rejected. Applied recommendations are final and cannot be re-reviewed.
func (s *Server) reviewRecommendation(ctx context.Context, id, action, notes, reviewer string) (*types.Recommendation, error) {
	rec, err := s.store.GetRecommendation(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == types.RecApplied {
		return nil, types.NewInvalidParams("Cannot review recommendation %s (status: %s)", id, rec.Status)
	}

	switch action {
	case "approve":
		rec.Status = types.RecApproved
	case "reject":
		rec.Status = types.RecRejected
	default:
		return nil, types.NewInvalidParams("Invalid review action: %s", action)
	}

	now := types.Now()
	rec.ReviewedBy = reviewer
	rec.ReviewedAt = &now
	rec.ReviewNotes = notes
	rec.UpdatedAt = now
	if err := s.store.UpdateRecommendation(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Server) handleReviewRecommendation(ctx context.Context, params map[string]any) (any, error) {
	id, err := requiredString(params, "recommendation_id")
	if err != nil {
		return nil, err
	}
	action, err := requiredString(params, "action")
	if err != nil {
		return nil, err
	}
	notes := stringOr(params, "notes", "")
	reviewer := stringOr(params, "reviewed_by", "system")

	rec, err := s.reviewRecommendation(ctx, id, action, notes, reviewer)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success":        true,
		"recommendation": recommendationWire(rec),
	}, nil
}

func (s *Server) handleBulkReviewRecommendations(ctx context.Context, params map[string]any) (any, error) {
	ids, err := idList(params, "recommendation_ids")
	if err != nil {
		return nil, err
	}
	action, err := requiredString(params, "action")
	if err != nil {
		return nil, err
	}
	if action != "approve" && action != "reject" {
		return nil, types.NewInvalidParams("Invalid review action: %s", action)
	}
	notes := stringOr(params, "notes", "")
	reviewer := stringOr(params, "reviewed_by", "system")

	reviewed := 0
	errs := []string{}
	for _, id := range ids {
		if _, err := s.reviewRecommendation(ctx, id, action, notes, reviewer); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		reviewed++
	}
	return map[string]any{
		"success":        true,
		"reviewed_count": reviewed,
		"failed_count":   len(errs),
		"errors":         errs,
	}, nil
}

// handleApplyRecommendations rewrites the validation's file by replacing,
// for each approved target in order, the first occurrence of its original
// content. Dry runs compute the same outcome without touching anything.
func (s *Server) handleApplyRecommendations(ctx context.Context, params map[string]any) (any, error) {
	validationID, err := requiredString(params, "validation_id")
	if err != nil {
		return nil, err
	}
	subset, err := idList(params, "recommendation_ids")
	if err != nil {
		return nil, err
	}
	dryRun := boolOr(params, "dry_run", false)
	createBackup := boolOr(params, "create_backup", true)

	record, err := s.store.GetValidation(ctx, validationID)
	if err != nil {
		return nil, err
	}
	if record.FilePath == types.FilePathUnknown {
		return nil, types.NewInvalidParams("Cannot apply recommendations to validation %s: file path is unknown", validationID)
	}
	if !fileio.FileExists(record.FilePath) {
		return nil, types.NewNotFound("File not found: %s", record.FilePath)
	}

	targets, errs, skipped, err := s.resolveApplyTargets(ctx, validationID, subset)
	if err != nil {
		return nil, err
	}

	result := map[string]any{
		"success":       true,
		"validation_id": validationID,
		"dry_run":       dryRun,
	}

	if len(targets) == 0 {
		result["applied_count"] = 0
		result["skipped_count"] = skipped
		result["errors"] = errs
		return result, nil
	}

	content, err := fileio.ReadFile(record.FilePath)
	if err != nil {
		return nil, err
	}

	if !dryRun && createBackup {
		backupPath, err := fileio.Backup(record.FilePath)
		if err != nil {
			return nil, err
		}
		result["backup_path"] = backupPath
	}

	applied := []*types.Recommendation{}
	working := content
	for _, rec := range targets {
		if rec.OriginalContent == "" {
			skipped++
			errs = append(errs, fmt.Sprintf("Recommendation %s has no original content", rec.ID))
			continue
		}
		next := replaceFirst(working, rec.OriginalContent, rec.ProposedContent)
		if next == working {
			skipped++
			errs = append(errs, fmt.Sprintf("Original content not found in file for recommendation %s", rec.ID))
			continue
		}
		working = next
		applied = append(applied, rec)
	}

	if !dryRun && len(applied) > 0 {
		if err := fileio.AtomicWrite(record.FilePath, working); err != nil {
			return nil, err
		}
		now := types.Now()
		err := s.store.WithSession(ctx, func(sess *store.Session) error {
			for _, rec := range applied {
				rec.Status = types.RecApplied
				rec.AppliedAt = &now
				rec.AppliedBy = stringOr(params, "applied_by", "system")
				rec.UpdatedAt = now
				if err := sess.UpdateRecommendation(ctx, rec); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	logging.Server("apply_recommendations %s: %d applied, %d skipped (dry_run=%v)",
		validationID, len(applied), skipped, dryRun)
	result["applied_count"] = len(applied)
	result["skipped_count"] = skipped
	result["errors"] = errs
	return result, nil
}

// resolveApplyTargets picks the recommendations to apply: the caller's
// subset filtered to approved, or every approved recommendation for the
// validation in creation order.
func (s *Server) resolveApplyTargets(ctx context.Context, validationID string, subset []string) ([]*types.Recommendation, []string, int, error) {
	errs := []string{}
	skipped := 0

	if len(subset) == 0 {
		recs, err := s.store.ListRecommendations(ctx, store.RecommendationFilter{
			ValidationID: validationID,
			Status:       string(types.RecApproved),
		})
		if err != nil {
			return nil, nil, 0, err
		}
		return recs, errs, skipped, nil
	}

	targets := []*types.Recommendation{}
	for _, id := range subset {
		rec, err := s.store.GetRecommendation(ctx, id)
		if err != nil {
			errs = append(errs, err.Error())
			skipped++
			continue
		}
		if rec.ValidationID != validationID {
			errs = append(errs, fmt.Sprintf("Recommendation %s does not belong to validation %s", id, validationID))
			skipped++
			continue
		}
		if rec.Status != types.RecApproved {
			skipped++
			continue
		}
		targets = append(targets, rec)
	}
	return targets, errs, skipped, nil
}

// replaceFirst swaps the first occurrence of old for new, returning the
// input unchanged when old is absent.
func replaceFirst(content, old, new string) string {
	if old == "" || !strings.Contains(content, old) {
		return content
	}
	return strings.Replace(content, old, new, 1)
}

// handleDeleteRecommendation loads before deleting so a second delete of
// the same id reports not-found.
func (s *Server) handleDeleteRecommendation(ctx context.Context, params map[string]any) (any, error) {
	id, err := requiredString(params, "id")
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetRecommendation(ctx, id); err != nil {
		return nil, err
	}
	if err := s.store.DeleteRecommendation(ctx, id); err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "id": id}, nil
}

func (s *Server) handleMarkRecommendationsApplied(ctx context.Context, params map[string]any) (any, error) {
	ids, err := idList(params, "ids")
	if err != nil {
		return nil, err
	}

	now := types.Now()
	marked := 0
	errs := []string{}
	for _, id := range ids {
		rec, err := s.store.GetRecommendation(ctx, id)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		rec.Status = types.RecApplied
		rec.AppliedAt = &now
		rec.AppliedBy = stringOr(params, "applied_by", "system")
		rec.UpdatedAt = now
		if err := s.store.UpdateRecommendation(ctx, rec); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		marked++
	}
	return map[string]any{
		"success":      true,
		"marked_count": marked,
		"failed_count": len(errs),
		"errors":       errs,
	}, nil
}
