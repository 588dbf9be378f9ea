package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docvet/internal/fileio"
	"docvet/internal/logging"
	"docvet/internal/types"
)

// enhanceSystemMessage fixes the model's role for every enhancement call.
const enhanceSystemMessage = "You are a technical writing assistant. " +
	"Improve clarity and readability while preserving the document's structure and meaning."

// defaultEnhanceTemplate is used when no enhance prompt document ships with
// the deployment. The prompts directory overrides it via enhance.yaml.
const defaultEnhanceTemplate = "Improve the following Markdown document. " +
	"Keep the front matter, heading structure, and code blocks intact. " +
	"Return only the improved document, with no commentary.\n\n{content}"

func (s *Server) enhancementPrompt(content string) string {
	prompt, err := s.prompts.Format("enhance", "improve", map[string]string{"content": content})
	if err == nil {
		return prompt
	}
	return strings.Replace(defaultEnhanceTemplate, "{content}", content, 1)
}

// enhanceOne runs the full enhancement flow for a single approved record:
// LLM rewrite, atomic file write, diff, record update. The file and the
// record change only when the model returns non-empty text.
func (s *Server) enhanceOne(ctx context.Context, id string) error {
	record, err := s.store.GetValidation(ctx, id)
	if err != nil {
		return err
	}
	if record.Status != types.StatusApproved {
		return fmt.Errorf("Validation %s not approved (status: %s)", id, record.Status.Display())
	}
	if record.FilePath == types.FilePathUnknown {
		return fmt.Errorf("Cannot enhance validation %s: file path is unknown", id)
	}
	if err := fileio.CheckWritePath(record.FilePath); err != nil {
		return err
	}
	if !fileio.FileExists(record.FilePath) {
		return fmt.Errorf("File not found: %s", record.FilePath)
	}

	original, err := fileio.ReadFile(record.FilePath)
	if err != nil {
		return err
	}

	enhanced, err := s.callEnhanceLLM(ctx, original)
	if err != nil {
		return err
	}

	if err := fileio.AtomicWrite(record.FilePath, enhanced); err != nil {
		return err
	}

	diffRes := s.diff.Compare("original", "enhanced", original, enhanced)

	if record.ValidationResults == nil {
		record.ValidationResults = map[string]any{}
	}
	record.ValidationResults["original_content"] = original
	record.ValidationResults["enhanced_content"] = enhanced
	record.ValidationResults["diff"] = diffRes.UnifiedDiff
	record.ValidationResults["enhancement_timestamp"] = wireTime(types.Now())
	record.ValidationResults["model_used"] = s.llm.ModelName()
	record.Status = types.StatusEnhanced
	record.AppendNote(fmt.Sprintf("Enhanced with model %s (+%d/-%d lines)",
		s.llm.ModelName(), diffRes.Additions, diffRes.Deletions))
	record.UpdatedAt = types.Now()

	if err := s.store.UpdateValidation(ctx, record); err != nil {
		return err
	}
	logging.Enhance("enhanced %s (%s): +%d/-%d lines",
		id, record.FilePath, diffRes.Additions, diffRes.Deletions)
	return nil
}

// callEnhanceLLM sends one chat completion under the configured timeout and
// rejects empty results so a misbehaving model never blanks a file.
func (s *Server) callEnhanceLLM(ctx context.Context, original string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GetLLMTimeout())
	defer cancel()

	enhanced, err := s.llm.ChatWithSystem(callCtx, enhanceSystemMessage, s.enhancementPrompt(original))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(enhanced) == "" {
		return "", fmt.Errorf("Enhancement produced empty content")
	}
	return enhanced, nil
}

func (s *Server) handleEnhance(ctx context.Context, params map[string]any) (any, error) {
	ids, err := idList(params, "ids")
	if err != nil {
		return nil, err
	}

	enhanced := 0
	errs := []string{}
	for _, id := range ids {
		if err := s.enhanceOne(ctx, id); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		enhanced++
	}
	return map[string]any{
		"success":        true,
		"enhanced_count": enhanced,
		"failed_count":   len(errs),
		"errors":         errs,
	}, nil
}

// handleEnhancePreview runs the same LLM call as enhance but touches
// neither the file nor the record. Records without a readable file fall
// back to their stored content, so content validations preview too.
func (s *Server) handleEnhancePreview(ctx context.Context, params map[string]any) (any, error) {
	id, err := requiredString(params, "id")
	if err != nil {
		return nil, err
	}
	// threshold and recommendation_types are accepted for forward
	// compatibility; preview does not filter by them.
	_ = floatOr(params, "threshold", 0.7)
	if _, err := stringList(params, "recommendation_types"); err != nil {
		return nil, err
	}

	record, err := s.store.GetValidation(ctx, id)
	if err != nil {
		return nil, err
	}

	original := record.Content
	if record.FilePath != types.FilePathUnknown && fileio.FileExists(record.FilePath) {
		content, err := fileio.ReadFile(record.FilePath)
		if err != nil {
			return nil, err
		}
		original = content
	}

	enhanced, err := s.callEnhanceLLM(ctx, original)
	if err != nil {
		return nil, err
	}

	diffRes := s.diff.Compare("original", "enhanced", original, enhanced)
	return map[string]any{
		"validation_id":    id,
		"original_content": original,
		"enhanced_content": enhanced,
		"diff":             diffRes,
	}, nil
}

func (s *Server) handleEnhanceBatch(ctx context.Context, params map[string]any) (any, error) {
	ids, err := idList(params, "ids")
	if err != nil {
		return nil, err
	}
	batchSize := intOr(params, "batch_size", 10)
	if batchSize <= 0 {
		return nil, types.NewInvalidParams("Parameter batch_size must be positive")
	}
	_ = floatOr(params, "threshold", 0.7)

	start := time.Now()
	enhanced := 0
	errs := []string{}
	results := []map[string]any{}
	for begin := 0; begin < len(ids); begin += batchSize {
		end := begin + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		for _, id := range ids[begin:end] {
			item := map[string]any{"id": id, "success": true}
			if err := s.enhanceOne(ctx, id); err != nil {
				item["success"] = false
				item["error"] = err.Error()
				errs = append(errs, err.Error())
			} else {
				enhanced++
			}
			results = append(results, item)
		}
		logging.Enhance("enhance_batch: %d/%d done", end, len(ids))
	}

	return map[string]any{
		"success":            true,
		"enhanced_count":     enhanced,
		"failed_count":       len(errs),
		"errors":             errs,
		"results":            results,
		"total":              len(ids),
		"processing_time_ms": float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

// handleEnhanceAutoApply previews first (by default), then enhances only
// when the record is approved. Threshold and type filters stay advisory at
// this layer.
func (s *Server) handleEnhanceAutoApply(ctx context.Context, params map[string]any) (any, error) {
	id, err := requiredString(params, "id")
	if err != nil {
		return nil, err
	}
	previewFirst := boolOr(params, "preview_first", true)
	_ = floatOr(params, "threshold", 0.9)
	if _, err := stringList(params, "recommendation_types"); err != nil {
		return nil, err
	}

	result := map[string]any{
		"success":       true,
		"validation_id": id,
	}

	if previewFirst {
		preview, err := s.handleEnhancePreview(ctx, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		result["preview"] = preview
	}

	record, err := s.store.GetValidation(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != types.StatusApproved {
		result["applied"] = false
		result["reason"] = fmt.Sprintf("Validation %s not approved (status: %s)", id, record.Status.Display())
		return result, nil
	}

	if err := s.enhanceOne(ctx, id); err != nil {
		result["applied"] = false
		result["reason"] = err.Error()
		return result, nil
	}
	result["applied"] = true
	return result, nil
}

// handleGetEnhancementComparison returns the stored enhancement artifacts
// with freshly computed line statistics.
func (s *Server) handleGetEnhancementComparison(ctx context.Context, params map[string]any) (any, error) {
	id, err := requiredString(params, "id")
	if err != nil {
		return nil, err
	}
	format := stringOr(params, "format", "unified")
	if format != "unified" && format != "side_by_side" {
		return nil, types.NewInvalidParams("Invalid format: %s", format)
	}

	record, err := s.store.GetValidation(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != types.StatusEnhanced {
		return nil, types.NewInvalidParams("Validation %s is not enhanced (status: %s)", id, record.Status.Display())
	}

	original, _ := record.ValidationResults["original_content"].(string)
	enhanced, _ := record.ValidationResults["enhanced_content"].(string)
	storedDiff, _ := record.ValidationResults["diff"].(string)

	diffRes := s.diff.Compare("original", "enhanced", original, enhanced)
	result := map[string]any{
		"validation_id":    id,
		"format":           format,
		"original_content": original,
		"enhanced_content": enhanced,
		"diff":             storedDiff,
		"statistics": map[string]any{
			"lines_added":    diffRes.Additions,
			"lines_removed":  diffRes.Deletions,
			"lines_modified": diffRes.Modifications,
			"total_changes":  diffRes.TotalChanges,
		},
	}
	if ts, ok := record.ValidationResults["enhancement_timestamp"]; ok {
		result["enhancement_timestamp"] = ts
	}
	if model, ok := record.ValidationResults["model_used"]; ok {
		result["model_used"] = model
	}
	if format == "side_by_side" {
		result["side_by_side"] = diffRes.SideBySide
	}
	return result, nil
}
