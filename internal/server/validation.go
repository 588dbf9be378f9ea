package server

import (
	"context"
	"fmt"
	"path/filepath"

	"docvet/internal/fileio"
	"docvet/internal/ingest"
	"docvet/internal/logging"
	"docvet/internal/store"
	"docvet/internal/types"
)

// handleValidateFolder walks a directory and runs the ingestion pipeline on
// every markdown file. Per-file failures never abort the batch; a record is
// persisted only for files that produced findings.
func (s *Server) handleValidateFolder(ctx context.Context, params map[string]any) (any, error) {
	folder, err := requiredString(params, "folder_path")
	if err != nil {
		return nil, err
	}
	recursive := boolOr(params, "recursive", true)

	if !fileio.DirExists(folder) {
		return nil, types.NewNotFound("Folder not found: %s", folder)
	}

	files, err := fileio.WalkMarkdown(folder, recursive)
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", folder, err)
	}

	processed := 0
	failed := 0
	created := 0
	families := map[string]int{}
	errs := []map[string]any{}
	fileResults := []map[string]any{}

	for _, path := range files {
		res, err := s.pipeline.RunFile(path, "", nil)
		if err != nil {
			failed++
			errs = append(errs, map[string]any{
				"file":      path,
				"error":     err.Error(),
				"timestamp": wireTime(types.Now()),
			})
			continue
		}
		processed++
		families[res.Family]++

		entry := map[string]any{
			"file":           path,
			"family":         res.Family,
			"status":         string(res.Status),
			"severity":       string(res.Severity),
			"findings_count": len(res.AllFindings),
		}
		if len(res.AllFindings) > 0 {
			record := res.BuildRecord()
			if err := s.store.CreateValidation(ctx, record); err != nil {
				// Persistence failure is not fatal to the batch.
				logging.Ingest("failed to persist validation for %s: %v", path, err)
				errs = append(errs, map[string]any{
					"file":      path,
					"error":     err.Error(),
					"timestamp": wireTime(types.Now()),
				})
			} else {
				created++
				entry["validation_id"] = record.ID
			}
		}
		fileResults = append(fileResults, entry)
	}

	logging.Ingest("validate_folder %s: %d processed, %d failed, %d records",
		folder, processed, failed, created)

	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("Validated %d files in %s", processed, folder),
		"results": map[string]any{
			"files_processed":     processed,
			"files_failed":        failed,
			"validations_created": created,
			"families_detected":   families,
			"errors":              errs,
			"file_results":        fileResults,
		},
	}, nil
}

// handleValidateFile validates a single file and always persists a fresh
// record; revalidation never overwrites an earlier one.
func (s *Server) handleValidateFile(ctx context.Context, params map[string]any) (any, error) {
	path, err := requiredString(params, "file_path")
	if err != nil {
		return nil, err
	}
	family := stringOr(params, "family", "words")
	validationTypes, err := stringList(params, "validation_types")
	if err != nil {
		return nil, err
	}

	if !fileio.FileExists(path) {
		return nil, types.NewNotFound("File not found: %s", path)
	}

	res, err := s.pipeline.RunFile(path, family, validationTypes)
	if err != nil {
		return nil, err
	}

	record := res.BuildRecord()
	if err := s.store.CreateValidation(ctx, record); err != nil {
		return nil, err
	}

	return validateResult(record, res), nil
}

// handleValidateContent validates raw text through a scoped temp file so
// the content follows the same on-disk pipeline as real files. The record
// keeps the caller's virtual path and the original content.
func (s *Server) handleValidateContent(ctx context.Context, params map[string]any) (any, error) {
	content, err := requiredString(params, "content")
	if err != nil {
		return nil, err
	}
	virtualPath := stringOr(params, "file_path", "temp.md")
	validationTypes, err := stringList(params, "validation_types")
	if err != nil {
		return nil, err
	}

	scope, err := fileio.NewTempScope(s.cfg.Server.TempDir, filepath.Base(virtualPath), content)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	res, err := s.pipeline.RunFile(scope.Path(), "", validationTypes)
	if err != nil {
		return nil, err
	}
	res.FilePath = virtualPath
	res.Content = content

	record := res.BuildRecord()
	if err := s.store.CreateValidation(ctx, record); err != nil {
		return nil, err
	}

	return validateResult(record, res), nil
}

func validateResult(record *types.ValidationRecord, res *ingest.Result) map[string]any {
	return map[string]any{
		"success":        true,
		"validation_id":  record.ID,
		"file_path":      record.FilePath,
		"family":         res.Family,
		"status":         string(record.Status),
		"severity":       string(record.Severity),
		"findings_count": len(res.AllFindings),
		"findings":       findingsWire(res.AllFindings),
		"rules_applied":  record.RulesApplied,
	}
}

func (s *Server) handleGetValidation(ctx context.Context, params map[string]any) (any, error) {
	id, err := requiredString(params, "id")
	if err != nil {
		return nil, err
	}
	record, err := s.store.GetValidation(ctx, id)
	if err != nil {
		return nil, err
	}
	return validationWire(record), nil
}

func (s *Server) handleListValidations(ctx context.Context, params map[string]any) (any, error) {
	limit := intOr(params, "limit", 100)
	offset := intOr(params, "offset", 0)
	status, _ := optionalString(params, "status")
	filePath, _ := optionalString(params, "file_path")

	if status != "" && !types.IsValidStatus(status) {
		return nil, types.NewInvalidParams("Invalid status: %s", status)
	}

	records, total, err := s.store.ListValidations(ctx, store.ValidationFilter{
		Status:   status,
		FilePath: filePath,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(records))
	for _, v := range records {
		out = append(out, validationWire(v))
	}
	return map[string]any{
		"validations": out,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	}, nil
}

// handleUpdateValidation applies a partial update: notes append, status
// replaces after validation against the known set.
func (s *Server) handleUpdateValidation(ctx context.Context, params map[string]any) (any, error) {
	id, err := requiredString(params, "id")
	if err != nil {
		return nil, err
	}

	status, hasStatus := optionalString(params, "status")
	if hasStatus && !types.IsValidStatus(status) {
		return nil, types.NewInvalidParams("Invalid status: %s", status)
	}
	notes, hasNotes := optionalString(params, "notes")

	record, err := s.store.GetValidation(ctx, id)
	if err != nil {
		return nil, err
	}
	if hasStatus {
		record.Status = types.ValidationStatus(status)
	}
	if hasNotes && notes != "" {
		record.AppendNote(notes)
	}
	record.UpdatedAt = types.Now()

	if err := s.store.UpdateValidation(ctx, record); err != nil {
		return nil, err
	}
	return map[string]any{
		"success":    true,
		"validation": validationWire(record),
	}, nil
}

func (s *Server) handleDeleteValidation(ctx context.Context, params map[string]any) (any, error) {
	id, err := requiredString(params, "id")
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteValidation(ctx, id); err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "id": id}, nil
}

// handleRevalidate reruns validation against the record's original path and
// persists a new record; the original stays untouched.
func (s *Server) handleRevalidate(ctx context.Context, params map[string]any) (any, error) {
	id, err := requiredString(params, "id")
	if err != nil {
		return nil, err
	}
	record, err := s.store.GetValidation(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.FilePath == types.FilePathUnknown || !fileio.FileExists(record.FilePath) {
		return nil, types.NewNotFound("File not found: %s", record.FilePath)
	}

	res, err := s.pipeline.RunFile(record.FilePath, ingest.FamilyOf(record), record.ValidationTypes)
	if err != nil {
		return nil, err
	}
	fresh := res.BuildRecord()
	if err := s.store.CreateValidation(ctx, fresh); err != nil {
		return nil, err
	}
	return map[string]any{
		"success":                true,
		"new_validation_id":      fresh.ID,
		"original_validation_id": id,
	}, nil
}
