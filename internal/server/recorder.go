package server

import (
	"context"
	"time"

	"docvet/internal/logging"
	"docvet/internal/types"
)

// recorder persists one performance sample per call and, for mutating
// methods, one audit entry. Recording runs on a cancel-free context so
// timed-out requests still leave their trail.
type recorder struct {
	s *Server
}

// auditParamKeys are the request parameters worth keeping in audit
// details. Content payloads are deliberately excluded.
var auditParamKeys = []string{
	"id", "ids", "validation_id", "recommendation_id", "recommendation_ids",
	"workflow_id", "workflow_ids", "workflow_type", "file_path", "folder_path",
	"action", "status", "force", "dry_run",
}

func (r *recorder) Record(ctx context.Context, method string, params map[string]any, dur time.Duration, err error) {
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	sample := &types.PerformanceSample{
		ID:         types.NewID(),
		Operation:  method,
		DurationMS: float64(dur.Microseconds()) / 1000.0,
		Success:    err == nil,
		Timestamp:  types.Now(),
	}
	if insertErr := r.s.store.InsertPerformanceSample(recordCtx, sample); insertErr != nil {
		logging.StoreError("failed to record performance sample for %s: %v", method, insertErr)
	}

	if !mutatingMethods[method] {
		return
	}

	status := "success"
	details := map[string]any{}
	for _, key := range auditParamKeys {
		if v, ok := params[key]; ok {
			details[key] = v
		}
	}
	if err != nil {
		status = "error"
		details["error"] = err.Error()
	}

	entry := &types.AuditEntry{
		ID:        types.NewID(),
		Operation: method,
		User:      stringOr(params, "user", "system"),
		Status:    status,
		Details:   details,
		Timestamp: types.Now(),
	}
	if insertErr := r.s.store.InsertAuditEntry(recordCtx, entry); insertErr != nil {
		logging.StoreError("failed to record audit entry for %s: %v", method, insertErr)
	}
}
