package server

import (
	"context"
	"sort"
	"time"

	"docvet/internal/ingest"
	"docvet/internal/store"
	"docvet/internal/types"
)

func (s *Server) handleGetAuditLog(ctx context.Context, params map[string]any) (any, error) {
	filter := store.AuditFilter{
		Limit:  intOr(params, "limit", 100),
		Offset: intOr(params, "offset", 0),
	}
	filter.Operation, _ = optionalString(params, "operation")
	filter.User, _ = optionalString(params, "user")
	filter.Status, _ = optionalString(params, "status")

	if raw, ok := optionalString(params, "start_date"); ok && raw != "" {
		t, err := types.ParseTime(raw)
		if err != nil {
			return nil, types.NewInvalidParams("Invalid start_date: %s", raw)
		}
		filter.Start = &t
	}
	if raw, ok := optionalString(params, "end_date"); ok && raw != "" {
		t, err := types.ParseTime(raw)
		if err != nil {
			return nil, types.NewInvalidParams("Invalid end_date: %s", raw)
		}
		filter.End = &t
	}

	entries, total, err := s.store.ListAuditEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditWire(e))
	}
	return map[string]any{
		"entries": out,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	}, nil
}

var performanceRanges = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

func (s *Server) handleGetPerformanceReport(ctx context.Context, params map[string]any) (any, error) {
	timeRange := stringOr(params, "time_range", "24h")
	window, ok := performanceRanges[timeRange]
	if !ok {
		return nil, types.NewInvalidParams("Invalid time_range: %s (valid: 1h, 24h, 7d, 30d)", timeRange)
	}
	operation, _ := optionalString(params, "operation")

	since := types.Now().Add(-window)
	samples, err := s.store.ListPerformanceSamples(ctx, since, operation)
	if err != nil {
		return nil, err
	}

	byOp := map[string][]float64{}
	for _, sample := range samples {
		byOp[sample.Operation] = append(byOp[sample.Operation], sample.DurationMS)
	}

	operations := map[string]any{}
	for op, durations := range byOp {
		operations[op] = summarizeDurations(durations)
	}
	return map[string]any{
		"time_range":    timeRange,
		"since":         wireTime(since),
		"total_samples": len(samples),
		"operations":    operations,
	}, nil
}

// summarizeDurations computes count/avg/min/max plus nearest-rank
// percentiles over one operation's samples.
func summarizeDurations(durations []float64) map[string]any {
	sort.Float64s(durations)
	n := len(durations)
	sum := 0.0
	for _, d := range durations {
		sum += d
	}
	return map[string]any{
		"count":           n,
		"avg_duration_ms": sum / float64(n),
		"min_duration_ms": durations[0],
		"max_duration_ms": durations[n-1],
		"p50_duration_ms": percentile(durations, 50),
		"p95_duration_ms": percentile(durations, 95),
		"p99_duration_ms": percentile(durations, 99),
	}
}

// percentile picks the nearest-rank value from sorted samples.
func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// handleGetHealthReport combines component probes, recent failures, and a
// short performance window into a single operator view.
func (s *Server) handleGetHealthReport(ctx context.Context, params map[string]any) (any, error) {
	health := "healthy"
	advice := []string{}

	components := map[string]any{}
	if err := s.store.Ping(ctx); err != nil {
		components["database"] = map[string]any{"status": "unhealthy", "error": err.Error()}
		health = "unhealthy"
		advice = append(advice, "Database unreachable; check the configured path and file permissions.")
	} else {
		components["database"] = map[string]any{"status": "healthy"}
	}

	llmAvailable := s.llm.IsAvailable(ctx)
	if llmAvailable {
		components["llm"] = map[string]any{"status": "healthy", "model": s.llm.ModelName()}
	} else {
		components["llm"] = map[string]any{"status": "unavailable", "model": s.llm.ModelName()}
		if health == "healthy" {
			health = "degraded"
		}
		advice = append(advice, "LLM backend unreachable; enhancement and generation methods will fail.")
	}

	agents := s.agentList()
	ready := 0
	for _, a := range agents {
		if a.Status == "ready" {
			ready++
		}
	}
	components["agents"] = map[string]any{"status": "healthy", "ready": ready, "count": len(agents)}

	if s.maintenanceFlag() != nil {
		if health == "healthy" {
			health = "degraded"
		}
		advice = append(advice, "Maintenance mode is enabled; mutating methods are blocked.")
	}

	// Last-hour failure and latency picture.
	since := types.Now().Add(-time.Hour)
	perfSummary := map[string]any{"sample_count": 0, "avg_duration_ms": 0.0, "error_rate": 0.0}
	samples, err := s.store.ListPerformanceSamples(ctx, since, "")
	if err == nil && len(samples) > 0 {
		sum := 0.0
		failures := 0
		for _, sample := range samples {
			sum += sample.DurationMS
			if !sample.Success {
				failures++
			}
		}
		errorRate := float64(failures) / float64(len(samples))
		perfSummary = map[string]any{
			"sample_count":    len(samples),
			"avg_duration_ms": sum / float64(len(samples)),
			"error_rate":      errorRate,
		}
		if errorRate > 0.1 {
			if health == "healthy" {
				health = "degraded"
			}
			advice = append(advice, "More than 10% of calls failed in the last hour; inspect the audit log.")
		}
	} else if err != nil {
		health = "unknown"
	}

	recentErrors := []map[string]any{}
	failedStart := types.Now().Add(-24 * time.Hour)
	entries, _, err := s.store.ListAuditEntries(ctx, store.AuditFilter{
		Status: "error",
		Start:  &failedStart,
		Limit:  10,
	})
	if err == nil {
		for _, e := range entries {
			recentErrors = append(recentErrors, auditWire(e))
		}
	}

	return map[string]any{
		"overall_health":      health,
		"components":          components,
		"recent_errors":       recentErrors,
		"performance_summary": perfSummary,
		"recommendations":     advice,
	}, nil
}

func (s *Server) handleGetValidationHistory(ctx context.Context, params map[string]any) (any, error) {
	filePath, err := requiredString(params, "file_path")
	if err != nil {
		return nil, err
	}
	limit := intOr(params, "limit", 50)

	records, err := s.store.ValidationHistory(ctx, filePath, limit)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(records))
	for _, v := range records {
		out = append(out, validationWire(v))
	}
	return map[string]any{
		"file_path": filePath,
		"history":   out,
		"total":     len(out),
	}, nil
}

func (s *Server) handleGetAvailableValidators(ctx context.Context, params map[string]any) (any, error) {
	validatorType, given := optionalString(params, "validator_type")
	if given && validatorType != types.ValidatorHeader && validatorType != types.ValidatorContent {
		return nil, types.NewInvalidParams("Unknown validation type: %s", validatorType)
	}

	validators := map[string]any{}
	if !given || validatorType == types.ValidatorHeader {
		validators[types.ValidatorHeader] = map[string]any{
			"description": "Front matter checks against the family rule document",
			"rules": []string{
				ingest.RuleRequiredFields,
				ingest.RuleFieldTypes,
				ingest.RuleEnumFields,
				ingest.RuleForbiddenFields,
			},
		}
	}
	if !given || validatorType == types.ValidatorContent {
		validators[types.ValidatorContent] = map[string]any{
			"description": "Markdown body structure, link, and title checks",
			"rules": []string{
				ingest.RuleExternalLinks,
				ingest.RuleCodeLanguage,
				ingest.RuleHeadingStructure,
				ingest.RuleTitleConsistency,
			},
		}
	}

	families, err := s.rules.Families()
	if err != nil {
		families = nil
	}
	return map[string]any{
		"validators": validators,
		"families":   families,
	}, nil
}

// exportEnvelope wraps export payloads in the versioned exchange format.
func exportEnvelope(data map[string]any) map[string]any {
	return map[string]any{
		"schema_version": "1.0",
		"exported_at":    wireTime(types.Now()),
		"data":           data,
	}
}

func (s *Server) handleExportValidation(ctx context.Context, params map[string]any) (any, error) {
	id, err := requiredString(params, "id")
	if err != nil {
		return nil, err
	}
	record, err := s.store.GetValidation(ctx, id)
	if err != nil {
		return nil, err
	}

	data := map[string]any{"validation": validationWire(record)}
	if boolOr(params, "include_recommendations", false) {
		recs, err := s.store.ListRecommendations(ctx, store.RecommendationFilter{ValidationID: id})
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(recs))
		for _, r := range recs {
			out = append(out, recommendationWire(r))
		}
		data["recommendations"] = out
	}
	return exportEnvelope(data), nil
}

func (s *Server) handleExportRecommendations(ctx context.Context, params map[string]any) (any, error) {
	validationID, err := requiredString(params, "validation_id")
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetValidation(ctx, validationID); err != nil {
		return nil, err
	}
	recs, err := s.store.ListRecommendations(ctx, store.RecommendationFilter{ValidationID: validationID})
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		out = append(out, recommendationWire(r))
	}
	return exportEnvelope(map[string]any{
		"validation_id":   validationID,
		"recommendations": out,
	}), nil
}

func (s *Server) handleExportWorkflow(ctx context.Context, params map[string]any) (any, error) {
	id, err := requiredString(params, "id")
	if err != nil {
		return nil, err
	}
	w, err := s.workflows.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	data := map[string]any{"workflow": workflowWire(w)}
	if boolOr(params, "include_validations", false) {
		ids := workflowValidationIDs(w)
		if len(ids) > 0 {
			records, err := s.store.GetValidationsByIDs(ctx, ids)
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, 0, len(records))
			for _, v := range records {
				out = append(out, validationWire(v))
			}
			data["validations"] = out
		} else {
			data["validations"] = []map[string]any{}
		}
	}
	return exportEnvelope(data), nil
}

// workflowValidationIDs reads the validation ids a workflow recorded in its
// metadata, tolerating both native and JSON-decoded list shapes.
func workflowValidationIDs(w *types.Workflow) []string {
	raw, ok := w.Metadata["validation_ids"]
	if !ok {
		return nil
	}
	switch list := raw.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
