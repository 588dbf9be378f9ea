package server

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"docvet/internal/logging"
	"docvet/internal/types"
)

// Agent is one logical processing unit exposed through the admin surface.
// Agents are descriptive: reloading one drops the caches it depends on.
type Agent struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	LoadedAt    time.Time `json:"loaded_at"`
	ReloadCount int       `json:"reload_count"`
}

func (s *Server) seedAgents() {
	now := types.Now()
	for _, a := range []*Agent{
		{ID: "header_validator", Kind: "validator", Description: "Front matter validation against family rule documents"},
		{ID: "content_validator", Kind: "validator", Description: "Markdown body structure and link validation"},
		{ID: "enhancement_agent", Kind: "enhancement", Description: "LLM-backed document enhancement"},
		{ID: "recommendation_agent", Kind: "recommendation", Description: "Edit proposal generation from validator findings"},
	} {
		a.Status = "ready"
		a.LoadedAt = now
		s.agents[a.ID] = a
	}
}

func (s *Server) agentList() []*Agent {
	s.agentMu.RLock()
	defer s.agentMu.RUnlock()
	out := make([]*Agent, 0, len(s.agents))
	for _, a := range s.agents {
		dup := *a
		out = append(out, &dup)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func agentWire(a *Agent) map[string]any {
	return map[string]any{
		"id":           a.ID,
		"kind":         a.Kind,
		"description":  a.Description,
		"status":       a.Status,
		"loaded_at":    wireTime(a.LoadedAt),
		"reload_count": a.ReloadCount,
	}
}

func (s *Server) handleGetSystemStatus(ctx context.Context, params map[string]any) (any, error) {
	dbStatus := "healthy"
	dbDetail := map[string]any{
		"path":       s.store.Path(),
		"size_bytes": s.store.FileSize(),
	}
	if err := s.store.Ping(ctx); err != nil {
		dbStatus = "unhealthy"
		dbDetail["error"] = err.Error()
	}

	ruleSize, ruleHits, ruleMisses := s.rules.CacheStats()
	promptSize, promptHits, promptMisses := s.prompts.CacheStats()
	cacheDetail := map[string]any{
		"rule_documents":   ruleSize,
		"rule_hits":        ruleHits,
		"rule_misses":      ruleMisses,
		"prompt_documents": promptSize,
		"prompt_hits":      promptHits,
		"prompt_misses":    promptMisses,
		"diff_entries":     s.diff.CacheSize(),
	}
	if persisted, err := s.store.CacheStats(ctx); err == nil {
		total := 0
		for _, n := range persisted {
			total += n
		}
		cacheDetail["persistent_entries"] = total
	}

	agents := s.agentList()
	agentDetail := map[string]any{"count": len(agents)}
	agentStatus := "healthy"
	for _, a := range agents {
		if a.Status != "ready" {
			agentStatus = "degraded"
		}
	}

	return map[string]any{
		"status": "ok",
		"components": map[string]any{
			"database": map[string]any{"status": dbStatus, "details": dbDetail},
			"cache":    map[string]any{"status": "healthy", "details": cacheDetail},
			"agents":   map[string]any{"status": agentStatus, "details": agentDetail},
		},
		"resources":        systemResources(ctx),
		"maintenance_mode": s.maintenanceFlag() != nil,
		"uptime_seconds":   time.Since(s.startedAt).Seconds(),
		"llm_available":    s.llm.IsAvailable(ctx),
		"version":          s.cfg.Version,
	}, nil
}

// systemResources samples host utilization. A probe failure reports -1 for
// that resource rather than failing the status call.
func systemResources(ctx context.Context) map[string]any {
	cpuPercent := -1.0
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	}
	memPercent := -1.0
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		memPercent = vm.UsedPercent
	}
	diskPercent := -1.0
	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		diskPercent = du.UsedPercent
	}
	return map[string]any{
		"cpu_percent":    cpuPercent,
		"memory_percent": memPercent,
		"disk_percent":   diskPercent,
	}
}

func (s *Server) handleGetStats(ctx context.Context, params map[string]any) (any, error) {
	stats, err := s.store.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	cacheStats, err := s.store.CacheStats(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"validations":      stats.Validations,
		"recommendations":  stats.Recommendations,
		"workflows":        stats.Workflows,
		"cache_entries":    stats.CacheEntries,
		"audit_entries":    stats.AuditEntries,
		"cache_categories": cacheStats,
		"agent_count":      len(s.agentList()),
	}, nil
}

// handleClearCache drops the requested cache layers. With no cache_types
// every layer goes: rule documents, prompt documents, diff results, and all
// persisted cache rows.
func (s *Server) handleClearCache(ctx context.Context, params map[string]any) (any, error) {
	cacheTypes, err := stringList(params, "cache_types")
	if err != nil {
		return nil, err
	}

	all := len(cacheTypes) == 0
	wanted := map[string]bool{}
	for _, t := range cacheTypes {
		wanted[t] = true
	}

	cleared := []string{}
	if all || wanted["rules"] {
		s.rules.Reload()
		cleared = append(cleared, "rules")
	}
	if all || wanted["prompts"] {
		s.prompts.Reload()
		cleared = append(cleared, "prompts")
	}
	if all || wanted["diff"] {
		s.diff.ClearCache()
		cleared = append(cleared, "diff")
	}

	// Remaining names address persisted cache categories.
	var categories []string
	if !all {
		for _, t := range cacheTypes {
			if t != "rules" && t != "prompts" && t != "diff" {
				categories = append(categories, t)
			}
		}
		if len(categories) == 0 && len(cleared) > 0 {
			return map[string]any{
				"success":       true,
				"cleared_count": 0,
				"caches":        cleared,
			}, nil
		}
	}
	rows, err := s.store.ClearCache(ctx, categories)
	if err != nil {
		return nil, err
	}
	cleared = append(cleared, "persistent")

	logging.Server("clear_cache: %v (%d persisted rows)", cleared, rows)
	return map[string]any{
		"success":       true,
		"cleared_count": rows,
		"caches":        cleared,
	}, nil
}

func (s *Server) handleGetCacheStats(ctx context.Context, params map[string]any) (any, error) {
	ruleSize, ruleHits, ruleMisses := s.rules.CacheStats()
	promptSize, promptHits, promptMisses := s.prompts.CacheStats()
	persisted, err := s.store.CacheStats(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"rules":      map[string]any{"size": ruleSize, "hits": ruleHits, "misses": ruleMisses},
		"prompts":    map[string]any{"size": promptSize, "hits": promptHits, "misses": promptMisses},
		"diff":       map[string]any{"size": s.diff.CacheSize()},
		"persistent": persisted,
	}, nil
}

func (s *Server) handleCleanupCache(ctx context.Context, params map[string]any) (any, error) {
	maxAgeHours := floatOr(params, "max_age_hours", 24)
	if maxAgeHours <= 0 {
		return nil, types.NewInvalidParams("Parameter max_age_hours must be positive")
	}
	cutoff := types.Now().Add(-time.Duration(maxAgeHours * float64(time.Hour)))
	removed, err := s.store.CleanupCache(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success":       true,
		"removed_count": removed,
		"max_age_hours": maxAgeHours,
	}, nil
}

// handleRebuildCache clears every layer and re-warms the document caches
// from disk.
func (s *Server) handleRebuildCache(ctx context.Context, params map[string]any) (any, error) {
	s.rules.Reload()
	s.prompts.Reload()
	s.diff.ClearCache()

	ruleDocs := 0
	if families, err := s.rules.Families(); err == nil {
		for _, family := range families {
			if _, err := s.rules.Get(family); err == nil {
				ruleDocs++
			}
		}
	}
	promptDocs := 0
	if domains, err := s.prompts.Domains(); err == nil {
		for _, domain := range domains {
			if _, err := s.prompts.Document(domain); err == nil {
				promptDocs++
			}
		}
	}

	logging.Server("rebuild_cache: %d rule documents, %d prompt documents", ruleDocs, promptDocs)
	return map[string]any{
		"success":          true,
		"rebuilt_count":    ruleDocs + promptDocs,
		"rule_documents":   ruleDocs,
		"prompt_documents": promptDocs,
	}, nil
}

// handleReloadAgent refreshes one agent and drops the caches it reads.
func (s *Server) handleReloadAgent(ctx context.Context, params map[string]any) (any, error) {
	agentID, err := requiredString(params, "agent_id")
	if err != nil {
		return nil, err
	}

	s.agentMu.Lock()
	agent, ok := s.agents[agentID]
	if !ok {
		s.agentMu.Unlock()
		return nil, types.NewNotFound("Agent %s not found", agentID)
	}
	agent.LoadedAt = types.Now()
	agent.ReloadCount++
	agent.Status = "ready"
	snapshot := *agent
	s.agentMu.Unlock()

	switch snapshot.Kind {
	case "validator":
		s.rules.Reload()
	case "enhancement", "recommendation":
		s.prompts.Reload()
	}

	return map[string]any{
		"success": true,
		"agent":   agentWire(&snapshot),
	}, nil
}

func (s *Server) handleRunGC(ctx context.Context, params map[string]any) (any, error) {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	start := time.Now()
	runtime.GC()
	runtime.ReadMemStats(&after)

	return map[string]any{
		"success":           true,
		"heap_before_bytes": before.HeapAlloc,
		"heap_after_bytes":  after.HeapAlloc,
		"duration_ms":       float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

func (s *Server) handleEnableMaintenanceMode(ctx context.Context, params map[string]any) (any, error) {
	reason := stringOr(params, "reason", "")
	enabledBy := stringOr(params, "enabled_by", "system")

	// One open window at a time; enabling again replaces the current one.
	if _, err := s.store.CloseMaintenanceFlags(ctx, types.Now()); err != nil {
		return nil, err
	}
	flag := &types.MaintenanceFlag{
		ID:        types.NewID(),
		Reason:    reason,
		EnabledBy: enabledBy,
		EnabledAt: types.Now(),
	}
	if err := s.store.InsertMaintenanceFlag(ctx, flag); err != nil {
		return nil, err
	}
	s.setMaintenanceFlag(flag)

	logging.Server("maintenance mode enabled by %s: %s", enabledBy, reason)
	return map[string]any{
		"success":          true,
		"maintenance_mode": true,
		"reason":           reason,
		"enabled_by":       enabledBy,
	}, nil
}

func (s *Server) handleDisableMaintenanceMode(ctx context.Context, params map[string]any) (any, error) {
	closed, err := s.store.CloseMaintenanceFlags(ctx, types.Now())
	if err != nil {
		return nil, err
	}
	s.setMaintenanceFlag(nil)

	logging.Server("maintenance mode disabled (%d windows closed)", closed)
	return map[string]any{
		"success":          true,
		"maintenance_mode": false,
		"closed_count":     closed,
	}, nil
}

// handleCreateCheckpoint snapshots the aggregate counters under a name.
func (s *Server) handleCreateCheckpoint(ctx context.Context, params map[string]any) (any, error) {
	name := stringOr(params, "name", "")
	if name == "" {
		name = fmt.Sprintf("checkpoint_%s", types.Now().Format("20060102_150405"))
	}

	stats, err := s.store.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	metadata := map[string]any{}
	for k, v := range mapParam(params, "metadata") {
		metadata[k] = v
	}
	metadata["stats"] = map[string]any{
		"validations":     stats.Validations,
		"recommendations": stats.Recommendations,
		"workflows":       stats.Workflows,
		"cache_entries":   stats.CacheEntries,
		"audit_entries":   stats.AuditEntries,
	}

	cp := &types.Checkpoint{
		ID:        types.NewID(),
		Name:      name,
		Metadata:  metadata,
		CreatedAt: types.Now(),
	}
	if err := s.store.InsertCheckpoint(ctx, cp); err != nil {
		return nil, err
	}
	return map[string]any{
		"success":    true,
		"checkpoint": checkpointWire(cp),
	}, nil
}

func (s *Server) handleListCheckpoints(ctx context.Context, params map[string]any) (any, error) {
	limit := intOr(params, "limit", 50)
	checkpoints, err := s.store.ListCheckpoints(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(checkpoints))
	for _, cp := range checkpoints {
		out = append(out, checkpointWire(cp))
	}
	return map[string]any{
		"checkpoints": out,
		"total":       len(out),
	}, nil
}
