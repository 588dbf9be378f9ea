// Package server implements the JSON-RPC method surface: validation,
// approval, enhancement, recommendations, workflows, and administration.
// Each handler is a closure over the layer components it needs, registered
// by name in the rpc registry; the dispatcher owns envelope handling and
// error mapping, so handlers only speak params-in / result-out.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docvet/internal/config"
	"docvet/internal/diff"
	"docvet/internal/ingest"
	"docvet/internal/llm"
	"docvet/internal/logging"
	"docvet/internal/prompts"
	"docvet/internal/rpc"
	"docvet/internal/rules"
	"docvet/internal/store"
	"docvet/internal/types"
	"docvet/internal/workflow"
)

// Server wires every subsystem together and exposes the method handlers.
// All fields are set at construction and read-only afterwards except the
// maintenance flag and the agent registry, which have their own locks.
type Server struct {
	cfg       *config.Config
	store     *store.Store
	rules     *rules.Manager
	prompts   *prompts.Loader
	llm       types.LLMClient
	generator types.RecommendationGenerator
	pipeline  *ingest.Pipeline
	diff      *diff.Engine
	workflows *workflow.Manager
	registry  *rpc.Registry
	startedAt time.Time

	maintMu sync.RWMutex
	maint   *types.MaintenanceFlag

	agentMu sync.RWMutex
	agents  map[string]*Agent
}

// Option adjusts construction, mainly so tests can substitute the LLM and
// the recommendation generator.
type Option func(*Server)

// WithLLMClient substitutes the model capability.
func WithLLMClient(c types.LLMClient) Option {
	return func(s *Server) { s.llm = c }
}

// WithGenerator substitutes the recommendation generator.
func WithGenerator(g types.RecommendationGenerator) Option {
	return func(s *Server) { s.generator = g }
}

// New builds a fully wired server: store opened and migrated, rule and
// prompt caches ready, LLM client constructed per config, workflow manager
// started. Close releases everything in reverse order.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		store:     st,
		rules:     rules.NewManager(cfg.Rules.Dir),
		prompts:   prompts.NewLoader(cfg.Prompts.Dir),
		diff:      diff.NewEngine(),
		startedAt: types.Now(),
		agents:    make(map[string]*Agent),
	}
	s.pipeline = ingest.NewPipeline(s.rules)

	for _, opt := range opts {
		opt(s)
	}

	if s.llm == nil {
		client, err := llm.New(ctx, cfg)
		if err != nil {
			st.Close()
			return nil, err
		}
		s.llm = client
	}
	if s.generator == nil {
		s.generator = NewGenerator(s.llm, s.prompts, s.cfg)
	}

	if cfg.Rules.Watch {
		if err := s.rules.StartWatcher(); err != nil {
			logging.Rules("rule watcher unavailable: %v", err)
		}
	}
	if cfg.Prompts.Watch {
		if err := s.prompts.StartWatcher(); err != nil {
			logging.Prompts("prompt watcher unavailable: %v", err)
		}
	}

	// Maintenance mode survives restarts; pick up an open flag if one exists.
	if flag, err := st.ActiveMaintenanceFlag(ctx); err == nil && flag != nil {
		s.maint = flag
	}

	s.seedAgents()
	s.workflows = workflow.NewManager(st, cfg, &executor{s: s})
	s.registry = s.buildRegistry()

	logging.Server("server ready: %d methods, db=%s", s.registry.Len(), st.Path())
	return s, nil
}

// Registry returns the method table for the dispatcher.
func (s *Server) Registry() *rpc.Registry {
	return s.registry
}

// Store exposes the persistence layer to the CLI's db subcommands.
func (s *Server) Store() *store.Store {
	return s.store
}

// Dispatcher assembles a dispatcher over this server's registry with the
// maintenance gate, the audit/performance recorder, and optional metrics.
func (s *Server) Dispatcher(metrics *rpc.Metrics) *rpc.Dispatcher {
	d := rpc.NewDispatcher(s.registry).
		WithGate(&maintenanceGate{s: s}).
		WithRecorder(&recorder{s: s})
	if metrics != nil {
		d.WithMetrics(metrics)
	}
	return d
}

// Close stops workers and watchers and closes the store.
func (s *Server) Close() error {
	s.workflows.Close()
	s.rules.StopWatcher()
	s.prompts.StopWatcher()
	return s.store.Close()
}

// mutatingMethods lists every method that changes persisted or filesystem
// state. The set drives both the maintenance gate and audit logging.
var mutatingMethods = map[string]bool{
	"validate_folder":              true,
	"validate_file":                true,
	"validate_content":             true,
	"update_validation":            true,
	"delete_validation":            true,
	"revalidate":                   true,
	"approve":                      true,
	"reject":                       true,
	"bulk_approve":                 true,
	"bulk_reject":                  true,
	"enhance":                      true,
	"enhance_batch":                true,
	"enhance_auto_apply":           true,
	"generate_recommendations":     true,
	"rebuild_recommendations":      true,
	"review_recommendation":        true,
	"bulk_review_recommendations":  true,
	"apply_recommendations":        true,
	"delete_recommendation":        true,
	"mark_recommendations_applied": true,
	"create_workflow":              true,
	"control_workflow":             true,
	"delete_workflow":              true,
	"bulk_delete_workflows":        true,
	"clear_cache":                  true,
	"cleanup_cache":                true,
	"rebuild_cache":                true,
	"reload_agent":                 true,
	"run_gc":                       true,
	"create_checkpoint":            true,
	"enable_maintenance_mode":      true,
	"disable_maintenance_mode":     true,
}

// adminMethods stay callable during maintenance so an operator can inspect
// and repair the system while normal traffic is blocked.
var adminMethods = map[string]bool{
	"clear_cache":              true,
	"cleanup_cache":            true,
	"rebuild_cache":            true,
	"reload_agent":             true,
	"run_gc":                   true,
	"create_checkpoint":        true,
	"enable_maintenance_mode":  true,
	"disable_maintenance_mode": true,
}

// buildRegistry registers every handler. Registration order is the order
// methods are listed by discovery surfaces.
func (s *Server) buildRegistry() *rpc.Registry {
	r := rpc.NewRegistry()

	// Validation.
	r.Register("validate_folder", s.handleValidateFolder)
	r.Register("validate_file", s.handleValidateFile)
	r.Register("validate_content", s.handleValidateContent)
	r.Register("get_validation", s.handleGetValidation)
	r.Register("list_validations", s.handleListValidations)
	r.Register("update_validation", s.handleUpdateValidation)
	r.Register("delete_validation", s.handleDeleteValidation)
	r.Register("revalidate", s.handleRevalidate)

	// Approval.
	r.Register("approve", s.handleApprove)
	r.Register("reject", s.handleReject)
	r.Register("bulk_approve", s.handleBulkApprove)
	r.Register("bulk_reject", s.handleBulkReject)

	// Recommendations.
	r.Register("generate_recommendations", s.handleGenerateRecommendations)
	r.Register("rebuild_recommendations", s.handleRebuildRecommendations)
	r.Register("get_recommendations", s.handleGetRecommendations)
	r.Register("review_recommendation", s.handleReviewRecommendation)
	r.Register("bulk_review_recommendations", s.handleBulkReviewRecommendations)
	r.Register("apply_recommendations", s.handleApplyRecommendations)
	r.Register("delete_recommendation", s.handleDeleteRecommendation)
	r.Register("mark_recommendations_applied", s.handleMarkRecommendationsApplied)

	// Enhancement.
	r.Register("enhance", s.handleEnhance)
	r.Register("enhance_preview", s.handleEnhancePreview)
	r.Register("enhance_batch", s.handleEnhanceBatch)
	r.Register("enhance_auto_apply", s.handleEnhanceAutoApply)
	r.Register("get_enhancement_comparison", s.handleGetEnhancementComparison)

	// Workflows.
	r.Register("create_workflow", s.handleCreateWorkflow)
	r.Register("get_workflow_summary", s.handleGetWorkflowSummary)
	r.Register("get_workflow_report", s.handleGetWorkflowReport)
	r.Register("list_workflows", s.handleListWorkflows)
	r.Register("control_workflow", s.handleControlWorkflow)
	r.Register("delete_workflow", s.handleDeleteWorkflow)
	r.Register("bulk_delete_workflows", s.handleBulkDeleteWorkflows)

	// Admin and query.
	r.Register("get_system_status", s.handleGetSystemStatus)
	r.Register("get_stats", s.handleGetStats)
	r.Register("clear_cache", s.handleClearCache)
	r.Register("get_cache_stats", s.handleGetCacheStats)
	r.Register("cleanup_cache", s.handleCleanupCache)
	r.Register("rebuild_cache", s.handleRebuildCache)
	r.Register("reload_agent", s.handleReloadAgent)
	r.Register("run_gc", s.handleRunGC)
	r.Register("enable_maintenance_mode", s.handleEnableMaintenanceMode)
	r.Register("disable_maintenance_mode", s.handleDisableMaintenanceMode)
	r.Register("create_checkpoint", s.handleCreateCheckpoint)
	r.Register("list_checkpoints", s.handleListCheckpoints)
	r.Register("get_audit_log", s.handleGetAuditLog)
	r.Register("get_performance_report", s.handleGetPerformanceReport)
	r.Register("get_health_report", s.handleGetHealthReport)
	r.Register("get_validation_history", s.handleGetValidationHistory)
	r.Register("get_available_validators", s.handleGetAvailableValidators)
	r.Register("export_validation", s.handleExportValidation)
	r.Register("export_recommendations", s.handleExportRecommendations)
	r.Register("export_workflow", s.handleExportWorkflow)

	return r
}

// maintenanceGate blocks non-admin mutating methods while a maintenance
// window is open.
type maintenanceGate struct {
	s *Server
}

func (g *maintenanceGate) CheckMethod(method string) error {
	flag := g.s.maintenanceFlag()
	if flag == nil {
		return nil
	}
	if !mutatingMethods[method] || adminMethods[method] {
		return nil
	}
	if flag.Reason != "" {
		return types.NewUnauthorized("Server is in maintenance mode: %s", flag.Reason)
	}
	return types.NewUnauthorized("Server is in maintenance mode")
}

func (s *Server) maintenanceFlag() *types.MaintenanceFlag {
	s.maintMu.RLock()
	defer s.maintMu.RUnlock()
	return s.maint
}

func (s *Server) setMaintenanceFlag(f *types.MaintenanceFlag) {
	s.maintMu.Lock()
	s.maint = f
	s.maintMu.Unlock()
}
