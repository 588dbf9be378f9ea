// Package workflow runs long-lived multi-step jobs (directory validation,
// batch enhancement, recommendation application, full audits) as background
// workers over the persistence layer. Each workflow is a persisted record
// with a strict state machine; workers honor pause and cancel cooperatively
// at step boundaries.
package workflow

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"docvet/internal/config"
	"docvet/internal/logging"
	"docvet/internal/store"
	"docvet/internal/types"
)

// Executor performs the per-item work of a workflow step. The server
// implements it over the ingestion pipeline, enhancer, and recommendation
// engine; tests substitute stubs.
type Executor interface {
	// ListMarkdownFiles enumerates the markdown files a directory workflow
	// will process.
	ListMarkdownFiles(root string, recursive bool) ([]string, error)
	// ValidateFile validates one file and persists a record only when it has
	// findings, returning the new validation id or "" for a clean file.
	ValidateFile(ctx context.Context, path string) (string, error)
	// EnhanceValidation runs the enhancement flow for one approved record.
	EnhanceValidation(ctx context.Context, validationID string) error
	// ApplyRecommendation applies one approved recommendation to its file.
	ApplyRecommendation(ctx context.Context, recommendationID string) error
	// GenerateRecommendations produces recommendations for a validation,
	// returning how many were stored.
	GenerateRecommendations(ctx context.Context, validationID string) (int, error)
}

// Manager creates, schedules, and controls workflows. At most
// workflows.max_concurrent workers run at once; further workflows queue in
// the pending state.
type Manager struct {
	store *store.Store
	cfg   *config.Config
	exec  Executor

	sem *semaphore.Weighted

	mu      sync.Mutex
	runners map[string]*runner

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a workflow manager. Workers are scoped to the manager,
// not to the request that created them; Close stops everything.
func NewManager(st *store.Store, cfg *config.Config, exec Executor) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:   st,
		cfg:     cfg,
		exec:    exec,
		sem:     semaphore.NewWeighted(int64(cfg.Workflows.MaxConcurrent)),
		runners: make(map[string]*runner),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Create validates the type and parameters, persists a pending workflow,
// and spawns its worker.
func (m *Manager) Create(ctx context.Context, workflowType string, params map[string]any) (*types.Workflow, error) {
	if !types.IsValidWorkflowType(workflowType) {
		return nil, types.NewInvalidParams("Unknown workflow type: %s", workflowType)
	}
	wtype := types.WorkflowType(workflowType)
	if err := validateParams(wtype, params); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}

	now := types.Now()
	w := &types.Workflow{
		ID:          types.NewID(),
		Type:        wtype,
		State:       types.WorkflowPending,
		InputParams: params,
		Metadata:    newMetadata(params),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.CreateWorkflow(ctx, w); err != nil {
		return nil, err
	}

	r := newRunner(m, w.ID)
	m.mu.Lock()
	m.runners[w.ID] = r
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.unregister(w.ID)
		r.run(m.baseCtx)
	}()

	logging.Workflow("created workflow %s: type=%s", w.ID, w.Type)
	return w, nil
}

// Get loads one workflow.
func (m *Manager) Get(ctx context.Context, id string) (*types.Workflow, error) {
	return m.store.GetWorkflow(ctx, id)
}

// List pages workflows through the store filter.
func (m *Manager) List(ctx context.Context, f store.WorkflowFilter) ([]*types.Workflow, int, error) {
	return m.store.ListWorkflows(ctx, f)
}

// Delete removes a workflow. A running workflow is refused unless force is
// set, in which case it is cancelled first. Live workers for deleted rows
// are woken and exit without persisting.
func (m *Manager) Delete(ctx context.Context, id string, force bool) error {
	w, err := m.store.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	if w.State == types.WorkflowRunning && !force {
		return types.NewInvalidParams("Workflow %s is running; pass force=true to delete it", id)
	}

	if err := m.store.DeleteWorkflow(ctx, id); err != nil {
		return err
	}

	m.mu.Lock()
	r := m.runners[id]
	m.mu.Unlock()
	if r != nil {
		r.requestCancel()
	}

	logging.Workflow("deleted workflow %s (state=%s force=%v)", id, w.State, force)
	return nil
}

// SkippedWorkflow names one workflow a bulk deletion left in place.
type SkippedWorkflow struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BulkDelete resolves a selector and applies per-item deletion rules.
// Running workflows are skipped unless force is set; a zero selector
// deletes nothing.
func (m *Manager) BulkDelete(ctx context.Context, sel store.WorkflowSelector, force bool) (deleted []string, skipped []SkippedWorkflow, err error) {
	workflows, err := m.store.SelectWorkflows(ctx, sel)
	if err != nil {
		return nil, nil, err
	}

	for _, w := range workflows {
		if err := m.Delete(ctx, w.ID, force); err != nil {
			skipped = append(skipped, SkippedWorkflow{ID: w.ID, Reason: err.Error()})
			continue
		}
		deleted = append(deleted, w.ID)
	}
	return deleted, skipped, nil
}

// Close stops every worker and waits for them to exit. Interrupted
// workflows are finalized as failed.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
	logging.Workflow("workflow manager stopped")
}

func (m *Manager) unregister(id string) {
	m.mu.Lock()
	delete(m.runners, id)
	m.mu.Unlock()
}

func (m *Manager) runnerFor(id string) *runner {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runners[id]
}

// newMetadata seeds workflow metadata from the optional name and
// description parameters.
func newMetadata(params map[string]any) map[string]any {
	md := map[string]any{}
	if name, ok := params["name"].(string); ok && name != "" {
		md["name"] = name
	}
	if desc, ok := params["description"].(string); ok && desc != "" {
		md["description"] = desc
	}
	return md
}

// validateParams enforces the per-type required parameters at creation so a
// workflow never starts with inputs its worker cannot use.
func validateParams(wtype types.WorkflowType, params map[string]any) error {
	switch wtype {
	case types.WorkflowValidateDirectory, types.WorkflowFullAudit:
		if _, err := directoryParam(params); err != nil {
			return err
		}
	case types.WorkflowBatchEnhance:
		if _, err := idListParam(params, "validation_ids"); err != nil {
			return err
		}
	case types.WorkflowRecommendationBatch:
		if _, err := idListParam(params, "recommendation_ids"); err != nil {
			return err
		}
	}
	return nil
}

func directoryParam(params map[string]any) (string, error) {
	raw, ok := params["directory_path"]
	if !ok {
		return "", types.NewInvalidParams("Missing required parameter: directory_path")
	}
	dir, ok := raw.(string)
	if !ok || dir == "" {
		return "", types.NewInvalidParams("Parameter directory_path must be a non-empty string")
	}
	return dir, nil
}

func recursiveParam(params map[string]any) bool {
	if v, ok := params["recursive"].(bool); ok {
		return v
	}
	return true
}

func idListParam(params map[string]any, key string) ([]string, error) {
	raw, ok := params[key]
	if !ok {
		return nil, types.NewInvalidParams("Missing required parameter: %s", key)
	}
	var ids []string
	switch list := raw.(type) {
	case []string:
		ids = list
	case []any:
		for _, item := range list {
			id, ok := item.(string)
			if !ok {
				return nil, types.NewInvalidParams("Parameter %s must be a list of strings", key)
			}
			ids = append(ids, id)
		}
	default:
		return nil, types.NewInvalidParams("Parameter %s must be a list of strings", key)
	}
	if len(ids) == 0 {
		return nil, types.NewInvalidParams("Parameter %s must not be empty", key)
	}
	return ids, nil
}
