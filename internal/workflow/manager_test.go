package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"docvet/internal/config"
	"docvet/internal/store"
	"docvet/internal/types"
)

// stubExecutor drives workflows from tests. When gate is non-nil every
// ValidateFile announces itself on started and blocks until a token arrives
// on release, which lets tests stop a worker mid-step.
type stubExecutor struct {
	files   []string
	listErr error

	validateFn func(path string) (string, error)
	enhanceFn  func(id string) error
	applyFn    func(id string) error
	recsFn     func(id string) (int, error)

	started chan string
	release chan struct{}
}

func (s *stubExecutor) ListMarkdownFiles(root string, recursive bool) ([]string, error) {
	return s.files, s.listErr
}

func (s *stubExecutor) ValidateFile(ctx context.Context, path string) (string, error) {
	if s.started != nil {
		s.started <- path
		<-s.release
	}
	if s.validateFn != nil {
		return s.validateFn(path)
	}
	return "", nil
}

func (s *stubExecutor) EnhanceValidation(ctx context.Context, id string) error {
	if s.enhanceFn != nil {
		return s.enhanceFn(id)
	}
	return nil
}

func (s *stubExecutor) ApplyRecommendation(ctx context.Context, id string) error {
	if s.applyFn != nil {
		return s.applyFn(id)
	}
	return nil
}

func (s *stubExecutor) GenerateRecommendations(ctx context.Context, id string) (int, error) {
	if s.recsFn != nil {
		return s.recsFn(id)
	}
	return 0, nil
}

func newTestManager(t *testing.T, exec Executor) (*Manager, *store.Store) {
	t.Helper()
	// Registered before the close cleanups so it runs after them.
	t.Cleanup(func() { goleak.VerifyNone(t) })

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.Workflows.MaxConcurrent = 2
	cfg.Workflows.PollInterval = "5ms"
	cfg.Workflows.HeartbeatInterval = "50ms"

	m := NewManager(st, cfg, exec)
	t.Cleanup(m.Close)
	return m, st
}

func waitForState(t *testing.T, m *Manager, id string, want types.WorkflowState) *types.Workflow {
	t.Helper()
	var w *types.Workflow
	require.Eventually(t, func() bool {
		var err error
		w, err = m.Get(context.Background(), id)
		return err == nil && w.State == want
	}, 3*time.Second, 5*time.Millisecond, "workflow %s never reached %s", id, want)
	return w
}

func TestCreateValidatesTypeAndParams(t *testing.T) {
	m, _ := newTestManager(t, &stubExecutor{})
	ctx := context.Background()

	tests := []struct {
		name   string
		wtype  string
		params map[string]any
	}{
		{"unknown type", "reindex_everything", nil},
		{"missing directory", "validate_directory", map[string]any{}},
		{"blank directory", "full_audit", map[string]any{"directory_path": ""}},
		{"missing validation ids", "batch_enhance", map[string]any{}},
		{"empty id list", "batch_enhance", map[string]any{"validation_ids": []any{}}},
		{"non-string ids", "recommendation_batch", map[string]any{"recommendation_ids": []any{1, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Create(ctx, tt.wtype, tt.params)
			require.Error(t, err)
			assert.Equal(t, types.KindInvalidParams, types.KindOf(err))
		})
	}
}

func TestValidateDirectoryCompletes(t *testing.T) {
	exec := &stubExecutor{
		files: []string{"a.md", "b.md", "c.md"},
		validateFn: func(path string) (string, error) {
			if path == "b.md" {
				return "val-b", nil
			}
			return "", nil
		},
	}
	m, _ := newTestManager(t, exec)

	w, err := m.Create(context.Background(), "validate_directory",
		map[string]any{"directory_path": "./docs", "name": "nightly"})
	require.NoError(t, err)
	assert.Equal(t, types.WorkflowPending, w.State)

	done := waitForState(t, m, w.ID, types.WorkflowCompleted)
	assert.Equal(t, 3, done.CurrentStep)
	assert.Equal(t, 3, done.TotalSteps)
	assert.Equal(t, 100.0, done.ProgressPercent)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, "nightly", done.Metadata["name"])
	assert.Equal(t, 3, metadataInt(done.Metadata, "files_processed"))
	assert.Equal(t, 1, metadataInt(done.Metadata, "validations_created"))
	assert.Equal(t, 0, metadataInt(done.Metadata, "errors_count"))

	summary := Summarize(done)
	assert.Equal(t, "completed", summary["status"])
	assert.Equal(t, 100.0, summary["progress_percent"])
	assert.Equal(t, 3, summary["files_total"])
	assert.Equal(t, 0.0, summary["eta_seconds"])
}

func TestAllStepsFailingFailsWorkflow(t *testing.T) {
	exec := &stubExecutor{
		files:      []string{"a.md", "b.md"},
		validateFn: func(string) (string, error) { return "", errors.New("boom") },
	}
	m, _ := newTestManager(t, exec)

	w, err := m.Create(context.Background(), "validate_directory",
		map[string]any{"directory_path": "./docs"})
	require.NoError(t, err)

	done := waitForState(t, m, w.ID, types.WorkflowFailed)
	assert.Equal(t, "All steps failed", done.ErrorMessage)
	assert.Equal(t, 2, metadataInt(done.Metadata, "errors_count"))
	assert.Equal(t, 100.0, done.ProgressPercent)
}

func TestPartialFailuresStillComplete(t *testing.T) {
	exec := &stubExecutor{
		files: []string{"a.md", "b.md"},
		validateFn: func(path string) (string, error) {
			if path == "a.md" {
				return "", errors.New("unreadable")
			}
			return "val-1", nil
		},
	}
	m, _ := newTestManager(t, exec)

	w, err := m.Create(context.Background(), "validate_directory",
		map[string]any{"directory_path": "./docs"})
	require.NoError(t, err)

	done := waitForState(t, m, w.ID, types.WorkflowCompleted)
	assert.Equal(t, 1, metadataInt(done.Metadata, "errors_count"))
	assert.Equal(t, 1, metadataInt(done.Metadata, "files_processed"))
	errs, ok := done.Metadata["errors"].([]any)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "unreadable")
}

func TestListFailureFailsWorkflow(t *testing.T) {
	exec := &stubExecutor{listErr: errors.New("no such directory")}
	m, _ := newTestManager(t, exec)

	w, err := m.Create(context.Background(), "validate_directory",
		map[string]any{"directory_path": "./missing"})
	require.NoError(t, err)

	done := waitForState(t, m, w.ID, types.WorkflowFailed)
	assert.Contains(t, done.ErrorMessage, "no such directory")
}

func TestBatchEnhanceWorkflow(t *testing.T) {
	var enhanced []string
	exec := &stubExecutor{
		enhanceFn: func(id string) error {
			enhanced = append(enhanced, id)
			return nil
		},
	}
	m, _ := newTestManager(t, exec)

	w, err := m.Create(context.Background(), "batch_enhance",
		map[string]any{"validation_ids": []any{"v1", "v2"}})
	require.NoError(t, err)

	done := waitForState(t, m, w.ID, types.WorkflowCompleted)
	assert.Equal(t, []string{"v1", "v2"}, enhanced)
	assert.Equal(t, 2, metadataInt(done.Metadata, "enhanced_count"))
}

func TestRecommendationBatchWorkflow(t *testing.T) {
	exec := &stubExecutor{
		applyFn: func(id string) error {
			if id == "r2" {
				return errors.New("conflict")
			}
			return nil
		},
	}
	m, _ := newTestManager(t, exec)

	w, err := m.Create(context.Background(), "recommendation_batch",
		map[string]any{"recommendation_ids": []any{"r1", "r2", "r3"}})
	require.NoError(t, err)

	done := waitForState(t, m, w.ID, types.WorkflowCompleted)
	assert.Equal(t, 2, metadataInt(done.Metadata, "applied_count"))
	assert.Equal(t, 1, metadataInt(done.Metadata, "errors_count"))
}

func TestFullAuditGeneratesRecommendations(t *testing.T) {
	exec := &stubExecutor{
		files:      []string{"a.md", "b.md"},
		validateFn: func(path string) (string, error) { return "val-" + path, nil },
		recsFn:     func(id string) (int, error) { return 2, nil },
	}
	m, _ := newTestManager(t, exec)

	w, err := m.Create(context.Background(), "full_audit",
		map[string]any{"directory_path": "./docs"})
	require.NoError(t, err)

	done := waitForState(t, m, w.ID, types.WorkflowCompleted)
	assert.Equal(t, 2, metadataInt(done.Metadata, "validations_created"))
	assert.Equal(t, 4, metadataInt(done.Metadata, "recommendations_created"))
}

func TestPauseResumeCancel(t *testing.T) {
	exec := &stubExecutor{
		files:      []string{"a.md", "b.md", "c.md"},
		started:    make(chan string),
		release:    make(chan struct{}),
		validateFn: func(string) (string, error) { return "", nil },
	}
	m, _ := newTestManager(t, exec)
	ctx := context.Background()

	w, err := m.Create(ctx, "validate_directory", map[string]any{"directory_path": "./docs"})
	require.NoError(t, err)

	// First step underway.
	<-exec.started
	waitForState(t, m, w.ID, types.WorkflowRunning)

	state, err := m.Control(ctx, w.ID, "pause")
	require.NoError(t, err)
	assert.Equal(t, types.WorkflowPaused, state)

	// Finish the in-flight step; the worker must park at the boundary
	// with the pause intact and the step's progress persisted.
	exec.release <- struct{}{}
	require.Eventually(t, func() bool {
		got, err := m.Get(ctx, w.ID)
		return err == nil && got.State == types.WorkflowPaused && got.CurrentStep == 1
	}, 3*time.Second, 5*time.Millisecond)

	state, err = m.Control(ctx, w.ID, "resume")
	require.NoError(t, err)
	assert.Equal(t, types.WorkflowRunning, state)

	// Second step underway; cancel takes effect at its boundary.
	<-exec.started
	state, err = m.Control(ctx, w.ID, "cancel")
	require.NoError(t, err)
	assert.Equal(t, types.WorkflowCancelled, state)
	exec.release <- struct{}{}

	// The worker merges its counters into the cancelled record on exit.
	var done *types.Workflow
	require.Eventually(t, func() bool {
		got, err := m.Get(ctx, w.ID)
		if err != nil || got.State != types.WorkflowCancelled || got.CurrentStep != 2 {
			return false
		}
		done = got
		return true
	}, 3*time.Second, 5*time.Millisecond)
	require.NotNil(t, done.CompletedAt)
	assert.Less(t, done.ProgressPercent, 100.0)
}

func TestControlInvalidTransitions(t *testing.T) {
	m, st := newTestManager(t, &stubExecutor{})
	ctx := context.Background()

	// A terminal workflow accepts no further actions.
	now := types.Now()
	done := &types.Workflow{
		ID:        types.NewID(),
		Type:      types.WorkflowValidateDirectory,
		State:     types.WorkflowCompleted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.CreateWorkflow(ctx, done))

	for _, action := range []string{"pause", "resume", "cancel"} {
		_, err := m.Control(ctx, done.ID, action)
		require.Error(t, err, action)
		assert.Equal(t, types.KindInvalidParams, types.KindOf(err))
	}

	_, err := m.Control(ctx, done.ID, "restart")
	require.Error(t, err)
	assert.Equal(t, types.KindInvalidParams, types.KindOf(err))

	_, err = m.Control(ctx, "missing", "cancel")
	require.Error(t, err)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestDeleteRunningRequiresForce(t *testing.T) {
	exec := &stubExecutor{
		files:   []string{"a.md", "b.md"},
		started: make(chan string),
		release: make(chan struct{}),
	}
	m, _ := newTestManager(t, exec)
	ctx := context.Background()

	w, err := m.Create(ctx, "validate_directory", map[string]any{"directory_path": "./docs"})
	require.NoError(t, err)
	<-exec.started

	err = m.Delete(ctx, w.ID, false)
	require.Error(t, err)
	assert.Equal(t, types.KindInvalidParams, types.KindOf(err))

	require.NoError(t, m.Delete(ctx, w.ID, true))
	exec.release <- struct{}{}

	require.Eventually(t, func() bool {
		_, err := m.Get(ctx, w.ID)
		return types.KindOf(err) == types.KindNotFound
	}, 3*time.Second, 5*time.Millisecond)
}

func TestDeleteMissingWorkflow(t *testing.T) {
	m, _ := newTestManager(t, &stubExecutor{})
	err := m.Delete(context.Background(), "nope", false)
	require.Error(t, err)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestBulkDelete(t *testing.T) {
	exec := &stubExecutor{files: []string{"a.md"}}
	m, _ := newTestManager(t, exec)
	ctx := context.Background()

	first, err := m.Create(ctx, "validate_directory", map[string]any{"directory_path": "./docs"})
	require.NoError(t, err)
	second, err := m.Create(ctx, "validate_directory", map[string]any{"directory_path": "./docs"})
	require.NoError(t, err)
	waitForState(t, m, first.ID, types.WorkflowCompleted)
	waitForState(t, m, second.ID, types.WorkflowCompleted)

	// A zero selector deletes nothing.
	deleted, skipped, err := m.BulkDelete(ctx, store.WorkflowSelector{}, false)
	require.NoError(t, err)
	assert.Empty(t, deleted)
	assert.Empty(t, skipped)

	deleted, skipped, err = m.BulkDelete(ctx,
		store.WorkflowSelector{State: string(types.WorkflowCompleted)}, false)
	require.NoError(t, err)
	assert.Len(t, deleted, 2)
	assert.Empty(t, skipped)

	_, _, err = m.BulkDelete(ctx, store.WorkflowSelector{IDs: []string{first.ID}}, false)
	require.NoError(t, err)
}

func TestBulkDeleteSkipsRunning(t *testing.T) {
	exec := &stubExecutor{
		files:   []string{"a.md", "b.md"},
		started: make(chan string),
		release: make(chan struct{}),
	}
	m, _ := newTestManager(t, exec)
	ctx := context.Background()

	w, err := m.Create(ctx, "validate_directory", map[string]any{"directory_path": "./docs"})
	require.NoError(t, err)
	<-exec.started
	waitForState(t, m, w.ID, types.WorkflowRunning)

	deleted, skipped, err := m.BulkDelete(ctx, store.WorkflowSelector{IDs: []string{w.ID}}, false)
	require.NoError(t, err)
	assert.Empty(t, deleted)
	require.Len(t, skipped, 1)
	assert.Equal(t, w.ID, skipped[0].ID)
	assert.Contains(t, skipped[0].Reason, "running")

	// Unblock and let it finish so Close does not interrupt it.
	exec.release <- struct{}{}
	<-exec.started
	exec.release <- struct{}{}
	waitForState(t, m, w.ID, types.WorkflowCompleted)
}

func TestQueueRespectsMaxConcurrent(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	exec := &stubExecutor{
		files:   []string{"a.md"},
		started: make(chan string),
		release: make(chan struct{}),
	}

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.Workflows.MaxConcurrent = 1
	cfg.Workflows.PollInterval = "5ms"
	cfg.Workflows.HeartbeatInterval = "50ms"
	m := NewManager(st, cfg, exec)
	t.Cleanup(m.Close)
	ctx := context.Background()

	first, err := m.Create(ctx, "validate_directory", map[string]any{"directory_path": "./docs"})
	require.NoError(t, err)
	second, err := m.Create(ctx, "validate_directory", map[string]any{"directory_path": "./docs"})
	require.NoError(t, err)

	<-exec.started
	waitForState(t, m, first.ID, types.WorkflowRunning)

	got, err := m.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, types.WorkflowPending, got.State)

	exec.release <- struct{}{}
	<-exec.started
	exec.release <- struct{}{}

	waitForState(t, m, first.ID, types.WorkflowCompleted)
	waitForState(t, m, second.ID, types.WorkflowCompleted)
}

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		current, total int
		want           float64
	}{
		{0, 0, 0},
		{0, 3, 0},
		{1, 3, 33.3},
		{2, 3, 66.7},
		{5, 5, 100},
		{1, 7, 14.3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, progressPercent(tt.current, tt.total),
			"%d/%d", tt.current, tt.total)
	}
}

func TestSummarizeAndReport(t *testing.T) {
	started := types.Now().Add(-10 * time.Second)
	w := &types.Workflow{
		ID:              "wf1",
		Type:            types.WorkflowValidateDirectory,
		State:           types.WorkflowRunning,
		InputParams:     map[string]any{"directory_path": "./docs"},
		ProgressPercent: 50,
		CurrentStep:     5,
		TotalSteps:      10,
		Metadata: map[string]any{
			"started_at":      types.FormatTime(started),
			"files_processed": 5,
			"errors_count":    1,
			"step_metrics":    []map[string]any{{"step": 1, "status": "ok"}},
		},
		CreatedAt: started,
		UpdatedAt: types.Now(),
	}

	summary := Summarize(w)
	assert.Equal(t, "running", summary["status"])
	assert.Equal(t, 50.0, summary["progress_percent"])
	assert.Equal(t, 5, summary["files_processed"])
	assert.Equal(t, 10, summary["files_total"])
	assert.Equal(t, 1, summary["errors_count"])
	assert.InDelta(t, 10.0, summary["duration_seconds"].(float64), 1.0)
	assert.InDelta(t, 10.0, summary["eta_seconds"].(float64), 1.0)

	report := BuildReport(w, false)
	assert.Equal(t, "validate_directory", report["type"])
	_, hasDetails := report["details"]
	assert.False(t, hasDetails)

	report = BuildReport(w, true)
	details, ok := report["details"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, details, "step_metrics")
}
