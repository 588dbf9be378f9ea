package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"docvet/internal/logging"
	"docvet/internal/types"
)

// maxStoredErrors bounds the error strings kept in workflow metadata; the
// errors_count counter still reflects every failure.
const maxStoredErrors = 100

var (
	// errCancelled stops a worker whose workflow was cancelled; the control
	// path has already persisted the terminal state.
	errCancelled = errors.New("workflow cancelled")
	// errGone stops a worker whose row was deleted underneath it; there is
	// nothing left to persist.
	errGone = errors.New("workflow deleted")
)

// track accumulates the worker's counters between persists.
type track struct {
	startedAt     time.Time
	succeeded     int
	errorsCount   int
	errors        []string
	counters      map[string]int
	validationIDs []string
	stepMetrics   []map[string]any
}

// runner is the background worker for one workflow. The mutex serializes
// its own persists with control actions; paused and cancelled are the
// cooperative flags polled at step boundaries.
type runner struct {
	m  *Manager
	id string

	mu        sync.Mutex
	paused    bool
	cancelled bool

	track track
}

func newRunner(m *Manager, id string) *runner {
	return &runner{
		m:  m,
		id: id,
		track: track{
			counters: make(map[string]int),
		},
	}
}

// requestCancel flags the worker without touching the database. Used when
// the row is already gone.
func (r *runner) requestCancel() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
}

// run is the worker body: wait for a slot, move the record to running,
// execute the steps, and finalize.
func (r *runner) run(ctx context.Context) {
	if err := r.m.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer r.m.sem.Release(1)

	w, err := r.m.store.GetWorkflow(ctx, r.id)
	if err != nil {
		logging.WorkflowError("worker %s: load failed: %v", r.id, err)
		return
	}
	if w.State != types.WorkflowPending {
		logging.Workflow("worker %s: not pending (state=%s), skipping", r.id, w.State)
		return
	}

	if err := r.start(ctx, w); err != nil {
		logging.WorkflowError("worker %s: start failed: %v", r.id, err)
		return
	}

	stopHeartbeat := r.startHeartbeat(ctx)
	execErr := r.execute(ctx, w)
	stopHeartbeat()
	r.finalize(ctx, w, execErr)
}

// start moves the workflow from pending to running.
func (r *runner) start(ctx context.Context, w *types.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return errGone
	}

	r.track.startedAt = types.Now()
	if w.Metadata == nil {
		w.Metadata = map[string]any{}
	}
	w.Metadata["started_at"] = types.FormatTime(r.track.startedAt)
	w.State = types.WorkflowRunning
	w.UpdatedAt = types.Now()
	return r.m.store.UpdateWorkflow(ctx, w)
}

// startHeartbeat bumps updated_at on a coarse interval so long steps do not
// look like a dead worker. The returned stop joins the goroutine.
func (r *runner) startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.m.cfg.GetHeartbeatInterval())
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.m.store.TouchWorkflow(ctx, r.id, types.Now()); err != nil {
					logging.WorkflowError("worker %s: heartbeat failed: %v", r.id, err)
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		wg.Wait()
	}
}

// execute dispatches on the workflow type.
func (r *runner) execute(ctx context.Context, w *types.Workflow) error {
	switch w.Type {
	case types.WorkflowValidateDirectory:
		return r.runDirectory(ctx, w, false)
	case types.WorkflowFullAudit:
		return r.runDirectory(ctx, w, true)
	case types.WorkflowBatchEnhance:
		return r.runIDList(ctx, w, "validation_ids", "enhanced_count", r.m.exec.EnhanceValidation)
	case types.WorkflowRecommendationBatch:
		return r.runIDList(ctx, w, "recommendation_ids", "applied_count", r.m.exec.ApplyRecommendation)
	default:
		return types.NewInternal("unhandled workflow type: %s", w.Type)
	}
}

// runDirectory validates every markdown file under the input directory.
// With audit set, files that produced findings also get recommendations
// generated in the same step.
func (r *runner) runDirectory(ctx context.Context, w *types.Workflow, audit bool) error {
	dir, err := directoryParam(w.InputParams)
	if err != nil {
		return err
	}
	files, err := r.m.exec.ListMarkdownFiles(dir, recursiveParam(w.InputParams))
	if err != nil {
		return err
	}
	if err := r.setTotal(ctx, w, len(files)); err != nil {
		return err
	}

	for i, path := range files {
		if err := r.checkpoint(ctx); err != nil {
			return err
		}

		begin := time.Now()
		validationID, stepErr := r.m.exec.ValidateFile(ctx, path)
		recommendations := 0
		if stepErr == nil && audit && validationID != "" {
			recommendations, stepErr = r.m.exec.GenerateRecommendations(ctx, validationID)
		}
		r.recordStep(i+1, path, time.Since(begin), stepErr)

		if stepErr == nil {
			r.track.succeeded++
			r.track.counters["files_processed"]++
			if validationID != "" {
				r.track.counters["validations_created"]++
				r.track.validationIDs = append(r.track.validationIDs, validationID)
			}
			if audit {
				r.track.counters["recommendations_created"] += recommendations
			}
		}

		if err := r.stepBoundary(ctx, w, i+1, len(files)); err != nil {
			return err
		}
	}
	return nil
}

// runIDList applies one executor call to each id in the named input list.
func (r *runner) runIDList(ctx context.Context, w *types.Workflow, key, counter string, fn func(context.Context, string) error) error {
	ids, err := idListParam(w.InputParams, key)
	if err != nil {
		return err
	}
	if err := r.setTotal(ctx, w, len(ids)); err != nil {
		return err
	}

	for i, id := range ids {
		if err := r.checkpoint(ctx); err != nil {
			return err
		}

		begin := time.Now()
		stepErr := fn(ctx, id)
		r.recordStep(i+1, id, time.Since(begin), stepErr)

		if stepErr == nil {
			r.track.succeeded++
			r.track.counters["files_processed"]++
			r.track.counters[counter]++
		}

		if err := r.stepBoundary(ctx, w, i+1, len(ids)); err != nil {
			return err
		}
	}
	return nil
}

// checkpoint is the cooperative yield point between steps: it returns
// immediately while running, blocks while paused, and fails once cancelled.
func (r *runner) checkpoint(ctx context.Context) error {
	for {
		r.mu.Lock()
		cancelled, paused := r.cancelled, r.paused
		r.mu.Unlock()

		if cancelled {
			return errCancelled
		}
		if !paused {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.m.cfg.GetPollInterval()):
		}
	}
}

// recordStep appends one step metric and accounts for its error.
func (r *runner) recordStep(step int, item string, dur time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		r.track.errorsCount++
		if len(r.track.errors) < maxStoredErrors {
			r.track.errors = append(r.track.errors, item+": "+err.Error())
		}
		logging.WorkflowError("worker %s step %d (%s): %v", r.id, step, item, err)
	}
	r.track.stepMetrics = append(r.track.stepMetrics, map[string]any{
		"step":        step,
		"item":        item,
		"duration_ms": float64(dur.Microseconds()) / 1000.0,
		"status":      status,
	})
}

// setTotal records the resolved step count before the loop starts.
func (r *runner) setTotal(ctx context.Context, w *types.Workflow, total int) error {
	w.TotalSteps = total
	w.CurrentStep = 0
	return r.persistProgress(ctx, w)
}

// stepBoundary persists progress after each step except the last; the final
// boundary is owned by finalize so a progress of 100 is only ever written
// together with a terminal state.
func (r *runner) stepBoundary(ctx context.Context, w *types.Workflow, current, total int) error {
	w.CurrentStep = current
	if current >= total {
		return nil
	}
	return r.persistProgress(ctx, w)
}

// persistProgress writes counters and progress while the workflow is still
// running. It holds the control mutex so it can never overwrite a state
// change that landed mid-step.
func (r *runner) persistProgress(ctx context.Context, w *types.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return errCancelled
	}

	// A pause that landed mid-step must survive this write; the worker
	// blocks at the next checkpoint either way.
	if r.paused {
		w.State = types.WorkflowPaused
	} else {
		w.State = types.WorkflowRunning
	}

	r.applyTrack(w)
	w.ProgressPercent = progressPercent(w.CurrentStep, w.TotalSteps)
	w.UpdatedAt = types.Now()
	if err := r.m.store.UpdateWorkflow(ctx, w); err != nil {
		if types.KindOf(err) == types.KindNotFound {
			return errGone
		}
		return err
	}
	return nil
}

// finalize writes the terminal record: state, progress, counters, and
// completion time.
func (r *runner) finalize(ctx context.Context, w *types.Workflow, execErr error) {
	if errors.Is(execErr, errGone) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if errors.Is(execErr, errCancelled) || r.cancelled {
		r.finalizeCancelled(ctx, w)
		return
	}

	now := types.Now()
	r.applyTrack(w)
	w.UpdatedAt = now
	w.CompletedAt = &now

	switch {
	case execErr != nil && errors.Is(execErr, context.Canceled):
		w.State = types.WorkflowFailed
		w.ErrorMessage = "Workflow interrupted by shutdown"
		w.ProgressPercent = progressPercent(w.CurrentStep, w.TotalSteps)
	case execErr != nil:
		w.State = types.WorkflowFailed
		w.ErrorMessage = execErr.Error()
		w.ProgressPercent = progressPercent(w.CurrentStep, w.TotalSteps)
	case w.TotalSteps > 0 && r.track.succeeded == 0 && r.track.errorsCount > 0:
		// Every step failed: the workflow itself failed.
		w.State = types.WorkflowFailed
		w.ErrorMessage = "All steps failed"
		w.CurrentStep = w.TotalSteps
		w.ProgressPercent = 100
	default:
		w.State = types.WorkflowCompleted
		w.CurrentStep = w.TotalSteps
		w.ProgressPercent = 100
	}

	if err := r.m.store.UpdateWorkflow(ctx, w); err != nil {
		logging.WorkflowError("worker %s: finalize failed: %v", r.id, err)
		return
	}
	logging.Workflow("workflow %s finished: state=%s steps=%d/%d errors=%d",
		r.id, w.State, w.CurrentStep, w.TotalSteps, r.track.errorsCount)
}

// finalizeCancelled merges the worker's counters into the already-cancelled
// record without disturbing its state.
func (r *runner) finalizeCancelled(ctx context.Context, w *types.Workflow) {
	fresh, err := r.m.store.GetWorkflow(ctx, r.id)
	if err != nil {
		// Deleted while cancelling; nothing to persist.
		return
	}

	r.applyTrack(fresh)
	fresh.CurrentStep = w.CurrentStep
	fresh.TotalSteps = w.TotalSteps
	fresh.ProgressPercent = progressPercent(fresh.CurrentStep, fresh.TotalSteps)
	fresh.UpdatedAt = types.Now()
	if !fresh.State.IsTerminal() {
		now := types.Now()
		fresh.State = types.WorkflowCancelled
		fresh.CompletedAt = &now
	}
	if err := r.m.store.UpdateWorkflow(ctx, fresh); err != nil {
		logging.WorkflowError("worker %s: cancel finalize failed: %v", r.id, err)
		return
	}
	logging.Workflow("workflow %s cancelled at step %d/%d", r.id, fresh.CurrentStep, fresh.TotalSteps)
}

// applyTrack copies the in-memory counters onto the record's metadata.
func (r *runner) applyTrack(w *types.Workflow) {
	if w.Metadata == nil {
		w.Metadata = map[string]any{}
	}
	for k, v := range r.track.counters {
		w.Metadata[k] = v
	}
	w.Metadata["errors_count"] = r.track.errorsCount
	if len(r.track.errors) > 0 {
		w.Metadata["errors"] = append([]string{}, r.track.errors...)
	}
	if len(r.track.validationIDs) > 0 {
		w.Metadata["validation_ids"] = append([]string{}, r.track.validationIDs...)
	}
	if len(r.track.stepMetrics) > 0 {
		w.Metadata["step_metrics"] = append([]map[string]any{}, r.track.stepMetrics...)
	}
}
