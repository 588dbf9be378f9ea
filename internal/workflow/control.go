package workflow

import (
	"context"
	"strings"

	"docvet/internal/logging"
	"docvet/internal/types"
)

// Control actions accepted by control_workflow.
const (
	ActionPause  = "pause"
	ActionResume = "resume"
	ActionCancel = "cancel"
)

// Control applies a pause, resume, or cancel to a workflow. The new state
// is persisted immediately so callers observe it synchronously; the live
// worker notices at its next step boundary. Invalid transitions are
// invalid-params errors.
func (m *Manager) Control(ctx context.Context, id, action string) (types.WorkflowState, error) {
	action = strings.ToLower(strings.TrimSpace(action))
	switch action {
	case ActionPause, ActionResume, ActionCancel:
	default:
		return "", types.NewInvalidParams("Unknown workflow action: %s", action)
	}

	r := m.runnerFor(id)
	if r != nil {
		// Serialize with the worker's own persists so a progress write
		// cannot overwrite the state change.
		r.mu.Lock()
		defer r.mu.Unlock()
	}

	w, err := m.store.GetWorkflow(ctx, id)
	if err != nil {
		return "", err
	}

	next, err := nextState(w.State, action)
	if err != nil {
		return "", err
	}

	w.State = next
	w.UpdatedAt = types.Now()
	if next == types.WorkflowCancelled {
		now := types.Now()
		w.CompletedAt = &now
	}
	if err := m.store.UpdateWorkflow(ctx, w); err != nil {
		return "", err
	}

	if r != nil {
		switch action {
		case ActionPause:
			r.paused = true
		case ActionResume:
			r.paused = false
		case ActionCancel:
			r.cancelled = true
		}
	}

	logging.Workflow("workflow %s: %s -> %s", id, action, next)
	return next, nil
}

// nextState validates one transition of the workflow state machine.
func nextState(current types.WorkflowState, action string) (types.WorkflowState, error) {
	switch action {
	case ActionPause:
		if current == types.WorkflowRunning {
			return types.WorkflowPaused, nil
		}
	case ActionResume:
		if current == types.WorkflowPaused {
			return types.WorkflowRunning, nil
		}
	case ActionCancel:
		if current == types.WorkflowRunning || current == types.WorkflowPaused {
			return types.WorkflowCancelled, nil
		}
	}
	return "", types.NewInvalidParams("Cannot %s workflow in state %s", action, current)
}
