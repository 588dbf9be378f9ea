package types

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-f]{32}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if !pattern.MatchString(id) {
			t.Fatalf("NewID() = %q, want 32 lowercase hex chars", id)
		}
		if seen[id] {
			t.Fatalf("NewID() produced duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestNowIsUTCMillis(t *testing.T) {
	now := Now()
	if now.Location() != time.UTC {
		t.Errorf("Now() location = %v, want UTC", now.Location())
	}
	if now.Nanosecond()%int(time.Millisecond) != 0 {
		t.Errorf("Now() = %v, want millisecond precision", now)
	}
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589*int(time.Millisecond), time.UTC)
	got := FormatTime(ts)
	want := "2025-03-14T09:26:53.589Z"
	if got != want {
		t.Errorf("FormatTime() = %q, want %q", got, want)
	}
}

func TestMaxSeverity(t *testing.T) {
	tests := []struct {
		a, b, want Severity
	}{
		{SeverityInfo, SeverityInfo, SeverityInfo},
		{SeverityInfo, SeverityWarning, SeverityWarning},
		{SeverityWarning, SeverityError, SeverityError},
		{SeverityError, SeverityInfo, SeverityError},
		{SeverityError, SeverityWarning, SeverityError},
	}
	for _, tt := range tests {
		if got := MaxSeverity(tt.a, tt.b); got != tt.want {
			t.Errorf("MaxSeverity(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range ValidStatuses {
		if !IsValidStatus(string(s)) {
			t.Errorf("IsValidStatus(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"", "PASS", "done", "unknown"} {
		if IsValidStatus(s) {
			t.Errorf("IsValidStatus(%q) = true, want false", s)
		}
	}
}

func TestStatusDisplay(t *testing.T) {
	if got := StatusApproved.Display(); got != "APPROVED" {
		t.Errorf("Display() = %q, want APPROVED", got)
	}
}

func TestAppendNote(t *testing.T) {
	rec := &ValidationRecord{}
	rec.AppendNote("first")
	rec.AppendNote("second")

	lines := strings.Split(rec.Notes, "\n")
	if len(lines) != 2 {
		t.Fatalf("Notes has %d lines, want 2: %q", len(lines), rec.Notes)
	}
	if !strings.HasSuffix(lines[0], "first") || !strings.HasSuffix(lines[1], "second") {
		t.Errorf("notes out of order: %q", rec.Notes)
	}
	if !strings.HasPrefix(lines[0], "[") {
		t.Errorf("note missing timestamp prefix: %q", lines[0])
	}
}

func TestWorkflowStateIsTerminal(t *testing.T) {
	terminal := []WorkflowState{WorkflowCompleted, WorkflowFailed, WorkflowCancelled}
	live := []WorkflowState{WorkflowPending, WorkflowRunning, WorkflowPaused}

	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = false, want true", s)
		}
	}
	for _, s := range live {
		if s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = true, want false", s)
		}
	}
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		code     int
		httpCode int
		exit     int
	}{
		{"invalid request", NewInvalidRequest("bad envelope"), -32600, 400, 2},
		{"method not found", NewMethodNotFound("nope"), -32601, 404, 2},
		{"invalid params", NewInvalidParams("missing id"), -32602, 400, 2},
		{"not found", NewNotFound("no such record"), -32001, 404, 3},
		{"timeout", NewTimeout("llm deadline"), -32002, 504, 4},
		{"validation failed", NewValidationFailed("fail"), -32000, 422, 5},
		{"unauthorized", NewUnauthorized("no"), -32003, 401, 1},
		{"rate limited", NewRateLimited("slow down"), -32004, 429, 1},
		{"internal", NewInternal("boom"), -32603, 500, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Code(); got != tt.code {
				t.Errorf("Code() = %d, want %d", got, tt.code)
			}
			if got := tt.err.HTTPStatus(); got != tt.httpCode {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.httpCode)
			}
			if got := tt.err.ExitCode(); got != tt.exit {
				t.Errorf("ExitCode() = %d, want %d", got, tt.exit)
			}
		})
	}
}

func TestMethodNotFoundMessage(t *testing.T) {
	err := NewMethodNotFound("nope")
	if err.Message != "Method not found: nope" {
		t.Errorf("message = %q", err.Message)
	}
}

func TestTransient(t *testing.T) {
	if !IsTransient(NewTimeout("t")) || !IsTransient(NewInternal("i")) || !IsTransient(NewRateLimited("r")) {
		t.Error("timeout/internal/rate-limited should be transient")
	}
	if IsTransient(NewInvalidParams("p")) || IsTransient(NewNotFound("n")) || IsTransient(NewValidationFailed("v")) {
		t.Error("domain errors must never be transient")
	}
}

func TestWrapInternalPreservesCause(t *testing.T) {
	cause := errors.New("disk on fire")
	err := WrapInternal(cause, "store write failed")

	if !errors.Is(err, cause) {
		t.Error("errors.Is should see the wrapped cause")
	}
	if KindOf(err) != KindInternal {
		t.Errorf("KindOf = %v, want internal", KindOf(err))
	}
}

func TestAsErrorUntyped(t *testing.T) {
	plain := fmt.Errorf("plain failure")
	te := AsError(plain)
	if te.Kind != KindInternal {
		t.Errorf("untyped error kind = %v, want internal", te.Kind)
	}
	if te.Message != "plain failure" {
		t.Errorf("message = %q", te.Message)
	}

	typed := NewNotFound("gone")
	wrapped := fmt.Errorf("handler: %w", typed)
	if AsError(wrapped).Kind != KindNotFound {
		t.Error("AsError should unwrap to the typed kind")
	}
}
