package server

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"docvet/internal/config"
	"docvet/internal/types"
)

// The genai dependency links opencensus, whose init starts a stats worker
// that lives for the whole process; it is not a leak from the server.
var ignoreOpenCensus = goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start")

// Rule fixture: one "words" family carrying every header check the tests
// exercise.
const testWordsRules = `
validation_requirements:
  required_fields:
    - title
    - difficulty
  field_types:
    title: string
    tags: list
  enum_fields:
    difficulty:
      - beginner
      - intermediate
      - advanced
  forbidden_fields:
    - legacy_id
`

// cleanDoc passes every validator; brokenDoc trips the required-field,
// field-type, forbidden-field, link, fence, and heading checks.
const cleanDoc = "---\ntitle: Hi\ndifficulty: beginner\n---\n# Hi\n\nHello.\n"

const brokenDoc = "---\ntitle: Broken doc\ntags: wrong\nlegacy_id: 7\n---\n" +
	"## Broken doc\n\n#### Deep dive\n\n```\ncode\n```\n\n" +
	"See https://example.com/spec for details.\n"

// stubLLM scripts model responses. When chatFn is set it runs instead of
// the canned response, which lets tests hold a call open mid-flight.
type stubLLM struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	down     bool
	chatFn   func(system, user string) (string, error)
}

func newStubLLM(response string) *stubLLM {
	return &stubLLM{response: response}
}

func (l *stubLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return l.ChatWithSystem(ctx, "", prompt)
}

func (l *stubLLM) ChatWithSystem(ctx context.Context, system, user string) (string, error) {
	l.mu.Lock()
	l.calls++
	fn, response, err := l.chatFn, l.response, l.err
	l.mu.Unlock()
	if fn != nil {
		return fn(system, user)
	}
	if err != nil {
		return "", err
	}
	return response, nil
}

func (l *stubLLM) ListModels(ctx context.Context) ([]string, error) {
	return []string{"stub-model"}, nil
}

func (l *stubLLM) IsAvailable(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.down
}

func (l *stubLLM) ModelName() string { return "stub-model" }

func (l *stubLLM) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func (l *stubLLM) setResponse(s string) {
	l.mu.Lock()
	l.response = s
	l.mu.Unlock()
}

func (l *stubLLM) setErr(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

func (l *stubLLM) setDown(down bool) {
	l.mu.Lock()
	l.down = down
	l.mu.Unlock()
}

// stubRecGenerator returns scripted drafts instead of consulting a model.
type stubRecGenerator struct {
	mu     sync.Mutex
	drafts []types.RecommendationDraft
	err    error
	calls  int
	last   types.RecommendationSnapshot
}

func (g *stubRecGenerator) Generate(ctx context.Context, snapshot types.RecommendationSnapshot) ([]types.RecommendationDraft, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.last = snapshot
	if g.err != nil {
		return nil, g.err
	}
	return append([]types.RecommendationDraft{}, g.drafts...), nil
}

func (g *stubRecGenerator) lastSnapshot() types.RecommendationSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// newTestServer builds a server over an in-memory store, a temp rules dir
// seeded with the words fixture, and a scripted LLM. The goleak check is
// registered before the close cleanup so it runs after it.
func newTestServer(t *testing.T, opts ...Option) (*Server, *stubLLM) {
	t.Helper()
	t.Cleanup(func() { goleak.VerifyNone(t, ignoreOpenCensus) })

	rulesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "words.yaml"), []byte(testWordsRules), 0o644))

	cfg := config.DefaultConfig()
	cfg.Database.Path = ":memory:"
	cfg.Rules.Dir = rulesDir
	cfg.Prompts.Dir = t.TempDir()
	cfg.Server.TempDir = t.TempDir()
	cfg.LLM.Timeout = "5s"
	cfg.Workflows.MaxConcurrent = 2
	cfg.Workflows.PollInterval = "5ms"
	cfg.Workflows.HeartbeatInterval = "50ms"

	stub := newStubLLM("better content")
	s, err := New(context.Background(), cfg, append([]Option{WithLLMClient(stub)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, stub
}

// writeDoc drops a markdown file into dir and returns its path.
func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// resultMap asserts a handler result is the usual string-keyed map.
func resultMap(t *testing.T, v any) map[string]any {
	t.Helper()
	m, ok := v.(map[string]any)
	require.True(t, ok, "result is %T, want map[string]any", v)
	return m
}

// validateFile runs validate_file on path and returns the validation id.
func validateFile(t *testing.T, s *Server, path string) string {
	t.Helper()
	res, err := s.handleValidateFile(context.Background(), map[string]any{"file_path": path})
	require.NoError(t, err)
	id, ok := resultMap(t, res)["validation_id"].(string)
	require.True(t, ok)
	return id
}

// approveIDs flips validations to approved and fails the test on any miss.
func approveIDs(t *testing.T, s *Server, ids ...string) {
	t.Helper()
	res, err := s.handleApprove(context.Background(), map[string]any{"ids": ids})
	require.NoError(t, err)
	m := resultMap(t, res)
	require.Equal(t, len(ids), m["approved_count"], "approve errors: %v", m["errors"])
}

func TestNewServerWiresMethodSurface(t *testing.T) {
	s, _ := newTestServer(t)

	reg := s.Registry()
	require.Equal(t, 52, reg.Len())

	// One representative per module; the scenario tests cover the rest.
	for _, method := range []string{
		"validate_file", "approve", "generate_recommendations", "enhance",
		"create_workflow", "get_system_status", "get_audit_log",
	} {
		_, ok := reg.Get(method)
		assert.True(t, ok, "method %s not registered", method)
	}

	// Every admin method is also a mutating method, and both sets only
	// name registered methods.
	for method := range adminMethods {
		assert.True(t, mutatingMethods[method], "admin method %s not mutating", method)
	}
	for method := range mutatingMethods {
		_, ok := reg.Get(method)
		assert.True(t, ok, "mutating method %s not registered", method)
	}
}

func TestMaintenanceGateBlocksMutations(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleEnableMaintenanceMode(ctx, map[string]any{"reason": "schema upgrade"})
	require.NoError(t, err)

	gate := &maintenanceGate{s: s}

	err = gate.CheckMethod("validate_file")
	require.Error(t, err)
	assert.Equal(t, types.KindUnauthorized, types.KindOf(err))
	assert.EqualError(t, err, "Server is in maintenance mode: schema upgrade")

	// Reads and admin repairs pass through.
	assert.NoError(t, gate.CheckMethod("get_validation"))
	assert.NoError(t, gate.CheckMethod("list_validations"))
	assert.NoError(t, gate.CheckMethod("clear_cache"))
	assert.NoError(t, gate.CheckMethod("disable_maintenance_mode"))

	res, err := s.handleDisableMaintenanceMode(ctx, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 1, resultMap(t, res)["closed_count"])
	assert.NoError(t, gate.CheckMethod("validate_file"))
}

func TestMaintenanceModeSurvivesRestart(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t, ignoreOpenCensus) })

	rulesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "words.yaml"), []byte(testWordsRules), 0o644))

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "docvet.db")
	cfg.Rules.Dir = rulesDir
	cfg.Prompts.Dir = t.TempDir()
	cfg.Workflows.PollInterval = "5ms"
	cfg.Workflows.HeartbeatInterval = "50ms"

	ctx := context.Background()
	first, err := New(ctx, cfg, WithLLMClient(newStubLLM("")))
	require.NoError(t, err)
	_, err = first.handleEnableMaintenanceMode(ctx, map[string]any{"reason": "migration"})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(ctx, cfg, WithLLMClient(newStubLLM("")))
	require.NoError(t, err)
	defer second.Close()

	err = (&maintenanceGate{s: second}).CheckMethod("validate_file")
	require.Error(t, err)
	assert.EqualError(t, err, "Server is in maintenance mode: migration")
}
