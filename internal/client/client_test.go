package client

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"docvet/internal/config"
	"docvet/internal/rpc"
	"docvet/internal/types"
)

// scriptedTransport replays canned responses in order, repeating the last
// one, and records every request it sees.
type scriptedTransport struct {
	mu        sync.Mutex
	responses []*rpc.Response
	requests  []*rpc.Request
}

func (s *scriptedTransport) Dispatch(ctx context.Context, req *rpc.Request) *rpc.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	i := len(s.requests) - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	resp := *s.responses[i]
	resp.ID = req.ID
	return &resp
}

func (s *scriptedTransport) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptedTransport) lastRequest(t *testing.T) *rpc.Request {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.requests)
	return s.requests[len(s.requests)-1]
}

func okResp(result map[string]any) *rpc.Response {
	return &rpc.Response{JSONRPC: rpc.Version, Result: result}
}

func errResp(err *types.Error) *rpc.Response {
	return &rpc.Response{JSONRPC: rpc.Version, Error: &rpc.ErrorObject{
		Code:    err.Code(),
		Message: err.Error(),
		Data:    err.Data,
	}}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Client.MaxRetries = 3
	cfg.Client.BaseBackoff = "1ms"
	return cfg
}

func TestCallRetriesTransientFailures(t *testing.T) {
	tr := &scriptedTransport{responses: []*rpc.Response{
		errResp(types.NewTimeout("LLM call timed out")),
		errResp(types.NewInternal("database is locked")),
		okResp(map[string]any{"success": true}),
	}}
	c := New(tr, testConfig())

	res, err := c.Call(context.Background(), "get_stats", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"success": true}, res)
	assert.Equal(t, 3, tr.calls())
}

func TestCallStopsOnDomainError(t *testing.T) {
	tr := &scriptedTransport{responses: []*rpc.Response{
		errResp(types.NewNotFound("Validation V1 not found")),
		okResp(map[string]any{"success": true}),
	}}
	c := New(tr, testConfig())

	_, err := c.Call(context.Background(), "get_validation", map[string]any{"id": "V1"})
	require.Error(t, err)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
	assert.EqualError(t, err, "Validation V1 not found")
	assert.Equal(t, 1, tr.calls(), "domain errors must not retry")
}

func TestCallExhaustsRetryBudget(t *testing.T) {
	tr := &scriptedTransport{responses: []*rpc.Response{
		errResp(types.NewTimeout("still down")),
	}}
	cfg := testConfig()
	cfg.Client.MaxRetries = 2
	c := New(tr, cfg)

	_, err := c.Call(context.Background(), "run_gc", nil)
	require.Error(t, err)
	assert.Equal(t, types.KindTimeout, types.KindOf(err))
	assert.EqualError(t, err, "still down")
	assert.Equal(t, 3, tr.calls(), "one initial attempt plus two retries")
}

func TestCallHonorsContext(t *testing.T) {
	tr := &scriptedTransport{responses: []*rpc.Response{
		errResp(types.NewTimeout("still down")),
	}}
	cfg := testConfig()
	cfg.Client.BaseBackoff = "50ms"
	c := New(tr, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := c.Call(ctx, "run_gc", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRequestIDsIncrement(t *testing.T) {
	tr := &scriptedTransport{responses: []*rpc.Response{okResp(map[string]any{})}}
	c := New(tr, testConfig())

	_, err := c.Call(context.Background(), "get_stats", nil)
	require.NoError(t, err)
	_, err = c.Call(context.Background(), "get_stats", nil)
	require.NoError(t, err)

	assert.Equal(t, json.RawMessage("1"), tr.requests[0].ID)
	assert.Equal(t, json.RawMessage("2"), tr.requests[1].ID)
	assert.Equal(t, rpc.Version, tr.requests[0].JSONRPC)
}

func TestTypedMethodsBuildParams(t *testing.T) {
	tests := []struct {
		name   string
		invoke func(c *Client) error
		method string
		want   map[string]any
	}{
		{
			name: "validate file with options",
			invoke: func(c *Client) error {
				_, err := c.ValidateFile(context.Background(), "docs/a.md", &ValidateOptions{
					Family:          "code",
					ValidationTypes: []string{"header", "content"},
				})
				return err
			},
			method: "validate_file",
			want: map[string]any{
				"file_path":        "docs/a.md",
				"family":           "code",
				"validation_types": []any{"header", "content"},
			},
		},
		{
			name: "reject with reason",
			invoke: func(c *Client) error {
				_, err := c.Reject(context.Background(), "stale content", "V1", "V2")
				return err
			},
			method: "reject",
			want: map[string]any{
				"ids":    []any{"V1", "V2"},
				"reason": "stale content",
			},
		},
		{
			name: "apply with dry run and no backup",
			invoke: func(c *Client) error {
				_, err := c.ApplyRecommendations(context.Background(), "V1", &ApplyOptions{
					RecommendationIDs: []string{"R1"},
					DryRun:            true,
					SkipBackup:        true,
				})
				return err
			},
			method: "apply_recommendations",
			want: map[string]any{
				"validation_id":      "V1",
				"recommendation_ids": []any{"R1"},
				"dry_run":            true,
				"create_backup":      false,
			},
		},
		{
			name: "list query omits zero fields",
			invoke: func(c *Client) error {
				_, err := c.ListWorkflows(context.Background(), &ListQuery{Status: "running", Limit: 10})
				return err
			},
			method: "list_workflows",
			want: map[string]any{
				"status": "running",
				"limit":  float64(10),
			},
		},
		{
			name: "nil list query sends empty params",
			invoke: func(c *Client) error {
				_, err := c.ListValidations(context.Background(), nil)
				return err
			},
			method: "list_validations",
			want:   map[string]any{},
		},
		{
			name: "generate recommendations with threshold",
			invoke: func(c *Client) error {
				_, err := c.GenerateRecommendations(context.Background(), "V1", &RecommendOptions{
					Threshold: 0.9,
					Types:     []string{"link_review"},
				})
				return err
			},
			method: "generate_recommendations",
			want: map[string]any{
				"validation_id": "V1",
				"threshold":     0.9,
				"types":         []any{"link_review"},
			},
		},
		{
			name: "export workflow with validations",
			invoke: func(c *Client) error {
				_, err := c.ExportWorkflow(context.Background(), "W1", true)
				return err
			},
			method: "export_workflow",
			want: map[string]any{
				"id":                  "W1",
				"include_validations": true,
			},
		},
		{
			name: "delete workflow omits force by default",
			invoke: func(c *Client) error {
				_, err := c.DeleteWorkflow(context.Background(), "W1", false)
				return err
			},
			method: "delete_workflow",
			want:   map[string]any{"workflow_id": "W1"},
		},
		{
			name: "audit query",
			invoke: func(c *Client) error {
				_, err := c.GetAuditLog(context.Background(), &AuditQuery{
					Operation: "approve",
					User:      "alice",
					Limit:     5,
				})
				return err
			},
			method: "get_audit_log",
			want: map[string]any{
				"operation": "approve",
				"user":      "alice",
				"limit":     float64(5),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &scriptedTransport{responses: []*rpc.Response{okResp(map[string]any{"success": true})}}
			c := New(tr, testConfig())
			require.NoError(t, tt.invoke(c))

			req := tr.lastRequest(t)
			assert.Equal(t, tt.method, req.Method)
			var params map[string]any
			require.NoError(t, json.Unmarshal(req.Params, &params))
			assert.Equal(t, tt.want, params)
		})
	}
}

func TestClientAgainstDispatcher(t *testing.T) {
	reg := rpc.NewRegistry()
	reg.Register("echo", func(ctx context.Context, params map[string]any) (any, error) {
		return map[string]any{"echo": params}, nil
	})
	reg.Register("fail", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, types.NewInvalidParams("Missing required parameter: id")
	})
	c := New(rpc.NewDispatcher(reg), testConfig())
	ctx := context.Background()

	res, err := c.Call(ctx, "echo", map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"echo": map[string]any{"k": "v"}}, res)

	_, err = c.Call(ctx, "fail", nil)
	require.Error(t, err)
	assert.Equal(t, types.KindInvalidParams, types.KindOf(err))
	assert.EqualError(t, err, "Missing required parameter: id")

	_, err = c.Call(ctx, "ghost", nil)
	require.Error(t, err)
	assert.Equal(t, types.KindMethodNotFound, types.KindOf(err))
	assert.EqualError(t, err, "Method not found: ghost")
}

func TestAsyncClientCollectsInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := rpc.NewRegistry()
	var active, peak atomic.Int64
	reg.Register("tag", func(ctx context.Context, params map[string]any) (any, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return map[string]any{"tag": params["tag"]}, nil
	})
	pool := rpc.NewAsync(rpc.NewDispatcher(reg), 2)
	a := NewAsync(pool, testConfig())

	paramSets := make([]map[string]any, 6)
	for i := range paramSets {
		paramSets[i] = map[string]any{"tag": float64(i)}
	}
	results := a.CallAll(context.Background(), "tag", paramSets)
	require.Len(t, results, 6)
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, float64(i), r.Value["tag"])
	}
	assert.LessOrEqual(t, peak.Load(), int64(2), "pool bounds concurrency")
	a.Wait()
}

func TestAsyncClientSurfacesErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := rpc.NewRegistry()
	reg.Register("ok", func(ctx context.Context, params map[string]any) (any, error) {
		return map[string]any{"success": true}, nil
	})
	a := NewAsync(rpc.NewDispatcher(reg), testConfig())

	okCh := a.Call(context.Background(), "ok", nil)
	missCh := a.Call(context.Background(), "missing", nil)

	res := <-okCh
	require.NoError(t, res.Err)
	assert.Equal(t, map[string]any{"success": true}, res.Value)

	res = <-missCh
	require.Error(t, res.Err)
	assert.Equal(t, types.KindMethodNotFound, types.KindOf(res.Err))
	assert.Nil(t, res.Value)

	a.Wait()
	assert.Same(t, a.Sync(), a.Sync())
}
