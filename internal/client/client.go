// Package client provides typed adapters over the JSON-RPC dispatcher for
// embedding docvet in other Go programs. The sync Client retries transient
// failures with exponential backoff; AsyncClient fans calls out concurrently
// and delivers results on channels.
package client

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"docvet/internal/config"
	"docvet/internal/logging"
	"docvet/internal/rpc"
	"docvet/internal/types"
)

// Transport executes one JSON-RPC request. Both the in-process dispatcher
// and the bounded async pool satisfy it.
type Transport interface {
	Dispatch(ctx context.Context, req *rpc.Request) *rpc.Response
}

// Client is the synchronous adapter. Calls that fail with a transient error
// (timeout, internal, rate limited) are retried on an exponential schedule;
// domain errors return immediately. All failures surface as *types.Error.
type Client struct {
	transport   Transport
	maxRetries  uint64
	baseBackoff time.Duration
	nextID      atomic.Int64
}

// New builds a client over a transport with the retry policy from cfg.
func New(t Transport, cfg *config.Config) *Client {
	return &Client{
		transport:   t,
		maxRetries:  uint64(cfg.Client.MaxRetries),
		baseBackoff: cfg.GetBaseBackoff(),
	}
}

// Call dispatches one method and returns its result object. Transient
// failures are retried up to the configured budget; the last error wins.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	var result map[string]any
	op := func() error {
		res, err := c.callOnce(ctx, method, params)
		if err != nil {
			if types.IsTransient(err) {
				logging.ClientDebug("%s failed transiently, retrying: %v", method, err)
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}
	if err := backoff.Retry(op, c.policy(ctx)); err != nil {
		return nil, types.AsError(err)
	}
	return result, nil
}

// policy is the retry schedule: baseBackoff doubling each attempt with no
// jitter, stopping after maxRetries retries or when ctx ends.
func (c *Client) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)
}

func (c *Client) callOnce(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, types.NewInvalidParams("Unserializable params for %s: %v", method, err)
	}

	req := &rpc.Request{
		JSONRPC: rpc.Version,
		Method:  method,
		Params:  raw,
		ID:      json.RawMessage(strconv.FormatInt(c.nextID.Add(1), 10)),
	}
	resp := c.transport.Dispatch(ctx, req)
	if resp.Error != nil {
		return nil, types.FromWire(resp.Error.Code, resp.Error.Message, resp.Error.Data)
	}

	result, ok := resp.Result.(map[string]any)
	if !ok {
		return nil, types.NewInternal("Unexpected result shape from %s: %T", method, resp.Result)
	}
	return result, nil
}
