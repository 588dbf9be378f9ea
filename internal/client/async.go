package client

import (
	"context"
	"sync"

	"docvet/internal/config"
)

// Result is one async call outcome: exactly one of Value and Err is set.
type Result struct {
	Value map[string]any
	Err   error
}

// AsyncClient runs calls in the background and delivers each outcome on a
// single-buffered channel. Concurrency is bounded by the transport: pass an
// rpc.Async so bursts queue on its worker pool instead of piling onto the
// store.
type AsyncClient struct {
	c  *Client
	wg sync.WaitGroup
}

// NewAsync builds an async client over a transport with the retry policy
// from cfg.
func NewAsync(t Transport, cfg *config.Config) *AsyncClient {
	return &AsyncClient{c: New(t, cfg)}
}

// Sync returns the underlying synchronous client.
func (a *AsyncClient) Sync() *Client {
	return a.c
}

// Call dispatches one method in the background. The returned channel
// receives exactly one Result and is never closed.
func (a *AsyncClient) Call(ctx context.Context, method string, params map[string]any) <-chan Result {
	out := make(chan Result, 1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		value, err := a.c.Call(ctx, method, params)
		out <- Result{Value: value, Err: err}
	}()
	return out
}

// CallAll dispatches the method once per params entry and returns results
// in input order, blocking until every call completes.
func (a *AsyncClient) CallAll(ctx context.Context, method string, paramSets []map[string]any) []Result {
	channels := make([]<-chan Result, len(paramSets))
	for i, params := range paramSets {
		channels[i] = a.Call(ctx, method, params)
	}
	results := make([]Result, len(channels))
	for i, ch := range channels {
		results[i] = <-ch
	}
	return results
}

// Wait blocks until every in-flight call has delivered its result.
func (a *AsyncClient) Wait() {
	a.wg.Wait()
}
