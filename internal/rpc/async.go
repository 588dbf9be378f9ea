package rpc

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"docvet/internal/types"
)

// Async bounds concurrent dispatches with a worker-pool semaphore. The
// dispatcher itself is synchronous; this adapter is what concurrent
// transports call so a burst of requests degrades to queueing instead of
// unbounded goroutines hammering the store.
type Async struct {
	d   *Dispatcher
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewAsync wraps a dispatcher with a pool of the given size.
func NewAsync(d *Dispatcher, workers int) *Async {
	if workers < 1 {
		workers = 1
	}
	return &Async{d: d, sem: semaphore.NewWeighted(int64(workers))}
}

// Dispatch runs one request through the pool, blocking the caller until a
// slot frees up and the handler completes.
func (a *Async) Dispatch(ctx context.Context, req *Request) *Response {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		id := req.ID
		if len(id) == 0 {
			id = nullID
		}
		return errorResponse(id, types.NewTimeout("Request cancelled while waiting for a worker"))
	}
	defer a.sem.Release(1)
	return a.d.Dispatch(ctx, req)
}

// DispatchRaw is Dispatch over serialized envelopes.
func (a *Async) DispatchRaw(ctx context.Context, raw []byte) []byte {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return mustMarshal(errorResponse(nullID, types.NewTimeout("Request cancelled while waiting for a worker")))
	}
	defer a.sem.Release(1)
	return a.d.DispatchRaw(ctx, raw)
}

// Submit runs one request in the background and delivers the response on
// the returned channel.
func (a *Async) Submit(ctx context.Context, req *Request) <-chan *Response {
	out := make(chan *Response, 1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		out <- a.Dispatch(ctx, req)
	}()
	return out
}

// Wait blocks until every submitted request has completed.
func (a *Async) Wait() {
	a.wg.Wait()
}
