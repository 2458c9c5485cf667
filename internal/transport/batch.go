package transport

import (
	"context"
	"sync"
	"time"
)

// batcher coalesces batchable mutations issued close together into a single
// HTTP call. A batch flushes when it reaches its size limit or when the
// collection window elapses, whichever comes first. Results are matched to
// callers by position.
type batcher struct {
	client *Client
	max    int
	window time.Duration

	mu      sync.Mutex
	pending []*batchCall
	timer   *time.Timer
}

type batchCall struct {
	op   operation
	done chan batchResult
}

type batchResult struct {
	res wireResult
	err error
}

func newBatcher(client *Client, max int, window time.Duration) *batcher {
	return &batcher{client: client, max: max, window: window}
}

// do enqueues one mutation and waits for the batch it lands in to complete.
func (b *batcher) do(ctx context.Context, document string, variables map[string]any) (*Response, error) {
	call := &batchCall{
		op:   operation{Query: document, Variables: variables},
		done: make(chan batchResult, 1),
	}

	b.mu.Lock()
	b.pending = append(b.pending, call)
	switch {
	case len(b.pending) >= b.max:
		batch := b.take()
		b.mu.Unlock()
		go b.flush(batch)
	case len(b.pending) == 1:
		b.timer = time.AfterFunc(b.window, func() {
			b.mu.Lock()
			batch := b.take()
			b.mu.Unlock()
			b.flush(batch)
		})
		b.mu.Unlock()
	default:
		b.mu.Unlock()
	}

	select {
	case result := <-call.done:
		if result.err != nil {
			return nil, result.err
		}
		return decodeResult(document, result.res)
	case <-ctx.Done():
		return nil, classifyTransportError(ctx.Err())
	}
}

// take detaches the pending batch. Caller holds b.mu.
func (b *batcher) take() []*batchCall {
	batch := b.pending
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return batch
}

// flush posts one detached batch and fans results back out. The batch runs
// under its own context so that one caller abandoning its wait does not
// cancel the siblings it was coalesced with.
func (b *batcher) flush(batch []*batchCall) {
	if len(batch) == 0 {
		return
	}
	ops := make([]operation, len(batch))
	for i, call := range batch {
		ops[i] = call.op
	}
	results, err := b.client.post(context.Background(), ops)
	for i, call := range batch {
		if err != nil {
			call.done <- batchResult{err: err}
			continue
		}
		call.done <- batchResult{res: results[i]}
	}
}
