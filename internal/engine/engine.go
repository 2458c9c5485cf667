package engine

import (
	"context"
	"log/slog"
	"sync"

	"worklog/internal/entity"
	"worklog/internal/store"
	"worklog/internal/transport"
)

// maxBatchSize caps how many batchable requests one drain step transmits
// together.
const maxBatchSize = 10

// drainSignal coalesces concurrent drain calls onto one queued task.
const drainSignal = "pending-requests"

// Transport sends one mutation to the backend. Batchable mutations issued
// concurrently may share an HTTP call.
type Transport interface {
	Mutate(ctx context.Context, document string, variables map[string]any, batchable bool) (*transport.Response, error)
}

// Engine executes pending requests against the backend through a serial
// execution lock.
type Engine struct {
	store    *store.Store
	client   Transport
	handlers *Registry
	exec     *SerialQueue
	log      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates an Engine draining st through client, dispatching outcomes via
// handlers.
func New(st *store.Store, client Transport, handlers *Registry, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		client:   client,
		handlers: handlers,
		exec:     NewSerialQueue(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Clear discards every execution task that has not started. Used at logout,
// after the store's queue itself has been dropped.
func (e *Engine) Clear() {
	e.exec.Clear()
}

// Submitting reports whether an execution task is in flight. Callers about
// to unwind a queued request locally check this first: a request being
// transmitted must settle through its handler instead.
func (e *Engine) Submitting() bool {
	return e.exec.Running()
}

// ExecuteRequest transmits one freshly enqueued request right away, ahead of
// any drain that is not yet running. A retryable failure leaves the request
// queued for a later drain and is returned to the caller.
func (e *Engine) ExecuteRequest(ctx context.Context, requestID int64) error {
	return e.exec.Execute(ctx, "", func(ctx context.Context) error {
		req, ok := e.lookupPending(requestID)
		if !ok {
			return nil
		}
		resolved, err := e.resolveTempIDs(ctx, req)
		if err != nil {
			return err
		}
		resp, err := e.client.Mutate(ctx, resolved.Query, resolved.Variables, false)
		if err != nil && (transport.IsRetryable(err) || transport.IsAuthenticationError(err)) {
			e.log.Info("request deferred",
				"request", requestID,
				"document", transport.DocumentName(resolved.Query),
				"error", err)
			return err
		}
		herr := e.applyOutcome(ctx, resolved, outcome{resp: resp, err: err})
		e.store.PostUpdate(ctx)
		return herr
	})
}

// ExecutePendingRequests drains the queue head-first until it is empty or a
// retryable failure stops progress. Concurrent calls coalesce onto a single
// drain. With failOnError set, the first unconsumed terminal error aborts
// the drain and is returned; otherwise terminal errors are absorbed by
// their handlers and only retryable or authentication failures surface.
func (e *Engine) ExecutePendingRequests(ctx context.Context, failOnError bool) error {
	return e.exec.Execute(ctx, drainSignal, func(ctx context.Context) error {
		return e.drain(ctx, failOnError)
	})
}

type outcome struct {
	resp *transport.Response
	err  error
}

func (e *Engine) drain(ctx context.Context, failOnError bool) error {
	processed := 0
	var firstErr error
	stopped := false

	for !stopped {
		pending := e.store.PendingRequests()
		if len(pending) == 0 {
			break
		}
		batch := composeBatch(pending)

		for i := range batch {
			resolved, err := e.resolveTempIDs(ctx, batch[i])
			if err != nil {
				return err
			}
			batch[i] = resolved
		}
		outcomes := e.transmit(ctx, batch)

		for i, out := range outcomes {
			req := batch[i]
			switch {
			case out.err != nil && transport.IsAuthenticationError(out.err):
				// Session is gone: leave the queue intact for whoever
				// handles the logout.
				if firstErr == nil {
					firstErr = out.err
				}
				stopped = true
			case out.err != nil && transport.IsRetryable(out.err):
				e.log.Info("drain stopped, request stays queued",
					"request", req.ID,
					"document", transport.DocumentName(req.Query),
					"error", out.err)
				if firstErr == nil && failOnError {
					firstErr = out.err
				}
				stopped = true
			default:
				processed++
				if herr := e.applyOutcome(ctx, req, out); herr != nil {
					if firstErr == nil {
						firstErr = herr
					}
					if failOnError {
						stopped = true
					}
				}
			}
		}
	}

	if processed > 0 {
		e.store.PostUpdate(ctx)
	}
	if failOnError || transport.IsAuthenticationError(firstErr) {
		return firstErr
	}
	return nil
}

// composeBatch picks the next transmission unit: the head alone when it is
// not batchable, otherwise the longest run of consecutive batchable
// requests up to the batch size cap. The head is always included, so a
// drain makes progress even when nothing can be batched.
func composeBatch(pending []entity.Request) []entity.Request {
	if !pending[0].Batchable {
		return pending[:1:1]
	}
	n := 1
	for n < len(pending) && n < maxBatchSize && pending[n].Batchable {
		n++
	}
	return pending[:n:n]
}

// transmit executes one batch concurrently and collects per-request
// outcomes in batch order.
func (e *Engine) transmit(ctx context.Context, batch []entity.Request) []outcome {
	outs := make([]outcome, len(batch))
	var wg sync.WaitGroup
	for i, req := range batch {
		wg.Add(1)
		go func(i int, req entity.Request) {
			defer wg.Done()
			resp, err := e.client.Mutate(ctx, req.Query, req.Variables, req.Batchable && len(batch) > 1)
			outs[i] = outcome{resp: resp, err: err}
		}(i, req)
	}
	wg.Wait()
	return outs
}

// applyOutcome runs the request's handler and consumes the request. For a
// terminal failure the optimistic state is rolled back by the clear, the
// error handler runs first, and requests that depended on this one are
// cancelled.
func (e *Engine) applyOutcome(ctx context.Context, req entity.Request, out outcome) error {
	handler, ok := e.handlers.Lookup(req.Handler)
	if !ok {
		e.log.Warn("no handler registered", "handler", req.Handler, "request", req.ID)
		handler = HandlerFuncs{}
	}

	var herr error
	if out.err == nil {
		if err := handler.OnSuccess(ctx, out.resp, req.StoreInfo); err != nil {
			e.log.Error("success handler failed",
				"request", req.ID,
				"handler", req.Handler,
				"error", err)
		}
		e.store.ClearPendingRequest(ctx, req.ID)
		return nil
	}

	e.log.Warn("request rejected",
		"request", req.ID,
		"document", transport.DocumentName(req.Query),
		"error", out.err)
	herr = handler.OnError(ctx, out.err, req.StoreInfo)
	e.store.ClearPendingRequest(ctx, req.ID)
	e.cancelRelated(ctx, req)
	return herr
}

// cancelRelated clears the requests invalidated by a terminal failure:
// every queued request referencing a temporary ID this request was supposed
// to make permanent, transitively, and the whole group when the request was
// enqueued with KillGroupOnFail.
func (e *Engine) cancelRelated(ctx context.Context, failed entity.Request) {
	seen := map[int64]bool{failed.ID: true}
	frontier := []entity.Request{failed}

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		temp := tempIDsOf(cur.StoreInfo)
		killGroup := cur.KillGroupOnFail && cur.GroupID != 0

		for _, p := range e.store.PendingRequests() {
			if seen[p.ID] {
				continue
			}
			sister := killGroup && p.GroupID == cur.GroupID
			if !sister && !referencesAny(p, temp) {
				continue
			}
			seen[p.ID] = true
			e.log.Info("cancelling dependent request", "request", p.ID, "failed", cur.ID)
			e.store.ClearPendingRequest(ctx, p.ID)
			frontier = append(frontier, p)
		}
	}
}

func (e *Engine) lookupPending(requestID int64) (entity.Request, bool) {
	for _, req := range e.store.PendingRequests() {
		if req.ID == requestID {
			return req, true
		}
	}
	return entity.Request{}, false
}
