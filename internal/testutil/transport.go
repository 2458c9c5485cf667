package testutil

import (
	"context"
	"fmt"
	"sync"

	"worklog/internal/transport"
)

// Call records one transmission the fake transport received.
type Call struct {
	Document  string
	Name      string
	Variables map[string]any
	Batchable bool
}

// FakeTransport is a scripted stand-in for the GraphQL client. Outcomes are
// queued per operation name and consumed in order; an operation with no
// scripted outcome fails the test's expectations loudly.
type FakeTransport struct {
	mu      sync.Mutex
	scripts map[string][]scripted
	calls   []Call
}

type scripted struct {
	resp *transport.Response
	err  error
}

// NewFakeTransport creates an empty fake transport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{scripts: make(map[string][]scripted)}
}

// Respond queues a successful outcome for the named operation. The payload
// is wrapped the way the backend nests mutation results: under
// "activities" and then the operation name.
func (f *FakeTransport) Respond(name string, payload map[string]any) {
	f.enqueue(name, &transport.Response{
		Data: map[string]any{
			"activities": map[string]any{name: payload},
		},
	}, nil)
}

// Fail queues a failure for the named operation.
func (f *FakeTransport) Fail(name string, err error) {
	f.enqueue(name, nil, err)
}

// FailWithCode queues a terminal business rejection carrying one structured
// error with the given code and extensions.
func (f *FakeTransport) FailWithCode(name, code string, extensions map[string]any) {
	f.enqueue(name, nil, &transport.MutationError{
		Document: name,
		Errors: []transport.GraphQLError{
			{Message: code, Code: code, Extensions: extensions},
		},
	})
}

func (f *FakeTransport) enqueue(name string, resp *transport.Response, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[name] = append(f.scripts[name], scripted{resp: resp, err: err})
}

// Mutate consumes the next scripted outcome for the document's operation.
func (f *FakeTransport) Mutate(ctx context.Context, document string, variables map[string]any, batchable bool) (*transport.Response, error) {
	name := transport.DocumentName(document)

	f.mu.Lock()
	f.calls = append(f.calls, Call{
		Document:  document,
		Name:      name,
		Variables: variables,
		Batchable: batchable,
	})
	queue := f.scripts[name]
	if len(queue) == 0 {
		f.mu.Unlock()
		return nil, fmt.Errorf("no scripted outcome for operation %q", name)
	}
	next := queue[0]
	f.scripts[name] = queue[1:]
	f.mu.Unlock()

	return next.resp, next.err
}

// Calls returns a snapshot of every transmission received so far.
func (f *FakeTransport) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallNames returns the operation names in transmission order.
func (f *FakeTransport) CallNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.calls))
	for i, c := range f.calls {
		names[i] = c.Name
	}
	return names
}
