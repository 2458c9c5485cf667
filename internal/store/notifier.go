package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"worklog/internal/entity"
)

// MessageUpdate tells other sessions the durable store changed and should be
// re-read.
const MessageUpdate = "update"

// Message is one cross-session notification. Sender carries the emitting
// session's identity so a session can ignore its own broadcasts.
type Message struct {
	Sender string
	Text   string
}

// Notifier is the cross-session notification collaborator. The store's only
// obligation is to post an update after any drain cycle that processed at
// least one request; sessions receiving the message re-read durable storage.
type Notifier interface {
	Post(ctx context.Context, message string) error
}

type noopNotifier struct{}

func (noopNotifier) Post(context.Context, string) error { return nil }

// Bus is an in-process broadcast channel shared by all sessions of one
// process. It mirrors the browser BroadcastChannel: every endpoint sees
// every post, and receivers filter out their own.
type Bus struct {
	mu   sync.Mutex
	subs []chan Message
}

// NewBus creates an empty broadcast bus.
func NewBus() *Bus { return &Bus{} }

// Endpoint creates a session-scoped handle on the bus with a fresh sender
// identity.
func (b *Bus) Endpoint() *Endpoint {
	return &Endpoint{bus: b, session: uuid.NewString()}
}

func (b *Bus) post(msg Message) {
	b.mu.Lock()
	subs := make([]chan Message, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
			// slow subscriber: drop rather than block a drain cycle
		}
	}
}

// Subscribe returns a channel receiving all subsequent posts on the bus.
func (b *Bus) Subscribe() <-chan Message {
	ch := make(chan Message, 16)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Endpoint implements Notifier for one session.
type Endpoint struct {
	bus     *Bus
	session string
}

// Session returns the endpoint's sender identity.
func (e *Endpoint) Session() string { return e.session }

// Post broadcasts the message to every bus subscriber.
func (e *Endpoint) Post(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.bus.post(Message{Sender: e.session, Text: message})
	return nil
}

// Watch re-reads durable storage whenever another session posts an update
// through the endpoint's bus. Posts from the endpoint itself are ignored;
// the emitting session already holds the state it just wrote. Blocks until
// ctx is cancelled, so run it on its own goroutine.
func (s *Store) Watch(ctx context.Context, endpoint *Endpoint) {
	ch := endpoint.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			if msg.Sender == endpoint.session || msg.Text != MessageUpdate {
				continue
			}
			if err := s.Reload(ctx); err != nil {
				s.log.Error("reload after foreign update failed", "error", err)
				continue
			}
			s.notify(entity.AllTypes)
		}
	}
}
