package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"worklog/internal/entity"
)

// Subscriber is invoked after every committed mutation with the entity
// collections it touched. Subscribers drive re-renders; they must not call
// back into the store.
type Subscriber func(changed []entity.Type)

// Store holds all entity collections, the identity map, and the pending
// request queue. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	entities map[entity.Type]map[entity.ID]*entity.Record
	identity map[entity.ID]entity.ID
	queue    []*entity.Request

	nextTempID    int64 // counts down from -1
	nextRequestID int64
	nextGroupID   int64

	userID   entity.ID
	persist  Persistence
	notifier Notifier
	subs     []Subscriber
	nowFn    func() time.Time
	log      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithNotifier sets the cross-session notification channel.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithUserID sets the identifier of the session's user.
func WithUserID(id entity.ID) Option {
	return func(s *Store) { s.userID = id }
}

// WithClock overrides the wall clock used to stamp pending updates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.nowFn = now }
}

// Open constructs a Store rehydrated from durable storage. It must complete
// before any action runs.
func Open(ctx context.Context, persist Persistence, opts ...Option) (*Store, error) {
	s := &Store{
		entities:      make(map[entity.Type]map[entity.ID]*entity.Record),
		identity:      make(map[entity.ID]entity.ID),
		nextTempID:    -1,
		nextRequestID: 1,
		nextGroupID:   1,
		persist:       persist,
		notifier:      noopNotifier{},
		nowFn:         func() time.Time { return time.Now().UTC() },
		log:           slog.Default(),
	}
	for _, t := range entity.AllTypes {
		s.entities[t] = make(map[entity.ID]*entity.Record)
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces in-memory state with the durable snapshot. It is called at
// startup and whenever another session broadcasts a store update.
func (s *Store) Reload(ctx context.Context) error {
	state, err := s.persist.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == nil {
		return nil
	}
	for _, t := range entity.AllTypes {
		coll := make(map[entity.ID]*entity.Record, len(state.Entities[t]))
		for _, rec := range state.Entities[t] {
			cp := rec.Clone()
			coll[rec.ID] = &cp
		}
		s.entities[t] = coll
	}
	s.identity = make(map[entity.ID]entity.ID, len(state.Identity))
	for temp, perm := range state.Identity {
		s.identity[temp] = perm
	}
	s.queue = s.queue[:0]
	for i := range state.Requests {
		req := state.Requests[i]
		s.queue = append(s.queue, &req)
	}
	if state.Counters.NextTempID < 0 {
		s.nextTempID = state.Counters.NextTempID
	}
	if state.Counters.NextRequestID > 0 {
		s.nextRequestID = state.Counters.NextRequestID
	}
	if state.Counters.NextGroupID > 0 {
		s.nextGroupID = state.Counters.NextGroupID
	}
	return nil
}

// Subscribe registers a change listener.
func (s *Store) Subscribe(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
}

// UserID returns the identifier of the session's user.
func (s *Store) UserID() entity.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// SetUserID records the session's user, typically after login.
func (s *Store) SetUserID(id entity.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = id
}

// NextGroupID mints a correlation identifier for one multi-party action.
func (s *Store) NextGroupID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextGroupID
	s.nextGroupID++
	return id
}

// PostUpdate broadcasts a store-changed notification to other sessions.
func (s *Store) PostUpdate(ctx context.Context) error {
	return s.notifier.Post(ctx, MessageUpdate)
}

// Reset wipes all state, both in memory and durable. Called at logout after
// any in-flight completions have settled.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	for _, t := range entity.AllTypes {
		s.entities[t] = make(map[entity.ID]*entity.Record)
	}
	s.identity = make(map[entity.ID]entity.ID)
	s.queue = nil
	s.nextTempID = -1
	s.nextRequestID = 1
	s.nextGroupID = 1
	s.userID = 0
	err := s.persistLocked(ctx, entity.AllTypes)
	s.mu.Unlock()
	s.notify(entity.AllTypes)
	return err
}

// snapshotLocked builds the durable state. Caller holds s.mu.
func (s *Store) snapshotLocked() *State {
	state := &State{
		Entities: make(map[entity.Type][]entity.Record, len(s.entities)),
		Identity: make(map[entity.ID]entity.ID, len(s.identity)),
		Counters: Counters{
			NextTempID:    s.nextTempID,
			NextRequestID: s.nextRequestID,
			NextGroupID:   s.nextGroupID,
		},
	}
	for _, t := range entity.AllTypes {
		coll := s.entities[t]
		records := make([]entity.Record, 0, len(coll))
		for _, rec := range coll {
			records = append(records, rec.Clone())
		}
		sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
		state.Entities[t] = records
	}
	for temp, perm := range s.identity {
		state.Identity[temp] = perm
	}
	for _, req := range s.queue {
		state.Requests = append(state.Requests, *req)
	}
	return state
}

// persistLocked writes the current state through the persistence
// collaborator. Caller holds s.mu.
func (s *Store) persistLocked(ctx context.Context, changed []entity.Type) error {
	if err := s.persist.Save(ctx, s.snapshotLocked(), changed); err != nil {
		s.log.Error("persist failed", "error", err, "changed", changed)
		return err
	}
	return nil
}

// notify fans a change event out to subscribers. Called without s.mu held.
func (s *Store) notify(changed []entity.Type) {
	s.mu.Lock()
	subs := make([]Subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()
	for _, sub := range subs {
		sub(changed)
	}
}

func (s *Store) now() int64 {
	return s.nowFn().Unix()
}
