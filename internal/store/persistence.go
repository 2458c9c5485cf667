package store

import (
	"context"

	"worklog/internal/entity"
)

// State is the durable snapshot of the store: every entity collection, the
// identity map, the pending request queue, and the ID counters.
type State struct {
	Entities map[entity.Type][]entity.Record `json:"entities"`
	Identity map[entity.ID]entity.ID         `json:"identity,omitempty"`
	Requests []entity.Request                `json:"requests,omitempty"`
	Counters Counters                        `json:"counters"`
}

// Counters carries the monotonic ID generators across restarts, so a
// rehydrated session never reuses a temporary or request identifier.
type Counters struct {
	NextTempID    int64 `json:"next_temp_id"`
	NextRequestID int64 `json:"next_request_id"`
	NextGroupID   int64 `json:"next_group_id"`
}

// Persistence is the durable client storage collaborator. The store depends
// on it only through these two operations.
//
// Save receives the full snapshot plus a hint naming the entity collections
// the mutation touched; the request queue, identity map, and counters are
// considered changed on every call. A nil changed hint means only those
// always-changed sections need rewriting.
type Persistence interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State, changed []entity.Type) error
}
