package store

import (
	"context"
	"fmt"

	"worklog/internal/entity"
)

// InfoFunc maps the applied optimistic ops of a request to the StoreInfo
// payload forwarded to its response handler on completion. It must be pure:
// the result is captured once at enqueue time.
type InfoFunc func(requestID int64, applied []entity.AppliedOp) entity.StoreInfo

// RequestSpec describes one mutation to enqueue.
type RequestSpec struct {
	Query           string
	Variables       map[string]any
	Update          entity.OptimisticUpdate
	Info            InfoFunc
	WatchFields     []entity.Type
	Handler         entity.HandlerName
	Batchable       bool
	GroupID         int64
	KillGroupOnFail bool
}

// NewRequest applies the given optimistic update exactly once, builds the
// request's StoreInfo, and appends the request to the pending queue. The
// returned request is a copy; the queue owns the canonical one.
func (s *Store) NewRequest(ctx context.Context, spec RequestSpec) (entity.Request, error) {
	if spec.Handler == "" {
		return entity.Request{}, fmt.Errorf("new request: missing response handler name")
	}
	s.mu.Lock()
	requestID := s.nextRequestID
	s.nextRequestID++

	applied := make([]entity.AppliedOp, 0, len(spec.Update.Ops))
	for _, op := range spec.Update.Ops {
		res := entity.AppliedOp{Op: op, AssignedID: op.TargetID, Found: true}
		switch op.Kind {
		case entity.UpdateCreate:
			res.AssignedID = s.createLocked(op.Payload, op.Entity, requestID)
		case entity.UpdateUpdate:
			if _, ok := s.lookupLocked(op.Entity, op.TargetID); !ok {
				res.Found = false
			}
			s.updateLocked(op.TargetID, op.Entity, op.Payload, requestID)
		case entity.UpdateDelete:
			if _, ok := s.lookupLocked(op.Entity, op.TargetID); !ok {
				res.Found = false
			}
			s.deleteLocked(op.TargetID, op.Entity, requestID)
		default:
			s.mu.Unlock()
			return entity.Request{}, fmt.Errorf("new request: unknown op kind %q", op.Kind)
		}
		applied = append(applied, res)
	}

	var info entity.StoreInfo
	if spec.Info != nil {
		info = spec.Info(requestID, applied)
	}

	req := entity.Request{
		ID:              requestID,
		Query:           spec.Query,
		Variables:       spec.Variables,
		Update:          spec.Update,
		StoreInfo:       info,
		WatchFields:     spec.WatchFields,
		Handler:         spec.Handler,
		Batchable:       spec.Batchable,
		GroupID:         spec.GroupID,
		KillGroupOnFail: spec.KillGroupOnFail,
		EnqueuedAt:      s.now(),
	}
	queued := req
	s.queue = append(s.queue, &queued)

	changed := append([]entity.Type(nil), spec.WatchFields...)
	err := s.persistLocked(ctx, changed)
	s.mu.Unlock()
	s.notify(changed)

	s.log.Debug("request enqueued",
		"request_id", requestID,
		"handler", string(spec.Handler),
		"batchable", spec.Batchable,
		"group_id", spec.GroupID,
	)
	return req, err
}

// PendingRequests returns a read-only snapshot of the queue in enqueue
// order.
func (s *Store) PendingRequests() []entity.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Request, 0, len(s.queue))
	for _, req := range s.queue {
		out = append(out, *req)
	}
	return out
}

// UpdateRequest stores rewritten variables and store info for a queued
// request, keeping durable state consistent with what will be transmitted.
func (s *Store) UpdateRequest(ctx context.Context, requestID int64, variables map[string]any, info entity.StoreInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range s.queue {
		if req.ID == requestID {
			req.Variables = variables
			req.StoreInfo = info
			return s.persistLocked(ctx, nil)
		}
	}
	return nil
}

// ClearPendingRequest removes the request from the pending queue and undoes
// the pending-update tags it left on entities: create tags delete the entity
// entirely, update tags restore the captured before-image, delete tags
// un-hide the entity. Safe to call for requests already cleared.
func (s *Store) ClearPendingRequest(ctx context.Context, requestID int64) error {
	s.mu.Lock()
	for i, req := range s.queue {
		if req.ID == requestID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}

	changed := make([]entity.Type, 0, 2)
	for _, t := range entity.AllTypes {
		touched := false
		for id, rec := range s.entities[t] {
			if !rec.Tagged(requestID) {
				continue
			}
			touched = true
			remaining := rec.PendingUpdates[:0]
			removeRecord := false
			for _, upd := range rec.PendingUpdates {
				if upd.RequestID != requestID {
					remaining = append(remaining, upd)
					continue
				}
				switch upd.Kind {
				case entity.UpdateCreate:
					removeRecord = true
				case entity.UpdateUpdate:
					for k, prev := range upd.Before {
						if prev == nil {
							delete(rec.Fields, k)
						} else {
							rec.Fields[k] = prev
						}
					}
				case entity.UpdateDelete:
					// dropping the tag un-hides the record
				}
			}
			rec.PendingUpdates = remaining
			if len(rec.PendingUpdates) == 0 {
				rec.PendingUpdates = nil
			}
			if removeRecord {
				delete(s.entities[t], id)
			}
		}
		if touched {
			changed = append(changed, t)
		}
	}

	err := s.persistLocked(ctx, changed)
	s.mu.Unlock()
	s.notify(changed)
	s.log.Debug("pending request cleared", "request_id", requestID)
	return err
}

// ClearQueue discards every queued request without rolling back their
// optimistic effects. Used at logout: not-yet-started work is dropped, while
// requests already in flight were removed from the queue by the execution
// path and their handlers still fire.
func (s *Store) ClearQueue(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	return s.persistLocked(ctx, nil)
}
