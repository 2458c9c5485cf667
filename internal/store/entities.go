package store

import (
	"context"
	"sort"

	"worklog/internal/entity"
)

// CreateEntityObject inserts a new entity tagged as pending creation for
// requestID and returns the temporary identifier it was assigned. The
// identifier is unique among all temporary and permanent identifiers held.
func (s *Store) CreateEntityObject(ctx context.Context, payload map[string]any, t entity.Type, requestID int64) (entity.ID, error) {
	s.mu.Lock()
	id := s.createLocked(payload, t, requestID)
	err := s.persistLocked(ctx, []entity.Type{t})
	s.mu.Unlock()
	s.notify([]entity.Type{t})
	return id, err
}

// UpdateEntityObject merges patch into the entity identified by id (resolved
// through the identity map if needed) and tags it as pending update for
// requestID. A missing entity is a silent no-op surfaced as a diagnostic,
// since it may indicate a race with a prior rollback.
func (s *Store) UpdateEntityObject(ctx context.Context, id entity.ID, t entity.Type, patch map[string]any, requestID int64) error {
	s.mu.Lock()
	s.updateLocked(id, t, patch, requestID)
	err := s.persistLocked(ctx, []entity.Type{t})
	s.mu.Unlock()
	s.notify([]entity.Type{t})
	return err
}

// DeleteEntityObject tags the entity as pending deletion for requestID. The
// entity is hidden from live reads but retained until the request resolves.
func (s *Store) DeleteEntityObject(ctx context.Context, id entity.ID, t entity.Type, requestID int64) error {
	s.mu.Lock()
	s.deleteLocked(id, t, requestID)
	err := s.persistLocked(ctx, []entity.Type{t})
	s.mu.Unlock()
	s.notify([]entity.Type{t})
	return err
}

func (s *Store) createLocked(payload map[string]any, t entity.Type, requestID int64) entity.ID {
	id := entity.ID(s.nextTempID)
	s.nextTempID--
	rec := entity.Record{ID: id, Fields: payload}
	cp := rec.Clone()
	cp.Fields["id"] = int64(id)
	cp.PendingUpdates = []entity.PendingUpdate{{
		Kind:      entity.UpdateCreate,
		RequestID: requestID,
		Time:      s.now(),
	}}
	s.entities[t][id] = &cp
	return id
}

func (s *Store) updateLocked(id entity.ID, t entity.Type, patch map[string]any, requestID int64) {
	rec, ok := s.lookupLocked(t, id)
	if !ok {
		s.log.Warn("update on missing entity", "type", t, "id", int64(id), "request_id", requestID)
		return
	}
	before := make(map[string]any, len(patch))
	for k, v := range patch {
		if prev, exists := rec.Fields[k]; exists {
			before[k] = prev
		} else {
			before[k] = nil
		}
		rec.Fields[k] = v
	}
	rec.PendingUpdates = append(rec.PendingUpdates, entity.PendingUpdate{
		Kind:      entity.UpdateUpdate,
		RequestID: requestID,
		Time:      s.now(),
		Before:    before,
	})
}

func (s *Store) deleteLocked(id entity.ID, t entity.Type, requestID int64) {
	rec, ok := s.lookupLocked(t, id)
	if !ok {
		s.log.Warn("delete on missing entity", "type", t, "id", int64(id), "request_id", requestID)
		return
	}
	rec.PendingUpdates = append(rec.PendingUpdates, entity.PendingUpdate{
		Kind:      entity.UpdateDelete,
		RequestID: requestID,
		Time:      s.now(),
	})
}

// lookupLocked resolves id through the identity map and returns the live
// record. Caller holds s.mu.
func (s *Store) lookupLocked(t entity.Type, id entity.ID) (*entity.Record, bool) {
	if rec, ok := s.entities[t][id]; ok {
		return rec, true
	}
	if perm, ok := s.identity[id]; ok {
		if rec, ok := s.entities[t][perm]; ok {
			return rec, true
		}
	}
	return nil, false
}

// SyncEntity is the authoritative reconciliation primitive: it replaces all
// entities of type t matching scope with the supplied canonical records and
// applies rewrite (temporary -> permanent) to the identity map. Called
// exclusively from response handlers on success.
func (s *Store) SyncEntity(ctx context.Context, canonical []entity.Record, t entity.Type, scope func(entity.Record) bool, rewrite map[entity.ID]entity.ID) error {
	s.mu.Lock()
	for temp, perm := range rewrite {
		s.addIdentityLocked(temp, perm)
	}
	if scope != nil {
		for id, rec := range s.entities[t] {
			if scope(rec.Clone()) {
				delete(s.entities[t], id)
			}
		}
	}
	for _, rec := range canonical {
		cp := rec.Clone()
		cp.PendingUpdates = nil
		if cp.Fields == nil {
			cp.Fields = map[string]any{}
		}
		cp.Fields["id"] = int64(cp.ID)
		s.entities[t][cp.ID] = &cp
	}
	err := s.persistLocked(ctx, []entity.Type{t})
	s.mu.Unlock()
	s.notify([]entity.Type{t})
	return err
}

// RewriteReference replaces every occurrence of old with new in the given
// reference field across a collection. Used when a dependency's permanent
// identifier becomes known (e.g. activities whose missionId referenced a
// temporary mission id).
func (s *Store) RewriteReference(ctx context.Context, t entity.Type, field string, old, new entity.ID) error {
	s.mu.Lock()
	for _, rec := range s.entities[t] {
		if v, ok := rec.Fields[field]; ok {
			if id, ok := entity.AsID(v); ok && id == old {
				rec.Fields[field] = int64(new)
			}
		}
	}
	err := s.persistLocked(ctx, []entity.Type{t})
	s.mu.Unlock()
	s.notify([]entity.Type{t})
	return err
}

// AddToIdentityMap records a temporary -> permanent mapping. Idempotent;
// once populated an entry is never changed.
func (s *Store) AddToIdentityMap(temp, perm entity.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addIdentityLocked(temp, perm)
}

func (s *Store) addIdentityLocked(temp, perm entity.ID) {
	if existing, ok := s.identity[temp]; ok {
		if existing != perm {
			s.log.Warn("identity map conflict ignored",
				"temp_id", int64(temp), "existing", int64(existing), "new", int64(perm))
		}
		return
	}
	if !temp.Temporary() {
		return
	}
	s.identity[temp] = perm
}

// IdentityMap returns a copy of the current temporary -> permanent mapping.
func (s *Store) IdentityMap() map[entity.ID]entity.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[entity.ID]entity.ID, len(s.identity))
	for temp, perm := range s.identity {
		out[temp] = perm
	}
	return out
}

// ResolveID translates a temporary identifier to its permanent counterpart
// if the mapping is known, otherwise returns id unchanged.
func (s *Store) ResolveID(id entity.ID) entity.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if perm, ok := s.identity[id]; ok {
		return perm
	}
	return id
}

// GetEntity returns a copy of one record, resolving temporary identifiers,
// including records hidden pending deletion.
func (s *Store) GetEntity(t entity.Type, id entity.ID) (entity.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.lookupLocked(t, id)
	if !ok {
		return entity.Record{}, false
	}
	return rec.Clone(), true
}

// List returns copies of all live records of a collection (records hidden
// pending deletion are filtered out), sorted by identifier.
func (s *Store) List(t entity.Type) []entity.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Record, 0, len(s.entities[t]))
	for _, rec := range s.entities[t] {
		if rec.Hidden() {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
