package engine

import (
	"context"

	"worklog/internal/entity"
)

// resolveTempIDs rewrites every identifier field of the request whose value
// is a temporary ID with a known permanent counterpart, in both the
// variables and the store info. The rewrite happens on every transmission
// attempt: a request enqueued before its dependency was acknowledged picks
// up the permanent ID the moment the identity map learns it. Rewritten
// values are persisted so a restart does not lose the resolution.
func (e *Engine) resolveTempIDs(ctx context.Context, req entity.Request) (entity.Request, error) {
	changed := false
	variables := rewriteFields(req.Variables, e.store.ResolveID, &changed)
	info := entity.StoreInfo(rewriteFields(req.StoreInfo, e.store.ResolveID, &changed))
	if !changed {
		return req, nil
	}
	if err := e.store.UpdateRequest(ctx, req.ID, variables, info); err != nil {
		return req, err
	}
	req.Variables = variables
	req.StoreInfo = info
	return req, nil
}

func rewriteFields(fields map[string]any, resolve func(entity.ID) entity.ID, changed *bool) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	for _, field := range entity.IdentifierFields {
		raw, ok := out[field]
		if !ok {
			continue
		}
		id, ok := entity.AsID(raw)
		if !ok || !id.Temporary() {
			continue
		}
		if resolved := resolve(id); resolved != id {
			out[field] = int64(resolved)
			*changed = true
		}
	}
	return out
}

// tempIDsOf collects the temporary IDs a request's store info still carries.
// Another queued request referencing one of them depends on this request
// being acknowledged first.
func tempIDsOf(info entity.StoreInfo) map[entity.ID]struct{} {
	ids := make(map[entity.ID]struct{})
	for _, field := range entity.IdentifierFields {
		if raw, ok := info[field]; ok {
			if id, ok := entity.AsID(raw); ok && id.Temporary() {
				ids[id] = struct{}{}
			}
		}
	}
	return ids
}

// referencesAny reports whether the request's variables or store info point
// at one of the given temporary IDs.
func referencesAny(req entity.Request, ids map[entity.ID]struct{}) bool {
	for _, field := range entity.IdentifierFields {
		for _, fields := range []map[string]any{req.Variables, req.StoreInfo} {
			if raw, ok := fields[field]; ok {
				if id, ok := entity.AsID(raw); ok {
					if _, hit := ids[id]; hit {
						return true
					}
				}
			}
		}
	}
	return false
}
