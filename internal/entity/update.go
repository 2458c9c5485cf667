package entity

// Op is one serializable optimistic store mutation. Create ops carry the new
// entity payload; update ops carry a patch merged into TargetID; delete ops
// mark TargetID hidden pending confirmation.
type Op struct {
	Entity   Type           `json:"entity"`
	Kind     UpdateType     `json:"kind"`
	TargetID ID             `json:"target_id,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// CreateOp builds an op inserting a new entity with the given fields.
func CreateOp(t Type, payload map[string]any) Op {
	return Op{Entity: t, Kind: UpdateCreate, Payload: payload}
}

// UpdateOp builds an op merging patch into the entity identified by id.
func UpdateOp(t Type, id ID, patch map[string]any) Op {
	return Op{Entity: t, Kind: UpdateUpdate, TargetID: id, Payload: patch}
}

// DeleteOp builds an op hiding the entity identified by id.
func DeleteOp(t Type, id ID) Op {
	return Op{Entity: t, Kind: UpdateDelete, TargetID: id}
}

// OptimisticUpdate is the full optimistic mutation of one request: an ordered
// list of ops applied atomically at enqueue time. Being plain data rather
// than a closure, it survives persistence across process restarts.
type OptimisticUpdate struct {
	Ops []Op `json:"ops"`
}

// AppliedOp records the outcome of applying one op. AssignedID is the
// temporary identifier minted for create ops (the target id otherwise);
// Found is false when an update or delete referenced a missing entity.
type AppliedOp struct {
	Op
	AssignedID ID
	Found      bool
}

// StoreInfo is the opaque action-specific payload captured at enqueue time
// and forwarded verbatim to the response handler on completion. It is the
// only channel carrying enqueue-time context across the offline gap.
type StoreInfo map[string]any

// ID reads an identifier-valued entry from the store info.
func (si StoreInfo) ID(key string) (ID, bool) {
	v, ok := si[key]
	if !ok {
		return 0, false
	}
	return AsID(v)
}
