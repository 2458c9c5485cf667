package entity

import (
	"encoding/json"
	"math"
)

// Type identifies one of the keyed entity collections held by the store.
type Type string

const (
	TypeActivities      Type = "activities"
	TypeMissions        Type = "missions"
	TypeExpenditures    Type = "expenditures"
	TypeComments        Type = "comments"
	TypeCoworkers       Type = "coworkers"
	TypeVehicleBookings Type = "vehicleBookings"
)

// AllTypes lists every entity collection, in persistence order.
var AllTypes = []Type{
	TypeActivities,
	TypeMissions,
	TypeExpenditures,
	TypeComments,
	TypeCoworkers,
	TypeVehicleBookings,
}

// Valid reports whether t names a known entity collection.
func (t Type) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ID is an entity identifier. Negative values are temporary, client-minted
// placeholders for entities the server has not acknowledged yet; positive
// values are server-assigned permanent identifiers.
type ID int64

// Temporary reports whether the identifier is a client-minted placeholder.
func (id ID) Temporary() bool { return id < 0 }

// AsID coerces a dynamically typed value to an ID. Values round-tripped
// through JSON persistence decode as float64 or json.Number, so all numeric
// shapes are accepted.
func AsID(v any) (ID, bool) {
	switch n := v.(type) {
	case ID:
		return n, true
	case int64:
		return ID(n), true
	case int:
		return ID(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return ID(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return ID(i), true
	default:
		return 0, false
	}
}

// UpdateType distinguishes the kinds of in-flight modification recorded on an
// entity while a mutation awaits server confirmation.
type UpdateType string

const (
	UpdateCreate UpdateType = "create"
	UpdateUpdate UpdateType = "update"
	UpdateDelete UpdateType = "delete"
)

// PendingUpdate tags an entity with one in-flight modification. Before holds
// the prior values of the fields an update patched, captured at enqueue time
// so rollback restores the exact pre-update state.
type PendingUpdate struct {
	Kind      UpdateType     `json:"kind"`
	RequestID int64          `json:"request_id"`
	Time      int64          `json:"time"`
	Before    map[string]any `json:"before,omitempty"`
}

// Record is one entity held by the store: a stable identifier, the domain
// fields keyed by their wire names, and the ordered in-flight modifications
// not yet confirmed by the server.
type Record struct {
	ID             ID              `json:"id"`
	Fields         map[string]any  `json:"fields"`
	PendingUpdates []PendingUpdate `json:"pending_updates,omitempty"`
}

// PendingSubmission reports whether the record carries unconfirmed
// modifications. A pending record must not be treated as final truth for
// conflict detection.
func (r Record) PendingSubmission() bool { return len(r.PendingUpdates) > 0 }

// Hidden reports whether the record is awaiting a delete confirmation.
// Hidden records are filtered from live reads but retained for rollback.
func (r Record) Hidden() bool {
	for _, upd := range r.PendingUpdates {
		if upd.Kind == UpdateDelete {
			return true
		}
	}
	return false
}

// Tagged reports whether the record carries a pending update for requestID.
func (r Record) Tagged(requestID int64) bool {
	for _, upd := range r.PendingUpdates {
		if upd.RequestID == requestID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	cp := r
	if r.Fields != nil {
		cp.Fields = cloneFields(r.Fields)
	}
	if r.PendingUpdates != nil {
		cp.PendingUpdates = make([]PendingUpdate, len(r.PendingUpdates))
		for i, upd := range r.PendingUpdates {
			cp.PendingUpdates[i] = upd
			if upd.Before != nil {
				cp.PendingUpdates[i].Before = cloneFields(upd.Before)
			}
		}
	}
	return cp
}

func cloneFields(fields map[string]any) map[string]any {
	cp := make(map[string]any, len(fields))
	for k, v := range fields {
		if nested, ok := v.(map[string]any); ok {
			cp[k] = cloneFields(nested)
			continue
		}
		cp[k] = v
	}
	return cp
}
