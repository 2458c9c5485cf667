package entity

// HandlerName keys the response handler registry. Every request names the
// handler pair that reconciles its outcome into the store; the set is a
// fixed table, resolved at engine construction rather than looked up from
// free-form strings.
type HandlerName string

const (
	HandlerLogActivity          HandlerName = "logActivity"
	HandlerCancelOrEditActivity HandlerName = "cancelOrEditActivity"
	HandlerBeginMission         HandlerName = "beginMission"
	HandlerEndMission           HandlerName = "endMission"
	HandlerValidateMission      HandlerName = "validateMission"
	HandlerLogExpenditure       HandlerName = "logExpenditure"
	HandlerCancelExpenditure    HandlerName = "cancelExpenditure"
	HandlerLogComment           HandlerName = "logComment"
	HandlerCancelComment        HandlerName = "cancelComment"
	HandlerLogLocation          HandlerName = "logLocation"
	HandlerBookVehicle          HandlerName = "bookVehicle"
)

// Request is one not-yet-confirmed mutation: the GraphQL document and
// variables to transmit, the optimistic update applied at enqueue time, and
// the routing metadata the execution engine needs to dispatch its outcome.
//
// Variables and StoreInfo may reference temporary entity identifiers; the
// engine rewrites them through the identity map on every drain attempt.
type Request struct {
	ID              int64            `json:"id"`
	Query           string           `json:"query"`
	Variables       map[string]any   `json:"variables"`
	Update          OptimisticUpdate `json:"update"`
	StoreInfo       StoreInfo        `json:"store_info,omitempty"`
	WatchFields     []Type           `json:"watch_fields"`
	Handler         HandlerName      `json:"handler"`
	Batchable       bool             `json:"batchable"`
	GroupID         int64            `json:"group_id,omitempty"`
	KillGroupOnFail bool             `json:"kill_group_on_fail,omitempty"`
	EnqueuedAt      int64            `json:"enqueued_at"`
}

// IdentifierFields lists the variable and store-info keys that carry entity
// identifiers subject to temporary-to-permanent rewriting before
// transmission.
var IdentifierFields = []string{
	"activityId",
	"missionId",
	"currentActivityId",
	"expenditureId",
	"commentId",
	"vehicleBookingId",
}
