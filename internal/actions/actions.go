package actions

import (
	"context"
	"log/slog"
	"time"

	"worklog/internal/engine"
	"worklog/internal/entity"
	"worklog/internal/store"
)

// Alert is one user-facing notification about an action's fate.
type Alert struct {
	// ActionDescription names the action whose outcome is reported, e.g.
	// "the drive activity of Jane at 08:30".
	ActionDescription string
	// Messages are the per-error human-readable explanations.
	Messages []string
	// ProposeRefresh is set when the rejection implies the local data is
	// stale and reloading from the backend would help.
	ProposeRefresh bool
}

// Alerts receives user-facing notifications. Implementations must not
// block; they are called from the drain path.
type Alerts interface {
	Error(alert Alert)
	Success(message string)
}

type noopAlerts struct{}

func (noopAlerts) Error(Alert) {}

func (noopAlerts) Success(string) {}

// Actions binds the store, the execution engine and the alert sink into the
// operation surface the application drives.
type Actions struct {
	store  *store.Store
	engine *engine.Engine
	alerts Alerts
	log    *slog.Logger
	nowFn  func() int64
}

// Option configures Actions.
type Option func(*Actions)

// WithAlerts sets the alert sink.
func WithAlerts(a Alerts) Option {
	return func(ac *Actions) { ac.alerts = a }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(ac *Actions) { ac.log = log }
}

// WithClock overrides the wall clock (tests).
func WithClock(now func() int64) Option {
	return func(ac *Actions) { ac.nowFn = now }
}

// New creates the action surface and registers every response handler on
// the registry. The registry must be the one the engine dispatches with.
func New(st *store.Store, eng *engine.Engine, registry *engine.Registry, opts ...Option) *Actions {
	a := &Actions{
		store:  st,
		engine: eng,
		alerts: noopAlerts{},
		log:    slog.Default(),
		nowFn:  func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		opt(a)
	}
	a.registerHandlers(registry)
	return a
}

func (a *Actions) registerHandlers(registry *engine.Registry) {
	registry.Register(entity.HandlerLogActivity, engine.HandlerFuncs{
		Success: a.onLogActivitySuccess,
		Error:   a.onLogActivityError,
	})
	registry.Register(entity.HandlerCancelOrEditActivity, engine.HandlerFuncs{
		Success: a.onCancelOrEditActivitySuccess,
		Error:   a.onCancelOrEditActivityError,
	})
	registry.Register(entity.HandlerBeginMission, engine.HandlerFuncs{
		Success: a.onBeginMissionSuccess,
		Error:   a.onBeginMissionError,
	})
	registry.Register(entity.HandlerEndMission, engine.HandlerFuncs{
		Success: a.onEndMissionSuccess,
		Error:   a.onEndMissionError,
	})
	registry.Register(entity.HandlerValidateMission, engine.HandlerFuncs{
		Success: a.onValidateMissionSuccess,
	})
	registry.Register(entity.HandlerLogExpenditure, engine.HandlerFuncs{
		Success: a.onLogExpenditureSuccess,
		Error:   a.onLogExpenditureError,
	})
	registry.Register(entity.HandlerCancelExpenditure, engine.HandlerFuncs{
		Success: a.onCancelExpenditureSuccess,
	})
	registry.Register(entity.HandlerLogComment, engine.HandlerFuncs{
		Success: a.onLogCommentSuccess,
	})
	registry.Register(entity.HandlerCancelComment, engine.HandlerFuncs{
		Success: a.onCancelCommentSuccess,
	})
	registry.Register(entity.HandlerLogLocation, engine.HandlerFuncs{
		Success: a.onLogLocationSuccess,
	})
	registry.Register(entity.HandlerBookVehicle, engine.HandlerFuncs{
		Success: a.onBookVehicleSuccess,
	})
}

// submit enqueues a request with its optimistic update, then transmits. The
// fresh request goes out directly when it is the only pending work;
// otherwise a drain runs so older queued requests keep their head start.
// With failOnError unset a retryable failure is absorbed: the optimistic
// state stands and the request waits for a later drain.
func (a *Actions) submit(ctx context.Context, spec store.RequestSpec, failOnError bool) error {
	req, err := a.store.NewRequest(ctx, spec)
	if err != nil {
		return err
	}
	if pending := a.store.PendingRequests(); len(pending) == 1 && pending[0].ID == req.ID {
		err = a.engine.ExecuteRequest(ctx, req.ID)
	} else {
		err = a.engine.ExecutePendingRequests(ctx, failOnError)
	}
	if err != nil && !failOnError {
		a.log.Info("submission deferred", "handler", spec.Handler, "error", err)
		return nil
	}
	return err
}

// FlushPending drains whatever the queue currently holds. Safe to call at
// any time; concurrent flushes coalesce.
func (a *Actions) FlushPending(ctx context.Context) error {
	return a.engine.ExecutePendingRequests(ctx, false)
}

// Logout tears the session down: queued submissions are discarded without
// rollback and the whole local state is wiped.
func (a *Actions) Logout(ctx context.Context) error {
	a.engine.Clear()
	if err := a.store.ClearQueue(ctx); err != nil {
		return err
	}
	return a.store.Reset(ctx)
}

func (a *Actions) now() int64 { return a.nowFn() }

// truncateMinute floors a unix timestamp to the minute, the backend's
// resolution for activity boundaries.
func truncateMinute(t int64) int64 { return t - t%60 }

// recordFromPayload builds a store record from a backend-returned object.
func recordFromPayload(payload map[string]any) (entity.Record, bool) {
	if payload == nil {
		return entity.Record{}, false
	}
	id, ok := entity.AsID(payload["id"])
	if !ok {
		return entity.Record{}, false
	}
	fields := make(map[string]any, len(payload))
	for k, v := range payload {
		fields[k] = v
	}
	fields["id"] = int64(id)
	return entity.Record{ID: id, Fields: fields}, true
}

// scopeID matches exactly one record by identifier.
func scopeID(id entity.ID) func(entity.Record) bool {
	return func(r entity.Record) bool { return r.ID == id }
}

// fieldID reads an identifier-valued field from a record.
func fieldID(r entity.Record, key string) (entity.ID, bool) {
	return entity.AsID(r.Fields[key])
}

// createdID returns the identifier minted by the first create op on the
// given collection, or zero when the request created nothing there.
func createdID(applied []entity.AppliedOp, t entity.Type) entity.ID {
	for _, op := range applied {
		if op.Kind == entity.UpdateCreate && op.Entity == t {
			return op.AssignedID
		}
	}
	return 0
}
