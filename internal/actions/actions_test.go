package actions_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worklog/internal/actions"
	"worklog/internal/engine"
	"worklog/internal/entity"
	"worklog/internal/store"
	"worklog/internal/testutil"
	"worklog/internal/transport"
)

// fixedNow is minute-aligned so optimistic and settled timestamps line up.
const fixedNow = int64(1700000040)

const selfID = entity.ID(1)

type fixture struct {
	store     *store.Store
	transport *testutil.FakeTransport
	engine    *engine.Engine
	alerts    *testutil.CollectingAlerts
	clock     *testutil.DeterministicClock
	actions   *actions.Actions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(context.Background(), testutil.NewMemoryPersistence(), store.WithUserID(selfID))
	require.NoError(t, err)
	ft := testutil.NewFakeTransport()
	reg := engine.NewRegistry()
	eng := engine.New(st, ft, reg)
	alerts := testutil.NewCollectingAlerts()
	clock := testutil.NewDeterministicClock(fixedNow)
	ac := actions.New(st, eng, reg,
		actions.WithAlerts(alerts),
		actions.WithClock(clock.Now),
	)
	return &fixture{store: st, transport: ft, engine: eng, alerts: alerts, clock: clock, actions: ac}
}

// awaitIdle waits for the execution lock to settle after a drain returns.
func (f *fixture) awaitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return !f.engine.Submitting() }, time.Second, time.Millisecond)
}

func (f *fixture) syncRecord(t *testing.T, typ entity.Type, fields map[string]any) entity.Record {
	t.Helper()
	id, ok := entity.AsID(fields["id"])
	require.True(t, ok)
	rec := entity.Record{ID: id, Fields: fields}
	require.NoError(t, f.store.SyncEntity(context.Background(), []entity.Record{rec}, typ, nil, nil))
	out, ok := f.store.GetEntity(typ, id)
	require.True(t, ok)
	return out
}

func fieldAsID(t *testing.T, rec entity.Record, key string) entity.ID {
	t.Helper()
	id, ok := entity.AsID(rec.Fields[key])
	require.True(t, ok)
	return id
}

func TestLogActivity_OnlineReconciles(t *testing.T) {
	f := newFixture(t)
	f.transport.Respond("logActivity", map[string]any{
		"id":        float64(100),
		"type":      "drive",
		"missionId": float64(5),
		"userId":    float64(1),
		"startTime": float64(fixedNow),
	})

	require.NoError(t, f.actions.LogActivity(context.Background(), actions.ActivityOptions{
		Type:      entity.ActivityDrive,
		MissionID: 5,
		StartTime: fixedNow,
	}))

	assert.Empty(t, f.store.PendingRequests())
	activities := f.store.List(entity.TypeActivities)
	require.Len(t, activities, 1)
	assert.Equal(t, entity.ID(100), activities[0].ID)
	assert.False(t, activities[0].PendingSubmission())
	assert.Len(t, f.store.IdentityMap(), 1)
}

func TestLogActivity_OfflineKeepsOptimisticState(t *testing.T) {
	f := newFixture(t)
	f.transport.Fail("logActivity", &transport.NetworkError{})

	require.NoError(t, f.actions.LogActivity(context.Background(), actions.ActivityOptions{
		Type:      entity.ActivityWork,
		MissionID: 5,
		StartTime: fixedNow,
	}))

	require.Len(t, f.store.PendingRequests(), 1)
	activities := f.store.List(entity.TypeActivities)
	require.Len(t, activities, 1)
	assert.True(t, activities[0].ID.Temporary())
	assert.True(t, activities[0].PendingSubmission())
	assert.Equal(t, fixedNow, activities[0].Fields["startTime"], "boundaries floored to the minute")
	assert.Empty(t, f.alerts.Errors(), "a connectivity failure is not the user's problem")
}

func TestLogActivity_NewSubmissionDrainsOlderWorkFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.transport.Fail("logActivity", &transport.NetworkError{})

	require.NoError(t, f.actions.LogActivity(ctx, actions.ActivityOptions{
		Type:         entity.ActivityDrive,
		MissionID:    5,
		StartTime:    fixedNow,
		NonBatchable: true,
	}))
	f.awaitIdle(t)
	require.Len(t, f.store.PendingRequests(), 1)

	f.transport.Respond("logActivity", map[string]any{
		"id":        float64(100),
		"type":      "drive",
		"missionId": float64(5),
		"userId":    float64(1),
		"startTime": float64(fixedNow),
	})
	f.transport.Respond("logExpenditure", map[string]any{
		"id":        float64(50),
		"type":      entity.ExpenditureDayMeal,
		"missionId": float64(5),
		"userId":    float64(1),
	})

	// The expenditure joins a non-empty queue, so it must wait its turn
	// behind the stranded activity instead of jumping ahead.
	require.NoError(t, f.actions.LogExpenditure(ctx, entity.ExpenditureDayMeal, 5, 0))

	assert.Equal(t, []string{"logActivity", "logActivity", "logExpenditure"}, f.transport.CallNames())
	assert.Empty(t, f.store.PendingRequests())
}

func TestLogActivity_SwitchModeSettlesPreviousActivity(t *testing.T) {
	f := newFixture(t)
	f.syncRecord(t, entity.TypeMissions, map[string]any{"id": int64(5), "ended": true})
	f.syncRecord(t, entity.TypeActivities, map[string]any{
		"id":        int64(10),
		"type":      "work",
		"missionId": int64(5),
		"userId":    int64(1),
		"startTime": fixedNow - 3600,
	})

	f.transport.Respond("logActivity", map[string]any{
		"id":        float64(100),
		"type":      "drive",
		"missionId": float64(5),
		"userId":    float64(1),
		"startTime": float64(fixedNow),
	})

	require.NoError(t, f.actions.LogActivity(context.Background(), actions.ActivityOptions{
		Type:       entity.ActivityDrive,
		MissionID:  5,
		StartTime:  fixedNow,
		SwitchMode: true,
	}))

	previous, ok := f.store.GetEntity(entity.TypeActivities, 10)
	require.True(t, ok)
	assert.Equal(t, float64(fixedNow), previous.Fields["endTime"],
		"the switched-out activity keeps its settled end time through the rollback")
	assert.False(t, previous.PendingSubmission())

	mission, ok := f.store.GetEntity(entity.TypeMissions, 5)
	require.True(t, ok)
	assert.Equal(t, false, mission.Fields["ended"], "an ongoing activity reopens its mission")
}

func TestLogActivity_RejectionAlertsAndRollsBack(t *testing.T) {
	f := newFixture(t)
	f.transport.FailWithCode("logActivity", transport.CodeOverlappingActivities, map[string]any{
		"conflictingActivity": map[string]any{
			"id":        float64(999),
			"type":      "work",
			"startTime": float64(fixedNow - 7200),
			"submitter": map[string]any{
				"id":        float64(2),
				"firstName": "Jane",
				"lastName":  "Doe",
			},
		},
	})

	require.NoError(t, f.actions.LogActivity(context.Background(), actions.ActivityOptions{
		Type:      entity.ActivityDrive,
		MissionID: 5,
		StartTime: fixedNow,
	}))

	assert.Empty(t, f.store.List(entity.TypeActivities), "rejected activity rolled back")
	errs := f.alerts.Errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].ActionDescription, "you")
	require.Len(t, errs[0].Messages, 1)
	assert.Contains(t, errs[0].Messages[0], "work")
	assert.Contains(t, errs[0].Messages[0], "Jane Doe")
	assert.True(t, errs[0].ProposeRefresh,
		"a conflict recorded by someone else and unknown locally means stale data")
}

func TestBeginMission_OfflineThenReconnectReconciles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.transport.Fail("createMission", &transport.NetworkError{})

	missionID, err := f.actions.BeginMission(ctx, actions.BeginMissionOptions{
		Name:              "evening haul",
		FirstActivityType: entity.ActivityDrive,
	})
	require.NoError(t, err)
	assert.True(t, missionID.Temporary())

	require.Len(t, f.store.PendingRequests(), 2, "mission creation and first activity queued")
	activities := f.store.List(entity.TypeActivities)
	require.Len(t, activities, 1)
	assert.Equal(t, missionID, fieldAsID(t, activities[0], "missionId"))

	// Connectivity returns.
	f.transport.Respond("createMission", map[string]any{
		"id":   float64(42),
		"name": "evening haul",
	})
	f.transport.Respond("logActivity", map[string]any{
		"id":        float64(100),
		"type":      "drive",
		"missionId": float64(42),
		"userId":    float64(1),
		"startTime": float64(fixedNow),
	})
	require.NoError(t, f.actions.FlushPending(ctx))

	assert.Empty(t, f.store.PendingRequests())
	assert.Equal(t, entity.ID(42), f.store.ResolveID(missionID))

	missions := f.store.List(entity.TypeMissions)
	require.Len(t, missions, 1)
	assert.Equal(t, entity.ID(42), missions[0].ID)

	activities = f.store.List(entity.TypeActivities)
	require.Len(t, activities, 1)
	assert.Equal(t, entity.ID(100), activities[0].ID)
	assert.Equal(t, entity.ID(42), fieldAsID(t, activities[0], "missionId"))

	calls := f.transport.Calls()
	last := calls[len(calls)-1]
	require.Equal(t, "logActivity", last.Name)
	assert.Equal(t, int64(42), last.Variables["missionId"],
		"queued activity transmitted with the permanent mission identifier")
}

func TestLogTeamActivity_RejectionWithdrawsSisterActivities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Both submissions defer offline first, so the whole group is queued
	// together when the drain finally reaches the backend.
	f.transport.Fail("logActivity", &transport.NetworkError{})
	f.transport.Fail("logActivity", &transport.NetworkError{})
	require.NoError(t, f.actions.LogTeamActivity(ctx, actions.TeamActivityOptions{
		ActivityOptions: actions.ActivityOptions{
			Type:      entity.ActivityDrive,
			MissionID: 5,
			StartTime: fixedNow,
		},
		Team:     []entity.ID{1, 2},
		DriverID: 1,
	}))
	require.Len(t, f.store.PendingRequests(), 2)

	f.transport.FailWithCode("logActivity", transport.CodeOverlappingActivities, nil)
	require.NoError(t, f.actions.FlushPending(ctx))

	assert.Empty(t, f.store.PendingRequests(), "the mate's activity withdrawn with the rejected one")
	assert.Empty(t, f.store.List(entity.TypeActivities))
	assert.Len(t, f.transport.Calls(), 3, "the sister request never reaches the backend")
	assert.Len(t, f.alerts.Errors(), 1)
}

func TestLogTeamActivity_SupportForNonDrivers(t *testing.T) {
	f := newFixture(t)
	f.transport.Fail("logActivity", &transport.NetworkError{})
	f.transport.Fail("logActivity", &transport.NetworkError{})

	require.NoError(t, f.actions.LogTeamActivity(context.Background(), actions.TeamActivityOptions{
		ActivityOptions: actions.ActivityOptions{
			Type:      entity.ActivityDrive,
			MissionID: 5,
			StartTime: fixedNow,
		},
		Team:     []entity.ID{1, 2},
		DriverID: 2,
	}))

	byUser := map[entity.ID]string{}
	for _, rec := range f.store.List(entity.TypeActivities) {
		typ, _ := rec.Fields["type"].(string)
		byUser[fieldAsID(t, rec, "userId")] = typ
	}
	assert.Equal(t, entity.ActivitySupport, byUser[1], "non-driving member logged as support")
	assert.Equal(t, entity.ActivityDrive, byUser[2])
}

func TestEndMission_SuccessSyncsAuthoritativeActivities(t *testing.T) {
	f := newFixture(t)
	mission := f.syncRecord(t, entity.TypeMissions, map[string]any{
		"id": int64(7), "name": "haul", "ended": false,
	})
	f.syncRecord(t, entity.TypeActivities, map[string]any{
		"id": int64(30), "type": "drive", "missionId": int64(7), "userId": int64(1),
		"startTime": fixedNow - 3600,
	})

	f.transport.Respond("endMission", map[string]any{
		"id":   float64(7),
		"name": "haul",
		"activities": []any{
			map[string]any{
				"id": float64(30), "type": "drive", "missionId": float64(7),
				"userId": float64(1), "startTime": float64(fixedNow - 3600), "endTime": float64(fixedNow),
			},
		},
	})

	require.NoError(t, f.actions.EndMission(context.Background(), actions.EndMissionOptions{
		Mission: mission,
		EndTime: fixedNow,
	}))

	ended, ok := f.store.GetEntity(entity.TypeMissions, 7)
	require.True(t, ok)
	assert.Equal(t, true, ended.Fields["ended"])

	activity, ok := f.store.GetEntity(entity.TypeActivities, 30)
	require.True(t, ok)
	assert.Equal(t, float64(fixedNow), activity.Fields["endTime"], "server's activity list is authoritative")
	assert.False(t, activity.PendingSubmission())
}

func TestEndMission_AlreadyEndedAdoptsForeignEndTime(t *testing.T) {
	f := newFixture(t)
	mission := f.syncRecord(t, entity.TypeMissions, map[string]any{
		"id": int64(7), "name": "haul", "ended": false,
	})
	f.syncRecord(t, entity.TypeActivities, map[string]any{
		"id": int64(30), "type": "drive", "missionId": int64(7), "userId": int64(1),
		"startTime": fixedNow - 3600,
	})

	foreignEnd := fixedNow - 600
	f.transport.FailWithCode("endMission", transport.CodeMissionAlreadyEnded, map[string]any{
		"missionEnd": map[string]any{
			"endTime": float64(foreignEnd),
			"submitter": map[string]any{
				"id": float64(2), "firstName": "Jane", "lastName": "Doe",
			},
		},
	})

	require.NoError(t, f.actions.EndMission(context.Background(), actions.EndMissionOptions{
		Mission: mission,
		EndTime: fixedNow,
	}))

	activity, ok := f.store.GetEntity(entity.TypeActivities, 30)
	require.True(t, ok)
	assert.Equal(t, float64(foreignEnd), activity.Fields["endTime"],
		"the open activity adopts the end time someone else recorded")

	ended, ok := f.store.GetEntity(entity.TypeMissions, 7)
	require.True(t, ok)
	assert.Equal(t, true, ended.Fields["ended"])

	errs := f.alerts.Errors()
	require.Len(t, errs, 1)
	require.Len(t, errs[0].Messages, 1)
	assert.Contains(t, errs[0].Messages[0], "Jane Doe")
	assert.True(t, errs[0].ProposeRefresh)
}

func TestValidateMission_RejectionSurfacesToCaller(t *testing.T) {
	f := newFixture(t)
	mission := f.syncRecord(t, entity.TypeMissions, map[string]any{
		"id": int64(7), "name": "haul", "ended": true,
	})
	f.transport.FailWithCode("validateMission", "NO_ACTIVITIES", nil)

	err := f.actions.ValidateMission(context.Background(), mission)
	assert.True(t, transport.MatchesCode(err, "NO_ACTIVITIES"),
		"a validation rejection must reach the caller, not be absorbed")

	reverted, ok := f.store.GetEntity(entity.TypeMissions, 7)
	require.True(t, ok)
	_, hasValidation := reverted.Fields["validation"]
	assert.False(t, hasValidation, "optimistic validation rolled back")
}

func TestValidateMission_SuccessAlerts(t *testing.T) {
	f := newFixture(t)
	mission := f.syncRecord(t, entity.TypeMissions, map[string]any{
		"id": int64(7), "name": "haul", "ended": true,
	})
	f.transport.Respond("validateMission", map[string]any{
		"mission": map[string]any{"id": float64(7), "name": "haul"},
		"isAdmin": false,
	})

	require.NoError(t, f.actions.ValidateMission(context.Background(), mission))

	validated, ok := f.store.GetEntity(entity.TypeMissions, 7)
	require.True(t, ok)
	assert.NotNil(t, validated.Fields["validation"])
	assert.Equal(t, []string{"Mission haul validated."}, f.alerts.Successes())
}

func TestCancelExpenditure_UnsentCreationWithdrawnLocally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.transport.Fail("logExpenditure", &transport.NetworkError{})

	require.NoError(t, f.actions.LogExpenditure(ctx, entity.ExpenditureDayMeal, 7, 0))
	pending := f.store.List(entity.TypeExpenditures)
	require.Len(t, pending, 1)
	require.True(t, pending[0].PendingSubmission())

	f.awaitIdle(t)
	require.NoError(t, f.actions.CancelExpenditure(ctx, pending[0]))

	assert.Empty(t, f.store.PendingRequests(), "the unsent creation is simply dropped")
	assert.Empty(t, f.store.List(entity.TypeExpenditures))
	assert.NotContains(t, f.transport.CallNames(), "cancelExpenditure")
}

func TestCancelExpenditure_SettledExpenditureGoesToBackend(t *testing.T) {
	f := newFixture(t)
	rec := f.syncRecord(t, entity.TypeExpenditures, map[string]any{
		"id": int64(20), "type": entity.ExpenditureSnack, "missionId": int64(7), "userId": int64(1),
	})
	f.transport.Respond("cancelExpenditure", map[string]any{"success": true})

	require.NoError(t, f.actions.CancelExpenditure(context.Background(), rec))

	assert.Empty(t, f.store.List(entity.TypeExpenditures))
	assert.Contains(t, f.transport.CallNames(), "cancelExpenditure")
}

func TestEditExpenditures_ReconcilesDesiredSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing := f.syncRecord(t, entity.TypeExpenditures, map[string]any{
		"id": int64(20), "type": entity.ExpenditureSnack, "missionId": int64(7), "userId": int64(1),
	})
	f.transport.Respond("logExpenditure", map[string]any{
		"id": float64(21), "type": entity.ExpenditureDayMeal, "missionId": float64(7), "userId": float64(1),
	})
	f.transport.Respond("cancelExpenditure", map[string]any{"success": true})

	require.NoError(t, f.actions.EditExpenditures(ctx,
		map[string]bool{entity.ExpenditureDayMeal: true, entity.ExpenditureSnack: false},
		[]entity.Record{existing}, 7, selfID))

	remaining := f.store.List(entity.TypeExpenditures)
	require.Len(t, remaining, 1)
	assert.Equal(t, entity.ExpenditureDayMeal, remaining[0].Fields["type"])
}

func TestLogComment_OptimisticReceptionTime(t *testing.T) {
	f := newFixture(t)
	f.transport.Fail("logComment", &transport.NetworkError{})
	when := f.clock.Advance(120)

	require.NoError(t, f.actions.LogComment(context.Background(), "left the depot late", 7))

	comments := f.store.List(entity.TypeComments)
	require.Len(t, comments, 1)
	assert.Equal(t, when, comments[0].Fields["receptionTime"])
	assert.Equal(t, "left the depot late", comments[0].Fields["text"])
}

func TestCancelComment_UnsentCreationWithdrawnLocally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.transport.Fail("logComment", &transport.NetworkError{})

	require.NoError(t, f.actions.LogComment(ctx, "wrong mission", 7))
	comments := f.store.List(entity.TypeComments)
	require.Len(t, comments, 1)

	f.awaitIdle(t)
	require.NoError(t, f.actions.CancelComment(ctx, comments[0]))

	assert.Empty(t, f.store.PendingRequests())
	assert.Empty(t, f.store.List(entity.TypeComments))
	assert.NotContains(t, f.transport.CallNames(), "cancelComment")
}

func TestBookVehicle_ReconcilesBooking(t *testing.T) {
	f := newFixture(t)
	f.transport.Respond("bookVehicle", map[string]any{
		"id": float64(77), "vehicleId": float64(5), "missionId": float64(7), "userId": float64(1),
	})

	require.NoError(t, f.actions.BookVehicle(context.Background(), 7, 5, ""))

	bookings := f.store.List(entity.TypeVehicleBookings)
	require.Len(t, bookings, 1)
	assert.Equal(t, entity.ID(77), bookings[0].ID)
	assert.Len(t, f.store.IdentityMap(), 1)
}

func TestLogout_DiscardsQueueAndState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.transport.Fail("logActivity", &transport.NetworkError{})
	require.NoError(t, f.actions.LogActivity(ctx, actions.ActivityOptions{
		Type:      entity.ActivityDrive,
		MissionID: 5,
		StartTime: fixedNow,
	}))
	require.Len(t, f.store.PendingRequests(), 1)

	require.NoError(t, f.actions.Logout(ctx))

	assert.Empty(t, f.store.PendingRequests())
	assert.Empty(t, f.store.List(entity.TypeActivities))
	assert.Equal(t, entity.ID(0), f.store.UserID())
}
