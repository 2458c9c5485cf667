package actions

import (
	"context"
	"fmt"

	"worklog/internal/entity"
	"worklog/internal/store"
	"worklog/internal/transport"
)

// ActivityOptions describes one activity to log.
type ActivityOptions struct {
	// Type is the activity kind (drive, work, ...).
	Type string
	// MissionID is the mission the activity belongs to; may be temporary.
	MissionID entity.ID
	StartTime int64
	// EndTime of zero means the activity is ongoing.
	EndTime int64
	// UserID of zero means the acting user.
	UserID  entity.ID
	Comment string
	// SwitchMode closes the user's current open activity at StartTime.
	SwitchMode bool
	// NonBatchable forces the request out of transmission batches.
	NonBatchable bool

	groupID           int64
	killSistersOnFail bool
}

// TeamActivityOptions logs the same activity for a whole team.
type TeamActivityOptions struct {
	ActivityOptions
	Team []entity.ID
	// DriverID: for drive activities, the one team member actually driving;
	// the others are logged as support.
	DriverID entity.ID
}

// LogActivity records one activity optimistically and submits it.
func (a *Actions) LogActivity(ctx context.Context, opts ActivityOptions) error {
	userID := opts.UserID
	if userID == 0 {
		userID = a.store.UserID()
	}

	var ops []entity.Op
	if opts.SwitchMode {
		if current, ok := a.currentActivityOf(userID); ok {
			ops = append(ops, entity.UpdateOp(entity.TypeActivities, current.ID, map[string]any{
				"endTime": truncateMinute(opts.StartTime),
			}))
		}
	}
	payload := map[string]any{
		"type":      opts.Type,
		"missionId": int64(opts.MissionID),
		"startTime": truncateMinute(opts.StartTime),
		"userId":    int64(userID),
	}
	if opts.EndTime != 0 {
		payload["endTime"] = truncateMinute(opts.EndTime)
	}
	if opts.Comment != "" {
		payload["context"] = map[string]any{"comment": opts.Comment}
	}
	ops = append(ops, entity.CreateOp(entity.TypeActivities, payload))

	variables := map[string]any{
		"type":      opts.Type,
		"missionId": int64(opts.MissionID),
		"startTime": opts.StartTime,
		"userId":    int64(userID),
		"switch":    opts.SwitchMode,
	}
	if opts.EndTime != 0 {
		variables["endTime"] = opts.EndTime
	}
	if opts.Comment != "" {
		variables["context"] = map[string]any{"comment": opts.Comment}
	}

	return a.submit(ctx, store.RequestSpec{
		Query:     transport.LogActivityMutation,
		Variables: variables,
		Update:    entity.OptimisticUpdate{Ops: ops},
		Info: func(requestID int64, applied []entity.AppliedOp) entity.StoreInfo {
			info := entity.StoreInfo{
				"activityId":   int64(createdID(applied, entity.TypeActivities)),
				"requestId":    requestID,
				"switchMode":   opts.SwitchMode,
				"actualUserId": int64(userID),
				"startTime":    opts.StartTime,
				"endTime":      opts.EndTime,
				"type":         opts.Type,
			}
			if opts.groupID != 0 {
				info["groupId"] = opts.groupID
			}
			return info
		},
		WatchFields:     []entity.Type{entity.TypeActivities},
		Handler:         entity.HandlerLogActivity,
		Batchable:       !opts.NonBatchable && !opts.killSistersOnFail,
		GroupID:         opts.groupID,
		KillGroupOnFail: opts.killSistersOnFail,
	}, false)
}

// LogTeamActivity logs one activity for every team member. The acting
// user's own activity goes first; if it is rejected outright, the sister
// activities are withdrawn along with it.
func (a *Actions) LogTeamActivity(ctx context.Context, opts TeamActivityOptions) error {
	if len(opts.Team) == 0 {
		return a.LogActivity(ctx, opts.ActivityOptions)
	}

	memberType := func(id entity.ID) string {
		if opts.Type == entity.ActivityDrive && opts.DriverID != 0 && id != opts.DriverID {
			return entity.ActivitySupport
		}
		return opts.Type
	}

	groupID := a.store.NextGroupID()
	selfID := a.store.UserID()

	includesSelf := false
	for _, id := range opts.Team {
		if id == selfID {
			includesSelf = true
		}
	}
	if includesSelf {
		own := opts.ActivityOptions
		own.Type = memberType(selfID)
		own.UserID = selfID
		own.groupID = groupID
		own.killSistersOnFail = len(opts.Team) > 1
		if err := a.LogActivity(ctx, own); err != nil {
			return err
		}
	}
	for _, id := range opts.Team {
		if id == selfID {
			continue
		}
		mate := opts.ActivityOptions
		mate.Type = memberType(id)
		mate.UserID = id
		mate.groupID = groupID
		if err := a.LogActivity(ctx, mate); err != nil {
			return err
		}
	}
	return nil
}

// CancelActivity withdraws a previously logged activity.
func (a *Actions) CancelActivity(ctx context.Context, activity entity.Record, comment string) error {
	variables := map[string]any{"activityId": int64(activity.ID)}
	if comment != "" {
		variables["context"] = map[string]any{"comment": comment}
	}
	return a.editOrCancel(ctx, activity, transport.CancelActivityMutation, variables,
		entity.OptimisticUpdate{Ops: []entity.Op{
			entity.DeleteOp(entity.TypeActivities, activity.ID),
		}}, "cancel", 0)
}

// EditActivity corrects the boundaries of a previously logged activity. A
// newEndTime of zero reopens the activity.
func (a *Actions) EditActivity(ctx context.Context, activity entity.Record, newStartTime, newEndTime int64, comment string) error {
	variables := map[string]any{
		"activityId":    int64(activity.ID),
		"startTime":     newStartTime,
		"endTime":       newEndTime,
		"removeEndTime": newEndTime == 0,
	}
	if comment != "" {
		variables["context"] = map[string]any{"comment": comment}
	}
	patch := map[string]any{"startTime": truncateMinute(newStartTime)}
	if newEndTime != 0 {
		patch["endTime"] = truncateMinute(newEndTime)
	} else {
		patch["endTime"] = nil
	}
	return a.editOrCancel(ctx, activity, transport.EditActivityMutation, variables,
		entity.OptimisticUpdate{Ops: []entity.Op{
			entity.UpdateOp(entity.TypeActivities, activity.ID, patch),
		}}, "edit", newEndTime)
}

func (a *Actions) editOrCancel(ctx context.Context, activity entity.Record, query string, variables map[string]any, update entity.OptimisticUpdate, actionType string, newEndTime int64) error {
	userID, _ := fieldID(activity, "userId")
	activityType, _ := activity.Fields["type"].(string)
	return a.submit(ctx, store.RequestSpec{
		Query:     query,
		Variables: variables,
		Update:    update,
		Info: func(requestID int64, applied []entity.AppliedOp) entity.StoreInfo {
			return entity.StoreInfo{
				"activityId": int64(activity.ID),
				"actionType": actionType,
				"newEndTime": newEndTime,
				"userId":     int64(userID),
				"type":       activityType,
			}
		},
		WatchFields: []entity.Type{entity.TypeActivities},
		Handler:     entity.HandlerCancelOrEditActivity,
		// A correction targeting an unacknowledged activity must wait for
		// the identifier to become permanent before it can be batched with
		// strangers.
		Batchable: !activity.ID.Temporary(),
	}, false)
}

// currentActivityOf returns the user's open activity, if any.
func (a *Actions) currentActivityOf(userID entity.ID) (entity.Record, bool) {
	for _, rec := range a.store.List(entity.TypeActivities) {
		owner, ok := fieldID(rec, "userId")
		if !ok || owner != userID {
			continue
		}
		if end, ok := rec.Fields["endTime"]; !ok || end == nil {
			return rec, true
		}
	}
	return entity.Record{}, false
}

func (a *Actions) onLogActivitySuccess(ctx context.Context, resp *transport.Response, info entity.StoreInfo) error {
	activity, ok := recordFromPayload(resp.Get("activities", "logActivity"))
	if !ok {
		return fmt.Errorf("logActivity: malformed response payload")
	}
	tempID, _ := info.ID("activityId")
	requestID, _ := info.ID("requestId")

	canonical := []entity.Record{activity}
	scope := func(entity.Record) bool { return false }

	if switchMode, _ := info["switchMode"].(bool); switchMode {
		// The activity closed optimistically by the switch carries an
		// update tag from this request; replace it with its settled end
		// time so the upcoming rollback does not reopen it.
		if previous, found := a.switchedActivity(activity, tempID, int64(requestID)); found {
			closed := previous.Clone()
			closed.Fields["endTime"] = activity.Fields["startTime"]
			canonical = append(canonical, closed)
			scope = scopeID(previous.ID)
		}
	}

	a.store.AddToIdentityMap(tempID, activity.ID)

	if end, _ := info.ID("endTime"); end == 0 {
		a.markMissionOngoing(ctx, activity)
	}

	return a.store.SyncEntity(ctx, canonical, entity.TypeActivities, scope,
		map[entity.ID]entity.ID{tempID: activity.ID})
}

func (a *Actions) switchedActivity(activity entity.Record, tempID entity.ID, requestID int64) (entity.Record, bool) {
	owner, _ := fieldID(activity, "userId")
	for _, rec := range a.store.List(entity.TypeActivities) {
		if rec.ID == tempID || rec.ID == activity.ID {
			continue
		}
		recOwner, ok := fieldID(rec, "userId")
		if !ok || recOwner != owner || !rec.PendingSubmission() {
			continue
		}
		for _, upd := range rec.PendingUpdates {
			if upd.Kind == entity.UpdateUpdate && upd.RequestID == requestID {
				return rec, true
			}
		}
	}
	return entity.Record{}, false
}

// markMissionOngoing reopens the mission an ongoing activity belongs to.
func (a *Actions) markMissionOngoing(ctx context.Context, activity entity.Record) {
	missionID, ok := fieldID(activity, "missionId")
	if !ok {
		return
	}
	mission, found := a.store.GetEntity(entity.TypeMissions, missionID)
	if !found {
		a.log.Warn("mission missing for ongoing activity", "mission", int64(missionID))
		return
	}
	reopened := mission.Clone()
	reopened.Fields["ended"] = false
	if err := a.store.SyncEntity(ctx, []entity.Record{reopened}, entity.TypeMissions, scopeID(missionID), nil); err != nil {
		a.log.Error("mission reopen failed", "mission", int64(missionID), "error", err)
	}
}

func (a *Actions) onLogActivityError(ctx context.Context, cause error, info entity.StoreInfo) error {
	if !transport.IsGraphQLError(cause) {
		return nil
	}
	userID, _ := info.ID("actualUserId")
	startTime, _ := info.ID("startTime")
	activityType, _ := info["type"].(string)
	selfID := a.store.UserID()

	a.alerts.Error(Alert{
		ActionDescription: fmt.Sprintf("the %s activity of %s at %s",
			entity.ActivityLabels[activityType],
			a.describeUser(userID),
			formatTimeOfDay(int64(startTime))),
		Messages:       a.formatActivityErrors(cause),
		ProposeRefresh: userID == selfID && a.shouldProposeRefresh(cause),
	})
	return nil
}

func (a *Actions) onCancelOrEditActivitySuccess(ctx context.Context, resp *transport.Response, info entity.StoreInfo) error {
	activityID, _ := info.ID("activityId")
	actionType, _ := info["actionType"].(string)

	if actionType == "cancel" {
		payload := resp.Get("activities", "cancelActivity")
		if success, _ := payload["success"].(bool); success {
			return a.store.SyncEntity(ctx, nil, entity.TypeActivities, scopeID(activityID), nil)
		}
		return nil
	}

	activity, ok := recordFromPayload(resp.Get("activities", "editActivity"))
	if !ok {
		return fmt.Errorf("editActivity: malformed response payload")
	}
	if end, _ := info.ID("newEndTime"); end == 0 {
		a.markMissionOngoing(ctx, activity)
	}
	return a.store.SyncEntity(ctx, []entity.Record{activity}, entity.TypeActivities, scopeID(activity.ID), nil)
}

func (a *Actions) onCancelOrEditActivityError(ctx context.Context, cause error, info entity.StoreInfo) error {
	if !transport.IsGraphQLError(cause) {
		return nil
	}
	userID, _ := info.ID("userId")
	activityType, _ := info["type"].(string)
	selfID := a.store.UserID()

	a.alerts.Error(Alert{
		ActionDescription: fmt.Sprintf("the correction of the %s activity of %s",
			entity.ActivityLabels[activityType],
			a.describeUser(userID)),
		Messages:       a.formatActivityErrors(cause),
		ProposeRefresh: userID == selfID && a.shouldProposeRefresh(cause),
	})
	return nil
}
