package actions

import (
	"context"
	"fmt"

	"worklog/internal/entity"
	"worklog/internal/store"
	"worklog/internal/transport"
)

// Address locates a mission boundary: either a company-known address or a
// free-form one.
type Address struct {
	KnownID entity.ID
	Name    string
}

// BeginMissionOptions describes a new mission and its first activity.
type BeginMissionOptions struct {
	Name                string
	FirstActivityType   string
	Team                []entity.ID
	DriverID            entity.ID
	VehicleID           entity.ID
	VehicleRegistration string
	StartLocation       *Address
}

// EndMissionOptions describes how a mission ends for one user.
type EndMissionOptions struct {
	Mission entity.Record
	EndTime int64
	// UserID of zero means the acting user.
	UserID entity.ID
	// Expenditures is the desired final set, keyed by expenditure type.
	Expenditures map[string]bool
	Comment      string
	EndLocation  *Address
}

// BeginMission creates a mission, logs its first activity for the whole
// team and records the start location. The returned identifier is
// temporary until the creation is acknowledged.
func (a *Actions) BeginMission(ctx context.Context, opts BeginMissionOptions) (entity.ID, error) {
	variables := map[string]any{"name": opts.Name}
	missionContext := map[string]any{}
	if opts.VehicleID != 0 {
		missionContext["vehicleId"] = int64(opts.VehicleID)
	} else if opts.VehicleRegistration != "" {
		missionContext["vehicleRegistrationNumber"] = opts.VehicleRegistration
	}
	if len(missionContext) > 0 {
		variables["context"] = missionContext
	}

	req, err := a.store.NewRequest(ctx, store.RequestSpec{
		Query:     transport.CreateMissionMutation,
		Variables: variables,
		Update: entity.OptimisticUpdate{Ops: []entity.Op{
			entity.CreateOp(entity.TypeMissions, map[string]any{
				"name":    opts.Name,
				"context": missionContext,
				"ended":   false,
			}),
		}},
		Info: func(requestID int64, applied []entity.AppliedOp) entity.StoreInfo {
			return entity.StoreInfo{
				"missionId": int64(createdID(applied, entity.TypeMissions)),
			}
		},
		WatchFields: []entity.Type{entity.TypeMissions},
		Handler:     entity.HandlerBeginMission,
		// The creation must reach the backend alone: everything after it
		// references the identifier it mints.
		Batchable: false,
	})
	if err != nil {
		return 0, err
	}
	missionID, _ := req.StoreInfo.ID("missionId")

	if err := a.LogTeamActivity(ctx, TeamActivityOptions{
		ActivityOptions: ActivityOptions{
			Type:         opts.FirstActivityType,
			MissionID:    missionID,
			StartTime:    a.now(),
			SwitchMode:   true,
			NonBatchable: true,
		},
		Team:     opts.Team,
		DriverID: opts.DriverID,
	}); err != nil {
		return missionID, err
	}
	if opts.StartLocation != nil {
		if err := a.LogLocation(ctx, *opts.StartLocation, missionID, true); err != nil {
			return missionID, err
		}
	}
	return missionID, nil
}

// EndMission closes the mission for one user: the open activity is ended,
// the expenditure set is reconciled, and the optional comment and end
// location are recorded.
func (a *Actions) EndMission(ctx context.Context, opts EndMissionOptions) error {
	userID := opts.UserID
	if userID == 0 {
		userID = a.store.UserID()
	}
	missionID := opts.Mission.ID
	missionName, _ := opts.Mission.Fields["name"].(string)

	var currentActivityID entity.ID
	ops := []entity.Op{}
	if current, ok := a.currentActivityOf(userID); ok {
		currentActivityID = current.ID
		ops = append(ops, entity.UpdateOp(entity.TypeActivities, current.ID, map[string]any{
			"endTime": truncateMinute(opts.EndTime),
		}))
	}
	ops = append(ops, entity.UpdateOp(entity.TypeMissions, missionID, map[string]any{
		"ended": true,
	}))

	err := a.submit(ctx, store.RequestSpec{
		Query: transport.EndMissionMutation,
		Variables: map[string]any{
			"endTime":   opts.EndTime,
			"missionId": int64(missionID),
			"userId":    int64(userID),
		},
		Update: entity.OptimisticUpdate{Ops: ops},
		Info: func(requestID int64, applied []entity.AppliedOp) entity.StoreInfo {
			info := entity.StoreInfo{
				"userId":    int64(userID),
				"missionId": int64(missionID),
				"name":      missionName,
			}
			if currentActivityID != 0 {
				info["currentActivityId"] = int64(currentActivityID)
			}
			return info
		},
		WatchFields: []entity.Type{entity.TypeActivities, entity.TypeMissions},
		Handler:     entity.HandlerEndMission,
		Batchable:   true,
	}, false)
	if err != nil {
		return err
	}

	if opts.Expenditures != nil {
		if err := a.EditExpenditures(ctx, opts.Expenditures, missionExpenditures(a.store, missionID, userID), missionID, userID); err != nil {
			return err
		}
	}
	if opts.Comment != "" {
		if err := a.LogComment(ctx, opts.Comment, missionID); err != nil {
			return err
		}
	}
	if opts.EndLocation != nil {
		if err := a.LogLocation(ctx, *opts.EndLocation, missionID, false); err != nil {
			return err
		}
	}
	return nil
}

// EndMissionForTeam ends the mission for every team member. Only the acting
// user's closure carries the comment and location.
func (a *Actions) EndMissionForTeam(ctx context.Context, opts EndMissionOptions, team []entity.ID) error {
	if len(team) == 0 {
		return a.EndMission(ctx, opts)
	}
	selfID := a.store.UserID()
	for _, id := range team {
		if id != selfID {
			continue
		}
		own := opts
		own.UserID = selfID
		if err := a.EndMission(ctx, own); err != nil {
			return err
		}
	}
	for _, id := range team {
		if id == selfID {
			continue
		}
		mate := opts
		mate.UserID = id
		mate.Comment = ""
		mate.EndLocation = nil
		if err := a.EndMission(ctx, mate); err != nil {
			return err
		}
	}
	return nil
}

// ValidateMission submits the user's validation of a finished mission. The
// validation must settle immediately: a rejection is returned rather than
// absorbed, so the caller can keep the user on the validation screen.
func (a *Actions) ValidateMission(ctx context.Context, mission entity.Record) error {
	selfID := a.store.UserID()
	validation := map[string]any{
		"receptionTime": a.now(),
		"submitterId":   int64(selfID),
		"userId":        int64(selfID),
	}
	return a.submit(ctx, store.RequestSpec{
		Query: transport.ValidateMissionMutation,
		Variables: map[string]any{
			"missionId": int64(mission.ID),
			"userId":    int64(selfID),
		},
		Update: entity.OptimisticUpdate{Ops: []entity.Op{
			entity.UpdateOp(entity.TypeMissions, mission.ID, map[string]any{
				"ended":      true,
				"validation": validation,
			}),
		}},
		Info: func(requestID int64, applied []entity.AppliedOp) entity.StoreInfo {
			return entity.StoreInfo{"validation": validation, "missionId": int64(mission.ID)}
		},
		WatchFields: []entity.Type{entity.TypeMissions},
		Handler:     entity.HandlerValidateMission,
		Batchable:   true,
	}, true)
}

// LogLocation records the start or end address of a mission.
func (a *Actions) LogLocation(ctx context.Context, address Address, missionID entity.ID, isStart bool) error {
	locationType := "mission_end_location"
	field := "endLocation"
	if isStart {
		locationType = "mission_start_location"
		field = "startLocation"
	}
	variables := map[string]any{
		"missionId": int64(missionID),
		"type":      locationType,
	}
	optimistic := map[string]any{"name": address.Name}
	if address.KnownID != 0 {
		variables["companyKnownAddressId"] = int64(address.KnownID)
		optimistic["id"] = int64(address.KnownID)
	} else {
		variables["manualAddress"] = address.Name
		optimistic["manual"] = true
	}

	return a.submit(ctx, store.RequestSpec{
		Query:     transport.LogLocationMutation,
		Variables: variables,
		Update: entity.OptimisticUpdate{Ops: []entity.Op{
			entity.UpdateOp(entity.TypeMissions, missionID, map[string]any{field: optimistic}),
		}},
		Info: func(requestID int64, applied []entity.AppliedOp) entity.StoreInfo {
			return entity.StoreInfo{"missionId": int64(missionID), "isStart": isStart}
		},
		WatchFields: []entity.Type{entity.TypeMissions},
		Handler:     entity.HandlerLogLocation,
		Batchable:   true,
	}, false)
}

func (a *Actions) onBeginMissionSuccess(ctx context.Context, resp *transport.Response, info entity.StoreInfo) error {
	mission, ok := recordFromPayload(resp.Get("activities", "createMission"))
	if !ok {
		return fmt.Errorf("createMission: malformed response payload")
	}
	tempID, _ := info.ID("missionId")
	mission.Fields["ended"] = false

	a.store.AddToIdentityMap(tempID, mission.ID)
	if err := a.store.SyncEntity(ctx, []entity.Record{mission}, entity.TypeMissions, nil,
		map[entity.ID]entity.ID{tempID: mission.ID}); err != nil {
		return err
	}
	// Entities logged against the mission while it was unacknowledged still
	// point at the temporary identifier.
	if err := a.store.RewriteReference(ctx, entity.TypeActivities, "missionId", tempID, mission.ID); err != nil {
		return err
	}
	return a.store.RewriteReference(ctx, entity.TypeExpenditures, "missionId", tempID, mission.ID)
}

func (a *Actions) onBeginMissionError(ctx context.Context, cause error, info entity.StoreInfo) error {
	tempID, _ := info.ID("missionId")
	return a.store.SyncEntity(ctx, nil, entity.TypeMissions, scopeID(tempID), nil)
}

func (a *Actions) onEndMissionSuccess(ctx context.Context, resp *transport.Response, info entity.StoreInfo) error {
	payload := resp.Get("activities", "endMission")
	mission, ok := recordFromPayload(payload)
	if !ok {
		return fmt.Errorf("endMission: malformed response payload")
	}
	delete(mission.Fields, "activities")
	mission.Fields["ended"] = true
	if err := a.store.SyncEntity(ctx, []entity.Record{mission}, entity.TypeMissions, scopeID(mission.ID), nil); err != nil {
		return err
	}

	// The settled mission carries the authoritative activity list.
	raw, _ := payload["activities"].([]any)
	activities := make([]entity.Record, 0, len(raw))
	for _, item := range raw {
		obj, _ := item.(map[string]any)
		if rec, ok := recordFromPayload(obj); ok {
			activities = append(activities, rec)
		}
	}
	return a.store.SyncEntity(ctx, activities, entity.TypeActivities, func(r entity.Record) bool {
		id, ok := fieldID(r, "missionId")
		return ok && id == mission.ID
	}, nil)
}

func (a *Actions) onEndMissionError(ctx context.Context, cause error, info entity.StoreInfo) error {
	missionID, _ := info.ID("missionId")
	userID, _ := info.ID("userId")
	selfID := a.store.UserID()

	if ge, found := transport.FindCode(cause, transport.CodeMissionAlreadyEnded); found {
		// Someone else already closed the mission: adopt their end time.
		if missionEnd, ok := ge.Extensions["missionEnd"].(map[string]any); ok {
			endTime := missionEnd["endTime"]
			if currentID, ok := info.ID("currentActivityId"); ok && currentID != 0 {
				if current, exists := a.store.GetEntity(entity.TypeActivities, currentID); exists {
					closed := current.Clone()
					closed.Fields["endTime"] = endTime
					if err := a.store.SyncEntity(ctx, []entity.Record{closed}, entity.TypeActivities, scopeID(currentID), nil); err != nil {
						return err
					}
				} else {
					a.log.Warn("activity missing for adopted mission end", "activity", int64(currentID))
				}
			}
		}
		if userID == selfID {
			if mission, exists := a.store.GetEntity(entity.TypeMissions, missionID); exists {
				ended := mission.Clone()
				ended.Fields["ended"] = true
				if err := a.store.SyncEntity(ctx, []entity.Record{ended}, entity.TypeMissions, scopeID(missionID), nil); err != nil {
					return err
				}
			}
		}
	}

	if transport.IsGraphQLError(cause) {
		name, _ := info["name"].(string)
		description := "the end of the mission"
		if name != "" {
			description = fmt.Sprintf("the end of mission %s", name)
		}
		a.alerts.Error(Alert{
			ActionDescription: description,
			Messages:          a.formatActivityErrors(cause),
			ProposeRefresh:    userID == selfID && a.shouldProposeRefresh(cause),
		})
	}
	return nil
}

func (a *Actions) onValidateMissionSuccess(ctx context.Context, resp *transport.Response, info entity.StoreInfo) error {
	payload := resp.Get("activities", "validateMission")
	missionObj, _ := payload["mission"].(map[string]any)
	mission, ok := recordFromPayload(missionObj)
	if !ok {
		return fmt.Errorf("validateMission: malformed response payload")
	}
	validation := info["validation"]
	mission.Fields["ended"] = true
	mission.Fields["validation"] = validation
	if isAdmin, _ := payload["isAdmin"].(bool); isAdmin {
		mission.Fields["adminValidation"] = validation
	} else {
		mission.Fields["adminValidation"] = nil
	}
	if err := a.store.SyncEntity(ctx, []entity.Record{mission}, entity.TypeMissions, scopeID(mission.ID), nil); err != nil {
		return err
	}

	name, _ := mission.Fields["name"].(string)
	if name != "" {
		a.alerts.Success(fmt.Sprintf("Mission %s validated.", name))
	} else {
		a.alerts.Success("Mission validated.")
	}
	return nil
}

func (a *Actions) onLogLocationSuccess(ctx context.Context, resp *transport.Response, info entity.StoreInfo) error {
	location := resp.Get("activities", "logLocation")
	missionID, _ := info.ID("missionId")
	isStart, _ := info["isStart"].(bool)

	mission, found := a.store.GetEntity(entity.TypeMissions, missionID)
	if !found {
		a.log.Warn("mission missing for settled location", "mission", int64(missionID))
		return nil
	}
	updated := mission.Clone()
	if isStart {
		updated.Fields["startLocation"] = location
	} else {
		updated.Fields["endLocation"] = location
	}
	return a.store.SyncEntity(ctx, []entity.Record{updated}, entity.TypeMissions, scopeID(missionID), nil)
}

// missionExpenditures lists the user's recorded expenditures on a mission.
func missionExpenditures(st *store.Store, missionID, userID entity.ID) []entity.Record {
	var out []entity.Record
	for _, rec := range st.List(entity.TypeExpenditures) {
		mid, ok := fieldID(rec, "missionId")
		if !ok || mid != missionID {
			continue
		}
		if uid, ok := fieldID(rec, "userId"); ok && uid != userID {
			continue
		}
		out = append(out, rec)
	}
	return out
}
