package actions

import (
	"context"
	"fmt"

	"worklog/internal/entity"
	"worklog/internal/store"
	"worklog/internal/transport"
)

// LogExpenditure records one expenditure on a mission. A userID of zero
// means the acting user.
func (a *Actions) LogExpenditure(ctx context.Context, expenditureType string, missionID, userID entity.ID) error {
	if userID == 0 {
		userID = a.store.UserID()
	}
	payload := map[string]any{
		"type":      expenditureType,
		"missionId": int64(missionID),
		"userId":    int64(userID),
	}
	return a.submit(ctx, store.RequestSpec{
		Query:     transport.LogExpenditureMutation,
		Variables: payload,
		Update: entity.OptimisticUpdate{Ops: []entity.Op{
			entity.CreateOp(entity.TypeExpenditures, payload),
		}},
		Info: func(requestID int64, applied []entity.AppliedOp) entity.StoreInfo {
			return entity.StoreInfo{
				"missionId": int64(missionID),
				"userId":    int64(userID),
				"type":      expenditureType,
			}
		},
		WatchFields: []entity.Type{entity.TypeExpenditures},
		Handler:     entity.HandlerLogExpenditure,
		Batchable:   true,
	}, false)
}

// LogExpenditureForTeam records the expenditure for every team member.
func (a *Actions) LogExpenditureForTeam(ctx context.Context, expenditureType string, missionID entity.ID, team []entity.ID) error {
	if len(team) == 0 {
		return a.LogExpenditure(ctx, expenditureType, missionID, 0)
	}
	for _, id := range team {
		if err := a.LogExpenditure(ctx, expenditureType, missionID, id); err != nil {
			return err
		}
	}
	return nil
}

// EditExpenditures reconciles the user's expenditures on a mission with the
// desired set: missing kinds are logged, unwanted ones withdrawn.
func (a *Actions) EditExpenditures(ctx context.Context, desired map[string]bool, existing []entity.Record, missionID, userID entity.ID) error {
	has := func(expenditureType string) bool {
		for _, rec := range existing {
			if t, _ := rec.Fields["type"].(string); t == expenditureType {
				return true
			}
		}
		return false
	}
	for expenditureType, wanted := range desired {
		if wanted && !has(expenditureType) {
			if err := a.LogExpenditure(ctx, expenditureType, missionID, userID); err != nil {
				return err
			}
		}
	}
	for _, rec := range existing {
		t, _ := rec.Fields["type"].(string)
		if !desired[t] {
			if err := a.CancelExpenditure(ctx, rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// CancelExpenditure withdraws an expenditure. One that only exists as an
// unsent creation is withdrawn locally by cancelling that creation; no
// request reaches the backend.
func (a *Actions) CancelExpenditure(ctx context.Context, expenditure entity.Record) error {
	if expenditure.PendingSubmission() {
		if a.engine.Submitting() || expenditure.Hidden() {
			return nil
		}
		creationID := expenditure.PendingUpdates[0].RequestID
		for _, req := range a.store.PendingRequests() {
			if req.ID == creationID {
				return a.store.ClearPendingRequest(ctx, creationID)
			}
		}
	}

	return a.submit(ctx, store.RequestSpec{
		Query:     transport.CancelExpenditureMutation,
		Variables: map[string]any{"expenditureId": int64(expenditure.ID)},
		Update: entity.OptimisticUpdate{Ops: []entity.Op{
			entity.DeleteOp(entity.TypeExpenditures, expenditure.ID),
		}},
		Info: func(requestID int64, applied []entity.AppliedOp) entity.StoreInfo {
			return entity.StoreInfo{"expenditureId": int64(expenditure.ID)}
		},
		WatchFields: []entity.Type{entity.TypeExpenditures},
		Handler:     entity.HandlerCancelExpenditure,
		Batchable:   true,
	}, false)
}

func (a *Actions) onLogExpenditureSuccess(ctx context.Context, resp *transport.Response, info entity.StoreInfo) error {
	expenditure, ok := recordFromPayload(resp.Get("activities", "logExpenditure"))
	if !ok {
		return fmt.Errorf("logExpenditure: malformed response payload")
	}
	return a.store.SyncEntity(ctx, []entity.Record{expenditure}, entity.TypeExpenditures, nil, nil)
}

func (a *Actions) onLogExpenditureError(ctx context.Context, cause error, info entity.StoreInfo) error {
	if !transport.IsGraphQLError(cause) {
		return nil
	}
	userID, _ := info.ID("userId")
	expenditureType, _ := info["type"].(string)

	messages := formatErrors(cause, func(ge transport.GraphQLError) string {
		if ge.Matches(transport.CodeDuplicateExpenditures) {
			return "An expenditure of this kind is already recorded on the mission."
		}
		return ""
	})
	a.alerts.Error(Alert{
		ActionDescription: fmt.Sprintf("the %s of %s",
			entity.ExpenditureLabels[expenditureType],
			a.describeUser(userID)),
		Messages: messages,
	})
	return nil
}

func (a *Actions) onCancelExpenditureSuccess(ctx context.Context, resp *transport.Response, info entity.StoreInfo) error {
	expenditureID, _ := info.ID("expenditureId")
	return a.store.SyncEntity(ctx, nil, entity.TypeExpenditures, scopeID(expenditureID), nil)
}
