package actions

import (
	"context"
	"fmt"

	"worklog/internal/entity"
	"worklog/internal/store"
	"worklog/internal/transport"
)

// LogComment attaches a free-form comment to a mission.
func (a *Actions) LogComment(ctx context.Context, text string, missionID entity.ID) error {
	selfID := a.store.UserID()
	variables := map[string]any{
		"text":        text,
		"missionId":   int64(missionID),
		"submitterId": int64(selfID),
	}
	optimistic := map[string]any{
		"text":          text,
		"missionId":     int64(missionID),
		"submitterId":   int64(selfID),
		"receptionTime": a.now(),
	}
	return a.submit(ctx, store.RequestSpec{
		Query:     transport.LogCommentMutation,
		Variables: variables,
		Update: entity.OptimisticUpdate{Ops: []entity.Op{
			entity.CreateOp(entity.TypeComments, optimistic),
		}},
		Info: func(requestID int64, applied []entity.AppliedOp) entity.StoreInfo {
			return entity.StoreInfo{"missionId": int64(missionID)}
		},
		WatchFields: []entity.Type{entity.TypeComments},
		Handler:     entity.HandlerLogComment,
		Batchable:   true,
	}, false)
}

// CancelComment withdraws a comment. One that only exists as an unsent
// creation is withdrawn locally by cancelling that creation.
func (a *Actions) CancelComment(ctx context.Context, comment entity.Record) error {
	if comment.PendingSubmission() {
		if a.engine.Submitting() || comment.Hidden() {
			return nil
		}
		creationID := comment.PendingUpdates[0].RequestID
		for _, req := range a.store.PendingRequests() {
			if req.ID == creationID {
				return a.store.ClearPendingRequest(ctx, creationID)
			}
		}
	}

	return a.submit(ctx, store.RequestSpec{
		Query:     transport.CancelCommentMutation,
		Variables: map[string]any{"commentId": int64(comment.ID)},
		Update: entity.OptimisticUpdate{Ops: []entity.Op{
			entity.DeleteOp(entity.TypeComments, comment.ID),
		}},
		Info: func(requestID int64, applied []entity.AppliedOp) entity.StoreInfo {
			return entity.StoreInfo{"commentId": int64(comment.ID)}
		},
		WatchFields: []entity.Type{entity.TypeComments},
		Handler:     entity.HandlerCancelComment,
		Batchable:   true,
	}, false)
}

func (a *Actions) onLogCommentSuccess(ctx context.Context, resp *transport.Response, info entity.StoreInfo) error {
	comment, ok := recordFromPayload(resp.Get("activities", "logComment"))
	if !ok {
		return fmt.Errorf("logComment: malformed response payload")
	}
	return a.store.SyncEntity(ctx, []entity.Record{comment}, entity.TypeComments, nil, nil)
}

func (a *Actions) onCancelCommentSuccess(ctx context.Context, resp *transport.Response, info entity.StoreInfo) error {
	commentID, _ := info.ID("commentId")
	return a.store.SyncEntity(ctx, nil, entity.TypeComments, scopeID(commentID), nil)
}
