package actions

import (
	"context"
	"fmt"

	"worklog/internal/entity"
	"worklog/internal/store"
	"worklog/internal/transport"
)

// BookVehicle records which vehicle the mission uses. Either a known
// vehicle identifier or a free-form registration number.
func (a *Actions) BookVehicle(ctx context.Context, missionID, vehicleID entity.ID, registration string) error {
	variables := map[string]any{"missionId": int64(missionID)}
	optimistic := map[string]any{
		"missionId": int64(missionID),
		"time":      a.now(),
	}
	if vehicleID != 0 {
		variables["vehicleId"] = int64(vehicleID)
		optimistic["vehicleId"] = int64(vehicleID)
	} else {
		variables["registrationNumber"] = registration
		optimistic["registrationNumber"] = registration
	}

	return a.submit(ctx, store.RequestSpec{
		Query:     transport.BookVehicleMutation,
		Variables: variables,
		Update: entity.OptimisticUpdate{Ops: []entity.Op{
			entity.CreateOp(entity.TypeVehicleBookings, optimistic),
		}},
		Info: func(requestID int64, applied []entity.AppliedOp) entity.StoreInfo {
			return entity.StoreInfo{
				"vehicleBookingId": int64(createdID(applied, entity.TypeVehicleBookings)),
				"missionId":        int64(missionID),
			}
		},
		WatchFields: []entity.Type{entity.TypeVehicleBookings},
		Handler:     entity.HandlerBookVehicle,
		Batchable:   true,
	}, false)
}

func (a *Actions) onBookVehicleSuccess(ctx context.Context, resp *transport.Response, info entity.StoreInfo) error {
	booking, ok := recordFromPayload(resp.Get("activities", "bookVehicle"))
	if !ok {
		return fmt.Errorf("bookVehicle: malformed response payload")
	}
	tempID, _ := info.ID("vehicleBookingId")
	a.store.AddToIdentityMap(tempID, booking.ID)
	return a.store.SyncEntity(ctx, []entity.Record{booking}, entity.TypeVehicleBookings, nil,
		map[entity.ID]entity.ID{tempID: booking.ID})
}
