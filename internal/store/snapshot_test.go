package store_test

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"worklog/internal/entity"
	"worklog/internal/store"
)

// The durable snapshot format is a compatibility surface: every session on a
// device reads whatever the last one wrote. Pin it with a golden file.
func TestSnapshot_GoldenFormat(t *testing.T) {
	state := &store.State{
		Entities: map[entity.Type][]entity.Record{
			entity.TypeActivities: {{
				ID: -2,
				Fields: map[string]any{
					"id":        int64(-2),
					"missionId": int64(-1),
					"startTime": int64(1700000000),
					"type":      "drive",
				},
				PendingUpdates: []entity.PendingUpdate{{
					Kind:      entity.UpdateCreate,
					RequestID: 2,
					Time:      1700000000,
				}},
			}},
			entity.TypeMissions: {{
				ID: -1,
				Fields: map[string]any{
					"id":   int64(-1),
					"name": "evening haul",
				},
				PendingUpdates: []entity.PendingUpdate{{
					Kind:      entity.UpdateCreate,
					RequestID: 1,
					Time:      1700000000,
				}},
			}},
		},
		Identity: map[entity.ID]entity.ID{-9: 33},
		Requests: []entity.Request{{
			ID:        1,
			Query:     "mutation beginMission { }",
			Variables: map[string]any{"name": "evening haul"},
			Update: entity.OptimisticUpdate{Ops: []entity.Op{
				entity.CreateOp(entity.TypeMissions, map[string]any{"name": "evening haul"}),
			}},
			StoreInfo:   entity.StoreInfo{"missionId": int64(-1)},
			WatchFields: []entity.Type{entity.TypeMissions},
			Handler:     entity.HandlerBeginMission,
			EnqueuedAt:  1700000000,
		}},
		Counters: store.Counters{NextTempID: -3, NextRequestID: 3, NextGroupID: 1},
	}

	data, err := json.MarshalIndent(state, "", "  ")
	require.NoError(t, err)
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "offline_snapshot", data)
}
