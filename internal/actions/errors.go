package actions

import (
	"fmt"
	"time"

	"worklog/internal/entity"
	"worklog/internal/transport"
)

func formatTimeOfDay(t int64) string {
	return time.Unix(t, 0).Format("15:04")
}

func formatDay(t int64) string {
	return time.Unix(t, 0).Format("Jan 2")
}

func nestedMap(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

func nestedID(m map[string]any, keys ...string) (entity.ID, bool) {
	for _, key := range keys[:len(keys)-1] {
		if m = nestedMap(m, key); m == nil {
			return 0, false
		}
	}
	return entity.AsID(m[keys[len(keys)-1]])
}

func nestedTime(m map[string]any, keys ...string) int64 {
	id, _ := nestedID(m, keys...)
	return int64(id)
}

// describeUser names a user for alert messages: "you" for the acting user,
// the coworker's recorded name otherwise.
func (a *Actions) describeUser(userID entity.ID) string {
	if userID == a.store.UserID() {
		return "you"
	}
	if coworker, ok := a.store.GetEntity(entity.TypeCoworkers, userID); ok {
		first, _ := coworker.Fields["firstName"].(string)
		last, _ := coworker.Fields["lastName"].(string)
		if first != "" || last != "" {
			return fmt.Sprintf("%s %s", first, last)
		}
	}
	return fmt.Sprintf("user %d", int64(userID))
}

func (a *Actions) describeSubmitter(submitter map[string]any) string {
	if submitter == nil {
		return "another user"
	}
	id, ok := entity.AsID(submitter["id"])
	if ok && id == a.store.UserID() {
		return "you"
	}
	first, _ := submitter["firstName"].(string)
	last, _ := submitter["lastName"].(string)
	if first == "" && last == "" {
		return "another user"
	}
	return fmt.Sprintf("%s %s", first, last)
}

// formatErrors maps each structured error of a rejected mutation to a
// message, preferring the override when it produces one.
func formatErrors(cause error, override func(transport.GraphQLError) string) []string {
	var messages []string
	for _, ge := range transport.GraphQLErrors(cause) {
		msg := ""
		if override != nil {
			msg = override(ge)
		}
		if msg == "" {
			msg = ge.Message
		}
		messages = append(messages, msg)
	}
	return messages
}

// formatActivityErrors renders the rule violations of activity and mission
// mutations with the context their extensions carry.
func (a *Actions) formatActivityErrors(cause error) []string {
	return formatErrors(cause, func(ge transport.GraphQLError) string {
		switch {
		case ge.Matches(transport.CodeOverlappingMissions):
			conflicting := nestedMap(ge.Extensions, "conflictingMission")
			if conflicting == nil {
				return "The user already has an ongoing mission."
			}
			started := nestedTime(conflicting, "startTime")
			return fmt.Sprintf("There is already an ongoing mission, started by %s on %s at %s.",
				a.describeSubmitter(nestedMap(conflicting, "submitter")),
				formatDay(started), formatTimeOfDay(started))
		case ge.Matches(transport.CodeMissionAlreadyEnded):
			missionEnd := nestedMap(ge.Extensions, "missionEnd")
			if missionEnd == nil {
				return ""
			}
			return fmt.Sprintf("The mission was already ended by %s at %s.",
				a.describeSubmitter(nestedMap(missionEnd, "submitter")),
				formatTimeOfDay(nestedTime(missionEnd, "endTime")))
		case ge.Matches(transport.CodeOverlappingActivities):
			conflicting := nestedMap(ge.Extensions, "conflictingActivity")
			if conflicting == nil {
				return "Conflict with other activities of the user."
			}
			conflictingType, _ := conflicting["type"].(string)
			started := nestedTime(conflicting, "startTime")
			return fmt.Sprintf("Conflict with the %s activity started on %s at %s, recorded by %s.",
				entity.ActivityLabels[conflictingType],
				formatDay(started), formatTimeOfDay(started),
				a.describeSubmitter(nestedMap(conflicting, "submitter")))
		}
		return ""
	})
}

// impliesStaleData reports whether the rejection reveals server state the
// local store has never seen: a conflict recorded by someone else and
// absent locally means the user should reload before retrying.
func (a *Actions) impliesStaleData(ge transport.GraphQLError) bool {
	selfID := a.store.UserID()
	switch {
	case ge.Matches(transport.CodeOverlappingMissions):
		conflicting := nestedMap(ge.Extensions, "conflictingMission")
		if conflicting == nil {
			return false
		}
		submitterID, _ := nestedID(conflicting, "submitter", "id")
		missionID, ok := entity.AsID(conflicting["id"])
		if !ok {
			return false
		}
		_, known := a.store.GetEntity(entity.TypeMissions, missionID)
		return submitterID != selfID && !known
	case ge.Matches(transport.CodeMissionAlreadyEnded):
		missionEnd := nestedMap(ge.Extensions, "missionEnd")
		if missionEnd == nil {
			return false
		}
		submitterID, _ := nestedID(missionEnd, "submitter", "id")
		return submitterID != selfID
	case ge.Matches(transport.CodeOverlappingActivities):
		conflicting := nestedMap(ge.Extensions, "conflictingActivity")
		if conflicting == nil {
			return false
		}
		submitterID, _ := nestedID(conflicting, "submitter", "id")
		activityID, ok := entity.AsID(conflicting["id"])
		if !ok {
			return false
		}
		_, known := a.store.GetEntity(entity.TypeActivities, activityID)
		return submitterID != selfID && !known
	}
	return false
}

// shouldProposeRefresh reports whether any rule violation in the rejection
// implies the local data is stale.
func (a *Actions) shouldProposeRefresh(cause error) bool {
	for _, ge := range transport.GraphQLErrors(cause) {
		if a.impliesStaleData(ge) {
			return true
		}
	}
	return false
}
