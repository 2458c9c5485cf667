package transport

import "strings"

// Mutation documents for the work-time tracking API. Batchable mutations may
// be coalesced by the transport into a single HTTP call.
const (
	LogActivityMutation = `mutation logActivity($type: ActivityTypeEnum!, $startTime: TimeStamp!, $endTime: TimeStamp, $missionId: Int!, $userId: Int, $context: GenericScalar, $switch: Boolean) {
  activities {
    logActivity(type: $type, startTime: $startTime, endTime: $endTime, missionId: $missionId, userId: $userId, context: $context, switch: $switch) {
      id
      type
      userId
      missionId
      startTime
      endTime
    }
  }
}`

	CancelActivityMutation = `mutation cancelActivity($activityId: Int!, $context: GenericScalar) {
  activities {
    cancelActivity(activityId: $activityId, context: $context) {
      success
    }
  }
}`

	EditActivityMutation = `mutation editActivity($activityId: Int!, $context: GenericScalar, $startTime: TimeStamp, $endTime: TimeStamp, $removeEndTime: Boolean) {
  activities {
    editActivity(activityId: $activityId, startTime: $startTime, endTime: $endTime, context: $context, removeEndTime: $removeEndTime) {
      id
      type
      missionId
      userId
      startTime
      endTime
    }
  }
}`

	CreateMissionMutation = `mutation createMission($name: String, $companyId: Int, $context: GenericScalar) {
  activities {
    createMission(name: $name, companyId: $companyId, context: $context) {
      id
      name
      context
    }
  }
}`

	EndMissionMutation = `mutation endMission($endTime: TimeStamp!, $missionId: Int!, $userId: Int, $context: GenericScalar) {
  activities {
    endMission(endTime: $endTime, missionId: $missionId, userId: $userId, context: $context) {
      id
      name
      context
      activities {
        id
        type
        missionId
        userId
        startTime
        endTime
      }
    }
  }
}`

	ValidateMissionMutation = `mutation validateMission($missionId: Int!) {
  activities {
    validateMission(missionId: $missionId) {
      mission {
        id
        name
        context
      }
      isAdmin
    }
  }
}`

	LogExpenditureMutation = `mutation logExpenditure($type: ExpenditureTypeEnum!, $missionId: Int!, $userId: Int) {
  activities {
    logExpenditure(type: $type, missionId: $missionId, userId: $userId) {
      id
      type
      missionId
      userId
    }
  }
}`

	CancelExpenditureMutation = `mutation cancelExpenditure($expenditureId: Int!) {
  activities {
    cancelExpenditure(expenditureId: $expenditureId) {
      success
    }
  }
}`

	LogCommentMutation = `mutation logComment($text: String!, $missionId: Int!) {
  activities {
    logComment(text: $text, missionId: $missionId) {
      id
      text
      missionId
      submitterId
      receptionTime
    }
  }
}`

	CancelCommentMutation = `mutation cancelComment($commentId: Int!) {
  activities {
    cancelComment(commentId: $commentId) {
      success
    }
  }
}`

	LogLocationMutation = `mutation logLocation($missionId: Int!, $type: LocationEntryTypeEnum!, $geoApiData: GenericScalar, $manualAddress: String, $companyKnownAddressId: Int) {
  activities {
    logLocation(missionId: $missionId, type: $type, geoApiData: $geoApiData, manualAddress: $manualAddress, companyKnownAddressId: $companyKnownAddressId) {
      id
      name
      postalCode
      city
    }
  }
}`

	BookVehicleMutation = `mutation bookVehicle($vehicleId: Int, $registrationNumber: String, $missionId: Int!, $userId: Int) {
  activities {
    bookVehicle(vehicleId: $vehicleId, registrationNumber: $registrationNumber, missionId: $missionId, userId: $userId) {
      id
      vehicleId
      missionId
      userId
    }
  }
}`
)

// DocumentName extracts the operation name of a mutation document, used for
// logging and error attribution.
func DocumentName(document string) string {
	rest, ok := strings.CutPrefix(strings.TrimSpace(document), "mutation ")
	if !ok {
		return "unknown"
	}
	end := strings.IndexAny(rest, "( {")
	if end < 0 {
		return rest
	}
	return rest[:end]
}
