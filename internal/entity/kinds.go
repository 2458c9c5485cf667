package entity

// Activity types recognized by the backend. "support" is what the backend
// reports for a non-driving team member during a drive segment; the client
// folds it back into drive for display and conflict purposes.
const (
	ActivityDrive   = "drive"
	ActivityWork    = "work"
	ActivityBreak   = "break"
	ActivityRest    = "rest"
	ActivitySupport = "support"
)

// NormalizeActivityType maps backend activity types to the client's set.
func NormalizeActivityType(t string) string {
	if t == ActivitySupport {
		return ActivityDrive
	}
	return t
}

// Expenditure types recognized by the backend.
const (
	ExpenditureDayMeal   = "day_meal"
	ExpenditureNightMeal = "night_meal"
	ExpenditureSleepOver = "sleep_over"
	ExpenditureSnack     = "snack"
)

// ActivityLabels and ExpenditureLabels carry the user-facing descriptions
// used when attributing an error to a specific action.
var ActivityLabels = map[string]string{
	ActivityDrive: "drive",
	ActivityWork:  "work",
	ActivityBreak: "break",
	ActivityRest:  "end of day",
}

var ExpenditureLabels = map[string]string{
	ExpenditureDayMeal:   "day meal",
	ExpenditureNightMeal: "night meal",
	ExpenditureSleepOver: "overnight stay",
	ExpenditureSnack:     "snack",
}
