// Package actions exposes the user-facing operations of the work log:
// logging and correcting activities, running missions end to end, recording
// expenditures, comments, locations and vehicle bookings.
//
// Every action follows the same shape: enqueue a request whose optimistic
// update makes the store immediately reflect the intended outcome, then
// kick a drain. The matching response handler reconciles the store with
// what the backend actually decided, replacing temporary identifiers and
// surfacing rule violations as user-facing alerts.
package actions
