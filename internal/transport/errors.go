package transport

import (
	"errors"
	"fmt"
	"strings"
)

// NetworkError is a transport-level failure: no response was received or the
// connection dropped. Retryable.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError means the request exceeded its deadline. Retryable.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("timeout: %v", e.Err) }
func (e *TimeoutError) Unwrap() error { return e.Err }

// RefreshTokenError means the session's refresh token is invalid. Not
// retryable; the session is over and logout is imminent.
type RefreshTokenError struct {
	Message string
}

func (e *RefreshTokenError) Error() string {
	if e.Message == "" {
		return "refresh token rejected"
	}
	return "refresh token rejected: " + e.Message
}

// Machine-readable GraphQL business error codes returned by the backend.
const (
	CodeOverlappingMissions   = "OVERLAPPING_MISSIONS"
	CodeMissionAlreadyEnded   = "MISSION_ALREADY_ENDED"
	CodeOverlappingActivities = "OVERLAPPING_ACTIVITIES"
	CodeDuplicateExpenditures = "DUPLICATE_EXPENDITURES"
	CodeAuthentication        = "AUTHENTICATION_ERROR"
)

// GraphQLError is one server-validated domain rule violation. Extensions
// carries the structured payload (e.g. the conflicting entity) used to
// build a precise user-facing message and the stale-data classification.
type GraphQLError struct {
	Message    string         `json:"message"`
	Code       string         `json:"code,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e GraphQLError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// Matches reports whether the error carries the given machine code.
func (e GraphQLError) Matches(code string) bool { return e.Code == code }

// MutationError aggregates the GraphQL errors of one failed mutation. Not
// retryable: the server received and rejected the request.
type MutationError struct {
	Document string
	Errors   []GraphQLError
}

func (e *MutationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ge := range e.Errors {
		msgs[i] = ge.Error()
	}
	return fmt.Sprintf("mutation %s failed: %s", DocumentName(e.Document), strings.Join(msgs, "; "))
}

// IsGraphQLError reports whether err is a business failure carrying
// structured GraphQL errors.
func IsGraphQLError(err error) bool {
	var me *MutationError
	return errors.As(err, &me)
}

// GraphQLErrors extracts the structured errors from a business failure, or
// nil for any other error.
func GraphQLErrors(err error) []GraphQLError {
	var me *MutationError
	if errors.As(err, &me) {
		return me.Errors
	}
	return nil
}

// MatchesCode reports whether any structured error in err carries code.
func MatchesCode(err error, code string) bool {
	for _, ge := range GraphQLErrors(err) {
		if ge.Matches(code) {
			return true
		}
	}
	return false
}

// FindCode returns the first structured error in err carrying code.
func FindCode(err error, code string) (GraphQLError, bool) {
	for _, ge := range GraphQLErrors(err) {
		if ge.Matches(code) {
			return ge, true
		}
	}
	return GraphQLError{}, false
}

// IsRetryable classifies a failure: network and timeout failures preserve
// the originating request in the pending queue for a later drain, anything
// else settles it terminally.
func IsRetryable(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsAuthenticationError reports whether the failure invalidates the session
// and must trigger logout.
func IsAuthenticationError(err error) bool {
	var re *RefreshTokenError
	if errors.As(err, &re) {
		return true
	}
	return MatchesCode(err, CodeAuthentication)
}
