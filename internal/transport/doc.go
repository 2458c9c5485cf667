// Package transport speaks GraphQL over HTTP to the backend.
//
// # ARCHITECTURE
//
// The Client posts mutation documents as JSON; batchable mutations issued
// within a short window are coalesced into a single array-framed HTTP call.
// Session state lives in httpOnly cookies managed by the client's jar, and
// an access token nearing expiry triggers a single-flight refresh shared by
// all concurrent callers.
//
// # INVARIANTS
//
//   - Network and timeout failures are retryable; the request that hit them
//     is untouched and will be retransmitted.
//   - A GraphQL error body is terminal: it is surfaced as a MutationError
//     and the request will not be retried.
//   - A rejected refresh token is terminal for the whole session.
package transport
