// Package store implements the offline entity store: the authoritative-so-far
// view of every entity collection, the identity map translating temporary to
// permanent identifiers, and the ordered queue of not-yet-confirmed mutation
// requests.
//
// ARCHITECTURE:
//
// Single shared mutable resource:
// All mutation flows through the Store's narrow operation set under one
// mutex. Callers never reach into state directly; reads return deep copies.
//
// Optimistic mutation flow:
//  1. An action builds a RequestSpec carrying serializable ops
//  2. NewRequest applies the ops (minting temporary IDs for creates and
//     capturing before-images for updates), builds the StoreInfo payload,
//     and appends the request to the pending queue
//  3. The execution engine drains the queue; on settlement it calls
//     ClearPendingRequest, which removes the request and unwinds exactly
//     the pending-update tags it left behind
//
// Every mutation persists the affected slices through the Persistence
// collaborator and notifies subscribers, then the cross-tab Notifier tells
// other sessions to re-read durable storage.
//
// INVARIANTS:
//   - A temporary ID is unique among all temporary and permanent IDs held
//   - An identity-map entry, once populated, is never removed or changed
//   - A request stays queued until it succeeds or fails terminally
//   - Records awaiting delete confirmation are hidden from live reads but
//     retained for rollback
package store
