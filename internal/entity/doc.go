// Package entity provides the canonical data-model types for worklog.
//
// This package contains type definitions only. All other internal packages
// import entity; entity imports nothing internal. This keeps the data model
// the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Identifiers are int64: negative values are client-minted temporary IDs,
//     positive values are server-assigned permanent IDs
//   - Optimistic updates are serializable Op values, never closures, so the
//     pending request queue can be persisted and inspected
//   - Record field maps use the wire (camelCase) key names so they can be
//     carried into GraphQL variables without translation
package entity
