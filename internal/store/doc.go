// Package store persists saved cohort queries in SQLite.
//
// Each saved query keeps both serializations of a selection: the full-mode
// document, which can be restored into a constraint tree, and the
// restricted document sent to the backend. The restricted document's
// fingerprint identifies queries that select the same cohort.
//
// # Ordering
//
// Rows carry a seq from a logical clock and every listing is ordered by
// seq ASC, id ASC COLLATE BINARY. Wall-clock time is never stored.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
