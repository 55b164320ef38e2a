// Package store provides SQLite-backed storage for the reconciler's own
// state.
//
// Two tables:
//   - ticket_notifications: one row per mirrored foreign ticket, unique
//     on (server_name, ticket_id), holding the chat message id and the
//     last state rendered into it
//   - reconcile_watermarks: per server, the highest foreign ticket id
//     already processed
//
// # Critical Patterns
//
// Idempotent tracking
//   - Track uses ON CONFLICT DO NOTHING; a ticket is mirrored at most once
//     per server no matter how often a poll is retried
//
// Deterministic reads
//   - Queries returning several rows order by ticket_id ASC
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// The store is distinct from the game's database, which is only ever read
// (see package gamedb).
package store
