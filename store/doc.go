// Package store persists vector records durably.
//
// The record store is the single source of truth: indexes and caches are
// derived from it and can always be rebuilt by scanning. The SQLite
// implementation commits before acknowledging a write, so a record whose id
// has been returned survives a crash immediately after the call.
//
// Records are scoped by owner (one logical collection per agent) and are
// never mutated in place once written; duplicate text bumps the existing
// record's frequency and timestamp instead of storing a copy.
package store
