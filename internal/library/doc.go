// Package library persists the music library's analysis backlog in SQLite
// and exposes helpers for driving track lifecycle.
//
// The Store manages database connections, schema initialization, status
// transitions, extracted-feature storage, and the append-only progress
// history consumed by the monitor. Tracks capture source paths, metadata, and
// analysis state so the processor, monitor, and recovery controller can
// coordinate without additional shared state.
//
// The database is the single source of truth for durable track status; the
// processor's in-memory queue is rebuilt from it on every initialization.
// Schema changes bump the version in schema.go; users delete the database to
// adopt the new schema.
package library
