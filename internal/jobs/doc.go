// Package jobs persists illustration jobs and their units in SQLite and
// exposes the helpers that drive their lifecycle.
//
// The Store owns schema initialization, stage transitions, monotonic progress,
// unit bookkeeping, crash recovery, and health diagnostics. Stage is a closed
// enum with a declared forward order; the store refuses transitions the enum
// does not allow, so the persisted job is always a valid point in the
// pipeline state machine.
//
// A partial unique index keeps at most one unfinished job per
// (owner, title key). Schema changes bump schemaVersion in schema.go; users
// delete the database to adopt the new schema.
package jobs
