// Package intake decides what happens when a caller submits or resumes a
// document.
//
// A submission is matched against the caller's most recent job for the same
// title key. The guard then creates a new job, attaches to a running one,
// reports a finished one, or moves a stalled one to Resuming and relaunches
// it. Decisions for one (caller, title) pair are serialized in process by a
// keyed lock and across processes by the store's unique index on unfinished
// jobs.
//
// Title matching is a heuristic: two different documents sharing a title
// collide, and an edited re-upload of the same document resumes the old job.
package intake
