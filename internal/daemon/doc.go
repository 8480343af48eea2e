// Package daemon coordinates the long-running bookture process.
//
// It wires the jobs store, the workflow manager, the intake guard, the
// progress broadcaster, and the maintenance scheduler into a single
// lifecycle guarded by a flock so only one daemon owns a database. On start
// it reclaims jobs a crashed predecessor left mid-stage, so the intake guard
// can resume them.
//
// The HTTP surface (chi) accepts uploads, answers intake decisions, lists the
// caller's library, streams progress as Server-Sent Events, and serves local
// artifacts and Prometheus metrics. Handlers never wait on the pipeline: a
// submission returns as soon as the guard has decided.
package daemon
