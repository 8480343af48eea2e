// Package progress records pipeline progress and fans it out to observers.
//
// A Sink persists every stage/progress change through the job store first
// and only then publishes an Event on the configured Broadcaster. Publishing
// is best effort: a broken channel is logged and never fails the pipeline.
//
// Broadcasters are keyed by job id. The in-memory Hub serves a single
// daemon; the Redis and NATS backends let observers attach through any
// process sharing the broker.
package progress
