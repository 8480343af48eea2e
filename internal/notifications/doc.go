// Package notifications pushes pipeline milestones to ntfy.
//
// Only completion and failure are announced, each gated by its
// [notifications] flag. Without a topic the service is a no-op, and callers
// treat delivery failures as warnings.
package notifications
