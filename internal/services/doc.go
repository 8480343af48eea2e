// Package services defines shared utilities consumed by the pipeline stage
// runners and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, caller identities, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     for retry decisions and stored job error messages.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
