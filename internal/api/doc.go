// Package api defines the wire-format types shared by the daemon's HTTP
// surface and the CLI, the converters from internal models, and the HTTP
// client the CLI uses to talk to a running daemon.
//
// DTOs use camelCase JSON tags. Stages are exposed as their lowercase enum
// strings and timestamps use RFC3339 with milliseconds. Unit content is not
// part of the wire format; observers only see prompts, statuses, and
// artifact references.
//
// Progress events travel as Server-Sent Events: each frame carries the
// event type as the SSE event name and a progress.Event JSON body as data.
package api
