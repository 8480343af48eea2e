// Package llm provides an OpenRouter chat client shared by the narrative and
// image-generation collaborators.
//
// # Entry Points
//
// NewClient: construct client from Config (FromConfig adapts config.LLMConfig).
// Client.Complete: system/user prompts, plain-text reply.
// Client.CompleteJSON: system/user prompts, JSON-only reply.
// Client.Do: send a prepared multimodal Request, read text and images.
// Client.HealthCheck: verify API key and model availability.
//
// # Errors
//
// Each method performs exactly one HTTP round trip. Failures are tagged with
// services markers so callers can classify them: 429 and 503 responses unwrap
// to services.ErrTransient, other HTTP failures to services.ErrExternal, and
// unusable bodies or empty content to services.ErrMalformedOutput. StatusError
// exposes HTTPStatus for the retry package.
package llm
