// Package config loads, normalizes, and validates bookture configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads dotenv files, and honours environment
// overrides for credentials such as BOOKTURE_LLM_API_KEY. The Config type
// centralizes every knob the daemon and CLI need so data directories, external
// service credentials, and pipeline pacing are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
