// Package config loads, normalizes, and validates Waveline configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// daemon and CLI need: inbox/artifact directories, the analyzer command, the
// ingestion endpoint, and the outbox retry policy.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
