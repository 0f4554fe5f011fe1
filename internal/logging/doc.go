// Package logging builds slog loggers for the daemon and CLI.
//
// It maps config values onto console or JSON handlers, fans output across
// stdout and a log file, and exposes small attr helpers so call sites stay
// terse. Tests use NewNop to silence components.
package logging
