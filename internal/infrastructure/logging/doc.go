// Package logging provides structured logging built on log/slog.
//
// A single Logger is created at startup from the logging section of the
// configuration and handed to every component. Components derive scoped
// loggers with With("component", ...) rather than creating their own.
package logging
