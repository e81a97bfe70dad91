// Package logging assembles structured slog loggers and formatting helpers used
// across callscope.
//
// It owns the console and JSON handlers, tees records into a JSON log file,
// and exposes context-aware helpers so pipeline code automatically tags lines
// with job IDs, call IDs, stages, and correlation IDs. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
