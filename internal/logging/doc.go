// Package logging assembles the structured slog loggers used across coind.
//
// It owns the console and JSON handlers, level and output plumbing, the
// -debug category filter and the run id stamped on every record of a daemon
// run. Files are opened as ReopenableFile so SIGHUP can hand the log back to
// an external rotation tool, and ShrinkFile trims an oversized debug.log at
// startup.
//
// NewBootstrap gives the console logger used before the data directory is
// known; NewFromSettings replaces it once the directory is locked. NewNop is
// available for tests and wiring code that cannot fail.
package logging
