// Package app wires the pieces of a build run together: logger, loaded
// configuration, tracer, state store, scheduler and — in continuous mode —
// the filesystem watcher. It owns process-lifecycle concerns (log file
// handling, scratch directory, final persistence) so the components below
// it stay testable in isolation.
package app
