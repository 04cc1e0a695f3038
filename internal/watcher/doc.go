// Package watcher observes the base directory for filesystem changes in
// continuous mode. Events are filtered to the currently watched file set,
// debounced, and delivered as batches of distinct relative paths on a
// single change queue — the scheduler never shares graph state with the
// watcher.
package watcher
