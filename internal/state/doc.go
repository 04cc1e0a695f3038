// Package state persists the dependency graph between process invocations:
// one record per action (identity, variant, constructor arguments, last
// known checksum) plus the full edge table, encoded as deterministic CBOR
// inside a zstd frame and written atomically. Unreadable or incompatible
// state degrades to a cold start — dependency discovery is self-healing by
// re-running enough rounds, so corruption is never fatal.
package state
