// Package scheduler drives the build to a fixed point: each round executes
// the current dirty set, grows the graph from the file accesses the tracer
// observed, and propagates dirtiness across influence edges. A round with
// an empty dirty set is convergence; a configurable round bound turns
// non-termination into a reported failure instead of a hang.
package scheduler
