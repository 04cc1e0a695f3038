// Package graph owns the set of all actions, keyed by identity, and the
// influence edges between them: an edge from A to B means that when A
// changes, B must be re-executed. Cycles are structurally permitted — the
// scheduler guarantees termination through round accounting, not through
// graph shape.
package graph
