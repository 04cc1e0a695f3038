package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vk/texforge/internal/action"
)

// Graph is the dependency graph of one build. It is exclusively owned by a
// single scheduler per run; the watcher and the state store interact with
// it only through that scheduler.
type Graph struct {
	mu      sync.RWMutex
	actions map[string]action.Action
	edges   map[string]map[string]struct{}
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		actions: make(map[string]action.Action),
		edges:   make(map[string]map[string]struct{}),
	}
}

// Add inserts an action, merging by identity: if a node with the same ID
// already exists, the existing node is returned and the argument discarded.
func (g *Graph) Add(a action.Action) action.Action {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.actions[a.ID()]; ok {
		return existing
	}
	g.actions[a.ID()] = a
	return a
}

// Get returns the action with the given identity.
func (g *Graph) Get(id string) (action.Action, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a, ok := g.actions[id]
	return a, ok
}

// Len returns the number of actions in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.actions)
}

// AddEdge records that toID must be marked dirty whenever fromID changes.
// Idempotent. Both nodes must exist; self-references are rejected.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s", fromID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.actions[fromID]; !ok {
		return fmt.Errorf("source action not found: %s", fromID)
	}
	if _, ok := g.actions[toID]; !ok {
		return fmt.Errorf("destination action not found: %s", toID)
	}

	set, ok := g.edges[fromID]
	if !ok {
		set = make(map[string]struct{})
		g.edges[fromID] = set
	}
	set[toID] = struct{}{}
	return nil
}

// Influences returns the sorted identities directly influenced by the
// given action.
func (g *Graph) Influences(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, 0, len(g.edges[id]))
	for to := range g.edges[id] {
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}

// MarkDirty flags the action with the given identity for re-execution.
// It reports whether the identity was known.
func (g *Graph) MarkDirty(id string) bool {
	g.mu.RLock()
	a, ok := g.actions[id]
	g.mu.RUnlock()
	if !ok {
		return false
	}
	a.MarkDirty()
	return true
}

// Propagate marks every action one edge-hop away from id as dirty and
// returns their identities. It deliberately does not cascade: transitive
// effects surface naturally because each round re-evaluates the whole
// dirty set.
func (g *Graph) Propagate(id string) []string {
	influenced := g.Influences(id)
	for _, to := range influenced {
		g.MarkDirty(to)
	}
	return influenced
}

// DirtySet snapshots the currently dirty actions: file actions first, then
// commands, each group sorted by identity so repeated runs schedule
// identically.
func (g *Graph) DirtySet() []action.Action {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var files, commands []action.Action
	for _, a := range g.actions {
		if !a.Dirty() {
			continue
		}
		if a.Kind() == action.KindFile {
			files = append(files, a)
		} else {
			commands = append(commands, a)
		}
	}
	sortByID(files)
	sortByID(commands)
	return append(files, commands...)
}

// Actions returns all actions sorted by identity.
func (g *Graph) Actions() []action.Action {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]action.Action, 0, len(g.actions))
	for _, a := range g.actions {
		out = append(out, a)
	}
	sortByID(out)
	return out
}

// FilePaths returns the watched paths of all file actions, sorted. The
// watcher uses this as its subscription filter.
func (g *Graph) FilePaths() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for _, a := range g.actions {
		if fa, ok := a.(*action.FileAction); ok {
			out = append(out, fa.Path())
		}
	}
	sort.Strings(out)
	return out
}

// Edges returns the full edge table with sorted influence lists, for
// persistence.
func (g *Graph) Edges() map[string][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string][]string, len(g.edges))
	for from, set := range g.edges {
		tos := make([]string, 0, len(set))
		for to := range set {
			tos = append(tos, to)
		}
		sort.Strings(tos)
		out[from] = tos
	}
	return out
}

func sortByID(actions []action.Action) {
	sort.Slice(actions, func(i, j int) bool {
		return actions[i].ID() < actions[j].ID()
	})
}
