package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/texforge/internal/action"
)

func newCompile(t *testing.T, path string) *action.TexCompileAction {
	t.Helper()
	a, err := action.NewTexCompileAction(path, action.EngineLuaJITTeX, action.FormatPDF, true)
	require.NoError(t, err)
	return a
}

func TestAddMergesByIdentity(t *testing.T) {
	g := New()

	first := action.NewFileAction("main.tex")
	first.MarkDirty()
	got := g.Add(first)
	assert.Same(t, action.Action(first), got)

	// A second node with the same identity yields the existing one, state
	// and all.
	got = g.Add(action.NewFileAction("./main.tex"))
	assert.Same(t, action.Action(first), got)
	assert.True(t, got.Dirty())
	assert.Equal(t, 1, g.Len())
}

func TestAddEdge(t *testing.T) {
	g := New()
	fa := g.Add(action.NewFileAction("main.tex"))
	cmd := g.Add(newCompile(t, "main.tex"))

	require.NoError(t, g.AddEdge(fa.ID(), cmd.ID()))
	// Idempotent.
	require.NoError(t, g.AddEdge(fa.ID(), cmd.ID()))
	assert.Equal(t, []string{cmd.ID()}, g.Influences(fa.ID()))

	assert.Error(t, g.AddEdge(fa.ID(), fa.ID()))
	assert.Error(t, g.AddEdge("file:absent", cmd.ID()))
	assert.Error(t, g.AddEdge(fa.ID(), "file:absent"))
}

func TestPropagateOneHop(t *testing.T) {
	g := New()
	fa := g.Add(action.NewFileAction("main.aux"))
	compile := g.Add(newCompile(t, "main.tex"))
	bib := g.Add(action.NewTexBibAction("refs.bcf"))

	require.NoError(t, g.AddEdge(fa.ID(), compile.ID()))
	require.NoError(t, g.AddEdge(compile.ID(), bib.ID()))

	influenced := g.Propagate(fa.ID())
	assert.Equal(t, []string{compile.ID()}, influenced)

	// One hop only: the compile is dirty, the downstream bib is not.
	assert.True(t, compile.Dirty())
	assert.False(t, bib.Dirty())
}

func TestCyclesAreAllowed(t *testing.T) {
	g := New()
	fa := g.Add(action.NewFileAction("main.aux"))
	cmd := g.Add(newCompile(t, "main.tex"))

	// main.aux dirties the compile, and the compile rewrites main.aux.
	require.NoError(t, g.AddEdge(fa.ID(), cmd.ID()))
	require.NoError(t, g.AddEdge(cmd.ID(), fa.ID()))

	assert.Equal(t, []string{fa.ID()}, g.Propagate(cmd.ID()))
	assert.Equal(t, []string{cmd.ID()}, g.Propagate(fa.ID()))
}

func TestDirtySetOrdering(t *testing.T) {
	g := New()

	cmd := g.Add(newCompile(t, "main.tex"))
	zeta := g.Add(action.NewFileAction("zeta.tex"))
	alpha := g.Add(action.NewFileAction("alpha.tex"))
	g.Add(action.NewFileAction("clean.tex"))

	cmd.MarkDirty()
	zeta.MarkDirty()
	alpha.MarkDirty()

	dirty := g.DirtySet()
	require.Len(t, dirty, 3)

	// Files first, sorted by identity, then commands.
	assert.Equal(t, "file:alpha.tex", dirty[0].ID())
	assert.Equal(t, "file:zeta.tex", dirty[1].ID())
	assert.Equal(t, cmd.ID(), dirty[2].ID())
}

func TestFilePathsAndEdges(t *testing.T) {
	g := New()
	g.Add(action.NewFileAction("b.tex"))
	g.Add(action.NewFileAction("a.tex"))
	cmd := g.Add(newCompile(t, "a.tex"))
	require.NoError(t, g.AddEdge("file:a.tex", cmd.ID()))
	require.NoError(t, g.AddEdge("file:b.tex", cmd.ID()))

	assert.Equal(t, []string{"a.tex", "b.tex"}, g.FilePaths())

	edges := g.Edges()
	assert.Equal(t, map[string][]string{
		"file:a.tex": {cmd.ID()},
		"file:b.tex": {cmd.ID()},
	}, edges)
}
