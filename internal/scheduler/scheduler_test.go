package scheduler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/texforge/internal/action"
	"github.com/vk/texforge/internal/config"
	"github.com/vk/texforge/internal/ctxlog"
	"github.com/vk/texforge/internal/graph"
	"github.com/vk/texforge/internal/state"
	"github.com/vk/texforge/internal/trace"
)

const compileID = "tex_compile:luajittex:pdf:latex:main.tex"

// fakeTracer simulates traced commands: the handler decides what each
// command "writes" on disk and which paths it reports touching.
type fakeTracer struct {
	mu      sync.Mutex
	calls   [][]string
	handler func(argv []string, dir string) *trace.Trace
}

func (f *fakeTracer) Run(ctx context.Context, argv []string, dir string, stdout, stderr io.Writer) (*trace.Trace, error) {
	f.mu.Lock()
	f.calls = append(f.calls, argv)
	f.mu.Unlock()
	return f.handler(argv, dir), nil
}

func (f *fakeTracer) count(bin string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, argv := range f.calls {
		if argv[0] == bin {
			n++
		}
	}
	return n
}

func testConfig(t *testing.T, dir string) *config.Model {
	t.Helper()
	path := filepath.Join(dir, "texforge.hcl")
	require.NoError(t, os.WriteFile(path, []byte("basedir = \""+dir+"\"\n"), 0o644))
	cfg, err := config.Load(context.Background(), path)
	require.NoError(t, err)
	return cfg
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newScheduler(t *testing.T, dir string, ft *fakeTracer) (*Scheduler, *config.Model) {
	t.Helper()
	cfg := testConfig(t, dir)
	ec := &action.ExecContext{Basedir: dir, Tracer: ft}
	return New(cfg, graph.New(), nil, ec), cfg
}

// compileTrace reports main.tex read and the given files written, as a
// traced compile would.
func compileTrace(dir string, writes ...string) *trace.Trace {
	tr := &trace.Trace{ReadPaths: []string{filepath.Join(dir, "main.tex")}}
	for _, w := range writes {
		tr.WritePaths = append(tr.WritePaths, filepath.Join(dir, w))
	}
	return tr
}

func TestRunConvergesOnStableOutputs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.tex", `\documentclass{article}`)

	ft := &fakeTracer{handler: func(argv []string, _ string) *trace.Trace {
		writeFile(t, dir, "main.aux", "stable aux")
		return compileTrace(dir, "main.aux", "main.log")
	}}
	sched, _ := newScheduler(t, dir, ft)

	require.NoError(t, sched.Seed([]string{"main.tex"}))
	require.NoError(t, sched.Run(context.Background()))

	// Round one compiles, the changed .aux triggers a second pass, the
	// stable .aux ends it there.
	assert.Equal(t, 2, ft.count("luajittex"))

	g := sched.Graph()
	_, ok := g.Get("file:main.tex")
	assert.True(t, ok)
	_, ok = g.Get("file:main.aux")
	assert.True(t, ok)
	// The .log write matches the compile's ignore patterns: no watch.
	_, ok = g.Get("file:main.log")
	assert.False(t, ok)

	assert.Equal(t, []string{compileID}, g.Influences("file:main.tex"))
}

func TestRunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.tex", "content")

	ft := &fakeTracer{handler: func(argv []string, _ string) *trace.Trace {
		writeFile(t, dir, "main.aux", "stable aux")
		return compileTrace(dir, "main.aux")
	}}
	sched, _ := newScheduler(t, dir, ft)

	require.NoError(t, sched.Seed([]string{"main.tex"}))
	require.NoError(t, sched.Run(context.Background()))
	before := ft.count("luajittex")

	// Nothing dirty, nothing runs.
	require.NoError(t, sched.Run(context.Background()))
	assert.Equal(t, before, ft.count("luajittex"))

	// Re-seeding known inputs changes nothing either.
	require.NoError(t, sched.Seed([]string{"main.tex"}))
	require.NoError(t, sched.Run(context.Background()))
	assert.Equal(t, before, ft.count("luajittex"))
}

func TestRunAttachesBibliography(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.tex", "v1")

	bcfContent := "bcf v1"
	ft := &fakeTracer{}
	ft.handler = func(argv []string, _ string) *trace.Trace {
		switch argv[0] {
		case "luajittex":
			writeFile(t, dir, "main.aux", "stable aux")
			writeFile(t, dir, "refs.bcf", bcfContent)
			return compileTrace(dir, "main.aux", "refs.bcf")
		case "biber":
			writeFile(t, dir, "main.bbl", "bibliography")
			return &trace.Trace{
				ReadPaths:  []string{filepath.Join(dir, "refs.bcf")},
				WritePaths: []string{filepath.Join(dir, "main.bbl")},
			}
		}
		t.Fatalf("unexpected command %v", argv)
		return nil
	}
	sched, _ := newScheduler(t, dir, ft)

	require.NoError(t, sched.Seed([]string{"main.tex"}))
	require.NoError(t, sched.Run(context.Background()))

	// The .bcf touch instantiates the bibliography action; the first
	// observation of the control file counts as a change, so the first
	// build resolves the bibliography exactly once.
	g := sched.Graph()
	bib, ok := g.Get("tex_bib:refs.bcf")
	require.True(t, ok)
	assert.False(t, bib.Dirty())
	assert.Equal(t, 1, ft.count("biber"))

	assert.Contains(t, g.Influences("file:refs.bcf"), "tex_bib:refs.bcf")
	assert.Contains(t, g.Influences("file:refs.bcf"), compileID)
	assert.Equal(t, []string{compileID}, g.Influences("tex_bib:refs.bcf"))

	// An edited source that rewrites the control file wakes the
	// bibliography up.
	writeFile(t, dir, "main.tex", "v2 with new citation")
	bcfContent = "bcf v2"
	require.Equal(t, 1, sched.MarkChanged([]string{"main.tex"}))
	require.NoError(t, sched.Run(context.Background()))

	assert.Equal(t, 2, ft.count("biber"))
	_, ok = g.Get("file:main.bbl")
	assert.True(t, ok)
}

func TestRunStopsAtRoundBound(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.tex", "content")

	// A pathological compile whose output never stabilizes.
	n := 0
	ft := &fakeTracer{}
	ft.handler = func(argv []string, _ string) *trace.Trace {
		n++
		writeFile(t, dir, "main.aux", "pass "+strconv.Itoa(n))
		return compileTrace(dir, "main.aux")
	}
	sched, cfg := newScheduler(t, dir, ft)
	cfg.MaxRounds = 4

	require.NoError(t, sched.Seed([]string{"main.tex"}))
	err := sched.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConverged)
	// Commands run on odd rounds; the bound cuts the loop off at round
	// MaxRounds+1 with the dirty set still non-empty.
	assert.Equal(t, 2, ft.count("luajittex"))
}

func TestRunSurfacesCommandFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.tex", "content")

	ft := &fakeTracer{handler: func(argv []string, _ string) *trace.Trace {
		return &trace.Trace{ExitStatus: 1}
	}}
	sched, _ := newScheduler(t, dir, ft)

	require.NoError(t, sched.Seed([]string{"main.tex"}))
	err := sched.Run(context.Background())
	require.Error(t, err)

	var execErr *action.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 1, execErr.Status)

	// The failed action stays dirty for the next invocation.
	a, ok := sched.Graph().Get(compileID)
	require.True(t, ok)
	assert.True(t, a.Dirty())
}

func TestRunListsTrackedActionsAtDebug(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.tex", "content")

	ft := &fakeTracer{handler: func(argv []string, _ string) *trace.Trace {
		writeFile(t, dir, "main.aux", "stable aux")
		return compileTrace(dir, "main.aux")
	}}
	sched, _ := newScheduler(t, dir, ft)
	require.NoError(t, sched.Seed([]string{"main.tex"}))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.WithLogger(context.Background(), logger)
	require.NoError(t, sched.Run(ctx))

	// Every tracked action appears in the per-round debug listing.
	assert.Contains(t, buf.String(), "msg=tracked")
	assert.Contains(t, buf.String(), compileID)
	assert.Contains(t, buf.String(), "file:main.aux")
}

func TestSeedErrors(t *testing.T) {
	dir := t.TempDir()
	sched, _ := newScheduler(t, dir, &fakeTracer{})

	var cfgErr *config.Error

	err := sched.Seed([]string{"notes.txt"})
	require.Error(t, err)
	assert.ErrorAs(t, err, &cfgErr)

	err = sched.Seed([]string{"../outside/main.tex"})
	require.Error(t, err)
	assert.ErrorAs(t, err, &cfgErr)
}

func TestWarmStartSkipsUnchangedWork(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.tex", "content")

	// The compile also probes a package file that never exists, the way
	// kpathsea searches do.
	ft := &fakeTracer{handler: func(argv []string, _ string) *trace.Trace {
		writeFile(t, dir, "main.aux", "stable aux")
		tr := compileTrace(dir, "main.aux")
		tr.ReadPaths = append(tr.ReadPaths, filepath.Join(dir, "local.sty"))
		return tr
	}}
	cfg := testConfig(t, dir)
	ec := &action.ExecContext{Basedir: dir, Tracer: ft}
	store := state.NewStore(filepath.Join(dir, ".texforge.state"))

	sched := New(cfg, graph.New(), store, ec)
	require.NoError(t, sched.Seed([]string{"main.tex"}))
	require.NoError(t, sched.Run(context.Background()))
	before := ft.count("luajittex")

	// A fresh process restores the graph, re-validates every watched file,
	// finds nothing changed, and runs no command.
	restored, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, restored)

	warm := New(cfg, restored, store, ec)
	warm.Invalidate()
	require.NoError(t, warm.Seed([]string{"main.tex"}))
	require.NoError(t, warm.Run(context.Background()))
	assert.Equal(t, before, ft.count("luajittex"))

	// An offline edit is caught through the checksum, not the watcher.
	writeFile(t, dir, "main.tex", "edited while down")
	restored, err = store.Load(context.Background())
	require.NoError(t, err)
	cold := New(cfg, restored, store, ec)
	cold.Invalidate()
	require.NoError(t, cold.Seed([]string{"main.tex"}))
	require.NoError(t, cold.Run(context.Background()))
	assert.Greater(t, ft.count("luajittex"), before)
}
