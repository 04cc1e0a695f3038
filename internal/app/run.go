package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/texforge/internal/action"
	"github.com/vk/texforge/internal/config"
	"github.com/vk/texforge/internal/ctxlog"
	"github.com/vk/texforge/internal/graph"
	"github.com/vk/texforge/internal/scheduler"
	"github.com/vk/texforge/internal/state"
	"github.com/vk/texforge/internal/trace"
	"github.com/vk/texforge/internal/watcher"
)

// Run executes the build: restore or create the graph, converge it, and
// persist the result. In continuous mode it then watches the base
// directory and re-converges on changes until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	cfg := a.cfg

	tmpdir, err := os.MkdirTemp("", "texforge-*")
	if err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(tmpdir)
	cfg.Tmpdir = tmpdir

	tracer, err := trace.NewStrace(tmpdir)
	if err != nil {
		return err
	}

	buildLog, err := a.openBuildLog()
	if err != nil {
		return err
	}
	defer buildLog.Close()

	ec := &action.ExecContext{
		Basedir:  cfg.Basedir,
		Tmpdir:   tmpdir,
		Tracer:   tracer,
		BuildLog: buildLog,
	}
	if cfg.PrintStdout {
		ec.Stdout = os.Stdout
	}
	if cfg.PrintStderr {
		ec.Stderr = os.Stderr
	}

	store := state.NewStore(a.resolve(cfg.StateFile))
	g, err := store.Load(ctx)
	if err != nil {
		return err
	}
	restored := g != nil
	if g == nil {
		g = graph.New()
	}

	sched := scheduler.New(cfg, g, store, ec)
	if restored {
		sched.Invalidate()
	}
	if err := sched.Seed(a.opts.Inputs); err != nil {
		return err
	}
	if g.Len() == 0 {
		return config.Errorf("nothing to do: no input files and no restored state")
	}

	if !cfg.Continuous {
		return sched.Run(ctx)
	}

	w, err := watcher.New(cfg.Basedir, watcher.Options{
		Debounce: cfg.ContinuousWait,
		Excludes: a.watchExcludes(),
		Logger:   a.logger,
	})
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Close()

	return sched.RunContinuous(ctx, w)
}

// openBuildLog opens (and unless append_log is set, truncates) the shared
// command output log.
func (a *App) openBuildLog() (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if a.cfg.AppendLog {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(a.resolve(a.cfg.LogFile), flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening build log: %w", err)
	}
	return f, nil
}

// watchExcludes lists the basedir-relative paths whose change events must
// not re-trigger builds: our own outputs.
func (a *App) watchExcludes() []string {
	var out []string
	for _, p := range []string{a.cfg.StateFile, a.cfg.LogFile} {
		if rel, err := filepath.Rel(a.cfg.Basedir, a.resolve(p)); err == nil {
			out = append(out, rel)
		}
	}
	return out
}

// resolve anchors a configured path at the base directory unless it is
// already absolute.
func (a *App) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(a.cfg.Basedir, path)
}
