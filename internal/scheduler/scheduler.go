package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vk/texforge/internal/action"
	"github.com/vk/texforge/internal/config"
	"github.com/vk/texforge/internal/ctxlog"
	"github.com/vk/texforge/internal/graph"
	"github.com/vk/texforge/internal/state"
)

// ErrNotConverged reports that the dirty set was still non-empty when the
// round bound was reached. Distinct from an action failure: no single
// action failed, the pipeline just never stabilized.
var ErrNotConverged = errors.New("build did not converge")

// Scheduler owns one graph for the duration of a run and drives it to a
// fixed point.
type Scheduler struct {
	cfg   *config.Model
	graph *graph.Graph
	store *state.Store
	ec    *action.ExecContext
}

// New creates a scheduler. The store may be nil to disable persistence
// (used by tests).
func New(cfg *config.Model, g *graph.Graph, store *state.Store, ec *action.ExecContext) *Scheduler {
	return &Scheduler{cfg: cfg, graph: g, store: store, ec: ec}
}

// Graph exposes the scheduler's graph for persistence and inspection.
func (s *Scheduler) Graph() *graph.Graph { return s.graph }

// Seed ensures an action exists for every input file, instantiated from the
// first matching command-map rule (auto and non-auto alike). Newly created
// actions start dirty; inputs already present in a restored graph keep
// their state. An input no rule matches is a configuration error.
func (s *Scheduler) Seed(inputs []string) error {
	for _, input := range inputs {
		rel, err := s.relativize(input)
		if err != nil {
			return err
		}
		rule := s.cfg.MatchRule(rel, false)
		if rule == nil {
			return config.Errorf("no rule matches input file %q", rel)
		}
		a, err := action.FromRule(rule, rel)
		if err != nil {
			return err
		}
		if _, ok := s.graph.Get(a.ID()); !ok {
			s.graph.Add(a)
			a.MarkDirty()
		}
	}
	return nil
}

// Invalidate marks every watched file for re-validation. Called after a
// state restore so that changes made while the process was down are
// detected through checksums.
func (s *Scheduler) Invalidate() {
	for _, a := range s.graph.Actions() {
		if a.Kind() == action.KindFile {
			a.MarkDirty()
		}
	}
}

// MarkChanged marks the file actions for the given relative paths dirty
// and returns how many were known to the graph. Used by continuous mode to
// re-seed dirtiness from watcher batches.
func (s *Scheduler) MarkChanged(paths []string) int {
	n := 0
	for _, p := range paths {
		if s.graph.MarkDirty("file:" + filepath.Clean(p)) {
			n++
		}
	}
	return n
}

// Run iterates rounds until the dirty set is empty. It returns
// ErrNotConverged when the round bound is exceeded, and the first action
// failure otherwise. State is persisted after every round, including a
// failing one, so the next invocation resumes from the last known graph
// instead of starting over.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		dirty := s.graph.DirtySet()
		if len(dirty) == 0 {
			logger.Info("converged", "rounds", round-1, "actions", s.graph.Len())
			return nil
		}
		if s.cfg.MaxRounds > 0 && round > s.cfg.MaxRounds {
			return fmt.Errorf("%d actions still dirty after %d rounds: %w",
				len(dirty), s.cfg.MaxRounds, ErrNotConverged)
		}

		logger.Debug("round", "number", round, "dirty", len(dirty))
		roundErr := s.runRound(ctx, dirty)

		if logger.Enabled(ctx, slog.LevelDebug) {
			for _, a := range s.graph.Actions() {
				logger.Debug("tracked", "action", a.ID(), "dirty", a.Dirty())
			}
		}

		if s.store != nil {
			if err := s.store.Save(ctx, s.graph); err != nil {
				if roundErr != nil {
					logger.Warn("state save failed", "error", err)
					return roundErr
				}
				return err
			}
		}
		if roundErr != nil {
			return roundErr
		}
	}
}

// runRound executes one snapshot of the dirty set: watched files first (in
// a worker pool — checksums are independent), then commands sequentially.
// Dirtiness raised here lands in a later round; the snapshot itself never
// grows.
func (s *Scheduler) runRound(ctx context.Context, dirty []action.Action) error {
	var files []*action.FileAction
	var commands []action.Action
	for _, a := range dirty {
		if fa, ok := a.(*action.FileAction); ok {
			files = append(files, fa)
		} else {
			commands = append(commands, a)
		}
	}

	for _, id := range s.checksumPhase(ctx, files) {
		s.graph.Propagate(id)
	}

	for _, cmd := range commands {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := cmd.Execute(ctx, s.ec)
		if err != nil {
			return fmt.Errorf("action %s: %w", cmd.ID(), err)
		}
		if err := s.attachTouches(ctx, cmd, res); err != nil {
			return err
		}
		s.graph.Propagate(cmd.ID())
	}
	return nil
}

// checksumPhase recomputes file checksums on a small worker pool and
// returns the identities of files that changed.
func (s *Scheduler) checksumPhase(ctx context.Context, files []*action.FileAction) []string {
	if len(files) == 0 {
		return nil
	}

	workers := s.cfg.Workers
	if workers > len(files) {
		workers = len(files)
	}

	jobs := make(chan *action.FileAction, len(files))
	var mu sync.Mutex
	var changed []string

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for fa := range jobs {
				res, err := fa.Execute(ctx, s.ec)
				if err != nil {
					// File actions only observe; nothing to fail.
					continue
				}
				if res.Changed {
					mu.Lock()
					changed = append(changed, fa.ID())
					mu.Unlock()
				}
			}
		}()
	}
	for _, fa := range files {
		jobs <- fa
	}
	close(jobs)
	wg.Wait()

	return changed
}

// attachTouches grows the graph from one command's observed file accesses:
// every touch gets a file action influencing the command, and the first
// auto rule matching the touch instantiates its derived action.
func (s *Scheduler) attachTouches(ctx context.Context, producer action.Action, res *action.Result) error {
	seen := make(map[string]struct{})
	for _, p := range res.Reads {
		seen[p] = struct{}{}
	}
	for _, p := range res.Writes {
		seen[p] = struct{}{}
	}
	for p := range seen {
		if err := s.attach(ctx, p, producer); err != nil {
			return err
		}
	}
	return nil
}

// attach wires one observed touch into the graph. Touched file actions are
// marked dirty so their checksums are validated next round; a derived auto
// action starts clean and is scheduled only once something marks it dirty,
// preventing runaway recursive compilation.
func (s *Scheduler) attach(ctx context.Context, relpath string, producer action.Action) error {
	logger := ctxlog.FromContext(ctx)

	fileNode := s.graph.Add(action.NewFileAction(relpath))
	fa, ok := fileNode.(*action.FileAction)
	if !ok {
		return fmt.Errorf("identity %s is not a file action", fileNode.ID())
	}
	if fa.Checksum() == nil {
		logger.Debug("watching", "path", relpath, "producer", producer.ID())
	}
	// The command may have rewritten the file, so its checksum must be
	// re-validated next round whether the watch is new or not.
	fa.MarkDirty()
	if err := s.graph.AddEdge(fa.ID(), producer.ID()); err != nil {
		return err
	}

	rule := s.cfg.MatchRule(relpath, true)
	if rule == nil {
		return nil
	}
	derived, err := action.FromRule(rule, relpath)
	if err != nil {
		return err
	}
	if derived.ID() == producer.ID() {
		return nil
	}
	if _, exists := s.graph.Get(derived.ID()); !exists {
		logger.Info("attached", "action", derived.ID(), "trigger", relpath)
	}
	node := s.graph.Add(derived)
	if err := s.graph.AddEdge(node.ID(), producer.ID()); err != nil {
		return err
	}
	return s.graph.AddEdge(fa.ID(), node.ID())
}

// relativize maps an input path into the base directory.
func (s *Scheduler) relativize(input string) (string, error) {
	p := input
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.cfg.Basedir, p)
	}
	rel, err := filepath.Rel(s.cfg.Basedir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", config.Errorf("input file %q is outside base directory %s", input, s.cfg.Basedir)
	}
	return rel, nil
}
