package scheduler

import (
	"context"

	"github.com/vk/texforge/internal/ctxlog"
	"github.com/vk/texforge/internal/watcher"
)

// RunContinuous alternates between converging the graph and sleeping on
// the watcher's change queue. Each wake-up re-seeds dirtiness only for the
// changed file actions and resets the round counter (Run counts rounds per
// invocation). The loop ends when ctx is canceled — after a final state
// save — or when the watcher closes its queue.
func (s *Scheduler) RunContinuous(ctx context.Context, w *watcher.Watcher) error {
	logger := ctxlog.FromContext(ctx)

	// Watch the files already known (from restored state or seeding)
	// before converging, so an edit landing mid-run is queued instead of
	// dropped.
	w.SetPaths(s.graph.FilePaths())

	for {
		if err := s.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		// The graph may have grown during the run; refresh the watch set
		// before sleeping.
		w.SetPaths(s.graph.FilePaths())
		logger.Info("sleeping", "watched", s.graph.Len())

		select {
		case <-ctx.Done():
			if s.store != nil {
				if err := s.store.Save(context.WithoutCancel(ctx), s.graph); err != nil {
					logger.Warn("final state save failed", "error", err)
				}
			}
			return nil
		case batch, ok := <-w.Changes():
			if !ok {
				return nil
			}
			n := s.MarkChanged(batch)
			logger.Info("wake up", "changed", n, "events", len(batch))
		}
	}
}
