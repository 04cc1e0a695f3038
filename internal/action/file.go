package action

import (
	"bytes"
	"context"
	"path/filepath"

	"github.com/vk/texforge/internal/ctxlog"
)

// FileAction watches one file under the base directory. It has no effect of
// its own: executing it recomputes the content checksum, and a changed
// checksum is how dirtiness enters the graph.
type FileAction struct {
	state
	path     string
	checksum []byte
}

// NewFileAction creates a watch on a basedir-relative path. The path is
// cleaned so equivalent spellings yield the same identity.
func NewFileAction(path string) *FileAction {
	return &FileAction{path: filepath.Clean(path)}
}

// RestoreFileAction rebuilds a watch from persisted state, including the
// last known checksum.
func RestoreFileAction(path string, checksum []byte) *FileAction {
	a := NewFileAction(path)
	a.checksum = checksum
	return a
}

// Path returns the watched basedir-relative path.
func (a *FileAction) Path() string { return a.path }

// Checksum returns the last observed digest: nil before the first
// observation, empty if the file was observed missing.
func (a *FileAction) Checksum() []byte { return a.checksum }

// ID implements the Action interface.
func (a *FileAction) ID() string { return "file:" + a.path }

// Kind implements the Action interface.
func (a *FileAction) Kind() Kind { return KindFile }

// String describes the action for logs.
func (a *FileAction) String() string { return "watch " + a.path }

// Execute recomputes the checksum and reports whether it changed. A file
// that does not exist yet is "changed" on first observation and benign
// afterwards — unless it was present before, in which case its removal is a
// change like any other.
func (a *FileAction) Execute(ctx context.Context, ec *ExecContext) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	sum := checksumFile(filepath.Join(ec.Basedir, a.path))
	changed := a.checksum == nil || !bytes.Equal(a.checksum, sum)
	a.checksum = sum
	a.markClean()

	if changed {
		logger.Info("changed", "path", a.path, "checksum", shortChecksum(sum))
	} else {
		logger.Debug("unchanged", "path", a.path)
	}
	return &Result{Changed: changed}, nil
}
