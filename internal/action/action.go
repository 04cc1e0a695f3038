package action

import (
	"context"
	"fmt"
	"io"

	"github.com/vk/texforge/internal/trace"
)

// Kind is the variant tag of an action. The set is closed; tags double as
// the action type names accepted in rule blocks and as the variant
// discriminator in persisted state.
type Kind string

const (
	KindFile       Kind = "file"
	KindCommand    Kind = "command"
	KindTexBib     Kind = "tex_bib"
	KindTexCompile Kind = "tex_compile"
	KindTexIndex   Kind = "tex_index"
)

// Result is the outcome of one successful execution. Changed is meaningful
// for file actions; Reads and Writes (basedir-relative, ignore-filtered)
// for the command family.
type Result struct {
	Changed bool
	Reads   []string
	Writes  []string
}

// ExecContext carries everything an action needs to execute. The base
// directory is threaded explicitly; actions never consult the process
// working directory.
type ExecContext struct {
	// Basedir is the absolute root of the build.
	Basedir string

	// Tmpdir holds scratch files such as trace logs.
	Tmpdir string

	// Tracer observes file accesses of external commands.
	Tracer trace.Tracer

	// BuildLog receives the banner-framed stdout/stderr of every command.
	// May be nil.
	BuildLog io.Writer

	// Stdout and Stderr optionally echo command output to the console.
	// Either may be nil.
	Stdout io.Writer
	Stderr io.Writer
}

// Action is a schedulable unit of work with dirty/clean state. Actions are
// constructed clean; the scheduler decides what to mark dirty.
type Action interface {
	// ID is the action's stable identity: a deterministic function of the
	// variant tag and its canonicalized constructor arguments. Two actions
	// with the same ID are the same node.
	ID() string

	// Kind returns the variant tag.
	Kind() Kind

	// Dirty reports whether the action requires (re-)execution.
	Dirty() bool

	// MarkDirty flags the action for execution. Idempotent.
	MarkDirty()

	// Execute performs the action's effect. It must only be called when
	// dirty; it clears the dirty flag on success and leaves it set on
	// failure.
	Execute(ctx context.Context, ec *ExecContext) (*Result, error)
}

// ExecError reports an external command that exited with nonzero status.
// It is fatal for the whole run.
type ExecError struct {
	Argv   []string
	Status int
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	return fmt.Sprintf("command %v exited with status %d", e.Argv, e.Status)
}

// state is the embedded dirty flag shared by all variants. The graph and
// scheduler are single-owner, so no locking is needed here.
type state struct {
	dirty bool
}

func (s *state) Dirty() bool { return s.dirty }
func (s *state) MarkDirty()  { s.dirty = true }
func (s *state) markClean()  { s.dirty = false }
