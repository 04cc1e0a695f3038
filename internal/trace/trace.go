package trace

import (
	"context"
	"errors"
	"io"
)

// ErrUnavailable indicates that no file-access tracing backend works in the
// current environment. It is surfaced once at startup, not per command.
var ErrUnavailable = errors.New("file-access tracing unavailable")

// Trace is the observation of one traced process: its exit status and the
// absolute paths it accessed, split by direction.
type Trace struct {
	ExitStatus int
	ReadPaths  []string
	WritePaths []string
}

// Tracer runs one external command and observes its file accesses.
type Tracer interface {
	// Run executes argv with the given working directory, streaming the
	// process output to stdout and stderr (either may be nil). It blocks
	// until the process exits or ctx is canceled; cancellation kills the
	// process. A nonzero child exit status is reported in the Trace, not
	// as an error — errors mean the tracer itself failed.
	Run(ctx context.Context, argv []string, dir string, stdout, stderr io.Writer) (*Trace, error)
}
