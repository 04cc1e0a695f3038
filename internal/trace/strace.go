package trace

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"github.com/vk/texforge/internal/ctxlog"
)

// Strace traces file accesses with strace(1), writing one trace log per
// invocation into a scratch directory.
type Strace struct {
	binary string
	tmpdir string
}

// NewStrace probes for a working strace backend. It fails with
// ErrUnavailable on non-Linux platforms and when the strace binary is not
// on PATH.
func NewStrace(tmpdir string) (*Strace, error) {
	if runtime.GOOS != "linux" {
		return nil, fmt.Errorf("%w: strace requires linux, running on %s", ErrUnavailable, runtime.GOOS)
	}
	bin, err := exec.LookPath("strace")
	if err != nil {
		return nil, fmt.Errorf("%w: strace not found in PATH", ErrUnavailable)
	}
	return &Strace{binary: bin, tmpdir: tmpdir}, nil
}

// Run implements the Tracer interface.
func (s *Strace) Run(ctx context.Context, argv []string, dir string, stdout, stderr io.Writer) (*Trace, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	logger := ctxlog.FromContext(ctx)

	logFile, err := os.CreateTemp(s.tmpdir, "trace-*.log")
	if err != nil {
		return nil, fmt.Errorf("creating trace log: %w", err)
	}
	logPath := logFile.Name()
	logFile.Close()
	defer os.Remove(logPath)

	args := []string{"-f", "-qq", "-y", "-e", "trace=file", "-o", logPath, "--"}
	args = append(args, argv...)

	cmd := newTraceCmd(ctx, s.binary, args, dir, stdout, stderr)

	logger.Debug("tracing command", "argv", argv)
	runErr := cmd.Run()
	status := 0
	if runErr != nil {
		// strace exits with the tracee's status, so a plain ExitError is
		// the child's result, not a tracer failure.
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("running %v: %w", argv, runErr)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		status = exitErr.ExitCode()
	}

	f, err := os.Open(logPath)
	if err != nil {
		return nil, fmt.Errorf("reading trace log: %w", err)
	}
	defer f.Close()

	reads, writes, err := parseTrace(f, dir)
	if err != nil {
		return nil, fmt.Errorf("parsing trace log: %w", err)
	}
	logger.Debug("trace complete", "status", status, "reads", len(reads), "writes", len(writes))

	return &Trace{ExitStatus: status, ReadPaths: reads, WritePaths: writes}, nil
}

// newTraceCmd builds the strace invocation. The tracer runs in its own
// process group and cancellation signals the whole group: killing only
// strace would detach its tracees and leave them orphaned.
func newTraceCmd(ctx context.Context, binary string, args []string, dir string, stdout, stderr io.Writer) *exec.Cmd {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second
	return cmd
}
