package action

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vk/texforge/internal/config"
	"github.com/vk/texforge/internal/ctxlog"
)

// CommandAction runs one opaque external command under the tracer. Its
// ignore patterns exclude volatile outputs (logs, final documents) from
// dependency discovery.
type CommandAction struct {
	state
	argv    []string
	ignores []string
	res     []*regexp.Regexp
}

// NewCommandAction builds a command action. Invalid ignore patterns are a
// configuration error.
func NewCommandAction(argv []string, ignores []string) (*CommandAction, error) {
	if len(argv) == 0 {
		return nil, config.Errorf("command action requires a non-empty command")
	}
	res := make([]*regexp.Regexp, 0, len(ignores))
	for _, pat := range ignores {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, config.Errorf("invalid ignore pattern %q: %v", pat, err)
		}
		res = append(res, re)
	}
	return &CommandAction{argv: argv, ignores: ignores, res: res}, nil
}

// Argv returns the command line.
func (a *CommandAction) Argv() []string { return a.argv }

// Ignores returns the ignore patterns, for persistence.
func (a *CommandAction) Ignores() []string { return a.ignores }

// ID implements the Action interface. Arguments are joined with an
// unprintable separator so identity never depends on shell quoting.
func (a *CommandAction) ID() string {
	return "command:" + strings.Join(a.argv, "\x1f") + ";" + strings.Join(a.ignores, "\x1f")
}

// Kind implements the Action interface.
func (a *CommandAction) Kind() Kind { return KindCommand }

// String describes the action for logs.
func (a *CommandAction) String() string { return strings.Join(a.argv, " ") }

// Execute runs the command under the tracer. Nonzero exit status is an
// ExecError; on success the observed file touches are returned, filtered by
// the ignore patterns and confined to the base directory.
func (a *CommandAction) Execute(ctx context.Context, ec *ExecContext) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("execute", "command", a.String())

	a.writeLogBanner(ec.BuildLog)
	stdout := tee(ec.BuildLog, ec.Stdout)
	stderr := tee(ec.BuildLog, ec.Stderr)

	tr, err := ec.Tracer.Run(ctx, a.argv, ec.Basedir, stdout, stderr)
	if err != nil {
		return nil, fmt.Errorf("tracing %v: %w", a.argv, err)
	}
	if tr.ExitStatus != 0 {
		return nil, &ExecError{Argv: a.argv, Status: tr.ExitStatus}
	}

	a.markClean()
	return &Result{
		Reads:  a.filter(tr.ReadPaths, ec.Basedir),
		Writes: a.filter(tr.WritePaths, ec.Basedir),
	}, nil
}

// filter confines absolute traced paths to the base directory, relativizes
// them, and drops matches of the ignore patterns.
func (a *CommandAction) filter(paths []string, basedir string) []string {
	var out []string
	for _, p := range paths {
		rel, err := filepath.Rel(basedir, p)
		if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
			continue
		}
		if a.ignored(rel) {
			continue
		}
		out = append(out, rel)
	}
	return out
}

func (a *CommandAction) ignored(rel string) bool {
	for _, re := range a.res {
		if re.MatchString(rel) {
			return true
		}
	}
	return false
}

// writeLogBanner frames this command's output in the shared build log.
func (a *CommandAction) writeLogBanner(w io.Writer) {
	if w == nil {
		return
	}
	bar := strings.Repeat("+", 80)
	fmt.Fprintf(w, "\n%s\n%s\n++++++++++ %s\n%s\n%s\n", bar, bar, a.String(), bar, bar)
}

// tee combines the build log and an optional echo writer.
func tee(log, echo io.Writer) io.Writer {
	switch {
	case log != nil && echo != nil:
		return io.MultiWriter(log, echo)
	case log != nil:
		return log
	default:
		return echo
	}
}
