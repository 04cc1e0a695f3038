package config

import (
	"fmt"
	"regexp"
	"time"
)

// Error marks a configuration problem. Configuration errors are reported
// before any external process is spawned and map to their own exit code.
type Error struct {
	msg string
}

// Error implements the error interface.
func (e *Error) Error() string { return e.msg }

// Errorf builds a configuration Error from a format string.
func Errorf(format string, args ...any) error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Rule is one entry of the command map: a pattern over basedir-relative
// paths, the action type it instantiates, an argument template, and whether
// the engine may instantiate it on its own from observed file touches.
type Rule struct {
	Pattern string
	Action  string
	Args    map[string]string
	Auto    bool

	re *regexp.Regexp
}

// Match reports whether the rule's pattern matches the given relative path.
func (r *Rule) Match(path string) bool {
	return r.re.MatchString(path)
}

// compile validates and compiles the rule's pattern.
func (r *Rule) compile() error {
	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return Errorf("rule %q: invalid pattern: %v", r.Pattern, err)
	}
	r.re = re
	return nil
}

// Model is the complete, validated run configuration.
type Model struct {
	// Basedir is the absolute root of the build. All dependency discovery
	// is confined to it and all watched paths are relative to it.
	Basedir string

	// Tmpdir holds per-process scratch files (trace logs). Removed on exit.
	Tmpdir string

	// StateFile is where the dependency graph is persisted between runs,
	// relative to Basedir unless absolute.
	StateFile string

	// LogFile collects the stdout/stderr of every external command,
	// relative to Basedir unless absolute.
	LogFile string

	// AppendLog keeps the previous LogFile contents instead of truncating
	// at startup.
	AppendLog bool

	// PrintStdout and PrintStderr echo command output to the console in
	// addition to the log file.
	PrintStdout bool
	PrintStderr bool

	// MaxRounds bounds the fixpoint iteration. Zero means unlimited.
	MaxRounds int

	// Continuous keeps the process alive after convergence and re-runs the
	// loop on filesystem changes.
	Continuous bool

	// ContinuousWait is the debounce interval for filesystem events in
	// continuous mode.
	ContinuousWait time.Duration

	// Workers is the pool size for checksum recomputation within a round.
	Workers int

	// Rules is the ordered command map; the first matching rule wins.
	Rules []*Rule
}

// Default returns the built-in configuration: compile .tex/.ins/.dtx inputs,
// resolve bibliographies for .bcf files, and build indexes for .idx files.
func Default() *Model {
	return &Model{
		Basedir:        "",
		StateFile:      ".texforge.state",
		LogFile:        "texforge.log",
		PrintStderr:    true,
		MaxRounds:      10,
		ContinuousWait: 250 * time.Millisecond,
		Workers:        4,
		Rules: []*Rule{
			{
				Pattern: `\.bcf$`,
				Action:  "tex_bib",
				Args:    map[string]string{"path": "?p"},
				Auto:    true,
			},
			{
				Pattern: `\.(ins|dtx|tex)$`,
				Action:  "tex_compile",
				Args:    map[string]string{"path": "?p"},
			},
			{
				Pattern: `\.idx$`,
				Action:  "tex_index",
				Args:    map[string]string{"path": "?p", "out": "?w.ind", "style": "gind.ist"},
				Auto:    true,
			},
		},
	}
}

// MatchRule returns the first rule matching the given relative path, or nil.
// With autoOnly set, rules without the auto flag are skipped.
func (m *Model) MatchRule(path string, autoOnly bool) *Rule {
	for _, r := range m.Rules {
		if autoOnly && !r.Auto {
			continue
		}
		if r.Match(path) {
			return r
		}
	}
	return nil
}

// finish compiles all rule patterns and checks model-level invariants.
func (m *Model) finish() error {
	for _, r := range m.Rules {
		if r.Action == "" {
			return Errorf("rule %q: missing action type", r.Pattern)
		}
		if err := r.compile(); err != nil {
			return err
		}
	}
	if m.MaxRounds < 0 {
		return Errorf("max_rounds must be >= 0, got %d", m.MaxRounds)
	}
	if m.Workers < 1 {
		return Errorf("workers must be >= 1, got %d", m.Workers)
	}
	if m.ContinuousWait <= 0 {
		return Errorf("continuous_wait must be positive, got %s", m.ContinuousWait)
	}
	return nil
}
