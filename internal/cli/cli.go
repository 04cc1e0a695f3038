// Package cli parses command-line arguments into app options and maps run
// errors to the documented exit codes.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/texforge/internal/action"
	"github.com/vk/texforge/internal/app"
	"github.com/vk/texforge/internal/config"
	"github.com/vk/texforge/internal/scheduler"
	"github.com/vk/texforge/internal/trace"
)

// Exit codes. Stable: scripts may depend on them.
const (
	CodeOK           = 0
	CodeExecFailed   = 1
	CodeConfig       = 2
	CodeNotConverged = 3
	CodeNoTracing    = 4
)

// ExitError is an error with a specific process exit code attached.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns populated app
// options, a boolean indicating a clean early exit (help), or an
// ExitError for usage problems.
func Parse(args []string, output io.Writer) (*app.Options, bool, error) {
	flagSet := flag.NewFlagSet("texforge", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
texforge - converges multi-pass TeX builds to a fixed point, discovering
file dependencies from what each tool actually reads and writes.

Usage:
  texforge [options] [FILE...]

Arguments:
  FILE
    Input files to process. May be omitted when a previous run left
    persisted state behind.

Exit codes:
  0  converged
  1  an external command failed
  2  configuration error
  3  build did not converge within max_rounds
  4  file-access tracing unavailable on this system

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", ".texforgerc.hcl", "Path to the configuration file.")
	continuousFlag := flagSet.Bool("continuously", false, "Keep running and rebuild on filesystem changes.")
	eFlag := flagSet.Bool("e", false, "Keep running and rebuild on filesystem changes (shorthand).")
	stateFlag := flagSet.String("state", "", "Override the state file path.")
	logFlag := flagSet.String("log", "", "Override the build log path.")
	appendLogFlag := flagSet.Bool("append-log", false, "Append to the build log instead of truncating it.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Logging level: 'debug', 'info', 'warn', or 'error'.")
	verboseFlag := flagSet.Bool("v", false, "Verbose output (same as -log-level=debug).")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: CodeConfig, Message: err.Error()}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: CodeConfig, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: CodeConfig, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	if *verboseFlag {
		logLevel = "debug"
	}

	return &app.Options{
		ConfigPath: *configFlag,
		Inputs:     flagSet.Args(),
		Continuous: *continuousFlag || *eFlag,
		StateFile:  *stateFlag,
		LogFile:    *logFlag,
		AppendLog:  *appendLogFlag,
		LogFormat:  logFormat,
		LogLevel:   logLevel,
	}, false, nil
}

// ExitCode classifies a run error into the documented exit code.
func ExitCode(err error) int {
	if err == nil {
		return CodeOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return CodeConfig
	}
	if errors.Is(err, trace.ErrUnavailable) {
		return CodeNoTracing
	}
	if errors.Is(err, scheduler.ErrNotConverged) {
		return CodeNotConverged
	}
	var execErr *action.ExecError
	if errors.As(err, &execErr) {
		return CodeExecFailed
	}
	return CodeExecFailed
}
