package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/texforge/internal/action"
	"github.com/vk/texforge/internal/config"
	"github.com/vk/texforge/internal/scheduler"
	"github.com/vk/texforge/internal/trace"
)

func TestParseDefaults(t *testing.T) {
	var out bytes.Buffer
	opts, exit, err := Parse([]string{"main.tex"}, &out)
	require.NoError(t, err)
	require.False(t, exit)

	assert.Equal(t, ".texforgerc.hcl", opts.ConfigPath)
	assert.Equal(t, []string{"main.tex"}, opts.Inputs)
	assert.False(t, opts.Continuous)
	assert.Equal(t, "text", opts.LogFormat)
	assert.Equal(t, "info", opts.LogLevel)
}

func TestParseFlags(t *testing.T) {
	var out bytes.Buffer
	opts, exit, err := Parse([]string{
		"-config", "book.hcl",
		"-e",
		"-state", "/tmp/book.state",
		"-log", "book.log",
		"-append-log",
		"-log-format", "json",
		"-v",
		"book.tex", "appendix.tex",
	}, &out)
	require.NoError(t, err)
	require.False(t, exit)

	assert.Equal(t, "book.hcl", opts.ConfigPath)
	assert.True(t, opts.Continuous)
	assert.Equal(t, "/tmp/book.state", opts.StateFile)
	assert.Equal(t, "book.log", opts.LogFile)
	assert.True(t, opts.AppendLog)
	assert.Equal(t, "json", opts.LogFormat)
	assert.Equal(t, "debug", opts.LogLevel)
	assert.Equal(t, []string{"book.tex", "appendix.tex"}, opts.Inputs)
}

func TestParseHelp(t *testing.T) {
	var out bytes.Buffer
	_, exit, err := Parse([]string{"-h"}, &out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Contains(t, out.String(), "Exit codes")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-frobnicate"}},
		{"bad log format", []string{"-log-format", "xml"}},
		{"bad log level", []string{"-log-level", "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			_, _, err := Parse(tt.args, &out)
			require.Error(t, err)
			assert.Equal(t, CodeConfig, ExitCode(err))
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, CodeOK},
		{"config error", config.Errorf("bad rule"), CodeConfig},
		{"wrapped config error", fmt.Errorf("loading: %w", config.Errorf("bad rule")), CodeConfig},
		{"tracing unavailable", trace.ErrUnavailable, CodeNoTracing},
		{"not converged", fmt.Errorf("3 dirty: %w", scheduler.ErrNotConverged), CodeNotConverged},
		{"exec failure", fmt.Errorf("action x: %w", &action.ExecError{Argv: []string{"false"}, Status: 1}), CodeExecFailed},
		{"explicit exit error", &ExitError{Code: CodeNoTracing, Message: "no strace"}, CodeNoTracing},
		{"anything else", errors.New("disk on fire"), CodeExecFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
