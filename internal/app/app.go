package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/vk/texforge/internal/action"
	"github.com/vk/texforge/internal/config"
	"github.com/vk/texforge/internal/ctxlog"
)

// Options holds everything the entrypoint hands to an App instance.
type Options struct {
	// ConfigPath is the HCL configuration file; missing files fall back
	// to built-in defaults.
	ConfigPath string

	// Inputs are the initially processed files.
	Inputs []string

	// Continuous keeps the process alive and re-runs on filesystem
	// changes. Overrides the config file when set.
	Continuous bool

	// Overrides for the corresponding config attributes; empty means
	// "use the configured value".
	StateFile string
	LogFile   string
	AppendLog bool

	LogFormat string
	LogLevel  string
}

// App encapsulates one configured application instance.
type App struct {
	logger *slog.Logger
	cfg    *config.Model
	opts   *Options
}

// NewApp loads and validates the configuration and returns a fully
// initialized App. Configuration problems are reported as config errors,
// before anything executes.
func NewApp(outW io.Writer, opts *Options) (*App, error) {
	logger := newLogger(opts.LogLevel, opts.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)

	cfg, err := config.Load(ctx, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Continuous {
		cfg.Continuous = true
	}
	if opts.StateFile != "" {
		cfg.StateFile = opts.StateFile
	}
	if opts.LogFile != "" {
		cfg.LogFile = opts.LogFile
	}
	if opts.AppendLog {
		cfg.AppendLog = true
	}

	if err := action.ValidateRules(cfg.Rules); err != nil {
		return nil, err
	}
	logger.Debug("configuration validated", "rules", len(cfg.Rules), "basedir", cfg.Basedir)

	return &App{logger: logger, cfg: cfg, opts: opts}, nil
}

// Config exposes the validated configuration, primarily for tests.
func (a *App) Config() *config.Model { return a.cfg }
