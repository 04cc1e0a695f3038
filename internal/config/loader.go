package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/texforge/internal/ctxlog"
)

// fileRoot decodes the top-level attributes and blocks of a config file.
// All attributes are optional; unset ones keep their built-in defaults.
type fileRoot struct {
	Basedir        *string `hcl:"basedir,optional"`
	StateFile      *string `hcl:"state_file,optional"`
	LogFile        *string `hcl:"log_file,optional"`
	AppendLog      *bool   `hcl:"append_log,optional"`
	PrintStdout    *bool   `hcl:"print_stdout,optional"`
	PrintStderr    *bool   `hcl:"print_stderr,optional"`
	MaxRounds      *int    `hcl:"max_rounds,optional"`
	Continuous     *bool   `hcl:"continuous,optional"`
	ContinuousWait *string `hcl:"continuous_wait,optional"`
	Workers        *int    `hcl:"workers,optional"`

	Rules []*ruleBlock `hcl:"rule,block"`
}

// ruleBlock is the HCL shape of one command-map entry.
type ruleBlock struct {
	Pattern string         `hcl:"pattern,label"`
	Action  string         `hcl:"action"`
	Args    hcl.Expression `hcl:"args,optional"`
	Auto    *bool          `hcl:"auto,optional"`
}

// Load builds the run configuration: built-in defaults, overlaid with the
// HCL file at path when it exists. A missing file is not an error; a
// malformed one is a configuration Error. The returned model has all rule
// patterns compiled and its invariants checked.
func Load(ctx context.Context, path string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	model := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := loadFile(path, model); err != nil {
				return nil, err
			}
			logger.Debug("configuration file loaded", "path", path)
		} else if !os.IsNotExist(err) {
			return nil, Errorf("cannot access config file %s: %v", path, err)
		} else {
			logger.Debug("no configuration file, using defaults", "path", path)
		}
	}

	if model.Basedir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, Errorf("cannot determine working directory: %v", err)
		}
		model.Basedir = wd
	}
	abs, err := filepath.Abs(model.Basedir)
	if err != nil {
		return nil, Errorf("cannot resolve basedir %q: %v", model.Basedir, err)
	}
	model.Basedir = abs

	if err := model.finish(); err != nil {
		return nil, err
	}
	return model, nil
}

// loadFile parses one HCL file and overlays its settings onto the model.
// Declaring any rule block replaces the default command map entirely.
func loadFile(path string, model *Model) error {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return Errorf("failed to parse %s: %v", path, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
	if diags.HasErrors() {
		return Errorf("failed to decode %s: %v", path, diags)
	}

	if root.Basedir != nil {
		model.Basedir = *root.Basedir
	}
	if root.StateFile != nil {
		model.StateFile = *root.StateFile
	}
	if root.LogFile != nil {
		model.LogFile = *root.LogFile
	}
	if root.AppendLog != nil {
		model.AppendLog = *root.AppendLog
	}
	if root.PrintStdout != nil {
		model.PrintStdout = *root.PrintStdout
	}
	if root.PrintStderr != nil {
		model.PrintStderr = *root.PrintStderr
	}
	if root.MaxRounds != nil {
		model.MaxRounds = *root.MaxRounds
	}
	if root.Continuous != nil {
		model.Continuous = *root.Continuous
	}
	if root.ContinuousWait != nil {
		d, err := time.ParseDuration(*root.ContinuousWait)
		if err != nil {
			return Errorf("invalid continuous_wait %q: %v", *root.ContinuousWait, err)
		}
		model.ContinuousWait = d
	}
	if root.Workers != nil {
		model.Workers = *root.Workers
	}

	if len(root.Rules) > 0 {
		rules := make([]*Rule, 0, len(root.Rules))
		for _, rb := range root.Rules {
			rule, err := translateRule(rb)
			if err != nil {
				return err
			}
			rules = append(rules, rule)
		}
		model.Rules = rules
	}
	return nil
}

// translateRule converts one HCL rule block into the agnostic model,
// evaluating the args template into plain strings.
func translateRule(rb *ruleBlock) (*Rule, error) {
	rule := &Rule{
		Pattern: rb.Pattern,
		Action:  rb.Action,
		Args:    map[string]string{},
	}
	if rb.Auto != nil {
		rule.Auto = *rb.Auto
	}

	if rb.Args != nil {
		val, diags := rb.Args.Value(nil)
		if diags.HasErrors() {
			return nil, Errorf("rule %q: cannot evaluate args: %v", rb.Pattern, diags)
		}
		if val.IsNull() {
			return rule, nil
		}
		if !val.Type().IsObjectType() && !val.Type().IsMapType() {
			return nil, Errorf("rule %q: args must be a map of strings", rb.Pattern)
		}
		for name, v := range val.AsValueMap() {
			if v.Type() != cty.String || v.IsNull() {
				return nil, Errorf("rule %q: arg %q must be a string", rb.Pattern, name)
			}
			rule.Args[name] = v.AsString()
		}
	}
	return rule, nil
}
