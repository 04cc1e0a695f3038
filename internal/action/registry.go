package action

import (
	"strconv"
	"strings"

	"github.com/vk/texforge/internal/config"
)

// Constructor builds an action from expanded rule arguments.
type Constructor func(args map[string]string) (Action, error)

// constructors maps the fixed set of rule action tags to constructors.
// Unknown tags are a configuration error at load time, never a runtime
// dispatch failure.
var constructors = map[Kind]Constructor{
	KindFile:       newFileFromArgs,
	KindCommand:    newCommandFromArgs,
	KindTexBib:     newTexBibFromArgs,
	KindTexCompile: newTexCompileFromArgs,
	KindTexIndex:   newTexIndexFromArgs,
}

// ValidateRules checks every rule of the command map against the registry:
// the action tag must exist and the required arguments must be present.
func ValidateRules(rules []*config.Rule) error {
	for _, r := range rules {
		if _, ok := constructors[Kind(r.Action)]; !ok {
			return config.Errorf("rule %q: unknown action type %q", r.Pattern, r.Action)
		}
		switch Kind(r.Action) {
		case KindCommand:
			if r.Args["command"] == "" {
				return config.Errorf("rule %q: action %q requires a command argument", r.Pattern, r.Action)
			}
		case KindTexIndex:
			if r.Args["path"] == "" || r.Args["out"] == "" || r.Args["style"] == "" {
				return config.Errorf("rule %q: action %q requires path, out and style arguments", r.Pattern, r.Action)
			}
		default:
			if r.Args["path"] == "" {
				return config.Errorf("rule %q: action %q requires a path argument", r.Pattern, r.Action)
			}
		}
	}
	return nil
}

// FromRule instantiates the rule's action for one matched path, expanding
// the argument templates first.
func FromRule(rule *config.Rule, path string) (Action, error) {
	ctor, ok := constructors[Kind(rule.Action)]
	if !ok {
		return nil, config.Errorf("rule %q: unknown action type %q", rule.Pattern, rule.Action)
	}
	return ctor(config.ExpandArgs(rule.Args, path))
}

func newFileFromArgs(args map[string]string) (Action, error) {
	if args["path"] == "" {
		return nil, config.Errorf("file action requires a path argument")
	}
	return NewFileAction(args["path"]), nil
}

func newCommandFromArgs(args map[string]string) (Action, error) {
	argv := strings.Fields(args["command"])
	var ignores []string
	if raw := args["ignores"]; raw != "" {
		for _, pat := range strings.Split(raw, ",") {
			if pat = strings.TrimSpace(pat); pat != "" {
				ignores = append(ignores, pat)
			}
		}
	}
	return NewCommandAction(argv, ignores)
}

func newTexBibFromArgs(args map[string]string) (Action, error) {
	if args["path"] == "" {
		return nil, config.Errorf("tex_bib action requires a path argument")
	}
	return NewTexBibAction(args["path"]), nil
}

func newTexCompileFromArgs(args map[string]string) (Action, error) {
	if args["path"] == "" {
		return nil, config.Errorf("tex_compile action requires a path argument")
	}
	engine := args["engine"]
	if engine == "" {
		engine = EngineLuaJITTeX
	}
	format := args["format"]
	if format == "" {
		format = FormatPDF
	}
	latex := true
	if raw := args["latex"]; raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, config.Errorf("tex_compile: invalid latex argument %q", raw)
		}
		latex = v
	}
	return NewTexCompileAction(args["path"], engine, format, latex)
}

func newTexIndexFromArgs(args map[string]string) (Action, error) {
	if args["path"] == "" || args["out"] == "" || args["style"] == "" {
		return nil, config.Errorf("tex_index action requires path, out and style arguments")
	}
	return NewTexIndexAction(args["path"], args["out"], args["style"]), nil
}
