package action

import (
	"fmt"
	"path/filepath"

	"github.com/vk/texforge/internal/config"
)

// Engines understood by TexCompileAction.
const (
	EngineLuaJITTeX = "luajittex"
	EngineLuaTeX    = "luatex"
	EnginePDFTeX    = "pdftex"
	EngineXeTeX     = "xetex"
)

// Output formats understood by TexCompileAction.
const (
	FormatDVI = "dvi"
	FormatPDF = "pdf"
	FormatXDV = "xdv"
)

// engineFormats is the fixed engine×format compatibility table. Requests
// outside it are rejected at construction, before any process is spawned.
var engineFormats = map[string]map[string]bool{
	EngineLuaJITTeX: {FormatDVI: true, FormatPDF: true},
	EngineLuaTeX:    {FormatDVI: true, FormatPDF: true},
	EnginePDFTeX:    {FormatDVI: true, FormatPDF: true},
	EngineXeTeX:     {FormatPDF: true, FormatXDV: true},
}

// TexBibAction resolves the bibliography for one biber control file.
type TexBibAction struct {
	CommandAction
	path string
}

// NewTexBibAction builds a bibliography action for the given control file.
func NewTexBibAction(path string) *TexBibAction {
	path = filepath.Clean(path)
	cmd, err := NewCommandAction([]string{"biber", path}, []string{`\.blg$`, `\.utf8$`})
	if err != nil {
		panic(err) // fixed command template and patterns
	}
	return &TexBibAction{CommandAction: *cmd, path: path}
}

// Path returns the control file path.
func (a *TexBibAction) Path() string { return a.path }

// ID implements the Action interface.
func (a *TexBibAction) ID() string { return "tex_bib:" + a.path }

// Kind implements the Action interface.
func (a *TexBibAction) Kind() Kind { return KindTexBib }

// TexCompileAction invokes one typesetting engine on a source file.
type TexCompileAction struct {
	CommandAction
	path   string
	engine string
	format string
	latex  bool
}

// NewTexCompileAction builds a compile action. The engine and format must
// appear in the compatibility table; latex selects the LaTeX format of the
// engine instead of its plain variant.
func NewTexCompileAction(path, engine, format string, latex bool) (*TexCompileAction, error) {
	path = filepath.Clean(path)
	if _, ok := engineFormats[engine]; !ok {
		return nil, config.Errorf("unsupported engine %q", engine)
	}
	if !engineFormats[engine][format] {
		return nil, config.Errorf("engine %q does not support output format %q", engine, format)
	}

	var argv []string
	switch engine {
	case EngineLuaJITTeX:
		fmtName := "luatex"
		if latex {
			fmtName = "lualatex"
		}
		argv = []string{
			"luajittex", "--fmt=" + fmtName, "--jiton",
			"--file-line-error", "--interaction=nonstopmode",
			"--output-format=" + format,
		}
	case EngineLuaTeX:
		bin := "luatex"
		if latex {
			bin = "lualatex"
		}
		argv = []string{
			bin, "--file-line-error", "--interaction=nonstopmode",
			"--output-format=" + format,
		}
	case EngineXeTeX:
		bin := "xetex"
		if latex {
			bin = "xelatex"
		}
		argv = []string{bin, "-file-line-error", "-interaction=batchmode"}
		if format == FormatXDV {
			argv = append(argv, "-no-pdf")
		}
	case EnginePDFTeX:
		bin := ""
		if format == FormatPDF {
			bin = "pdf"
		}
		if latex {
			bin += "latex"
		} else {
			bin += "tex"
		}
		argv = []string{bin, "-file-line-error", "-interaction=batchmode"}
	}
	argv = append(argv, path)

	cmd, err := NewCommandAction(argv, []string{`\.log$`, `\.pdf$`})
	if err != nil {
		return nil, err
	}
	return &TexCompileAction{
		CommandAction: *cmd,
		path:          path,
		engine:        engine,
		format:        format,
		latex:         latex,
	}, nil
}

// Path returns the source file path.
func (a *TexCompileAction) Path() string { return a.path }

// Engine returns the typesetting engine name.
func (a *TexCompileAction) Engine() string { return a.engine }

// Format returns the output format.
func (a *TexCompileAction) Format() string { return a.format }

// Latex reports whether the LaTeX format of the engine is used.
func (a *TexCompileAction) Latex() bool { return a.latex }

// ID implements the Action interface.
func (a *TexCompileAction) ID() string {
	mode := "plain"
	if a.latex {
		mode = "latex"
	}
	return fmt.Sprintf("tex_compile:%s:%s:%s:%s", a.engine, a.format, mode, a.path)
}

// Kind implements the Action interface.
func (a *TexCompileAction) Kind() Kind { return KindTexCompile }

// TexIndexAction generates an index from a raw .idx file.
type TexIndexAction struct {
	CommandAction
	path  string
	out   string
	style string
}

// NewTexIndexAction builds an index action: path is the raw index input,
// out the generated index, style the makeindex style file.
func NewTexIndexAction(path, out, style string) *TexIndexAction {
	path = filepath.Clean(path)
	out = filepath.Clean(out)
	cmd, err := NewCommandAction([]string{"makeindex", "-q", "-s", style, "-o", out, path}, nil)
	if err != nil {
		panic(err) // fixed command template
	}
	return &TexIndexAction{CommandAction: *cmd, path: path, out: out, style: style}
}

// Path returns the raw index input path.
func (a *TexIndexAction) Path() string { return a.path }

// Out returns the generated index path.
func (a *TexIndexAction) Out() string { return a.out }

// Style returns the makeindex style file.
func (a *TexIndexAction) Style() string { return a.style }

// ID implements the Action interface.
func (a *TexIndexAction) ID() string {
	return fmt.Sprintf("tex_index:%s:%s:%s", a.path, a.out, a.style)
}

// Kind implements the Action interface.
func (a *TexIndexAction) Kind() Kind { return KindTexIndex }
