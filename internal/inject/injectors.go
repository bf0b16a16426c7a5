package inject

import (
	"strings"

	"github.com/aymerick/douceur/css"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// IDPrefix prefixes the id of every injected element.
const IDPrefix = "ppcgate-"

// SheetFunc builds the stylesheet of one style rule. Returning nil or an
// empty sheet injects nothing.
type SheetFunc func(ctx Context) *css.Stylesheet

type styleInjector struct {
	name  string
	build SheetFunc
}

// Style wraps a stylesheet builder as a head-stage injector emitting
// <style id="ppcgate-NAME">.
func Style(name string, build SheetFunc) Injector {
	return &styleInjector{name: name, build: build}
}

func (s *styleInjector) Name() string { return s.name }

func (s *styleInjector) Stage() Stage { return StageHead }

func (s *styleInjector) Render(ctx Context) (*html.Node, error) {
	sheet := s.build(ctx)
	if sheet == nil || len(sheet.Rules) == 0 {
		return nil, nil
	}
	return element(atom.Style, IDPrefix+s.name, "\n"+sheet.String()+"\n"), nil
}

// ScriptFunc returns the script source for one page.
type ScriptFunc func(ctx Context) (string, error)

type scriptInjector struct {
	name   string
	source ScriptFunc
}

// Script wraps a script source as a footer-stage injector emitting
// <script id="ppcgate-NAME">.
func Script(name string, source ScriptFunc) Injector {
	return &scriptInjector{name: name, source: source}
}

func (s *scriptInjector) Name() string { return s.name }

func (s *scriptInjector) Stage() Stage { return StageFooter }

func (s *scriptInjector) Render(ctx Context) (*html.Node, error) {
	src, err := s.source(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	return element(atom.Script, IDPrefix+s.name, "\n"+src+"\n"), nil
}
