// Package inject runs the ordered injection stages over a parsed page.
//
// There are two stages. The head stage appends nodes to <head> and runs
// first; the footer stage appends nodes to the end of <body>. Inside a stage
// injectors run in registration order. Every injected element is tagged with
// MarkerAttr so a page that already went through the pipeline is left as is.
package inject

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"ppcgate/internal/dom"
	"ppcgate/internal/gate"
	"ppcgate/internal/profile"
)

// MarkerAttr names the attribute carrying the injector name.
const MarkerAttr = "data-ppcgate"

// Stage is a named insertion point in the rendered page.
type Stage string

const (
	StageHead   Stage = "head"
	StageFooter Stage = "footer"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageHead, StageFooter}

// Context is what injectors see for one page render.
type Context struct {
	Page     *gate.Page
	Campaign bool
	Profile  *profile.Profile
}

// Injector produces one element for one stage. A nil node means the injector
// has nothing to add for this page.
type Injector interface {
	Name() string
	Stage() Stage
	Render(ctx Context) (*html.Node, error)
}

// Report lists what Apply did.
type Report struct {
	Injected []string
	Present  []string
	Empty    []string
}

// Pipeline is the ordered list of injectors per stage.
type Pipeline struct {
	stages map[Stage][]Injector
	names  map[string]struct{}
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		stages: make(map[Stage][]Injector),
		names:  make(map[string]struct{}),
	}
}

// Register appends in to its stage.
func (p *Pipeline) Register(in Injector) error {
	if in == nil {
		return errors.New("inject: nil injector")
	}
	name := strings.TrimSpace(in.Name())
	if name == "" {
		return errors.New("inject: injector name is required")
	}
	if !knownStage(in.Stage()) {
		return fmt.Errorf("inject: %s: unknown stage %q", name, in.Stage())
	}
	if _, dup := p.names[name]; dup {
		return fmt.Errorf("inject: duplicate injector %q", name)
	}
	p.names[name] = struct{}{}
	p.stages[in.Stage()] = append(p.stages[in.Stage()], in)
	return nil
}

// MustRegister is Register for static wiring.
func (p *Pipeline) MustRegister(ins ...Injector) *Pipeline {
	for _, in := range ins {
		if err := p.Register(in); err != nil {
			panic(err)
		}
	}
	return p
}

// Injectors returns the injectors of one stage in run order.
func (p *Pipeline) Injectors(stage Stage) []Injector {
	return append([]Injector(nil), p.stages[stage]...)
}

// Apply runs every stage over doc. A failing injector is skipped and its
// error returned joined with the others; the remaining injectors still run.
func (p *Pipeline) Apply(doc *html.Node, ctx Context) (Report, error) {
	var rep Report
	var errs []error
	for _, stage := range Stages {
		target := stageTarget(doc, stage)
		if target == nil {
			errs = append(errs, fmt.Errorf("inject: stage %s: no <%s> element", stage, stageElement(stage)))
			continue
		}
		for _, in := range p.stages[stage] {
			name := in.Name()
			if dom.FindByAttr(doc, MarkerAttr, name) != nil {
				rep.Present = append(rep.Present, name)
				continue
			}
			node, err := in.Render(ctx)
			if err != nil {
				errs = append(errs, fmt.Errorf("inject: %s: %w", name, err))
				continue
			}
			if node == nil {
				rep.Empty = append(rep.Empty, name)
				continue
			}
			dom.SetAttr(node, MarkerAttr, name)
			target.AppendChild(node)
			rep.Injected = append(rep.Injected, name)
		}
	}
	return rep, errors.Join(errs...)
}

func knownStage(s Stage) bool {
	for _, st := range Stages {
		if st == s {
			return true
		}
	}
	return false
}

func stageElement(s Stage) string {
	if s == StageHead {
		return "head"
	}
	return "body"
}

func stageTarget(doc *html.Node, s Stage) *html.Node {
	return dom.FindFirstByTag(doc, stageElement(s))
}

// element builds <tag id=...> with a single raw text child.
func element(a atom.Atom, id, text string) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
	}
	if id != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: "id", Val: id})
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return n
}
