// Package audit checks the injected style blocks of a rewritten page against
// the page's own markup: which selectors match, which media blocks apply at
// a given viewport, and what an element's resulting declarations are.
package audit

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	cssast "github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"

	"ppcgate/internal/dom"
	"ppcgate/internal/inject"
)

// Viewport is the screen size media queries are evaluated against.
type Viewport struct {
	Width  int
	Height int
}

// Desktop and Mobile are the two viewports the audit command reports on.
var (
	Desktop = Viewport{Width: 1280, Height: 800}
	Mobile  = Viewport{Width: 375, Height: 667}
)

// Finding is one selector of one injected rule.
type Finding struct {
	Injector string
	Media    string
	Active   bool
	Selector string
	Matches  int
	// Dynamic selectors depend on user interaction or on classes the client
	// script adds later, so zero matches in static markup is expected.
	Dynamic bool
	Err     error
}

// Report is the result of Run.
type Report struct {
	Viewport Viewport
	Styles   []string
	Findings []Finding
}

// Unmatched returns the static selectors that match nothing.
func (r *Report) Unmatched() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Err == nil && !f.Dynamic && f.Matches == 0 {
			out = append(out, f)
		}
	}
	return out
}

// Errors returns findings whose selector failed to parse.
func (r *Report) Errors() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

// Options tunes Run.
type Options struct {
	Viewport Viewport
	// RuntimeClasses are classes added in the browser after load.
	RuntimeClasses []string
}

var dynamicPseudos = []string{":hover", ":focus", ":active", ":visited", ":target", ":focus-within", ":focus-visible"}

// Run audits every <style data-ppcgate=...> element of doc.
func Run(doc *html.Node, opts Options) (*Report, error) {
	if opts.Viewport == (Viewport{}) {
		opts.Viewport = Desktop
	}
	rep := &Report{Viewport: opts.Viewport}
	for _, st := range injectedStyles(doc) {
		name := dom.GetAttr(st, inject.MarkerAttr)
		rep.Styles = append(rep.Styles, name)
		sheet, err := parser.Parse(dom.TextContent(st))
		if err != nil {
			return rep, fmt.Errorf("audit: parse %s: %w", name, err)
		}
		walkQualified(sheet.Rules, "", func(media string, rule *cssast.Rule) {
			for _, sel := range rule.Selectors {
				f := Finding{
					Injector: name,
					Media:    media,
					Active:   mediaActive(media, opts.Viewport),
					Selector: sel,
					Dynamic:  isDynamic(sel, opts.RuntimeClasses),
				}
				group, err := cascadia.ParseGroup(sel)
				if err != nil {
					f.Err = err
				} else {
					f.Matches = len(cascadia.QueryAll(doc, group))
				}
				rep.Findings = append(rep.Findings, f)
			}
		})
	}
	return rep, nil
}

func injectedStyles(doc *html.Node) []*html.Node {
	var out []*html.Node
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "style") && dom.GetAttr(n, inject.MarkerAttr) != "" {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return out
}

// walkQualified visits qualified rules with the prelude of the @media block
// around them. Nested blocks combine their preludes with "and".
func walkQualified(list []*cssast.Rule, media string, fn func(media string, r *cssast.Rule)) {
	for _, rule := range list {
		if rule == nil {
			continue
		}
		switch rule.Kind {
		case cssast.AtRule:
			name := strings.ToLower(strings.TrimSpace(rule.Name))
			if name == "@media" {
				next := strings.TrimSpace(rule.Prelude)
				if media != "" {
					next = media + " and " + next
				}
				walkQualified(rule.Rules, next, fn)
			} else if rule.EmbedsRules() {
				walkQualified(rule.Rules, media, fn)
			}
		case cssast.QualifiedRule:
			if len(rule.Selectors) > 0 {
				fn(media, rule)
			}
		}
	}
}

func isDynamic(sel string, runtimeClasses []string) bool {
	lower := strings.ToLower(sel)
	for _, p := range dynamicPseudos {
		if strings.Contains(lower, p) {
			return true
		}
	}
	for _, c := range runtimeClasses {
		if c != "" && strings.Contains(sel, "."+c) {
			return true
		}
	}
	return false
}

// mediaActive reports whether a media prelude applies at vp. Only the width
// and height range features are evaluated; anything else is assumed to hold.
func mediaActive(prelude string, vp Viewport) bool {
	if strings.TrimSpace(prelude) == "" {
		return true
	}
	for _, raw := range strings.Split(prelude, ",") {
		query := strings.ToLower(strings.TrimSpace(raw))
		if query == "" {
			continue
		}
		parts := strings.Fields(query)
		rest := query
		if len(parts) > 0 && !strings.HasPrefix(parts[0], "(") {
			switch parts[0] {
			case "print", "speech":
				continue
			}
			rest = strings.TrimSpace(strings.TrimPrefix(query, parts[0]))
			rest = strings.TrimSpace(strings.TrimPrefix(rest, "and"))
		}
		if featuresHold(rest, vp) {
			return true
		}
	}
	return false
}

func featuresHold(expr string, vp Viewport) bool {
	for _, clause := range strings.Split(expr, " and ") {
		c := strings.TrimSpace(clause)
		c = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(c, "("), ")"))
		feature, value, _ := strings.Cut(c, ":")
		px, ok := lengthPx(value)
		if !ok {
			continue
		}
		switch strings.TrimSpace(feature) {
		case "min-width":
			if vp.Width < px {
				return false
			}
		case "max-width":
			if vp.Width > px {
				return false
			}
		case "min-height":
			if vp.Height < px {
				return false
			}
		case "max-height":
			if vp.Height > px {
				return false
			}
		}
	}
	return true
}

func lengthPx(val string) (int, bool) {
	v := strings.TrimSuffix(strings.TrimSpace(val), "px")
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return int(f + 0.5), true
}

// SortFindings orders findings by injector, then media, then selector.
func SortFindings(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].Injector != fs[j].Injector {
			return fs[i].Injector < fs[j].Injector
		}
		if fs[i].Media != fs[j].Media {
			return fs[i].Media < fs[j].Media
		}
		return fs[i].Selector < fs[j].Selector
	})
}
