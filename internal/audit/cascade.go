package audit

import (
	"strings"

	"github.com/andybalholm/cascadia"
	cssast "github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"

	"ppcgate/internal/dom"
)

type declaration struct {
	property  string
	value     string
	important bool
}

type cascadeRule struct {
	selector     cascadia.Sel
	specificity  cascadia.Specificity
	declarations []declaration
	order        int
}

type propState struct {
	val       string
	spec      cascadia.Specificity
	order     int
	important bool
}

var inlineSpecificity = cascadia.Specificity{1 << 12, 0, 0}

// Cascade holds the injected rules active at one viewport, in source order.
type Cascade struct {
	rules []cascadeRule
}

// NewCascade collects the injected style elements of doc that apply at vp.
// Theme stylesheets are not loaded; only the injected rules and inline
// style attributes take part.
func NewCascade(doc *html.Node, vp Viewport) *Cascade {
	c := &Cascade{}
	order := 0
	for _, st := range injectedStyles(doc) {
		sheet, err := parser.Parse(dom.TextContent(st))
		if err != nil {
			continue
		}
		walkQualified(sheet.Rules, "", func(media string, rule *cssast.Rule) {
			if !mediaActive(media, vp) {
				return
			}
			decls := convertDeclarations(rule.Declarations)
			if len(decls) == 0 {
				return
			}
			group, err := cascadia.ParseGroup(strings.Join(rule.Selectors, ","))
			if err != nil {
				return
			}
			for _, sel := range group {
				if sel == nil || sel.PseudoElement() != "" {
					continue
				}
				c.rules = append(c.rules, cascadeRule{selector: sel, specificity: sel.Specificity(), declarations: decls, order: order})
				order++
			}
		})
	}
	return c
}

// Compute returns the winning value of every property set on n by the
// injected rules or by its style attribute.
func (c *Cascade) Compute(n *html.Node) map[string]string {
	if c == nil || n == nil || n.Type != html.ElementNode {
		return nil
	}
	props := map[string]propState{}
	for _, rule := range c.rules {
		if !rule.selector.Match(n) {
			continue
		}
		for _, d := range rule.declarations {
			applyDeclaration(props, d, rule.specificity, rule.order)
		}
	}
	if inline := strings.TrimSpace(dom.GetAttr(n, "style")); inline != "" {
		if decls, err := parser.ParseDeclarations(inline); err == nil {
			for i, d := range convertDeclarations(decls) {
				applyDeclaration(props, d, inlineSpecificity, (1<<30)+i)
			}
		}
	}
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]string, len(props))
	for k, st := range props {
		out[k] = st.val
	}
	return out
}

// Hidden reports whether the cascade sets display:none on n or on one of
// its ancestors.
func (c *Cascade) Hidden(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if strings.EqualFold(c.Compute(n)["display"], "none") {
			return true
		}
	}
	return false
}

func convertDeclarations(list []*cssast.Declaration) []declaration {
	out := make([]declaration, 0, len(list))
	for _, d := range list {
		if d == nil {
			continue
		}
		out = append(out, declaration{
			property:  strings.ToLower(strings.TrimSpace(d.Property)),
			value:     strings.TrimSpace(d.Value),
			important: d.Important,
		})
	}
	return out
}

// applyDeclaration keeps the winner per property: important beats normal,
// then higher specificity, then later source order.
func applyDeclaration(store map[string]propState, d declaration, spec cascadia.Specificity, order int) {
	if d.property == "" || d.value == "" {
		return
	}
	entry := propState{val: d.value, spec: spec, order: order, important: d.important}
	prev, ok := store[d.property]
	if !ok {
		store[d.property] = entry
		return
	}
	if prev.important != d.important {
		if d.important {
			store[d.property] = entry
		}
		return
	}
	if prev.spec.Less(spec) {
		store[d.property] = entry
		return
	}
	if spec.Less(prev.spec) {
		return
	}
	if order >= prev.order {
		store[d.property] = entry
	}
}
