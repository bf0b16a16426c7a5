package styles

import (
	"fmt"
	"strings"

	"github.com/aymerick/douceur/css"
)

// Viewport breakpoints used by the rules.
const (
	MenuBreakpoint     = 1023
	NarrowBreakpoint   = 768
	NarrowerBreakpoint = 480
)

// important builds a declaration that overrides the theme.
func important(prop, value string) *css.Declaration {
	return &css.Declaration{Property: prop, Value: value, Important: true}
}

func rule(selectors []string, decls ...*css.Declaration) *css.Rule {
	r := css.NewRule(css.QualifiedRule)
	r.Selectors = selectors
	r.Declarations = decls
	return r
}

// maxWidth wraps rules into @media (max-width: Npx).
func maxWidth(px int, rules ...*css.Rule) *css.Rule {
	r := css.NewRule(css.AtRule)
	r.Name = "@media"
	r.Prelude = fmt.Sprintf("(max-width: %dpx)", px)
	for _, child := range rules {
		child.EmbedLevel = 1
	}
	r.Rules = rules
	return r
}

func sheet(rules ...*css.Rule) *css.Stylesheet {
	out := css.NewStylesheet()
	for _, r := range rules {
		if r != nil {
			out.Rules = append(out.Rules, r)
		}
	}
	return out
}

// scope prefixes each selector with body.HOME so rules only ever apply to
// the front page markup.
func scope(home string, selectors ...string) []string {
	out := make([]string, 0, len(selectors))
	for _, s := range selectors {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, "body."+home+" "+s)
	}
	return out
}

// HrefContains builds the a[href*="..."] selectors under parent.
func HrefContains(parent string, needles ...string) []string {
	out := make([]string, 0, len(needles))
	for _, n := range needles {
		out = append(out, parent+`a[href*=`+cssString(n)+`]`)
	}
	return out
}

// cssString quotes s as a CSS string token. "<" is escaped as well so the
// text can never close the surrounding <style> element.
func cssString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch {
		case r == 0:
			b.WriteRune('\uFFFD')
		case r < 0x20, r == 0x7f, r == '<':
			fmt.Fprintf(&b, `\%x `, r)
		case r == '"', r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
