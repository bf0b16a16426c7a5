package styles

import (
	"strings"
	"testing"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"ppcgate/internal/inject"
	"ppcgate/internal/profile"
)

// landingMarkup mirrors the structure of the production front page.
const landingMarkup = `<!DOCTYPE html>
<html><head></head>
<body class="home page-template-default">
<header class="site-header"><div class="inside-header">
  <div class="site-logo"><a href="/"><img src="logo.png"></a></div>
  <div class="header-mobile">
    <a href="https://www.facebook.com/sams">fb</a>
    <a href="https://instagram.com/sams">ig</a>
    <a href="tel:+17145550100">(714) 555-0100</a>
  </div>
  <div class="menu-btn"><a href="https://dm.pcols.com/book">Schedule Now</a></div>
  <nav id="site-navigation"><button class="menu-toggle">Menu</button></nav>
</div></header>
<div id="health_main">
  <div class="elementor-element-71dcd21"><div class="elementor-widget-image">
    <div class="elementor-element-c2fb0be"><img src="/wp-content/uploads/home-image1a.png"></div>
  </div></div>
  <div id="health_right"><div class="yellow-btn elementor-element-1afbc76"><a class="elementor-button" href="https://dm.pcols.com/book">Book Online</a></div></div>
</div>
<div class="zd-plugin"><img src="zocdoc.png"></div>
</body></html>`

func build(t *testing.T, name string, ctx inject.Context) *css.Stylesheet {
	t.Helper()
	for _, r := range Rules() {
		if r.Name == name {
			return r.Build(ctx)
		}
	}
	t.Fatalf("rule %q not found", name)
	return nil
}

// reparse round-trips a sheet through its text form, the way browsers see it.
func reparse(t *testing.T, s *css.Stylesheet) *css.Stylesheet {
	t.Helper()
	require.NotNil(t, s)
	out, err := parser.Parse(s.String())
	require.NoError(t, err, s.String())
	return out
}

func walk(rules []*css.Rule, fn func(media string, r *css.Rule)) {
	var visit func(string, []*css.Rule)
	visit = func(media string, list []*css.Rule) {
		for _, r := range list {
			if r.Kind == css.AtRule {
				visit(r.Prelude, r.Rules)
				continue
			}
			fn(media, r)
		}
	}
	visit("", rules)
}

func TestEveryRuleIsScopedAndImportant(t *testing.T) {
	t.Parallel()
	for _, campaignTraffic := range []bool{false, true} {
		ctx := inject.Context{Campaign: campaignTraffic, Profile: profile.Default()}
		for _, r := range Rules() {
			s := reparse(t, r.Build(ctx))
			count := 0
			walk(s.Rules, func(_ string, qr *css.Rule) {
				for _, sel := range qr.Selectors {
					assert.True(t, strings.HasPrefix(sel, "body.home"), "%s: selector %q is not scoped to the home page", r.Name, sel)
				}
				for _, d := range qr.Declarations {
					count++
					assert.True(t, d.Important, "%s: %s is not !important", r.Name, d.Property)
				}
			})
			assert.Positive(t, count, "%s emitted no declarations", r.Name)
		}
	}
}

func TestRuleSelectorsMatchLandingMarkup(t *testing.T) {
	t.Parallel()
	doc, err := html.Parse(strings.NewReader(landingMarkup))
	require.NoError(t, err)
	ctx := inject.Context{Profile: profile.Default()}
	for _, r := range Rules() {
		walk(reparse(t, r.Build(ctx)).Rules, func(_ string, qr *css.Rule) {
			for _, sel := range qr.Selectors {
				if strings.Contains(sel, ":hover") || strings.Contains(sel, ".ppc-traffic") || strings.Contains(sel, ".zd-delayed-show") {
					continue
				}
				group, err := cascadia.ParseGroup(sel)
				require.NoError(t, err, sel)
				assert.NotEmpty(t, cascadia.QueryAll(doc, group), "%s: %q matches nothing", r.Name, sel)
			}
		})
	}
}

func TestMenuToggleCampaignVariant(t *testing.T) {
	t.Parallel()
	unconditional := func(s *css.Stylesheet) []string {
		var out []string
		walk(s.Rules, func(media string, r *css.Rule) {
			if media == "" {
				out = append(out, r.Selectors...)
			}
		})
		return out
	}

	organic := reparse(t, build(t, RuleMenuToggle, inject.Context{}))
	assert.Equal(t, []string{"body.home.ppc-traffic .menu-toggle"}, unconditional(organic))

	paid := reparse(t, build(t, RuleMenuToggle, inject.Context{Campaign: true}))
	assert.Equal(t, []string{"body.home.ppc-traffic .menu-toggle", "body.home .menu-toggle"}, unconditional(paid))

	var medias []string
	walk(organic.Rules, func(media string, _ *css.Rule) {
		if media != "" {
			medias = append(medias, media)
		}
	})
	assert.Equal(t, []string{"(max-width: 1023px)"}, medias)
}

func TestPhoneLinkBreakpoints(t *testing.T) {
	t.Parallel()
	s := reparse(t, build(t, RulePhoneLink, inject.Context{}))
	sizes := map[string]string{}
	walk(s.Rules, func(media string, r *css.Rule) {
		for _, d := range r.Declarations {
			if d.Property == "font-size" {
				sizes[media] = d.Value
			}
		}
	})
	assert.Equal(t, map[string]string{
		"(max-width: 768px)": "24px",
		"(max-width: 480px)": "22px",
	}, sizes)
}

func TestWidgetRevealHook(t *testing.T) {
	t.Parallel()
	p := profile.Default()
	s := reparse(t, build(t, RuleWidget, inject.Context{Profile: p}))
	opacity := map[string]string{}
	walk(s.Rules, func(media string, r *css.Rule) {
		if media != "" {
			return
		}
		for _, d := range r.Declarations {
			if d.Property == "opacity" {
				opacity[strings.Join(r.Selectors, ",")] = d.Value
			}
		}
	})
	assert.Equal(t, map[string]string{
		"body.home .zd-plugin":                 "0",
		"body.home .zd-plugin.zd-delayed-show": "1",
	}, opacity)
}

func TestRulesFollowProfile(t *testing.T) {
	t.Parallel()
	p := profile.Default()
	p.HomeClass = "front"
	p.SocialDomains = nil
	p.BookingDomain = "book.example.com"

	assert.Nil(t, build(t, RuleSocialLinks, inject.Context{Profile: p}))
	s := build(t, RuleScheduleButton, inject.Context{Profile: p})
	require.NotNil(t, s)
	assert.Equal(t, []string{`body.front .menu-btn > a[href*="book.example.com"]`}, s.Rules[0].Selectors)
}

func TestInjectorsCoverEveryRule(t *testing.T) {
	t.Parallel()
	ins := Injectors()
	require.Len(t, ins, len(Rules()))
	for i, r := range Rules() {
		assert.Equal(t, r.Name, ins[i].Name())
		assert.Equal(t, inject.StageHead, ins[i].Stage())
	}
}

func TestHrefContainsQuotesNeedles(t *testing.T) {
	t.Parallel()
	got := HrefContains(".menu-btn > ", "dm.pcols.com", `a"b\c`, "x</style>", "tab\there")
	assert.Equal(t, []string{
		`.menu-btn > a[href*="dm.pcols.com"]`,
		`.menu-btn > a[href*="a\"b\\c"]`,
		`.menu-btn > a[href*="x\3c /style>"]`,
		`.menu-btn > a[href*="tab\9 here"]`,
	}, got)

	doc, err := html.Parse(strings.NewReader(`<div class="menu-btn"><a href="/x</style>/">a</a><a href='/a"b\c'>b</a></div>`))
	require.NoError(t, err)
	for _, sel := range got[1:3] {
		compiled, err := cascadia.Compile(sel)
		require.NoError(t, err, sel)
		assert.NotNil(t, cascadia.Query(doc, compiled), sel)
	}
}

func TestLinkRulesCannotCloseStyleElement(t *testing.T) {
	t.Parallel()
	p := profile.Default()
	p.SocialDomains = []string{`evil"]{}</style><script>alert(1)</script>`}
	p.BookingDomain = "</STYLE>"
	for _, name := range []string{RuleSocialLinks, RuleScheduleButton} {
		text := build(t, name, inject.Context{Profile: p}).String()
		assert.NotContains(t, strings.ToLower(text), "</style", name)
	}
}
