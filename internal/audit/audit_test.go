package audit

import (
	"strings"
	"testing"

	"github.com/andybalholm/cascadia"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"ppcgate/internal/campaign"
	"ppcgate/internal/inject"
	"ppcgate/internal/profile"
	"ppcgate/internal/styles"
)

const page = `<!DOCTYPE html>
<html><head><title>Home</title></head>
<body class="home">
<header class="site-header"><div class="inside-header">
  <div class="site-logo"><a href="/">logo</a></div>
  <div class="header-mobile">
    <a href="https://facebook.com/x">fb</a>
    <a href="https://instagram.com/x">ig</a>
    <a id="tel" href="tel:+17145550100" style="font-size: 14px">call</a>
  </div>
  <div class="menu-btn"><a href="https://dm.pcols.com/book">Schedule</a></div>
  <nav id="site-navigation"><button id="toggle" class="menu-toggle">Menu</button></nav>
</div></header>
<div id="health_main">
  <div class="elementor-element-71dcd21"><div class="elementor-widget-image">
    <div class="elementor-element-c2fb0be"><img src="/home-image1a.png"></div>
  </div></div>
  <div id="health_right"><div class="yellow-btn elementor-element-1afbc76"><a id="cta" class="elementor-button" href="#">Book</a></div></div>
</div>
<div id="widget" class="zd-plugin" style="opacity: 1"><img src="zd.png"></div>
</body></html>`

func rewritten(t *testing.T, campaignTraffic bool) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(page))
	require.NoError(t, err)
	_, err = inject.NewPipeline().MustRegister(styles.Injectors()...).
		Apply(doc, inject.Context{Campaign: campaignTraffic, Profile: profile.Default()})
	require.NoError(t, err)
	return doc
}

func byID(t *testing.T, doc *html.Node, id string) *html.Node {
	t.Helper()
	n := cascadia.Query(doc, cascadia.MustCompile("#"+id))
	require.NotNil(t, n, id)
	return n
}

func TestRunFindsEveryInjectedStyle(t *testing.T) {
	t.Parallel()
	doc := rewritten(t, false)
	rep, err := Run(doc, Options{
		Viewport:       Mobile,
		RuntimeClasses: []string{campaign.MarkerClass, profile.Default().Widget.RevealClass},
	})
	require.NoError(t, err)

	var names []string
	for _, r := range styles.Rules() {
		names = append(names, r.Name)
	}
	assert.Equal(t, names, rep.Styles)
	assert.Empty(t, rep.Errors())
	assert.Empty(t, rep.Unmatched())
	assert.NotEmpty(t, rep.Findings)
}

func TestRunReportsUnmatchedAndDynamic(t *testing.T) {
	t.Parallel()
	doc, err := html.Parse(strings.NewReader(`<html><head>
<style data-ppcgate="x">body.home .missing { display: none !important; }
@media (max-width: 768px) { body.home a:hover { color: red; } }</style>
<style>body .ignored { color: blue; }</style>
</head><body class="home"><a href="#">a</a></body></html>`))
	require.NoError(t, err)

	rep, err := Run(doc, Options{})
	require.NoError(t, err)
	assert.Equal(t, Desktop, rep.Viewport)
	assert.Equal(t, []string{"x"}, rep.Styles)
	require.Len(t, rep.Findings, 2)

	missing := rep.Findings[0]
	assert.Equal(t, "body.home .missing", missing.Selector)
	assert.True(t, missing.Active)
	assert.False(t, missing.Dynamic)
	assert.Zero(t, missing.Matches)

	hover := rep.Findings[1]
	assert.Equal(t, "(max-width: 768px)", hover.Media)
	assert.False(t, hover.Active)
	assert.True(t, hover.Dynamic)

	assert.Equal(t, []Finding{missing}, rep.Unmatched())
}

func TestMediaActive(t *testing.T) {
	t.Parallel()
	cases := []struct {
		prelude string
		vp      Viewport
		want    bool
	}{
		{"", Desktop, true},
		{"(max-width: 1023px)", Desktop, false},
		{"(max-width: 1023px)", Viewport{Width: 1023}, true},
		{"(max-width: 768px)", Mobile, true},
		{"screen and (min-width: 400px)", Mobile, false},
		{"screen and (min-width: 400px)", Desktop, true},
		{"print", Desktop, false},
		{"print, (max-width: 480px)", Mobile, true},
		{"(max-width: 768px) and (max-width: 480px)", Viewport{Width: 600}, false},
		{"(orientation: landscape)", Mobile, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, mediaActive(tc.prelude, tc.vp), "mediaActive(%q, %v)", tc.prelude, tc.vp)
	}
}

func TestCascadeMenuToggle(t *testing.T) {
	t.Parallel()
	organic := rewritten(t, false)
	assert.True(t, NewCascade(organic, Mobile).Hidden(byID(t, organic, "toggle")))
	assert.False(t, NewCascade(organic, Desktop).Hidden(byID(t, organic, "toggle")))

	paid := rewritten(t, true)
	assert.True(t, NewCascade(paid, Desktop).Hidden(byID(t, paid, "toggle")))
}

func TestCascadePhoneBreakpoints(t *testing.T) {
	t.Parallel()
	doc := rewritten(t, false)
	tel := byID(t, doc, "tel")

	assert.Equal(t, "22px", NewCascade(doc, Mobile).Compute(tel)["font-size"])
	assert.Equal(t, "24px", NewCascade(doc, Viewport{Width: 600, Height: 800}).Compute(tel)["font-size"])
	// Only the inline style applies on desktop.
	assert.Equal(t, "14px", NewCascade(doc, Desktop).Compute(tel)["font-size"])
}

func TestCascadeImportantBeatsInline(t *testing.T) {
	t.Parallel()
	doc := rewritten(t, false)
	w := byID(t, doc, "widget")
	desktop := NewCascade(doc, Desktop).Compute(w)
	assert.Equal(t, "0", desktop["opacity"])
	assert.Empty(t, desktop["position"])

	mobile := NewCascade(doc, Mobile).Compute(w)
	assert.Equal(t, "fixed", mobile["position"])
	assert.Equal(t, "9998", mobile["z-index"])
}

func TestCascadeSocialAndCTA(t *testing.T) {
	t.Parallel()
	doc := rewritten(t, false)
	c := NewCascade(doc, Mobile)
	for _, a := range cascadia.QueryAll(doc, cascadia.MustCompile(".header-mobile a[href*=facebook], .header-mobile a[href*=instagram]")) {
		assert.True(t, c.Hidden(a))
	}
	assert.Equal(t, "20px", c.Compute(byID(t, doc, "cta"))["font-size"])
	assert.Equal(t, "-1", c.Compute(byID(t, doc, "health_right"))["order"])
}

func TestSortFindings(t *testing.T) {
	t.Parallel()
	fs := []Finding{
		{Injector: "b", Selector: "x"},
		{Injector: "a", Media: "m", Selector: "y"},
		{Injector: "a", Selector: "z"},
	}
	SortFindings(fs)
	assert.Equal(t, "z", fs[0].Selector)
	assert.Equal(t, "y", fs[1].Selector)
	assert.Equal(t, "b", fs[2].Injector)
}
