package browsercheck

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"ppcgate/internal/audit"
	"ppcgate/internal/clientjs"
	"ppcgate/internal/inject"
	"ppcgate/internal/profile"
	"ppcgate/internal/styles"
)

func TestProbes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{
		".menu-toggle",
		".zd-plugin",
		`.header-mobile a[href*="facebook"]`,
		`.header-mobile a[href*="instagram"]`,
		`.menu-btn > a[href*="dm.pcols.com"]`,
	}, Probes(nil))

	p := profile.Default()
	p.SocialDomains = nil
	p.BookingDomain = ""
	assert.Equal(t, []string{".menu-toggle", ".zd-plugin"}, Probes(p))
}

func TestProbeScriptCompiles(t *testing.T) {
	t.Parallel()
	expr, err := probeScript(Probes(nil))
	require.NoError(t, err)
	_, err = goja.Compile("probe.js", expr, false)
	require.NoError(t, err)
	assert.Contains(t, expr, "[data-ppcgate]")
}

func TestResultHasClass(t *testing.T) {
	t.Parallel()
	r := &Result{BodyClasses: []string{"home", "ppc-traffic"}}
	assert.True(t, r.HasClass("ppc-traffic"))
	assert.False(t, r.HasClass("ppc"))
}

const page = `<!DOCTYPE html><html><head><title>t</title></head>
<body class="home">
<div class="header-mobile"><a href="https://facebook.com/x">fb</a></div>
<div class="menu-btn"><a href="https://dm.pcols.com/b">Schedule</a></div>
<button class="menu-toggle">Menu</button>
<div class="zd-plugin"><img src="data:image/gif;base64,R0lGODlhAQABAAAAACw="></div>
</body></html>`

func rewrittenPage(t *testing.T, campaignTraffic bool) []byte {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(page))
	require.NoError(t, err)
	p := inject.NewPipeline().MustRegister(styles.Injectors()...).MustRegister(clientjs.Injector())
	_, err = p.Apply(doc, inject.Context{Campaign: campaignTraffic, Profile: profile.Default()})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, html.Render(&buf, doc))
	return buf.Bytes()
}

func TestVerifyInChrome(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	if _, err := FindBrowser(); err != nil {
		t.Skip(err)
	}
	body := rewrittenPage(t, false)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c := New(nil)
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mobile, err := c.Verify(ctx, srv.URL+"/?gclid=abc", Options{Viewport: audit.Mobile, Mobile: true, Probes: Probes(nil)})
	require.NoError(t, err)
	assert.True(t, mobile.HasClass("ppc-traffic"))
	assert.Equal(t, "armed", mobile.WidgetState)
	assert.True(t, mobile.Hidden[".menu-toggle"])
	assert.True(t, mobile.Hidden[`.header-mobile a[href*="facebook"]`])
	assert.Empty(t, mobile.Missing)
	assert.Contains(t, mobile.Injected, clientjs.InjectorName)

	desktop, err := c.Verify(ctx, srv.URL+"/", Options{Viewport: audit.Desktop, Probes: []string{".menu-toggle", ".nope"}})
	require.NoError(t, err)
	assert.False(t, desktop.HasClass("ppc-traffic"))
	assert.False(t, desktop.Hidden[".menu-toggle"])
	assert.Equal(t, []string{".nope"}, desktop.Missing)
}
