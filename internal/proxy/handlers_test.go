package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ppcgate/internal/clientjs"
	"ppcgate/internal/inject"
	"ppcgate/internal/styles"
)

func TestPing(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, "http://127.0.0.1:1")
	resp := serve(t, s, httptest.NewRequest(http.MethodGet, PingPath, nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := readBody(t, resp); got != "pong\n" {
		t.Fatalf("body = %q", got)
	}
}

func TestRulesPage(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, "http://127.0.0.1:1")
	resp := serve(t, s, httptest.NewRequest(http.MethodGet, RulesPath, nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}
	body := readBody(t, resp)
	for _, r := range styles.Rules() {
		if !strings.Contains(body, "<h3>"+r.Name+"</h3>") {
			t.Errorf("rule %s missing from page", r.Name)
		}
	}
	if !strings.Contains(body, "(organic)") {
		t.Errorf("expected organic variant")
	}
	// CSS is escaped, selectors with quotes come out as entities.
	if strings.Contains(body, `[href*="facebook"]`) {
		t.Errorf("attribute selector was not escaped")
	}
	if !strings.Contains(body, "Client script configuration") {
		t.Errorf("script section missing")
	}
}

func TestRulesPageEscapesViewText(t *testing.T) {
	t.Parallel()
	view := rulesView{
		HomePath: "/<home>",
		Home:     "home",
		Stages: []stageView{{
			Name: "head",
			Injectors: []injectorView{
				{Name: "x</h3>", Element: "style", Body: "\n  a[href*=\"x\"] { display: none; }\n"},
				{Name: "widget", Element: "script", ID: "ppc"},
				{Name: "campaign-only"},
			},
		}},
	}
	var buf bytes.Buffer
	if err := rulesPage(view).Render(context.Background(), &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	body := buf.String()
	for _, want := range []string{
		`<h1>Front page rules <small>(organic)</small></h1>`,
		`<a href="?campaign=1">Show campaign variant</a>`,
		`<code>/&lt;home&gt;</code>`,
		`<section id="stage-head"><h2>Stage head</h2><ol>`,
		`<h3>x&lt;/h3&gt;</h3>`,
		`<pre>a[href*=&#34;x&#34;] { display: none; }</pre>`,
		`<code>&lt;script id=&#34;ppc&#34;&gt;</code>`,
		`<p class="empty">nothing injected for this variant</p>`,
		`<section id="script"><h2>Client script configuration</h2><pre>{`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page lacks %s", want)
		}
	}
}

func TestRulesJSONCampaignVariant(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, "http://127.0.0.1:1")
	resp := serve(t, s, httptest.NewRequest(http.MethodGet, RulesPath+"?campaign=1&format=json", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var view rulesView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !view.Campaign {
		t.Fatalf("campaign = false, want true")
	}
	if len(view.Stages) != len(inject.Stages) {
		t.Fatalf("stages = %d, want %d", len(view.Stages), len(inject.Stages))
	}
	footer := view.Stages[1]
	if footer.Name != string(inject.StageFooter) || len(footer.Injectors) != 1 || footer.Injectors[0].Name != clientjs.InjectorName {
		t.Fatalf("unexpected footer stage %+v", footer)
	}
	if footer.Injectors[0].Element != "script" {
		t.Fatalf("footer element = %q", footer.Injectors[0].Element)
	}
	var menu string
	for _, in := range view.Stages[0].Injectors {
		if in.Name == styles.RuleMenuToggle {
			menu = in.Body
		}
	}
	if strings.Count(menu, ".menu-toggle") < 4 {
		t.Fatalf("campaign menu rule missing: %q", menu)
	}
	if view.Script.WidgetSelector == "" || view.Script.RevealDelayMS != 5000 {
		t.Fatalf("unexpected script config %+v", view.Script)
	}
}

func TestRulesRejectsPost(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, "http://127.0.0.1:1")
	resp := serve(t, s, httptest.NewRequest(http.MethodPost, RulesPath, nil))
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestRewriteCacheEvictsOldest(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: time.Unix(100, 0)}
	c := newRewriteCache(clock.Now, time.Minute, 2)

	c.Store("a", []byte("A"), Outcome{Open: true})
	clock.Advance(time.Second)
	c.Store("b", []byte("B"), Outcome{Open: true})
	clock.Advance(time.Second)
	c.Store("c", []byte("C"), Outcome{Open: true})

	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	if _, _, ok := c.Select("a"); ok {
		t.Fatalf("oldest entry survived eviction")
	}
	if data, _, ok := c.Select("c"); !ok || string(data) != "C" {
		t.Fatalf("Select(c) = %q, %v", data, ok)
	}
}

func TestRewriteCacheDisabled(t *testing.T) {
	t.Parallel()
	c := newRewriteCache(nil, -1, 10)
	c.Store("a", []byte("A"), Outcome{})
	if _, _, ok := c.Select("a"); ok {
		t.Fatalf("disabled cache returned an entry")
	}
	var nilCache *rewriteCache
	nilCache.Store("a", nil, Outcome{})
	if nilCache.Len() != 0 {
		t.Fatalf("nil cache has entries")
	}
}

func TestCacheKeySeparatesVariants(t *testing.T) {
	t.Parallel()
	body := []byte("<html></html>")
	keys := map[string]bool{
		cacheKey(body, false, 1): true,
		cacheKey(body, true, 1):  true,
		cacheKey(body, false, 2): true,
	}
	if len(keys) != 3 {
		t.Fatalf("cache keys collide: %v", keys)
	}
}
