// Package gate decides whether a proxied response renders the site's front
// page. Every injection is conditional on an open gate; a closed gate means
// the response leaves the proxy untouched.
package gate

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	"ppcgate/internal/dom"
)

const (
	DefaultPath      = "/"
	DefaultBodyClass = "home"
)

// Page is the per-request view of a rendered page. It is built fresh for
// every response and never stored.
type Page struct {
	Method string
	Path   string
	Query  url.Values
	Doc    *html.Node
	Body   *html.Node
}

// NewPage captures the request identity and the parsed document.
func NewPage(r *http.Request, doc *html.Node) *Page {
	p := &Page{Doc: doc, Query: url.Values{}}
	if r != nil {
		p.Method = r.Method
		if r.URL != nil {
			p.Path = r.URL.Path
			p.Query = r.URL.Query()
		}
	}
	if doc != nil {
		p.Body = dom.FindFirstByTag(doc, "body")
	}
	return p
}

// Gate is a predicate over the current page.
type Gate interface {
	Open(p *Page) bool
}

// Func adapts a plain function to Gate.
type Func func(p *Page) bool

func (f Func) Open(p *Page) bool { return f(p) }

// FrontPage opens for GET/HEAD requests of Path whose body carries BodyClass.
// An empty BodyClass skips the markup check.
type FrontPage struct {
	Path      string
	BodyClass string
}

// NewFrontPage returns the gate with defaults filled in.
func NewFrontPage(homePath, bodyClass string) FrontPage {
	homePath = strings.TrimSpace(homePath)
	if homePath == "" {
		homePath = DefaultPath
	}
	return FrontPage{Path: homePath, BodyClass: strings.TrimSpace(bodyClass)}
}

// Matches is the request-only half of Open. The proxy uses it to skip
// buffering responses that can never pass the gate.
func (g FrontPage) Matches(r *http.Request) bool {
	if r == nil || r.URL == nil {
		return false
	}
	return g.matches(r.Method, r.URL.Path)
}

func (g FrontPage) matches(method, p string) bool {
	switch method {
	case "", http.MethodGet, http.MethodHead:
	default:
		return false
	}
	return cleanPath(p) == cleanPath(g.Path)
}

// Open implements Gate.
func (g FrontPage) Open(p *Page) bool {
	if p == nil || !g.matches(p.Method, p.Path) {
		return false
	}
	if g.BodyClass == "" {
		return true
	}
	return dom.HasClass(p.Body, g.BodyClass)
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
