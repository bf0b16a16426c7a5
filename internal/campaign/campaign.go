// Package campaign recognises visits that arrive from paid-ad clicks.
package campaign

import (
	"net/url"

	"golang.org/x/net/html"

	"ppcgate/internal/dom"
)

// MarkerClass is added to the home page body for campaign traffic.
const MarkerClass = "ppc-traffic"

// Params are the query parameters ad platforms append to landing URLs:
// Google Ads click id, UTM source and campaign, Meta click id.
var Params = []string{"gclid", "utm_source", "utm_campaign", "fbclid"}

// Detect reports whether any campaign parameter, or any of extra, is present.
// Presence is enough; an empty value still counts.
func Detect(q url.Values, extra ...string) bool {
	for _, name := range Params {
		if _, ok := q[name]; ok {
			return true
		}
	}
	for _, name := range extra {
		if _, ok := q[name]; ok {
			return true
		}
	}
	return false
}

// Names returns Params followed by extra, without duplicates.
func Names(extra ...string) []string {
	out := append([]string(nil), Params...)
	for _, name := range extra {
		dup := false
		for _, have := range out {
			if have == name {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, name)
		}
	}
	return out
}

// Mark adds MarkerClass to body when body carries homeClass. Calling it again
// never duplicates the class. It reports whether the body changed.
func Mark(body *html.Node, homeClass string) bool {
	if homeClass != "" && !dom.HasClass(body, homeClass) {
		return false
	}
	return dom.AddClass(body, MarkerClass)
}
