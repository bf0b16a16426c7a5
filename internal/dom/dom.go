// Package dom holds the small set of x/net/html tree helpers shared by the
// gate, campaign and injection packages.
package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// GetAttr returns the value of the named attribute or "".
func GetAttr(n *html.Node, name string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

// SetAttr replaces the named attribute, adding it when missing.
func SetAttr(n *html.Node, name, val string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: val})
}

// FindFirstByTag walks the tree depth first and returns the first element
// with the given tag name.
func FindFirstByTag(n *html.Node, name string) *html.Node {
	if n == nil {
		return nil
	}
	var dfs func(*html.Node) *html.Node
	dfs = func(x *html.Node) *html.Node {
		if x.Type == html.ElementNode && strings.EqualFold(x.Data, name) {
			return x
		}
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			if r := dfs(c); r != nil {
				return r
			}
		}
		return nil
	}
	return dfs(n)
}

// FindByAttr returns the first element whose attribute name equals val.
func FindByAttr(n *html.Node, name, val string) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if strings.EqualFold(a.Key, name) && a.Val == val {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if r := FindByAttr(c, name, val); r != nil {
			return r
		}
	}
	return nil
}

// Classes splits the class attribute into its tokens.
func Classes(n *html.Node) []string {
	return strings.Fields(GetAttr(n, "class"))
}

// HasClass reports whether n carries the class token want.
// Class tokens are compared case-sensitively, like browsers do in standards mode.
func HasClass(n *html.Node, want string) bool {
	want = strings.TrimSpace(want)
	if n == nil || want == "" {
		return false
	}
	for _, c := range Classes(n) {
		if c == want {
			return true
		}
	}
	return false
}

// AddClass appends cls to the class attribute unless it is already present.
// It reports whether the attribute changed.
func AddClass(n *html.Node, cls string) bool {
	cls = strings.TrimSpace(cls)
	if n == nil || n.Type != html.ElementNode || cls == "" || HasClass(n, cls) {
		return false
	}
	classes := append(Classes(n), cls)
	SetAttr(n, "class", strings.Join(classes, " "))
	return true
}

// TextContent concatenates the text children of n.
func TextContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
		case html.ElementNode:
			b.WriteString(TextContent(c))
		}
	}
	return b.String()
}
