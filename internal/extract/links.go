package extract

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/site-ingest/internal/dom"
)

var isNavRegion = dom.Any(dom.Tag("nav", "header", "footer"), dom.AttrEquals("role", "navigation"))

// NavLinks returns the distinct same-origin paths linked from the navigation
// regions of doc (nav, header, footer and role=navigation), in document
// order. Hrefs resolve against origin; the root path, same-page anchors and
// javascript: pseudo-URLs are ignored.
func NavLinks(doc *dom.Document, origin *url.URL) []string {
	if doc == nil || origin == nil {
		return nil
	}
	base := &url.URL{Scheme: origin.Scheme, Host: origin.Host, Path: "/"}

	var paths []string
	seen := make(map[string]struct{})
	anchors := doc.FindAll(func(n *dom.Node) bool {
		return n.Is("a") && n.HasAncestor(isNavRegion)
	})
	for _, a := range anchors {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			continue
		}
		u, err := base.Parse(href)
		if err != nil || !SameOrigin(u, origin) {
			continue
		}
		path := u.EscapedPath()
		if path == "" {
			path = "/"
		}
		if path == "/" {
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}
	return paths
}

// SameOrigin compares scheme, host and effective port.
func SameOrigin(a, b *url.URL) bool {
	if !strings.EqualFold(a.Scheme, b.Scheme) || !strings.EqualFold(a.Hostname(), b.Hostname()) {
		return false
	}
	return effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}
