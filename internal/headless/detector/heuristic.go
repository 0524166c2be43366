// Package detector decides when a statically fetched page must be rendered
// again in a headless browser.
package detector

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/JakeFAU/site-ingest/internal/crawler"
)

const (
	defaultThreshold  = 2048
	minVisibleText    = 50
	scriptCoveragePct = 25
	statusOK          = 200
)

// Heuristic flags client-side rendered shells: empty bodies, framework mount
// points, script-heavy small documents and pages with almost no visible text.
type Heuristic struct {
	BodyLengthThreshold int
}

var _ crawler.HeadlessDetector = (*Heuristic)(nil)

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = defaultThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("__nuxt"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// ShouldPromote decides whether a headless render is required. Error
// statuses are never promoted; the static result already tells the caller
// the page is unusable.
func (h *Heuristic) ShouldPromote(page crawler.Rendered) bool {
	if page.StatusCode != statusOK {
		return false
	}
	body := page.HTML
	switch {
	case len(body) == 0:
		return true
	case len(body) < h.BodyLengthThreshold && scriptPercent(body) >= scriptCoveragePct:
		return true
	case hasMountPoint(body):
		return true
	}
	if page.Document == nil {
		return false
	}
	visible := strings.TrimSpace(page.Document.Body().InnerText())
	return utf8.RuneCountInString(visible) < minVisibleText
}

func hasMountPoint(body []byte) bool {
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptPercent reports the share of body bytes, tags included, that belong
// to script elements. An unclosed script runs to the end of the document.
func scriptPercent(body []byte) int {
	z := html.NewTokenizer(bytes.NewReader(body))
	depth, scripted := 0, 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := len(z.Raw())
		name, _ := z.TagName()
		isScript := string(name) == "script"
		switch {
		case tt == html.StartTagToken && isScript:
			depth++
			scripted += raw
		case tt == html.EndTagToken && isScript && depth > 0:
			depth--
			scripted += raw
		case depth > 0:
			scripted += raw
		}
	}
	return scripted * 100 / len(body)
}
