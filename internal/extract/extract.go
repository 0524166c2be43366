// Package extract holds the page heuristics of the ingestion engine: tiered
// section extraction, heading fingerprints, navigation link discovery and
// soft-404 detection. Everything here is a pure function over a dom.Document.
package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/site-ingest/internal/crawler"
	"github.com/JakeFAU/site-ingest/internal/dom"
	"github.com/JakeFAU/site-ingest/internal/textutil"
)

// Tier names the extraction strategy that produced a page's sections.
type Tier string

// Extraction tiers, tried in order.
const (
	TierStructured Tier = "structured"
	TierHeadings   Tier = "headings"
	TierWholePage  Tier = "whole_page"
	TierNone       Tier = "none"
)

// DefaultHeading labels the whole-page section of an untitled document.
const DefaultHeading = "Main Content"

const (
	structuredMaxChars = 2000
	structuredMinChars = 20
	dedupePrefixChars  = 100
	bucketMinChars     = 20
	bucketMaxChars     = 2000
	wholePageMinChars  = 50
	wholePageMaxChars  = 5000
)

var (
	headingTags = []string{"h1", "h2", "h3", "h4", "h5", "h6"}
	bucketTags  = []string{"h1", "h2", "h3"}
)

// Page extracts the title, meta description and sections of a rendered
// document served at path. An untitled document is titled by its path.
func Page(doc *dom.Document, path string) (crawler.RawExtraction, Tier) {
	sections, tier := Sections(doc)
	title := ""
	var meta *string
	if doc != nil {
		title = doc.Title
		meta = doc.MetaDescription
	}
	if title == "" {
		title = path
	}
	return crawler.RawExtraction{
		URL:             path,
		Title:           title,
		MetaDescription: meta,
		Sections:        sections,
	}, tier
}

// Sections runs the extraction tiers in order and returns the output of the
// first one that yields anything.
func Sections(doc *dom.Document) ([]crawler.RawSection, Tier) {
	if doc == nil || doc.Root == nil {
		return nil, TierNone
	}
	if s := structured(doc); len(s) > 0 {
		return s, TierStructured
	}
	if s := headingBuckets(doc); len(s) > 0 {
		return s, TierHeadings
	}
	if s := wholePage(doc); len(s) > 0 {
		return s, TierWholePage
	}
	return nil, TierNone
}

func isStructuredCandidate(n *dom.Node) bool {
	switch n.Tag {
	case "section", "article":
		return true
	case "script", "style", "link", "head", "html":
		return false
	}
	if _, ok := n.Attr("id"); ok {
		return !n.HasAncestor(dom.Tag("head"))
	}
	return n.Tag == "div" && n.Parent.Is("main")
}

// structured treats sections, articles, anchored elements and the top-level
// blocks of <main> as sections.
func structured(doc *dom.Document) []crawler.RawSection {
	var out []crawler.RawSection
	seen := make(map[string]struct{})
	for _, el := range doc.FindAll(isStructuredCandidate) {
		text := strings.TrimSpace(textutil.Truncate(el.InnerText(), structuredMaxChars))
		if utf8.RuneCountInString(text) < structuredMinChars {
			continue
		}

		headingText := ""
		if h := el.Find(dom.Tag(headingTags...)); h != nil {
			headingText = h.InnerText()
		}
		key := headingText + textutil.Truncate(text, dedupePrefixChars)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		out = append(out, crawler.RawSection{
			ID:      anchor(el, "data-section"),
			Heading: strings.TrimSpace(headingText),
			Content: text,
		})
	}
	return out
}

// headingBuckets groups the sibling elements following each h1-h3 of the
// main region under that heading.
func headingBuckets(doc *dom.Document) []crawler.RawSection {
	scope := mainRegion(doc, true)
	if scope == nil {
		return nil
	}
	var out []crawler.RawSection
	for _, h := range scope.FindAll(dom.Tag(bucketTags...)) {
		var b strings.Builder
		for sib := h.NextElementSibling(); sib != nil && !sib.Is(bucketTags...); sib = sib.NextElementSibling() {
			b.WriteString(sib.InnerText())
			b.WriteByte(' ')
		}
		text := strings.TrimSpace(b.String())
		if utf8.RuneCountInString(text) <= bucketMinChars {
			continue
		}
		out = append(out, crawler.RawSection{
			ID:      anchor(h, ""),
			Heading: strings.TrimSpace(h.InnerText()),
			Content: textutil.Truncate(text, bucketMaxChars),
		})
	}
	return out
}

// wholePage emits the full visible text as a single section.
func wholePage(doc *dom.Document) []crawler.RawSection {
	scope := mainRegion(doc, false)
	if scope == nil {
		return nil
	}
	text := strings.TrimSpace(scope.InnerText())
	if utf8.RuneCountInString(text) <= wholePageMinChars {
		return nil
	}
	heading := doc.Title
	if heading == "" {
		heading = DefaultHeading
	}
	return []crawler.RawSection{{
		Heading: heading,
		Content: textutil.Truncate(text, wholePageMaxChars),
	}}
}

// mainRegion returns <main>, then optionally [role=main], then <body>.
func mainRegion(doc *dom.Document, withRole bool) *dom.Node {
	if m := doc.Find(dom.Tag("main")); m != nil {
		return m
	}
	if withRole {
		if m := doc.Find(dom.AttrEquals("role", "main")); m != nil {
			return m
		}
	}
	return doc.Body()
}

func anchor(n *dom.Node, fallbackAttr string) string {
	id := n.ID()
	if id == "" && fallbackAttr != "" {
		id, _ = n.Attr(fallbackAttr)
	}
	if id == "" {
		return ""
	}
	return "#" + id
}
