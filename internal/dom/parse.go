package dom

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Parse builds a Document from serialized HTML.
func Parse(raw []byte) (*Document, error) {
	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc := &Document{Root: &Node{Kind: DocumentNode}}
	for _, h := range gq.Nodes {
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			doc.Root.Append(convert(c))
		}
	}

	doc.Title = strings.TrimSpace(gq.Find("head title").First().Text())
	if doc.Title == "" {
		doc.Title = strings.TrimSpace(gq.Find("title").First().Text())
	}
	gq.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(s.AttrOr("name", ""), "description") {
			return true
		}
		if content, ok := s.Attr("content"); ok {
			doc.MetaDescription = &content
		}
		return false
	})
	return doc, nil
}

func convert(h *html.Node) *Node {
	switch h.Type {
	case html.ElementNode:
		n := &Node{Kind: ElementNode, Tag: strings.ToLower(h.Data)}
		if len(h.Attr) > 0 {
			n.Attrs = make(map[string]string, len(h.Attr))
			for _, a := range h.Attr {
				n.Attrs[strings.ToLower(a.Key)] = a.Val
			}
		}
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			n.Append(convert(c))
		}
		return n
	case html.TextNode:
		return &Node{Kind: TextNode, Text: h.Data}
	default:
		return nil
	}
}
