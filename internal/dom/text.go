package dom

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// skipped subtrees never contribute rendered text.
var skipped = map[string]struct{}{
	"script": {}, "style": {}, "noscript": {}, "template": {},
	"head": {}, "iframe": {}, "object": {}, "canvas": {},
}

var blocks = map[string]struct{}{
	"address": {}, "article": {}, "aside": {}, "blockquote": {}, "body": {},
	"dd": {}, "details": {}, "dialog": {}, "div": {}, "dl": {}, "dt": {},
	"fieldset": {}, "figcaption": {}, "figure": {}, "footer": {}, "form": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"header": {}, "hr": {}, "li": {}, "main": {}, "nav": {}, "ol": {},
	"p": {}, "pre": {}, "section": {}, "summary": {}, "table": {},
	"tbody": {}, "thead": {}, "tfoot": {}, "tr": {}, "ul": {}, "option": {},
}

// InnerText approximates the browser's innerText of n: visible text with
// whitespace collapsed inside runs and line breaks between block elements.
func (n *Node) InnerText() string {
	if n == nil {
		return ""
	}
	var b textBuilder
	if n.Kind == TextNode {
		b.write(n.Text)
		return b.String()
	}
	n.writeText(&b, false)
	return b.String()
}

func (n *Node) writeText(b *textBuilder, pre bool) {
	for _, c := range n.Children {
		switch c.Kind {
		case TextNode:
			if pre {
				b.writeRaw(c.Text)
			} else {
				b.write(c.Text)
			}
		case ElementNode:
			if hidden(c) {
				continue
			}
			if c.Tag == "br" {
				b.lineBreak()
				continue
			}
			_, block := blocks[c.Tag]
			if block {
				b.lineBreak()
			} else if c.Tag == "td" || c.Tag == "th" {
				b.space()
			}
			c.writeText(b, pre || c.Tag == "pre" || c.Tag == "textarea")
			if block {
				b.lineBreak()
			}
		}
	}
}

func hidden(n *Node) bool {
	if _, ok := skipped[n.Tag]; ok {
		return true
	}
	if _, ok := n.Attr("hidden"); ok {
		return true
	}
	if t, _ := n.Attr("type"); n.Tag == "input" && strings.EqualFold(t, "hidden") {
		return true
	}
	style, _ := n.Attr("style")
	style = strings.ToLower(strings.ReplaceAll(style, " ", ""))
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

type textBuilder struct {
	sb           strings.Builder
	pendingSpace bool
	pendingBreak bool
}

func (b *textBuilder) space() { b.pendingSpace = true }

func (b *textBuilder) lineBreak() { b.pendingBreak = true }

// flush emits the strongest pending separator. Nothing is emitted before the
// first word so results never start with whitespace.
func (b *textBuilder) flush() {
	if b.sb.Len() > 0 {
		switch {
		case b.pendingBreak:
			b.sb.WriteByte('\n')
		case b.pendingSpace:
			b.sb.WriteByte(' ')
		}
	}
	b.pendingBreak = false
	b.pendingSpace = false
}

func (b *textBuilder) write(s string) {
	if s == "" {
		return
	}
	words := strings.FieldsFunc(s, unicode.IsSpace)
	if len(words) == 0 {
		b.space()
		return
	}
	if r, _ := utf8.DecodeRuneInString(s); unicode.IsSpace(r) {
		b.space()
	}
	b.flush()
	b.sb.WriteString(strings.Join(words, " "))
	if r, _ := utf8.DecodeLastRuneInString(s); unicode.IsSpace(r) {
		b.space()
	}
}

func (b *textBuilder) writeRaw(s string) {
	if strings.TrimSpace(s) == "" && b.sb.Len() == 0 {
		return
	}
	b.flush()
	b.sb.WriteString(s)
}

func (b *textBuilder) String() string {
	return strings.TrimRightFunc(b.sb.String(), unicode.IsSpace)
}
