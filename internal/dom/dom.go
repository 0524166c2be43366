// Package dom is a small structured document model for rendered pages.
//
// Renderers produce a Document; extraction heuristics are pure functions over
// it, so they can be exercised without a browser.
package dom

import "strings"

// Kind identifies the type of a Node.
type Kind uint8

// Node kinds kept by the model. Comments and doctypes are dropped on parse.
const (
	DocumentNode Kind = iota
	ElementNode
	TextNode
)

// Node is an element, text run or document root.
type Node struct {
	Kind     Kind
	Tag      string
	Attrs    map[string]string
	Text     string
	Parent   *Node
	Children []*Node
}

// Document is a rendered page.
type Document struct {
	Root            *Node
	Title           string
	MetaDescription *string
}

// Matcher selects nodes.
type Matcher func(*Node) bool

// NewDocument wraps children in a document root and links parents.
func NewDocument(title string, children ...*Node) *Document {
	root := &Node{Kind: DocumentNode}
	root.Append(children...)
	return &Document{Root: root, Title: title}
}

// Element builds an element node. attrs may be nil.
func Element(tag string, attrs map[string]string, children ...*Node) *Node {
	n := &Node{Kind: ElementNode, Tag: strings.ToLower(tag), Attrs: attrs}
	n.Append(children...)
	return n
}

// Text builds a text node.
func Text(s string) *Node {
	return &Node{Kind: TextNode, Text: s}
}

// Append adds children to n and sets their parent.
func (n *Node) Append(children ...*Node) {
	for _, c := range children {
		if c == nil {
			continue
		}
		c.Parent = n
		n.Children = append(n.Children, c)
	}
}

// IsElement reports whether n is an element.
func (n *Node) IsElement() bool {
	return n != nil && n.Kind == ElementNode
}

// Is reports whether n is an element with one of the given tag names.
func (n *Node) Is(tags ...string) bool {
	if !n.IsElement() {
		return false
	}
	for _, t := range tags {
		if n.Tag == t {
			return true
		}
	}
	return false
}

// Attr returns the value of an attribute.
func (n *Node) Attr(name string) (string, bool) {
	if n == nil || n.Attrs == nil {
		return "", false
	}
	v, ok := n.Attrs[name]
	return v, ok
}

// ID returns the id attribute, or "".
func (n *Node) ID() string {
	v, _ := n.Attr("id")
	return v
}

// ElementChildren returns the element children of n in order.
func (n *Node) ElementChildren() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.IsElement() {
			out = append(out, c)
		}
	}
	return out
}

// NextElementSibling returns the next element after n under the same parent.
func (n *Node) NextElementSibling() *Node {
	if n == nil || n.Parent == nil {
		return nil
	}
	siblings := n.Parent.Children
	for i, c := range siblings {
		if c != n {
			continue
		}
		for _, next := range siblings[i+1:] {
			if next.IsElement() {
				return next
			}
		}
		return nil
	}
	return nil
}

// Walk visits the descendants of n in document order. Returning false from
// fn skips the subtree of that node.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	for _, c := range n.Children {
		if fn(c) {
			c.Walk(fn)
		}
	}
}

// FindAll returns every descendant element of n matching m, in document order.
func (n *Node) FindAll(m Matcher) []*Node {
	var out []*Node
	n.Walk(func(c *Node) bool {
		if c.IsElement() && m(c) {
			out = append(out, c)
		}
		return true
	})
	return out
}

// Find returns the first descendant element of n matching m.
func (n *Node) Find(m Matcher) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if found != nil {
			return false
		}
		if c.IsElement() && m(c) {
			found = c
			return false
		}
		return true
	})
	return found
}

// HasAncestor reports whether some ancestor element of n matches m.
func (n *Node) HasAncestor(m Matcher) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.IsElement() && m(p) {
			return true
		}
	}
	return false
}

// FindAll returns every element of the document matching m.
func (d *Document) FindAll(m Matcher) []*Node {
	if d == nil || d.Root == nil {
		return nil
	}
	return d.Root.FindAll(m)
}

// Find returns the first element of the document matching m.
func (d *Document) Find(m Matcher) *Node {
	if d == nil || d.Root == nil {
		return nil
	}
	return d.Root.Find(m)
}

// Body returns the <body> element, falling back to the root.
func (d *Document) Body() *Node {
	if body := d.Find(Tag("body")); body != nil {
		return body
	}
	if d == nil {
		return nil
	}
	return d.Root
}

// Tag matches elements by tag name.
func Tag(tags ...string) Matcher {
	return func(n *Node) bool { return n.Is(tags...) }
}

// AttrEquals matches elements whose attribute equals value.
func AttrEquals(name, value string) Matcher {
	return func(n *Node) bool {
		v, ok := n.Attr(name)
		return ok && v == value
	}
}

// Any matches when at least one matcher does.
func Any(ms ...Matcher) Matcher {
	return func(n *Node) bool {
		for _, m := range ms {
			if m(n) {
				return true
			}
		}
		return false
	}
}
