package dom

import (
	"html"
	"sort"
	"strings"
)

// PlaceholderClass marks empty-state children ("No recent activity") that are
// dropped as soon as a real child is prepended.
const PlaceholderClass = "placeholder"

// Element is a named container: everything needed to emit its outer HTML.
type Element struct {
	ID      string
	Tag     string
	Classes []string
	Attrs   map[string]string
	HTML    string
}

// Fragment is the output of a render function: whole elements that replace
// their previous versions when applied.
type Fragment []Element

// New builds an element. Tag defaults to div.
func New(id, tag, innerHTML string, classes ...string) Element {
	if tag == "" {
		tag = "div"
	}
	return Element{ID: id, Tag: tag, Classes: classes, HTML: innerHTML}
}

// WithAttr returns a copy of e with key set.
func (e Element) WithAttr(key, value string) Element {
	attrs := make(map[string]string, len(e.Attrs)+1)
	for k, v := range e.Attrs {
		attrs[k] = v
	}
	attrs[key] = value
	e.Attrs = attrs
	return e
}

// HasClass reports whether e carries class c.
func (e Element) HasClass(c string) bool {
	for _, existing := range e.Classes {
		if existing == c {
			return true
		}
	}
	return false
}

// OuterHTML renders e without expanding slots. Attributes are emitted in
// sorted order so equal elements render to equal bytes.
func (e Element) OuterHTML() string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(e.Tag)
	if e.ID != "" {
		writeAttr(&b, "id", e.ID)
	}
	if len(e.Classes) > 0 {
		writeAttr(&b, "class", strings.Join(e.Classes, " "))
	}
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeAttr(&b, k, e.Attrs[k])
	}
	b.WriteByte('>')
	b.WriteString(e.HTML)
	b.WriteString("</")
	b.WriteString(e.Tag)
	b.WriteByte('>')
	return b.String()
}

func (e Element) clone() Element {
	c := e
	c.Classes = append([]string(nil), e.Classes...)
	if e.Attrs != nil {
		c.Attrs = make(map[string]string, len(e.Attrs))
		for k, v := range e.Attrs {
			c.Attrs[k] = v
		}
	}
	return c
}

func writeAttr(b *strings.Builder, key, value string) {
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteString(`="`)
	b.WriteString(html.EscapeString(value))
	b.WriteByte('"')
}

// Slot is a marker embedded in a parent's HTML. OuterHTML on the document
// replaces it with the referenced element, so the child can be patched
// without re-rendering the parent.
func Slot(id string) string {
	return `<slot data-ref="` + html.EscapeString(id) + `"></slot>`
}
