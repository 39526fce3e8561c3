package dom

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxSlotDepth bounds slot expansion so a self-referencing slot cannot loop.
const maxSlotDepth = 8

var slotPattern = regexp.MustCompile(`<slot data-ref="([^"]+)"></slot>`)

// Document is a concurrency-safe set of named elements. Render functions
// replace elements wholesale through Apply; patches touch a single element.
type Document struct {
	mu    sync.RWMutex
	order []string
	elems map[string]Element
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{elems: make(map[string]Element)}
}

// Apply replaces every element of f. Elements not in f are left untouched.
func (d *Document) Apply(f Fragment) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, e := range f {
		if _, ok := d.elems[e.ID]; !ok {
			d.order = append(d.order, e.ID)
		}
		d.elems[e.ID] = e.clone()
	}
}

// Element returns a copy of the element with the given id.
func (d *Document) Element(id string) (Element, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.elems[id]
	if !ok {
		return Element{}, false
	}
	return e.clone(), true
}

// IDs returns element ids in first-applied order.
func (d *Document) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.order...)
}

// SetHTML replaces the inner HTML of id.
func (d *Document) SetHTML(id, inner string) error {
	return d.mutate(id, func(e *Element) error {
		e.HTML = inner
		return nil
	})
}

// SetText replaces the inner HTML of id with escaped text.
func (d *Document) SetText(id, text string) error {
	return d.SetHTML(id, html.EscapeString(text))
}

// SetAttr sets a single attribute on id.
func (d *Document) SetAttr(id, key, value string) error {
	return d.mutate(id, func(e *Element) error {
		*e = e.WithAttr(key, value)
		return nil
	})
}

// AddClass adds c to id if missing.
func (d *Document) AddClass(id, c string) error {
	return d.mutate(id, func(e *Element) error {
		if !e.HasClass(c) {
			e.Classes = append(e.Classes, c)
		}
		return nil
	})
}

// RemoveClass removes c from id.
func (d *Document) RemoveClass(id, c string) error {
	return d.mutate(id, func(e *Element) error {
		kept := e.Classes[:0]
		for _, existing := range e.Classes {
			if existing != c {
				kept = append(kept, existing)
			}
		}
		e.Classes = kept
		return nil
	})
}

// ToggleClass flips c on id and reports whether it is now present.
func (d *Document) ToggleClass(id, c string) (bool, error) {
	var present bool
	err := d.mutate(id, func(e *Element) error {
		if e.HasClass(c) {
			kept := e.Classes[:0]
			for _, existing := range e.Classes {
				if existing != c {
					kept = append(kept, existing)
				}
			}
			e.Classes = kept
			return nil
		}
		e.Classes = append(e.Classes, c)
		present = true
		return nil
	})
	return present, err
}

// PrependChild parses child as HTML and inserts it before the existing
// children of id. Placeholder children are dropped, and when max > 0 only
// the first max element children are kept.
func (d *Document) PrependChild(id, child string, max int) error {
	return d.mutate(id, func(e *Element) error {
		context := &xhtml.Node{Type: xhtml.ElementNode, Data: e.Tag, DataAtom: atom.Lookup([]byte(e.Tag))}

		added, err := xhtml.ParseFragment(strings.NewReader(child), context)
		if err != nil {
			return fmt.Errorf("parse child: %w", err)
		}
		existing, err := xhtml.ParseFragment(strings.NewReader(e.HTML), context)
		if err != nil {
			return fmt.Errorf("parse %s: %w", id, err)
		}

		var buf bytes.Buffer
		kept := 0
		for _, n := range append(added, existing...) {
			if n.Type == xhtml.ElementNode {
				if hasClassAttr(n, PlaceholderClass) {
					continue
				}
				if max > 0 && kept >= max {
					continue
				}
				kept++
			} else if n.Type == xhtml.TextNode && strings.TrimSpace(n.Data) == "" {
				continue
			}
			if err := xhtml.Render(&buf, n); err != nil {
				return fmt.Errorf("render %s: %w", id, err)
			}
		}
		e.HTML = buf.String()
		return nil
	})
}

// ChildCount returns the number of element children of id.
func (d *Document) ChildCount(id string) int {
	e, ok := d.Element(id)
	if !ok {
		return 0
	}
	context := &xhtml.Node{Type: xhtml.ElementNode, Data: e.Tag, DataAtom: atom.Lookup([]byte(e.Tag))}
	nodes, err := xhtml.ParseFragment(strings.NewReader(e.HTML), context)
	if err != nil {
		return 0
	}
	count := 0
	for _, n := range nodes {
		if n.Type == xhtml.ElementNode && !hasClassAttr(n, PlaceholderClass) {
			count++
		}
	}
	return count
}

// OuterHTML renders id with every slot expanded.
func (d *Document) OuterHTML(id string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.expand(id, 0)
}

// Render concatenates the expanded outer HTML of ids.
func (d *Document) Render(ids ...string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var b strings.Builder
	for _, id := range ids {
		b.WriteString(d.expand(id, 0))
		b.WriteByte('\n')
	}
	return b.String()
}

// Text returns the visible text of id (slots expanded), whitespace collapsed.
func (d *Document) Text(id string) string {
	return TextContent(d.OuterHTML(id))
}

// Snapshot returns every element's own outer HTML (slots not expanded),
// keyed by id. Comparing two snapshots shows exactly which elements changed.
func (d *Document) Snapshot() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]string, len(d.elems))
	for id, e := range d.elems {
		out[id] = e.OuterHTML()
	}
	return out
}

func (d *Document) expand(id string, depth int) string {
	e, ok := d.elems[id]
	if !ok {
		return ""
	}
	out := e.OuterHTML()
	if depth >= maxSlotDepth {
		return out
	}
	return slotPattern.ReplaceAllStringFunc(out, func(marker string) string {
		ref := slotPattern.FindStringSubmatch(marker)[1]
		return d.expand(html.UnescapeString(ref), depth+1)
	})
}

func (d *Document) mutate(id string, fn func(*Element) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.elems[id]
	if !ok {
		return fmt.Errorf("element %q: %w", id, ErrNotFound)
	}
	e = e.clone()
	if err := fn(&e); err != nil {
		return err
	}
	d.elems[id] = e
	return nil
}

// TextContent extracts the text of an HTML snippet with whitespace collapsed.
func TextContent(s string) string {
	z := xhtml.NewTokenizer(strings.NewReader(s))
	var parts []string
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
		case xhtml.TextToken:
			parts = append(parts, string(z.Text()))
		}
	}
}

func hasClassAttr(n *xhtml.Node, c string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, f := range strings.Fields(a.Val) {
				if f == c {
					return true
				}
			}
		}
	}
	return false
}
