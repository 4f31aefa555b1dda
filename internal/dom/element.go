package dom

import (
	"sort"
	"strings"

	"popengine/internal/popup"
)

// Element is a node of the in-memory page.
type Element struct {
	doc      *Document
	tag      string
	attrs    map[string]string
	classes  []string
	style    map[string]string
	text     string
	parent   *Element
	children []*Element

	listeners map[string][]*listener
}

func (e *Element) Tag() string { return e.tag }

func (e *Element) ID() string { return e.attrs["id"] }

func (e *Element) SetID(id string) *Element {
	e.attrs["id"] = id
	return e
}

func (e *Element) Text() string { return e.text }

func (e *Element) SetText(s string) *Element {
	e.text = s
	return e
}

func (e *Element) Parent() *Element { return e.parent }

func (e *Element) Children() []*Element { return append([]*Element(nil), e.children...) }

func (e *Element) HasClass(class string) bool {
	for _, c := range e.classes {
		if c == class {
			return true
		}
	}
	return false
}

func (e *Element) AddClass(classes ...string) *Element {
	for _, c := range classes {
		for _, f := range strings.Fields(c) {
			if !e.HasClass(f) {
				e.classes = append(e.classes, f)
			}
		}
	}
	return e
}

func (e *Element) RemoveClass(class string) {
	out := e.classes[:0]
	for _, c := range e.classes {
		if c != class {
			out = append(out, c)
		}
	}
	e.classes = out
}

func (e *Element) ClassName() string { return strings.Join(e.classes, " ") }

func (e *Element) Attr(name string) (string, bool) {
	if name == "class" {
		return e.ClassName(), len(e.classes) > 0
	}
	v, ok := e.attrs[name]
	return v, ok
}

func (e *Element) SetAttr(name, value string) {
	if name == "class" {
		e.classes = nil
		e.AddClass(value)
		return
	}
	e.attrs[name] = value
}

// With sets an attribute and returns e for chaining.
func (e *Element) With(name, value string) *Element {
	e.SetAttr(name, value)
	return e
}

func (e *Element) RemoveAttr(name string) {
	if name == "class" {
		e.classes = nil
		return
	}
	delete(e.attrs, name)
}

// AttrNames returns the attribute names in sorted order.
func (e *Element) AttrNames() []string {
	out := make([]string, 0, len(e.attrs))
	for k := range e.attrs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// StyleProperty returns the computed value of a custom property. Custom
// properties inherit, so ancestors are consulted.
func (e *Element) StyleProperty(name string) string {
	for n := e; n != nil; n = n.parent {
		if v, ok := n.style[name]; ok {
			return v
		}
	}
	return ""
}

// InlineStyle returns the value set on e itself.
func (e *Element) InlineStyle(name string) (string, bool) {
	v, ok := e.style[name]
	return v, ok
}

func (e *Element) SetStyleProperty(name, value string) { e.style[name] = value }

func (e *Element) RemoveStyleProperty(name string) { delete(e.style, name) }

// Query returns the first descendant matching ".class" or "[attr]".
func (e *Element) Query(selector string) (popup.Element, bool) {
	if el := e.QueryElement(selector); el != nil {
		return el, true
	}
	return nil, false
}

func (e *Element) QueryElement(selector string) *Element {
	match := matcher(selector)
	if match == nil {
		return nil
	}
	var found *Element
	e.walk(func(n *Element) bool {
		if n != e && match(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

func matcher(selector string) func(*Element) bool {
	switch {
	case strings.HasPrefix(selector, "."):
		class := selector[1:]
		return func(n *Element) bool { return n.HasClass(class) }
	case strings.HasPrefix(selector, "[") && strings.HasSuffix(selector, "]"):
		attr := selector[1 : len(selector)-1]
		return func(n *Element) bool { _, ok := n.attrs[attr]; return ok }
	case strings.HasPrefix(selector, "#"):
		id := selector[1:]
		return func(n *Element) bool { return n.ID() == id }
	case selector != "":
		tag := strings.ToLower(selector)
		return func(n *Element) bool { return n.tag == tag }
	}
	return nil
}

// Closest returns the nearest ancestor-or-self carrying attr.
func (e *Element) Closest(attr string) (popup.Element, bool) {
	for n := e; n != nil; n = n.parent {
		if _, ok := n.attrs[attr]; ok {
			return n, true
		}
	}
	return nil, false
}

// walk visits e and its descendants depth-first until fn returns false.
func (e *Element) walk(fn func(*Element) bool) bool {
	if !fn(e) {
		return false
	}
	for _, c := range e.children {
		if !c.walk(fn) {
			return false
		}
	}
	return true
}

func (e *Element) AppendChild(children ...*Element) *Element {
	for _, c := range children {
		if c == nil {
			continue
		}
		c.Remove()
		c.parent = e
		e.children = append(e.children, c)
	}
	return e
}

// Remove detaches e from its parent.
func (e *Element) Remove() {
	p := e.parent
	if p == nil {
		return
	}
	for i, c := range p.children {
		if c == e {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	e.parent = nil
}

// Connected reports whether e is attached to its document.
func (e *Element) Connected() bool {
	for n := e; n != nil; n = n.parent {
		if n == e.doc.root {
			return true
		}
	}
	return false
}

func (e *Element) focusable() bool {
	switch e.tag {
	case "button", "input", "select", "textarea":
		return true
	case "a":
		_, ok := e.attrs["href"]
		return ok
	}
	v, ok := e.attrs["tabindex"]
	return ok && v != "-1"
}
