package dom

import (
	"popengine/internal/popup"
)

// Document is an in-memory page implementing popup.Document. It is not safe
// for concurrent use; drive it from the event loop.
type Document struct {
	// node is the document itself: the top of every propagation path.
	node *Element
	root *Element
	body *Element

	scroll popup.ScrollMetrics
	touch  bool

	focused      *Element
	scrollLocked int

	events []Dispatched
}

// Dispatched is one lifecycle event fired on the document.
type Dispatched struct {
	Name   string
	Detail popup.Detail
}

type listener struct {
	fn      func(popup.Event)
	capture bool
	passive bool
	removed bool
}

func NewDocument() *Document {
	d := &Document{}
	d.node = d.CreateElement("#document")
	d.root = d.CreateElement("html")
	d.body = d.CreateElement("body")
	d.node.AppendChild(d.root)
	d.root.AppendChild(d.body)
	d.scroll = popup.ScrollMetrics{ScrollHeight: 800, ViewportHeight: 800}
	return d
}

func (d *Document) CreateElement(tag string) *Element {
	return &Element{
		doc:   d,
		tag:   tag,
		attrs: map[string]string{},
		style: map[string]string{},
	}
}

func (d *Document) Root() *Element { return d.root }

func (d *Document) Body() *Element { return d.body }

// Find returns the attached element with id, or nil.
func (d *Document) Find(id string) *Element {
	if id == "" {
		return nil
	}
	var found *Element
	d.root.walk(func(n *Element) bool {
		if n.ID() == id {
			found = n
			return false
		}
		return true
	})
	return found
}

func (d *Document) ElementByID(id string) (popup.Element, bool) {
	if el := d.Find(id); el != nil {
		return el, true
	}
	return nil, false
}

func (d *Document) Scroll() popup.ScrollMetrics { return d.scroll }

// SetPage sets the scrollable height and viewport height.
func (d *Document) SetPage(scrollHeight, viewport float64) {
	d.scroll.ScrollHeight = scrollHeight
	d.scroll.ViewportHeight = viewport
	d.clampScroll()
}

func (d *Document) clampScroll() {
	max := d.scroll.ScrollHeight - d.scroll.ViewportHeight
	if max < 0 {
		max = 0
	}
	if d.scroll.ScrollY > max {
		d.scroll.ScrollY = max
	}
	if d.scroll.ScrollY < 0 {
		d.scroll.ScrollY = 0
	}
}

// SetScrollY positions the page without firing a scroll event.
func (d *Document) SetScrollY(y float64) {
	d.scroll.ScrollY = y
	d.clampScroll()
}

func (d *Document) TouchPrimary() bool { return d.touch }

func (d *Document) SetTouchPrimary(v bool) { d.touch = v }

// Listen attaches fn to the document, or to the root element when
// opts.Root is set.
func (d *Document) Listen(kind string, opts popup.ListenOptions, fn func(popup.Event)) func() {
	target := d.node
	if opts.Root {
		target = d.root
	}
	return target.AddEventListener(kind, opts.Capture, opts.Passive, fn)
}

// AddEventListener registers fn on e and returns its remover.
func (e *Element) AddEventListener(kind string, capture, passive bool, fn func(popup.Event)) func() {
	if e.listeners == nil {
		e.listeners = map[string][]*listener{}
	}
	l := &listener{fn: fn, capture: capture, passive: passive}
	e.listeners[kind] = append(e.listeners[kind], l)
	return func() {
		if l.removed {
			return
		}
		l.removed = true
		list := e.listeners[kind]
		for i, x := range list {
			if x == l {
				e.listeners[kind] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

// ListenerCount returns the live listeners of kind on the document (or the
// root element when root is set).
func (d *Document) ListenerCount(kind string, root bool) int {
	target := d.node
	if root {
		target = d.root
	}
	return len(target.listeners[kind])
}

// Dispatch fires a bubbling lifecycle event on the document and records it.
func (d *Document) Dispatch(name string, detail popup.Detail) {
	d.events = append(d.events, Dispatched{Name: name, Detail: detail})
	d.fire(d.node, popup.Event{Type: name, Detail: detail})
}

// Events returns every lifecycle event dispatched so far.
func (d *Document) Events() []Dispatched { return append([]Dispatched(nil), d.events...) }

// EventNames returns "name#popupId" for every dispatched lifecycle event.
func (d *Document) EventNames() []string {
	out := make([]string, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Name+"#"+e.Detail.PopupID)
	}
	return out
}

// Fire dispatches ev at target with capture, target and bubble phases. It
// reports whether a listener swallowed the event.
func (d *Document) Fire(target *Element, ev popup.Event) bool {
	if target == nil {
		target = d.node
	}
	return d.fire(target, ev)
}

func (d *Document) fire(target *Element, ev popup.Event) bool {
	if ev.Target == nil && target != d.node {
		ev.Target = target
	}
	var path []*Element
	for n := target; n != nil; n = n.parent {
		path = append(path, n)
	}

	var stopped, immediate, prevented bool
	ev.Swallow = func() {
		stopped, immediate, prevented = true, true, true
	}

	invoke := func(n *Element, capturePhase, atTarget bool) {
		list := append([]*listener(nil), n.listeners[ev.Type]...)
		for _, l := range list {
			if immediate {
				return
			}
			if l.removed {
				continue
			}
			if !atTarget && l.capture != capturePhase {
				continue
			}
			l.fn(ev)
		}
	}

	for i := len(path) - 1; i > 0 && !stopped; i-- {
		invoke(path[i], true, false)
	}
	if !stopped {
		invoke(path[0], true, true)
	}
	for i := 1; i < len(path) && !stopped; i++ {
		invoke(path[i], false, false)
	}
	return prevented
}

// ScrollTo moves the page and fires a scroll event on the document.
func (d *Document) ScrollTo(y float64) {
	d.SetScrollY(y)
	d.fire(d.node, popup.Event{Type: "scroll"})
}

// MouseLeave fires mouseleave on the root element with the pointer at clientY.
func (d *Document) MouseLeave(clientY float64) {
	d.fire(d.root, popup.Event{Type: "mouseleave", ClientY: clientY})
}

// Click fires a click at el.
func (d *Document) Click(el *Element) bool {
	return d.fire(el, popup.Event{Type: "click"})
}

// KeyDown fires keydown at the focused element (or body) and reports whether
// it was swallowed.
func (d *Document) KeyDown(key string) bool {
	target := d.focused
	if target == nil || !target.Connected() {
		target = d.body
	}
	return d.fire(target, popup.Event{Type: "keydown", Key: key})
}

func (d *Document) Focused() *Element { return d.focused }

func (d *Document) Focus(el *Element) { d.focused = el }

// ScrollLocked reports whether a modal currently disables page scroll.
func (d *Document) ScrollLocked() bool { return d.scrollLocked > 0 }

func (d *Document) lockScroll() { d.scrollLocked++ }

func (d *Document) unlockScroll() {
	if d.scrollLocked > 0 {
		d.scrollLocked--
	}
}
