//go:build js && wasm

// Package jsdom binds the popup engine to a real browser through syscall/js:
// the page document, MicroModal as renderer, localStorage for reappearance
// records and setTimeout as loop.
package jsdom

import (
	"strings"
	"syscall/js"

	"popengine/internal/popup"
)

type Document struct {
	win js.Value
	doc js.Value
}

func NewDocument() *Document {
	w := js.Global()
	return &Document{win: w, doc: w.Get("document")}
}

// Ready runs fn once the DOM is parsed. fn runs synchronously when the
// document has already loaded.
func (d *Document) Ready(fn func()) {
	if d.doc.Get("readyState").String() != "loading" {
		fn()
		return
	}
	var cb js.Func
	cb = js.FuncOf(func(js.Value, []js.Value) any {
		cb.Release()
		fn()
		return nil
	})
	d.doc.Call("addEventListener", "DOMContentLoaded", cb, map[string]any{"once": true})
}

func (d *Document) ElementByID(id string) (popup.Element, bool) {
	return wrap(d.doc.Call("getElementById", id))
}

func (d *Document) Scroll() popup.ScrollMetrics {
	return popup.ScrollMetrics{
		ScrollY:        d.win.Get("scrollY").Float(),
		ScrollHeight:   d.doc.Get("documentElement").Get("scrollHeight").Float(),
		ViewportHeight: d.win.Get("innerHeight").Float(),
	}
}

func (d *Document) Listen(kind string, opts popup.ListenOptions, fn func(popup.Event)) func() {
	target := d.doc
	if opts.Root {
		target = d.doc.Get("documentElement")
	}
	cb := js.FuncOf(func(_ js.Value, args []js.Value) any {
		if len(args) > 0 {
			fn(toEvent(args[0]))
		}
		return nil
	})
	target.Call("addEventListener", kind, cb, map[string]any{
		"capture": opts.Capture,
		"passive": opts.Passive,
	})
	removed := false
	return func() {
		if removed {
			return
		}
		removed = true
		target.Call("removeEventListener", kind, cb, map[string]any{"capture": opts.Capture})
		cb.Release()
	}
}

func (d *Document) Dispatch(name string, detail popup.Detail) {
	ctor := d.win.Get("CustomEvent")
	ev := ctor.New(name, map[string]any{
		"detail":     map[string]any{"popupId": detail.PopupID},
		"bubbles":    true,
		"cancelable": true,
	})
	d.doc.Call("dispatchEvent", ev)
}

// TouchPrimary matches devices exposing touch events or touch points.
func (d *Document) TouchPrimary() bool {
	if !d.win.Get("ontouchstart").IsUndefined() {
		return true
	}
	nav := d.win.Get("navigator")
	return nav.Truthy() && nav.Get("maxTouchPoints").Int() > 0
}

func toEvent(v js.Value) popup.Event {
	ev := popup.Event{Type: v.Get("type").String()}
	if y := v.Get("clientY"); y.Type() == js.TypeNumber {
		ev.ClientY = y.Float()
	}
	if k := v.Get("key"); k.Type() == js.TypeString {
		ev.Key = k.String()
	}
	if t, ok := wrap(v.Get("target")); ok {
		ev.Target = t
	}
	if det := v.Get("detail"); det.Type() == js.TypeObject {
		if id := det.Get("popupId"); id.Type() == js.TypeString {
			ev.Detail.PopupID = id.String()
		}
	}
	ev.Swallow = func() {
		v.Call("preventDefault")
		v.Call("stopPropagation")
	}
	return ev
}

type element struct {
	v js.Value
}

// wrap accepts element nodes only; text nodes and the document itself
// have no attributes to inspect.
func wrap(v js.Value) (popup.Element, bool) {
	if v.IsNull() || v.IsUndefined() {
		return nil, false
	}
	if n := v.Get("nodeType"); n.Type() != js.TypeNumber || n.Int() != 1 {
		return nil, false
	}
	return element{v: v}, true
}

func (e element) ID() string { return e.v.Get("id").String() }

func (e element) HasClass(class string) bool {
	return e.v.Get("classList").Call("contains", class).Bool()
}

func (e element) Attr(name string) (string, bool) {
	if !e.v.Call("hasAttribute", name).Bool() {
		return "", false
	}
	return e.v.Call("getAttribute", name).String(), true
}

func (e element) SetAttr(name, value string) { e.v.Call("setAttribute", name, value) }

func (e element) RemoveAttr(name string) { e.v.Call("removeAttribute", name) }

func (e element) StyleProperty(name string) string {
	cs := js.Global().Call("getComputedStyle", e.v)
	return strings.TrimSpace(cs.Call("getPropertyValue", name).String())
}

func (e element) SetStyleProperty(name, value string) {
	e.v.Get("style").Call("setProperty", name, value)
}

func (e element) RemoveStyleProperty(name string) {
	e.v.Get("style").Call("removeProperty", name)
}

func (e element) Query(selector string) (popup.Element, bool) {
	return wrap(e.v.Call("querySelector", selector))
}

func (e element) Closest(attr string) (popup.Element, bool) {
	return wrap(e.v.Call("closest", "["+attr+"]"))
}
