package dom

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"popengine/internal/loop"
	"popengine/internal/popup"
	logx "popengine/pkg/logx"
)

var ErrModalNotFound = errors.New("modal not found")

// Modal is a MicroModal-style renderer over a Document.
//
// Show adds the open class and wires close triggers. Close runs the OnClose
// hook, then removes the open class, after the dialog's close duration when
// AwaitCloseAnimation is set.
type Modal struct {
	doc         *Document
	loop        loop.Loop
	classPrefix string
	log         logx.Logger

	active map[string]*session
	shown  int
}

type session struct {
	id       string
	el       *Element
	opts     popup.ShowOptions
	returnTo *Element
	remove   []func()
}

func NewModal(doc *Document, l loop.Loop, classPrefix string, log logx.Logger) *Modal {
	if classPrefix == "" {
		classPrefix = popup.DefaultClassPrefix
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Modal{
		doc:         doc,
		loop:        l,
		classPrefix: classPrefix,
		log:         log.With(logx.String("comp", "modal")),
		active:      map[string]*session{},
	}
}

// Shown returns how many times Show opened a modal.
func (m *Modal) Shown() int { return m.shown }

// IsActive reports whether id is currently shown.
func (m *Modal) IsActive(id string) bool {
	_, ok := m.active[id]
	return ok
}

func (m *Modal) Show(id string, opts popup.ShowOptions) error {
	el := m.doc.Find(id)
	if el == nil {
		return fmt.Errorf("show %q: %w", id, ErrModalNotFound)
	}
	if _, ok := m.active[id]; ok {
		return nil
	}
	if opts.OpenClass == "" {
		opts.OpenClass = popup.OpenClass
	}
	s := &session{id: id, el: el, opts: opts, returnTo: m.doc.focused}
	m.active[id] = s
	m.shown++

	el.AddClass(opts.OpenClass)
	el.SetAttr("aria-hidden", "false")
	if opts.DisableScroll {
		m.doc.lockScroll()
	}

	closeTrigger := opts.CloseTrigger
	s.remove = append(s.remove,
		el.AddEventListener("click", false, false, func(ev popup.Event) {
			if closeTrigger == "" || !hitsCloseTrigger(ev.Target, closeTrigger) {
				return
			}
			if ev.Swallow != nil {
				ev.Swallow()
			}
			m.closeSession(s)
		}),
		m.doc.node.AddEventListener("keydown", false, false, func(ev popup.Event) {
			if (ev.Key == "Escape" || ev.Key == "Esc") && !s.opts.KeepOnEscape {
				m.closeSession(s)
			}
		}),
	)

	if opts.OnShow != nil {
		opts.OnShow(el)
	}
	if !opts.DisableFocus {
		if f := firstFocusable(el); f != nil {
			m.doc.focused = f
		}
	}
	m.log.Debug("modal shown", logx.String("popup", id))
	return nil
}

// hitsCloseTrigger matches the target or its direct parent only.
func hitsCloseTrigger(target popup.Element, attr string) bool {
	el, ok := target.(*Element)
	if !ok || el == nil {
		return false
	}
	if _, ok := el.attrs[attr]; ok {
		return true
	}
	if el.parent != nil {
		_, ok := el.parent.attrs[attr]
		return ok
	}
	return false
}

func firstFocusable(root *Element) *Element {
	var found *Element
	root.walk(func(n *Element) bool {
		if n != root && n.focusable() {
			found = n
			return false
		}
		return true
	})
	return found
}

// Close hides id. Closing a modal that is not shown is a no-op.
func (m *Modal) Close(id string) error {
	s, ok := m.active[id]
	if !ok {
		return nil
	}
	m.closeSession(s)
	return nil
}

func (m *Modal) closeSession(s *session) {
	if m.active[s.id] != s {
		return
	}
	delete(m.active, s.id)

	s.el.SetAttr("aria-hidden", "true")
	for _, rm := range s.remove {
		rm()
	}
	s.remove = nil
	if s.opts.DisableScroll {
		m.doc.unlockScroll()
	}
	if s.returnTo != nil {
		m.doc.focused = s.returnTo
	} else if m.doc.focused != nil && isWithin(m.doc.focused, s.el) {
		m.doc.focused = nil
	}

	if s.opts.OnClose != nil {
		s.opts.OnClose(s.el)
	}

	openClass := s.opts.OpenClass
	if !s.opts.AwaitCloseAnimation || m.loop == nil {
		s.el.RemoveClass(openClass)
		return
	}
	wait := m.closeDuration(s.el)
	el := s.el
	m.loop.AfterFunc(wait, func() {
		if _, reopened := m.active[s.id]; reopened {
			return
		}
		el.RemoveClass(openClass)
	})
	m.log.Debug("modal closing", logx.String("popup", s.id), logx.Duration("after", wait))
}

// closeDuration reads the close duration the engine wrote on the dialog.
func (m *Modal) closeDuration(container *Element) time.Duration {
	el := container
	if d := container.QueryElement("." + m.classPrefix + "__dialog"); d != nil {
		el = d
	}
	raw := strings.TrimSuffix(strings.TrimSpace(el.StyleProperty("--"+m.classPrefix+"-close-duration")), "ms")
	if ms, err := strconv.Atoi(raw); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return popup.DefaultCloseDuration
}

func isWithin(el, root *Element) bool {
	for n := el; n != nil; n = n.parent {
		if n == root {
			return true
		}
	}
	return false
}
