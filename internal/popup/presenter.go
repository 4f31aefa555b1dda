package popup

import (
	"strconv"
	"strings"
	"time"

	"popengine/internal/eventbus"
	logx "popengine/pkg/logx"
)

// presenter owns the open and close transitions of instances.
type presenter struct {
	e *Engine
}

func (p *presenter) dialogClass() string { return "." + p.e.classPrefix + "__dialog" }

func (p *presenter) durationProperty(phase string) string {
	return "--" + p.e.classPrefix + "-" + phase + "-duration"
}

// duration resolves an animation duration: explicit config, then the
// dialog's custom property, then the default for phase.
func (p *presenter) duration(explicit *int, el Element, phase string) time.Duration {
	if explicit != nil && *explicit >= 0 {
		return time.Duration(*explicit) * time.Millisecond
	}
	if el != nil {
		if ms, ok := leadingInt(el.StyleProperty(p.durationProperty(phase))); ok && int64(ms) <= maxMillis {
			return time.Duration(ms) * time.Millisecond
		}
	}
	if phase == "open" {
		return DefaultOpenDuration
	}
	return DefaultCloseDuration
}

// leadingInt parses the integer prefix of s ("300ms" -> 300).
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// dialogOf returns the dialog element inside modal.
func (p *presenter) dialogOf(modal Element) (Element, bool) {
	if modal == nil {
		return nil, false
	}
	return modal.Query(p.dialogClass())
}

func (p *presenter) open(inst *instance) {
	id := inst.cfg.InstanceID
	el, ok := p.e.doc.ElementByID(id)
	if !ok {
		p.e.log.Warn("popup container missing at open", logx.String("popup", id))
		return
	}
	if el.HasClass(OpenClass) {
		return
	}

	durationEl := el
	if d, ok := p.dialogOf(el); ok {
		durationEl = d
	}
	openAfter := p.duration(inst.cfg.OpenAnimationDurationMs, durationEl, "open")

	p.e.dispatch(EventBeforeOpen, id)
	if inst.status() != StatusTriggered {
		// A before_open listener closed or destroyed it.
		return
	}

	cfg := inst.cfg
	err := p.e.renderer.Show(id, ShowOptions{
		OnShow:              func(modal Element) { p.onShow(inst, modal) },
		OnClose:             func(modal Element) { p.close(inst, modal) },
		OpenTrigger:         OpenTriggerAttr,
		CloseTrigger:        CloseTriggerAttr,
		OpenClass:           OpenClass,
		DisableScroll:       cfg.IsModal,
		DisableFocus:        !cfg.IsModal,
		AwaitOpenAnimation:  cfg.OpenAnimation != "",
		AwaitCloseAnimation: cfg.CloseAnimation != "",
		KeepOnEscape:        !cfg.CloseOnEscape,
	})
	if err != nil {
		p.e.log.Error("popup renderer failed to show", logx.String("popup", id), logx.Err(err))
		return
	}
	p.e.shows++
	inst.shownAt = p.e.shows

	if !cfg.CloseOnEscape && inst.escapeRemove == nil {
		inst.escapeRemove = p.e.doc.Listen("keydown", ListenOptions{Capture: true}, func(ev Event) {
			if p.escapeTarget(inst) {
				swallowEscape(ev)
			}
		})
	}

	if cfg.OpenAnimation == "" {
		p.completeOpen(inst)
		return
	}
	inst.transition = p.e.loop.AfterFunc(openAfter, func() {
		inst.transition = nil
		p.completeOpen(inst)
	})
}

// escapeTarget reports whether inst is the most recently shown popup still
// showing, the one a single-modal renderer closes on Escape.
func (p *presenter) escapeTarget(inst *instance) bool {
	for _, other := range p.e.order {
		if other == inst || other.shownAt <= inst.shownAt {
			continue
		}
		if st := other.status(); st == StatusTriggered || st == StatusOpen {
			return false
		}
	}
	return true
}

func swallowEscape(ev Event) {
	if ev.Key != "Escape" && ev.Key != "Esc" {
		return
	}
	if ev.Swallow != nil {
		ev.Swallow()
	}
}

func (p *presenter) completeOpen(inst *instance) {
	if !p.e.fire(inst, evOpened) {
		return
	}
	id := inst.cfg.InstanceID
	p.e.dispatch(EventAfterOpen, id)
	p.e.observer.Opened(id)
}

// onShow applies the open-animation attributes to the rendered modal.
func (p *presenter) onShow(inst *instance, modal Element) {
	dialog, ok := p.dialogOf(modal)
	if !ok {
		return
	}
	prop := p.durationProperty("open")
	if anim := inst.cfg.OpenAnimation; anim != "" {
		d := p.duration(inst.cfg.OpenAnimationDurationMs, dialog, "open")
		modal.SetAttr(OpenAnimationAttr, anim)
		dialog.SetStyleProperty(prop, strconv.FormatInt(d.Milliseconds(), 10)+"ms")
		return
	}
	modal.RemoveAttr(OpenAnimationAttr)
	dialog.RemoveStyleProperty(prop)
}

// close records the close before anything else, then transitions and
// announces it. after_close fires even when the dialog node is gone.
func (p *presenter) close(inst *instance, modal Element) {
	st := inst.status()
	if st != StatusTriggered && st != StatusOpen {
		return
	}
	id := inst.cfg.InstanceID
	p.e.guard.RecordClose(id)

	if inst.escapeRemove != nil {
		inst.escapeRemove()
		inst.escapeRemove = nil
	}
	p.e.fire(inst, evDismiss)
	p.e.dispatch(EventAfterClose, id)
	p.e.observer.Closed(id)
	p.e.log.Info("popup closed", logx.String("popup", id))

	if modal == nil {
		modal, _ = p.e.doc.ElementByID(id)
	}
	dialog, ok := p.dialogOf(modal)
	if !ok {
		p.e.log.Debug("popup dialog missing at close", logx.String("popup", id))
		return
	}

	closeProp := p.durationProperty("close")
	if anim := inst.cfg.CloseAnimation; anim != "" {
		d := p.duration(inst.cfg.CloseAnimationDurationMs, dialog, "close")
		modal.SetAttr(CloseAnimationAttr, anim)
		dialog.SetStyleProperty(closeProp, strconv.FormatInt(d.Milliseconds(), 10)+"ms")
	} else {
		modal.RemoveAttr(CloseAnimationAttr)
		dialog.RemoveStyleProperty(closeProp)
	}
	modal.RemoveAttr(OpenAnimationAttr)
	dialog.RemoveStyleProperty(p.durationProperty("open"))
}

// dispatch fires the namespaced document event and mirrors it on the bus.
func (e *Engine) dispatch(suffix, id string) {
	e.doc.Dispatch(EventName(e.namespace, suffix), Detail{PopupID: id})
	var typ string
	switch suffix {
	case EventBeforeOpen:
		typ = eventbus.TypeBeforeOpen
	case EventAfterOpen:
		typ = eventbus.TypeAfterOpen
	case EventAfterClose:
		typ = eventbus.TypeAfterClose
	}
	e.publish(typ, eventbus.PopupData{PopupID: id})
}
