package popup

import (
	"math"
	"time"

	logx "popengine/pkg/logx"
)

// ScrollPercent returns how far the page is scrolled, in 0..100. A page that
// does not scroll reports 100 for a zero threshold and 0 otherwise.
func ScrollPercent(m ScrollMetrics, threshold int) float64 {
	scrollable := m.ScrollHeight - m.ViewportHeight
	if scrollable <= 0 {
		if threshold == 0 {
			return 100
		}
		return 0
	}
	p := m.ScrollY / math.Max(1, scrollable) * 100
	return math.Min(100, math.Max(0, p))
}

// armTimer schedules the show-after-time source. Zero still waits for the
// next loop turn.
func (e *Engine) armTimer(inst *instance) {
	secs := inst.cfg.ShowAfterTime
	if secs == nil {
		return
	}
	id := inst.cfg.InstanceID
	inst.pendingTimer = e.loop.AfterFunc(time.Duration(*secs)*time.Second, func() {
		inst.pendingTimer = nil
		e.attemptTrigger(id, SourceTimer)
	})
}

// armScroll attaches the show-after-scroll source and evaluates it once
// right away for pages loaded already scrolled.
func (e *Engine) armScroll(inst *instance) {
	threshold := inst.cfg.ShowAfterScroll
	if threshold == nil {
		return
	}
	id := inst.cfg.InstanceID
	check := func(Event) {
		if !inst.armed() {
			if inst.removeScroll != nil {
				inst.removeScroll()
				inst.removeScroll = nil
			}
			return
		}
		p := ScrollPercent(e.doc.Scroll(), *threshold)
		e.scrollLog.Debug("scroll position",
			logx.String("popup", id),
			logx.Float64("percent", p),
			logx.Int("threshold", *threshold),
		)
		if p >= float64(*threshold) {
			e.attemptTrigger(id, SourceScroll)
		}
	}
	inst.removeScroll = e.doc.Listen("scroll", ListenOptions{Passive: true}, check)
	check(Event{Type: "scroll"})
}

// attachClickListener installs the one document-level listener serving
// every data-popup-open element.
func (e *Engine) attachClickListener() {
	if e.removeClick != nil {
		return
	}
	e.removeClick = e.doc.Listen("click", ListenOptions{}, func(ev Event) {
		if ev.Target == nil {
			return
		}
		el, ok := ev.Target.Closest(OpenTriggerAttr)
		if !ok {
			return
		}
		id, _ := el.Attr(OpenTriggerAttr)
		if id == "" {
			return
		}
		e.attemptTrigger(id, SourceManual)
	})
}
