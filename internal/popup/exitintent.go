package popup

import (
	"popengine/internal/loop"
	logx "popengine/pkg/logx"
)

// exitIntent is the one pointer-leave listener shared by every exit-intent
// instance of an Engine.
type exitIntent struct {
	e        *Engine
	members  []*instance // registration order
	attached bool
	remove   func()
	debounce loop.Timer
}

func (x *exitIntent) add(inst *instance) {
	x.members = append(x.members, inst)
	if x.attached {
		return
	}
	if x.e.doc.TouchPrimary() {
		x.e.log.Debug("exit intent disabled on touch device", logx.String("popup", inst.cfg.InstanceID))
		return
	}
	x.remove = x.e.doc.Listen("mouseleave", ListenOptions{Root: true}, x.onLeave)
	x.attached = true
}

func (x *exitIntent) anyArmed() bool {
	for _, inst := range x.members {
		if inst.armed() {
			return true
		}
	}
	return false
}

func (x *exitIntent) onLeave(ev Event) {
	if ev.ClientY > 0 {
		return
	}
	loop.StopTimer(x.debounce)
	x.debounce = nil
	if !x.anyArmed() {
		return
	}
	x.debounce = x.e.loop.AfterFunc(ExitIntentDebounce, x.fire)
}

// fire triggers the first member still Armed and allowed to reappear.
func (x *exitIntent) fire() {
	x.debounce = nil
	for _, inst := range x.members {
		if !inst.armed() {
			continue
		}
		if !x.e.guard.CanReappear(inst.cfg.InstanceID, inst.cfg.ReappearDelaySeconds) {
			continue
		}
		x.e.attemptTrigger(inst.cfg.InstanceID, SourceExitIntent)
		return
	}
}

func (x *exitIntent) detach() {
	loop.StopTimer(x.debounce)
	x.debounce = nil
	if x.remove != nil {
		x.remove()
		x.remove = nil
	}
	x.members = nil
}
