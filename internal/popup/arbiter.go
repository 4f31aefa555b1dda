package popup

import (
	"context"
	"errors"

	"github.com/looplab/fsm"

	"popengine/internal/eventbus"
	"popengine/internal/loop"
	logx "popengine/pkg/logx"
)

const (
	evTrigger = "trigger"
	evOpened  = "opened"
	evDismiss = "dismiss"
)

// instance is the per-popup state record. Every transition runs
// cancelPending, so no trigger source outlives the Armed state.
type instance struct {
	cfg       Config
	container Element
	machine   *fsm.FSM

	pendingTimer loop.Timer // show-after-time
	removeScroll func()     // show-after-scroll listener
	transition   loop.Timer // open animation completion
	escapeRemove func()     // escape interceptor, nil when inactive
	shownAt      int        // show order, 0 until rendered
}

func (e *Engine) newInstance(cfg Config, container Element) *instance {
	inst := &instance{cfg: cfg, container: container}
	inst.machine = fsm.NewFSM(
		string(StatusArmed),
		fsm.Events{
			{Name: evTrigger, Src: []string{string(StatusArmed)}, Dst: string(StatusTriggered)},
			{Name: evOpened, Src: []string{string(StatusTriggered)}, Dst: string(StatusOpen)},
			{Name: evDismiss, Src: []string{string(StatusTriggered), string(StatusOpen)}, Dst: string(StatusClosed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, ev *fsm.Event) {
				e.cancelPending(inst)
				if ev.Src == string(StatusArmed) {
					e.observer.Disarmed(inst.cfg.InstanceID)
				}
				e.log.Debug("popup state changed",
					logx.String("popup", inst.cfg.InstanceID),
					logx.String("from", ev.Src),
					logx.String("to", ev.Dst),
				)
			},
		},
	)
	return inst
}

func (i *instance) status() Status { return Status(i.machine.Current()) }

func (i *instance) armed() bool { return i.machine.Is(string(StatusArmed)) }

// fire applies event and reports whether the transition happened.
func (e *Engine) fire(inst *instance, event string) bool {
	err := inst.machine.Event(e.ctx, event)
	if err == nil {
		return true
	}
	var invalid fsm.InvalidEventError
	if !errors.As(err, &invalid) {
		e.log.Warn("popup transition failed",
			logx.String("popup", inst.cfg.InstanceID),
			logx.String("event", event),
			logx.Err(err),
		)
	}
	return false
}

// cancelPending stops every trigger source still pending for inst.
func (e *Engine) cancelPending(inst *instance) {
	loop.StopTimer(inst.pendingTimer)
	inst.pendingTimer = nil
	if inst.removeScroll != nil {
		inst.removeScroll()
		inst.removeScroll = nil
	}
	loop.StopTimer(inst.transition)
	inst.transition = nil
}

// attemptTrigger is the single entry point of every trigger source. The
// check and the Armed->Triggered write happen in one loop callback, so two
// sources can never both win.
func (e *Engine) attemptTrigger(id string, src Source) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("popup trigger panicked", logx.String("popup", id), logx.Any("panic", r))
			out = OutcomeUnknown
		}
		e.observer.TriggerAttempt(id, src, out)
		e.publish(eventbus.TypeTrigger, eventbus.PopupData{PopupID: id, Source: string(src), Outcome: string(out)})
	}()

	inst, ok := e.instances[id]
	if !ok {
		return OutcomeUnknown
	}
	if !inst.armed() {
		return OutcomeNotArmed
	}
	if !e.guard.CanReappear(id, inst.cfg.ReappearDelaySeconds) {
		e.log.Debug("reappear delay not met", logx.String("popup", id), logx.String("source", string(src)))
		return OutcomeSuppressed
	}
	if !e.fire(inst, evTrigger) {
		return OutcomeNotArmed
	}
	e.log.Info("popup triggered", logx.String("popup", id), logx.String("source", string(src)))
	e.presenter.open(inst)
	return OutcomeWon
}
