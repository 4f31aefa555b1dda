package popup

import (
	"context"
	"sort"

	"golang.org/x/time/rate"

	"popengine/internal/eventbus"
	"popengine/internal/loop"
	logx "popengine/pkg/logx"
)

type Options struct {
	// Namespace prefixes record keys and event names (default kntnt_popup).
	Namespace string
	// ClassPrefix prefixes the dialog class and duration properties (default kntnt-popup).
	ClassPrefix string

	Loop     loop.Loop
	Document Document
	Renderer Renderer
	// Store holds reappearance records. Nil disables persistence: every
	// popup is always allowed to reappear.
	Store RecordStore

	Logger logx.Logger
	// ScrollSampler rate-limits the per-event scroll debug lines.
	ScrollSampler *rate.Limiter
	Bus           eventbus.Bus
	Observer      Observer
}

// Engine coordinates every popup of one page. All methods, and every
// callback it registers, run on the Loop.
type Engine struct {
	ctx         context.Context
	namespace   string
	classPrefix string

	loop      loop.Loop
	doc       Document
	renderer  Renderer
	guard     *Guard
	presenter *presenter
	bus       eventbus.Bus
	observer  Observer

	log       logx.Logger
	scrollLog logx.Logger

	instances map[string]*instance
	order     []*instance
	exit      *exitIntent
	shows     int

	removeClick func()
	initialized bool
	destroyed   bool
}

// New validates the host capabilities. A missing renderer is fatal: nothing
// is wired and ErrNoRenderer is returned.
func New(opts Options) (*Engine, error) {
	if opts.Renderer == nil {
		return nil, ErrNoRenderer
	}
	if opts.Document == nil {
		return nil, ErrNoDocument
	}
	if opts.Loop == nil {
		return nil, ErrNoLoop
	}
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.ClassPrefix == "" {
		opts.ClassPrefix = DefaultClassPrefix
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	log := opts.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "popup"))
	sampler := opts.ScrollSampler
	if sampler == nil {
		sampler = logx.NewSampler(0)
	}

	e := &Engine{
		ctx:         context.Background(),
		namespace:   opts.Namespace,
		classPrefix: opts.ClassPrefix,
		loop:        opts.Loop,
		doc:         opts.Document,
		renderer:    opts.Renderer,
		bus:         opts.Bus,
		observer:    opts.Observer,
		log:         log,
		scrollLog:   log.Sampled(sampler),
		instances:   map[string]*instance{},
	}
	e.guard = NewGuard(opts.Store, opts.Namespace, opts.Loop.Now, log)
	e.presenter = &presenter{e: e}
	e.exit = &exitIntent{e: e}
	return e, nil
}

func (e *Engine) Namespace() string { return e.namespace }

// InitJSON decodes a {"popups": [...]} document and initializes the engine.
func (e *Engine) InitJSON(raw []byte) error {
	cfgs, err := DecodeConfigs(raw)
	if err != nil {
		e.log.Error("popup configuration rejected", logx.Err(err))
		return err
	}
	return e.Init(cfgs)
}

// Init arms every configured popup whose container exists and whose
// reappearance window has passed. It may be called once.
func (e *Engine) Init(cfgs []Config) error {
	if e.destroyed {
		return ErrDestroyed
	}
	if e.initialized {
		return ErrAlreadyInitialized
	}
	if err := validateConfigs(cfgs); err != nil {
		e.log.Error("popup configuration rejected", logx.Err(err))
		return err
	}
	e.initialized = true

	for _, cfg := range cfgs {
		id := cfg.InstanceID
		el, ok := e.doc.ElementByID(id)
		if !ok {
			e.log.Warn("popup container not found", logx.String("popup", id))
			e.publish(eventbus.TypeSkipped, eventbus.PopupData{PopupID: id, Reason: "missing_container"})
			continue
		}
		if !e.guard.CanReappear(id, cfg.ReappearDelaySeconds) {
			e.log.Debug("popup suppressed by reappear delay", logx.String("popup", id))
			e.publish(eventbus.TypeSkipped, eventbus.PopupData{PopupID: id, Reason: "suppressed"})
			continue
		}

		inst := e.newInstance(cfg, el)
		e.instances[id] = inst
		e.order = append(e.order, inst)
		e.observer.Armed(id)

		e.armTimer(inst)
		e.armScroll(inst)
		if cfg.ShowOnExitIntent {
			e.exit.add(inst)
		}
	}
	e.attachClickListener()

	e.log.Info("popup engine initialized",
		logx.Int("configured", len(cfgs)),
		logx.Int("armed", len(e.order)),
	)
	return nil
}

// Trigger asks the arbiter to open id as if a host script requested it.
func (e *Engine) Trigger(id string) Outcome {
	return e.attemptTrigger(id, SourceAPI)
}

// Close dismisses id. It reports false when id is unknown or not showing.
// The close is recorded and after_close dispatched even when the renderer
// fails.
func (e *Engine) Close(id string) bool {
	inst, ok := e.instances[id]
	if !ok {
		return false
	}
	if st := inst.status(); st != StatusTriggered && st != StatusOpen {
		return false
	}
	if err := e.renderer.Close(id); err != nil {
		e.log.Warn("popup renderer failed to close", logx.String("popup", id), logx.Err(err))
	}
	if inst.status() != StatusClosed {
		e.presenter.close(inst, nil)
	}
	return true
}

// Status returns the lifecycle state of id. Popups skipped at Init are unknown.
func (e *Engine) Status(id string) (Status, bool) {
	inst, ok := e.instances[id]
	if !ok {
		return "", false
	}
	return inst.status(), true
}

// Instances returns the ids of armed-at-init popups in registration order.
func (e *Engine) Instances() []string {
	out := make([]string, 0, len(e.order))
	for _, inst := range e.order {
		out = append(out, inst.cfg.InstanceID)
	}
	return out
}

// Snapshot returns the status of every instance, keyed by id.
func (e *Engine) Snapshot() map[string]Status {
	out := make(map[string]Status, len(e.instances))
	for id, inst := range e.instances {
		out[id] = inst.status()
	}
	return out
}

// Destroy detaches every listener and timer. The engine cannot be reused.
func (e *Engine) Destroy() {
	if e.destroyed {
		return
	}
	e.destroyed = true
	e.exit.detach()
	if e.removeClick != nil {
		e.removeClick()
		e.removeClick = nil
	}
	ids := make([]string, 0, len(e.instances))
	for id := range e.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		inst := e.instances[id]
		if inst.armed() {
			e.observer.Disarmed(id)
		}
		e.cancelPending(inst)
		if inst.escapeRemove != nil {
			inst.escapeRemove()
			inst.escapeRemove = nil
		}
	}
	e.instances = map[string]*instance{}
	e.order = nil
	e.log.Debug("popup engine destroyed", logx.Int("instances", len(ids)))
}

func (e *Engine) publish(typ string, data eventbus.PopupData) {
	if e.bus == nil || typ == "" {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: e.loop.Now(), Data: data})
}
