package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"popengine/internal/config"
	"popengine/internal/dom"
	"popengine/internal/eventbus"
	"popengine/internal/hostscript"
	"popengine/internal/loop"
	"popengine/internal/popup"
	"popengine/internal/storage"
	logx "popengine/pkg/logx"
)

// statusSkipped marks a configured popup the engine did not arm.
const statusSkipped popup.Status = "skipped"

// DefaultTolerance bounds the "at" drift accepted in realtime runs.
const DefaultTolerance = 50 * time.Millisecond

type Options struct {
	Config *config.Config
	// Resolver resolves attribute-style popup entries (default table when nil).
	Resolver config.AttrResolver

	// Store persists reappearance records across reloads and runs. Nil gives
	// each run a fresh in-memory store.
	Store storage.Store

	Logger   logx.Logger
	Sampler  *rate.Limiter
	Bus      eventbus.Bus
	Observer popup.Observer

	// Start is the virtual clock origin (default: now).
	Start time.Time
	// Realtime drives the engine on a wall-clock event loop instead of the
	// virtual clock; waits then really sleep.
	Realtime  bool
	Tolerance time.Duration

	ScriptTimeout time.Duration
}

type Result struct {
	Name     string
	Timeline []Entry
	// Final holds the status of every configured popup after the last step.
	Final map[string]popup.Status
	Pages int

	ScriptErrors []error
	// Failures lists step errors and unmet expectations.
	Failures []string
	Elapsed  time.Duration
}

func (r *Result) OK() bool { return len(r.Failures) == 0 }

type runner struct {
	sc   *Scenario
	opts Options
	log  logx.Logger

	loop  loop.Loop
	virt  *loop.Virtual
	real  *loop.EventLoop
	ctx   context.Context
	start time.Time

	namespace  string
	prefix     string
	popupsJSON []byte
	cfgs       []popup.Config
	attrs      []map[string]any
	store      storage.Store

	page *page
	res  *Result
}

type page struct {
	n       int
	doc     *dom.Document
	engine  *popup.Engine
	script  *hostscript.Script
	parts   map[string]dom.Parts
	links   map[string]*dom.Element
	removes []func()
}

// Run replays sc and checks its expectations. The returned error covers
// problems that prevent the run (bad configuration, canceled context); unmet
// expectations are reported in Result.Failures.
func Run(ctx context.Context, sc *Scenario, opts Options) (*Result, error) {
	if sc == nil {
		return nil, fmt.Errorf("%w: nil scenario", ErrInvalid)
	}
	r := &runner{
		sc:        sc,
		opts:      opts,
		ctx:       ctx,
		namespace: opts.Config.NamespaceOrDefault(),
		prefix:    opts.Config.ClassPrefixOrDefault(),
		store:     opts.Store,
		res:       &Result{Name: sc.Name, Final: map[string]popup.Status{}},
	}
	log := opts.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	r.log = log.With(logx.String("comp", "scenario"), logx.String("scenario", sc.Name))
	if r.store == nil {
		r.store = storage.NewMemory()
	}
	if err := r.prepare(); err != nil {
		return nil, err
	}

	r.start = opts.Start
	if r.start.IsZero() {
		r.start = time.Now()
	}
	if opts.Realtime {
		r.real = loop.NewEventLoop(r.log)
		r.loop = r.real
		lctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = r.real.Run(lctx)
		}()
		defer func() {
			cancel()
			<-done
		}()
		r.start = time.Now()
	} else {
		r.virt = loop.NewVirtual(r.start)
		r.loop = r.virt
	}

	began := time.Now()
	if err := r.do(r.loadPage); err != nil {
		return nil, err
	}
	for i, s := range sc.Steps {
		if err := r.step(i, s); err != nil {
			return nil, err
		}
	}
	if err := r.do(func() error {
		r.snapshot()
		r.unload()
		return nil
	}); err != nil {
		return nil, err
	}
	r.res.Elapsed = time.Since(began)

	tol := opts.Tolerance
	if !opts.Realtime {
		tol = 0
	} else if tol <= 0 {
		tol = DefaultTolerance
	}
	r.res.Failures = append(r.res.Failures, Verify(r.res, sc.Expect, tol)...)

	r.log.Info("scenario finished",
		logx.Int("pages", r.res.Pages),
		logx.Int("events", len(r.res.Timeline)),
		logx.Int("failures", len(r.res.Failures)),
		logx.Duration("elapsed", r.res.Elapsed),
	)
	return r.res, nil
}

// prepare renders the wire document once and keeps the presentation
// attributes of attribute-style entries for markup.
func (r *runner) prepare() error {
	res := r.opts.Resolver
	if res == nil {
		res = config.DefaultAttrResolver()
	}
	raw, err := r.opts.Config.PopupsJSON(res)
	if err != nil {
		return fmt.Errorf("%w: %v", popup.ErrInvalidConfig, err)
	}
	cfgs, err := popup.DecodeConfigs(raw)
	if err != nil {
		return err
	}
	r.popupsJSON, r.cfgs = raw, cfgs
	r.attrs = make([]map[string]any, len(cfgs))
	if r.opts.Config == nil {
		return nil
	}
	for i, e := range r.opts.Config.Popups {
		if e.Attributes == nil || i >= len(cfgs) {
			continue
		}
		a, err := res.Resolve(e.Attributes)
		if err != nil {
			return fmt.Errorf("popups[%d]: %w", i, err)
		}
		r.attrs[i] = a
	}
	return nil
}

// do runs fn on the loop and lets the loop settle. On the virtual loop that
// means every callback due now has run.
func (r *runner) do(fn func() error) error {
	if r.virt != nil {
		err := fn()
		r.virt.RunUntilIdle()
		return err
	}
	errc := make(chan error, 1)
	r.real.Post(func() { errc <- fn() })
	select {
	case err := <-errc:
		return err
	case <-r.ctx.Done():
		return r.ctx.Err()
	}
}

func (r *runner) wait(d time.Duration) error {
	if r.virt != nil {
		r.virt.Advance(d)
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-r.ctx.Done():
		return r.ctx.Err()
	}
}

func (r *runner) failf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.res.Failures = append(r.res.Failures, msg)
	r.log.Warn("scenario step failed", logx.String("failure", msg))
}

func (r *runner) step(i int, s Step) error {
	kind := s.Kind()
	r.log.Debug("step", logx.Int("index", i), logx.String("kind", kind))
	if kind == "wait" {
		return r.wait(time.Duration(s.Wait))
	}
	return r.do(func() error {
		var err error
		if kind == "reload" {
			err = r.loadPage()
		} else {
			err = r.act(s)
		}
		if err != nil {
			r.failf("steps[%d] %s: %v", i, kind, err)
		}
		return nil
	})
}

func (r *runner) act(s Step) error {
	p := r.page
	if p == nil || p.engine == nil {
		return errors.New("no page loaded")
	}
	switch {
	case s.Scroll != nil:
		sm := p.doc.Scroll()
		y := 0.0
		if span := sm.ScrollHeight - sm.ViewportHeight; span > 0 {
			y = span * *s.Scroll / 100
		}
		p.doc.ScrollTo(y)
	case s.ExitIntent != nil:
		p.doc.MouseLeave(*s.ExitIntent)
	case s.Click != "":
		link, ok := p.links[s.Click]
		if !ok {
			return fmt.Errorf("no open link for %q", s.Click)
		}
		p.doc.Click(link)
	case s.Dismiss != "":
		parts, ok := p.parts[s.Dismiss]
		if !ok {
			return fmt.Errorf("popup %q is not on the page", s.Dismiss)
		}
		switch {
		case parts.CloseButton != nil:
			p.doc.Click(parts.CloseButton)
		case parts.Overlay != nil && hasAttr(parts.Overlay, popup.CloseTriggerAttr):
			p.doc.Click(parts.Overlay)
		default:
			return fmt.Errorf("popup %q has no close control", s.Dismiss)
		}
	case s.Key != "":
		p.doc.KeyDown(s.Key)
	case s.Trigger != "":
		out := p.engine.Trigger(s.Trigger)
		r.log.Debug("api trigger", logx.String("popup", s.Trigger), logx.String("outcome", string(out)))
	case s.Close != "":
		if !p.engine.Close(s.Close) {
			r.log.Debug("api close ignored", logx.String("popup", s.Close))
		}
	}
	return nil
}

func hasAttr(el *dom.Element, name string) bool {
	_, ok := el.Attr(name)
	return ok
}

// loadPage replaces the current page with a freshly rendered one. The store
// and the clock carry over, as they do across a browser reload.
func (r *runner) loadPage() error {
	n := 1
	if r.page != nil {
		n = r.page.n + 1
		r.unload()
	}
	r.res.Pages = n

	doc := dom.NewDocument()
	doc.SetPage(r.sc.Page.Height, r.sc.Page.Viewport)
	doc.SetTouchPrimary(r.sc.Page.Touch)
	p := &page{
		n:     n,
		doc:   doc,
		parts: map[string]dom.Parts{},
		links: map[string]*dom.Element{},
	}
	for i, c := range r.cfgs {
		if contains(r.sc.Missing, c.InstanceID) {
			continue
		}
		p.parts[c.InstanceID] = dom.BuildPopup(doc, r.markup(i, c))
	}
	for _, id := range r.sc.Links {
		p.links[id] = dom.OpenLink(doc, id, "Open "+id)
	}
	if r.sc.Page.ScrollY > 0 {
		doc.SetScrollY(r.sc.Page.ScrollY)
	}
	r.page = p

	log := r.log.With(logx.Int("page", n))
	eng, err := popup.New(popup.Options{
		Namespace:     r.namespace,
		ClassPrefix:   r.prefix,
		Loop:          r.loop,
		Document:      doc,
		Renderer:      dom.NewModal(doc, r.loop, r.prefix, log),
		Store:         r.store,
		Logger:        log,
		ScrollSampler: r.opts.Sampler,
		Bus:           r.opts.Bus,
		Observer:      r.opts.Observer,
	})
	if err != nil {
		return err
	}
	p.engine = eng

	// The recorder registers first so a host listener that swallows the
	// event cannot hide it from the timeline.
	for _, suffix := range []string{popup.EventBeforeOpen, popup.EventAfterOpen, popup.EventAfterClose} {
		p.removes = append(p.removes, doc.Listen(popup.EventName(r.namespace, suffix), popup.ListenOptions{}, func(ev popup.Event) {
			r.res.Timeline = append(r.res.Timeline, Entry{
				Event: suffix,
				Popup: ev.Detail.PopupID,
				At:    Duration(r.loop.Now().Sub(r.start)),
				Page:  n,
			})
		}))
	}

	if strings.TrimSpace(r.sc.Script) != "" {
		s, err := hostscript.Load(hostscript.Options{
			Name:       r.sc.Name,
			Source:     r.sc.Script,
			Document:   doc,
			Controller: eng,
			Logger:     log,
			Timeout:    r.opts.ScriptTimeout,
		})
		if err != nil {
			return fmt.Errorf("host script: %w", err)
		}
		p.script = s
	}

	// Init errors are logged by the engine; the page stays inert.
	if err := eng.InitJSON(r.popupsJSON); err != nil {
		return err
	}
	return nil
}

func (r *runner) unload() {
	p := r.page
	if p == nil {
		return
	}
	if p.script != nil {
		r.res.ScriptErrors = append(r.res.ScriptErrors, p.script.Errors()...)
		p.script.Close()
	}
	if p.engine != nil {
		p.engine.Destroy()
	}
	for _, rm := range p.removes {
		rm()
	}
	r.page = nil
}

func (r *runner) snapshot() {
	var snap map[string]popup.Status
	if r.page != nil && r.page.engine != nil {
		snap = r.page.engine.Snapshot()
	}
	for _, c := range r.cfgs {
		st, ok := snap[c.InstanceID]
		if !ok {
			st = statusSkipped
		}
		r.res.Final[c.InstanceID] = st
	}
}

func (r *runner) markup(i int, c popup.Config) dom.Markup {
	m := dom.Markup{
		ID:                  c.InstanceID,
		ClassPrefix:         r.prefix,
		Modal:               c.IsModal,
		CloseOnOutsideClick: c.CloseOnOutsideClick,
		NoDialog:            contains(r.sc.NoDialog, c.InstanceID),
		Content:             c.InstanceID,
	}
	if c.CloseButtonLabel != nil {
		m.CloseButton = *c.CloseButtonLabel
	}
	if a := r.attrs[i]; a != nil {
		m.Class = attrString(a, "class")
		m.Position = attrString(a, "position")
		m.OverlayColor = attrString(a, "overlay-color")
		m.Width = attrString(a, "width")
		m.MaxHeight = attrString(a, "max-height")
		m.Padding = attrString(a, "padding")
	}
	return m
}

func attrString(a map[string]any, name string) string {
	s, _ := a[name].(string)
	return strings.TrimSpace(s)
}
