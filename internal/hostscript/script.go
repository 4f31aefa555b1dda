// Package hostscript runs page scripts that listen to popup lifecycle events,
// the way theme or analytics code does on a real page.
//
// A script sees three globals:
//
//	document.addEventListener(type, fn, capture|{capture, passive})
//	document.removeEventListener(type, fn, capture)
//	console.log / console.warn / console.error
//	popups.trigger(id) / popups.close(id) / popups.status(id)
//
// Every callback runs synchronously inside the dispatch that delivered it,
// on the caller's goroutine (the event loop).
package hostscript

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"popengine/internal/popup"
	logx "popengine/pkg/logx"
)

const DefaultTimeout = 2 * time.Second

var ErrTimeout = errors.New("host script timed out")

// Controller is the engine surface exposed to scripts.
type Controller interface {
	Trigger(id string) popup.Outcome
	Close(id string) bool
	Status(id string) (popup.Status, bool)
}

type Options struct {
	Name     string
	Source   string
	Document popup.Document
	// Controller may be nil; popups.* calls then do nothing.
	Controller Controller
	Logger     logx.Logger
	// Timeout bounds the top-level run and each callback.
	Timeout time.Duration
}

type Script struct {
	name    string
	vm      *goja.Runtime
	doc     popup.Document
	ctrl    Controller
	log     logx.Logger
	timeout time.Duration

	listeners []*jsListener
	depth     int

	mu   sync.Mutex
	errs []error
}

type jsListener struct {
	kind    string
	fn      goja.Value
	call    goja.Callable
	capture bool
	remove  func()
}

// Load compiles and runs src. The returned Script keeps its listeners until
// Close.
func Load(opts Options) (*Script, error) {
	if opts.Document == nil {
		return nil, popup.ErrNoDocument
	}
	name := opts.Name
	if name == "" {
		name = "host.js"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := opts.Logger
	if log.IsZero() {
		log = logx.Nop()
	}

	s := &Script{
		name:    name,
		vm:      goja.New(),
		doc:     opts.Document,
		ctrl:    opts.Controller,
		log:     log.With(logx.String("comp", "hostscript"), logx.String("script", name)),
		timeout: timeout,
	}
	if err := s.install(); err != nil {
		return nil, fmt.Errorf("hostscript %s: %w", name, err)
	}

	prog, err := goja.Compile(name, opts.Source, false)
	if err != nil {
		return nil, fmt.Errorf("hostscript %s: compile: %w", name, err)
	}
	if err := s.guard(func() error {
		_, err := s.vm.RunProgram(prog)
		return err
	}); err != nil {
		s.Close()
		return nil, fmt.Errorf("hostscript %s: %w", name, err)
	}
	s.log.Debug("host script loaded", logx.Int("listeners", len(s.listeners)))
	return s, nil
}

// guard runs fn with the interrupt timer armed for the outermost call.
func (s *Script) guard(fn func() error) error {
	if s.depth == 0 {
		t := time.AfterFunc(s.timeout, func() { s.vm.Interrupt(ErrTimeout) })
		defer func() {
			t.Stop()
			s.vm.ClearInterrupt()
		}()
	}
	s.depth++
	defer func() { s.depth-- }()

	err := fn()
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("%w after %v", ErrTimeout, s.timeout)
	}
	return err
}

func (s *Script) install() error {
	document := s.vm.NewObject()
	if err := document.Set("addEventListener", s.addEventListener); err != nil {
		return err
	}
	if err := document.Set("removeEventListener", s.removeEventListener); err != nil {
		return err
	}

	console := s.vm.NewObject()
	for name, level := range map[string]func(string, ...logx.Field){
		"log":   s.log.Info,
		"info":  s.log.Info,
		"warn":  s.log.Warn,
		"error": s.log.Error,
		"debug": s.log.Debug,
	} {
		emit := level
		if err := console.Set(name, func(call goja.FunctionCall) goja.Value {
			emit("console", logx.String("msg", joinArgs(call.Arguments)))
			return goja.Undefined()
		}); err != nil {
			return err
		}
	}

	popups := s.vm.NewObject()
	if err := popups.Set("trigger", func(id string) string {
		if s.ctrl == nil {
			return string(popup.OutcomeUnknown)
		}
		return string(s.ctrl.Trigger(id))
	}); err != nil {
		return err
	}
	if err := popups.Set("close", func(id string) bool {
		return s.ctrl != nil && s.ctrl.Close(id)
	}); err != nil {
		return err
	}
	if err := popups.Set("status", func(id string) goja.Value {
		if s.ctrl == nil {
			return goja.Null()
		}
		st, ok := s.ctrl.Status(id)
		if !ok {
			return goja.Null()
		}
		return s.vm.ToValue(string(st))
	}); err != nil {
		return err
	}

	for name, obj := range map[string]*goja.Object{"document": document, "console": console, "popups": popups} {
		if err := s.vm.Set(name, obj); err != nil {
			return err
		}
	}
	return nil
}

func joinArgs(args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, " ")
}

// listenOptions reads the third addEventListener argument.
func (s *Script) listenOptions(v goja.Value) popup.ListenOptions {
	var opts popup.ListenOptions
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return opts
	}
	if obj, ok := v.(*goja.Object); ok {
		opts.Capture = obj.Get("capture") != nil && obj.Get("capture").ToBoolean()
		opts.Passive = obj.Get("passive") != nil && obj.Get("passive").ToBoolean()
		return opts
	}
	opts.Capture = v.ToBoolean()
	return opts
}

func (s *Script) addEventListener(call goja.FunctionCall) goja.Value {
	kind := call.Argument(0).String()
	fnVal := call.Argument(1)
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		panic(s.vm.NewTypeError("addEventListener: listener is not a function"))
	}
	opts := s.listenOptions(call.Argument(2))
	for _, l := range s.listeners {
		if l.kind == kind && l.capture == opts.Capture && l.fn.SameAs(fnVal) {
			return goja.Undefined()
		}
	}

	l := &jsListener{kind: kind, fn: fnVal, call: fn, capture: opts.Capture}
	l.remove = s.doc.Listen(kind, opts, func(ev popup.Event) { s.deliver(l, ev) })
	s.listeners = append(s.listeners, l)
	return goja.Undefined()
}

func (s *Script) removeEventListener(call goja.FunctionCall) goja.Value {
	kind := call.Argument(0).String()
	fnVal := call.Argument(1)
	capture := s.listenOptions(call.Argument(2)).Capture
	for i, l := range s.listeners {
		if l.kind == kind && l.capture == capture && l.fn.SameAs(fnVal) {
			l.remove()
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			break
		}
	}
	return goja.Undefined()
}

func (s *Script) deliver(l *jsListener, ev popup.Event) {
	obj := s.eventObject(ev)
	err := s.guard(func() error {
		_, err := l.call(goja.Undefined(), obj)
		return err
	})
	if err != nil {
		s.log.Warn("host script listener failed", logx.String("event", ev.Type), logx.Err(err))
		s.mu.Lock()
		s.errs = append(s.errs, err)
		s.mu.Unlock()
	}
}

func (s *Script) eventObject(ev popup.Event) *goja.Object {
	obj := s.vm.NewObject()
	_ = obj.Set("type", ev.Type)
	_ = obj.Set("key", ev.Key)
	_ = obj.Set("clientY", ev.ClientY)
	if ev.Detail.PopupID != "" {
		detail := s.vm.NewObject()
		_ = detail.Set("popupId", ev.Detail.PopupID)
		_ = obj.Set("detail", detail)
	} else {
		_ = obj.Set("detail", goja.Null())
	}
	if ev.Target != nil {
		_ = obj.Set("targetId", ev.Target.ID())
	}
	swallow := func(goja.FunctionCall) goja.Value {
		if ev.Swallow != nil {
			ev.Swallow()
		}
		return goja.Undefined()
	}
	_ = obj.Set("preventDefault", swallow)
	_ = obj.Set("stopPropagation", swallow)
	_ = obj.Set("stopImmediatePropagation", swallow)
	return obj
}

// Listeners returns the number of live listeners the script registered.
func (s *Script) Listeners() int { return len(s.listeners) }

// Errors returns the listener failures seen so far.
func (s *Script) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

// Close removes every listener the script registered.
func (s *Script) Close() {
	for _, l := range s.listeners {
		l.remove()
	}
	s.listeners = nil
}
