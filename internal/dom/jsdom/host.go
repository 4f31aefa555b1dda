//go:build js && wasm

package jsdom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall/js"
	"time"

	"popengine/internal/loop"
	"popengine/internal/popup"
)

var ErrNoMicroModal = errors.New("jsdom: MicroModal is not loaded")

// Modal renders through window.MicroModal.
type Modal struct {
	mm js.Value
	// hooks of the last Show per id, released on the next Show.
	hooks map[string][]js.Func
}

func NewModal() (*Modal, error) {
	mm := js.Global().Get("MicroModal")
	if !mm.Truthy() {
		return nil, ErrNoMicroModal
	}
	return &Modal{mm: mm, hooks: map[string][]js.Func{}}, nil
}

func (m *Modal) Show(id string, opts popup.ShowOptions) (err error) {
	defer recoverJS(&err)
	for _, f := range m.hooks[id] {
		f.Release()
	}
	hook := func(fn func(popup.Element)) js.Func {
		return js.FuncOf(func(_ js.Value, args []js.Value) any {
			if fn == nil || len(args) == 0 {
				return nil
			}
			if el, ok := wrap(args[0]); ok {
				fn(el)
			}
			return nil
		})
	}
	onShow, onClose := hook(opts.OnShow), hook(opts.OnClose)
	m.hooks[id] = []js.Func{onShow, onClose}

	m.mm.Call("show", id, map[string]any{
		"onShow":              onShow,
		"onClose":             onClose,
		"openTrigger":         opts.OpenTrigger,
		"closeTrigger":        opts.CloseTrigger,
		"openClass":           opts.OpenClass,
		"disableScroll":       opts.DisableScroll,
		"disableFocus":        opts.DisableFocus,
		"awaitOpenAnimation":  opts.AwaitOpenAnimation,
		"awaitCloseAnimation": opts.AwaitCloseAnimation,
	})
	return nil
}

func (m *Modal) Close(id string) (err error) {
	defer recoverJS(&err)
	m.mm.Call("close", id)
	return nil
}

// LocalStore keeps records in window.localStorage. Private browsing modes
// that throw on access surface as errors, which the guard treats as absent
// records.
type LocalStore struct {
	ls js.Value
}

func NewLocalStore() *LocalStore {
	return &LocalStore{ls: js.Global().Get("localStorage")}
}

func (s *LocalStore) Get(_ context.Context, key string) (v string, ok bool, err error) {
	defer recoverJS(&err)
	if !s.ls.Truthy() {
		return "", false, nil
	}
	r := s.ls.Call("getItem", key)
	if r.IsNull() {
		return "", false, nil
	}
	return r.String(), true, nil
}

func (s *LocalStore) Put(_ context.Context, key, value string) (err error) {
	defer recoverJS(&err)
	if !s.ls.Truthy() {
		return errors.New("jsdom: localStorage unavailable")
	}
	s.ls.Call("setItem", key, value)
	return nil
}

func (s *LocalStore) Delete(_ context.Context, key string) (err error) {
	defer recoverJS(&err)
	if s.ls.Truthy() {
		s.ls.Call("removeItem", key)
	}
	return nil
}

// Keys lists stored keys with the given prefix.
func (s *LocalStore) Keys(prefix string) (keys []string, err error) {
	defer recoverJS(&err)
	if !s.ls.Truthy() {
		return nil, nil
	}
	n := s.ls.Get("length").Int()
	for i := 0; i < n; i++ {
		k := s.ls.Call("key", i)
		if k.Type() == js.TypeString && strings.HasPrefix(k.String(), prefix) {
			keys = append(keys, k.String())
		}
	}
	return keys, nil
}

func recoverJS(err *error) {
	if r := recover(); r != nil {
		if jerr, ok := r.(js.Error); ok {
			*err = jerr
			return
		}
		*err = fmt.Errorf("jsdom: %v", r)
	}
}

// TimeoutLoop schedules callbacks with window.setTimeout. The browser
// already runs them one at a time.
type TimeoutLoop struct{}

func (TimeoutLoop) Now() time.Time { return time.Now() }

func (l TimeoutLoop) Post(fn func()) { l.AfterFunc(0, fn) }

func (TimeoutLoop) AfterFunc(d time.Duration, fn func()) loop.Timer {
	t := &timeoutTimer{}
	t.cb = js.FuncOf(func(js.Value, []js.Value) any {
		if t.finish() {
			fn()
		}
		return nil
	})
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	t.id = js.Global().Call("setTimeout", t.cb, ms)
	return t
}

type timeoutTimer struct {
	mu   sync.Mutex
	id   js.Value
	cb   js.Func
	done bool
}

// finish marks the timer spent and releases its callback. It reports
// whether this call did so.
func (t *timeoutTimer) finish() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.cb.Release()
	return true
}

func (t *timeoutTimer) Stop() bool {
	if !t.finish() {
		return false
	}
	js.Global().Call("clearTimeout", t.id)
	return true
}
