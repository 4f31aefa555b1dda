// Package scenario replays scripted page visits against the popup engine.
//
// A scenario describes one page (its scroll geometry, which containers the
// theme rendered, an optional host script) and a list of visitor actions.
// The runner builds the page from the popup configuration, drives the engine
// on a loop and records every lifecycle event it dispatches, so a scenario
// file doubles as an executable acceptance test for a configuration.
//
// Example:
//
//	name: newsletter
//	page: {height: 3000, viewport: 800}
//	links: [newsletter]
//	steps:
//	  - wait: 5s
//	  - scroll: 60
//	  - dismiss: newsletter
//	  - reload: true
//	expect:
//	  timeline:
//	    - {event: before_open, popup: newsletter, at: 5s}
//	    - {event: after_open, popup: newsletter}
//	    - {event: after_close, popup: newsletter}
//	  final: {newsletter: closed}
package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"popengine/internal/config"
	"popengine/internal/popup"
)

var ErrInvalid = errors.New("invalid scenario")

type Scenario struct {
	Name string `yaml:"name"`
	Page Page   `yaml:"page"`

	// Missing lists popup ids whose container the theme did not render.
	Missing []string `yaml:"missing,omitempty"`
	// NoDialog lists popup ids rendered without their dialog element.
	NoDialog []string `yaml:"no_dialog,omitempty"`
	// Links lists popup ids that get an open-trigger link on the page.
	Links []string `yaml:"links,omitempty"`

	// Script is inline host JavaScript; ScriptFile is read relative to the
	// scenario file. At most one may be set.
	Script     string `yaml:"script,omitempty"`
	ScriptFile string `yaml:"script_file,omitempty"`

	Steps  []Step `yaml:"steps"`
	Expect Expect `yaml:"expect,omitempty"`
}

type Page struct {
	Height   float64 `yaml:"height"`
	Viewport float64 `yaml:"viewport"`
	// ScrollY is the restored scroll position at load.
	ScrollY float64 `yaml:"scroll_y,omitempty"`
	Touch   bool    `yaml:"touch,omitempty"`
}

// Step is one visitor action. Exactly one field is set.
type Step struct {
	Wait       Duration `yaml:"wait,omitempty"`
	Scroll     *float64 `yaml:"scroll,omitempty"`      // percent of the scrollable range
	ExitIntent *float64 `yaml:"exit_intent,omitempty"` // clientY of the mouseleave
	Click      string   `yaml:"click,omitempty"`       // open-trigger link of a popup
	Dismiss    string   `yaml:"dismiss,omitempty"`     // close button (or overlay) of a popup
	Key        string   `yaml:"key,omitempty"`
	Reload     bool     `yaml:"reload,omitempty"`
	Trigger    string   `yaml:"trigger,omitempty"`
	Close      string   `yaml:"close,omitempty"`
}

// Kind names the action of s, or "" when none or several are set.
func (s Step) Kind() string {
	var kinds []string
	if s.Wait > 0 {
		kinds = append(kinds, "wait")
	}
	if s.Scroll != nil {
		kinds = append(kinds, "scroll")
	}
	if s.ExitIntent != nil {
		kinds = append(kinds, "exit_intent")
	}
	if s.Click != "" {
		kinds = append(kinds, "click")
	}
	if s.Dismiss != "" {
		kinds = append(kinds, "dismiss")
	}
	if s.Key != "" {
		kinds = append(kinds, "key")
	}
	if s.Reload {
		kinds = append(kinds, "reload")
	}
	if s.Trigger != "" {
		kinds = append(kinds, "trigger")
	}
	if s.Close != "" {
		kinds = append(kinds, "close")
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

type Expect struct {
	// Timeline, when set, must equal the recorded lifecycle events in order.
	Timeline []Entry `yaml:"timeline,omitempty"`
	// Final maps popup ids to their status after the last step. "skipped"
	// means the engine never armed the popup on the last page.
	Final map[string]string `yaml:"final,omitempty"`
	// Opens bounds the number of after_open events per popup.
	Opens map[string]int `yaml:"opens,omitempty"`
}

// Entry is one recorded lifecycle event.
type Entry struct {
	Event string `yaml:"event"`
	Popup string `yaml:"popup"`
	// At is the offset from the start of the run. Zero in an expectation
	// means "any time".
	At Duration `yaml:"at,omitempty"`
	// Page counts reloads, starting at 1. Zero in an expectation means "any".
	Page int `yaml:"page,omitempty"`
}

func (e Entry) String() string {
	return fmt.Sprintf("%s#%s@%s/p%d", e.Event, e.Popup, time.Duration(e.At), e.Page)
}

// Duration accepts Go durations ("1.5s") and bare numbers of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	s := strings.TrimSpace(n.Value)
	if s == "" {
		*d = 0
		return nil
	}
	if v, err := time.ParseDuration(s); err == nil {
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := n.Decode(&secs); err != nil {
		return fmt.Errorf("line %d: invalid duration %q", n.Line, s)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

var lifecycleEvents = map[string]bool{
	popup.EventBeforeOpen: true,
	popup.EventAfterOpen:  true,
	popup.EventAfterClose: true,
}

// Load reads a scenario file. A relative ScriptFile is resolved against the
// directory of path and inlined.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if sc.ScriptFile != "" {
		sp := sc.ScriptFile
		if !filepath.IsAbs(sp) {
			sp = filepath.Join(filepath.Dir(path), sp)
		}
		src, err := os.ReadFile(sp)
		if err != nil {
			return nil, fmt.Errorf("%s: script_file: %w", path, err)
		}
		sc.Script = string(src)
	}
	return sc, nil
}

// Parse decodes YAML (or JSON) with unknown keys rejected and validates the
// result.
func Parse(b []byte) (*Scenario, error) {
	var sc Scenario
	if err := config.DecodeYAML(b, &sc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) Validate() error {
	if sc.Page.Viewport < 0 || sc.Page.Height < 0 {
		return fmt.Errorf("%w: page dimensions must be >= 0", ErrInvalid)
	}
	if sc.Script != "" && sc.ScriptFile != "" {
		return fmt.Errorf("%w: script and script_file are exclusive", ErrInvalid)
	}
	for i, s := range sc.Steps {
		if s.Kind() == "" {
			return fmt.Errorf("%w: steps[%d]: exactly one action required", ErrInvalid, i)
		}
		if s.Scroll != nil && (*s.Scroll < 0 || *s.Scroll > 100) {
			return fmt.Errorf("%w: steps[%d]: scroll must be within 0..100", ErrInvalid, i)
		}
	}
	for i, e := range sc.Expect.Timeline {
		if !lifecycleEvents[e.Event] {
			return fmt.Errorf("%w: expect.timeline[%d]: unknown event %q", ErrInvalid, i, e.Event)
		}
		if e.Popup == "" {
			return fmt.Errorf("%w: expect.timeline[%d]: popup required", ErrInvalid, i)
		}
	}
	for id, st := range sc.Expect.Final {
		switch popup.Status(st) {
		case popup.StatusArmed, popup.StatusTriggered, popup.StatusOpen, popup.StatusClosed, statusSkipped:
		default:
			return fmt.Errorf("%w: expect.final[%s]: unknown status %q", ErrInvalid, id, st)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
