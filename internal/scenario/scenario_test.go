package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"popengine/internal/config"
	"popengine/internal/popup"
	"popengine/internal/storage"
)

var epoch = time.UnixMilli(1_700_000_000_000)

func testConfig() *config.Config {
	return &config.Config{
		Popups: []config.PopupEntry{
			{Wire: json.RawMessage(`{"instanceId":"p1","showAfterTime":5,"closeButton":true,"closeButtonLabel":"x","reappearDelay":3600}`)},
			{Attributes: map[string]any{"id": "p2", "show-on-exit-intent": true, "close-button": true, "position": "top"}},
		},
	}
}

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	sc, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return sc
}

func TestRunTimelineAcrossReload(t *testing.T) {
	t.Parallel()
	sc := mustParse(t, `
name: visit
page: {height: 2000, viewport: 800}
steps:
  - wait: 5s
  - dismiss: p1
  - exit_intent: 0
  - wait: 100ms
  - key: Escape
  - reload: true
expect:
  timeline:
    - {event: before_open, popup: p1, at: 5s, page: 1}
    - {event: after_open, popup: p1}
    - {event: after_close, popup: p1}
    - {event: before_open, popup: p2, at: 5.1s}
    - {event: after_open, popup: p2}
    - {event: after_close, popup: p2}
  final: {p1: skipped, p2: armed}
  opens: {p1: 1, p2: 1}
`)
	res, err := Run(context.Background(), sc, Options{Config: testConfig(), Start: epoch})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.OK() {
		t.Fatalf("failures: %v\ntimeline: %s", res.Failures, formatTimeline(res.Timeline))
	}
	if res.Pages != 2 {
		t.Fatalf("pages = %d, want 2", res.Pages)
	}
}

func TestRunSharedStoreSuppressesNextRun(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	sc := mustParse(t, `
page: {height: 2000, viewport: 800}
steps:
  - trigger: p1
  - close: p1
`)
	opts := Options{Config: testConfig(), Store: st, Start: epoch}
	first, err := Run(context.Background(), sc, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if first.Final["p1"] != popup.StatusClosed {
		t.Fatalf("first run p1 = %s", first.Final["p1"])
	}

	opts.Start = epoch.Add(10 * time.Minute)
	second, err := Run(context.Background(), mustParse(t, `page: {height: 2000, viewport: 800}`), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if second.Final["p1"] != statusSkipped || second.Final["p2"] != popup.StatusArmed {
		t.Fatalf("second run final = %v", second.Final)
	}
}

func TestRunHostScriptVeto(t *testing.T) {
	t.Parallel()
	sc := mustParse(t, `
page: {height: 2000, viewport: 800}
script: |
  document.addEventListener("kntnt_popup:before_open", function (e) {
    if (e.detail.popupId === "p1") { popups.close("p1"); }
  });
steps:
  - wait: 5s
expect:
  timeline:
    - {event: before_open, popup: p1}
    - {event: after_close, popup: p1}
  final: {p1: closed}
  opens: {p1: 0}
`)
	res, err := Run(context.Background(), sc, Options{Config: testConfig(), Start: epoch})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.OK() {
		t.Fatalf("failures: %v\ntimeline: %s", res.Failures, formatTimeline(res.Timeline))
	}
	if len(res.ScriptErrors) != 0 {
		t.Fatalf("script errors: %v", res.ScriptErrors)
	}
}

func TestRunMissingContainerAndStepFailure(t *testing.T) {
	t.Parallel()
	sc := mustParse(t, `
page: {height: 2000, viewport: 800}
missing: [p1]
steps:
  - wait: 10s
  - dismiss: p1
  - click: p2
expect:
  final: {p1: skipped, p2: armed}
`)
	res, err := Run(context.Background(), sc, Options{Config: testConfig(), Start: epoch})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Timeline) != 0 {
		t.Fatalf("timeline = %s, want empty", formatTimeline(res.Timeline))
	}
	if len(res.Failures) != 2 {
		t.Fatalf("failures = %v, want 2 step failures", res.Failures)
	}
	if !strings.Contains(res.Failures[0], "not on the page") || !strings.Contains(res.Failures[1], "no open link") {
		t.Fatalf("failures = %v", res.Failures)
	}
}

func TestRunOpenLinkAndScroll(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Popups: []config.PopupEntry{
		{Wire: json.RawMessage(`{"instanceId":"promo","showAfterScroll":50,"closeOutsideClick":true,"closeButton":false}`)},
		{Wire: json.RawMessage(`{"instanceId":"help"}`)},
	}}
	sc := mustParse(t, `
page: {height: 1000, viewport: 500}
links: [help]
steps:
  - scroll: 49
  - scroll: 50
  - dismiss: promo
  - click: help
expect:
  timeline:
    - {event: before_open, popup: promo}
    - {event: after_open, popup: promo}
    - {event: after_close, popup: promo}
    - {event: before_open, popup: help}
    - {event: after_open, popup: help}
  final: {promo: closed, help: open}
`)
	res, err := Run(context.Background(), sc, Options{Config: cfg, Start: epoch})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.OK() {
		t.Fatalf("failures: %v\ntimeline: %s", res.Failures, formatTimeline(res.Timeline))
	}
}

func TestRunRealtime(t *testing.T) {
	cfg := &config.Config{Popups: []config.PopupEntry{
		{Wire: json.RawMessage(`{"instanceId":"now","showAfterTime":0}`)},
	}}
	sc := mustParse(t, `
page: {height: 800, viewport: 800}
steps:
  - wait: 50ms
expect:
  timeline:
    - {event: before_open, popup: now}
    - {event: after_open, popup: now}
`)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := Run(ctx, sc, Options{Config: cfg, Realtime: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.OK() {
		t.Fatalf("failures: %v", res.Failures)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Popups: []config.PopupEntry{
		{Wire: json.RawMessage(`{"instanceId":"a"}`)},
		{Wire: json.RawMessage(`{"instanceId":"a"}`)},
	}}
	_, err := Run(context.Background(), mustParse(t, `page: {height: 1, viewport: 1}`), Options{Config: cfg})
	if !errors.Is(err, popup.ErrInvalidConfig) {
		t.Fatalf("Run = %v, want ErrInvalidConfig", err)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"two actions":   "steps: [{wait: 1s, key: Escape}]",
		"no action":     "steps: [{}]",
		"scroll range":  "steps: [{scroll: 120}]",
		"unknown key":   "pages: {}",
		"unknown event": "expect: {timeline: [{event: opened, popup: a}]}",
		"bad status":    "expect: {final: {a: gone}}",
		"bad duration":  "steps: [{wait: soon}]",
		"empty":         "",
		"two documents": "name: a\n---\nname: b\n",
	}
	for name, src := range cases {
		if _, err := Parse([]byte(src)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestDurationAcceptsSeconds(t *testing.T) {
	t.Parallel()
	sc := mustParse(t, "steps: [{wait: 2}, {wait: 1.5s}, {wait: 0.25}]")
	want := []time.Duration{2 * time.Second, 1500 * time.Millisecond, 250 * time.Millisecond}
	for i, w := range want {
		if got := time.Duration(sc.Steps[i].Wait); got != w {
			t.Fatalf("steps[%d].wait = %s, want %s", i, got, w)
		}
	}
}

func TestLoadInlinesScriptFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "page.js"), []byte(`console.log("hi");`), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "landing.yaml")
	if err := os.WriteFile(path, []byte("script_file: page.js\nsteps: [{wait: 1s}]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	sc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sc.Name != "landing" || !strings.Contains(sc.Script, "console.log") {
		t.Fatalf("scenario = %+v", sc)
	}
}

func TestVerifyReportsMismatches(t *testing.T) {
	t.Parallel()
	res := &Result{
		Timeline: []Entry{
			{Event: popup.EventBeforeOpen, Popup: "a", At: Duration(time.Second), Page: 1},
			{Event: popup.EventAfterOpen, Popup: "a", At: Duration(time.Second), Page: 1},
		},
		Final: map[string]popup.Status{"a": popup.StatusOpen},
	}
	want := Expect{
		Timeline: []Entry{
			{Event: popup.EventBeforeOpen, Popup: "a", At: Duration(2 * time.Second)},
			{Event: popup.EventAfterOpen, Popup: "a", Page: 2},
		},
		Final: map[string]string{"a": "closed", "b": "armed"},
		Opens: map[string]int{"a": 1},
	}
	got := Verify(res, want, 0)
	if len(got) != 4 {
		t.Fatalf("Verify = %v, want 4 failures", got)
	}
	if got := Verify(res, Expect{Timeline: want.Timeline[:1]}, 0); len(got) != 1 || !strings.Contains(got[0], "has 2 events") {
		t.Fatalf("length mismatch = %v", got)
	}
}
