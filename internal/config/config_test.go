package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseTimeString(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in, def string
		want    int
	}{
		{"90", "0", 90},
		{"60s", "0", 60},
		{"5m", "0", 300},
		{"2h", "0", 7200},
		{"1d", "0", 86400},
		{" 3D ", "0", 3 * 86400},
		{"0", "1d", 0},
		{"", "1d", 86400},
		{"soon", "1h", 3600},
		{"-5", "0", 0},
		{"1.5", "0", 1},
	}
	for _, tc := range cases {
		if got := ParseTimeString(tc.in, tc.def); got != tc.want {
			t.Fatalf("ParseTimeString(%q, %q) = %d, want %d", tc.in, tc.def, got, tc.want)
		}
	}
}

func TestParseRetention(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want time.Duration
		err  bool
	}{
		{"", time.Hour, false},
		{"720h", 720 * time.Hour, false},
		{"30d", 30 * 24 * time.Hour, false},
		{"45", 45 * time.Second, false},
		{"a week", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseRetention("r", tc.in, time.Hour)
		if (err != nil) != tc.err {
			t.Fatalf("ParseRetention(%q) err = %v", tc.in, err)
		}
		if !tc.err && got != tc.want {
			t.Fatalf("ParseRetention(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestAttrResolverOmittedFlagExplicit(t *testing.T) {
	t.Parallel()
	r := DefaultAttrResolver()
	got, err := r.Resolve(map[string]any{
		"show-after-time":   nil,  // flag
		"show-after-scroll": 40,   // explicit
		"modal":             true, // flag
		"reappear-delay":    "",   // flag
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got["show-after-time"] != 30 {
		t.Fatalf("show-after-time = %v, want 30", got["show-after-time"])
	}
	if got["show-after-scroll"] != 40 {
		t.Fatalf("show-after-scroll = %v", got["show-after-scroll"])
	}
	if got["modal"] != true || got["reappear-delay"] != "1d" {
		t.Fatalf("modal=%v reappear-delay=%v", got["modal"], got["reappear-delay"])
	}
	if got["show-on-exit-intent"] != false || got["close-on-escape"] != true {
		t.Fatalf("omitted defaults wrong: exit=%v escape=%v", got["show-on-exit-intent"], got["close-on-escape"])
	}

	if _, err := r.Resolve(map[string]any{"show-after-tim": 5}); err == nil {
		t.Fatal("expected unknown attribute error")
	}
}

func TestAttrResolverWire(t *testing.T) {
	t.Parallel()
	w, err := DefaultAttrResolver().Wire(map[string]any{
		"id":                      "promo",
		"show-after-scroll":       json.Number("150"),
		"close-button":            nil,
		"reappear-delay":          "2h",
		"open-animation":          "TADA",
		"close-animation":         "spin",
		"open-animation-duration": "450",
	})
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	checks := map[string]any{
		"instanceId":            "promo",
		"showAfterScroll":       false, // out of range
		"closeButton":           true,
		"closeButtonLabel":      "✖",
		"reappearDelay":         7200,
		"openAnimation":         "tada",
		"closeAnimation":        false,
		"openAnimationDuration": 450,
		"showAfterTime":         false,
	}
	for k, want := range checks {
		if w[k] != want {
			t.Fatalf("%s = %#v, want %#v", k, w[k], want)
		}
	}
}

func TestParseBytesYAMLWithAttributes(t *testing.T) {
	t.Parallel()
	src := []byte(`
namespace: shop
logging:
  level: debug
  console: true
storage:
  driver: memory
popups:
  - instanceId: a
    showAfterTime: 5
  - attributes:
      show-on-exit-intent:
      modal: true
`)
	cfg, err := ParseBytes("popups.yaml", src)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if cfg.NamespaceOrDefault() != "shop" || cfg.ClassPrefixOrDefault() != DefaultClassPrefix {
		t.Fatalf("namespace=%q prefix=%q", cfg.NamespaceOrDefault(), cfg.ClassPrefixOrDefault())
	}
	raw, err := cfg.PopupsJSON(nil)
	if err != nil {
		t.Fatalf("PopupsJSON: %v", err)
	}
	var doc struct {
		Popups []map[string]any `json:"popups"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc.Popups) != 2 {
		t.Fatalf("popups = %d", len(doc.Popups))
	}
	second := doc.Popups[1]
	if second["instanceId"] != "kntnt-popup-1" || second["showOnExitIntent"] != true || second["isModal"] != true {
		t.Fatalf("second popup = %v", second)
	}
}

func TestYAMLPopupScalars(t *testing.T) {
	t.Parallel()
	src := []byte(`
popups:
  - attributes:
      id: promo
      show-after-time: 0x1E
      reappear-delay: 1d
      class: 2025-01-01
      close-button:
`)
	cfg, err := ParseBytes("popups.yml", src)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	attrs := cfg.Popups[0].Attributes
	if attrs["class"] != "2025-01-01" {
		t.Fatalf("class = %#v, want the literal string", attrs["class"])
	}
	raw, err := cfg.PopupsJSON(nil)
	if err != nil {
		t.Fatalf("PopupsJSON: %v", err)
	}
	var doc struct {
		Popups []map[string]any `json:"popups"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	w := doc.Popups[0]
	if w["showAfterTime"] != float64(30) || w["reappearDelay"] != float64(86400) || w["closeButtonLabel"] != "✖" {
		t.Fatalf("wire = %v", w)
	}

	bad := map[string]string{
		"duplicate key": "popups:\n  - attributes: {id: a, id: b}\n",
		"int overflow":  "logging: {sample_per_sec: 99999999999999999999}\n",
		"infinite":      "popups:\n  - instanceId: a\n    showAfterTime: .inf\n",
	}
	for name, src := range bad {
		if _, err := ParseBytes("c.yaml", []byte(src)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	var v struct {
		Name string `yaml:"name"`
	}
	if err := DecodeYAML([]byte("name: x\n"), &v); err != nil || v.Name != "x" {
		t.Fatalf("DecodeYAML = %v, %+v", err, v)
	}
	if err := DecodeYAML(nil, &v); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("empty = %v, want ErrEmptyDocument", err)
	}
	if err := DecodeYAML([]byte("name: x\n---\nname: y\n"), &v); err == nil {
		t.Fatal("trailing document accepted")
	}
	if err := DecodeYAML([]byte("nme: x\n"), &v); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestParseBytesRejects(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"unknown field":   `{"popups":[],"bogus":1}`,
		"trailing data":   `{"popups":[]} {}`,
		"bad namespace":   `{"namespace":"a b","popups":[]}`,
		"missing path":    `{"storage":{"driver":"sqlite"},"popups":[]}`,
		"unknown driver":  `{"storage":{"driver":"redis"},"popups":[]}`,
		"mixed attribute": `{"popups":[{"attributes":{},"instanceId":"x"}]}`,
	}
	for name, src := range cases {
		if _, err := ParseBytes("c.json", []byte(src)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	_, err := ParseBytes("c.json", []byte(`{"namespace":"a b","popups":[]}`))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Observability: ObservabilityConfig{Token: "a"}}
	newCfg := &Config{
		Namespace:     "shop",
		Observability: ObservabilityConfig{Token: "b"},
		Popups:        []PopupEntry{{Wire: json.RawMessage(`{"instanceId":"x"}`)}},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"namespace", "popups"}
	if len(changed) != len(want) || changed[0] != want[0] || changed[1] != want[1] {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
}

func TestWatchPublishesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "popups.json")
	if err := os.WriteFile(path, []byte(`{"popups":[]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	m.SetDebounce(20 * time.Millisecond)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"namespace":"next","popups":[]}`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-sub:
		if cfg.Namespace != "next" {
			t.Fatalf("namespace = %q", cfg.Namespace)
		}
	case <-ctx.Done():
		t.Fatal("no config published")
	}
}
