package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"popengine/internal/config"
	"popengine/internal/eventbus"
	"popengine/internal/popup"
	logx "popengine/pkg/logx"
)

func TestMetricsObserveLifecycle(t *testing.T) {
	t.Parallel()
	m := NewMetrics()
	m.Armed("a")
	m.Armed("b")
	m.TriggerAttempt("a", popup.SourceTimer, popup.OutcomeWon)
	m.TriggerAttempt("a", popup.SourceScroll, popup.OutcomeNotArmed)
	m.Disarmed("a")
	m.Opened("a")
	m.Closed("a")
	m.Skipped("missing_container")

	reg := m.Registry()
	cases := []struct {
		name   string
		labels []string
		want   float64
	}{
		{"popup_armed_instances", nil, 1},
		{"popup_trigger_attempts_total", []string{"source", "timer", "outcome", "won"}, 1},
		{"popup_trigger_attempts_total", []string{"source", "scroll", "outcome", "not_armed"}, 1},
		{"popup_opens_total", nil, 1},
		{"popup_closes_total", nil, 1},
		{"popup_skipped_total", []string{"reason", "missing_container"}, 1},
	}
	for _, tc := range cases {
		if got := metricValue(t, reg, tc.name, tc.labels...); got != tc.want {
			t.Fatalf("%s%v = %v, want %v", tc.name, tc.labels, got, tc.want)
		}
	}
}

// metricValue returns the counter or gauge value of the series matching the
// label pairs.
func metricValue(t *testing.T, g prometheus.Gatherer, name string, pairs ...string) float64 {
	t.Helper()
	families, err := g.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			have := map[string]string{}
			for _, l := range m.GetLabel() {
				have[l.GetName()] = l.GetValue()
			}
			for i := 0; i+1 < len(pairs); i += 2 {
				if have[pairs[i]] != pairs[i+1] {
					continue series
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("series %s%v not found", name, pairs)
	return 0
}

func TestFromConfig(t *testing.T) {
	t.Parallel()
	cfg, err := FromConfig(config.ObservabilityConfig{Enabled: true})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if cfg.Addr != DefaultAddr || cfg.Prefix != DefaultPrefix || cfg.ReadTimeout != 5*time.Second || cfg.IdleTimeout != 120*time.Second {
		t.Fatalf("defaults = %+v", cfg)
	}

	_, err = FromConfig(config.ObservabilityConfig{Enabled: true, Addr: "0.0.0.0:9464"})
	if !errors.Is(err, ErrInsecureBind) {
		t.Fatalf("public bind = %v, want ErrInsecureBind", err)
	}
	if _, err := FromConfig(config.ObservabilityConfig{Enabled: true, Addr: "0.0.0.0:9464", Token: "s3cret"}); err != nil {
		t.Fatalf("public bind with token: %v", err)
	}
	if _, err := FromConfig(config.ObservabilityConfig{Enabled: true, Addr: "nope"}); err == nil {
		t.Fatal("expected invalid addr error")
	}
	if _, err := FromConfig(config.ObservabilityConfig{ReadTimeout: "soon"}); err == nil {
		t.Fatal("expected invalid duration error")
	}
}

func waitForAddr(t *testing.T, s *Server) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a := s.Addr(); a != "" {
			return a
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server never bound")
	return ""
}

func get(t *testing.T, url, bearer string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, http.NoBody)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestServerServesMetricsWithToken(t *testing.T) {
	m := NewMetrics()
	if err := m.WatchBus(eventbus.New()); err != nil {
		t.Fatalf("WatchBus: %v", err)
	}
	m.Opened("a")

	s := NewServer(m.Registry(), logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	t.Cleanup(func() { s.Stop(context.Background()) })

	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", Token: "t0k", Pprof: true, Prefix: "/pp"})
	addr := waitForAddr(t, s)

	if code, _ := get(t, "http://"+addr+"/metrics", ""); code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", code)
	}
	code, body := get(t, "http://"+addr+"/metrics", "t0k")
	if code != http.StatusOK {
		t.Fatalf("with token: status %d", code)
	}
	for _, want := range []string{"popup_opens_total 1", "popup_bus_dropped_total 0"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics body missing %q", want)
		}
	}
	if code, _ := get(t, "http://"+addr+"/pp/?token=t0k", ""); code != http.StatusOK {
		t.Fatalf("pprof index status %d", code)
	}

	s.Reconfigure(ctx, Config{Enabled: false})
	if a := s.Addr(); a != "" {
		t.Fatalf("server still bound at %s", a)
	}
}

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"":              "/debug/pprof/",
		"pp":            "/pp/",
		"/x/y":          "/x/y/",
		"/debug/pprof/": "/debug/pprof/",
	}
	for in, want := range cases {
		if got := normalizePrefix(in); got != want {
			t.Fatalf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
