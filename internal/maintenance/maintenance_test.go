package maintenance

import (
	"context"
	"strconv"
	"testing"
	"time"

	"popengine/internal/config"
	"popengine/internal/popup"
	"popengine/internal/storage"
	logx "popengine/pkg/logx"
)

func TestPruneDeletesExpiredAndMalformed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)
	st := storage.NewMemory()
	put := func(key, v string) {
		if err := st.Put(ctx, key, v); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	ms := func(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

	put(popup.RecordKey("", "fresh"), ms(now.Add(-time.Hour)))
	put(popup.RecordKey("", "edge"), ms(now.Add(-48*time.Hour)))
	put(popup.RecordKey("", "old"), ms(now.Add(-49*time.Hour)))
	put(popup.RecordKey("", "junk"), "yesterday")
	put(popup.RecordKey("other", "old"), ms(now.Add(-1000*time.Hour)))

	s := New(Config{Namespace: popup.DefaultNamespace, Retention: 48 * time.Hour}, st, logx.Nop())
	s.SetClock(func() time.Time { return now })
	rep, err := s.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if rep.Scanned != 4 || rep.Deleted != 2 || rep.Malformed != 1 {
		t.Fatalf("report = %+v", rep)
	}
	for key, want := range map[string]bool{
		popup.RecordKey("", "fresh"):   true,
		popup.RecordKey("", "edge"):    true,
		popup.RecordKey("", "old"):     false,
		popup.RecordKey("", "junk"):    false,
		popup.RecordKey("other", "old"): true,
	} {
		if _, ok, _ := st.Get(ctx, key); ok != want {
			t.Fatalf("%s present = %v, want %v", key, ok, want)
		}
	}
	if s.LastReport().Deleted != 2 {
		t.Fatalf("LastReport = %+v", s.LastReport())
	}
}

func TestPruneWithoutStore(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, logx.Nop())
	if _, err := s.Prune(context.Background()); err != storage.ErrDisabled {
		t.Fatalf("Prune = %v, want ErrDisabled", err)
	}
}

func TestFromConfig(t *testing.T) {
	t.Parallel()
	cfg, err := FromConfig(&config.Config{Namespace: "acme"})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if cfg.Enabled || cfg.Namespace != "acme" || cfg.Schedule != DefaultSchedule || cfg.Retention != DefaultRetention {
		t.Fatalf("defaults = %+v", cfg)
	}

	cfg, err = FromConfig(&config.Config{Maintenance: &config.MaintenanceConfig{Enabled: true, Schedule: "0 3 * * *", Retention: "7d"}})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if !cfg.Enabled || cfg.Retention != 7*24*time.Hour || cfg.Namespace != popup.DefaultNamespace {
		t.Fatalf("cfg = %+v", cfg)
	}

	if _, err := FromConfig(&config.Config{Maintenance: &config.MaintenanceConfig{Schedule: "every tuesday"}}); err == nil {
		t.Fatal("expected schedule error")
	}
	if _, err := FromConfig(&config.Config{Maintenance: &config.MaintenanceConfig{Retention: "forever"}}); err == nil {
		t.Fatal("expected retention error")
	}
}

func TestStartApplyStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(Config{Enabled: true, Schedule: "@every 1h", Retention: time.Hour}, storage.NewMemory(), logx.Nop())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, ok := s.Next(); !ok {
		t.Fatal("no next run after Start")
	}
	if err := s.Apply(ctx, Config{Enabled: true, Schedule: "0 4 * * *", Retention: time.Hour}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	next, ok := s.Next()
	if !ok || next.Hour() != 4 {
		t.Fatalf("next = %v, %v", next, ok)
	}
	if err := s.Apply(ctx, Config{Enabled: false}); err != nil {
		t.Fatalf("Apply disable: %v", err)
	}
	if _, ok := s.Next(); ok {
		t.Fatal("still scheduled after disable")
	}
	s.Stop(ctx)
}
