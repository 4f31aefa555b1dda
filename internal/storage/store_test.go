package storage

import (
	"context"
	"path/filepath"
	"testing"

	logx "popengine/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for _, cfg := range []Config{
		{Driver: "memory"},
		{Driver: "file", Path: filepath.Join(dir, "records.json")},
		{Driver: "sqlite", Path: filepath.Join(dir, "records.db")},
	} {
		st, err := Open(cfg, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%s): %v", cfg.Driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[cfg.Driver] = st
	}
	return out
}

func TestStoreRoundTripAllDrivers(t *testing.T) {
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := st.Get(ctx, "missing"); err != nil || ok {
				t.Fatalf("Get(missing) = ok=%v err=%v", ok, err)
			}
			if err := st.Put(ctx, "kntnt_popup_last_closed_a", "1000"); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := st.Put(ctx, "kntnt_popup_last_closed_a", "2000"); err != nil {
				t.Fatalf("Put overwrite: %v", err)
			}
			v, ok, err := st.Get(ctx, "kntnt_popup_last_closed_a")
			if err != nil || !ok || v != "2000" {
				t.Fatalf("Get = %q ok=%v err=%v, want 2000", v, ok, err)
			}
			if err := st.Delete(ctx, "kntnt_popup_last_closed_a"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, ok, _ := st.Get(ctx, "kntnt_popup_last_closed_a"); ok {
				t.Fatal("key still present after Delete")
			}
		})
	}
}

func TestStoreListByPrefix(t *testing.T) {
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			_ = st.Put(ctx, "ns_last_closed_b", "2")
			_ = st.Put(ctx, "ns_last_closed_a", "1")
			_ = st.Put(ctx, "nsXlast_closed_c", "3")
			_ = st.Put(ctx, "other", "4")

			items, err := st.List(ctx, "ns_last_closed_")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(items) != 2 || items[0].Key != "ns_last_closed_a" || items[1].Key != "ns_last_closed_b" {
				t.Fatalf("List = %+v", items)
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.json")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = st.Put(ctx, "keep", "1")
	_ = st.Put(ctx, "drop", "2")
	_ = st.Delete(ctx, "drop")
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	if v, ok, _ := st2.Get(ctx, "keep"); !ok || v != "1" {
		t.Fatalf("keep = %q ok=%v", v, ok)
	}
	if _, ok, _ := st2.Get(ctx, "drop"); ok {
		t.Fatal("deleted key came back")
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if st != nil || err != nil {
		t.Fatalf("none driver = %v, %v", st, err)
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
