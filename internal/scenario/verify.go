package scenario

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"popengine/internal/popup"
)

// Verify compares res against want. At offsets may drift by tol.
func Verify(res *Result, want Expect, tol time.Duration) []string {
	var out []string
	if len(want.Timeline) > 0 {
		out = append(out, verifyTimeline(res.Timeline, want.Timeline, tol)...)
	}

	for _, id := range sortedKeys(want.Final) {
		got, ok := res.Final[id]
		if !ok {
			out = append(out, fmt.Sprintf("final[%s]: popup not configured", id))
			continue
		}
		if string(got) != want.Final[id] {
			out = append(out, fmt.Sprintf("final[%s] = %s, want %s", id, got, want.Final[id]))
		}
	}

	if len(want.Opens) > 0 {
		opens := map[string]int{}
		for _, e := range res.Timeline {
			if e.Event == popup.EventAfterOpen {
				opens[e.Popup]++
			}
		}
		for _, id := range sortedKeys(want.Opens) {
			if opens[id] != want.Opens[id] {
				out = append(out, fmt.Sprintf("opens[%s] = %d, want %d", id, opens[id], want.Opens[id]))
			}
		}
	}
	return out
}

func verifyTimeline(got, want []Entry, tol time.Duration) []string {
	if len(got) != len(want) {
		return []string{fmt.Sprintf("timeline has %d events, want %d: %s", len(got), len(want), formatTimeline(got))}
	}
	var out []string
	for i := range want {
		g, w := got[i], want[i]
		if g.Event != w.Event || g.Popup != w.Popup {
			out = append(out, fmt.Sprintf("timeline[%d] = %s#%s, want %s#%s", i, g.Event, g.Popup, w.Event, w.Popup))
			continue
		}
		if w.Page != 0 && g.Page != w.Page {
			out = append(out, fmt.Sprintf("timeline[%d] %s#%s on page %d, want %d", i, w.Event, w.Popup, g.Page, w.Page))
		}
		if w.At != 0 {
			d := time.Duration(g.At - w.At)
			if d < 0 {
				d = -d
			}
			if d > tol {
				out = append(out, fmt.Sprintf("timeline[%d] %s#%s at %s, want %s", i, w.Event, w.Popup, time.Duration(g.At), time.Duration(w.At)))
			}
		}
	}
	return out
}

func formatTimeline(es []Entry) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
