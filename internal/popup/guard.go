package popup

import (
	"context"
	"strconv"
	"strings"
	"time"

	logx "popengine/pkg/logx"
)

// RecordStore persists reappearance records. storage.Store satisfies it.
type RecordStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}

// Guard decides whether an instance may show again, based on the epoch-ms
// timestamp of its last close.
//
// Store errors and unparsable records count as "never closed": a broken
// store must not keep popups hidden forever.
type Guard struct {
	store     RecordStore
	namespace string
	now       func() time.Time
	log       logx.Logger
}

func NewGuard(store RecordStore, namespace string, now func() time.Time, log logx.Logger) *Guard {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if now == nil {
		now = time.Now
	}
	return &Guard{store: store, namespace: namespace, now: now, log: log}
}

// RecordKey returns the persisted key for id.
func RecordKey(namespace, id string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return namespace + "_last_closed_" + id
}

// RecordPrefix returns the key prefix shared by every record of namespace.
func RecordPrefix(namespace string) string {
	return RecordKey(namespace, "")
}

// ParseRecord decodes a stored epoch-ms value.
func ParseRecord(v string) (time.Time, bool) {
	ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// RecordExpired reports whether a stored value can be dropped: it is
// malformed or older than cutoff.
func RecordExpired(v string, cutoff time.Time) bool {
	at, ok := ParseRecord(v)
	return !ok || at.Before(cutoff)
}

func (g *Guard) Key(id string) string { return RecordKey(g.namespace, id) }

// LastClosed returns the recorded close time of id.
func (g *Guard) LastClosed(id string) (time.Time, bool) {
	if g.store == nil {
		return time.Time{}, false
	}
	v, ok, err := g.store.Get(context.Background(), g.Key(id))
	if err != nil {
		g.log.Warn("reappearance record unreadable", logx.String("popup", id), logx.Err(err))
		return time.Time{}, false
	}
	if !ok {
		return time.Time{}, false
	}
	t, ok := ParseRecord(v)
	if !ok {
		g.log.Debug("reappearance record malformed", logx.String("popup", id), logx.String("value", v))
	}
	return t, ok
}

// CanReappear reports whether id may show now. It has no side effects.
func (g *Guard) CanReappear(id string, delaySeconds int) bool {
	if delaySeconds <= 0 {
		return true
	}
	last, ok := g.LastClosed(id)
	if !ok {
		return true
	}
	until := last.UnixMilli() + int64(delaySeconds)*1000
	return g.now().UnixMilli() >= until
}

// RecordClose stores the current time as the last close of id.
func (g *Guard) RecordClose(id string) {
	if g.store == nil {
		return
	}
	v := strconv.FormatInt(g.now().UnixMilli(), 10)
	if err := g.store.Put(context.Background(), g.Key(id), v); err != nil {
		g.log.Warn("reappearance record not saved", logx.String("popup", id), logx.Err(err))
	}
}
