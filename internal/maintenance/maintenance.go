// Package maintenance prunes reappearance records that can no longer
// suppress anything.
package maintenance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"popengine/internal/config"
	"popengine/internal/popup"
	"popengine/internal/storage"
	logx "popengine/pkg/logx"
)

const (
	DefaultSchedule  = "@daily"
	DefaultRetention = popup.DefaultRecordRetention
)

type Config struct {
	Enabled   bool
	Schedule  string
	Retention time.Duration
	Timezone  string
	Namespace string
}

// FromConfig maps the file section. A nil section yields a disabled Config.
func FromConfig(c *config.Config) (Config, error) {
	out := Config{Namespace: c.NamespaceOrDefault(), Schedule: DefaultSchedule, Retention: DefaultRetention}
	if c == nil || c.Maintenance == nil {
		return out, nil
	}
	mc := c.Maintenance
	out.Enabled = mc.Enabled
	out.Timezone = strings.TrimSpace(mc.Timezone)
	if s := strings.TrimSpace(mc.Schedule); s != "" {
		out.Schedule = s
	}
	ret, err := config.ParseRetention("maintenance.retention", mc.Retention, DefaultRetention)
	if err != nil {
		return out, err
	}
	out.Retention = ret
	if _, err := newParser().Parse(out.Schedule); err != nil {
		return out, fmt.Errorf("maintenance.schedule: %w", err)
	}
	return out, nil
}

// Report summarizes one prune run.
type Report struct {
	Scanned   int
	Deleted   int
	Malformed int
	At        time.Time
}

// Store is the subset of storage.Store the pruner needs.
type Store interface {
	List(ctx context.Context, prefix string) ([]storage.Item, error)
	Delete(ctx context.Context, key string) error
}

type Service struct {
	mu     sync.Mutex
	cfg    Config
	store  Store
	log    logx.Logger
	now    func() time.Time
	parser cron.Parser

	c     *cron.Cron
	loc   *time.Location
	entry cron.EntryID
	last  Report
}

func newParser() cron.Parser {
	// SecondOptional allows both 5-field and 6-field specs.
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

func New(cfg Config, store Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		log:    log.With(logx.String("comp", "maintenance")),
		now:    time.Now,
		parser: newParser(),
	}
}

// SetClock replaces the time source used to judge expiry.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.now = now
	}
}

// LastReport returns the result of the most recent run.
func (s *Service) LastReport() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Prune deletes every record older than the retention, plus records whose
// value cannot be parsed.
func (s *Service) Prune(ctx context.Context) (Report, error) {
	s.mu.Lock()
	cfg, now := s.cfg, s.now()
	s.mu.Unlock()

	rep := Report{At: now}
	if s.store == nil {
		return rep, storage.ErrDisabled
	}
	items, err := s.store.List(ctx, popup.RecordPrefix(cfg.Namespace))
	if err != nil {
		return rep, fmt.Errorf("prune: list: %w", err)
	}
	cutoff := now.Add(-cfg.Retention)
	for _, it := range items {
		rep.Scanned++
		closedAt, ok := popup.ParseRecord(it.Value)
		if ok && !closedAt.Before(cutoff) {
			continue
		}
		if !ok {
			rep.Malformed++
		}
		if err := s.store.Delete(ctx, it.Key); err != nil {
			return rep, fmt.Errorf("prune: delete %s: %w", it.Key, err)
		}
		rep.Deleted++
	}

	s.mu.Lock()
	s.last = rep
	s.mu.Unlock()
	s.log.Info("reappearance records pruned",
		logx.Int("scanned", rep.Scanned),
		logx.Int("deleted", rep.Deleted),
		logx.Int("malformed", rep.Malformed),
		logx.Duration("retention", cfg.Retention),
	)
	return rep, nil
}

// Start registers the cron job. It is a no-op when disabled or running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return nil
	}
	return s.startLocked(ctx)
}

func (s *Service) startLocked(ctx context.Context) error {
	loc := s.loadLocationLocked()
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	id, err := c.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.Prune(ctx); err != nil {
			s.log.Warn("prune failed", logx.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("maintenance: schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.c, s.loc, s.entry = c, loc, id
	s.log.Info("maintenance scheduled",
		logx.String("schedule", s.cfg.Schedule),
		logx.String("tz", loc.String()),
		logx.Time("next", c.Entry(id).Next),
	)
	return nil
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Next reports the next scheduled run, if any.
func (s *Service) Next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}, false
	}
	return s.c.Entry(s.entry).Next, true
}

// Apply swaps the configuration and reschedules when needed.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cfg
	s.cfg = cfg
	running := s.c != nil

	switch {
	case !cfg.Enabled:
		if running {
			s.stopLocked(ctx)
		}
		return nil
	case !running:
		return s.startLocked(ctx)
	case prev.Schedule != cfg.Schedule || prev.Timezone != cfg.Timezone:
		s.stopLocked(ctx)
		return s.startLocked(ctx)
	}
	return nil
}

// Stop halts the scheduler and waits for a running prune.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Service) stopLocked(ctx context.Context) {
	if s.c == nil {
		return
	}
	done := s.c.Stop()
	s.c = nil
	// Prune takes s.mu; release it while waiting for the job.
	s.mu.Unlock()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.mu.Lock()
}
