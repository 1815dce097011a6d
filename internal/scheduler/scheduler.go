// Package scheduler owns one recurring cron trigger per active alert id.
//
// Add is idempotent (first writer wins: a second Add for a live id is a
// no-op and keeps the first snapshot). Replace is remove-then-add, never
// an in-place mutation, so there is never a moment with two live
// triggers for one id. A failed fire is logged and the trigger stays
// registered.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"jobalertbot/internal/alert"
	"jobalertbot/pkg/logx"
)

// Firer receives each trigger fire with the job's current snapshot.
// The production Firer is the trigger gate.
type Firer interface {
	Fire(ctx context.Context, snapshot alert.Alert)
}

type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Berlin"; empty means Local
}

type entry struct {
	id       cron.EntryID
	snapshot alert.Alert
}

type Service struct {
	mu sync.Mutex

	cfg   Config
	log   logx.Logger
	firer Firer

	parser  cron.Parser
	c       *cron.Cron
	entries map[string]entry

	runCtx context.Context
}

func New(cfg Config, firer Firer, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:   cfg,
		log:   log,
		firer: firer,
		parser: cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries: map[string]entry{},
	}
}

// Start brings up the cron runtime. Triggers added before Start are
// registered now; LoadInitial is normally called right after.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx = ctx

	loc := s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", loc.String()))
}

// Stop cancels all triggers and clears the trigger set. In-flight
// external calls are the gate's concern, not the scheduler's.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	n := len(s.entries)
	s.entries = map[string]entry{}
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
	s.log.Info("scheduler stopped", logx.Int("cancelled", n))
}

// Add registers a recurring trigger for job. A live trigger with the
// same alert id makes this a no-op: the existing trigger and snapshot
// are preserved.
func (s *Service) Add(job alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(job)
}

func (s *Service) addLocked(job alert.Alert) error {
	if s.c == nil {
		return errors.New("scheduler not started")
	}
	if strings.TrimSpace(job.ID) == "" {
		return errors.New("alert id is empty")
	}
	if _, exists := s.entries[job.ID]; exists {
		s.log.Debug("trigger already registered", logx.String("alert_id", job.ID))
		return nil
	}

	snapshot := job
	id, err := s.c.AddFunc(job.Schedule.CronSpec, func() {
		s.fire(snapshot)
	})
	if err != nil {
		return fmt.Errorf("register trigger for %s: %w", job.ID, err)
	}
	s.entries[job.ID] = entry{id: id, snapshot: snapshot}
	s.log.Info("trigger registered",
		logx.String("alert_id", job.ID),
		logx.String("period", job.Schedule.Period),
		logx.String("spec", job.Schedule.CronSpec),
	)
	return nil
}

func (s *Service) fire(snapshot alert.Alert) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	// Failures are the gate's to log; a failed fire never deregisters
	// the trigger.
	s.firer.Fire(ctx, snapshot)
}

// Remove deregisters the trigger for alertID. No-op when absent.
func (s *Service) Remove(alertID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(alertID)
}

func (s *Service) removeLocked(alertID string) {
	e, ok := s.entries[alertID]
	if !ok {
		return
	}
	if s.c != nil {
		s.c.Remove(e.id)
	}
	delete(s.entries, alertID)
	s.log.Info("trigger removed", logx.String("alert_id", alertID))
}

// Replace swaps the trigger for job.ID: remove then add. A brief gap
// with zero triggers is acceptable; two live triggers for one id never
// happen.
func (s *Service) Replace(job alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(job.ID)
	return s.addLocked(job)
}

// LoadInitial bulk-adds every persisted job at startup. Afterwards the
// in-memory trigger set corresponds 1:1 to the persisted set; individual
// bad records are logged and skipped rather than failing the boot.
func (s *Service) LoadInitial(jobs []alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	loaded := 0
	for _, j := range jobs {
		if err := s.addLocked(j); err != nil {
			s.log.Error("initial load: skipping alert", logx.String("alert_id", j.ID), logx.Err(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		loaded++
	}
	s.log.Info("initial load complete", logx.Int("loaded", loaded), logx.Int("total", len(jobs)))
	return firstErr
}

// Has reports whether a live trigger exists for alertID.
func (s *Service) Has(alertID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[alertID]
	return ok
}

// Count reports the number of live triggers.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Snapshot returns the registered snapshot for alertID, if any.
func (s *Service) Snapshot(alertID string) (alert.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[alertID]
	return e.snapshot, ok
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
