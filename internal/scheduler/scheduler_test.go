package scheduler

import (
	"context"
	"sync"
	"testing"

	"jobalertbot/internal/alert"
	"jobalertbot/pkg/logx"
)

type recordFirer struct {
	mu    sync.Mutex
	fired []alert.Alert
}

func (f *recordFirer) Fire(_ context.Context, snapshot alert.Alert) {
	f.mu.Lock()
	f.fired = append(f.fired, snapshot)
	f.mu.Unlock()
}

func testAlert(id, period string) alert.Alert {
	sched, _ := alert.ScheduleForPeriod(period)
	return alert.Alert{
		ID:       id,
		UserID:   1,
		ChatID:   10,
		Criteria: alert.SearchCriteria{Query: "go engineer", Period: period},
		Schedule: sched,
	}
}

func startService(t *testing.T) (*Service, func()) {
	t.Helper()
	s := New(Config{}, &recordFirer{}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	return s, func() {
		s.Stop(context.Background())
		cancel()
	}
}

func TestAddBeforeStart(t *testing.T) {
	t.Parallel()
	s := New(Config{}, &recordFirer{}, logx.Nop())
	if err := s.Add(testAlert("a1", "daily")); err == nil {
		t.Fatal("expected error adding before Start")
	}
}

func TestAddIsFirstWriterWins(t *testing.T) {
	t.Parallel()
	s, stop := startService(t)
	defer stop()

	first := testAlert("a1", "daily")
	if err := s.Add(first); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Same id, different snapshot: no-op, first snapshot preserved.
	second := testAlert("a1", "hourly")
	if err := s.Add(second); err != nil {
		t.Fatalf("duplicate Add: %v", err)
	}
	if got := s.Count(); got != 1 {
		t.Fatalf("Count = %d, want 1", got)
	}
	snap, ok := s.Snapshot("a1")
	if !ok {
		t.Fatal("snapshot missing")
	}
	if snap.Schedule.Period != "daily" {
		t.Fatalf("snapshot period = %q, want daily (first writer)", snap.Schedule.Period)
	}
}

func TestRemoveThenReAdd(t *testing.T) {
	t.Parallel()
	s, stop := startService(t)
	defer stop()

	if err := s.Add(testAlert("a1", "daily")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Remove("a1")
	if s.Has("a1") {
		t.Fatal("trigger still live after Remove")
	}

	// Removing frees the id for a fresh registration.
	if err := s.Add(testAlert("a1", "hourly")); err != nil {
		t.Fatalf("re-Add: %v", err)
	}
	snap, _ := s.Snapshot("a1")
	if snap.Schedule.Period != "hourly" {
		t.Fatalf("snapshot period = %q, want hourly", snap.Schedule.Period)
	}
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	t.Parallel()
	s, stop := startService(t)
	defer stop()
	s.Remove("missing")
	if got := s.Count(); got != 0 {
		t.Fatalf("Count = %d, want 0", got)
	}
}

func TestReplaceSwapsSnapshot(t *testing.T) {
	t.Parallel()
	s, stop := startService(t)
	defer stop()

	if err := s.Add(testAlert("a1", "daily")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Replace(testAlert("a1", "weekly")); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if got := s.Count(); got != 1 {
		t.Fatalf("Count = %d, want 1", got)
	}
	snap, _ := s.Snapshot("a1")
	if snap.Schedule.Period != "weekly" {
		t.Fatalf("snapshot period = %q, want weekly", snap.Schedule.Period)
	}

	// Replace also registers ids that were never added.
	if err := s.Replace(testAlert("a2", "daily")); err != nil {
		t.Fatalf("Replace new id: %v", err)
	}
	if !s.Has("a2") {
		t.Fatal("a2 not registered")
	}
}

func TestLoadInitialSkipsBadRecords(t *testing.T) {
	t.Parallel()
	s, stop := startService(t)
	defer stop()

	bad := testAlert("", "daily") // empty id
	jobs := []alert.Alert{testAlert("a1", "daily"), bad, testAlert("a2", "weekly")}

	err := s.LoadInitial(jobs)
	if err == nil {
		t.Fatal("expected first error from bad record")
	}
	if got := s.Count(); got != 2 {
		t.Fatalf("Count = %d, want 2 (good records loaded)", got)
	}
}

func TestStopClearsTriggers(t *testing.T) {
	t.Parallel()
	s, stop := startService(t)

	if err := s.Add(testAlert("a1", "daily")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	stop()
	if got := s.Count(); got != 0 {
		t.Fatalf("Count after Stop = %d, want 0", got)
	}
	if err := s.Add(testAlert("a2", "daily")); err == nil {
		t.Fatal("expected error adding after Stop")
	}
}

func TestInvalidCronSpecRejected(t *testing.T) {
	t.Parallel()
	s, stop := startService(t)
	defer stop()

	a := testAlert("a1", "daily")
	a.Schedule.CronSpec = "not a cron spec"
	if err := s.Add(a); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
	if s.Has("a1") {
		t.Fatal("invalid trigger registered")
	}
}
