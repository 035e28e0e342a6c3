package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type fakeLocker struct {
	locks map[string]*fakeLock
	holds map[string]time.Duration
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locks: map[string]*fakeLock{}, holds: map[string]time.Duration{}}
}

func (f *fakeLocker) For(job string, hold time.Duration) (Lock, error) {
	f.holds[job] = hold
	if _, ok := f.locks[job]; !ok {
		f.locks[job] = &fakeLock{}
	}
	return f.locks[job], nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, locks Locker, jobs map[Job]time.Duration, order ...Job) *Service {
	t.Helper()
	registry := NewRegistry()
	for _, job := range order {
		if err := registry.Register(job, jobs[job]); err != nil {
			t.Fatalf("register %s: %v", job.Name(), err)
		}
	}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: registry,
		Locks:    locks,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestRunDueRunsEveryDueJobEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "low-stock-sweep"}
	bad := &testJob{name: "outbox-retention", err: errors.New("boom")}
	locks := newFakeLocker()
	service := newTestService(t, locks, map[Job]time.Duration{ok: time.Hour, bad: 24 * time.Hour}, ok, bad)

	service.runDue(context.Background())
	if ok.runs != 1 || bad.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", ok.runs, bad.runs)
	}
	if !locks.locks[ok.name].held {
		t.Fatal("a successful run keeps its claim for the cadence")
	}
	if locks.locks[bad.name].held || locks.locks[bad.name].releases != 1 {
		t.Fatal("a failed run must give its claim back")
	}
}

func TestRunDueHonoursCadence(t *testing.T) {
	job := &testJob{name: "low-stock-sweep"}
	locks := newFakeLocker()
	service := newTestService(t, locks, map[Job]time.Duration{job: time.Hour}, job)
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	service.runDue(context.Background())
	locks.locks[job.name].held = false
	now = now.Add(30 * time.Minute)
	service.runDue(context.Background())
	if job.runs != 1 {
		t.Fatalf("job ran before its cadence elapsed: %d runs", job.runs)
	}
	now = now.Add(30 * time.Minute)
	service.runDue(context.Background())
	if job.runs != 2 {
		t.Fatalf("expected a second run after one hour, got %d", job.runs)
	}
}

func TestLockHoldCoversCadenceAndTimeout(t *testing.T) {
	hourly := &testJob{name: "low-stock-sweep"}
	fast := &testJob{name: "session-sweep"}
	locks := newFakeLocker()
	service := newTestService(t, locks, map[Job]time.Duration{hourly: time.Hour, fast: time.Minute}, hourly, fast)

	service.runDue(context.Background())
	if got := locks.holds[hourly.name]; got != time.Hour {
		t.Fatalf("expected hourly hold of one hour, got %s", got)
	}
	if got := locks.holds[fast.name]; got != defaultJobTimeout+lockGrace {
		t.Fatalf("hold must outlast a full run, got %s", got)
	}
}

func TestRunOnceSkipsJobsHeldElsewhere(t *testing.T) {
	held := &testJob{name: "low-stock-sweep"}
	free := &testJob{name: "outbox-retention"}
	locks := newFakeLocker()
	locks.locks[held.name] = &fakeLock{held: true}
	service := newTestService(t, locks, map[Job]time.Duration{held: time.Hour, free: time.Hour}, held, free)

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if held.runs != 0 {
		t.Fatal("job should not run while another replica holds its lock")
	}
	if free.runs != 1 {
		t.Fatalf("unlocked job should run, got %d", free.runs)
	}
}

func TestRunOnceReportsFailedJobs(t *testing.T) {
	bad := &testJob{name: "outbox-retention", err: errors.New("db down")}
	service := newTestService(t, newFakeLocker(), map[Job]time.Duration{bad: time.Hour}, bad)
	if err := service.RunOnce(context.Background()); err == nil {
		t.Fatal("expected failure to surface")
	}
}
