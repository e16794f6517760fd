package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"capowatch/internal/config"
	"capowatch/internal/storage"
)

type stubJobs struct {
	discoveries int
	collects    int
	days        []time.Time
	collectErr  error
}

func (s *stubJobs) SyncFromSources(context.Context) ([]storage.Oracle, error) {
	s.discoveries++
	return nil, nil
}

func (s *stubJobs) Collect(context.Context) error {
	s.collects++
	return s.collectErr
}

func (s *stubJobs) AggregateDailyData(_ context.Context, midnight time.Time) (int, error) {
	s.days = append(s.days, midnight)
	return 1, nil
}

type stubLocker struct {
	held     map[int64]bool
	released []int64
}

func (l *stubLocker) TryAdvisoryLock(_ context.Context, key int64) (func(), bool, error) {
	if l.held[key] {
		return nil, false, nil
	}
	return func() { l.released = append(l.released, key) }, true, nil
}

func newTestService(jobs *stubJobs, locker storage.AdvisoryLocker, key int64) *Service {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{
		CollectInterval:   time.Minute,
		DiscoveryInterval: 4 * time.Hour,
		DailyOffset:       5 * time.Minute,
		AdvisoryLockKey:   key,
	}}
	return New(cfg, jobs, jobs, jobs, locker, zerolog.Nop())
}

func TestTicksDelegate(t *testing.T) {
	jobs := &stubJobs{}
	svc := newTestService(jobs, nil, 0)
	ctx := context.Background()
	midnight := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	if err := svc.DiscoverTick(ctx, midnight); err != nil {
		t.Fatalf("discover tick: %v", err)
	}
	if err := svc.CollectTick(ctx, midnight); err != nil {
		t.Fatalf("collect tick: %v", err)
	}
	if err := svc.AggregateTick(ctx, midnight); err != nil {
		t.Fatalf("aggregate tick: %v", err)
	}
	if jobs.discoveries != 1 || jobs.collects != 1 {
		t.Fatalf("jobs not invoked: %+v", jobs)
	}
	if len(jobs.days) != 1 || !jobs.days[0].Equal(midnight) {
		t.Fatalf("aggregator should receive the bucket, got %v", jobs.days)
	}
}

func TestTickSkippedWhenLockHeld(t *testing.T) {
	jobs := &stubJobs{}
	locker := &stubLocker{held: map[int64]bool{100 + lockOffsets[jobCollect]: true}}
	svc := newTestService(jobs, locker, 100)
	ctx := context.Background()

	if err := svc.CollectTick(ctx, time.Now()); err != nil {
		t.Fatalf("skipped tick should not error: %v", err)
	}
	if jobs.collects != 0 {
		t.Fatal("collect must not run while another replica holds the lock")
	}

	if err := svc.DiscoverTick(ctx, time.Now()); err != nil {
		t.Fatalf("discover tick: %v", err)
	}
	if jobs.discoveries != 1 {
		t.Fatal("discovery uses its own lock key and should run")
	}
	if len(locker.released) != 1 || locker.released[0] != 100+lockOffsets[jobDiscovery] {
		t.Fatalf("lock should be released after the tick, got %v", locker.released)
	}
}

func TestTickWrapsJobError(t *testing.T) {
	boom := errors.New("boom")
	svc := newTestService(&stubJobs{collectErr: boom}, nil, 0)
	if err := svc.CollectTick(context.Background(), time.Now()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped job error, got %v", err)
	}
}
