package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"capowatch/internal/config"
	"capowatch/internal/metrics"
	"capowatch/internal/scheduler"
	"capowatch/internal/storage"
)

// Discoverer runs discovery sweeps.
type Discoverer interface {
	SyncFromSources(ctx context.Context) ([]storage.Oracle, error)
}

// Collector runs snapshot ticks.
type Collector interface {
	Collect(ctx context.Context) error
}

// Aggregator rolls up the previous day.
type Aggregator interface {
	AggregateDailyData(ctx context.Context, todayMidnight time.Time) (int, error)
}

const (
	jobDiscovery = "discovery"
	jobCollect   = "collect"
	jobDaily     = "daily_aggregation"
)

// added to scheduler.advisory_lock_key
var lockOffsets = map[string]int64{
	jobDiscovery: 1,
	jobCollect:   2,
	jobDaily:     3,
}

// Service orchestrates the three periodic jobs.
type Service struct {
	cfg        config.SchedulerConfig
	discovery  Discoverer
	collector  Collector
	aggregator Aggregator
	locker     storage.AdvisoryLocker
	logger     zerolog.Logger
}

// New constructs the monitoring service. locker may be nil.
func New(cfg *config.Config, discovery Discoverer, collector Collector, aggregator Aggregator, locker storage.AdvisoryLocker, logger zerolog.Logger) *Service {
	return &Service{
		cfg:        cfg.Scheduler,
		discovery:  discovery,
		collector:  collector,
		aggregator: aggregator,
		locker:     locker,
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// Run starts every job on its own scheduler and blocks until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	jobs := []struct {
		opts scheduler.Options
		tick scheduler.TickFunc
	}{
		{
			opts: scheduler.Options{Name: jobDiscovery, Interval: s.cfg.DiscoveryInterval, RunAtStart: true, StartupDelay: s.cfg.StartupDelay},
			tick: s.DiscoverTick,
		},
		{
			opts: scheduler.Options{Name: jobCollect, Interval: s.cfg.CollectInterval, AlignToStart: true, StartupDelay: s.cfg.StartupDelay},
			tick: s.CollectTick,
		},
		{
			opts: scheduler.Options{Name: jobDaily, Interval: 24 * time.Hour, Offset: s.cfg.DailyOffset, AlignToStart: true},
			tick: s.AggregateTick,
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		sched := scheduler.New(job.opts, s.logger)
		tick := job.tick
		g.Go(func() error {
			return sched.Run(gctx, tick)
		})
	}

	s.logger.Info().
		Dur("collect_interval", s.cfg.CollectInterval).
		Dur("discovery_interval", s.cfg.DiscoveryInterval).
		Dur("daily_offset", s.cfg.DailyOffset).
		Msg("monitoring service started")

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// DiscoverTick runs one discovery sweep.
func (s *Service) DiscoverTick(ctx context.Context, bucket time.Time) error {
	return s.runJob(ctx, jobDiscovery, bucket, func(ctx context.Context) error {
		found, err := s.discovery.SyncFromSources(ctx)
		if err != nil {
			return err
		}
		s.logger.Info().Int("oracles", len(found)).Msg("discovery completed")
		return nil
	})
}

// CollectTick runs one snapshot collection.
func (s *Service) CollectTick(ctx context.Context, bucket time.Time) error {
	return s.runJob(ctx, jobCollect, bucket, s.collector.Collect)
}

// AggregateTick aggregates the day that ended at bucket.
func (s *Service) AggregateTick(ctx context.Context, bucket time.Time) error {
	return s.runJob(ctx, jobDaily, bucket, func(ctx context.Context) error {
		_, err := s.aggregator.AggregateDailyData(ctx, bucket)
		return err
	})
}

func (s *Service) runJob(ctx context.Context, job string, bucket time.Time, fn func(context.Context) error) error {
	unlock, proceed, err := s.acquireLock(ctx, job)
	if err != nil {
		metrics.JobRunsTotal.WithLabelValues(job, "error").Inc()
		return err
	}
	if !proceed {
		metrics.JobRunsTotal.WithLabelValues(job, "skipped").Inc()
		s.logger.Debug().Str("job", job).Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	start := time.Now()
	err = fn(ctx)
	metrics.JobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.JobRunsTotal.WithLabelValues(job, "error").Inc()
		return fmt.Errorf("%s: %w", job, err)
	}
	metrics.JobRunsTotal.WithLabelValues(job, "ok").Inc()
	return nil
}

func (s *Service) acquireLock(ctx context.Context, job string) (func(), bool, error) {
	if s.cfg.AdvisoryLockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.cfg.AdvisoryLockKey+lockOffsets[job])
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
