// Package scheduler drives the periodic batch jobs: overdue scans, the
// handover deadline sweep and chain outbox retention. Every job is safe to
// re-run and safe to overlap; the optional redis lock only avoids duplicate
// work across workers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	chaindomain "github.com/rentora/escrow/internal/chain/domain"
	"github.com/rentora/escrow/internal/clock"
	"github.com/rentora/escrow/internal/config"
	"github.com/rentora/escrow/internal/distlock"
	obsmetrics "github.com/rentora/escrow/internal/observability/metrics"
	penaltydomain "github.com/rentora/escrow/internal/penalty/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

const (
	JobFirstPaymentOverdue = "first_payment_overdue"
	JobMonthlyRentOverdue  = "monthly_rent_overdue"
	JobHandoverOverdue     = "handover_overdue"
	JobChainEventCleanup   = "chain_event_cleanup"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Engine    penaltydomain.Engine
	Chain     chaindomain.Recorder
	Clock     clock.Clock
	AppConfig config.Config
	Config    Config           `optional:"true"`
	Locker    *distlock.Locker `optional:"true"`
}

type Scheduler struct {
	log    *zap.Logger
	cfg    Config
	appCfg config.Config
	engine penaltydomain.Engine
	chain  chaindomain.Recorder
	clock  clock.Clock
	locker *distlock.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Engine == nil || p.Chain == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:    p.Log.Named("scheduler"),
		cfg:    p.Config.withDefaults(),
		appCfg: p.AppConfig,
		engine: p.Engine,
		chain:  p.Chain,
		clock:  p.Clock,
		locker: p.Locker,
	}, nil
}

// RunOnce executes every enabled job sequentially and aggregates their
// errors. A failing job never blocks the jobs after it.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobFirstPaymentOverdue, func(ctx context.Context) error {
			_, jobErr := s.engine.ProcessFirstPaymentOverdue(ctx)
			return jobErr
		}},
		{JobMonthlyRentOverdue, func(ctx context.Context) error {
			_, jobErr := s.engine.ProcessMonthlyRentOverdue(ctx)
			return jobErr
		}},
		{JobHandoverOverdue, func(ctx context.Context) error {
			_, jobErr := s.engine.ProcessHandoverOverdue(ctx)
			return jobErr
		}},
		{JobChainEventCleanup, s.chainEventCleanupJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
	}
	return err
}

// RunForever loops RunOnce on the configured interval until the context is
// cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			schedMetrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	release, acquired, err := s.acquireLock(ctx, name)
	if err != nil {
		s.log.Warn("job lock unavailable, running unlocked",
			zap.String("job", name),
			zap.Error(err),
		)
	} else if !acquired {
		s.log.Debug("job held by another worker", zap.String("job", name))
		return nil
	}
	if release != nil {
		defer release()
	}

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)
	start := time.Now()

	jobErr := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if jobErr == nil {
		return nil
	}

	schedMetrics.IncJobError(name)
	// A deadline is a soft timeout: the batch resumes where it left off on
	// the next tick.
	if errors.Is(jobErr, context.DeadlineExceeded) || errors.Is(jobErr, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(jobErr),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, jobErr)
}

func (s *Scheduler) acquireLock(ctx context.Context, name string) (func(), bool, error) {
	if s.locker == nil {
		return nil, true, nil
	}
	key := "escrow:scheduler:" + name
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		return nil, true, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.log.Warn("job lock release failed", zap.String("job", name), zap.Error(err))
		}
	}
	return release, true, nil
}

func (s *Scheduler) chainEventCleanupJob(ctx context.Context) error {
	retention := s.appCfg.Chain.EventRetention
	if retention <= 0 {
		return nil
	}
	cutoff := s.clock.Now().Add(-retention)
	pruned, err := s.chain.PruneBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune chain events: %w", err)
	}
	obsmetrics.Scheduler().AddBatchProcessed(JobChainEventCleanup, int(pruned))
	if pruned > 0 {
		s.log.Info("chain events pruned",
			zap.Int64("count", pruned),
			zap.Time("cutoff", cutoff),
		)
	}
	return nil
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty means all jobs (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
