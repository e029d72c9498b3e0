package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	chaindomain "github.com/rentora/escrow/internal/chain/domain"
	"github.com/rentora/escrow/internal/clock"
	"github.com/rentora/escrow/internal/config"
	penaltydomain "github.com/rentora/escrow/internal/penalty/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubEngine struct {
	firstPayment int
	monthlyRent  int
	handover     int
	fail         error
}

func (s *stubEngine) ProcessFirstPaymentOverdue(context.Context) (penaltydomain.BatchResult, error) {
	s.firstPayment++
	return penaltydomain.BatchResult{}, s.fail
}

func (s *stubEngine) ProcessMonthlyRentOverdue(context.Context) (penaltydomain.BatchResult, error) {
	s.monthlyRent++
	return penaltydomain.BatchResult{}, nil
}

func (s *stubEngine) ProcessHandoverOverdue(context.Context) (penaltydomain.BatchResult, error) {
	s.handover++
	return penaltydomain.BatchResult{}, nil
}

func (s *stubEngine) ApplyPaymentOverduePenalty(context.Context, snowflake.ID) (*penaltydomain.ApplyResult, error) {
	return nil, nil
}

func (s *stubEngine) CancelBookingForLateDeposit(context.Context, snowflake.ID) (*penaltydomain.ApplyResult, error) {
	return nil, nil
}

func (s *stubEngine) PenaltyHistoryForContract(context.Context, snowflake.ID) ([]*penaltydomain.PenaltyRecord, error) {
	return nil, nil
}

func (s *stubEngine) TotalPenaltiesForTenant(context.Context, snowflake.ID) (int64, error) {
	return 0, nil
}

func (s *stubEngine) ResolveRecordStatus(context.Context, snowflake.ID, penaltydomain.PenaltyStatus) error {
	return nil
}

type stubRecorder struct {
	pruneCutoffs []time.Time
	pruned       int64
}

func (s *stubRecorder) MarkOverdue(context.Context, chaindomain.ContractOverdue) error    { return nil }
func (s *stubRecorder) RecordPenalty(context.Context, chaindomain.PenaltyRecorded) error  { return nil }
func (s *stubRecorder) TerminateContract(context.Context, chaindomain.ContractTerminated) error {
	return nil
}

func (s *stubRecorder) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.pruneCutoffs = append(s.pruneCutoffs, cutoff)
	return s.pruned, nil
}

func newScheduler(t *testing.T, engine *stubEngine, recorder *stubRecorder, cfg Config) (*Scheduler, *clock.FakeClock) {
	t.Helper()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	sched, err := New(Params{
		Log:    zap.NewNop(),
		Engine: engine,
		Chain:  recorder,
		Clock:  fake,
		AppConfig: config.Config{
			Chain: config.ChainConfig{EventRetention: 90 * 24 * time.Hour},
		},
		Config: cfg,
	})
	require.NoError(t, err)
	return sched, fake
}

func TestRunOnceRunsAllJobs(t *testing.T) {
	engine := &stubEngine{}
	recorder := &stubRecorder{pruned: 3}
	sched, fake := newScheduler(t, engine, recorder, Config{})

	require.NoError(t, sched.RunOnce(context.Background()))

	assert.Equal(t, 1, engine.firstPayment)
	assert.Equal(t, 1, engine.monthlyRent)
	assert.Equal(t, 1, engine.handover)
	require.Len(t, recorder.pruneCutoffs, 1)
	assert.Equal(t, fake.Now().Add(-90*24*time.Hour), recorder.pruneCutoffs[0])
}

func TestRunOnceEnabledJobFilter(t *testing.T) {
	engine := &stubEngine{}
	recorder := &stubRecorder{}
	sched, _ := newScheduler(t, engine, recorder, Config{
		EnabledJobs: []string{JobMonthlyRentOverdue},
	})

	require.NoError(t, sched.RunOnce(context.Background()))

	assert.Zero(t, engine.firstPayment)
	assert.Equal(t, 1, engine.monthlyRent)
	assert.Zero(t, engine.handover)
	assert.Empty(t, recorder.pruneCutoffs)
}

func TestRunOnceFailingJobDoesNotBlockOthers(t *testing.T) {
	engine := &stubEngine{fail: errors.New("boom")}
	recorder := &stubRecorder{}
	sched, _ := newScheduler(t, engine, recorder, Config{})

	err := sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobFirstPaymentOverdue)

	// The failure in the first job never stopped the rest.
	assert.Equal(t, 1, engine.monthlyRent)
	assert.Equal(t, 1, engine.handover)
	assert.Len(t, recorder.pruneCutoffs, 1)
}

func TestJobTimeoutIsSoft(t *testing.T) {
	engine := &stubEngine{fail: context.DeadlineExceeded}
	recorder := &stubRecorder{}
	sched, _ := newScheduler(t, engine, recorder, Config{})

	// Deadline errors are swallowed; the batch resumes next tick.
	assert.NoError(t, sched.RunOnce(context.Background()))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Hour, cfg.RunInterval)
	assert.Equal(t, 5*time.Minute, cfg.JobTimeout)
	assert.Equal(t, 10*time.Minute, cfg.LockTTL)
}
