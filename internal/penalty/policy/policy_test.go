package policy

import (
	"testing"
	"time"

	"github.com/rentora/escrow/internal/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDaysPastDue(t *testing.T) {
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, DaysPastDue(due.Add(-time.Hour), due))
	assert.Equal(t, 0, DaysPastDue(due, due))
	assert.Equal(t, 0, DaysPastDue(due.Add(23*time.Hour), due))
	assert.Equal(t, 1, DaysPastDue(due.Add(24*time.Hour), due))
	assert.Equal(t, 5, DaysPastDue(due.Add(5*24*time.Hour+time.Minute), due))
}

func TestAssessFiveDays(t *testing.T) {
	a := Assess(config.DefaultPenaltyPolicy(), 10_000_000, 5)

	assert.Equal(t, int64(15_000), a.Penalty)
	assert.False(t, a.Capped)
	assert.True(t, a.Rate.Equal(decimal.RequireFromString("0.0015")))
}

func TestAssessDayZeroIsFree(t *testing.T) {
	a := Assess(config.DefaultPenaltyPolicy(), 10_000_000, 0)
	assert.Zero(t, a.Penalty)
}

func TestAssessMonotonicAndCapped(t *testing.T) {
	p := config.DefaultPenaltyPolicy()
	base := int64(10_000_000)
	cap := int64(2_000_000) // 20% of base

	var prev int64
	for days := 1; days <= 1000; days++ {
		a := Assess(p, base, days)
		assert.GreaterOrEqual(t, a.Penalty, prev, "days=%d", days)
		assert.LessOrEqual(t, a.Penalty, cap, "days=%d", days)
		prev = a.Penalty
	}

	// 0.03%/day crosses 20% at day 667.
	assert.True(t, Assess(p, base, 667).Capped)
	assert.Equal(t, cap, Assess(p, base, 1000).Penalty)
}

func TestDecide(t *testing.T) {
	p := config.DefaultPenaltyPolicy()
	base := int64(10_000_000)

	// Small penalty, covered balance: continue.
	d := Decide(p, base, Assess(p, base, 5), 9_000_000)
	assert.False(t, d.Terminate)

	// 15% of base is 1,500,000, reached at day 500.
	d = Decide(p, base, Assess(p, base, 500), 9_000_000)
	assert.True(t, d.Terminate)

	// Balance cannot cover the penalty: terminate.
	d = Decide(p, base, Assess(p, base, 5), 10_000)
	assert.True(t, d.Terminate)
	assert.Equal(t, "escrow balance cannot cover penalty", d.Reason)
}

func TestHandoverPenalty(t *testing.T) {
	p := config.DefaultPenaltyPolicy()

	assert.Equal(t, int64(4_000_000), HandoverPenalty(p, 8_000_000))
	assert.Zero(t, HandoverPenalty(p, 0))
	// Odd balances round down.
	assert.Equal(t, int64(2), HandoverPenalty(p, 5))
}
