// Package policy holds the penalty business rules as pure functions, kept
// free of storage and side effects so the legal parameters can be tested
// and revisited in one place.
package policy

import (
	"time"

	"github.com/rentora/escrow/internal/config"
	"github.com/shopspring/decimal"
)

// DaysPastDue returns whole 24-hour days elapsed since dueAt, in UTC.
// Negative spans clamp to zero: day 0 carries no penalty.
func DaysPastDue(now, dueAt time.Time) int {
	elapsed := now.UTC().Sub(dueAt.UTC())
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed / (24 * time.Hour))
}

// Assessment is the computed penalty for one obligation on one day.
type Assessment struct {
	DaysPastDue int
	// Rate is the effective accumulated rate (daily rate times days,
	// capped at the policy maximum).
	Rate decimal.Decimal
	// Penalty is the amount in minor units, rounded down.
	Penalty int64
	// Capped reports that the accumulated rate hit the legal maximum.
	Capped bool
}

// Assess computes the capped penalty for a base amount overdue by the given
// number of days. All arithmetic is exact decimal; the result is floored to
// whole minor units so the penalty never exceeds the legal ceiling.
func Assess(p config.PenaltyPolicy, baseAmount int64, daysPastDue int) Assessment {
	a := Assessment{DaysPastDue: daysPastDue, Rate: decimal.Zero}
	if baseAmount <= 0 || daysPastDue <= 0 {
		return a
	}

	rate := p.DailyRate.Mul(decimal.NewFromInt(int64(daysPastDue)))
	if rate.GreaterThan(p.MaxRate) {
		rate = p.MaxRate
		a.Capped = true
	}
	a.Rate = rate
	a.Penalty = rate.Mul(decimal.NewFromInt(baseAmount)).Floor().IntPart()
	return a
}

// Decision says whether the contract continues or must be terminated.
type Decision struct {
	Terminate bool
	Reason    string
}

// Decide applies the continue-vs-terminate rule: the contract survives only
// while the accumulated penalty stays under the termination threshold and
// the tenant's escrow balance covers it.
func Decide(p config.PenaltyPolicy, baseAmount int64, a Assessment, tenantBalance int64) Decision {
	threshold := p.TerminateRate.Mul(decimal.NewFromInt(baseAmount))
	if decimal.NewFromInt(a.Penalty).GreaterThanOrEqual(threshold) {
		return Decision{Terminate: true, Reason: "accumulated penalty reached termination threshold"}
	}
	if tenantBalance < a.Penalty {
		return Decision{Terminate: true, Reason: "escrow balance cannot cover penalty"}
	}
	return Decision{}
}

// HandoverPenalty computes the one-shot deduction for a missed handover as
// a share of the landlord's escrow balance.
func HandoverPenalty(p config.PenaltyPolicy, landlordBalance int64) int64 {
	if landlordBalance <= 0 {
		return 0
	}
	return p.HandoverPenaltyRate.Mul(decimal.NewFromInt(landlordBalance)).Floor().IntPart()
}
