package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// PenaltyPolicy carries the legal penalty parameters. The daily rate and the
// hard cap are statutory ceilings; operators may configure lower values but
// the engine never exceeds them.
type PenaltyPolicy struct {
	// DailyRate is the per-day penalty rate applied to the overdue base
	// amount. Statutory ceiling: 0.03% per day.
	DailyRate decimal.Decimal
	// MaxRate caps the accumulated penalty relative to the base amount.
	// Statutory ceiling: 20%.
	MaxRate decimal.Decimal
	// TerminateRate is the threshold at which a contract can no longer
	// continue: once the accumulated penalty reaches this share of the base
	// amount the contract is terminated instead of penalized further.
	TerminateRate decimal.Decimal
	// FirstPaymentGraceDays is the window after which an unpaid first
	// payment voids the deal instead of accruing penalties.
	FirstPaymentGraceDays int
	// HandoverWindow is how long the landlord has after the first payment to
	// hand the property over.
	HandoverWindow time.Duration
	// HandoverPenaltyRate is the one-shot share of the landlord escrow
	// balance deducted when the handover window is missed.
	HandoverPenaltyRate decimal.Decimal
}

// DefaultPenaltyPolicy returns the statutory defaults.
func DefaultPenaltyPolicy() PenaltyPolicy {
	return PenaltyPolicy{
		DailyRate:             decimal.RequireFromString("0.0003"),
		MaxRate:               decimal.RequireFromString("0.20"),
		TerminateRate:         decimal.RequireFromString("0.15"),
		FirstPaymentGraceDays: 3,
		HandoverWindow:        24 * time.Hour,
		HandoverPenaltyRate:   decimal.RequireFromString("0.50"),
	}
}

var (
	statutoryDailyRate = decimal.RequireFromString("0.0003")
	statutoryMaxRate   = decimal.RequireFromString("0.20")
)

// Clamp enforces the statutory ceilings and sane lower bounds on a loaded
// policy, falling back to defaults for unusable values.
func (p PenaltyPolicy) Clamp() PenaltyPolicy {
	defaults := DefaultPenaltyPolicy()
	if p.DailyRate.LessThanOrEqual(decimal.Zero) || p.DailyRate.GreaterThan(statutoryDailyRate) {
		p.DailyRate = defaults.DailyRate
	}
	if p.MaxRate.LessThanOrEqual(decimal.Zero) || p.MaxRate.GreaterThan(statutoryMaxRate) {
		p.MaxRate = defaults.MaxRate
	}
	if p.TerminateRate.LessThanOrEqual(decimal.Zero) || p.TerminateRate.GreaterThan(p.MaxRate) {
		p.TerminateRate = defaults.TerminateRate
	}
	if p.FirstPaymentGraceDays <= 0 {
		p.FirstPaymentGraceDays = defaults.FirstPaymentGraceDays
	}
	if p.HandoverWindow <= 0 {
		p.HandoverWindow = defaults.HandoverWindow
	}
	if p.HandoverPenaltyRate.LessThanOrEqual(decimal.Zero) || p.HandoverPenaltyRate.GreaterThan(decimal.NewFromInt(1)) {
		p.HandoverPenaltyRate = defaults.HandoverPenaltyRate
	}
	return p
}

// PenaltyPolicyHolder exposes the current policy with hot reload on config
// file changes.
type PenaltyPolicyHolder struct {
	current atomic.Value // holds PenaltyPolicy
}

// NewPenaltyPolicyHolder loads policy.yml (if present) and watches it for
// changes. Missing files fall back to the statutory defaults.
func NewPenaltyPolicyHolder() (*PenaltyPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/rentora/config")
	v.AddConfigPath("/etc/rentora")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RENTORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	holder := &PenaltyPolicyHolder{}
	holder.current.Store(policyFromViper(v))

	v.OnConfigChange(func(fsnotify.Event) {
		holder.current.Store(policyFromViper(v))
		log.Println("penalty policy reloaded")
	})
	v.WatchConfig()

	return holder, nil
}

// Current returns the active penalty policy.
func (h *PenaltyPolicyHolder) Current() PenaltyPolicy {
	if h == nil {
		return DefaultPenaltyPolicy()
	}
	if p, ok := h.current.Load().(PenaltyPolicy); ok {
		return p
	}
	return DefaultPenaltyPolicy()
}

func policyFromViper(v *viper.Viper) PenaltyPolicy {
	policy := DefaultPenaltyPolicy()
	if raw := strings.TrimSpace(v.GetString("penalty.dailyRate")); raw != "" {
		if rate, err := decimal.NewFromString(raw); err == nil {
			policy.DailyRate = rate
		}
	}
	if raw := strings.TrimSpace(v.GetString("penalty.maxRate")); raw != "" {
		if rate, err := decimal.NewFromString(raw); err == nil {
			policy.MaxRate = rate
		}
	}
	if raw := strings.TrimSpace(v.GetString("penalty.terminateRate")); raw != "" {
		if rate, err := decimal.NewFromString(raw); err == nil {
			policy.TerminateRate = rate
		}
	}
	if days := v.GetInt("penalty.firstPaymentGraceDays"); days > 0 {
		policy.FirstPaymentGraceDays = days
	}
	if window := v.GetDuration("penalty.handoverWindow"); window > 0 {
		policy.HandoverWindow = window
	}
	if raw := strings.TrimSpace(v.GetString("penalty.handoverPenaltyRate")); raw != "" {
		if rate, err := decimal.NewFromString(raw); err == nil {
			policy.HandoverPenaltyRate = rate
		}
	}
	return policy.Clamp()
}
