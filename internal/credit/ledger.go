// Package credit implements the credit ledger: a monthly free allowance
// plus a paid wallet balance per user, consumed free-first.
package credit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sendloop/sendloop/internal/store"
)

// DefaultFreeMonthlyAllowance is the number of message credits each user may
// consume per calendar month before the paid balance is touched.
const DefaultFreeMonthlyAllowance = 100

// ErrInsufficientBalance is returned by Consume when the paid portion of a
// consumption cannot be covered. The free-tier counter is not advanced.
var ErrInsufficientBalance = store.ErrInsufficientBalance

// Availability is the read-only answer to "can N credits be consumed?".
type Availability struct {
	Allowed       bool
	WalletBalance int64
	FreeRemaining int64
}

// Consumption reports how a consumed amount was split.
type Consumption struct {
	FreeUsed int64
	PaidUsed int64
}

// Ledger answers availability checks and performs atomic consumption.
//
// CheckAvailability does not reserve: a caller that checks and later consumes
// can overshoot the free allowance under concurrent requests for the same
// user. That looseness is deliberate; the paid balance is still strictly
// protected by the store's conditional decrement.
type Ledger struct {
	wallets   store.WalletStore
	allowance int64
	now       func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithAllowance overrides the monthly free allowance.
func WithAllowance(n int64) Option {
	return func(l *Ledger) { l.allowance = n }
}

// WithClock overrides the period clock (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(wallets store.WalletStore, opts ...Option) *Ledger {
	l := &Ledger{
		wallets:   wallets,
		allowance: DefaultFreeMonthlyAllowance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// split computes the free/paid portions for a consumption of credits given
// the period's used counter.
func (l *Ledger) split(used, credits int64) (free, paid int64) {
	remaining := l.allowance - used
	if remaining < 0 {
		remaining = 0
	}
	free = credits
	if free > remaining {
		free = remaining
	}
	return free, credits - free
}

// CheckAvailability reports whether credits can be consumed right now,
// without mutating anything. Wallet and usage rows are created lazily.
func (l *Ledger) CheckAvailability(ctx context.Context, userID string, credits int64) (Availability, error) {
	if credits <= 0 {
		return Availability{}, fmt.Errorf("credits must be positive, got %d", credits)
	}

	wallet, err := l.wallets.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return Availability{}, fmt.Errorf("check availability: %w", err)
	}
	usage, err := l.wallets.GetOrCreateUsage(ctx, userID, store.PeriodOf(l.now()))
	if err != nil {
		return Availability{}, fmt.Errorf("check availability: %w", err)
	}

	_, paid := l.split(usage.Used, credits)
	return Availability{
		Allowed:       paid <= wallet.Balance,
		WalletBalance: wallet.Balance,
		FreeRemaining: max(0, l.allowance-usage.Used),
	}, nil
}

// Consume debits credits, free tier first, then the paid balance. Both
// mutations commit atomically or not at all; an uncoverable paid portion
// yields ErrInsufficientBalance with nothing persisted.
func (l *Ledger) Consume(ctx context.Context, userID string, credits int64) (Consumption, error) {
	if credits <= 0 {
		return Consumption{}, fmt.Errorf("credits must be positive, got %d", credits)
	}

	period := store.PeriodOf(l.now())
	usage, err := l.wallets.GetOrCreateUsage(ctx, userID, period)
	if err != nil {
		return Consumption{}, fmt.Errorf("consume: %w", err)
	}
	if _, err := l.wallets.GetOrCreateWallet(ctx, userID); err != nil {
		return Consumption{}, fmt.Errorf("consume: %w", err)
	}

	free, paid := l.split(usage.Used, credits)

	if err := l.wallets.ApplyConsumption(ctx, userID, period, free, paid); err != nil {
		if errors.Is(err, store.ErrInsufficientBalance) {
			return Consumption{}, fmt.Errorf("consume %d credits (paid portion %d): %w", credits, paid, ErrInsufficientBalance)
		}
		return Consumption{}, fmt.Errorf("consume: %w", err)
	}

	slog.Debug("credits consumed", "user", userID, "free", free, "paid", paid)
	return Consumption{FreeUsed: free, PaidUsed: paid}, nil
}
