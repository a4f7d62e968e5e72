// Package ratelimit gates transfers per account and HTTP requests per
// client. The account limiter enforces the daily quota and cooldown
// rules; the HTTP limiter is a plain token bucket in front of the API.
package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/spinhouse/coinledger/internal/account"
	"github.com/spinhouse/coinledger/internal/config"
)

// Result is the outcome of an account-level rate check.
// WaitSeconds is 0 when Allowed, and may be 0 on denial when no
// meaningful wait exists (missing account).
type Result struct {
	Allowed     bool   `json:"allowed"`
	WaitSeconds int    `json:"waitSeconds,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

const secondsPerDay = 86400

// AccountLimiter applies the per-account transfer quota rules. It is a
// pure read over the account store; counters are bumped by the
// executor, never here.
type AccountLimiter struct {
	accounts account.Store
	rules    config.Rules
	nowFn    func() time.Time
}

// NewAccountLimiter creates an account-level rate limiter.
func NewAccountLimiter(accounts account.Store, rules config.Rules) *AccountLimiter {
	return &AccountLimiter{accounts: accounts, rules: rules, nowFn: time.Now}
}

// Check evaluates the quota rules in order; the first failing rule
// wins. Rules: account exists, daily count, daily amount, cooldown.
func (l *AccountLimiter) Check(ctx context.Context, accountID string) (Result, error) {
	a, err := l.accounts.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return Result{Allowed: false, Reason: "account not found"}, nil
		}
		return Result{}, err
	}

	if a.DailyTransferCount >= l.rules.DailyLimit {
		return Result{
			Allowed:     false,
			WaitSeconds: secondsPerDay,
			Reason:      "daily transfer limit reached",
		}, nil
	}

	if a.DailyTransferAmount.GreaterThanOrEqual(l.rules.DailyAmountLimit) {
		return Result{
			Allowed:     false,
			WaitSeconds: secondsPerDay,
			Reason:      "daily transfer amount limit reached",
		}, nil
	}

	if a.LastTransferTime != nil {
		elapsed := l.nowFn().Sub(*a.LastTransferTime)
		if elapsed < l.rules.Cooldown {
			remaining := l.rules.Cooldown - elapsed
			return Result{
				Allowed:     false,
				WaitSeconds: int(math.Ceil(remaining.Seconds())),
				Reason:      "cooldown between transfers",
			}, nil
		}
	}

	return Result{Allowed: true}, nil
}
