package transfer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spinhouse/coinledger/internal/audit"
	"github.com/spinhouse/coinledger/internal/config"
)

// Stats summarizes a user's transfer activity against their quotas.
type Stats struct {
	DailyTransfers       int             `json:"dailyTransfers"`
	DailyAmount          decimal.Decimal `json:"dailyAmount"`
	WeeklyTransfers      int             `json:"weeklyTransfers"`
	WeeklyAmount         decimal.Decimal `json:"weeklyAmount"`
	RemainingDailyLimit  int             `json:"remainingDailyLimit"`
	RemainingDailyAmount decimal.Decimal `json:"remainingDailyAmount"`
}

// StatsService computes user transfer stats from the audit trail.
// Daily figures run from UTC midnight; weekly figures are a trailing
// seven days.
type StatsService struct {
	audits audit.Store
	rules  config.Rules
	nowFn  func() time.Time
}

// NewStatsService creates a stats service.
func NewStatsService(audits audit.Store, rules config.Rules) *StatsService {
	return &StatsService{audits: audits, rules: rules, nowFn: time.Now}
}

// UserStats returns the activity summary for one user. Access control
// (self or admin) is the handler's job.
func (s *StatsService) UserStats(ctx context.Context, userID string) (*Stats, error) {
	now := s.nowFn().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	daily, err := s.audits.SenderTotalsSince(ctx, userID, midnight)
	if err != nil {
		return nil, err
	}
	weekly, err := s.audits.SenderTotalsSince(ctx, userID, weekAgo)
	if err != nil {
		return nil, err
	}

	remainingCount := s.rules.DailyLimit - daily.Count
	if remainingCount < 0 {
		remainingCount = 0
	}
	remainingAmount := s.rules.DailyAmountLimit.Sub(daily.Amount)
	if remainingAmount.Sign() < 0 {
		remainingAmount = decimal.Zero
	}

	return &Stats{
		DailyTransfers:       daily.Count,
		DailyAmount:          daily.Amount,
		WeeklyTransfers:      weekly.Count,
		WeeklyAmount:         weekly.Amount,
		RemainingDailyLimit:  remainingCount,
		RemainingDailyAmount: remainingAmount,
	}, nil
}
