package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spinhouse/coinledger/internal/account"
	"github.com/spinhouse/coinledger/internal/config"
)

func newLimiter(t *testing.T, a *account.Account) (*AccountLimiter, *account.MemoryStore) {
	t.Helper()
	store := account.NewMemoryStore()
	if a != nil {
		store.Put(a)
	}
	return NewAccountLimiter(store, config.DefaultRules()), store
}

func TestCheck_Allowed(t *testing.T) {
	l, _ := newLimiter(t, &account.Account{
		ID: "usr_1", TxCode: "XBT-AAA-111111-AAA",
		Balance:             decimal.RequireFromString("500.00"),
		DailyTransferAmount: decimal.Zero,
	})

	res, err := l.Check(context.Background(), "usr_1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Zero(t, res.WaitSeconds)
}

func TestCheck_MissingAccount(t *testing.T) {
	l, _ := newLimiter(t, nil)

	res, err := l.Check(context.Background(), "usr_ghost")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Zero(t, res.WaitSeconds)
}

func TestCheck_DailyCountLimit(t *testing.T) {
	l, _ := newLimiter(t, &account.Account{
		ID: "usr_1", TxCode: "XBT-AAA-111111-AAA",
		DailyTransferCount:  10,
		DailyTransferAmount: decimal.RequireFromString("100.00"),
	})

	res, err := l.Check(context.Background(), "usr_1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 86400, res.WaitSeconds)
}

func TestCheck_DailyAmountLimit(t *testing.T) {
	l, _ := newLimiter(t, &account.Account{
		ID: "usr_1", TxCode: "XBT-AAA-111111-AAA",
		DailyTransferCount:  3,
		DailyTransferAmount: decimal.RequireFromString("10000.00"),
	})

	res, err := l.Check(context.Background(), "usr_1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 86400, res.WaitSeconds)
}

func TestCheck_Cooldown(t *testing.T) {
	last := time.Now().Add(-30 * time.Second)
	l, _ := newLimiter(t, &account.Account{
		ID: "usr_1", TxCode: "XBT-AAA-111111-AAA",
		DailyTransferAmount: decimal.Zero,
		LastTransferTime:    &last,
	})
	now := last.Add(30 * time.Second)
	l.nowFn = func() time.Time { return now }

	res, err := l.Check(context.Background(), "usr_1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	// 2m cooldown minus 30s elapsed leaves 90s.
	assert.Equal(t, 90, res.WaitSeconds)
}

func TestCheck_CooldownElapsed(t *testing.T) {
	last := time.Now().Add(-3 * time.Minute)
	l, _ := newLimiter(t, &account.Account{
		ID: "usr_1", TxCode: "XBT-AAA-111111-AAA",
		DailyTransferAmount: decimal.Zero,
		LastTransferTime:    &last,
	})

	res, err := l.Check(context.Background(), "usr_1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheck_RuleOrder(t *testing.T) {
	// Daily count trumps cooldown: wait is a day, not the cooldown gap.
	last := time.Now().Add(-10 * time.Second)
	l, _ := newLimiter(t, &account.Account{
		ID: "usr_1", TxCode: "XBT-AAA-111111-AAA",
		DailyTransferCount:  10,
		DailyTransferAmount: decimal.Zero,
		LastTransferTime:    &last,
	})

	res, err := l.Check(context.Background(), "usr_1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 86400, res.WaitSeconds)
}

func TestHTTPLimiter_Allow(t *testing.T) {
	l := NewHTTPLimiter(HTTPConfig{
		RequestsPerMinute: 60,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	})
	defer l.Stop()

	assert.True(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))

	// Independent clients have independent buckets.
	assert.True(t, l.Allow("5.6.7.8"))
}
