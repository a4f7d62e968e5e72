package audit

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(sender, recipient, amount string, at time.Time) *Entry {
	return &Entry{
		TransactionID:   "TX-1-AAAAAAAA",
		SenderID:        sender,
		RecipientID:     recipient,
		SenderTxCode:    "XBT-AAA-111111-AAA",
		RecipientTxCode: "XBT-BBB-222222-BBB",
		Amount:          decimal.RequireFromString(amount),
		Status:          "completed",
		CreatedAt:       at,
	}
}

func TestMemoryStore_WindowQueries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()

	require.NoError(t, store.Append(ctx, entry("usr_a", "usr_b", "50.00", now.Add(-90*time.Minute))))
	require.NoError(t, store.Append(ctx, entry("usr_a", "usr_b", "25.00", now.Add(-30*time.Minute))))
	require.NoError(t, store.Append(ctx, entry("usr_a", "usr_c", "10.00", now.Add(-10*time.Minute))))
	require.NoError(t, store.Append(ctx, entry("usr_x", "usr_b", "99.00", now.Add(-5*time.Minute))))

	n, err := store.CountBySenderSince(ctx, "usr_a", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.CountBySenderToRecipientSince(ctx, "usr_a", "usr_b", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.CountBySenderSince(ctx, "usr_missing", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemoryStore_SenderTotalsSince(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()

	require.NoError(t, store.Append(ctx, entry("usr_a", "usr_b", "50.00", now.Add(-8*24*time.Hour))))
	require.NoError(t, store.Append(ctx, entry("usr_a", "usr_b", "25.00", now.Add(-2*time.Hour))))
	require.NoError(t, store.Append(ctx, entry("usr_a", "usr_c", "10.50", now.Add(-time.Minute))))

	totals, err := store.SenderTotalsSince(ctx, "usr_a", now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Count)
	assert.True(t, totals.Amount.Equal(decimal.RequireFromString("35.50")))

	totals, err = store.SenderTotalsSince(ctx, "usr_none", now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, totals.Count)
	assert.True(t, totals.Amount.IsZero())
}

func TestMemoryStore_AppendAssignsID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()

	e := entry("usr_a", "usr_b", "1.00", now)
	require.NoError(t, store.Append(ctx, e))

	// The caller's value is untouched; the stored copy got an ID.
	assert.Empty(t, e.ID)
	n, err := store.CountBySenderSince(ctx, "usr_a", now.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
