package fraud

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spinhouse/coinledger/internal/apperror"
)

type recordingNotifier struct {
	userIDs  []string
	messages []string
}

func (n *recordingNotifier) NotifyTransferRejected(_ context.Context, userID, message string) error {
	n.userIDs = append(n.userIDs, userID)
	n.messages = append(n.messages, message)
	return nil
}

func pendingFlag(t *testing.T, store FlagStore) string {
	t.Helper()
	f := &FlaggedTransaction{
		SenderID:    "usr_sender",
		RecipientID: "usr_recipient",
		Amount:      decimal.RequireFromString("1500.00"),
		Reason:      "large transfer from new account",
		Level:       LevelMedium,
		Status:      FlagPendingReview,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.Create(context.Background(), f))
	return f.ID
}

func TestReview_Approve(t *testing.T) {
	store := NewMemoryFlagStore()
	notifier := &recordingNotifier{}
	svc := NewReviewService(store, notifier, slog.Default())
	id := pendingFlag(t, store)

	msg, err := svc.Review(context.Background(), id, ActionApprove, "usr_admin", "looks fine")
	require.NoError(t, err)
	assert.Equal(t, "transaction approved", msg)

	f, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, FlagApproved, f.Status)
	assert.Equal(t, "usr_admin", f.ReviewedBy)
	require.NotNil(t, f.ReviewedAt)

	// Approval is an audit annotation, not a re-execution, so no
	// notification goes out.
	assert.Empty(t, notifier.userIDs)
}

func TestReview_RejectNotifiesSender(t *testing.T) {
	store := NewMemoryFlagStore()
	notifier := &recordingNotifier{}
	svc := NewReviewService(store, notifier, slog.Default())
	id := pendingFlag(t, store)

	msg, err := svc.Review(context.Background(), id, ActionReject, "usr_admin", "account takeover suspected")
	require.NoError(t, err)
	assert.Equal(t, "transaction rejected", msg)

	f, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, FlagRejected, f.Status)

	require.Len(t, notifier.userIDs, 1)
	assert.Equal(t, "usr_sender", notifier.userIDs[0])
	assert.Contains(t, notifier.messages[0], "account takeover suspected")
}

func TestReview_Terminal(t *testing.T) {
	store := NewMemoryFlagStore()
	svc := NewReviewService(store, &recordingNotifier{}, slog.Default())
	id := pendingFlag(t, store)

	_, err := svc.Review(context.Background(), id, ActionApprove, "usr_admin", "")
	require.NoError(t, err)

	// A second decision of either kind fails.
	_, err = svc.Review(context.Background(), id, ActionReject, "usr_admin", "")
	assert.Equal(t, apperror.FailedPrecondition, apperror.KindOf(err))

	_, err = svc.Review(context.Background(), id, ActionApprove, "usr_admin", "")
	assert.Equal(t, apperror.FailedPrecondition, apperror.KindOf(err))
}

func TestReview_NotFound(t *testing.T) {
	svc := NewReviewService(NewMemoryFlagStore(), &recordingNotifier{}, slog.Default())

	_, err := svc.Review(context.Background(), "missing", ActionApprove, "usr_admin", "")
	assert.Equal(t, apperror.NotFound, apperror.KindOf(err))
}

func TestReview_UnknownAction(t *testing.T) {
	store := NewMemoryFlagStore()
	svc := NewReviewService(store, &recordingNotifier{}, slog.Default())
	id := pendingFlag(t, store)

	_, err := svc.Review(context.Background(), id, Action("escalate"), "usr_admin", "")
	assert.Equal(t, apperror.InvalidArgument, apperror.KindOf(err))
}
