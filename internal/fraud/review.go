package fraud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spinhouse/coinledger/internal/apperror"
)

// Action is a review decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// Notifier delivers a user-facing notification record.
type Notifier interface {
	NotifyTransferRejected(ctx context.Context, userID, message string) error
}

// ReviewService works the flagged-transaction queue. Both outcomes are
// terminal; approve records the decision only and does not re-run the
// underlying transfer.
type ReviewService struct {
	flags    FlagStore
	notifier Notifier
	logger   *slog.Logger
	nowFn    func() time.Time
}

// NewReviewService creates the admin review service.
func NewReviewService(flags FlagStore, notifier Notifier, logger *slog.Logger) *ReviewService {
	return &ReviewService{flags: flags, notifier: notifier, logger: logger, nowFn: time.Now}
}

// Review applies an admin decision to a pending flag. The caller's
// admin capability is enforced upstream by the auth middleware.
func (s *ReviewService) Review(ctx context.Context, flagID string, action Action, reviewerID, reason string) (string, error) {
	if action != ActionApprove && action != ActionReject {
		return "", apperror.New(apperror.InvalidArgument, fmt.Sprintf("unknown review action %q", action))
	}

	f, err := s.flags.Get(ctx, flagID)
	if err != nil {
		if errors.Is(err, ErrFlagNotFound) {
			return "", apperror.New(apperror.NotFound, "flagged transaction not found")
		}
		return "", apperror.Wrap(err, apperror.Internal, "loading flagged transaction")
	}
	if f.Status != FlagPendingReview {
		return "", apperror.New(apperror.FailedPrecondition,
			fmt.Sprintf("flagged transaction already %s", f.Status))
	}

	now := s.nowFn().UTC()
	switch action {
	case ActionApprove:
		if err := s.flags.SetReview(ctx, flagID, FlagApproved, reviewerID, reason, now); err != nil {
			return "", apperror.Wrap(err, apperror.Internal, "recording approval")
		}
		s.logger.Info("flagged transaction approved",
			"flag", flagID, "reviewer", reviewerID)
		return "transaction approved", nil

	default:
		if err := s.flags.SetReview(ctx, flagID, FlagRejected, reviewerID, reason, now); err != nil {
			return "", apperror.Wrap(err, apperror.Internal, "recording rejection")
		}
		if s.notifier != nil {
			msg := "Your transfer was rejected after a security review."
			if reason != "" {
				msg = fmt.Sprintf("Your transfer was rejected after a security review: %s", reason)
			}
			if err := s.notifier.NotifyTransferRejected(ctx, f.SenderID, msg); err != nil {
				s.logger.Error("rejection notification failed",
					"flag", flagID, "user", f.SenderID, "error", err)
			}
		}
		s.logger.Info("flagged transaction rejected",
			"flag", flagID, "reviewer", reviewerID)
		return "transaction rejected", nil
	}
}
