package transfer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spinhouse/coinledger/internal/account"
	"github.com/spinhouse/coinledger/internal/apperror"
	"github.com/spinhouse/coinledger/internal/config"
	"github.com/spinhouse/coinledger/internal/fraud"
	"github.com/spinhouse/coinledger/internal/idgen"
	"github.com/spinhouse/coinledger/internal/metrics"
	"github.com/spinhouse/coinledger/internal/ratelimit"
	"github.com/spinhouse/coinledger/internal/traces"
	"github.com/spinhouse/coinledger/internal/validation"
)

// ValidateResult is returned to the caller on a successful validation.
type ValidateResult struct {
	TransactionID        string `json:"transactionId"`
	RecipientName        string `json:"recipientName"`
	RecipientTxCode      string `json:"recipientTxCode"`
	RequiresManualReview bool   `json:"requiresManualReview"`
}

// FraudDetector screens a prospective transfer. Satisfied by
// *fraud.Detector.
type FraudDetector interface {
	Detect(ctx context.Context, senderID string, amount decimal.Decimal, recipientTxCode string) (fraud.Finding, error)
}

// Validator screens prospective transfers and mints pending
// transactions. It never moves coins; rejected transfers leave no
// state behind except a fraud flag.
type Validator struct {
	accounts account.Store
	pendings Store
	limiter  *ratelimit.AccountLimiter
	detector FraudDetector
	flags    fraud.FlagStore
	rules    config.Rules
	logger   *slog.Logger
	nowFn    func() time.Time
}

// NewValidator creates a transfer validator.
func NewValidator(
	accounts account.Store,
	pendings Store,
	limiter *ratelimit.AccountLimiter,
	detector FraudDetector,
	flags fraud.FlagStore,
	rules config.Rules,
	logger *slog.Logger,
) *Validator {
	return &Validator{
		accounts: accounts,
		pendings: pendings,
		limiter:  limiter,
		detector: detector,
		flags:    flags,
		rules:    rules,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// Validate runs the full screening pipeline for a transfer from
// senderID to the holder of recipientTxCode. rawAmount is the caller's
// amount verbatim; anything that is not a positive two-decimal number
// is rejected rather than rounded.
func (v *Validator) Validate(ctx context.Context, senderID, recipientTxCode, rawAmount string) (*ValidateResult, error) {
	ctx, span := traces.StartSpan(ctx, "transfer.validate",
		traces.UserID(senderID), traces.TxCode(recipientTxCode), traces.Amount(rawAmount))
	defer span.End()

	res, err := v.validate(ctx, senderID, recipientTxCode, rawAmount)
	if err != nil {
		metrics.ValidationsTotal.WithLabelValues(apperror.KindOf(err).String()).Inc()
		return nil, err
	}
	metrics.ValidationsTotal.WithLabelValues("accepted").Inc()
	return res, nil
}

func (v *Validator) validate(ctx context.Context, senderID, recipientTxCode, rawAmount string) (*ValidateResult, error) {
	recipientTxCode = validation.NormalizeTxCode(recipientTxCode)
	if !validation.IsValidTxCode(recipientTxCode) {
		return nil, apperror.New(apperror.InvalidArgument, "invalid recipient transaction code")
	}

	amount, ok := validation.ParseAmount(rawAmount)
	if !ok {
		return nil, apperror.New(apperror.InvalidArgument, "amount must be a positive number with at most two decimals")
	}
	if amount.LessThan(v.rules.MinTransfer) {
		return nil, apperror.Newf(apperror.InvalidArgument, "minimum transfer is %s coins", v.rules.MinTransfer)
	}
	if amount.GreaterThan(v.rules.MaxTransfer) {
		return nil, apperror.Newf(apperror.InvalidArgument, "maximum transfer is %s coins", v.rules.MaxTransfer)
	}

	limit, err := v.limiter.Check(ctx, senderID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.Internal, "rate limit check failed")
	}
	if !limit.Allowed {
		metrics.RateLimitDenialsTotal.Inc()
		if limit.WaitSeconds > 0 {
			return nil, apperror.Newf(apperror.ResourceExhausted,
				"transfer limit reached, try again in %d minutes", waitMinutes(limit.WaitSeconds))
		}
		return nil, apperror.New(apperror.ResourceExhausted, "transfer limit reached")
	}

	recipient, err := v.accounts.GetByTxCode(ctx, recipientTxCode)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrNotFound):
			return nil, apperror.New(apperror.NotFound, "recipient not found")
		case errors.Is(err, account.ErrTxCodeConflict):
			// Duplicate codes are a data fault, never "first match wins".
			return nil, apperror.Wrap(err, apperror.Internal, "recipient lookup failed")
		default:
			return nil, apperror.Wrap(err, apperror.Internal, "recipient lookup failed")
		}
	}

	sender, err := v.accounts.Get(ctx, senderID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, apperror.New(apperror.NotFound, "sender account not found")
		}
		return nil, apperror.Wrap(err, apperror.Internal, "sender lookup failed")
	}
	if sender.Status != account.StatusActive {
		return nil, apperror.Newf(apperror.FailedPrecondition, "account is %s and cannot send transfers", sender.Status)
	}

	if sender.Balance.LessThan(amount) {
		return nil, apperror.New(apperror.FailedPrecondition, "insufficient balance")
	}

	finding, err := v.detector.Detect(ctx, senderID, amount, recipientTxCode)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.Internal, "fraud screening failed")
	}

	requiresReview := false
	if finding.Suspicious {
		metrics.FraudFlagsTotal.WithLabelValues(string(finding.Level)).Inc()
		flag := &fraud.FlaggedTransaction{
			SenderID:     senderID,
			RecipientID:  recipient.ID,
			Amount:       amount,
			Reason:       finding.Reason,
			Level:        finding.Level,
			AutoApproved: finding.Level == fraud.LevelLow,
			Status:       fraud.FlagPendingReview,
			CreatedAt:    v.nowFn().UTC(),
		}
		if err := v.flags.Create(ctx, flag); err != nil {
			return nil, apperror.Wrap(err, apperror.Internal, "recording fraud flag")
		}
		v.logger.Warn("transfer flagged",
			"sender", senderID,
			"reason", finding.Reason,
			"level", finding.Level,
		)

		if finding.Level == fraud.LevelHigh {
			return nil, apperror.New(apperror.PermissionDenied, "transfer flagged for security review")
		}
		requiresReview = finding.Level == fraud.LevelMedium
	}

	now := v.nowFn().UTC()
	pending := &PendingTransaction{
		TransactionID:        idgen.TransactionID(),
		SenderID:             senderID,
		SenderTxCode:         sender.TxCode,
		RecipientID:          recipient.ID,
		RecipientTxCode:      recipient.TxCode,
		RecipientName:        recipient.Username,
		Amount:               amount,
		Status:               StatusPending,
		RequiresManualReview: requiresReview,
		CreatedAt:            now,
	}
	if err := v.pendings.CreatePending(ctx, pending); err != nil {
		return nil, apperror.Wrap(err, apperror.Internal, "creating pending transaction")
	}

	v.logger.Info("transfer validated",
		"transaction", pending.TransactionID,
		"sender", senderID,
		"recipient", recipient.ID,
		"amount", amount.String(),
		"manualReview", requiresReview,
	)
	return &ValidateResult{
		TransactionID:        pending.TransactionID,
		RecipientName:        recipient.Username,
		RecipientTxCode:      recipient.TxCode,
		RequiresManualReview: requiresReview,
	}, nil
}

func waitMinutes(seconds int) int {
	m := (seconds + 59) / 60
	if m < 1 {
		m = 1
	}
	return m
}
