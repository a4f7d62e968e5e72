package transfer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spinhouse/coinledger/internal/account"
	"github.com/spinhouse/coinledger/internal/apperror"
	"github.com/spinhouse/coinledger/internal/audit"
	"github.com/spinhouse/coinledger/internal/metrics"
	"github.com/spinhouse/coinledger/internal/traces"
)

// ExecResult is returned to the caller on a committed execution.
type ExecResult struct {
	TransactionID string          `json:"transactionId"`
	NewBalance    decimal.Decimal `json:"newBalance"`
}

// AuditHook runs after a commit with the fresh audit entry. The
// velocity monitor is wired in here.
type AuditHook func(ctx context.Context, e *audit.Entry)

// Executor commits pending transactions. The store's Execute primitive
// carries all the atomicity; the executor adds the precondition checks
// and the post-commit hooks.
type Executor struct {
	store  Store
	logger *slog.Logger
	hooks  []AuditHook
	nowFn  func() time.Time
}

// NewExecutor creates a transaction executor.
func NewExecutor(store Store, logger *slog.Logger) *Executor {
	return &Executor{store: store, logger: logger, nowFn: time.Now}
}

// OnCommit registers a post-commit hook. Hooks run synchronously in
// registration order, outside the store transaction; a hook failure
// cannot undo the transfer.
func (e *Executor) OnCommit(h AuditHook) {
	e.hooks = append(e.hooks, h)
}

// Execute commits the pending transaction identified by transactionID
// on behalf of callerID.
func (e *Executor) Execute(ctx context.Context, callerID, transactionID string, meta Meta) (*ExecResult, error) {
	ctx, span := traces.StartSpan(ctx, "transfer.execute",
		traces.UserID(callerID), traces.TransactionID(transactionID))
	defer span.End()

	res, err := e.execute(ctx, callerID, transactionID, meta)
	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues(apperror.KindOf(err).String()).Inc()
		return nil, err
	}
	metrics.ExecutionsTotal.WithLabelValues("completed").Inc()
	return res, nil
}

func (e *Executor) execute(ctx context.Context, callerID, transactionID string, meta Meta) (*ExecResult, error) {
	pending, err := e.store.GetPending(ctx, transactionID)
	if err != nil {
		if errors.Is(err, ErrPendingNotFound) {
			return nil, apperror.New(apperror.NotFound, "transaction expired or missing")
		}
		return nil, apperror.Wrap(err, apperror.Internal, "loading pending transaction")
	}

	if pending.SenderID != callerID {
		return nil, apperror.New(apperror.PermissionDenied, "transaction belongs to another account")
	}
	switch pending.Status {
	case StatusCompleted:
		return nil, apperror.New(apperror.FailedPrecondition, "transaction already completed")
	case StatusFailed:
		return nil, apperror.New(apperror.FailedPrecondition, "transaction previously failed")
	}

	now := e.nowFn().UTC()
	outcome, err := e.store.Execute(ctx, transactionID, meta, now)
	if err != nil {
		// A lost race on the status flip means someone else completed
		// or failed it first; idempotency turns that into a conflict,
		// never a double spend.
		if errors.Is(err, ErrNotPending) {
			return nil, apperror.New(apperror.FailedPrecondition, "transaction already completed")
		}
		reason := "execution failed"
		if errors.Is(err, account.ErrInsufficientFunds) {
			reason = "insufficient balance at execution time"
		}
		if markErr := e.store.MarkFailed(ctx, transactionID, reason, now); markErr != nil {
			e.logger.Error("failed to mark transaction failed",
				"transaction", transactionID, "error", markErr)
		}
		return nil, apperror.Wrap(err, apperror.Internal, "transaction failed")
	}

	amountF, _ := outcome.Audit.Amount.Float64()
	metrics.TransferAmount.Observe(amountF)

	for _, h := range e.hooks {
		h(ctx, outcome.Audit)
	}

	e.logger.Info("transfer completed",
		"transaction", transactionID,
		"sender", pending.SenderID,
		"recipient", pending.RecipientID,
		"amount", pending.Amount.String(),
	)
	return &ExecResult{
		TransactionID: transactionID,
		NewBalance:    outcome.NewSenderBalance,
	}, nil
}
