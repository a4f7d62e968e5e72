// Package fraud screens transfers against heuristic patterns and keeps
// the flagged-transaction review queue.
//
// The detector is a pure read-side advisor: it never writes. The
// validator persists its findings as flagged transactions; admins work
// those through the review service.
package fraud

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spinhouse/coinledger/internal/account"
	"github.com/spinhouse/coinledger/internal/audit"
	"github.com/spinhouse/coinledger/internal/config"
)

// Level grades how suspicious a finding is.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Finding is the detector's verdict on one prospective transfer.
type Finding struct {
	Suspicious bool   `json:"suspicious"`
	Reason     string `json:"reason,omitempty"`
	Level      Level  `json:"level,omitempty"`
}

// Detector evaluates a fixed, ordered set of patterns. The first
// matching pattern wins; patterns are not cumulative.
type Detector struct {
	accounts account.Store
	audits   audit.Store
	rules    config.Rules
	nowFn    func() time.Time
}

// NewDetector creates a fraud detector.
func NewDetector(accounts account.Store, audits audit.Store, rules config.Rules) *Detector {
	return &Detector{accounts: accounts, audits: audits, rules: rules, nowFn: time.Now}
}

var thousand = decimal.NewFromInt(1000)

// Detect screens a prospective transfer from senderID to the account
// holding recipientTxCode.
func (d *Detector) Detect(ctx context.Context, senderID string, amount decimal.Decimal, recipientTxCode string) (Finding, error) {
	sender, err := d.accounts.Get(ctx, senderID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return Finding{Suspicious: true, Reason: "sender account not found", Level: LevelHigh}, nil
		}
		return Finding{}, err
	}

	if amount.GreaterThan(d.rules.FlagThreshold) {
		n, err := d.accounts.CountHistory(ctx, senderID)
		if err != nil {
			return Finding{}, err
		}
		if n < d.rules.NewUserThreshold {
			return Finding{Suspicious: true, Reason: "large transfer from new account", Level: LevelMedium}, nil
		}
	}

	if amount.Mod(thousand).IsZero() && amount.GreaterThan(thousand) {
		return Finding{Suspicious: true, Reason: "suspicious round number amount", Level: LevelLow}, nil
	}

	if recipientTxCode == sender.TxCode {
		return Finding{Suspicious: true, Reason: "transfer to own account", Level: LevelMedium}, nil
	}

	repeat, err := d.repeatRecipient(ctx, senderID, recipientTxCode)
	if err != nil {
		return Finding{}, err
	}
	if repeat {
		return Finding{Suspicious: true, Reason: "repeated transfers to same recipient", Level: LevelMedium}, nil
	}

	hour := d.nowFn().Hour()
	if hour >= d.rules.OddHourStart && hour <= d.rules.OddHourEnd &&
		amount.GreaterThan(d.rules.OddHourAmountFloor) {
		return Finding{Suspicious: true, Reason: "unusual hour for large transfer", Level: LevelLow}, nil
	}

	return Finding{}, nil
}

// repeatRecipient reports whether the sender already moved coins to
// this recipient enough times inside the repeat window.
func (d *Detector) repeatRecipient(ctx context.Context, senderID, recipientTxCode string) (bool, error) {
	recipient, err := d.accounts.GetByTxCode(ctx, recipientTxCode)
	if err != nil {
		// An unresolvable recipient is the validator's problem, not a
		// fraud signal.
		if errors.Is(err, account.ErrNotFound) || errors.Is(err, account.ErrTxCodeConflict) {
			return false, nil
		}
		return false, err
	}

	since := d.nowFn().Add(-d.rules.RepeatWindow)
	n, err := d.audits.CountBySenderToRecipientSince(ctx, senderID, recipient.ID, since)
	if err != nil {
		return false, err
	}
	return n >= d.rules.RepeatRecipientN, nil
}
