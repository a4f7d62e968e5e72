package account

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/spinhouse/coinledger/internal/metrics"
)

// Resetter zeroes every account's daily transfer counters. The reset is
// a single batch update that does not coordinate with in-flight
// transfers; a transfer committing across the boundary may miss the
// fresh quota by one, which is an accepted approximation of the quota,
// not of the ledger.
type Resetter struct {
	store  Store
	logger *slog.Logger
}

// NewResetter creates a daily-limit resetter.
func NewResetter(store Store, logger *slog.Logger) *Resetter {
	return &Resetter{store: store, logger: logger}
}

// ResetAll zeroes the daily counters on all accounts. Safe to invoke
// from any scheduler; repeated runs are no-ops.
func (r *Resetter) ResetAll(ctx context.Context) error {
	changed, err := r.store.ResetDailyCounters(ctx)
	if err != nil {
		r.logger.Error("daily limit reset failed", "error", err)
		return err
	}
	metrics.DailyResetsTotal.Inc()
	r.logger.Info("daily limits reset", "accountsChanged", changed)
	return nil
}

// ResetTimer fires ResetAll once per UTC day at midnight.
type ResetTimer struct {
	resetter *Resetter
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
	nowFn    func() time.Time
}

// NewResetTimer creates the midnight reset timer.
func NewResetTimer(resetter *Resetter, logger *slog.Logger) *ResetTimer {
	return &ResetTimer{
		resetter: resetter,
		logger:   logger,
		stop:     make(chan struct{}),
		nowFn:    time.Now,
	}
}

// Running reports whether the timer loop is actively running.
func (t *ResetTimer) Running() bool {
	return t.running.Load()
}

// Start begins the reset loop. Call in a goroutine.
func (t *ResetTimer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	for {
		wait := untilNextUTCMidnight(t.nowFn())
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-t.stop:
			timer.Stop()
			return
		case <-timer.C:
			t.safeReset(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *ResetTimer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *ResetTimer) safeReset(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in daily reset timer", "panic", fmt.Sprint(r))
		}
	}()
	_ = t.resetter.ResetAll(ctx)
}

func untilNextUTCMidnight(now time.Time) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return next.Sub(now)
}
