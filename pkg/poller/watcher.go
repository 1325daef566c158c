package poller

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cryptopaylink/cryptopaylink/pkg/core"
	"github.com/cryptopaylink/cryptopaylink/pkg/reconcile"
)

type Reconciler interface {
	Reconcile(ctx context.Context, intentID uuid.UUID) (reconcile.Outcome, error)
}

// Watcher drives reconciliation for a freshly submitted payment: an immediate
// attempt, then one attempt per interval, until a terminal outcome or the
// overall deadline. A single derived context owns both the ticking and the
// deadline, so cancelling it stops everything at once.
type Watcher struct {
	reconciler Reconciler
	interval   time.Duration
	timeout    time.Duration
	logger     *zap.Logger
}

func New(reconciler Reconciler, interval, timeout time.Duration, logger *zap.Logger) *Watcher {
	return &Watcher{
		reconciler: reconciler,
		interval:   interval,
		timeout:    timeout,
		logger:     logger,
	}
}

// Watch blocks until the intent reaches a terminal outcome, the deadline
// elapses, or ctx is cancelled. On deadline it reports OutcomeFailed to the
// caller; the stored record is deliberately NOT transitioned and may still be
// confirmed later by a manual verification.
func (w *Watcher) Watch(ctx context.Context, intentID uuid.UUID) (reconcile.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		outcome, err := w.reconciler.Reconcile(ctx, intentID)
		switch {
		case err == nil:
			if outcome.Terminal() {
				return outcome, nil
			}
		case permanent(err):
			return reconcile.OutcomeNone, err
		default:
			// transient store or network failure; the record is still pending
			w.logger.Warn("reconcile attempt failed, will retry",
				zap.String("intent", intentID.String()), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				w.logger.Info("gave up watching payment, record stays pending",
					zap.String("intent", intentID.String()),
					zap.Duration("timeout", w.timeout))
				return reconcile.OutcomeFailed, nil
			}
			return reconcile.OutcomeNone, ctx.Err()
		case <-ticker.C:
		}
	}
}

// permanent reports whether a reconcile error cannot be fixed by waiting:
// retrying a misconfigured asset, a missing wallet, a claimed transaction
// hash or a deleted intent would loop until the deadline for nothing.
func permanent(err error) bool {
	return errors.Is(err, core.ErrUnsupportedAsset) ||
		errors.Is(err, core.ErrNoBuyerWallet) ||
		errors.Is(err, core.ErrDuplicateTransaction) ||
		errors.Is(err, core.ErrIntentNotFound)
}
