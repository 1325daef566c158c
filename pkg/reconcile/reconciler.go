package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/cryptopaylink/cryptopaylink/pkg/core"
	"github.com/cryptopaylink/cryptopaylink/pkg/storage"
)

// Outcome is the result of one reconciliation attempt. A race loss
// (OutcomeAlreadyConfirmed) is distinguishable from "genuinely not verified
// yet" (OutcomePending) so retries stay idempotent.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomePending
	OutcomeConfirmed
	OutcomeAlreadyConfirmed
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeAlreadyConfirmed:
		return "already_confirmed"
	case OutcomeFailed:
		return "failed"
	}
	return "none"
}

// Terminal reports whether polling can stop.
func (o Outcome) Terminal() bool {
	return o == OutcomeConfirmed || o == OutcomeAlreadyConfirmed || o == OutcomeFailed
}

// Notifier is the downstream hand-off that triggers invoice generation and
// confirmation emails for a confirmed payment.
type Notifier interface {
	PaymentConfirmed(ctx context.Context, intentID uuid.UUID) error
}

type paymentVerifier interface {
	Verify(ctx context.Context, intent core.PaymentIntent, product core.Product) (core.VerificationResult, error)
}

// Reconciler owns the payment intent lifecycle. Any number of Reconcile calls
// for the same intent may run concurrently; the store's conditional write
// guarantees at most one of them confirms, and only that one dispatches the
// downstream notification.
type Reconciler struct {
	store    storage.IntentStore
	verifier paymentVerifier
	notifier Notifier
	logger   *zap.Logger
	wg       *conc.WaitGroup
	now      func() time.Time
}

func New(store storage.IntentStore, verifier paymentVerifier, notifier Notifier, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		verifier: verifier,
		notifier: notifier,
		logger:   logger,
		wg:       conc.NewWaitGroup(),
		now:      time.Now,
	}
}

func (r *Reconciler) Reconcile(ctx context.Context, intentID uuid.UUID) (Outcome, error) {
	intent, err := r.store.GetIntent(ctx, intentID)
	if err != nil {
		return OutcomeNone, err
	}
	// terminal intents short-circuit: nothing to verify, nothing to notify
	switch intent.Status {
	case core.StatusConfirmed:
		outcomesCounter.WithLabelValues(OutcomeAlreadyConfirmed.String()).Inc()
		return OutcomeAlreadyConfirmed, nil
	case core.StatusFailed:
		outcomesCounter.WithLabelValues(OutcomeFailed.String()).Inc()
		return OutcomeFailed, nil
	}
	if intent.BuyerWallet == "" {
		return OutcomeNone, core.ErrNoBuyerWallet
	}
	product, err := r.store.GetProduct(ctx, intent.ProductID)
	if err != nil {
		return OutcomeNone, err
	}
	result, err := r.verifier.Verify(ctx, intent, product)
	if err != nil {
		// ErrUnsupportedAsset lands here: a configuration bug, not a pending payment
		return OutcomeNone, err
	}
	if !result.Verified {
		outcomesCounter.WithLabelValues(OutcomePending.String()).Inc()
		return OutcomePending, nil
	}
	err = r.store.ConfirmIntent(ctx, intentID, result.TxHash, r.now())
	switch {
	case err == nil:
		// this call performed the transition, so it owns the single notification
		r.dispatchNotification(intentID)
		outcomesCounter.WithLabelValues(OutcomeConfirmed.String()).Inc()
		r.logger.Info("payment confirmed",
			zap.String("intent", intentID.String()),
			zap.String("tx_hash", result.TxHash))
		return OutcomeConfirmed, nil
	case errors.Is(err, storage.ErrAlreadyConfirmed):
		outcomesCounter.WithLabelValues(OutcomeAlreadyConfirmed.String()).Inc()
		return OutcomeAlreadyConfirmed, nil
	case errors.Is(err, storage.ErrAlreadyFailed):
		outcomesCounter.WithLabelValues(OutcomeFailed.String()).Inc()
		return OutcomeFailed, nil
	case errors.Is(err, core.ErrDuplicateTransaction):
		outcomesCounter.WithLabelValues("duplicate_transaction").Inc()
		return OutcomeNone, fmt.Errorf("intent %v: %w", intentID, err)
	}
	return OutcomeNone, err
}

// Expire conditionally transitions a pending intent to failed. The polling
// watcher deliberately does not call it (its timeout is a display-only
// concern); it exists for operator-driven cleanup of abandoned intents.
func (r *Reconciler) Expire(ctx context.Context, intentID uuid.UUID) (Outcome, error) {
	err := r.store.FailIntent(ctx, intentID)
	switch {
	case err == nil:
		outcomesCounter.WithLabelValues("expired").Inc()
		return OutcomeFailed, nil
	case errors.Is(err, storage.ErrAlreadyConfirmed):
		return OutcomeAlreadyConfirmed, nil
	case errors.Is(err, storage.ErrAlreadyFailed):
		return OutcomeFailed, nil
	}
	return OutcomeNone, err
}

// dispatchNotification is fire-and-forget: confirmation succeeding does not
// depend on the hand-off succeeding. A failure is logged and never retried
// by this subsystem.
func (r *Reconciler) dispatchNotification(intentID uuid.UUID) {
	r.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.notifier.PaymentConfirmed(ctx, intentID); err != nil {
			r.logger.Error("failed to dispatch confirmation notification",
				zap.String("intent", intentID.String()), zap.Error(err))
		}
	})
}

// Wait drains in-flight notification dispatches, for graceful shutdown.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}
