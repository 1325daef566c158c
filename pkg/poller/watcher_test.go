package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cryptopaylink/cryptopaylink/pkg/core"
	"github.com/cryptopaylink/cryptopaylink/pkg/reconcile"
)

type scriptedReconciler struct {
	calls    atomic.Int64
	outcomes []reconcile.Outcome
	errs     []error
	err      error
}

func (s *scriptedReconciler) Reconcile(ctx context.Context, intentID uuid.UUID) (reconcile.Outcome, error) {
	call := int(s.calls.Add(1)) - 1
	if call < len(s.errs) && s.errs[call] != nil {
		return reconcile.OutcomeNone, s.errs[call]
	}
	if s.err != nil {
		return reconcile.OutcomeNone, s.err
	}
	if call >= len(s.outcomes) {
		return s.outcomes[len(s.outcomes)-1], nil
	}
	return s.outcomes[call], nil
}

func TestWatchConfirms(t *testing.T) {
	r := &scriptedReconciler{outcomes: []reconcile.Outcome{
		reconcile.OutcomePending,
		reconcile.OutcomePending,
		reconcile.OutcomeConfirmed,
	}}
	logger, _ := zap.NewDevelopment()
	w := New(r, 5*time.Millisecond, time.Second, logger)

	outcome, err := w.Watch(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeConfirmed, outcome)
	require.Equal(t, int64(3), r.calls.Load())
}

func TestWatchReconcilesImmediately(t *testing.T) {
	r := &scriptedReconciler{outcomes: []reconcile.Outcome{reconcile.OutcomeConfirmed}}
	logger, _ := zap.NewDevelopment()
	// interval far longer than the test: only the immediate attempt can run
	w := New(r, time.Hour, time.Hour, logger)

	outcome, err := w.Watch(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeConfirmed, outcome)
	require.Equal(t, int64(1), r.calls.Load())
}

func TestWatchTimesOut(t *testing.T) {
	r := &scriptedReconciler{outcomes: []reconcile.Outcome{reconcile.OutcomePending}}
	logger, _ := zap.NewDevelopment()
	w := New(r, 5*time.Millisecond, 30*time.Millisecond, logger)

	outcome, err := w.Watch(context.Background(), uuid.New())
	require.NoError(t, err)
	// failed is what the watcher's caller sees; the record itself stays pending
	require.Equal(t, reconcile.OutcomeFailed, outcome)
	require.GreaterOrEqual(t, r.calls.Load(), int64(2))
}

func TestWatchCancelled(t *testing.T) {
	r := &scriptedReconciler{outcomes: []reconcile.Outcome{reconcile.OutcomePending}}
	logger, _ := zap.NewDevelopment()
	w := New(r, 10*time.Millisecond, time.Hour, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := w.Watch(ctx, uuid.New())
	require.ErrorIs(t, err, context.Canceled)
}

func TestWatchRetriesTransientErrors(t *testing.T) {
	// a flaky store must not end the watch while the record is pending
	r := &scriptedReconciler{
		errs: []error{
			errors.New("connection reset by peer"),
			errors.New("connection reset by peer"),
		},
		outcomes: []reconcile.Outcome{
			reconcile.OutcomePending,
			reconcile.OutcomePending,
			reconcile.OutcomeConfirmed,
		},
	}
	logger, _ := zap.NewDevelopment()
	w := New(r, 5*time.Millisecond, time.Second, logger)

	outcome, err := w.Watch(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeConfirmed, outcome)
	require.Equal(t, int64(3), r.calls.Load())
}

func TestWatchSurfacesReconcileErrors(t *testing.T) {
	r := &scriptedReconciler{err: core.ErrDuplicateTransaction}
	logger, _ := zap.NewDevelopment()
	w := New(r, 5*time.Millisecond, time.Second, logger)

	_, err := w.Watch(context.Background(), uuid.New())
	require.ErrorIs(t, err, core.ErrDuplicateTransaction)
	require.Equal(t, int64(1), r.calls.Load())
}

func TestWatchStopsOnRaceLoss(t *testing.T) {
	r := &scriptedReconciler{outcomes: []reconcile.Outcome{reconcile.OutcomeAlreadyConfirmed}}
	logger, _ := zap.NewDevelopment()
	w := New(r, 5*time.Millisecond, time.Second, logger)

	outcome, err := w.Watch(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, reconcile.OutcomeAlreadyConfirmed, outcome)
}
