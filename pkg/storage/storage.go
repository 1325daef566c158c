package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cryptopaylink/cryptopaylink/pkg/core"
)

// ErrAlreadyConfirmed reports that a concurrent reconciliation confirmed the
// intent first. It is a race-loss outcome, not a data problem: callers treat
// it as "someone else did the work".
var ErrAlreadyConfirmed = errors.New("intent already confirmed")

// ErrAlreadyFailed reports the intent reached the failed terminal state.
var ErrAlreadyFailed = errors.New("intent already failed")

// IntentStore owns payment intents and products. ConfirmIntent and FailIntent
// are the only mutations and both are conditional writes restricted to
// intents still in the pending state; that conditional clause is the only
// concurrency primitive the reconciler relies on.
type IntentStore interface {
	CreateIntent(ctx context.Context, intent core.PaymentIntent) error
	GetIntent(ctx context.Context, id uuid.UUID) (core.PaymentIntent, error)
	GetProduct(ctx context.Context, id uuid.UUID) (core.Product, error)

	// ConfirmIntent transitions pending -> confirmed and claims txHash
	// system-wide, as one atomic step. It returns core.ErrDuplicateTransaction
	// when the hash is already claimed by a different intent (both intents are
	// left untouched), ErrAlreadyConfirmed when a racing call won, and
	// ErrAlreadyFailed when the intent is terminally failed.
	ConfirmIntent(ctx context.Context, id uuid.UUID, txHash string, confirmedAt time.Time) error

	// FailIntent transitions pending -> failed; a no-op error for terminal intents.
	FailIntent(ctx context.Context, id uuid.UUID) error
}
