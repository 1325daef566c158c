package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v2"

	"github.com/cryptopaylink/cryptopaylink/pkg/core"
)

// MemoryStore is an in-process IntentStore. The conditional transition is an
// atomic per-key Compute, so it gives the same exactly-once guarantees as the
// SQL store and backs both tests and single-node deployments.
type MemoryStore struct {
	intents  *xsync.MapOf[string, core.PaymentIntent]
	products *xsync.MapOf[string, core.Product]
	// claimedHashes maps a transaction hash to the intent that claimed it.
	claimedHashes *xsync.MapOf[string, string]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		intents:       xsync.NewMapOf[core.PaymentIntent](),
		products:      xsync.NewMapOf[core.Product](),
		claimedHashes: xsync.NewMapOf[string](),
	}
}

func (s *MemoryStore) AddProduct(product core.Product) {
	s.products.Store(product.ID.String(), product)
}

func (s *MemoryStore) CreateIntent(ctx context.Context, intent core.PaymentIntent) error {
	s.intents.Store(intent.ID.String(), intent)
	return nil
}

func (s *MemoryStore) GetIntent(ctx context.Context, id uuid.UUID) (core.PaymentIntent, error) {
	intent, ok := s.intents.Load(id.String())
	if !ok {
		return core.PaymentIntent{}, core.ErrIntentNotFound
	}
	return intent, nil
}

func (s *MemoryStore) GetProduct(ctx context.Context, id uuid.UUID) (core.Product, error) {
	product, ok := s.products.Load(id.String())
	if !ok {
		return core.Product{}, core.ErrProductNotFound
	}
	return product, nil
}

func (s *MemoryStore) ConfirmIntent(ctx context.Context, id uuid.UUID, txHash string, confirmedAt time.Time) error {
	// claim the hash first; LoadOrStore is atomic, so two intents racing for
	// the same hash resolve to exactly one owner
	owner, claimed := s.claimedHashes.LoadOrStore(txHash, id.String())
	if claimed && owner != id.String() {
		return core.ErrDuplicateTransaction
	}
	var outcome error
	var stored core.PaymentIntent
	s.intents.Compute(id.String(), func(intent core.PaymentIntent, loaded bool) (core.PaymentIntent, bool) {
		if !loaded {
			outcome = core.ErrIntentNotFound
			return intent, true
		}
		switch intent.Status {
		case core.StatusConfirmed:
			outcome = ErrAlreadyConfirmed
			stored = intent
			return intent, false
		case core.StatusFailed:
			outcome = ErrAlreadyFailed
			stored = intent
			return intent, false
		}
		intent.Status = core.StatusConfirmed
		intent.TxHash = txHash
		intent.ConfirmedAt = confirmedAt
		stored = intent
		return intent, false
	})
	// release the claim only when the hash did not end up on the intent.
	// A racing call for the same intent may have confirmed it with this very
	// hash between our LoadOrStore and Compute; its claim must survive.
	if outcome != nil && !claimed && stored.TxHash != txHash {
		s.claimedHashes.Delete(txHash)
	}
	return outcome
}

func (s *MemoryStore) FailIntent(ctx context.Context, id uuid.UUID) error {
	var outcome error
	s.intents.Compute(id.String(), func(intent core.PaymentIntent, loaded bool) (core.PaymentIntent, bool) {
		if !loaded {
			outcome = core.ErrIntentNotFound
			return intent, true
		}
		switch intent.Status {
		case core.StatusConfirmed:
			outcome = ErrAlreadyConfirmed
			return intent, false
		case core.StatusFailed:
			outcome = ErrAlreadyFailed
			return intent, false
		}
		intent.Status = core.StatusFailed
		return intent, false
	})
	return outcome
}
