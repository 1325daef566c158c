package verifier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cryptopaylink/cryptopaylink/pkg/chain"
	"github.com/cryptopaylink/cryptopaylink/pkg/core"
)

type assetKey struct {
	chain    core.Chain
	currency core.Currency
}

// Verifier dispatches a verification attempt to the adapter registered for
// the intent's (chain, currency) pair.
type Verifier struct {
	adapters   map[assetKey]chain.Adapter
	timeWindow time.Duration
	logger     *zap.Logger
}

func New(timeWindow time.Duration, logger *zap.Logger) *Verifier {
	return &Verifier{
		adapters:   make(map[assetKey]chain.Adapter),
		timeWindow: timeWindow,
		logger:     logger,
	}
}

func (v *Verifier) RegisterAdapter(c core.Chain, currency core.Currency, adapter chain.Adapter) {
	v.adapters[assetKey{chain: c, currency: currency}] = adapter
}

// Verify builds a fresh query from the current intent and product and runs
// the matching adapter. A missing adapter is a configuration bug and is
// surfaced as ErrUnsupportedAsset, never treated as "payment still pending".
func (v *Verifier) Verify(ctx context.Context, intent core.PaymentIntent, product core.Product) (core.VerificationResult, error) {
	adapter, ok := v.adapters[assetKey{chain: product.Chain, currency: product.Currency}]
	if !ok {
		return core.VerificationResult{}, fmt.Errorf("%v/%v: %w", product.Chain, product.Currency, core.ErrUnsupportedAsset)
	}
	query := core.VerificationQuery{
		Sender:           intent.BuyerWallet,
		Receiver:         product.RecipientWallet,
		Currency:         product.Currency,
		ExpectedQuantity: intent.AmountCrypto,
		TimeWindow:       v.timeWindow,
	}
	result := adapter.VerifyPayment(ctx, query)
	attemptsCounter.WithLabelValues(string(product.Chain), string(product.Currency), verdict(result)).Inc()
	if !result.Verified && len(result.Candidates) > 0 {
		v.logger.Debug("no matching transaction among inspected candidates",
			zap.String("intent", intent.ID.String()),
			zap.Int("candidates", len(result.Candidates)))
	}
	return result, nil
}

func verdict(result core.VerificationResult) string {
	if result.Verified {
		return "verified"
	}
	return "unverified"
}
