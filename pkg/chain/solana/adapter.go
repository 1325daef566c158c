package solana

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cryptopaylink/cryptopaylink/pkg/cache"
	"github.com/cryptopaylink/cryptopaylink/pkg/core"
	"github.com/cryptopaylink/cryptopaylink/pkg/references"
)

// signaturesLimit bounds RPC cost per verification attempt. It is not a
// correctness guarantee: a payment older than the last N transactions of a
// busy receiver is simply not found and the poller retries.
const signaturesLimit = 50

// Adapter verifies payments on an account-balance-delta ledger: a match is a
// single transaction in which the receiver's balance grew by the expected
// quantity (within tolerance) AND the declared sender's balance shrank.
// Matching the two sides across different transactions is not a match.
type Adapter struct {
	client  Client
	logger  *zap.Logger
	txCache cache.Cache[string, BalanceImage]
	now     func() time.Time
}

func NewAdapter(client Client, logger *zap.Logger) *Adapter {
	return &Adapter{
		client:  client,
		logger:  logger.With(zap.String("adapter", "solana")),
		txCache: cache.NewLRUCache[string, BalanceImage](256, "solana_tx"),
		now:     time.Now,
	}
}

func (a *Adapter) VerifyPayment(ctx context.Context, query core.VerificationQuery) core.VerificationResult {
	signatures, err := a.client.RecentSignatures(ctx, query.Receiver, signaturesLimit)
	if err != nil {
		a.logger.Error("failed to list signatures", zap.String("receiver", query.Receiver), zap.Error(err))
		return core.Unverified(nil)
	}
	cutoff := a.now().Add(-query.TimeWindow)
	var inspected []core.Candidate
	// RPC returns newest first, the most relevant order for a just-submitted payment.
	for _, info := range signatures {
		if info.Failed || info.BlockTime.Before(cutoff) {
			continue
		}
		image, err := a.resolveTransaction(ctx, info.Signature)
		if err != nil {
			a.logger.Warn("failed to resolve transaction", zap.String("signature", info.Signature), zap.Error(err))
			continue
		}
		candidate, ok := balanceDeltas(image, query.Sender, query.Receiver, info)
		if !ok {
			continue
		}
		inspected = append(inspected, candidate)
		if matches(candidate, query.ExpectedQuantity) {
			return core.Verified(info.Signature)
		}
	}
	return core.Unverified(inspected)
}

// resolveTransaction caches balance images: transactions are immutable, and
// the polling loop re-inspects the same candidates every tick.
func (a *Adapter) resolveTransaction(ctx context.Context, signature string) (BalanceImage, error) {
	if image, ok := a.txCache.Get(signature); ok {
		return image, nil
	}
	image, err := a.client.TransactionBalances(ctx, signature)
	if err != nil {
		return BalanceImage{}, err
	}
	a.txCache.Set(signature, image)
	return image, nil
}

// balanceDeltas locates the sender and receiver inside the transaction's
// account list and computes their balance deltas in SOL. Both parties must
// appear in the same transaction.
func balanceDeltas(image BalanceImage, sender, receiver string, info SignatureInfo) (core.Candidate, bool) {
	senderIdx, receiverIdx := -1, -1
	for i, key := range image.AccountKeys {
		if key == sender {
			senderIdx = i
		}
		if key == receiver {
			receiverIdx = i
		}
	}
	if senderIdx == -1 || receiverIdx == -1 {
		return core.Candidate{}, false
	}
	if len(image.PreBalances) <= senderIdx || len(image.PostBalances) <= senderIdx ||
		len(image.PreBalances) <= receiverIdx || len(image.PostBalances) <= receiverIdx {
		return core.Candidate{}, false
	}
	return core.Candidate{
		TxHash:        info.Signature,
		SenderDelta:   lamportsDelta(image.PreBalances[senderIdx], image.PostBalances[senderIdx]),
		ReceiverDelta: lamportsDelta(image.PreBalances[receiverIdx], image.PostBalances[receiverIdx]),
		BlockTime:     info.BlockTime,
	}, true
}

// matches requires the receiver delta within tolerance of the expected
// quantity and a strictly negative sender delta. The exact sender amount is
// not matched because it additionally carries the network fee.
func matches(candidate core.Candidate, expected float64) bool {
	return math.Abs(candidate.ReceiverDelta-expected) < references.SolTolerance && candidate.SenderDelta < 0
}

func lamportsDelta(pre, post uint64) float64 {
	return decimal.New(int64(post)-int64(pre), -references.SolDecimals).InexactFloat64()
}
