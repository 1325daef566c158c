package chain

import (
	"context"

	"github.com/cryptopaylink/cryptopaylink/pkg/core"
)

// Adapter is the per-chain verification contract. Implementations only read
// chain state, so calling VerifyPayment repeatedly is safe. Transient RPC
// failures are absorbed into an unverified result (and logged) so that a
// polling caller can retry; they never escalate to a terminal failure.
type Adapter interface {
	VerifyPayment(ctx context.Context, query core.VerificationQuery) core.VerificationResult
}
