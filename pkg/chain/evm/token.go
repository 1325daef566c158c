package evm

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cryptopaylink/cryptopaylink/pkg/core"
	"github.com/cryptopaylink/cryptopaylink/pkg/references"
)

// TokenAdapter verifies ERC20 transfers by querying the token contract's
// Transfer event logs. The sender and receiver are encoded as indexed topics
// in the query itself, so every returned log already matches both parties;
// only the amount remains to be checked.
type TokenAdapter struct {
	client    Client
	logger    *zap.Logger
	contract  common.Address
	decimals  int32
	tolerance float64
}

func NewTokenAdapter(client Client, currency core.Currency, logger *zap.Logger) (*TokenAdapter, error) {
	contract, ok := references.TokenContracts[currency]
	if !ok {
		return nil, fmt.Errorf("no token contract for %v: %w", currency, core.ErrUnsupportedAsset)
	}
	return &TokenAdapter{
		client:    client,
		logger:    logger.With(zap.String("adapter", "evm_token"), zap.String("currency", string(currency))),
		contract:  contract,
		decimals:  references.TokenDecimals,
		tolerance: references.TokenTolerance,
	}, nil
}

func (a *TokenAdapter) VerifyPayment(ctx context.Context, query core.VerificationQuery) core.VerificationResult {
	sender := common.HexToAddress(query.Sender)
	receiver := common.HexToAddress(query.Receiver)
	head, err := a.client.HeadBlockNumber(ctx)
	if err != nil {
		a.logger.Error("failed to fetch head block", zap.Error(err))
		return core.Unverified(nil)
	}
	from := lowerBlockBound(head, query.TimeWindow)
	transfers, err := a.client.TransferLogs(ctx, a.contract, sender, receiver, from, head)
	if err != nil {
		a.logger.Error("failed to fetch transfer logs", zap.Error(err))
		return core.Unverified(nil)
	}
	var inspected []core.Candidate
	for _, transfer := range transfers {
		amount := a.tokenUnits(transfer.RawAmount)
		inspected = append(inspected, core.Candidate{
			TxHash:        transfer.TxHash,
			ReceiverDelta: amount,
			SenderDelta:   -amount,
		})
		if math.Abs(amount-query.ExpectedQuantity) < a.tolerance {
			return core.Verified(transfer.TxHash)
		}
	}
	return core.Unverified(inspected)
}

func (a *TokenAdapter) tokenUnits(raw *big.Int) float64 {
	return decimal.NewFromBigInt(raw, -a.decimals).InexactFloat64()
}
