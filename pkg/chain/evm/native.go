package evm

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cryptopaylink/cryptopaylink/pkg/core"
	"github.com/cryptopaylink/cryptopaylink/pkg/references"
)

// NativeAdapter verifies native-asset (ETH) payments by scanning a bounded
// recent block range for a transaction from the declared sender to the
// receiver carrying the expected value.
type NativeAdapter struct {
	client Client
	logger *zap.Logger
}

func NewNativeAdapter(client Client, logger *zap.Logger) *NativeAdapter {
	return &NativeAdapter{
		client: client,
		logger: logger.With(zap.String("adapter", "evm_native")),
	}
}

func (a *NativeAdapter) VerifyPayment(ctx context.Context, query core.VerificationQuery) core.VerificationResult {
	// hex address parsing makes the sender/receiver comparison case-insensitive
	sender := common.HexToAddress(query.Sender)
	receiver := common.HexToAddress(query.Receiver)
	head, err := a.client.HeadBlockNumber(ctx)
	if err != nil {
		a.logger.Error("failed to fetch head block", zap.Error(err))
		return core.Unverified(nil)
	}
	from := lowerBlockBound(head, query.TimeWindow)
	var inspected []core.Candidate
	// newest blocks first
	for number := head; ; number-- {
		transfers, err := a.client.BlockTransfers(ctx, number)
		if err != nil {
			a.logger.Warn("failed to fetch block transfers", zap.Uint64("block", number), zap.Error(err))
			if number == from {
				break
			}
			continue
		}
		for _, transfer := range transfers {
			if transfer.To == nil || *transfer.To != receiver || transfer.From != sender {
				continue
			}
			amount := weiToEth(transfer.ValueWei)
			inspected = append(inspected, core.Candidate{
				TxHash:        transfer.TxHash,
				ReceiverDelta: amount,
				SenderDelta:   -amount,
				BlockTime:     transfer.BlockTime,
			})
			if math.Abs(amount-query.ExpectedQuantity) < references.EthTolerance {
				return core.Verified(transfer.TxHash)
			}
		}
		if number == from {
			break
		}
	}
	return core.Unverified(inspected)
}

// lowerBlockBound derives the oldest block to inspect from the time window
// and an assumed average block time. It only needs to be wide enough to not
// miss a legitimate recent payment.
func lowerBlockBound(head uint64, window time.Duration) uint64 {
	blocks := uint64(window.Seconds()) / references.AvgEthBlockTimeSeconds
	if blocks >= head {
		return 0
	}
	return head - blocks
}

func weiToEth(wei *big.Int) float64 {
	return decimal.NewFromBigInt(wei, -references.EthDecimals).InexactFloat64()
}
