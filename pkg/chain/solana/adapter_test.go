package solana

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cryptopaylink/cryptopaylink/pkg/core"
)

const (
	buyerWallet  = "4Nd1mYvM6kV8VZv1TopvTupoDWyZbWpYDmUVU3sT3GFq"
	sellerWallet = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	otherWallet  = "7S3P4HxJpyyigGzodYwHtCxZyUQe9JiBMHyRWXArAaKv"
)

type mockClient struct {
	signatures   []SignatureInfo
	transactions map[string]BalanceImage
	sigErr       error
	txErr        error
	txCalls      map[string]int
}

func (m *mockClient) RecentSignatures(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	if m.sigErr != nil {
		return nil, m.sigErr
	}
	return m.signatures, nil
}

func (m *mockClient) TransactionBalances(ctx context.Context, signature string) (BalanceImage, error) {
	if m.txCalls != nil {
		m.txCalls[signature]++
	}
	if m.txErr != nil {
		return BalanceImage{}, m.txErr
	}
	image, ok := m.transactions[signature]
	if !ok {
		return BalanceImage{}, errors.New("unknown signature")
	}
	return image, nil
}

func sol(amount float64) uint64 {
	return uint64(amount * 1e9)
}

func query(expected float64) core.VerificationQuery {
	return core.VerificationQuery{
		Sender:           buyerWallet,
		Receiver:         sellerWallet,
		Currency:         core.CurrencySOL,
		ExpectedQuantity: expected,
		TimeWindow:       30 * time.Minute,
	}
}

func TestVerifyPayment(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name         string
		client       *mockClient
		expected     float64
		wantVerified bool
		wantTxHash   string
	}{
		{
			// receiver +5.0003 is within the 0.001 tolerance of 5.0, sender
			// delta is negative (amount plus fee)
			name: "borderline amount within tolerance",
			client: &mockClient{
				signatures: []SignatureInfo{{Signature: "sig1", BlockTime: now.Add(-time.Minute)}},
				transactions: map[string]BalanceImage{
					"sig1": {
						AccountKeys:  []string{buyerWallet, sellerWallet},
						PreBalances:  []uint64{sol(10.0), sol(1.0)},
						PostBalances: []uint64{sol(10.0) - sol(5.0021), sol(1.0) + sol(5.0003)},
					},
				},
			},
			expected:     5.0,
			wantVerified: true,
			wantTxHash:   "sig1",
		},
		{
			name: "amount outside tolerance",
			client: &mockClient{
				signatures: []SignatureInfo{{Signature: "sig1", BlockTime: now.Add(-time.Minute)}},
				transactions: map[string]BalanceImage{
					"sig1": {
						AccountKeys:  []string{buyerWallet, sellerWallet},
						PreBalances:  []uint64{sol(10.0), sol(1.0)},
						PostBalances: []uint64{sol(5.4), sol(5.5)},
					},
				},
			},
			expected: 5.0,
		},
		{
			// sender and receiver legs in two different transactions must not
			// combine into a match
			name: "sender and receiver in different transactions",
			client: &mockClient{
				signatures: []SignatureInfo{
					{Signature: "sig1", BlockTime: now.Add(-time.Minute)},
					{Signature: "sig2", BlockTime: now.Add(-2 * time.Minute)},
				},
				transactions: map[string]BalanceImage{
					"sig1": {
						AccountKeys:  []string{otherWallet, sellerWallet},
						PreBalances:  []uint64{sol(20.0), sol(1.0)},
						PostBalances: []uint64{sol(14.99), sol(6.0)},
					},
					"sig2": {
						AccountKeys:  []string{buyerWallet, otherWallet},
						PreBalances:  []uint64{sol(10.0), sol(1.0)},
						PostBalances: []uint64{sol(4.99), sol(6.0)},
					},
				},
			},
			expected: 5.0,
		},
		{
			name: "receiver credited without sender debit",
			client: &mockClient{
				signatures: []SignatureInfo{{Signature: "sig1", BlockTime: now.Add(-time.Minute)}},
				transactions: map[string]BalanceImage{
					"sig1": {
						AccountKeys:  []string{buyerWallet, sellerWallet, otherWallet},
						PreBalances:  []uint64{sol(10.0), sol(1.0), sol(20.0)},
						PostBalances: []uint64{sol(10.0), sol(6.0), sol(15.0)},
					},
				},
			},
			expected: 5.0,
		},
		{
			name: "transaction outside time window",
			client: &mockClient{
				signatures: []SignatureInfo{{Signature: "sig1", BlockTime: now.Add(-2 * time.Hour)}},
				transactions: map[string]BalanceImage{
					"sig1": {
						AccountKeys:  []string{buyerWallet, sellerWallet},
						PreBalances:  []uint64{sol(10.0), sol(1.0)},
						PostBalances: []uint64{sol(4.99), sol(6.0)},
					},
				},
			},
			expected: 5.0,
		},
		{
			name: "failed transaction skipped",
			client: &mockClient{
				signatures: []SignatureInfo{{Signature: "sig1", BlockTime: now.Add(-time.Minute), Failed: true}},
				transactions: map[string]BalanceImage{
					"sig1": {
						AccountKeys:  []string{buyerWallet, sellerWallet},
						PreBalances:  []uint64{sol(10.0), sol(1.0)},
						PostBalances: []uint64{sol(4.99), sol(6.0)},
					},
				},
			},
			expected: 5.0,
		},
		{
			name: "newest matching transaction wins",
			client: &mockClient{
				signatures: []SignatureInfo{
					{Signature: "newer", BlockTime: now.Add(-time.Minute)},
					{Signature: "older", BlockTime: now.Add(-10 * time.Minute)},
				},
				transactions: map[string]BalanceImage{
					"newer": {
						AccountKeys:  []string{buyerWallet, sellerWallet},
						PreBalances:  []uint64{sol(20.0), sol(1.0)},
						PostBalances: []uint64{sol(14.99), sol(6.0)},
					},
					"older": {
						AccountKeys:  []string{buyerWallet, sellerWallet},
						PreBalances:  []uint64{sol(30.0), sol(2.0)},
						PostBalances: []uint64{sol(24.99), sol(7.0)},
					},
				},
			},
			expected:     5.0,
			wantVerified: true,
			wantTxHash:   "newer",
		},
		{
			name:     "rpc failure absorbed into unverified",
			client:   &mockClient{sigErr: errors.New("rpc: connection refused")},
			expected: 5.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := zap.NewDevelopment()
			adapter := NewAdapter(tt.client, logger)
			result := adapter.VerifyPayment(context.Background(), query(tt.expected))
			require.Equal(t, tt.wantVerified, result.Verified)
			require.Equal(t, tt.wantTxHash, result.TxHash)
		})
	}
}

func TestVerifyPaymentDiagnostics(t *testing.T) {
	now := time.Now()
	client := &mockClient{
		signatures: []SignatureInfo{
			{Signature: "sig1", BlockTime: now.Add(-time.Minute)},
			{Signature: "sig2", BlockTime: now.Add(-5 * time.Minute)},
		},
		transactions: map[string]BalanceImage{
			"sig1": {
				AccountKeys:  []string{buyerWallet, sellerWallet},
				PreBalances:  []uint64{sol(10.0), sol(1.0)},
				PostBalances: []uint64{sol(8.0), sol(3.0)},
			},
			"sig2": {
				AccountKeys:  []string{buyerWallet, sellerWallet},
				PreBalances:  []uint64{sol(10.0), sol(1.0)},
				PostBalances: []uint64{sol(9.0), sol(2.0)},
			},
		},
	}
	logger, _ := zap.NewDevelopment()
	adapter := NewAdapter(client, logger)
	result := adapter.VerifyPayment(context.Background(), query(5.0))
	require.False(t, result.Verified)
	require.Empty(t, result.TxHash)
	// all inspected candidates are enumerated for operator debugging
	require.Len(t, result.Candidates, 2)
	require.InDelta(t, 2.0, result.Candidates[0].ReceiverDelta, 1e-9)
	require.InDelta(t, -2.0, result.Candidates[0].SenderDelta, 1e-9)
}

func TestVerifyPaymentCachesResolvedTransactions(t *testing.T) {
	now := time.Now()
	client := &mockClient{
		signatures: []SignatureInfo{{Signature: "sig1", BlockTime: now.Add(-time.Minute)}},
		transactions: map[string]BalanceImage{
			"sig1": {
				AccountKeys:  []string{buyerWallet, sellerWallet},
				PreBalances:  []uint64{sol(10.0), sol(1.0)},
				PostBalances: []uint64{sol(9.0), sol(2.0)},
			},
		},
		txCalls: map[string]int{},
	}
	logger, _ := zap.NewDevelopment()
	adapter := NewAdapter(client, logger)
	for i := 0; i < 3; i++ {
		result := adapter.VerifyPayment(context.Background(), query(5.0))
		require.False(t, result.Verified)
	}
	require.Equal(t, 1, client.txCalls["sig1"])
}
