package solana

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/cryptopaylink/cryptopaylink/internal/g"
)

// SignatureInfo is one entry of a receiver's recent transaction history.
type SignatureInfo struct {
	Signature string
	BlockTime time.Time
	Failed    bool
}

// BalanceImage is the pre/post account balance picture of a single
// transaction, in lamports, indexed in parallel with AccountKeys.
type BalanceImage struct {
	AccountKeys  []string
	PreBalances  []uint64
	PostBalances []uint64
}

// Client is the subset of Solana RPC the adapter needs.
type Client interface {
	RecentSignatures(ctx context.Context, address string, limit int) ([]SignatureInfo, error)
	TransactionBalances(ctx context.Context, signature string) (BalanceImage, error)
}

// RPCClient implements Client on top of the standard Solana JSON-RPC API.
type RPCClient struct {
	rpc *rpc.Client
}

func NewRPCClient(endpoint string) *RPCClient {
	return &RPCClient{rpc: rpc.New(endpoint)}
}

func (c *RPCClient) RecentSignatures(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	account, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid account %q: %w", address, err)
	}
	signatures, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, account, &rpc.GetSignaturesForAddressOpts{
		Limit:      g.Pointer(limit),
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list signatures for %v: %w", account, err)
	}
	infos := make([]SignatureInfo, 0, len(signatures))
	for _, s := range signatures {
		info := SignatureInfo{
			Signature: s.Signature.String(),
			Failed:    s.Err != nil,
		}
		if s.BlockTime != nil {
			info.BlockTime = s.BlockTime.Time()
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (c *RPCClient) TransactionBalances(ctx context.Context, signature string) (BalanceImage, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return BalanceImage{}, fmt.Errorf("invalid signature %q: %w", signature, err)
	}
	result, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: g.Pointer(uint64(0)),
	})
	if err != nil {
		return BalanceImage{}, fmt.Errorf("failed to fetch transaction %v: %w", sig, err)
	}
	if result == nil || result.Meta == nil || result.Transaction == nil {
		return BalanceImage{}, fmt.Errorf("transaction %v has no balance metadata", sig)
	}
	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return BalanceImage{}, fmt.Errorf("failed to decode transaction %v: %w", sig, err)
	}
	keys := make([]string, 0, len(tx.Message.AccountKeys))
	for _, key := range tx.Message.AccountKeys {
		keys = append(keys, key.String())
	}
	return BalanceImage{
		AccountKeys:  keys,
		PreBalances:  result.Meta.PreBalances,
		PostBalances: result.Meta.PostBalances,
	}, nil
}
