package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// transferTopic is the canonical ERC20 Transfer event signature.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Transfer is one native-asset transfer found in a block.
type Transfer struct {
	TxHash    string
	From      common.Address
	To        *common.Address
	ValueWei  *big.Int
	BlockTime time.Time
}

// TokenTransfer is one decoded Transfer event log. Sender and receiver are
// already guaranteed to match because they are part of the log query filter.
type TokenTransfer struct {
	TxHash    string
	RawAmount *big.Int
}

// Client is the subset of an EVM node API the adapters need.
type Client interface {
	HeadBlockNumber(ctx context.Context) (uint64, error)
	BlockTransfers(ctx context.Context, number uint64) ([]Transfer, error)
	TransferLogs(ctx context.Context, contract, sender, receiver common.Address, fromBlock, toBlock uint64) ([]TokenTransfer, error)
}

// RPCClient implements Client on top of go-ethereum's ethclient.
type RPCClient struct {
	eth *ethclient.Client

	chainIDOnce sync.Once
	chainID     *big.Int
	chainIDErr  error
}

func NewRPCClient(endpoint string) (*RPCClient, error) {
	eth, err := ethclient.Dial(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ethereum rpc: %w", err)
	}
	return &RPCClient{eth: eth}, nil
}

func (c *RPCClient) HeadBlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *RPCClient) BlockTransfers(ctx context.Context, number uint64) ([]Transfer, error) {
	block, err := c.eth.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block %d: %w", number, err)
	}
	signer, err := c.signer(ctx)
	if err != nil {
		return nil, err
	}
	blockTime := time.Unix(int64(block.Time()), 0)
	transfers := make([]Transfer, 0, len(block.Transactions()))
	for _, tx := range block.Transactions() {
		from, err := types.Sender(signer, tx)
		if err != nil {
			continue
		}
		transfers = append(transfers, Transfer{
			TxHash:    tx.Hash().Hex(),
			From:      from,
			To:        tx.To(),
			ValueWei:  tx.Value(),
			BlockTime: blockTime,
		})
	}
	return transfers, nil
}

func (c *RPCClient) TransferLogs(ctx context.Context, contract, sender, receiver common.Address, fromBlock, toBlock uint64) ([]TokenTransfer, error) {
	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{contract},
		Topics: [][]common.Hash{
			{transferTopic},
			{addressTopic(sender)},
			{addressTopic(receiver)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter transfer logs: %w", err)
	}
	transfers := make([]TokenTransfer, 0, len(logs))
	for _, log := range logs {
		transfers = append(transfers, TokenTransfer{
			TxHash:    log.TxHash.Hex(),
			RawAmount: new(big.Int).SetBytes(log.Data),
		})
	}
	return transfers, nil
}

func (c *RPCClient) signer(ctx context.Context) (types.Signer, error) {
	c.chainIDOnce.Do(func() {
		c.chainID, c.chainIDErr = c.eth.ChainID(ctx)
	})
	if c.chainIDErr != nil {
		return nil, fmt.Errorf("failed to resolve chain id: %w", c.chainIDErr)
	}
	return types.LatestSignerForChainID(c.chainID), nil
}

func addressTopic(address common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(address.Bytes(), 32))
}
