package references

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptopaylink/cryptopaylink/pkg/core"
)

// Scaling factors for converting raw on-chain integers to decimal units.
// Comparisons against expected quantities always happen in decimal space
// because expected quantities come from a fiat conversion.
const (
	SolDecimals   = 9 // lamports per SOL = 1e9
	EthDecimals   = 18
	TokenDecimals = 6 // USDT and USDC both use 6 decimals on mainnet
)

// Absolute tolerances for amount matching. The tolerance absorbs rounding
// from the fiat conversion, not chain fee mechanics. Token tolerance is wider
// because 6-decimal truncation is coarser.
const (
	SolTolerance   = 0.001
	EthTolerance   = 0.001
	TokenTolerance = 0.01
)

// AvgEthBlockTime converts a verification time window into a block range.
// It only needs to be wide enough to not miss recent payments.
const AvgEthBlockTimeSeconds = 13

// TokenContracts maps a stable token to its mainnet contract.
var TokenContracts = map[core.Currency]common.Address{
	core.CurrencyUSDT: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
	core.CurrencyUSDC: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
}

// QuoteIDs maps a currency to its identifier on the price oracle.
var QuoteIDs = map[core.Currency]string{
	core.CurrencySOL:  "solana",
	core.CurrencyETH:  "ethereum",
	core.CurrencyUSDT: "tether",
	core.CurrencyUSDC: "usd-coin",
}
