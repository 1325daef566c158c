package core

import (
	"time"

	"github.com/google/uuid"
)

// Chain identifies the network a payment settles on.
type Chain string

const (
	ChainSolana   Chain = "solana"
	ChainEthereum Chain = "ethereum"
)

// Currency identifies the asset a payment is denominated in.
type Currency string

const (
	CurrencySOL  Currency = "SOL"
	CurrencyETH  Currency = "ETH"
	CurrencyUSDT Currency = "USDT"
	CurrencyUSDC Currency = "USDC"
)

// PaymentStatus tracks the lifecycle of a payment intent. Confirmed and
// failed are absorbing states.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusConfirmed PaymentStatus = "confirmed"
	StatusFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Product is a sellable item with a fixed fiat price and a settlement
// wallet controlled by the merchant.
type Product struct {
	ID              uuid.UUID
	Name            string
	Chain           Chain
	Currency        Currency
	RecipientWallet string
	PriceUSD        float64
	Active          bool
}

// PaymentIntent records one buyer's attempt to pay for a product. The
// crypto amount is quoted once at creation time and never re-priced.
type PaymentIntent struct {
	ID           uuid.UUID
	ProductID    uuid.UUID
	BuyerEmail   string
	BuyerWallet  string
	AmountUSD    float64
	AmountCrypto float64
	Currency     Currency
	Chain        Chain
	Status       PaymentStatus
	TxHash       string
	CreatedAt    time.Time
	ConfirmedAt  time.Time
}
