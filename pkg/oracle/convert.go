package oracle

import (
	"fmt"
	"math"
)

// ToCryptoQuantity converts a fiat amount into a crypto quantity at the given
// USD price. A zero or non-finite price should already have failed upstream
// (GetPrice never returns one); the guard here keeps a bogus quantity from
// ever reaching on-chain matching.
func ToCryptoQuantity(fiatAmount, price float64) (float64, error) {
	if price <= 0 || math.IsInf(price, 0) || math.IsNaN(price) {
		return 0, fmt.Errorf("invalid price %v", price)
	}
	quantity := fiatAmount / price
	if math.IsInf(quantity, 0) || math.IsNaN(quantity) {
		return 0, fmt.Errorf("non-finite quantity from %v / %v", fiatAmount, price)
	}
	return quantity, nil
}
