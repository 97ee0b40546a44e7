// Package paper simulates exchange fills for paper trading: fees, slippage,
// trade quotes and pre-trade order validation. Everything here is pure.
package paper

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	}
	return "", false
}

const (
	pricePlaces = 8
	moneyPlaces = 2
)

var (
	// FeeRate is the taker fee charged on every simulated fill (0.1%).
	FeeRate = decimal.RequireFromString("0.001")

	// MinOrderValue is the smallest order notional accepted, in quote currency.
	MinOrderValue = decimal.NewFromInt(10)

	highLiquidityRate   = decimal.RequireFromString("0.001")
	mediumLiquidityRate = decimal.RequireFromString("0.002")
	lowLiquidityRate    = decimal.RequireFromString("0.003")
)

// slippageTiers is a static liquidity table, not derived from order-book depth.
var slippageTiers = map[string]decimal.Decimal{
	"BTCUSDT":  highLiquidityRate,
	"ETHUSDT":  highLiquidityRate,
	"BNBUSDT":  highLiquidityRate,
	"SOLUSDT":  mediumLiquidityRate,
	"XRPUSDT":  mediumLiquidityRate,
	"ADAUSDT":  mediumLiquidityRate,
	"DOGEUSDT": mediumLiquidityRate,
}

// Fee returns the fee for a fill of the given total value, rounded to cents.
func Fee(totalValue decimal.Decimal) decimal.Decimal {
	return totalValue.Mul(FeeRate).Round(moneyPlaces)
}

// SlippageRate returns the slippage fraction assumed for a pair.
func SlippageRate(pair string) decimal.Decimal {
	if rate, ok := slippageTiers[strings.ToUpper(pair)]; ok {
		return rate
	}
	return lowLiquidityRate
}

// ApplySlippage moves price against the trader: buys fill higher, sells lower.
func ApplySlippage(price decimal.Decimal, side Side, rate decimal.Decimal) decimal.Decimal {
	if side == SideSell {
		return price.Mul(decimal.NewFromInt(1).Sub(rate))
	}
	return price.Mul(decimal.NewFromInt(1).Add(rate))
}
