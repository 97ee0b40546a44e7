package paper

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNonPositiveQuantity = errors.New("quantity must be positive")
	ErrNonPositivePrice    = errors.New("price must be positive")
)

// Quote is the simulated outcome of a fill.
type Quote struct {
	Side          Side            `json:"side"`
	Pair          string          `json:"pair"`
	Quantity      decimal.Decimal `json:"quantity"`
	MarketPrice   decimal.Decimal `json:"market_price"`
	SlippageRate  decimal.Decimal `json:"slippage_rate"`
	ExecutedPrice decimal.Decimal `json:"executed_price"`
	TotalValue    decimal.Decimal `json:"total_value"`
	Fee           decimal.Decimal `json:"fee"`
	// NetAmount is what the trader pays on a buy or receives on a sell.
	NetAmount decimal.Decimal `json:"net_amount"`
}

// BalanceDelta is the signed change a quote applies to the quote-currency balance.
func (q Quote) BalanceDelta() decimal.Decimal {
	if q.Side == SideSell {
		return q.NetAmount
	}
	return q.NetAmount.Neg()
}

// Calculate quotes a fill using the pair's liquidity tier for slippage.
func Calculate(side Side, pair string, quantity, marketPrice decimal.Decimal) (Quote, error) {
	return CalculateWithRate(side, pair, quantity, marketPrice, SlippageRate(pair))
}

// CalculateWithRate quotes a fill with an explicit slippage rate.
func CalculateWithRate(side Side, pair string, quantity, marketPrice, rate decimal.Decimal) (Quote, error) {
	if !quantity.IsPositive() {
		return Quote{}, fmt.Errorf("%w: %s", ErrNonPositiveQuantity, quantity)
	}
	if !marketPrice.IsPositive() {
		return Quote{}, fmt.Errorf("%w: %s", ErrNonPositivePrice, marketPrice)
	}
	if side != SideBuy && side != SideSell {
		return Quote{}, fmt.Errorf("unknown side %q", side)
	}

	executed := ApplySlippage(marketPrice, side, rate).Round(pricePlaces)
	total := quantity.Mul(executed).Round(moneyPlaces)
	fee := Fee(total)

	net := total.Add(fee)
	if side == SideSell {
		net = total.Sub(fee)
	}

	return Quote{
		Side:          side,
		Pair:          pair,
		Quantity:      quantity,
		MarketPrice:   marketPrice,
		SlippageRate:  rate,
		ExecutedPrice: executed,
		TotalValue:    total,
		Fee:           fee,
		NetAmount:     net,
	}, nil
}

// QuantityFor converts a quote-currency amount into a base quantity at price.
func QuantityFor(amount, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return amount.DivRound(price, pricePlaces)
}
