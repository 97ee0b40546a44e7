package paper

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSlippageRate(t *testing.T) {
	testCases := []struct {
		pair string
		want string
	}{
		{"BTCUSDT", "0.001"},
		{"ethusdt", "0.001"},
		{"BNBUSDT", "0.001"},
		{"SOLUSDT", "0.002"},
		{"XRPUSDT", "0.002"},
		{"ADAUSDT", "0.002"},
		{"DOGEUSDT", "0.002"},
		{"DOTUSDT", "0.003"},
		{"SHIBUSDT", "0.003"},
	}
	for _, tc := range testCases {
		t.Run(tc.pair, func(t *testing.T) {
			assert.True(t, d(tc.want).Equal(SlippageRate(tc.pair)), "got %s", SlippageRate(tc.pair))
		})
	}
}

func TestApplySlippage_PenalizesTrader(t *testing.T) {
	prices := []string{"0.00001234", "1", "50000", "123456.789"}
	rates := []string{"0.0001", "0.001", "0.002", "0.003", "0.05"}

	for _, p := range prices {
		for _, r := range rates {
			price, rate := d(p), d(r)
			assert.True(t, ApplySlippage(price, SideBuy, rate).GreaterThanOrEqual(price), "buy %s @ %s", p, r)
			assert.True(t, ApplySlippage(price, SideSell, rate).LessThanOrEqual(price), "sell %s @ %s", p, r)
		}
	}
}

func TestCalculate(t *testing.T) {
	t.Run("BTC buy scenario", func(t *testing.T) {
		q, err := Calculate(SideBuy, "BTCUSDT", d("0.01"), d("50000"))
		require.NoError(t, err)

		assert.Equal(t, "50050.00", q.ExecutedPrice.StringFixed(2))
		assert.Equal(t, "500.50", q.TotalValue.StringFixed(2))
		assert.Equal(t, "0.50", q.Fee.StringFixed(2))
		assert.Equal(t, "501.00", q.NetAmount.StringFixed(2))
		assert.True(t, q.BalanceDelta().Equal(d("-501")))
	})

	t.Run("Sell nets fee out of proceeds", func(t *testing.T) {
		q, err := Calculate(SideSell, "SOLUSDT", d("3"), d("150"))
		require.NoError(t, err)

		// 150 * 0.998 = 149.7
		assert.True(t, q.ExecutedPrice.Equal(d("149.7")))
		assert.True(t, q.TotalValue.Equal(d("449.1")))
		assert.True(t, q.Fee.Equal(d("0.45")))
		assert.True(t, q.NetAmount.Equal(q.TotalValue.Sub(q.Fee)))
		assert.True(t, q.BalanceDelta().IsPositive())
	})

	t.Run("Fee and net invariants", func(t *testing.T) {
		inputs := []struct {
			side  Side
			pair  string
			qty   string
			price string
		}{
			{SideBuy, "ETHUSDT", "0.337", "3012.77"},
			{SideSell, "ETHUSDT", "0.337", "3012.77"},
			{SideBuy, "DOGEUSDT", "1234", "0.1537"},
			{SideSell, "AVAXUSDT", "2.5", "31.333"},
		}
		for _, in := range inputs {
			q, err := Calculate(in.side, in.pair, d(in.qty), d(in.price))
			require.NoError(t, err)
			assert.True(t, q.Fee.Equal(q.TotalValue.Mul(FeeRate).Round(2)))
			if in.side == SideBuy {
				assert.True(t, q.NetAmount.Equal(q.TotalValue.Add(q.Fee)))
				assert.True(t, q.ExecutedPrice.GreaterThanOrEqual(q.MarketPrice))
			} else {
				assert.True(t, q.NetAmount.Equal(q.TotalValue.Sub(q.Fee)))
				assert.True(t, q.ExecutedPrice.LessThanOrEqual(q.MarketPrice))
			}
			assert.True(t, q.TotalValue.Equal(q.TotalValue.Round(2)))
			assert.True(t, q.ExecutedPrice.Equal(q.ExecutedPrice.Round(8)))
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		a, err := Calculate(SideBuy, "XRPUSDT", d("100"), d("0.5123"))
		require.NoError(t, err)
		b, err := Calculate(SideBuy, "XRPUSDT", d("100"), d("0.5123"))
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("Rejects non-positive inputs", func(t *testing.T) {
		_, err := Calculate(SideBuy, "BTCUSDT", decimal.Zero, d("50000"))
		assert.ErrorIs(t, err, ErrNonPositiveQuantity)
		_, err = Calculate(SideBuy, "BTCUSDT", d("1"), d("-1"))
		assert.ErrorIs(t, err, ErrNonPositivePrice)
	})

	t.Run("Explicit rate", func(t *testing.T) {
		q, err := CalculateWithRate(SideBuy, "DOTUSDT", d("10"), d("5"), d("0.001"))
		require.NoError(t, err)
		assert.True(t, q.ExecutedPrice.Equal(d("5.005")))
	})
}

func TestQuantityFor(t *testing.T) {
	assert.True(t, QuantityFor(d("50"), d("50000")).Equal(d("0.001")))
	assert.True(t, QuantityFor(d("100"), d("3")).Equal(d("33.33333333")))
	assert.True(t, QuantityFor(d("100"), decimal.Zero).IsZero())
}
