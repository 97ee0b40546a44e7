package binance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceOracle returns the current market price for a symbol.
type PriceOracle interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Oracle serves prices from a ticker stream when it is fresh and falls back to
// the REST ticker endpoint otherwise.
type Oracle struct {
	rest   RestClientInterface
	stream *TickerStream
	maxAge time.Duration
	logger *zap.Logger
}

var _ PriceOracle = (*Oracle)(nil)

// NewOracle creates an oracle. stream may be nil.
func NewOracle(rest RestClientInterface, stream *TickerStream, maxAge time.Duration, logger *zap.Logger) *Oracle {
	return &Oracle{rest: rest, stream: stream, maxAge: maxAge, logger: logger.Named("oracle")}
}

func (o *Oracle) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if o.stream != nil {
		if price, ok := o.stream.Price(symbol, o.maxAge); ok {
			return price, nil
		}
		o.logger.Debug("Stream price missing or stale, using REST", zap.String("symbol", symbol))
	}
	return o.rest.GetTickerPrice(ctx, symbol)
}
