package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxStreamBackoff = 16 * time.Second

type pricePoint struct {
	price decimal.Decimal
	at    time.Time
}

// miniTickerEvent is the combined-stream envelope for <symbol>@miniTicker.
type miniTickerEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol    string `json:"s"`
		EventTime int64  `json:"E"`
		Close     string `json:"c"`
	} `json:"data"`
}

// TickerStream keeps the last traded price per symbol from the Binance
// miniTicker WebSocket stream.
type TickerStream struct {
	url     string
	symbols []string
	logger  *zap.Logger
	dialer  *websocket.Dialer
	now     func() time.Time

	mu     sync.RWMutex
	prices map[string]pricePoint
}

// NewTickerStream creates a stream for symbols. baseURL is the combined stream
// endpoint, e.g. wss://stream.binance.com:9443/stream.
func NewTickerStream(baseURL string, symbols []string, logger *zap.Logger) *TickerStream {
	return &TickerStream{
		url:     baseURL,
		symbols: symbols,
		logger:  logger.Named("binance-stream"),
		dialer:  websocket.DefaultDialer,
		now:     time.Now,
		prices:  make(map[string]pricePoint),
	}
}

func (s *TickerStream) streamURL() string {
	streams := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		streams = append(streams, strings.ToLower(sym)+"@miniTicker")
	}
	return fmt.Sprintf("%s?streams=%s", s.url, strings.Join(streams, "/"))
}

// Price returns the cached price for symbol if it is no older than maxAge.
func (s *TickerStream) Price(symbol string, maxAge time.Duration) (decimal.Decimal, bool) {
	s.mu.RLock()
	p, ok := s.prices[strings.ToUpper(symbol)]
	s.mu.RUnlock()
	if !ok || s.now().Sub(p.at) > maxAge {
		return decimal.Zero, false
	}
	return p.price, true
}

func (s *TickerStream) store(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	s.prices[strings.ToUpper(symbol)] = pricePoint{price: price, at: s.now()}
	s.mu.Unlock()
}

// Run connects and reconnects with capped exponential backoff until ctx is done.
func (s *TickerStream) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		url := s.streamURL()
		s.logger.Info("Connecting to ticker stream", zap.String("url", url), zap.Duration("backoff", backoff))
		conn, _, err := s.dialer.DialContext(ctx, url, nil)
		if err != nil {
			s.logger.Error("Ticker stream connection failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxStreamBackoff {
				backoff = maxStreamBackoff
			}
			continue
		}

		backoff = time.Second
		s.logger.Info("Ticker stream connected", zap.Int("symbols", len(s.symbols)))
		s.readLoop(ctx, conn)
	}
}

func (s *TickerStream) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock ReadMessage on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("Ticker stream read failed, reconnecting", zap.Error(err))
			}
			return
		}

		var event miniTickerEvent
		if err := json.Unmarshal(message, &event); err != nil {
			s.logger.Warn("Failed to parse ticker message", zap.Error(err))
			continue
		}
		price, err := parsePrice(event.Data.Close)
		if err != nil || event.Data.Symbol == "" {
			s.logger.Debug("Skipping ticker message", zap.String("stream", event.Stream), zap.Error(err))
			continue
		}
		s.store(event.Data.Symbol, price)
	}
}
