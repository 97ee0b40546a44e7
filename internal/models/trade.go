package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradingMode tells whether a trade was simulated or sent to the exchange.
type TradingMode string

const (
	ModePaper TradingMode = "paper"
	ModeLive  TradingMode = "live"
)

// Trade is an executed fill. Rows are append-only: they are inserted once and
// never updated or deleted.
type Trade struct {
	ID           uint            `gorm:"primarykey" json:"id"`
	BotID        *string         `gorm:"type:varchar(36);index" json:"bot_id,omitempty"` // nil for manual trades
	UserID       string          `gorm:"type:varchar(64);index;not null" json:"user_id"`
	Side         string          `gorm:"type:varchar(4);not null" json:"side"` // "BUY" or "SELL"
	Pair         string          `gorm:"type:varchar(20);not null" json:"pair"`
	Mode         TradingMode     `gorm:"type:varchar(8);not null" json:"mode"`
	Price        decimal.Decimal `gorm:"type:decimal(30,8);not null" json:"price"`
	Quantity     decimal.Decimal `gorm:"type:decimal(30,8);not null" json:"quantity"`
	TotalValue   decimal.Decimal `gorm:"type:decimal(30,2);not null" json:"total_value"`
	Fee          decimal.Decimal `gorm:"type:decimal(30,2);not null" json:"fee"`
	FeeCurrency  string          `gorm:"type:varchar(10);not null" json:"fee_currency"`
	StrategyType string          `gorm:"type:varchar(20)" json:"strategy_type,omitempty"`
	Reason       string          `json:"reason"`
	ExecutedAt   time.Time       `gorm:"index;not null" json:"executed_at"`
	CreatedAt    time.Time       `json:"created_at"`
}
