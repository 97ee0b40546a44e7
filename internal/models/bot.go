package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// BotStatus is the lifecycle state of a bot.
type BotStatus string

const (
	StatusDraft   BotStatus = "draft"
	StatusActive  BotStatus = "active"
	StatusPaused  BotStatus = "paused"
	StatusStopped BotStatus = "stopped"
	StatusError   BotStatus = "error"
)

// StrategyType names a bot's trading strategy.
type StrategyType string

const (
	StrategyDCA           StrategyType = "dca"
	StrategyGrid          StrategyType = "grid"
	StrategyMomentum      StrategyType = "momentum"
	StrategyMeanReversion StrategyType = "mean-reversion"
)

// RiskParams are the user's risk limits for a bot. Zero means unset.
type RiskParams struct {
	StopLossPct        float64 `gorm:"column:stop_loss_pct" json:"stop_loss_pct"`
	TakeProfitPct      float64 `gorm:"column:take_profit_pct" json:"take_profit_pct"`
	MaxDailyLoss       float64 `gorm:"column:max_daily_loss" json:"max_daily_loss"`
	MaxPositionSizePct float64 `gorm:"column:max_position_size_pct" json:"max_position_size_pct"`
}

// Bot is a deployed trading bot configuration together with its execution state.
type Bot struct {
	gorm.Model
	BotID        string          `gorm:"type:varchar(36);uniqueIndex;not null" json:"bot_id"`
	UserID       string          `gorm:"type:varchar(64);index;not null" json:"user_id"`
	Name         string          `json:"name"`
	StrategyType StrategyType    `gorm:"type:varchar(20);not null" json:"strategy_type"`
	Pair         string          `gorm:"type:varchar(20);not null" json:"pair"`
	Capital      decimal.Decimal `gorm:"type:decimal(30,2);not null" json:"capital"`
	Mode         TradingMode     `gorm:"type:varchar(8);not null;default:paper" json:"mode"`
	Risk         RiskParams      `gorm:"embedded" json:"risk"`
	// Params is the strategy-specific parameter bag, e.g. buyAmount, buyInterval,
	// gridLevels, investmentPerGrid.
	Params map[string]interface{} `gorm:"serializer:json" json:"params"`

	Status          BotStatus  `gorm:"type:varchar(10);index;not null;default:draft" json:"status"`
	ErrorCount      int        `gorm:"not null;default:0" json:"error_count"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	LastExecutionAt *time.Time `json:"last_execution_at,omitempty"`
	NextExecutionAt *time.Time `gorm:"index" json:"next_execution_at,omitempty"`

	TotalPnL    decimal.Decimal `gorm:"column:total_pnl;type:decimal(30,2);not null;default:0" json:"total_pnl"`
	TotalTrades int             `gorm:"not null;default:0" json:"total_trades"`
	WinRate     decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"win_rate"`
}

// Param reads a numeric strategy parameter. ok is false when the key is missing,
// not numeric, or not positive.
func (b *Bot) Param(key string) (decimal.Decimal, bool) {
	raw, present := b.Params[key]
	if !present || raw == nil {
		return decimal.Zero, false
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}
