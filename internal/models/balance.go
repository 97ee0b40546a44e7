package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is a user's paper trading balance in the quote currency.
// Version is bumped on every write and guards concurrent updates.
type Balance struct {
	ID        uint            `gorm:"primarykey" json:"-"`
	UserID    string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(30,2);not null" json:"amount"`
	Currency  string          `gorm:"type:varchar(10);not null" json:"currency"`
	Version   int64           `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
