package models

import "time"

// BotLog is an audit event emitted by a bot tick.
type BotLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	BotID     string    `gorm:"type:varchar(36);index;not null" json:"bot_id"`
	Level     string    `gorm:"type:varchar(8);not null" json:"level"` // "info" or "error"
	Event     string    `gorm:"type:varchar(32);not null" json:"event"`
	Message   string    `json:"message"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
