package model

import "time"

const BotSettingsID = "bot"

// BotSettings is a single row holding the auto-responder switch and the
// last time the owner spoke.
type BotSettings struct {
	ID                string     `gorm:"primaryKey;size:32" json:"-"`
	Active            bool       `gorm:"column:active" json:"isActive"`
	OwnerLastActiveAt *time.Time `gorm:"column:owner_last_active_at" json:"ownerLastActiveAt,omitempty"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (BotSettings) TableName() string {
	return "bot_settings"
}
