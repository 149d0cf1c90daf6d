package model

import "time"

// Notification is the owner's inbox entry written for every push attempt.
type Notification struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserUID     string     `gorm:"column:user_uid;size:128;index;not null" json:"-"`
	Title       string     `gorm:"column:title;size:255" json:"title"`
	Body        string     `gorm:"column:body;type:text" json:"body"`
	MessageID   string     `gorm:"column:message_id;size:64;index" json:"messageId"`
	Delivered   bool       `gorm:"column:delivered" json:"delivered"`
	DeliveryErr string     `gorm:"column:delivery_err;size:512" json:"deliveryError,omitempty"`
	ReadAt      *time.Time `gorm:"column:read_at" json:"readAt,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

func (Notification) TableName() string {
	return "notifications"
}
