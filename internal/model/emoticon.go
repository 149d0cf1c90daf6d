package model

import "time"

type Emoticon struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id" firestore:"-"`
	URL       string    `gorm:"column:url;size:1024;not null" json:"url" firestore:"url"`
	Order     int       `gorm:"column:sort_order;index" json:"order" firestore:"order"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt" firestore:"createdAt"`
}

func (Emoticon) TableName() string {
	return "emoticons"
}
