package model

import "time"

// UserProfile mirrors the signed-in Firebase user plus chat-only fields.
type UserProfile struct {
	UID         string    `gorm:"primaryKey;size:128" json:"uid" firestore:"uid"`
	Email       string    `gorm:"column:email;size:255;index" json:"email" firestore:"email"`
	DisplayName string    `gorm:"column:display_name;size:128" json:"displayName" firestore:"displayName"`
	PhotoURL    string    `gorm:"column:photo_url;size:1024" json:"photoURL" firestore:"photoURL"`
	FCMToken    string    `gorm:"column:fcm_token;size:512" json:"-" firestore:"fcmToken,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt" firestore:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt" firestore:"updatedAt"`
}

func (UserProfile) TableName() string {
	return "user_profiles"
}
