package model

import "time"

type TypingStatus struct {
	UID         string    `json:"uid"`
	DisplayName string    `json:"displayName"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
