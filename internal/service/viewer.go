package service

import "github.com/shinyyama/musclecat-chat/internal/model"

// Viewer is the authenticated caller.
type Viewer struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
	Role        model.Role
}

func (v Viewer) IsOwner() bool {
	return v.Role == model.RoleOwner
}

func (v Viewer) valid() bool {
	return v.UID != ""
}
