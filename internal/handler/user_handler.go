package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shinyyama/musclecat-chat/internal/model"
	"github.com/shinyyama/musclecat-chat/internal/service"
)

type UserHandler struct {
	svc service.UserService
}

func NewUserHandler(svc service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

type MeResponse struct {
	UID         string     `json:"uid"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	PhotoURL    *string    `json:"photoURL"`
	Role        model.Role `json:"role"`
}

type PublicUserResponse struct {
	UID         string  `json:"uid"`
	DisplayName string  `json:"displayName"`
	PhotoURL    *string `json:"photoURL"`
}

type FCMTokenRequest struct {
	Token string `json:"token"`
}

func toMe(p *model.UserProfile, role model.Role) MeResponse {
	return MeResponse{
		UID:         p.UID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		PhotoURL:    strPtrOrNil(p.PhotoURL),
		Role:        role,
	}
}

func (h *UserHandler) Me(c echo.Context) error {
	v, ok := viewerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	p, err := h.svc.GetOrCreate(c.Request().Context(), v)
	if err != nil {
		return respondError(c, err, "failed to load profile")
	}
	return c.JSON(http.StatusOK, toMe(p, v.Role))
}

func (h *UserHandler) UpdateMe(c echo.Context) error {
	v, ok := viewerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req service.ProfileUpdate
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid request"))
	}
	p, err := h.svc.Update(c.Request().Context(), v, req)
	if err != nil {
		return respondError(c, err, "failed to update profile")
	}
	return c.JSON(http.StatusOK, toMe(p, v.Role))
}

func (h *UserHandler) SaveFCMToken(c echo.Context) error {
	v, ok := viewerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req FCMTokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid request"))
	}
	if err := h.svc.SaveFCMToken(c.Request().Context(), v, req.Token); err != nil {
		return respondError(c, err, "failed to save token")
	}
	return c.NoContent(http.StatusNoContent)
}

// List returns public profiles; clients use it to name reaction authors.
func (h *UserHandler) List(c echo.Context) error {
	list, err := h.svc.List(c.Request().Context())
	if err != nil {
		return respondError(c, err, "failed to fetch users")
	}
	resp := make([]PublicUserResponse, 0, len(list))
	for _, p := range list {
		resp = append(resp, PublicUserResponse{
			UID:         p.UID,
			DisplayName: p.DisplayName,
			PhotoURL:    strPtrOrNil(p.PhotoURL),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
