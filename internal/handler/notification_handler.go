package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shinyyama/musclecat-chat/internal/model"
	"github.com/shinyyama/musclecat-chat/internal/service"
)

type NotificationHandler struct {
	svc service.NotificationService
}

func NewNotificationHandler(svc service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

type NotificationResponse struct {
	ID          uint64 `json:"id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	MessageID   string `json:"messageId,omitempty"`
	Delivered   bool   `json:"delivered"`
	DeliveryErr string `json:"deliveryError,omitempty"`
	Read        bool   `json:"read"`
	CreatedAt   string `json:"createdAt"`
}

func toNotificationResponse(n model.Notification) NotificationResponse {
	return NotificationResponse{
		ID:          n.ID,
		Title:       n.Title,
		Body:        n.Body,
		MessageID:   n.MessageID,
		Delivered:   n.Delivered,
		DeliveryErr: n.DeliveryErr,
		Read:        n.ReadAt != nil,
		CreatedAt:   n.CreatedAt.Format(time.RFC3339),
	}
}

func (h *NotificationHandler) List(c echo.Context) error {
	v, ok := viewerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	unreadOnly := c.QueryParam("unread_only") != "false"
	list, unreadCount, err := h.svc.List(c.Request().Context(), v.UID, unreadOnly, queryLimit(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch notifications"))
	}
	resp := make([]NotificationResponse, 0, len(list))
	for _, n := range list {
		resp = append(resp, toNotificationResponse(n))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"notifications": resp,
		"unreadCount":   unreadCount,
	})
}

func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	v, ok := viewerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if err := h.svc.MarkAllRead(c.Request().Context(), v.UID); err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to mark read"))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
