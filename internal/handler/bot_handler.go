package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shinyyama/musclecat-chat/internal/service"
)

type BotHandler struct {
	svc service.BotService
}

func NewBotHandler(svc service.BotService) *BotHandler {
	return &BotHandler{svc: svc}
}

type BotStatusRequest struct {
	Active *bool `json:"isActive"`
}

func (h *BotHandler) Status(c echo.Context) error {
	st, err := h.svc.Status(c.Request().Context())
	if err != nil {
		return respondError(c, err, "failed to fetch bot status")
	}
	return c.JSON(http.StatusOK, st)
}

func (h *BotHandler) SetStatus(c echo.Context) error {
	v, ok := viewerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req BotStatusRequest
	if err := c.Bind(&req); err != nil || req.Active == nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "isActive is required"))
	}
	st, err := h.svc.SetStatus(c.Request().Context(), v, *req.Active)
	if err != nil {
		return respondError(c, err, "failed to update bot status")
	}
	return c.JSON(http.StatusOK, st)
}
