package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shinyyama/musclecat-chat/internal/model"
	"github.com/shinyyama/musclecat-chat/internal/service"
)

type TypingHandler struct {
	svc service.TypingService
}

func NewTypingHandler(svc service.TypingService) *TypingHandler {
	return &TypingHandler{svc: svc}
}

type TypingRequest struct {
	Typing bool `json:"typing"`
}

func (h *TypingHandler) List(c echo.Context) error {
	v, ok := viewerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	list, err := h.svc.List(c.Request().Context(), v)
	if err != nil {
		return respondError(c, err, "failed to fetch typing status")
	}
	if list == nil {
		list = []model.TypingStatus{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"typing": list})
}

func (h *TypingHandler) Set(c echo.Context) error {
	v, ok := viewerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req TypingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid request"))
	}
	if err := h.svc.SetTyping(c.Request().Context(), v, req.Typing); err != nil {
		return respondError(c, err, "failed to set typing status")
	}
	return c.NoContent(http.StatusNoContent)
}
