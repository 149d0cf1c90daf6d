package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shinyyama/musclecat-chat/internal/service"
)

const maxEmoticonBytes = 2 << 20

type EmoticonHandler struct {
	svc service.EmoticonService
}

func NewEmoticonHandler(svc service.EmoticonService) *EmoticonHandler {
	return &EmoticonHandler{svc: svc}
}

type ReorderRequest struct {
	IDs []string `json:"ids"`
}

func (h *EmoticonHandler) List(c echo.Context) error {
	list, err := h.svc.List(c.Request().Context())
	if err != nil {
		return respondError(c, err, "failed to fetch emoticons")
	}
	return c.JSON(http.StatusOK, list)
}

func (h *EmoticonHandler) Add(c echo.Context) error {
	v, ok := viewerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "file is required"))
	}
	if fh.Size > maxEmoticonBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, NewErrorResponse("too_large", "emoticon is too large"))
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "cannot read file"))
	}
	defer f.Close()
	e, err := h.svc.Add(c.Request().Context(), v, fh.Header.Get("Content-Type"), f)
	if err != nil {
		return respondError(c, err, "failed to add emoticon")
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *EmoticonHandler) Delete(c echo.Context) error {
	v, ok := viewerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if err := h.svc.Delete(c.Request().Context(), v, c.Param("id")); err != nil {
		return respondError(c, err, "failed to delete emoticon")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *EmoticonHandler) Reorder(c echo.Context) error {
	v, ok := viewerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req ReorderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid request"))
	}
	if err := h.svc.Reorder(c.Request().Context(), v, req.IDs); err != nil {
		return respondError(c, err, "failed to reorder emoticons")
	}
	return c.NoContent(http.StatusNoContent)
}
