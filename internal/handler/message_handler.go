package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/shinyyama/musclecat-chat/internal/feed"
	"github.com/shinyyama/musclecat-chat/internal/model"
	"github.com/shinyyama/musclecat-chat/internal/service"
)

const maxPhotoBytes = 10 << 20

type MessageHandler struct {
	chat  service.ChatService
	media service.MediaService
}

func NewMessageHandler(chat service.ChatService, media service.MediaService) *MessageHandler {
	return &MessageHandler{chat: chat, media: media}
}

type EditRequest struct {
	Text string `json:"text"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

func queryLimit(c echo.Context) int {
	if lStr := c.QueryParam("limit"); lStr != "" {
		if l, err := strconv.Atoi(lStr); err == nil && l > 0 {
			return l
		}
	}
	return 0
}

// Page serves GET /api/messages?before=<cursor>&limit=N.
func (h *MessageHandler) Page(c echo.Context) error {
	before, err := feed.DecodeCursor(c.QueryParam("before"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid cursor"))
	}
	page, err := h.chat.Page(c.Request().Context(), before, queryLimit(c))
	if err != nil {
		return respondError(c, err, "failed to fetch messages")
	}
	resp := model.MessagePage{Messages: page.Messages, Exhausted: page.Exhausted}
	if resp.Messages == nil {
		resp.Messages = []model.Message{}
	}
	if page.Next != nil {
		resp.Next = page.Next.Encode()
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *MessageHandler) Send(c echo.Context) error {
	v, ok := viewerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req service.SendInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid request"))
	}
	m, err := h.chat.Send(c.Request().Context(), v, req)
	if err != nil {
		return respondError(c, err, "failed to send message")
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *MessageHandler) Edit(c echo.Context) error {
	v, ok := viewerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req EditRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid request"))
	}
	m, err := h.chat.EditText(c.Request().Context(), v, c.Param("id"), req.Text)
	if err != nil {
		return respondError(c, err, "failed to edit message")
	}
	return c.JSON(http.StatusOK, m)
}

func (h *MessageHandler) React(c echo.Context) error {
	v, ok := viewerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req ReactionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid request"))
	}
	m, err := h.chat.ToggleReaction(c.Request().Context(), v, c.Param("id"), req.Emoji)
	if err != nil {
		return respondError(c, err, "failed to toggle reaction")
	}
	return c.JSON(http.StatusOK, m)
}

func (h *MessageHandler) Delete(c echo.Context) error {
	v, ok := viewerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if err := h.chat.Delete(c.Request().Context(), v, c.Param("id")); err != nil {
		return respondError(c, err, "failed to delete message")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *MessageHandler) MarkRead(c echo.Context) error {
	v, ok := viewerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	n, err := h.chat.MarkRead(c.Request().Context(), v)
	if err != nil {
		return respondError(c, err, "failed to mark read")
	}
	return c.JSON(http.StatusOK, map[string]int64{"marked": n})
}

func (h *MessageHandler) Unread(c echo.Context) error {
	v, ok := viewerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	n, err := h.chat.UnreadCount(c.Request().Context(), v)
	if err != nil {
		return respondError(c, err, "failed to count unread")
	}
	return c.JSON(http.StatusOK, map[string]int64{"unreadCount": n})
}

// UploadPhoto accepts a multipart "file" and returns its download URL; the
// client then sends a photo message with it.
func (h *MessageHandler) UploadPhoto(c echo.Context) error {
	v, ok := viewerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "file is required"))
	}
	if fh.Size > maxPhotoBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, NewErrorResponse("too_large", "photo is too large"))
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "cannot read file"))
	}
	defer f.Close()
	url, err := h.media.UploadPhoto(c.Request().Context(), v, fh.Header.Get("Content-Type"), f)
	if err != nil {
		return respondError(c, err, "failed to upload photo")
	}
	return c.JSON(http.StatusCreated, map[string]string{"url": url})
}
