package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shinyyama/musclecat-chat/internal/feed"
	"github.com/shinyyama/musclecat-chat/internal/middleware"
	"github.com/shinyyama/musclecat-chat/internal/model"
	"github.com/shinyyama/musclecat-chat/internal/repository"
	"github.com/shinyyama/musclecat-chat/internal/service"
)

func viewerFrom(c echo.Context) (service.Viewer, bool) {
	uid, _ := c.Get(middleware.KeyUID).(string)
	if uid == "" {
		return service.Viewer{}, false
	}
	v := service.Viewer{UID: uid, Role: model.RoleCustomer}
	v.Email, _ = c.Get(middleware.KeyEmail).(string)
	v.DisplayName, _ = c.Get(middleware.KeyName).(string)
	v.PhotoURL, _ = c.Get(middleware.KeyPicture).(string)
	if role, ok := c.Get(middleware.KeyRole).(model.Role); ok && role != "" {
		v.Role = role
	}
	return v, true
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
}

// respondError maps service and store errors onto the JSON error envelope.
func respondError(c echo.Context, err error, fallback string) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "not found"))
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, NewErrorResponse("forbidden", "not allowed"))
	case errors.Is(err, service.ErrInvalid):
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", err.Error()))
	case errors.Is(err, feed.ErrBadCursor), errors.Is(err, feed.ErrInvalidPageSize):
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", err.Error()))
	case errors.Is(err, service.ErrStorageDisabled), errors.Is(err, repository.ErrDBNotReady):
		return c.JSON(http.StatusServiceUnavailable, NewErrorResponse("unavailable", err.Error()))
	}
	c.Logger().Errorf("%s: %v", fallback, err)
	return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", fallback))
}
