package messaging

import (
	"errors"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mindmate/mindmate/internal/domain/appointment"
	"github.com/mindmate/mindmate/internal/domain/identity"
	"github.com/mindmate/mindmate/internal/platform/apierror"
	"github.com/mindmate/mindmate/internal/platform/auth"
	"github.com/mindmate/mindmate/internal/platform/response"
	"github.com/mindmate/mindmate/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/messages", h.ListConversation)
	api.POST("/messages", h.Send)
	api.POST("/messages/read", h.MarkRead)
	api.GET("/messages/unread", h.UnreadCount)
}

func (h *Handler) Send(c echo.Context) error {
	var in SendInput
	if err := c.Bind(&in); err != nil {
		return apierror.Validation("", "malformed request body")
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	m, err := h.svc.Send(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()), in)
	if err != nil {
		return toAPIError(err)
	}
	return response.Created(c, m)
}

func (h *Handler) ListConversation(c echo.Context) error {
	raw := c.QueryParam("otherUserId")
	if raw == "" {
		return apierror.Validation("otherUserId", "otherUserId is required")
	}
	other, err := uuid.Parse(raw)
	if err != nil {
		return apierror.Validation("otherUserId", "otherUserId must be a valid id")
	}

	page := pagination.FromContext(c)
	list, total, err := h.svc.ListConversation(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()), other, page)
	if err != nil {
		return toAPIError(err)
	}
	pagination.SetHeaders(c, page, total)
	return response.OK(c, list)
}

func (h *Handler) MarkRead(c echo.Context) error {
	var in ReadInput
	if err := c.Bind(&in); err != nil {
		return apierror.Validation("", "malformed request body")
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	n, err := h.svc.MarkRead(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()), in.OtherUserID)
	if err != nil {
		return toAPIError(err)
	}
	return response.OK(c, map[string]int{"updated": n})
}

func (h *Handler) UnreadCount(c echo.Context) error {
	n, err := h.svc.UnreadCount(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return apierror.Internal(err)
	}
	return response.OK(c, map[string]int{"count": n})
}

func toAPIError(err error) error {
	var fe *identity.FieldError
	switch {
	case errors.As(err, &fe):
		return apierror.Validation(fe.Field, fe.Message)
	case isUserNotFound(err):
		return apierror.NotFound("user not found")
	case errors.Is(err, appointment.ErrNotFound):
		return apierror.NotFound(appointment.ErrNotFound.Error())
	case errors.Is(err, ErrNotParticipant):
		return apierror.Forbidden(ErrNotParticipant.Error())
	}
	return apierror.Internal(err)
}
