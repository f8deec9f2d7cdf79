package appointment

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mindmate/mindmate/internal/domain/identity"
	"github.com/mindmate/mindmate/internal/platform/apierror"
	"github.com/mindmate/mindmate/internal/platform/auth"
	"github.com/mindmate/mindmate/internal/platform/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments")
	g.GET("", h.List)
	g.POST("", h.Create, auth.RequireRole(identity.RolePatient))
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.PATCH("/:id/status", h.UpdateStatus)
	g.DELETE("/:id", h.Delete)
	g.GET("/:id/summary.pdf", h.Summary)
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	a, err := h.svc.Create(c.Request().Context(), principal(c), in)
	if err != nil {
		return toAPIError(err)
	}
	return response.Created(c, a)
}

func (h *Handler) List(c echo.Context) error {
	f := ListFilter{
		Status: c.QueryParam("status"),
		Type:   c.QueryParam("type"),
	}
	// startDate and endDate are the older names; endDate is inclusive.
	var err error
	if f.From, err = timeQuery(c, "from", "startDate"); err != nil {
		return err
	}
	if f.To, err = timeQuery(c, "to"); err != nil {
		return err
	}
	if f.Through, err = timeQuery(c, "endDate"); err != nil {
		return err
	}

	list, err := h.svc.ListForUser(c.Request().Context(), principal(c), f)
	if err != nil {
		return toAPIError(err)
	}
	return response.OK(c, list)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), principal(c), id)
	if err != nil {
		return toAPIError(err)
	}
	return response.OK(c, a)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	a, err := h.svc.Update(c.Request().Context(), principal(c), id, in)
	if err != nil {
		return toAPIError(err)
	}
	return response.OK(c, a)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var in StatusInput
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	a, err := h.svc.UpdateStatus(c.Request().Context(), principal(c), id, in)
	if err != nil {
		return toAPIError(err)
	}
	return response.OK(c, a)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), principal(c), id); err != nil {
		return toAPIError(err)
	}
	return response.Message(c, http.StatusOK, "appointment deleted")
}

func (h *Handler) Summary(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	doc, err := h.svc.Summary(c.Request().Context(), principal(c), id)
	if err != nil {
		return toAPIError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		`attachment; filename="visit-summary-`+id.String()+`.pdf"`)
	return c.Blob(http.StatusOK, "application/pdf", doc)
}

// -- helpers --

func principal(c echo.Context) auth.Principal {
	p, _ := auth.PrincipalFromContext(c.Request().Context())
	return p
}

func idParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apierror.Validation("id", "invalid id")
	}
	return id, nil
}

func bindAndValidate(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return apierror.Validation("", "malformed request body")
	}
	return c.Validate(v)
}

// timeQuery reads the first of names that is present. Values are RFC 3339
// timestamps or plain dates, which mean midnight UTC.
func timeQuery(c echo.Context, names ...string) (*time.Time, error) {
	for _, name := range names {
		raw := c.QueryParam(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			if t, err = time.Parse(time.DateOnly, raw); err != nil {
				return nil, apierror.Validation(name, name+" must be an RFC 3339 timestamp or a YYYY-MM-DD date")
			}
		}
		return &t, nil
	}
	return nil, nil
}

func toAPIError(err error) error {
	var fe *identity.FieldError
	switch {
	case errors.As(err, &fe):
		return apierror.Validation(fe.Field, fe.Message)
	case errors.Is(err, ErrNotFound), errors.Is(err, identity.ErrDoctorNotFound):
		return apierror.NotFound(rootMessage(err))
	case errors.Is(err, ErrForbidden):
		return apierror.Forbidden(err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotCompleted):
		return apierror.Conflict(err.Error())
	}
	return apierror.Internal(err)
}

// rootMessage returns the innermost error's message.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
