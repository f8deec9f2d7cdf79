package identity

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mindmate/mindmate/internal/platform/apierror"
	"github.com/mindmate/mindmate/internal/platform/auth"
	"github.com/mindmate/mindmate/internal/platform/response"
)

// CookieConfig controls the session cookie written on login.
type CookieConfig struct {
	Name   string
	Secure bool
}

type Handler struct {
	svc    *Service
	cookie CookieConfig
}

func NewHandler(svc *Service, cookie CookieConfig) *Handler {
	if cookie.Name == "" {
		cookie.Name = auth.DefaultCookieName
	}
	return &Handler{svc: svc, cookie: cookie}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/logout", h.Logout)
	api.GET("/auth/me", h.Me)
	api.PUT("/auth/push-token", h.RegisterPushToken)

	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
	api.PATCH("/doctors/me", h.UpdateOwnDoctor, auth.RequireRole(RoleDoctor))

	api.GET("/patients/:id", h.GetPatient)
	api.PATCH("/patients/me", h.UpdateOwnPatient, auth.RequireRole(RolePatient))
}

// -- Auth --

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}

	sess, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return toAPIError(err)
	}
	h.setSessionCookie(c, sess.Token, sess.ExpiresAt)
	return response.Created(c, sess)
}

func (h *Handler) Login(c echo.Context) error {
	var in LoginInput
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}

	sess, err := h.svc.Login(c.Request().Context(), in.Username, in.Password)
	if err != nil {
		return toAPIError(err)
	}
	h.setSessionCookie(c, sess.Token, sess.ExpiresAt)
	return response.OK(c, sess)
}

func (h *Handler) Logout(c echo.Context) error {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return apierror.Unauthorized("authentication required")
	}
	if err := h.svc.Logout(c.Request().Context(), p); err != nil {
		return apierror.Internal(err)
	}
	h.setSessionCookie(c, "", time.Unix(0, 0))
	return response.Message(c, http.StatusOK, "logged out")
}

func (h *Handler) Me(c echo.Context) error {
	acct, err := h.svc.Me(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return toAPIError(err)
	}
	return response.OK(c, acct)
}

type pushTokenRequest struct {
	Token string `json:"token" validate:"max=255"`
}

func (h *Handler) RegisterPushToken(c echo.Context) error {
	var in pushTokenRequest
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	if err := h.svc.RegisterPushToken(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()), in.Token); err != nil {
		return toAPIError(err)
	}
	return response.Message(c, http.StatusOK, "push token updated")
}

func (h *Handler) setSessionCookie(c echo.Context, token string, expires time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// -- Doctors --

func (h *Handler) ListDoctors(c echo.Context) error {
	f := DoctorFilter{
		Specialization:     c.QueryParam("specialization"),
		VerificationStatus: c.QueryParam("verificationStatus"),
	}
	var err error
	if f.MinExperience, err = intQuery(c, "minExperience"); err != nil {
		return err
	}
	if f.MaxFee, err = intQuery(c, "maxFee"); err != nil {
		return err
	}

	doctors, err := h.svc.ListDoctors(c.Request().Context(), f)
	if err != nil {
		return toAPIError(err)
	}
	return response.OK(c, doctors)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apierror.Validation("id", "invalid id")
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return toAPIError(err)
	}
	return response.OK(c, d)
}

func (h *Handler) UpdateOwnDoctor(c echo.Context) error {
	var patch DoctorPatch
	if err := bindAndValidate(c, &patch); err != nil {
		return err
	}
	d, err := h.svc.UpdateOwnDoctor(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()), patch)
	if err != nil {
		return toAPIError(err)
	}
	return response.OK(c, d)
}

// -- Patients --

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apierror.Validation("id", "invalid id")
	}
	caller, _ := auth.PrincipalFromContext(c.Request().Context())
	p, err := h.svc.GetPatient(c.Request().Context(), caller, id)
	if err != nil {
		return toAPIError(err)
	}
	return response.OK(c, p)
}

func (h *Handler) UpdateOwnPatient(c echo.Context) error {
	var patch PatientPatch
	if err := bindAndValidate(c, &patch); err != nil {
		return err
	}
	p, err := h.svc.UpdateOwnPatient(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()), patch)
	if err != nil {
		return toAPIError(err)
	}
	return response.OK(c, p)
}

// -- helpers --

func bindAndValidate(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return apierror.Validation("", "malformed request body")
	}
	return c.Validate(v)
}

func intQuery(c echo.Context, name string) (*int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, apierror.Validation(name, name+" must be a non-negative integer")
	}
	return &n, nil
}

func toAPIError(err error) error {
	var fe *FieldError
	switch {
	case errors.As(err, &fe):
		return apierror.Validation(fe.Field, fe.Message)
	case errors.Is(err, auth.ErrPasswordTooLong):
		return apierror.Validation("password", err.Error())
	case errors.Is(err, ErrUsernameTaken), errors.Is(err, ErrLicenseTaken):
		return apierror.Conflict(unwrapSentinel(err))
	case errors.Is(err, ErrInvalidCredentials):
		return apierror.Unauthorized(ErrInvalidCredentials.Error())
	case errors.Is(err, ErrForbidden):
		return apierror.Forbidden(ErrForbidden.Error())
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrDoctorNotFound):
		return apierror.NotFound(unwrapSentinel(err))
	}
	return apierror.Internal(err)
}

// unwrapSentinel returns the innermost error's message so clients see
// "doctor not found" rather than the wrapping context.
func unwrapSentinel(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
