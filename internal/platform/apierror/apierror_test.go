package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestError_Status(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{Validation("symptoms", "symptoms is required"), http.StatusBadRequest},
		{Unauthorized("invalid token"), http.StatusUnauthorized},
		{Forbidden("not your appointment"), http.StatusForbidden},
		{NotFound("doctor not found"), http.StatusNotFound},
		{Conflict("username already taken"), http.StatusConflict},
		{Internal(errors.New("db down")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.err.Status(); got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.err.Kind, tt.want, got)
		}
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("load doctor: %w", Internal(cause))

	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause to be reachable")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindInternal {
		t.Errorf("expected internal *Error, got %v", err)
	}
}

func TestFrom_EchoHTTPError(t *testing.T) {
	got := From(echo.NewHTTPError(http.StatusNotFound, "Not Found"))
	if got.Kind != KindNotFound || got.Status() != http.StatusNotFound {
		t.Errorf("unexpected conversion: %+v", got)
	}

	got = From(echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded"))
	if got.Status() != http.StatusTooManyRequests {
		t.Errorf("expected 429 to be preserved, got %d", got.Status())
	}
	if got.Message != "rate limit exceeded" {
		t.Errorf("unexpected message %q", got.Message)
	}

	got = From(echo.NewHTTPError(http.StatusInternalServerError, "oops"))
	if got.Kind != KindInternal {
		t.Errorf("expected internal kind, got %s", got.Kind)
	}
}

func TestFrom_PlainError(t *testing.T) {
	got := From(errors.New("unexpected"))
	if got.Kind != KindInternal || got.Message != "internal server error" {
		t.Errorf("unexpected conversion: %+v", got)
	}
}

func serve(t *testing.T, dev bool, err error) (int, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/anything", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	Handler(zerolog.New(io.Discard), dev)(err, c)

	var body map[string]interface{}
	if jsonErr := json.Unmarshal(rec.Body.Bytes(), &body); jsonErr != nil {
		t.Fatalf("invalid JSON body: %v", jsonErr)
	}
	return rec.Code, body
}

func TestHandler_ValidationIncludesField(t *testing.T) {
	code, body := serve(t, false, Validation("date", "date is required"))
	if code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
	if body["success"] != false {
		t.Errorf("expected success=false, got %v", body["success"])
	}
	if body["field"] != "date" || body["message"] != "date is required" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHandler_InternalHidesDetailInProduction(t *testing.T) {
	code, body := serve(t, false, errors.New("pq: relation does not exist"))
	if code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", code)
	}
	if _, ok := body["error"]; ok {
		t.Errorf("expected error detail to be hidden, got %v", body["error"])
	}
	if body["message"] != "internal server error" {
		t.Errorf("unexpected message %v", body["message"])
	}
}

func TestHandler_InternalShowsDetailInDevelopment(t *testing.T) {
	_, body := serve(t, true, errors.New("pq: relation does not exist"))
	if body["error"] != "pq: relation does not exist" {
		t.Errorf("expected error detail in development, got %v", body["error"])
	}
}

func TestHandler_CommittedResponseUntouched(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	_ = c.String(http.StatusOK, "already sent")

	Handler(zerolog.New(io.Discard), false)(NotFound("x"), c)

	if rec.Code != http.StatusOK || rec.Body.String() != "already sent" {
		t.Errorf("committed response was modified: %d %q", rec.Code, rec.Body.String())
	}
}
