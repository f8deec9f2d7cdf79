package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRequestTimeout_SetsDeadline(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	var hasDeadline bool
	_ = RequestTimeout(time.Second)(func(c echo.Context) error {
		_, hasDeadline = c.Request().Context().Deadline()
		return nil
	})(c)

	if !hasDeadline {
		t.Error("expected request context to carry a deadline")
	}
}

func TestRequestTimeout_SkipsWebSocket(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	req.Header.Set("Upgrade", "websocket")
	c := e.NewContext(req, httptest.NewRecorder())

	var hasDeadline bool
	_ = RequestTimeout(time.Second)(func(c echo.Context) error {
		_, hasDeadline = c.Request().Context().Deadline()
		return nil
	})(c)

	if hasDeadline {
		t.Error("expected websocket request to have no deadline")
	}
}
