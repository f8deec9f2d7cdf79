package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func runHealth(t *testing.T, p Pinger, stats func() PoolStats) (int, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)

	if err := HealthHandler(p, stats)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthHandler_Healthy(t *testing.T) {
	stats := func() PoolStats { return PoolStats{TotalConns: 3, MaxConns: 20} }
	code, body := runHealth(t, fakePinger{}, stats)

	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if body["success"] != true {
		t.Errorf("expected success=true, got %v", body["success"])
	}
	data := body["data"].(map[string]interface{})
	if data["database"] != "up" {
		t.Errorf("expected database up, got %v", data["database"])
	}
	pool := data["pool"].(map[string]interface{})
	if pool["maxConns"].(float64) != 20 {
		t.Errorf("expected maxConns 20, got %v", pool["maxConns"])
	}
}

func TestHealthHandler_DatabaseDown(t *testing.T) {
	code, body := runHealth(t, fakePinger{err: errors.New("connection refused")}, nil)

	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if body["success"] != false {
		t.Errorf("expected success=false, got %v", body["success"])
	}
	data := body["data"].(map[string]interface{})
	if data["database"] != "down" {
		t.Errorf("expected database down, got %v", data["database"])
	}
	if _, ok := data["pool"]; ok {
		t.Error("expected pool stats to be omitted when no stats func is given")
	}
}
