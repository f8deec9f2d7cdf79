package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/mindmate/mindmate/internal/platform/response"
)

// PoolStats is the connection pool snapshot reported by /health.
type PoolStats struct {
	TotalConns      int32  `json:"totalConns"`
	IdleConns       int32  `json:"idleConns"`
	AcquiredConns   int32  `json:"acquiredConns"`
	MaxConns        int32  `json:"maxConns"`
	AcquireCount    int64  `json:"acquireCount"`
	AcquireDuration string `json:"acquireDuration"`
}

func GetPoolStats(pool *pgxpool.Pool) PoolStats {
	stat := pool.Stat()
	return PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus is the payload of the health endpoint.
type HealthStatus struct {
	Status   string     `json:"status"`
	Database string     `json:"database"`
	Pool     *PoolStats `json:"pool,omitempty"`
}

// HealthHandler pings the database and reports pool statistics. stats may be
// nil when the caller has no pool to inspect.
func HealthHandler(p Pinger, stats func() PoolStats) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		status := HealthStatus{Status: "ok", Database: "up"}
		if stats != nil {
			s := stats()
			status.Pool = &s
		}

		if err := p.Ping(ctx); err != nil {
			status.Status = "degraded"
			status.Database = "down"
			return c.JSON(http.StatusServiceUnavailable, response.Envelope{
				Success: false,
				Message: "database unavailable",
				Data:    status,
			})
		}

		return response.OK(c, status)
	}
}
