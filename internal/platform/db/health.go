package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 5 * time.Second

// PoolSnapshot is the pool section of the database health report.
type PoolSnapshot struct {
	Total    int32 `json:"total"`
	Idle     int32 `json:"idle"`
	Acquired int32 `json:"acquired"`
	Max      int32 `json:"max"`
	Waits    int64 `json:"empty_acquire_count"`
}

// HealthReport describes database reachability and whether the index tables
// exist in the configured schema.
type HealthReport struct {
	Status      string       `json:"status"`
	Schema      string       `json:"schema"`
	SchemaReady bool         `json:"schema_ready"`
	Latency     string       `json:"latency"`
	Error       string       `json:"error,omitempty"`
	Pool        PoolSnapshot `json:"pool"`
}

// dbChecker abstracts the pool for the handler's tests.
type dbChecker interface {
	Ping(ctx context.Context) error
	TableExists(ctx context.Context, qualified string) (bool, error)
	Snapshot() PoolSnapshot
}

type poolChecker struct{ pool *pgxpool.Pool }

func (p poolChecker) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p poolChecker) TableExists(ctx context.Context, qualified string) (bool, error) {
	var ok bool
	err := p.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, qualified).Scan(&ok)
	return ok, err
}

func (p poolChecker) Snapshot() PoolSnapshot {
	s := p.pool.Stat()
	return PoolSnapshot{
		Total:    s.TotalConns(),
		Idle:     s.IdleConns(),
		Acquired: s.AcquiredConns(),
		Max:      s.MaxConns(),
		Waits:    s.EmptyAcquireCount(),
	}
}

// HealthHandler serves GET /health/db. It answers 503 when the database is
// unreachable or the index tables are missing from schema.
func HealthHandler(pool *pgxpool.Pool, schema string) echo.HandlerFunc {
	return healthHandler(poolChecker{pool: pool}, schema)
}

func healthHandler(p dbChecker, schema string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		report := checkHealth(ctx, p, schema)
		status := http.StatusOK
		if report.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, report)
	}
}

func checkHealth(ctx context.Context, p dbChecker, schema string) HealthReport {
	report := HealthReport{Status: "unhealthy", Schema: schema, Pool: p.Snapshot()}

	start := time.Now()
	err := p.Ping(ctx)
	report.Latency = time.Since(start).String()
	if err != nil {
		report.Error = err.Error()
		return report
	}

	table := "search_param"
	if schema != "" {
		table = schema + "." + table
	}
	ready, err := p.TableExists(ctx, table)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.SchemaReady = ready
	if !ready {
		report.Error = "index tables not migrated"
		return report
	}
	report.Status = "healthy"
	return report
}
