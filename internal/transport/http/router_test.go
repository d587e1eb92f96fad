package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/paybot/internal/transport/http/handler"
	"github.com/sakashimaa/paybot/pkg/metrics"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestApp(checkers ...handler.Checker) *fiber.App {
	return NewApp(&Handlers{
		Health: handler.NewHealthHandler(time.Second, zap.NewNop(), checkers...),
	})
}

func decode(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	status, body := decode(t, newTestApp(), "/health")
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "ok", body["status"])
}

func TestReady(t *testing.T) {
	postgres := handler.CheckFunc{Label: "postgres", Fn: func(ctx context.Context) error { return nil }}
	redis := handler.CheckFunc{Label: "redis", Fn: func(ctx context.Context) error { return errors.New("connection refused") }}

	status, body := decode(t, newTestApp(postgres), "/ready")
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "ok", body["status"])

	status, body = decode(t, newTestApp(postgres, redis), "/ready")
	require.Equal(t, fiber.StatusServiceUnavailable, status)
	require.Equal(t, "unavailable", body["status"])

	checks := body["checks"].(map[string]any)
	require.Equal(t, "ok", checks["postgres"])
	require.Equal(t, "unavailable", checks["redis"])
}

func TestMetricsRoute(t *testing.T) {
	app := newTestApp()
	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	m := metrics.New()
	m.StatusChecked("pending")
	app = NewApp(&Handlers{
		Health:  handler.NewHealthHandler(time.Second, zap.NewNop()),
		Metrics: m.Handler(),
	})

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `paybot_status_checks_total{status="pending"} 1`)
}
