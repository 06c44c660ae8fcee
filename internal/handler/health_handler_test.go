package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/judging-integrity-api/internal/config"
	"github.com/noah-isme/judging-integrity-api/internal/handler"
)

func TestHealthCheckReportsDependencies(t *testing.T) {
	cfg := config.Config{AppName: "Judging Integrity API", AppEnv: "test"}
	healthy := func(context.Context) error { return nil }
	broken := func(context.Context) error { return errors.New("connection refused") }

	app := fiber.New()
	app.Get("/ok", handler.HealthCheck(cfg, map[string]handler.HealthProbe{"database": healthy}))
	app.Get("/degraded", handler.HealthCheck(cfg, map[string]handler.HealthProbe{"database": healthy, "redis": broken}))

	resp, body := perform(t, app, jsonRequest(http.MethodGet, "/ok", ""))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var payload handler.HealthResponse
	require.NoError(t, json.Unmarshal(body.Data, &payload))
	require.Equal(t, "ok", payload.Status)
	require.Equal(t, "Judging Integrity API", payload.Service)

	resp, body = perform(t, app, jsonRequest(http.MethodGet, "/degraded", ""))
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body.Data, &payload))
	require.Equal(t, "degraded", payload.Status)
	require.Equal(t, "unavailable", payload.Dependencies["redis"])
	require.Equal(t, "ok", payload.Dependencies["database"])
}
