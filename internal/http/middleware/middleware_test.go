package middleware

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcard/internal/config"
)

func TestRegister_AddsHealthAndRequestID(t *testing.T) {
	app := fiber.New()
	Register(app, config.Config{}, nil)
	var seen string
	app.Get("/ping", func(c *fiber.Ctx) error {
		seen = RequestID(c)
		return c.SendStatus(fiber.StatusOK)
	})

	for _, path := range []string{HealthPath, ReadyPath} {
		resp, err := app.Test(mustRequest(t, http.MethodGet, path))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, path)
	}

	resp, err := app.Test(mustRequest(t, http.MethodGet, "/ping"))
	require.NoError(t, err)
	id := resp.Header.Get("X-Request-Id")
	require.NotEmpty(t, id)
	assert.Equal(t, id, seen)
}

func TestRegister_KeepsIncomingRequestID(t *testing.T) {
	app := fiber.New()
	Register(app, config.Config{}, nil)
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := mustRequest(t, http.MethodGet, "/ping")
	req.Header.Set("X-Request-ID", "upstream-id")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "upstream-id", resp.Header.Get("X-Request-Id"))
}

func TestRegister_LimiterOffByDefault(t *testing.T) {
	app := fiber.New()
	Register(app, config.Config{}, nil)
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for i := 0; i < 5; i++ {
		resp, err := app.Test(mustRequest(t, http.MethodGet, "/ping"))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}

func TestUserRateLimit_PerClient(t *testing.T) {
	var cfg config.Config
	cfg.RateLimiter.UserLimit = 1
	cfg.RateLimiter.Interval = time.Hour

	app := fiber.New()
	Register(app, cfg, memoryStorage.New())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	first := mustRequest(t, http.MethodGet, "/")
	first.Header.Set("User-Agent", "client-a")
	resp, err := app.Test(first)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	again := mustRequest(t, http.MethodGet, "/")
	again.Header.Set("User-Agent", "client-a")
	resp, err = app.Test(again)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Too many requests")

	other := mustRequest(t, http.MethodGet, "/")
	other.Header.Set("User-Agent", "client-b")
	resp, err = app.Test(other)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func mustRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, path, nil)
	require.NoError(t, err)
	return req
}
