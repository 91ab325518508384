// Package server assembles the Fiber application.
package server

import (
	"net/http"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/redis/go-redis/v9"

	"eventcard/internal/config"
	"eventcard/internal/http/handlers"
	"eventcard/internal/http/middleware"
	"eventcard/internal/infra/cache"
	"eventcard/internal/infra/logging"
	"eventcard/internal/infra/metrics"
	"eventcard/internal/render"
	"eventcard/web"
)

// Deps are the collaborators of the app. Redis and LimiterStore may be nil;
// a nil Rasterizer is built from Config.
type Deps struct {
	Config       config.Config
	Redis        *redis.Client
	Rasterizer   render.Rasterizer
	LimiterStore fiber.Storage
}

// New creates the app with middleware, routes, static assets and a JSON 404.
func New(d Deps) *fiber.App {
	cfg := d.Config

	app := fiber.New(fiber.Config{
		Prefork:                      cfg.Server.Prefork,
		BodyLimit:                    cfg.Server.BodyLimitBytes,
		DisableStartupMessage:        true,
		DisablePreParseMultipartForm: true,
		ErrorHandler:                 errorHandler,
	})

	middleware.Register(app, cfg, d.LimiterStore)
	registerRoutes(app, d)
	registerStatic(app, cfg)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		msg = e.Message
	}

	logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": msg,
		},
	})
}

func registerRoutes(app *fiber.App, d Deps) {
	cfg := d.Config

	raster := d.Rasterizer
	if raster == nil {
		r, err := render.New(cfg)
		if err != nil {
			logging.Error("Render engine unavailable, using software engine", "engine", cfg.Render.Engine, "error", err)
			r = render.NewSoftware(nil)
		}
		raster = r
	}

	var cards *cache.Cards
	if cfg.Cache.ImageCacheEnabled && d.Redis != nil {
		cards = cache.NewCards(d.Redis, cfg.Cache.ImageCacheTTL)
		logging.Info("Card cache enabled", "ttl", cfg.Cache.ImageCacheTTL.String())
	}

	if cfg.BaseURL() == "" {
		logging.Warn("server.public_base_url is not set; card assets resolve against the request Host header")
	}

	// One service for all routes so the Chrome pool is shared.
	svc := handlers.NewCardService(cfg, raster, cards)

	app.Post("/api/generate-image", svc.HandleGenerate)

	ops := app.Group("/ops")
	ops.Get("/chrome/stats", svc.HandleChromeStats)
	ops.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	ops.Get("/monitor", monitor.New(monitor.Config{Title: "eventcard"}))
}

// registerStatic serves server.static_dir when it exists and falls back to the
// embedded page and assets.
func registerStatic(app *fiber.App, cfg config.Config) {
	if dir := cfg.Server.StaticDir; dir != "" {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			app.Static("/", dir)
			logging.Info("Serving static assets from disk", "dir", dir)
		}
	}

	app.Use(filesystem.New(filesystem.Config{
		Root:  http.FS(web.Static()),
		Index: "index.html",
	}))
}
