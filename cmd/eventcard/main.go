package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"eventcard/internal/config"
	"eventcard/internal/http/server"
	"eventcard/internal/infra/cache"
	"eventcard/internal/infra/logging"
	"eventcard/internal/infra/ratelimit"
	"eventcard/internal/render"
)

func main() {
	cfg := config.Load()
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	logging.SetLogLevel(cfg.Logger.Level)

	var rdb *redis.Client
	if cfg.Cache.ImageCacheEnabled && cfg.Cache.RedisHost != "" {
		rdb = cache.NewClient(cfg.Cache.RedisHost, cfg.Cache.ImageCacheDB)
		defer rdb.Close()
	}

	var limiterStore fiber.Storage
	if cfg.RateLimiter.UserLimit > 0 {
		limiterStore = ratelimit.NewStore(ratelimit.RedisConfig{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.RateLimitDB,
		})
	}

	raster, err := render.New(cfg)
	if err != nil {
		logging.Error("Invalid render engine", "error", err)
		os.Exit(1)
	}
	if cr, ok := raster.(*render.Chrome); ok {
		defer cr.Close()
	}
	logging.Info("Render engine selected", "engine", raster.Name())

	app := server.New(server.Deps{
		Config:       cfg,
		Redis:        rdb,
		Rasterizer:   raster,
		LimiterStore: limiterStore,
	})

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed
}

// startServer starts the Fiber app and blocks until a shutdown signal was handled.
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		addr := cfg.Server.Host + cfg.Server.Port
		logging.Info("Listening", "addr", addr)
		if err := app.Listen(addr); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigint)
	<-sigint

	logging.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}
