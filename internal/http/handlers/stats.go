package handlers

import (
	"github.com/gofiber/fiber/v2"

	"eventcard/internal/render"
)

// HandleChromeStats exposes basic observability for the Chrome pool (capacity / idle / in_use).
func (svc *CardService) HandleChromeStats(c *fiber.Ctx) error {
	timeout := svc.Config.Render.TimeoutSecs
	disabled := fiber.Map{
		"engine":         svc.raster.Name(),
		"enabled":        false,
		"capacity":       0,
		"idle":           0,
		"in_use":         0,
		"pool_size_conf": svc.Config.Render.ChromePoolSize,
		"profile_dir":    "",
		"timeout_secs":   timeout,
		"restarts":       0,
	}

	cr, ok := svc.raster.(*render.Chrome)
	if !ok {
		return c.JSON(disabled)
	}
	pool, err := cr.Pool()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Chrome pool init failed: "+err.Error())
	}
	if pool == nil {
		return c.JSON(disabled)
	}

	s := pool.Stats(timeout)
	return c.JSON(fiber.Map{
		"engine":         svc.raster.Name(),
		"enabled":        s.Enabled,
		"capacity":       s.Capacity,
		"idle":           s.Idle,
		"in_use":         s.InUse,
		"pool_size_conf": s.PoolSizeConf,
		"profile_dir":    s.ProfileDir,
		"timeout_secs":   timeout,
		"restarts":       s.Restarts,
		"last_restart":   s.LastRestart,
	})
}
