// Package render turns a domain.Layout into PNG bytes.
package render

import (
	"context"
	"fmt"

	"eventcard/internal/config"
	"eventcard/internal/domain"
)

// Rasterizer draws a layout at exactly its canvas size.
type Rasterizer interface {
	Rasterize(ctx context.Context, layout domain.Layout) ([]byte, error)
	Name() string
}

// New returns the rasterizer selected by render.engine.
func New(cfg config.Config) (Rasterizer, error) {
	switch cfg.Render.Engine {
	case config.EngineChrome, "":
		return NewChrome(cfg), nil
	case config.EngineSoftware:
		return NewSoftware(nil), nil
	default:
		return nil, fmt.Errorf("unknown render engine %q", cfg.Render.Engine)
	}
}
