package render

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"eventcard/internal/config"
	"eventcard/internal/domain"
	"eventcard/internal/infra/chrome"
	"eventcard/internal/infra/logging"
)

const (
	acquireTimeout    = 5 * time.Second
	assetsReadyBudget = 3 * time.Second

	readyExpr = `document.readyState === "complete" && Array.from(document.images).every(function (i) { return i.complete; })`
)

// Chrome rasterizes layouts with headless Chrome. With chrome_pool_size > 0 it
// reuses tabs of one long-lived browser, otherwise every render starts its own.
type Chrome struct {
	cfg config.Config

	poolMu sync.Mutex
	pool   *chrome.Pool
}

// NewChrome returns a Chrome rasterizer. No browser is started until the first render.
func NewChrome(cfg config.Config) *Chrome {
	return &Chrome{cfg: cfg}
}

func (r *Chrome) Name() string { return config.EngineChrome }

// Pool returns the shared tab pool, creating it on first use. It returns
// (nil, nil) when pooling is disabled.
func (r *Chrome) Pool() (*chrome.Pool, error) {
	r.poolMu.Lock()
	defer r.poolMu.Unlock()

	if r.cfg.Render.ChromePoolSize <= 0 {
		return nil, nil
	}
	if r.pool != nil {
		return r.pool, nil
	}
	pool, err := chrome.NewPool(r.cfg)
	if err != nil {
		return nil, err
	}
	r.pool = pool
	return r.pool, nil
}

// Close stops the pooled browser, if any.
func (r *Chrome) Close() {
	r.poolMu.Lock()
	defer r.poolMu.Unlock()
	if r.pool != nil {
		r.pool.Close()
	}
}

// Rasterize renders the layout to a PNG screenshot of exactly Width x Height.
func (r *Chrome) Rasterize(ctx context.Context, layout domain.Layout) ([]byte, error) {
	html, err := LayoutHTML(layout)
	if err != nil {
		return nil, err
	}

	pool, err := r.Pool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		// Fallback: start a new Chrome instance per request.
		return renderWithChrome(ctx, html, layout.Width, layout.Height, r.cfg)
	}

	timeout := time.Duration(r.cfg.Render.TimeoutSecs) * time.Second

	runOnce := func() ([]byte, error) {
		acquireCtx, acquireCancel := context.WithTimeout(ctx, acquireTimeout)
		defer acquireCancel()

		tab, err := pool.Acquire(acquireCtx)
		if err != nil {
			return nil, err
		}

		renderCtx, cancel := context.WithTimeout(tab.Ctx, timeout)
		stop := context.AfterFunc(ctx, cancel)
		buf, renderErr := renderInTab(renderCtx, html, layout.Width, layout.Height)
		stop()
		cancel()

		pool.Release(tab, renderErr)
		return buf, renderErr
	}

	buf, renderErr := runOnce()
	if shouldRestart(ctx, renderErr) {
		logging.Warn("Chrome session interrupted; restarting pool and retrying once", "error", renderErr)
		_ = pool.Restart()
		return runOnce()
	}
	return buf, renderErr
}

// shouldRestart reports whether err means the pooled browser is gone.
// Restarting cancels every tab still in use by other requests.
func shouldRestart(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() == nil && chrome.IsSessionInterrupted(err)
}

// renderWithChrome starts a throwaway browser with its own profile directory.
func renderWithChrome(ctx context.Context, html string, width, height int, cfg config.Config) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "chromedata-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), chrome.AllocatorOptions(cfg, tmpDir)...)
	defer allocCancel()
	chromeCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	timeout := time.Duration(cfg.Render.TimeoutSecs) * time.Second
	chromeCtx, cancel = context.WithTimeout(chromeCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return renderInTab(chromeCtx, html, width, height)
}

// renderInTab loads html into an existing chromedp tab and captures the canvas.
func renderInTab(ctx context.Context, html string, width, height int) ([]byte, error) {
	var buf []byte
	err := chromedp.Run(ctx,
		emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1, false),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frame.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("#card", chromedp.ByID),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return waitForRenderReady(ctx, assetsReadyBudget)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithClip(&page.Viewport{X: 0, Y: 0, Width: float64(width), Height: float64(height), Scale: 1}).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// waitForRenderReady polls until the document and its images finished loading.
// Images that never load render blank, so running out of budget is not an error.
func waitForRenderReady(ctx context.Context, budget time.Duration) error {
	deadline := time.Now().Add(budget)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var ready bool
		if err := chromedp.Evaluate(readyExpr, &ready).Do(ctx); err != nil {
			return err
		}
		if ready {
			return nil
		}
		if time.Now().After(deadline) {
			logging.Warn("Card assets still loading; capturing anyway", "budget", budget.String())
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
