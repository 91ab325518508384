package chrome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"eventcard/internal/config"
	"eventcard/internal/infra/logging"
)

var (
	// ErrPoolDisabled is returned by NewPool when chrome_pool_size is zero.
	ErrPoolDisabled = errors.New("chrome pool disabled")
	// ErrPoolClosed is returned by Acquire and Restart after Close.
	ErrPoolClosed = errors.New("chrome pool closed")
	// ErrNoFreeTab is returned by Acquire when ctx ends before a tab frees up.
	// It wraps the context error.
	ErrNoFreeTab = errors.New("no free chrome tab")
)

// Pool keeps one headless browser alive and hands out a bounded number of tabs.
type Pool struct {
	cfg config.Config

	mu            sync.Mutex
	sem           chan struct{}
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	profileDir    string
	closed        bool
	restarts      int
	lastRestart   time.Time
}

// Tab is a browser tab borrowed from the pool. Ctx is a chromedp context.
type Tab struct {
	Ctx    context.Context
	cancel context.CancelFunc
}

// Stats is a point-in-time view of pool usage.
type Stats struct {
	Enabled      bool      `json:"enabled"`
	Capacity     int       `json:"capacity"`
	Idle         int       `json:"idle"`
	InUse        int       `json:"in_use"`
	PoolSizeConf int       `json:"pool_size_conf"`
	ProfileDir   string    `json:"profile_dir"`
	TimeoutSecs  int       `json:"timeout_secs"`
	Restarts     int       `json:"restarts"`
	LastRestart  time.Time `json:"last_restart"`
}

// NewPool prepares a browser allocator with a private profile directory. The
// browser process itself starts lazily on the first render.
func NewPool(cfg config.Config) (*Pool, error) {
	size := cfg.Render.ChromePoolSize
	if size <= 0 {
		return nil, ErrPoolDisabled
	}

	p := &Pool{
		cfg: cfg,
		sem: make(chan struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.sem <- struct{}{}
	}
	if err := p.start(); err != nil {
		return nil, err
	}
	logging.Info("Chrome pool ready", "size", size, "profile_dir", p.profileDir)
	return p, nil
}

// start creates a fresh profile dir and browser context. Callers hold mu or
// own p exclusively.
func (p *Pool) start() error {
	dir, err := createProfileDir(p.cfg)
	if err != nil {
		return err
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(p.cfg, dir)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	p.profileDir = dir
	p.allocCancel = allocCancel
	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
	return nil
}

func (p *Pool) stop() {
	if p.browserCancel != nil {
		p.browserCancel()
		p.browserCancel = nil
	}
	if p.allocCancel != nil {
		p.allocCancel()
		p.allocCancel = nil
	}
	if p.profileDir != "" {
		_ = os.RemoveAll(p.profileDir)
	}
}

// Acquire blocks until a tab is free, ctx is done, or the pool is closed.
func (p *Pool) Acquire(ctx context.Context) (*Tab, error) {
	p.mu.Lock()
	closed := p.closed
	sem := p.sem
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	select {
	case <-sem:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrNoFreeTab, ctx.Err())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		sem <- struct{}{}
		return nil, ErrPoolClosed
	}
	tabCtx, cancel := chromedp.NewContext(p.browserCtx)
	return &Tab{Ctx: tabCtx, cancel: cancel}, nil
}

// Release closes the tab and returns its slot. renderErr is only logged.
func (p *Pool) Release(tab *Tab, renderErr error) {
	if tab == nil {
		return
	}
	if tab.cancel != nil {
		tab.cancel()
	}
	if renderErr != nil {
		logging.Warn("Chrome tab released after error", "error", renderErr)
	}

	p.mu.Lock()
	sem := p.sem
	p.mu.Unlock()
	select {
	case sem <- struct{}{}:
	default:
	}
}

// Restart replaces the browser and its profile directory. In-flight tabs of
// the old browser fail with a session error.
func (p *Pool) Restart() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.stop()
	if err := p.start(); err != nil {
		return fmt.Errorf("restart chrome pool: %w", err)
	}
	p.restarts++
	p.lastRestart = time.Now()
	logging.Warn("Chrome pool restarted", "restarts", p.restarts, "profile_dir", p.profileDir)
	return nil
}

// Close shuts the browser down. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.stop()
}

// Stats reports capacity and usage.
func (p *Pool) Stats(timeoutSecs int) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	capacity := cap(p.sem)
	idle := len(p.sem)
	return Stats{
		Enabled:      !p.closed && p.sem != nil,
		Capacity:     capacity,
		Idle:         idle,
		InUse:        capacity - idle,
		PoolSizeConf: p.cfg.Render.ChromePoolSize,
		ProfileDir:   p.profileDir,
		TimeoutSecs:  timeoutSecs,
		Restarts:     p.restarts,
		LastRestart:  p.lastRestart,
	}
}

// AllocatorOptions are the Chrome flags used for every browser this service starts.
func AllocatorOptions(cfg config.Config, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		// Force software rendering and avoid Vulkan/ANGLE issues in minimal container environments.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(1200, 675),
	)
	if cfg.Render.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.Render.ChromePath))
	}
	if cfg.Render.ChromeNoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return opts
}

func createProfileDir(cfg config.Config) (string, error) {
	base := cfg.Render.UserDataDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o700); err != nil {
		return "", fmt.Errorf("cannot create chrome profile base %q: %w", base, err)
	}
	dir, err := os.MkdirTemp(base, "chromedata-*")
	if err != nil {
		return "", fmt.Errorf("cannot create chrome profile dir: %w", err)
	}
	return dir, nil
}

// IsSessionInterrupted reports errors that mean the browser or tab went away
// rather than the page failing to render. Timeouts, cancellation and a full
// pool are not session loss.
func IsSessionInterrupted(err error) bool {
	if err == nil || errors.Is(err, ErrNoFreeTab) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"target closed", "session closed", "websocket", "connection reset", "broken pipe", "channel closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
