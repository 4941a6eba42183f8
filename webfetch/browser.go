package webfetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// BrowserConfig configures the rod-backed Renderer.
type BrowserConfig struct {
	// RemoteURL connects to an existing Chrome devtools endpoint instead
	// of launching one.
	RemoteURL string `json:"remote_url" yaml:"remote_url"`
	// NavTimeout bounds navigation plus load wait. Default: 30s.
	NavTimeout time.Duration `json:"nav_timeout" yaml:"nav_timeout"`
	// SettleDelay gives script-rendered content time to attach after load.
	// Default: 2s.
	SettleDelay time.Duration `json:"settle_delay" yaml:"settle_delay"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *BrowserConfig) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// RodRenderer renders pages in headless Chrome with stealth applied.
// Chrome launches lazily on first use and is reused across calls.
type RodRenderer struct {
	cfg BrowserConfig

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewRodRenderer creates a RodRenderer. Call Close on shutdown.
func NewRodRenderer(cfg BrowserConfig) *RodRenderer {
	cfg.defaults()
	return &RodRenderer{cfg: cfg}
}

// HTML navigates to pageURL and returns the rendered document.
func (r *RodRenderer) HTML(ctx context.Context, pageURL string) (string, error) {
	b, err := r.ensureBrowser()
	if err != nil {
		return "", err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return "", fmt.Errorf("browser: create page: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return "", fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		r.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	select {
	case <-time.After(r.cfg.SettleDelay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	htmlStr, err := page.Context(navCtx).HTML()
	if err != nil {
		return "", fmt.Errorf("browser: read html: %w", err)
	}
	return htmlStr, nil
}

func (r *RodRenderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("browser: renderer is closed")
	}
	if r.browser != nil {
		return r.browser, nil
	}

	wsURL := r.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		r.lnch = l
		wsURL = u
		r.cfg.Logger.Info("browser: launched headless chrome")
	} else {
		r.cfg.Logger.Info("browser: connecting to remote", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	r.browser = b
	return b, nil
}

// Close shuts down Chrome.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true

	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.lnch != nil {
		r.lnch.Cleanup()
		r.lnch = nil
	}
	return err
}
