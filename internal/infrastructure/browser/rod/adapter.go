package rod

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agentloop/internal/application/port/output"
	"agentloop/internal/domain/entity"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultIdleWait = 2 * time.Second
)

var _ output.PageFetcher = (*BrowserAdapter)(nil)

// BrowserAdapter loads pages in a shared headless Chrome. The browser is
// started on the first Fetch; every Fetch uses its own tab.
type BrowserAdapter struct {
	cfg    BrowserConfig
	logger output.LoggerPort

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	closed   bool
}

type BrowserConfig struct {
	Headless  bool
	NoSandbox bool
	Timeout   time.Duration
	IdleWait  time.Duration
	// ControlURL connects to an already running browser instead of
	// launching one.
	ControlURL string
}

func DefaultConfig() BrowserConfig {
	return BrowserConfig{
		Headless: true,
		Timeout:  defaultTimeout,
		IdleWait: defaultIdleWait,
	}
}

func NewBrowserAdapter(cfg BrowserConfig, logger output.LoggerPort) *BrowserAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.IdleWait < 0 {
		cfg.IdleWait = 0
	}
	return &BrowserAdapter{cfg: cfg, logger: logger}
}

func (b *BrowserAdapter) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("browser is closed")
	}
	if b.browser != nil {
		return b.browser, nil
	}

	url := b.cfg.ControlURL
	if url == "" {
		l := launcher.New().
			Headless(b.cfg.Headless).
			NoSandbox(b.cfg.NoSandbox).
			Delete("use-mock-keychain")

		launched, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		url = launched
		b.launcher = l
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		b.killLauncher()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	b.logger.Info("Browser started", "headless", b.cfg.Headless, "controlURL", url)
	b.browser = browser
	return browser, nil
}

func (b *BrowserAdapter) Fetch(ctx context.Context, url string) (*entity.Page, error) {
	browser, err := b.connect()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			b.logger.Warn("Failed to close tab", "error", err)
		}
	}()

	p := page.Context(ctx).Timeout(b.cfg.Timeout)

	start := time.Now()
	if err := p.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("page did not load: %w", err)
	}
	if b.cfg.IdleWait > 0 {
		_ = p.WaitIdle(b.cfg.IdleWait)
	}

	info, err := p.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to read page info: %w", err)
	}
	html, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to get HTML: %w", err)
	}

	b.logger.Debug("Page fetched", "url", info.URL, "bytes", len(html), "elapsed", time.Since(start).String())
	return &entity.Page{
		URL:   info.URL,
		Title: info.Title,
		HTML:  html,
	}, nil
}

func (b *BrowserAdapter) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	if b.browser != nil {
		_ = b.browser.Close()
		b.browser = nil
	}
	b.killLauncher()
}

func (b *BrowserAdapter) killLauncher() {
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
		b.launcher = nil
	}
}
