package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/aluiziolira/go-scrape-douban/config"
	"github.com/aluiziolira/go-scrape-douban/session"
)

const (
	viewportWidth  = 1280
	viewportHeight = 800
)

// blockedResourceTypes are aborted in headless runs; the extractor never
// needs them.
var blockedResourceTypes = []network.ResourceType{
	network.ResourceTypeStylesheet,
	network.ResourceTypeFont,
	network.ResourceTypeImage,
}

// BrowserStrategy renders pages in Chrome through the DevTools protocol.
type BrowserStrategy struct {
	cfg *config.Config
}

// NewBrowserStrategy builds the browser-driven strategy from cfg.
func NewBrowserStrategy(cfg *config.Config) *BrowserStrategy {
	return &BrowserStrategy{cfg: cfg}
}

// Name identifies the strategy in logs and metrics.
func (b *BrowserStrategy) Name() string {
	return config.ModeBrowser
}

// Open launches Chrome, installs the session cookies and, when headless,
// the resource filter. The browser is torn down if any step fails.
func (b *BrowserStrategy) Open(ctx context.Context, credentials string) (Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	s := &browserSession{
		ctx:         browserCtx,
		timeout:     b.cfg.Timeout,
		renderWait:  b.cfg.RenderWait,
		cancelAlloc: cancelAlloc,
		cancelTab:   cancelBrowser,
	}

	actions := []chromedp.Action{
		network.Enable(),
		chromedp.EmulateViewport(viewportWidth, viewportHeight),
	}
	if b.cfg.Headless && b.cfg.BlockResources {
		chromedp.ListenTarget(browserCtx, blockResources(browserCtx))
		actions = append(actions, fetch.Enable().WithPatterns(resourcePatterns()))
	}
	if params := cookieParams(session.ParseCookies(credentials, b.cfg.CookieDomain)); len(params) > 0 {
		actions = append(actions, network.SetCookies(params))
	}

	if err := chromedp.Run(browserCtx, actions...); err != nil {
		if closeErr := s.Close(); closeErr != nil {
			slog.Debug("close browser after failed launch", slog.Any("error", closeErr))
		}
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return s, nil
}

func (b *BrowserStrategy) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.DisableGPU,
		chromedp.UserAgent(b.cfg.UserAgent),
		chromedp.WindowSize(viewportWidth, viewportHeight),
	)
	if b.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ChromePath))
	}
	return opts
}

func resourcePatterns() []*fetch.RequestPattern {
	patterns := make([]*fetch.RequestPattern, 0, len(blockedResourceTypes))
	for _, rt := range blockedResourceTypes {
		patterns = append(patterns, &fetch.RequestPattern{
			URLPattern:   "*",
			ResourceType: rt,
			RequestStage: fetch.RequestStageRequest,
		})
	}
	return patterns
}

// blockResources fails every request paused by the fetch patterns. Only
// blocked resource types are intercepted, so nothing else is delayed.
func blockResources(ctx context.Context) func(ev interface{}) {
	return func(ev interface{}) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(ctx)
			if c == nil || c.Target == nil {
				return
			}
			execCtx := cdp.WithExecutor(ctx, c.Target)
			if err := fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx); err != nil {
				slog.Debug("abort sub-resource", slog.String("url", paused.Request.URL), slog.Any("error", err))
			}
		}()
	}
}

func cookieParams(cookies []session.Cookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		params = append(params, &network.CookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   "/",
		})
	}
	return params
}

type browserSession struct {
	ctx        context.Context
	timeout    time.Duration
	renderWait time.Duration

	cancelAlloc context.CancelFunc
	cancelTab   context.CancelFunc
	closeOnce   sync.Once
	closeErr    error
}

func (s *browserSession) FetchPage(ctx context.Context, page int, target string) (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", &FetchError{Page: page, URL: target, Err: fmt.Errorf("%w: %v", errSessionClosed, err)}
	}
	if err := ctx.Err(); err != nil {
		return "", &FetchError{Page: page, URL: target, Err: classifyError(err, 0)}
	}

	navCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	resp, err := chromedp.RunResponse(navCtx, chromedp.Navigate(target))
	if err != nil {
		return "", &FetchError{Page: page, URL: target, Err: classifyError(err, 0)}
	}
	if resp != nil && (resp.Status < 200 || resp.Status >= 300) {
		status := int(resp.Status)
		return "", &FetchError{Page: page, URL: target, StatusCode: status, Err: classifyError(nil, status)}
	}

	var markup string
	if err := chromedp.Run(navCtx,
		chromedp.Sleep(s.renderWait),
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
	); err != nil {
		return "", &FetchError{Page: page, URL: target, Err: classifyError(err, 0)}
	}

	return checkMarkup(page, markup)
}

// Close shuts the browser down gracefully, then kills the allocator so no
// Chrome process outlives the run.
func (s *browserSession) Close() error {
	s.closeOnce.Do(func() {
		// The tab cancel func waits for the browser to be allocated, so it
		// must be skipped when Chrome never started.
		if c := chromedp.FromContext(s.ctx); c != nil && c.Browser != nil {
			alive := s.ctx.Err() == nil
			if err := chromedp.Cancel(s.ctx); err != nil && alive {
				s.closeErr = fmt.Errorf("close browser: %w", err)
			}
			s.cancelTab()
		}
		s.cancelAlloc()
	})
	return s.closeErr
}
