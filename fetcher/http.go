package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-douban/config"
)

var errSessionClosed = errors.New("session closed")

// HTTPStrategy fetches pages with direct GET requests, forwarding the raw
// credential string as the Cookie header.
type HTTPStrategy struct {
	cfg       *config.Config
	transport http.RoundTripper
}

// NewHTTPStrategy builds the direct-HTTP strategy from cfg.
func NewHTTPStrategy(cfg *config.Config) *HTTPStrategy {
	return &HTTPStrategy{cfg: cfg}
}

// WithTransport replaces the default transport, mainly for tests.
func (h *HTTPStrategy) WithTransport(rt http.RoundTripper) *HTTPStrategy {
	h.transport = rt
	return h
}

// Name identifies the strategy in logs and metrics.
func (h *HTTPStrategy) Name() string {
	return config.ModeHTTP
}

// Open prepares a synchronous collector for one run.
func (h *HTTPStrategy) Open(_ context.Context, credentials string) (Session, error) {
	collector := colly.NewCollector(
		colly.UserAgent(h.cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(h.cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	// The credential string is forwarded verbatim; a jar would add to it.
	collector.DisableCookies()

	transport := h.transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   h.cfg.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}
	collector.WithTransport(transport)

	maxRedirects := h.cfg.MaxRedirects
	collector.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	})

	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put("status", r.StatusCode)
		r.Ctx.Put("body", r.Body)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Ctx != nil {
			r.Ctx.Put("status", r.StatusCode)
		}
	})

	headers := http.Header{}
	headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	headers.Set("Accept-Language", "zh-CN,zh;q=0.8,en-US;q=0.5,en;q=0.3")
	headers.Set("Cache-Control", "max-age=0")
	headers.Set("Upgrade-Insecure-Requests", "1")
	if credentials != "" {
		headers.Set("Cookie", credentials)
	}

	return &httpSession{
		collector: collector,
		transport: transport,
		headers:   headers,
	}, nil
}

type httpSession struct {
	collector *colly.Collector
	transport http.RoundTripper
	headers   http.Header
	closed    atomic.Bool
}

func (s *httpSession) FetchPage(ctx context.Context, page int, target string) (string, error) {
	if s.closed.Load() {
		return "", &FetchError{Page: page, URL: target, Err: errSessionClosed}
	}
	if err := ctx.Err(); err != nil {
		return "", &FetchError{Page: page, URL: target, Err: classifyError(err, 0)}
	}

	reqCtx := colly.NewContext()
	if err := s.collector.Request(http.MethodGet, target, nil, reqCtx, s.headers.Clone()); err != nil {
		status, _ := reqCtx.GetAny("status").(int)
		return "", &FetchError{
			Page:       page,
			URL:        target,
			StatusCode: status,
			Err:        classifyError(err, status),
		}
	}

	body, _ := reqCtx.GetAny("body").([]byte)
	return checkMarkup(page, string(body))
}

func (s *httpSession) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if t, ok := s.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	return nil
}
